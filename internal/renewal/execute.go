package renewal

import (
	"context"

	"bibrenew/internal/pergamum"

	"golang.org/x/sync/errgroup"
)

// Renewer issues a single renewal request.
type Renewer interface {
	Renew(ctx context.Context, loan pergamum.Loan) ([]byte, error)
}

// Attempt is a renewal request and what the catalog answered.
type Attempt struct {
	Loan     pergamum.Loan
	Response []byte
	Err      error
}

// Execute renews every loan concurrently. Attempts never cancel each other, a
// failed request is only recorded on its own Attempt. The result has the same
// order and length as loans.
func Execute(ctx context.Context, renewer Renewer, loans []pergamum.Loan) []Attempt {
	attempts := make([]Attempt, len(loans))

	var group errgroup.Group
	for i, loan := range loans {
		group.Go(func() error {
			res, err := renewer.Renew(ctx, loan)
			attempts[i] = Attempt{Loan: loan, Response: res, Err: err}
			return nil
		})
	}
	group.Wait()

	return attempts
}
