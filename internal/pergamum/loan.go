package pergamum

import (
	"fmt"

	"bibrenew/internal/components/chrono"
)

// Loan is one borrowed copy as shown on the renewal page. It is a plain value,
// two loans are the same loan only if every field is equal.
type Loan struct {
	Title        string
	DueDate      chrono.Date
	RenewalCount int
	// ItemId is the catalog's cod_acervo.
	ItemId int
	// CopyId is the catalog's cod_exemplar.
	CopyId int
}

func (l Loan) String() string {
	return fmt.Sprintf("%s: %d: %s", l.Title, l.RenewalCount, l.DueDate)
}

// Key identifies the physical copy, it is stable across renewals.
func (l Loan) Key() string {
	return fmt.Sprintf("%d-%d", l.ItemId, l.CopyId)
}

// Listing is the list of loans in the order the catalog shows them.
type Listing []Loan

// Contains reports whether any loan in the listing satisfies match against loan.
func (l Listing) Contains(loan Loan, match func(attempted, observed Loan) bool) bool {
	for _, observed := range l {
		if match(loan, observed) {
			return true
		}
	}
	return false
}
