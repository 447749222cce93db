package renewal

import (
	"context"
	"fmt"

	"bibrenew/internal/components/assert"
	"bibrenew/internal/components/telemetry"
	"bibrenew/internal/pergamum"
)

const (
	report_reconcile_request_failed = "reconcile.request-failed"
	report_reconcile_unchanged      = "reconcile.unchanged"
)

// Outcome is the final verdict on a renewal attempt.
type Outcome int

const (
	// OutcomeRenewed means the loan is no longer in the listing as it was before.
	OutcomeRenewed Outcome = iota
	// OutcomeUnchanged means the request went through but the loan is still listed as before.
	OutcomeUnchanged
	// OutcomeRequestFailed means the request itself failed.
	OutcomeRequestFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeRenewed:
		return "renewed"
	case OutcomeUnchanged:
		return "unchanged"
	case OutcomeRequestFailed:
		return "request failed"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// Matcher decides whether a loan observed in a listing is the same, not yet
// renewed, loan that was attempted.
type Matcher func(attempted, observed pergamum.Loan) bool

// MatchExact compares every field.
func MatchExact(attempted, observed pergamum.Loan) bool {
	return attempted == observed
}

// MatchIdentity compares the copy identifiers and the due date, so a change in the
// title's markup or another incidental field does not read as a renewal.
func MatchIdentity(attempted, observed pergamum.Loan) bool {
	return attempted.ItemId == observed.ItemId &&
		attempted.CopyId == observed.CopyId &&
		attempted.DueDate == observed.DueDate
}

// MatcherByName maps the configuration names "identity" and "exact" to their
// matcher, an empty name selects identity.
func MatcherByName(name string) (Matcher, error) {
	switch name {
	case "", "identity":
		return MatchIdentity, nil
	case "exact":
		return MatchExact, nil
	}
	return nil, fmt.Errorf("unknown reconcile matcher %q, expected \"identity\" or \"exact\"", name)
}

type Result struct {
	Attempt
	Outcome Outcome
}

// Resolve decides the outcome of every attempt against a listing fetched after
// all of them completed.
func Resolve(attempts []Attempt, snapshot pergamum.Listing, match Matcher) []Result {
	results := make([]Result, len(attempts))
	for i, attempt := range attempts {
		outcome := OutcomeRenewed
		switch {
		case attempt.Err != nil:
			outcome = OutcomeRequestFailed
		case snapshot.Contains(attempt.Loan, match):
			outcome = OutcomeUnchanged
		}
		results[i] = Result{Attempt: attempt, Outcome: outcome}
	}
	return results
}

// Report is the reconciled state of a run's renewals.
type Report struct {
	Results  []Result
	Snapshot pergamum.Listing
}

// Renewed returns the loans whose renewal was confirmed, in attempt order.
func (r Report) Renewed() []pergamum.Loan {
	var out []pergamum.Loan
	for _, res := range r.Results {
		if res.Outcome == OutcomeRenewed {
			out = append(out, res.Loan)
		}
	}
	return out
}

// Failed returns the loans whose request failed or had no effect, in attempt order.
func (r Report) Failed() []pergamum.Loan {
	var out []pergamum.Loan
	for _, res := range r.Results {
		if res.Outcome != OutcomeRenewed {
			out = append(out, res.Loan)
		}
	}
	return out
}

// Count returns how many results have the given outcome.
func (r Report) Count(outcome Outcome) int {
	n := 0
	for _, res := range r.Results {
		if res.Outcome == outcome {
			n++
		}
	}
	return n
}

// Lister fetches the current renewal page.
type Lister interface {
	Listing(ctx context.Context) ([]byte, error)
}

// Reconciler re-reads the catalog after renewals to find out which of them
// actually took effect.
type Reconciler struct {
	lister Lister
	match  Matcher
	tel    telemetry.API
	// dumps can be nil
	dumps telemetry.InstrumentOutput
}

func NewReconciler(lister Lister, match Matcher, tel telemetry.API, dumps telemetry.InstrumentOutput) Reconciler {
	assert.NotNil(lister)
	assert.NotNil(match)
	assert.NotNil(tel)

	return Reconciler{
		lister: lister,
		match:  match,
		tel:    telemetry.NewScopedAPI("renewal", tel),
		dumps:  dumps,
	}
}

// Reconcile fetches a fresh listing and resolves every attempt against it. Failing
// to fetch or parse the listing is returned, nothing can be concluded without it.
func (r Reconciler) Reconcile(ctx context.Context, attempts []Attempt) (Report, error) {
	doc, err := r.lister.Listing(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("reconcile: %w", err)
	}
	snapshot, err := pergamum.ParseListing(doc)
	if err != nil {
		return Report{}, fmt.Errorf("reconcile: %w", err)
	}

	results := Resolve(attempts, snapshot, r.match)

	dumpedListing := false
	for _, res := range results {
		switch res.Outcome {
		case OutcomeRequestFailed:
			r.tel.ReportBroken(report_reconcile_request_failed, res.Err, res.Loan.Title, res.Loan.Key())
		case OutcomeUnchanged:
			r.tel.ReportBroken(
				report_reconcile_unchanged,
				fmt.Errorf("loan state was not changed by the renewal"),
				res.Loan.Title,
				res.Loan.Key(),
			)
			if r.dumps == nil {
				continue
			}
			r.dumps.Write(fmt.Sprintf("%s-renew", res.Loan.Key()), string(res.Response))
			if !dumpedListing {
				r.dumps.Write("listing", string(doc))
				dumpedListing = true
			}
		}
	}

	return Report{Results: results, Snapshot: snapshot}, nil
}
