package renewal

import (
	"bibrenew/internal/components/chrono"
	"bibrenew/internal/pergamum"
)

// Bucket is what needs to be done about a loan on a given day.
type Bucket int

const (
	BucketNoAction Bucket = iota
	BucketDue
	BucketOverdue
)

func (b Bucket) String() string {
	switch b {
	case BucketDue:
		return "due"
	case BucketOverdue:
		return "overdue"
	default:
		return "no action"
	}
}

// BucketOf classifies a single loan. A loan due today is renewed, not overdue.
func BucketOf(loan pergamum.Loan, today chrono.Date) Bucket {
	switch loan.DueDate.Compare(today) {
	case 0:
		return BucketDue
	case -1:
		return BucketOverdue
	default:
		return BucketNoAction
	}
}

// Classify splits loans into the ones to renew today and the ones already
// overdue, loans due later are dropped. Input order is kept.
func Classify(loans []pergamum.Loan, today chrono.Date) (due, overdue []pergamum.Loan) {
	for _, loan := range loans {
		switch BucketOf(loan, today) {
		case BucketDue:
			due = append(due, loan)
		case BucketOverdue:
			overdue = append(overdue, loan)
		}
	}
	return due, overdue
}
