package notify

import (
	"strings"

	"bibrenew/internal/pergamum"
)

const (
	SubjectOverdue        = "Overdue loans!"
	SubjectFailed         = "Loan renewals failed!"
	SubjectRenewed        = "Loans renewed successfully."
	SubjectRenewedOnLimit = "Loans renewed, but watch out!"
	SubjectFatal          = "Fatal error in the loan renewer!"
)

type Message struct {
	Subject string
	Body    string
}

// Summary is what happened to the patron's loans in one run.
type Summary struct {
	Overdue []pergamum.Loan
	// Failed holds loans whose renewal request failed or did not take effect.
	Failed  []pergamum.Loan
	Renewed []pergamum.Loan
}

// ListLoans renders one loan per line as "<title>: <renewal count>: <due date>".
func ListLoans(loans []pergamum.Loan) string {
	lines := make([]string, len(loans))
	for i, loan := range loans {
		lines[i] = loan.String()
	}
	return strings.Join(lines, "\n")
}

// OnLimit returns the loans that used their last renewal, they will need to be
// returned or renewed in person next time.
func OnLimit(renewed []pergamum.Loan, maxRenewals int) []pergamum.Loan {
	var out []pergamum.Loan
	for _, loan := range renewed {
		if loan.RenewalCount+1 == maxRenewals {
			out = append(out, loan)
		}
	}
	return out
}

// Compose builds the messages for a run: overdue loans, failed renewals and
// successful renewals, in that order. Nothing is returned when there is nothing
// worth telling the patron.
func Compose(summary Summary, maxRenewals int) []Message {
	var messages []Message

	if len(summary.Overdue) > 0 {
		messages = append(messages, Message{
			Subject: SubjectOverdue,
			Body: "The following loans are past their return date:\n" +
				ListLoans(summary.Overdue),
		})
	}

	if len(summary.Failed) > 0 {
		messages = append(messages, Message{
			Subject: SubjectFailed,
			Body: "The following loans could not be renewed:\n" +
				ListLoans(summary.Failed) +
				"\n\nPlease contact the administrator of the renewal bot.",
		})
	}

	if len(summary.Renewed) > 0 {
		onLimit := OnLimit(summary.Renewed, maxRenewals)

		subject := SubjectRenewed
		body := "The following loans were renewed:\n" + ListLoans(summary.Renewed)
		if len(onLimit) > 0 {
			subject = SubjectRenewedOnLimit
			body += "\nHowever, the following loans cannot be renewed next time!" +
				" Personal intervention will be required.\n" +
				ListLoans(onLimit)
		}
		messages = append(messages, Message{Subject: subject, Body: body})
	}

	return messages
}

// FatalMessage is sent when a run could not complete.
func FatalMessage() Message {
	return Message{
		Subject: SubjectFatal,
		Body: "A fatal error happened while checking and renewing your loans." +
			" Please contact the administrator of the renewal bot.",
	}
}
