package renewer

import (
	"context"
	"fmt"
	"time"

	"bibrenew/internal/components/assert"
	"bibrenew/internal/components/chrono"
	"bibrenew/internal/components/telemetry"
	"bibrenew/internal/notify"
	"bibrenew/internal/pergamum"
	"bibrenew/internal/renewal"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	report_renewer_run          = "renewer.run"
	report_renewer_fatal_notice = "renewer.fatal-notice"
)

var tracer = otel.Tracer("bibrenew/renewer")

// Catalog is the session the renewer works against, *pergamum.Client implements it.
type Catalog interface {
	// Login authenticates and returns the loan listing the catalog lands on.
	Login(ctx context.Context) ([]byte, error)
	Listing(ctx context.Context) ([]byte, error)
	Renew(ctx context.Context, loan pergamum.Loan) ([]byte, error)
}

type Options struct {
	// MaxRenewals is how many times the catalog lets a loan be renewed.
	MaxRenewals int
	// Match decides if a loan seen after renewing is still the unrenewed loan,
	// it defaults to renewal.MatchIdentity.
	Match renewal.Matcher
	// Dumps receives raw documents of renewals that had no effect, it can be nil.
	Dumps telemetry.InstrumentOutput
}

// Renewer runs the whole renewal workflow once: log in, read the loans, renew the
// ones due today, confirm the renewals against a fresh listing and tell the patron.
type Renewer struct {
	catalog Catalog
	mailer  notify.Mailer
	clock   chrono.API
	tel     telemetry.API
	opts    Options

	loanCounter metric.Int64Counter
	state       State
}

func New(catalog Catalog, mailer notify.Mailer, clock chrono.API, tel telemetry.API, opts Options) *Renewer {
	assert.NotNil(catalog)
	assert.NotNil(mailer)
	assert.NotNil(clock)
	assert.NotNil(tel)
	assert.Positive(opts.MaxRenewals)

	if opts.Match == nil {
		opts.Match = renewal.MatchIdentity
	}

	tel = telemetry.NewScopedAPI("renewer", tel)

	loanCounter, err := otel.Meter("bibrenew/renewer").Int64Counter(
		"bibrenew.loans",
		metric.WithDescription("Loans handled by a run, by outcome."),
	)
	if err != nil {
		tel.ReportWarning("renewer.meter", err)
	}

	return &Renewer{
		catalog:     catalog,
		mailer:      mailer,
		clock:       clock,
		tel:         tel,
		opts:        opts,
		loanCounter: loanCounter,
		state:       StateIdle,
	}
}

// State returns where the last run stopped.
func (r *Renewer) State() State {
	return r.state
}

func (r *Renewer) enter(ctx context.Context, state State) {
	r.state = state
	trace.SpanFromContext(ctx).AddEvent("state", trace.WithAttributes(
		attribute.String("state", state.String()),
	))
	r.tel.ReportDebug("state", state.String())
}

// Run executes one renewal run. When it fails, a single best-effort notice is
// sent to the patron and a *RunError is returned.
func (r *Renewer) Run(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "Run")
	defer span.End()

	err := r.run(ctx)
	if err == nil {
		return nil
	}

	failedIn := r.state
	r.enter(ctx, StateFailed)
	span.RecordError(err)
	span.SetStatus(codes.Error, fmt.Sprintf("failed while %s", failedIn))
	r.tel.ReportBroken(report_renewer_run, err, failedIn.String())

	r.sendFatalNotice(ctx)

	return &RunError{State: failedIn, Err: err}
}

func (r *Renewer) sendFatalNotice(ctx context.Context) {
	// the run may have failed because ctx was canceled, the notice should still go out
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second*30)
	defer cancel()

	err := r.mailer.Send(ctx, notify.FatalMessage())
	if err != nil {
		r.tel.ReportBroken(report_renewer_fatal_notice, err)
	}
}

func (r *Renewer) run(ctx context.Context) error {
	r.enter(ctx, StateLoggingIn)
	doc, err := r.catalog.Login(ctx)
	if err != nil {
		return err
	}

	r.enter(ctx, StateListing)
	listing, err := pergamum.ParseListing(doc)
	if err != nil {
		return err
	}

	r.enter(ctx, StateClassifying)
	today := chrono.Today(r.clock)
	due, overdue := renewal.Classify(listing, today)
	r.tel.ReportDebug("classified loans", today.String(), len(listing), len(due), len(overdue))

	var report renewal.Report
	if len(due) > 0 {
		r.enter(ctx, StateRenewing)
		attempts := renewal.Execute(ctx, r.catalog, due)

		r.enter(ctx, StateReconciling)
		reconciler := renewal.NewReconciler(r.catalog, r.opts.Match, r.tel, r.opts.Dumps)
		report, err = reconciler.Reconcile(ctx, attempts)
		if err != nil {
			return err
		}
	}

	r.enter(ctx, StateComposing)
	summary := notify.Summary{
		Overdue: overdue,
		Failed:  report.Failed(),
		Renewed: report.Renewed(),
	}
	r.reportSummary(ctx, summary, report)
	messages := notify.Compose(summary, r.opts.MaxRenewals)

	r.enter(ctx, StateNotifying)
	if len(messages) == 0 {
		r.tel.ReportInfo(fmt.Sprintf(
			"found %d loans but no action needs to be taken",
			len(listing),
		))
	} else {
		notify.Dispatch(ctx, r.mailer, messages, r.tel)
	}

	r.enter(ctx, StateDone)
	return nil
}

func (r *Renewer) reportSummary(ctx context.Context, summary notify.Summary, report renewal.Report) {
	if len(summary.Overdue) > 0 {
		r.tel.ReportInfo(fmt.Sprintf("there are %d overdue loans, sending notification", len(summary.Overdue)))
	}
	if len(summary.Failed) > 0 {
		r.tel.ReportInfo(fmt.Sprintf("%d loans failed to renew, sending notification", len(summary.Failed)))
	}
	if len(summary.Renewed) > 0 {
		r.tel.ReportInfo(fmt.Sprintf("a total of %d loans were renewed successfully", len(summary.Renewed)))
	}

	counts := []struct {
		outcome string
		n       int
	}{
		{"overdue", len(summary.Overdue)},
		{renewal.OutcomeRenewed.String(), report.Count(renewal.OutcomeRenewed)},
		{renewal.OutcomeUnchanged.String(), report.Count(renewal.OutcomeUnchanged)},
		{renewal.OutcomeRequestFailed.String(), report.Count(renewal.OutcomeRequestFailed)},
	}
	for _, c := range counts {
		// zero counts stay out of the log, a quiet run logs a single line
		if c.n > 0 {
			r.tel.ReportCount(c.outcome, int64(c.n))
		}
		if r.loanCounter != nil {
			r.loanCounter.Add(ctx, int64(c.n), metric.WithAttributes(
				attribute.String("outcome", c.outcome),
			))
		}
	}
}
