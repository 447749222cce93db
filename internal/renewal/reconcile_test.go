package renewal

import (
	"context"
	"errors"
	"sync"
	"testing"

	"bibrenew/internal/components/telemetry"
	"bibrenew/internal/pergamum"
	"bibrenew/internal/pergamum/pergamumtest"

	"github.com/stretchr/testify/require"
)

func renewedVersion(loan pergamum.Loan) pergamum.Loan {
	loan.DueDate = loan.DueDate.AddDays(7)
	loan.RenewalCount++
	return loan
}

func TestResolve(t *testing.T) {
	renewed := loanDue("renewed", 0)
	unchanged := loanDue("unchanged", 0)
	failedPresent := loanDue("failed but present", 0)
	failedAbsent := loanDue("failed and absent", 0)
	other := loanDue("not attempted", 5)

	snapshot := pergamum.Listing{renewedVersion(renewed), unchanged, failedPresent, other}
	attempts := []Attempt{
		{Loan: renewed, Response: []byte("ok")},
		{Loan: unchanged, Response: []byte("ok")},
		{Loan: failedPresent, Err: errors.New("timeout")},
		{Loan: failedAbsent, Err: errors.New("status 500")},
	}

	for name, match := range map[string]Matcher{"exact": MatchExact, "identity": MatchIdentity} {
		t.Run(name, func(t *testing.T) {
			results := Resolve(attempts, snapshot, match)
			require.Len(t, results, len(attempts))

			outcomes := []Outcome{}
			for i, res := range results {
				require.Equal(t, attempts[i].Loan, res.Loan)
				outcomes = append(outcomes, res.Outcome)
			}
			require.Equal(t, []Outcome{
				OutcomeRenewed,
				OutcomeUnchanged,
				OutcomeRequestFailed,
				OutcomeRequestFailed,
			}, outcomes)

			report := Report{Results: results}
			require.Equal(t, []pergamum.Loan{renewed}, report.Renewed())
			require.Equal(t, []pergamum.Loan{unchanged, failedPresent, failedAbsent}, report.Failed())
			require.Equal(t, 2, report.Count(OutcomeRequestFailed))
		})
	}
}

func TestResolveIncidentalDrift(t *testing.T) {
	attempted := loanDue("Cálculo A", 0)
	drifted := attempted
	drifted.Title = "Cálculo A (2a ed.)"
	snapshot := pergamum.Listing{drifted}
	attempts := []Attempt{{Loan: attempted}}

	// full equality reads a title change as a renewal, identity does not
	require.Equal(t, OutcomeRenewed, Resolve(attempts, snapshot, MatchExact)[0].Outcome)
	require.Equal(t, OutcomeUnchanged, Resolve(attempts, snapshot, MatchIdentity)[0].Outcome)
}

func TestMatcherByName(t *testing.T) {
	for _, name := range []string{"", "identity", "exact"} {
		match, err := MatcherByName(name)
		require.NoError(t, err)
		require.NotNil(t, match)
	}
	_, err := MatcherByName("fuzzy")
	require.Error(t, err)
}

type fakeLister struct {
	doc []byte
	err error
}

func (f fakeLister) Listing(ctx context.Context) ([]byte, error) {
	return f.doc, f.err
}

type memoryOutput struct {
	mutex sync.Mutex
	files map[string]string
}

func (m *memoryOutput) Write(id, contents string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.files == nil {
		m.files = map[string]string{}
	}
	m.files[id] = contents
}

func TestReconciler(t *testing.T) {
	renewed := loanDue("renewed", 0)
	unchanged := loanDue("unchanged", 0)
	doc := pergamumtest.RenderListing(renewedVersion(renewed), unchanged)

	tel := telemetry.NewMemoryAPI()
	dumps := &memoryOutput{}
	reconciler := NewReconciler(fakeLister{doc: doc}, MatchIdentity, tel, dumps)

	report, err := reconciler.Reconcile(context.Background(), []Attempt{
		{Loan: renewed, Response: []byte("renew response 1")},
		{Loan: unchanged, Response: []byte("renew response 2")},
	})
	require.NoError(t, err)
	require.Equal(t, []pergamum.Loan{renewed}, report.Renewed())
	require.Equal(t, []pergamum.Loan{unchanged}, report.Failed())
	require.Equal(t, pergamum.Listing{renewedVersion(renewed), unchanged}, report.Snapshot)

	broken := tel.Reports(telemetry.KindBroken)
	require.Len(t, broken, 1)
	require.Equal(t, "renewal: "+report_reconcile_unchanged, broken[0].Id)

	require.Equal(t, "renew response 2", dumps.files[unchanged.Key()+"-renew"])
	require.Equal(t, string(doc), dumps.files["listing"])
	require.Len(t, dumps.files, 2)
}

func TestReconcilerFetchFails(t *testing.T) {
	fetchErr := errors.New("connection refused")
	reconciler := NewReconciler(fakeLister{err: fetchErr}, MatchExact, telemetry.NewMemoryAPI(), nil)

	_, err := reconciler.Reconcile(context.Background(), []Attempt{{Loan: loanDue("a", 0)}})
	require.ErrorIs(t, err, fetchErr)
}

func TestReconcilerParseFails(t *testing.T) {
	doc := []byte(`<html><body><div><div></div><div><ul>
		<li><a href="x.php?cod_acervo=1"><h2>T</h2><p>Due: 01/01/2026</p><p>Renewals: 0</p></a></li>
	</ul></div></div></body></html>`)
	reconciler := NewReconciler(fakeLister{doc: doc}, MatchExact, telemetry.NewMemoryAPI(), nil)

	_, err := reconciler.Reconcile(context.Background(), []Attempt{{Loan: loanDue("a", 0)}})
	var parseErr *pergamum.ParseError
	require.ErrorAs(t, err, &parseErr)
}
