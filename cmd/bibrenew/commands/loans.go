package commands

import (
	"fmt"
	"os"

	"bibrenew/internal/components/chrono"
	"bibrenew/internal/pergamum"
	"bibrenew/internal/renewal"
	"bibrenew/pkg/serviceutil"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(loansCmd)
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(os.Stdout)
	return t
}

// LoanRows renders loans the way the loans command lists them, with what a run
// would do about each of them today.
func LoanRows(listing pergamum.Listing, today chrono.Date, maxRenewals int) []table.Row {
	rows := make([]table.Row, len(listing))
	for i, loan := range listing {
		rows[i] = table.Row{
			loan.Title,
			loan.DueDate.String(),
			fmt.Sprintf("%d/%d", loan.RenewalCount, maxRenewals),
			loan.Key(),
			renewal.BucketOf(loan, today).String(),
		}
	}
	return rows
}

var loansCmd = &cobra.Command{
	Use:   "loans",
	Short: "Lists the patron's loans without renewing anything.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := mustConfig()
		s := mustSession(cmd.Context(), cfg)
		defer s.Close()

		doc, err := s.client.Login(cmd.Context())
		if err != nil {
			s.Close()
			serviceutil.Fatal("login", err)
		}
		listing, err := pergamum.ParseListing(doc)
		if err != nil {
			s.Close()
			serviceutil.Fatal("read loans", err)
		}

		t := newTable()
		t.AppendHeader(table.Row{"Title", "Due", "Renewals", "Copy", "Action"})
		t.AppendRows(LoanRows(listing, chrono.Today(s.clock), cfg.MaxRenewals))
		t.Render()
	},
}
