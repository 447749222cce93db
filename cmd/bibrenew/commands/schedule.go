package commands

import (
	"context"

	"bibrenew/internal/components/chrono"
	"bibrenew/pkg/serviceutil"

	"github.com/spf13/cobra"
)

var scheduleAt *string

func init() {
	scheduleAt = scheduleCmd.Flags().String("at", "0 8 * * *", "The cron spec to renew on, in the configured timezone.")
	rootCmd.AddCommand(scheduleCmd)
}

// ScheduleRuns registers run on cron. Runs are detached from ctx's cancellation
// so a shutdown lets the current run finish instead of failing it.
func ScheduleRuns(ctx context.Context, cron chrono.CronAPI, spec string, run func(context.Context) error) error {
	runCtx := context.WithoutCancel(ctx)
	return cron.Cron(spec, func() {
		// failures were already reported and the patron notified
		_ = run(runCtx)
	})
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule [--at <cron spec>]",
	Short: "Keeps running and renews on a cron schedule until interrupted.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		cfg := mustConfig()
		s := mustSession(ctx, cfg)
		r := newRenewer(cfg, s)

		cronner := chrono.NewStandardCron(s.clock.Location(), s.tel)
		err := ScheduleRuns(ctx, cronner, *scheduleAt, r.Run)
		if err != nil {
			s.Close()
			serviceutil.Fatal("schedule renewals", err, "at", *scheduleAt)
		}
		cronner.Start()
		for _, next := range cronner.Next() {
			s.tel.ReportInfo("next renewal run", next)
		}

		<-ctx.Done()
		<-cronner.Stop().Done()
		s.Close()
	},
}
