package notify

import (
	"context"
	"sync/atomic"

	"bibrenew/internal/components/telemetry"

	"golang.org/x/sync/errgroup"
)

const report_dispatch_send = "dispatch.send"

// Dispatch sends every message concurrently. A failed send is reported to tel and
// does not stop the others, the number of failed sends is returned.
func Dispatch(ctx context.Context, mailer Mailer, messages []Message, tel telemetry.API) int {
	tel = telemetry.NewScopedAPI("notify", tel)

	var failed atomic.Int64
	var group errgroup.Group
	for _, msg := range messages {
		group.Go(func() error {
			err := mailer.Send(ctx, msg)
			if err != nil {
				tel.ReportBroken(report_dispatch_send, err, msg.Subject)
				failed.Add(1)
				return nil
			}
			tel.ReportDebug("sent notification", msg.Subject)
			return nil
		})
	}
	group.Wait()

	return int(failed.Load())
}
