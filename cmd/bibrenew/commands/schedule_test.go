package commands

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type recordingCron struct {
	specs []string
	jobs  []func()
}

func (c *recordingCron) Cron(spec string, callback func()) error {
	if spec == "" {
		return errors.New("empty spec")
	}
	c.specs = append(c.specs, spec)
	c.jobs = append(c.jobs, callback)
	return nil
}

func TestScheduleRunsSurvivesShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cron := &recordingCron{}

	var runErrs []error
	err := ScheduleRuns(ctx, cron, "0 8 * * *", func(ctx context.Context) error {
		runErrs = append(runErrs, ctx.Err())
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"0 8 * * *"}, cron.specs)

	cron.jobs[0]()
	cancel()
	cron.jobs[0]()

	require.Equal(t, []error{nil, nil}, runErrs)
}

func TestScheduleRunsBadSpec(t *testing.T) {
	err := ScheduleRuns(context.Background(), &recordingCron{}, "", func(context.Context) error {
		return nil
	})
	require.Error(t, err)
}
