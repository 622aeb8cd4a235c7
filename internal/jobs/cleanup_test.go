package jobs

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type countingDeleter struct {
	calls atomic.Int64
}

func (d *countingDeleter) DeleteExpired(ctx context.Context) (int64, error) {
	d.calls.Add(1)
	return 1, nil
}

func TestCleanupJobRunsImmediatelyAndOnTicks(t *testing.T) {
	deleter := &countingDeleter{}
	job := NewCleanupJob(deleter, 20*time.Millisecond)

	job.Start()
	defer job.Stop()

	require.Eventually(t, func() bool {
		return deleter.calls.Load() >= 2
	}, time.Second, 5*time.Millisecond, "expected an immediate sweep plus at least one tick")
}

func TestCleanupJobStops(t *testing.T) {
	deleter := &countingDeleter{}
	job := NewCleanupJob(deleter, 10*time.Millisecond)

	job.Start()
	require.Eventually(t, func() bool {
		return deleter.calls.Load() >= 1
	}, time.Second, 5*time.Millisecond)

	job.Stop()
	after := deleter.calls.Load()
	time.Sleep(50 * time.Millisecond)
	require.LessOrEqual(t, deleter.calls.Load(), after+1, "no sweeps after Stop settles")
}
