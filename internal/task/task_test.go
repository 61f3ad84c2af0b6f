package task

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTaskTicksImmediatelyThenOnInterval(t *testing.T) {
	var calls int64
	tk := New("test", 10*time.Millisecond, func(ctx context.Context) error {
		atomic.AddInt64(&calls, 1)
		return nil
	})
	tk.Start(context.Background())
	require.Eventually(t, func() bool { return atomic.LoadInt64(&calls) >= 2 }, time.Second, time.Millisecond)
	tk.Cancel()
	require.Equal(t, StateCancelled, tk.State())
}

func TestTaskStartIsIdempotent(t *testing.T) {
	var calls int64
	tk := New("test", 5*time.Millisecond, func(ctx context.Context) error {
		atomic.AddInt64(&calls, 1)
		return nil
	})
	tk.Start(context.Background())
	tk.Start(context.Background()) // no-op, already scheduled
	tk.Cancel()
	require.Equal(t, StateCancelled, tk.State())
}

func TestRunOnceTransitionsToDone(t *testing.T) {
	var ran bool
	tk, err := RunOnce(context.Background(), func(ctx context.Context) error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	require.True(t, ran)
	require.Equal(t, StateDone, tk.State())
}
