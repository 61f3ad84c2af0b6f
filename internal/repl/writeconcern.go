package repl

import (
	"context"
	"time"

	sberrors "github.com/shardbase/shardbase/internal/errors"
)

// WriteConcern names how many voting members must apply a write before a
// client's operation returns, per spec §4.6's "write-concern wait".
type WriteConcern struct {
	W       int  // number of members required ("majority" is encoded by the caller as the current voting-member majority count)
	Journal bool // require the local journal fsync as well, not modeled here beyond the flag
}

// CommittedPointFunc reports the current majority-committed last-applied
// value, e.g. backed by MajorityCommitted.
type CommittedPointFunc func() int64

// WaitFor blocks until committed() reaches at least targetTs, or ctx is
// done / deadline elapses, per spec §4's suspension-point contract
// (condition-variable wait that simultaneously respects the operation
// deadline, a kill flag, and shutdown).
func WaitFor(ctx context.Context, targetTs int64, committed CommittedPointFunc, pollInterval time.Duration) error {
	if committed() >= targetTs {
		return nil
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return sberrors.New(sberrors.CodeExceededTime, "write concern wait did not reach ts %d before deadline", targetTs)
		case <-ticker.C:
			if committed() >= targetTs {
				return nil
			}
		}
	}
}
