package repl

import (
	"context"
	"time"

	"github.com/shardbase/shardbase/internal/document"
	"github.com/shardbase/shardbase/internal/lock"
	"github.com/shardbase/shardbase/internal/logging"
	"github.com/shardbase/shardbase/internal/oplog"
)

// Applier applies one decoded oplog entry to local storage; returned by
// the caller's dispatcher layer (internal/dispatch) so this package never
// needs to know document/collection internals, only the apply sequencing
// spec §4.6 mandates.
type Applier func(entry oplog.Entry) error

// ApplyLoop fetches oplog entries from a sync source's tailable cursor
// strictly after the local last-applied ts, applies each one under the
// global write lock, appends it to the local oplog, and advances
// last-applied — the loop described in spec §4.6: "Fetches oplog ≥ local
// last-applied+ε from source via a tailable cursor; for each entry
// validates ts strictly greater than local, then applies under the write
// lock, then writes the same entry to local oplog. Slave-delay sleeps
// between fetch and apply."
type ApplyLoop struct {
	self        *Member
	locks       *lock.Manager
	localLog    *oplog.Log
	apply       Applier
	slaveDelay  time.Duration
	log         *logging.Logger

	lastAppliedTs document.Timestamp
}

func NewApplyLoop(self *Member, locks *lock.Manager, localLog *oplog.Log, apply Applier, slaveDelay time.Duration, log *logging.Logger) *ApplyLoop {
	return &ApplyLoop{self: self, locks: locks, localLog: localLog, apply: apply, slaveDelay: slaveDelay, log: log}
}

// ApplyBatch applies entries fetched from a sync source's tail cursor in
// order, skipping (and logging) any entry whose ts is not strictly greater
// than local — a defensive check against a misbehaving or re-delivering
// source, since the tailable-cursor contract already hands entries in ts
// order.
func (a *ApplyLoop) ApplyBatch(ctx context.Context, entries []oplog.Entry) error {
	for _, e := range entries {
		if e.Ts.Compare(a.lastAppliedTs) <= 0 {
			continue
		}
		if a.slaveDelay > 0 {
			time.Sleep(a.slaveDelay)
		}

		h, err := a.locks.Lock(ctx, lock.Global, lock.IX)
		if err != nil {
			return err
		}
		applyErr := a.apply(e)
		h.Unlock()
		if applyErr != nil {
			if a.log != nil {
				a.log.Errorw("apply failed", "ts", e.Ts, "op", e.Op, "ns", e.NS, "error", applyErr)
			}
			return applyErr
		}

		if err := a.localLog.AppendEntry(e); err != nil {
			return err
		}

		a.lastAppliedTs = e.Ts
		a.self.SetLastApplied(int64(e.Ts.Seconds))
	}
	return nil
}

func (a *ApplyLoop) LastApplied() document.Timestamp { return a.lastAppliedTs }
