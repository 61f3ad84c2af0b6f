// Package storage implements the storage-engine contract of spec §6 (the
// bottom boundary the core assumes): CreateRecordStore/GetRecordStore/
// DropIdent/NewRecoveryUnit, plus two concrete engines — an in-memory engine
// (grounded on the teacher's internal/storage.Store map+mutex idiom) and a
// durable engine backed by go.etcd.io/bbolt, an embedded B-tree standing in
// for the out-of-scope on-disk storage engine.
package storage

import (
	"fmt"
	"sync"

	"github.com/shardbase/shardbase/internal/recordstore"
)

// RecoveryUnit is the per-operation handle to the storage engine described
// in spec §5: it is committed or rolled back exactly once. Registered
// change callbacks fire on Commit (e.g. advance counters) or Rollback (e.g.
// revert counters). It holds no read snapshot: record store calls do not go
// through a recovery unit and see the store's current contents.
type RecoveryUnit interface {
	// OnCommit registers a callback invoked after a successful Commit.
	OnCommit(fn func())
	// OnRollback registers a callback invoked after a Rollback.
	OnRollback(fn func())
	Commit() error
	Rollback() error
}

// Engine is the storage-engine contract of spec §6.
type Engine interface {
	CreateRecordStore(ns string, capped bool, cappedMaxBytes, cappedMaxDocs int64) (recordstore.RecordStore, error)
	GetRecordStore(ns string) (recordstore.RecordStore, bool)
	DropIdent(ns string) error
	NewRecoveryUnit() RecoveryUnit
	Close() error
}

// recoveryUnit is a minimal engine-agnostic RecoveryUnit: a single
// compare-and-swap-free commit/rollback state with callback lists. Both
// engines in this package share it; it keeps no snapshot, so nothing in it
// depends on the backing storage.
type recoveryUnit struct {
	mu         sync.Mutex
	done       bool
	onCommit   []func()
	onRollback []func()
}

func newRecoveryUnit() *recoveryUnit { return &recoveryUnit{} }

func (r *recoveryUnit) OnCommit(fn func())   { r.mu.Lock(); defer r.mu.Unlock(); r.onCommit = append(r.onCommit, fn) }
func (r *recoveryUnit) OnRollback(fn func()) { r.mu.Lock(); defer r.mu.Unlock(); r.onRollback = append(r.onRollback, fn) }

func (r *recoveryUnit) Commit() error {
	r.mu.Lock()
	if r.done {
		r.mu.Unlock()
		return fmt.Errorf("recovery unit already finished")
	}
	r.done = true
	cbs := r.onCommit
	r.mu.Unlock()
	for _, fn := range cbs {
		fn()
	}
	return nil
}

func (r *recoveryUnit) Rollback() error {
	r.mu.Lock()
	if r.done {
		r.mu.Unlock()
		return fmt.Errorf("recovery unit already finished")
	}
	r.done = true
	cbs := r.onRollback
	r.mu.Unlock()
	for _, fn := range cbs {
		fn()
	}
	return nil
}
