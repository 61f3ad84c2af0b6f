// Package exec implements the execution engine of spec §4.3 (component
// C4): a tree of pull-based stages sharing one working set, a yield policy
// for cooperative lock release, and a cursor registry for long-lived
// executors. There is no teacher analogue for a query planner in
// johnjansen-torua, so this package is new code shaped directly by the
// spec and by original_source/src/mongo/db/query/internal_plans.h and
// src/mongo/dbtests/query_stage_fetch.cpp, written in the teacher's
// plain-interface-plus-struct idiom (doc.go prose, small exported types).
package exec

import (
	"context"
	"time"

	"github.com/shardbase/shardbase/internal/document"
	sberrors "github.com/shardbase/shardbase/internal/errors"
	"github.com/shardbase/shardbase/internal/recordstore"
)

// WorkState is the result of one call to Stage.Work, per spec §4.3.
type WorkState int

const (
	StateAdvanced WorkState = iota
	StateNeedTime
	StateIsEOF
	StateNeedFetch
	StateDead
	StateFailure
)

func (s WorkState) String() string {
	switch s {
	case StateAdvanced:
		return "ADVANCED"
	case StateNeedTime:
		return "NEED_TIME"
	case StateIsEOF:
		return "IS_EOF"
	case StateNeedFetch:
		return "NEED_FETCH"
	case StateDead:
		return "DEAD"
	case StateFailure:
		return "FAILURE"
	default:
		return "UNKNOWN"
	}
}

// MemberID indexes a slot in a WorkingSet.
type MemberID int

// Member holds one of the three slot shapes spec §4.3 names: {loc},
// {loc, doc}, or {owned doc}. HasLoc/HasDoc report which fields are valid.
type Member struct {
	Loc     recordstore.Locator
	HasLoc  bool
	Doc     *document.Document
	HasDoc  bool
	Owned   bool // true once Doc no longer depends on the record store snapshot
	Tag     int  // monotone state tag, bumped on every mutation for invalidate() staleness checks
}

// WorkingSet is the shared slot table a plan's stages read and write
// through MemberIDs, per spec §4.3 ("a plan is a tree of stages sharing
// one working set of member slots").
type WorkingSet struct {
	members []*Member
	free    []MemberID
}

func NewWorkingSet() *WorkingSet { return &WorkingSet{} }

func (ws *WorkingSet) Allocate() MemberID {
	if n := len(ws.free); n > 0 {
		id := ws.free[n-1]
		ws.free = ws.free[:n-1]
		ws.members[id] = &Member{}
		return id
	}
	ws.members = append(ws.members, &Member{})
	return MemberID(len(ws.members) - 1)
}

func (ws *WorkingSet) Get(id MemberID) *Member { return ws.members[id] }

func (ws *WorkingSet) Free(id MemberID) {
	ws.members[id] = nil
	ws.free = append(ws.free, id)
}

// InvalidationKind identifies why invalidate() is being delivered.
type InvalidationKind int

const (
	InvalidateRecordDeleted InvalidationKind = iota
	InvalidateIndexDropped
	InvalidateCollectionDropped
	InvalidateCatalogChanged
)

// Stage is the pull-based execution-tree node of spec §4.3.
type Stage interface {
	Work(ctx *ExecContext) (WorkState, MemberID)
	SaveState() error
	RestoreState() error
	Invalidate(loc recordstore.Locator, kind InvalidationKind)
	Children() []Stage
}

// YieldPolicy selects when a plan releases its locks/recovery unit between
// Work() calls, per spec §4.3.
type YieldPolicy int

const (
	NoYield YieldPolicy = iota
	YieldManual
	YieldAuto
)

// ExecContext is the per-operation interrupt/deadline/yield context every
// stage receives on each Work call (spec §4.3, §4 suspension points).
type ExecContext struct {
	Context     context.Context
	WorkingSet  *WorkingSet
	Policy      YieldPolicy
	Deadline    time.Time
	killed      bool
	worksSoFar  int64
	onYield     func() error // re-acquire locks/recovery unit; returns error if the collection vanished
}

func NewExecContext(ctx context.Context, ws *WorkingSet, policy YieldPolicy, deadline time.Time, onYield func() error) *ExecContext {
	return &ExecContext{Context: ctx, WorkingSet: ws, Policy: policy, Deadline: deadline, onYield: onYield}
}

func (c *ExecContext) Kill() { c.killed = true }

// CheckForInterrupt implements spec §4.3's checkForInterrupt / §4's
// suspension-point contract: called at bounded intervals (every ~1000
// records) and at every yield point.
func (c *ExecContext) CheckForInterrupt() error {
	if c.killed {
		return sberrors.New(sberrors.CodeInterrupted, "operation killed")
	}
	select {
	case <-c.Context.Done():
		return sberrors.New(sberrors.CodeInterrupted, "operation context cancelled")
	default:
	}
	if !c.Deadline.IsZero() && time.Now().After(c.Deadline) {
		return sberrors.New(sberrors.CodeExceededTime, "operation exceeded time limit")
	}
	return nil
}

// Tick bumps the per-call record counter and, every 1000 records, runs an
// interrupt check, per spec §4.3.
func (c *ExecContext) Tick() error {
	c.worksSoFar++
	if c.worksSoFar%1000 == 0 {
		return c.CheckForInterrupt()
	}
	return nil
}

// Yield saves state across the whole plan tree, invokes onYield to drop
// and reacquire locks/recovery unit, and restores state, per spec §4.3's
// four-step yield contract. Returns StateDead if the collection vanished
// or changed identity underneath the plan.
func Yield(root Stage, ctx *ExecContext) WorkState {
	if ctx.Policy == NoYield {
		return StateAdvanced
	}
	if err := saveAll(root); err != nil {
		return StateFailure
	}
	if ctx.onYield != nil {
		if err := ctx.onYield(); err != nil {
			return StateDead
		}
	}
	if err := restoreAll(root); err != nil {
		return StateDead
	}
	return StateAdvanced
}

func saveAll(s Stage) error {
	if err := s.SaveState(); err != nil {
		return err
	}
	for _, c := range s.Children() {
		if err := saveAll(c); err != nil {
			return err
		}
	}
	return nil
}

func restoreAll(s Stage) error {
	if err := s.RestoreState(); err != nil {
		return err
	}
	for _, c := range s.Children() {
		if err := restoreAll(c); err != nil {
			return err
		}
	}
	return nil
}

// InvalidateAll delivers an invalidation notice to every stage in the tree,
// per spec §4.3 ("delivered to every live stage via invalidate").
func InvalidateAll(root Stage, loc recordstore.Locator, kind InvalidationKind) {
	root.Invalidate(loc, kind)
	for _, c := range root.Children() {
		InvalidateAll(c, loc, kind)
	}
}
