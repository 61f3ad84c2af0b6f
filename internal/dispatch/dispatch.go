// Package dispatch implements the command dispatcher of spec §4.4
// (component C10): message classification, authorization, lock
// acquisition, write-unit-of-work, per-op counters, and slow-operation
// profiling. It generalizes the teacher's cmd/coordinator/main.go
// server struct — one HTTP mux dispatching every request through a
// single handler set — into a reusable, protocol-agnostic dispatcher
// that internal/wire's command handlers call into.
package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/shardbase/shardbase/internal/document"
	sberrors "github.com/shardbase/shardbase/internal/errors"
	"github.com/shardbase/shardbase/internal/lock"
	"github.com/shardbase/shardbase/internal/logging"
)

// OpKind classifies an inbound message per spec §4.4's
// "{query, insert, update, delete, getMore, killCursors, command}".
type OpKind string

const (
	OpQuery       OpKind = "query"
	OpInsert      OpKind = "insert"
	OpUpdate      OpKind = "update"
	OpDelete      OpKind = "delete"
	OpGetMore     OpKind = "getMore"
	OpKillCursors OpKind = "killCursors"
	OpCommand     OpKind = "command"
)

// LockType is the lock acquisition a command declares, per spec §4.4.
type LockType int

const (
	LockNone LockType = iota
	LockDatabaseIS
	LockDatabaseIX
	LockCollectionX
	LockGlobal
)

// Principal is one authenticated identity on the session, checked
// against a command's RequiredActions.
type Principal struct {
	Name    string
	Actions map[string]bool
}

// Authorized reports whether the principal holds every action required.
func (p Principal) Authorized(required []string) bool {
	for _, a := range required {
		if !p.Actions[a] {
			return false
		}
	}
	return true
}

// Command is the dispatcher-facing description of one operation, filled
// in by the wire-protocol layer after parsing the inbound message.
type Command struct {
	Kind            OpKind
	Name            string
	NS              string
	Database        string
	RequiredActions []string
	Lock            LockType
	Multi           bool // broadcast write without a shard-key predicate, per spec §4.7
	Handler         func(ctx context.Context) (*document.Document, error)
}

// OpFrame is one entry in the current-op stack spec §4.4 requires for
// "nested operations (e.g., an eval-driven update)".
type OpFrame struct {
	Command   string
	NS        string
	StartedAt time.Time
}

// ProfileEntry is the document appended to a database's capped profile
// collection when an operation exceeds the slow threshold.
type ProfileEntry struct {
	Ts       time.Time
	NS       string
	Command  string
	Millis   int64
	Multi    bool
}

// ProfileSink receives slow-operation entries; the dispatcher doesn't
// know about recordstore directly so callers wire in a capped-collection
// writer (internal/oplog.Log or a dedicated recordstore.RecordStore both
// satisfy the shape via a small adapter).
type ProfileSink interface {
	RecordProfile(entry ProfileEntry) error
}

// Dispatcher executes Commands: authorizes, locks, runs the handler (which
// owns any write-unit-of-work itself), counts, and profiles.
type Dispatcher struct {
	locks         *lock.Manager
	counters      *Counters
	profile       ProfileSink
	slowThreshold time.Duration
	log           *logging.Logger

	frameMu sync.Mutex
	frames  map[string][]OpFrame // keyed by session/connection id
}

func New(locks *lock.Manager, profile ProfileSink, slowThreshold time.Duration, log *logging.Logger) *Dispatcher {
	return &Dispatcher{
		locks:         locks,
		counters:      NewCounters(),
		profile:       profile,
		slowThreshold: slowThreshold,
		log:           log,
		frames:        make(map[string][]OpFrame),
	}
}

func (d *Dispatcher) Counters() *Counters { return d.counters }

// PushFrame/PopFrame maintain the current-op stack for one session,
// per spec §4.4's nested-operation requirement.
func (d *Dispatcher) PushFrame(sessionID string, frame OpFrame) {
	d.frameMu.Lock()
	defer d.frameMu.Unlock()
	d.frames[sessionID] = append(d.frames[sessionID], frame)
}

func (d *Dispatcher) PopFrame(sessionID string) {
	d.frameMu.Lock()
	defer d.frameMu.Unlock()
	stack := d.frames[sessionID]
	if len(stack) > 0 {
		d.frames[sessionID] = stack[:len(stack)-1]
	}
}

func (d *Dispatcher) CurrentOpStack(sessionID string) []OpFrame {
	d.frameMu.Lock()
	defer d.frameMu.Unlock()
	out := make([]OpFrame, len(d.frames[sessionID]))
	copy(out, d.frames[sessionID])
	return out
}

func (d *Dispatcher) lockResource(cmd Command) (resource lock.Resource, mode lock.Mode, needed bool) {
	switch cmd.Lock {
	case LockDatabaseIS:
		return lock.Resource(cmd.Database), lock.IS, true
	case LockDatabaseIX:
		return lock.Resource(cmd.Database), lock.IX, true
	case LockCollectionX:
		return lock.Resource(cmd.NS), lock.X, true
	case LockGlobal:
		return lock.Global, lock.IX, true
	default:
		return "", 0, false
	}
}

// Dispatch runs the full pipeline of spec §4.4: authorize, lock, execute
// (optionally under a write-unit-of-work the caller's Handler implements
// itself via its recovery-unit commit/rollback), count, and profile.
func (d *Dispatcher) Dispatch(ctx context.Context, sessionID string, principal Principal, cmd Command) (*document.Document, error) {
	if !principal.Authorized(cmd.RequiredActions) {
		return nil, sberrors.New(sberrors.CodeBadValue, "principal %s not authorized for %s", principal.Name, cmd.Name)
	}

	d.PushFrame(sessionID, OpFrame{Command: cmd.Name, NS: cmd.NS, StartedAt: time.Now()})
	defer d.PopFrame(sessionID)

	if res, mode, needed := d.lockResource(cmd); needed {
		h, err := d.locks.Lock(ctx, res, mode)
		if err != nil {
			return nil, err
		}
		defer h.Unlock()
	}

	start := time.Now()
	result, err := cmd.Handler(ctx)
	elapsed := time.Since(start)

	d.counters.Record(cmd.Kind)
	if elapsed >= d.slowThreshold && d.profile != nil {
		_ = d.profile.RecordProfile(ProfileEntry{
			Ts: start, NS: cmd.NS, Command: cmd.Name, Millis: elapsed.Milliseconds(), Multi: cmd.Multi,
		})
	}
	return result, err
}
