package oplog

import (
	"sync"
	"time"

	"github.com/shardbase/shardbase/internal/document"
	sberrors "github.com/shardbase/shardbase/internal/errors"
	"github.com/shardbase/shardbase/internal/recordstore"
)

// TailState reports whether a TailCursor is still viable.
type TailState int

const (
	TailAlive TailState = iota
	TailDead            // position was truncated away; caller must requery (spec §4.5)
)

// TailCursor is a tailing cursor over the oplog: at the end of the log it
// blocks up to a caller deadline (awaitData) and returns an empty batch
// rather than EOF, per spec §4.5.
type TailCursor struct {
	log *Log

	mu      sync.Mutex
	lastTs  document.Timestamp
	primed  bool
	state   TailState
	wake    chan struct{}
}

// NewTailCursor starts tailing strictly after afterTs (zero value means
// "from the beginning of the log").
func NewTailCursor(log *Log, afterTs document.Timestamp) *TailCursor {
	return &TailCursor{log: log, lastTs: afterTs, primed: true, wake: make(chan struct{}, 1)}
}

// OnTruncate takes the oldest record that survived a capped truncation:
// its locator (what recordstore.TruncateCallback reports) and its ts, so it
// cannot be passed to SetTruncateCallback directly (spec §4.5: "Oplog read
// cursors must survive capped truncation at the old end without
// crashing"). If the cursor's position was among the truncated records it
// transitions to DEAD.
func (t *TailCursor) OnTruncate(oldestSurviving recordstore.Locator, oldestSurvivingTs document.Timestamp) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == TailDead {
		return
	}
	if oldestSurvivingTs.Compare(t.lastTs) > 0 {
		t.state = TailDead
	}
}

func (t *TailCursor) State() TailState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// AwaitData runs one fetch pass: it scans the log for entries with ts >
// lastTs. If none are found before deadline, it returns an empty, non-EOF
// batch (spec §4.5's defining awaitData behavior — callers should not
// treat an empty batch as end of stream).
func (t *TailCursor) AwaitData(deadline time.Time) ([]Entry, error) {
	t.mu.Lock()
	if t.state == TailDead {
		t.mu.Unlock()
		return nil, sberrors.New(sberrors.CodeCursorNotFound, "tail cursor position was truncated away; requery required")
	}
	since := t.lastTs
	t.mu.Unlock()

	poll := 10 * time.Millisecond
	for {
		batch, newLast, err := t.fetchSince(since)
		if err != nil {
			return nil, err
		}
		if len(batch) > 0 {
			t.mu.Lock()
			t.lastTs = newLast
			t.mu.Unlock()
			return batch, nil
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return nil, nil
		}
		if deadline.IsZero() {
			return nil, nil
		}
		time.Sleep(poll)
	}
}

func (t *TailCursor) fetchSince(since document.Timestamp) ([]Entry, document.Timestamp, error) {
	cur, err := t.log.rs.Scan(recordstore.Forward, 0)
	if err != nil {
		return nil, since, err
	}
	defer cur.Close()

	var out []Entry
	last := since
	for {
		_, data, ok, err := cur.Next()
		if err != nil {
			return nil, since, err
		}
		if !ok {
			break
		}
		e, err := decodeEntry(data)
		if err != nil {
			return nil, since, err
		}
		if e.Ts.Compare(since) > 0 {
			out = append(out, e)
			last = e.Ts
		}
	}
	return out, last, nil
}
