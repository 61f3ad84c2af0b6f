package exec

import (
	"container/heap"

	"github.com/shardbase/shardbase/internal/document"
	"github.com/shardbase/shardbase/internal/index"
	"github.com/shardbase/shardbase/internal/recordstore"
)

// Decoder turns stored record bytes into a document, e.g. BSON-ish decode.
type Decoder func(data []byte) (*document.Document, error)

// Encoder is the inverse of Decoder, used by delete/update stages that
// write documents back through a RecordStore.
type Encoder func(doc *document.Document) ([]byte, error)

// baseStage supplies the no-op defaults most leaf stages want; stages with
// real save/restore/invalidate work override individual methods.
type baseStage struct{}

func (baseStage) SaveState() error                               { return nil }
func (baseStage) RestoreState() error                             { return nil }
func (baseStage) Invalidate(recordstore.Locator, InvalidationKind) {}
func (baseStage) Children() []Stage                               { return nil }

// CollectionScanStage walks a RecordStore's natural locator order.
type CollectionScanStage struct {
	baseStage
	rs      recordstore.RecordStore
	decode  Decoder
	dir     recordstore.Direction
	start   recordstore.Locator
	cur     recordstore.Cursor
	dead    bool
}

func NewCollectionScanStage(rs recordstore.RecordStore, decode Decoder, dir recordstore.Direction, start recordstore.Locator) *CollectionScanStage {
	return &CollectionScanStage{rs: rs, decode: decode, dir: dir, start: start}
}

func (s *CollectionScanStage) Work(ctx *ExecContext) (WorkState, MemberID) {
	if s.dead {
		return StateDead, 0
	}
	if err := ctx.Tick(); err != nil {
		return StateFailure, 0
	}
	if s.cur == nil {
		cur, err := s.rs.Scan(s.dir, s.start)
		if err != nil {
			return StateFailure, 0
		}
		s.cur = cur
	}
	loc, data, ok, err := s.cur.Next()
	if err != nil {
		return StateFailure, 0
	}
	if !ok {
		return StateIsEOF, 0
	}
	doc, err := s.decode(data)
	if err != nil {
		return StateFailure, 0
	}
	id := ctx.WorkingSet.Allocate()
	m := ctx.WorkingSet.Get(id)
	m.Loc, m.HasLoc = loc, true
	m.Doc, m.HasDoc, m.Owned = doc, true, true
	return StateAdvanced, id
}

func (s *CollectionScanStage) SaveState() error {
	if s.cur != nil {
		_ = s.cur.Close()
		s.cur = nil
	}
	return nil
}

func (s *CollectionScanStage) RestoreState() error { return nil }

func (s *CollectionScanStage) Invalidate(loc recordstore.Locator, kind InvalidationKind) {
	if kind == InvalidateCollectionDropped {
		s.dead = true
	}
}

// IndexScanStage walks an index cursor, producing {loc}-only members that
// a downstream FetchStage turns into documents (spec §4.3: NEED_FETCH).
type IndexScanStage struct {
	baseStage
	ix  *index.Index
	dir recordstore.Direction
	cur *index.Cursor
}

func NewIndexScanStage(ix *index.Index, dir recordstore.Direction) *IndexScanStage {
	return &IndexScanStage{ix: ix, dir: dir}
}

func (s *IndexScanStage) Work(ctx *ExecContext) (WorkState, MemberID) {
	if err := ctx.Tick(); err != nil {
		return StateFailure, 0
	}
	if s.cur == nil {
		s.cur = s.ix.NewCursor(s.dir)
	}
	k, ok := s.cur.Next()
	if !ok {
		return StateIsEOF, 0
	}
	id := ctx.WorkingSet.Allocate()
	m := ctx.WorkingSet.Get(id)
	m.Loc, m.HasLoc = k.Loc, true
	return StateNeedFetch, id
}

func (s *IndexScanStage) SaveState() error    { s.cur = nil; return nil }
func (s *IndexScanStage) RestoreState() error { return nil }

// FetchStage turns a {loc}-only member into {loc, doc} by reading the
// record store, per spec §4.3's "fetch (loc→doc)" stage.
type FetchStage struct {
	baseStage
	child  Stage
	rs     recordstore.RecordStore
	decode Decoder
}

func NewFetchStage(child Stage, rs recordstore.RecordStore, decode Decoder) *FetchStage {
	return &FetchStage{child: child, rs: rs, decode: decode}
}

func (s *FetchStage) Children() []Stage { return []Stage{s.child} }

func (s *FetchStage) Work(ctx *ExecContext) (WorkState, MemberID) {
	state, id := s.child.Work(ctx)
	if state != StateAdvanced && state != StateNeedFetch {
		return state, id
	}
	m := ctx.WorkingSet.Get(id)
	if m.HasDoc {
		return StateAdvanced, id
	}
	data, err := s.rs.FindByLoc(m.Loc)
	if err != nil {
		if err == recordstore.ErrNotFound {
			ctx.WorkingSet.Free(id)
			return StateNeedTime, 0
		}
		return StateFailure, 0
	}
	doc, err := s.decode(data)
	if err != nil {
		return StateFailure, 0
	}
	m.Doc, m.HasDoc, m.Owned = doc, true, true
	return StateAdvanced, id
}

// Predicate evaluates a document for FilterStage.
type Predicate func(*document.Document) bool

// FilterStage drops members whose document fails the predicate.
type FilterStage struct {
	baseStage
	child Stage
	pred  Predicate
}

func NewFilterStage(child Stage, pred Predicate) *FilterStage { return &FilterStage{child: child, pred: pred} }
func (s *FilterStage) Children() []Stage                      { return []Stage{s.child} }

func (s *FilterStage) Work(ctx *ExecContext) (WorkState, MemberID) {
	state, id := s.child.Work(ctx)
	if state != StateAdvanced {
		return state, id
	}
	m := ctx.WorkingSet.Get(id)
	if !m.HasDoc || s.pred(m.Doc) {
		return StateAdvanced, id
	}
	ctx.WorkingSet.Free(id)
	return StateNeedTime, 0
}

// Projector reshapes a document for ProjectionStage.
type Projector func(*document.Document) *document.Document

type ProjectionStage struct {
	baseStage
	child Stage
	proj  Projector
}

func NewProjectionStage(child Stage, proj Projector) *ProjectionStage {
	return &ProjectionStage{child: child, proj: proj}
}
func (s *ProjectionStage) Children() []Stage { return []Stage{s.child} }

func (s *ProjectionStage) Work(ctx *ExecContext) (WorkState, MemberID) {
	state, id := s.child.Work(ctx)
	if state != StateAdvanced {
		return state, id
	}
	m := ctx.WorkingSet.Get(id)
	if m.HasDoc {
		m.Doc = s.proj(m.Doc)
	}
	return StateAdvanced, id
}

// LimitStage returns at most n members before reporting EOF.
type LimitStage struct {
	baseStage
	child   Stage
	n, seen int64
}

func NewLimitStage(child Stage, n int64) *LimitStage { return &LimitStage{child: child, n: n} }
func (s *LimitStage) Children() []Stage              { return []Stage{s.child} }

func (s *LimitStage) Work(ctx *ExecContext) (WorkState, MemberID) {
	if s.n > 0 && s.seen >= s.n {
		return StateIsEOF, 0
	}
	state, id := s.child.Work(ctx)
	if state == StateAdvanced {
		s.seen++
	}
	return state, id
}

// SkipStage discards the first n advanced members.
type SkipStage struct {
	baseStage
	child      Stage
	n, skipped int64
}

func NewSkipStage(child Stage, n int64) *SkipStage { return &SkipStage{child: child, n: n} }
func (s *SkipStage) Children() []Stage             { return []Stage{s.child} }

func (s *SkipStage) Work(ctx *ExecContext) (WorkState, MemberID) {
	for s.skipped < s.n {
		state, id := s.child.Work(ctx)
		if state != StateAdvanced {
			return state, id
		}
		ctx.WorkingSet.Free(id)
		s.skipped++
	}
	return s.child.Work(ctx)
}

// SortKey is one ascending/descending component of a sort pattern.
type SortKey struct {
	Path string
	Desc bool
}

// SortStage buffers its child's full output in memory and replays it in
// sorted order. Spec §4.3 allows "optional external spill" for sorts that
// exceed memory; this engine targets embedded/small-collection workloads
// (spec Non-goals exclude a dedicated query-memory budget), so spill is not
// implemented — buffering stays purely in-process.
type SortStage struct {
	baseStage
	child   Stage
	keys    []SortKey
	buf     []MemberID
	sorted  bool
	pos     int
}

func NewSortStage(child Stage, keys []SortKey) *SortStage {
	return &SortStage{child: child, keys: keys}
}
func (s *SortStage) Children() []Stage { return []Stage{s.child} }

func (s *SortStage) Work(ctx *ExecContext) (WorkState, MemberID) {
	if !s.sorted {
		for {
			state, id := s.child.Work(ctx)
			switch state {
			case StateAdvanced:
				s.buf = append(s.buf, id)
			case StateIsEOF:
				s.sortBuffer(ctx)
				s.sorted = true
				goto drain
			default:
				return state, id
			}
		}
	}
drain:
	if s.pos >= len(s.buf) {
		return StateIsEOF, 0
	}
	id := s.buf[s.pos]
	s.pos++
	return StateAdvanced, id
}

func (s *SortStage) sortBuffer(ctx *ExecContext) {
	less := func(i, j int) bool {
		mi, mj := ctx.WorkingSet.Get(s.buf[i]), ctx.WorkingSet.Get(s.buf[j])
		for _, k := range s.keys {
			var vi, vj document.Value
			var oki, okj bool
			if mi.HasDoc {
				vi, oki = mi.Doc.GetPath(k.Path)
			}
			if mj.HasDoc {
				vj, okj = mj.Doc.GetPath(k.Path)
			}
			if !oki || !okj {
				continue
			}
			c := document.Compare(vi, vj)
			if k.Desc {
				c = -c
			}
			if c != 0 {
				return c < 0
			}
		}
		return false
	}
	insertionSort(s.buf, less)
}

func insertionSort(ids []MemberID, less func(i, j int) bool) {
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && less(j, j-1); j-- {
			ids[j], ids[j-1] = ids[j-1], ids[j]
		}
	}
}

// mergeHeapItem is one child stream's current head for MergeSortStage.
type mergeHeapItem struct {
	childIdx int
	id       MemberID
}

type mergeHeap struct {
	items []mergeHeapItem
	ws    *WorkingSet
	keys  []SortKey
}

func (h *mergeHeap) Len() int      { return len(h.items) }
func (h *mergeHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *mergeHeap) Less(i, j int) bool {
	mi, mj := h.ws.Get(h.items[i].id), h.ws.Get(h.items[j].id)
	for _, k := range h.keys {
		if !mi.HasDoc || !mj.HasDoc {
			continue
		}
		vi, oki := mi.Doc.GetPath(k.Path)
		vj, okj := mj.Doc.GetPath(k.Path)
		if !oki || !okj {
			continue
		}
		c := document.Compare(vi, vj)
		if k.Desc {
			c = -c
		}
		if c != 0 {
			return c < 0
		}
	}
	return false
}
func (h *mergeHeap) Push(x any) { h.items = append(h.items, x.(mergeHeapItem)) }
func (h *mergeHeap) Pop() any {
	old := h.items
	n := len(old)
	it := old[n-1]
	h.items = old[:n-1]
	return it
}

// MergeSortStage performs a sorted k-way merge over children that each
// already produce sorted output (spec §4.3's "merge-sort (k-way merge over
// sorted child streams)").
type MergeSortStage struct {
	baseStage
	children []Stage
	keys     []SortKey
	h        *mergeHeap
	primed   bool
	eof      map[int]bool
}

func NewMergeSortStage(children []Stage, keys []SortKey) *MergeSortStage {
	return &MergeSortStage{children: children, keys: keys, eof: make(map[int]bool)}
}
func (s *MergeSortStage) Children() []Stage { return s.children }

func (s *MergeSortStage) Work(ctx *ExecContext) (WorkState, MemberID) {
	if !s.primed {
		s.h = &mergeHeap{ws: ctx.WorkingSet, keys: s.keys}
		heap.Init(s.h)
		for i, c := range s.children {
			s.pullOne(ctx, i, c)
		}
		s.primed = true
	}
	if s.h.Len() == 0 {
		return StateIsEOF, 0
	}
	top := heap.Pop(s.h).(mergeHeapItem)
	s.pullOne(ctx, top.childIdx, s.children[top.childIdx])
	return StateAdvanced, top.id
}

func (s *MergeSortStage) pullOne(ctx *ExecContext, idx int, c Stage) {
	if s.eof[idx] {
		return
	}
	state, id := c.Work(ctx)
	if state == StateAdvanced {
		heap.Push(s.h, mergeHeapItem{childIdx: idx, id: id})
	} else if state == StateIsEOF {
		s.eof[idx] = true
	}
}

// DeleteStage removes each member's underlying record as it passes through.
type DeleteStage struct {
	baseStage
	child Stage
	rs    recordstore.RecordStore
	n     int64
}

func NewDeleteStage(child Stage, rs recordstore.RecordStore) *DeleteStage {
	return &DeleteStage{child: child, rs: rs}
}
func (s *DeleteStage) Children() []Stage { return []Stage{s.child} }
func (s *DeleteStage) Deleted() int64    { return s.n }

func (s *DeleteStage) Work(ctx *ExecContext) (WorkState, MemberID) {
	state, id := s.child.Work(ctx)
	if state != StateAdvanced {
		return state, id
	}
	m := ctx.WorkingSet.Get(id)
	if m.HasLoc {
		if err := s.rs.Delete(m.Loc); err != nil && err != recordstore.ErrNotFound {
			return StateFailure, 0
		}
		s.n++
	}
	return StateAdvanced, id
}

// Updater mutates a document in place for UpdateStage.
type Updater func(*document.Document) *document.Document

type UpdateStage struct {
	baseStage
	child   Stage
	rs      recordstore.RecordStore
	encode  Encoder
	mutate  Updater
	n       int64
}

func NewUpdateStage(child Stage, rs recordstore.RecordStore, encode Encoder, mutate Updater) *UpdateStage {
	return &UpdateStage{child: child, rs: rs, encode: encode, mutate: mutate}
}
func (s *UpdateStage) Children() []Stage { return []Stage{s.child} }
func (s *UpdateStage) Updated() int64    { return s.n }

func (s *UpdateStage) Work(ctx *ExecContext) (WorkState, MemberID) {
	state, id := s.child.Work(ctx)
	if state != StateAdvanced {
		return state, id
	}
	m := ctx.WorkingSet.Get(id)
	if m.HasLoc && m.HasDoc {
		updated := s.mutate(m.Doc)
		data, err := s.encode(updated)
		if err != nil {
			return StateFailure, 0
		}
		if err := s.rs.Update(m.Loc, data); err != nil && err != recordstore.ErrNotFound {
			return StateFailure, 0
		}
		m.Doc = updated
		s.n++
	}
	return StateAdvanced, id
}

// MultiIteratorStage sequences several unsorted children one after another,
// per spec §4.3's "multi-iterator" stage (used by e.g. $or without an
// index intersection plan).
type MultiIteratorStage struct {
	baseStage
	children []Stage
	cur      int
}

func NewMultiIteratorStage(children []Stage) *MultiIteratorStage {
	return &MultiIteratorStage{children: children}
}
func (s *MultiIteratorStage) Children() []Stage { return s.children }

func (s *MultiIteratorStage) Work(ctx *ExecContext) (WorkState, MemberID) {
	for s.cur < len(s.children) {
		state, id := s.children[s.cur].Work(ctx)
		if state == StateIsEOF {
			s.cur++
			continue
		}
		return state, id
	}
	return StateIsEOF, 0
}

// NotificationStage is a pass-through used by background index builds
// (spec §4.2): it records which locators were invalidated while the build
// was in flight so the builder can skip key material derived from them.
type NotificationStage struct {
	baseStage
	child       Stage
	invalidated []recordstore.Locator
}

func NewNotificationStage(child Stage) *NotificationStage { return &NotificationStage{child: child} }
func (s *NotificationStage) Children() []Stage             { return []Stage{s.child} }
func (s *NotificationStage) Invalidated() []recordstore.Locator { return s.invalidated }

func (s *NotificationStage) Work(ctx *ExecContext) (WorkState, MemberID) {
	return s.child.Work(ctx)
}

func (s *NotificationStage) Invalidate(loc recordstore.Locator, kind InvalidationKind) {
	if kind == InvalidateRecordDeleted {
		s.invalidated = append(s.invalidated, loc)
	}
}
