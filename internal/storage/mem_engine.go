package storage

import (
	"sync"

	"github.com/google/btree"
	"github.com/shardbase/shardbase/internal/recordstore"
)

// MemEngine is the default in-memory storage engine, grounded on the
// teacher's internal/storage.Store (map + sync.RWMutex, copy-on-read
// values), generalized from a flat key/value map to locator-addressed,
// ordered record stores via github.com/google/btree.
type MemEngine struct {
	mu     sync.Mutex
	stores map[string]*memRecordStore
}

func NewMemEngine() *MemEngine {
	return &MemEngine{stores: make(map[string]*memRecordStore)}
}

func (e *MemEngine) CreateRecordStore(ns string, capped bool, cappedMaxBytes, cappedMaxDocs int64) (recordstore.RecordStore, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if rs, ok := e.stores[ns]; ok {
		return rs, nil
	}
	rs := newMemRecordStore(capped, cappedMaxBytes, cappedMaxDocs)
	e.stores[ns] = rs
	return rs, nil
}

func (e *MemEngine) GetRecordStore(ns string) (recordstore.RecordStore, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rs, ok := e.stores[ns]
	return rs, ok
}

func (e *MemEngine) DropIdent(ns string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.stores, ns)
	return nil
}

func (e *MemEngine) NewRecoveryUnit() RecoveryUnit { return newRecoveryUnit() }

func (e *MemEngine) Close() error { return nil }

// locItem adapts a (Locator, bytes) pair for btree ordering by Locator.
type locItem struct {
	loc  recordstore.Locator
	data []byte
}

func (a locItem) Less(than btree.Item) bool {
	return a.loc < than.(locItem).loc
}

type memRecordStore struct {
	mu      sync.RWMutex
	tree    *btree.BTree
	nextLoc recordstore.Locator
	closed  bool

	capped        bool
	cappedMaxByte int64
	cappedMaxDocs int64
	curBytes      int64
	curDocs       int64

	truncateCB recordstore.TruncateCallback
}

func newMemRecordStore(capped bool, maxBytes, maxDocs int64) *memRecordStore {
	return &memRecordStore{
		tree:          btree.New(32),
		capped:        capped,
		cappedMaxByte: maxBytes,
		cappedMaxDocs: maxDocs,
		nextLoc:       1,
	}
}

// SetTruncateCallback lets internal/oplog reposition a tailing cursor when
// FIFO eviction truncates the record it was pinned to (spec §4.5).
func (s *memRecordStore) SetTruncateCallback(cb recordstore.TruncateCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.truncateCB = cb
}

func (s *memRecordStore) Capped() bool { return s.capped }

func (s *memRecordStore) Insert(data []byte) (recordstore.Locator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, recordstore.ErrClosed
	}
	loc := s.nextLoc
	s.nextLoc++
	cp := append([]byte(nil), data...)
	s.tree.ReplaceOrInsert(locItem{loc: loc, data: cp})
	s.curBytes += int64(len(cp))
	s.curDocs++
	s.evictIfNeeded()
	return loc, nil
}

func (s *memRecordStore) evictIfNeeded() {
	if !s.capped {
		return
	}
	var oldestSurviving recordstore.Locator
	evicted := false
	for (s.cappedMaxByte > 0 && s.curBytes > s.cappedMaxByte) ||
		(s.cappedMaxDocs > 0 && s.curDocs > s.cappedMaxDocs) {
		min := s.tree.Min()
		if min == nil {
			break
		}
		item := min.(locItem)
		s.tree.Delete(item)
		s.curBytes -= int64(len(item.data))
		s.curDocs--
		evicted = true
	}
	if evicted {
		if min := s.tree.Min(); min != nil {
			oldestSurviving = min.(locItem).loc
		}
		if s.truncateCB != nil {
			cb := s.truncateCB
			go cb(oldestSurviving)
		}
	}
}

func (s *memRecordStore) Update(loc recordstore.Locator, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return recordstore.ErrClosed
	}
	existing := s.tree.Get(locItem{loc: loc})
	if existing == nil {
		return recordstore.ErrNotFound
	}
	old := existing.(locItem)
	cp := append([]byte(nil), data...)
	s.tree.ReplaceOrInsert(locItem{loc: loc, data: cp})
	s.curBytes += int64(len(cp)) - int64(len(old.data))
	return nil
}

func (s *memRecordStore) Delete(loc recordstore.Locator) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return recordstore.ErrClosed
	}
	removed := s.tree.Delete(locItem{loc: loc})
	if removed == nil {
		return recordstore.ErrNotFound
	}
	s.curBytes -= int64(len(removed.(locItem).data))
	s.curDocs--
	return nil
}

func (s *memRecordStore) FindByLoc(loc recordstore.Locator) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, recordstore.ErrClosed
	}
	item := s.tree.Get(locItem{loc: loc})
	if item == nil {
		return nil, recordstore.ErrNotFound
	}
	data := item.(locItem).data
	return append([]byte(nil), data...), nil
}

func (s *memRecordStore) Truncate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tree = btree.New(32)
	s.curBytes, s.curDocs = 0, 0
	return nil
}

func (s *memRecordStore) Size() (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.curBytes, nil
}

func (s *memRecordStore) Count() (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.curDocs, nil
}

func (s *memRecordStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *memRecordStore) Scan(dir recordstore.Direction, start recordstore.Locator) (recordstore.Cursor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, recordstore.ErrClosed
	}
	var items []locItem
	collect := func(i btree.Item) bool {
		items = append(items, i.(locItem))
		return true
	}
	if dir == recordstore.Forward {
		s.tree.AscendGreaterOrEqual(locItem{loc: start}, collect)
	} else {
		s.tree.DescendLessOrEqual(locItem{loc: start}, collect)
	}
	return &memCursor{items: items}, nil
}

type memCursor struct {
	items []locItem
	pos   int
}

func (c *memCursor) Next() (recordstore.Locator, []byte, bool, error) {
	if c.pos >= len(c.items) {
		return 0, nil, false, nil
	}
	item := c.items[c.pos]
	c.pos++
	return item.loc, item.data, true, nil
}

func (c *memCursor) Close() error { return nil }
