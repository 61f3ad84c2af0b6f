package storage

import (
	"encoding/binary"
	"sync"

	bolt "go.etcd.io/bbolt"
	"github.com/shardbase/shardbase/internal/recordstore"
)

// BoltEngine is the durable storage engine, backed by go.etcd.io/bbolt (an
// embedded B-tree), standing in for the out-of-scope on-disk storage engine
// of spec §6. One bucket per namespace; keys are 8-byte big-endian
// locators, matching bbolt's own NextSequence ordering guarantees so scans
// come back in locator order for free.
type BoltEngine struct {
	db *bolt.DB

	mu     sync.Mutex
	cached map[string]*boltRecordStore
}

func OpenBoltEngine(path string) (*BoltEngine, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, err
	}
	return &BoltEngine{db: db, cached: make(map[string]*boltRecordStore)}, nil
}

func (e *BoltEngine) CreateRecordStore(ns string, capped bool, cappedMaxBytes, cappedMaxDocs int64) (recordstore.RecordStore, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if rs, ok := e.cached[ns]; ok {
		return rs, nil
	}
	err := e.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(ns))
		return err
	})
	if err != nil {
		return nil, err
	}
	rs := &boltRecordStore{
		db:            e.db,
		bucket:        ns,
		capped:        capped,
		cappedMaxByte: cappedMaxBytes,
		cappedMaxDocs: cappedMaxDocs,
	}
	e.cached[ns] = rs
	return rs, nil
}

func (e *BoltEngine) GetRecordStore(ns string) (recordstore.RecordStore, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rs, ok := e.cached[ns]
	return rs, ok
}

func (e *BoltEngine) DropIdent(ns string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.cached, ns)
	return e.db.Update(func(tx *bolt.Tx) error {
		return tx.DeleteBucket([]byte(ns))
	})
}

func (e *BoltEngine) NewRecoveryUnit() RecoveryUnit { return newRecoveryUnit() }

func (e *BoltEngine) Close() error { return e.db.Close() }

type boltRecordStore struct {
	db     *bolt.DB
	bucket string

	mu            sync.Mutex
	truncateCB    recordstore.TruncateCallback
	capped        bool
	cappedMaxByte int64
	cappedMaxDocs int64
}

func locKey(loc recordstore.Locator) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(loc))
	return b
}

func keyLoc(k []byte) recordstore.Locator {
	return recordstore.Locator(binary.BigEndian.Uint64(k))
}

func (s *boltRecordStore) Capped() bool { return s.capped }

func (s *boltRecordStore) SetTruncateCallback(cb recordstore.TruncateCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.truncateCB = cb
}

func (s *boltRecordStore) Insert(data []byte) (recordstore.Locator, error) {
	var loc recordstore.Locator
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(s.bucket))
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		loc = recordstore.Locator(seq)
		return b.Put(locKey(loc), data)
	})
	if err != nil {
		return 0, err
	}
	s.evictIfNeeded()
	return loc, nil
}

func (s *boltRecordStore) evictIfNeeded() {
	if !s.capped {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var oldestSurviving recordstore.Locator
	evicted := false
	_ = s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(s.bucket))
		for {
			stats := b.Stats()
			curDocs := int64(stats.KeyN)
			curBytes := approxBucketBytes(b)
			if !((s.cappedMaxByte > 0 && curBytes > s.cappedMaxByte) ||
				(s.cappedMaxDocs > 0 && curDocs > s.cappedMaxDocs)) {
				break
			}
			c := b.Cursor()
			k, _ := c.First()
			if k == nil {
				break
			}
			if err := b.Delete(k); err != nil {
				return err
			}
			evicted = true
		}
		if nk, _ := b.Cursor().First(); nk != nil {
			oldestSurviving = keyLoc(nk)
		}
		return nil
	})
	if evicted && s.truncateCB != nil {
		cb := s.truncateCB
		go cb(oldestSurviving)
	}
}

func approxBucketBytes(b *bolt.Bucket) int64 {
	var total int64
	c := b.Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		total += int64(len(k) + len(v))
	}
	return total
}

func (s *boltRecordStore) Update(loc recordstore.Locator, data []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(s.bucket))
		if b.Get(locKey(loc)) == nil {
			return recordstore.ErrNotFound
		}
		return b.Put(locKey(loc), data)
	})
}

func (s *boltRecordStore) Delete(loc recordstore.Locator) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(s.bucket))
		if b.Get(locKey(loc)) == nil {
			return recordstore.ErrNotFound
		}
		return b.Delete(locKey(loc))
	})
}

func (s *boltRecordStore) FindByLoc(loc recordstore.Locator) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(s.bucket))
		v := b.Get(locKey(loc))
		if v == nil {
			return recordstore.ErrNotFound
		}
		out = append([]byte(nil), v...)
		return nil
	})
	return out, err
}

func (s *boltRecordStore) Truncate() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket([]byte(s.bucket)); err != nil {
			return err
		}
		_, err := tx.CreateBucket([]byte(s.bucket))
		return err
	})
}

func (s *boltRecordStore) Size() (int64, error) {
	var total int64
	err := s.db.View(func(tx *bolt.Tx) error {
		total = approxBucketBytes(tx.Bucket([]byte(s.bucket)))
		return nil
	})
	return total, err
}

func (s *boltRecordStore) Count() (int64, error) {
	var n int64
	err := s.db.View(func(tx *bolt.Tx) error {
		n = int64(tx.Bucket([]byte(s.bucket)).Stats().KeyN)
		return nil
	})
	return n, err
}

func (s *boltRecordStore) Close() error { return nil }

func (s *boltRecordStore) Scan(dir recordstore.Direction, start recordstore.Locator) (recordstore.Cursor, error) {
	tx, err := s.db.Begin(false)
	if err != nil {
		return nil, err
	}
	b := tx.Bucket([]byte(s.bucket))
	c := b.Cursor()
	var k, v []byte
	if dir == recordstore.Forward {
		k, v = c.Seek(locKey(start))
	} else {
		k, v = c.Seek(locKey(start))
		if k == nil {
			k, v = c.Last()
		} else if keyLoc(k) != start {
			k, v = c.Prev()
		}
	}
	return &boltCursor{tx: tx, cursor: c, dir: dir, k: k, v: v}, nil
}

type boltCursor struct {
	tx     *bolt.Tx
	cursor *bolt.Cursor
	dir    recordstore.Direction
	k, v   []byte
}

func (c *boltCursor) Next() (recordstore.Locator, []byte, bool, error) {
	if c.k == nil {
		return 0, nil, false, nil
	}
	loc := keyLoc(c.k)
	data := append([]byte(nil), c.v...)
	if c.dir == recordstore.Forward {
		c.k, c.v = c.cursor.Next()
	} else {
		c.k, c.v = c.cursor.Prev()
	}
	return loc, data, true, nil
}

func (c *boltCursor) Close() error { return c.tx.Rollback() }
