// Package index implements the index access method contract of spec §4.2
// (component C3): derive sorted keys from documents, maintain a secondary
// index, and provide point/range scans, grounded on
// iamNilotpal-ignite's internal/index package layout (a dedicated index
// package separate from its storage package) and ordered on
// github.com/google/btree, the same library internal/storage uses for the
// in-memory record store.
package index

import (
	"sync"

	"github.com/google/btree"
	"github.com/shardbase/shardbase/internal/document"
	sberrors "github.com/shardbase/shardbase/internal/errors"
	"github.com/shardbase/shardbase/internal/recordstore"
)

// Key is the sorted byte-comparable tuple an access method derives from one
// document for one index. Other index types (full-text, geo — spec §1 out
// of scope) need only produce Keys; this package does not care how.
type Key struct {
	Values []document.Value
	Loc    recordstore.Locator
}

func (k Key) Less(than btree.Item) bool {
	o := than.(Key)
	if c := document.CompareTuples(k.Values, o.Values); c != 0 {
		return c < 0
	}
	return k.Loc < o.Loc
}

// Options configure Insert, per spec §4.2.
type Options struct {
	DupsAllowed bool
	DropDups    bool
	LogIfError  bool
}

// KeyGenerator derives the set of index keys a document produces. A
// multikey index is one where at least one document yields more than one
// key (e.g. indexing an array field).
type KeyGenerator func(doc *document.Document) [][]document.Value

// DottedPathGenerator is the common case: one key per document, the value
// at a dotted path (or at each element if the path resolves to an array).
func DottedPathGenerator(path string) KeyGenerator {
	return func(doc *document.Document) [][]document.Value {
		v, ok := doc.GetPath(path)
		if !ok {
			return [][]document.Value{{document.Null()}}
		}
		if arr, isArr := v.AsArray(); isArr {
			keys := make([][]document.Value, 0, len(arr))
			for _, elem := range arr {
				keys = append(keys, []document.Value{elem})
			}
			return keys
		}
		return [][]document.Value{{v}}
	}
}

// Index is a single secondary index over a namespace.
type Index struct {
	mu          sync.RWMutex
	name        string
	keyGen      KeyGenerator
	tree        *btree.BTree
	opts        Options
	multikey    bool
	building    bool // true while an "index under construction" entry is invisible to planning
	docKeyCount map[recordstore.Locator]int
}

func New(name string, keyGen KeyGenerator, opts Options) *Index {
	return &Index{
		name:        name,
		keyGen:      keyGen,
		tree:        btree.New(32),
		opts:        opts,
		docKeyCount: make(map[recordstore.Locator]int),
	}
}

func (ix *Index) Name() string { return ix.name }

// GenerateKeys derives the index keys a document produces (spec §4.2).
func (ix *Index) GenerateKeys(doc *document.Document) [][]document.Value {
	return ix.keyGen(doc)
}

// Insert adds keys for loc. Returns errors.CodeDuplicateKey if a unique
// constraint (DupsAllowed == false) is violated and DropDups is not set.
func (ix *Index) Insert(keys [][]document.Value, loc recordstore.Locator) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if len(keys) > 1 {
		ix.multikey = true
	}
	for _, k := range keys {
		item := Key{Values: k, Loc: loc}
		if !ix.opts.DupsAllowed {
			if existing := ix.firstWithValuesLocked(k); existing != nil && existing.Loc != loc {
				if ix.opts.DropDups {
					continue
				}
				return sberrors.New(sberrors.CodeDuplicateKey, "duplicate key in index %s", ix.name)
			}
		}
		ix.tree.ReplaceOrInsert(item)
	}
	ix.docKeyCount[loc] = len(keys)
	return nil
}

func (ix *Index) firstWithValuesLocked(values []document.Value) *Key {
	var found *Key
	ix.tree.AscendGreaterOrEqual(Key{Values: values}, func(i btree.Item) bool {
		k := i.(Key)
		if document.CompareTuples(k.Values, values) != 0 {
			return false
		}
		found = &k
		return false
	})
	return found
}

// Remove deletes all entries for loc.
func (ix *Index) Remove(keys [][]document.Value, loc recordstore.Locator) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	for _, k := range keys {
		ix.tree.Delete(Key{Values: k, Loc: loc})
	}
	delete(ix.docKeyCount, loc)
	return nil
}

func (ix *Index) Multikey() bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.multikey
}

// SetBuilding marks the index invisible to query planning while a
// background build is in progress (spec §4.2: "invisible to query planning
// until commit").
func (ix *Index) SetBuilding(b bool) { ix.mu.Lock(); ix.building = b; ix.mu.Unlock() }
func (ix *Index) Building() bool     { ix.mu.RLock(); defer ix.mu.RUnlock(); return ix.building }

// Cursor iterates matching index entries in key order.
type Cursor struct {
	items []Key
	pos   int
}

func (c *Cursor) Next() (Key, bool) {
	if c.pos >= len(c.items) {
		return Key{}, false
	}
	k := c.items[c.pos]
	c.pos++
	return k, true
}

// NewCursor returns a full-index forward or backward cursor.
func (ix *Index) NewCursor(dir recordstore.Direction) *Cursor {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	var items []Key
	collect := func(i btree.Item) bool { items = append(items, i.(Key)); return true }
	if dir == recordstore.Forward {
		ix.tree.Ascend(collect)
	} else {
		ix.tree.Descend(collect)
	}
	return &Cursor{items: items}
}

// RangeCursor iterates entries whose key tuple lies in [min, max).
func (ix *Index) RangeCursor(min, max []document.Value) *Cursor {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	var items []Key
	ix.tree.AscendGreaterOrEqual(Key{Values: min}, func(i btree.Item) bool {
		k := i.(Key)
		if max != nil && document.CompareTuples(k.Values, max) >= 0 {
			return false
		}
		items = append(items, k)
		return true
	})
	return &Cursor{items: items}
}

// Validate returns the number of index entries for diagnostic reporting
// (spec §4.2 validate()). It does not compare the entries against the
// documents or the per-locator key counts.
func (ix *Index) Validate() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.tree.Len()
}
