// Package catalog implements the chunk/collection metadata catalog of
// spec §4.7 (component C7): versioned chunk ranges partitioning a
// namespace's shard-key space, collection and shard version derivation,
// and the stale-version comparison rules the router (internal/router) and
// dispatcher (internal/dispatch) both consult. It generalizes the
// teacher's internal/coordinator/shard_registry.go — a flat
// shardID->node hash-mod assignment table, RWMutex-guarded, returning
// copies on read — into a range-partitioned, versioned chunk map, keeping
// that same copy-on-read, RWMutex-protected idiom.
package catalog

import (
	"fmt"
	"sync"

	"github.com/google/btree"
	"github.com/google/uuid"
	"github.com/shardbase/shardbase/internal/document"
	sberrors "github.com/shardbase/shardbase/internal/errors"
)

// Version is a chunk or collection version tuple, per spec §4.7: lexicographic
// on (major, minor) within an epoch; across epochs, incomparable.
type Version struct {
	Epoch uuid.UUID
	Major uint32
	Minor uint32
}

func (v Version) String() string {
	return fmt.Sprintf("%s|%d.%d", v.Epoch, v.Major, v.Minor)
}

// SameEpoch reports whether v and o share an epoch (the only case in
// which their major/minor are comparable).
func (v Version) SameEpoch(o Version) bool { return v.Epoch == o.Epoch }

// Compare orders v and o by (major, minor) only; it does not look at the
// epochs, and the result is meaningless across epochs per spec §4.7 —
// callers must check SameEpoch first (CompareShardVersion in
// staleconfig.go does this for them).
func (v Version) Compare(o Version) int {
	if v.Major != o.Major {
		if v.Major < o.Major {
			return -1
		}
		return 1
	}
	if v.Minor != o.Minor {
		if v.Minor < o.Minor {
			return -1
		}
		return 1
	}
	return 0
}

// Chunk is the spec §4.7 chunk document: a half-open shard-key range
// `[Min,Max)` owned by one shard at a given version.
type Chunk struct {
	NS      string
	Min     []document.Value
	Max     []document.Value
	Shard   string
	Version Version
	Jumbo   bool
}

// chunkItem adapts Chunk for btree ordering by (NS, Min).
type chunkItem struct{ c Chunk }

func (a chunkItem) Less(than btree.Item) bool {
	b := than.(chunkItem)
	if a.c.NS != b.c.NS {
		return a.c.NS < b.c.NS
	}
	return document.CompareTuples(a.c.Min, b.c.Min) < 0
}

// Catalog is the config server's in-memory view of chunk/collection
// metadata (spec §4.7's "Catalog persistence" names config.collections,
// config.chunks, config.shards — this type is the in-memory index over
// those). Chunks are held in memory only; this package has no durable
// persistence.
type Catalog struct {
	mu     sync.RWMutex
	chunks *btree.BTree // chunkItem ordered by (ns, min)
}

func New() *Catalog {
	return &Catalog{chunks: btree.New(32)}
}

// NewCollection seeds a namespace with a single chunk spanning the whole
// shard-key space (MinKey to MaxKey), owned by the given shard, starting
// at version (new epoch, 1, 0) — the initial state of spec §4.7's model
// before any split or migration.
func (c *Catalog) NewCollection(ns string, shard string) Chunk {
	c.mu.Lock()
	defer c.mu.Unlock()
	chunk := Chunk{
		NS:      ns,
		Min:     []document.Value{document.MinKey()},
		Max:     []document.Value{document.MaxKey()},
		Shard:   shard,
		Version: Version{Epoch: uuid.New(), Major: 1, Minor: 0},
	}
	c.chunks.ReplaceOrInsert(chunkItem{chunk})
	return chunk
}

// ChunksForNS returns every chunk of ns in Min order.
func (c *Catalog) ChunksForNS(ns string) []Chunk {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []Chunk
	c.chunks.AscendGreaterOrEqual(chunkItem{Chunk{NS: ns}}, func(i btree.Item) bool {
		ci := i.(chunkItem)
		if ci.c.NS != ns {
			return false
		}
		out = append(out, ci.c)
		return true
	})
	return out
}

// CollectionVersion is the max version across all chunks of ns, per spec
// §4.7.
func (c *Catalog) CollectionVersion(ns string) (Version, error) {
	chunks := c.ChunksForNS(ns)
	if len(chunks) == 0 {
		return Version{}, sberrors.New(sberrors.CodeNamespaceInvalid, "no chunks for namespace %s", ns)
	}
	max := chunks[0].Version
	for _, ch := range chunks[1:] {
		if ch.Version.Compare(max) > 0 {
			max = ch.Version
		}
	}
	return max, nil
}

// ShardVersion is the max version among chunks owned by shard for ns, per
// spec §4.7.
func (c *Catalog) ShardVersion(ns, shard string) (Version, error) {
	chunks := c.ChunksForNS(ns)
	var max Version
	found := false
	for _, ch := range chunks {
		if ch.Shard != shard {
			continue
		}
		if !found || ch.Version.Compare(max) > 0 {
			max = ch.Version
			found = true
		}
	}
	if !found {
		return Version{}, sberrors.New(sberrors.CodeNamespaceInvalid, "shard %s owns no chunks of %s", shard, ns)
	}
	return max, nil
}

// ChunkFor returns the chunk owning key within ns, if any.
func (c *Catalog) ChunkFor(ns string, key []document.Value) (Chunk, bool) {
	for _, ch := range c.ChunksForNS(ns) {
		if document.CompareTuples(key, ch.Min) >= 0 && document.CompareTuples(key, ch.Max) < 0 {
			return ch, true
		}
	}
	return Chunk{}, false
}

// ShardsForRange returns the distinct shards owning any chunk whose range
// intersects [min, max) — used by the router to compute scatter targets
// for a predicate with a shard-key range.
func (c *Catalog) ShardsForRange(ns string, min, max []document.Value) []string {
	seen := make(map[string]bool)
	var out []string
	for _, ch := range c.ChunksForNS(ns) {
		if document.CompareTuples(ch.Min, max) < 0 && document.CompareTuples(min, ch.Max) < 0 {
			if !seen[ch.Shard] {
				seen[ch.Shard] = true
				out = append(out, ch.Shard)
			}
		}
	}
	return out
}

// AllShards returns every distinct shard currently owning a chunk of ns —
// used for a predicate-less broadcast.
func (c *Catalog) AllShards(ns string) []string {
	return c.ShardsForRange(ns, []document.Value{document.MinKey()}, []document.Value{document.MaxKey()})
}

// replaceChunkLocked swaps an existing chunk (matched by NS+Min) for a
// replacement, used by split/migrate mutations below.
func (c *Catalog) replaceChunkLocked(old Chunk, news ...Chunk) {
	c.chunks.Delete(chunkItem{old})
	for _, n := range news {
		c.chunks.ReplaceOrInsert(chunkItem{n})
	}
}

// SplitChunk divides chunk at splitKey (which must lie strictly inside
// (Min, Max)) into two chunks, bumping (major, minor) per spec §4.7
// ("(major,minor) increases on every metadata mutation") and spec §8
// scenario 3: splitting [MinKey,MaxKey) at (E,1|0) yields (E,1|1) and
// (E,1|2), both halves keeping the pre-split major and taking the next two
// minors in order — matching real chunk-split semantics, where a split
// never starts a fresh major.
func (c *Catalog) SplitChunk(ns string, splitKey []document.Value) (left, right Chunk, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var target *Chunk
	c.chunks.AscendGreaterOrEqual(chunkItem{Chunk{NS: ns}}, func(i btree.Item) bool {
		ci := i.(chunkItem)
		if ci.c.NS != ns {
			return false
		}
		if document.CompareTuples(splitKey, ci.c.Min) > 0 && document.CompareTuples(splitKey, ci.c.Max) < 0 {
			cp := ci.c
			target = &cp
			return false
		}
		return true
	})
	if target == nil {
		return Chunk{}, Chunk{}, sberrors.New(sberrors.CodeBadValue, "split key not strictly inside any chunk of %s", ns)
	}

	left = Chunk{NS: ns, Min: target.Min, Max: splitKey, Shard: target.Shard,
		Version: Version{Epoch: target.Version.Epoch, Major: target.Version.Major, Minor: target.Version.Minor + 1}}
	right = Chunk{NS: ns, Min: splitKey, Max: target.Max, Shard: target.Shard,
		Version: Version{Epoch: target.Version.Epoch, Major: target.Version.Major, Minor: target.Version.Minor + 2}}

	c.chunks.Delete(chunkItem{*target})
	c.chunks.ReplaceOrInsert(chunkItem{left})
	c.chunks.ReplaceOrInsert(chunkItem{right})
	return left, right, nil
}

// MoveChunk moves ownership of one chunk to newShard and gives the moved
// chunk a new major version (major+1, minor 0), the cut-over step of spec
// §4.8. Chunks the donor keeps are not re-versioned, so the donor's shard
// version is not bumped.
func (c *Catalog) MoveChunk(ns string, min []document.Value, newShard string) (Chunk, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var target *Chunk
	c.chunks.AscendGreaterOrEqual(chunkItem{Chunk{NS: ns, Min: min}}, func(i btree.Item) bool {
		ci := i.(chunkItem)
		if ci.c.NS == ns && document.CompareTuples(ci.c.Min, min) == 0 {
			cp := ci.c
			target = &cp
		}
		return false
	})
	if target == nil {
		return Chunk{}, sberrors.New(sberrors.CodeBadValue, "no chunk of %s at min %v", ns, min)
	}

	moved := *target
	moved.Shard = newShard
	moved.Version = Version{Epoch: target.Version.Epoch, Major: target.Version.Major + 1, Minor: 0}
	c.chunks.Delete(chunkItem{*target})
	c.chunks.ReplaceOrInsert(chunkItem{moved})
	return moved, nil
}

// SetChunks replaces the router's local view of ns's chunk set wholesale —
// used by a router process to mirror a config server's authoritative
// catalog (fetched over the wire) rather than own it, per spec §4.7's
// "routers cache the catalog and refresh on StaleConfig".
func (c *Catalog) SetChunks(ns string, chunks []Chunk) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var stale []chunkItem
	c.chunks.AscendGreaterOrEqual(chunkItem{Chunk{NS: ns}}, func(i btree.Item) bool {
		ci := i.(chunkItem)
		if ci.c.NS != ns {
			return false
		}
		stale = append(stale, ci)
		return true
	})
	for _, ci := range stale {
		c.chunks.Delete(ci)
	}
	for _, ch := range chunks {
		c.chunks.ReplaceOrInsert(chunkItem{ch})
	}
}

// DropCollection removes every chunk of ns. Per spec §4.7, a subsequent
// NewCollection call for the same ns mints a fresh epoch, which is what
// forces every cached router entry to reload rather than silently serve
// stale ranges.
func (c *Catalog) DropCollection(ns string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var toDelete []chunkItem
	c.chunks.AscendGreaterOrEqual(chunkItem{Chunk{NS: ns}}, func(i btree.Item) bool {
		ci := i.(chunkItem)
		if ci.c.NS != ns {
			return false
		}
		toDelete = append(toDelete, ci)
		return true
	})
	for _, ci := range toDelete {
		c.chunks.Delete(ci)
	}
}
