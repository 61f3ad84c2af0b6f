package router

import (
	"container/heap"

	"github.com/shardbase/shardbase/internal/document"
)

// SortKey is one ascending/descending component of a router-level sort
// pattern, mirroring internal/exec's SortKey shape (kept a distinct type
// since the router merges already-materialized per-shard result slices,
// not live exec.Stage trees).
type SortKey struct {
	Path string
	Desc bool
}

func less(a, b *document.Document, keys []SortKey) bool {
	for _, k := range keys {
		av, _ := a.GetPath(k.Path)
		bv, _ := b.GetPath(k.Path)
		c := document.CompareTuples([]document.Value{av}, []document.Value{bv})
		if c == 0 {
			continue
		}
		if k.Desc {
			return c > 0
		}
		return c < 0
	}
	return false
}

type mergeItem struct {
	doc      *document.Document
	shardIdx int
	pos      int
}

type mergeQueue struct {
	items []mergeItem
	keys  []SortKey
}

func (q *mergeQueue) Len() int { return len(q.items) }
func (q *mergeQueue) Less(i, j int) bool {
	return less(q.items[i].doc, q.items[j].doc, q.keys)
}
func (q *mergeQueue) Swap(i, j int) { q.items[i], q.items[j] = q.items[j], q.items[i] }
func (q *mergeQueue) Push(x any)    { q.items = append(q.items, x.(mergeItem)) }
func (q *mergeQueue) Pop() any {
	old := q.items
	n := len(old)
	it := old[n-1]
	q.items = old[:n-1]
	return it
}

// SortedMerge performs the k-way merge spec §4.7 requires for "sorted
// reads across shards": each shard's slice must already be sorted by
// keys; the result is the full sorted union, preserving each shard's
// supplied order as tiebreak.
func SortedMerge(perShard [][]*document.Document, keys []SortKey) []*document.Document {
	q := &mergeQueue{keys: keys}
	heap.Init(q)
	for si, docs := range perShard {
		if len(docs) > 0 {
			heap.Push(q, mergeItem{doc: docs[0], shardIdx: si, pos: 0})
		}
	}
	var out []*document.Document
	for q.Len() > 0 {
		top := heap.Pop(q).(mergeItem)
		out = append(out, top.doc)
		next := top.pos + 1
		if next < len(perShard[top.shardIdx]) {
			heap.Push(q, mergeItem{doc: perShard[top.shardIdx][next], shardIdx: top.shardIdx, pos: next})
		}
	}
	return out
}

// Interleave concatenates per-shard results round-robin, per spec §4.7's
// "for unsorted reads it interleaves" — cheaper than a merge when no
// total order is required.
func Interleave(perShard [][]*document.Document) []*document.Document {
	var out []*document.Document
	idx := make([]int, len(perShard))
	for {
		progressed := false
		for si, docs := range perShard {
			if idx[si] < len(docs) {
				out = append(out, docs[idx[si]])
				idx[si]++
				progressed = true
			}
		}
		if !progressed {
			break
		}
	}
	return out
}
