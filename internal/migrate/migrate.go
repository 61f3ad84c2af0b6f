// Package migrate implements the donor-driven chunk migration engine of
// spec §4.8 (component C8): a donor state machine, a locator-set clone of
// the chunk's current contents, a recipient transfer loop, and a critical
// section protecting cut-over. The teacher has no migration code; state
// modeling follows original_source/src/mongo/db/s/
// migration_chunk_cloner_source_legacy.cpp's state names, expressed as a
// Go struct + mutex the way internal/shard/shard.go's ShardState field
// does (a string-typed state enum with documented transition comments).
package migrate

import (
	"fmt"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/shardbase/shardbase/internal/document"
	"github.com/shardbase/shardbase/internal/recordstore"
)

// DonorState is the donor-side state machine of spec §4.8.
type DonorState string

const (
	// DonorNew: migration created, nothing started yet.
	DonorNew DonorState = "new"
	// DonorCloning: locator set built, recipient receiving batches and
	// transfer-mods.
	DonorCloning DonorState = "cloning"
	// DonorCritical: recipient reported steady and the locator set is
	// drained; writes to the chunk range are briefly blocked.
	DonorCritical DonorState = "critical"
	// DonorDone: cut-over complete, catalog updated, critical section exited.
	DonorDone DonorState = "done"
	// DonorAborted: migration abandoned before cut-over; chunk remains
	// with donor.
	DonorAborted DonorState = "aborted"
)

var donorTransitions = map[DonorState][]DonorState{
	DonorNew:      {DonorCloning, DonorAborted},
	DonorCloning:  {DonorCritical, DonorAborted},
	DonorCritical: {DonorDone, DonorAborted},
	DonorDone:     {},
	DonorAborted:  {},
}

// ModsQueue accumulates _ids reloaded or deleted in the donor's chunk
// range while a migration is in flight, per spec §4.8 step 4: "Concurrent
// mutations in the donor's chunk range are captured via a commit-time hook
// on the recovery unit that appends the _id to _reload or _deleted".
type ModsQueue struct {
	mu      sync.Mutex
	reload  []document.Value
	deleted []document.Value
	bytes   int64
}

func NewModsQueue() *ModsQueue { return &ModsQueue{} }

func (q *ModsQueue) RecordReload(id document.Value, approxBytes int64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.reload = append(q.reload, id)
	q.bytes += approxBytes
}

func (q *ModsQueue) RecordDeleted(id document.Value) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.deleted = append(q.deleted, id)
}

// Drain returns and clears the queue, per _transferMods' "returns queued
// inserts/updates/deletes since the last call" semantics.
func (q *ModsQueue) Drain() (reload, deleted []document.Value, size int64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	reload, deleted, size = q.reload, q.deleted, q.bytes
	q.reload, q.deleted, q.bytes = nil, nil, 0
	return
}

// Size reports the queue's current accumulated byte estimate without
// draining it, used for the memory-pressure check between _transferMods
// calls.
func (q *ModsQueue) Size() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.bytes
}

// LocatorSet is the in-memory set of record locators within the chunk
// range, built by a full index scan at migration start (spec §4.8 step 2).
// A concurrent delete of a locator already in the set removes it, via the
// deletion-notification stage internal/exec's NotificationStage provides.
type LocatorSet struct {
	mu   sync.Mutex
	locs map[recordstore.Locator]bool
}

func NewLocatorSet(initial []recordstore.Locator) *LocatorSet {
	ls := &LocatorSet{locs: make(map[recordstore.Locator]bool, len(initial))}
	for _, l := range initial {
		ls.locs[l] = true
	}
	return ls
}

func (ls *LocatorSet) Remove(loc recordstore.Locator) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	delete(ls.locs, loc)
}

func (ls *LocatorSet) Empty() bool {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return len(ls.locs) == 0
}

// NextBatch pops up to maxBytes worth of locators (caller supplies a size
// function since this package doesn't know record sizes), per spec §4.8's
// "batches from the locator set (up to 1 MiB per batch)".
func (ls *LocatorSet) NextBatch(maxBytes int64, sizeOf func(recordstore.Locator) int64) []recordstore.Locator {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	var batch []recordstore.Locator
	var total int64
	for loc := range ls.locs {
		sz := sizeOf(loc)
		if total > 0 && total+sz > maxBytes {
			break
		}
		batch = append(batch, loc)
		delete(ls.locs, loc)
		total += sz
		if total >= maxBytes {
			break
		}
	}
	return batch
}

// MemoryPressureThresholdBytes is spec §4.8's "memory pressure above
// ~500 MiB aborts the migration" ceiling.
const MemoryPressureThresholdBytes = 500 * 1024 * 1024

// Donor drives one chunk migration from the donating shard's side.
type Donor struct {
	mu    sync.Mutex
	state DonorState

	NS         string
	Min, Max   []document.Value
	FromShard  string
	ToShard    string
	SessionID  string

	Locators *LocatorSet
	Mods     *ModsQueue
}

func NewDonor(ns string, min, max []document.Value, fromShard, toShard, sessionID string) *Donor {
	return &Donor{
		state:     DonorNew,
		NS:        ns,
		Min:       min,
		Max:       max,
		FromShard: fromShard,
		ToShard:   toShard,
		SessionID: sessionID,
		Mods:      NewModsQueue(),
	}
}

func (d *Donor) State() DonorState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Donor) transition(next DonorState) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, allowed := range donorTransitions[d.state] {
		if allowed == next {
			d.state = next
			return true
		}
	}
	return false
}

// StartCloning begins step 2-3 of spec §4.8: builds the locator set and
// transitions to kCloning.
func (d *Donor) StartCloning(initialLocators []recordstore.Locator) bool {
	d.Locators = NewLocatorSet(initialLocators)
	return d.transition(DonorCloning)
}

// EnterCritical transitions to kCritical once the locator set has drained
// (spec §4.8 step 5). It does not look at the recipient's reported state;
// the Donor holds no reference to the recipient.
func (d *Donor) EnterCritical() bool {
	if d.Locators != nil && !d.Locators.Empty() {
		return false
	}
	return d.transition(DonorCritical)
}

// Commit finalizes cut-over (spec §4.8 step 6): the caller is responsible
// for the actual catalog mutation (internal/catalog.MoveChunk); this just
// records that cut-over happened.
func (d *Donor) Commit() bool { return d.transition(DonorDone) }

// Abort unwinds the migration per spec §4.8's failure semantics: "no data
// loss either way because cut-over is the single linearisation point."
func (d *Donor) Abort() bool { return d.transition(DonorAborted) }

// MemoryPressureExceeded reports whether the mods queue has accumulated
// enough bytes to warrant aborting, per spec §4.8.
func (d *Donor) MemoryPressureExceeded() bool {
	return d.Mods.Size() > MemoryPressureThresholdBytes
}

// MemoryPressureReport renders the mods queue's current size against the
// abort threshold in human-readable form, for the migration coordinator's
// progress log line when a donor approaches kCritical.
func (d *Donor) MemoryPressureReport() string {
	return fmt.Sprintf("%s / %s", humanize.Bytes(uint64(d.Mods.Size())), humanize.Bytes(uint64(MemoryPressureThresholdBytes)))
}
