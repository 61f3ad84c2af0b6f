package dispatch

import "sync/atomic"

// overflowResetThreshold is spec §4.4's declared reset point: counters
// are monotonic within one process lifetime modulo this threshold.
const overflowResetThreshold = 1 << 60

// Counters holds the per-op atomic 64-bit counters spec §4.4 requires:
// inserts, queries, updates, deletes, getmores, commands, plus network
// byte and request/flush counters.
type Counters struct {
	inserts   int64
	queries   int64
	updates   int64
	deletes   int64
	getMores  int64
	commands  int64

	bytesInLogical   int64
	bytesOutLogical  int64
	bytesInPhysical  int64
	bytesOutPhysical int64
	requests         int64
	flushes          int64
}

func NewCounters() *Counters { return &Counters{} }

// bump increments *field and resets it to zero if it would cross the
// overflow threshold, per spec §4.4's "overflow reset" rule — the reset
// loses no information clients rely on since counters are meant to be
// read as deltas over time, not absolute totals.
func bump(field *int64) {
	for {
		v := atomic.AddInt64(field, 1)
		if v >= overflowResetThreshold {
			atomic.CompareAndSwapInt64(field, v, 0)
		}
		return
	}
}

// Record increments the counter matching kind.
func (c *Counters) Record(kind OpKind) {
	switch kind {
	case OpInsert:
		bump(&c.inserts)
	case OpQuery:
		bump(&c.queries)
	case OpUpdate:
		bump(&c.updates)
	case OpDelete:
		bump(&c.deletes)
	case OpGetMore:
		bump(&c.getMores)
	case OpCommand, OpKillCursors:
		bump(&c.commands)
	}
	bump(&c.requests)
}

// RecordBytes updates the logical/physical in/out network counters for
// one request.
func (c *Counters) RecordBytes(logicalIn, logicalOut, physicalIn, physicalOut int64) {
	atomic.AddInt64(&c.bytesInLogical, logicalIn)
	atomic.AddInt64(&c.bytesOutLogical, logicalOut)
	atomic.AddInt64(&c.bytesInPhysical, physicalIn)
	atomic.AddInt64(&c.bytesOutPhysical, physicalOut)
}

func (c *Counters) RecordFlush() { bump(&c.flushes) }

// Snapshot is a point-in-time copy of every counter, for serverStatus-style
// reporting.
type Snapshot struct {
	Inserts, Queries, Updates, Deletes, GetMores, Commands int64
	BytesInLogical, BytesOutLogical                        int64
	BytesInPhysical, BytesOutPhysical                       int64
	Requests, Flushes                                       int64
}

func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		Inserts:           atomic.LoadInt64(&c.inserts),
		Queries:           atomic.LoadInt64(&c.queries),
		Updates:           atomic.LoadInt64(&c.updates),
		Deletes:           atomic.LoadInt64(&c.deletes),
		GetMores:          atomic.LoadInt64(&c.getMores),
		Commands:          atomic.LoadInt64(&c.commands),
		BytesInLogical:    atomic.LoadInt64(&c.bytesInLogical),
		BytesOutLogical:   atomic.LoadInt64(&c.bytesOutLogical),
		BytesInPhysical:   atomic.LoadInt64(&c.bytesInPhysical),
		BytesOutPhysical:  atomic.LoadInt64(&c.bytesOutPhysical),
		Requests:          atomic.LoadInt64(&c.requests),
		Flushes:           atomic.LoadInt64(&c.flushes),
	}
}
