// Package oplog implements the replicated log of spec §4.5 (component
// C5): a capped, ts-ordered, tailable append log of mutation descriptors
// built on internal/recordstore. The teacher's internal/storage.Store is a
// flat, uncapped key/value map with no ordering guarantee; this package
// generalizes that idiom (RWMutex-guarded struct, copy-on-read accessors)
// onto a capped record store with a monotone ts index, per spec §4.5.
package oplog

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shardbase/shardbase/internal/document"
	sberrors "github.com/shardbase/shardbase/internal/errors"
	"github.com/shardbase/shardbase/internal/recordstore"
)

// OpKind is one of the five oplog entry kinds spec §4.5 names.
type OpKind string

const (
	OpInsert  OpKind = "i"
	OpUpdate  OpKind = "u"
	OpDelete  OpKind = "d"
	OpCommand OpKind = "c"
	OpNoop    OpKind = "n"
)

// Entry is the oplog entry shape of spec §4.5.
type Entry struct {
	Ts          document.Timestamp  `json:"ts"`
	H           int64               `json:"h"`
	Op          OpKind              `json:"op"`
	NS          string              `json:"ns"`
	O           json.RawMessage     `json:"o"`
	O2          json.RawMessage     `json:"o2,omitempty"`
	FromMigrate bool                `json:"fromMigrate,omitempty"`
	LSID        string              `json:"lsid,omitempty"`
	TxnNumber   int64               `json:"txnNumber,omitempty"`
}

// Log is a capped, strictly-ts-ordered append log. Appends must be
// serialised by the caller under the global write lock, per spec §4.5
// ("Appends are single-threaded within a primary"); Log itself only
// enforces the strict-monotone invariant (I2/P2) and does not lock across
// Append calls beyond what's needed to protect its own counters.
type Log struct {
	rs recordstore.RecordStore

	mu       sync.Mutex
	lastTs   document.Timestamp
	lastHash int64
}

// New wraps a capped RecordStore (spec §4.5: "A capped record store with a
// single ordered key (ts) and an index on ts"). rs.Capped() must be true.
func New(rs recordstore.RecordStore) (*Log, error) {
	if !rs.Capped() {
		return nil, sberrors.New(sberrors.CodeBadValue, "oplog record store must be capped")
	}
	return &Log{rs: rs}, nil
}

// NextTimestamp allocates a ts strictly greater than the last one issued,
// bumping the ordinal when called twice within the same wall-clock second
// (spec §4.5's ts is a (seconds, ordinal) pair, strictly increasing).
func (l *Log) NextTimestamp(now time.Time) document.Timestamp {
	l.mu.Lock()
	defer l.mu.Unlock()
	sec := uint32(now.Unix())
	if sec < l.lastTs.Seconds {
		sec = l.lastTs.Seconds
	}
	ts := document.Timestamp{Seconds: sec, Ordinal: 1}
	if sec == l.lastTs.Seconds {
		ts.Ordinal = l.lastTs.Ordinal + 1
	}
	l.lastTs = ts
	return ts
}

// Append writes one entry, deriving h as a chain hash over the previous
// entry's h and this entry's ts so divergence detection (spec §4.6) can
// compare chains without re-reading whole documents.
func (l *Log) Append(op OpKind, ns string, o, o2 *document.Document, fromMigrate bool, lsid string, txnNumber int64, now time.Time) (Entry, error) {
	ts := l.NextTimestamp(now)

	oBytes, err := encodeDoc(o)
	if err != nil {
		return Entry{}, err
	}
	var o2Bytes json.RawMessage
	if o2 != nil {
		o2Bytes, err = encodeDoc(o2)
		if err != nil {
			return Entry{}, err
		}
	}

	l.mu.Lock()
	h := chainHash(l.lastHash, ts)
	l.lastHash = h
	l.mu.Unlock()

	entry := Entry{Ts: ts, H: h, Op: op, NS: ns, O: oBytes, O2: o2Bytes, FromMigrate: fromMigrate, LSID: lsid, TxnNumber: txnNumber}
	data, err := json.Marshal(entry)
	if err != nil {
		return Entry{}, err
	}
	if _, err := l.rs.Insert(data); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// AppendEntry writes an already-constructed entry verbatim — used by the
// replication apply loop, which must persist the exact entry (same ts,
// same h) it fetched from the sync source rather than minting a new ts
// (spec §4.6: "then writes the same entry to local oplog"). Rejects an
// entry whose ts does not strictly exceed the last one written locally.
func (l *Log) AppendEntry(e Entry) error {
	l.mu.Lock()
	if e.Ts.Compare(l.lastTs) <= 0 {
		l.mu.Unlock()
		return sberrors.New(sberrors.CodeWriteConflict, "oplog entry ts %v not strictly greater than local last %v", e.Ts, l.lastTs)
	}
	l.lastTs = e.Ts
	l.lastHash = e.H
	l.mu.Unlock()

	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = l.rs.Insert(data)
	return err
}

func encodeDoc(d *document.Document) (json.RawMessage, error) {
	if d == nil {
		return nil, nil
	}
	m := make(map[string]document.Value, d.Len())
	for _, f := range d.Fields() {
		m[f.Name] = f.Value
	}
	return json.Marshal(m)
}

// DecodeDoc reconstructs a *document.Document from an o/o2 payload encoded
// by encodeDoc. Field order is not preserved (JSON objects are unordered),
// which matches Document.Equal's order-independent logical-equality
// contract; callers needing byte-order fidelity must not round-trip
// through this path.
func DecodeDoc(raw json.RawMessage) (*document.Document, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var m map[string]document.Value
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	doc := document.NewDocument()
	for name, v := range m {
		doc.Append(name, v)
	}
	return doc, nil
}

func chainHash(prev int64, ts document.Timestamp) int64 {
	const prime = 1099511628211
	h := prev*prime + int64(ts.Seconds)
	h = h*prime + int64(ts.Ordinal)
	return h
}

// NewSessionID mints a session id for lsid-tagged writes, per spec §4.5.
func NewSessionID() string { return uuid.NewString() }

// decodeEntry decodes one stored record back into the oplog entry shape;
// TailCursor.fetchSince calls it for every record it scans.
func decodeEntry(data []byte) (Entry, error) {
	var e Entry
	err := json.Unmarshal(data, &e)
	return e, err
}
