// Package document implements the typed, ordered, self-describing record
// value of spec §3/§4.1 (component C1): documents built from typed fields,
// canonical comparison, dotted-path lookup, and shard-key tuple extraction.
//
// The teacher (johnjansen-torua) has no analogous type — its shards store
// raw []byte values — so this package is new code, shaped directly by the
// spec rather than adapted from an existing file.
package document

import (
	"fmt"
	"strings"
	"time"

	sberrors "github.com/shardbase/shardbase/internal/errors"
)

// Type is one of the closed set of field tags spec §3 names.
type Type uint8

const (
	TypeMinKey Type = iota
	TypeNull
	TypeInt32
	TypeInt64
	TypeDouble
	TypeDecimal128
	TypeString
	TypeBinary
	TypeObjectID
	TypeBool
	TypeDatetime
	TypeTimestamp
	TypeRegex
	TypeArray
	TypeDocument
	TypeMaxKey
)

// typeRank gives the canonical comparison order of §4.1: MinKey sorts before
// everything, MaxKey after everything, numeric types compare across type by
// numeric value, and the remaining types rank as listed.
var typeRank = map[Type]int{
	TypeMinKey:     0,
	TypeNull:       1,
	TypeInt32:      2,
	TypeInt64:      2,
	TypeDouble:     2,
	TypeDecimal128: 2,
	TypeString:     3,
	TypeBinary:     4,
	TypeObjectID:   5,
	TypeBool:       6,
	TypeDatetime:   7,
	TypeTimestamp:  8,
	TypeRegex:      9,
	TypeArray:      10,
	TypeDocument:   11,
	TypeMaxKey:     12,
}

// ObjectID is a 12-byte unique identifier, the conventional type of `_id`.
type ObjectID [12]byte

// Timestamp is a replication-internal {seconds, ordinal} pair distinct from
// Datetime; oplog entries use it for `ts` (see internal/oplog).
type Timestamp struct {
	Seconds uint32
	Ordinal uint32
}

// Compare gives Timestamp a total order: seconds first, then ordinal.
func (t Timestamp) Compare(o Timestamp) int {
	if t.Seconds != o.Seconds {
		if t.Seconds < o.Seconds {
			return -1
		}
		return 1
	}
	switch {
	case t.Ordinal < o.Ordinal:
		return -1
	case t.Ordinal > o.Ordinal:
		return 1
	default:
		return 0
	}
}

// Regex is a pattern/options pair; the core never evaluates it, only stores
// and compares it (full regex matching is out of scope per spec §1).
type Regex struct {
	Pattern string
	Options string
}

// Value is a single typed field value. Exactly one of the typed accessor
// fields is meaningful for a given Type; the zero Value is TypeMinKey.
type Value struct {
	typ Type

	boolVal   bool
	int32Val  int32
	int64Val  int64
	floatVal  float64
	decVal    Decimal128
	stringVal string
	binVal    []byte
	oidVal    ObjectID
	dtVal     time.Time
	tsVal     Timestamp
	rxVal     Regex
	arrVal    []Value
	docVal    *Document
}

func (v Value) Type() Type { return v.typ }

func Null() Value                       { return Value{typ: TypeNull} }
func MinKey() Value                     { return Value{typ: TypeMinKey} }
func MaxKey() Value                     { return Value{typ: TypeMaxKey} }
func Bool(b bool) Value                 { return Value{typ: TypeBool, boolVal: b} }
func Int32(i int32) Value               { return Value{typ: TypeInt32, int32Val: i} }
func Int64(i int64) Value               { return Value{typ: TypeInt64, int64Val: i} }
func Double(f float64) Value            { return Value{typ: TypeDouble, floatVal: f} }
func Decimal(d Decimal128) Value        { return Value{typ: TypeDecimal128, decVal: d} }
func String(s string) Value             { return Value{typ: TypeString, stringVal: s} }
func Binary(b []byte) Value             { return Value{typ: TypeBinary, binVal: append([]byte(nil), b...)} }
func ObjectIDValue(o ObjectID) Value    { return Value{typ: TypeObjectID, oidVal: o} }
func Datetime(t time.Time) Value        { return Value{typ: TypeDatetime, dtVal: t} }
func TimestampValue(ts Timestamp) Value { return Value{typ: TypeTimestamp, tsVal: ts} }
func RegexValue(r Regex) Value          { return Value{typ: TypeRegex, rxVal: r} }
func Array(vs ...Value) Value           { return Value{typ: TypeArray, arrVal: vs} }
func DocumentValue(d *Document) Value   { return Value{typ: TypeDocument, docVal: d} }

func (v Value) AsBool() (bool, bool)           { return v.boolVal, v.typ == TypeBool }
func (v Value) AsInt32() (int32, bool)         { return v.int32Val, v.typ == TypeInt32 }
func (v Value) AsInt64() (int64, bool)         { return v.int64Val, v.typ == TypeInt64 }
func (v Value) AsDouble() (float64, bool)      { return v.floatVal, v.typ == TypeDouble }
func (v Value) AsDecimal() (Decimal128, bool)  { return v.decVal, v.typ == TypeDecimal128 }
func (v Value) AsString() (string, bool)       { return v.stringVal, v.typ == TypeString }
func (v Value) AsBinary() ([]byte, bool)       { return v.binVal, v.typ == TypeBinary }
func (v Value) AsObjectID() (ObjectID, bool)   { return v.oidVal, v.typ == TypeObjectID }
func (v Value) AsDatetime() (time.Time, bool)  { return v.dtVal, v.typ == TypeDatetime }
func (v Value) AsTimestamp() (Timestamp, bool) { return v.tsVal, v.typ == TypeTimestamp }
func (v Value) AsArray() ([]Value, bool)       { return v.arrVal, v.typ == TypeArray }
func (v Value) AsDocument() (*Document, bool)  { return v.docVal, v.typ == TypeDocument }

// AsFloat64 coerces any numeric type to float64 for cross-type numeric
// comparison; ok is false for non-numeric types.
func (v Value) AsFloat64() (float64, bool) {
	switch v.typ {
	case TypeInt32:
		return float64(v.int32Val), true
	case TypeInt64:
		return float64(v.int64Val), true
	case TypeDouble:
		return v.floatVal, true
	case TypeDecimal128:
		f, _ := v.decVal.ToDouble()
		return f, true
	default:
		return 0, false
	}
}

// Field is a single named, ordered entry of a Document.
type Field struct {
	Name  string
	Value Value
}

// Document is a finite ordered sequence of named fields (spec §3). Field
// order is preserved and significant for byte equality but not for logical
// equality (see Equal).
type Document struct {
	fields []Field
}

// NewDocument builds a document from fields in the given order.
func NewDocument(fields ...Field) *Document {
	return &Document{fields: append([]Field(nil), fields...)}
}

// Append adds a field to the end of the document, preserving insertion order.
func (d *Document) Append(name string, v Value) *Document {
	d.fields = append(d.fields, Field{Name: name, Value: v})
	return d
}

// Fields returns the fields in insertion order. The caller must not mutate
// the returned slice's Value contents through pointer aliasing.
func (d *Document) Fields() []Field {
	return d.fields
}

func (d *Document) Len() int { return len(d.fields) }

// Get returns the first field matching name (top-level only).
func (d *Document) Get(name string) (Value, bool) {
	for _, f := range d.fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return Value{}, false
}

// ID returns the distinguished `_id` field required on every stored document.
func (d *Document) ID() (Value, bool) { return d.Get("_id") }

// GetPath resolves a dotted path ("a.b.c") through nested documents and
// arrays (numeric path segments index into arrays), per spec §4.1.
func (d *Document) GetPath(path string) (Value, bool) {
	segments := strings.Split(path, ".")
	cur := Value{typ: TypeDocument, docVal: d}
	for _, seg := range segments {
		switch cur.typ {
		case TypeDocument:
			v, ok := cur.docVal.Get(seg)
			if !ok {
				return Value{}, false
			}
			cur = v
		case TypeArray:
			idx, err := parseArrayIndex(seg)
			if err != nil || idx < 0 || idx >= len(cur.arrVal) {
				return Value{}, false
			}
			cur = cur.arrVal[idx]
		default:
			return Value{}, false
		}
	}
	return cur, true
}

func parseArrayIndex(s string) (int, error) {
	n := 0
	if s == "" {
		return 0, fmt.Errorf("empty path segment")
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("not a numeric index: %s", s)
		}
		n = n*10 + int(r-'0')
	}
	return n, nil
}

// Equal reports logical equality: same fields with equal values, independent
// of insertion order (spec §3: "not significant for logical equality").
func (d *Document) Equal(o *Document) bool {
	if d.Len() != o.Len() {
		return false
	}
	for _, f := range d.fields {
		ov, ok := o.Get(f.Name)
		if !ok || Compare(f.Value, ov) != 0 {
			return false
		}
	}
	return true
}

// ShardKeyTuple computes the canonical shard-key tuple for d given an
// ordered list of key-pattern field names (spec §4.1). Returns
// errors.CodeShardKeyNotFound if any required field is absent.
func ShardKeyTuple(d *Document, keyPattern []string) ([]Value, error) {
	tuple := make([]Value, len(keyPattern))
	for i, name := range keyPattern {
		v, ok := d.GetPath(name)
		if !ok {
			return nil, sberrors.New(sberrors.CodeShardKeyNotFound, "shard key field %q missing from document", name)
		}
		tuple[i] = v
	}
	return tuple, nil
}
