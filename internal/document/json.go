package document

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// typeTags names each Type for the tagged JSON wrapper below. These are
// wire-facing identifiers, not Go identifiers, so they stay stable even if
// the Type ordinals are reordered.
var typeTags = map[Type]string{
	TypeMinKey:     "minKey",
	TypeNull:       "null",
	TypeInt32:      "int32",
	TypeInt64:      "int64",
	TypeDouble:     "double",
	TypeDecimal128: "decimal128",
	TypeString:     "string",
	TypeBinary:     "binary",
	TypeObjectID:   "objectId",
	TypeBool:       "bool",
	TypeDatetime:   "date",
	TypeTimestamp:  "timestamp",
	TypeRegex:      "regex",
	TypeArray:      "array",
	TypeDocument:   "document",
	TypeMaxKey:     "maxKey",
}

var tagTypes = func() map[string]Type {
	m := make(map[string]Type, len(typeTags))
	for t, s := range typeTags {
		m[s] = t
	}
	return m
}()

// jsonValue is the wire shape of a Value: a type tag plus whatever payload
// that type needs. A bare Value has no exported fields of its own, so every
// marshal/unmarshal goes through this wrapper rather than struct tags.
type jsonValue struct {
	Type  string          `json:"$t"`
	Value json.RawMessage `json:"v,omitempty"`
}

// MarshalJSON encodes v as a tagged {"$t":<type>,"v":<payload>} object.
// Types with no payload (MinKey, MaxKey, Null) omit "v" entirely.
func (v Value) MarshalJSON() ([]byte, error) {
	tag, ok := typeTags[v.typ]
	if !ok {
		return nil, fmt.Errorf("document: unknown value type %d", v.typ)
	}

	var payload any
	switch v.typ {
	case TypeMinKey, TypeMaxKey, TypeNull:
		return json.Marshal(jsonValue{Type: tag})
	case TypeBool:
		payload = v.boolVal
	case TypeInt32:
		payload = v.int32Val
	case TypeInt64:
		payload = v.int64Val
	case TypeDouble:
		payload = v.floatVal
	case TypeDecimal128:
		payload = v.decVal.String()
	case TypeString:
		payload = v.stringVal
	case TypeBinary:
		payload = base64.StdEncoding.EncodeToString(v.binVal)
	case TypeObjectID:
		payload = fmt.Sprintf("%x", v.oidVal[:])
	case TypeDatetime:
		payload = v.dtVal.UTC().Format(time.RFC3339Nano)
	case TypeTimestamp:
		payload = v.tsVal
	case TypeRegex:
		payload = v.rxVal
	case TypeArray:
		payload = v.arrVal
	case TypeDocument:
		payload = v.docVal
	default:
		return nil, fmt.Errorf("document: unhandled value type %d", v.typ)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("document: marshal %s value: %w", tag, err)
	}
	return json.Marshal(jsonValue{Type: tag, Value: raw})
}

// UnmarshalJSON decodes the {"$t":<type>,"v":<payload>} shape MarshalJSON
// produces.
func (v *Value) UnmarshalJSON(data []byte) error {
	var wrapped jsonValue
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return fmt.Errorf("document: decode tagged value: %w", err)
	}
	typ, ok := tagTypes[wrapped.Type]
	if !ok {
		return fmt.Errorf("document: unknown value tag %q", wrapped.Type)
	}

	switch typ {
	case TypeMinKey:
		*v = MinKey()
		return nil
	case TypeMaxKey:
		*v = MaxKey()
		return nil
	case TypeNull:
		*v = Null()
		return nil
	case TypeBool:
		var b bool
		if err := json.Unmarshal(wrapped.Value, &b); err != nil {
			return err
		}
		*v = Bool(b)
	case TypeInt32:
		var i int32
		if err := json.Unmarshal(wrapped.Value, &i); err != nil {
			return err
		}
		*v = Int32(i)
	case TypeInt64:
		var i int64
		if err := json.Unmarshal(wrapped.Value, &i); err != nil {
			return err
		}
		*v = Int64(i)
	case TypeDouble:
		var f float64
		if err := json.Unmarshal(wrapped.Value, &f); err != nil {
			return err
		}
		*v = Double(f)
	case TypeDecimal128:
		var s string
		if err := json.Unmarshal(wrapped.Value, &s); err != nil {
			return err
		}
		d, _, err := FromString(s)
		if err != nil {
			return fmt.Errorf("document: decode decimal128: %w", err)
		}
		*v = Decimal(d)
	case TypeString:
		var s string
		if err := json.Unmarshal(wrapped.Value, &s); err != nil {
			return err
		}
		*v = String(s)
	case TypeBinary:
		var s string
		if err := json.Unmarshal(wrapped.Value, &s); err != nil {
			return err
		}
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return fmt.Errorf("document: decode binary: %w", err)
		}
		*v = Binary(b)
	case TypeObjectID:
		var s string
		if err := json.Unmarshal(wrapped.Value, &s); err != nil {
			return err
		}
		var oid ObjectID
		if _, err := fmt.Sscanf(s, "%x", &oid); err != nil {
			return fmt.Errorf("document: decode objectId: %w", err)
		}
		*v = ObjectIDValue(oid)
	case TypeDatetime:
		var s string
		if err := json.Unmarshal(wrapped.Value, &s); err != nil {
			return err
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("document: decode date: %w", err)
		}
		*v = Datetime(t)
	case TypeTimestamp:
		var ts Timestamp
		if err := json.Unmarshal(wrapped.Value, &ts); err != nil {
			return err
		}
		*v = TimestampValue(ts)
	case TypeRegex:
		var rx Regex
		if err := json.Unmarshal(wrapped.Value, &rx); err != nil {
			return err
		}
		*v = RegexValue(rx)
	case TypeArray:
		var arr []Value
		if err := json.Unmarshal(wrapped.Value, &arr); err != nil {
			return err
		}
		*v = Array(arr...)
	case TypeDocument:
		var d Document
		if err := json.Unmarshal(wrapped.Value, &d); err != nil {
			return err
		}
		*v = DocumentValue(&d)
	default:
		return fmt.Errorf("document: unhandled value tag %q", wrapped.Type)
	}
	return nil
}

// jsonDocument wraps a Document's ordered field list for JSON purposes (Field itself is fine to encode
// directly since Value now carries its own marshaler).
type jsonDocument struct {
	Fields []Field `json:"fields"`
}

// MarshalJSON encodes d as an ordered field list, preserving the insertion
// order Compare/Equal treat as byte-significant but not logic-significant.
func (d *Document) MarshalJSON() ([]byte, error) {
	if d == nil {
		return []byte("null"), nil
	}
	return json.Marshal(jsonDocument{Fields: d.fields})
}

// UnmarshalJSON decodes the shape MarshalJSON produces.
func (d *Document) UnmarshalJSON(data []byte) error {
	var wrapped jsonDocument
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return fmt.Errorf("document: decode document: %w", err)
	}
	d.fields = wrapped.Fields
	return nil
}
