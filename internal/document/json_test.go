package document

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestValueJSONRoundTripPerType(t *testing.T) {
	oid := ObjectID{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	dec, _, err := FromString("12.50")
	require.NoError(t, err)
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)

	values := []Value{
		MinKey(),
		MaxKey(),
		Null(),
		Bool(true),
		Int32(7),
		Int64(-9000000000),
		Double(3.25),
		Decimal(dec),
		String("hello"),
		Binary([]byte{0xde, 0xad, 0xbe, 0xef}),
		ObjectIDValue(oid),
		Datetime(now),
		TimestampValue(Timestamp{Seconds: 100, Ordinal: 2}),
		RegexValue(Regex{Pattern: "^a", Options: "i"}),
		Array(Int32(1), String("x")),
		DocumentValue(NewDocument(Field{Name: "k", Value: String("v")})),
	}

	for _, v := range values {
		raw, err := json.Marshal(v)
		require.NoError(t, err)
		require.NotEqual(t, "{}", string(raw))

		var got Value
		require.NoError(t, json.Unmarshal(raw, &got))
		require.Equal(t, v.Type(), got.Type())
		require.Equal(t, 0, Compare(v, got), "round-tripped value %s should compare equal", typeTags[v.Type()])
	}
}

func TestValueJSONOmitsPayloadForNoPayloadTypes(t *testing.T) {
	raw, err := json.Marshal(MinKey())
	require.NoError(t, err)
	require.JSONEq(t, `{"$t":"minKey"}`, string(raw))
}

func TestDocumentJSONRoundTripPreservesFields(t *testing.T) {
	doc := NewDocument(
		Field{Name: "_id", Value: Int32(1)},
		Field{Name: "name", Value: String("alice")},
	)
	raw, err := json.Marshal(doc)
	require.NoError(t, err)

	var got Document
	require.NoError(t, json.Unmarshal(raw, &got))
	require.True(t, doc.Equal(&got))
}

func TestDocumentMarshalJSONNilReceiver(t *testing.T) {
	var doc *Document
	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	require.Equal(t, "null", string(raw))
}
