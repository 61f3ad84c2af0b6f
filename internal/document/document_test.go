package document

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDocumentGetPath(t *testing.T) {
	inner := NewDocument(Field{Name: "city", Value: String("nyc")})
	doc := NewDocument(
		Field{Name: "_id", Value: Int32(1)},
		Field{Name: "addr", Value: DocumentValue(inner)},
		Field{Name: "tags", Value: Array(String("a"), String("b"))},
	)

	v, ok := doc.GetPath("addr.city")
	require.True(t, ok)
	s, _ := v.AsString()
	require.Equal(t, "nyc", s)

	v, ok = doc.GetPath("tags.1")
	require.True(t, ok)
	s, _ = v.AsString()
	require.Equal(t, "b", s)

	_, ok = doc.GetPath("addr.missing")
	require.False(t, ok)
}

func TestDocumentEqualIgnoresOrder(t *testing.T) {
	a := NewDocument(Field{Name: "x", Value: Int32(1)}, Field{Name: "y", Value: Int32(2)})
	b := NewDocument(Field{Name: "y", Value: Int32(2)}, Field{Name: "x", Value: Int32(1)})
	require.True(t, a.Equal(b))
}

func TestShardKeyTupleMissingField(t *testing.T) {
	doc := NewDocument(Field{Name: "a", Value: Int32(1)})
	_, err := ShardKeyTuple(doc, []string{"a", "b"})
	require.Error(t, err)
}

func TestCompareCrossTypeNumeric(t *testing.T) {
	require.Equal(t, 0, Compare(Int32(5), Double(5.0)))
	require.Equal(t, -1, Compare(Int32(4), Int64(5)))
	require.Equal(t, 1, Compare(MaxKey(), String("z")))
	require.Equal(t, -1, Compare(MinKey(), Null()))
}
