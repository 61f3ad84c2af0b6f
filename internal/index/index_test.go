package index

import (
	"testing"

	"github.com/shardbase/shardbase/internal/document"
	sberrors "github.com/shardbase/shardbase/internal/errors"
	"github.com/shardbase/shardbase/internal/recordstore"
	"github.com/stretchr/testify/require"
)

func docWithField(name string, v document.Value) *document.Document {
	d := document.NewDocument()
	d.Append(name, v)
	return d
}

func TestIndexInsertUniqueRejectsDuplicate(t *testing.T) {
	ix := New("a_1", DottedPathGenerator("a"), Options{DupsAllowed: false})

	d1 := docWithField("a", document.Int32(1))
	keys := ix.GenerateKeys(d1)
	require.NoError(t, ix.Insert(keys, recordstore.Locator(1)))

	d2 := docWithField("a", document.Int32(1))
	keys2 := ix.GenerateKeys(d2)
	err := ix.Insert(keys2, recordstore.Locator(2))
	require.Error(t, err)
	require.Equal(t, sberrors.CodeDuplicateKey, sberrors.CodeOf(err))
}

func TestIndexMultikeyOnArrayField(t *testing.T) {
	ix := New("a_1", DottedPathGenerator("a"), Options{DupsAllowed: true})
	d := docWithField("a", document.Array(document.Int32(1), document.Int32(2)))
	keys := ix.GenerateKeys(d)
	require.NoError(t, ix.Insert(keys, recordstore.Locator(1)))
	require.True(t, ix.Multikey())
}

func TestIndexRangeCursorOrdering(t *testing.T) {
	ix := New("a_1", DottedPathGenerator("a"), Options{DupsAllowed: true})
	for i, v := range []int32{3, 1, 2} {
		d := docWithField("a", document.Int32(v))
		require.NoError(t, ix.Insert(ix.GenerateKeys(d), recordstore.Locator(i+1)))
	}
	cur := ix.NewCursor(recordstore.Forward)
	var got []int64
	for {
		k, ok := cur.Next()
		if !ok {
			break
		}
		f, _ := k.Values[0].AsFloat64()
		got = append(got, int64(f))
	}
	require.Equal(t, []int64{1, 2, 3}, got)
}

func TestIndexRemove(t *testing.T) {
	ix := New("a_1", DottedPathGenerator("a"), Options{DupsAllowed: true})
	d := docWithField("a", document.Int32(5))
	keys := ix.GenerateKeys(d)
	require.NoError(t, ix.Insert(keys, recordstore.Locator(1)))
	require.Equal(t, 1, ix.Validate())
	require.NoError(t, ix.Remove(keys, recordstore.Locator(1)))
	require.Equal(t, 0, ix.Validate())
}
