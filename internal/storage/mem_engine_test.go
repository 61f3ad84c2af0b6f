package storage

import (
	"testing"

	"github.com/shardbase/shardbase/internal/recordstore"
	"github.com/stretchr/testify/require"
)

func TestMemEngineInsertFindScan(t *testing.T) {
	e := NewMemEngine()
	rs, err := e.CreateRecordStore("db.coll", false, 0, 0)
	require.NoError(t, err)

	loc1, err := rs.Insert([]byte("a"))
	require.NoError(t, err)
	loc2, err := rs.Insert([]byte("b"))
	require.NoError(t, err)
	require.Less(t, uint64(loc1), uint64(loc2))

	data, err := rs.FindByLoc(loc1)
	require.NoError(t, err)
	require.Equal(t, []byte("a"), data)

	cur, err := rs.Scan(recordstore.Forward, 0)
	require.NoError(t, err)
	var seen [][]byte
	for {
		_, d, ok, err := cur.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		seen = append(seen, d)
	}
	require.Equal(t, [][]byte{[]byte("a"), []byte("b")}, seen)
}

func TestMemEngineCappedEvictsOldest(t *testing.T) {
	e := NewMemEngine()
	rs, err := e.CreateRecordStore("local.oplog", true, 0, 2)
	require.NoError(t, err)
	mrs := rs.(*memRecordStore)

	var truncatedTo recordstore.Locator
	done := make(chan struct{}, 3)
	mrs.SetTruncateCallback(func(oldest recordstore.Locator) {
		truncatedTo = oldest
		done <- struct{}{}
	})

	l1, _ := rs.Insert([]byte("1"))
	_, _ = rs.Insert([]byte("2"))
	_, _ = rs.Insert([]byte("3"))
	<-done

	_, err = rs.FindByLoc(l1)
	require.Error(t, err)
	require.Greater(t, uint64(truncatedTo), uint64(l1))
}

func TestMemEngineUpdateDeleteNotFound(t *testing.T) {
	e := NewMemEngine()
	rs, _ := e.CreateRecordStore("db.coll", false, 0, 0)
	err := rs.Update(recordstore.Locator(999), []byte("x"))
	require.ErrorIs(t, err, recordstore.ErrNotFound)
	err = rs.Delete(recordstore.Locator(999))
	require.ErrorIs(t, err, recordstore.ErrNotFound)
}
