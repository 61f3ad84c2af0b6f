package exec

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/shardbase/shardbase/internal/document"
	"github.com/shardbase/shardbase/internal/recordstore"
	"github.com/shardbase/shardbase/internal/storage"
	"github.com/stretchr/testify/require"
)

func jsonDecode(data []byte) (*document.Document, error) {
	var m map[string]int32
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	d := document.NewDocument()
	for k, v := range m {
		d.Append(k, document.Int32(v))
	}
	return d, nil
}

func jsonEncode(d *document.Document) ([]byte, error) {
	m := map[string]int32{}
	for _, f := range d.Fields() {
		if v, ok := f.Value.AsInt32(); ok {
			m[f.Name] = v
		}
	}
	return json.Marshal(m)
}

func seedStore(t *testing.T, vals ...int32) recordstore.RecordStore {
	e := storage.NewMemEngine()
	rs, err := e.CreateRecordStore("db.coll", false, 0, 0)
	require.NoError(t, err)
	for _, v := range vals {
		data, err := json.Marshal(map[string]int32{"a": v})
		require.NoError(t, err)
		_, err = rs.Insert(data)
		require.NoError(t, err)
	}
	return rs
}

func newCtx(ws *WorkingSet) *ExecContext {
	return NewExecContext(context.Background(), ws, NoYield, time.Time{}, nil)
}

func TestCollectionScanAndFilter(t *testing.T) {
	rs := seedStore(t, 1, 2, 3, 4)
	ws := NewWorkingSet()
	scan := NewCollectionScanStage(rs, jsonDecode, recordstore.Forward, 0)
	filtered := NewFilterStage(scan, func(d *document.Document) bool {
		v, _ := d.GetPath("a")
		f, _ := v.AsFloat64()
		return int(f)%2 == 0
	})
	ctx := newCtx(ws)
	var got []int
	for {
		state, id := filtered.Work(ctx)
		if state == StateIsEOF {
			break
		}
		require.Equal(t, StateAdvanced, state)
		m := ws.Get(id)
		v, _ := m.Doc.GetPath("a")
		f, _ := v.AsFloat64()
		got = append(got, int(f))
	}
	require.Equal(t, []int{2, 4}, got)
}

func TestLimitAndSkip(t *testing.T) {
	rs := seedStore(t, 10, 20, 30, 40, 50)
	ws := NewWorkingSet()
	scan := NewCollectionScanStage(rs, jsonDecode, recordstore.Forward, 0)
	skipped := NewSkipStage(scan, 1)
	limited := NewLimitStage(skipped, 2)
	ctx := newCtx(ws)
	var got []int
	for {
		state, id := limited.Work(ctx)
		if state == StateIsEOF {
			break
		}
		m := ws.Get(id)
		v, _ := m.Doc.GetPath("a")
		f, _ := v.AsFloat64()
		got = append(got, int(f))
	}
	require.Equal(t, []int{20, 30}, got)
}

func TestSortStage(t *testing.T) {
	rs := seedStore(t, 3, 1, 2)
	ws := NewWorkingSet()
	scan := NewCollectionScanStage(rs, jsonDecode, recordstore.Forward, 0)
	sorted := NewSortStage(scan, []SortKey{{Path: "a"}})
	ctx := newCtx(ws)
	var got []int
	for {
		state, id := sorted.Work(ctx)
		if state == StateIsEOF {
			break
		}
		m := ws.Get(id)
		v, _ := m.Doc.GetPath("a")
		f, _ := v.AsFloat64()
		got = append(got, int(f))
	}
	require.Equal(t, []int{1, 2, 3}, got)
}

func TestDeleteStage(t *testing.T) {
	rs := seedStore(t, 1, 2)
	ws := NewWorkingSet()
	scan := NewCollectionScanStage(rs, jsonDecode, recordstore.Forward, 0)
	del := NewDeleteStage(scan, rs)
	ctx := newCtx(ws)
	for {
		state, _ := del.Work(ctx)
		if state == StateIsEOF {
			break
		}
	}
	require.Equal(t, int64(2), del.Deleted())
	n, _ := rs.Count()
	require.Equal(t, int64(0), n)
}

func TestRegistryGetMoreAndKill(t *testing.T) {
	reg := NewRegistry(10, time.Minute)
	ws := NewWorkingSet()
	rs := seedStore(t, 1)
	scan := NewCollectionScanStage(rs, jsonDecode, recordstore.Forward, 0)
	id := reg.Register(scan, ws, "db.coll", "local", "find", nil)

	pc, err := reg.GetMore(id)
	require.NoError(t, err)
	require.Equal(t, id, pc.ID)
	reg.Detach(id)

	reg.KillCursors(id)
	_, err = reg.GetMore(id)
	require.Error(t, err)
}
