package router

import (
	"context"
	"testing"

	"github.com/shardbase/shardbase/internal/catalog"
	"github.com/shardbase/shardbase/internal/document"
	sberrors "github.com/shardbase/shardbase/internal/errors"
	"github.com/stretchr/testify/require"
)

func TestTargetsForEqualityPredicateResolvesOneShard(t *testing.T) {
	cat := catalog.New()
	cat.NewCollection("db.coll", "shard0")
	r := New(cat, nil, nil)

	targets, err := r.TargetsForPredicate("db.coll", Predicate{Equality: []document.Value{document.Int32(5)}})
	require.NoError(t, err)
	require.Len(t, targets, 1)
	require.Equal(t, "shard0", targets[0].Shard)
}

func TestTargetsForBroadcastReturnsAllShards(t *testing.T) {
	cat := catalog.New()
	cat.NewCollection("db.coll", "shard0")
	splitKey := []document.Value{document.Int32(50)}
	_, right, err := cat.SplitChunk("db.coll", splitKey)
	require.NoError(t, err)
	_, err = cat.MoveChunk("db.coll", right.Min, "shard1")
	require.NoError(t, err)

	r := New(cat, nil, nil)
	targets, err := r.TargetsForPredicate("db.coll", Predicate{})
	require.NoError(t, err)
	require.Len(t, targets, 2)
}

type fakeTransport struct {
	calls    int
	staleFor int // number of calls that return StaleConfig before succeeding
	cat      *catalog.Catalog
	ns       string
	shard    string
}

func (f *fakeTransport) Dispatch(ctx context.Context, shard, ns string, callerVersion catalog.Version, op any) (any, error) {
	f.calls++
	if f.calls <= f.staleFor {
		return nil, sberrors.New(sberrors.CodeStaleConfig, "stale")
	}
	return "ok", nil
}

func TestDispatchOneRetriesOnStaleConfig(t *testing.T) {
	cat := catalog.New()
	cat.NewCollection("db.coll", "shard0")
	target := Target{Shard: "shard0"}
	v, err := cat.ShardVersion("db.coll", "shard0")
	require.NoError(t, err)
	target.Version = v

	ft := &fakeTransport{staleFor: 1}
	r := New(cat, ft, nil)
	res, err := r.DispatchOne(context.Background(), "db.coll", target, "op")
	require.NoError(t, err)
	require.Equal(t, "ok", res)
	require.Equal(t, 2, ft.calls)
}

func TestScatterGatherCollectsAllResults(t *testing.T) {
	cat := catalog.New()
	cat.NewCollection("db.coll", "shard0")
	splitKey := []document.Value{document.Int32(50)}
	_, right, err := cat.SplitChunk("db.coll", splitKey)
	require.NoError(t, err)
	_, err = cat.MoveChunk("db.coll", right.Min, "shard1")
	require.NoError(t, err)

	ft := &fakeTransport{}
	r := New(cat, ft, nil)
	targets, err := r.TargetsForPredicate("db.coll", Predicate{})
	require.NoError(t, err)

	results, err := r.ScatterGather(context.Background(), "db.coll", targets, "op")
	require.NoError(t, err)
	require.Len(t, results, 2)
}

func docWithField(name string, v document.Value) *document.Document {
	return document.NewDocument(document.Field{Name: name, Value: v})
}

func TestSortedMergeOrdersAcrossShards(t *testing.T) {
	shardA := []*document.Document{docWithField("n", document.Int32(1)), docWithField("n", document.Int32(5))}
	shardB := []*document.Document{docWithField("n", document.Int32(2)), docWithField("n", document.Int32(3))}

	merged := SortedMerge([][]*document.Document{shardA, shardB}, []SortKey{{Path: "n"}})
	require.Len(t, merged, 4)
	var got []int32
	for _, d := range merged {
		v, _ := d.GetPath("n")
		n, _ := v.AsInt32()
		got = append(got, n)
	}
	require.Equal(t, []int32{1, 2, 3, 5}, got)
}

func TestInterleaveRoundRobins(t *testing.T) {
	shardA := []*document.Document{docWithField("n", document.Int32(1)), docWithField("n", document.Int32(2))}
	shardB := []*document.Document{docWithField("n", document.Int32(10))}

	out := Interleave([][]*document.Document{shardA, shardB})
	require.Len(t, out, 3)
}
