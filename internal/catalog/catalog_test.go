package catalog

import (
	"testing"

	"github.com/shardbase/shardbase/internal/document"
	"github.com/stretchr/testify/require"
)

func TestNewCollectionSpansWholeKeySpace(t *testing.T) {
	c := New()
	chunk := c.NewCollection("db.coll", "shard0")
	require.Equal(t, uint32(1), chunk.Version.Major)
	chunks := c.ChunksForNS("db.coll")
	require.Len(t, chunks, 1)
}

func TestSplitChunkBumpsVersions(t *testing.T) {
	c := New()
	c.NewCollection("db.coll", "shard0")
	splitKey := []document.Value{document.Int32(50)}
	left, right, err := c.SplitChunk("db.coll", splitKey)
	require.NoError(t, err)
	require.Equal(t, left.Version.Epoch, right.Version.Epoch)
	require.Equal(t, left.Version.Major, right.Version.Major)
	require.Equal(t, left.Version.Minor+1, right.Version.Minor)

	chunks := c.ChunksForNS("db.coll")
	require.Len(t, chunks, 2)
}

func TestMoveChunkBumpsMajorAndChangesShard(t *testing.T) {
	c := New()
	chunk := c.NewCollection("db.coll", "shard0")
	moved, err := c.MoveChunk("db.coll", chunk.Min, "shard1")
	require.NoError(t, err)
	require.Equal(t, "shard1", moved.Shard)
	require.Equal(t, chunk.Version.Major+1, moved.Version.Major)
}

func TestCollectionAndShardVersion(t *testing.T) {
	c := New()
	c.NewCollection("db.coll", "shard0")
	splitKey := []document.Value{document.Int32(50)}
	_, right, err := c.SplitChunk("db.coll", splitKey)
	require.NoError(t, err)
	_, err = c.MoveChunk("db.coll", right.Min, "shard1")
	require.NoError(t, err)

	collVer, err := c.CollectionVersion("db.coll")
	require.NoError(t, err)
	shard1Ver, err := c.ShardVersion("db.coll", "shard1")
	require.NoError(t, err)
	require.Equal(t, 0, collVer.Compare(shard1Ver))
}

func TestStaleVersionProtocol(t *testing.T) {
	local := Version{Major: 2, Minor: 0}
	same := local
	older := Version{Major: 1, Minor: 0}
	newer := Version{Major: 3, Minor: 0}

	require.Equal(t, VersionOK, CompareShardVersion(same, local))
	require.Equal(t, VersionStale, CompareShardVersion(older, local))
	require.Equal(t, VersionAhead, CompareShardVersion(newer, local))

	differentEpoch := Version{Major: 2, Minor: 0}
	differentEpoch.Epoch[0] = 1
	require.Equal(t, VersionStale, CompareShardVersion(differentEpoch, local))
}

func TestDropCollectionClearsChunks(t *testing.T) {
	c := New()
	c.NewCollection("db.coll", "shard0")
	c.DropCollection("db.coll")
	require.Empty(t, c.ChunksForNS("db.coll"))
}

func TestSetChunksReplacesNamespaceWholesale(t *testing.T) {
	c := New()
	c.NewCollection("db.coll", "shard0")

	replacement := []Chunk{
		{NS: "db.coll", Min: []document.Value{document.MinKey()}, Max: []document.Value{document.MaxKey()}, Shard: "shard1", Version: Version{Major: 5}},
	}
	c.SetChunks("db.coll", replacement)

	chunks := c.ChunksForNS("db.coll")
	require.Len(t, chunks, 1)
	require.Equal(t, "shard1", chunks[0].Shard)
	require.Equal(t, uint32(5), chunks[0].Version.Major)
}
