package migrate

import (
	"testing"

	"github.com/shardbase/shardbase/internal/catalog"
	"github.com/shardbase/shardbase/internal/document"
	"github.com/shardbase/shardbase/internal/recordstore"
	sberrors "github.com/shardbase/shardbase/internal/errors"
	"github.com/stretchr/testify/require"
)

func TestDonorStateMachineHappyPath(t *testing.T) {
	d := NewDonor("db.coll", []document.Value{document.Int32(0)}, []document.Value{document.Int32(100)}, "shard0", "shard1", "sess-1")
	require.Equal(t, DonorNew, d.State())

	require.True(t, d.StartCloning([]recordstore.Locator{1}))
	require.Equal(t, DonorCloning, d.State())

	require.False(t, d.EnterCritical(), "locator set non-empty, must refuse kCritical")
	d.Locators.Remove(recordstore.Locator(1))
	require.True(t, d.EnterCritical())
	require.Equal(t, DonorCritical, d.State())

	require.True(t, d.Commit())
	require.Equal(t, DonorDone, d.State())
}

func TestDonorAbortFromAnyNonTerminalState(t *testing.T) {
	d := NewDonor("db.coll", nil, nil, "shard0", "shard1", "sess-2")
	require.True(t, d.Abort())
	require.Equal(t, DonorAborted, d.State())
	require.False(t, d.StartCloning(nil), "no transition out of a terminal state")
}

func TestModsQueueDrainAndSize(t *testing.T) {
	q := NewModsQueue()
	q.RecordReload(document.Int32(1), 100)
	q.RecordReload(document.Int32(2), 200)
	q.RecordDeleted(document.Int32(3))
	require.Equal(t, int64(300), q.Size())

	reload, deleted, size := q.Drain()
	require.Len(t, reload, 2)
	require.Len(t, deleted, 1)
	require.Equal(t, int64(300), size)

	require.Equal(t, int64(0), q.Size(), "drain clears the queue")
}

func TestMemoryPressureExceededDoesNotDrain(t *testing.T) {
	d := NewDonor("db.coll", nil, nil, "shard0", "shard1", "sess-3")
	d.Mods.RecordReload(document.Int32(1), MemoryPressureThresholdBytes+1)

	require.True(t, d.MemoryPressureExceeded())
	// Checking pressure must not be destructive: a later _transferMods
	// call still needs to see the queued entry.
	reload, _, _ := d.Mods.Drain()
	require.Len(t, reload, 1)
}

func TestLocatorSetNextBatchRespectsMaxBytes(t *testing.T) {
	locs := []recordstore.Locator{1, 2, 3}
	ls := NewLocatorSet(locs)
	sizeOf := func(recordstore.Locator) int64 { return 400 }

	batch := ls.NextBatch(1000, sizeOf)
	require.Len(t, batch, 2, "third entry would exceed maxBytes")
	require.False(t, ls.Empty())

	rest := ls.NextBatch(1000, sizeOf)
	require.Len(t, rest, 1)
	require.True(t, ls.Empty())
}

func TestRecipientApplyBatchIgnoresDuplicateKeyDuringClone(t *testing.T) {
	var applied []string
	applyDoc := func(d *document.Document, fromMigrate bool) error {
		require.True(t, fromMigrate)
		if d.Len() == 0 {
			return sberrors.New(sberrors.CodeDuplicateKey, "dup")
		}
		applied = append(applied, "ok")
		return nil
	}
	r := NewRecipient("sess-1", "db.coll", nil, nil, "shard0", applyDoc, func(document.Value) error { return nil })

	good := document.NewDocument()
	good.Append("a", document.Int32(1))
	dup := document.NewDocument()

	err := r.ApplyBatch([]*document.Document{good, dup})
	require.NoError(t, err)
	require.Len(t, applied, 1)
}

func TestRecipientTransferModsAppliesReloadsAndDeletes(t *testing.T) {
	var deletedIDs []document.Value
	applyDoc := func(*document.Document, bool) error { return nil }
	deleteID := func(id document.Value) error {
		deletedIDs = append(deletedIDs, id)
		return nil
	}
	r := NewRecipient("sess-1", "db.coll", nil, nil, "shard0", applyDoc, deleteID)

	doc := document.NewDocument()
	doc.Append("a", document.Int32(1))
	err := r.ApplyTransferMods([]*document.Document{doc}, []document.Value{document.Int32(7)})
	require.NoError(t, err)
	require.Len(t, deletedIDs, 1)
}

func TestSessionCutOverMovesChunkAndCommitsDonor(t *testing.T) {
	cat := catalog.New()
	chunk := cat.NewCollection("db.coll", "shard0")

	d := NewDonor("db.coll", chunk.Min, chunk.Max, "shard0", "shard1", "sess-1")
	require.True(t, d.StartCloning(nil))
	require.True(t, d.EnterCritical())

	sess := NewSession(d, cat)
	moved, err := sess.CutOver()
	require.NoError(t, err)
	require.Equal(t, "shard1", moved.Shard)
	require.Equal(t, DonorDone, d.State())
}

func TestSessionCutOverRejectsOutsideCriticalSection(t *testing.T) {
	cat := catalog.New()
	cat.NewCollection("db.coll", "shard0")
	d := NewDonor("db.coll", nil, nil, "shard0", "shard1", "sess-1")

	sess := NewSession(d, cat)
	_, err := sess.CutOver()
	require.Error(t, err)
}
