package repl

import (
	"encoding/json"
	"testing"

	"github.com/shardbase/shardbase/internal/document"
	"github.com/shardbase/shardbase/internal/oplog"
	"github.com/stretchr/testify/require"
)

// TestCommandNameOfPicksFirstFieldRegardlessOfKeyCount guards against a map
// iteration regression: the command name is whichever field was written
// first in the oplog entry, not whichever key a map happens to yield first.
func TestCommandNameOfPicksFirstFieldRegardlessOfKeyCount(t *testing.T) {
	e := oplog.Entry{O: json.RawMessage(`{"create":"db.coll","capped":true,"size":1000,"max":10}`)}
	require.Equal(t, "create", commandNameOf(e))
}

func TestCommandNameOfEmptyDocument(t *testing.T) {
	require.Equal(t, "", commandNameOf(oplog.Entry{O: json.RawMessage(`{}`)}))
}

func TestCommandNameOfMalformedJSON(t *testing.T) {
	require.Equal(t, "", commandNameOf(oplog.Entry{O: json.RawMessage(`not json`)}))
}

func TestComputePlanRoutesCommandThroughCommandNameOf(t *testing.T) {
	divergent := []oplog.Entry{
		{Op: oplog.OpCommand, NS: "db.coll", O: json.RawMessage(`{"create":"db.coll","capped":true,"size":1000}`)},
	}
	plan := ComputePlan(document.Timestamp{}, divergent)
	require.Len(t, plan.Undo, 1)
	require.Equal(t, "refetch-collection", plan.Undo[0].Kind)
	require.Equal(t, "create", plan.Undo[0].Detail)
}
