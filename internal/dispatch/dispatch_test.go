package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/shardbase/shardbase/internal/document"
	"github.com/shardbase/shardbase/internal/lock"
	"github.com/stretchr/testify/require"
)

type fakeProfile struct{ entries []ProfileEntry }

func (f *fakeProfile) RecordProfile(e ProfileEntry) error {
	f.entries = append(f.entries, e)
	return nil
}

func TestDispatchRejectsUnauthorizedPrincipal(t *testing.T) {
	d := New(lock.NewManager(), nil, time.Second, nil)
	principal := Principal{Name: "alice", Actions: map[string]bool{"read": true}}
	cmd := Command{
		Kind: OpQuery, Name: "find", NS: "db.coll", Database: "db",
		RequiredActions: []string{"write"},
		Handler:         func(context.Context) (*document.Document, error) { return nil, nil },
	}
	_, err := d.Dispatch(context.Background(), "sess1", principal, cmd)
	require.Error(t, err)
}

func TestDispatchAcquiresDeclaredLock(t *testing.T) {
	d := New(lock.NewManager(), nil, time.Second, nil)
	principal := Principal{Name: "alice", Actions: map[string]bool{"write": true}}
	called := false
	cmd := Command{
		Kind: OpInsert, Name: "insert", NS: "db.coll", Database: "db",
		RequiredActions: []string{"write"},
		Lock:            LockCollectionX,
		Handler: func(context.Context) (*document.Document, error) {
			called = true
			return document.NewDocument(), nil
		},
	}
	_, err := d.Dispatch(context.Background(), "sess1", principal, cmd)
	require.NoError(t, err)
	require.True(t, called)
	require.Equal(t, int64(1), d.Counters().Snapshot().Inserts)
}

func TestDispatchRecordsSlowOpProfile(t *testing.T) {
	fp := &fakeProfile{}
	d := New(lock.NewManager(), fp, 0, nil)
	principal := Principal{Name: "alice"}
	cmd := Command{
		Kind: OpQuery, Name: "find", NS: "db.coll", Database: "db",
		Handler: func(context.Context) (*document.Document, error) {
			time.Sleep(time.Millisecond)
			return nil, nil
		},
	}
	_, err := d.Dispatch(context.Background(), "sess1", principal, cmd)
	require.NoError(t, err)
	require.Len(t, fp.entries, 1)
}

func TestCurrentOpStackTracksNesting(t *testing.T) {
	d := New(lock.NewManager(), nil, time.Second, nil)
	principal := Principal{Name: "alice"}
	var nestedStack []OpFrame
	cmd := Command{
		Kind: OpCommand, Name: "eval", NS: "db.coll",
		Handler: func(context.Context) (*document.Document, error) {
			nestedStack = d.CurrentOpStack("sess1")
			return nil, nil
		},
	}
	_, err := d.Dispatch(context.Background(), "sess1", principal, cmd)
	require.NoError(t, err)
	require.Len(t, nestedStack, 1)
	require.Equal(t, "eval", nestedStack[0].Command)
	require.Empty(t, d.CurrentOpStack("sess1"))
}

func TestCountersOverflowResets(t *testing.T) {
	c := NewCounters()
	c.inserts = overflowResetThreshold - 1
	c.Record(OpInsert)
	require.Equal(t, int64(0), c.Snapshot().Inserts)
}
