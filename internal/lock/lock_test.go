package lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSharedLocksCompatible(t *testing.T) {
	m := NewManager()
	h1, ok := m.TryLock(Global, S)
	require.True(t, ok)
	h2, ok := m.TryLock(Global, S)
	require.True(t, ok)
	h1.Unlock()
	h2.Unlock()
}

func TestExclusiveExcludesShared(t *testing.T) {
	m := NewManager()
	h1, ok := m.TryLock(Resource("db.coll"), X)
	require.True(t, ok)
	_, ok = m.TryLock(Resource("db.coll"), S)
	require.False(t, ok)
	h1.Unlock()
	_, ok = m.TryLock(Resource("db.coll"), S)
	require.True(t, ok)
}

func TestLockBlocksUntilReleased(t *testing.T) {
	m := NewManager()
	h1, ok := m.TryLock(Resource("db.coll"), X)
	require.True(t, ok)

	go func() {
		time.Sleep(20 * time.Millisecond)
		h1.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	h2, err := m.Lock(ctx, Resource("db.coll"), X)
	require.NoError(t, err)
	h2.Unlock()
}

func TestLockTimesOutOnCancel(t *testing.T) {
	m := NewManager()
	h1, ok := m.TryLock(Resource("db.coll"), X)
	require.True(t, ok)
	defer h1.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := m.Lock(ctx, Resource("db.coll"), X)
	require.Error(t, err)
}
