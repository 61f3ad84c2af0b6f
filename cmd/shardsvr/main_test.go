package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shardbase/shardbase/internal/dispatch"
	"github.com/shardbase/shardbase/internal/lock"
	"github.com/shardbase/shardbase/internal/oplog"
	"github.com/shardbase/shardbase/internal/repl"
	"github.com/shardbase/shardbase/internal/storage"
	"github.com/shardbase/shardbase/internal/wire"
	"github.com/stretchr/testify/require"
)

func TestHandleHeartbeatReturnsSecondaryByDefault(t *testing.T) {
	engine := storage.NewMemEngine()
	rs, err := engine.CreateRecordStore("local.oplog", true, 1<<20, 0)
	require.NoError(t, err)
	log, err := oplog.New(rs)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/repl/heartbeat", nil)
	w := httptest.NewRecorder()
	handleHeartbeat(log)(w, req)

	var reply repl.HeartbeatReply
	require.NoError(t, json.NewDecoder(w.Body).Decode(&reply))
	require.Equal(t, "secondary", reply.State)
}

func TestHandleCommandRejectsMalformedBody(t *testing.T) {
	d := dispatch.New(lock.NewManager(), nil, time.Second, nil)
	req := httptest.NewRequest(http.MethodPost, "/cmd", nil)
	w := httptest.NewRecorder()
	handleCommand(d)(w, req)

	var reply wire.CommandReply
	require.NoError(t, json.NewDecoder(w.Body).Decode(&reply))
	require.Equal(t, 0, reply.OK)
}
