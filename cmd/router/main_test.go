package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shardbase/shardbase/internal/catalog"
	"github.com/stretchr/testify/require"
)

func TestHandleRegisterStoresShardAddress(t *testing.T) {
	reg := newShardRegistry()
	body, err := json.Marshal(registerRequest{Shard: "shard-a", Addr: "127.0.0.1:27018"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/register", bytes.NewReader(body))
	w := httptest.NewRecorder()
	handleRegister(reg)(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	addr, ok := reg.get("shard-a")
	require.True(t, ok)
	require.Equal(t, "127.0.0.1:27018", addr)
}

func TestHandleRegisterRejectsMalformedBody(t *testing.T) {
	reg := newShardRegistry()
	req := httptest.NewRequest(http.MethodPost, "/register", nil)
	w := httptest.NewRecorder()
	handleRegister(reg)(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestShardTransportDispatchErrorsOnUnknownShard(t *testing.T) {
	tr := &shardTransport{reg: newShardRegistry()}
	_, err := tr.Dispatch(context.Background(), "missing-shard", "db.coll", catalog.Version{}, map[string]any{"find": "coll"})
	require.Error(t, err)
}
