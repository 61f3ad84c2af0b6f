// Command configsvr runs the config catalog role of spec §2: the
// authoritative store of chunk/collection/shard metadata that the router
// and shards consult. The teacher's two-role cluster (node + coordinator)
// has no analogue for this third role; the HTTP health endpoint and
// graceful-shutdown shape of cmd/coordinator/main.go are reused here. The
// catalog lives in this one process's memory; --repl-set is recorded in
// the config, but the catalog is not replicated.
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/shardbase/shardbase/internal/catalog"
	"github.com/shardbase/shardbase/internal/config"
	"github.com/shardbase/shardbase/internal/document"
	sberrors "github.com/shardbase/shardbase/internal/errors"
	"github.com/shardbase/shardbase/internal/logging"
)

var cli struct {
	DBPath     string `help:"Data directory." required:""`
	Port       int    `help:"Listen port." default:"27019"`
	BindIP     string `help:"Bind address." default:"0.0.0.0"`
	ReplSet    string `help:"Replica set name."`
	LogLevel   string `help:"Logger level." default:"info"`
	ConfigFile string `help:"Optional TOML config file, layered under flags." name:"config"`
}

func main() {
	kong.Parse(&cli)
	cfg := config.Default()
	var err error
	if cli.ConfigFile != "" {
		cfg, err = config.LoadFile(cli.ConfigFile, cfg)
		if err != nil {
			panic(err)
		}
	}
	cfg.DBPath = cli.DBPath
	cfg.Port = cli.Port
	cfg.BindIP = cli.BindIP
	cfg.ReplSet = cli.ReplSet
	cfg.ConfigSvr = true
	cfg.LogLevel = cli.LogLevel

	if err := cfg.Validate(); err != nil {
		panic(err)
	}

	zlog, err := logging.New(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer zlog.Sync() //nolint:errcheck

	cat := catalog.New()

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.HandleFunc("/catalog/chunks", handleChunks(cat))
	mux.HandleFunc("/catalog/split", handleSplit(cat))
	mux.HandleFunc("/catalog/move", handleMove(cat))

	srv := &http.Server{
		Addr:              cfg.BindIP + ":" + strconv.Itoa(cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		zlog.Infow("configsvr listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatalw("listen", "err", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		zlog.Warnw("shutdown error", "err", err)
	}
	zlog.Info("configsvr stopped")
}

type chunksQuery struct {
	NS string `json:"ns"`
}

func handleChunks(cat *catalog.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var q chunksQuery
		if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
			writeErr(w, err)
			return
		}
		_ = json.NewEncoder(w).Encode(cat.ChunksForNS(q.NS))
	}
}

type splitRequest struct {
	NS       string            `json:"ns"`
	SplitKey []document.Value `json:"splitKey"`
}

func handleSplit(cat *catalog.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req splitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErr(w, err)
			return
		}
		left, right, err := cat.SplitChunk(req.NS, req.SplitKey)
		if err != nil {
			writeErr(w, err)
			return
		}
		_ = json.NewEncoder(w).Encode(struct {
			Left, Right catalog.Chunk
		}{left, right})
	}
}

type moveRequest struct {
	NS       string           `json:"ns"`
	Min      []document.Value `json:"min"`
	NewShard string           `json:"newShard"`
}

func handleMove(cat *catalog.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req moveRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErr(w, err)
			return
		}
		moved, err := cat.MoveChunk(req.NS, req.Min, req.NewShard)
		if err != nil {
			writeErr(w, err)
			return
		}
		_ = json.NewEncoder(w).Encode(moved)
	}
}

func writeErr(w http.ResponseWriter, err error) {
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(struct {
		OK     int    `json:"ok"`
		Code   int    `json:"code"`
		ErrMsg string `json:"errmsg"`
	}{0, int(sberrors.CodeOf(err)), err.Error()})
}
