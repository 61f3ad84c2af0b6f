// Command router runs the query router role of spec §4.7/§4.9 (component
// C9): it accepts client commands, resolves their shard-key predicate
// against a config-server-backed catalog, and scatters/gathers the
// operation to the owning shard(s). Structurally this is
// cmd/coordinator/main.go's single-hop forwardGet/forwardPut/forwardDelete
// generalized to a multi-shard, version-aware dispatch — the "coordinator"
// role the teacher names is split in two here: cmd/configsvr owns catalog
// metadata, cmd/router owns request routing.
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/shardbase/shardbase/internal/catalog"
	"github.com/shardbase/shardbase/internal/cluster"
	"github.com/shardbase/shardbase/internal/config"
	sberrors "github.com/shardbase/shardbase/internal/errors"
	"github.com/shardbase/shardbase/internal/logging"
	"github.com/shardbase/shardbase/internal/router"
	"github.com/shardbase/shardbase/internal/wire"
)

var cli struct {
	Port         int    `help:"Listen port." default:"27020"`
	BindIP       string `help:"Bind address." default:"0.0.0.0"`
	ConfigSvrURL string `help:"Base URL of the config server (e.g. http://localhost:27019)." required:""`
	LogLevel     string `help:"Logger level." default:"info"`
	ConfigFile   string `help:"Optional TOML config file, layered under flags." name:"config"`
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
	cfg.Port = cli.Port
	cfg.BindIP = cli.BindIP
	cfg.LogLevel = cli.LogLevel

	if cfg.Port <= 0 || cfg.Port > 65535 {
		panic("router: invalid --port " + strconv.Itoa(cfg.Port))
	}

	zlog, err := logging.New(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer zlog.Sync() //nolint:errcheck

	cat := catalog.New()
	reg := newShardRegistry()
	rt := router.New(cat, &shardTransport{reg: reg, wire: wire.NewTransport()}, logging.Named(zlog, "router"))
	srv := &configSync{base: cli.ConfigSvrURL, cat: cat}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.HandleFunc("/register", handleRegister(reg))
	mux.HandleFunc("/cmd", handleRoute(rt, srv))

	httpSrv := &http.Server{
		Addr:              cli.BindIP + ":" + strconv.Itoa(cli.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		zlog.Infow("router listening", "addr", httpSrv.Addr, "configsvr", cli.ConfigSvrURL)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatalw("listen", "err", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		zlog.Warnw("shutdown error", "err", err)
	}
	zlog.Info("router stopped")
}

// shardRegistry is the router's copy of the teacher's coordinator node
// table (cmd/coordinator/main.go's in-memory node map), keyed by shard name
// instead of node ID.
type shardRegistry struct {
	mu   sync.RWMutex
	addr map[string]string
}

func newShardRegistry() *shardRegistry { return &shardRegistry{addr: make(map[string]string)} }

func (r *shardRegistry) set(shard, addr string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.addr[shard] = addr
}

func (r *shardRegistry) get(shard string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.addr[shard]
	return a, ok
}

type registerRequest struct {
	Shard string `json:"shard"`
	Addr  string `json:"addr"`
}

func handleRegister(reg *shardRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req registerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErr(w, err)
			return
		}
		reg.set(req.Shard, req.Addr)
		w.WriteHeader(http.StatusOK)
	}
}

// shardTransport implements router.Transport over the wire package's
// framed JSON command layer, resolving a shard name to its registered
// address.
type shardTransport struct {
	reg  *shardRegistry
	wire *wire.Transport
}

type dispatchBody struct {
	NS      string          `json:"ns"`
	Version catalog.Version `json:"version"`
	Op      json.RawMessage `json:"op"`
}

func (t *shardTransport) Dispatch(ctx context.Context, shard, ns string, callerVersion catalog.Version, op any) (any, error) {
	addr, ok := t.reg.get(shard)
	if !ok {
		return nil, sberrors.New(sberrors.CodeNamespaceInvalid, "no registered address for shard %s", shard)
	}
	rawOp, err := json.Marshal(op)
	if err != nil {
		return nil, err
	}
	body := dispatchBody{NS: ns, Version: callerVersion, Op: rawOp}
	reply, err := t.wire.Send(ctx, addr, "/cmd", ns, body)
	if err != nil {
		return nil, err
	}
	return reply.Body, nil
}

// configSync pulls the authoritative chunk set for a namespace from the
// config server on demand (spec §4.7: routers cache the catalog and
// refresh on demand/StaleConfig) rather than polling in the background —
// matching the teacher's synchronous per-request registry lookups in
// forwardGet/forwardPut/forwardDelete, just against a remote catalog
// instead of an in-process map.
type configSync struct {
	base string
	cat  *catalog.Catalog
}

func (s *configSync) refresh(ctx context.Context, ns string) error {
	var chunks []catalog.Chunk
	if err := cluster.PostJSON(ctx, s.base+"/catalog/chunks", map[string]string{"ns": ns}, &chunks); err != nil {
		return err
	}
	s.cat.SetChunks(ns, chunks)
	return nil
}

type routeRequest struct {
	NS        string          `json:"ns"`
	Predicate router.Predicate `json:"predicate"`
	Op        json.RawMessage `json:"op"`
}

func handleRoute(rt *router.Router, sync *configSync) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req routeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErr(w, err)
			return
		}

		ctx := r.Context()
		if err := sync.refresh(ctx, req.NS); err != nil {
			writeErr(w, err)
			return
		}

		targets, err := rt.TargetsForPredicate(req.NS, req.Predicate)
		if err != nil {
			writeErr(w, err)
			return
		}

		results, err := rt.ScatterGather(ctx, req.NS, targets, req.Op)
		if err != nil {
			writeErr(w, err)
			return
		}
		_ = json.NewEncoder(w).Encode(struct {
			OK      int   `json:"ok"`
			Results []any `json:"results"`
		}{1, results})
	}
}

func writeErr(w http.ResponseWriter, err error) {
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(wire.Fail(err))
}
