// Package router implements the stale-version protocol, scatter/gather,
// and sorted-merge logic of spec §4.7/§4.9 (component C9). It generalizes
// the teacher's cmd/coordinator/main.go forwardGet/forwardPut/forwardDelete
// — single-target HTTP proxies picked by consistent-hash key lookup — into
// a multi-shard router that computes its target set from internal/catalog
// chunk ranges instead of a hash, retries on StaleConfig, and merges
// results from more than one shard when the predicate spans chunks.
package router

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/shardbase/shardbase/internal/catalog"
	"github.com/shardbase/shardbase/internal/document"
	sberrors "github.com/shardbase/shardbase/internal/errors"
	"github.com/shardbase/shardbase/internal/logging"
)

// Predicate describes the shard-key constraint of one operation, per spec
// §4.7's "shard-key equality -> one shard; range -> possibly many; no
// shard-key predicate -> all shards".
type Predicate struct {
	// Equality, when non-nil, pins the op to the single chunk containing
	// this exact shard-key value.
	Equality []document.Value
	// Min/Max bound a range scan; both nil means "no shard-key predicate",
	// i.e. broadcast to every shard owning the namespace.
	Min, Max []document.Value
}

func (p Predicate) isBroadcast() bool { return p.Equality == nil && p.Min == nil && p.Max == nil }

// Target is one shard this op must be sent to, along with the shard
// version the router believes is current for it.
type Target struct {
	Shard   string
	Version catalog.Version
}

// Transport dispatches one op to one shard, returning StaleConfig (a
// *sberrors.Error with CodeStaleConfig) when the shard's version doesn't
// match what the caller presented.
type Transport interface {
	Dispatch(ctx context.Context, shard, ns string, callerVersion catalog.Version, op any) (any, error)
}

// Router computes target sets from the catalog and drives per-shard
// dispatch with stale-version retry, matching spec §4.7's router
// responsibilities.
type Router struct {
	cat       *catalog.Catalog
	transport Transport
	refresh   singleflight.Group
	maxRetry  int
	log       *logging.Logger
}

func New(cat *catalog.Catalog, transport Transport, log *logging.Logger) *Router {
	return &Router{cat: cat, transport: transport, maxRetry: 3, log: log}
}

// TargetsForPredicate computes the shard set an op touches, per spec
// §4.7: equality maps to the one owning chunk, a range maps to every
// chunk it intersects, and no predicate broadcasts to the whole
// namespace — the broadcast case also corresponds to spec §4.7's
// "multi-document updates/deletes without a shard-key predicate must be
// marked multi=true".
func (r *Router) TargetsForPredicate(ns string, p Predicate) ([]Target, error) {
	var shards []string
	switch {
	case p.Equality != nil:
		chunk, ok := r.cat.ChunkFor(ns, p.Equality)
		if !ok {
			return nil, sberrors.New(sberrors.CodeShardKeyNotFound, "no chunk owns shard key for %s", ns)
		}
		shards = []string{chunk.Shard}
	case p.isBroadcast():
		shards = r.cat.AllShards(ns)
	default:
		shards = r.cat.ShardsForRange(ns, p.Min, p.Max)
	}

	targets := make([]Target, 0, len(shards))
	for _, s := range shards {
		v, err := r.cat.ShardVersion(ns, s)
		if err != nil {
			return nil, err
		}
		targets = append(targets, Target{Shard: s, Version: v})
	}
	return targets, nil
}

// DispatchOne sends op to a single target, retrying on StaleConfig up to
// maxRetry times per spec §4.7 ("router reloads from the catalog and
// retries up to a bounded number of times"), refreshing its cached
// version via a singleflight-deduped catalog lookup so concurrent
// dispatches to the same (ns,shard) don't all hammer the catalog at once.
func (r *Router) DispatchOne(ctx context.Context, ns string, target Target, op any) (any, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, dispatchDeadline)
		defer cancel()
	}

	version := target.Version
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(r.maxRetry)), ctx)

	var result any
	err := backoff.Retry(func() error {
		res, dispatchErr := r.transport.Dispatch(ctx, target.Shard, ns, version, op)
		if dispatchErr == nil {
			result = res
			return nil
		}
		if sberrors.CodeOf(dispatchErr) != sberrors.CodeStaleConfig {
			return backoff.Permanent(dispatchErr)
		}
		refreshed, refreshErr := r.refreshVersion(ns, target.Shard)
		if refreshErr != nil {
			return backoff.Permanent(refreshErr)
		}
		version = refreshed
		if r.log != nil {
			r.log.Infow("stale shard version, retrying", "ns", ns, "shard", target.Shard, "refreshed", refreshed.String())
		}
		return dispatchErr
	}, bo)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *Router) refreshVersion(ns, shard string) (catalog.Version, error) {
	v, err, _ := r.refresh.Do(ns+"|"+shard, func() (any, error) {
		return r.cat.ShardVersion(ns, shard)
	})
	if err != nil {
		return catalog.Version{}, err
	}
	return v.(catalog.Version), nil
}

// ScatterGather fans an op out to every target concurrently via
// errgroup, per spec §4.7/§2's "C9 Router ... scatter/gather". The first
// non-stale-retry-exhausted error cancels the remaining dispatches.
func (r *Router) ScatterGather(ctx context.Context, ns string, targets []Target, op any) ([]any, error) {
	results := make([]any, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	for i, t := range targets {
		i, t := i, t
		g.Go(func() error {
			res, err := r.DispatchOne(gctx, ns, t, op)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// dispatchDeadline bounds one DispatchOne call, retries included, when the
// caller's context carries no deadline of its own, matching the teacher's
// forwardGet/forwardPut/forwardDelete's 5-second per-hop timeout.
const dispatchDeadline = 5 * time.Second
