// Package cluster provides the node-to-node JSON-over-HTTP transport shared
// by every role in the cluster (config server, shard server, router).
//
// # Overview
//
// Where the teacher used this package to back a single coordinator's
// request forwarding plus a registration/broadcast DTO layer, the
// coordinator and its membership protocol are gone — every role here talks
// directly to the peers it needs (router to shard, router to config
// server) over its own request shapes, and this package keeps only the
// plumbing both of those need:
//
//   - internal/wire.Transport.Send posts commands from router to shard as
//     plain JSON bodies using PostJSON, under the {ok,code,errmsg}
//     command-reply contract (spec §6).
//   - cmd/router's configSync pulls chunk metadata from the config server
//     with PostJSON; its shardRegistry is filled from {shard,addr} bodies
//     POSTed to the router's /register endpoint.
//
// # Concurrency and failure handling
//
// PostJSON/GetJSON share one package-level *http.Client with a 5-second
// timeout; callers needing a different timeout should set one on the
// context they pass in, since the client itself has no per-call override.
// Both functions are safe for concurrent use.
package cluster
