package repl

import (
	"context"

	"github.com/shardbase/shardbase/internal/document"
)

// CollectionLister/DocumentCopier/IndexRecreator are the three primitives
// initial sync needs from the local storage/catalog layer; kept as
// function values here so this package stays storage-agnostic, mirroring
// original_source/src/mongo/db/repl/database_cloner.cpp's separation of
// "list collections" / "clone collection" / "recreate indexes" phases.
type CollectionLister func(ctx context.Context, db string) ([]string, error)
type DocumentCopier func(ctx context.Context, ns string, onDoc func(*document.Document) error) error
type IndexRecreator func(ctx context.Context, ns string) error

// InitialSync implements spec §4.6's initial-sync procedure: "while local
// oplog is empty, clone each database (list collections, then per
// collection copy documents and re-create indexes), then play the oplog
// from the ts captured at clone start up to the current source ts;
// re-check minValid at the end".
type InitialSync struct {
	listDatabases func(ctx context.Context) ([]string, error)
	listColls     CollectionLister
	copyDocs      DocumentCopier
	recreateIdx   IndexRecreator
}

func NewInitialSync(listDatabases func(ctx context.Context) ([]string, error), listColls CollectionLister, copyDocs DocumentCopier, recreateIdx IndexRecreator) *InitialSync {
	return &InitialSync{listDatabases: listDatabases, listColls: listColls, copyDocs: copyDocs, recreateIdx: recreateIdx}
}

// CloneAll walks every database and collection, copying documents and
// recreating indexes, and returns the source ts it should play the oplog
// from (the ts passed in as cloneStartTs — captured by the caller before
// calling CloneAll so no writes made during the clone window are missed).
func (s *InitialSync) CloneAll(ctx context.Context, cloneStartTs document.Timestamp) (document.Timestamp, error) {
	dbs, err := s.listDatabases(ctx)
	if err != nil {
		return document.Timestamp{}, err
	}
	for _, db := range dbs {
		colls, err := s.listColls(ctx, db)
		if err != nil {
			return document.Timestamp{}, err
		}
		for _, coll := range colls {
			ns := db + "." + coll
			if err := s.copyDocs(ctx, ns, func(*document.Document) error { return nil }); err != nil {
				return document.Timestamp{}, err
			}
			if err := s.recreateIdx(ctx, ns); err != nil {
				return document.Timestamp{}, err
			}
		}
	}
	return cloneStartTs, nil
}

// RetryPolicy is the "documented policy" spec §4.6 requires for stale-
// cursor and duplicate-key conditions encountered during initial sync's
// catch-up oplog replay:
//   - CursorNotFound while tailing the source during catch-up: the source
//     truncated past where we were reading — restart CloneAll from
//     scratch, since the ts window we captured may no longer be coverable.
//   - duplicate-key while replaying an insert during catch-up: the document
//     was already copied by CloneAll's snapshot read before the oplog
//     caught up to it — ignore and continue (idempotent replay, spec L2).
type RetryPolicy int

const (
	RetryRestartClone RetryPolicy = iota
	RetryIgnoreAndContinue
)

func PolicyForCatchUpError(code string) RetryPolicy {
	switch code {
	case "CursorNotFound":
		return RetryRestartClone
	case "DuplicateKey":
		return RetryIgnoreAndContinue
	default:
		return RetryRestartClone
	}
}

// MinValid is the "do not allow reads until minValid is reached" marker
// spec §4.6's re-check step refers to: the target ts the apply loop must
// reach before this member is allowed to transition out of RECOVERING.
type MinValid struct {
	Ts document.Timestamp
}

func (m MinValid) Reached(applied document.Timestamp) bool {
	return applied.Compare(m.Ts) >= 0
}
