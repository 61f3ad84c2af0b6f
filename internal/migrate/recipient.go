package migrate

import (
	"sync"

	"github.com/shardbase/shardbase/internal/document"
	sberrors "github.com/shardbase/shardbase/internal/errors"
)

// RecipientState mirrors the donor's view of recipient progress, per spec
// §4.8's "while recipient's reported state is not steady".
type RecipientState string

const (
	RecipientCatchup RecipientState = "catchup"
	RecipientSteady  RecipientState = "steady"
	RecipientFail    RecipientState = "fail"
)

// Recipient is the receiving shard's half of one migration, exposing the
// four RPC-shaped endpoints spec §4.8 names: _recvChunkStart,
// _transferMods, _recvChunkCommit, _recvChunkAbort.
type Recipient struct {
	mu sync.Mutex

	SessionID string
	NS        string
	Min, Max  []document.Value
	FromShard string

	state    RecipientState
	received int
	applyDoc func(*document.Document, bool) error // (doc, fromMigrate)
	deleteID func(document.Value) error
}

// NewRecipient implements _recvChunkStart: record the session, namespace,
// chunk bounds and donor shard, and begin accepting batches.
func NewRecipient(sessionID, ns string, min, max []document.Value, fromShard string, applyDoc func(*document.Document, bool) error, deleteID func(document.Value) error) *Recipient {
	return &Recipient{
		SessionID: sessionID,
		NS:        ns,
		Min:       min,
		Max:       max,
		FromShard: fromShard,
		state:     RecipientCatchup,
		applyDoc:  applyDoc,
		deleteID:  deleteID,
	}
}

// ApplyBatch applies one batch of cloned documents from the donor's
// locator-set scan. Duplicate-key on the recipient during clone is
// ignored (fromMigrate=true), per spec §4.8's "Duplicate-key on recipient
// during clone is ignored iff fromMigrate is set" — applyDoc is expected
// to honor that itself (it receives the fromMigrate flag).
func (r *Recipient) ApplyBatch(docs []*document.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range docs {
		if err := r.applyDoc(d, true); err != nil {
			code := sberrors.CodeOf(err)
			if code == sberrors.CodeDuplicateKey {
				continue
			}
			return err
		}
		r.received++
	}
	return nil
}

// ApplyTransferMods applies a _transferMods batch: reloaded docs are
// upserted, deleted ids are removed.
func (r *Recipient) ApplyTransferMods(reload []*document.Document, deleted []document.Value) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range reload {
		if err := r.applyDoc(d, true); err != nil && sberrors.CodeOf(err) != sberrors.CodeDuplicateKey {
			return err
		}
	}
	for _, id := range deleted {
		if err := r.deleteID(id); err != nil {
			return err
		}
	}
	return nil
}

// MarkSteady transitions to steady once the recipient believes it has
// caught up to the donor's current locator set and mods queue.
func (r *Recipient) MarkSteady() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = RecipientSteady
}

func (r *Recipient) State() RecipientState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Commit implements _recvChunkCommit: the recipient has all data and
// acknowledges cut-over.
func (r *Recipient) Commit() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = RecipientSteady
}

// Abort implements _recvChunkAbort: discard everything received for this
// session; the donor's chunk remains authoritative (spec §4.8 failure
// semantics).
func (r *Recipient) Abort() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = RecipientFail
}
