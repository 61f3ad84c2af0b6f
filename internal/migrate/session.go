package migrate

import (
	"github.com/shardbase/shardbase/internal/catalog"
	sberrors "github.com/shardbase/shardbase/internal/errors"
)

// Session pairs a Donor and the catalog mutation its cut-over performs,
// wiring internal/catalog.MoveChunk into Donor.Commit's critical-section
// step per spec §4.8's "catalog CAS failure" failure mode.
type Session struct {
	Donor   *Donor
	Cat     *catalog.Catalog
}

func NewSession(d *Donor, cat *catalog.Catalog) *Session {
	return &Session{Donor: d, Cat: cat}
}

// CutOver drives the kCritical -> kDone transition: blocks writes to the
// chunk range (left to the caller's lock acquisition), performs the
// catalog move, and only then commits the donor state. A catalog failure
// aborts the migration rather than leaving the donor stuck in kCritical.
func (s *Session) CutOver() (catalog.Chunk, error) {
	if s.Donor.State() != DonorCritical {
		return catalog.Chunk{}, sberrors.New(sberrors.CodeInvariantFailure, "cut-over requires kCritical, got %s", s.Donor.State())
	}
	moved, err := s.Cat.MoveChunk(s.Donor.NS, s.Donor.Min, s.Donor.ToShard)
	if err != nil {
		s.Donor.Abort()
		return catalog.Chunk{}, sberrors.Wrap(err, sberrors.CodeStaleConfig, "cut-over catalog move failed for %s", s.Donor.NS)
	}
	if !s.Donor.Commit() {
		return catalog.Chunk{}, sberrors.New(sberrors.CodeInvariantFailure, "donor commit rejected after catalog move")
	}
	return moved, nil
}
