package repl

import (
	"sync"
)

// VoteRequest is what a candidate sends every other voting member.
type VoteRequest struct {
	Term        int64
	CandidateID string
	LastApplied int64
}

// VoteReply is a voter's answer.
type VoteReply struct {
	Term    int64
	Granted bool
}

// Ballot tracks per-term voting so a member never grants two votes in the
// same term (spec §4.6: "A voter grants at most one vote per term").
type Ballot struct {
	mu        sync.Mutex
	votedTerm map[int64]string
}

func NewBallot() *Ballot { return &Ballot{votedTerm: make(map[int64]string)} }

// Vote decides whether to grant req, preferring the candidate with the
// highest last-applied ts and breaking ties by member id, per spec §4.6.
func (b *Ballot) Vote(req VoteRequest, selfLastApplied int64, selfID string) VoteReply {
	b.mu.Lock()
	defer b.mu.Unlock()

	if existing, voted := b.votedTerm[req.Term]; voted && existing != req.CandidateID {
		return VoteReply{Term: req.Term, Granted: false}
	}

	if req.LastApplied < selfLastApplied {
		return VoteReply{Term: req.Term, Granted: false}
	}
	if req.LastApplied == selfLastApplied && req.CandidateID < selfID {
		return VoteReply{Term: req.Term, Granted: false}
	}

	b.votedTerm[req.Term] = req.CandidateID
	return VoteReply{Term: req.Term, Granted: true}
}

// Election drives one member's candidacy: increment term, request votes
// from every other voting member, and become primary on a strict majority
// (spec §4.6).
type Election struct {
	self        *Member
	requestVote func(memberID string, req VoteRequest) (VoteReply, error)
}

func NewElection(self *Member, requestVote func(memberID string, req VoteRequest) (VoteReply, error)) *Election {
	return &Election{self: self, requestVote: requestVote}
}

// Run attempts to win votes[term] a majority among voters (a list of other
// member IDs with voting rights; self counts as one additional vote).
// Returns true and transitions self to PRIMARY on success.
func (e *Election) Run(voters []string) (bool, error) {
	newTerm := e.self.Term() + 1
	e.self.SetTerm(newTerm)

	req := VoteRequest{Term: newTerm, CandidateID: e.self.ID, LastApplied: e.self.LastApplied()}

	granted := 1 // self-vote
	for _, voterID := range voters {
		reply, err := e.requestVote(voterID, req)
		if err != nil {
			continue
		}
		if reply.Term > newTerm {
			e.self.SetTerm(reply.Term)
			continue
		}
		if reply.Granted {
			granted++
		}
	}

	total := len(voters) + 1
	if granted*2 <= total {
		return false, nil
	}
	if err := e.self.Transition(StatePrimary); err != nil {
		return false, err
	}
	return true, nil
}

// ShouldStandForElection reports whether self is electable and should
// start a campaign, per spec §4.6's election trigger ("has not heard from
// a primary within the election timeout and is electable").
func ShouldStandForElection(self *Member, maxLagSeconds, leaderLastApplied int64) bool {
	switch self.State() {
	case StateSecondary:
		return self.Electable(maxLagSeconds, leaderLastApplied)
	default:
		return false
	}
}
