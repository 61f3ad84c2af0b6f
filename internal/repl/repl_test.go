package repl

import (
	"encoding/json"
	"testing"

	"github.com/shardbase/shardbase/internal/oplog"
	"github.com/stretchr/testify/require"
)

func TestMemberStateTransitions(t *testing.T) {
	m := NewMember("m1", "localhost:1", 1, 1)
	require.Equal(t, StateStartup, m.State())
	require.NoError(t, m.Transition(StateStartup2))
	require.NoError(t, m.Transition(StateSecondary))
	require.Error(t, m.Transition(StateStartup)) // illegal: secondary cannot go back to startup
}

func TestBallotOneVotePerTerm(t *testing.T) {
	b := NewBallot()
	r1 := b.Vote(VoteRequest{Term: 1, CandidateID: "a", LastApplied: 10}, 5, "self")
	require.True(t, r1.Granted)
	r2 := b.Vote(VoteRequest{Term: 1, CandidateID: "b", LastApplied: 10}, 5, "self")
	require.False(t, r2.Granted)
}

func TestBallotPrefersHigherLastApplied(t *testing.T) {
	b := NewBallot()
	r := b.Vote(VoteRequest{Term: 1, CandidateID: "a", LastApplied: 3}, 10, "self")
	require.False(t, r.Granted)
}

func TestElectionWinsOnMajority(t *testing.T) {
	self := NewMember("self", "h", 1, 1)
	require.NoError(t, self.Transition(StateStartup2))
	require.NoError(t, self.Transition(StateSecondary))
	self.SetLastApplied(100)

	requestVote := func(id string, req VoteRequest) (VoteReply, error) {
		return VoteReply{Term: req.Term, Granted: true}, nil
	}
	e := NewElection(self, requestVote)
	won, err := e.Run([]string{"b", "c"})
	require.NoError(t, err)
	require.True(t, won)
	require.Equal(t, StatePrimary, self.State())
}

func TestElectionLosesWithoutMajority(t *testing.T) {
	self := NewMember("self", "h", 1, 1)
	require.NoError(t, self.Transition(StateStartup2))
	require.NoError(t, self.Transition(StateSecondary))

	requestVote := func(id string, req VoteRequest) (VoteReply, error) {
		return VoteReply{Term: req.Term, Granted: false}, nil
	}
	e := NewElection(self, requestVote)
	won, err := e.Run([]string{"b", "c"})
	require.NoError(t, err)
	require.False(t, won)
	require.Equal(t, StateSecondary, self.State())
}

func TestCommandRollbackPolicyDropIsFullRefetch(t *testing.T) {
	body, _ := json.Marshal(map[string]string{"drop": "coll"})
	e := oplog.Entry{NS: "db.coll", Op: oplog.OpCommand, O: body}
	undo := CommandRollbackPolicy(e, "drop")
	require.Equal(t, "refetch-collection", undo.Kind)
}

func TestCommandRollbackPolicyUnknownCommandIsNoop(t *testing.T) {
	undo := CommandRollbackPolicy(oplog.Entry{NS: "db.coll"}, "collStats")
	require.Equal(t, "reapply-noop", undo.Kind)
}

func TestMajorityCommittedPicksMedian(t *testing.T) {
	others := []GhostProgress{{MemberID: "b", LastApplied: 50}, {MemberID: "c", LastApplied: 20}}
	committed := MajorityCommitted(100, others, 3)
	require.Equal(t, int64(50), committed)
}

func TestGhostTrackerIgnoresStaleReport(t *testing.T) {
	g := NewGhostTracker()
	g.Record("x", 10)
	g.Record("x", 5)
	snap := g.Snapshot()
	require.Len(t, snap, 1)
	require.Equal(t, int64(10), snap[0].LastApplied)
}
