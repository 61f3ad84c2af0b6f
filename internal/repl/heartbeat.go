package repl

import (
	"context"
	"sync"
	"time"

	"github.com/shardbase/shardbase/internal/cluster"
	"github.com/shardbase/shardbase/internal/logging"
	"github.com/shardbase/shardbase/internal/task"
)

// HeartbeatReply is the payload a member returns to a heartbeat request,
// generalizing torua's plain /health 200-or-error check into the richer
// replica-set heartbeat of spec §4.6 (state, term, last-applied ts).
type HeartbeatReply struct {
	MemberID    string `json:"memberId"`
	State       string `json:"state"`
	Term        int64  `json:"term"`
	LastApplied int64  `json:"lastApplied"`
	SetName     string `json:"setName"`
}

// Monitor periodically heartbeats every known member over HTTP and feeds
// results back into this process's view of the set, generalizing
// internal/coordinator/health_monitor.go's ticker-driven poll loop
// (consecutive-failure counting, onUnhealthy callback) into replica-set
// terms: state transitions to DOWN after maxFailures, and a registered
// onPrimaryLost callback drives election (spec §4.6).
type Monitor struct {
	mu      sync.RWMutex
	members map[string]*Member
	fails   map[string]int

	interval      time.Duration
	timeout       time.Duration
	maxFailures   int
	onPrimaryLost func()

	log *logging.Logger
	t   *task.Task
}

func NewMonitor(interval, timeout time.Duration, maxFailures int, log *logging.Logger) *Monitor {
	return &Monitor{
		members:     make(map[string]*Member),
		fails:       make(map[string]int),
		interval:    interval,
		timeout:     timeout,
		maxFailures: maxFailures,
		log:         log,
	}
}

func (m *Monitor) AddMember(mem *Member) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.members[mem.ID] = mem
}

func (m *Monitor) RemoveMember(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.members, id)
	delete(m.fails, id)
}

func (m *Monitor) OnPrimaryLost(fn func()) { m.onPrimaryLost = fn }

// Start launches the heartbeat loop through the shared internal/task
// scheduler, per spec §9's requirement that the reporter/fetcher/tailer/
// migration coordinator all route through one cooperative task model.
func (m *Monitor) Start(ctx context.Context) {
	m.t = task.New("repl-heartbeat", m.interval, func(tctx context.Context) error {
		m.beatAll(tctx)
		return nil
	})
	m.t.Start(ctx)
}

func (m *Monitor) Stop() {
	if m.t != nil {
		m.t.Cancel()
	}
}

func (m *Monitor) beatAll(ctx context.Context) {
	m.mu.RLock()
	members := make([]*Member, 0, len(m.members))
	for _, mem := range m.members {
		members = append(members, mem)
	}
	m.mu.RUnlock()

	hadPrimary := false
	for _, mem := range members {
		if mem.State() == StatePrimary {
			hadPrimary = true
		}
		m.beatOne(ctx, mem)
	}
	if hadPrimary && !m.anyPrimary() && m.onPrimaryLost != nil {
		go m.onPrimaryLost()
	}
}

func (m *Monitor) anyPrimary() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, mem := range m.members {
		if mem.State() == StatePrimary {
			return true
		}
	}
	return false
}

func (m *Monitor) beatOne(parent context.Context, mem *Member) {
	ctx, cancel := context.WithTimeout(parent, m.timeout)
	defer cancel()

	var reply HeartbeatReply
	err := cluster.GetJSON(ctx, "http://"+mem.Host+"/repl/heartbeat", &reply)

	m.mu.Lock()
	defer m.mu.Unlock()

	if err != nil {
		m.fails[mem.ID]++
		if m.fails[mem.ID] >= m.maxFailures {
			if mem.State() != StateDown {
				if tErr := mem.Transition(StateDown); tErr == nil && m.log != nil {
					m.log.Infow("member marked down", "member", mem.ID, "failures", m.fails[mem.ID])
				}
			}
		}
		return
	}

	m.fails[mem.ID] = 0
	mem.SetTerm(reply.Term)
	mem.SetLastApplied(reply.LastApplied)
}
