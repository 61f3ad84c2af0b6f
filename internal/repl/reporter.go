package repl

import (
	"context"
	"sync"
	"time"

	"github.com/shardbase/shardbase/internal/cluster"
)

// ProgressReport is what a secondary posts to its sync source (and, via
// ghost sync, on behalf of members chained further downstream).
type ProgressReport struct {
	MemberID    string `json:"memberId"`
	LastApplied int64  `json:"lastApplied"`
}

// Reporter is the "keep-alive-plus-trigger" task spec §4 names: it posts
// this member's progress to its sync source on a fixed cadence, but also
// fires immediately when triggered (e.g. right after applying a batch),
// so the source's write-concern waiters don't sit idle for a full cadence
// tick, generalizing the teacher's ticker+immediate-check pattern from
// internal/coordinator/health_monitor.go (Start does "perform initial
// check immediately" then tickers).
type Reporter struct {
	self       *Member
	sourceAddr string
	cadence    time.Duration

	trigger chan struct{}
	done    chan struct{}
	once    sync.Once
}

func NewReporter(self *Member, sourceAddr string, cadence time.Duration) *Reporter {
	return &Reporter{
		self:       self,
		sourceAddr: sourceAddr,
		cadence:    cadence,
		trigger:    make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
}

// Trigger requests an out-of-cadence report at the next opportunity.
func (r *Reporter) Trigger() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

func (r *Reporter) Stop() { r.once.Do(func() { close(r.done) }) }

// Run blocks, posting progress on every cadence tick or Trigger call,
// until Stop is called or ctx is done.
func (r *Reporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cadence)
	defer ticker.Stop()

	report := func() {
		reqCtx, cancel := context.WithTimeout(ctx, r.cadence)
		defer cancel()
		body := ProgressReport{MemberID: r.self.ID, LastApplied: r.self.LastApplied()}
		_ = cluster.PostJSON(reqCtx, "http://"+r.sourceAddr+"/repl/progress", body, nil)
	}

	report()
	for {
		select {
		case <-ticker.C:
			report()
		case <-r.trigger:
			report()
		case <-ctx.Done():
			return
		case <-r.done:
			return
		}
	}
}
