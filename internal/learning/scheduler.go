package learning

import (
	"sync"
	"time"
)

// Scheduler re-evaluates the idle-cycle reason ladder on a timer tick,
// independent of behavior-event ingestion, and accumulates per-reason
// counts. Invariant: sum(reasonCounts) == ticks at all times.
type Scheduler struct {
	core *Core

	mu           sync.Mutex
	interval     time.Duration
	ticks        int
	reasonCounts map[IdleCycleReason]int
	lastTickAt   time.Time

	stop chan struct{}
	done chan struct{}
}

// NewScheduler creates a scheduler bound to core, ticking every interval.
func NewScheduler(core *Core, interval time.Duration) *Scheduler {
	return &Scheduler{
		core:         core,
		interval:     interval,
		reasonCounts: make(map[IdleCycleReason]int),
	}
}

// SetInterval overrides the tick interval (test hook, per §4.6 scheduler
// description).
func (s *Scheduler) SetInterval(d time.Duration) {
	s.mu.Lock()
	s.interval = d
	s.mu.Unlock()
}

// Start begins the ticking goroutine. Stop must be called to release it.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.stop != nil {
		s.mu.Unlock()
		return
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.loop()
}

func (s *Scheduler) loop() {
	defer close(s.done)
	for {
		s.mu.Lock()
		interval := s.interval
		s.mu.Unlock()

		timer := time.NewTimer(interval)
		select {
		case <-s.stop:
			timer.Stop()
			return
		case <-timer.C:
			s.Tick()
		}
	}
}

// Stop halts the ticking goroutine.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	stop := s.stop
	s.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-s.done
}

// Tick re-evaluates the reason ladder once, incrementing ticks and the
// matching reasonCounts bucket.
func (s *Scheduler) Tick() IdleCycleReason {
	s.core.mu.Lock()
	reason := s.core.idleCycleReasonLocked(false)
	s.core.mu.Unlock()

	s.mu.Lock()
	s.ticks++
	s.reasonCounts[reason]++
	s.lastTickAt = time.Now()
	s.mu.Unlock()

	return reason
}

// SchedulerSnapshot is the observer-facing counter set.
type SchedulerSnapshot struct {
	Ticks        int
	ReasonCounts map[IdleCycleReason]int
	LastTickAtMs int64
}

// Snapshot returns a copy of the scheduler's counters.
func (s *Scheduler) Snapshot() SchedulerSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[IdleCycleReason]int, len(s.reasonCounts))
	sum := 0
	for k, v := range s.reasonCounts {
		counts[k] = v
		sum += v
	}
	return SchedulerSnapshot{Ticks: s.ticks, ReasonCounts: counts, LastTickAtMs: s.lastTickAt.UnixMilli()}
}

// Scheduler attaches lazily to Core via Core.AttachScheduler so Core.Model
// etc. need not know about it at construction time.
func (c *Core) AttachScheduler(interval time.Duration) *Scheduler {
	s := NewScheduler(c, interval)
	c.mu.Lock()
	c.scheduler = s
	c.mu.Unlock()
	return s
}

// SchedulerOrNil returns the attached scheduler, if any.
func (c *Core) SchedulerOrNil() *Scheduler {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scheduler
}
