// Package pipeline implements the dual-lane indexing pipeline scheduler: a
// process-local actor holding a Live queue (user-driven edits) and a
// Rebuild queue (bulk re-indexing), with weighted fair dispatch,
// coalescing, and drop accounting. Generalizes a single progress-tracked
// worker shape into a two-lane admission/dispatch actor guarded by one
// mutex and one condvar.
package pipeline

import (
	"sync"
)

// Lane identifies which of the two dispatch queues a WorkItem belongs to.
type Lane int

const (
	LaneLive Lane = iota
	LaneRebuild
)

func (l Lane) String() string {
	if l == LaneLive {
		return "live"
	}
	return "rebuild"
}

// DropReason is the coarse category of why an item was refused or removed.
type DropReason string

const (
	DropQueueFull   DropReason = "queue_full"
	DropMemorySoft  DropReason = "memory_soft"
	DropMemoryHard  DropReason = "memory_hard"
	DropWriterLag   DropReason = "writer_lag"
	DropStale       DropReason = "stale"
)

// WorkItem is one unit of indexing work. Epoch supports the stale-item
// cancellation scheme: an item is dropped at dispatch time if its Epoch no
// longer matches the scheduler's current epoch for its key.
type WorkItem struct {
	Key   string // e.g. item path; used for coalescing and staleness
	Epoch uint64
	Data  any
}

// Dispatched pairs a dequeued WorkItem with the lane it came from.
type Dispatched struct {
	Item WorkItem
	Lane Lane
}

// Config tunes queue caps and the live/rebuild dispatch ratio.
type Config struct {
	LiveCap            int
	RebuildCap         int
	LiveDispatchRatioPct int // default 70
}

// DefaultConfig returns the scheduler's documented defaults.
func DefaultConfig() Config {
	return Config{LiveCap: 10000, RebuildCap: 100000, LiveDispatchRatioPct: 70}
}

// Counters is the drop/dispatch/coalesce accounting the telemetry actor
// exposes verbatim in health snapshots.
type Counters struct {
	DroppedLive    int
	DroppedRebuild int
	DroppedByReason map[DropReason]int
	Coalesced      int
	StaleDropped   int
	DispatchedLive    int
	DispatchedRebuild int
}

// Scheduler is the two-lane actor. One mutex protects all state; one
// condvar (cond) is the sole suspension point for dequeueBlocking, per the
// "protected by one mutex and one condvar" design note.
type Scheduler struct {
	cfg Config

	mu   sync.Mutex
	cond *sync.Cond

	liveQueue    []WorkItem
	rebuildQueue []WorkItem
	liveKeys     map[string]int // key -> index in liveQueue, for coalescing
	rebuildKeys  map[string]int

	epochs map[string]uint64 // current epoch per key, for stale detection

	dispatchCycle int
	shuttingDown  bool
	counters      Counters
}

// New creates a scheduler with the given configuration.
func New(cfg Config) *Scheduler {
	s := &Scheduler{
		cfg:         cfg,
		liveKeys:    make(map[string]int),
		rebuildKeys: make(map[string]int),
		epochs:      make(map[string]uint64),
		counters:    Counters{DroppedByReason: make(map[DropReason]int)},
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Enqueue admits item into the destination lane's queue, coalescing with
// an existing same-key entry if present. Returns false if the item was
// rejected (shutting down or queue at cap).
func (s *Scheduler) Enqueue(item WorkItem, lane Lane) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shuttingDown {
		return false
	}

	s.epochs[item.Key]++
	item.Epoch = s.epochs[item.Key]

	switch lane {
	case LaneLive:
		if idx, ok := s.liveKeys[item.Key]; ok {
			s.liveQueue[idx] = item
			s.counters.Coalesced++
			s.cond.Signal()
			return true
		}
		if len(s.liveQueue) >= s.cfg.LiveCap {
			s.counters.DroppedLive++
			s.counters.DroppedByReason[DropQueueFull]++
			return false
		}
		s.liveKeys[item.Key] = len(s.liveQueue)
		s.liveQueue = append(s.liveQueue, item)
	case LaneRebuild:
		if idx, ok := s.rebuildKeys[item.Key]; ok {
			s.rebuildQueue[idx] = item
			s.counters.Coalesced++
			s.cond.Signal()
			return true
		}
		if len(s.rebuildQueue) >= s.cfg.RebuildCap {
			s.counters.DroppedRebuild++
			s.counters.DroppedByReason[DropQueueFull]++
			return false
		}
		s.rebuildKeys[item.Key] = len(s.rebuildQueue)
		s.rebuildQueue = append(s.rebuildQueue, item)
	}
	s.cond.Signal()
	return true
}

// RecordSoftMemoryDrop / RecordHardMemoryDrop / RecordWriterLagDrop let the
// writer-side backpressure logic attribute a drop to its actual cause
// without the scheduler needing to know about memory pressure itself.
func (s *Scheduler) RecordSoftMemoryDrop() { s.recordReason(DropMemorySoft) }
func (s *Scheduler) RecordHardMemoryDrop() { s.recordReason(DropMemoryHard) }
func (s *Scheduler) RecordWriterLagDrop()  { s.recordReason(DropWriterLag) }

func (s *Scheduler) recordReason(reason DropReason) {
	s.mu.Lock()
	s.counters.DroppedByReason[reason]++
	s.mu.Unlock()
}

// DequeueBlocking waits while neither lane has work (and the scheduler is
// not shutting/stopping/paused), then pops and returns the next item. It
// returns (Dispatched{}, false) once Shutdown has been called and no more
// work will ever be dispatched.
func (s *Scheduler) DequeueBlocking(stopping, paused func() bool) (Dispatched, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for !s.shuttingDown && (stopping == nil || !stopping()) && (paused == nil || !paused()) &&
		len(s.liveQueue) == 0 && len(s.rebuildQueue) == 0 {
		s.cond.Wait()
	}

	if s.shuttingDown && len(s.liveQueue) == 0 && len(s.rebuildQueue) == 0 {
		return Dispatched{}, false
	}
	if (stopping != nil && stopping()) || (paused != nil && paused()) {
		return Dispatched{}, false
	}

	return s.popNextLocked()
}

// popNextLocked implements the weighted dispatch: if one lane is empty,
// pop the other; otherwise use dispatchCycle % 100 against the configured
// live ratio. Caller must hold s.mu.
func (s *Scheduler) popNextLocked() (Dispatched, bool) {
	var lane Lane
	switch {
	case len(s.liveQueue) == 0 && len(s.rebuildQueue) == 0:
		return Dispatched{}, false
	case len(s.liveQueue) == 0:
		lane = LaneRebuild
	case len(s.rebuildQueue) == 0:
		lane = LaneLive
	default:
		slot := s.dispatchCycle % 100
		if slot < s.cfg.LiveDispatchRatioPct {
			lane = LaneLive
		} else {
			lane = LaneRebuild
		}
		s.dispatchCycle++
	}

	item := s.popLocked(lane)

	// Stale items (a newer enqueue for the same key has bumped the epoch
	// past what this dispatch holds) are dropped rather than dispatched.
	if s.epochs[item.Key] != item.Epoch {
		s.counters.StaleDropped++
		return s.popNextLocked()
	}

	if lane == LaneLive {
		s.counters.DispatchedLive++
	} else {
		s.counters.DispatchedRebuild++
	}
	return Dispatched{Item: item, Lane: lane}, true
}

func (s *Scheduler) popLocked(lane Lane) WorkItem {
	if lane == LaneLive {
		item := s.liveQueue[0]
		s.liveQueue = s.liveQueue[1:]
		delete(s.liveKeys, item.Key)
		for k := range s.liveKeys {
			s.liveKeys[k]--
		}
		return item
	}
	item := s.rebuildQueue[0]
	s.rebuildQueue = s.rebuildQueue[1:]
	delete(s.rebuildKeys, item.Key)
	for k := range s.rebuildKeys {
		s.rebuildKeys[k]--
	}
	return item
}

// Shutdown sets the shutdown flag and wakes every waiter so every pending
// DequeueBlocking call returns (Dispatched{}, false).
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	s.shuttingDown = true
	s.mu.Unlock()
	s.cond.Broadcast()
}

// Snapshot returns a copy of the current accounting counters plus queue
// depths, for the telemetry actor / health snapshot.
type Snapshot struct {
	Counters
	LiveDepth    int
	RebuildDepth int
}

func (s *Scheduler) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	byReason := make(map[DropReason]int, len(s.counters.DroppedByReason))
	for k, v := range s.counters.DroppedByReason {
		byReason[k] = v
	}
	c := s.counters
	c.DroppedByReason = byReason
	return Snapshot{Counters: c, LiveDepth: len(s.liveQueue), RebuildDepth: len(s.rebuildQueue)}
}
