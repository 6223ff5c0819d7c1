// Package learning implements the learning core: behavior attribution,
// a training-example store, a cycle scheduler, promotion gates, and the
// online-ranker serving blend. It has no teacher analog — its counter
// bookkeeping follows the same running-tally shape used elsewhere in
// this tree, and its promotion gates reuse internal/errors/circuit.go's
// gate-composition-as-predicates shape.
package learning

import (
	"sync"
	"time"
)

// RolloutMode is the top-level policy enum for the personalization ranker.
// Ordered: instrumentation_only < shadow_training < blended_ranking.
type RolloutMode string

const (
	RolloutInstrumentationOnly RolloutMode = "instrumentation_only"
	RolloutShadowTraining      RolloutMode = "shadow_training"
	RolloutBlendedRanking      RolloutMode = "blended_ranking"
)

func (m RolloutMode) valid() bool {
	switch m {
	case RolloutInstrumentationOnly, RolloutShadowTraining, RolloutBlendedRanking:
		return true
	}
	return false
}

// rank gives a total order so callers can compare "below blended_ranking".
func (m RolloutMode) rank() int {
	switch m {
	case RolloutInstrumentationOnly:
		return 0
	case RolloutShadowTraining:
		return 1
	case RolloutBlendedRanking:
		return 2
	}
	return -1
}

// IdleCycleReason is the mutually-exclusive reason ladder evaluated after
// every recorded behavior event and on every scheduler tick.
type IdleCycleReason string

const (
	ReasonNone                      IdleCycleReason = ""
	ReasonRolloutModeBlocksTraining IdleCycleReason = "rollout_mode_blocks_training"
	ReasonUserRecentlyActive        IdleCycleReason = "user_recently_active"
	ReasonCooldownActive            IdleCycleReason = "cooldown_active"
	ReasonNotEnoughExamples         IdleCycleReason = "not_enough_training_examples"
	ReasonLearningDisabled          IdleCycleReason = "learning_disabled"
)

// BehaviorEvent is the input to RecordBehaviorEvent (§3 Interaction /
// Behavior event, §4.6).
type BehaviorEvent struct {
	EventID              string
	EventType            string
	Source               string
	Timestamp            time.Time
	ItemID               int64
	ItemPath             string
	Query                string
	AppBundleID          string
	ContextEventID       string
	ActivityDigest       string
	AttributionConfidence float64
	InputMeta            map[string]string
	PrivacyFlags         PrivacyFlags
}

// PrivacyFlags mirrors the four flags from §3; any set flag excludes the
// event from attribution entirely.
type PrivacyFlags struct {
	SecureInput     bool
	PrivateContext  bool
	DenylistedApp   bool
	Redacted        bool
}

func (f PrivacyFlags) anySet() bool {
	return f.SecureInput || f.PrivateContext || f.DenylistedApp || f.Redacted
}

// positiveEventTypes are the behavior event types that count as a positive
// signal when attribution confidence clears the configured threshold.
var positiveEventTypes = map[string]bool{
	"result_open": true,
}

// RecordResult is the return shape of RecordBehaviorEvent.
type RecordResult struct {
	Recorded           bool
	FilteredOut        bool
	AttributedPositive bool
	IdleCycleTriggered bool
	IdleCycleReason    IdleCycleReason
}

// TrainingExample mirrors the spec.md §3 "Training example" entity.
type TrainingExample struct {
	SampleID              string
	Query                 string
	ItemID                int64
	Features              map[string]float64
	Label                 int
	Weight                float64
	AttributionConfidence float64
	Consumed              bool
	CreatedAt             time.Time
}

// Config holds the tunable thresholds driving event ingestion and the idle
// cycle gate.
type Config struct {
	AttributionConfidenceThreshold float64
	PauseOnUserInput               bool
	CooldownWindow                 time.Duration
	MinPendingExamples             int
	LearningEnabled                bool
}

// DefaultConfig returns sensible defaults matching spec.md's documented
// behavior.
func DefaultConfig() Config {
	return Config{
		AttributionConfidenceThreshold: 0.5,
		PauseOnUserInput:               true,
		CooldownWindow:                 30 * time.Minute,
		MinPendingExamples:             50,
		LearningEnabled:                true,
	}
}

// Core owns all learning-layer state: rollout mode, seen event ids
// (idempotency), pending training examples, counters, and the scheduler.
type Core struct {
	mu sync.Mutex

	cfg         Config
	rolloutMode RolloutMode

	seenEventIDs map[string]struct{}

	pendingExamples []TrainingExample
	positiveCount   int
	eventCount      int

	lastCycleCompletedAt time.Time

	scheduler *Scheduler
	model     *ModelState
}

// NewCore creates a Core in instrumentation_only mode with no model.
func NewCore(cfg Config) *Core {
	return &Core{
		cfg:          cfg,
		rolloutMode:  RolloutInstrumentationOnly,
		seenEventIDs: make(map[string]struct{}),
		model:        NewModelState(),
	}
}

// SetRolloutMode validates and applies mode, returning an error for
// invalid values (INVALID_PARAMS with message "invalid_rollout_mode" at the
// IPC boundary; state is left unchanged here too).
func (c *Core) SetRolloutMode(mode RolloutMode) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !mode.valid() {
		return errInvalidRolloutMode
	}
	c.rolloutMode = mode
	return nil
}

// RolloutMode returns the current rollout mode.
func (c *Core) RolloutMode() RolloutMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rolloutMode
}

var errInvalidRolloutMode = &invalidRolloutModeError{}

type invalidRolloutModeError struct{}

func (e *invalidRolloutModeError) Error() string { return "invalid_rollout_mode" }

// RecordBehaviorEvent ingests one behavior event (§4.6). Duplicate
// EventIDs and any privacy flag set are no-ops w.r.t. every counter.
func (c *Core) RecordBehaviorEvent(ev BehaviorEvent) RecordResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, seen := c.seenEventIDs[ev.EventID]; seen {
		return RecordResult{Recorded: false, FilteredOut: false, AttributedPositive: false}
	}

	if ev.PrivacyFlags.anySet() {
		return RecordResult{Recorded: false, FilteredOut: true, AttributedPositive: false}
	}

	c.seenEventIDs[ev.EventID] = struct{}{}
	c.eventCount++

	attributed := false
	if positiveEventTypes[ev.EventType] && ev.AttributionConfidence >= c.cfg.AttributionConfidenceThreshold {
		attributed = true
		c.positiveCount++
		c.pendingExamples = append(c.pendingExamples, TrainingExample{
			SampleID:              ev.EventID,
			Query:                 ev.Query,
			ItemID:                ev.ItemID,
			Label:                 1,
			Weight:                1.0,
			AttributionConfidence: ev.AttributionConfidence,
			CreatedAt:             ev.Timestamp,
		})
	}

	reason := c.idleCycleReasonLocked(isUserActivity(ev))
	triggered := reason == ReasonNone

	return RecordResult{
		Recorded:           true,
		FilteredOut:        false,
		AttributedPositive: attributed,
		IdleCycleTriggered: triggered,
		IdleCycleReason:    reason,
	}
}

// isUserActivity reports whether the event itself represents direct user
// input activity (as opposed to an automated/background signal).
func isUserActivity(ev BehaviorEvent) bool {
	return ev.Source == "user_input"
}

// idleCycleReasonLocked evaluates the mutually-exclusive reason ladder.
// Caller must hold c.mu.
func (c *Core) idleCycleReasonLocked(userActivity bool) IdleCycleReason {
	if c.rolloutMode == RolloutInstrumentationOnly {
		return ReasonRolloutModeBlocksTraining
	}
	if c.cfg.PauseOnUserInput && userActivity {
		return ReasonUserRecentlyActive
	}
	if !c.lastCycleCompletedAt.IsZero() && time.Since(c.lastCycleCompletedAt) < c.cfg.CooldownWindow {
		return ReasonCooldownActive
	}
	if c.pendingCountLocked() < c.cfg.MinPendingExamples {
		return ReasonNotEnoughExamples
	}
	if !c.cfg.LearningEnabled {
		return ReasonLearningDisabled
	}
	return ReasonNone
}

func (c *Core) pendingCountLocked() int {
	n := 0
	for _, ex := range c.pendingExamples {
		if !ex.Consumed {
			n++
		}
	}
	return n
}

// Counters is the snapshot of learning counters exposed in learningHealth.
type Counters struct {
	Events          int
	PositiveExamples int
	PendingExamples int
}

// Snapshot returns current counters.
func (c *Core) Snapshot() Counters {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Counters{Events: c.eventCount, PositiveExamples: c.positiveCount, PendingExamples: c.pendingCountLocked()}
}

// Model returns the core's model state.
func (c *Core) Model() *ModelState { return c.model }

// MarkCycleCompleted stamps the cooldown clock; called by the training
// cycle after it finishes (success or rejection).
func (c *Core) MarkCycleCompleted(at time.Time) {
	c.mu.Lock()
	c.lastCycleCompletedAt = at
	c.mu.Unlock()
}

// PendingExamples returns a snapshot copy of unconsumed training examples.
func (c *Core) PendingExamples() []TrainingExample {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]TrainingExample, 0, len(c.pendingExamples))
	for _, ex := range c.pendingExamples {
		if !ex.Consumed {
			out = append(out, ex)
		}
	}
	return out
}

// ConsumeExamples marks the given sample ids as consumed, pulling them out
// of the pending pool after a training cycle composes its batch.
func (c *Core) ConsumeExamples(sampleIDs map[string]bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.pendingExamples {
		if sampleIDs[c.pendingExamples[i].SampleID] {
			c.pendingExamples[i].Consumed = true
		}
	}
}
