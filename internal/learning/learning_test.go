package learning

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSetRolloutModeRejectsInvalidValue(t *testing.T) {
	c := NewCore(DefaultConfig())
	err := c.SetRolloutMode(RolloutMode("bogus"))
	require.Error(t, err)
	require.Equal(t, "invalid_rollout_mode", err.Error())
	require.Equal(t, RolloutInstrumentationOnly, c.RolloutMode())
}

// TestBehaviorDuplicateIdempotency: replaying the same eventId 11 times
// only records once.
func TestBehaviorDuplicateIdempotency(t *testing.T) {
	c := NewCore(DefaultConfig())
	require.NoError(t, c.SetRolloutMode(RolloutShadowTraining))

	ev := BehaviorEvent{
		EventID:               "e1",
		EventType:             "result_open",
		AttributionConfidence: 0.9,
		Timestamp:             time.Now(),
	}

	first := c.RecordBehaviorEvent(ev)
	require.True(t, first.Recorded)
	require.False(t, first.FilteredOut)
	require.True(t, first.AttributedPositive)

	before := c.Snapshot()
	for i := 0; i < 10; i++ {
		dup := c.RecordBehaviorEvent(ev)
		require.False(t, dup.Recorded)
		require.False(t, dup.FilteredOut)
		require.False(t, dup.AttributedPositive)
	}
	after := c.Snapshot()
	require.Equal(t, before, after)
}

// TestPrivacyExclusion: any set privacy flag yields recorded=false,
// filteredOut=true and doesn't advance counters.
func TestPrivacyExclusion(t *testing.T) {
	c := NewCore(DefaultConfig())
	require.NoError(t, c.SetRolloutMode(RolloutShadowTraining))

	before := c.Snapshot()
	res := c.RecordBehaviorEvent(BehaviorEvent{
		EventID:               "e2",
		EventType:             "result_open",
		AttributionConfidence: 0.9,
		PrivacyFlags:          PrivacyFlags{SecureInput: true},
	})
	require.False(t, res.Recorded)
	require.True(t, res.FilteredOut)
	require.False(t, res.AttributedPositive)
	require.Equal(t, before, c.Snapshot())
}

func TestIdleCycleReasonLadder(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinPendingExamples = 1000
	c := NewCore(cfg)

	// instrumentation_only always blocks.
	res := c.RecordBehaviorEvent(BehaviorEvent{EventID: "a", EventType: "result_open", AttributionConfidence: 0.9})
	require.Equal(t, ReasonRolloutModeBlocksTraining, res.IdleCycleReason)

	require.NoError(t, c.SetRolloutMode(RolloutShadowTraining))
	res = c.RecordBehaviorEvent(BehaviorEvent{EventID: "b", EventType: "result_open", AttributionConfidence: 0.9})
	// Not enough examples yet (threshold set very high).
	require.Equal(t, ReasonNotEnoughExamples, res.IdleCycleReason)
}

func TestSchedulerReasonCountsSumEqualsTicks(t *testing.T) {
	c := NewCore(DefaultConfig())
	s := c.AttachScheduler(time.Hour)
	for i := 0; i < 25; i++ {
		s.Tick()
	}
	snap := s.Snapshot()
	require.Equal(t, 25, snap.Ticks)
	sum := 0
	for _, v := range snap.ReasonCounts {
		sum += v
	}
	require.Equal(t, snap.Ticks, sum)
}

// TestRolloutGatingBelowBlended is spec.md §8 scenario 4 (serving half): under modes
// below blended_ranking, serving must never be allowed/applied.
func TestRolloutGatingBelowBlended(t *testing.T) {
	c := NewCore(DefaultConfig())
	c.model.Promote(map[string]float64{"f": 1.0}, BackendNativeSGD)

	require.NoError(t, c.SetRolloutMode(RolloutInstrumentationOnly))
	d := c.Decide()
	require.False(t, d.ServingAllowed)
	require.False(t, d.Applied)

	require.NoError(t, c.SetRolloutMode(RolloutShadowTraining))
	d = c.Decide()
	require.False(t, d.ServingAllowed)
	require.False(t, d.Applied)

	_, delta := c.Blend(0.5, map[string]float64{"f": 1.0}, 0.3)
	require.InDelta(t, 0, delta, 1e-9)
}

func TestRolloutGatingBlendedRankingAppliesNonZeroDelta(t *testing.T) {
	c := NewCore(DefaultConfig())
	c.model.Promote(map[string]float64{"f": 5.0}, BackendNativeSGD)
	require.NoError(t, c.SetRolloutMode(RolloutBlendedRanking))

	d := c.Decide()
	require.True(t, d.ServingAllowed)
	require.True(t, d.Applied)

	_, delta := c.Blend(0.5, map[string]float64{"f": 1.0}, 0.3)
	require.NotZero(t, delta)
}

func TestServingFallsBackWhenNoModelAvailable(t *testing.T) {
	c := NewCore(DefaultConfig())
	require.NoError(t, c.SetRolloutMode(RolloutBlendedRanking))
	d := c.Decide()
	require.True(t, d.FallbackMissingModel)
	require.False(t, d.ServingAllowed)
}

func TestPromotionPersistenceVersions(t *testing.T) {
	m := NewModelState()
	before := m.Snapshot()
	m.Promote(map[string]float64{"a": 1}, BackendNativeSGD)
	after := m.Snapshot()

	require.Equal(t, before.ActiveVersion, after.RollbackVersion)
	require.Equal(t, before.ActiveVersion+1, after.ActiveVersion)
	require.Equal(t, BackendNativeSGD, after.ActiveBackend)
}

func TestGateLadderReturnsFirstFailingReason(t *testing.T) {
	gates := BuildGates(DefaultGateThresholds())
	ok, reason := RunGates(gates, EvalResult{PositiveCount: 0, Loss: 0, EvalMetric: 0.9})
	require.False(t, ok)
	require.Equal(t, "promotion_attribution_gate_min_positive_count", reason)
}

func TestGateLadderPassesWhenEverythingClears(t *testing.T) {
	gates := BuildGates(DefaultGateThresholds())
	ok, reason := RunGates(gates, EvalResult{
		PositiveCount: 100, AttributedRate: 1, ContextDigestRate: 1,
		Loss: 0.1, EvalMetric: 0.9, LatencyRegressionRatio: 1.0,
		PredictionFailureRate: 0, SaturationRate: 0,
	})
	require.True(t, ok)
	require.Empty(t, reason)
}

func TestTriggerLearningCyclePromotesOnPass(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinPendingExamples = 1
	c := NewCore(cfg)
	require.NoError(t, c.SetRolloutMode(RolloutShadowTraining))

	for i := 0; i < 30; i++ {
		c.RecordBehaviorEvent(BehaviorEvent{
			EventID: "pos-" + itoa(i), EventType: "result_open",
			AttributionConfidence: 0.9, Timestamp: time.Now(),
		})
	}
	for i := range c.pendingExamples {
		c.pendingExamples[i].Features = map[string]float64{"clicked": 1}
	}

	trainCfg := DefaultTrainingConfig()
	trainCfg.Thresholds.MinPositiveCount = 5
	trainCfg.Thresholds.MinAttributedRate = 0
	trainCfg.Thresholds.MinContextDigestRate = 0

	negSampler := func(count int) []TrainingExample {
		out := make([]TrainingExample, count)
		for i := range out {
			out[i] = TrainingExample{SampleID: "neg-" + itoa(i), Label: 0, Features: map[string]float64{"clicked": 0}}
		}
		return out
	}

	rec := c.TriggerLearningCycle(trainCfg, negSampler, time.Now())
	require.Equal(t, CycleSucceeded, rec.Status)
	require.True(t, c.model.Snapshot().ModelAvailable)
}

func itoa(i int) string {
	digits := "0123456789"
	if i == 0 {
		return "0"
	}
	out := ""
	for i > 0 {
		out = string(digits[i%10]) + out
		i /= 10
	}
	return out
}
