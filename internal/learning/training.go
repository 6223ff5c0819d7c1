package learning

import (
	"math"
	"time"
)

// TrainingConfig tunes one cycle's batch composition and optimization.
type TrainingConfig struct {
	MaxTrainingBatchSize int
	NegativeSampleRatio  float64 // resolved open question: default 1.0
	Epochs               int
	LearningRate         float64
	Thresholds           GateThresholds
}

// DefaultTrainingConfig returns the spec's documented defaults plus the
// resolved negative-sampling ratio from SPEC_FULL.md §9.
func DefaultTrainingConfig() TrainingConfig {
	return TrainingConfig{
		MaxTrainingBatchSize: 500,
		NegativeSampleRatio:  1.0,
		Epochs:               5,
		LearningRate:         0.05,
		Thresholds:           DefaultGateThresholds(),
	}
}

// NegativeSampler supplies negative training examples (items not opened for
// a given query); the query-service core wires this against its store.
type NegativeSampler func(count int) []TrainingExample

// TriggerLearningCycle composes a batch, trains, evaluates, and promotes or
// rejects per the gate ladder (§4.6). Returns the resulting CycleRecord.
func (c *Core) TriggerLearningCycle(cfg TrainingConfig, sampleNegatives NegativeSampler, now time.Time) CycleRecord {
	positives := c.PendingExamples()

	negCount := int(float64(len(positives)) * cfg.NegativeSampleRatio)
	var negatives []TrainingExample
	if sampleNegatives != nil && negCount > 0 {
		negatives = sampleNegatives(negCount)
	}

	batch := append(append([]TrainingExample{}, positives...), negatives...)
	if len(batch) > cfg.MaxTrainingBatchSize {
		batch = batch[:cfg.MaxTrainingBatchSize]
	}

	weights, loss := trainLinearModel(batch, cfg.Epochs, cfg.LearningRate)
	eval := evaluate(batch, weights, loss)

	gates := BuildGates(cfg.Thresholds)
	passed, reason := RunGates(gates, eval)

	var rec CycleRecord
	if passed {
		c.model.Promote(weights, BackendNativeSGD)
		rec = CycleRecord{Status: CycleSucceeded, Reason: "promoted", Positives: len(positives), Negatives: len(negatives)}
	} else {
		c.model.RecordRejection(reason)
		rec = CycleRecord{Status: CycleRejected, Reason: reason, Positives: len(positives), Negatives: len(negatives)}
	}
	c.model.AppendCycle(rec)

	sampleIDs := make(map[string]bool, len(batch))
	for _, ex := range batch {
		sampleIDs[ex.SampleID] = true
	}
	c.ConsumeExamples(sampleIDs)
	c.MarkCycleCompleted(now)

	return rec
}

// trainLinearModel runs a minimal SGD loop over a fixed feature set
// (native_sgd backend). Deterministic: examples are visited in batch order
// and are not shuffled.
func trainLinearModel(batch []TrainingExample, epochs int, lr float64) (map[string]float64, float64) {
	weights := make(map[string]float64)
	if len(batch) == 0 {
		return weights, 0
	}

	for epoch := 0; epoch < epochs; epoch++ {
		for _, ex := range batch {
			pred := predictRaw(weights, ex.Features)
			errSignal := float64(ex.Label) - sigmoid(pred)
			for k, v := range ex.Features {
				weights[k] += lr * errSignal * v * ex.Weight
			}
		}
	}

	var loss float64
	for _, ex := range batch {
		p := sigmoid(predictRaw(weights, ex.Features))
		p = clamp(p, 1e-6, 1-1e-6)
		if ex.Label == 1 {
			loss -= logf(p)
		} else {
			loss -= logf(1 - p)
		}
	}
	if len(batch) > 0 {
		loss /= float64(len(batch))
	}
	return weights, loss
}

func predictRaw(weights map[string]float64, features map[string]float64) float64 {
	var sum float64
	for k, v := range features {
		sum += weights[k] * v
	}
	return sum
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

func evaluate(batch []TrainingExample, weights map[string]float64, loss float64) EvalResult {
	if len(batch) == 0 {
		return EvalResult{Loss: loss, EvalMetric: 0}
	}
	var positives, attributed, withContext int
	var correct int
	for _, ex := range batch {
		if ex.Label == 1 {
			positives++
		}
		if ex.AttributionConfidence > 0 {
			attributed++
		}
		if ex.SampleID != "" {
			withContext++
		}
		pred := sigmoid(predictRaw(weights, ex.Features))
		if (pred >= 0.5) == (ex.Label == 1) {
			correct++
		}
	}
	return EvalResult{
		PositiveCount:     positives,
		NegativeCount:     len(batch) - positives,
		AttributedRate:    ratio(attributed, len(batch)),
		ContextDigestRate: ratio(withContext, len(batch)),
		Loss:              loss,
		EvalMetric:        ratio(correct, len(batch)),
	}
}

func ratio(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}

func logf(x float64) float64 {
	return math.Log(x)
}
