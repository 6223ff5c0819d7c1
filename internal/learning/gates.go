package learning

import "math"

// Gate is a named promotion predicate: (passed, reason). The cycle returns
// the first failing predicate's reason, and "promoted" only when every
// predicate passes, per the "Promotion gate composition" design note.
type Gate struct {
	Name string
	Eval func(EvalResult) (bool, string)
}

// EvalResult is the held-out evaluation summary a training cycle produces,
// fed into every promotion gate.
type EvalResult struct {
	PositiveCount          int
	NegativeCount          int
	AttributedRate         float64 // fraction of examples with attribution above threshold
	ContextDigestRate      float64 // fraction of examples carrying a context digest
	Loss                   float64
	EvalMetric             float64
	LatencyRegressionRatio float64 // candidate / baseline; >1 is slower
	PredictionFailureRate  float64
	SaturationRate         float64
}

// GateThresholds configures every numeric bound the gates check.
type GateThresholds struct {
	MinPositiveCount        int
	MinAttributedRate       float64
	MinContextDigestRate    float64
	MaxLatencyRegressionRatio float64
	MaxPredictionFailureRate float64
	MaxSaturationRate        float64
}

// DefaultGateThresholds returns conservative defaults.
func DefaultGateThresholds() GateThresholds {
	return GateThresholds{
		MinPositiveCount:          20,
		MinAttributedRate:         0.5,
		MinContextDigestRate:      0.5,
		MaxLatencyRegressionRatio: 1.5,
		MaxPredictionFailureRate:  0.05,
		MaxSaturationRate:         0.2,
	}
}

// BuildGates constructs the ordered list of promotion gates evaluated by a
// training cycle. Order matters: the first failing gate's reason wins.
func BuildGates(th GateThresholds) []Gate {
	return []Gate{
		{
			Name: "promotion_attribution_gate",
			Eval: func(r EvalResult) (bool, string) {
				if r.PositiveCount < th.MinPositiveCount {
					return false, "promotion_attribution_gate_min_positive_count"
				}
				if r.AttributedRate < th.MinAttributedRate {
					return false, "promotion_attribution_gate_min_attributed_rate"
				}
				if r.ContextDigestRate < th.MinContextDigestRate {
					return false, "promotion_attribution_gate_min_context_digest_rate"
				}
				return true, ""
			},
		},
		{
			Name: "promotion_runtime_gate",
			Eval: func(r EvalResult) (bool, string) {
				if math.IsNaN(r.Loss) || math.IsInf(r.Loss, 0) {
					return false, "candidate_stability_invalid_eval"
				}
				if math.IsNaN(r.EvalMetric) || math.IsInf(r.EvalMetric, 0) {
					return false, "candidate_stability_invalid_eval"
				}
				return true, ""
			},
		},
		{
			Name: "promotion_latency_gate",
			Eval: func(r EvalResult) (bool, string) {
				if r.LatencyRegressionRatio > th.MaxLatencyRegressionRatio {
					return false, "promotion_latency_gate_regression"
				}
				return true, ""
			},
		},
		{
			Name: "promotion_failure_rate_gate",
			Eval: func(r EvalResult) (bool, string) {
				if r.PredictionFailureRate > th.MaxPredictionFailureRate {
					return false, "promotion_failure_rate_gate_exceeded"
				}
				return true, ""
			},
		},
		{
			Name: "promotion_saturation_gate",
			Eval: func(r EvalResult) (bool, string) {
				if r.SaturationRate > th.MaxSaturationRate {
					return false, "promotion_saturation_gate_exceeded"
				}
				return true, ""
			},
		},
	}
}

// RunGates evaluates every gate in order, stopping at the first failure.
// Returns (true, "") only when every gate passes.
func RunGates(gates []Gate, eval EvalResult) (bool, string) {
	for _, g := range gates {
		if ok, reason := g.Eval(eval); !ok {
			return false, reason
		}
	}
	return true, ""
}
