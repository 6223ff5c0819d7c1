package query

// RerankConfig bounds the two cascade stages. Activation is per-query,
// gated on total candidate count after merge, not per-candidate.
type RerankConfig struct {
	Enabled bool
	Stage1Max int // depth of candidates stage 1 (fast cross-encoder) scores
	Stage2Max int // depth of candidates stage 2 (strong cross-encoder) scores
}

// DefaultRerankConfig matches the settings-store defaults.
func DefaultRerankConfig() RerankConfig {
	return RerankConfig{Enabled: true, Stage1Max: 50, Stage2Max: 10}
}

// RerankScorer scores a batch of candidates against the query, returning a
// score per candidate in the same order. A concrete implementation binds to
// the inference service's rerank_fast/rerank_strong methods.
type RerankScorer func(query string, candidates []Candidate) []float64

// Cascade applies stage1 then stage2 rerankers over the merged candidate
// list, re-sorting after each stage. It reports whether each stage ran and
// how many candidates it covered.
func Cascade(cfg RerankConfig, query string, candidates []Candidate, stage1, stage2 RerankScorer) (out []Candidate, stage1Depth, stage2Depth int) {
	out = append([]Candidate{}, candidates...)
	if !cfg.Enabled || len(out) == 0 {
		return out, 0, 0
	}

	if stage1 != nil {
		depth := min(cfg.Stage1Max, len(out))
		scores := stage1(query, out[:depth])
		for i := 0; i < depth && i < len(scores); i++ {
			out[i].FusedScore = scores[i]
			out[i].RerankStage1Applied = true
		}
		resortByFusedScore(out[:depth])
		stage1Depth = depth
	}

	if stage2 != nil {
		depth := min(cfg.Stage2Max, len(out))
		scores := stage2(query, out[:depth])
		for i := 0; i < depth && i < len(scores); i++ {
			out[i].FusedScore = scores[i]
			out[i].RerankStage2Applied = true
		}
		resortByFusedScore(out[:depth])
		stage2Depth = depth
	}

	return out, stage1Depth, stage2Depth
}

func resortByFusedScore(c []Candidate) {
	for i := 1; i < len(c); i++ {
		for j := i; j > 0 && c[j].FusedScore > c[j-1].FusedScore; j-- {
			c[j], c[j-1] = c[j-1], c[j]
		}
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
