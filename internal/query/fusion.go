package query

import "sort"

// Weights is the lexical/semantic weight pair used by the merge stage.
// Must always sum to 1, per §4.5.1 step 7.
type Weights struct {
	Lexical  float64
	Semantic float64
}

// DefaultWeights and AdaptiveWeights are the two observable weight sets.
var (
	DefaultWeights  = Weights{Lexical: 0.55, Semantic: 0.45}
	AdaptiveWeights = Weights{Lexical: 0.45, Semantic: 0.55}
)

// lowRecallLexicalThreshold: the adaptive branch fires when the query mode
// is relaxed, or when lexical candidate count is below this threshold.
const lowRecallLexicalThreshold = 8

// SelectWeights decides which weight set applies for this query.
func SelectWeights(mode Mode, lexicalCandidateCount int) (Weights, bool) {
	if mode == ModeRelaxed || lexicalCandidateCount < lowRecallLexicalThreshold {
		return AdaptiveWeights, true
	}
	return DefaultWeights, false
}

// SemanticOnlyThreshold is the minimum similarity a semantic-only
// candidate (no lexical hit at all) must clear to be admitted (§4.5.1
// step 8).
const SemanticOnlyThreshold = 0.62

// Merge combines lexical and semantic candidate lists with the given
// weights, producing fused scores and suppressing low-confidence
// semantic-only candidates.
func Merge(lexical, semantic []Candidate, weights Weights) (merged []Candidate, semanticOnlySuppressed int) {
	byItem := make(map[int64]*Candidate)

	for i, c := range lexical {
		cp := c
		cp.LexicalRank = i + 1
		byItem[c.ItemID] = &cp
	}
	for i, c := range semantic {
		if existing, ok := byItem[c.ItemID]; ok {
			existing.SemanticScore = c.SemanticScore
			existing.SemanticRank = i + 1
			continue
		}
		if c.SemanticScore < SemanticOnlyThreshold {
			semanticOnlySuppressed++
			continue
		}
		cp := c
		cp.SemanticRank = i + 1
		byItem[c.ItemID] = &cp
	}

	out := make([]Candidate, 0, len(byItem))
	for _, c := range byItem {
		c.FusedScore = weights.Lexical*c.LexicalScore + weights.Semantic*c.SemanticScore
		out = append(out, *c)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].FusedScore != out[j].FusedScore {
			return out[i].FusedScore > out[j].FusedScore
		}
		return out[i].ItemID < out[j].ItemID
	})
	return out, semanticOnlySuppressed
}
