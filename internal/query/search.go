package query

import (
	"strings"

	"golang.org/x/sync/errgroup"
)

// Retriever is the lexical or semantic candidate source the search
// pipeline calls in stages 5-6. A concrete implementation binds to
// internal/store's FTS/vector search.
type Retriever func(query string, filters Filters, limit int) ([]Candidate, error)

// Engine wires together every stage of §4.5.1's search() pipeline. Each
// collaborator is optional except the two retrievers; a nil collaborator
// causes its stage to be a no-op, which keeps this file testable stage by
// stage without a live store, inference service, or learning core.
type Engine struct {
	LexicalRetriever  Retriever
	SemanticRetriever Retriever
	Suggest           func(token string) (string, bool)
	RerankConfig      RerankConfig
	Stage1Scorer      RerankScorer
	Stage2Scorer      RerankScorer
	Personalizer      Personalizer
	BlendAlpha        float64
	AvailabilityCheck AvailabilityChecker
	IndexHealth       map[string]string
	DefaultLimit      int
}

// NewEngine returns an Engine with the documented defaults for everything
// that isn't a required collaborator.
func NewEngine() Engine {
	return Engine{
		RerankConfig: DefaultRerankConfig(),
		BlendAlpha:   0.2,
		DefaultLimit: 50,
	}
}

// Search runs the full 13-stage pipeline described in §4.5.1: normalize,
// plan, filter merge, mode rewrite, lexical+semantic retrieval, fusion,
// semantic-only safety (folded into Merge), rerank cascade, personalization
// blend, clipboard boost, availability annotation, truncate, debug.
func (e Engine) Search(req Request) (Response, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = e.DefaultLimit
	}

	normalized := Normalize(req.Query)
	plan := BuildPlan(normalized, req.Filters)

	tokens := strings.Fields(plan.QueryAfterParse)
	rewrite := Rewrite(req.Mode, tokens, e.Suggest)
	effectiveQuery := plan.QueryAfterParse
	if rewrite.Applied && len(rewrite.CorrectedTokens) > 0 {
		effectiveQuery = strings.Join(rewrite.CorrectedTokens, " ")
	}

	// Lexical and semantic retrieval (stages 5-6) fan out concurrently. A
	// failure in one source degrades gracefully: the other source's
	// candidates still rank, and the request only fails if both do.
	var lexical, semantic []Candidate
	var lexErr, semErr error
	var g errgroup.Group
	if e.LexicalRetriever != nil {
		g.Go(func() error {
			lexical, lexErr = e.LexicalRetriever(effectiveQuery, plan.Filters, limit*4)
			return nil
		})
	}
	if e.SemanticRetriever != nil {
		g.Go(func() error {
			semantic, semErr = e.SemanticRetriever(effectiveQuery, plan.Filters, limit*4)
			return nil
		})
	}
	_ = g.Wait()
	// A retriever left unconfigured (nil) simply contributes no candidates,
	// as it always has. The request only fails once every *configured*
	// retriever errored.
	configured, failed := 0, 0
	if e.LexicalRetriever != nil {
		configured++
		if lexErr != nil {
			failed++
		}
	}
	if e.SemanticRetriever != nil {
		configured++
		if semErr != nil {
			failed++
		}
	}
	if configured > 0 && failed == configured {
		if lexErr != nil {
			return Response{}, lexErr
		}
		return Response{}, semErr
	}

	weights, adaptive := SelectWeights(req.Mode, len(lexical))
	merged, suppressed := Merge(lexical, semantic, weights)

	reranked, stage1Depth, stage2Depth := Cascade(e.RerankConfig, effectiveQuery, merged, e.Stage1Scorer, e.Stage2Scorer)

	personalized := reranked
	var personalizeInfo struct {
		RolloutMode    string
		ServingAllowed bool
		Applied        bool
		DeltaTop10     float64
	}
	if e.Personalizer != nil {
		personalized, personalizeInfo = ApplyPersonalization(reranked, e.Personalizer, e.BlendAlpha)
	}

	clipboardCtx := ClipboardContext{Basename: req.ClipboardBasename, Dirname: req.ClipboardDirname, Extension: req.ClipboardExtension}
	boosted, boostedCount := ApplyClipboardBoost(personalized, clipboardCtx)

	annotated := AnnotateAvailability(boosted, e.AvailabilityCheck)

	if len(annotated) > limit {
		annotated = annotated[:limit]
	}

	resp := Response{Results: annotated}
	if req.Debug {
		resp.Debug = &DebugInfo{
			QueryAfterParse:             plan.QueryAfterParse,
			ParsedTypes:                 plan.ParsedTypes,
			PlannerApplied:              plan.PlannerApplied,
			PlannerReason:               plan.PlannerReason,
			RewriteReason:               rewrite.Reason,
			RewriteApplied:              rewrite.Applied,
			CorrectedTokens:             rewrite.CorrectedTokens,
			LexicalWeight:               weights.Lexical,
			SemanticWeight:              weights.Semantic,
			AdaptiveMergeApplied:        adaptive,
			SemanticOnlySuppressedCount: suppressed,
			RerankStage1Depth:           stage1Depth,
			RerankStage2Depth:           stage2Depth,
			OnlineRankerRolloutMode:     personalizeInfo.RolloutMode,
			OnlineRankerServingAllowed:  personalizeInfo.ServingAllowed,
			OnlineRankerApplied:         personalizeInfo.Applied,
			OnlineRankerDeltaTop10:      personalizeInfo.DeltaTop10,
			ClipboardSignalsProvided:    clipboardCtx.any(),
			ClipboardSignalBoostedResults: boostedCount,
			IndexHealth:                 e.IndexHealth,
		}
	}

	return resp, nil
}
