package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCacheCorrectness(t *testing.T) {
	c := NewCache(10, time.Minute)
	now := time.Now()

	_, ok := c.Get("a", now)
	require.False(t, ok)

	c.Put("a", Response{Results: []Candidate{{ItemID: 1}}}, now)
	v, ok := c.Get("a", now.Add(time.Second))
	require.True(t, ok)
	require.Equal(t, int64(1), v.Results[0].ItemID)

	stats := c.Stats()
	require.Equal(t, int64(1), stats.Hits)
	require.Equal(t, int64(1), stats.Misses)
}

func TestCacheExpiresByTTL(t *testing.T) {
	c := NewCache(10, time.Second)
	now := time.Now()
	c.Put("a", Response{}, now)

	_, ok := c.Get("a", now.Add(2*time.Second))
	require.False(t, ok)
	require.Equal(t, 0, c.Stats().CurrentSize)
}

func TestCacheEvictsLRUAtCapacity(t *testing.T) {
	c := NewCache(2, time.Minute)
	now := time.Now()
	c.Put("a", Response{}, now)
	c.Put("b", Response{}, now)
	c.Get("a", now) // touch a, making b the LRU
	c.Put("c", Response{}, now)

	_, aOK := c.Get("a", now)
	_, bOK := c.Get("b", now)
	_, cOK := c.Get("c", now)
	require.True(t, aOK)
	require.False(t, bOK)
	require.True(t, cOK)
	require.Equal(t, int64(1), c.Stats().Evictions)
}

func TestBuildPlanDetectsTrailingTypeHint(t *testing.T) {
	plan := BuildPlan(Normalize("quarterly budget PDF"), Filters{})
	require.True(t, plan.PlannerApplied)
	require.Equal(t, []string{"pdf"}, plan.ParsedTypes)
	require.Equal(t, "quarterly budget", plan.QueryAfterParse)
}

func TestBuildPlanNoHintLeavesQueryIntact(t *testing.T) {
	plan := BuildPlan(Normalize("quarterly budget report"), Filters{})
	require.False(t, plan.PlannerApplied)
	require.Equal(t, "quarterly budget report", plan.QueryAfterParse)
}

func TestRewriteStrictModeNeverCorrects(t *testing.T) {
	r := Rewrite(ModeStrict, []string{"recieve"}, func(string) (string, bool) { return "receive", true })
	require.False(t, r.Applied)
	require.Equal(t, "strict_mode", r.Reason)
}

func TestRewriteAutoModeBudgetCapsAtTwoTokens(t *testing.T) {
	r := Rewrite(ModeAuto, []string{"recieve", "teh", "definately"}, func(tok string) (string, bool) {
		return tok + "_fixed", true
	})
	require.True(t, r.Applied)
	require.Len(t, r.CorrectedTokens, 2)
}

func TestSelectWeightsAdaptiveOnRelaxedOrLowRecall(t *testing.T) {
	w, adaptive := SelectWeights(ModeRelaxed, 50)
	require.True(t, adaptive)
	require.Equal(t, AdaptiveWeights, w)

	w, adaptive = SelectWeights(ModeAuto, 3)
	require.True(t, adaptive)
	require.Equal(t, AdaptiveWeights, w)

	w, adaptive = SelectWeights(ModeAuto, 50)
	require.False(t, adaptive)
	require.Equal(t, DefaultWeights, w)
}

func TestMergeSuppressesLowConfidenceSemanticOnly(t *testing.T) {
	lexical := []Candidate{{ItemID: 1, LexicalScore: 0.9}}
	semantic := []Candidate{
		{ItemID: 1, SemanticScore: 0.8},
		{ItemID: 2, SemanticScore: 0.3}, // below SemanticOnlyThreshold
		{ItemID: 3, SemanticScore: 0.7}, // above threshold, admitted
	}
	merged, suppressed := Merge(lexical, semantic, DefaultWeights)
	require.Equal(t, 1, suppressed)
	ids := map[int64]bool{}
	for _, c := range merged {
		ids[c.ItemID] = true
	}
	require.True(t, ids[1])
	require.True(t, ids[3])
	require.False(t, ids[2])
}

func TestMergeWeightsSumToOne(t *testing.T) {
	require.InDelta(t, 1.0, DefaultWeights.Lexical+DefaultWeights.Semantic, 1e-9)
	require.InDelta(t, 1.0, AdaptiveWeights.Lexical+AdaptiveWeights.Semantic, 1e-9)
}

func TestRerankCascadeAppliesBothStagesWithinDepth(t *testing.T) {
	candidates := make([]Candidate, 5)
	for i := range candidates {
		candidates[i] = Candidate{ItemID: int64(i), FusedScore: float64(i)}
	}
	cfg := RerankConfig{Enabled: true, Stage1Max: 3, Stage2Max: 2}
	stage1 := func(q string, c []Candidate) []float64 {
		out := make([]float64, len(c))
		for i := range c {
			out[i] = 100 - float64(i)
		}
		return out
	}
	out, d1, d2 := Cascade(cfg, "q", candidates, stage1, nil)
	require.Equal(t, 3, d1)
	require.Equal(t, 0, d2)
	require.True(t, out[0].RerankStage1Applied)
}

func TestClipboardBoostMatchesByBasename(t *testing.T) {
	candidates := []Candidate{{ItemID: 1, Name: "report.pdf", FusedScore: 1.0}, {ItemID: 2, Name: "other.txt", FusedScore: 0.9}}
	out, boosted := ApplyClipboardBoost(candidates, ClipboardContext{Basename: "report.pdf"})
	require.Equal(t, 1, boosted)
	require.True(t, out[0].ClipboardBoosted)
}

func TestClipboardBoostNoopWithoutSignals(t *testing.T) {
	candidates := []Candidate{{ItemID: 1, Name: "report.pdf"}}
	out, boosted := ApplyClipboardBoost(candidates, ClipboardContext{})
	require.Equal(t, 0, boosted)
	require.False(t, out[0].ClipboardBoosted)
}

func TestAnnotateAvailability(t *testing.T) {
	candidates := []Candidate{{ItemID: 1, Path: "/a"}, {ItemID: 2, Path: "/missing"}}
	out := AnnotateAvailability(candidates, func(path string) (string, bool) {
		if path == "/missing" {
			return "unavailable", false
		}
		return "available", true
	})
	require.True(t, out[0].ContentAvailable)
	require.False(t, out[1].ContentAvailable)
}

func TestGetAnswerSnippetReasonLadder(t *testing.T) {
	lookupFound := func(string, bool, bool) ItemContentLookup {
		return nil
	}
	_ = lookupFound

	r := GetAnswerSnippet(false, "hello", 1, nil, nil)
	require.Equal(t, AnswerFeatureDisabled, r.Reason)

	r = GetAnswerSnippet(true, "hi", 1, nil, nil)
	require.Equal(t, AnswerQueryTooShort, r.Reason)

	r = GetAnswerSnippet(true, "hello world", 1, func(int64) (string, bool, bool) { return "", false, false }, nil)
	require.Equal(t, AnswerItemNotFound, r.Reason)

	r = GetAnswerSnippet(true, "hello world", 1, func(int64) (string, bool, bool) { return "", true, false }, nil)
	require.Equal(t, AnswerNoContent, r.Reason)

	r = GetAnswerSnippet(true, "hello world", 1,
		func(int64) (string, bool, bool) { return "some content", true, true },
		func(string, string) (string, bool) { return "", false })
	require.Equal(t, AnswerNoAnswer, r.Reason)

	longSnippet := ""
	for i := 0; i < 300; i++ {
		longSnippet += "x"
	}
	r = GetAnswerSnippet(true, "hello world", 1,
		func(int64) (string, bool, bool) { return "some content", true, true },
		func(string, string) (string, bool) { return longSnippet, true })
	require.Equal(t, AnswerOK, r.Reason)
	require.LessOrEqual(t, len([]rune(r.Snippet)), maxAnswerChars)
}

func TestGetHealthCriticalOnInferenceGivingUp(t *testing.T) {
	h := GetHealth(HealthInputs{
		InferenceRoles: []InferenceRoleHealth{{Role: "embed", Status: "giving_up"}},
	})
	require.Equal(t, HealthCritical, h.Status)
}

func TestGetHealthDegradedOnExpectedGapFailures(t *testing.T) {
	h := GetHealth(HealthInputs{ExpectedGapFailures: 3})
	require.Equal(t, HealthDegraded, h.Status)
}

func TestGetHealthOKWhenClear(t *testing.T) {
	h := GetHealth(HealthInputs{})
	require.Equal(t, HealthOK, h.Status)
}

func TestGetHealthDetailsPagination(t *testing.T) {
	all := make([]FailureDetail, 25)
	for i := range all {
		all[i] = FailureDetail{ItemPath: "/f", Reason: "x"}
	}
	page := GetHealthDetails(all, 10, 20)
	require.Len(t, page.Items, 5)
	require.Equal(t, 25, page.TotalCount)
	require.False(t, page.HasMore)

	page = GetHealthDetails(all, 10, 0)
	require.True(t, page.HasMore)
}

type fakePersonalizer struct {
	mode    string
	allowed bool
	applied bool
}

func (f fakePersonalizer) RolloutMode() string { return f.mode }
func (f fakePersonalizer) Decide() (bool, bool, bool) {
	return f.allowed, f.applied, false
}
func (f fakePersonalizer) Blend(base float64, features map[string]float64, alpha float64) (float64, float64) {
	if !f.applied {
		return base, 0
	}
	return base + 0.1, 0.1
}

func TestEngineSearchEndToEnd(t *testing.T) {
	e := NewEngine()
	e.LexicalRetriever = func(q string, f Filters, limit int) ([]Candidate, error) {
		return []Candidate{{ItemID: 1, Name: "report.pdf", Path: "/docs/report.pdf", LexicalScore: 0.9}}, nil
	}
	e.SemanticRetriever = func(q string, f Filters, limit int) ([]Candidate, error) {
		return []Candidate{{ItemID: 1, SemanticScore: 0.8}}, nil
	}
	e.Personalizer = fakePersonalizer{mode: "blended_ranking", allowed: true, applied: true}
	e.AvailabilityCheck = func(path string) (string, bool) { return "available", true }

	resp, err := e.Search(Request{Query: "quarterly report PDF", Mode: ModeAuto, Limit: 10, Debug: true,
		ClipboardBasename: "report.pdf"})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	require.True(t, resp.Results[0].ClipboardBoosted)
	require.True(t, resp.Results[0].ContentAvailable)
	require.NotNil(t, resp.Debug)
	require.Equal(t, []string{"pdf"}, resp.Debug.ParsedTypes)
	require.Equal(t, "blended_ranking", resp.Debug.OnlineRankerRolloutMode)
}

func TestEngineSearchTruncatesToLimit(t *testing.T) {
	e := NewEngine()
	e.LexicalRetriever = func(q string, f Filters, limit int) ([]Candidate, error) {
		out := make([]Candidate, 5)
		for i := range out {
			out[i] = Candidate{ItemID: int64(i), LexicalScore: float64(5 - i)}
		}
		return out, nil
	}
	resp, err := e.Search(Request{Query: "test", Mode: ModeAuto, Limit: 2})
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)
}
