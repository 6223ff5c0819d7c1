package query

import (
	"strings"
)

// typeHintSuffixes maps a trailing bare-word hint to a file-type filter,
// e.g. "budget pdf" -> type hint "pdf".
var typeHintSuffixes = map[string]string{
	"pdf":      "pdf",
	"markdown": "markdown",
	"md":       "markdown",
	"image":    "image",
	"code":     "code",
}

// Plan is the result of stages 1-3: normalize, parse, and filter merge.
type Plan struct {
	QueryAfterParse string
	ParsedTypes     []string
	PlannerApplied  bool
	PlannerReason   string
	Filters         Filters
}

// Normalize lowercases and trims the raw query, collapsing internal
// whitespace, per §4.5.1 step 1.
func Normalize(raw string) string {
	fields := strings.Fields(strings.ToLower(raw))
	return strings.Join(fields, " ")
}

// BuildPlan runs stages 2-3: derive an optional type hint from a trailing
// token, then merge caller filters with whatever the parser derived.
func BuildPlan(normalized string, callerFilters Filters) Plan {
	tokens := strings.Fields(normalized)
	plan := Plan{QueryAfterParse: normalized}

	if len(tokens) >= 2 {
		last := tokens[len(tokens)-1]
		if fileType, ok := typeHintSuffixes[last]; ok {
			plan.ParsedTypes = []string{fileType}
			plan.PlannerApplied = true
			plan.PlannerReason = "trailing_type_hint:" + last
			plan.QueryAfterParse = strings.Join(tokens[:len(tokens)-1], " ")
		}
	}

	parsedFilters := Filters{FileTypes: plan.ParsedTypes}
	plan.Filters = mergeFilters(callerFilters, parsedFilters)
	return plan
}

// RewriteResult is the outcome of stage 4 (query-mode handling).
type RewriteResult struct {
	Reason          string
	Applied         bool
	CorrectedTokens []string
}

// maxCorrectedTokens bounds the fuzzy-auto rewrite budget (§8 boundary
// behavior: "at most 2 corrected tokens per query").
const maxCorrectedTokens = 2

// CorpusLookup reports whether a term exists verbatim in the corpus
// vocabulary, used to detect likely typos.
type CorpusLookup func(term string) bool

// Rewrite applies the query-mode policy (§4.5.1 step 4). corpusTerms
// supplies the nearest-known-term suggestion for a query token; it may be
// nil in strict mode where it is never consulted.
func Rewrite(mode Mode, tokens []string, suggest func(token string) (string, bool)) RewriteResult {
	switch mode {
	case ModeStrict:
		return RewriteResult{Reason: "strict_mode"}
	case ModeAuto:
		return rewriteWithBudget(tokens, suggest, "auto_mode_typo_correction")
	case ModeRelaxed:
		r := rewriteWithBudget(tokens, suggest, "relaxed_mode_loose_rewrite")
		r.Applied = true
		if r.Reason == "" {
			r.Reason = "relaxed_mode_loose_rewrite"
		}
		return r
	default:
		return RewriteResult{Reason: "strict_mode"}
	}
}

func rewriteWithBudget(tokens []string, suggest func(token string) (string, bool), reason string) RewriteResult {
	if suggest == nil {
		return RewriteResult{}
	}
	var corrected []string
	for _, tok := range tokens {
		if len(corrected) >= maxCorrectedTokens {
			break
		}
		if fixed, ok := suggest(tok); ok && fixed != tok {
			corrected = append(corrected, fixed)
		}
	}
	if len(corrected) == 0 {
		return RewriteResult{}
	}
	return RewriteResult{Reason: reason, Applied: true, CorrectedTokens: corrected}
}
