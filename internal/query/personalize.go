package query

import "strings"

// Personalizer is the minimal view of internal/learning.Core the query
// pipeline needs for the personalization-blend stage, kept narrow so this
// package doesn't import internal/learning's full surface.
type Personalizer interface {
	RolloutMode() string
	Decide() (servingAllowed, applied, fallbackMissingModel bool)
	Blend(baseScore float64, features map[string]float64, alpha float64) (blended, delta float64)
}

// ApplyPersonalization runs §4.5.1 step 10 over every candidate, blending
// in the online ranker's prediction when serving is applied, and tracks the
// aggregate delta over the top 10 results for debug reporting.
func ApplyPersonalization(candidates []Candidate, p Personalizer, alpha float64) (out []Candidate, info struct {
	RolloutMode    string
	ServingAllowed bool
	Applied        bool
	DeltaTop10     float64
}) {
	info.RolloutMode = p.RolloutMode()
	allowed, applied, _ := p.Decide()
	info.ServingAllowed = allowed
	info.Applied = applied

	out = append([]Candidate{}, candidates...)
	if !applied {
		return out, info
	}

	for i := range out {
		features := map[string]float64{
			"lexical_score":  out[i].LexicalScore,
			"semantic_score": out[i].SemanticScore,
		}
		blended, delta := p.Blend(out[i].FusedScore, features, alpha)
		out[i].FusedScore = blended
		out[i].OnlineRankerDelta = delta
		if i < 10 {
			info.DeltaTop10 += delta
		}
	}
	resortByFusedScore(out)
	return out, info
}

// ClipboardContext carries the caller-visible clipboard signals used for
// the clipboard-context boost (§4.5.1 step 11).
type ClipboardContext struct {
	Basename  string
	Dirname   string
	Extension string
}

func (c ClipboardContext) any() bool {
	return c.Basename != "" || c.Dirname != "" || c.Extension != ""
}

// clipboardBoostFactor multiplies FusedScore for a candidate whose path
// matches a supplied clipboard signal.
const clipboardBoostFactor = 1.08

// ApplyClipboardBoost boosts candidates whose path matches the clipboard
// context's basename, containing directory, or extension, re-sorting
// afterward. Returns the number of boosted results.
func ApplyClipboardBoost(candidates []Candidate, ctx ClipboardContext) (out []Candidate, boosted int) {
	out = append([]Candidate{}, candidates...)
	if !ctx.any() {
		return out, 0
	}

	for i := range out {
		if clipboardMatches(out[i].Path, out[i].Name, ctx) {
			out[i].FusedScore *= clipboardBoostFactor
			out[i].ClipboardBoosted = true
			boosted++
		}
	}
	if boosted > 0 {
		resortByFusedScore(out)
	}
	return out, boosted
}

func clipboardMatches(path, name string, ctx ClipboardContext) bool {
	if ctx.Basename != "" && strings.EqualFold(name, ctx.Basename) {
		return true
	}
	if ctx.Extension != "" && strings.HasSuffix(strings.ToLower(name), strings.ToLower(ctx.Extension)) {
		return true
	}
	if ctx.Dirname != "" && strings.Contains(path, ctx.Dirname) {
		return true
	}
	return false
}

// AvailabilityChecker reports whether an item's underlying file content is
// still reachable on disk (it may have moved, been deleted, or be offline
// e.g. on an unmounted volume).
type AvailabilityChecker func(path string) (status string, contentAvailable bool)

// AnnotateAvailability runs §4.5.1 step 12 over every candidate.
func AnnotateAvailability(candidates []Candidate, check AvailabilityChecker) []Candidate {
	out := append([]Candidate{}, candidates...)
	if check == nil {
		return out
	}
	for i := range out {
		status, available := check(out[i].Path)
		out[i].AvailabilityStatus = status
		out[i].ContentAvailable = available
	}
	return out
}
