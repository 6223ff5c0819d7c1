package query

import "strings"

// AnswerReason is the closed set of outcome codes for getAnswerSnippet
// (§4.5.3).
type AnswerReason string

const (
	AnswerOK              AnswerReason = "ok"
	AnswerFeatureDisabled AnswerReason = "feature_disabled"
	AnswerQueryTooShort   AnswerReason = "query_too_short"
	AnswerItemNotFound    AnswerReason = "item_not_found"
	AnswerNoContent       AnswerReason = "no_content"
	AnswerNoAnswer        AnswerReason = "no_answer"
)

// minAnswerQueryLen is the minimum query length getAnswerSnippet accepts.
const minAnswerQueryLen = 3

// maxAnswerChars bounds the returned snippet length (§4.5.3).
const maxAnswerChars = 240

// AnswerSnippetResult is the getAnswerSnippet() response.
type AnswerSnippetResult struct {
	Reason  AnswerReason
	Snippet string
}

// ItemContentLookup resolves an item's extracted text content, reporting
// found=false if the item doesn't exist and ok=false if it exists but has
// no extracted content yet.
type ItemContentLookup func(itemID int64) (content string, found bool, ok bool)

// AnswerExtractor locates the best matching span of content for query,
// returning found=false if nothing relevant was located.
type AnswerExtractor func(query, content string) (snippet string, found bool)

// GetAnswerSnippet implements §4.5.3's reason ladder and clipping.
func GetAnswerSnippet(enabled bool, query string, itemID int64, lookup ItemContentLookup, extract AnswerExtractor) AnswerSnippetResult {
	if !enabled {
		return AnswerSnippetResult{Reason: AnswerFeatureDisabled}
	}
	if len(strings.TrimSpace(query)) < minAnswerQueryLen {
		return AnswerSnippetResult{Reason: AnswerQueryTooShort}
	}

	content, found, ok := lookup(itemID)
	if !found {
		return AnswerSnippetResult{Reason: AnswerItemNotFound}
	}
	if !ok || strings.TrimSpace(content) == "" {
		return AnswerSnippetResult{Reason: AnswerNoContent}
	}

	snippet, found := extract(query, content)
	if !found || strings.TrimSpace(snippet) == "" {
		return AnswerSnippetResult{Reason: AnswerNoAnswer}
	}

	return AnswerSnippetResult{Reason: AnswerOK, Snippet: clipSnippet(snippet, maxAnswerChars)}
}

// clipSnippet truncates s to at most maxChars runes, appending an ellipsis
// if truncated.
func clipSnippet(s string, maxChars int) string {
	r := []rune(s)
	if len(r) <= maxChars {
		return s
	}
	if maxChars <= 1 {
		return string(r[:maxChars])
	}
	return string(r[:maxChars-1]) + "…"
}
