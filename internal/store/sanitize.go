package store

import "strings"

// sanitizeStrict strips wildcard/anchor/colon/paren characters and
// lowercases boolean operators inside free text, preserving quoted phrases
// unless the quotes are unbalanced (spec.md §4.1 "strict" sanitizer).
func sanitizeStrict(query string) string {
	if strings.Count(query, `"`) % 2 != 0 {
		query = strings.ReplaceAll(query, `"`, "")
	}

	var b strings.Builder
	inQuote := false
	for _, r := range query {
		switch r {
		case '"':
			inQuote = !inQuote
			b.WriteRune(r)
		case '*', '^', ':', '(', ')':
			// drop wildcard/anchor/colon/paren characters
		default:
			b.WriteRune(r)
		}
	}
	out := b.String()

	for _, op := range []string{"AND", "OR", "NOT"} {
		if !strings.Contains(out, `"`) {
			out = strings.ReplaceAll(out, op, strings.ToLower(op))
		}
	}
	return strings.TrimSpace(out)
}

var defaultStopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "of": {}, "in": {}, "on": {}, "at": {},
	"to": {}, "for": {}, "and": {}, "or": {}, "is": {}, "it": {}, "with": {},
}

const relaxedMaxTokens = 8

// sanitizeRelaxed tokenizes query to a disjunction of lowercased terms,
// stopword-filtered, with a prefix wildcard on tokens of at least 4
// characters, capped at 8 tokens (spec.md §4.1 "relaxed" sanitizer).
func sanitizeRelaxed(query string) []string {
	raw := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})

	out := make([]string, 0, len(raw))
	for _, tok := range raw {
		if _, stop := defaultStopWords[tok]; stop {
			continue
		}
		if len(tok) >= 4 {
			tok += "*"
		}
		out = append(out, tok)
		if len(out) >= relaxedMaxTokens {
			break
		}
	}
	return out
}

// relaxedMatchExpr joins sanitizeRelaxed's tokens into an FTS5 MATCH
// expression expressing a disjunction (OR) of terms.
func relaxedMatchExpr(query string) string {
	tokens := sanitizeRelaxed(query)
	if len(tokens) == 0 {
		return ""
	}
	return strings.Join(tokens, " OR ")
}
