// Package query answers live symbol queries: it makes sure the shards for
// the query's leading letter are merged into the index, looks up matching
// keys, and ranks them into result groups.
package query

import (
	"strings"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/symbol"
)

// DefaultMaxQueryLength caps the needle when the caller sets no limit.
const DefaultMaxQueryLength = 256

// Plan is a normalized query ready for lookup.
type Plan struct {
	Raw    string
	Needle string
	Letter rune
	// Clipped is set when the input was longer than the limit and cut.
	Clipped bool
}

// Empty reports whether the plan matches nothing.
func (p Plan) Empty() bool {
	return p.Needle == ""
}

// Parse normalizes raw into a Plan. Invalid UTF-8 is replaced, whitespace
// collapses, case folds, and anything past maxLen runes is dropped. Parse
// never fails: the worst input yields an empty plan.
func Parse(raw string, maxLen int) Plan {
	if maxLen <= 0 {
		maxLen = DefaultMaxQueryLength
	}
	plan := Plan{Raw: raw}
	cleaned := strings.ToValidUTF8(raw, "")
	// Bound the work before normalizing pathological input.
	if len(cleaned) > maxLen*utf8.UTFMax*2 {
		cleaned = cleaned[:maxLen*utf8.UTFMax*2]
		cleaned = strings.ToValidUTF8(cleaned, "")
		plan.Clipped = true
	}
	needle := symbol.NormalizeQuery(cleaned)
	if utf8.RuneCountInString(needle) > maxLen {
		needle = strings.TrimSpace(truncateRunes(needle, maxLen))
		plan.Clipped = true
	}
	plan.Needle = needle
	if r, ok := symbol.LeadingRune(needle); ok {
		plan.Letter = r
	}
	return plan
}

func truncateRunes(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
