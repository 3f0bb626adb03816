// Package symbol holds the symbol data model and the in-memory, append-only
// index that aggregates entries from every loaded shard. Entries are
// partitioned by the leading rune of their normalized key, mirroring the
// one-shard-per-letter layout of the generated site.
package symbol

import (
	"encoding/hex"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Target is an opaque navigation destination. The resolver turns it into a
// URL; nothing else interprets it.
type Target struct {
	PageID string `json:"page_id"`
	Anchor string `json:"anchor,omitempty"`
}

// Entry is one indexed occurrence of a symbol name.
type Entry struct {
	Key         string   `json:"key"`
	DisplayName string   `json:"display_name"`
	Scope       string   `json:"scope,omitempty"`
	Target      Target   `json:"target"`
	Category    Category `json:"category"`
}

// compareIdentity orders entries sharing a key. Entries comparing equal are
// duplicates: the collapse rule ignores Category.
func compareIdentity(a, b Entry) int {
	if c := strings.Compare(a.Scope, b.Scope); c != 0 {
		return c
	}
	if c := strings.Compare(a.DisplayName, b.DisplayName); c != 0 {
		return c
	}
	if c := strings.Compare(a.Target.PageID, b.Target.PageID); c != 0 {
		return c
	}
	return strings.Compare(a.Target.Anchor, b.Target.Anchor)
}

// NormalizeKey turns a raw shard key into its matching form: "_XX" hex
// escapes are decoded, the result is lowercased, and whitespace runs collapse
// to a single space.
func NormalizeKey(raw string) string {
	return NormalizeQuery(unescapeKey(raw))
}

// NormalizeQuery lowercases s, trims it and collapses whitespace runs.
func NormalizeQuery(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func unescapeKey(raw string) string {
	if !strings.Contains(raw, "_") {
		return raw
	}
	var b strings.Builder
	b.Grow(len(raw))
	for i := 0; i < len(raw); i++ {
		if raw[i] == '_' && i+2 < len(raw) {
			if decoded, err := hex.DecodeString(raw[i+1 : i+3]); err == nil {
				b.WriteByte(decoded[0])
				i += 2
				continue
			}
		}
		b.WriteByte(raw[i])
	}
	return strings.ToValidUTF8(b.String(), "�")
}

// LeadingRune returns the first rune of a normalized key or query.
func LeadingRune(s string) (rune, bool) {
	if s == "" {
		return 0, false
	}
	r, _ := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return 0, false
	}
	return unicode.ToLower(r), true
}

// LetterCode is the shard-name code for a leading rune: the lowercase hex of
// its UTF-8 encoding, so 'i' becomes "69".
func LetterCode(r rune) string {
	buf := make([]byte, utf8.UTFMax)
	n := utf8.EncodeRune(buf, unicode.ToLower(r))
	return hex.EncodeToString(buf[:n])
}
