package query

import (
	"cmp"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/symbol"
)

// Group is one distinct key with every definition site it fans out to.
type Group struct {
	Key string `json:"key"`
	// Category is the highest-priority category among the members.
	Category symbol.Category `json:"category"`
	// Offset is the byte offset of the needle inside Key.
	Offset  int            `json:"offset"`
	Exact   bool           `json:"exact"`
	Entries []symbol.Entry `json:"entries"`
}

// buildGroups groups matching entries by key and orders each group's
// members. needle must be contained in every entry's key.
func buildGroups(needle string, entries []symbol.Entry) []Group {
	var groups []Group
	index := make(map[string]int)
	for _, e := range entries {
		i, ok := index[e.Key]
		if !ok {
			i = len(groups)
			index[e.Key] = i
			groups = append(groups, Group{
				Key:      e.Key,
				Category: e.Category,
				Offset:   strings.Index(e.Key, needle),
				Exact:    e.Key == needle,
			})
		}
		g := &groups[i]
		g.Entries = append(g.Entries, e)
		if e.Category < g.Category {
			g.Category = e.Category
		}
	}
	for i := range groups {
		slices.SortFunc(groups[i].Entries, compareMembers)
	}
	return groups
}

// compareGroups is the ranking order; negative means a ranks first. It is a
// total order over groups with distinct keys.
func compareGroups(a, b Group) int {
	if a.Exact != b.Exact {
		if a.Exact {
			return -1
		}
		return 1
	}
	if c := cmp.Compare(a.Offset, b.Offset); c != 0 {
		return c
	}
	if c := cmp.Compare(utf8.RuneCountInString(a.Key), utf8.RuneCountInString(b.Key)); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Category.Priority(), b.Category.Priority()); c != 0 {
		return c
	}
	return strings.Compare(a.Key, b.Key)
}

func compareMembers(a, b symbol.Entry) int {
	if c := strings.Compare(a.Scope, b.Scope); c != 0 {
		return c
	}
	if c := strings.Compare(a.DisplayName, b.DisplayName); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Category.Priority(), b.Category.Priority()); c != 0 {
		return c
	}
	if c := strings.Compare(a.Target.PageID, b.Target.PageID); c != 0 {
		return c
	}
	return strings.Compare(a.Target.Anchor, b.Target.Anchor)
}

// Rank groups entries and returns at most limit groups in ranking order
// together with the number of groups that matched.
func Rank(needle string, entries []symbol.Entry, limit int) ([]Group, int) {
	groups := buildGroups(needle, entries)
	return topGroups(groups, limit), len(groups)
}
