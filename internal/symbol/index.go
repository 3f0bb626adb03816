package symbol

import (
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"
)

// Index is the session-wide aggregate of every loaded shard. It is
// append-only: Merge grows it, nothing shrinks it. A single writer lock
// guards merges so lookups never see a half-merged shard.
type Index struct {
	mu         sync.RWMutex
	partitions map[rune]*partition
	entries    int
	keys       int
	generation uint64
	logger     *slog.Logger
}

// partition holds every key sharing one leading rune.
type partition struct {
	groups map[string][]Entry // entries per key, kept in identity order
	sorted []string           // keys in ascending order
}

// Stats summarizes the index contents.
type Stats struct {
	Entries    int    `json:"entries"`
	Keys       int    `json:"keys"`
	Partitions int    `json:"partitions"`
	Generation uint64 `json:"generation"`
}

func NewIndex() *Index {
	return &Index{
		partitions: make(map[rune]*partition),
		logger:     slog.Default().With("component", "symbol-index"),
	}
}

// Merge adds entries and returns how many new logical entries were stored.
// Exact (key, display name, scope, target) duplicates collapse; when a
// duplicate carries a higher-priority category the stored copy adopts it, so
// the result does not depend on merge order.
func (ix *Index) Merge(entries []Entry) int {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	added := 0
	changed := false
	for _, e := range entries {
		r, ok := LeadingRune(e.Key)
		if !ok {
			continue
		}
		p, exists := ix.partitions[r]
		if !exists {
			p = &partition{groups: make(map[string][]Entry)}
			ix.partitions[r] = p
		}
		group, exists := p.groups[e.Key]
		if !exists {
			pos, _ := slices.BinarySearch(p.sorted, e.Key)
			p.sorted = slices.Insert(p.sorted, pos, e.Key)
			ix.keys++
		}
		pos, found := slices.BinarySearchFunc(group, e, compareIdentity)
		if found {
			if e.Category < group[pos].Category {
				group[pos] = e
				changed = true
			}
			continue
		}
		p.groups[e.Key] = slices.Insert(group, pos, e)
		ix.entries++
		added++
		changed = true
	}
	if changed {
		ix.generation++
	}
	ix.logger.Debug("entries merged",
		"offered", len(entries),
		"added", added,
		"total", ix.entries,
		"generation", ix.generation,
	)
	return added
}

// Lookup returns every entry whose key contains the normalized query. Only
// the partition of the query's leading rune is scanned. Results are ordered
// by key, then by identity. An empty query matches nothing.
func (ix *Index) Lookup(query string) []Entry {
	q := NormalizeQuery(query)
	r, ok := LeadingRune(q)
	if !ok {
		return nil
	}
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	p, exists := ix.partitions[r]
	if !exists {
		return nil
	}
	var result []Entry
	for _, key := range p.sorted {
		if strings.Contains(key, q) {
			result = append(result, p.groups[key]...)
		}
	}
	return result
}

// Generation increases every time a merge changes the index.
func (ix *Index) Generation() uint64 {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.generation
}

// Letters returns the leading runes that have at least one key, sorted.
func (ix *Index) Letters() []rune {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	letters := make([]rune, 0, len(ix.partitions))
	for r := range ix.partitions {
		letters = append(letters, r)
	}
	sort.Slice(letters, func(i, j int) bool { return letters[i] < letters[j] })
	return letters
}

func (ix *Index) Stats() Stats {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return Stats{
		Entries:    ix.entries,
		Keys:       ix.keys,
		Partitions: len(ix.partitions),
		Generation: ix.generation,
	}
}
