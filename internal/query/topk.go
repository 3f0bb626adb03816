package query

import (
	"container/heap"
	"slices"
)

// topGroups returns the best limit groups in ranking order. A bounded heap
// keeps the worst retained group on top, so selection is O(n log limit).
func topGroups(groups []Group, limit int) []Group {
	if limit <= 0 || len(groups) <= limit {
		out := slices.Clone(groups)
		slices.SortFunc(out, compareGroups)
		return out
	}
	h := &groupHeap{}
	heap.Init(h)
	for _, g := range groups {
		heap.Push(h, g)
		if h.Len() > limit {
			heap.Pop(h)
		}
	}
	result := make([]Group, h.Len())
	for i := len(result) - 1; i >= 0; i-- {
		result[i] = heap.Pop(h).(Group)
	}
	return result
}

// groupHeap is a max-heap by rank: the root is the lowest-ranked group.
type groupHeap []Group

func (h groupHeap) Len() int { return len(h) }

func (h groupHeap) Less(i, j int) bool {
	return compareGroups(h[i], h[j]) > 0
}

func (h groupHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *groupHeap) Push(x interface{}) {
	*h = append(*h, x.(Group))
}

func (h *groupHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
