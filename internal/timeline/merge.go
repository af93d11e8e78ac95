package timeline

import "container/heap"

// cursor walks one source's events, which arrive already sorted.
type cursor struct {
	events []Event
	pos    int
}

func (c *cursor) head() Event { return c.events[c.pos] }

type cursorHeap []*cursor

func (h cursorHeap) Len() int           { return len(h) }
func (h cursorHeap) Less(i, j int) bool { return before(h[i].head(), h[j].head()) }
func (h cursorHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *cursorHeap) Push(x any) { *h = append(*h, x.(*cursor)) }

func (h *cursorHeap) Pop() any {
	old := *h
	n := len(old)
	c := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return c
}

// merge combines per-source streams that are each ordered by before into a
// single ordered slice. Inputs are not modified.
func merge(streams ...[]Event) []Event {
	total := 0
	h := make(cursorHeap, 0, len(streams))
	for _, s := range streams {
		if len(s) == 0 {
			continue
		}
		total += len(s)
		h = append(h, &cursor{events: s})
	}
	heap.Init(&h)

	out := make([]Event, 0, total)
	for h.Len() > 0 {
		c := h[0]
		out = append(out, c.head())
		c.pos++
		if c.pos == len(c.events) {
			heap.Pop(&h)
			continue
		}
		heap.Fix(&h, 0)
	}
	return out
}
