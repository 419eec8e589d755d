package jobx

// record is the mutable state behind a JobInfo. All fields are guarded by
// Queue.mu.
type record struct {
	info JobInfo

	// seq is assigned on every insertion into the waiting heap so equal
	// priorities are served in insertion order.
	seq uint64

	// index is the position in the waiting heap, -1 when not waiting.
	index int

	// token identifies the current run; it is bumped on every admission so
	// results of superseded runs can be recognised and dropped.
	token uint64
}

// waitHeap implements container/heap ordered by (priority, seq).
type waitHeap []*record

func (h waitHeap) Len() int { return len(h) }

func (h waitHeap) Less(i, j int) bool { return before(h[i], h[j]) }

func (h waitHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *waitHeap) Push(x any) {
	r := x.(*record)
	r.index = len(*h)
	*h = append(*h, r)
}

func (h *waitHeap) Pop() any {
	old := *h
	n := len(old)
	r := old[n-1]
	old[n-1] = nil
	r.index = -1
	*h = old[:n-1]
	return r
}

func before(a, b *record) bool {
	if a.info.Priority != b.info.Priority {
		return a.info.Priority < b.info.Priority
	}
	return a.seq < b.seq
}
