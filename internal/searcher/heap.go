package searcher

const heapArity = 4

// Heap is a 4-ary heap ordered by less. The top element is the one for which
// less reports true against every other element.
type Heap[T any] struct {
	items []T
	less  func(a, b T) bool
}

// NewHeap creates an empty heap.
func NewHeap[T any](capacity int, less func(a, b T) bool) *Heap[T] {
	return &Heap[T]{
		items: make([]T, 0, capacity),
		less:  less,
	}
}

// Len returns the number of elements.
func (h *Heap[T]) Len() int { return len(h.items) }

// Reset removes all elements.
func (h *Heap[T]) Reset() { h.items = h.items[:0] }

// Push adds x.
func (h *Heap[T]) Push(x T) {
	h.items = append(h.items, x)
	h.up(len(h.items) - 1)
}

// Pop removes and returns the top element.
// Panics if the heap is empty - caller should check Len() > 0.
func (h *Heap[T]) Pop() T {
	n := len(h.items) - 1
	h.items[0], h.items[n] = h.items[n], h.items[0]
	h.down(0, n)
	x := h.items[n]
	var zero T
	h.items[n] = zero
	h.items = h.items[:n]
	return x
}

// Peek returns the top element without removing it.
func (h *Heap[T]) Peek() (T, bool) {
	if len(h.items) == 0 {
		var zero T
		return zero, false
	}
	return h.items[0], true
}

// ReplaceTop replaces the top element and restores the heap invariant.
func (h *Heap[T]) ReplaceTop(x T) {
	h.items[0] = x
	h.down(0, len(h.items))
}

func (h *Heap[T]) up(j int) {
	item := h.items[j]
	for j > 0 {
		i := (j - 1) / heapArity
		if !h.less(item, h.items[i]) {
			break
		}
		h.items[j] = h.items[i]
		j = i
	}
	h.items[j] = item
}

func (h *Heap[T]) down(i0, n int) {
	i := i0
	item := h.items[i]
	for {
		first := heapArity*i + 1
		if first >= n {
			break
		}

		best := first
		last := min(first+heapArity, n)
		for c := first + 1; c < last; c++ {
			if h.less(h.items[c], h.items[best]) {
				best = c
			}
		}

		if !h.less(h.items[best], item) {
			break
		}
		h.items[i] = h.items[best]
		i = best
	}
	h.items[i] = item
}
