package runtime

// fifo is an unbounded first-in first-out queue. It does no locking; the
// owner guards it.
type fifo[T any] struct {
	items []T
	head  int
}

func (q *fifo[T]) push(v T) {
	q.items = append(q.items, v)
}

func (q *fifo[T]) pop() (T, bool) {
	var zero T
	if q.head >= len(q.items) {
		return zero, false
	}
	v := q.items[q.head]
	q.items[q.head] = zero
	q.head++
	// reclaim the consumed prefix once it dominates the backing array
	if q.head >= 32 && q.head*2 >= len(q.items) {
		n := copy(q.items, q.items[q.head:])
		clear(q.items[n:])
		q.items = q.items[:n]
		q.head = 0
	}
	return v, true
}

func (q *fifo[T]) len() int {
	return len(q.items) - q.head
}

func (q *fifo[T]) clear() {
	q.items = nil
	q.head = 0
}
