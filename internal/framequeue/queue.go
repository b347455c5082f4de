// Package framequeue implements the bounded per-session frame queues.
//
// A Queue is a fixed-capacity FIFO ring. When a push finds the ring full the
// oldest entry is evicted, unless the caller asks to protect preferred entries,
// in which case the oldest sacrificial entry goes first. What counts as
// sacrificial is decided by a predicate supplied at construction, so the same
// ring serves video (non-keyframes are sacrificial) and audio (everything is).
//
// Queues are not safe for concurrent use; the owning session table lock
// guards them.
package framequeue

// Queue is a bounded ring buffer of T.
type Queue[T any] struct {
	buf         []T
	head        int
	n           int
	sacrificial func(T) bool
}

// New creates a queue holding at most capacity entries. A nil predicate marks
// every entry as sacrificial.
func New[T any](capacity int, sacrificial func(T) bool) *Queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	if sacrificial == nil {
		sacrificial = func(T) bool { return true }
	}
	return &Queue[T]{
		buf:         make([]T, capacity),
		sacrificial: sacrificial,
	}
}

// Len returns the number of queued entries.
func (q *Queue[T]) Len() int { return q.n }

// Cap returns the queue capacity.
func (q *Queue[T]) Cap() int { return len(q.buf) }

// Full reports whether the next Push will evict.
func (q *Queue[T]) Full() bool { return q.n == len(q.buf) }

// Push appends v. If the queue is full an entry is evicted first and returned
// with ok set. With keepPreferred the oldest sacrificial entry is evicted when
// one exists; otherwise the oldest entry is.
func (q *Queue[T]) Push(v T, keepPreferred bool) (evicted T, ok bool) {
	if q.Full() {
		evicted, ok = q.evict(keepPreferred)
	}
	q.buf[(q.head+q.n)%len(q.buf)] = v
	q.n++
	return evicted, ok
}

// Pop removes and returns the oldest entry.
func (q *Queue[T]) Pop() (T, bool) {
	var zero T
	if q.n == 0 {
		return zero, false
	}
	v := q.buf[q.head]
	q.buf[q.head] = zero
	q.head = (q.head + 1) % len(q.buf)
	q.n--
	return v, true
}

// PopLatest empties the queue and returns only the newest entry together with
// the number of older entries that were discarded.
func (q *Queue[T]) PopLatest() (latest T, discarded int, ok bool) {
	if q.n == 0 {
		return latest, 0, false
	}
	latest = q.at(q.n - 1)
	discarded = q.n - 1
	q.Clear()
	return latest, discarded, true
}

// DropOldest removes one entry for staleness eviction, following the same
// rule as a full Push.
func (q *Queue[T]) DropOldest(keepPreferred bool) (T, bool) {
	return q.evict(keepPreferred)
}

// Peek returns the oldest entry without removing it.
func (q *Queue[T]) Peek() (T, bool) {
	var zero T
	if q.n == 0 {
		return zero, false
	}
	return q.at(0), true
}

// PeekLatest returns the newest entry without removing it.
func (q *Queue[T]) PeekLatest() (T, bool) {
	var zero T
	if q.n == 0 {
		return zero, false
	}
	return q.at(q.n - 1), true
}

// Clear drops every entry and returns how many were removed.
func (q *Queue[T]) Clear() int {
	var zero T
	n := q.n
	for i := 0; i < q.n; i++ {
		q.buf[(q.head+i)%len(q.buf)] = zero
	}
	q.head = 0
	q.n = 0
	return n
}

// Each calls fn for every entry from oldest to newest.
func (q *Queue[T]) Each(fn func(T)) {
	for i := 0; i < q.n; i++ {
		fn(q.at(i))
	}
}

func (q *Queue[T]) at(i int) T {
	return q.buf[(q.head+i)%len(q.buf)]
}

func (q *Queue[T]) evict(keepPreferred bool) (T, bool) {
	var zero T
	if q.n == 0 {
		return zero, false
	}
	idx := 0
	if keepPreferred {
		for i := 0; i < q.n; i++ {
			if q.sacrificial(q.at(i)) {
				idx = i
				break
			}
		}
	}
	return q.removeAt(idx), true
}

// removeAt removes the entry at logical position idx, shifting newer entries
// towards the head.
func (q *Queue[T]) removeAt(idx int) T {
	var zero T
	v := q.at(idx)
	for i := idx; i < q.n-1; i++ {
		q.buf[(q.head+i)%len(q.buf)] = q.at(i + 1)
	}
	q.buf[(q.head+q.n-1)%len(q.buf)] = zero
	q.n--
	if q.n == 0 {
		q.head = 0
	}
	return v
}
