package simulation

import "sync"

// workQueue hands out batches of pending items to fetch workers. Items a
// fetch did not deliver are put back.
type workQueue[T any] struct {
	mtx      sync.Mutex
	items    []T
	inflight int
}

func newWorkQueue[T any](items []T) *workQueue[T] {
	return &workQueue[T]{items: items}
}

// take removes up to n items from the front of the queue. A non-empty batch
// must be returned through done.
func (q *workQueue[T]) take(n int) []T {
	q.mtx.Lock()
	defer q.mtx.Unlock()

	if n > len(q.items) {
		n = len(q.items)
	}
	if n <= 0 {
		return nil
	}
	batch := append([]T(nil), q.items[:n]...)
	q.items = q.items[n:]
	q.inflight++
	return batch
}

// done finishes a batch, requeueing the items that were not delivered.
func (q *workQueue[T]) done(rest []T) {
	q.mtx.Lock()
	defer q.mtx.Unlock()

	q.items = append(q.items, rest...)
	q.inflight--
}

// finished reports whether nothing is queued or being fetched.
func (q *workQueue[T]) finished() bool {
	q.mtx.Lock()
	defer q.mtx.Unlock()
	return len(q.items) == 0 && q.inflight == 0
}
