package dispatcher

import "sync"

// fifo is an unbounded FIFO admission queue. Work items are admitted to
// workers strictly in push order, which gives submission-order fairness
// when the pool is contended. Push never blocks; Pop blocks until an item
// is available or the queue is closed.
type fifo struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []*item
	closed bool
}

func newFIFO() *fifo {
	q := &fifo{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends an item to the back of the queue. It reports false if the
// queue has been closed and the item was dropped.
func (q *fifo) Push(it *item) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.items = append(q.items, it)
	q.cond.Signal()
	return true
}

// Pop removes and returns the head of the queue, blocking while the queue
// is empty. It returns false once the queue is closed.
func (q *fifo) Pop() (*item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if q.closed {
		return nil, false
	}

	it := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return it, true
}

// Close wakes all blocked Pop calls. Items still queued are discarded.
func (q *fifo) Close() {
	q.mu.Lock()
	q.closed = true
	q.items = nil
	q.cond.Broadcast()
	q.mu.Unlock()
}

// Len returns the number of queued items.
func (q *fifo) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
