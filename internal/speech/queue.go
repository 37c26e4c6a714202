package speech

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrQueueFull is returned when the queue is at capacity.
	ErrQueueFull = errors.New("speech queue is full")

	// ErrQueueClosed is returned when operations are attempted on a closed queue.
	ErrQueueClosed = errors.New("speech queue is closed")
)

// Request is one queued utterance.
type Request struct {
	ID       string
	Text     string
	SSML     string
	Enqueued time.Time
}

// Stats tracks queue counters.
type Stats struct {
	TotalEnqueued   int64
	TotalDequeued   int64
	TotalDropped    int64
	CurrentSize     int
	PeakSize        int
	LastEnqueue     time.Time
	LastDequeue     time.Time
	AverageWaitTime time.Duration
}

// requestQueue is a bounded FIFO that rejects instead of waiting when full.
type requestQueue struct {
	mu      sync.Mutex
	items   []Request
	maxSize int
	closed  bool
	stats   Stats

	totalWait time.Duration
}

func newRequestQueue(maxSize int) *requestQueue {
	return &requestQueue{
		items:   make([]Request, 0, maxSize),
		maxSize: maxSize,
	}
}

// Enqueue appends r unless the queue is full or closed.
func (q *requestQueue) Enqueue(r Request) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	if len(q.items) >= q.maxSize {
		q.stats.TotalDropped++
		return ErrQueueFull
	}

	q.items = append(q.items, r)
	q.stats.TotalEnqueued++
	q.stats.LastEnqueue = r.Enqueued
	if len(q.items) > q.stats.PeakSize {
		q.stats.PeakSize = len(q.items)
	}
	return nil
}

// Dequeue removes the oldest request.
func (q *requestQueue) Dequeue() (Request, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return Request{}, false
	}
	r := q.items[0]
	q.items[0] = Request{}
	q.items = q.items[1:]

	now := time.Now()
	q.stats.TotalDequeued++
	q.stats.LastDequeue = now
	q.totalWait += now.Sub(r.Enqueued)
	q.stats.AverageWaitTime = q.totalWait / time.Duration(q.stats.TotalDequeued)
	return r, true
}

// Len returns the number of queued requests.
func (q *requestQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Stats returns a snapshot of the counters.
func (q *requestQueue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	s := q.stats
	s.CurrentSize = len(q.items)
	return s
}

// Close rejects further requests and returns how many were discarded.
func (q *requestQueue) Close() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	n := len(q.items)
	q.items = nil
	return n
}
