package capture

import (
	"context"
	"sync"
)

type chunk struct {
	data []byte
	end  bool
}

// ChunkQueue is an unbounded FIFO of audio chunks with an end sentinel. One
// goroutine may put while another gets.
type ChunkQueue struct {
	mu     sync.Mutex
	items  []chunk
	ended  bool
	notify chan struct{}
}

// NewChunkQueue returns an empty queue.
func NewChunkQueue() *ChunkQueue {
	return &ChunkQueue{notify: make(chan struct{}, 1)}
}

// Put appends a chunk. It never blocks beyond a short lock.
func (q *ChunkQueue) Put(data []byte) {
	q.push(chunk{data: data})
}

// End appends the sentinel. Gets that reach it report end of stream.
func (q *ChunkQueue) End() {
	q.push(chunk{end: true})
}

func (q *ChunkQueue) push(c chunk) {
	q.mu.Lock()
	q.items = append(q.items, c)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Get blocks until a chunk is available. It returns false once the sentinel
// has been reached or ctx is done.
func (q *ChunkQueue) Get(ctx context.Context) ([]byte, bool) {
	for {
		data, ok, end := q.TryGet()
		if end {
			return nil, false
		}
		if ok {
			return data, true
		}

		select {
		case <-q.notify:
		case <-ctx.Done():
			return nil, false
		}
	}
}

// TryGet returns the next chunk without blocking. ok is false when the queue
// is empty; end is true once the sentinel has been reached.
func (q *ChunkQueue) TryGet() (data []byte, ok, end bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.ended {
		return nil, false, true
	}
	if len(q.items) == 0 {
		return nil, false, false
	}

	c := q.items[0]
	q.items[0] = chunk{}
	q.items = q.items[1:]
	if c.end {
		q.ended = true
		q.items = nil
		return nil, false, true
	}
	return c.data, true, false
}

// Len returns the number of queued entries, sentinel included.
func (q *ChunkQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
