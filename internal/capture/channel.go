package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"go.uber.org/multierr"
)

// ErrInvalidState is returned for transitions the state machine does not allow.
var ErrInvalidState = errors.New("invalid capture state")

// State is the lifecycle of a Channel.
type State int

const (
	StateClosed State = iota
	StateOpen
	StatePaused
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}

// Stats describes what a channel has captured.
type Stats struct {
	State  State
	Chunks uint64
	Bytes  uint64
	Queued int
}

// Channel owns an input device and the queue its callback fills.
type Channel struct {
	device InputDevice

	mu    sync.Mutex
	state State
	cfg   DeviceConfig
	queue *ChunkQueue

	chunks atomic.Uint64
	bytes  atomic.Uint64
}

// NewChannel returns a closed channel over device.
func NewChannel(device InputDevice) *Channel {
	return &Channel{device: device}
}

// Open allocates the chunk queue, registers the device callback and starts
// the stream.
func (c *Channel) Open(sampleRate, chunkFrames int) error {
	if sampleRate <= 0 || chunkFrames <= 0 {
		return fmt.Errorf("sample rate and chunk frames must be positive, got %d and %d", sampleRate, chunkFrames)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateClosed {
		return fmt.Errorf("%w: cannot open, channel is %s", ErrInvalidState, c.state)
	}

	cfg := DeviceConfig{SampleRate: sampleRate, ChunkFrames: chunkFrames}
	queue := NewChunkQueue()

	if err := c.device.Open(cfg, c.callback(queue)); err != nil {
		return fmt.Errorf("failed to open input device: %w", err)
	}
	if err := c.device.Start(); err != nil {
		return multierr.Append(
			fmt.Errorf("failed to start input device: %w", err),
			c.device.Close(),
		)
	}

	c.cfg = cfg
	c.queue = queue
	c.state = StateOpen
	log.Info("Audio capture opened", "sampleRate", sampleRate, "chunk", humanize.Bytes(uint64(cfg.BytesPerChunk())))
	return nil
}

// callback builds the driver callback: copy, enqueue, return.
func (c *Channel) callback(queue *ChunkQueue) func([]byte) {
	return func(in []byte) {
		buf := make([]byte, len(in))
		copy(buf, in)
		queue.Put(buf)
		c.chunks.Add(1)
		c.bytes.Add(uint64(len(buf)))
	}
}

// Pause stops callback invocation. Queued chunks and the consumer are kept.
func (c *Channel) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateOpen {
		return fmt.Errorf("%w: cannot pause, channel is %s", ErrInvalidState, c.state)
	}
	if err := c.device.Stop(); err != nil {
		return fmt.Errorf("failed to pause input device: %w", err)
	}
	c.state = StatePaused
	return nil
}

// Resume restarts a paused stream.
func (c *Channel) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StatePaused {
		return fmt.Errorf("%w: cannot resume, channel is %s", ErrInvalidState, c.state)
	}
	if err := c.device.Start(); err != nil {
		return fmt.Errorf("failed to resume input device: %w", err)
	}
	c.state = StateOpen
	return nil
}

// State returns the current state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Shutdown asks the consumer to finish: the sentinel is queued behind any
// pending chunks and the pull that reaches it releases the device.
func (c *Channel) Shutdown() {
	c.mu.Lock()
	queue := c.queue
	c.mu.Unlock()
	if queue != nil {
		queue.End()
	}
}

// Next blocks for at least one chunk, then drains everything already queued
// and returns the concatenation. It returns false at end of stream.
func (c *Channel) Next() ([]byte, bool) {
	return c.NextContext(context.Background())
}

// NextContext is Next with a way out for the waiting consumer.
func (c *Channel) NextContext(ctx context.Context) ([]byte, bool) {
	c.mu.Lock()
	queue := c.queue
	c.mu.Unlock()
	if queue == nil {
		return nil, false
	}

	first, ok := queue.Get(ctx)
	if !ok {
		c.endOfStream(ctx)
		return nil, false
	}

	var buf bytes.Buffer
	buf.Write(first)
	for {
		data, ok, end := queue.TryGet()
		if end {
			c.endOfStream(ctx)
			return nil, false
		}
		if !ok {
			break
		}
		buf.Write(data)
	}
	return buf.Bytes(), true
}

func (c *Channel) endOfStream(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if err := c.Close(); err != nil {
		log.Warn("Releasing capture device at end of stream failed", "error", err)
	}
}

// Chunks returns the lazy sequence of coalesced buffers.
func (c *Channel) Chunks() iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		for {
			buf, ok := c.Next()
			if !ok || !yield(buf) {
				return
			}
		}
	}
}

// Close stops and releases the device and ends the stream. Every step is
// attempted even if an earlier one fails. Close is idempotent.
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateClosed {
		return nil
	}

	var err error
	if c.state == StateOpen {
		if stopErr := c.device.Stop(); stopErr != nil {
			err = multierr.Append(err, fmt.Errorf("stop input device: %w", stopErr))
		}
	}
	if closeErr := c.device.Close(); closeErr != nil {
		err = multierr.Append(err, fmt.Errorf("close input device: %w", closeErr))
	}
	if c.queue != nil {
		c.queue.End()
	}
	c.state = StateClosed

	log.Info("Audio capture closed",
		"chunks", c.chunks.Load(),
		"captured", humanize.Bytes(c.bytes.Load()))
	return err
}

// Stats returns capture counters.
func (c *Channel) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		State:  c.state,
		Chunks: c.chunks.Load(),
		Bytes:  c.bytes.Load(),
	}
	if c.queue != nil {
		s.Queued = c.queue.Len()
	}
	return s
}
