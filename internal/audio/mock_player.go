package audio

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// MockPlayer simulates playback without producing sound. It is used when
// running without an output device and in tests.
type MockPlayer struct {
	// Delay is how long each Play takes. When RealTime is set the buffer's
	// own duration is used instead.
	Delay    time.Duration
	RealTime bool

	// Err, when set, is returned by every Play.
	Err error

	// OnPlay is called at the start of each Play.
	OnPlay func(pcm []byte, format Format)

	mu     sync.Mutex
	played [][]byte

	active    atomic.Int32
	maxActive atomic.Int32
	playCount atomic.Int64
}

// NewMockPlayer returns a mock that finishes each buffer after delay.
func NewMockPlayer(delay time.Duration) *MockPlayer {
	return &MockPlayer{Delay: delay}
}

// Play implements Speaker.
func (mp *MockPlayer) Play(ctx context.Context, pcm []byte, format Format) error {
	n := mp.active.Add(1)
	defer mp.active.Add(-1)
	for {
		prev := mp.maxActive.Load()
		if n <= prev || mp.maxActive.CompareAndSwap(prev, n) {
			break
		}
	}
	mp.playCount.Add(1)

	if mp.OnPlay != nil {
		mp.OnPlay(pcm, format)
	}
	if mp.Err != nil {
		return mp.Err
	}

	delay := mp.Delay
	if mp.RealTime {
		delay = format.Duration(len(pcm))
	}
	if delay > 0 {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}

	mp.mu.Lock()
	mp.played = append(mp.played, append([]byte(nil), pcm...))
	mp.mu.Unlock()
	return nil
}

// Played returns copies of the buffers that played to completion.
func (mp *MockPlayer) Played() [][]byte {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return append([][]byte(nil), mp.played...)
}

// PlayCount returns how many times Play was called.
func (mp *MockPlayer) PlayCount() int {
	return int(mp.playCount.Load())
}

// MaxConcurrent returns the largest number of overlapping Play calls seen.
func (mp *MockPlayer) MaxConcurrent() int {
	return int(mp.maxActive.Load())
}
