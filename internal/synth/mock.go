package synth

import (
	"context"
	"sync"
	"time"

	"github.com/voicebridge/voicebridge/internal/audio"
)

// Mock returns silence sized to the request text. It stands in for a real
// provider in tests and in offline runs.
type Mock struct {
	// Delay simulates provider latency.
	Delay time.Duration

	// Err, when set, fails every call.
	Err error

	// PerChar is the audio length produced per SSML byte.
	PerChar time.Duration

	mu       sync.Mutex
	requests []Request
}

// NewMock returns a mock with a small latency.
func NewMock() *Mock {
	return &Mock{Delay: 20 * time.Millisecond, PerChar: 5 * time.Millisecond}
}

// Synthesize implements Synthesizer.
func (m *Mock) Synthesize(ctx context.Context, req Request) (Audio, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.Delay > 0 {
		t := time.NewTimer(m.Delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return Audio{}, ctx.Err()
		case <-t.C:
		}
	}
	if m.Err != nil {
		return Audio{}, m.Err
	}

	rate := req.SampleRate
	if rate <= 0 {
		rate = DefaultSampleRate
	}
	frames := int(time.Duration(len(req.SSML)) * m.PerChar * time.Duration(rate) / time.Second)
	if frames == 0 {
		frames = 1
	}
	return Audio{
		PCM:    make([]byte, frames*2),
		Format: audio.Format{SampleRate: rate, Channels: 1},
	}, nil
}

// Requests returns the requests seen so far.
func (m *Mock) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.requests...)
}
