package capture

import (
	"context"
	"errors"

	"github.com/voicebridge/voicebridge/internal/worker"
)

// ErrEndOfStream marks the end of the capture sequence. It is not reported
// as a failure.
var ErrEndOfStream = errors.New("end of capture stream")

// Pump lets a polling host consume a Channel: each pull runs as one worker
// operation and its buffer is handed to OnBuffer from Poll.
type Pump struct {
	ch    *Channel
	w     *worker.Worker[[]byte]
	ended bool
}

// NewPump creates a pump over ch. onError receives unexpected failures.
func NewPump(ch *Channel, onBuffer func([]byte), onError func(error)) *Pump {
	p := &Pump{ch: ch}
	p.w = worker.New("capture", worker.Hooks[[]byte]{
		Next: p.next,
		OnComplete: func(buf []byte) {
			if onBuffer != nil {
				onBuffer(buf)
			}
		},
		OnError: func(err error) {
			if errors.Is(err, ErrEndOfStream) {
				p.ended = true
				return
			}
			if onError != nil {
				onError(err)
			}
		},
	})
	return p
}

func (p *Pump) next() (worker.Op[[]byte], bool) {
	if p.ended || p.ch.State() == StateClosed {
		return nil, false
	}
	return func(ctx context.Context) ([]byte, error) {
		buf, ok := p.ch.NextContext(ctx)
		if !ok {
			return nil, ErrEndOfStream
		}
		return buf, nil
	}, true
}

// Poll delivers a finished pull and starts the next one.
func (p *Pump) Poll() {
	p.w.Poll()
}

// Ended reports whether the stream has ended.
func (p *Pump) Ended() bool {
	return p.ended
}

// Live reports whether a pull is in flight.
func (p *Pump) Live() bool {
	return p.w.Live()
}

// Close stops the pump. A pull blocked on an empty queue is released.
func (p *Pump) Close() error {
	return p.w.Close()
}
