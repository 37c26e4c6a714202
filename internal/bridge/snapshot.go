package bridge

import (
	"github.com/voicebridge/voicebridge/internal/cache"
	"github.com/voicebridge/voicebridge/internal/capture"
	"github.com/voicebridge/voicebridge/internal/pipe"
)

// Snapshot is a point-in-time view of the bridge for display.
type Snapshot struct {
	CaptureEnabled bool
	Capture        capture.Stats
	CaptureEnded   bool
	Captured       uint64

	PipeEnabled bool
	PipeName    string
	Transport   string
	PipeState   pipe.ConnectionState
	Connecting  bool
	Received    uint64
	Messages    []string

	SpeechEnabled bool
	Provider      string
	Depth         int
	Capacity      int
	Speaking      string
	Spoken        int64
	Billed        int64
	Dropped       int64

	CacheEnabled bool
	Cache        cache.Stats
}

// LastMessage returns the most recent received message.
func (s Snapshot) LastMessage() (string, bool) {
	if len(s.Messages) == 0 {
		return "", false
	}
	return s.Messages[len(s.Messages)-1], true
}

// Snapshot collects the current state of every component.
func (b *Bridge) Snapshot() Snapshot {
	s := Snapshot{
		CaptureEnabled: b.capture != nil,
		Captured:       b.captured.Load(),
		PipeEnabled:    b.pipe != nil,
		PipeName:       b.cfg.Pipe.Name,
		Transport:      b.cfg.Pipe.Transport,
		SpeechEnabled:  b.speech != nil,
		Provider:       b.cfg.Speech.Provider,
		Capacity:       b.cfg.Speech.QueueCapacity,
		CacheEnabled:   b.cache != nil,
	}

	if b.capture != nil {
		s.Capture = b.capture.Stats()
	}
	if b.pump != nil {
		s.CaptureEnded = b.pump.Ended()
	}

	if b.pipe != nil {
		s.PipeState = b.pipe.State()
		s.Connecting = b.connector.Pending()
		s.Received = b.pipe.Received()
	}
	b.mu.Lock()
	s.Messages = append([]string(nil), b.messages...)
	b.mu.Unlock()

	if b.speech != nil {
		s.Depth = b.speech.Depth()
		if cur, ok := b.speech.Current(); ok {
			s.Speaking = cur.Text
		}
		s.Spoken = b.speech.Spoken()
		s.Billed = b.speech.Billed()
		s.Dropped = b.speech.Stats().TotalDropped
	}
	if b.cache != nil {
		s.Cache = b.cache.Stats()
	}
	return s
}
