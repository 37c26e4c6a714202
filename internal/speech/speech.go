package speech

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/voicebridge/voicebridge/internal/audio"
	"github.com/voicebridge/voicebridge/internal/status"
	"github.com/voicebridge/voicebridge/internal/synth"
	"github.com/voicebridge/voicebridge/internal/worker"
)

// Defaults.
const (
	DefaultCapacity = 10
	DefaultTimeout  = 60 * time.Second
)

var (
	// ErrQueueOverflow is reported when Speak finds the queue full.
	ErrQueueOverflow = errors.New("text-to-speech queue overflow")

	// ErrPlayback wraps failures of the output device.
	ErrPlayback = errors.New("failed to play sound")
)

// Options configure a Queue. Voice selection comes from configuration and
// is passed through to the provider untouched.
type Options struct {
	LanguageCode string
	Voice        string
	Gender       string
	SayAs        string
	SampleRate   int

	Capacity int
	Timeout  time.Duration
	Sink     status.Sink
}

// outcome is what one utterance produced. A playback failure still bills
// the synthesis, so it travels here instead of as the op error.
type outcome struct {
	req     Request
	cached  bool
	billed  int
	played  time.Duration
	playErr error
}

// Queue speaks requests one at a time in the order they were accepted.
type Queue struct {
	synth   synth.Synthesizer
	speaker audio.Speaker
	opts    Options
	report  status.Reporter

	q *requestQueue
	w *worker.Worker[outcome]

	closed  atomic.Bool
	spoken  atomic.Int64
	billed  atomic.Int64
	current atomic.Pointer[Request]
}

// NewQueue creates a queue that synthesizes with s and plays through sp.
func NewQueue(s synth.Synthesizer, sp audio.Speaker, opts Options) *Queue {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.SayAs == "" {
		opts.SayAs = DefaultSayAs
	}
	if opts.Sink == nil {
		opts.Sink = status.Discard
	}

	sq := &Queue{
		synth:   s,
		speaker: sp,
		opts:    opts,
		report:  status.Reporter{Sink: opts.Sink},
		q:       newRequestQueue(opts.Capacity),
	}
	sq.w = worker.New("speech", worker.Hooks[outcome]{
		Next:       sq.next,
		OnComplete: sq.finished,
		OnError:    sq.failed,
	})
	return sq
}

// Speak queues text and returns the request ID. A full queue drops the
// text, reports textToSpeechQueueOverflow and returns ErrQueueOverflow.
// Blank text is ignored. Speak never blocks.
func (sq *Queue) Speak(text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}

	req := Request{
		ID:       uuid.NewString(),
		Text:     text,
		SSML:     SSML(text, sq.opts.SayAs),
		Enqueued: time.Now(),
	}
	switch err := sq.q.Enqueue(req); {
	case errors.Is(err, ErrQueueFull):
		log.Warn("Speech queue full, dropping message", "capacity", sq.opts.Capacity, "text", text)
		sq.report.Report(status.WithID(status.ErrTextToSpeechQueueOverflow, ErrQueueOverflow))
		return "", ErrQueueOverflow
	case err != nil:
		return "", err
	}
	log.Debug("Speech queued", "id", req.ID, "depth", sq.q.Len())
	return req.ID, nil
}

// Drive collects a finished utterance and starts the next queued one. It
// never blocks.
func (sq *Queue) Drive() {
	sq.w.Poll()
}

// Depth returns the number of requests waiting, not counting the one in
// flight.
func (sq *Queue) Depth() int {
	return sq.q.Len()
}

// Busy reports whether an utterance was started and its outcome has not
// been collected by Drive yet.
func (sq *Queue) Busy() bool {
	return sq.w.Pending()
}

// Current returns the request in flight, if any.
func (sq *Queue) Current() (Request, bool) {
	if r := sq.current.Load(); r != nil {
		return *r, true
	}
	return Request{}, false
}

// Spoken returns how many utterances played to completion.
func (sq *Queue) Spoken() int64 {
	return sq.spoken.Load()
}

// Billed returns the total characters billed so far.
func (sq *Queue) Billed() int64 {
	return sq.billed.Load()
}

// Stats returns queue counters.
func (sq *Queue) Stats() Stats {
	return sq.q.Stats()
}

func (sq *Queue) next() (worker.Op[outcome], bool) {
	if sq.closed.Load() {
		return nil, false
	}
	req, ok := sq.q.Dequeue()
	if !ok {
		return nil, false
	}
	sq.current.Store(&req)
	return func(ctx context.Context) (outcome, error) {
		return sq.utter(ctx, req)
	}, true
}

// utter runs on the worker goroutine.
func (sq *Queue) utter(ctx context.Context, req Request) (outcome, error) {
	out := outcome{req: req}

	sctx, cancel := context.WithTimeout(ctx, sq.opts.Timeout)
	a, err := sq.synth.Synthesize(sctx, synth.Request{
		SSML:         req.SSML,
		LanguageCode: sq.opts.LanguageCode,
		Voice:        sq.opts.Voice,
		Gender:       sq.opts.Gender,
		SampleRate:   sq.opts.SampleRate,
	})
	cancel()
	if err != nil {
		return out, status.WithID(status.ErrSynthesisFailed, fmt.Errorf("request %s: %w", req.ID, err))
	}
	out.cached = a.Cached
	if !a.Cached {
		out.billed = BilledCharacters(req.SSML)
	}

	start := time.Now()
	if err := sq.speaker.Play(ctx, a.PCM, a.Format); err != nil {
		out.playErr = fmt.Errorf("%w: request %s: %w", ErrPlayback, req.ID, err)
	}
	out.played = time.Since(start)
	return out, nil
}

func (sq *Queue) finished(out outcome) {
	sq.current.Store(nil)
	if !out.cached {
		sq.billed.Add(int64(out.billed))
		sq.opts.Sink.Event(status.EventCharactersBilled, strconv.Itoa(out.billed))
	}

	if out.playErr != nil {
		log.Warn("Playback failed", "id", out.req.ID, "error", out.playErr)
		sq.report.Report(status.WithID(status.ErrFailedToPlaySound, out.playErr))
		return
	}
	sq.spoken.Add(1)
	log.Debug("Utterance played", "id", out.req.ID, "duration", out.played, "cached", out.cached)
}

func (sq *Queue) failed(err error) {
	sq.current.Store(nil)
	log.Warn("Speech failed", "error", err)
	sq.report.Report(err)
}

// Close drops queued requests and stops the worker. An utterance in flight
// is cancelled through its context. Close is idempotent.
func (sq *Queue) Close() error {
	if !sq.closed.CompareAndSwap(false, true) {
		return nil
	}
	if n := sq.q.Close(); n > 0 {
		log.Info("Discarding queued speech", "count", n)
	}
	return sq.w.Close()
}
