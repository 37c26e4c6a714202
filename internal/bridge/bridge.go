// Package bridge composes the capture, message and speech components for a
// host that polls. Everything the host touches is non-blocking: Tick
// collects finished background work and starts the next piece.
package bridge

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"go.uber.org/multierr"

	"github.com/voicebridge/voicebridge/internal/audio"
	"github.com/voicebridge/voicebridge/internal/cache"
	"github.com/voicebridge/voicebridge/internal/capture"
	"github.com/voicebridge/voicebridge/internal/config"
	"github.com/voicebridge/voicebridge/internal/pipe"
	"github.com/voicebridge/voicebridge/internal/speech"
	"github.com/voicebridge/voicebridge/internal/status"
	"github.com/voicebridge/voicebridge/internal/synth"
	"github.com/voicebridge/voicebridge/internal/worker"
)

var (
	// ErrSpeechDisabled is returned by Speak when speech is turned off.
	ErrSpeechDisabled = errors.New("speech is disabled")

	// ErrClosed is returned by Start after Close.
	ErrClosed = errors.New("bridge is closed")
)

// recentMessages is how many received messages Snapshot keeps.
const recentMessages = 50

// Options override the pieces New would otherwise build from the
// configuration. Tests use them to swap in doubles.
type Options struct {
	Sink        status.Sink
	Device      capture.InputDevice
	Dialer      pipe.Dialer
	Synthesizer synth.Synthesizer
	Speaker     audio.Speaker

	// OnMessage is called from Tick for every received message.
	OnMessage func(msg string)
}

// Bridge owns the three components and the resources behind them.
type Bridge struct {
	cfg    config.Config
	sink   status.Sink
	report status.Reporter
	opts   Options

	capture *capture.Channel
	pump    *capture.Pump
	output  *bufio.Writer
	outFile *os.File

	pipe      *pipe.Channel
	connector *worker.Worker[string]

	speech *speech.Queue
	cache  *cache.Tiered

	closers []io.Closer

	mu       sync.Mutex
	messages []string

	captured atomic.Uint64
	closed   atomic.Bool
}

// New builds a bridge from cfg. Nothing is opened yet; call Start.
func New(ctx context.Context, cfg config.Config, opts Options) (*Bridge, error) {
	if opts.Sink == nil {
		opts.Sink = status.NewLogSink(nil)
	}
	b := &Bridge{
		cfg:    cfg,
		sink:   opts.Sink,
		report: status.Reporter{Sink: opts.Sink},
		opts:   opts,
	}

	if cfg.Speech.Enabled {
		if err := b.buildSpeech(ctx); err != nil {
			return nil, multierr.Append(err, b.closeResources())
		}
	}
	if cfg.Pipe.Enabled {
		if err := b.buildPipe(); err != nil {
			return nil, multierr.Append(err, b.Close())
		}
	}
	if cfg.Capture.Enabled {
		device := opts.Device
		if device == nil {
			device = capture.NewSystemDevice()
		}
		b.capture = capture.NewChannel(device)
	}
	return b, nil
}

func (b *Bridge) buildSpeech(ctx context.Context) error {
	sc := b.cfg.Speech

	s := b.opts.Synthesizer
	if s == nil {
		provider, err := synth.NewProvider(ctx, sc.Provider, synth.GoogleConfig{
			CredentialsFile: sc.CredentialsFile,
			APIKey:          sc.APIKey,
		})
		switch {
		case errors.Is(err, synth.ErrCredentials):
			log.Error("Speech provider unavailable, messages will not be spoken", "provider", sc.Provider, "error", err)
			b.report.Report(status.WithID(status.ErrGoogleCredentials, err))
			provider = synth.Unavailable{Err: err}
		case err != nil:
			return err
		}
		b.track(provider)
		provider = synth.WithFallback(provider, b.fallbackProvider(ctx), synth.DefaultMaxFailures)
		s = synth.WithRateLimit(provider, sc.RequestsPerMinute)

		if b.cfg.Cache.Enabled {
			tiered, err := cache.New(cache.Config{
				MemoryCapacity:   b.cfg.Cache.MemoryCapacity,
				DiskCapacity:     b.cfg.Cache.DiskCapacity,
				Dir:              b.cfg.Cache.Dir,
				CompressionLevel: b.cfg.Cache.CompressionLevel,
			})
			if err != nil {
				log.Warn("Audio cache unavailable", "dir", b.cfg.Cache.Dir, "error", err)
			} else {
				b.cache = tiered
				b.closers = append(b.closers, tiered)
				s = synth.WithCache(s, tiered)
			}
		}
	}

	sp := b.opts.Speaker
	if sp == nil {
		sp = b.newSpeaker()
	}

	b.speech = speech.NewQueue(s, sp, speech.Options{
		LanguageCode: sc.LanguageCode,
		Voice:        sc.VoiceName,
		Gender:       sc.Gender,
		SayAs:        sc.SayAs,
		SampleRate:   sc.SampleRate,
		Capacity:     sc.QueueCapacity,
		Timeout:      sc.Timeout,
		Sink:         b.sink,
	})
	return nil
}

// fallbackProvider builds the configured secondary provider, or returns nil.
func (b *Bridge) fallbackProvider(ctx context.Context) synth.Synthesizer {
	sc := b.cfg.Speech
	if sc.FallbackProvider == "" || sc.FallbackProvider == sc.Provider {
		return nil
	}
	fb, err := synth.NewProvider(ctx, sc.FallbackProvider, synth.GoogleConfig{
		CredentialsFile: sc.CredentialsFile,
		APIKey:          sc.APIKey,
	})
	if err != nil {
		log.Warn("Fallback speech provider unavailable", "provider", sc.FallbackProvider, "error", err)
		return nil
	}
	b.track(fb)
	return fb
}

func (b *Bridge) newSpeaker() audio.Speaker {
	if b.cfg.Speech.Provider == synth.ProviderMock {
		return &audio.MockPlayer{RealTime: true}
	}
	pc := audio.DefaultPlayerConfig()
	pc.SampleRate = b.cfg.Speech.SampleRate
	player, err := audio.NewPlayer(pc)
	if err != nil {
		log.Error("No audio output, speech will fail to play", "error", err)
		return muted{err: err}
	}
	b.closers = append(b.closers, player)
	return player
}

func (b *Bridge) buildPipe() error {
	dialer := b.opts.Dialer
	if dialer == nil {
		dialer = dialerFor(b.cfg.Pipe.Transport)
	}
	ch, err := pipe.NewChannel(dialer, b.received, pipe.Options{
		MaxRead:  b.cfg.Pipe.MaxRead,
		Encoding: pipe.Encoding(b.cfg.Pipe.Encoding),
		Sink:     b.sink,
	})
	if err != nil {
		return fmt.Errorf("failed to create message channel: %w", err)
	}
	b.pipe = ch
	b.connector = worker.New("pipe-connect", worker.Hooks[string]{
		OnComplete: func(name string) {
			b.sink.Event(status.EventConnected, name)
		},
		OnError: func(err error) {
			log.Warn("Message channel not connected", "name", b.cfg.Pipe.Name, "error", err)
			b.report.Report(err)
		},
	})
	return nil
}

func dialerFor(transport string) pipe.Dialer {
	if transport == "websocket" {
		return pipe.WebSocketDialer{}
	}
	return pipe.PipeDialer{}
}

// track remembers s for Close when it holds resources.
func (b *Bridge) track(s synth.Synthesizer) {
	if c, ok := s.(io.Closer); ok {
		b.closers = append(b.closers, c)
	}
}

// Start opens the microphone and begins connecting to the message channel.
// A capture device that cannot be opened is reported and capture stays off;
// the other components keep running.
func (b *Bridge) Start() error {
	if b.closed.Load() {
		return ErrClosed
	}
	if b.capture != nil && b.pump == nil {
		if err := b.startCapture(); err != nil {
			log.Error("Audio capture unavailable", "error", err)
			b.report.Report(status.WithID(status.ErrCaptureFailed, err))
		}
	}
	b.Reconnect()
	return nil
}

func (b *Bridge) startCapture() error {
	cc := b.cfg.Capture
	if err := b.capture.Open(cc.SampleRate, cc.ChunkFrames); err != nil {
		return err
	}
	// created after Open so a failed Start leaves nothing open
	if cc.Output != "" {
		f, err := os.Create(cc.Output)
		if err != nil {
			return multierr.Append(
				fmt.Errorf("failed to create capture output: %w", err),
				b.capture.Close(),
			)
		}
		b.outFile = f
		b.output = bufio.NewWriterSize(f, 64<<10)
	}
	b.pump = capture.NewPump(b.capture, b.captureBuffer, func(err error) {
		b.report.Report(status.WithID(status.ErrCaptureFailed, err))
	})
	return nil
}

func (b *Bridge) captureBuffer(buf []byte) {
	b.captured.Add(uint64(len(buf)))
	if b.output == nil {
		return
	}
	if _, err := b.output.Write(buf); err != nil {
		log.Error("Writing captured audio failed, output disabled", "file", b.outFile.Name(), "error", err)
		b.report.Report(status.WithID(status.ErrCaptureFailed, err))
		b.output = nil
	}
}

// Reconnect starts connecting to the message channel unless it is already
// connected or a connect is under way. It reports whether an attempt was
// started.
func (b *Bridge) Reconnect() bool {
	if b.pipe == nil || b.closed.Load() {
		return false
	}
	if b.connector.Pending() || b.pipe.State() == pipe.Connected {
		return false
	}
	name, timeout := b.cfg.Pipe.Name, b.cfg.Pipe.ConnectTimeout
	log.Debug("Connecting to message channel", "name", name, "timeout", timeout)
	return b.connector.Start(func(ctx context.Context) (string, error) {
		if err := b.pipe.Connect(ctx, name, timeout); err != nil {
			return "", err
		}
		return name, nil
	})
}

// Tick advances every component by one step. It never blocks.
func (b *Bridge) Tick() {
	if b.closed.Load() {
		return
	}
	if b.connector != nil {
		b.connector.Poll()
	}
	if b.pipe != nil {
		b.pipe.Poll()
	}
	if b.pump != nil {
		b.pump.Poll()
	}
	if b.speech != nil {
		b.speech.Drive()
	}
}

func (b *Bridge) received(msg string) {
	b.mu.Lock()
	b.messages = append(b.messages, msg)
	if len(b.messages) > recentMessages {
		b.messages = b.messages[len(b.messages)-recentMessages:]
	}
	b.mu.Unlock()

	log.Info("Message received", "text", msg)
	b.sink.Event(status.EventMessage, msg)
	if b.opts.OnMessage != nil {
		b.opts.OnMessage(msg)
	}
	if b.cfg.Speech.EchoMessages && b.speech != nil {
		_, _ = b.speech.Speak(msg)
	}
}

// Speak queues text for speech. It never blocks.
func (b *Bridge) Speak(text string) (string, error) {
	if b.speech == nil {
		return "", ErrSpeechDisabled
	}
	return b.speech.Speak(text)
}

// Idle reports whether nothing is queued or in flight for speech.
func (b *Bridge) Idle() bool {
	return b.speech == nil || (b.speech.Depth() == 0 && !b.speech.Busy())
}

// Close shuts every component down and releases the provider, cache and
// output device. Every step runs even if an earlier one fails. Close is
// idempotent.
func (b *Bridge) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}

	var err error
	if b.speech != nil {
		err = multierr.Append(err, b.speech.Close())
	}
	if b.connector != nil {
		err = multierr.Append(err, b.connector.Close())
	}
	if b.pipe != nil {
		err = multierr.Append(err, b.pipe.Close())
	}
	if b.pump != nil {
		err = multierr.Append(err, b.pump.Close())
	}
	if b.capture != nil {
		err = multierr.Append(err, b.capture.Close())
	}
	err = multierr.Append(err, b.closeOutput())
	err = multierr.Append(err, b.closeResources())

	log.Info("Bridge closed", "captured", humanize.Bytes(b.captured.Load()))
	return err
}

func (b *Bridge) closeOutput() error {
	if b.outFile == nil {
		return nil
	}
	var err error
	if b.output != nil {
		err = b.output.Flush()
	}
	return multierr.Append(err, b.outFile.Close())
}

func (b *Bridge) closeResources() error {
	var err error
	for i := len(b.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, b.closers[i].Close())
	}
	b.closers = nil
	return err
}

// muted stands in for an output device that could not be opened.
type muted struct {
	err error
}

func (m muted) Play(context.Context, []byte, audio.Format) error {
	return m.err
}
