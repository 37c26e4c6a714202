package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ebitengine/oto/v3"
)

// ErrPlayerClosed is returned by Play after Close.
var ErrPlayerClosed = errors.New("player is closed")

// Speaker plays a buffer of PCM to completion.
type Speaker interface {
	Play(ctx context.Context, pcm []byte, format Format) error
}

// PlayerConfig contains configuration for the output device.
type PlayerConfig struct {
	SampleRate int // device rate; buffers at other rates are resampled
	Channels   int // 1 = mono, 2 = stereo
	BufferSize time.Duration
}

// DefaultPlayerConfig returns the default player configuration.
func DefaultPlayerConfig() PlayerConfig {
	return PlayerConfig{
		SampleRate: 24000,
		Channels:   1,
		BufferSize: 100 * time.Millisecond,
	}
}

func validateConfig(config PlayerConfig) error {
	switch config.SampleRate {
	case 8000, 11025, 16000, 22050, 24000, 32000, 44100, 48000:
	default:
		return fmt.Errorf("unsupported sample rate %d Hz", config.SampleRate)
	}
	if config.Channels != 1 && config.Channels != 2 {
		return fmt.Errorf("channels must be 1 (mono) or 2 (stereo), got %d", config.Channels)
	}
	if config.BufferSize < 0 {
		return errors.New("buffer size must not be negative")
	}
	return nil
}

// oto allows a single context per process, so every Player shares it.
var (
	sharedOnce   sync.Once
	sharedCtx    *oto.Context
	sharedConfig PlayerConfig
	sharedErr    error
)

func sharedContext(config PlayerConfig) (*oto.Context, PlayerConfig, error) {
	sharedOnce.Do(func() {
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   config.SampleRate,
			ChannelCount: config.Channels,
			Format:       oto.FormatSignedInt16LE,
			BufferSize:   config.BufferSize,
		})
		if err != nil {
			sharedErr = fmt.Errorf("failed to create oto context: %w", err)
			return
		}
		<-ready
		sharedCtx, sharedConfig = ctx, config
		log.Debug("Audio output ready", "sample_rate", config.SampleRate, "channels", config.Channels)
	})
	return sharedCtx, sharedConfig, sharedErr
}

// Player plays speech through the default output device. Play blocks until
// the buffer has drained, so callers run it off the host thread.
type Player struct {
	ctx    *oto.Context
	format Format

	mu      sync.Mutex
	current *oto.Player
	closed  atomic.Bool

	played atomic.Int64 // nanoseconds of audio played
}

// NewPlayer opens the output device.
func NewPlayer(config PlayerConfig) (*Player, error) {
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	ctx, actual, err := sharedContext(config)
	if err != nil {
		return nil, err
	}
	if actual != config {
		log.Debug("Reusing audio output with different config",
			"requested", config.SampleRate, "actual", actual.SampleRate)
	}
	return &Player{
		ctx:    ctx,
		format: Format{SampleRate: actual.SampleRate, Channels: actual.Channels},
	}, nil
}

// Format returns the device format.
func (p *Player) Format() Format {
	return p.format
}

// Played returns the total duration of audio played so far.
func (p *Player) Played() time.Duration {
	return time.Duration(p.played.Load())
}

// Play plays pcm and waits for it to finish. Cancelling ctx stops playback
// early. Buffers are resampled to the device rate when needed.
func (p *Player) Play(ctx context.Context, pcm []byte, format Format) error {
	if p.closed.Load() {
		return ErrPlayerClosed
	}
	if err := format.Validate(pcm); err != nil {
		return err
	}

	data, err := Resample(pcm, format, p.format)
	if err != nil {
		return fmt.Errorf("failed to convert audio: %w", err)
	}

	// data must stay referenced until the oto player drains it
	player := p.ctx.NewPlayer(bytes.NewReader(data))
	p.mu.Lock()
	p.current = player
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.current = nil
		p.mu.Unlock()
		_ = player.Close()
	}()

	start := time.Now()
	player.Play()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for player.IsPlaying() {
		select {
		case <-ctx.Done():
			player.Pause()
			return ctx.Err()
		case <-ticker.C:
		}
		if p.closed.Load() {
			return ErrPlayerClosed
		}
	}
	p.played.Add(int64(time.Since(start)))

	if err := player.Err(); err != nil {
		return fmt.Errorf("playback failed: %w", err)
	}
	return nil
}

// Close stops any playback. The shared device stays open for the process.
func (p *Player) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current != nil {
		p.current.Pause()
	}
	return nil
}
