package synth

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/voicebridge/voicebridge/internal/audio"
	"github.com/voicebridge/voicebridge/internal/cache"
)

// Limited spaces calls to the wrapped provider.
type Limited struct {
	Synthesizer
	limiter *rate.Limiter
}

// WithRateLimit allows perMinute calls a minute. Zero or less disables it.
func WithRateLimit(s Synthesizer, perMinute int) Synthesizer {
	if perMinute <= 0 {
		return s
	}
	return &Limited{
		Synthesizer: s,
		limiter:     rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1),
	}
}

// Synthesize waits for the limiter, then calls the provider.
func (l *Limited) Synthesize(ctx context.Context, req Request) (Audio, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return Audio{}, fmt.Errorf("%w: rate limit wait cancelled: %w", ErrSynthesis, err)
	}
	return l.Synthesizer.Synthesize(ctx, req)
}

// Cached serves repeated requests from a cache.
type Cached struct {
	Synthesizer
	cache cache.Cache
}

// WithCache wraps s with c. A nil cache returns s unchanged.
func WithCache(s Synthesizer, c cache.Cache) Synthesizer {
	if c == nil {
		return s
	}
	return &Cached{Synthesizer: s, cache: c}
}

// Synthesize implements Synthesizer. Cache failures are logged, never
// returned.
func (c *Cached) Synthesize(ctx context.Context, req Request) (Audio, error) {
	key := cache.Key{
		SSML:         req.SSML,
		LanguageCode: req.LanguageCode,
		Voice:        req.Voice,
		Gender:       req.Gender,
		SampleRate:   req.SampleRate,
	}.String()

	if data, ok := c.cache.Get(key); ok {
		if a, err := unpackAudio(data); err == nil {
			log.Debug("Speech served from cache", "key", key)
			a.Cached = true
			return a, nil
		}
	}

	a, err := c.Synthesizer.Synthesize(ctx, req)
	if err != nil {
		return a, err
	}
	if err := c.cache.Put(key, packAudio(a)); err != nil {
		log.Debug("Speech not cached", "key", key, "err", err)
	}
	return a, nil
}

// cached entries carry the format as two little-endian uint32s before the PCM
func packAudio(a Audio) []byte {
	var b bytes.Buffer
	_ = binary.Write(&b, binary.LittleEndian, uint32(a.Format.SampleRate))
	_ = binary.Write(&b, binary.LittleEndian, uint32(a.Format.Channels))
	b.Write(a.PCM)
	return b.Bytes()
}

func unpackAudio(data []byte) (Audio, error) {
	if len(data) < 8 {
		return Audio{}, cache.ErrCorrupted
	}
	f := audio.Format{
		SampleRate: int(binary.LittleEndian.Uint32(data[0:4])),
		Channels:   int(binary.LittleEndian.Uint32(data[4:8])),
	}
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return Audio{}, cache.ErrCorrupted
	}
	return Audio{PCM: data[8:], Format: f}, nil
}
