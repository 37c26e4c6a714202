package synth

import (
	"context"
	"errors"
	"strings"

	"github.com/voicebridge/voicebridge/internal/audio"
)

// DefaultSampleRate is used when a request does not name one.
const DefaultSampleRate = 24000

var (
	// ErrSynthesis wraps provider failures.
	ErrSynthesis = errors.New("speech synthesis failed")

	// ErrCredentials is returned when a provider client cannot be created.
	ErrCredentials = errors.New("speech provider credentials unavailable")
)

// Request is one synthesis call.
type Request struct {
	SSML         string
	LanguageCode string
	Voice        string
	Gender       string
	SampleRate   int
}

// Audio is synthesized mono PCM.
type Audio struct {
	PCM    []byte
	Format audio.Format

	// Cached is set when the audio came from the cache and the provider
	// was not called, so nothing was billed.
	Cached bool
}

// Synthesizer converts SSML to audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) (Audio, error)
}

// genderName normalizes a configured gender to the provider enum name.
// An empty value leaves the choice to the provider.
func genderName(g string) string {
	switch g = strings.ToUpper(strings.TrimSpace(g)); g {
	case "":
		return "SSML_VOICE_GENDER_UNSPECIFIED"
	default:
		return g
	}
}

// decodeAudio strips the WAV header the provider puts on LINEAR16 output.
func decodeAudio(content []byte, req Request) (Audio, error) {
	pcm, format, ok := audio.StripWAV(content)
	if !ok || format.SampleRate == 0 {
		format = audio.Format{SampleRate: req.SampleRate, Channels: 1}
		if format.SampleRate <= 0 {
			format.SampleRate = DefaultSampleRate
		}
	}
	if len(pcm) == 0 {
		return Audio{}, errors.New("provider returned no audio")
	}
	return Audio{PCM: pcm, Format: format}, nil
}
