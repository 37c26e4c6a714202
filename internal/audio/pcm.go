package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidAudioFormat is returned for PCM that does not match its format.
var ErrInvalidAudioFormat = errors.New("invalid audio format")

// Format describes signed 16-bit little-endian PCM.
type Format struct {
	SampleRate int
	Channels   int
}

// BytesPerFrame returns the size of one frame.
func (f Format) BytesPerFrame() int {
	return 2 * f.Channels
}

// Duration returns the playing time of n bytes.
func (f Format) Duration(n int) time.Duration {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	frames := n / f.BytesPerFrame()
	return time.Duration(frames) * time.Second / time.Duration(f.SampleRate)
}

// Validate checks that data is a whole number of frames.
func (f Format) Validate(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty PCM data", ErrInvalidAudioFormat)
	}
	if len(data)%f.BytesPerFrame() != 0 {
		return fmt.Errorf("%w: %d bytes is not aligned to %d-byte frames",
			ErrInvalidAudioFormat, len(data), f.BytesPerFrame())
	}
	return nil
}

// StripWAV returns the PCM payload and format of a RIFF/WAVE buffer. Data
// that is not a WAV file is returned unchanged with ok set to false.
func StripWAV(data []byte) (pcm []byte, format Format, ok bool) {
	if len(data) < 12 || !bytes.Equal(data[0:4], []byte("RIFF")) || !bytes.Equal(data[8:12], []byte("WAVE")) {
		return data, Format{}, false
	}

	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8

		switch id {
		case "fmt ":
			if body+16 <= len(data) {
				format.Channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
				format.SampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			}
		case "data":
			end := body + size
			if end > len(data) || size == 0 {
				end = len(data)
			}
			return data[body:end], format, true
		}

		pos = body + size + size%2
	}
	return data, Format{}, false
}

// Resample converts mono or interleaved PCM between sample rates using
// linear interpolation, which is plenty for speech.
func Resample(data []byte, from, to Format) ([]byte, error) {
	if from.Channels != to.Channels {
		return nil, errors.New("channel count conversion not supported")
	}
	if from.SampleRate == to.SampleRate {
		return data, nil
	}
	if from.SampleRate <= 0 || to.SampleRate <= 0 {
		return nil, fmt.Errorf("%w: sample rates must be positive", ErrInvalidAudioFormat)
	}

	channels := from.Channels
	inFrames := len(data) / from.BytesPerFrame()
	if inFrames == 0 {
		return nil, nil
	}

	sample := func(frame, ch int) float64 {
		off := (frame*channels + ch) * 2
		return float64(int16(binary.LittleEndian.Uint16(data[off:])))
	}

	ratio := float64(to.SampleRate) / float64(from.SampleRate)
	outFrames := int(float64(inFrames) * ratio)
	out := make([]byte, outFrames*to.BytesPerFrame())

	for i := 0; i < outFrames; i++ {
		pos := float64(i) / ratio
		idx := int(pos)
		frac := pos - float64(idx)
		for ch := 0; ch < channels; ch++ {
			var v float64
			if idx >= inFrames-1 {
				v = sample(inFrames-1, ch)
			} else {
				v = sample(idx, ch)*(1-frac) + sample(idx+1, ch)*frac
			}
			binary.LittleEndian.PutUint16(out[(i*channels+ch)*2:], uint16(int16(v)))
		}
	}
	return out, nil
}
