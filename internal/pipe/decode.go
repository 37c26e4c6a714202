package pipe

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
)

// Separator delimits messages in the stream.
const Separator = "\r\n"

// Encoding names the text encoding of the stream.
type Encoding string

const (
	EncodingUTF16LE Encoding = "utf-16le"
	EncodingUTF8    Encoding = "utf-8"
)

// Decoder turns raw reads into text. A code unit, surrogate pair or UTF-8
// sequence split across two reads is carried over to the next call.
type Decoder struct {
	enc   encoding.Encoding
	width int
	carry []byte
}

// NewDecoder returns a decoder for e.
func NewDecoder(e Encoding) (*Decoder, error) {
	switch e {
	case EncodingUTF16LE, "":
		return &Decoder{enc: unicode.UTF16(unicode.LittleEndian, unicode.UseBOM), width: 2}, nil
	case EncodingUTF8:
		return &Decoder{enc: unicode.UTF8, width: 1}, nil
	default:
		return nil, fmt.Errorf("unsupported encoding %q", e)
	}
}

// Decode converts one payload to text.
func (d *Decoder) Decode(raw []byte) (string, error) {
	if len(d.carry) > 0 {
		raw = append(d.carry, raw...)
		d.carry = nil
	}
	if cut := d.complete(raw); cut < len(raw) {
		d.carry = append([]byte(nil), raw[cut:]...)
		raw = raw[:cut]
	}

	out, err := d.enc.NewDecoder().Bytes(raw)
	if err != nil {
		return "", fmt.Errorf("failed to decode payload: %w", err)
	}
	return string(out), nil
}

// complete returns the length of the prefix of raw that decodes without
// cutting a character in two.
func (d *Decoder) complete(raw []byte) int {
	if d.width == 1 {
		for i := len(raw) - 1; i >= 0 && i >= len(raw)-utf8.UTFMax; i-- {
			if utf8.RuneStart(raw[i]) {
				if !utf8.FullRune(raw[i:]) {
					return i
				}
				break
			}
		}
		return len(raw)
	}

	cut := len(raw) - len(raw)%2
	if cut >= 2 {
		// a high surrogate needs the low one from the next read
		if u := uint16(raw[cut-2]) | uint16(raw[cut-1])<<8; u >= 0xD800 && u < 0xDC00 {
			cut -= 2
		}
	}
	return cut
}

// Reset drops carried bytes, e.g. after reconnecting.
func (d *Decoder) Reset() {
	d.carry = nil
}

// Split breaks decoded text into messages, dropping empty segments.
func Split(text string) []string {
	parts := strings.Split(text, Separator)
	msgs := parts[:0]
	for _, p := range parts {
		if p != "" {
			msgs = append(msgs, p)
		}
	}
	return msgs
}

// maxPartial bounds the text a Framer holds back while waiting for a separator.
const maxPartial = 64 << 10

// Framer splits a stream of decoded reads into messages. A read that may have
// been cut short keeps its text after the last separator for the next call,
// as does a read that ends inside the separator.
type Framer struct {
	partial string
}

// Feed returns the messages completed by text. more reports that the read
// filled its buffer, so the last segment is probably incomplete.
func (f *Framer) Feed(text string, more bool) []string {
	text = f.partial + text
	f.partial = ""
	if (more || strings.HasSuffix(text, "\r")) && len(text) < maxPartial {
		cut := 0
		if i := strings.LastIndex(text, Separator); i >= 0 {
			cut = i + len(Separator)
		}
		f.partial = text[cut:]
		text = text[:cut]
	}
	return Split(text)
}

// Flush returns the held back text, if any, and clears it.
func (f *Framer) Flush() (string, bool) {
	rest := strings.TrimSuffix(f.partial, "\r")
	f.partial = ""
	return rest, rest != ""
}
