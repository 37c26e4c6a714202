package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
)

var (
	// ErrItemTooLarge is returned when an item exceeds the cache capacity.
	ErrItemTooLarge = errors.New("item too large for cache")

	// ErrCorrupted is returned when stored data cannot be decoded.
	ErrCorrupted = errors.New("cache data corrupted")
)

// Stats holds cache counters.
type Stats struct {
	Capacity  int64
	Size      int64
	Items     int64
	Hits      int64
	Misses    int64
	Evictions int64
}

// HitRate returns hits / (hits + misses).
func (s Stats) HitRate() float64 {
	if s.Hits+s.Misses == 0 {
		return 0
	}
	return float64(s.Hits) / float64(s.Hits+s.Misses)
}

// Cache stores audio by key.
type Cache interface {
	Get(key string) ([]byte, bool)
	Put(key string, value []byte) error
	Stats() Stats
}

// Key identifies one synthesized utterance. Two requests that differ in any
// field produce different audio.
type Key struct {
	SSML         string
	LanguageCode string
	Voice        string
	Gender       string
	SampleRate   int
}

// String returns a stable hash of the key.
func (k Key) String() string {
	h := sha256.Sum256([]byte(strings.Join([]string{
		k.SSML, k.LanguageCode, k.Voice, k.Gender, strconv.Itoa(k.SampleRate),
	}, "\x00")))
	return hex.EncodeToString(h[:16])
}
