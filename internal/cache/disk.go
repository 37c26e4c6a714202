package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/zstd"
)

const diskExt = ".pcm.zst"

// DiskCache stores zstd-compressed audio as one file per key. The index is
// rebuilt from the directory on start, so files survive restarts.
type DiskCache struct {
	dir      string
	capacity int64
	size     int64

	encoder *zstd.Encoder
	decoder *zstd.Decoder

	index map[string]*diskEntry

	mu    sync.Mutex
	stats Stats
}

type diskEntry struct {
	size       int64 // compressed size on disk
	lastAccess time.Time
}

// NewDiskCache opens or creates a cache in dir.
func NewDiskCache(dir string, capacity int64, level int) (*DiskCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	if level <= 0 {
		level = 3
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	dc := &DiskCache{
		dir:      dir,
		capacity: capacity,
		encoder:  enc,
		decoder:  dec,
		index:    make(map[string]*diskEntry),
	}
	if err := dc.scan(); err != nil {
		return nil, err
	}
	log.Debug("Disk cache opened", "dir", dir, "items", len(dc.index), "size", humanize.Bytes(uint64(dc.size)))
	return dc, nil
}

func (dc *DiskCache) scan() error {
	entries, err := os.ReadDir(dc.dir)
	if err != nil {
		return fmt.Errorf("failed to read cache directory: %w", err)
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, diskExt) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		dc.index[strings.TrimSuffix(name, diskExt)] = &diskEntry{
			size:       info.Size(),
			lastAccess: info.ModTime(),
		}
		dc.size += info.Size()
	}
	return nil
}

func (dc *DiskCache) path(key string) string {
	return filepath.Join(dc.dir, key+diskExt)
}

// Get reads and decompresses the value for key. Unreadable files are
// dropped from the cache.
func (dc *DiskCache) Get(key string) ([]byte, bool) {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	entry, ok := dc.index[key]
	if !ok {
		dc.stats.Misses++
		return nil, false
	}

	raw, err := os.ReadFile(dc.path(key))
	if err == nil {
		var data []byte
		data, err = dc.decoder.DecodeAll(raw, nil)
		if err == nil {
			now := time.Now()
			entry.lastAccess = now
			_ = os.Chtimes(dc.path(key), now, now)
			dc.stats.Hits++
			return data, true
		}
		err = fmt.Errorf("%w: %v", ErrCorrupted, err)
	}

	log.Debug("Dropping unreadable cache entry", "key", key, "err", err)
	dc.drop(key)
	dc.stats.Misses++
	return nil, false
}

// Put compresses value and writes it to disk, evicting the least recently
// used files when over capacity.
func (dc *DiskCache) Put(key string, value []byte) error {
	data := dc.encoder.EncodeAll(value, nil)
	n := int64(len(data))

	dc.mu.Lock()
	defer dc.mu.Unlock()

	if n > dc.capacity {
		return ErrItemTooLarge
	}
	if _, ok := dc.index[key]; ok {
		dc.drop(key)
	}
	dc.evict(n)

	tmp := dc.path(key) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := os.Rename(tmp, dc.path(key)); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write cache file: %w", err)
	}

	dc.index[key] = &diskEntry{size: n, lastAccess: time.Now()}
	dc.size += n
	return nil
}

// must be called with dc.mu held
func (dc *DiskCache) evict(incoming int64) {
	if dc.size+incoming <= dc.capacity {
		return
	}
	keys := make([]string, 0, len(dc.index))
	for k := range dc.index {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return dc.index[keys[i]].lastAccess.Before(dc.index[keys[j]].lastAccess)
	})
	for _, k := range keys {
		if dc.size+incoming <= dc.capacity {
			return
		}
		dc.drop(k)
		dc.stats.Evictions++
	}
}

// must be called with dc.mu held
func (dc *DiskCache) drop(key string) {
	if entry, ok := dc.index[key]; ok {
		_ = os.Remove(dc.path(key))
		dc.size -= entry.size
		delete(dc.index, key)
	}
}

// Stats returns a snapshot of the counters.
func (dc *DiskCache) Stats() Stats {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	s := dc.stats
	s.Capacity = dc.capacity
	s.Size = dc.size
	s.Items = int64(len(dc.index))
	return s
}

// Close releases the codec resources.
func (dc *DiskCache) Close() error {
	dc.decoder.Close()
	return dc.encoder.Close()
}
