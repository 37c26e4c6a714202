package cache

import (
	"fmt"
	"sync/atomic"

	"go.uber.org/multierr"
)

// Tiered checks memory first and falls back to disk, promoting disk hits.
type Tiered struct {
	Memory *MemoryCache
	Disk   *DiskCache

	promotions atomic.Int64
}

// Config sizes a Tiered cache. An empty Dir disables the disk tier.
type Config struct {
	MemoryCapacity   int64
	DiskCapacity     int64
	Dir              string
	CompressionLevel int
}

// New builds a tiered cache from cfg.
func New(cfg Config) (*Tiered, error) {
	t := &Tiered{Memory: NewMemoryCache(cfg.MemoryCapacity)}
	if cfg.Dir != "" {
		disk, err := NewDiskCache(cfg.Dir, cfg.DiskCapacity, cfg.CompressionLevel)
		if err != nil {
			return nil, fmt.Errorf("failed to create disk cache: %w", err)
		}
		t.Disk = disk
	}
	return t, nil
}

// Get implements Cache.
func (t *Tiered) Get(key string) ([]byte, bool) {
	if data, ok := t.Memory.Get(key); ok {
		return data, true
	}
	if t.Disk == nil {
		return nil, false
	}
	data, ok := t.Disk.Get(key)
	if ok {
		if t.Memory.Put(key, data) == nil {
			t.promotions.Add(1)
		}
	}
	return data, ok
}

// Put implements Cache. Items too large for memory still go to disk.
func (t *Tiered) Put(key string, value []byte) error {
	var err error
	if memErr := t.Memory.Put(key, value); memErr != nil && t.Disk == nil {
		err = memErr
	}
	if t.Disk != nil {
		err = multierr.Append(err, t.Disk.Put(key, value))
	}
	return err
}

// Stats sums both tiers. A disk hit counts as a memory miss plus a disk
// hit, so overall hits are memory hits plus disk hits.
func (t *Tiered) Stats() Stats {
	s := t.Memory.Stats()
	if t.Disk != nil {
		d := t.Disk.Stats()
		s.Capacity += d.Capacity
		s.Size += d.Size
		s.Items += d.Items
		s.Evictions += d.Evictions
		s.Hits += d.Hits
		s.Misses = d.Misses
	}
	return s
}

// Promotions returns how many disk hits were copied into memory.
func (t *Tiered) Promotions() int64 {
	return t.promotions.Load()
}

// Close closes the disk tier.
func (t *Tiered) Close() error {
	if t.Disk != nil {
		return t.Disk.Close()
	}
	return nil
}
