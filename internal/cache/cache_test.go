package cache

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestMemoryCache_LRUEviction(t *testing.T) {
	c := NewMemoryCache(30)

	_ = c.Put("a", make([]byte, 10))
	_ = c.Put("b", make([]byte, 10))
	_ = c.Put("c", make([]byte, 10))

	// touch a so b becomes the oldest
	if _, ok := c.Get("a"); !ok {
		t.Fatal("expected a to be cached")
	}
	_ = c.Put("d", make([]byte, 10))

	if c.Contains("b") {
		t.Error("expected b to be evicted")
	}
	for _, k := range []string{"a", "c", "d"} {
		if !c.Contains(k) {
			t.Errorf("expected %s to survive", k)
		}
	}

	s := c.Stats()
	if s.Size != 30 || s.Items != 3 || s.Evictions != 1 {
		t.Errorf("unexpected stats %+v", s)
	}
}

func TestMemoryCache_ReplaceAndTooLarge(t *testing.T) {
	c := NewMemoryCache(16)

	_ = c.Put("k", []byte("one"))
	_ = c.Put("k", []byte("three"))
	if got, _ := c.Get("k"); string(got) != "three" {
		t.Errorf("expected replaced value, got %q", got)
	}
	if c.Stats().Size != 5 {
		t.Errorf("expected size 5, got %d", c.Stats().Size)
	}

	if err := c.Put("big", make([]byte, 17)); !errors.Is(err, ErrItemTooLarge) {
		t.Errorf("expected ErrItemTooLarge, got %v", err)
	}

	_, _ = c.Get("missing")
	if r := c.Stats().HitRate(); r != 0.5 {
		t.Errorf("expected hit rate 0.5, got %v", r)
	}
}

func TestDiskCache_PersistsAcrossOpen(t *testing.T) {
	dir := t.TempDir()
	value := bytes.Repeat([]byte("speech "), 500)

	dc, err := NewDiskCache(dir, 1<<20, 3)
	if err != nil {
		t.Fatal(err)
	}
	if err := dc.Put("greeting", value); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if dc.Stats().Size >= int64(len(value)) {
		t.Error("expected compressed size on disk")
	}
	_ = dc.Close()

	reopened, err := NewDiskCache(dir, 1<<20, 3)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	got, ok := reopened.Get("greeting")
	if !ok || !bytes.Equal(got, value) {
		t.Fatal("expected value to survive reopening")
	}
}

func TestDiskCache_DropsCorruptFiles(t *testing.T) {
	dir := t.TempDir()
	dc, _ := NewDiskCache(dir, 1<<20, 1)
	defer dc.Close()

	_ = dc.Put("k", []byte("audio"))
	if err := os.WriteFile(filepath.Join(dir, "k"+diskExt), []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, ok := dc.Get("k"); ok {
		t.Error("corrupt entry should be a miss")
	}
	if dc.Stats().Items != 0 {
		t.Error("corrupt entry should be removed")
	}
}

func TestDiskCache_EvictsLeastRecentlyUsed(t *testing.T) {
	dir := t.TempDir()
	dc, _ := NewDiskCache(dir, 1<<20, 1)
	defer dc.Close()

	_ = dc.Put("old", []byte("first"))
	time.Sleep(10 * time.Millisecond)
	_ = dc.Put("new", []byte("second"))

	dc.capacity = dc.Stats().Size
	_ = dc.Put("newest", []byte("third"))

	if _, ok := dc.Get("old"); ok {
		t.Error("expected the oldest entry to be evicted")
	}
	if _, ok := dc.Get("newest"); !ok {
		t.Error("expected the new entry to be stored")
	}
}

func TestTiered_PromotesDiskHits(t *testing.T) {
	tc, err := New(Config{MemoryCapacity: 1024, DiskCapacity: 1 << 20, Dir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	defer tc.Close()

	_ = tc.Disk.Put("k", []byte("pcm"))
	if _, ok := tc.Get("k"); !ok {
		t.Fatal("expected disk hit")
	}
	if !tc.Memory.Contains("k") || tc.Promotions() != 1 {
		t.Error("expected the disk hit to be promoted to memory")
	}

	if _, ok := tc.Get("absent"); ok {
		t.Error("expected a miss")
	}
	s := tc.Stats()
	if s.Hits != 1 || s.Misses != 1 {
		t.Errorf("unexpected stats %+v", s)
	}
}

func TestTiered_MemoryOnly(t *testing.T) {
	tc, _ := New(Config{MemoryCapacity: 4})
	if err := tc.Put("k", []byte("too long")); !errors.Is(err, ErrItemTooLarge) {
		t.Errorf("expected ErrItemTooLarge, got %v", err)
	}
	if err := tc.Close(); err != nil {
		t.Error(err)
	}
}

func TestKey(t *testing.T) {
	a := Key{SSML: "<speak>hi</speak>", LanguageCode: "en-US", SampleRate: 24000}
	b := a
	b.Voice = "en-US-Wavenet-D"

	if a.String() == b.String() {
		t.Error("different voices must not share a key")
	}
	if a.String() != (Key{SSML: "<speak>hi</speak>", LanguageCode: "en-US", SampleRate: 24000}).String() {
		t.Error("keys must be stable")
	}
}
