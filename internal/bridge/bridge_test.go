package bridge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/text/encoding/unicode"

	"github.com/voicebridge/voicebridge/internal/audio"
	"github.com/voicebridge/voicebridge/internal/capture"
	"github.com/voicebridge/voicebridge/internal/config"
	"github.com/voicebridge/voicebridge/internal/pipe"
	"github.com/voicebridge/voicebridge/internal/speech"
	"github.com/voicebridge/voicebridge/internal/status"
)

func testConfig() config.Config {
	cfg := config.DefaultConfig()
	cfg.Pipe.Name = "test"
	cfg.Pipe.ConnectTimeout = 200 * time.Millisecond
	cfg.Speech.Provider = "mock"
	cfg.Cache.Dir = ""
	return cfg
}

func tickUntil(t *testing.T, b *Bridge, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not reached before deadline: %+v", b.Snapshot())
		}
		b.Tick()
		time.Sleep(time.Millisecond)
	}
}

func utf16(s string) []byte {
	b, err := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder().Bytes([]byte(s))
	if err != nil {
		panic(err)
	}
	return b
}

func connectTo(r io.ReadCloser) pipe.Dialer {
	return pipe.DialerFunc(func(context.Context, string) (io.ReadCloser, error) {
		return r, nil
	})
}

func TestBridge_EchoesMessages(t *testing.T) {
	cfg := testConfig()
	cfg.Capture.Enabled = false
	cfg.Speech.EchoMessages = true

	pr, pw := io.Pipe()
	rec := status.NewRecorder(0)
	player := audio.NewMockPlayer(0)

	b, err := New(context.Background(), cfg, Options{
		Sink:    rec,
		Dialer:  connectTo(pr),
		Speaker: player,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	if err := b.Start(); err != nil {
		t.Fatal(err)
	}
	tickUntil(t, b, func() bool { return b.Snapshot().PipeState == pipe.Connected })

	go func() { _, _ = pw.Write(utf16("hello\r\nworld\r\n")) }()
	tickUntil(t, b, func() bool { return b.Snapshot().Spoken == 2 })

	snap := b.Snapshot()
	if len(snap.Messages) != 2 || snap.Messages[0] != "hello" || snap.Messages[1] != "world" {
		t.Errorf("unexpected messages %q", snap.Messages)
	}
	if last, _ := snap.LastMessage(); last != "world" {
		t.Errorf("expected last message world, got %q", last)
	}
	if rec.Count(status.EventConnected) != 1 || rec.Count(status.EventMessage) != 2 {
		t.Errorf("unexpected events %+v", rec.Entries())
	}
	if rec.Count(status.EventCharactersBilled) != 2 || snap.Billed == 0 {
		t.Errorf("expected both utterances billed, got %+v", rec.Entries())
	}
	if player.MaxConcurrent() != 1 {
		t.Errorf("playback overlapped: %d", player.MaxConcurrent())
	}
}

func TestBridge_MessagesWithoutEcho(t *testing.T) {
	cfg := testConfig()
	cfg.Capture.Enabled = false

	pr, pw := io.Pipe()
	var got []string
	b, err := New(context.Background(), cfg, Options{
		Sink:      status.Discard,
		Dialer:    connectTo(pr),
		Speaker:   audio.NewMockPlayer(0),
		OnMessage: func(msg string) { got = append(got, msg) },
	})
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	_ = b.Start()
	go func() { _, _ = pw.Write(utf16("just text\r\n")) }()
	tickUntil(t, b, func() bool { return len(got) == 1 })

	for i := 0; i < 20; i++ {
		b.Tick()
	}
	if !b.Idle() || b.Snapshot().Spoken != 0 {
		t.Error("messages must not be spoken unless echo is on")
	}
}

func TestBridge_ConnectTimeoutReported(t *testing.T) {
	cfg := testConfig()
	cfg.Capture.Enabled = false
	cfg.Speech.Enabled = false

	rec := status.NewRecorder(0)
	absent := pipe.DialerFunc(func(context.Context, string) (io.ReadCloser, error) {
		return nil, fmt.Errorf("no such pipe: %w", pipe.ErrNotAvailable)
	})
	b, err := New(context.Background(), cfg, Options{Sink: rec, Dialer: absent})
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	_ = b.Start()
	if b.Reconnect() {
		t.Error("a second connect must not start while one is pending")
	}
	tickUntil(t, b, func() bool { return !b.Snapshot().Connecting })

	e, ok := rec.Last("exception")
	if !ok || !errors.Is(e.Err, pipe.ErrConnectTimeout) {
		t.Errorf("expected a connect timeout, got %+v", rec.Entries())
	}
	if b.Snapshot().PipeState != pipe.Disconnected {
		t.Errorf("expected disconnected, got %v", b.Snapshot().PipeState)
	}
	if !b.Reconnect() {
		t.Error("expected a new attempt after the timeout")
	}
}

func TestBridge_WritesCapturedAudio(t *testing.T) {
	cfg := testConfig()
	cfg.Pipe.Enabled = false
	cfg.Speech.Enabled = false
	cfg.Capture.Output = filepath.Join(t.TempDir(), "capture.pcm")

	dev := &capture.FuncDevice{}
	b, err := New(context.Background(), cfg, Options{Sink: status.Discard, Device: dev})
	if err != nil {
		t.Fatal(err)
	}
	if err := b.Start(); err != nil {
		t.Fatal(err)
	}

	want := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	dev.Feed(want[:4])
	dev.Feed(want[4:])
	tickUntil(t, b, func() bool { return b.Snapshot().Captured == uint64(len(want)) })

	if err := b.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	got, err := os.ReadFile(cfg.Capture.Output)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("expected %v on disk, got %v", want, got)
	}
	if !dev.Closed() {
		t.Error("capture device was not released")
	}
}

func TestBridge_CaptureFailureDoesNotStopOthers(t *testing.T) {
	cfg := testConfig()
	cfg.Pipe.Enabled = false

	rec := status.NewRecorder(0)
	player := audio.NewMockPlayer(0)
	b, err := New(context.Background(), cfg, Options{
		Sink:    rec,
		Device:  &capture.FuncDevice{StartErr: errors.New("no microphone")},
		Speaker: player,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	if err := b.Start(); err != nil {
		t.Fatal(err)
	}
	if rec.Count(status.ErrCaptureFailed) != 1 {
		t.Errorf("expected a capture failure report, got %+v", rec.Entries())
	}

	if _, err := b.Speak("still talking"); err != nil {
		t.Fatal(err)
	}
	tickUntil(t, b, func() bool { return b.Snapshot().Spoken == 1 })
}

func TestBridge_CaptureRetryAfterFailedStart(t *testing.T) {
	cfg := testConfig()
	cfg.Pipe.Enabled = false
	cfg.Speech.Enabled = false
	cfg.Capture.Output = filepath.Join(t.TempDir(), "capture.pcm")

	rec := status.NewRecorder(0)
	dev := &capture.FuncDevice{StartErr: errors.New("device busy")}
	b, err := New(context.Background(), cfg, Options{Sink: rec, Device: dev})
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	if err := b.Start(); err != nil {
		t.Fatal(err)
	}
	if rec.Count(status.ErrCaptureFailed) != 1 {
		t.Fatalf("expected a capture failure report, got %+v", rec.Entries())
	}
	if b.outFile != nil {
		t.Error("no output file should be open while capture is down")
	}
	if _, err := os.Stat(cfg.Capture.Output); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("output must not be created before the device opens, got %v", err)
	}

	dev.StartErr = nil
	if err := b.Start(); err != nil {
		t.Fatal(err)
	}
	if b.outFile == nil || !dev.Running() {
		t.Fatal("expected capture to run after the retry")
	}
	dev.Feed([]byte{1, 2})
	tickUntil(t, b, func() bool { return b.Snapshot().Captured == 2 })
}

func TestBridge_CachesRepeatedSpeech(t *testing.T) {
	cfg := testConfig()
	cfg.Capture.Enabled = false
	cfg.Pipe.Enabled = false

	b, err := New(context.Background(), cfg, Options{Sink: status.Discard, Speaker: audio.NewMockPlayer(0)})
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	for i := 0; i < 2; i++ {
		_, _ = b.Speak("same words")
	}
	tickUntil(t, b, func() bool { return b.Snapshot().Spoken == 2 })

	snap := b.Snapshot()
	if !snap.CacheEnabled || snap.Cache.Hits != 1 {
		t.Errorf("expected the second utterance to hit the cache, got %+v", snap.Cache)
	}
	if want := int64(speech.BilledCharacters(speech.SSML("same words", cfg.Speech.SayAs))); snap.Billed != want {
		t.Errorf("only the synthesized utterance is billed: want %d, got %d", want, snap.Billed)
	}
}

func TestBridge_SpeechDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Capture.Enabled = false
	cfg.Pipe.Enabled = false
	cfg.Speech.Enabled = false

	b, err := New(context.Background(), cfg, Options{Sink: status.Discard})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.Speak("nobody listens"); !errors.Is(err, ErrSpeechDisabled) {
		t.Errorf("expected ErrSpeechDisabled, got %v", err)
	}
	if !b.Idle() {
		t.Error("a bridge without speech is always idle")
	}
	b.Tick()

	for i := 0; i < 2; i++ {
		if err := b.Close(); err != nil {
			t.Errorf("Close #%d failed: %v", i+1, err)
		}
	}
	if err := b.Start(); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestNew_UnknownProvider(t *testing.T) {
	cfg := testConfig()
	cfg.Speech.Provider = "espeak"
	if _, err := New(context.Background(), cfg, Options{Sink: status.Discard}); err == nil {
		t.Error("expected an unknown provider to fail")
	}
}
