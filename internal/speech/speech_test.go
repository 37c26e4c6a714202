package speech

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/voicebridge/voicebridge/internal/audio"
	"github.com/voicebridge/voicebridge/internal/cache"
	"github.com/voicebridge/voicebridge/internal/status"
	"github.com/voicebridge/voicebridge/internal/synth"
)

func drive(t *testing.T, sq *Queue, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not reached before deadline")
		}
		sq.Drive()
		time.Sleep(time.Millisecond)
	}
}

// scripted fails the requests whose SSML contains a marker.
type scripted struct {
	synth.Mock
	failOn string
}

func (s *scripted) Synthesize(ctx context.Context, req synth.Request) (synth.Audio, error) {
	if s.failOn != "" && strings.Contains(req.SSML, s.failOn) {
		return synth.Audio{}, errors.New("provider rejected request")
	}
	return s.Mock.Synthesize(ctx, req)
}

func TestSSML(t *testing.T) {
	tests := []struct {
		text, sayAs, want string
	}{
		{"N123-AB", "characters", `<speak> <say-as interpret-as="characters">N123−AB</say-as> </speak>`},
		{"a < b & c", "", `<speak> <say-as interpret-as="verbatim">a &lt; b &amp; c</say-as> </speak>`},
	}
	for _, tt := range tests {
		if got := SSML(tt.text, tt.sayAs); got != tt.want {
			t.Errorf("SSML(%q, %q) = %q, want %q", tt.text, tt.sayAs, got, tt.want)
		}
	}

	// the minus sign counts as one character
	if n := BilledCharacters(SSML("-", "x")); n != len(`<speak> <say-as interpret-as="x">-</say-as> </speak>`) {
		t.Errorf("unexpected billed count %d", n)
	}
}

func TestQueue_OverflowAtCapacity(t *testing.T) {
	rec := status.NewRecorder(0)
	sq := NewQueue(&synth.Mock{}, audio.NewMockPlayer(0), Options{Capacity: 10, Sink: rec})
	defer sq.Close()

	for i := 0; i < 10; i++ {
		if _, err := sq.Speak("message"); err != nil {
			t.Fatalf("Speak %d failed: %v", i, err)
		}
	}

	done := make(chan error, 1)
	go func() {
		_, err := sq.Speak("one too many")
		done <- err
	}()
	select {
	case err := <-done:
		if !errors.Is(err, ErrQueueOverflow) {
			t.Errorf("expected ErrQueueOverflow, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Speak blocked on a full queue")
	}

	if sq.Depth() != 10 {
		t.Errorf("expected depth to stay at 10, got %d", sq.Depth())
	}
	if rec.Count(status.ErrTextToSpeechQueueOverflow) != 1 {
		t.Errorf("expected one overflow report, got %+v", rec.Entries())
	}
	if sq.Stats().TotalDropped != 1 {
		t.Errorf("expected one dropped request, got %+v", sq.Stats())
	}
}

func TestQueue_PlaysInOrderWithoutOverlap(t *testing.T) {
	var mu sync.Mutex
	var order []int

	player := audio.NewMockPlayer(10 * time.Millisecond)
	player.OnPlay = func(pcm []byte, _ audio.Format) {
		mu.Lock()
		order = append(order, len(pcm))
		mu.Unlock()
	}

	// audio length grows with the text so each utterance is recognizable
	sq := NewQueue(&synth.Mock{PerChar: time.Millisecond}, player, Options{SampleRate: 16000})
	defer sq.Close()

	texts := []string{"a", "bb", "ccc", "dddd"}
	for _, text := range texts {
		_, _ = sq.Speak(text)
	}
	drive(t, sq, func() bool { return sq.Spoken() == int64(len(texts)) })

	if player.MaxConcurrent() != 1 {
		t.Errorf("playback overlapped: %d concurrent", player.MaxConcurrent())
	}
	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(order); i++ {
		if order[i] <= order[i-1] {
			t.Fatalf("utterances played out of order: %v", order)
		}
	}
}

func TestQueue_NextWaitsForActive(t *testing.T) {
	release := make(chan struct{})
	player := audio.NewMockPlayer(0)
	player.OnPlay = func([]byte, audio.Format) { <-release }

	sq := NewQueue(&synth.Mock{}, player, Options{})
	defer sq.Close()

	_, _ = sq.Speak("first")
	_, _ = sq.Speak("second")
	drive(t, sq, func() bool { return player.PlayCount() == 1 })

	for i := 0; i < 20; i++ {
		sq.Drive()
		time.Sleep(time.Millisecond)
	}
	if player.PlayCount() != 1 || sq.Depth() != 1 {
		t.Errorf("second utterance started early: plays=%d depth=%d", player.PlayCount(), sq.Depth())
	}
	if cur, ok := sq.Current(); !ok || cur.Text != "first" {
		t.Errorf("expected first to be current, got %+v", cur)
	}

	close(release)
	drive(t, sq, func() bool { return sq.Spoken() == 2 })
}

func TestQueue_FailuresDoNotBlockNext(t *testing.T) {
	rec := status.NewRecorder(0)
	s := &scripted{failOn: "broken"}
	player := audio.NewMockPlayer(0)

	sq := NewQueue(s, player, Options{Sink: rec})
	defer sq.Close()

	_, _ = sq.Speak("broken")
	_, _ = sq.Speak("fine")
	drive(t, sq, func() bool { return sq.Spoken() == 1 })

	if rec.Count(status.ErrSynthesisFailed) != 1 {
		t.Errorf("expected one synthesis failure, got %+v", rec.Entries())
	}
	if rec.Count(status.EventCharactersBilled) != 1 {
		t.Errorf("only the successful utterance is billed, got %+v", rec.Entries())
	}
	e, _ := rec.Last(status.EventCharactersBilled)
	if e.Value != "62" {
		t.Errorf("expected 62 billed characters, got %s", e.Value)
	}
}

func TestQueue_PlaybackFailureReported(t *testing.T) {
	rec := status.NewRecorder(0)
	player := &audio.MockPlayer{Err: errors.New("device lost")}

	sq := NewQueue(&synth.Mock{}, player, Options{Sink: rec})
	defer sq.Close()

	_, _ = sq.Speak("hello")
	drive(t, sq, func() bool { return rec.Count(status.ErrFailedToPlaySound) == 1 })

	if rec.Count(status.EventCharactersBilled) != 1 {
		t.Error("synthesis succeeded, so characters are still billed")
	}
	if sq.Spoken() != 0 {
		t.Error("a failed playback must not count as spoken")
	}
}

func TestQueue_CachedSpeechIsNotBilled(t *testing.T) {
	rec := status.NewRecorder(0)
	provider := &synth.Mock{}
	s := synth.WithCache(provider, cache.NewMemoryCache(1<<20))

	sq := NewQueue(s, audio.NewMockPlayer(0), Options{Sink: rec})
	defer sq.Close()

	_, _ = sq.Speak("hello")
	drive(t, sq, func() bool { return sq.Spoken() == 1 })
	_, _ = sq.Speak("hello")
	drive(t, sq, func() bool { return sq.Spoken() == 2 })

	if n := len(provider.Requests()); n != 1 {
		t.Errorf("expected the provider to be called once, got %d", n)
	}
	if n := rec.Count(status.EventCharactersBilled); n != 1 {
		t.Errorf("expected one billing event, got %d", n)
	}
	want := int64(BilledCharacters(SSML("hello", DefaultSayAs)))
	if sq.Billed() != want {
		t.Errorf("expected %d billed characters, got %d", want, sq.Billed())
	}
}

func TestQueue_SynthesisTimeout(t *testing.T) {
	rec := status.NewRecorder(0)
	slow := &synth.Mock{Delay: time.Hour}

	sq := NewQueue(slow, audio.NewMockPlayer(0), Options{Timeout: 20 * time.Millisecond, Sink: rec})
	defer sq.Close()

	_, _ = sq.Speak("late")
	drive(t, sq, func() bool { return rec.Count(status.ErrSynthesisFailed) == 1 })
}

func TestQueue_BlankTextIgnored(t *testing.T) {
	sq := NewQueue(&synth.Mock{}, audio.NewMockPlayer(0), Options{})
	defer sq.Close()

	if id, err := sq.Speak("  "); id != "" || err != nil {
		t.Errorf("expected blank text to be skipped, got %q %v", id, err)
	}
	if sq.Depth() != 0 {
		t.Error("blank text must not be queued")
	}
}

func TestQueue_IdleDriveStartsNothing(t *testing.T) {
	sq := NewQueue(&synth.Mock{}, audio.NewMockPlayer(0), Options{})
	defer sq.Close()

	for i := 0; i < 10; i++ {
		sq.Drive()
	}
	if sq.Busy() || sq.w.Stats().Started != 0 {
		t.Error("idle driving must not start work")
	}
}

func TestQueue_CloseIsIdempotent(t *testing.T) {
	sq := NewQueue(&synth.Mock{}, audio.NewMockPlayer(time.Hour), Options{})
	_, _ = sq.Speak("one")
	_, _ = sq.Speak("two")
	sq.Drive()

	for i := 0; i < 2; i++ {
		if err := sq.Close(); err != nil {
			t.Errorf("Close #%d failed: %v", i+1, err)
		}
	}
	if _, err := sq.Speak("after"); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("expected ErrQueueClosed, got %v", err)
	}
}
