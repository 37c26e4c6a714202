package status

import (
	"errors"
	"fmt"
	"testing"
)

func TestRecorder_LimitAndCounts(t *testing.T) {
	r := NewRecorder(3)
	for i := 0; i < 5; i++ {
		r.Event(EventCharactersBilled, fmt.Sprint(i))
	}
	r.Error(ErrTextToSpeechQueueOverflow)

	entries := r.Entries()
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[2].Kind != KindError {
		t.Errorf("expected last entry to be an error, got %s", entries[2].Kind)
	}
	if got := r.Count(EventCharactersBilled); got != 5 {
		t.Errorf("expected count 5, got %d", got)
	}

	last, ok := r.Last(EventCharactersBilled)
	if !ok || last.Value != "4" {
		t.Errorf("unexpected last event %+v", last)
	}
}

func TestReporter_Classifies(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantError string
		wantExc   bool
	}{
		{
			name:      "identified",
			err:       WithID(ErrFailedToPlaySound, errors.New("device busy")),
			wantError: ErrFailedToPlaySound,
		},
		{
			name:      "wrapped identified",
			err:       fmt.Errorf("speak: %w", WithID(ErrSynthesisFailed, errors.New("deadline"))),
			wantError: ErrSynthesisFailed,
		},
		{
			name:    "plain",
			err:     errors.New("nil pointer somewhere"),
			wantExc: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := NewRecorder(0)
			Reporter{Sink: rec}.Report(tt.err)

			entries := rec.Entries()
			if len(entries) != 1 {
				t.Fatalf("expected one entry, got %d", len(entries))
			}
			if tt.wantExc {
				if entries[0].Kind != KindException {
					t.Errorf("expected exception, got %s", entries[0].Kind)
				}
				return
			}
			if entries[0].Kind != KindError || entries[0].Name != tt.wantError {
				t.Errorf("expected error %q, got %+v", tt.wantError, entries[0])
			}
		})
	}
}

func TestTee_FansOut(t *testing.T) {
	a, b := NewRecorder(0), NewRecorder(0)
	sink := Tee{a, b, Discard}
	sink.Event(EventMessage, "hello")
	sink.Exception(errors.New("x"))

	if len(a.Entries()) != 2 || len(b.Entries()) != 2 {
		t.Errorf("expected both recorders to see 2 entries, got %d and %d",
			len(a.Entries()), len(b.Entries()))
	}
}
