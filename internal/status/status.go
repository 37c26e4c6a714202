// Package status carries named events and categorized errors from the bridge
// components to whoever hosts them.
package status

import (
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Event names.
const (
	EventCharactersBilled = "charactersBilled"
	EventMessage          = "message"
	EventConnected        = "connected"
)

// Error identifiers reported to the host.
const (
	ErrTextToSpeechQueueOverflow = "textToSpeechQueueOverflow"
	ErrFailedToPlaySound         = "FailedToPlaySound"
	ErrGoogleCredentials         = "GoogleCredentialsError"
	ErrSynthesisFailed           = "textToSpeechFailed"
	ErrPipeReadFailed            = "pipeReadFailed"
	ErrPipeClosed                = "pipeClosed"
	ErrCaptureFailed             = "audioCaptureFailed"
)

// Sink receives status from the components. Implementations must be safe for
// concurrent use.
type Sink interface {
	// Event reports a named value, e.g. billed characters.
	Event(name, value string)
	// Error reports a categorized, recovered failure.
	Error(id string)
	// Exception reports an unexpected failure with enough detail to diagnose.
	Exception(err error)
}

// Kind distinguishes recorded entries.
type Kind int

const (
	KindEvent Kind = iota
	KindError
	KindException
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindEvent:
		return "event"
	case KindError:
		return "error"
	case KindException:
		return "exception"
	default:
		return "unknown"
	}
}

// Entry is one recorded report.
type Entry struct {
	Kind  Kind
	Name  string
	Value string
	Err   error
	Time  time.Time
}

// LogSink writes every report to a charmbracelet logger.
type LogSink struct {
	logger *log.Logger
}

// NewLogSink returns a sink that logs through logger, or the default logger
// when logger is nil.
func NewLogSink(logger *log.Logger) *LogSink {
	if logger == nil {
		logger = log.Default()
	}
	return &LogSink{logger: logger.WithPrefix("status")}
}

// Event implements Sink.
func (s *LogSink) Event(name, value string) {
	s.logger.Info("Event", "name", name, "value", value)
}

// Error implements Sink.
func (s *LogSink) Error(id string) {
	s.logger.Warn("Error reported", "id", id)
}

// Exception implements Sink.
func (s *LogSink) Exception(err error) {
	s.logger.Error("Unexpected failure", "error", err)
}

// Recorder keeps the most recent reports in memory.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
	limit   int
	counts  map[string]int
}

// NewRecorder returns a recorder holding at most limit entries. A limit of
// zero keeps everything.
func NewRecorder(limit int) *Recorder {
	return &Recorder{limit: limit, counts: make(map[string]int)}
}

// Event implements Sink.
func (r *Recorder) Event(name, value string) {
	r.add(Entry{Kind: KindEvent, Name: name, Value: value})
}

// Error implements Sink.
func (r *Recorder) Error(id string) {
	r.add(Entry{Kind: KindError, Name: id})
}

// Exception implements Sink.
func (r *Recorder) Exception(err error) {
	r.add(Entry{Kind: KindException, Name: "exception", Value: err.Error(), Err: err})
}

func (r *Recorder) add(e Entry) {
	e.Time = time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	if r.limit > 0 && len(r.entries) > r.limit {
		r.entries = r.entries[len(r.entries)-r.limit:]
	}
	r.counts[e.Name]++
}

// Entries returns a copy of the recorded entries, oldest first.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Count returns how many times name was reported, including entries that
// have since been trimmed.
func (r *Recorder) Count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[name]
}

// Last returns the most recent entry with the given name.
func (r *Recorder) Last(name string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.entries) - 1; i >= 0; i-- {
		if r.entries[i].Name == name {
			return r.entries[i], true
		}
	}
	return Entry{}, false
}

// Tee fans every report out to several sinks.
type Tee []Sink

// Event implements Sink.
func (t Tee) Event(name, value string) {
	for _, s := range t {
		s.Event(name, value)
	}
}

// Error implements Sink.
func (t Tee) Error(id string) {
	for _, s := range t {
		s.Error(id)
	}
}

// Exception implements Sink.
func (t Tee) Exception(err error) {
	for _, s := range t {
		s.Exception(err)
	}
}

// Discard drops everything.
var Discard Sink = discard{}

type discard struct{}

func (discard) Event(string, string) {}
func (discard) Error(string)         {}
func (discard) Exception(error)      {}

// Reporter maps errors to the sink: errors that carry an identifier are
// reported as categorized errors, everything else as an exception.
type Reporter struct {
	Sink Sink
}

// Identified is implemented by errors that know their host-facing id.
type Identified interface {
	error
	StatusID() string
}

// Report sends err to the sink.
func (r Reporter) Report(err error) {
	if err == nil {
		return
	}
	sink := r.Sink
	if sink == nil {
		sink = Discard
	}
	var id Identified
	if errors.As(err, &id) {
		sink.Error(id.StatusID())
		log.Debug("Reported error", "id", id.StatusID(), "error", err)
		return
	}
	sink.Exception(err)
}

// IDError attaches a status id to an error.
type IDError struct {
	ID  string
	Err error
}

// Error implements error.
func (e *IDError) Error() string {
	if e.Err == nil {
		return e.ID
	}
	return e.ID + ": " + e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *IDError) Unwrap() error { return e.Err }

// StatusID implements Identified.
func (e *IDError) StatusID() string { return e.ID }

// WithID wraps err so that Reporter files it under id.
func WithID(id string, err error) error {
	return &IDError{ID: id, Err: err}
}
