package synth

import (
	"context"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"go.uber.org/multierr"
)

// DefaultMaxFailures is how many consecutive primary failures switch a
// Fallback over to its secondary provider.
const DefaultMaxFailures = 3

// Fallback wraps a primary provider with a secondary one that takes over
// after the primary fails maxFailures times in a row.
type Fallback struct {
	primary     Synthesizer
	fallback    Synthesizer
	maxFailures int

	mu            sync.Mutex
	failures      int
	usingFallback bool
}

// WithFallback returns primary unchanged when fallback is nil.
func WithFallback(primary, fallback Synthesizer, maxFailures int) Synthesizer {
	if fallback == nil {
		return primary
	}
	if maxFailures <= 0 {
		maxFailures = DefaultMaxFailures
	}
	return &Fallback{primary: primary, fallback: fallback, maxFailures: maxFailures}
}

// Synthesize implements Synthesizer. The request that reaches the failure
// limit is retried on the fallback right away.
func (f *Fallback) Synthesize(ctx context.Context, req Request) (Audio, error) {
	f.mu.Lock()
	using := f.usingFallback
	f.mu.Unlock()
	if using {
		return f.fallback.Synthesize(ctx, req)
	}

	a, err := f.primary.Synthesize(ctx, req)
	if err == nil {
		f.mu.Lock()
		if f.failures > 0 {
			log.Info("Primary speech provider recovered", "failures", f.failures)
			f.failures = 0
		}
		f.mu.Unlock()
		return a, nil
	}
	if ctx.Err() != nil {
		return Audio{}, err
	}

	f.mu.Lock()
	f.failures++
	failures := f.failures
	if failures >= f.maxFailures {
		f.usingFallback = true
	}
	f.mu.Unlock()

	log.Warn("Primary speech provider failed", "attempt", failures, "max", f.maxFailures, "error", err)
	if failures < f.maxFailures {
		return Audio{}, err
	}

	log.Warn("Switching to fallback speech provider", "failures", failures)
	a, fbErr := f.fallback.Synthesize(ctx, req)
	if fbErr != nil {
		return Audio{}, fmt.Errorf("both providers failed: %w", multierr.Append(err, fbErr))
	}
	return a, nil
}

// UsingFallback reports whether the secondary provider has taken over.
func (f *Fallback) UsingFallback() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.usingFallback
}
