package synth

import (
	"context"
	"fmt"
)

// Provider names accepted by NewProvider.
const (
	ProviderGoogle     = "google"
	ProviderGoogleREST = "google-rest"
	ProviderMock       = "mock"
)

// NewProvider builds the named provider. Callers should close the result
// when it implements io.Closer.
func NewProvider(ctx context.Context, name string, cfg GoogleConfig) (Synthesizer, error) {
	switch name {
	case ProviderGoogle, "":
		return NewGoogle(ctx, cfg)
	case ProviderGoogleREST:
		return NewREST("", cfg)
	case ProviderMock:
		return NewMock(), nil
	default:
		return nil, fmt.Errorf("unknown speech provider %q", name)
	}
}

// Unavailable fails every request with Err. It stands in for a provider
// whose client could not be created, so the queue keeps draining.
type Unavailable struct {
	Err error
}

// Synthesize implements Synthesizer.
func (u Unavailable) Synthesize(context.Context, Request) (Audio, error) {
	return Audio{}, fmt.Errorf("%w: %w", ErrSynthesis, u.Err)
}
