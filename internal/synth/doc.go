// Package synth turns SSML into PCM through a speech provider. Providers
// share one Synthesizer interface and compose with rate limiting and
// caching wrappers.
package synth
