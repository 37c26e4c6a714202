// Package audio plays synthesized speech through the process-wide output
// device using oto/v3, and carries the small amount of PCM handling the
// bridge needs: WAV header stripping, duration math and resampling.
package audio
