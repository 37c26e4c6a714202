// Package capture turns a callback-driven microphone stream into a lazy
// sequence of coalesced PCM buffers. The device callback only copies and
// enqueues; consumers pull everything queued so far in one call.
package capture
