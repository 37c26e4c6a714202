// Package speech queues text for synthesis and plays each utterance to
// completion before starting the next. The host feeds it with Speak and
// advances it with Drive; neither call blocks.
package speech
