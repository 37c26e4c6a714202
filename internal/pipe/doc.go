// Package pipe receives delimited text messages from the host over a
// byte stream. The transport is pluggable: a named pipe (or FIFO on Unix)
// and a websocket are provided. Reads block, so each one runs as a single
// worker operation and messages are dispatched from the polling goroutine
// in the order the peer wrote them.
package pipe
