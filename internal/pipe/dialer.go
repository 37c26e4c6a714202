package pipe

import (
	"context"
	"errors"
	"io"
)

var (
	// ErrNotAvailable means the peer has not created the channel yet.
	// Connect keeps retrying while a dialer returns it.
	ErrNotAvailable = errors.New("channel not available yet")

	// ErrPeerClosed means the peer went away. The connection is dropped and
	// reads stop until the next Connect.
	ErrPeerClosed = errors.New("peer closed the channel")
)

// Dialer opens the reading end of a named channel.
type Dialer interface {
	Dial(ctx context.Context, name string) (io.ReadCloser, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, name string) (io.ReadCloser, error)

// Dial implements Dialer.
func (f DialerFunc) Dial(ctx context.Context, name string) (io.ReadCloser, error) {
	return f(ctx, name)
}

// PipeDialer opens a named pipe (Windows) or FIFO (Unix) by path.
type PipeDialer struct{}
