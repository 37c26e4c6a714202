package pipe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"go.uber.org/multierr"

	"github.com/voicebridge/voicebridge/internal/status"
	"github.com/voicebridge/voicebridge/internal/worker"
)

var (
	// ErrConnectTimeout is returned when the channel did not appear in time.
	ErrConnectTimeout = errors.New("timeout connecting to channel")

	// ErrReadFailure wraps transient read errors.
	ErrReadFailure = errors.New("channel read failed")

	// ErrClosed is returned by Connect after Close.
	ErrClosed = errors.New("message channel is closed")
)

// ConnectionState is the state of the underlying connection.
type ConnectionState int32

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
	Failed
)

// String returns the state name.
func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Defaults.
const (
	DefaultMaxRead       = 10240
	DefaultRetryInterval = 100 * time.Millisecond
)

// Handler receives one message.
type Handler func(msg string)

// Options tune a Channel.
type Options struct {
	MaxRead       int
	RetryInterval time.Duration
	Encoding      Encoding
	Sink          status.Sink
}

// Channel receives messages from the host.
type Channel struct {
	dialer  Dialer
	handler Handler
	opts    Options
	dec     *Decoder
	framer  Framer
	report  status.Reporter

	state  atomic.Int32
	closed atomic.Bool

	mu   sync.Mutex
	conn io.ReadCloser
	name string

	w *worker.Worker[[]byte]

	received atomic.Uint64
}

// NewChannel creates an unconnected channel. handler is called from Poll,
// once per message, in arrival order.
func NewChannel(dialer Dialer, handler Handler, opts Options) (*Channel, error) {
	if opts.MaxRead <= 0 {
		opts.MaxRead = DefaultMaxRead
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = DefaultRetryInterval
	}
	if opts.Sink == nil {
		opts.Sink = status.Discard
	}

	dec, err := NewDecoder(opts.Encoding)
	if err != nil {
		return nil, err
	}

	c := &Channel{
		dialer:  dialer,
		handler: handler,
		opts:    opts,
		dec:     dec,
		report:  status.Reporter{Sink: opts.Sink},
	}
	c.w = worker.New("pipe-read", worker.Hooks[[]byte]{
		Next:       c.nextRead,
		OnComplete: c.dispatch,
		OnError:    c.readFailed,
	})
	return c, nil
}

// Connect opens the channel, retrying while the peer has not created it.
// It gives up with ErrConnectTimeout once timeout has elapsed and leaves the
// channel disconnected.
func (c *Channel) Connect(ctx context.Context, name string, timeout time.Duration) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if c.State() == Connected {
		return nil
	}

	c.setState(Connecting)
	deadline := time.Now().Add(timeout)
	attempts := 0

	for {
		attempts++
		conn, err := c.dialer.Dial(ctx, name)
		if err == nil {
			c.mu.Lock()
			c.conn = conn
			c.name = name
			c.mu.Unlock()
			c.setState(Connected)
			log.Info("Message channel connected", "name", name, "attempts", attempts)
			return nil
		}

		if !errors.Is(err, ErrNotAvailable) {
			c.setState(Failed)
			return fmt.Errorf("failed to connect to %s: %w", name, err)
		}

		if !time.Now().Before(deadline) {
			c.setState(Disconnected)
			log.Warn("Message channel did not appear", "name", name, "timeout", timeout)
			return fmt.Errorf("%w: %s after %v", ErrConnectTimeout, name, timeout)
		}

		select {
		case <-ctx.Done():
			c.setState(Disconnected)
			return ctx.Err()
		case <-time.After(c.opts.RetryInterval):
		}
	}
}

// Poll dispatches the messages of a completed read and starts the next
// read. It never blocks.
func (c *Channel) Poll() {
	c.w.Poll()
}

// State returns the connection state.
func (c *Channel) State() ConnectionState {
	return ConnectionState(c.state.Load())
}

func (c *Channel) setState(s ConnectionState) {
	c.state.Store(int32(s))
}

// Reading reports whether a read is in flight.
func (c *Channel) Reading() bool {
	return c.w.Live()
}

// Received returns how many messages were dispatched.
func (c *Channel) Received() uint64 {
	return c.received.Load()
}

func (c *Channel) nextRead() (worker.Op[[]byte], bool) {
	if c.State() != Connected {
		return nil, false
	}
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil, false
	}

	size := c.opts.MaxRead
	return func(context.Context) ([]byte, error) {
		buf := make([]byte, size)
		n, err := conn.Read(buf)
		if n > 0 {
			return buf[:n], nil
		}
		if err == nil {
			return nil, nil
		}
		return nil, err
	}, true
}

func (c *Channel) dispatch(raw []byte) {
	if len(raw) == 0 {
		return
	}
	text, err := c.dec.Decode(raw)
	if err != nil {
		c.report.Report(status.WithID(status.ErrPipeReadFailed, err))
		return
	}
	for _, msg := range c.framer.Feed(text, len(raw) >= c.opts.MaxRead) {
		c.deliver(msg)
	}
}

// deliver isolates handler panics so one bad message does not drop the rest
// of the payload.
func (c *Channel) deliver(msg string) {
	defer func() {
		if p := recover(); p != nil {
			c.report.Report(fmt.Errorf("%w in message handler: %v", worker.ErrPanic, p))
		}
	}()
	c.received.Add(1)
	if c.handler != nil {
		c.handler(msg)
	}
}

func (c *Channel) readFailed(err error) {
	if isPeerClosed(err) {
		c.mu.Lock()
		conn, name := c.conn, c.name
		c.conn = nil
		c.mu.Unlock()
		c.setState(Disconnected)
		if conn != nil {
			_ = conn.Close()
		}
		if rest, ok := c.framer.Flush(); ok {
			c.deliver(rest)
		}
		c.dec.Reset()
		log.Warn("Message channel closed by peer", "name", name)
		c.report.Report(status.WithID(status.ErrPipeClosed, fmt.Errorf("%w: %v", ErrPeerClosed, err)))
		return
	}
	if errors.Is(err, worker.ErrPanic) {
		c.report.Report(err)
		return
	}
	c.report.Report(status.WithID(status.ErrPipeReadFailed, fmt.Errorf("%w: %v", ErrReadFailure, err)))
}

func isPeerClosed(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, os.ErrClosed) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, ErrPeerClosed)
}

// Close drops the connection and stops the reader. A read in flight is
// released by closing the connection. Close is idempotent.
func (c *Channel) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	var err error
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		if closeErr := conn.Close(); closeErr != nil {
			err = multierr.Append(err, fmt.Errorf("close connection: %w", closeErr))
		}
	}
	c.setState(Disconnected)
	err = multierr.Append(err, c.w.Close())
	return err
}
