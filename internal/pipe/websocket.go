package pipe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"syscall"

	"github.com/gorilla/websocket"
)

// WebSocketDialer connects to a websocket URL. Every websocket message is
// read as part of the byte stream, so framing stays with the delimiter.
type WebSocketDialer struct {
	Dialer *websocket.Dialer
	Header http.Header
}

// Dial implements Dialer.
func (d WebSocketDialer) Dial(ctx context.Context, url string) (io.ReadCloser, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	conn, resp, err := dialer.DialContext(ctx, url, d.Header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if errors.Is(err, syscall.ECONNREFUSED) ||
			(resp != nil && resp.StatusCode == http.StatusNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotAvailable, url)
		}
		return nil, fmt.Errorf("websocket dial %s: %w", url, err)
	}
	return &wsReader{conn: conn}, nil
}

type wsReader struct {
	conn    *websocket.Conn
	pending []byte
}

// Read returns bytes from the current message, fetching the next message
// when the current one is used up. A failed websocket cannot be read again,
// so every read error means the peer is gone.
func (r *wsReader) Read(p []byte) (int, error) {
	if len(r.pending) == 0 {
		_, data, err := r.conn.ReadMessage()
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrPeerClosed, err)
		}
		r.pending = data
	}
	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}

func (r *wsReader) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = r.conn.WriteMessage(websocket.CloseMessage, msg)
	return r.conn.Close()
}
