// Package transport wraps a websocket connection for use by the OBS client.
//
// gorilla/websocket does not support concurrent writes, so every write
// goes through a single mutex. Reads stay unlocked; the protocol layer
// owns the single read loop.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrConnectionClosed is returned by reads and writes after the session
// has been closed, either locally or by the peer.
var ErrConnectionClosed = errors.New("transport: connection closed")

const obsSubprotocol = "obswebsocket.json"

// Session is a text-frame websocket connection with serialized writes.
type Session struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	closeOnce sync.Once
	closed    chan struct{}
}

// Dial opens a websocket connection to url and negotiates the
// obs-websocket JSON subprotocol. The context bounds the TCP connect
// and websocket upgrade only, not the lifetime of the session.
func Dial(ctx context.Context, url string) (*Session, error) {
	dialer := websocket.Dialer{
		Proxy:            nil,
		HandshakeTimeout: 10 * time.Second,
		Subprotocols:     []string{obsSubprotocol},
	}
	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (http status %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return &Session{conn: conn, closed: make(chan struct{})}, nil
}

// Wrap adopts an already-upgraded connection. Used by test servers.
func Wrap(conn *websocket.Conn) *Session {
	return &Session{conn: conn, closed: make(chan struct{})}
}

// WriteText sends one text frame. Safe for concurrent use.
func (s *Session) WriteText(data []byte) error {
	select {
	case <-s.closed:
		return ErrConnectionClosed
	default:
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return s.mapError(err)
	}
	return nil
}

// ReadText blocks until the next text frame arrives. Binary frames are
// skipped; obs-websocket only uses them for msgpack sessions, which we
// never negotiate.
func (s *Session) ReadText() ([]byte, error) {
	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			return nil, s.mapError(err)
		}
		if messageType == websocket.TextMessage {
			return data, nil
		}
	}
}

// SetReadDeadline bounds the next ReadText call.
func (s *Session) SetReadDeadline(t time.Time) error {
	return s.conn.SetReadDeadline(t)
}

// Close tears down the connection. A best-effort close frame is sent so
// the server logs a clean disconnect. Safe to call more than once.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		s.writeMu.Unlock()
		err = s.conn.Close()
	})
	return err
}

// Subprotocol reports the negotiated websocket subprotocol.
func (s *Session) Subprotocol() string {
	return s.conn.Subprotocol()
}

func (s *Session) mapError(err error) error {
	select {
	case <-s.closed:
		return ErrConnectionClosed
	default:
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
		return ErrConnectionClosed
	}
	var netErr net.Error
	if errors.As(err, &netErr) && !netErr.Timeout() {
		return ErrConnectionClosed
	}
	return err
}
