// README: Websocket subscriber adapter for client, driver and admin channels.
package events

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = 30 * time.Second
	maxMessageSize = 4096
)

// Upgrader accepts any origin; the HTTP layer authenticates before upgrading.
var Upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSSubscriber writes events as JSON text frames. Deliveries wait until Open
// is called so the connection can start with a snapshot of the ride.
type WSSubscriber struct {
	id       string
	conn     *websocket.Conn
	ready    chan struct{}
	openOnce sync.Once
	mu       sync.Mutex
	closed   bool
	release  func(Event) bool
}

func NewWSSubscriber(conn *websocket.Conn) *WSSubscriber {
	return &WSSubscriber{id: "ws:" + uuid.NewString(), conn: conn, ready: make(chan struct{})}
}

func (s *WSSubscriber) ID() string { return s.id }

// Open releases deliveries held back since the subscriber was created.
func (s *WSSubscriber) Open() {
	s.openOnce.Do(func() { close(s.ready) })
}

// CloseAfter makes the subscriber end the connection with a normal close
// frame once it has delivered an event matching fn. Call it before Open.
func (s *WSSubscriber) CloseAfter(fn func(Event) bool) {
	s.release = fn
}

func (s *WSSubscriber) Deliver(ctx context.Context, e Event) error {
	select {
	case <-s.ready:
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := s.WriteJSON(e); err != nil {
		return err
	}
	if s.release != nil && s.release(e) {
		s.Release()
	}
	return nil
}

func (s *WSSubscriber) WriteJSON(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrDisconnected
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteJSON(v); err != nil {
		s.closed = true
		_ = s.conn.Close()
		return fmt.Errorf("%w: %v", ErrDisconnected, err)
	}
	return nil
}

// Serve keeps the connection alive with pings and blocks until the peer goes
// away or ctx is cancelled. Inbound frames are discarded.
func (s *WSSubscriber) Serve(ctx context.Context) {
	done := make(chan struct{})
	defer close(done)

	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				_ = s.Close()
				return
			case <-ticker.C:
				if err := s.ping(); err != nil {
					return
				}
			}
		}
	}()

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			_ = s.Close()
			return
		}
	}
}

func (s *WSSubscriber) ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrDisconnected
	}
	return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// Release sends a normal close frame and closes the connection.
func (s *WSSubscriber) Release() {
	s.mu.Lock()
	if !s.closed {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "released")
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	}
	s.mu.Unlock()
	_ = s.Close()
}

func (s *WSSubscriber) Close() error {
	s.Open()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.conn.Close()
}
