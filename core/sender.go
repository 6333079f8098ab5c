package relay

import (
	"errors"
	"sync"
)

var errSenderClosed = errors.New("client connection closed")

// ClientConn is the slice of the client websocket the session writes to.
type ClientConn interface {
	WriteJSON(v any) error
}

// messageSender serializes writes to the client connection. Gorilla
// websocket connections do not support concurrent writers, and the receive
// loop, the fragment callbacks and response dispatches all send messages.
type messageSender struct {
	mu     sync.Mutex
	conn   ClientConn
	closed bool
}

func newMessageSender(conn ClientConn) *messageSender {
	return &messageSender{conn: conn}
}

func (s *messageSender) Send(message any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errSenderClosed
	}
	return s.conn.WriteJSON(message)
}

// Close stops further sends. It does not close the underlying websocket;
// the connection owner does that.
func (s *messageSender) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}
