package proxy

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 4 << 20
)

// Stream is a websocket connection carrying JSON Messages. Reads happen on
// an internal goroutine; Send may be called concurrently.
type Stream struct {
	conn *websocket.Conn
	msgs chan Message

	writeMtx sync.Mutex

	closeOnce sync.Once
	done      chan struct{}

	errMtx sync.Mutex
	err    error
}

// Dial connects to url. header may carry the validator identity.
func Dial(ctx context.Context, url string, header http.Header) (*Stream, error) {
	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 10 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(maxMessageSize)

	s := &Stream{
		conn: conn,
		msgs: make(chan Message),
		done: make(chan struct{}),
	}
	go s.readRoutine()
	return s, nil
}

// Messages returns the incoming messages. The channel is closed when the
// connection fails or is closed; Err then reports why.
func (s *Stream) Messages() <-chan Message { return s.msgs }

// Err returns the error that ended the stream, if any.
func (s *Stream) Err() error {
	s.errMtx.Lock()
	defer s.errMtx.Unlock()
	return s.err
}

// Send writes m.
func (s *Stream) Send(m Message) error {
	s.writeMtx.Lock()
	defer s.writeMtx.Unlock()

	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(m)
}

// Close closes the connection. It is safe to call more than once.
func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		s.writeMtx.Lock()
		_ = s.conn.SetWriteDeadline(time.Now().Add(time.Second))
		_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.writeMtx.Unlock()
		err = s.conn.Close()
	})
	return err
}

// The stream ensures that there is at most one reader to a connection by
// executing all reads from this goroutine.
func (s *Stream) readRoutine() {
	defer close(s.msgs)

	for {
		var m Message
		if err := s.conn.ReadJSON(&m); err != nil {
			s.errMtx.Lock()
			s.err = err
			s.errMtx.Unlock()
			return
		}
		select {
		case s.msgs <- m:
		case <-s.done:
			return
		}
	}
}
