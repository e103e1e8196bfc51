package sensor

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oszuidwest/zwfm-voicetrigger/internal/util"
)

const (
	// handshakeTimeout bounds the websocket opening handshake.
	handshakeTimeout = 10 * time.Second
	// maxMessageBytes limits the size of a single sensor notification.
	maxMessageBytes = 64 * 1024
	// closeGracePeriod is how long Close waits to deliver the close frame.
	closeGracePeriod = time.Second
)

// wsSource receives sensor notifications as binary websocket messages.
type wsSource struct {
	conn      *websocket.Conn
	closeOnce sync.Once
	closeErr  error
}

// DialWebSocket connects to a sensor bridge at url. Every binary message is
// one chunk; text messages are ignored.
func DialWebSocket(ctx context.Context, url string) (Source, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: handshakeTimeout,
	}

	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		defer util.SafeCloseFunc(resp.Body, "handshake response")()
	}
	if err != nil {
		return nil, util.WrapError("dial sensor", err)
	}

	conn.SetReadLimit(maxMessageBytes)
	return &wsSource{conn: conn}, nil
}

// WebSocketDialer returns a Dialer for DialWebSocket.
func WebSocketDialer(url string) Dialer {
	return func(ctx context.Context) (Source, error) {
		return DialWebSocket(ctx, url)
	}
}

// Receive implements Source.
func (s *wsSource) Receive(ctx context.Context) ([]byte, error) {
	// Expire the read deadline to unblock ReadMessage when ctx is done.
	stop := context.AfterFunc(ctx, func() {
		_ = s.conn.SetReadDeadline(time.Now()) //nolint:errcheck // Connection is being abandoned
	})
	defer stop()

	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, err
		}
		if msgType == websocket.BinaryMessage {
			return data, nil
		}
	}
}

// Close sends a close frame and closes the connection.
func (s *wsSource) Close() error {
	s.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGracePeriod)) //nolint:errcheck // Peer may already be gone
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}
