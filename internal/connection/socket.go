package connection

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/loadtest-dash/internal/version"
)

// SocketEvents receives inbound traffic from a Socket.
// Both callbacks run on the socket's read goroutine.
type SocketEvents struct {
	OnFrame func(data []byte)
	OnClose func(err error) // called once, after the last OnFrame
}

// Socket is one open duplex connection.
type Socket interface {
	// Start begins delivering frames to events. Called once.
	Start(events SocketEvents)

	// Send writes one text frame.
	Send(data []byte) error

	// Close closes the connection. OnClose is still delivered from the
	// read goroutine, never from inside Close.
	Close() error
}

// Dialer opens Sockets.
type Dialer interface {
	Dial(ctx context.Context, url string) (Socket, error)
}

// WSDialer dials gorilla WebSocket connections.
type WSDialer struct {
	Header       http.Header
	WriteTimeout time.Duration
	Logger       *slog.Logger
}

// NewWSDialer creates a WSDialer.
func NewWSDialer(writeTimeout time.Duration, logger *slog.Logger) *WSDialer {
	if logger == nil {
		logger = slog.Default()
	}
	header := http.Header{}
	header.Set("Accept", "application/json")
	header.Set("User-Agent", version.UserAgent())
	return &WSDialer{
		Header:       header,
		WriteTimeout: writeTimeout,
		Logger:       logger,
	}
}

// Dial opens a connection. The handshake is bounded by ctx.
func (d *WSDialer) Dial(ctx context.Context, url string) (Socket, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, url, d.Header)
	if err != nil {
		return nil, err
	}

	d.Logger.Debug("websocket connected", "url", url)

	return &wsSocket{
		conn:         conn,
		writeTimeout: d.WriteTimeout,
		logger:       d.Logger,
		done:         make(chan struct{}),
	}, nil
}

// wsSocket implements Socket over a gorilla connection.
type wsSocket struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	logger       *slog.Logger

	// Write serialization
	writeMu sync.Mutex

	startOnce sync.Once
	closeOnce sync.Once
	done      chan struct{}
}

func (s *wsSocket) Start(events SocketEvents) {
	s.startOnce.Do(func() {
		go s.readLoop(events)
	})
}

func (s *wsSocket) Send(data []byte) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.writeTimeout > 0 {
		s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	}
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *wsSocket) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)

		s.writeMu.Lock()
		s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		s.writeMu.Unlock()

		err = s.conn.Close()
	})
	return err
}

// readLoop reads frames until the connection fails or is closed.
func (s *wsSocket) readLoop(events SocketEvents) {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
				err = ErrClosed
			default:
				s.logger.Debug("websocket read failed", "error", err)
			}
			if events.OnClose != nil {
				events.OnClose(err)
			}
			return
		}

		if events.OnFrame != nil {
			events.OnFrame(data)
		}
	}
}
