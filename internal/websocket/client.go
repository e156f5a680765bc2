package websocket

import (
	"errors"
	"sync"
	"time"

	"ecolisting-chat-backend/internal/logger"

	"github.com/gorilla/websocket"
)

const (
	pingInterval = 30 * time.Second
	writeTimeout = 10 * time.Second
	readLimit    = 512 * 1024
	sendBuffer   = 64
)

type WSClient struct {
	Conn     *websocket.Conn
	Message  chan []byte
	ID       string
	RoomID   string
	log      *logger.Logger
	done     chan struct{} // Signal for coordinating goroutine shutdown
	mu       sync.Mutex    // Mutex for connection access
	isClosed bool          // Flag to track connection state
}

func newClient(conn *websocket.Conn, id, roomID string, log *logger.Logger) *WSClient {
	return &WSClient{
		Conn:    conn,
		Message: make(chan []byte, sendBuffer),
		ID:      id,
		RoomID:  roomID,
		log:     log.With("client", id),
		done:    make(chan struct{}),
	}
}

func (cl *WSClient) keepAlive() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-cl.done:
			return
		case <-ticker.C:
			cl.mu.Lock()
			if cl.isClosed {
				cl.mu.Unlock()
				return
			}
			err := cl.Conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
			cl.mu.Unlock()

			if err != nil {
				cl.log.Debug("ping failed", "error", err)
				return
			}
		}
	}
}

func (cl *WSClient) writeMessage() {
	defer cl.close()

	for {
		select {
		case <-cl.done:
			return
		case msg, ok := <-cl.Message:
			if !ok {
				cl.log.Debug("message channel closed")
				return
			}

			cl.mu.Lock()
			if cl.isClosed {
				cl.mu.Unlock()
				return
			}
			_ = cl.Conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			err := cl.Conn.WriteMessage(websocket.TextMessage, msg)
			cl.mu.Unlock()

			if err != nil {
				cl.log.Warn("write failed", "error", err)
				return
			}
		}
	}
}

// send queues payload unless the connection is already gone.
func (cl *WSClient) send(payload []byte) bool {
	select {
	case cl.Message <- payload:
		return true
	case <-cl.done:
		return false
	}
}

func (cl *WSClient) close() {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if cl.isClosed {
		return
	}
	cl.isClosed = true
	cl.Conn.Close()
}

// readMessage hands every inbound frame to onFrame until the peer goes
// away, then runs onClose once.
func (cl *WSClient) readMessage(onFrame func([]byte), onClose func()) {
	defer func() {
		if r := recover(); r != nil {
			cl.log.Error("recovered from panic in read loop", "panic", r)
		}

		close(cl.done)
		cl.close()
		if onClose != nil {
			onClose()
		}
	}()

	cl.Conn.SetReadLimit(readLimit)

	for {
		_, message, err := cl.Conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) &&
				(closeErr.Code == websocket.CloseNormalClosure ||
					closeErr.Code == websocket.CloseGoingAway ||
					closeErr.Code == websocket.CloseNoStatusReceived) {
				break
			}
			cl.log.Debug("read failed", "error", err)
			break
		}

		if onFrame != nil {
			onFrame(message)
		}
	}
}
