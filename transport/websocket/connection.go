package websocket

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 4096
	sendBuffer     = 256
)

// Connection is one client socket. The player is bound by the connect action.
type Connection struct {
	logger *slog.Logger
	conn   *websocket.Conn
	send   chan []byte

	mu       sync.Mutex
	playerID string
	closed   bool
}

func newConnection(logger *slog.Logger, conn *websocket.Conn, buffer int) *Connection {
	return &Connection{
		logger: logger,
		conn:   conn,
		send:   make(chan []byte, buffer),
	}
}

func (that *Connection) PlayerID() (string, bool) {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.playerID, that.playerID != ""
}

func (that *Connection) bind(playerID string) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.playerID = playerID
}

// enqueue never blocks. It reports false when the buffer is full or the connection closed.
func (that *Connection) enqueue(data []byte) bool {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.closed {
		return false
	}

	select {
	case that.send <- data:
		return true
	default:
		return false
	}
}

// close stops the write pump, which sends a close frame and drops the socket.
func (that *Connection) close() {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.closed {
		return
	}

	that.closed = true
	close(that.send)
}

// readPump delivers text messages to handle until the socket fails or closes.
func (that *Connection) readPump(handle func(data []byte)) {
	log := that.logger.With("method", "readPump")

	that.conn.SetReadLimit(maxMessageSize)

	if err := that.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		log.Error("failed to set read deadline", "error", err)
	}

	that.conn.SetPongHandler(func(string) error {
		return that.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, data, err := that.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				log.Warn("websocket read failed", "error", err)
			}

			return
		}

		if messageType == websocket.TextMessage {
			handle(data)
		}
	}
}

func (that *Connection) writePump() {
	log := that.logger.With("method", "writePump")

	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		that.conn.Close()
	}()

	for {
		select {
		case data, ok := <-that.send:
			if err := that.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error("failed to set write deadline", "error", err)
			}

			if !ok {
				_ = that.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err := that.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Debug("failed to write message", "error", err)
				return
			}

		case <-ticker.C:
			if err := that.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error("failed to set write deadline", "error", err)
			}

			if err := that.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
