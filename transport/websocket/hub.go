package websocket

import (
	"log/slog"
	"sync"
	"time"

	"github.com/rocketscienceinc/caro-backend/internal/caro"
	"github.com/rocketscienceinc/caro-backend/internal/entity"
)

// Metrics is the part of the monitor the gateway reports to.
type Metrics interface {
	IncOnlinePlayers()
	DecOnlinePlayers()
	IncMessagesReceived(action string)
	IncRejectedInput(action, kind string)
	IncEventsDropped(kind string)
	ObserveMessageLatency(duration time.Duration)
}

type nopMetrics struct{}

func (nopMetrics) IncOnlinePlayers() {}
func (nopMetrics) DecOnlinePlayers() {}
func (nopMetrics) IncMessagesReceived(string) {}
func (nopMetrics) IncRejectedInput(string, string) {}
func (nopMetrics) IncEventsDropped(string) {}
func (nopMetrics) ObserveMessageLatency(time.Duration) {}

// Hub maps players to their sockets and relays session events to the seated players.
// It is the event sink of every session.
type Hub struct {
	logger  *slog.Logger
	metrics Metrics

	mu          sync.RWMutex
	connections map[string]*Connection
	members     map[string][2]string
}

func NewHub(logger *slog.Logger, metrics Metrics) *Hub {
	if metrics == nil {
		metrics = nopMetrics{}
	}

	return &Hub{
		logger:      logger.With("component", "hub"),
		metrics:     metrics,
		connections: make(map[string]*Connection),
		members:     make(map[string][2]string),
	}
}

// Bind makes conn the socket of playerID. A previous socket of the same player is closed.
func (that *Hub) Bind(playerID string, conn *Connection) {
	if bound, ok := conn.PlayerID(); ok && bound != playerID {
		that.release(conn)
	}

	that.mu.Lock()
	previous, replaced := that.connections[playerID]
	that.connections[playerID] = conn
	that.mu.Unlock()

	conn.bind(playerID)

	if replaced && previous != conn {
		that.logger.Info("player socket replaced", "player_id", playerID)
		previous.close()
		return
	}

	if !replaced {
		that.metrics.IncOnlinePlayers()
	}
}

// Unregister drops conn and reports whether it was the player's current socket.
func (that *Hub) Unregister(conn *Connection) bool {
	defer conn.close()

	return that.release(conn)
}

func (that *Hub) release(conn *Connection) bool {
	playerID, ok := conn.PlayerID()
	if !ok {
		return false
	}

	that.mu.Lock()
	current, found := that.connections[playerID]
	if !found || current != conn {
		that.mu.Unlock()
		return false
	}
	delete(that.connections, playerID)
	that.mu.Unlock()

	that.metrics.DecOnlinePlayers()

	return true
}

func (that *Hub) Online() int {
	that.mu.RLock()
	defer that.mu.RUnlock()

	return len(that.connections)
}

// Publish is called with the session locked, so it only enqueues.
func (that *Hub) Publish(event caro.Event) {
	log := that.logger.With("method", "Publish", "kind", event.Kind, "session_id", event.SessionID)

	that.remember(event)

	data, err := encode(string(event.Kind), event)
	if err != nil {
		log.Error("failed to encode event", "error", err)
		return
	}

	for _, playerID := range that.recipients(event) {
		that.send(playerID, data, event.Kind)
	}

	if event.Kind == caro.EventGameOver {
		that.mu.Lock()
		delete(that.members, event.SessionID)
		that.mu.Unlock()
	}
}

func (that *Hub) remember(event caro.Event) {
	var seats *[2]entity.Seat

	switch {
	case event.Seats != nil:
		seats = event.Seats
	case event.Snapshot != nil:
		seats = &event.Snapshot.Seats
	default:
		return
	}

	that.mu.Lock()
	that.members[event.SessionID] = [2]string{seats[0].PlayerID, seats[1].PlayerID}
	that.mu.Unlock()
}

// Track records the seats of a live session a client was handed a snapshot of. Sessions
// restored from the cache emit nothing until the next input, so replies are the only
// source of their members.
func (that *Hub) Track(snapshot caro.Snapshot) {
	if snapshot.ID == "" || snapshot.Phase.Terminal() {
		return
	}

	that.mu.Lock()
	that.members[snapshot.ID] = [2]string{snapshot.Seats[0].PlayerID, snapshot.Seats[1].PlayerID}
	that.mu.Unlock()
}

func (that *Hub) recipients(event caro.Event) []string {
	if event.Recipient != "" {
		return []string{event.Recipient}
	}

	that.mu.RLock()
	members := that.members[event.SessionID]
	that.mu.RUnlock()

	recipients := make([]string, 0, len(members))
	for _, playerID := range members {
		if playerID != "" {
			recipients = append(recipients, playerID)
		}
	}

	return recipients
}

func (that *Hub) send(playerID string, data []byte, kind caro.EventKind) {
	that.mu.RLock()
	conn, ok := that.connections[playerID]
	that.mu.RUnlock()

	if !ok {
		return
	}

	if !conn.enqueue(data) {
		that.logger.Warn("event dropped", "player_id", playerID, "kind", kind)
		that.metrics.IncEventsDropped(string(kind))
	}
}

// Close closes every socket.
func (that *Hub) Close() {
	that.mu.Lock()
	connections := that.connections
	that.connections = make(map[string]*Connection)
	that.mu.Unlock()

	for _, conn := range connections {
		conn.close()
	}
}
