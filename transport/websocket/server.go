package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rocketscienceinc/caro-backend/internal/apperror"
	"github.com/rocketscienceinc/caro-backend/internal/caro"
	"github.com/rocketscienceinc/caro-backend/internal/entity"
)

const (
	disconnectTimeout = 5 * time.Second
	shutdownTimeout   = 5 * time.Second
	unknownAction     = "unknown"
)

type gameUseCase interface {
	GetOrCreatePlayer(ctx context.Context, playerID string) (*entity.Player, error)

	JoinRoom(ctx context.Context, roomID, playerID string) (caro.Snapshot, error)
	AcceptChallenge(ctx context.Context, sessionID, playerID string) (caro.Snapshot, error)
	MakeMove(ctx context.Context, sessionID, playerID string, pos entity.Position) (caro.Snapshot, error)
	ProposeDraw(ctx context.Context, sessionID, playerID string) (caro.Snapshot, error)
	AcceptDraw(ctx context.Context, sessionID, playerID string) (caro.Snapshot, error)
	RejectDraw(ctx context.Context, sessionID, playerID string) (caro.Snapshot, error)
	Surrender(ctx context.Context, sessionID, playerID string) (caro.Snapshot, error)
	Leave(ctx context.Context, sessionID, playerID string) (caro.Snapshot, error)
	Disconnect(ctx context.Context, sessionID, playerID string) error
	Reconnect(ctx context.Context, sessionID, playerID string) (caro.Snapshot, error)
}

type handlerFunc func(ctx context.Context, conn *Connection, msg *Message) error

type Server struct {
	logger      *slog.Logger
	gameUseCase gameUseCase
	hub         *Hub
	metrics     Metrics
	upgrader    websocket.Upgrader

	handlers map[string]handlerFunc
}

func New(logger *slog.Logger, gameUseCase gameUseCase, hub *Hub, metrics Metrics) *Server {
	if metrics == nil {
		metrics = nopMetrics{}
	}

	server := &Server{
		logger:      logger.With("component", "websocket"),
		gameUseCase: gameUseCase,
		hub:         hub,
		metrics:     metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(*http.Request) bool {
				return true
			},
		},
	}

	server.handlers = map[string]handlerFunc{
		actionConnect:     server.handleConnect,
		actionJoin:        server.intent(gameUseCase.JoinRoom),
		actionTurn:        server.handleTurn,
		actionAccept:      server.intent(gameUseCase.AcceptChallenge),
		actionDrawPropose: server.intent(gameUseCase.ProposeDraw),
		actionDrawAccept:  server.intent(gameUseCase.AcceptDraw),
		actionDrawReject:  server.intent(gameUseCase.RejectDraw),
		actionSurrender:   server.intent(gameUseCase.Surrender),
		actionLeave:       server.intent(gameUseCase.Leave),
		actionReconnect:   server.intent(gameUseCase.Reconnect),
	}

	return server
}

// Start serves /ws on port until ctx is done.
func (that *Server) Start(ctx context.Context, port string) error {
	log := that.logger.With("method", "Start")

	mux := http.NewServeMux()
	mux.Handle("/ws", that)

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       30 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("failed to shutdown websocket server", "error", err)
		}
		that.hub.Close()
	}()

	log.Info("websocket server listening", "port", port)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// ServeHTTP upgrades the request and serves the socket until it closes.
func (that *Server) ServeHTTP(writer http.ResponseWriter, req *http.Request) {
	log := that.logger.With("method", "ServeHTTP")

	ws, err := that.upgrader.Upgrade(writer, req, nil)
	if err != nil {
		log.Warn("failed to upgrade connection", "error", err)
		return
	}

	ctx := req.Context()
	conn := newConnection(that.logger, ws, sendBuffer)

	log.Debug("websocket connection established", "remote_addr", req.RemoteAddr)

	go conn.writePump()
	conn.readPump(func(data []byte) {
		that.dispatch(ctx, conn, data)
	})

	that.disconnect(ctx, conn)
}

func (that *Server) dispatch(ctx context.Context, conn *Connection, data []byte) {
	log := that.logger.With("method", "dispatch")

	started := time.Now()
	defer func() {
		that.metrics.ObserveMessageLatency(time.Since(started))
	}()

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		that.reject(conn, actionError, unknownAction, fmt.Errorf("%w: %w", apperror.ErrMalformedMessage, err))
		return
	}

	handler, ok := that.handlers[msg.Action]
	if !ok {
		that.metrics.IncMessagesReceived(unknownAction)
		that.reject(conn, msg.Action, unknownAction, fmt.Errorf("%w: %q", apperror.ErrUnknownAction, msg.Action))
		return
	}

	that.metrics.IncMessagesReceived(msg.Action)

	if err := handler(ctx, conn, &msg); err != nil {
		if apperror.Kind(err) == apperror.KindInternal {
			log.Error("failed to handle message", "action", msg.Action, "error", err)
		}

		that.reject(conn, msg.Action, msg.Action, err)
	}
}

func (that *Server) reject(conn *Connection, action, label string, err error) {
	kind := apperror.Kind(err)
	that.metrics.IncRejectedInput(label, string(kind))

	payload := errorPayload(err)
	if kind == apperror.KindInternal {
		payload.Error = "internal error"
	}

	that.reply(conn, action, payload)
}

func (that *Server) reply(conn *Connection, action string, payload Payload) {
	data, err := encode(action, payload)
	if err != nil {
		that.logger.Error("failed to encode reply", "action", action, "error", err)
		return
	}

	if !conn.enqueue(data) {
		that.logger.Warn("reply dropped", "action", action)
		that.metrics.IncEventsDropped(action)
	}
}

// disconnect reports a closed socket to the player's session, unless the player
// already moved to a newer socket.
func (that *Server) disconnect(ctx context.Context, conn *Connection) {
	if !that.hub.Unregister(conn) {
		return
	}

	playerID, _ := conn.PlayerID()
	log := that.logger.With("method", "disconnect", "player_id", playerID)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), disconnectTimeout)
	defer cancel()

	if err := that.gameUseCase.Disconnect(ctx, "", playerID); err != nil {
		log.Error("failed to report disconnect", "error", err)
		return
	}

	log.Info("player disconnected")
}
