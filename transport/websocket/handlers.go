package websocket

import (
	"context"
	"errors"
	"fmt"

	"github.com/rocketscienceinc/caro-backend/internal/apperror"
	"github.com/rocketscienceinc/caro-backend/internal/caro"
	"github.com/rocketscienceinc/caro-backend/internal/pkg"
)

type intentFunc func(ctx context.Context, sessionID, playerID string) (caro.Snapshot, error)

// handleConnect binds the socket to a player, creating one when the payload carries no
// id. A player seated in a live session is reconnected to it.
func (that *Server) handleConnect(ctx context.Context, conn *Connection, msg *Message) error {
	log := that.logger.With("method", "handleConnect")

	req, err := decode(msg)
	if err != nil {
		return err
	}

	var playerID string
	if req.Player != nil {
		playerID = req.Player.ID
	}

	if playerID != "" && !pkg.IsPlayerID(playerID) {
		return fmt.Errorf("%w: invalid player id %q", apperror.ErrMalformedMessage, playerID)
	}

	player, err := that.gameUseCase.GetOrCreatePlayer(ctx, playerID)
	if err != nil {
		return fmt.Errorf("failed to get or create player: %w", err)
	}

	that.hub.Bind(player.ID, conn)

	resp := Payload{Player: player}

	snapshot, err := that.gameUseCase.Reconnect(ctx, "", player.ID)
	switch {
	case err == nil:
		that.hub.Track(snapshot)
		resp.Session = &snapshot
		resp.SessionID = snapshot.ID
	case errors.Is(err, apperror.ErrNotSeated), errors.Is(err, apperror.ErrSessionNotFound):
		// not in a game
	default:
		log.Warn("failed to reconnect player", "player_id", player.ID, "error", err)
	}

	that.reply(conn, msg.Action, resp)

	log.Info("player connected", "player_id", player.ID, "session_id", resp.SessionID)

	return nil
}

func (that *Server) handleTurn(ctx context.Context, conn *Connection, msg *Message) error {
	playerID, req, err := that.request(conn, msg)
	if err != nil {
		return err
	}

	if req.Position == nil {
		return fmt.Errorf("%w: position is required", apperror.ErrMalformedMessage)
	}

	snapshot, err := that.gameUseCase.MakeMove(ctx, req.SessionID, playerID, *req.Position)
	if err != nil {
		return err
	}

	that.reply(conn, msg.Action, Payload{SessionID: snapshot.ID, Session: &snapshot})

	return nil
}

// intent adapts a use case call addressed by session and player to a handler. The
// player is always the one bound to the socket.
func (that *Server) intent(fn intentFunc) handlerFunc {
	return func(ctx context.Context, conn *Connection, msg *Message) error {
		playerID, req, err := that.request(conn, msg)
		if err != nil {
			return err
		}

		snapshot, err := fn(ctx, req.SessionID, playerID)
		if err != nil {
			return err
		}

		that.hub.Track(snapshot)

		that.reply(conn, msg.Action, Payload{SessionID: snapshot.ID, Session: &snapshot})

		return nil
	}
}

func (that *Server) request(conn *Connection, msg *Message) (string, Payload, error) {
	playerID, ok := conn.PlayerID()
	if !ok {
		return "", Payload{}, apperror.ErrNotConnected
	}

	req, err := decode(msg)
	if err != nil {
		return "", Payload{}, err
	}

	return playerID, req, nil
}
