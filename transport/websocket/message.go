package websocket

import (
	"encoding/json"
	"fmt"

	"github.com/rocketscienceinc/caro-backend/internal/apperror"
	"github.com/rocketscienceinc/caro-backend/internal/caro"
	"github.com/rocketscienceinc/caro-backend/internal/entity"
)

const (
	actionConnect     = "connect"
	actionJoin        = "game:join"
	actionAccept      = "game:accept"
	actionTurn        = "game:turn"
	actionDrawPropose = "game:draw:propose"
	actionDrawAccept  = "game:draw:accept"
	actionDrawReject  = "game:draw:reject"
	actionSurrender   = "game:surrender"
	actionLeave       = "game:leave"
	actionReconnect   = "game:reconnect"
	actionError       = "error"
)

// Message represents a WebSocket message with an action type and a payload.
type Message struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Payload is shared by requests and their direct replies. Session events are sent with
// the event kind as the action and the event itself as the payload.
type Payload struct {
	Player    *entity.Player   `json:"player,omitempty"`
	SessionID string           `json:"session_id,omitempty"`
	Position  *entity.Position `json:"position,omitempty"`
	Session   *caro.Snapshot   `json:"session,omitempty"`
	Error     string           `json:"error,omitempty"`
	Kind      string           `json:"kind,omitempty"`
}

func encode(action string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	data, err := json.Marshal(Message{Action: action, Payload: body})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}

	return data, nil
}

func decode(msg *Message) (Payload, error) {
	var payload Payload

	if len(msg.Payload) == 0 {
		return payload, nil
	}

	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return payload, fmt.Errorf("%w: %w", apperror.ErrMalformedMessage, err)
	}

	return payload, nil
}

func errorPayload(err error) Payload {
	return Payload{
		Error: err.Error(),
		Kind:  string(apperror.Kind(err)),
	}
}
