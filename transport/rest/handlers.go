package rest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rocketscienceinc/caro-backend/internal/apperror"
	"github.com/rocketscienceinc/caro-backend/internal/caro"
	"github.com/rocketscienceinc/caro-backend/internal/entity"
	"github.com/rocketscienceinc/caro-backend/internal/repository"
)

type gameUseCase interface {
	Snapshot(ctx context.Context, sessionID string) (caro.Snapshot, error)
	GetPlayer(ctx context.Context, playerID string) (*entity.Player, *entity.Standing, error)
}

type Handlers interface {
	PingHandler(w http.ResponseWriter, _ *http.Request)
	SessionHandler(w http.ResponseWriter, r *http.Request)
	PlayerHandler(w http.ResponseWriter, r *http.Request)
}

type handlers struct {
	logger      *slog.Logger
	gameUseCase gameUseCase
}

func NewHandlers(logger *slog.Logger, gameUseCase gameUseCase) Handlers {
	return &handlers{
		logger:      logger.With("component", "rest"),
		gameUseCase: gameUseCase,
	}
}

type playerResponse struct {
	Player   *entity.Player   `json:"player"`
	Standing *entity.Standing `json:"standing,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (that *handlers) PingHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("pong")); err != nil {
		that.logger.Error("failed to write pong", "error", err)
	}
}

// SessionHandler returns the snapshot of a live session or the recorded result of a
// finished one.
func (that *handlers) SessionHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	snapshot, err := that.gameUseCase.Snapshot(r.Context(), id)
	if err != nil {
		that.writeError(w, "SessionHandler", err)
		return
	}

	that.writeJSON(w, http.StatusOK, snapshot)
}

func (that *handlers) PlayerHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	player, standing, err := that.gameUseCase.GetPlayer(r.Context(), id)
	if err != nil {
		that.writeError(w, "PlayerHandler", err)
		return
	}

	that.writeJSON(w, http.StatusOK, playerResponse{Player: player, Standing: standing})
}

func (that *handlers) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		that.logger.Error("failed to encode response", "error", err)
	}
}

func (that *handlers) writeError(w http.ResponseWriter, method string, err error) {
	status := http.StatusInternalServerError
	message := "internal error"

	switch {
	case errors.Is(err, apperror.ErrSessionNotFound), errors.Is(err, repository.ErrPlayerNotFound):
		status = http.StatusNotFound
		message = "not found"
	case apperror.IsValidation(err):
		status = http.StatusBadRequest
		message = err.Error()
	default:
		that.logger.Error("request failed", "method", method, "error", err)
	}

	that.writeJSON(w, status, errorResponse{Error: message})
}
