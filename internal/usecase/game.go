package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rocketscienceinc/caro-backend/internal/apperror"
	"github.com/rocketscienceinc/caro-backend/internal/caro"
	"github.com/rocketscienceinc/caro-backend/internal/entity"
	"github.com/rocketscienceinc/caro-backend/internal/pkg"
	"github.com/rocketscienceinc/caro-backend/internal/repository"
)

// GameUseCase resolves inbound intents to the session they address. An empty sessionID
// means the session the player currently sits in.
type GameUseCase interface {
	GetOrCreatePlayer(ctx context.Context, playerID string) (*entity.Player, error)
	GetPlayer(ctx context.Context, playerID string) (*entity.Player, *entity.Standing, error)
	ActiveSession(ctx context.Context, playerID string) (caro.Snapshot, error)
	Snapshot(ctx context.Context, sessionID string) (caro.Snapshot, error)

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

type playerService interface {
	GetByID(ctx context.Context, id string) (*entity.Player, error)
	GetOrCreate(ctx context.Context, id string) (*entity.Player, error)
	Assign(ctx context.Context, id, sessionID string) error
	Release(ctx context.Context, id, sessionID string) (bool, error)
}

type sessionRegistry interface {
	Create(ctx context.Context, players ...*entity.Player) (*caro.Session, error)
	Get(ctx context.Context, id string) (*caro.Session, error)
	FindWaiting(playerID string) (*caro.Session, bool)
}

type resultRepo interface {
	GetBySessionID(ctx context.Context, sessionID string) (caro.Outcome, error)
	GetStanding(ctx context.Context, playerID string) (*entity.Standing, error)
}

type gameUseCase struct {
	logger *slog.Logger

	playerService playerService
	registry      sessionRegistry
	resultRepo    resultRepo
}

func NewGameUseCase(logger *slog.Logger, playerService playerService, registry sessionRegistry, resultRepo resultRepo) GameUseCase {
	return &gameUseCase{
		logger:        logger,
		playerService: playerService,
		registry:      registry,
		resultRepo:    resultRepo,
	}
}

func (that *gameUseCase) GetOrCreatePlayer(ctx context.Context, playerID string) (*entity.Player, error) {
	if playerID == "" {
		playerID = pkg.GeneratePlayerID()
	}

	player, err := that.playerService.GetOrCreate(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create player: %w", err)
	}

	return player, nil
}

// GetPlayer returns the profile and, when the player finished a game before, the
// durable standing.
func (that *gameUseCase) GetPlayer(ctx context.Context, playerID string) (*entity.Player, *entity.Standing, error) {
	player, err := that.playerService.GetByID(ctx, playerID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get player: %w", err)
	}

	if that.resultRepo == nil {
		return player, nil, nil
	}

	standing, err := that.resultRepo.GetStanding(ctx, playerID)
	if errors.Is(err, repository.ErrRatingNotFound) {
		return player, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get standing: %w", err)
	}

	return player, standing, nil
}

func (that *gameUseCase) ActiveSession(ctx context.Context, playerID string) (caro.Snapshot, error) {
	session, err := that.resolve(ctx, "", playerID)
	if err != nil {
		return caro.Snapshot{}, err
	}

	return session.Snapshot(), nil
}

// Snapshot falls back to the recorded result once a session left memory and cache.
func (that *gameUseCase) Snapshot(ctx context.Context, sessionID string) (caro.Snapshot, error) {
	session, err := that.registry.Get(ctx, sessionID)
	if err == nil {
		return session.Snapshot(), nil
	}

	if !errors.Is(err, apperror.ErrSessionNotFound) || that.resultRepo == nil {
		return caro.Snapshot{}, fmt.Errorf("failed to get session: %w", err)
	}

	outcome, resultErr := that.resultRepo.GetBySessionID(ctx, sessionID)
	if errors.Is(resultErr, repository.ErrResultNotFound) {
		return caro.Snapshot{}, err
	}
	if resultErr != nil {
		return caro.Snapshot{}, fmt.Errorf("failed to get result: %w", resultErr)
	}

	return snapshotOf(outcome), nil
}

func snapshotOf(outcome caro.Outcome) caro.Snapshot {
	state := caro.State{
		ID:       outcome.SessionID,
		Phase:    outcome.Phase,
		Board:    outcome.Board,
		Seats:    outcome.Seats,
		Moves:    outcome.Moves,
		WinnerID: outcome.WinnerID,
		Cause:    outcome.Cause,
		Changes:  outcome.Changes,
		EndedAt:  outcome.EndedAt,
	}

	if idx := state.SeatOf(outcome.WinnerID); idx >= 0 {
		state.Winner = state.Seats[idx].Mark
	}

	return state.Snapshot(outcome.EndedAt)
}

// JoinRoom seats the player in roomID, or in the oldest waiting room when roomID is
// empty. A player still seated in a live session is sent back to it.
func (that *gameUseCase) JoinRoom(ctx context.Context, roomID, playerID string) (caro.Snapshot, error) {
	log := that.logger.With("method", "JoinRoom", "player_id", playerID, "room_id", roomID)

	player, err := that.playerService.GetOrCreate(ctx, playerID)
	if err != nil {
		return caro.Snapshot{}, fmt.Errorf("failed to get player: %w", err)
	}

	if player.InGame() {
		previous := player.SessionID

		current, err := that.registry.Get(ctx, previous)
		switch {
		case err == nil && !current.Phase().Terminal():
			if roomID != "" && roomID != current.ID() {
				return caro.Snapshot{}, fmt.Errorf("%w: %s", apperror.ErrPlayerInOtherGame, current.ID())
			}

			return current.Apply(ctx, caro.Reconnect{PlayerID: playerID})
		case err == nil:
			if player, err = that.settled(ctx, current, playerID); err != nil {
				return caro.Snapshot{}, err
			}
		case !errors.Is(err, apperror.ErrSessionNotFound):
			return caro.Snapshot{}, fmt.Errorf("failed to get current session: %w", err)
		}

		log.Debug("leaving finished session", "session_id", previous)
	}

	session, err := that.room(ctx, roomID, playerID)
	if err != nil {
		return caro.Snapshot{}, err
	}

	snapshot, err := that.seat(ctx, session, player)
	if errors.Is(err, apperror.ErrRoomFull) && roomID == "" {
		log.Debug("waiting room filled up, opening a new one", "session_id", session.ID())

		if session, err = that.registry.Create(ctx); err != nil {
			return caro.Snapshot{}, fmt.Errorf("failed to create room: %w", err)
		}

		snapshot, err = that.seat(ctx, session, player)
	}
	if err != nil {
		return caro.Snapshot{}, fmt.Errorf("failed to join room: %w", err)
	}

	log.Info("player joined room", "session_id", session.ID(), "phase", snapshot.Phase)

	return snapshot, nil
}

// settled waits until the finished session has written its ratings and returns the
// profile as it is afterwards, so the next seat carries the final rating.
func (that *gameUseCase) settled(ctx context.Context, session *caro.Session, playerID string) (*entity.Player, error) {
	select {
	case <-session.Settled():
	case <-ctx.Done():
		return nil, fmt.Errorf("failed to wait for settlement: %w", ctx.Err())
	}

	player, err := that.playerService.GetByID(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get player: %w", err)
	}

	return player, nil
}

// seat points the player at session and joins it. A refused join releases the player
// again.
func (that *gameUseCase) seat(ctx context.Context, session *caro.Session, player *entity.Player) (caro.Snapshot, error) {
	if err := that.playerService.Assign(ctx, player.ID, session.ID()); err != nil {
		return caro.Snapshot{}, fmt.Errorf("failed to assign player: %w", err)
	}

	snapshot, err := session.Apply(ctx, caro.Join{Player: player})
	if err != nil {
		if _, releaseErr := that.playerService.Release(ctx, player.ID, session.ID()); releaseErr != nil {
			that.logger.Error("failed to release player", "player_id", player.ID, "error", releaseErr)
		}

		return caro.Snapshot{}, err
	}

	player.SessionID = session.ID()

	return snapshot, nil
}

func (that *gameUseCase) room(ctx context.Context, roomID, playerID string) (*caro.Session, error) {
	if roomID != "" {
		session, err := that.registry.Get(ctx, roomID)
		if err != nil {
			return nil, fmt.Errorf("failed to get room: %w", err)
		}

		return session, nil
	}

	if session, ok := that.registry.FindWaiting(playerID); ok {
		return session, nil
	}

	session, err := that.registry.Create(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create room: %w", err)
	}

	return session, nil
}

func (that *gameUseCase) AcceptChallenge(ctx context.Context, sessionID, playerID string) (caro.Snapshot, error) {
	return that.apply(ctx, sessionID, caro.AcceptChallenge{PlayerID: playerID})
}

func (that *gameUseCase) MakeMove(ctx context.Context, sessionID, playerID string, pos entity.Position) (caro.Snapshot, error) {
	return that.apply(ctx, sessionID, caro.MakeMove{PlayerID: playerID, Position: pos})
}

func (that *gameUseCase) ProposeDraw(ctx context.Context, sessionID, playerID string) (caro.Snapshot, error) {
	return that.apply(ctx, sessionID, caro.ProposeDraw{PlayerID: playerID})
}

func (that *gameUseCase) AcceptDraw(ctx context.Context, sessionID, playerID string) (caro.Snapshot, error) {
	return that.apply(ctx, sessionID, caro.AcceptDraw{PlayerID: playerID})
}

func (that *gameUseCase) RejectDraw(ctx context.Context, sessionID, playerID string) (caro.Snapshot, error) {
	return that.apply(ctx, sessionID, caro.RejectDraw{PlayerID: playerID})
}

func (that *gameUseCase) Surrender(ctx context.Context, sessionID, playerID string) (caro.Snapshot, error) {
	return that.apply(ctx, sessionID, caro.Surrender{PlayerID: playerID})
}

func (that *gameUseCase) Leave(ctx context.Context, sessionID, playerID string) (caro.Snapshot, error) {
	return that.apply(ctx, sessionID, caro.Leave{PlayerID: playerID})
}

func (that *gameUseCase) Reconnect(ctx context.Context, sessionID, playerID string) (caro.Snapshot, error) {
	return that.apply(ctx, sessionID, caro.Reconnect{PlayerID: playerID})
}

// Disconnect is reported by the gateway when a socket closes. A player without a live
// session is not an error.
func (that *gameUseCase) Disconnect(ctx context.Context, sessionID, playerID string) error {
	_, err := that.apply(ctx, sessionID, caro.Disconnect{PlayerID: playerID})
	if err == nil || errors.Is(err, apperror.ErrAlreadyTerminated) || errors.Is(err, apperror.ErrNotSeated) ||
		errors.Is(err, apperror.ErrSessionNotFound) || errors.Is(err, repository.ErrPlayerNotFound) {
		return nil
	}

	return err
}

func (that *gameUseCase) apply(ctx context.Context, sessionID string, input caro.Input) (caro.Snapshot, error) {
	playerID := caro.Actor(input)

	session, err := that.resolve(ctx, sessionID, playerID)
	if err != nil {
		return caro.Snapshot{}, err
	}

	snapshot, err := session.Apply(ctx, input)
	if err != nil {
		return snapshot, fmt.Errorf("failed to %s: %w", input.Kind(), err)
	}

	return snapshot, nil
}

func (that *gameUseCase) resolve(ctx context.Context, sessionID, playerID string) (*caro.Session, error) {
	if sessionID == "" {
		player, err := that.playerService.GetByID(ctx, playerID)
		if err != nil {
			return nil, fmt.Errorf("failed to get player: %w", err)
		}

		if !player.InGame() {
			return nil, apperror.ErrNotSeated
		}

		sessionID = player.SessionID
	}

	session, err := that.registry.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return session, nil
}
