package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rocketscienceinc/caro-backend/internal/apperror"
	"github.com/rocketscienceinc/caro-backend/internal/caro"
	"github.com/rocketscienceinc/caro-backend/internal/repository"
)

// SettlementService is the persistence collaborator of terminated sessions.
type SettlementService interface {
	Finish(ctx context.Context, outcome caro.Outcome) error
}

type resultRepo interface {
	Save(ctx context.Context, outcome caro.Outcome) error
}

type settlementService struct {
	logger *slog.Logger

	resultRepo    resultRepo
	playerService PlayerService
}

func NewSettlementService(logger *slog.Logger, resultRepo resultRepo, playerService PlayerService) SettlementService {
	return &settlementService{
		logger:        logger,
		resultRepo:    resultRepo,
		playerService: playerService,
	}
}

// Finish records outcome durably, adds the rating deltas to the player profiles and
// releases both players from the session. Each delta is applied once per outcome key,
// so a repeated outcome never moves a rating again.
func (that *settlementService) Finish(ctx context.Context, outcome caro.Outcome) error {
	log := that.logger.With("method", "Finish", "key", outcome.Key)

	err := that.resultRepo.Save(ctx, outcome)
	settled := errors.Is(err, repository.ErrResultExists)
	if err != nil && !settled {
		return fmt.Errorf("failed to save result: %w", err)
	}

	for _, change := range outcome.Changes {
		elo, applied, err := that.playerService.ApplyRating(ctx, outcome.Key, change.PlayerID, change.Delta)
		if err != nil {
			return fmt.Errorf("failed to apply rating change: %w", err)
		}

		if applied {
			log.Debug("rating applied", "player_id", change.PlayerID, "delta", change.Delta, "elo", elo)
		}
	}

	for _, seat := range outcome.Seats {
		if seat.IsEmpty() {
			continue
		}

		if _, err = that.playerService.Release(ctx, seat.PlayerID, outcome.SessionID); err != nil {
			return fmt.Errorf("failed to release player %s: %w", seat.PlayerID, err)
		}
	}

	if settled {
		return fmt.Errorf("%w: %s", apperror.ErrAlreadySettled, outcome.Key)
	}

	log.Info("session settled", "session_id", outcome.SessionID, "phase", outcome.Phase, "cause", outcome.Cause)

	return nil
}
