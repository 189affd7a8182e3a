package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rocketscienceinc/caro-backend/internal/entity"
	"github.com/rocketscienceinc/caro-backend/internal/repository"
)

type PlayerService interface {
	GetByID(ctx context.Context, id string) (*entity.Player, error)
	GetOrCreate(ctx context.Context, id string) (*entity.Player, error)
	Assign(ctx context.Context, id, sessionID string) error
	Release(ctx context.Context, id, sessionID string) (bool, error)
	ApplyRating(ctx context.Context, key, id string, delta int) (int, bool, error)
}

type playerService struct {
	playerRepo playerRepo
}

type playerRepo interface {
	Create(ctx context.Context, player *entity.Player) (*entity.Player, error)
	GetByID(ctx context.Context, id string) (*entity.Player, error)
	Assign(ctx context.Context, id, sessionID string) error
	Release(ctx context.Context, id, sessionID string) (bool, error)
	ApplyRating(ctx context.Context, key, id string, delta int) (int, bool, error)
}

func NewPlayerService(playerRepo playerRepo) PlayerService {
	return &playerService{
		playerRepo: playerRepo,
	}
}

func (that *playerService) GetByID(ctx context.Context, id string) (*entity.Player, error) {
	existingPlayer, err := that.playerRepo.GetByID(ctx, id)
	if err != nil {
		return &entity.Player{}, fmt.Errorf("failed to get player by id: %w", err)
	}

	return existingPlayer, nil
}

// GetOrCreate returns the stored profile or stores a new one with the initial rating.
func (that *playerService) GetOrCreate(ctx context.Context, id string) (*entity.Player, error) {
	existingPlayer, err := that.playerRepo.GetByID(ctx, id)
	if err == nil {
		return existingPlayer, nil
	}

	if !errors.Is(err, repository.ErrPlayerNotFound) {
		return nil, fmt.Errorf("failed to get player by id: %w", err)
	}

	player, err := that.playerRepo.Create(ctx, entity.NewPlayer(id))
	if err != nil {
		return nil, fmt.Errorf("failed to create player: %w", err)
	}

	return player, nil
}

func (that *playerService) Assign(ctx context.Context, id, sessionID string) error {
	if err := that.playerRepo.Assign(ctx, id, sessionID); err != nil {
		return fmt.Errorf("failed to assign player: %w", err)
	}

	return nil
}

func (that *playerService) Release(ctx context.Context, id, sessionID string) (bool, error) {
	released, err := that.playerRepo.Release(ctx, id, sessionID)
	if err != nil {
		return false, fmt.Errorf("failed to release player: %w", err)
	}

	return released, nil
}

func (that *playerService) ApplyRating(ctx context.Context, key, id string, delta int) (int, bool, error) {
	elo, applied, err := that.playerRepo.ApplyRating(ctx, key, id, delta)
	if err != nil {
		return 0, false, fmt.Errorf("failed to apply rating: %w", err)
	}

	return elo, applied, nil
}
