package service

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/rocketscienceinc/caro-backend/internal/entity"
	"github.com/rocketscienceinc/caro-backend/internal/repository"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// playerStore keeps profiles in memory with the field-level semantics of the Redis
// repository.
type playerStore struct {
	mu      sync.Mutex
	players map[string]entity.Player
	applied map[string]bool
}

func newPlayerStore(players ...*entity.Player) *playerStore {
	store := &playerStore{
		players: make(map[string]entity.Player),
		applied: make(map[string]bool),
	}
	for _, player := range players {
		store.players[player.ID] = *player
	}

	return store
}

func (that *playerStore) Create(_ context.Context, player *entity.Player) (*entity.Player, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	stored, ok := that.players[player.ID]
	if !ok {
		stored = *player
		that.players[player.ID] = stored
	}

	return &stored, nil
}

func (that *playerStore) GetByID(_ context.Context, id string) (*entity.Player, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	player, ok := that.players[id]
	if !ok {
		return &entity.Player{}, repository.ErrPlayerNotFound
	}

	return &player, nil
}

func (that *playerStore) Assign(_ context.Context, id, sessionID string) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	player := that.players[id]
	player.ID = id
	player.SessionID = sessionID
	that.players[id] = player

	return nil
}

func (that *playerStore) Release(_ context.Context, id, sessionID string) (bool, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	player, ok := that.players[id]
	if !ok || player.SessionID != sessionID {
		return false, nil
	}

	player.SessionID = ""
	that.players[id] = player

	return true, nil
}

func (that *playerStore) ApplyRating(_ context.Context, key, id string, delta int) (int, bool, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	player, ok := that.players[id]
	if !ok {
		player = *entity.NewPlayer(id)
	}

	if that.applied[key+":"+id] {
		return player.Elo, false, nil
	}

	that.applied[key+":"+id] = true
	player.Elo += delta
	that.players[id] = player

	return player.Elo, true, nil
}

func (that *playerStore) get(id string) entity.Player {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.players[id]
}
