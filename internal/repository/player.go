package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rocketscienceinc/caro-backend/internal/entity"
)

var ErrPlayerNotFound = errors.New("player not found")

// ratingMarkerTTL bounds how long an applied outcome key is remembered. It outlives the
// session retention window, which is the only place an outcome can be replayed from.
const ratingMarkerTTL = 7 * 24 * time.Hour

// PlayerRepository keeps player profiles as Redis hashes. The rating only changes through
// ApplyRating and the session field only through Assign and Release, so concurrent
// writers never overwrite each other's fields.
type PlayerRepository interface {
	Create(ctx context.Context, player *entity.Player) (*entity.Player, error)
	GetByID(ctx context.Context, id string) (*entity.Player, error)
	Assign(ctx context.Context, id, sessionID string) error
	Release(ctx context.Context, id, sessionID string) (bool, error)
	ApplyRating(ctx context.Context, key, id string, delta int) (int, bool, error)
}

type dbPlayer struct {
	client *redis.Client
}

func NewPlayerRepository(client *redis.Client) PlayerRepository {
	return &dbPlayer{
		client: client,
	}
}

func playerKey(id string) string {
	return "player:" + id
}

func ratingMarkerKey(key, id string) string {
	return "rating:applied:" + key + ":" + id
}

// KEYS[1] player hash, KEYS[2] applied marker.
// ARGV[1] delta, ARGV[2] marker ttl in seconds, ARGV[3] initial rating, ARGV[4] player id.
var applyRatingScript = redis.NewScript(`
if not redis.call('SET', KEYS[2], '1', 'NX', 'EX', ARGV[2]) then
	return {tonumber(redis.call('HGET', KEYS[1], 'elo') or ARGV[3]), 0}
end
redis.call('HSETNX', KEYS[1], 'id', ARGV[4])
redis.call('HSETNX', KEYS[1], 'elo', ARGV[3])
return {redis.call('HINCRBY', KEYS[1], 'elo', ARGV[1]), 1}
`)

// KEYS[1] player hash. ARGV[1] session id.
var releaseScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'session_id') == ARGV[1] then
	redis.call('HDEL', KEYS[1], 'session_id')
	return 1
end
return 0
`)

// Create stores player unless a profile with the same id exists, and returns the stored one.
func (that *dbPlayer) Create(ctx context.Context, player *entity.Player) (*entity.Player, error) {
	key := playerKey(player.ID)

	_, err := that.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSetNX(ctx, key, "id", player.ID)
		pipe.HSetNX(ctx, key, "elo", player.Elo)
		if player.SessionID != "" {
			pipe.HSetNX(ctx, key, "session_id", player.SessionID)
		}

		return nil
	})
	if err != nil {
		return &entity.Player{}, fmt.Errorf("failed to create player: %w", err)
	}

	return that.GetByID(ctx, player.ID)
}

func (that *dbPlayer) GetByID(ctx context.Context, id string) (*entity.Player, error) {
	cmd := that.client.HGetAll(ctx, playerKey(id))

	values, err := cmd.Result()
	if err != nil {
		return &entity.Player{}, fmt.Errorf("failed to get player by ID: %w", err)
	}

	if len(values) == 0 {
		return &entity.Player{}, ErrPlayerNotFound
	}

	var existingPlayer entity.Player
	if err = cmd.Scan(&existingPlayer); err != nil {
		return &entity.Player{}, fmt.Errorf("failed to scan player: %w", err)
	}

	return &existingPlayer, nil
}

// Assign points the player at sessionID without touching the rating.
func (that *dbPlayer) Assign(ctx context.Context, id, sessionID string) error {
	if err := that.client.HSet(ctx, playerKey(id), "session_id", sessionID).Err(); err != nil {
		return fmt.Errorf("failed to assign session: %w", err)
	}

	return nil
}

// Release clears the session of the player if it still is sessionID. It reports whether
// the field was cleared.
func (that *dbPlayer) Release(ctx context.Context, id, sessionID string) (bool, error) {
	released, err := releaseScript.Run(ctx, that.client, []string{playerKey(id)}, sessionID).Int()
	if err != nil {
		return false, fmt.Errorf("failed to release player: %w", err)
	}

	return released == 1, nil
}

// ApplyRating adds delta to the rating of the player once per key. It returns the rating
// after the call and whether this call applied the delta.
func (that *dbPlayer) ApplyRating(ctx context.Context, key, id string, delta int) (int, bool, error) {
	keys := []string{playerKey(id), ratingMarkerKey(key, id)}
	args := []any{delta, int(ratingMarkerTTL.Seconds()), entity.InitialElo, id}

	result, err := applyRatingScript.Run(ctx, that.client, keys, args...).Int64Slice()
	if err != nil {
		return 0, false, fmt.Errorf("failed to apply rating: %w", err)
	}

	if len(result) != 2 {
		return 0, false, fmt.Errorf("failed to apply rating: unexpected reply %v", result)
	}

	return int(result[0]), result[1] == 1, nil
}
