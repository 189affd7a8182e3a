package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rocketscienceinc/caro-backend/internal/caro"
)

var ErrSessionNotFound = errors.New("session not found")

// SessionRepository is the cache tier behind the session registry. It is never the
// source of truth while a session is live in memory.
type SessionRepository interface {
	Save(ctx context.Context, snapshot caro.Snapshot) error
	GetByID(ctx context.Context, id string) (caro.Snapshot, error)
	DeleteByID(ctx context.Context, id string) error
}

type dbSession struct {
	client *redis.Client
	// retention bounds how long a terminated snapshot stays readable.
	retention time.Duration
}

func NewSessionRepository(client *redis.Client, retention time.Duration) SessionRepository {
	return &dbSession{
		client:    client,
		retention: retention,
	}
}

func sessionKey(id string) string {
	return "session:" + id
}

func (that *dbSession) Save(ctx context.Context, snapshot caro.Snapshot) error {
	sessionJSON, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	var ttl time.Duration
	if snapshot.Phase.Terminal() {
		ttl = that.retention
	}

	if err = that.client.Set(ctx, sessionKey(snapshot.ID), sessionJSON, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set session: %w", err)
	}

	return nil
}

func (that *dbSession) GetByID(ctx context.Context, id string) (caro.Snapshot, error) {
	response, err := that.client.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return caro.Snapshot{}, ErrSessionNotFound
	}

	if err != nil {
		return caro.Snapshot{}, fmt.Errorf("failed to get session by ID: %w", err)
	}

	var snapshot caro.Snapshot
	if err = json.Unmarshal(response, &snapshot); err != nil {
		return caro.Snapshot{}, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	return snapshot, nil
}

func (that *dbSession) DeleteByID(ctx context.Context, id string) error {
	if err := that.client.Del(ctx, sessionKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete session by ID: %w", err)
	}

	return nil
}
