package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/rocketscienceinc/caro-backend/internal/apperror"
	"github.com/rocketscienceinc/caro-backend/internal/caro"
	"github.com/rocketscienceinc/caro-backend/internal/clock"
	"github.com/rocketscienceinc/caro-backend/internal/entity"
	"github.com/rocketscienceinc/caro-backend/internal/pkg"
	"github.com/rocketscienceinc/caro-backend/internal/repository"
)

const DefaultRetention = 5 * time.Minute

type sessionCache interface {
	Save(ctx context.Context, snapshot caro.Snapshot) error
	GetByID(ctx context.Context, id string) (caro.Snapshot, error)
	DeleteByID(ctx context.Context, id string) error
}

// SessionMetrics is fed by the registry on every lifecycle change.
type SessionMetrics interface {
	SetLiveSessions(n int)
	ObserveTermination(phase, cause string)
}

type RegistryOptions struct {
	Config       caro.Config
	Scheduler    clock.Scheduler
	Retention    time.Duration
	StoreTimeout time.Duration
	Metrics      SessionMetrics
	NewID        func() string
}

// Registry owns every live session of the process. There is at most one Session object
// per id; the cache tier only backs lookups that miss in memory.
type Registry struct {
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*caro.Session
	restores singleflight.Group

	cache    sessionCache
	sink     caro.EventSink
	finisher caro.Finisher
	opts     RegistryOptions
}

func NewRegistry(
	logger *slog.Logger, cache sessionCache, sink caro.EventSink, finisher caro.Finisher, opts RegistryOptions,
) *Registry {
	if opts.Scheduler == nil {
		opts.Scheduler = clock.Real{}
	}
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	if opts.NewID == nil {
		opts.NewID = pkg.GenerateSessionID
	}

	return &Registry{
		logger:   logger.With("component", "registry"),
		sessions: make(map[string]*caro.Session),
		cache:    cache,
		sink:     sink,
		finisher: finisher,
		opts:     opts,
	}
}

func (that *Registry) sessionOptions() caro.Options {
	var store caro.SnapshotStore
	if that.cache != nil {
		store = that.cache
	}

	return caro.Options{
		Logger:       that.logger,
		Config:       that.opts.Config,
		Scheduler:    that.opts.Scheduler,
		Sink:         that.sink,
		Finisher:     that.finisher,
		Store:        store,
		StoreTimeout: that.opts.StoreTimeout,
		OnTerminal:   that.onTerminal,
	}
}

// Create opens a room and seats the given players in order. A room with fewer than two
// players waits for the rest.
func (that *Registry) Create(ctx context.Context, players ...*entity.Player) (*caro.Session, error) {
	id := that.opts.NewID()

	that.mu.Lock()
	if _, ok := that.sessions[id]; ok {
		that.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", apperror.ErrSessionIDCollision, id)
	}

	session := caro.NewSession(id, that.sessionOptions())
	that.sessions[id] = session
	that.reportLive()
	that.mu.Unlock()

	for _, player := range players {
		if player == nil {
			continue
		}

		if _, err := session.Apply(ctx, caro.Join{Player: player}); err != nil {
			return nil, fmt.Errorf("failed to seat player %s: %w", player.ID, err)
		}
	}

	that.logger.Debug("session created", "session_id", id, "players", len(players))

	return session, nil
}

// Get returns the live session or restores it from the cache tier.
func (that *Registry) Get(ctx context.Context, id string) (*caro.Session, error) {
	if session, ok := that.lookup(id); ok {
		return session, nil
	}

	if that.cache == nil {
		return nil, fmt.Errorf("%w: %s", apperror.ErrSessionNotFound, id)
	}

	restored, err, _ := that.restores.Do(id, func() (any, error) {
		if session, ok := that.lookup(id); ok {
			return session, nil
		}

		snapshot, err := that.cache.GetByID(ctx, id)
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, fmt.Errorf("%w: %s", apperror.ErrSessionNotFound, id)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read session from cache: %w", err)
		}

		session := caro.Restore(ctx, snapshot, that.sessionOptions())

		that.mu.Lock()
		that.sessions[id] = session
		that.reportLive()
		that.mu.Unlock()

		that.logger.Info("session restored from cache", "session_id", id, "phase", snapshot.Phase)

		return session, nil
	})
	if err != nil {
		return nil, err
	}

	return restored.(*caro.Session), nil
}

func (that *Registry) lookup(id string) (*caro.Session, bool) {
	that.mu.RLock()
	defer that.mu.RUnlock()

	session, ok := that.sessions[id]

	return session, ok
}

// FindWaiting returns the oldest room that still has a free seat and does not already
// seat playerID.
func (that *Registry) FindWaiting(playerID string) (*caro.Session, bool) {
	var candidates []caro.Snapshot

	that.Range(func(session *caro.Session) bool {
		snapshot := session.Snapshot()
		if snapshot.Phase == caro.PhaseWaiting && snapshot.SeatOf(playerID) < 0 {
			candidates = append(candidates, snapshot)
		}

		return true
	})

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})

	for _, candidate := range candidates {
		if session, ok := that.lookup(candidate.ID); ok {
			return session, true
		}
	}

	return nil, false
}

// Evict drops a terminated session from memory and from the cache tier.
func (that *Registry) Evict(ctx context.Context, id string) error {
	that.mu.Lock()
	session, ok := that.sessions[id]
	if !ok {
		that.mu.Unlock()
		return fmt.Errorf("%w: %s", apperror.ErrSessionNotFound, id)
	}

	if !session.Phase().Terminal() {
		that.mu.Unlock()
		return fmt.Errorf("%w: %s", apperror.ErrSessionActive, id)
	}

	delete(that.sessions, id)
	that.reportLive()
	that.mu.Unlock()

	session.Close()

	if that.cache != nil {
		if err := that.cache.DeleteByID(ctx, id); err != nil {
			return fmt.Errorf("failed to delete session from cache: %w", err)
		}
	}

	that.logger.Debug("session evicted", "session_id", id)

	return nil
}

// Range calls f for every session in memory until f returns false. f runs without the
// registry lock held.
func (that *Registry) Range(f func(session *caro.Session) bool) {
	that.mu.RLock()
	sessions := make([]*caro.Session, 0, len(that.sessions))
	for _, session := range that.sessions {
		sessions = append(sessions, session)
	}
	that.mu.RUnlock()

	for _, session := range sessions {
		if !f(session) {
			return
		}
	}
}

func (that *Registry) Len() int {
	that.mu.RLock()
	defer that.mu.RUnlock()

	return len(that.sessions)
}

// Close stops the timers of every session. Sessions stay readable in the cache tier.
func (that *Registry) Close() {
	that.Range(func(session *caro.Session) bool {
		session.Close()
		return true
	})
}

func (that *Registry) onTerminal(snapshot caro.Snapshot) {
	if that.opts.Metrics != nil {
		that.opts.Metrics.ObserveTermination(string(snapshot.Phase), string(snapshot.Cause))
	}

	that.opts.Scheduler.AfterFunc(that.opts.Retention, func() {
		err := that.Evict(context.Background(), snapshot.ID)
		if err != nil && !errors.Is(err, apperror.ErrSessionNotFound) {
			that.logger.Warn("failed to evict session", "session_id", snapshot.ID, "error", err)
		}
	})
}

// reportLive must be called with the lock held.
func (that *Registry) reportLive() {
	if that.opts.Metrics != nil {
		that.opts.Metrics.SetLiveSessions(len(that.sessions))
	}
}
