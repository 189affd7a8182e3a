package websocket

import (
	"context"
	"log/slog"
	"time"

	"github.com/rocketscienceinc/caro-backend/internal/caro"
)

type sessionRanger interface {
	Range(f func(session *caro.Session) bool)
}

// Ticker broadcasts the remaining turn time of every game in progress.
type Ticker struct {
	logger   *slog.Logger
	sessions sessionRanger
	sink     caro.EventSink
	interval time.Duration
}

func NewTicker(logger *slog.Logger, sessions sessionRanger, sink caro.EventSink, interval time.Duration) *Ticker {
	if interval <= 0 {
		interval = time.Second
	}

	return &Ticker{
		logger:   logger.With("component", "ticker"),
		sessions: sessions,
		sink:     sink,
		interval: interval,
	}
}

// Run ticks until ctx is done.
func (that *Ticker) Run(ctx context.Context) error {
	ticker := time.NewTicker(that.interval)
	defer ticker.Stop()

	that.logger.Debug("turn ticker started", "interval", that.interval)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			that.Tick()
		}
	}
}

// Tick publishes one turn-timer event per game in progress and returns how many.
func (that *Ticker) Tick() int {
	var sent int

	that.sessions.Range(func(session *caro.Session) bool {
		event, ok := session.Tick()
		if ok {
			that.sink.Publish(event)
			sent++
		}

		return true
	})

	return sent
}
