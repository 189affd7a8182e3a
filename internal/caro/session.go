package caro

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/rocketscienceinc/caro-backend/internal/apperror"
	"github.com/rocketscienceinc/caro-backend/internal/clock"
)

// Finisher persists the outcome of a terminated match. It is called at most once per
// session and may see the same idempotency key again after a restore.
type Finisher interface {
	Finish(ctx context.Context, outcome Outcome) error
}

// SnapshotStore is the cache tier a session writes through after every transition.
type SnapshotStore interface {
	Save(ctx context.Context, snapshot Snapshot) error
}

const DefaultStoreTimeout = 500 * time.Millisecond

type Options struct {
	Logger       *slog.Logger
	Config       Config
	Scheduler    clock.Scheduler
	Sink         EventSink
	Finisher     Finisher
	Store        SnapshotStore
	StoreTimeout time.Duration
	// OnTerminal runs once after the outcome was handed to the Finisher.
	OnTerminal func(snapshot Snapshot)
}

// Session serializes every input of one match. All transitions, timer expiries included,
// run under the same mutex.
type Session struct {
	mu      sync.Mutex
	logger  *slog.Logger
	opts    Options
	timers  *clock.Timers
	state   State
	settled bool
	done    chan struct{}
}

func NewSession(id string, opts Options) *Session {
	opts = withDefaults(opts)

	return newSession(NewState(id, opts.Scheduler.Now()), opts)
}

// Restore rebuilds a session from a cached snapshot and re-arms its timers from the
// stored deadlines. A terminated snapshot is handed to the Finisher again.
func Restore(ctx context.Context, snapshot Snapshot, opts Options) *Session {
	opts = withDefaults(opts)
	that := newSession(snapshot.State, opts)

	that.mu.Lock()
	now := that.timers.Now()
	state := that.state

	switch state.Phase {
	case PhaseChallenging:
		that.arm(clock.Challenge, state.Deadline.Sub(now))
	case PhaseInProgress:
		that.arm(clock.Turn, state.Deadline.Sub(now))

		for idx, seat := range state.Seats {
			if !seat.IsConnected() && !seat.GraceDeadline.IsZero() {
				that.arm(clock.Grace(idx), seat.GraceDeadline.Sub(now))
			}
		}
	}

	terminal := state.Phase.Terminal()
	that.settled = terminal
	restored := state.Snapshot(now)
	that.mu.Unlock()

	that.logger.Debug("session restored", "phase", state.Phase, "version", state.Version)

	if terminal {
		that.settle(ctx, restored)
	}

	return that
}

func withDefaults(opts Options) Options {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Scheduler == nil {
		opts.Scheduler = clock.Real{}
	}
	if opts.Config == (Config{}) {
		opts.Config = DefaultConfig()
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = DefaultStoreTimeout
	}

	return opts
}

func newSession(state State, opts Options) *Session {
	return &Session{
		logger: opts.Logger.With("component", "session", "session_id", state.ID),
		opts:   opts,
		timers: clock.NewTimers(opts.Scheduler),
		state:  state,
		done:   make(chan struct{}),
	}
}

func (that *Session) ID() string {
	return that.state.ID
}

func (that *Session) Snapshot() Snapshot {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.state.Snapshot(that.timers.Now())
}

func (that *Session) Phase() Phase {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.state.Phase
}

func (that *Session) HasPlayer(playerID string) bool {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.state.SeatOf(playerID) >= 0
}

// Tick returns the remaining turn time of a match in progress.
func (that *Session) Tick() (Event, bool) {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.state.Phase != PhaseInProgress {
		return Event{}, false
	}

	seats := that.state.Seats

	return Event{
		Kind:        EventTurnTimerTick,
		SessionID:   that.state.ID,
		Version:     that.state.Version,
		Seats:       &seats,
		Turn:        that.state.Turn,
		Deadline:    that.state.Deadline,
		RemainingMs: that.state.Remaining(that.timers.Now()).Milliseconds(),
	}, true
}

// Settled is closed once a terminated session handed its outcome to the Finisher.
// Player profiles hold the final ratings from then on.
func (that *Session) Settled() <-chan struct{} {
	return that.done
}

// Close stops every timer. The session state is left as it is.
func (that *Session) Close() {
	that.timers.Stop()
}

// Apply runs input through the state machine. Validation errors leave the state
// unchanged; the returned snapshot always reflects the state after the call.
func (that *Session) Apply(ctx context.Context, input Input) (Snapshot, error) {
	return that.apply(ctx, input, nil)
}

func (that *Session) onTimer(handle clock.Handle) {
	log := that.logger.With("method", "onTimer", "concern", handle.Concern)

	_, err := that.apply(context.Background(), TimerExpired{Concern: handle.Concern}, &handle)
	if errors.Is(err, apperror.ErrStaleTimer) {
		log.Debug("stale timer ignored")
		return
	}
	if err != nil {
		log.Error("failed to apply timer expiry", "error", err)
	}
}

func (that *Session) apply(ctx context.Context, input Input, handle *clock.Handle) (Snapshot, error) {
	log := that.logger.With("method", "apply", "input", input.Kind())

	that.mu.Lock()

	if handle != nil && !that.timers.Current(*handle) {
		that.mu.Unlock()
		return Snapshot{}, apperror.ErrStaleTimer
	}

	now := that.timers.Now()
	next, out, err := Transition(that.state, input, now, that.opts.Config)
	if err != nil {
		snapshot := that.state.Snapshot(now)
		if move, ok := input.(MakeMove); ok && apperror.IsValidation(err) {
			that.publish(Event{
				Kind:      EventInvalidMove,
				SessionID: that.state.ID,
				Version:   that.state.Version,
				Recipient: move.PlayerID,
				PlayerID:  move.PlayerID,
				Reason:    err.Error(),
			})
		}
		that.mu.Unlock()

		log.Debug("input rejected", "player_id", Actor(input), "error", err)

		return snapshot, err
	}

	changed := next.Version != that.state.Version
	that.state = next

	for _, op := range out.Timers {
		if op.Cancel {
			that.timers.Cancel(op.Concern)
			continue
		}
		that.arm(op.Concern, op.Duration)
	}

	for _, event := range out.Events {
		that.publish(event)
	}

	if changed {
		that.save(ctx, now)
	}

	snapshot := that.state.Snapshot(now)
	finish := that.state.Phase.Terminal() && !that.settled
	if finish {
		that.settled = true
	}

	that.mu.Unlock()

	if finish {
		log.Info("session terminated", "phase", snapshot.Phase, "cause", snapshot.Cause, "winner_id", snapshot.WinnerID)
		that.settle(ctx, snapshot)
	}

	return snapshot, nil
}

func (that *Session) arm(concern clock.Concern, d time.Duration) {
	if d < 0 {
		d = 0
	}

	that.timers.Start(concern, d, that.onTimer)
}

func (that *Session) publish(event Event) {
	if that.opts.Sink == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			that.logger.Error("event sink panicked", "kind", event.Kind, "panic", r)
		}
	}()

	that.opts.Sink.Publish(event)
}

func (that *Session) save(ctx context.Context, now time.Time) {
	if that.opts.Store == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			that.logger.Error("snapshot store panicked", "panic", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), that.opts.StoreTimeout)
	defer cancel()

	if err := that.opts.Store.Save(ctx, that.state.Snapshot(now)); err != nil {
		that.logger.Warn("failed to save snapshot", "version", that.state.Version, "error", err)
	}
}

// settle runs outside the session lock. The terminal state never changes again, so
// the outcome happens after every move of the match.
func (that *Session) settle(ctx context.Context, snapshot Snapshot) {
	log := that.logger.With("method", "settle")

	defer close(that.done)
	defer func() {
		if r := recover(); r != nil {
			log.Error("finisher panicked", "panic", r)
		}
	}()

	if that.opts.Finisher != nil {
		err := that.opts.Finisher.Finish(context.WithoutCancel(ctx), snapshot.Outcome())
		switch {
		case errors.Is(err, apperror.ErrAlreadySettled):
			log.Debug("outcome already settled", "key", IdempotencyKey(snapshot.ID, snapshot.Cause))
		case err != nil:
			log.Error("failed to finish session", "error", err)
		}
	}

	if that.opts.OnTerminal != nil {
		that.opts.OnTerminal(snapshot)
	}
}
