package caro

import (
	"errors"
	"fmt"
	"time"

	"github.com/rocketscienceinc/caro-backend/internal/apperror"
	"github.com/rocketscienceinc/caro-backend/internal/clock"
	"github.com/rocketscienceinc/caro-backend/internal/entity"
	"github.com/rocketscienceinc/caro-backend/internal/rating"
)

// TimerOp asks the owner of a state to start or cancel the timer of a concern.
type TimerOp struct {
	Concern  clock.Concern
	Duration time.Duration
	Cancel   bool
}

type Output struct {
	Events []Event
	Timers []TimerOp
}

// errNoop marks an accepted input that leaves the state as it is.
var errNoop = errors.New("no-op")

var allConcerns = []clock.Concern{clock.Challenge, clock.Turn, clock.Grace(0), clock.Grace(1)}

type step struct {
	next State
	out  Output
	now  time.Time
	cfg  Config
	// reason explains a termination that no player asked for.
	reason error
}

// Transition computes the state that follows input. On error the returned state is the
// given one and the output is empty.
func Transition(state State, input Input, now time.Time, cfg Config) (State, Output, error) {
	if state.Phase.Terminal() {
		if _, ok := input.(Reconnect); ok {
			if state.SeatOf(Actor(input)) < 0 {
				return state, Output{}, apperror.ErrNotSeated
			}

			return state, Output{}, nil
		}

		return state, Output{}, apperror.ErrAlreadyTerminated
	}

	that := &step{next: state, now: now, cfg: cfg}
	that.next.Version++

	var err error
	switch in := input.(type) {
	case Join:
		err = that.join(in)
	case AcceptChallenge:
		err = that.acceptChallenge(in)
	case MakeMove:
		err = that.makeMove(in)
	case ProposeDraw:
		err = that.proposeDraw(in)
	case AcceptDraw:
		err = that.answerDraw(in.PlayerID, true)
	case RejectDraw:
		err = that.answerDraw(in.PlayerID, false)
	case Surrender:
		err = that.surrender(in)
	case Leave:
		err = that.leave(in)
	case Disconnect:
		err = that.disconnect(in)
	case Reconnect:
		err = that.reconnect(in)
	case TimerExpired:
		err = that.timerExpired(in)
	default:
		err = fmt.Errorf("%w: %T", apperror.ErrUnknownInput, input)
	}

	if errors.Is(err, errNoop) {
		return state, Output{}, nil
	}
	if err != nil {
		return state, Output{}, err
	}

	return that.next, that.out, nil
}

func (that *step) emit(event Event) {
	event.SessionID = that.next.ID
	event.Version = that.next.Version
	that.out.Events = append(that.out.Events, event)
}

func (that *step) startTimer(concern clock.Concern, d time.Duration) {
	that.out.Timers = append(that.out.Timers, TimerOp{Concern: concern, Duration: d})
}

func (that *step) cancelTimer(concern clock.Concern) {
	that.out.Timers = append(that.out.Timers, TimerOp{Concern: concern, Cancel: true})
}

func (that *step) seats() *[2]entity.Seat {
	seats := that.next.Seats
	return &seats
}

func (that *step) seated(playerID string) (int, error) {
	idx := that.next.SeatOf(playerID)
	if idx < 0 {
		return -1, apperror.ErrNotSeated
	}

	return idx, nil
}

func (that *step) requireInProgress() error {
	switch that.next.Phase {
	case PhaseInProgress:
		return nil
	case PhaseWaiting, PhaseChallenging:
		return apperror.ErrGameIsNotStarted
	default:
		return apperror.ErrGameFinished
	}
}

func (that *step) join(in Join) error {
	if in.Player == nil || in.Player.ID == "" {
		return apperror.ErrNotSeated
	}

	if that.next.SeatOf(in.Player.ID) >= 0 {
		return errNoop
	}

	if that.next.Phase != PhaseWaiting {
		return apperror.ErrRoomFull
	}

	idx := 0
	if !that.next.Seats[0].IsEmpty() {
		idx = 1
	}

	that.next.Seats[idx] = entity.NewSeat(in.Player)
	that.emit(Event{Kind: EventRoomJoined, PlayerID: in.Player.ID, Seats: that.seats()})

	if that.next.Seats[0].IsEmpty() || that.next.Seats[1].IsEmpty() {
		return nil
	}

	that.next.Phase = PhaseChallenging
	that.next.Deadline = that.now.Add(that.cfg.ChallengeTimeout)
	that.startTimer(clock.Challenge, that.cfg.ChallengeTimeout)
	that.emit(Event{Kind: EventChallengePending, Seats: that.seats(), Deadline: that.next.Deadline})

	return nil
}

func (that *step) acceptChallenge(in AcceptChallenge) error {
	if that.next.Phase != PhaseChallenging {
		return apperror.ErrWrongPhase
	}

	idx, err := that.seated(in.PlayerID)
	if err != nil {
		return err
	}

	if that.next.Seats[idx].Accepted {
		return apperror.ErrAlreadyAccepted
	}

	order := 1
	if that.next.Seats[1-idx].Accepted {
		order = 2
	}

	that.next.Seats[idx].Accepted = true
	that.next.Seats[idx].AcceptOrder = order
	that.emit(Event{Kind: EventChallengeAccepted, PlayerID: in.PlayerID, Seats: that.seats()})

	if order == 2 {
		that.start()
	}

	return nil
}

// start assigns X to the earliest accepting seat and O to the other.
func (that *step) start() {
	first := 0
	if that.next.Seats[1].AcceptOrder == 1 {
		first = 1
	}

	that.next.Seats[first].Mark = entity.MarkX
	that.next.Seats[1-first].Mark = entity.MarkO

	that.next.Phase = PhaseInProgress
	that.next.Board = entity.NewBoard()
	that.next.Moves = nil
	that.next.Turn = entity.MarkX
	that.next.StartedAt = that.now
	that.next.Deadline = that.now.Add(that.cfg.TurnTimeout)

	that.cancelTimer(clock.Challenge)
	that.startTimer(clock.Turn, that.cfg.TurnTimeout)

	board := that.next.Board
	that.emit(Event{
		Kind:     EventGameStarted,
		Seats:    that.seats(),
		Board:    &board,
		Turn:     that.next.Turn,
		Deadline: that.next.Deadline,
	})
}

func (that *step) makeMove(in MakeMove) error {
	if err := that.requireInProgress(); err != nil {
		return err
	}

	idx, err := that.seated(in.PlayerID)
	if err != nil {
		return err
	}

	mark := that.next.Seats[idx].Mark
	if mark != that.next.Turn {
		return apperror.ErrNotYourTurn
	}

	board, err := that.next.Board.Place(in.Position, mark)
	if err != nil {
		return err
	}

	move := entity.Move{Position: in.Position, Mark: mark, Seq: len(that.next.Moves) + 1, At: that.now}
	moves := that.next.Moves
	that.next.Moves = append(moves[:len(moves):len(moves)], move)
	that.next.Board = board
	that.next.DrawOffer = entity.MarkNone

	if line := board.CheckWin(in.Position); line != nil {
		that.emitMove(move, false)
		that.complete(mark, CauseWin, line)

		return nil
	}

	if board.IsFull() {
		that.emitMove(move, false)
		that.complete(entity.MarkNone, CauseDraw, nil)

		return nil
	}

	that.next.Turn = mark.Opponent()
	that.next.Deadline = that.now.Add(that.cfg.TurnTimeout)
	that.startTimer(clock.Turn, that.cfg.TurnTimeout)
	that.emitMove(move, true)

	return nil
}

// emitMove announces move. The next turn and its deadline are only set when play goes on.
func (that *step) emitMove(move entity.Move, ongoing bool) {
	board := that.next.Board
	event := Event{Kind: EventMoveApplied, PlayerID: that.next.Seats[that.next.SeatByMark(move.Mark)].PlayerID, Move: &move, Board: &board}

	if ongoing {
		event.Turn = that.next.Turn
		event.Deadline = that.next.Deadline
	}

	that.emit(event)
}

func (that *step) proposeDraw(in ProposeDraw) error {
	if err := that.requireInProgress(); err != nil {
		return err
	}

	idx, err := that.seated(in.PlayerID)
	if err != nil {
		return err
	}

	if that.next.DrawOffer != entity.MarkNone {
		return apperror.ErrDrawPending
	}

	that.next.DrawOffer = that.next.Seats[idx].Mark
	that.emit(Event{Kind: EventDrawProposed, PlayerID: in.PlayerID})

	return nil
}

func (that *step) answerDraw(playerID string, accept bool) error {
	if err := that.requireInProgress(); err != nil {
		return err
	}

	idx, err := that.seated(playerID)
	if err != nil {
		return err
	}

	if that.next.DrawOffer == entity.MarkNone || that.next.DrawOffer == that.next.Seats[idx].Mark {
		return apperror.ErrNoDrawProposal
	}

	that.next.DrawOffer = entity.MarkNone

	if accept {
		that.complete(entity.MarkNone, CauseDrawAgreed, nil)
		return nil
	}

	that.emit(Event{Kind: EventDrawRejected, PlayerID: playerID})

	return nil
}

func (that *step) surrender(in Surrender) error {
	if err := that.requireInProgress(); err != nil {
		return err
	}

	idx, err := that.seated(in.PlayerID)
	if err != nil {
		return err
	}

	that.complete(that.next.Seats[idx].Mark.Opponent(), CauseSurrender, nil)

	return nil
}

func (that *step) leave(in Leave) error {
	if _, err := that.seated(in.PlayerID); err != nil {
		return err
	}

	that.abandon(CauseLeft, in.PlayerID)

	return nil
}

func (that *step) disconnect(in Disconnect) error {
	idx, err := that.seated(in.PlayerID)
	if err != nil {
		return err
	}

	if that.next.Phase != PhaseInProgress {
		that.next.Seats[idx].Status = entity.StatusDisconnected
		that.emit(Event{Kind: EventPlayerDisconnected, PlayerID: in.PlayerID, Reason: apperror.ErrDisconnected.Error()})
		that.reason = apperror.ErrDisconnected
		that.abandon(CauseAbandonment, in.PlayerID)

		return nil
	}

	if !that.next.Seats[idx].IsConnected() {
		return errNoop
	}

	deadline := that.now.Add(that.cfg.DisconnectGrace)
	that.next.Seats[idx].Status = entity.StatusDisconnected
	that.next.Seats[idx].GraceDeadline = deadline
	that.startTimer(clock.Grace(idx), that.cfg.DisconnectGrace)
	that.emit(Event{
		Kind:     EventPlayerDisconnected,
		PlayerID: in.PlayerID,
		Deadline: deadline,
		Reason:   apperror.ErrDisconnected.Error(),
	})

	return nil
}

func (that *step) reconnect(in Reconnect) error {
	idx, err := that.seated(in.PlayerID)
	if err != nil {
		return err
	}

	if that.next.Seats[idx].IsConnected() {
		return errNoop
	}

	that.next.Seats[idx].Status = entity.StatusConnected
	that.next.Seats[idx].GraceDeadline = time.Time{}
	that.cancelTimer(clock.Grace(idx))

	snapshot := that.next.Snapshot(that.now)
	that.emit(Event{Kind: EventPlayerReconnected, PlayerID: in.PlayerID, Snapshot: &snapshot})

	return nil
}

func (that *step) timerExpired(in TimerExpired) error {
	switch in.Concern {
	case clock.Challenge:
		if that.next.Phase != PhaseChallenging {
			return apperror.ErrStaleTimer
		}

		if that.next.Seats[0].Accepted || that.next.Seats[1].Accepted {
			that.start()
			return nil
		}

		that.reason = apperror.ErrChallengeTimeout
		that.abandon(CauseChallengeTimeout, "")

		return nil
	case clock.Turn:
		if that.next.Phase != PhaseInProgress {
			return apperror.ErrStaleTimer
		}

		that.reason = apperror.ErrTurnTimeout
		that.complete(that.next.Turn.Opponent(), CauseTimeout, nil)

		return nil
	}

	for idx := range that.next.Seats {
		if in.Concern != clock.Grace(idx) {
			continue
		}

		if that.next.Phase != PhaseInProgress || that.next.Seats[idx].IsConnected() {
			return apperror.ErrStaleTimer
		}

		that.reason = fmt.Errorf("%w: %s", apperror.ErrGraceExpired, that.next.Seats[idx].PlayerID)

		other := that.next.Seats[1-idx]
		if !other.IsConnected() {
			that.abandon(CauseAbandonment, "")
			return nil
		}

		that.complete(other.Mark, CauseAbandonment, nil)

		return nil
	}

	return fmt.Errorf("%w: timer %q", apperror.ErrUnknownInput, in.Concern)
}

func (that *step) stopTimers() {
	for _, concern := range allConcerns {
		that.cancelTimer(concern)
	}
}

// complete ends the match. winner is MarkNone for a draw.
func (that *step) complete(winner entity.Mark, cause Cause, line *entity.WinningLine) {
	that.next.Phase = PhaseCompleted
	that.next.Cause = cause
	that.next.Winner = winner
	that.next.Line = line
	that.next.Deadline = time.Time{}
	that.next.DrawOffer = entity.MarkNone
	that.next.EndedAt = that.now

	if idx := that.next.SeatByMark(winner); idx >= 0 {
		that.next.WinnerID = that.next.Seats[idx].PlayerID
	}

	resultA := rating.Draw
	if winner != entity.MarkNone {
		resultA = rating.Loss
		if that.next.Seats[0].Mark == winner {
			resultA = rating.Win
		}
	}

	a, b := that.next.Seats[0], that.next.Seats[1]
	changes, err := rating.Changes(
		rating.Participant{PlayerID: a.PlayerID, Elo: a.Elo},
		rating.Participant{PlayerID: b.PlayerID, Elo: b.Elo},
		resultA,
	)
	if err == nil {
		that.next.Changes = changes
	}

	that.stopTimers()
	that.emitGameOver("")
}

// abandon ends the match without a rating change.
func (that *step) abandon(cause Cause, by string) {
	that.next.Phase = PhaseAbandoned
	that.next.Cause = cause
	that.next.Deadline = time.Time{}
	that.next.DrawOffer = entity.MarkNone
	that.next.EndedAt = that.now

	that.stopTimers()
	that.emitGameOver(by)
}

func (that *step) emitGameOver(by string) {
	result := &Result{
		Phase:    that.next.Phase,
		Cause:    that.next.Cause,
		Winner:   that.next.Winner,
		WinnerID: that.next.WinnerID,
		Line:     that.next.Line,
		Changes:  that.next.Changes,
	}

	event := Event{Kind: EventGameOver, PlayerID: by, Seats: that.seats(), Result: result}
	if that.reason != nil {
		event.Reason = that.reason.Error()
	}
	if !that.next.StartedAt.IsZero() {
		board := that.next.Board
		event.Board = &board
	}

	that.emit(event)
}
