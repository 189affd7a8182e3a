package caro

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/caro-backend/internal/apperror"
	"github.com/rocketscienceinc/caro-backend/internal/clock"
	"github.com/rocketscienceinc/caro-backend/internal/entity"
)

func inProgress(t *testing.T) State {
	t.Helper()

	state := NewState("s-1", epoch)
	state.Phase = PhaseInProgress
	state.Turn = entity.MarkX
	state.StartedAt = epoch
	state.Deadline = epoch.Add(testConfig.TurnTimeout)
	state.Seats[0] = entity.NewSeat(entity.NewPlayer(alice))
	state.Seats[0].Mark = entity.MarkX
	state.Seats[1] = entity.NewSeat(entity.NewPlayer(bob))
	state.Seats[1].Mark = entity.MarkO

	return state
}

func TestTransition_FullBoardDraw(t *testing.T) {
	state := inProgress(t)

	// Given: a board filled with pairs of alternating marks except the last cell
	last := entity.Position{Row: entity.BoardSize - 1, Col: entity.BoardSize - 1}
	for row := 0; row < entity.BoardSize; row++ {
		for col := 0; col < entity.BoardSize; col++ {
			pos := entity.Position{Row: row, Col: col}
			if pos == last {
				continue
			}

			mark := entity.MarkO
			if (col/2+row)%2 == 0 {
				mark = entity.MarkX
			}

			board, err := state.Board.Place(pos, mark)
			require.NoError(t, err)
			state.Board = board
			state.Moves = append(state.Moves, entity.Move{Position: pos, Mark: mark, Seq: len(state.Moves) + 1})
		}
	}

	// When: X fills the last cell
	next, out, err := Transition(state, MakeMove{PlayerID: alice, Position: last}, epoch, testConfig)

	// Then: the game is a draw
	require.NoError(t, err)
	assert.True(t, next.Board.IsFull())
	assert.Equal(t, PhaseCompleted, next.Phase)
	assert.Equal(t, CauseDraw, next.Cause)
	assert.Equal(t, entity.MarkNone, next.Winner)
	require.Len(t, next.Changes, 2)
	assert.Equal(t, 1, next.Changes[0].Delta)
	assert.Equal(t, 1, next.Changes[1].Delta)

	require.Len(t, out.Events, 2)
	assert.Equal(t, EventMoveApplied, out.Events[0].Kind)
	assert.Equal(t, EventGameOver, out.Events[1].Kind)
	assert.Contains(t, out.Timers, TimerOp{Concern: clock.Turn, Cancel: true})
}

func TestTransition_DoesNotAliasMoveLog(t *testing.T) {
	state := inProgress(t)
	state.Moves = make([]entity.Move, 0, 8)

	// When: two different moves are computed from the same state
	first, _, err := Transition(state, MakeMove{PlayerID: alice, Position: entity.Position{Row: 1, Col: 1}}, epoch, testConfig)
	require.NoError(t, err)
	second, _, err := Transition(state, MakeMove{PlayerID: alice, Position: entity.Position{Row: 2, Col: 2}}, epoch, testConfig)
	require.NoError(t, err)

	// Then: neither result sees the other's move
	assert.Equal(t, entity.Position{Row: 1, Col: 1}, first.Moves[0].Position)
	assert.Equal(t, entity.Position{Row: 2, Col: 2}, second.Moves[0].Position)
	assert.Empty(t, state.Moves)
	assert.Zero(t, state.Board.MoveCount())
}

func TestTransition_MoveApplied(t *testing.T) {
	state := inProgress(t)
	now := epoch.Add(3 * testConfig.ChallengeTimeout)

	next, out, err := Transition(state, MakeMove{PlayerID: alice, Position: entity.Position{Row: 7, Col: 7}}, now, testConfig)

	require.NoError(t, err)
	assert.Equal(t, entity.MarkO, next.Turn)
	assert.Equal(t, now.Add(testConfig.TurnTimeout), next.Deadline)
	assert.Equal(t, state.Version+1, next.Version)
	assert.Equal(t, []TimerOp{{Concern: clock.Turn, Duration: testConfig.TurnTimeout}}, out.Timers)

	require.Len(t, out.Events, 1)
	event := out.Events[0]
	assert.Equal(t, EventMoveApplied, event.Kind)
	assert.Equal(t, alice, event.PlayerID)
	assert.Equal(t, entity.MarkO, event.Turn)
	require.NotNil(t, event.Move)
	assert.Equal(t, 1, event.Move.Seq)
	assert.Equal(t, entity.CellX, event.Board.At(entity.Position{Row: 7, Col: 7}))
}

func TestTransition_Rejections(t *testing.T) {
	waiting := NewState("s-1", epoch)
	running := inProgress(t)
	finished := inProgress(t)
	finished.Phase = PhaseCompleted

	tests := []struct {
		name    string
		state   State
		input   Input
		wantErr error
	}{
		{name: "MoveBeforeStart", state: waiting, input: MakeMove{PlayerID: alice}, wantErr: apperror.ErrGameIsNotStarted},
		{name: "AcceptOutsideChallenge", state: running, input: AcceptChallenge{PlayerID: alice}, wantErr: apperror.ErrWrongPhase},
		{name: "SurrenderBeforeStart", state: waiting, input: Surrender{PlayerID: alice}, wantErr: apperror.ErrGameIsNotStarted},
		{name: "TerminalSurrender", state: finished, input: Surrender{PlayerID: alice}, wantErr: apperror.ErrAlreadyTerminated},
		{name: "TerminalDisconnect", state: finished, input: Disconnect{PlayerID: bob}, wantErr: apperror.ErrAlreadyTerminated},
		{name: "StaleChallengeTimer", state: running, input: TimerExpired{Concern: clock.Challenge}, wantErr: apperror.ErrStaleTimer},
		{name: "StaleGraceTimer", state: running, input: TimerExpired{Concern: clock.Grace(1)}, wantErr: apperror.ErrStaleTimer},
		{name: "UnknownTimer", state: running, input: TimerExpired{Concern: "other"}, wantErr: apperror.ErrUnknownInput},
		{name: "JoinWithoutPlayer", state: waiting, input: Join{}, wantErr: apperror.ErrNotSeated},
		{name: "StrangerDraw", state: running, input: ProposeDraw{PlayerID: "carol"}, wantErr: apperror.ErrNotSeated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, out, err := Transition(tt.state, tt.input, epoch, testConfig)

			require.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.state, next)
			assert.Empty(t, out.Events)
			assert.Empty(t, out.Timers)
		})
	}
}

func TestTransition_TerminalReconnect(t *testing.T) {
	finished := inProgress(t)
	finished.Phase = PhaseCompleted

	next, out, err := Transition(finished, Reconnect{PlayerID: bob}, epoch, testConfig)

	require.NoError(t, err)
	assert.Equal(t, finished, next)
	assert.Empty(t, out.Events)
}

func TestTransition_JoinIsIdempotent(t *testing.T) {
	state := NewState("s-1", epoch)

	next, out, err := Transition(state, Join{Player: entity.NewPlayer(alice)}, epoch, testConfig)
	require.NoError(t, err)
	require.Len(t, out.Events, 1)

	again, out, err := Transition(next, Join{Player: entity.NewPlayer(alice)}, epoch, testConfig)
	require.NoError(t, err)
	assert.Equal(t, next, again)
	assert.Empty(t, out.Events)
}

func TestTransition_WinningMoveEndsTurn(t *testing.T) {
	state := inProgress(t)

	// Given: X has four in a row and it is X's turn
	for col := 0; col < 4; col++ {
		board, err := state.Board.Place(entity.Position{Row: 0, Col: col}, entity.MarkX)
		require.NoError(t, err)
		state.Board = board
	}

	// When: X completes five
	next, out, err := Transition(state, MakeMove{PlayerID: alice, Position: entity.Position{Row: 0, Col: 4}}, epoch, testConfig)

	// Then: the move event names no next turn and no deadline
	require.NoError(t, err)
	assert.Equal(t, PhaseCompleted, next.Phase)
	require.Len(t, out.Events, 2)

	move := out.Events[0]
	assert.Equal(t, EventMoveApplied, move.Kind)
	assert.Equal(t, entity.MarkNone, move.Turn)
	assert.True(t, move.Deadline.IsZero())
	assert.Equal(t, EventGameOver, out.Events[1].Kind)
	assert.Empty(t, out.Events[1].Reason)
}

func TestTransition_TerminationReasons(t *testing.T) {
	challenging := NewState("s-1", epoch)
	challenging.Phase = PhaseChallenging
	challenging.Seats[0] = entity.NewSeat(entity.NewPlayer(alice))
	challenging.Seats[1] = entity.NewSeat(entity.NewPlayer(bob))

	graceRunning := inProgress(t)
	graceRunning.Seats[1].Status = entity.StatusDisconnected
	graceRunning.Seats[1].GraceDeadline = epoch.Add(testConfig.DisconnectGrace)

	tests := []struct {
		name       string
		state      State
		input      Input
		wantCause  Cause
		wantReason error
	}{
		{name: "TurnTimeout", state: inProgress(t), input: TimerExpired{Concern: clock.Turn},
			wantCause: CauseTimeout, wantReason: apperror.ErrTurnTimeout},
		{name: "ChallengeTimeout", state: challenging, input: TimerExpired{Concern: clock.Challenge},
			wantCause: CauseChallengeTimeout, wantReason: apperror.ErrChallengeTimeout},
		{name: "GraceExpired", state: graceRunning, input: TimerExpired{Concern: clock.Grace(1)},
			wantCause: CauseAbandonment, wantReason: apperror.ErrGraceExpired},
		{name: "DisconnectBeforeStart", state: challenging, input: Disconnect{PlayerID: bob},
			wantCause: CauseAbandonment, wantReason: apperror.ErrDisconnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, out, err := Transition(tt.state, tt.input, epoch, testConfig)

			require.NoError(t, err)
			assert.Equal(t, tt.wantCause, next.Cause)

			require.NotEmpty(t, out.Events)
			over := out.Events[len(out.Events)-1]
			require.Equal(t, EventGameOver, over.Kind)
			assert.Contains(t, over.Reason, tt.wantReason.Error())
		})
	}
}

func TestTransition_DisconnectReason(t *testing.T) {
	next, out, err := Transition(inProgress(t), Disconnect{PlayerID: bob}, epoch, testConfig)

	require.NoError(t, err)
	assert.Equal(t, PhaseInProgress, next.Phase)
	require.Len(t, out.Events, 1)
	assert.Equal(t, EventPlayerDisconnected, out.Events[0].Kind)
	assert.Equal(t, apperror.ErrDisconnected.Error(), out.Events[0].Reason)
}
