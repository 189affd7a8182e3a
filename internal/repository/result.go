package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rocketscienceinc/caro-backend/internal/caro"
	"github.com/rocketscienceinc/caro-backend/internal/entity"
	"github.com/rocketscienceinc/caro-backend/internal/rating"
)

var (
	ErrResultExists   = errors.New("result already exists")
	ErrResultNotFound = errors.New("result not found")
	ErrRatingNotFound = errors.New("rating not found")
)

// ResultRepository keeps finished games and the durable ratings derived from them.
type ResultRepository interface {
	Save(ctx context.Context, outcome caro.Outcome) error
	GetBySessionID(ctx context.Context, sessionID string) (caro.Outcome, error)
	GetStanding(ctx context.Context, playerID string) (*entity.Standing, error)
}

type dbResult struct {
	pool *pgxpool.Pool
}

func NewResultRepository(pool *pgxpool.Pool) ResultRepository {
	return &dbResult{
		pool: pool,
	}
}

const (
	insertResultQuery = `
		INSERT INTO game_results (idempotency_key, session_id, phase, cause, winner_id, board, seats, moves, ended_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9)
		ON CONFLICT (idempotency_key) DO NOTHING`

	insertChangeQuery = `
		INSERT INTO rating_changes (idempotency_key, player_id, previous_elo, new_elo, delta, result)
		VALUES ($1, $2, $3, $4, $5, $6)`

	upsertStandingQuery = `
		INSERT INTO player_ratings (player_id, elo, games, wins, draws, losses, updated_at)
		VALUES ($1, $2::integer + $3::integer, 1, $4, $5, $6, now())
		ON CONFLICT (player_id) DO UPDATE SET
			elo = player_ratings.elo + $3,
			games = player_ratings.games + 1,
			wins = player_ratings.wins + $4,
			draws = player_ratings.draws + $5,
			losses = player_ratings.losses + $6,
			updated_at = now()`

	selectResultQuery = `
		SELECT idempotency_key, session_id, phase, cause, COALESCE(winner_id, ''), board, seats, moves, ended_at
		FROM game_results
		WHERE session_id = $1
		ORDER BY ended_at DESC
		LIMIT 1`

	selectChangesQuery = `
		SELECT player_id, previous_elo, new_elo, delta, result
		FROM rating_changes
		WHERE idempotency_key = $1
		ORDER BY player_id`

	selectStandingQuery = `
		SELECT player_id, elo, games, wins, draws, losses, updated_at
		FROM player_ratings
		WHERE player_id = $1`
)

// Save records outcome once per idempotency key. A repeated key returns ErrResultExists
// and changes nothing.
func (that *dbResult) Save(ctx context.Context, outcome caro.Outcome) error {
	board, err := json.Marshal(outcome.Board)
	if err != nil {
		return fmt.Errorf("failed to marshal board: %w", err)
	}

	seats, err := json.Marshal(outcome.Seats)
	if err != nil {
		return fmt.Errorf("failed to marshal seats: %w", err)
	}

	moves, err := json.Marshal(outcome.Moves)
	if err != nil {
		return fmt.Errorf("failed to marshal moves: %w", err)
	}

	tx, err := that.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	tag, err := tx.Exec(ctx, insertResultQuery,
		outcome.Key, outcome.SessionID, string(outcome.Phase), string(outcome.Cause), outcome.WinnerID,
		string(board), string(seats), string(moves), outcome.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert result: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrResultExists
	}

	for _, change := range outcome.Changes {
		if _, err = tx.Exec(ctx, insertChangeQuery,
			outcome.Key, change.PlayerID, change.Previous, change.New, change.Delta, string(change.Result),
		); err != nil {
			return fmt.Errorf("failed to insert rating change: %w", err)
		}

		wins, draws, losses := tally(change.Result)
		if _, err = tx.Exec(ctx, upsertStandingQuery,
			change.PlayerID, entity.InitialElo, change.Delta, wins, draws, losses,
		); err != nil {
			return fmt.Errorf("failed to upsert standing: %w", err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit result: %w", err)
	}

	return nil
}

func tally(result rating.Result) (int, int, int) {
	switch result {
	case rating.Win:
		return 1, 0, 0
	case rating.Draw:
		return 0, 1, 0
	default:
		return 0, 0, 1
	}
}

func (that *dbResult) GetBySessionID(ctx context.Context, sessionID string) (caro.Outcome, error) {
	var (
		outcome             caro.Outcome
		phase, cause        string
		board, seats, moves []byte
	)

	err := that.pool.QueryRow(ctx, selectResultQuery, sessionID).Scan(
		&outcome.Key, &outcome.SessionID, &phase, &cause, &outcome.WinnerID, &board, &seats, &moves, &outcome.EndedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return caro.Outcome{}, ErrResultNotFound
	}

	if err != nil {
		return caro.Outcome{}, fmt.Errorf("failed to get result by session ID: %w", err)
	}

	outcome.Phase = caro.Phase(phase)
	outcome.Cause = caro.Cause(cause)

	if err = json.Unmarshal(board, &outcome.Board); err != nil {
		return caro.Outcome{}, fmt.Errorf("failed to unmarshal board: %w", err)
	}

	if err = json.Unmarshal(seats, &outcome.Seats); err != nil {
		return caro.Outcome{}, fmt.Errorf("failed to unmarshal seats: %w", err)
	}

	if err = json.Unmarshal(moves, &outcome.Moves); err != nil {
		return caro.Outcome{}, fmt.Errorf("failed to unmarshal moves: %w", err)
	}

	rows, err := that.pool.Query(ctx, selectChangesQuery, outcome.Key)
	if err != nil {
		return caro.Outcome{}, fmt.Errorf("failed to get rating changes: %w", err)
	}

	outcome.Changes, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (rating.Change, error) {
		var (
			change rating.Change
			result string
		)

		err := row.Scan(&change.PlayerID, &change.Previous, &change.New, &change.Delta, &result)
		change.Result = rating.Result(result)

		return change, err
	})
	if err != nil {
		return caro.Outcome{}, fmt.Errorf("failed to scan rating changes: %w", err)
	}

	return outcome, nil
}

func (that *dbResult) GetStanding(ctx context.Context, playerID string) (*entity.Standing, error) {
	var standing entity.Standing

	err := that.pool.QueryRow(ctx, selectStandingQuery, playerID).Scan(
		&standing.PlayerID, &standing.Elo, &standing.Games, &standing.Wins, &standing.Draws, &standing.Losses,
		&standing.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return &entity.Standing{}, ErrRatingNotFound
	}

	if err != nil {
		return &entity.Standing{}, fmt.Errorf("failed to get standing: %w", err)
	}

	return &standing, nil
}
