package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/caro-backend/internal/entity"
	"github.com/rocketscienceinc/caro-backend/testing/suite"
)

func TestPlayerRepository_Create(t *testing.T) {
	ctx, st := suite.New(t)

	playerRepo := NewPlayerRepository(st.Storage)

	// Given: a stored player with a changed rating
	created, err := playerRepo.Create(ctx, entity.NewPlayer("123"))
	require.NoError(t, err)
	assert.Equal(t, entity.NewPlayer("123"), created)

	_, _, err = playerRepo.ApplyRating(ctx, "S1:win", "123", 3)
	require.NoError(t, err)

	// When: Create is called again for the same id
	stored, err := playerRepo.Create(ctx, entity.NewPlayer("123"))

	// Then: the existing profile is kept
	require.NoError(t, err)
	assert.Equal(t, 1003, stored.Elo)
}

func TestPlayerRepository_GetByID(t *testing.T) {
	t.Run("GetByID_Success", func(t *testing.T) {
		ctx, st := suite.New(t)

		playerRepo := NewPlayerRepository(st.Storage)

		// Given: a stored player seated in a session
		player := entity.NewPlayer("123")
		player.SessionID = "s-1"

		_, err := playerRepo.Create(ctx, player)
		require.NoError(t, err)

		// When: GetByID is called with existing ID
		retrievedPlayer, err := playerRepo.GetByID(ctx, player.ID)

		// Then: the retrieved player should match the saved player
		require.NoError(t, err)
		require.Equal(t, player, retrievedPlayer)
	})

	t.Run("GetByID_NotFound", func(t *testing.T) {
		ctx, st := suite.New(t)

		playerRepo := NewPlayerRepository(st.Storage)

		// When: GetByID is called with non-existent ID
		retrievedPlayer, err := playerRepo.GetByID(ctx, "9999999")

		// Then: an ErrPlayerNotFound error should be returned
		require.ErrorIs(t, err, ErrPlayerNotFound)
		assert.Empty(t, retrievedPlayer.ID)
	})
}

func TestPlayerRepository_AssignAndRelease(t *testing.T) {
	ctx, st := suite.New(t)

	playerRepo := NewPlayerRepository(st.Storage)

	_, err := playerRepo.Create(ctx, entity.NewPlayer("123"))
	require.NoError(t, err)

	// Given: the player moved on from s-1 to s-2
	require.NoError(t, playerRepo.Assign(ctx, "123", "s-1"))
	require.NoError(t, playerRepo.Assign(ctx, "123", "s-2"))

	// When: s-1 releases the player late
	released, err := playerRepo.Release(ctx, "123", "s-1")

	// Then: the newer session is kept
	require.NoError(t, err)
	assert.False(t, released)

	stored, err := playerRepo.GetByID(ctx, "123")
	require.NoError(t, err)
	assert.Equal(t, "s-2", stored.SessionID)

	// When: s-2 releases the player
	released, err = playerRepo.Release(ctx, "123", "s-2")

	// Then: the player is free and the rating is untouched
	require.NoError(t, err)
	assert.True(t, released)

	stored, err = playerRepo.GetByID(ctx, "123")
	require.NoError(t, err)
	assert.Empty(t, stored.SessionID)
	assert.Equal(t, entity.InitialElo, stored.Elo)
}

func TestPlayerRepository_ApplyRating(t *testing.T) {
	t.Run("ApplyRating_OncePerKey", func(t *testing.T) {
		ctx, st := suite.New(t)

		playerRepo := NewPlayerRepository(st.Storage)

		_, err := playerRepo.Create(ctx, entity.NewPlayer("123"))
		require.NoError(t, err)

		// Given: two games were settled for the player
		elo, applied, err := playerRepo.ApplyRating(ctx, "S1:win", "123", 3)
		require.NoError(t, err)
		assert.True(t, applied)
		assert.Equal(t, 1003, elo)

		elo, applied, err = playerRepo.ApplyRating(ctx, "S2:win", "123", 3)
		require.NoError(t, err)
		assert.True(t, applied)
		assert.Equal(t, 1006, elo)

		// When: the first game is settled again
		elo, applied, err = playerRepo.ApplyRating(ctx, "S1:win", "123", 3)

		// Then: the later rating stands
		require.NoError(t, err)
		assert.False(t, applied)
		assert.Equal(t, 1006, elo)
	})

	t.Run("ApplyRating_KeepsSession", func(t *testing.T) {
		ctx, st := suite.New(t)

		playerRepo := NewPlayerRepository(st.Storage)

		// Given: a player already seated in the next game
		player := entity.NewPlayer("123")
		player.SessionID = "s-2"
		_, err := playerRepo.Create(ctx, player)
		require.NoError(t, err)

		// When: the previous game adds its rating
		_, _, err = playerRepo.ApplyRating(ctx, "S1:draw", "123", 1)
		require.NoError(t, err)

		// Then: both fields survive
		stored, err := playerRepo.GetByID(ctx, "123")
		require.NoError(t, err)
		assert.Equal(t, &entity.Player{ID: "123", Elo: 1001, SessionID: "s-2"}, stored)
	})

	t.Run("ApplyRating_UnknownPlayer", func(t *testing.T) {
		ctx, st := suite.New(t)

		playerRepo := NewPlayerRepository(st.Storage)

		elo, applied, err := playerRepo.ApplyRating(ctx, "S1:win", "ghost", 3)

		require.NoError(t, err)
		assert.True(t, applied)
		assert.Equal(t, entity.InitialElo+3, elo)
	})
}
