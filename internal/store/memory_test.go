package store

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chess-server/internal/game"
	"chess-server/internal/models"
)

func newTestGame(id string) *models.Game {
	tc := game.GetTimeControl("blitz")
	return &models.Game{
		GameID:        id,
		WhitePlayerID: "alice",
		BlackPlayerID: "bob",
		History:       []string{},
		Status:        models.GameStatusOngoing,
		TimeControl:   tc,
		Clock:         game.NewClock(tc, 1_000_000),
	}
}

func TestMemoryStore_CreateLoad(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, newTestGame("g1")))

	g, err := s.Load(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, "alice", g.WhitePlayerID)
	assert.Equal(t, models.GameStatusOngoing, g.Status)
	assert.False(t, g.CreatedAt.IsZero())

	// Duplicate ids are rejected.
	require.Error(t, s.Create(ctx, newTestGame("g1")))

	_, err = s.Load(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_LoadIsolation(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, newTestGame("g1")))

	g1, err := s.Load(ctx, "g1")
	require.NoError(t, err)
	g1.History = append(g1.History, "e2e4")
	g1.Clock.WhiteMs = 0
	g1.Status = models.GameStatusCompleted

	g2, err := s.Load(ctx, "g1")
	require.NoError(t, err)
	assert.Empty(t, g2.History, "loaded games must be independent copies")
	assert.NotZero(t, g2.Clock.WhiteMs)
	assert.Equal(t, models.GameStatusOngoing, g2.Status)
}

func TestMemoryStore_FieldPatch(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, newTestGame("g1")))

	pm := &game.Premove{From: "e7", To: "e5", SetAtMs: 5}
	require.NoError(t, s.FieldPatch(ctx, "g1", Fields{
		"history":              []string{"e2e4"},
		"queuedPremoves.black": pm,
		"whiteDrawOffers":      1,
	}))

	g, err := s.Load(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, []string{"e2e4"}, g.History)
	require.NotNil(t, g.QueuedPremoves.Black)
	assert.Equal(t, "e7e5", g.QueuedPremoves.Black.UCI())
	assert.Equal(t, 1, g.WhiteDrawOffers)

	// Clearing a slot with nil.
	require.NoError(t, s.FieldPatch(ctx, "g1", Fields{"queuedPremoves.black": nil}))
	g, err = s.Load(ctx, "g1")
	require.NoError(t, err)
	assert.Nil(t, g.QueuedPremoves.Black)

	require.ErrorIs(t, s.FieldPatch(ctx, "missing", Fields{"history": []string{}}), ErrNotFound)

	require.Error(t, s.FieldPatch(ctx, "g1", Fields{"noSuchField": 1}))
}

func TestMemoryStore_ConditionalUpdate(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, newTestGame("g1")))

	// Completion latch: flips once, then never matches again.
	matched, err := s.ConditionalUpdate(ctx, "g1",
		Fields{"status": models.GameStatusOngoing},
		Fields{"status": models.GameStatusCompleted, "result": models.ResultWhite})
	require.NoError(t, err)
	assert.True(t, matched)

	matched, err = s.ConditionalUpdate(ctx, "g1",
		Fields{"status": models.GameStatusOngoing},
		Fields{"status": models.GameStatusCompleted, "result": models.ResultBlack})
	require.NoError(t, err)
	assert.False(t, matched, "second completion must be a no-op")

	g, err := s.Load(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, models.ResultWhite, g.Result, "losing terminator must not overwrite the result")

	// Unknown game: no match, no error.
	matched, err = s.ConditionalUpdate(ctx, "missing",
		Fields{"status": models.GameStatusOngoing}, Fields{"result": models.ResultDraw})
	require.NoError(t, err)
	assert.False(t, matched)

	// Unknown predicate paths are errors, not silent mismatches.
	_, err = s.ConditionalUpdate(ctx, "g1", Fields{"bogus": 1}, Fields{"result": models.ResultDraw})
	require.Error(t, err)
}

func TestMemoryStore_ConditionalUpdate_ExactlyOnce(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, newTestGame("g1")))

	const terminators = 32
	var wins int32
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < terminators; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			matched, err := s.ConditionalUpdate(ctx, "g1",
				Fields{"status": models.GameStatusOngoing},
				Fields{"status": models.GameStatusCompleted})
			assert.NoError(t, err)
			if matched {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, wins, "exactly one terminator wins the latch")
}

func TestMemoryStore_ActiveGames(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	running := newTestGame("running")
	require.NoError(t, s.Create(ctx, running))

	done := newTestGame("done")
	done.Status = models.GameStatusCompleted
	require.NoError(t, s.Create(ctx, done))

	idle := newTestGame("idle")
	idle.Clock = nil
	require.NoError(t, s.Create(ctx, idle))

	disconnected := newTestGame("disconnected")
	disconnected.Clock = nil
	disconnected.DisconnectedPlayerID = "bob"
	disconnected.DisconnectDeadlineMs = 42
	require.NoError(t, s.Create(ctx, disconnected))

	games, err := s.ActiveGames(ctx)
	require.NoError(t, err)

	ids := make([]string, 0, len(games))
	for _, g := range games {
		ids = append(ids, g.GameID)
	}
	assert.ElementsMatch(t, []string{"running", "disconnected"}, ids)
}
