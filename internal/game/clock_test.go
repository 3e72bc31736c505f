package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestNewClock(t *testing.T) {
	tc := TimeControl{BaseMinutes: 3, IncrementSeconds: 2, Label: "blitz"}
	now := int64(1_000_000)

	c := NewClock(tc, now)

	assert.Equal(t, int64(180_000), c.WhiteMs)
	assert.Equal(t, int64(180_000), c.BlackMs)
	assert.Equal(t, ActiveNone, c.ActiveColor)
	assert.Equal(t, now, c.LastMoveAtMs)
	assert.Equal(t, now+FirstMoveWindowMs, c.FirstMoveDeadlineMs)
	assert.Equal(t, 0, c.MoveCount)
	assert.Equal(t, int64(180_000), c.BaseMs)
	assert.Equal(t, int64(2_000), c.IncrementMs)
}

func TestApplyMove_FirstMove(t *testing.T) {
	tc := TimeControl{BaseMinutes: 1, IncrementSeconds: 5}
	created := int64(50_000)
	c := *NewClock(tc, created)

	// White's first move starts the clocks without charging time and
	// without the increment, however long it took to arrive.
	now := created + 25_000
	res, err := ApplyMove(c, ActiveWhite, now-100, now)
	require.NoError(t, err)

	assert.False(t, res.Timeout)
	assert.Equal(t, int64(60_000), res.Clock.WhiteMs)
	assert.Equal(t, int64(60_000), res.Clock.BlackMs)
	assert.Equal(t, ActiveBlack, res.Clock.ActiveColor)
	assert.Equal(t, now, res.Clock.LastMoveAtMs)
	assert.Zero(t, res.Clock.FirstMoveDeadlineMs)
	assert.Equal(t, 1, res.Clock.MoveCount)
	assert.Zero(t, res.ElapsedMs)
	assert.Zero(t, res.LagCompMs)
}

func TestApplyMove_FirstMoveByBlack(t *testing.T) {
	c := *NewClock(TimeControl{BaseMinutes: 1}, 0)

	_, err := ApplyMove(c, ActiveBlack, 0, 1_000)
	require.ErrorIs(t, err, ErrWrongTurn)
}

func TestApplyMove_WrongTurn(t *testing.T) {
	c := Clock{
		WhiteMs: 60_000, BlackMs: 60_000,
		ActiveColor: ActiveBlack, LastMoveAtMs: 1_000,
	}

	_, err := ApplyMove(c, ActiveWhite, 0, 2_000)
	require.ErrorIs(t, err, ErrWrongTurn)
}

func TestApplyMove_Deduction(t *testing.T) {
	tests := []struct {
		name        string
		clock       Clock
		mover       Active
		clientTsMs  int64
		nowMs       int64
		wantMoverMs int64
		wantElapsed int64
		wantComp    int64
	}{
		{
			name: "elapsed deducted and increment added",
			clock: Clock{
				WhiteMs: 60_000, BlackMs: 60_000, IncrementMs: 2_000,
				ActiveColor: ActiveWhite, LastMoveAtMs: 10_000, MoveCount: 2,
			},
			mover: ActiveWhite, clientTsMs: 0, nowMs: 14_000,
			wantMoverMs: 58_000, // 60000 - 4000 + 2000
			wantElapsed: 4_000,
		},
		{
			name: "lag compensation credited",
			clock: Clock{
				WhiteMs: 60_000, BlackMs: 60_000,
				ActiveColor: ActiveBlack, LastMoveAtMs: 10_000, MoveCount: 3,
			},
			mover: ActiveBlack, clientTsMs: 13_700, nowMs: 14_000,
			wantMoverMs: 56_300, // 60000 - 4000 + 300
			wantElapsed: 4_000,
			wantComp:    300,
		},
		{
			name: "lag compensation capped at 500ms",
			clock: Clock{
				WhiteMs: 60_000, BlackMs: 60_000,
				ActiveColor: ActiveWhite, LastMoveAtMs: 10_000, MoveCount: 2,
			},
			mover: ActiveWhite, clientTsMs: 11_000, nowMs: 14_000,
			wantMoverMs: 56_500, // 60000 - 4000 + 500
			wantElapsed: 4_000,
			wantComp:    500,
		},
		{
			name: "future client timestamp yields no compensation",
			clock: Clock{
				WhiteMs: 60_000, BlackMs: 60_000,
				ActiveColor: ActiveWhite, LastMoveAtMs: 10_000, MoveCount: 2,
			},
			mover: ActiveWhite, clientTsMs: 15_000, nowMs: 14_000,
			wantMoverMs: 56_000,
			wantElapsed: 4_000,
		},
		{
			name: "negative client timestamp yields no compensation",
			clock: Clock{
				WhiteMs: 60_000, BlackMs: 60_000,
				ActiveColor: ActiveWhite, LastMoveAtMs: 10_000, MoveCount: 2,
			},
			mover: ActiveWhite, clientTsMs: -5, nowMs: 14_000,
			wantMoverMs: 56_000,
			wantElapsed: 4_000,
		},
		{
			name: "clock skew floors elapsed at zero",
			clock: Clock{
				WhiteMs: 60_000, BlackMs: 60_000, IncrementMs: 1_000,
				ActiveColor: ActiveWhite, LastMoveAtMs: 20_000, MoveCount: 2,
			},
			mover: ActiveWhite, clientTsMs: 0, nowMs: 19_000,
			wantMoverMs: 61_000,
			wantElapsed: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := ApplyMove(tt.clock, tt.mover, tt.clientTsMs, tt.nowMs)
			require.NoError(t, err)
			require.False(t, res.Timeout)

			moverMs := res.Clock.WhiteMs
			otherMs := res.Clock.BlackMs
			otherBefore := tt.clock.BlackMs
			if tt.mover == ActiveBlack {
				moverMs, otherMs = otherMs, moverMs
				otherBefore = tt.clock.WhiteMs
			}

			assert.Equal(t, tt.wantMoverMs, moverMs)
			assert.Equal(t, otherBefore, otherMs, "opponent time must not change")
			assert.Equal(t, tt.wantElapsed, res.ElapsedMs)
			assert.Equal(t, tt.wantComp, res.LagCompMs)
			assert.Equal(t, tt.mover.Opposite(), res.Clock.ActiveColor)
			assert.Equal(t, tt.nowMs, res.Clock.LastMoveAtMs)
			assert.Equal(t, tt.clock.MoveCount+1, res.Clock.MoveCount)
		})
	}
}

func TestApplyMove_FlagFall(t *testing.T) {
	c := Clock{
		WhiteMs: 3_000, BlackMs: 60_000, IncrementMs: 1_000,
		ActiveColor: ActiveWhite, LastMoveAtMs: 10_000, MoveCount: 6,
	}

	// 5s elapsed against 3s remaining: the increment cannot save it.
	res, err := ApplyMove(c, ActiveWhite, 0, 15_000)
	require.NoError(t, err)

	assert.True(t, res.Timeout)
	assert.Equal(t, ActiveBlack, res.Winner)
	assert.Zero(t, res.Clock.WhiteMs)
	// The turn does not flip and the move is not counted.
	assert.Equal(t, ActiveWhite, res.Clock.ActiveColor)
	assert.Equal(t, 6, res.Clock.MoveCount)
}

func TestApplyMove_IncrementRescues(t *testing.T) {
	c := Clock{
		WhiteMs: 60_000, BlackMs: 400, IncrementMs: 2_000,
		ActiveColor: ActiveBlack, LastMoveAtMs: 10_000, MoveCount: 9,
	}

	// 1s elapsed against 400ms remaining, but the increment lands first
	// in the ledger: 400 - 1000 + 2000 = 1400.
	res, err := ApplyMove(c, ActiveBlack, 0, 11_000)
	require.NoError(t, err)

	assert.False(t, res.Timeout)
	assert.Equal(t, int64(1_400), res.Clock.BlackMs)
	assert.Equal(t, ActiveWhite, res.Clock.ActiveColor)
}

func TestApplyMove_ExactZeroIsTimeout(t *testing.T) {
	c := Clock{
		WhiteMs: 5_000, BlackMs: 60_000,
		ActiveColor: ActiveWhite, LastMoveAtMs: 0, MoveCount: 4,
	}

	res, err := ApplyMove(c, ActiveWhite, 0, 5_000)
	require.NoError(t, err)
	assert.True(t, res.Timeout)
	assert.Equal(t, ActiveBlack, res.Winner)
}

func TestProject(t *testing.T) {
	t.Run("no side running", func(t *testing.T) {
		c := Clock{WhiteMs: 60_000, BlackMs: 60_000, ActiveColor: ActiveNone, LastMoveAtMs: 0}
		p := Project(c, 1_000_000)
		assert.Equal(t, int64(60_000), p.WhiteMs)
		assert.Equal(t, int64(60_000), p.BlackMs)
		assert.False(t, p.TimedOut)
	})

	t.Run("active side drains", func(t *testing.T) {
		c := Clock{WhiteMs: 60_000, BlackMs: 45_000, ActiveColor: ActiveBlack, LastMoveAtMs: 10_000}
		p := Project(c, 13_000)
		assert.Equal(t, int64(60_000), p.WhiteMs)
		assert.Equal(t, int64(42_000), p.BlackMs)
		assert.False(t, p.TimedOut)
	})

	t.Run("flag fall floors at zero", func(t *testing.T) {
		c := Clock{WhiteMs: 2_000, BlackMs: 45_000, ActiveColor: ActiveWhite, LastMoveAtMs: 10_000}
		p := Project(c, 13_000)
		assert.Zero(t, p.WhiteMs)
		assert.True(t, p.TimedOut)
		assert.Equal(t, ActiveWhite, p.Flagged)
	})

	t.Run("clock skew does not drain", func(t *testing.T) {
		c := Clock{WhiteMs: 2_000, BlackMs: 45_000, ActiveColor: ActiveWhite, LastMoveAtMs: 10_000}
		p := Project(c, 9_000)
		assert.Equal(t, int64(2_000), p.WhiteMs)
		assert.False(t, p.TimedOut)
	})
}

// TestClockConservation checks the time ledger over random games: at every
// point, whiteMs + blackMs equals the time granted (two bases plus one
// increment per committed move after the first) minus elapsed time plus
// compensation credits.
func TestClockConservation(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		base := rapid.Int64Range(30_000, 300_000).Draw(t, "baseMs")
		inc := rapid.Int64Range(0, 5_000).Draw(t, "incMs")
		steps := rapid.IntRange(1, 60).Draw(t, "steps")

		now := int64(1_000_000)
		c := Clock{
			WhiteMs: base, BlackMs: base,
			ActiveColor: ActiveNone, LastMoveAtMs: now,
			FirstMoveDeadlineMs: now + FirstMoveWindowMs,
			BaseMs:              base, IncrementMs: inc,
		}

		var sumElapsed, sumComp int64
		mover := ActiveWhite

		for i := 0; i < steps; i++ {
			gap := rapid.Int64Range(0, 2_000).Draw(t, "gap")
			lag := rapid.Int64Range(0, 800).Draw(t, "lag")
			now += gap

			res, err := ApplyMove(c, mover, now-lag, now)
			if err != nil {
				t.Fatalf("apply move %d: %v", i, err)
			}
			if res.Timeout {
				break
			}

			c = res.Clock
			sumElapsed += res.ElapsedMs
			sumComp += res.LagCompMs
			mover = c.ActiveColor
		}

		if c.MoveCount == 0 {
			return
		}
		granted := 2*base + int64(c.MoveCount-1)*inc
		got := c.WhiteMs + c.BlackMs
		want := granted - sumElapsed + sumComp
		if got != want {
			t.Fatalf("conservation violated: white+black = %d, want %d (granted %d, elapsed %d, comp %d)",
				got, want, granted, sumElapsed, sumComp)
		}
	})
}
