package game

import "errors"

// ErrWrongTurn is returned when a move is applied for the side whose
// clock is not running.
var ErrWrongTurn = errors.New("not this player's turn")

const (
	// LagCompensationCapMs bounds how much network delay is credited
	// back to the mover per move.
	LagCompensationCapMs int64 = 500

	// FirstMoveWindowMs is how long White has to play the first move
	// before the game is aborted.
	FirstMoveWindowMs int64 = 30 * 1000
)

// Clock is the persisted clock snapshot for one game. All fields are
// integer milliseconds; timestamps are Unix milliseconds.
type Clock struct {
	WhiteMs             int64  `json:"whiteMs" bson:"whiteMs"`
	BlackMs             int64  `json:"blackMs" bson:"blackMs"`
	ActiveColor         Active `json:"activeColor" bson:"activeColor"`
	LastMoveAtMs        int64  `json:"lastMoveAtMs" bson:"lastMoveAtMs"`
	FirstMoveDeadlineMs int64  `json:"firstMoveDeadlineMs,omitempty" bson:"firstMoveDeadlineMs,omitempty"`
	MoveCount           int    `json:"moveCount" bson:"moveCount"`
	BaseMs              int64  `json:"baseMs" bson:"baseMs"`
	IncrementMs         int64  `json:"incrementMs" bson:"incrementMs"`
}

// NewClock primes a clock for a freshly created game: both sides at base
// time, no side running, first-move deadline armed.
func NewClock(tc TimeControl, nowMs int64) *Clock {
	return &Clock{
		WhiteMs:             tc.BaseMs(),
		BlackMs:             tc.BaseMs(),
		ActiveColor:         ActiveNone,
		LastMoveAtMs:        nowMs,
		FirstMoveDeadlineMs: nowMs + FirstMoveWindowMs,
		MoveCount:           0,
		BaseMs:              tc.BaseMs(),
		IncrementMs:         tc.IncrementMs(),
	}
}

// MoveResult is the outcome of applying one move to a clock snapshot.
// When Timeout is set the turn did not flip and Winner names the side
// that wins on time.
type MoveResult struct {
	Clock     Clock
	Timeout   bool
	Winner    Active
	ElapsedMs int64
	LagCompMs int64
}

// ApplyMove charges the mover's clock for one committed move and swaps
// the running side. clientTsMs is the client's send timestamp used for
// lag compensation; zero or invalid values yield no compensation.
//
// The first move of the game starts the clocks without deducting time
// and clears the first-move deadline.
func ApplyMove(c Clock, mover Active, clientTsMs, nowMs int64) (MoveResult, error) {
	if c.ActiveColor == ActiveNone {
		if mover != ActiveWhite {
			return MoveResult{}, ErrWrongTurn
		}
		c.ActiveColor = ActiveBlack
		c.LastMoveAtMs = nowMs
		c.FirstMoveDeadlineMs = 0
		c.MoveCount = 1
		return MoveResult{Clock: c}, nil
	}

	if c.ActiveColor != mover {
		return MoveResult{}, ErrWrongTurn
	}

	elapsed := nowMs - c.LastMoveAtMs
	if elapsed < 0 {
		elapsed = 0
	}

	var comp int64
	if clientTsMs > 0 && clientTsMs <= nowMs {
		comp = nowMs - clientTsMs
		if comp > LagCompensationCapMs {
			comp = LagCompensationCapMs
		}
	}

	switch mover {
	case ActiveWhite:
		c.WhiteMs += comp + c.IncrementMs - elapsed
	case ActiveBlack:
		c.BlackMs += comp + c.IncrementMs - elapsed
	}

	if c.WhiteMs <= 0 {
		c.WhiteMs = 0
		return MoveResult{Clock: c, Timeout: true, Winner: ActiveBlack, ElapsedMs: elapsed, LagCompMs: comp}, nil
	}
	if c.BlackMs <= 0 {
		c.BlackMs = 0
		return MoveResult{Clock: c, Timeout: true, Winner: ActiveWhite, ElapsedMs: elapsed, LagCompMs: comp}, nil
	}

	c.ActiveColor = mover.Opposite()
	c.LastMoveAtMs = nowMs
	c.MoveCount++

	return MoveResult{Clock: c, ElapsedMs: elapsed, LagCompMs: comp}, nil
}

// Projection is the remaining time for both sides as of a given instant,
// assuming the running side has not yet moved.
type Projection struct {
	WhiteMs  int64
	BlackMs  int64
	TimedOut bool
	Flagged  Active
}

// Project computes the displayable remaining times without mutating the
// snapshot. Only the running side's time drains between moves; TimedOut
// is set when that side has reached zero.
func Project(c Clock, nowMs int64) Projection {
	p := Projection{WhiteMs: c.WhiteMs, BlackMs: c.BlackMs}
	if c.ActiveColor == ActiveNone {
		return p
	}

	elapsed := nowMs - c.LastMoveAtMs
	if elapsed < 0 {
		elapsed = 0
	}

	switch c.ActiveColor {
	case ActiveWhite:
		p.WhiteMs -= elapsed
		if p.WhiteMs <= 0 {
			p.WhiteMs = 0
			p.TimedOut = true
			p.Flagged = ActiveWhite
		}
	case ActiveBlack:
		p.BlackMs -= elapsed
		if p.BlackMs <= 0 {
			p.BlackMs = 0
			p.TimedOut = true
			p.Flagged = ActiveBlack
		}
	}

	return p
}
