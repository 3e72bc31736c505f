package game

import (
	"errors"
	"fmt"

	"github.com/notnil/chess"
)

// ErrIllegalMove is returned when a move cannot be played in the current
// position.
var ErrIllegalMove = errors.New("illegal move")

// Position wraps the rules library behind the narrow surface the rest of
// the server needs: replay a history, try a move, classify the outcome.
type Position struct {
	g *chess.Game
}

// PositionFromHistory rebuilds the position by replaying UCI half-moves
// from the start position. A history that fails to replay is a fatal
// inconsistency in the stored game.
func PositionFromHistory(history []string) (*Position, error) {
	g := chess.NewGame()
	for i, uci := range history {
		mv, err := chess.UCINotation{}.Decode(g.Position(), uci)
		if err != nil {
			return nil, fmt.Errorf("replay half-move %d %q: %w", i+1, uci, err)
		}
		if err := g.Move(mv); err != nil {
			return nil, fmt.Errorf("replay half-move %d %q: %w", i+1, uci, err)
		}
	}
	return &Position{g: g}, nil
}

// Turn returns the side to move.
func (p *Position) Turn() Color {
	if p.g.Position().Turn() == chess.White {
		return White
	}
	return Black
}

// FEN returns the current position in FEN notation.
func (p *Position) FEN() string {
	return p.g.FEN()
}

// TryMove plays one UCI half-move, advancing the position. It fails with
// ErrIllegalMove when the move does not parse or is not legal here.
func (p *Position) TryMove(uci string) error {
	mv, err := chess.UCINotation{}.Decode(p.g.Position(), uci)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrIllegalMove, uci)
	}
	if err := p.g.Move(mv); err != nil {
		return fmt.Errorf("%w: %s", ErrIllegalMove, uci)
	}
	return nil
}

// OutcomeKind classifies a position's terminal state.
type OutcomeKind int

const (
	OutcomeOngoing OutcomeKind = iota
	OutcomeCheckmate
	OutcomeStalemate
	OutcomeDraw
)

// Outcome is the rules-level verdict for a position. Winner is set only
// for OutcomeCheckmate.
type Outcome struct {
	Kind   OutcomeKind
	Winner Color
}

// Outcome classifies the current position. Draws the library declares on
// its own (insufficient material, seventy-five moves, fivefold
// repetition) map to OutcomeDraw; claimed draws are not modeled.
func (p *Position) Outcome() Outcome {
	switch p.g.Outcome() {
	case chess.WhiteWon:
		return Outcome{Kind: OutcomeCheckmate, Winner: White}
	case chess.BlackWon:
		return Outcome{Kind: OutcomeCheckmate, Winner: Black}
	case chess.Draw:
		if p.g.Method() == chess.Stalemate {
			return Outcome{Kind: OutcomeStalemate}
		}
		return Outcome{Kind: OutcomeDraw}
	default:
		return Outcome{Kind: OutcomeOngoing}
	}
}
