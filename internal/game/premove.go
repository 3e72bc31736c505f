package game

import (
	"errors"
	"fmt"
	"sync"
)

// ErrInvalidPremove is returned when a premove fails shape validation.
// Legality against the live position is decided at execution time, not
// here.
var ErrInvalidPremove = errors.New("invalid premove")

// Premove is a speculative move queued by the player whose turn it is
// not. SourceMoveNo records the history length at set time so stale
// premoves can be traced in logs.
type Premove struct {
	From         string `bson:"from" json:"from"`
	To           string `bson:"to" json:"to"`
	Promotion    string `bson:"promotion,omitempty" json:"promotion,omitempty"`
	SetAtMs      int64  `bson:"setAtMs" json:"setAtMs"`
	SourceMoveNo int    `bson:"sourceMoveNo" json:"sourceMoveNo"`
	TraceID      string `bson:"traceId,omitempty" json:"traceId,omitempty"`
}

// UCI renders the premove as a UCI half-move string.
func (p *Premove) UCI() string {
	return p.From + p.To + p.Promotion
}

func validSquare(s string) bool {
	if len(s) != 2 {
		return false
	}
	return s[0] >= 'a' && s[0] <= 'h' && s[1] >= '1' && s[1] <= '8'
}

// ValidatePremove checks the shape of a premove: distinct valid squares
// and, when present, a promotion piece in {q, r, b, n}.
func ValidatePremove(from, to, promotion string) error {
	if !validSquare(from) {
		return fmt.Errorf("%w: bad from square %q", ErrInvalidPremove, from)
	}
	if !validSquare(to) {
		return fmt.Errorf("%w: bad to square %q", ErrInvalidPremove, to)
	}
	if from == to {
		return fmt.Errorf("%w: from and to are the same square", ErrInvalidPremove)
	}
	switch promotion {
	case "", "q", "r", "b", "n":
		return nil
	default:
		return fmt.Errorf("%w: bad promotion piece %q", ErrInvalidPremove, promotion)
	}
}

type premoveSlots struct {
	white *Premove
	black *Premove
}

// PremoveQueue holds at most one queued premove per color per game. It is
// the authoritative in-process copy; the store carries a shadow for
// rehydration after a restart or when another node first touches a game.
type PremoveQueue struct {
	mu    sync.RWMutex
	games map[string]*premoveSlots
}

func NewPremoveQueue() *PremoveQueue {
	return &PremoveQueue{games: make(map[string]*premoveSlots)}
}

// Set stores a premove for one color, overwriting any previous one.
func (q *PremoveQueue) Set(gameID string, color Color, pm *Premove) {
	q.mu.Lock()
	defer q.mu.Unlock()
	slots, ok := q.games[gameID]
	if !ok {
		slots = &premoveSlots{}
		q.games[gameID] = slots
	}
	if color == White {
		slots.white = pm
	} else {
		slots.black = pm
	}
}

// Get returns the queued premove for a color, or nil.
func (q *PremoveQueue) Get(gameID string, color Color) *Premove {
	q.mu.RLock()
	defer q.mu.RUnlock()
	slots, ok := q.games[gameID]
	if !ok {
		return nil
	}
	if color == White {
		return slots.white
	}
	return slots.black
}

// Clear empties one color's slot and returns what was there, nil if the
// slot was already empty.
func (q *PremoveQueue) Clear(gameID string, color Color) *Premove {
	q.mu.Lock()
	defer q.mu.Unlock()
	slots, ok := q.games[gameID]
	if !ok {
		return nil
	}
	var pm *Premove
	if color == White {
		pm, slots.white = slots.white, nil
	} else {
		pm, slots.black = slots.black, nil
	}
	if slots.white == nil && slots.black == nil {
		delete(q.games, gameID)
	}
	return pm
}

// ClearAll empties both slots for a game and drops its entry.
func (q *PremoveQueue) ClearAll(gameID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.games, gameID)
}

// Rehydrate restores slots from the durable shadow. In-memory premoves
// are authoritative, so only empty slots are filled.
func (q *PremoveQueue) Rehydrate(gameID string, white, black *Premove) {
	if white == nil && black == nil {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	slots, ok := q.games[gameID]
	if !ok {
		slots = &premoveSlots{}
		q.games[gameID] = slots
	}
	if slots.white == nil {
		slots.white = white
	}
	if slots.black == nil {
		slots.black = black
	}
}

// Len reports how many games currently hold at least one premove.
func (q *PremoveQueue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.games)
}
