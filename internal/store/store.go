// Package store persists game documents and exposes the conditional
// update primitive that terminal transitions rely on for exactly-once
// semantics.
package store

import (
	"context"
	"errors"

	"chess-server/internal/models"
)

// ErrNotFound is returned when no game exists for the given identifier.
var ErrNotFound = errors.New("game not found")

// Fields maps dotted field paths to values, both for narrow patches
// ("queuedPremoves.white") and for equality predicates ("status").
type Fields map[string]interface{}

// Store is the durable game record.
//
// ConditionalUpdate applies patch only when the stored document matches
// every predicate field and reports whether a document matched. Every
// transition to a completed status must go through it with at least
// status=ongoing in the predicate; the caller that observes a match owns
// the termination side effects (game_over broadcast, stats).
//
// FieldPatch applies a narrow unconditional set of fields. It is the hot
// path write and must never rewrite the whole document.
type Store interface {
	Create(ctx context.Context, g *models.Game) error
	Load(ctx context.Context, gameID string) (*models.Game, error)
	ConditionalUpdate(ctx context.Context, gameID string, predicate, patch Fields) (bool, error)
	FieldPatch(ctx context.Context, gameID string, patch Fields) error

	// ActiveGames returns ongoing games that carry a live clock or a
	// pending disconnect deadline, for the timeout watcher scan.
	ActiveGames(ctx context.Context) ([]*models.Game, error)
}
