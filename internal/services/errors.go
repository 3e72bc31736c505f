package services

import "errors"

// Validation and domain rejection errors surfaced to the offending
// connection. Rule-level errors (illegal move, invalid premove shape)
// come from the game package and pass through unchanged.
var (
	ErrGameNotFound     = errors.New("game not found")
	ErrNotAPlayer       = errors.New("not a player in this game")
	ErrGameCompleted    = errors.New("game is already completed")
	ErrGameNotCompleted = errors.New("game is still in progress")
	ErrNotYourTurn      = errors.New("not your turn")
	ErrPremoveOnTurn    = errors.New("cannot set a premove on your own turn")
	ErrDrawOfferPending = errors.New("a draw offer is already pending")
	ErrDrawOfferLimit   = errors.New("draw offer limit reached")
	ErrNoDrawOffer      = errors.New("no pending draw offer")
	ErrOwnDrawOffer     = errors.New("cannot respond to your own draw offer")
	ErrCancelWindow     = errors.New("game can no longer be cancelled")
	ErrRematchBlocked   = errors.New("rematch is not available")
)
