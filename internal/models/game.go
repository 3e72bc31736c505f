package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"chess-server/internal/game"
)

type GameStatus string

const (
	GameStatusOngoing   GameStatus = "ongoing"
	GameStatusCompleted GameStatus = "completed"
)

type GameResult string

const (
	ResultWhite   GameResult = "white"
	ResultBlack   GameResult = "black"
	ResultDraw    GameResult = "draw"
	ResultAborted GameResult = "aborted"
)

// ResultForWinner maps the winning color to the stored result value.
func ResultForWinner(c game.Color) GameResult {
	if c == game.White {
		return ResultWhite
	}
	return ResultBlack
}

type ResultReason string

const (
	ReasonCheckmate         ResultReason = "checkmate"
	ReasonStalemate         ResultReason = "stalemate"
	ReasonDraw              ResultReason = "draw"
	ReasonTimeout           ResultReason = "timeout"
	ReasonResignation       ResultReason = "resignation"
	ReasonDisconnectTimeout ResultReason = "disconnect_timeout"
	ReasonDrawAgreed        ResultReason = "draw_agreed"
	ReasonFirstMoveTimeout  ResultReason = "cancelled_due_to_first_move_timeout"
)

// PremoveSlots is the durable shadow of the in-process premove queue,
// one slot per color.
type PremoveSlots struct {
	White *game.Premove `json:"white,omitempty" bson:"white,omitempty"`
	Black *game.Premove `json:"black,omitempty" bson:"black,omitempty"`
}

func (s PremoveSlots) Empty() bool {
	return s.White == nil && s.Black == nil
}

type Game struct {
	ID     primitive.ObjectID `json:"-" bson:"_id,omitempty"`
	GameID string             `json:"gameId" bson:"gameId"`

	WhitePlayerID string `json:"whitePlayerId" bson:"whitePlayerId"`
	BlackPlayerID string `json:"blackPlayerId" bson:"blackPlayerId"`

	// History holds UCI half-moves; the position is recomputed by replay.
	History []string `json:"history" bson:"history"`

	Status       GameStatus   `json:"status" bson:"status"`
	Result       GameResult   `json:"result,omitempty" bson:"result,omitempty"`
	ResultReason ResultReason `json:"resultReason,omitempty" bson:"resultReason,omitempty"`

	TimeControl game.TimeControl `json:"timeControl" bson:"timeControl"`
	Clock       *game.Clock      `json:"clock,omitempty" bson:"clock,omitempty"`

	QueuedPremoves PremoveSlots `json:"queuedPremoves,omitempty" bson:"queuedPremoves,omitempty"`

	// Both disconnect markers are set and cleared together.
	DisconnectedPlayerID string `json:"disconnectedPlayerId,omitempty" bson:"disconnectedPlayerId,omitempty"`
	DisconnectDeadlineMs int64  `json:"disconnectDeadlineMs,omitempty" bson:"disconnectDeadlineMs,omitempty"`

	// StatsApplied gates the exactly-once stats side effect.
	StatsApplied bool `json:"statsApplied" bson:"statsApplied"`

	PendingDrawOfferFrom game.Color `json:"pendingDrawOfferFrom,omitempty" bson:"pendingDrawOfferFrom,omitempty"`
	WhiteDrawOffers      int        `json:"whiteDrawOffers" bson:"whiteDrawOffers"`
	BlackDrawOffers      int        `json:"blackDrawOffers" bson:"blackDrawOffers"`

	RematchOfferFrom game.Color `json:"rematchOfferFrom,omitempty" bson:"rematchOfferFrom,omitempty"`
	RematchDeclined  bool       `json:"rematchDeclined,omitempty" bson:"rematchDeclined,omitempty"`
	NextGameID       string     `json:"nextGameId,omitempty" bson:"nextGameId,omitempty"`

	CreatedAt   time.Time  `json:"createdAt" bson:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt" bson:"updatedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty" bson:"completedAt,omitempty"`
}

// ColorOf returns the color a user plays in this game, or false when the
// user is not a player.
func (g *Game) ColorOf(userID string) (game.Color, bool) {
	switch userID {
	case g.WhitePlayerID:
		return game.White, true
	case g.BlackPlayerID:
		return game.Black, true
	default:
		return "", false
	}
}

// PlayerID returns the user identifier playing the given color.
func (g *Game) PlayerID(c game.Color) string {
	if c == game.White {
		return g.WhitePlayerID
	}
	return g.BlackPlayerID
}

func (g *Game) IsPlayer(userID string) bool {
	_, ok := g.ColorOf(userID)
	return ok
}

// Premove returns the durable premove slot for a color.
func (g *Game) Premove(c game.Color) *game.Premove {
	if c == game.White {
		return g.QueuedPremoves.White
	}
	return g.QueuedPremoves.Black
}

// DrawOffers returns the offer counter for a color.
func (g *Game) DrawOffers(c game.Color) int {
	if c == game.White {
		return g.WhiteDrawOffers
	}
	return g.BlackDrawOffers
}
