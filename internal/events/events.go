// Package events defines the event names and payload shapes shared by
// the websocket layer and the game services.
package events

import (
	"chess-server/internal/game"
	"chess-server/internal/models"
)

// Client-to-server events.
const (
	EventJoinGame      = "join_game"
	EventLeaveGame     = "leave_game"
	EventMakeMove      = "make_move"
	EventSetPremove    = "set_premove"
	EventCancelPremove = "cancel_premove"
	EventResignGame    = "resign_game"
	EventOfferDraw     = "offer_draw"
	EventAcceptDraw    = "accept_draw"
	EventRejectDraw    = "reject_draw"
	EventCancelGame    = "cancel_game"
	EventOfferRematch  = "offer_rematch"
	EventAcceptRematch = "accept_rematch"
	EventRejectRematch = "reject_rematch"
)

// Server-to-client events.
const (
	EventGameState            = "game_state"
	EventMoveMade             = "move_made"
	EventClockUpdate          = "clock_update"
	EventPremoveSet           = "premove_set"
	EventPremoveCleared       = "premove_cleared"
	EventPremoveRejected      = "premove_rejected"
	EventGameOver             = "game_over"
	EventDrawOffered          = "draw_offered"
	EventDrawRejected         = "draw_rejected"
	EventRematchOffered       = "rematch_offered"
	EventRematchAccepted      = "rematch_accepted"
	EventRematchRejected      = "rematch_rejected"
	EventOpponentJoined       = "opponent_joined"
	EventOpponentDisconnected = "opponent_disconnected"
	EventOpponentReconnected  = "opponent_reconnected"
	EventError                = "error"
	EventOnlineCount          = "online_count"
)

// ClearReason says why a premove slot was emptied.
type ClearReason string

const (
	ClearCancelled ClearReason = "cancelled"
	ClearExecuted  ClearReason = "executed"
	ClearRejected  ClearReason = "rejected"
	ClearGameOver  ClearReason = "game_over"
)

// GameRoom names the room all sockets watching a game join.
func GameRoom(gameID string) string {
	return "game:" + gameID
}

// UserRoom names the room every connection of one user joins.
func UserRoom(userID string) string {
	return "user:" + userID
}

// Inbound payloads.

type JoinGame struct {
	GameID  string `json:"gameId"`
	TraceID string `json:"traceId,omitempty"`
}

type MakeMove struct {
	GameID string `json:"gameId"`
	// Move is a UCI half-move such as "e2e4" or "e7e8q".
	Move            string `json:"move"`
	ClientTimestamp int64  `json:"clientTimestamp,omitempty"`
	TraceID         string `json:"traceId,omitempty"`
}

type PremoveRequest struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"`
}

type SetPremove struct {
	GameID  string         `json:"gameId"`
	Premove PremoveRequest `json:"premove"`
	TraceID string         `json:"traceId,omitempty"`
}

type GameRef struct {
	GameID string `json:"gameId"`
}

// Outbound payloads.

type GameState struct {
	Game *models.Game `json:"game"`
	// FEN of the current position, derived from history.
	FEN string `json:"fen"`
}

type MoveMade struct {
	GameID  string     `json:"gameId"`
	Move    string     `json:"move"`
	By      game.Color `json:"by"`
	MoveNo  int        `json:"moveNo"`
	FEN     string     `json:"fen"`
	Premove bool       `json:"premove,omitempty"`
	TraceID string     `json:"traceId,omitempty"`
}

type ClockUpdate struct {
	GameID      string      `json:"gameId"`
	WhiteMs     int64       `json:"whiteMs"`
	BlackMs     int64       `json:"blackMs"`
	ActiveColor game.Active `json:"activeColor"`
	MoveCount   int         `json:"moveCount"`
}

type PremoveSet struct {
	GameID  string       `json:"gameId"`
	By      game.Color   `json:"by"`
	Premove game.Premove `json:"premove"`
}

type PremoveCleared struct {
	GameID string      `json:"gameId"`
	By     game.Color  `json:"by"`
	Reason ClearReason `json:"reason"`
}

type PremoveRejected struct {
	GameID  string       `json:"gameId"`
	Premove game.Premove `json:"premove"`
	Message string       `json:"message"`
}

type GameOver struct {
	GameID   string              `json:"gameId"`
	Result   models.GameResult   `json:"result"`
	Reason   models.ResultReason `json:"reason"`
	WinnerID string              `json:"winnerId,omitempty"`
}

type DrawOffered struct {
	GameID string     `json:"gameId"`
	By     game.Color `json:"by"`
}

type DrawRejected struct {
	GameID string     `json:"gameId"`
	By     game.Color `json:"by"`
}

type RematchOffered struct {
	GameID string     `json:"gameId"`
	By     game.Color `json:"by"`
}

type RematchAccepted struct {
	GameID    string `json:"gameId"`
	NewGameID string `json:"newGameId"`
}

type RematchRejected struct {
	GameID string     `json:"gameId"`
	By     game.Color `json:"by"`
}

type OpponentJoined struct {
	GameID string `json:"gameId"`
	UserID string `json:"userId"`
}

type OpponentDisconnected struct {
	GameID string `json:"gameId"`
	UserID string `json:"userId"`
	// ReconnectDeadlineAt is epoch milliseconds.
	ReconnectDeadlineAt int64 `json:"reconnectDeadlineAt"`
}

type OpponentReconnected struct {
	GameID string `json:"gameId"`
	UserID string `json:"userId"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

type OnlineCount struct {
	Count int `json:"count"`
}
