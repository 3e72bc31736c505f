package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"chess-server/internal/auth"
	"chess-server/internal/events"
	"chess-server/internal/game"
	"chess-server/internal/services"
)

const dispatchTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for now
	},
}

// Handler upgrades connections, authenticates them, and routes inbound
// envelopes to the coordinator.
type Handler struct {
	hub      *Hub
	coord    *services.Coordinator
	verifier *auth.Verifier
	logger   *zap.Logger
}

func NewHandler(hub *Hub, coord *services.Coordinator, verifier *auth.Verifier, logger *zap.Logger) *Handler {
	return &Handler{hub: hub, coord: coord, verifier: verifier, logger: logger}
}

// authenticate resolves the connection's user identity: a signed token
// in the query or Authorization header, or the legacy userId query
// parameter.
func (h *Handler) authenticate(r *http.Request) (string, error) {
	token := r.URL.Query().Get("token")
	if token == "" {
		if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
			token = strings.TrimPrefix(header, "Bearer ")
		}
	}
	if token != "" {
		return h.verifier.Verify(token)
	}

	if legacy := r.URL.Query().Get("userId"); legacy != "" {
		return legacy, nil
	}
	return "", auth.ErrInvalidToken
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, err := h.authenticate(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		hub:    h.hub,
		conn:   conn,
		userID: userID,
		connID: uuid.NewString(),
		send:   make(chan []byte, sendQueueSize),
		rooms:  make(map[string]bool),
		logger: h.logger,
	}

	h.hub.register(client)
	h.hub.Join(client, events.UserRoom(userID))

	go client.writePump()
	client.readPump(h.dispatch)

	// The socket is gone; arm disconnect markers for games where this
	// was the user's last connection.
	gameIDs := h.hub.unregister(client)
	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()
	for _, gameID := range gameIDs {
		h.coord.HandleDisconnect(ctx, userID, gameID)
	}
}

// dispatch routes one inbound envelope. Malformed payloads are answered
// with an error event and never reach the coordinator.
func (h *Handler) dispatch(c *Client, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.SendEvent(events.EventError, events.ErrorPayload{Message: "invalid payload"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()

	switch env.Event {
	case events.EventJoinGame:
		var p events.JoinGame
		if !h.decode(c, env, &p) || !h.requireGame(c, env, p.GameID) {
			return
		}
		state, clock, err := h.coord.JoinGame(ctx, c.userID, p.GameID)
		if err != nil {
			h.fail(c, env, err)
			return
		}
		h.hub.Join(c, events.GameRoom(p.GameID))
		c.SendEvent(events.EventGameState, state)
		if clock != nil {
			c.SendEvent(events.EventClockUpdate, clock)
		}
		c.sendAck(env.AckID, AckResult{OK: true})

	case events.EventLeaveGame:
		var p events.GameRef
		if !h.decode(c, env, &p) || !h.requireGame(c, env, p.GameID) {
			return
		}
		h.hub.Leave(c, events.GameRoom(p.GameID))
		h.coord.HandleDisconnect(ctx, c.userID, p.GameID)
		c.sendAck(env.AckID, AckResult{OK: true})

	case events.EventMakeMove:
		var p events.MakeMove
		if !h.decode(c, env, &p) || !h.requireGame(c, env, p.GameID) {
			return
		}
		if p.Move == "" {
			h.fail(c, env, game.ErrIllegalMove)
			return
		}
		h.reply(c, env, h.coord.MakeMove(ctx, c.userID, p))

	case events.EventSetPremove:
		var p events.SetPremove
		if !h.decode(c, env, &p) || !h.requireGame(c, env, p.GameID) {
			return
		}
		if err := h.coord.SetPremove(ctx, c.userID, p); err != nil {
			// Premove failures use a dedicated event so clients can
			// clear the pending arrow.
			c.SendEvent(events.EventPremoveRejected, events.PremoveRejected{
				GameID: p.GameID,
				Premove: game.Premove{
					From:      p.Premove.From,
					To:        p.Premove.To,
					Promotion: p.Premove.Promotion,
				},
				Message: err.Error(),
			})
			c.sendAck(env.AckID, AckResult{OK: false, Error: err.Error()})
			h.logUnexpected(env.Event, err)
			return
		}
		c.sendAck(env.AckID, AckResult{OK: true})

	case events.EventCancelPremove:
		var p events.GameRef
		if !h.decode(c, env, &p) || !h.requireGame(c, env, p.GameID) {
			return
		}
		h.reply(c, env, h.coord.CancelPremove(ctx, c.userID, p.GameID))

	case events.EventResignGame:
		var p events.GameRef
		if !h.decode(c, env, &p) || !h.requireGame(c, env, p.GameID) {
			return
		}
		h.reply(c, env, h.coord.Resign(ctx, c.userID, p.GameID))

	case events.EventOfferDraw:
		var p events.GameRef
		if !h.decode(c, env, &p) || !h.requireGame(c, env, p.GameID) {
			return
		}
		h.reply(c, env, h.coord.OfferDraw(ctx, c.userID, p.GameID))

	case events.EventAcceptDraw:
		var p events.GameRef
		if !h.decode(c, env, &p) || !h.requireGame(c, env, p.GameID) {
			return
		}
		h.reply(c, env, h.coord.AcceptDraw(ctx, c.userID, p.GameID))

	case events.EventRejectDraw:
		var p events.GameRef
		if !h.decode(c, env, &p) || !h.requireGame(c, env, p.GameID) {
			return
		}
		h.reply(c, env, h.coord.RejectDraw(ctx, c.userID, p.GameID))

	case events.EventCancelGame:
		var p events.GameRef
		if !h.decode(c, env, &p) || !h.requireGame(c, env, p.GameID) {
			return
		}
		h.reply(c, env, h.coord.CancelGame(ctx, c.userID, p.GameID))

	case events.EventOfferRematch:
		var p events.GameRef
		if !h.decode(c, env, &p) || !h.requireGame(c, env, p.GameID) {
			return
		}
		h.reply(c, env, h.coord.OfferRematch(ctx, c.userID, p.GameID))

	case events.EventAcceptRematch:
		var p events.GameRef
		if !h.decode(c, env, &p) || !h.requireGame(c, env, p.GameID) {
			return
		}
		newGameID, err := h.coord.AcceptRematch(ctx, c.userID, p.GameID)
		if err != nil {
			h.fail(c, env, err)
			return
		}
		c.sendAck(env.AckID, AckResult{OK: true, Data: events.RematchAccepted{
			GameID:    p.GameID,
			NewGameID: newGameID,
		}})

	case events.EventRejectRematch:
		var p events.GameRef
		if !h.decode(c, env, &p) || !h.requireGame(c, env, p.GameID) {
			return
		}
		h.reply(c, env, h.coord.RejectRematch(ctx, c.userID, p.GameID))

	default:
		c.SendEvent(events.EventError, events.ErrorPayload{Message: "unknown event: " + env.Event})
	}
}

func (h *Handler) decode(c *Client, env Envelope, into interface{}) bool {
	if len(env.Data) == 0 {
		h.rejectPayload(c, env, "missing payload")
		return false
	}
	if err := json.Unmarshal(env.Data, into); err != nil {
		h.rejectPayload(c, env, "invalid payload")
		return false
	}
	return true
}

func (h *Handler) requireGame(c *Client, env Envelope, gameID string) bool {
	if gameID == "" {
		h.rejectPayload(c, env, "missing gameId")
		return false
	}
	return true
}

// rejectPayload answers a schema-invalid envelope. Validation mistakes
// belong to the client and are never logged as system errors.
func (h *Handler) rejectPayload(c *Client, env Envelope, msg string) {
	c.SendEvent(events.EventError, events.ErrorPayload{Message: msg})
	c.sendAck(env.AckID, AckResult{OK: false, Error: msg})
}

func (h *Handler) reply(c *Client, env Envelope, err error) {
	if err != nil {
		h.fail(c, env, err)
		return
	}
	c.sendAck(env.AckID, AckResult{OK: true})
}

// fail surfaces an operation error to the offending connection. Client
// mistakes keep their message; unexpected failures are logged and
// masked.
func (h *Handler) fail(c *Client, env Envelope, err error) {
	msg := err.Error()
	if !isClientError(err) {
		h.logUnexpected(env.Event, err)
		msg = "server error"
	}
	c.SendEvent(events.EventError, events.ErrorPayload{Message: msg})
	c.sendAck(env.AckID, AckResult{OK: false, Error: msg})
}

func (h *Handler) logUnexpected(event string, err error) {
	if isClientError(err) {
		return
	}
	h.logger.Error("operation failed", zap.String("event", event), zap.Error(err))
}

func isClientError(err error) bool {
	for _, candidate := range []error{
		services.ErrGameNotFound,
		services.ErrNotAPlayer,
		services.ErrGameCompleted,
		services.ErrGameNotCompleted,
		services.ErrNotYourTurn,
		services.ErrPremoveOnTurn,
		services.ErrDrawOfferPending,
		services.ErrDrawOfferLimit,
		services.ErrNoDrawOffer,
		services.ErrOwnDrawOffer,
		services.ErrCancelWindow,
		services.ErrRematchBlocked,
		game.ErrIllegalMove,
		game.ErrInvalidPremove,
		game.ErrWrongTurn,
	} {
		if errors.Is(err, candidate) {
			return true
		}
	}
	return false
}
