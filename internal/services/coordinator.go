package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"chess-server/internal/audit"
	"chess-server/internal/events"
	"chess-server/internal/game"
	"chess-server/internal/metrics"
	"chess-server/internal/models"
	"chess-server/internal/store"
)

// DisconnectGraceMs is how long a fully disconnected player has to come
// back before forfeiting.
const DisconnectGraceMs int64 = 20 * 1000

// MaxDrawOffersPerPlayer caps how many times one player may offer a draw
// in a single game.
const MaxDrawOffersPerPlayer = 2

// Coordinator serializes all mutations of a game behind a per-game lock
// and drives the validate, clock, broadcast, persist, premove pipeline.
// Broadcasts happen before durable writes; terminal transitions go
// through the store's conditional update so that exactly one terminator
// wins regardless of how many race.
type Coordinator struct {
	store  store.Store
	queue  *game.PremoveQueue
	locks  *game.LockMap
	fabric Fabric
	stats  *Stats
	audit  *audit.Logger
	logger *zap.Logger
	now    func() time.Time
}

func NewCoordinator(st store.Store, fabric Fabric, stats *Stats, auditLog *audit.Logger, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		store:  st,
		queue:  game.NewPremoveQueue(),
		locks:  game.NewLockMap(),
		fabric: fabric,
		stats:  stats,
		audit:  auditLog,
		logger: logger,
		now:    time.Now,
	}
}

func (c *Coordinator) nowMs() int64 {
	return c.now().UnixMilli()
}

// CreateGame inserts a new ongoing game with a primed clock and the
// first-move deadline armed.
func (c *Coordinator) CreateGame(ctx context.Context, whiteID, blackID, timeControl string) (*models.Game, error) {
	tc := game.GetTimeControl(timeControl)
	g := &models.Game{
		GameID:        uuid.NewString(),
		WhitePlayerID: whiteID,
		BlackPlayerID: blackID,
		History:       []string{},
		Status:        models.GameStatusOngoing,
		TimeControl:   tc,
		Clock:         game.NewClock(tc, c.nowMs()),
	}

	if err := c.store.Create(ctx, g); err != nil {
		return nil, err
	}

	c.audit.Record(audit.EventGameCreated, g.GameID, "", bson.M{
		"whitePlayerId": whiteID,
		"blackPlayerId": blackID,
		"timeControl":   tc.Label,
	})
	return g, nil
}

// LoadGame fetches a game for read-only use.
func (c *Coordinator) LoadGame(ctx context.Context, gameID string) (*models.Game, error) {
	g, err := c.store.Load(ctx, gameID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrGameNotFound
	}
	return g, err
}

// JoinGame validates the caller, clears a pending disconnect marker if
// the caller is the one it names, rehydrates premoves, and returns the
// state payloads for the joining socket. The caller must be a player;
// spectating is not supported.
func (c *Coordinator) JoinGame(ctx context.Context, userID, gameID string) (*events.GameState, *events.ClockUpdate, error) {
	g, err := c.LoadGame(ctx, gameID)
	if err != nil {
		return nil, nil, err
	}
	if !g.IsPlayer(userID) {
		return nil, nil, ErrNotAPlayer
	}

	room := events.GameRoom(gameID)

	// Reconnect latch: races the timeout watcher harmlessly, whichever
	// conditional update matches first is honored.
	if g.Status == models.GameStatusOngoing && g.DisconnectedPlayerID == userID {
		matched, err := c.store.ConditionalUpdate(ctx, gameID,
			store.Fields{"status": models.GameStatusOngoing, "disconnectedPlayerId": userID},
			store.Fields{"disconnectedPlayerId": "", "disconnectDeadlineMs": int64(0)})
		if err != nil {
			c.logger.Error("reconnect clear failed", zap.String("gameId", gameID), zap.Error(err))
		} else if matched {
			g.DisconnectedPlayerID = ""
			g.DisconnectDeadlineMs = 0
			c.fabric.Emit(room, events.EventOpponentReconnected, events.OpponentReconnected{
				GameID: gameID,
				UserID: userID,
			})
		}
	}

	// First connection of this user announces them to the room. Emitted
	// before the socket joins, so the joiner does not receive it.
	if g.Status == models.GameStatusOngoing && c.fabric.CountUser(room, userID) == 0 {
		c.fabric.Emit(room, events.EventOpponentJoined, events.OpponentJoined{
			GameID: gameID,
			UserID: userID,
		})
	}

	// The in-memory queue is authoritative; rehydration only fills slots
	// that are empty, after a restart or on first touch by this node.
	if g.Status == models.GameStatusOngoing && !g.QueuedPremoves.Empty() {
		c.queue.Rehydrate(gameID, g.QueuedPremoves.White, g.QueuedPremoves.Black)
	}

	pos, err := game.PositionFromHistory(g.History)
	if err != nil {
		c.logger.Error("history replay failed", zap.String("gameId", gameID), zap.Error(err))
		return nil, nil, fmt.Errorf("game %s: %w", gameID, err)
	}

	state := &events.GameState{Game: g, FEN: pos.FEN()}

	var clockUpd *events.ClockUpdate
	if g.Clock != nil {
		proj := game.Project(*g.Clock, c.nowMs())
		clockUpd = &events.ClockUpdate{
			GameID:      gameID,
			WhiteMs:     proj.WhiteMs,
			BlackMs:     proj.BlackMs,
			ActiveColor: g.Clock.ActiveColor,
			MoveCount:   g.Clock.MoveCount,
		}
	}

	return state, clockUpd, nil
}

// MakeMove runs the hot-path pipeline: validate, clock, commit to
// memory, broadcast, persist, then attempt the opponent's premove. The
// whole pipeline holds the game lock so no other operation interleaves
// between the commit and the premove attempt.
func (c *Coordinator) MakeMove(ctx context.Context, userID string, in events.MakeMove) error {
	unlock := c.locks.Lock(in.GameID)
	defer unlock()

	g, err := c.LoadGame(ctx, in.GameID)
	if err != nil {
		return err
	}
	if g.Status != models.GameStatusOngoing {
		return ErrGameCompleted
	}
	color, ok := g.ColorOf(userID)
	if !ok {
		return ErrNotAPlayer
	}
	if g.Clock == nil {
		return fmt.Errorf("game %s has no clock", in.GameID)
	}

	pos, err := game.PositionFromHistory(g.History)
	if err != nil {
		c.logger.Error("history replay failed", zap.String("gameId", in.GameID), zap.Error(err))
		return fmt.Errorf("game %s: %w", in.GameID, err)
	}
	if pos.Turn() != color {
		return ErrNotYourTurn
	}
	if err := pos.TryMove(in.Move); err != nil {
		return err
	}

	room := events.GameRoom(in.GameID)
	patch := store.Fields{}

	// An explicit move overrides the mover's own queued premove.
	if pm := c.queue.Clear(in.GameID, color); pm != nil {
		patch["queuedPremoves."+string(color)] = (*game.Premove)(nil)
		c.fabric.Emit(room, events.EventPremoveCleared, events.PremoveCleared{
			GameID: in.GameID,
			By:     color,
			Reason: events.ClearCancelled,
		})
	}

	res, err := game.ApplyMove(*g.Clock, color.Active(), in.ClientTimestamp, c.nowMs())
	if err != nil {
		return ErrNotYourTurn
	}
	if res.Timeout {
		// The mover flagged; the move does not commit.
		_, err := c.finalize(ctx, g, termination{
			result: models.ResultForWinner(res.Winner.Color()),
			reason: models.ReasonTimeout,
			clock:  terminalClock(&res.Clock),
		})
		return err
	}

	g.History = append(g.History, in.Move)
	g.Clock = &res.Clock
	moveNo := len(g.History)

	c.fabric.Emit(room, events.EventMoveMade, events.MoveMade{
		GameID:  in.GameID,
		Move:    in.Move,
		By:      color,
		MoveNo:  moveNo,
		FEN:     pos.FEN(),
		TraceID: in.TraceID,
	})
	c.emitClock(room, in.GameID, g.Clock)
	metrics.MovesCommitted.WithLabelValues("normal").Inc()

	if outcome := pos.Outcome(); outcome.Kind != game.OutcomeOngoing {
		result, reason := verdict(outcome)
		_, err := c.finalize(ctx, g, termination{
			result:  result,
			reason:  reason,
			clock:   terminalClock(g.Clock),
			history: g.History,
		})
		return err
	}

	patch["history"] = g.History
	patch["clock"] = g.Clock
	c.persist(ctx, g, userID, patch)

	c.tryExecutePremove(ctx, g, pos)
	return nil
}

// tryExecutePremove attempts the queued premove of the side now to move.
// Runs with the game lock held, immediately after a normal move commits.
// A premove never triggers another premove.
func (c *Coordinator) tryExecutePremove(ctx context.Context, g *models.Game, pos *game.Position) {
	color := pos.Turn()
	pm := c.queue.Get(g.GameID, color)
	if pm == nil {
		return
	}

	start := time.Now()
	c.logger.Debug("turn_flipped",
		zap.String("gameId", g.GameID),
		zap.String("color", string(color)),
		zap.String("traceId", pm.TraceID))

	room := events.GameRoom(g.GameID)
	slot := "queuedPremoves." + string(color)
	uci := pm.UCI()

	if err := pos.TryMove(uci); err != nil {
		c.queue.Clear(g.GameID, color)
		c.fabric.Emit(events.UserRoom(g.PlayerID(color)), events.EventPremoveRejected, events.PremoveRejected{
			GameID:  g.GameID,
			Premove: *pm,
			Message: "premove is not legal in the current position",
		})
		c.fabric.Emit(room, events.EventPremoveCleared, events.PremoveCleared{
			GameID: g.GameID,
			By:     color,
			Reason: events.ClearRejected,
		})
		c.persist(ctx, g, g.PlayerID(color), store.Fields{slot: (*game.Premove)(nil)})
		return
	}

	res, err := game.ApplyMove(*g.Clock, color.Active(), 0, c.nowMs())
	if err != nil {
		c.logger.Error("premove clock apply failed", zap.String("gameId", g.GameID), zap.Error(err))
		c.queue.Clear(g.GameID, color)
		return
	}

	c.queue.Clear(g.GameID, color)

	if res.Timeout {
		// The premover's flag fell before their premove could execute.
		c.fabric.Emit(room, events.EventPremoveCleared, events.PremoveCleared{
			GameID: g.GameID,
			By:     color,
			Reason: events.ClearGameOver,
		})
		if _, err := c.finalize(ctx, g, termination{
			result: models.ResultForWinner(res.Winner.Color()),
			reason: models.ReasonTimeout,
			clock:  terminalClock(&res.Clock),
		}); err != nil {
			c.logger.Error("premove flag termination failed", zap.String("gameId", g.GameID), zap.Error(err))
		}
		return
	}

	g.History = append(g.History, uci)
	g.Clock = &res.Clock
	moveNo := len(g.History)

	c.fabric.Emit(room, events.EventMoveMade, events.MoveMade{
		GameID:  g.GameID,
		Move:    uci,
		By:      color,
		MoveNo:  moveNo,
		FEN:     pos.FEN(),
		Premove: true,
		TraceID: pm.TraceID,
	})
	c.emitClock(room, g.GameID, g.Clock)
	c.fabric.Emit(room, events.EventPremoveCleared, events.PremoveCleared{
		GameID: g.GameID,
		By:     color,
		Reason: events.ClearExecuted,
	})

	metrics.PremoveExecution.Observe(time.Since(start).Seconds())
	metrics.MovesCommitted.WithLabelValues("premove").Inc()

	if outcome := pos.Outcome(); outcome.Kind != game.OutcomeOngoing {
		result, reason := verdict(outcome)
		if _, err := c.finalize(ctx, g, termination{
			result:  result,
			reason:  reason,
			clock:   terminalClock(g.Clock),
			history: g.History,
		}); err != nil {
			c.logger.Error("premove termination failed", zap.String("gameId", g.GameID), zap.Error(err))
		}
		return
	}

	c.persist(ctx, g, g.PlayerID(color), store.Fields{
		"history": g.History,
		"clock":   g.Clock,
		slot:      (*game.Premove)(nil),
	})
}

// SetPremove queues a speculative move for the caller. Shape only; the
// move's legality is decided when it executes on turn flip.
func (c *Coordinator) SetPremove(ctx context.Context, userID string, in events.SetPremove) error {
	unlock := c.locks.Lock(in.GameID)
	defer unlock()

	g, err := c.LoadGame(ctx, in.GameID)
	if err != nil {
		return err
	}
	if g.Status != models.GameStatusOngoing {
		return ErrGameCompleted
	}
	color, ok := g.ColorOf(userID)
	if !ok {
		return ErrNotAPlayer
	}
	if err := game.ValidatePremove(in.Premove.From, in.Premove.To, in.Premove.Promotion); err != nil {
		return err
	}

	// History alternates strictly, so parity gives the side to move.
	toMove := game.White
	if len(g.History)%2 == 1 {
		toMove = game.Black
	}
	if toMove == color {
		return ErrPremoveOnTurn
	}

	pm := &game.Premove{
		From:         in.Premove.From,
		To:           in.Premove.To,
		Promotion:    in.Premove.Promotion,
		SetAtMs:      c.nowMs(),
		SourceMoveNo: len(g.History),
		TraceID:      in.TraceID,
	}
	c.queue.Set(in.GameID, color, pm)

	room := events.GameRoom(in.GameID)
	c.fabric.Emit(room, events.EventPremoveSet, events.PremoveSet{
		GameID:  in.GameID,
		By:      color,
		Premove: *pm,
	})

	c.persist(ctx, g, userID, store.Fields{"queuedPremoves." + string(color): pm})
	return nil
}

// CancelPremove empties the caller's slot. A no-op when nothing is
// queued.
func (c *Coordinator) CancelPremove(ctx context.Context, userID, gameID string) error {
	unlock := c.locks.Lock(gameID)
	defer unlock()

	g, err := c.LoadGame(ctx, gameID)
	if err != nil {
		return err
	}
	color, ok := g.ColorOf(userID)
	if !ok {
		return ErrNotAPlayer
	}

	if pm := c.queue.Clear(gameID, color); pm == nil && g.Premove(color) == nil {
		return nil
	}

	c.fabric.Emit(events.GameRoom(gameID), events.EventPremoveCleared, events.PremoveCleared{
		GameID: gameID,
		By:     color,
		Reason: events.ClearCancelled,
	})
	c.persist(ctx, g, userID, store.Fields{"queuedPremoves." + string(color): (*game.Premove)(nil)})
	return nil
}

// Resign terminates the game in the opponent's favor.
func (c *Coordinator) Resign(ctx context.Context, userID, gameID string) error {
	unlock := c.locks.Lock(gameID)
	defer unlock()

	g, err := c.LoadGame(ctx, gameID)
	if err != nil {
		return err
	}
	if g.Status != models.GameStatusOngoing {
		return ErrGameCompleted
	}
	color, ok := g.ColorOf(userID)
	if !ok {
		return ErrNotAPlayer
	}

	_, err = c.finalize(ctx, g, termination{
		result: models.ResultForWinner(color.Opposite()),
		reason: models.ReasonResignation,
		clock:  c.projectedTerminalClock(g),
	})
	return err
}

// OfferDraw registers a draw offer, capped per player.
func (c *Coordinator) OfferDraw(ctx context.Context, userID, gameID string) error {
	unlock := c.locks.Lock(gameID)
	defer unlock()

	g, err := c.LoadGame(ctx, gameID)
	if err != nil {
		return err
	}
	if g.Status != models.GameStatusOngoing {
		return ErrGameCompleted
	}
	color, ok := g.ColorOf(userID)
	if !ok {
		return ErrNotAPlayer
	}
	if g.PendingDrawOfferFrom != "" {
		return ErrDrawOfferPending
	}
	if g.DrawOffers(color) >= MaxDrawOffersPerPlayer {
		return ErrDrawOfferLimit
	}

	counterField := "whiteDrawOffers"
	if color == game.Black {
		counterField = "blackDrawOffers"
	}
	c.persist(ctx, g, userID, store.Fields{
		"pendingDrawOfferFrom": color,
		counterField:           g.DrawOffers(color) + 1,
	})

	c.fabric.Emit(events.GameRoom(gameID), events.EventDrawOffered, events.DrawOffered{
		GameID: gameID,
		By:     color,
	})
	return nil
}

// AcceptDraw terminates the game as agreed draw. Only the side that did
// not offer may accept.
func (c *Coordinator) AcceptDraw(ctx context.Context, userID, gameID string) error {
	unlock := c.locks.Lock(gameID)
	defer unlock()

	g, err := c.LoadGame(ctx, gameID)
	if err != nil {
		return err
	}
	if g.Status != models.GameStatusOngoing {
		return ErrGameCompleted
	}
	color, ok := g.ColorOf(userID)
	if !ok {
		return ErrNotAPlayer
	}
	if g.PendingDrawOfferFrom == "" {
		return ErrNoDrawOffer
	}
	if g.PendingDrawOfferFrom == color {
		return ErrOwnDrawOffer
	}

	_, err = c.finalize(ctx, g, termination{
		result:    models.ResultDraw,
		reason:    models.ReasonDrawAgreed,
		clock:     c.projectedTerminalClock(g),
		predicate: store.Fields{"pendingDrawOfferFrom": g.PendingDrawOfferFrom},
	})
	return err
}

// RejectDraw clears the pending offer.
func (c *Coordinator) RejectDraw(ctx context.Context, userID, gameID string) error {
	unlock := c.locks.Lock(gameID)
	defer unlock()

	g, err := c.LoadGame(ctx, gameID)
	if err != nil {
		return err
	}
	if g.Status != models.GameStatusOngoing {
		return ErrGameCompleted
	}
	color, ok := g.ColorOf(userID)
	if !ok {
		return ErrNotAPlayer
	}
	if g.PendingDrawOfferFrom == "" {
		return ErrNoDrawOffer
	}
	if g.PendingDrawOfferFrom == color {
		return ErrOwnDrawOffer
	}

	c.persist(ctx, g, userID, store.Fields{"pendingDrawOfferFrom": game.Color("")})
	c.fabric.Emit(events.GameRoom(gameID), events.EventDrawRejected, events.DrawRejected{
		GameID: gameID,
		By:     color,
	})
	return nil
}

// CancelGame aborts a game that has effectively not started. Allowed
// only while fewer than two half-moves have been played.
func (c *Coordinator) CancelGame(ctx context.Context, userID, gameID string) error {
	unlock := c.locks.Lock(gameID)
	defer unlock()

	g, err := c.LoadGame(ctx, gameID)
	if err != nil {
		return err
	}
	if g.Status != models.GameStatusOngoing {
		return ErrGameCompleted
	}
	if !g.IsPlayer(userID) {
		return ErrNotAPlayer
	}
	if len(g.History) >= 2 {
		return ErrCancelWindow
	}

	_, err = c.finalize(ctx, g, termination{
		result: models.ResultAborted,
		reason: models.ReasonFirstMoveTimeout,
		clock:  c.projectedTerminalClock(g),
	})
	return err
}

// OfferRematch registers a rematch offer on a completed game.
func (c *Coordinator) OfferRematch(ctx context.Context, userID, gameID string) error {
	unlock := c.locks.Lock(gameID)
	defer unlock()

	g, err := c.LoadGame(ctx, gameID)
	if err != nil {
		return err
	}
	if g.Status != models.GameStatusCompleted {
		return ErrGameNotCompleted
	}
	color, ok := g.ColorOf(userID)
	if !ok {
		return ErrNotAPlayer
	}
	if g.RematchDeclined || g.NextGameID != "" || g.RematchOfferFrom != "" {
		return ErrRematchBlocked
	}

	c.persist(ctx, g, userID, store.Fields{"rematchOfferFrom": color})
	c.fabric.Emit(events.GameRoom(gameID), events.EventRematchOffered, events.RematchOffered{
		GameID: gameID,
		By:     color,
	})
	return nil
}

// AcceptRematch creates the follow-up game with colors swapped and links
// it from the old game. The conditional update on the old game
// guarantees a single follow-up even when both players accept at once.
func (c *Coordinator) AcceptRematch(ctx context.Context, userID, gameID string) (string, error) {
	unlock := c.locks.Lock(gameID)
	defer unlock()

	g, err := c.LoadGame(ctx, gameID)
	if err != nil {
		return "", err
	}
	if g.Status != models.GameStatusCompleted {
		return "", ErrGameNotCompleted
	}
	color, ok := g.ColorOf(userID)
	if !ok {
		return "", ErrNotAPlayer
	}
	if g.RematchDeclined || g.NextGameID != "" || g.RematchOfferFrom == "" {
		return "", ErrRematchBlocked
	}
	if g.RematchOfferFrom == color {
		return "", ErrRematchBlocked
	}

	newID := uuid.NewString()
	matched, err := c.store.ConditionalUpdate(ctx, gameID,
		store.Fields{"status": models.GameStatusCompleted, "rematchOfferFrom": g.RematchOfferFrom},
		store.Fields{"nextGameId": newID, "rematchOfferFrom": game.Color("")})
	if err != nil {
		return "", err
	}
	if !matched {
		return "", ErrRematchBlocked
	}

	tc := g.TimeControl
	next := &models.Game{
		GameID:        newID,
		WhitePlayerID: g.BlackPlayerID,
		BlackPlayerID: g.WhitePlayerID,
		History:       []string{},
		Status:        models.GameStatusOngoing,
		TimeControl:   tc,
		Clock:         game.NewClock(tc, c.nowMs()),
	}
	if err := c.store.Create(ctx, next); err != nil {
		c.logger.Error("rematch game create failed",
			zap.String("gameId", gameID),
			zap.String("newGameId", newID),
			zap.Error(err))
		return "", err
	}

	c.audit.Record(audit.EventRematchCreated, newID, userID, bson.M{"previousGameId": gameID})
	c.fabric.Emit(events.GameRoom(gameID), events.EventRematchAccepted, events.RematchAccepted{
		GameID:    gameID,
		NewGameID: newID,
	})
	return newID, nil
}

// RejectRematch declines the pending offer for good.
func (c *Coordinator) RejectRematch(ctx context.Context, userID, gameID string) error {
	unlock := c.locks.Lock(gameID)
	defer unlock()

	g, err := c.LoadGame(ctx, gameID)
	if err != nil {
		return err
	}
	if g.Status != models.GameStatusCompleted {
		return ErrGameNotCompleted
	}
	color, ok := g.ColorOf(userID)
	if !ok {
		return ErrNotAPlayer
	}
	if g.RematchOfferFrom == "" || g.RematchOfferFrom == color {
		return ErrRematchBlocked
	}

	c.persist(ctx, g, userID, store.Fields{
		"rematchDeclined":  true,
		"rematchOfferFrom": game.Color(""),
	})
	c.fabric.Emit(events.GameRoom(gameID), events.EventRematchRejected, events.RematchRejected{
		GameID: gameID,
		By:     color,
	})
	return nil
}

// HandleDisconnect arms the disconnect marker when a player's last
// connection left the game room. The session layer calls this after the
// socket is gone.
func (c *Coordinator) HandleDisconnect(ctx context.Context, userID, gameID string) {
	room := events.GameRoom(gameID)
	if c.fabric.CountUser(room, userID) > 0 {
		return
	}

	unlock := c.locks.Lock(gameID)
	defer unlock()

	g, err := c.LoadGame(ctx, gameID)
	if err != nil {
		return
	}
	if g.Status != models.GameStatusOngoing || !g.IsPlayer(userID) {
		return
	}
	// At most one pending disconnect; the first one stands.
	if g.DisconnectedPlayerID != "" {
		return
	}

	deadline := c.nowMs() + DisconnectGraceMs
	matched, err := c.store.ConditionalUpdate(ctx, gameID,
		store.Fields{"status": models.GameStatusOngoing},
		store.Fields{"disconnectedPlayerId": userID, "disconnectDeadlineMs": deadline})
	if err != nil {
		c.logger.Error("disconnect marker failed", zap.String("gameId", gameID), zap.Error(err))
		return
	}
	if !matched {
		return
	}

	c.audit.Record(audit.EventDisconnectArmed, gameID, userID, bson.M{"deadlineMs": deadline})
	c.fabric.Emit(room, events.EventOpponentDisconnected, events.OpponentDisconnected{
		GameID:              gameID,
		UserID:              userID,
		ReconnectDeadlineAt: deadline,
	})
}

// ResolveDisconnectDeadline decides an expired disconnect deadline: a
// user with a live connection in the room gets the marker cleared, an
// absent one forfeits.
func (c *Coordinator) ResolveDisconnectDeadline(ctx context.Context, gameID string) error {
	unlock := c.locks.Lock(gameID)
	defer unlock()

	g, err := c.LoadGame(ctx, gameID)
	if err != nil {
		return err
	}
	if g.Status != models.GameStatusOngoing || g.DisconnectedPlayerID == "" {
		return nil
	}
	if g.DisconnectDeadlineMs > c.nowMs() {
		return nil
	}

	room := events.GameRoom(gameID)
	disc := g.DisconnectedPlayerID

	if c.fabric.CountUser(room, disc) > 0 {
		matched, err := c.store.ConditionalUpdate(ctx, gameID,
			store.Fields{"status": models.GameStatusOngoing, "disconnectedPlayerId": disc},
			store.Fields{"disconnectedPlayerId": "", "disconnectDeadlineMs": int64(0)})
		if err != nil {
			return err
		}
		if matched {
			c.fabric.Emit(room, events.EventOpponentReconnected, events.OpponentReconnected{
				GameID: gameID,
				UserID: disc,
			})
		}
		return nil
	}

	discColor, ok := g.ColorOf(disc)
	if !ok {
		return nil
	}

	_, err = c.finalize(ctx, g, termination{
		result:    models.ResultForWinner(discColor.Opposite()),
		reason:    models.ReasonDisconnectTimeout,
		clock:     c.projectedTerminalClock(g),
		predicate: store.Fields{"disconnectedPlayerId": disc},
	})
	return err
}

// TerminateFirstMoveTimeout aborts a game whose first move never came.
func (c *Coordinator) TerminateFirstMoveTimeout(ctx context.Context, gameID string) error {
	unlock := c.locks.Lock(gameID)
	defer unlock()

	g, err := c.LoadGame(ctx, gameID)
	if err != nil {
		return err
	}
	if g.Status != models.GameStatusOngoing || g.Clock == nil {
		return nil
	}
	if g.Clock.FirstMoveDeadlineMs == 0 || c.nowMs() <= g.Clock.FirstMoveDeadlineMs {
		return nil
	}

	_, err = c.finalize(ctx, g, termination{
		result: models.ResultAborted,
		reason: models.ReasonFirstMoveTimeout,
		clock:  c.projectedTerminalClock(g),
	})
	return err
}

// TerminateFlagFall ends a game whose active side ran out of time
// between moves.
func (c *Coordinator) TerminateFlagFall(ctx context.Context, gameID string) error {
	unlock := c.locks.Lock(gameID)
	defer unlock()

	g, err := c.LoadGame(ctx, gameID)
	if err != nil {
		return err
	}
	if g.Status != models.GameStatusOngoing || g.Clock == nil {
		return nil
	}

	proj := game.Project(*g.Clock, c.nowMs())
	if !proj.TimedOut {
		return nil
	}

	final := *g.Clock
	final.WhiteMs = proj.WhiteMs
	final.BlackMs = proj.BlackMs
	winner := proj.Flagged.Opposite().Color()

	_, err = c.finalize(ctx, g, termination{
		result: models.ResultForWinner(winner),
		reason: models.ReasonTimeout,
		clock:  terminalClock(&final),
	})
	return err
}

// termination describes one terminal transition. predicate adds extra
// equality conditions to the status=ongoing latch; clock and history,
// when set, persist with it.
type termination struct {
	result    models.GameResult
	reason    models.ResultReason
	clock     *game.Clock
	history   []string
	predicate store.Fields
}

// finalize is the single path to status=completed. The conditional
// update is the exactly-once latch: only the caller whose update matched
// emits game_over and applies stats.
func (c *Coordinator) finalize(ctx context.Context, g *models.Game, t termination) (bool, error) {
	predicate := store.Fields{"status": models.GameStatusOngoing}
	for k, v := range t.predicate {
		predicate[k] = v
	}

	patch := store.Fields{
		"status":               models.GameStatusCompleted,
		"result":               t.result,
		"resultReason":         t.reason,
		"completedAt":          c.now(),
		"queuedPremoves":       models.PremoveSlots{},
		"pendingDrawOfferFrom": game.Color(""),
		"disconnectedPlayerId": "",
		"disconnectDeadlineMs": int64(0),
	}
	if t.clock != nil {
		patch["clock"] = t.clock
	}
	if t.history != nil {
		patch["history"] = t.history
	}

	matched, err := c.store.ConditionalUpdate(ctx, g.GameID, predicate, patch)
	if err != nil {
		return false, err
	}
	if !matched {
		return false, nil
	}

	c.queue.ClearAll(g.GameID)

	payload := events.GameOver{GameID: g.GameID, Result: t.result, Reason: t.reason}
	switch t.result {
	case models.ResultWhite:
		payload.WinnerID = g.WhitePlayerID
	case models.ResultBlack:
		payload.WinnerID = g.BlackPlayerID
	}
	c.fabric.Emit(events.GameRoom(g.GameID), events.EventGameOver, payload)

	metrics.GamesCompleted.WithLabelValues(string(t.reason)).Inc()
	c.audit.Record(audit.EventGameCompleted, g.GameID, "", bson.M{
		"result": string(t.result),
		"reason": string(t.reason),
	})
	c.stats.Apply(ctx, g, t.result)

	c.logger.Info("game completed",
		zap.String("gameId", g.GameID),
		zap.String("result", string(t.result)),
		zap.String("reason", string(t.reason)))
	return true, nil
}

// persist applies a narrow field patch after the matching broadcast went
// out. Failures never roll back in-memory state; the mover gets a
// best-effort notification.
func (c *Coordinator) persist(ctx context.Context, g *models.Game, userID string, patch store.Fields) {
	if len(patch) == 0 {
		return
	}
	if err := c.store.FieldPatch(ctx, g.GameID, patch); err != nil {
		metrics.PersistFailures.Inc()
		c.logger.Error("game persist failed",
			zap.String("gameId", g.GameID),
			zap.Error(err))
		c.audit.Record(audit.EventPersistFailed, g.GameID, userID, nil)
		if userID != "" {
			c.fabric.Emit(events.UserRoom(userID), events.EventError, events.ErrorPayload{
				Message: "sync error",
			})
		}
	}
}

func (c *Coordinator) emitClock(room, gameID string, clock *game.Clock) {
	c.fabric.Emit(room, events.EventClockUpdate, events.ClockUpdate{
		GameID:      gameID,
		WhiteMs:     clock.WhiteMs,
		BlackMs:     clock.BlackMs,
		ActiveColor: clock.ActiveColor,
		MoveCount:   clock.MoveCount,
	})
}

// projectedTerminalClock freezes the remaining time as of now and stops
// the clock.
func (c *Coordinator) projectedTerminalClock(g *models.Game) *game.Clock {
	if g.Clock == nil {
		return nil
	}
	proj := game.Project(*g.Clock, c.nowMs())
	final := *g.Clock
	final.WhiteMs = proj.WhiteMs
	final.BlackMs = proj.BlackMs
	return terminalClock(&final)
}

func terminalClock(clock *game.Clock) *game.Clock {
	cp := *clock
	cp.ActiveColor = game.ActiveNone
	cp.FirstMoveDeadlineMs = 0
	return &cp
}

// verdict maps a rules outcome to the stored result and reason.
func verdict(o game.Outcome) (models.GameResult, models.ResultReason) {
	switch o.Kind {
	case game.OutcomeCheckmate:
		return models.ResultForWinner(o.Winner), models.ReasonCheckmate
	case game.OutcomeStalemate:
		return models.ResultDraw, models.ReasonStalemate
	default:
		return models.ResultDraw, models.ReasonDraw
	}
}
