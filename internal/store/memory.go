package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"chess-server/internal/game"
	"chess-server/internal/models"
)

// MemoryStore is an in-process Store with the same conditional-update
// semantics as the Mongo implementation. Tests use it to exercise the
// coordinator and watcher without a database.
type MemoryStore struct {
	mu    sync.RWMutex
	games map[string]*models.Game
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{games: make(map[string]*models.Game)}
}

func copyGame(g *models.Game) *models.Game {
	cp := *g
	cp.History = append([]string(nil), g.History...)
	if g.Clock != nil {
		c := *g.Clock
		cp.Clock = &c
	}
	if g.QueuedPremoves.White != nil {
		pm := *g.QueuedPremoves.White
		cp.QueuedPremoves.White = &pm
	}
	if g.QueuedPremoves.Black != nil {
		pm := *g.QueuedPremoves.Black
		cp.QueuedPremoves.Black = &pm
	}
	if g.CompletedAt != nil {
		t := *g.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}

func (s *MemoryStore) Create(ctx context.Context, g *models.Game) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.games[g.GameID]; exists {
		return fmt.Errorf("game %s already exists", g.GameID)
	}
	now := time.Now()
	g.CreatedAt = now
	g.UpdatedAt = now
	s.games[g.GameID] = copyGame(g)
	return nil
}

func (s *MemoryStore) Load(ctx context.Context, gameID string) (*models.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.games[gameID]
	if !ok {
		return nil, ErrNotFound
	}
	return copyGame(g), nil
}

func (s *MemoryStore) ConditionalUpdate(ctx context.Context, gameID string, predicate, patch Fields) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.games[gameID]
	if !ok {
		return false, nil
	}
	match, err := matches(g, predicate)
	if err != nil {
		return false, err
	}
	if !match {
		return false, nil
	}
	if err := applyPatch(g, patch); err != nil {
		return false, err
	}
	return true, nil
}

func (s *MemoryStore) FieldPatch(ctx context.Context, gameID string, patch Fields) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.games[gameID]
	if !ok {
		return ErrNotFound
	}
	return applyPatch(g, patch)
}

func (s *MemoryStore) ActiveGames(ctx context.Context) ([]*models.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Game
	for _, g := range s.games {
		if g.Status != models.GameStatusOngoing {
			continue
		}
		if g.Clock == nil && g.DisconnectDeadlineMs == 0 {
			continue
		}
		out = append(out, copyGame(g))
	}
	return out, nil
}

func matches(g *models.Game, predicate Fields) (bool, error) {
	for path, want := range predicate {
		switch path {
		case "status":
			if g.Status != statusVal(want) {
				return false, nil
			}
		case "disconnectedPlayerId":
			if g.DisconnectedPlayerID != stringVal(want) {
				return false, nil
			}
		case "statsApplied":
			if g.StatsApplied != want.(bool) {
				return false, nil
			}
		case "pendingDrawOfferFrom":
			if g.PendingDrawOfferFrom != colorVal(want) {
				return false, nil
			}
		case "rematchOfferFrom":
			if g.RematchOfferFrom != colorVal(want) {
				return false, nil
			}
		default:
			return false, fmt.Errorf("unsupported predicate path %q", path)
		}
	}
	return true, nil
}

func applyPatch(g *models.Game, patch Fields) error {
	for path, v := range patch {
		if err := applyField(g, path, v); err != nil {
			return err
		}
	}
	g.UpdatedAt = time.Now()
	return nil
}

func applyField(g *models.Game, path string, v interface{}) error {
	switch path {
	case "status":
		g.Status = statusVal(v)
	case "result":
		g.Result = models.GameResult(stringVal(v))
	case "resultReason":
		g.ResultReason = models.ResultReason(stringVal(v))
	case "history":
		g.History = append([]string(nil), v.([]string)...)
	case "clock":
		if v == nil {
			g.Clock = nil
			break
		}
		c := *v.(*game.Clock)
		g.Clock = &c
	case "queuedPremoves":
		g.QueuedPremoves = v.(models.PremoveSlots)
	case "queuedPremoves.white":
		g.QueuedPremoves.White = premoveVal(v)
	case "queuedPremoves.black":
		g.QueuedPremoves.Black = premoveVal(v)
	case "disconnectedPlayerId":
		g.DisconnectedPlayerID = stringVal(v)
	case "disconnectDeadlineMs":
		g.DisconnectDeadlineMs = int64Val(v)
	case "statsApplied":
		g.StatsApplied = v.(bool)
	case "pendingDrawOfferFrom":
		g.PendingDrawOfferFrom = colorVal(v)
	case "whiteDrawOffers":
		g.WhiteDrawOffers = intVal(v)
	case "blackDrawOffers":
		g.BlackDrawOffers = intVal(v)
	case "rematchOfferFrom":
		g.RematchOfferFrom = colorVal(v)
	case "rematchDeclined":
		g.RematchDeclined = v.(bool)
	case "nextGameId":
		g.NextGameID = stringVal(v)
	case "completedAt":
		t := v.(time.Time)
		g.CompletedAt = &t
	default:
		return fmt.Errorf("unsupported field path %q", path)
	}
	return nil
}

func statusVal(v interface{}) models.GameStatus {
	switch t := v.(type) {
	case models.GameStatus:
		return t
	case string:
		return models.GameStatus(t)
	}
	return ""
}

func colorVal(v interface{}) game.Color {
	switch t := v.(type) {
	case game.Color:
		return t
	case string:
		return game.Color(t)
	}
	return ""
}

func stringVal(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case models.GameResult:
		return string(t)
	case models.ResultReason:
		return string(t)
	case game.Color:
		return string(t)
	}
	return ""
}

func int64Val(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	}
	return 0
}

func intVal(v interface{}) int {
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	}
	return 0
}

func premoveVal(v interface{}) *game.Premove {
	if v == nil {
		return nil
	}
	pm, ok := v.(*game.Premove)
	if !ok || pm == nil {
		return nil
	}
	cp := *pm
	return &cp
}
