package services

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"chess-server/internal/models"
	"chess-server/internal/store"
)

// Stats maintains per-user aggregates in the user_stats collection. The
// statsApplied latch on the game document makes the side effect
// exactly-once even when several terminators race.
type Stats struct {
	store  store.Store
	users  *mongo.Collection
	logger *zap.Logger
}

// NewStats creates the stats service. A nil users collection disables
// the counter writes, which tests use.
func NewStats(st store.Store, users *mongo.Collection, logger *zap.Logger) *Stats {
	return &Stats{store: st, users: users, logger: logger}
}

// Apply records a completed game in both players' aggregates. Aborted
// games are excluded. Failures are logged and swallowed; stats never
// break the game flow.
func (s *Stats) Apply(ctx context.Context, g *models.Game, result models.GameResult) {
	if result == models.ResultAborted {
		return
	}

	matched, err := s.store.ConditionalUpdate(ctx, g.GameID,
		store.Fields{"status": models.GameStatusCompleted, "statsApplied": false},
		store.Fields{"statsApplied": true})
	if err != nil {
		s.logger.Warn("stats latch failed", zap.String("gameId", g.GameID), zap.Error(err))
		return
	}
	if !matched {
		return
	}

	s.bump(ctx, g.WhitePlayerID, result == models.ResultWhite, result == models.ResultBlack, result == models.ResultDraw)
	s.bump(ctx, g.BlackPlayerID, result == models.ResultBlack, result == models.ResultWhite, result == models.ResultDraw)
}

func (s *Stats) bump(ctx context.Context, userID string, won, lost, drew bool) {
	if s.users == nil || userID == "" {
		return
	}

	inc := bson.M{"gamesPlayed": 1}
	switch {
	case won:
		inc["wins"] = 1
	case lost:
		inc["losses"] = 1
	case drew:
		inc["draws"] = 1
	}

	update := bson.M{
		"$inc":         inc,
		"$set":         bson.M{"updatedAt": time.Now()},
		"$setOnInsert": bson.M{"userId": userID},
	}

	_, err := s.users.UpdateOne(ctx, bson.M{"userId": userID}, update, options.Update().SetUpsert(true))
	if err != nil {
		s.logger.Warn("stats update failed", zap.String("userId", userID), zap.Error(err))
	}
}
