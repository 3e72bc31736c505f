package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"chess-server/internal/models"
)

// MongoStore persists games in the games collection, one document per
// game keyed by gameId.
type MongoStore struct {
	games *mongo.Collection
}

func NewMongoStore(games *mongo.Collection) *MongoStore {
	return &MongoStore{games: games}
}

func (s *MongoStore) Create(ctx context.Context, g *models.Game) error {
	now := time.Now()
	g.CreatedAt = now
	g.UpdatedAt = now
	if _, err := s.games.InsertOne(ctx, g); err != nil {
		return fmt.Errorf("insert game %s: %w", g.GameID, err)
	}
	return nil
}

func (s *MongoStore) Load(ctx context.Context, gameID string) (*models.Game, error) {
	var g models.Game
	err := s.games.FindOne(ctx, bson.M{"gameId": gameID}).Decode(&g)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load game %s: %w", gameID, err)
	}
	return &g, nil
}

// ConditionalUpdate folds the predicate into the filter so the match and
// the write are a single atomic operation. MatchedCount reports whether
// the predicate held at write time, which is the latch.
func (s *MongoStore) ConditionalUpdate(ctx context.Context, gameID string, predicate, patch Fields) (bool, error) {
	filter := bson.M{"gameId": gameID}
	for k, v := range predicate {
		filter[k] = v
	}

	set := bson.M{"updatedAt": time.Now()}
	for k, v := range patch {
		set[k] = v
	}

	res, err := s.games.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return false, fmt.Errorf("conditional update game %s: %w", gameID, err)
	}
	return res.MatchedCount > 0, nil
}

func (s *MongoStore) FieldPatch(ctx context.Context, gameID string, patch Fields) error {
	set := bson.M{"updatedAt": time.Now()}
	for k, v := range patch {
		set[k] = v
	}

	res, err := s.games.UpdateOne(ctx, bson.M{"gameId": gameID}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("patch game %s: %w", gameID, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) ActiveGames(ctx context.Context) ([]*models.Game, error) {
	filter := bson.M{
		"status": models.GameStatusOngoing,
		"$or": []bson.M{
			{"clock": bson.M{"$ne": nil}},
			{"disconnectDeadlineMs": bson.M{"$gt": 0}},
		},
	}

	cursor, err := s.games.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("scan active games: %w", err)
	}
	defer cursor.Close(ctx)

	var games []*models.Game
	if err := cursor.All(ctx, &games); err != nil {
		return nil, fmt.Errorf("decode active games: %w", err)
	}
	return games, nil
}
