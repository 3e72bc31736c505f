package db

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

type MongoDB struct {
	Client   *mongo.Client
	Database *mongo.Database
	logger   *zap.Logger
}

func NewMongoDB(uri, database string, logger *zap.Logger) (*MongoDB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(500).
		SetMinPoolSize(10).
		SetMaxConnIdleTime(5 * time.Minute)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// Ping the database to verify connection
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	db := &MongoDB{
		Client:   client,
		Database: client.Database(database),
		logger:   logger,
	}

	// Create indexes in the background (non-blocking)
	go db.ensureIndexes()

	return db, nil
}

// ensureIndexes creates all required indexes. Called once on startup.
func (m *MongoDB) ensureIndexes() {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	indexes := []struct {
		collection string
		models     []mongo.IndexModel
	}{
		{
			"games",
			[]mongo.IndexModel{
				{Keys: bson.D{{Key: "gameId", Value: 1}}, Options: options.Index().SetUnique(true)},
				// Watcher scan: ongoing games, most recently touched first.
				{Keys: bson.D{{Key: "status", Value: 1}, {Key: "updatedAt", Value: -1}}},
				{Keys: bson.D{{Key: "whitePlayerId", Value: 1}, {Key: "completedAt", Value: -1}}},
				{Keys: bson.D{{Key: "blackPlayerId", Value: 1}, {Key: "completedAt", Value: -1}}},
			},
		},
		{
			"user_stats",
			[]mongo.IndexModel{
				{Keys: bson.D{{Key: "userId", Value: 1}}, Options: options.Index().SetUnique(true)},
			},
		},
		{
			"ws_events",
			[]mongo.IndexModel{
				{Keys: bson.D{{Key: "createdAt", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(60)},
			},
		},
		{
			"presence",
			[]mongo.IndexModel{
				{Keys: bson.D{{Key: "machineId", Value: 1}}, Options: options.Index().SetUnique(true)},
				{Keys: bson.D{{Key: "updatedAt", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(60)},
			},
		},
		{
			"game_audit",
			[]mongo.IndexModel{
				{Keys: bson.D{{Key: "createdAt", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(90 * 24 * 3600)}, // 90-day retention
				{Keys: bson.D{{Key: "gameId", Value: 1}, {Key: "createdAt", Value: -1}}},
			},
		},
	}

	for _, idx := range indexes {
		coll := m.Database.Collection(idx.collection)
		_, err := coll.Indexes().CreateMany(ctx, idx.models)
		if err != nil {
			m.logger.Warn("failed to create indexes",
				zap.String("collection", idx.collection),
				zap.Error(err))
		}
	}

	m.logger.Info("database indexes ensured")
}

func (m *MongoDB) Close(ctx context.Context) error {
	return m.Client.Disconnect(ctx)
}

func (m *MongoDB) Games() *mongo.Collection {
	return m.Database.Collection("games")
}

func (m *MongoDB) UserStats() *mongo.Collection {
	return m.Database.Collection("user_stats")
}

func (m *MongoDB) WSEvents() *mongo.Collection {
	return m.Database.Collection("ws_events")
}

func (m *MongoDB) Presence() *mongo.Collection {
	return m.Database.Collection("presence")
}

func (m *MongoDB) GameAudit() *mongo.Collection {
	return m.Database.Collection("game_audit")
}
