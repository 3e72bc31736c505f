// Command backfill_stats recomputes the user_stats collection from the
// full history of completed games. The runtime only ever applies a game's
// stats once, guarded by the statsApplied flag; this script repairs stats
// after a crash between completion and application, or after a manual
// edit, by resetting the counters and replaying every completed game.
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"chess-server/internal/config"
	"chess-server/internal/db"
	"chess-server/internal/models"

	"github.com/joho/godotenv"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

type tally struct {
	wins   int
	losses int
	draws  int
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(config.GetEnv())
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	mongodb, err := db.NewMongoDB(cfg.MongoDB.URI, cfg.MongoDB.Database, logger)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		mongodb.Close(ctx)
	}()

	ctx := context.Background()

	// Replay every completed game into per-user tallies. Aborted games
	// carry no stats.
	cursor, err := mongodb.Games().Find(ctx, bson.M{"status": models.GameStatusCompleted})
	if err != nil {
		log.Fatalf("Failed to query completed games: %v", err)
	}
	defer cursor.Close(ctx)

	tallies := make(map[string]*tally)
	bump := func(userID string) *tally {
		t, ok := tallies[userID]
		if !ok {
			t = &tally{}
			tallies[userID] = t
		}
		return t
	}

	var scanned, counted int
	for cursor.Next(ctx) {
		var g models.Game
		if err := cursor.Decode(&g); err != nil {
			log.Fatalf("Failed to decode game: %v", err)
		}
		scanned++

		switch g.Result {
		case models.ResultWhite:
			bump(g.WhitePlayerID).wins++
			bump(g.BlackPlayerID).losses++
		case models.ResultBlack:
			bump(g.BlackPlayerID).wins++
			bump(g.WhitePlayerID).losses++
		case models.ResultDraw:
			bump(g.WhitePlayerID).draws++
			bump(g.BlackPlayerID).draws++
		default:
			continue // aborted
		}
		counted++
	}
	if err := cursor.Err(); err != nil {
		log.Fatalf("Cursor error: %v", err)
	}

	// Reset and rewrite the stats collection.
	deleted, err := mongodb.UserStats().DeleteMany(ctx, bson.M{})
	if err != nil {
		log.Fatalf("Failed to reset user_stats: %v", err)
	}
	fmt.Printf("Cleared %d existing stats documents\n", deleted.DeletedCount)

	now := time.Now()
	for userID, t := range tallies {
		update := bson.M{
			"$inc": bson.M{
				"gamesPlayed": t.wins + t.losses + t.draws,
				"wins":        t.wins,
				"losses":      t.losses,
				"draws":       t.draws,
			},
			"$set":         bson.M{"updatedAt": now},
			"$setOnInsert": bson.M{"userId": userID},
		}
		_, err := mongodb.UserStats().UpdateOne(ctx,
			bson.M{"userId": userID}, update, options.Update().SetUpsert(true))
		if err != nil {
			log.Fatalf("Failed to upsert stats for %s: %v", userID, err)
		}
	}

	// Every completed game is now accounted for.
	marked, err := mongodb.Games().UpdateMany(ctx,
		bson.M{"status": models.GameStatusCompleted, "statsApplied": false},
		bson.M{"$set": bson.M{"statsApplied": true, "updatedAt": now}})
	if err != nil {
		log.Fatalf("Failed to mark games as applied: %v", err)
	}

	fmt.Printf("Replayed %d of %d completed games into %d user stats documents\n",
		counted, scanned, len(tallies))
	fmt.Printf("Marked %d games as statsApplied\n", marked.ModifiedCount)
}
