package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// UserStats is the per-user aggregate kept in the user_stats collection.
// Counters are maintained with upserted increments when a game completes
// with a result other than aborted.
type UserStats struct {
	ID          primitive.ObjectID `json:"-" bson:"_id,omitempty"`
	UserID      string             `json:"userId" bson:"userId"`
	GamesPlayed int                `json:"gamesPlayed" bson:"gamesPlayed"`
	Wins        int                `json:"wins" bson:"wins"`
	Losses      int                `json:"losses" bson:"losses"`
	Draws       int                `json:"draws" bson:"draws"`
	UpdatedAt   time.Time          `json:"updatedAt" bson:"updatedAt"`
}
