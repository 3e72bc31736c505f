package audit

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Event types for the game audit trail
const (
	EventGameCreated     = "game_created"
	EventGameCompleted   = "game_completed"
	EventRematchCreated  = "rematch_created"
	EventDisconnectArmed = "disconnect_armed"
	EventPersistFailed   = "persist_failed"
)

// Entry is a lifecycle record kept in the game_audit collection. A TTL
// index reaps entries after 90 days.
type Entry struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	EventType string             `bson:"eventType"`
	GameID    string             `bson:"gameId"`
	ActorID   string             `bson:"actorId,omitempty"`
	Details   bson.M             `bson:"details,omitempty"`
	CreatedAt time.Time          `bson:"createdAt"`
}

// Logger writes audit entries. A nil collection disables writes, which
// tests rely on.
type Logger struct {
	coll *mongo.Collection
	log  *zap.Logger
}

func NewLogger(coll *mongo.Collection, log *zap.Logger) *Logger {
	return &Logger{coll: coll, log: log}
}

// Record writes an audit entry (fire-and-forget).
func (l *Logger) Record(eventType, gameID, actorID string, details bson.M) {
	if l == nil || l.coll == nil {
		return
	}

	entry := Entry{
		EventType: eventType,
		GameID:    gameID,
		ActorID:   actorID,
		Details:   details,
		CreatedAt: time.Now(),
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := l.coll.InsertOne(ctx, entry); err != nil {
			l.log.Warn("audit write failed",
				zap.String("eventType", eventType),
				zap.String("gameId", gameID),
				zap.Error(err))
		}
	}()
}
