// Package eventbus fans room broadcasts out to other nodes through a
// MongoDB change stream on the ws_events collection. Documents are
// transient; a TTL index reaps them after 60 seconds.
package eventbus

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// Event is the document stored in the ws_events collection.
type Event struct {
	ID              primitive.ObjectID `bson:"_id,omitempty"`
	OriginMachineID string             `bson:"originMachineId"`
	Room            string             `bson:"room"`
	Message         []byte             `bson:"message"`
	CreatedAt       time.Time          `bson:"createdAt"`
}

// DeliverFunc hands a remote event to the local room fabric.
type DeliverFunc func(room string, message []byte)

// EventBus publishes room broadcasts to MongoDB and watches for events
// originating on other machines via change streams. Publish never blocks:
// callers emit while holding a game lock, so the durable insert happens
// on a background loop.
type EventBus struct {
	machineID    string
	collection   *mongo.Collection
	deliverLocal DeliverFunc
	logger       *zap.Logger

	queue      chan Event
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	running    bool
	mu         sync.Mutex
}

func generateMachineID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// New creates an EventBus. If collection is nil, the EventBus runs in
// local-only mode (Publish is a no-op, no watcher runs).
func New(collection *mongo.Collection, deliverLocal DeliverFunc, logger *zap.Logger) *EventBus {
	return &EventBus{
		machineID:    generateMachineID(),
		collection:   collection,
		deliverLocal: deliverLocal,
		logger:       logger,
		queue:        make(chan Event, 1024),
	}
}

// MachineID returns this instance's unique identifier.
func (eb *EventBus) MachineID() string {
	return eb.machineID
}

// Start begins the change stream watcher and the publish loop.
func (eb *EventBus) Start() {
	if eb.collection == nil {
		eb.logger.Info("eventbus: no collection configured, running in local-only mode")
		return
	}

	eb.mu.Lock()
	defer eb.mu.Unlock()
	if eb.running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	eb.cancelFunc = cancel
	eb.running = true
	eb.wg.Add(2)

	go eb.watchLoop(ctx)
	go eb.publishLoop(ctx)
	eb.logger.Info("eventbus started", zap.String("machineId", eb.machineID))
}

// Stop cancels the background loops and waits for them to exit. Events
// still queued are dropped; they are transient by nature.
func (eb *EventBus) Stop() {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	if !eb.running {
		return
	}
	eb.running = false
	if eb.cancelFunc != nil {
		eb.cancelFunc()
	}
	eb.wg.Wait()
	eb.logger.Info("eventbus stopped")
}

// Publish enqueues a room broadcast for cross-node delivery. It returns
// immediately; on a full queue the event is dropped with a warning.
func (eb *EventBus) Publish(room string, message []byte) {
	if eb.collection == nil {
		return
	}

	ev := Event{
		OriginMachineID: eb.machineID,
		Room:            room,
		Message:         message,
		CreatedAt:       time.Now(),
	}

	select {
	case eb.queue <- ev:
	default:
		eb.logger.Warn("eventbus queue full, dropping event", zap.String("room", room))
	}
}

func (eb *EventBus) publishLoop(ctx context.Context) {
	defer eb.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-eb.queue:
			insertCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			_, err := eb.collection.InsertOne(insertCtx, ev)
			cancel()
			if err != nil {
				eb.logger.Error("eventbus publish failed",
					zap.String("room", ev.Room),
					zap.Error(err))
			}
		}
	}
}

// watchLoop runs the change stream in a reconnecting loop.
func (eb *EventBus) watchLoop(ctx context.Context) {
	defer eb.wg.Done()

	for {
		if ctx.Err() != nil {
			return
		}
		err := eb.watch(ctx)
		if ctx.Err() != nil {
			return // normal shutdown
		}
		eb.logger.Warn("eventbus change stream error, reconnecting in 2s", zap.Error(err))
		time.Sleep(2 * time.Second)
	}
}

func (eb *EventBus) watch(ctx context.Context) error {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{
			{Key: "operationType", Value: "insert"},
		}}},
	}
	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)

	cs, err := eb.collection.Watch(ctx, pipeline, opts)
	if err != nil {
		return err
	}
	defer cs.Close(ctx)

	for cs.Next(ctx) {
		var changeDoc struct {
			FullDocument Event `bson:"fullDocument"`
		}
		if err := cs.Decode(&changeDoc); err != nil {
			eb.logger.Warn("eventbus failed to decode change event", zap.Error(err))
			continue
		}

		ev := changeDoc.FullDocument

		// Skip events from this machine (already delivered locally)
		if ev.OriginMachineID == eb.machineID {
			continue
		}

		if eb.deliverLocal != nil {
			eb.deliverLocal(ev.Room, ev.Message)
		}
	}

	return cs.Err()
}
