package services

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"chess-server/internal/events"
)

const presenceInterval = 10 * time.Second

type presenceDoc struct {
	MachineID   string    `bson:"machineId"`
	Connections int       `bson:"connections"`
	UpdatedAt   time.Time `bson:"updatedAt"`
}

// Presence maintains one liveness document per node and periodically
// broadcasts the cluster-wide online count. Stale documents fall out via
// the TTL index, so a crashed node stops counting within a minute.
type Presence struct {
	coll       *mongo.Collection
	fabric     Fabric
	localCount func() int
	machineID  string
	logger     *zap.Logger
	interval   time.Duration
	stopCh     chan struct{}
	doneCh     chan struct{}
}

// NewPresence creates the registry. A nil collection keeps the count
// node-local.
func NewPresence(coll *mongo.Collection, fabric Fabric, localCount func() int, machineID string, logger *zap.Logger) *Presence {
	return &Presence{
		coll:       coll,
		fabric:     fabric,
		localCount: localCount,
		machineID:  machineID,
		logger:     logger,
		interval:   presenceInterval,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

func (p *Presence) Start() {
	go p.run()
	p.logger.Info("presence registry started", zap.String("machineId", p.machineID))
}

func (p *Presence) Stop() {
	close(p.stopCh)
	<-p.doneCh
}

func (p *Presence) run() {
	defer close(p.doneCh)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.tick()
		}
	}
}

func (p *Presence) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	count := p.localCount()

	if p.coll != nil {
		_, err := p.coll.UpdateOne(ctx,
			bson.M{"machineId": p.machineID},
			bson.M{"$set": bson.M{"connections": count, "updatedAt": time.Now()}},
			options.Update().SetUpsert(true))
		if err != nil {
			p.logger.Warn("presence upsert failed", zap.Error(err))
		}

		if total, err := p.globalCount(ctx); err == nil {
			count = total
		} else {
			p.logger.Warn("presence count failed", zap.Error(err))
		}
	}

	p.fabric.EmitAll(events.EventOnlineCount, events.OnlineCount{Count: count})
}

func (p *Presence) globalCount(ctx context.Context) (int, error) {
	cursor, err := p.coll.Find(ctx, bson.M{})
	if err != nil {
		return 0, err
	}
	defer cursor.Close(ctx)

	var docs []presenceDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return 0, err
	}

	total := 0
	for _, d := range docs {
		total += d.Connections
	}
	return total, nil
}
