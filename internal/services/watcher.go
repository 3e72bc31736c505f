package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"chess-server/internal/game"
	"chess-server/internal/metrics"
	"chess-server/internal/models"
	"chess-server/internal/store"
)

// WatcherInterval is the scan tick. Deadlines resolve within one tick of
// expiring.
const WatcherInterval = 100 * time.Millisecond

// Watcher drives time-based terminations: expired disconnect deadlines,
// first-move timeouts, and flag falls. Watchers on several nodes may
// scan the same games concurrently; the conditional-update latch makes
// that safe, so no scan lock is taken.
type Watcher struct {
	store    store.Store
	coord    *Coordinator
	logger   *zap.Logger
	interval time.Duration
	now      func() time.Time
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func NewWatcher(st store.Store, coord *Coordinator, logger *zap.Logger) *Watcher {
	return &Watcher{
		store:    st,
		coord:    coord,
		logger:   logger,
		interval: WatcherInterval,
		now:      time.Now,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

func (w *Watcher) Start() {
	go w.run()
	w.logger.Info("timeout watcher started", zap.Duration("interval", w.interval))
}

func (w *Watcher) Stop() {
	close(w.stopCh)
	<-w.doneCh
	w.logger.Info("timeout watcher stopped")
}

func (w *Watcher) run() {
	defer close(w.doneCh)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.tick()
		}
	}
}

func (w *Watcher) tick() {
	metrics.WatcherTicks.Inc()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	games, err := w.store.ActiveGames(ctx)
	if err != nil {
		w.logger.Warn("watcher scan failed", zap.Error(err))
		return
	}

	nowMs := w.now().UnixMilli()
	for _, g := range games {
		w.check(ctx, g, nowMs)
	}
}

// check inspects one scanned game. The coordinator methods re-load and
// re-verify under the game lock, so a stale snapshot here costs nothing.
func (w *Watcher) check(ctx context.Context, g *models.Game, nowMs int64) {
	switch {
	case g.DisconnectDeadlineMs > 0 && g.DisconnectDeadlineMs <= nowMs:
		if err := w.coord.ResolveDisconnectDeadline(ctx, g.GameID); err != nil {
			w.logger.Warn("disconnect resolution failed",
				zap.String("gameId", g.GameID), zap.Error(err))
		}
	case g.Clock != nil && g.Clock.FirstMoveDeadlineMs > 0 && nowMs > g.Clock.FirstMoveDeadlineMs:
		if err := w.coord.TerminateFirstMoveTimeout(ctx, g.GameID); err != nil {
			w.logger.Warn("first-move timeout failed",
				zap.String("gameId", g.GameID), zap.Error(err))
		}
	case g.Clock != nil && game.Project(*g.Clock, nowMs).TimedOut:
		if err := w.coord.TerminateFlagFall(ctx, g.GameID); err != nil {
			w.logger.Warn("flag-fall termination failed",
				zap.String("gameId", g.GameID), zap.Error(err))
		}
	}
}
