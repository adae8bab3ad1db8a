package cache

import (
	"context"
	"time"

	"github.com/dmellis/chatlog/internal/bus"
	"go.uber.org/zap"
)

// Purger periodically evicts expired rows from the message cache.
type Purger struct {
	store     *Store
	interval  time.Duration
	retention time.Duration
	bus       *bus.Bus
	logger    *zap.Logger
	cancel    context.CancelFunc
}

// NewPurger creates a purger; Start arms it.
func NewPurger(store *Store, interval, retention time.Duration, b *bus.Bus, logger *zap.Logger) *Purger {
	return &Purger{
		store:     store,
		interval:  interval,
		retention: retention,
		bus:       b,
		logger:    logger,
	}
}

// Start begins the purge loop.
func (p *Purger) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	go p.loop(ctx)
}

// Stop stops the purge loop.
func (p *Purger) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
}

func (p *Purger) loop(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.purgeOnce()
		case <-ctx.Done():
			return
		}
	}
}

func (p *Purger) purgeOnce() {
	n, err := p.store.Purge(p.retention)
	if err != nil {
		p.logger.Error("cache purge failed", zap.Error(err))
		return
	}
	if n > 0 {
		p.logger.Info("cache purged", zap.Int64("rows", n))
	}
	p.bus.Publish(bus.Event{
		Kind:      "purge.done",
		Timestamp: time.Now(),
		Payload:   n,
	})
}
