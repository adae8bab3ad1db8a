package status

import (
	"context"
	"sync"
	"time"

	"github.com/dmellis/chatlog/internal/bus"
	"go.uber.org/zap"
)

// Snapshot is a point-in-time view of daemon activity counters.
type Snapshot struct {
	Stored   uint64
	Rejected uint64
	Failed   uint64
	Purged   int64
	Since    time.Time
}

// Tracker accumulates ingest and purge activity from the bus and logs
// a summary line periodically.
type Tracker struct {
	bus      *bus.Bus
	logger   *zap.Logger
	interval time.Duration
	cancel   context.CancelFunc

	mu   sync.Mutex
	snap Snapshot
}

// NewTracker creates a tracker logging a summary every interval.
func NewTracker(b *bus.Bus, interval time.Duration, logger *zap.Logger) *Tracker {
	return &Tracker{
		bus:      b,
		logger:   logger,
		interval: interval,
		snap:     Snapshot{Since: time.Now()},
	}
}

// Start subscribes to ingest and purge events on the bus.
func (t *Tracker) Start(ctx context.Context) {
	ctx, t.cancel = context.WithCancel(ctx)
	ingestCh, unsubIngest := t.bus.Subscribe("ingest.", 256)
	purgeCh, unsubPurge := t.bus.Subscribe("purge.", 16)

	go func() {
		defer unsubIngest()
		defer unsubPurge()

		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()

		for {
			select {
			case evt := <-ingestCh:
				t.record(evt)
			case evt := <-purgeCh:
				t.record(evt)
			case <-ticker.C:
				t.logSummary()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the tracker.
func (t *Tracker) Stop() {
	if t.cancel != nil {
		t.cancel()
	}
}

// Current returns the counters so far.
func (t *Tracker) Current() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snap
}

func (t *Tracker) record(evt bus.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch evt.Kind {
	case "ingest.stored":
		t.snap.Stored++
	case "ingest.rejected":
		t.snap.Rejected++
	case "ingest.failed":
		t.snap.Failed++
	case "purge.done":
		if n, ok := evt.Payload.(int64); ok {
			t.snap.Purged += n
		}
	}
}

func (t *Tracker) logSummary() {
	snap := t.Current()
	t.logger.Info("activity",
		zap.Uint64("stored", snap.Stored),
		zap.Uint64("rejected", snap.Rejected),
		zap.Uint64("failed", snap.Failed),
		zap.Int64("purged", snap.Purged),
		zap.Duration("uptime", time.Since(snap.Since).Round(time.Second)),
	)
}
