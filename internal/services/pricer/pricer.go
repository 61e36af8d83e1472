package pricer

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultInterval snapshot polling period used when none is configured.
const DefaultInterval = 4 * time.Second

// SnapshotFetcher fetches and applies one full snapshot.
type SnapshotFetcher interface {
	FetchSnapshot(ctx context.Context) error
}

// SnapshotPoller fetches snapshots immediately and then on a fixed interval.
type SnapshotPoller struct {
	fetcher SnapshotFetcher
	logger  *zap.Logger

	mu       sync.Mutex
	interval time.Duration
	reset    chan time.Duration
}

// NewSnapshotPoller creates a poller. A non-positive interval falls back to DefaultInterval.
func NewSnapshotPoller(fetcher SnapshotFetcher, interval time.Duration, logger *zap.Logger) *SnapshotPoller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SnapshotPoller{
		fetcher:  fetcher,
		logger:   logger,
		interval: interval,
		reset:    make(chan time.Duration, 1),
	}
}

// Interval returns the current polling period.
func (p *SnapshotPoller) Interval() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.interval
}

// SetInterval changes the polling period and restarts the timer.
// Setting the current interval again is a no-op.
func (p *SnapshotPoller) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}

	p.mu.Lock()
	if d == p.interval {
		p.mu.Unlock()
		return
	}
	p.interval = d
	p.mu.Unlock()

	// keep only the latest pending change
	select {
	case <-p.reset:
	default:
	}
	select {
	case p.reset <- d:
	default:
	}
}

// Run polls until ctx is done. Fetch failures are logged and polling continues.
func (p *SnapshotPoller) Run(ctx context.Context) error {
	p.poll(ctx)

	interval := p.Interval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.logger.Info("Starting snapshot polling", zap.Duration("poll_interval", interval))

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Context done, stopping snapshot polling")
			return ctx.Err()
		case d := <-p.reset:
			ticker.Reset(d)
			p.logger.Info("Snapshot poll interval changed", zap.Duration("poll_interval", d))
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *SnapshotPoller) poll(ctx context.Context) {
	if err := p.fetcher.FetchSnapshot(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		p.logger.Warn("Snapshot fetch failed", zap.Error(err))
	}
}
