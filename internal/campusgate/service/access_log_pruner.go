package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/BrandonDHaskell/campusgate/internal/campusgate/store"
	"github.com/BrandonDHaskell/campusgate/internal/clock"
)

// AccessLogPruner periodically deletes access log rows older than the
// retention period. A retention of 0 disables pruning entirely.
type AccessLogPruner struct {
	store     store.AccessLog
	retention time.Duration
	interval  time.Duration
	clock     clock.Clock
	logger    *slog.Logger

	stopOnce sync.Once
	cancel   context.CancelFunc
	done     chan struct{}
}

// PrunerConfig holds the parameters for NewAccessLogPruner.
type PrunerConfig struct {
	// RetentionDays is how many days of access history to keep.
	// 0 means keep everything (pruner will not start).
	RetentionDays int

	// Interval is how often the pruner runs.  Defaults to 6h.
	Interval time.Duration
}

// NewAccessLogPruner creates a pruner but does not start it.
func NewAccessLogPruner(s store.AccessLog, cfg PrunerConfig, clk clock.Clock, logger *slog.Logger) *AccessLogPruner {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &AccessLogPruner{
		store:     s,
		retention: time.Duration(cfg.RetentionDays) * 24 * time.Hour,
		interval:  interval,
		clock:     clk,
		logger:    logger.With("component", "access_log_pruner"),
		done:      make(chan struct{}),
	}
}

// Start runs an immediate prune, then repeats on the configured interval
// until ctx is cancelled or Stop is called.
func (p *AccessLogPruner) Start(ctx context.Context) {
	if p.retention <= 0 {
		p.logger.Info("pruner disabled", "retention_days", 0)
		close(p.done)
		return
	}

	ctx, p.cancel = context.WithCancel(ctx)
	go p.loop(ctx)

	p.logger.Info("pruner started",
		"retention_days", int(p.retention.Hours()/24), "interval", p.interval.String())
}

// Stop signals the pruner to exit and waits for it. Safe to call more than
// once.
func (p *AccessLogPruner) Stop() {
	p.stopOnce.Do(func() {
		if p.cancel != nil {
			p.cancel()
		}
	})
	<-p.done
}

func (p *AccessLogPruner) loop(ctx context.Context) {
	defer close(p.done)

	p.Prune(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Prune(ctx)
		}
	}
}

// Prune deletes rows older than the retention cutoff once and returns how
// many were removed.
func (p *AccessLogPruner) Prune(ctx context.Context) int64 {
	cutoff := p.clock.Now().Add(-p.retention)
	deleted, err := p.store.PruneOlderThan(ctx, cutoff)
	if err != nil {
		p.logger.Error("prune failed", "error", err)
		return 0
	}
	if deleted > 0 {
		p.logger.Info("pruned access log", "rows", deleted, "cutoff", cutoff.Format(time.RFC3339))
	}
	return deleted
}
