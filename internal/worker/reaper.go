package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-bot/internal/config"
	"github.com/spec-kit/ticket-bot/internal/service"
)

// Reaper force-closes tickets that have been idle past the configured
// threshold. It scans a snapshot of the registry so the lifecycle service
// may mutate entries concurrently; the lifecycle re-validates idleness
// right before deleting anything.
type Reaper struct {
	lifecycle *service.LifecycleService
	logger    *zap.Logger
	interval  time.Duration
	threshold time.Duration
	now       func() time.Time
}

// NewReaper constructs the reaper.
func NewReaper(cfg config.TicketConfig, lifecycle *service.LifecycleService, logger *zap.Logger) *Reaper {
	return &Reaper{
		lifecycle: lifecycle,
		logger:    logger,
		interval:  cfg.ReapInterval,
		threshold: cfg.InactivityThreshold,
		now:       time.Now,
	}
}

// Run scans periodically until the context ends. Sweeps run off the ticker
// goroutine because the close grace delay suspends them; duplicate closes
// from overlapping sweeps are deduplicated by the lifecycle service.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			go r.Sweep(ctx)
		}
	}
}

// Sweep closes every ticket idle beyond the threshold.
func (r *Reaper) Sweep(ctx context.Context) {
	now := r.now()
	for _, ticket := range r.lifecycle.Tickets() {
		if ticket.Closed {
			continue
		}
		idle := now.Sub(ticket.LastActivityAt)
		if idle < r.threshold {
			continue
		}
		r.logger.Info("reaping idle ticket",
			zap.String("channel_id", ticket.ChannelID),
			zap.Duration("idle", idle))
		if err := r.lifecycle.Reap(ctx, ticket.ChannelID); err != nil {
			r.logger.Error("reap failed", zap.String("channel_id", ticket.ChannelID), zap.Error(err))
		}
	}
}
