// Package sweeper runs the background expiry loop for stale pending call
// requests. Pending requests never expire on their own; this loop enforces
// the deployment's freshness policy.
package sweeper

import (
	"context"
	"log/slog"
	"time"

	"musicmatch-platform/internal/callrequest"
)

const defaultBatchSize = 100

type Sweeper struct {
	calls    *callrequest.Service
	interval time.Duration
	ttl      time.Duration
	batch    int
	log      *slog.Logger
}

func New(calls *callrequest.Service, interval, ttl time.Duration, log *slog.Logger) *Sweeper {
	if log == nil {
		log = slog.Default()
	}
	return &Sweeper{
		calls:    calls,
		interval: interval,
		ttl:      ttl,
		batch:    defaultBatchSize,
		log:      log,
	}
}

// Run blocks until ctx is cancelled, sweeping once per interval.
// Intended to run as a goroutine alongside the HTTP server.
func (s *Sweeper) Run(ctx context.Context) {
	if s.interval <= 0 || s.ttl <= 0 {
		s.log.Info("pending sweeper disabled")
		return
	}

	t := time.NewTicker(s.interval)
	defer t.Stop()

	s.log.Info("pending sweeper started", "interval", s.interval, "ttl", s.ttl)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("pending sweeper stopped")
			return
		case <-t.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	swept, err := s.calls.ExpireStalePending(ctx, s.ttl, s.batch)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.log.Error("pending sweep failed", "err", err, "swept", swept)
		return
	}
	if swept > 0 {
		s.log.Info("expired stale pending requests", "count", swept)
	}
}
