package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

const DefaultSweepSchedule = "@every 5m"

var cronParser = cron.NewParser(
	cron.SecondOptional |
		cron.Minute |
		cron.Hour |
		cron.Dom |
		cron.Month |
		cron.Dow |
		cron.Descriptor,
)

// Sweeper periodically expires sessions older than the configured TTL.
type Sweeper struct {
	cron   *cron.Cron
	docs   *DocumentService
	ttl    time.Duration
	logger *slog.Logger
}

func NewSweeper(docs *DocumentService, ttl time.Duration, schedule string, logger *slog.Logger) (*Sweeper, error) {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Sweeper{
		cron:   cron.New(cron.WithParser(cronParser)),
		docs:   docs,
		ttl:    ttl,
		logger: logger,
	}
	if _, err := s.cron.AddFunc(schedule, func() { s.Sweep(context.Background()) }); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	return s, nil
}

func (s *Sweeper) Start() {
	s.logger.Info("session sweeper started", "ttl", s.ttl.String())
	s.cron.Start()
}

// Stop waits for a running sweep to finish or ctx to end.
func (s *Sweeper) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// Sweep runs one expiry pass and returns how many sessions were removed.
func (s *Sweeper) Sweep(ctx context.Context) int {
	n, err := s.docs.ExpireSessions(ctx, s.ttl)
	if err != nil {
		s.logger.Error("session sweep failed", "expired", n, "error", err)
		return n
	}
	if n > 0 {
		s.logger.Info("expired sessions removed", "count", n)
	}
	return n
}
