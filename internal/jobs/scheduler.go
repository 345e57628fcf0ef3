package jobs

import (
	"context"
	"log/slog"
	"time"

	sl "marketplace_auth/internal/lib/logger"

	"github.com/robfig/cron/v3"
)

type TokenCleaner interface {
	CleanupExpiredTokens(ctx context.Context) (int64, error)
}

// DenylistPurger drops consumed reset-token entries past their expiry. The
// Redis denylist expires keys on its own and needs none.
type DenylistPurger interface {
	Purge(ctx context.Context, now time.Time) (int, error)
}

type Scheduler struct {
	cron     *cron.Cron
	schedule string
	log      *slog.Logger
	tokens   TokenCleaner
	denylist DenylistPurger
	timeout  time.Duration
}

// NewScheduler takes a six-field cron schedule (with seconds). denylist may
// be nil.
func NewScheduler(log *slog.Logger, schedule string, tokens TokenCleaner, denylist DenylistPurger) *Scheduler {
	return &Scheduler{
		cron:     cron.New(cron.WithSeconds()),
		schedule: schedule,
		log:      log,
		tokens:   tokens,
		denylist: denylist,
		timeout:  time.Minute,
	}
}

func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.cleanup); err != nil {
		return err
	}

	s.cron.Start()
	return nil
}

// Stop waits for a running cleanup to finish or for ctx to end.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}

func (s *Scheduler) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	s.RunOnce(ctx)
}

// RunOnce performs a single cleanup pass.
func (s *Scheduler) RunOnce(ctx context.Context) {
	const op = "jobs.cleanup"

	log := s.log.With(slog.String("op", op))

	n, err := s.tokens.CleanupExpiredTokens(ctx)
	if err != nil {
		log.Error("expired refresh token cleanup failed", sl.Err(err))
	} else {
		log.Info("expired refresh tokens deleted", slog.Int64("count", n))
	}

	if s.denylist == nil {
		return
	}

	purged, err := s.denylist.Purge(ctx, time.Now())
	if err != nil {
		log.Error("reset token denylist purge failed", sl.Err(err))
		return
	}

	log.Info("reset token denylist purged", slog.Int("count", purged))
}
