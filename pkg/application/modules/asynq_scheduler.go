package modules

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"
)

// AsynqScheduler wraps asynq's cron-driven periodic task enqueuer, the
// counterpart to AsynqServer (which runs the handlers the scheduler's
// tasks land on).
type AsynqScheduler struct {
	RedisUsername string
	RedisPassword string
	RedisAddress  string
	RedisDB       int
}

// PeriodicTask is one cron-spec/task pairing to register.
type PeriodicTask struct {
	CronSpec string
	Task     *asynq.Task
}

func (s AsynqScheduler) Run(ctx context.Context, g *errgroup.Group, tasks ...PeriodicTask) {
	g.Go(func() error {
		redisConnection := asynq.RedisClientOpt{
			Addr:     s.RedisAddress,
			Username: s.RedisUsername,
			Password: s.RedisPassword,
			DB:       s.RedisDB,
		}

		scheduler := asynq.NewScheduler(redisConnection, &asynq.SchedulerOpts{})

		for _, t := range tasks {
			if _, err := scheduler.Register(t.CronSpec, t.Task); err != nil {
				return fmt.Errorf("asynqScheduler.Register %q: %w", t.Task.Type(), err)
			}
		}

		logger(ctx).Info("asynq scheduler started", slog.String("redis-address", s.RedisAddress), slog.Int("tasks", len(tasks)))

		errCh := make(chan error, 1)

		go func() { errCh <- scheduler.Run() }()

		select {
		case <-ctx.Done():
			scheduler.Shutdown()

			return nil
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("asynqScheduler.Run: %w", err)
			}

			return nil
		}
	})
}
