package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"inspectfleet/internal/domain/service/catalog"
	"inspectfleet/internal/infrastructure/cache"
	"inspectfleet/internal/infrastructure/persistence"
	"inspectfleet/pkg/application/modules"
	"inspectfleet/pkg/logx"
)

// Task type names for the periodic maintenance tasks dispatched through
// asynq (internal/worker/maintenance.go registers these with
// modules.AsynqScheduler; modules.AsynqServer's mux routes them here).
const (
	TaskCacheCleanup   = "maintenance:cache_cleanup"
	TaskCatalogRefresh = "maintenance:catalog_refresh"
	TaskCatalogFetch   = "maintenance:catalog_fetch"
)

// Maintenance binds the periodic upkeep tasks spec §4.3 requires: the
// Result Cache's timer-only TTL cleanup (at least every 15 minutes, never
// lazily on read) and the Game Data Decorator's catalog refresh.
type Maintenance struct {
	cache     *cache.ResultCache
	decorator *catalog.Decorator
	fetcher   *persistence.CatalogFetcher // nil if no upstream source configured
	log       *slog.Logger
}

func NewMaintenance(resultCache *cache.ResultCache, decorator *catalog.Decorator, fetcher *persistence.CatalogFetcher, log *slog.Logger) *Maintenance {
	return &Maintenance{cache: resultCache, decorator: decorator, fetcher: fetcher, log: log}
}

// HandleCacheCleanup is the asynq handler for TaskCacheCleanup.
func (m *Maintenance) HandleCacheCleanup(_ context.Context, _ *asynq.Task) error {
	removed := m.cache.CleanupExpired()
	m.log.Info("result cache cleanup", slog.Int("removed", removed))

	return nil
}

// HandleCatalogRefresh is the asynq handler for TaskCatalogRefresh; a
// no-op if game file updates are disabled (no decorator configured).
func (m *Maintenance) HandleCatalogRefresh(ctx context.Context, _ *asynq.Task) error {
	if m.decorator == nil {
		return nil
	}

	m.decorator.Refresh(ctx)

	return nil
}

// HandleCatalogFetch is the asynq handler for TaskCatalogFetch; a no-op
// if no upstream source is configured.
func (m *Maintenance) HandleCatalogFetch(ctx context.Context, _ *asynq.Task) error {
	if m.fetcher == nil {
		return nil
	}

	if err := m.fetcher.Fetch(ctx); err != nil {
		m.log.Error("upstream catalog fetch failed", logx.Error(err))

		return err
	}

	return nil
}

// PeriodicTasks builds the cron-spec/task pairs to register with the
// scheduler. cleanupInterval must not be sub-15min (spec invariant);
// catalogInterval is game_files_update_interval from config. The catalog
// refresh/fetch tasks are only scheduled when enableCatalog is set
// (config's enable_game_file_updates) — the cache cleanup task always
// runs regardless.
func PeriodicTasks(cleanupInterval, catalogInterval time.Duration, enableCatalog bool) []modules.PeriodicTask {
	tasks := []modules.PeriodicTask{
		{CronSpec: every(cleanupInterval), Task: asynq.NewTask(TaskCacheCleanup, nil)},
	}

	if enableCatalog {
		tasks = append(tasks,
			modules.PeriodicTask{CronSpec: every(catalogInterval), Task: asynq.NewTask(TaskCatalogRefresh, nil)},
			modules.PeriodicTask{CronSpec: every(catalogInterval), Task: asynq.NewTask(TaskCatalogFetch, nil)},
		)
	}

	return tasks
}

// every renders d as a "@every" cron spec, the form asynq's scheduler
// (backed by robfig/cron) accepts for fixed-interval schedules.
func every(d time.Duration) string {
	if d <= 0 {
		d = 15 * time.Minute
	}

	return "@every " + d.String()
}
