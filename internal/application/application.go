// Package application wires the Inspect Dispatch Fleet's components
// together: ambient config and connectors, the bot fleet, the scheduler,
// the HTTP API, periodic maintenance, and ops alerting. Adapted from the
// teacher's application.Run, which performed the analogous wiring for the
// gift-market domain (Postgres, a Telegram client pool, a market scanner,
// an alert bot) using the same errgroup-driven shutdown shape.
package application

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"inspectfleet/internal/config"
	"inspectfleet/internal/domain/entity"
	"inspectfleet/internal/domain/service/catalog"
	"inspectfleet/internal/infrastructure/cache"
	"inspectfleet/internal/infrastructure/gc"
	"inspectfleet/internal/infrastructure/notifier"
	"inspectfleet/internal/infrastructure/persistence"
	"inspectfleet/internal/infrastructure/ratelimit"
	"inspectfleet/internal/server"
	"inspectfleet/internal/worker"
	"inspectfleet/pkg/application/connectors"
	"inspectfleet/pkg/application/modules"
)

const httpShutdownTimeout = 10 * time.Second

// Run assembles and drives every long-running component until ctx is
// cancelled. fleetCfg is the domain configuration loaded by the CLI
// entrypoint from the -c/--config file; sessionFactory is the operator's
// concrete game-coordinator client (spec §6.3, §9's dependency-injection
// point) and totp generates 2FA codes for logins carrying a shared
// secret.
func Run(ctx context.Context, log *slog.Logger, cancel context.CancelFunc, fleetCfg config.Fleet, sessionFactory gc.SessionFactory, totp gc.TOTPFunc) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config load: %w", err)
	}

	pg := &connectors.Postgres{
		DSN:             cfg.Postgres.DSN,
		MaxOpenConns:    cfg.Postgres.MaxOpenConns,
		MaxIdleConns:    cfg.Postgres.MaxIdleConns,
		ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
	}
	db := pg.Client(ctx)
	defer pg.Close(ctx)

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("db ping: %w", err)
	}

	log.Info("database connection OK")

	rds := &connectors.Redis{
		Address:        cfg.Redis.Address,
		Username:       cfg.Redis.Username,
		Password:       cfg.Redis.Password,
		DatabaseNumber: cfg.Redis.DB,
	}
	redisClient := rds.Client(ctx)
	defer rds.Close(ctx)

	var (
		schedulerDecorator   worker.Decorator = noopDecorator{}
		maintenanceDecorator *catalog.Decorator
		fetcher              *persistence.CatalogFetcher
	)

	if fleetCfg.EnableGameFileUpdates {
		catalogRepo := persistence.NewCatalogRepository(db)
		decorator := catalog.New(catalogRepo, log)
		decorator.Refresh(ctx)

		schedulerDecorator = decorator
		maintenanceDecorator = decorator

		if cfg.CatalogFetch.URL != "" {
			fetcher = persistence.NewCatalogFetcher(cfg.CatalogFetch.URL, cfg.CatalogFetch.BearerToken, catalogRepo)
		}
	}

	resultCache := cache.New(cache.DefaultMaxEntries, cache.DefaultTTL)
	dedupe := cache.NewDedupe(fleetCfg.BotSettings.RequestTTL())

	credentials := make([]gc.Credential, len(fleetCfg.Logins))
	for i, login := range fleetCfg.Logins {
		credentials[i] = gc.Credential{
			AccountName:  login.AccountName,
			Password:     login.Password,
			SharedSecret: login.SharedSecret,
			ProxyURL:     fleetCfg.ProxyFor(i),
		}
	}

	botSettings := gc.Settings{
		RequestDelay:          fleetCfg.BotSettings.RequestDelay(),
		RequestTTL:            fleetCfg.BotSettings.RequestTTL(),
		MaxConcurrentRequests: fleetCfg.BotSettings.MaxConcurrentRequests,
		ConnectionTimeout:     fleetCfg.BotSettings.ConnectionTimeout(),
		LoginRetryDelay:       fleetCfg.BotSettings.LoginRetryDelay(),
		GCReconnectDelay:      fleetCfg.BotSettings.GCReconnectDelay(),
		ReloginInterval:       fleetCfg.BotSettings.ReloginInterval(),
		ReloginJitter:         fleetCfg.BotSettings.ReloginJitter(),
		MaxLoginAttempts:      fleetCfg.BotSettings.MaxLoginAttempts,
	}

	if botSettings.MaxConcurrentRequests > 1 {
		log.Warn("bot_settings.max_concurrent_requests > 1 is ignored; each bot serves one in-flight request",
			slog.Int("configured", botSettings.MaxConcurrentRequests))
	}

	fleet, err := gc.BuildFleet(credentials, botSettings, sessionFactory, totp, log)
	if err != nil {
		return fmt.Errorf("build fleet: %w", err)
	}

	scheduler := worker.NewScheduler(fleet, schedulerDecorator, resultCache, log)
	if err := scheduler.Start(ctx); err != nil {
		return fmt.Errorf("scheduler start: %w", err)
	}

	defer scheduler.Stop()

	var limiter ratelimit.Limiter = ratelimit.NewMemory(
		time.Duration(fleetCfg.RateLimit.WindowMS)*time.Millisecond,
		fleetCfg.RateLimit.Max,
	)
	if fleetCfg.RateLimit.Enable {
		limiter = ratelimit.NewRedis(redisClient, "ratelimit:",
			time.Duration(fleetCfg.RateLimit.WindowMS)*time.Millisecond, fleetCfg.RateLimit.Max)
	}

	srv := server.New(scheduler, fleet, resultCache, dedupe, limiter, fleetCfg, log)

	httpServer := &http.Server{ //nolint:exhaustruct
		Addr:              fmt.Sprintf(":%d", fleetCfg.HTTP.Port),
		Handler:           server.Routes(srv),
		ReadHeaderTimeout: 5 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		err := fleet.Run(groupCtx)
		if err != nil && groupCtx.Err() == nil {
			log.Error("fleet stopped unexpectedly", "error", err)
			cancel()
		}

		return nil
	})

	modules.HTTPServer{ShutdownTimeout: httpShutdownTimeout}.Run(groupCtx, group, httpServer)
	modules.MetricServer{ListenAddress: cfg.MetricsAddr}.Run(groupCtx, group)
	modules.ProbeServer{Name: "inspectfleet", Version: "dev", ListenAddress: cfg.ProbeAddr}.Run(groupCtx, group)

	asynqQueues := modules.AsynqQueues{"maintenance": 1}
	asynqOpts := modules.AsynqServer{ //nolint:exhaustruct
		RedisAddress:  cfg.Redis.Address,
		RedisUsername: cfg.Redis.Username,
		RedisPassword: cfg.Redis.Password,
		RedisDB:       cfg.Redis.DB,
	}

	maintenance := worker.NewMaintenance(resultCache, maintenanceDecorator, fetcher, log)
	asynqOpts.Run(groupCtx, group,
		asynqQueues,
		modules.AsynqHandler{Pattern: worker.TaskCacheCleanup, Handle: maintenance.HandleCacheCleanup},
		modules.AsynqHandler{Pattern: worker.TaskCatalogRefresh, Handle: maintenance.HandleCatalogRefresh},
		modules.AsynqHandler{Pattern: worker.TaskCatalogFetch, Handle: maintenance.HandleCatalogFetch},
	)

	modules.AsynqScheduler{ //nolint:exhaustruct
		RedisAddress:  cfg.Redis.Address,
		RedisUsername: cfg.Redis.Username,
		RedisPassword: cfg.Redis.Password,
		RedisDB:       cfg.Redis.DB,
	}.Run(groupCtx, group, worker.PeriodicTasks(cache.DefaultCleanupMin, fleetCfg.GameFilesUpdateInterval(), fleetCfg.EnableGameFileUpdates)...)

	if cfg.OpsBot.Token != "" {
		alertBot, err := notifier.NewTelegramBot(cfg.OpsBot.Token, cfg.OpsBot.ChatID)
		if err != nil {
			return fmt.Errorf("notifier bot: %w", err)
		}

		group.Go(func() error {
			err := alertBot.Run(groupCtx, fleet.Events())
			if err != nil && groupCtx.Err() == nil {
				log.Error("notifier bot stopped", "error", err)
			}

			return nil
		})
	}

	log.Info("application started", slog.Int("bots", fleet.Size()), slog.Int("http_port", fleetCfg.HTTP.Port))

	return group.Wait()
}

// noopDecorator stands in for the Game Data Decorator when
// enable_game_file_updates is off: inspected items are returned without
// catalog enrichment rather than leaving the scheduler with a nil
// *catalog.Decorator, which would panic on Annotate.
type noopDecorator struct{}

func (noopDecorator) Annotate(*entity.DecoratedItem) {}
