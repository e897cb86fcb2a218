package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	"listing_sync/internal/adapters/assets"
	"listing_sync/internal/adapters/guesty"
	server "listing_sync/internal/adapters/http_server"
	"listing_sync/internal/adapters/observability"
	redisad "listing_sync/internal/adapters/redis"
	"listing_sync/internal/app"
	"listing_sync/internal/domain"
	"listing_sync/internal/scheduler"
	"listing_sync/internal/shared"
	mysqlrepo "listing_sync/internal/storage/mysql"
)

// adminTimeout bounds a manual sync request; cycles themselves are bounded by
// the provider timeouts.
const adminTimeout = 10 * time.Minute

func main() {
	cfg := shared.Load()

	// 1) initialize global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv, "syncer")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().
		Str("base", cfg.GuestyBase).
		Str("schedule", cfg.SyncSchedule).
		Int("workers", cfg.SyncWorkers).
		Int("retire_limit", cfg.SyncRetireLimit).
		Bool("dry_run", cfg.SyncDryRun).
		Msg("syncer starting")

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("db ping ok")
	repo := mysqlrepo.New(db)

	cache := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	if err := cache.Ping(ctx); err != nil {
		log.Warn().Err(err).Msg("redis unavailable; tokens are not shared and read caches are not invalidated")
	}

	client, err := guesty.New(cfg.GuestyBase, cfg.GuestyRPS, cfg.GuestyTimeout)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize Guesty client")
	}
	tokens := guesty.NewTokenCache(client, guesty.Credentials{
		ClientID:     cfg.GuestyClientID,
		ClientSecret: cfg.GuestyClientSecret,
	}, cfg.TokenGuard, cache)

	var images domain.ImageCache
	if cfg.Assets.Enabled {
		mc, err := assets.NewClient(assets.Config{
			Endpoint:  cfg.Assets.Endpoint,
			AccessKey: cfg.Assets.AccessKey,
			SecretKey: cfg.Assets.SecretKey,
			UseSSL:    cfg.Assets.UseSSL,
			Region:    cfg.Assets.Region,
			Timeout:   cfg.GuestyTimeout,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize asset storage client")
		}
		ic := assets.NewImageCache(mc, cfg.Assets.Bucket, cfg.Assets.PublicURL, cfg.Assets.MaxBytes, cfg.GuestyTimeout)
		if err := ic.EnsureBucket(ctx); err != nil {
			log.Fatal().Err(err).Str("bucket", cfg.Assets.Bucket).Msg("asset bucket unavailable")
		}
		images = ic
	} else {
		log.Warn().Msg("asset caching disabled; new records get no featured image")
	}

	engine := app.NewEngine(app.NewLocalStore(repo, images), app.EngineOptions{
		Workers:     cfg.SyncWorkers,
		DryRun:      cfg.SyncDryRun,
		RetireLimit: cfg.SyncRetireLimit,
	})
	svc := app.NewSyncService(app.SyncDeps{
		Tokens:  tokens,
		Catalog: client,
		Engine:  engine,
		Runs:    repo,
		Cache:   cache,
		Observe: observability.ObserveSync,
	})

	observability.RegisterDefault()
	observability.Serve(cfg.MetricsAddr)

	if cfg.SyncAdminAddr != "" {
		srv := server.New(adminTimeout)
		srv.MountHandlers(&server.Handlers{Sync: svc, AdminToken: cfg.SyncAdminToken})
		if cfg.SyncAdminToken == "" {
			log.Warn().Msg("SYNC_ADMIN_TOKEN is empty; manual sync endpoint is unauthenticated")
		}
		go func() {
			log.Info().Str("addr", cfg.SyncAdminAddr).Msg("admin API listening")
			httpSrv := &http.Server{Addr: cfg.SyncAdminAddr, Handler: srv.Mux(), ReadHeaderTimeout: 5 * time.Second}
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("admin server failed")
			}
		}()
	}

	runCycle := func() {
		if _, err := svc.RunSyncCycle(ctx); errors.Is(err, domain.ErrSyncInProgress) {
			log.Info().Msg("sync skipped: previous cycle still running")
		}
	}

	sched, err := scheduler.New(cfg.SyncSchedule, runCycle, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("scheduler setup failed")
	}
	sched.Start()
	if cfg.SyncOnStart {
		go sched.RunNow()
	}

	<-ctx.Done()
	log.Info().Msg("shutting down; waiting for running cycle")
	<-sched.Stop().Done()
	_ = db.Close()
	log.Info().Msg("syncer stopped")
}
