package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/radiocast/backend/internal/application"
	"github.com/radiocast/backend/internal/domain"
	"github.com/radiocast/backend/internal/infrastructure/cache"
	"github.com/radiocast/backend/internal/infrastructure/ffmpeg"
	"github.com/radiocast/backend/internal/infrastructure/repository/postgres"
	"github.com/radiocast/backend/internal/infrastructure/repository/sqlite"
	"github.com/radiocast/backend/internal/infrastructure/system"
	"github.com/radiocast/backend/internal/interfaces/http"
	"github.com/radiocast/backend/internal/interfaces/http/handlers"
	"github.com/radiocast/backend/internal/interfaces/http/middleware"
	"github.com/radiocast/backend/internal/pkg/config"
	"github.com/radiocast/backend/internal/pkg/logger"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

func newServeCommand(configFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the transcoding supervisor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), *configFlag)
		},
	}
}

func runServe(ctx context.Context, configPath string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.LoadFrom(configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logger.Init(cfg.Log.Level, cfg.Log.Pretty)
	log := logger.Get()
	log.Info().Msg("Starting Radiocast...")

	if err := os.MkdirAll(cfg.Storage.HLSPath, 0755); err != nil {
		return fmt.Errorf("create hls root: %w", err)
	}

	// One instance per HLS root: two supervisors would delete each other's segments
	lock := flock.New(cfg.Storage.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another radiocast instance is using %s", cfg.Storage.HLSPath)
	}
	defer func() { _ = lock.Unlock() }()

	removed, err := ffmpeg.SweepRoot(cfg.Storage.HLSPath)
	if err != nil {
		log.Warn().Err(err).Msg("HLS root sweep incomplete")
	}
	log.Info().Int("removed", removed).Str("hls_path", cfg.Storage.HLSPath).Msg("Swept stale HLS files")

	stationRepo, closeRepo, err := openStationRepository(ctx, cfg.Database, *log)
	if err != nil {
		return err
	}
	defer closeRepo()

	stationCache, closeCache := openCache(ctx, cfg.Redis, *log)
	defer closeCache()

	manager := ffmpeg.NewManager(ffmpeg.Config{
		BinaryPath:     cfg.FFmpeg.BinaryPath,
		SegmentTime:    cfg.FFmpeg.SegmentTime,
		PlaylistSize:   cfg.FFmpeg.PlaylistSize,
		OutputLines:    cfg.FFmpeg.OutputLines,
		HLSRoot:        cfg.Storage.HLSPath,
		PublicBaseURL:  cfg.Storage.PublicBaseURL,
		TickInterval:   cfg.Supervisor.TickInterval,
		KillWait:       cfg.Supervisor.KillWait,
		MaxRetries:     cfg.Supervisor.MaxRetries,
		RestartBackoff: cfg.Supervisor.RestartBackoff,
	})

	// Initialize services
	authService := application.NewAuthService(application.AuthOptions{
		JWTSecret:         cfg.Auth.JWTSecret,
		AdminEmail:        cfg.Auth.AdminEmail,
		AdminPasswordHash: cfg.Auth.AdminPasswordHash,
		TokenExpiration:   time.Duration(cfg.Auth.ExpirationHours) * time.Hour,
		RefreshExpiration: time.Duration(cfg.Auth.RefreshHours) * time.Hour,
	})
	if !authService.Enabled() {
		log.Warn().Msg("auth.jwt_secret is empty, API mutations are unauthenticated")
	}
	recordService := application.NewRecordService(manager)
	stationService := application.NewStationService(stationRepo, manager, stationCache, cfg.Redis.TTL)

	router := http.NewRouter(
		handlers.NewAuthHandler(authService),
		handlers.NewRecordHandler(recordService),
		handlers.NewStationHandler(stationService),
		handlers.NewSystemHandler(system.NewCollector(cfg.Storage.HLSPath, manager)),
		middleware.NewAuthMiddleware(authService),
		cfg.Storage.HLSPath,
		&cfg.Server,
	)
	router.SetupRoutes()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		addr := cfg.Server.Addr()
		log.Info().Str("address", addr).Msg("Starting HTTP server")
		if err := router.Start(addr); err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := stationService.Bootstrap(gctx); err != nil {
			log.Error().Err(err).Msg("Station bootstrap failed")
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down...")

		if err := router.Shutdown(); err != nil {
			log.Error().Err(err).Msg("Error during HTTP shutdown")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := manager.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Workers did not stop in time")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info().Msg("Server stopped")
	return nil
}

func openStationRepository(ctx context.Context, cfg config.DatabaseConfig, log zerolog.Logger) (domain.StationRepository, func(), error) {
	switch cfg.Driver {
	case "postgres":
		pool, err := postgres.Connect(ctx, cfg.DSN(), cfg.MaxConns)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		if err := postgres.Migrate(ctx, pool, log); err != nil {
			pool.Close()
			return nil, nil, err
		}
		log.Info().Str("host", cfg.Host).Str("dbname", cfg.DBName).Msg("Connected to PostgreSQL")
		return postgres.NewStationRepository(pool), pool.Close, nil
	case "sqlite":
		db, err := sqlite.Open(ctx, cfg.SQLitePath, sqlite.DefaultOptions())
		if err != nil {
			return nil, nil, err
		}
		log.Info().Str("path", cfg.SQLitePath).Msg("Opened SQLite station store")
		return sqlite.NewStationRepository(db), func() { _ = db.Close() }, nil
	default:
		return nil, nil, errors.New("unsupported database driver " + cfg.Driver)
	}
}

// openCache falls back to the in-process cache when Redis is disabled or unreachable
func openCache(ctx context.Context, cfg config.RedisConfig, log zerolog.Logger) (cache.Cache, func()) {
	if !cfg.Enabled {
		return cache.NewMemoryCache(), func() {}
	}

	rc, err := cache.NewRedisCache(ctx, cache.RedisConfig{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	}, logger.WithComponent("cache"))
	if err != nil {
		log.Warn().Err(err).Msg("Redis unavailable, using in-memory station cache")
		return cache.NewMemoryCache(), func() {}
	}
	return rc, func() { _ = rc.Close() }
}
