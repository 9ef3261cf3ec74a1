package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/fleetwatch/fleetwatch/internal/adapter/coordination"
	"github.com/fleetwatch/fleetwatch/internal/adapter/loader"
	"github.com/fleetwatch/fleetwatch/internal/adapter/persistence"
	"github.com/fleetwatch/fleetwatch/internal/config"
	"github.com/fleetwatch/fleetwatch/internal/domain"
	"github.com/fleetwatch/fleetwatch/internal/logger"
	"github.com/fleetwatch/fleetwatch/internal/ports"
	"github.com/fleetwatch/fleetwatch/internal/usecase"
	"github.com/go-redis/redis/v8"
)

// app holds the wired dependencies shared by the subcommands
type app struct {
	cfg       *config.Config
	log       logger.Logger
	db        *sql.DB
	redis     *redis.Client
	operators ports.OperatorRepository
	mixers    *usecase.AssetUseCase
	tractors  *usecase.AssetUseCase
}

func loadConfig() (*config.Config, logger.Logger, error) {
	var paths []string
	if configPath != "" {
		paths = append(paths, configPath)
	}
	cfg, err := config.Load(paths...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	log := logger.NewStructuredLogger(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		ServiceName: "fleetwatch",
		Output:      os.Stdout,
	})
	return cfg, log, nil
}

func newApp(ctx context.Context) (*app, error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, err
	}

	db, err := persistence.Open(cfg.Database)
	if err != nil {
		return nil, err
	}
	log.Info(ctx, "database connection established", map[string]interface{}{
		"host": cfg.Database.Host,
		"name": cfg.Database.DBName,
	})

	a := &app{cfg: cfg, log: log, db: db}

	var (
		locker    ports.AssetLocker
		publisher ports.EventPublisher
	)
	if cfg.Redis.Enabled {
		client, err := coordination.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			db.Close()
			return nil, err
		}
		a.redis = client
		locker = coordination.NewRedisLocker(client, cfg.Update.LockTTL, cfg.Update.LockWait, log)
		publisher = coordination.NewRedisPublisher(client, cfg.Redis.Channel)
		log.Info(ctx, "redis coordination enabled", map[string]interface{}{
			"addr":    cfg.Redis.Addr,
			"channel": cfg.Redis.Channel,
		})
	} else {
		locker = coordination.NewLocalLocker(cfg.Update.LockWait)
		publisher = coordination.NewLogPublisher(log)
		log.Warn(ctx, "redis disabled, using in-process locks", nil)
	}

	boundary, err := cfg.Verification.Boundary()
	if err != nil {
		a.Close()
		return nil, err
	}
	engine := domain.NewVerificationEngine(boundary)
	differ := domain.NewHistoryDiffer(boundary.Location)

	assets := persistence.NewPostgresAssetRepository(db, cfg.Database.QueryTimeout)
	a.operators = persistence.NewPostgresOperatorRepository(db, cfg.Database.QueryTimeout)

	build := func(kind domain.AssetKind) (*usecase.AssetUseCase, error) {
		return usecase.NewAssetUseCase(kind, assets, assets, engine, differ,
			usecase.WithLocker(locker),
			usecase.WithPublisher(publisher),
			usecase.WithOperatorDirectory(loader.NewDirectory(a.operators)),
			usecase.WithLogger(log.WithFields(map[string]interface{}{"kind": string(kind)})),
			usecase.WithMaxRetries(cfg.Update.MaxRetries),
		)
	}
	if a.mixers, err = build(domain.AssetKindMixer); err != nil {
		a.Close()
		return nil, err
	}
	if a.tractors, err = build(domain.AssetKindTractor); err != nil {
		a.Close()
		return nil, err
	}

	return a, nil
}

func (a *app) Close() {
	if a.redis != nil {
		a.redis.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}
