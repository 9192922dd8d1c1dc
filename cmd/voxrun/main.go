package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"voxrun/internal/config"
	"voxrun/internal/cursor"
	"voxrun/internal/queue"
	"voxrun/internal/storage"
	"voxrun/internal/telegram"
	"voxrun/internal/transcriber"
	"voxrun/internal/worker"
	"voxrun/pkg/cache"
	"voxrun/pkg/logger"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// Load .env file first
	_ = godotenv.Load()

	resetCursor := flag.Bool("reset-cursor", false, "Remove the stored update cursor and exit")
	flag.Parse()

	cfg, cfgErr := config.LoadConfig()

	debug := cfgErr == nil && cfg.Debug
	if err := logger.Init(debug, zap.String("run_id", uuid.NewString())); err != nil {
		panic("Failed to init logger: " + err.Error())
	}
	defer logger.Sync()

	// nothing below may touch the network without a valid config
	if cfgErr != nil {
		logger.Fatal("Failed to load config", zap.Error(cfgErr))
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openCursorStore(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to open cursor store", zap.String("backend", cfg.Cursor.Backend), zap.Error(err))
		return
	}
	defer closeStore()

	if *resetCursor {
		logger.Info("Resetting cursor...", zap.String("backend", cfg.Cursor.Backend))
		if err := store.Reset(ctx); err != nil {
			logger.Fatal("Failed to reset cursor", zap.Error(err))
			return
		}
		logger.Info("Cursor reset completed successfully")
		return
	}

	transport, err := telegram.New(telegram.Options{
		URL:         cfg.Telegram.URL,
		Token:       cfg.Telegram.Token,
		PollTimeout: cfg.Telegram.PollTimeout,
		MaxFileSize: cfg.Telegram.MaxFileSize,
	})
	if err != nil {
		logger.Fatal("Failed to create Telegram transport", zap.Error(err))
		return
	}

	engine, err := transcriber.NewEngine(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to create transcription engine", zap.String("engine", cfg.Engine.Kind), zap.Error(err))
		return
	}
	service := transcriber.NewService(engine)

	logger.Info("Transcription engine initialized", zap.String("engine", engine.Name()))

	// a nil *RabbitMQ in the interface would not compare equal to nil
	var events worker.EventPublisher
	if cfg.RabbitMQ.URL != "" {
		rabbitMQ, err := queue.NewRabbitMQ(cfg.RabbitMQ.URL)
		if err != nil {
			logger.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
			return
		}
		defer rabbitMQ.Close()
		events = rabbitMQ
	}

	processor := worker.NewProcessor(transport, service, events, cfg.Telegram.ArtifactPath)
	runner := worker.NewRunner(store, transport, processor)

	report, err := runner.RunOnce(ctx)
	if err != nil {
		logger.Fatal("Run failed",
			zap.Int64("cursor", report.Prior),
			zap.Error(err))
		return
	}

	logger.Info("Run finished",
		zap.Int64("prior", report.Prior),
		zap.Int64("next", report.Next),
		zap.Int("updates", report.Updates))
}

// openCursorStore builds the configured cursor backend. The returned func
// releases its connections.
func openCursorStore(ctx context.Context, cfg *config.Config) (cursor.Store, func(), error) {
	switch cfg.Cursor.Backend {
	case config.BackendFile:
		return cursor.NewFileStore(cfg.Cursor.Path), func() {}, nil

	case config.BackendRedis:
		redisCache, err := cache.NewRedisCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, 0)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("Redis cache connection established")
		return cursor.NewRedisStore(redisCache, cfg.Cursor.Name), func() { redisCache.Close() }, nil

	case config.BackendPostgres:
		db, err := storage.NewPostgresStorage(ctx, cfg.Postgres.DSN, cfg.Postgres.Migrations)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("Database connection established")
		return cursor.NewPostgresStore(db, cfg.Cursor.Name), db.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown cursor backend %q", cfg.Cursor.Backend)
	}
}
