package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/inboxowl/inboxowl/internal/analysis"
	"github.com/inboxowl/inboxowl/internal/cache"
	"github.com/inboxowl/inboxowl/internal/config"
	"github.com/inboxowl/inboxowl/internal/database"
	"github.com/inboxowl/inboxowl/internal/gmail"
	"github.com/inboxowl/inboxowl/internal/logger"
	"github.com/inboxowl/inboxowl/internal/openai"
	"github.com/inboxowl/inboxowl/internal/pipeline"
	"github.com/inboxowl/inboxowl/internal/rules"
	"github.com/inboxowl/inboxowl/internal/web"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "inboxowl: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer log.Sync()
	zap.ReplaceGlobals(log)

	log.Info("Starting InboxOwl...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("Failed to initialize database", zap.Error(err))
		return err
	}
	defer db.Close()

	if err := db.RunMigrations(ctx, log); err != nil {
		log.Error("Failed to run migrations", zap.Error(err))
		return err
	}
	log.Info("✓ Database connected and migrated")

	// Shared cache: Redis when configured, otherwise in-process
	var kv cache.Cache
	if cfg.RedisAddr != "" {
		rdb, err := cache.NewRedis(ctx, cache.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   "inboxowl:",
		})
		if err != nil {
			log.Error("Failed to connect to Redis", zap.String("addr", cfg.RedisAddr), zap.Error(err))
			return err
		}
		defer rdb.Close()
		kv = rdb
		log.Info("✓ Redis cache connected", zap.String("addr", cfg.RedisAddr))
	} else {
		kv = cache.NewMemory(cfg.CacheMaxKeys)
		log.Info("✓ Using in-process cache", zap.Int("max_keys", cfg.CacheMaxKeys))
	}

	throttle := cache.NewSyncThrottle(kv, cfg.SyncThrottleWindow(), log)
	messages := cache.NewMessageCache(kv, cfg.MessageCacheTTL(), log)

	// Generative model is optional
	var generator analysis.Generator
	if cfg.OpenAIAPIKey != "" {
		generator = openai.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL, log)
		log.Info("✓ OpenAI client initialized", zap.String("model", cfg.OpenAIModel))
	} else {
		log.Warn("OPENAI_API_KEY not set, analysis uses heuristics only")
	}

	policy, err := rules.ParseUnknownFieldPolicy(cfg.UnknownFieldPolicy)
	if err != nil {
		log.Error("Invalid rule configuration", zap.Error(err))
		return err
	}

	categorizer := rules.NewCategorizer(db, policy, log)
	analysisService := analysis.NewService(db, generator, categorizer, log)
	syncer := pipeline.NewSyncer(db, messages, policy, pipeline.Options{
		MaxResults: cfg.SyncMaxResults,
		BatchSize:  cfg.SyncBatchSize,
		BatchDelay: cfg.SyncBatchDelay(),
	}, log)

	oauthConfig := gmail.GetOAuthConfig(
		cfg.GoogleClientID,
		cfg.GoogleClientSecret,
		cfg.GoogleRedirectURL,
	)
	mailboxes := func(ctx context.Context, user *database.User) (pipeline.Mailbox, error) {
		client, err := gmail.NewClient(ctx, oauthConfig, user.GetOAuth2Token())
		if err != nil {
			return nil, err
		}
		return client, nil
	}

	deps := web.Deps{
		Store:     db,
		Analysis:  analysisService,
		Syncer:    syncer,
		Throttle:  throttle,
		Messages:  messages,
		Mailboxes: mailboxes,
		Logger:    log,
	}
	if cfg.FrontendDir != "" {
		deps.FrontendFS = os.DirFS(cfg.FrontendDir)
		log.Info("✓ Serving frontend", zap.String("dir", cfg.FrontendDir))
	}

	server := web.NewServer(cfg, deps)
	if err := server.Start(ctx); err != nil {
		log.Error("Web server stopped with error", zap.Error(err))
		return err
	}
	log.Info("InboxOwl stopped")
	return nil
}
