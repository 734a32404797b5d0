package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/intelliquery/backend/internal/api/handlers"
	"github.com/intelliquery/backend/internal/board"
	"github.com/intelliquery/backend/internal/cache/redis"
	"github.com/intelliquery/backend/internal/dataset"
	"github.com/intelliquery/backend/internal/llm"
	"github.com/intelliquery/backend/internal/metrics"
	"github.com/intelliquery/backend/internal/middleware/ratelimit"
	"github.com/intelliquery/backend/internal/middleware/security"
	"github.com/intelliquery/backend/internal/middleware/validation"
	"github.com/intelliquery/backend/internal/normalize"
	"github.com/intelliquery/backend/internal/query"
	"github.com/intelliquery/backend/internal/storage/sqlite"
	"github.com/intelliquery/backend/pkg/config"
	appLogger "github.com/intelliquery/backend/pkg/logger"
)

func main() {
	flags := pflag.NewFlagSet("intelliquery", pflag.ExitOnError)
	flags.String("config", "", "path to a config file")
	flags.Int("port", 8080, "port to listen on")
	_ = flags.Parse(os.Args[1:])

	cfg, err := config.LoadWithFlags(flags)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting IntelliQuery API Server")

	if err := cfg.Validate(); err != nil {
		appLogger.Warn("Configuration incomplete", zap.Error(err))
	}

	metrics.Init()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	err = sqliteClient.InitSchema()
	if err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	queryOpts := []query.Option{query.WithHistory(sqliteClient)}
	var counters handlers.CounterStore
	if cfg.Redis.Enabled {
		redisClient, err := redis.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			appLogger.Warn("Redis unavailable, intent cache disabled", zap.Error(err))
		} else {
			defer redisClient.Close()
			ttl := time.Duration(cfg.Redis.IntentTTL) * time.Second
			queryOpts = append(queryOpts, query.WithIntentCache(redisClient, ttl))
			counters = redisClient
		}
	}

	schema, err := normalize.LookupSchema(cfg.Board.SchemaVersion)
	if err != nil {
		appLogger.Fatal("Failed to resolve board schema", zap.Error(err))
	}

	boardClient := board.NewClient(cfg.Board)
	if err := boardClient.TestConnection(context.Background()); err != nil {
		appLogger.Warn("Board API connection check failed", zap.Error(err))
	}

	loader := dataset.NewLoader(boardClient, normalize.NewNormalizer(schema), sqliteClient, cfg.Dataset)
	if cfg.Dataset.LoadOnStart {
		go func() {
			if _, err := loader.Load(context.Background(), dataset.TriggerStartup); err != nil {
				appLogger.Error("Initial dataset load failed", zap.Error(err))
			}
		}()
	}
	if err := loader.Start(cfg.Dataset.RefreshSchedule); err != nil {
		appLogger.Fatal("Failed to schedule dataset refresh", zap.Error(err))
	}
	defer loader.Stop()

	llmClient := llm.NewClient(cfg.LLM)
	queryEngine := query.NewEngine(llmClient, loader, queryOpts...)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	limiter := ratelimit.New(ratelimit.Config{
		MaxRequestsPerMinute: cfg.RateLimit.MaxRequestsPerMinute,
		ExemptPrefixes:       []string{"/api/v1/health", "/api/v1/ready", "/metrics"},
		Logger:               appLogger.Named("ratelimit"),
	})
	defer limiter.Stop()

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: joinOrigins(cfg.Server.AllowedOrigins),
		AllowHeaders: "Origin, Content-Type, Accept, X-User-ID",
		AllowMethods: "GET, POST, DELETE, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		IsDevelopment:  cfg.Server.Development,
	}))
	app.Use(limiter.Middleware())
	app.Use(validation.Middleware(validation.Config{
		MaxQueryLength: cfg.RateLimit.MaxQueryLength,
		Logger:         appLogger.Named("validation"),
	}))

	queryHandler := handlers.NewQueryHandler(queryEngine)
	dashboardHandler := handlers.NewDashboardHandler(queryEngine, loader, sqliteClient)
	adminHandler := handlers.NewAdminHandler(boardClient, schema, cfg.Board.DealBoardID, cfg.Board.WorkOrderBoardID, counters)
	wsHandler := handlers.NewWebSocketHandler(queryEngine)

	api := app.Group("/api/v1")

	api.Post("/query", queryHandler.HandleQuery)
	api.Get("/query/history", queryHandler.GetQueryHistory)
	api.Post("/query/:id/feedback", queryHandler.SubmitFeedback)

	dashboard := api.Group("/dashboard")
	dashboard.Get("/pipeline", dashboardHandler.Analysis(llm.IntentPipeline))
	dashboard.Get("/revenue", dashboardHandler.Analysis(llm.IntentRevenue))
	dashboard.Get("/risks", dashboardHandler.Analysis(llm.IntentRisk))
	dashboard.Get("/sectors", dashboardHandler.Analysis(llm.IntentSector))

	api.Get("/quality", dashboardHandler.Quality)
	api.Post("/refresh", dashboardHandler.Refresh)
	api.Get("/loads", dashboardHandler.LoadRuns)
	api.Get("/loads/:id/issues", dashboardHandler.LoadIssues)

	api.Get("/board/columns", adminHandler.BoardColumns)
	api.Get("/stats", adminHandler.Stats)
	api.Delete("/cache/intents", adminHandler.ClearIntentCache)

	api.Get("/health", dashboardHandler.Health)
	api.Get("/ready", dashboardHandler.Ready)

	app.Get("/metrics", metrics.MetricsHandler())

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/chat", websocket.New(wsHandler.HandleConnection))

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		appLogger.Warn("Shutdown did not complete cleanly", zap.Error(err))
	}
	appLogger.Info("Server stopped")
}

func joinOrigins(origins []string) string {
	if len(origins) == 0 {
		return "*"
	}
	return strings.Join(origins, ", ")
}
