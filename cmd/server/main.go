package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/dia/backend/internal/config"
	"github.com/dia/backend/internal/core/ports"
	"github.com/dia/backend/internal/core/services"
	"github.com/dia/backend/internal/infrastructure/cache"
	"github.com/dia/backend/internal/infrastructure/db"
	"github.com/dia/backend/internal/infrastructure/llm"
	"github.com/dia/backend/internal/infrastructure/logger"
	"github.com/dia/backend/internal/infrastructure/metrics"
	"github.com/dia/backend/internal/infrastructure/vector"
	transporthttp "github.com/dia/backend/internal/transport/http"
	httpmw "github.com/dia/backend/internal/transport/http/middleware"
	"github.com/dia/backend/internal/transport/telegram"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "dia",
	Short: "Personal schedule assistant backend",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env is optional; real environment variables win.
		_ = godotenv.Load()
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the Telegram bot",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := bootstrap()
		if err != nil {
			return err
		}
		defer log.Sync()

		database, err := db.NewPostgresConnection(cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close(database)

		if err := migrate(database, cfg); err != nil {
			return err
		}
		log.Info("database migrations completed")
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yaml (default config/config.yaml)")
	rootCmd.AddCommand(serveCmd, migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func bootstrap() (*config.Config, *logger.Logger, error) {
	path := configPath
	if path == "" {
		path = "config/config.yaml"
		if _, err := os.Stat(path); os.IsNotExist(err) {
			path = "../config/config.yaml"
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, log, nil
}

func migrate(database *gorm.DB, cfg *config.Config) error {
	if err := db.RunMigrations(database); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	if err := vector.Migrate(database, cfg.Embedding.Dimensions); err != nil {
		return fmt.Errorf("failed to migrate semantic index: %w", err)
	}
	return nil
}

func serve() error {
	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}
	defer log.Sync()

	database, err := db.NewPostgresConnection(cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	log.Info("database connection established")

	if err := migrate(database, cfg); err != nil {
		log.Fatalf("%v", err)
	}
	log.Info("database migrations completed")

	var (
		assistantMetrics ports.AssistantMetrics
		exporter         *metrics.PrometheusExporter
	)
	if cfg.Features.EnableMetrics {
		exporter = metrics.NewPrometheusExporter(nil)
		assistantMetrics = exporter
	}

	var (
		redisClient *redis.Client
		idempotency ports.IdempotencyStore
	)
	if cfg.Redis.Enabled() {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := redisClient.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			log.Warnw("redis_unavailable", "addr", cfg.Redis.Addr, "error", err)
		} else {
			idempotency = cache.NewRedisIdempotencyStore(redisClient, cfg.Redis.IdempotencyTTL)
			log.Infow("redis_connected", "addr", cfg.Redis.Addr)
		}
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		IdleTimeout:           cfg.Server.IdleTimeout,
		ErrorHandler:          globalErrorHandler(log),
		JSONEncoder:           sonic.Marshal,
		JSONDecoder:           sonic.Unmarshal,
		DisableStartupMessage: true,
	})

	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	allowedOrigins := "http://localhost:3000"
	if len(cfg.Auth.AllowedOrigins) > 0 {
		allowedOrigins = strings.Join(cfg.Auth.AllowedOrigins, ",")
	}

	app.Use(cors.New(cors.Config{
		AllowOrigins: allowedOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, Idempotency-Key, " + cfg.Features.RequestIDHeader,
		AllowMethods: "GET, POST, HEAD, PUT, DELETE, PATCH",
	}))

	app.Use(httpmw.RequestID(cfg.Features.RequestIDHeader))

	if cfg.Features.EnableRequestLogging {
		app.Use(func(c *fiber.Ctx) error {
			start := time.Now()
			err := c.Next()
			routePath := ""
			if c.Route() != nil {
				routePath = c.Route().Path
			}
			log.Infow("http_access",
				"method", c.Method(),
				"path", c.Path(),
				"route", routePath,
				"status", c.Response().StatusCode(),
				"latency_ms", time.Since(start).Milliseconds(),
				"client_ip", c.IP(),
				"user_agent", string(c.Request().Header.UserAgent()),
				"request_id", services.RequestIDFrom(c.UserContext()),
				"req_bytes", len(c.Request().Body()),
				"resp_bytes", len(c.Response().Body()),
			)
			return err
		})
	}

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	chat := llm.NewClient(cfg.LLM, log, assistantMetrics)
	routerCfg := transporthttp.RouterConfig{
		DB:          database,
		Logger:      log,
		Config:      cfg,
		LLM:         chat,
		Embedder:    llm.NewEmbedder(cfg.Embedding, chat, log),
		Index:       vector.NewPgvectorIndex(database, log),
		Idempotency: idempotency,
		Metrics:     assistantMetrics,
	}
	if exporter != nil {
		routerCfg.MetricsHandler = exporter.Handler()
	}
	svc := transporthttp.SetupRoutes(app, routerCfg)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	go cleanupTimeline(ctx, svc.Timeline, cfg.Assistant.TimelineRetention, log)

	botDone := make(chan struct{})
	if cfg.Telegram.Enabled() {
		bot, err := telegram.NewBot(telegram.BotConfig{
			Config:    cfg.Telegram,
			Assistant: svc.Assistant,
			Users:     svc.Users,
			Tasks:     svc.Tasks,
			Logger:    log,
		})
		if err != nil {
			log.Errorw("telegram_bot_disabled", "error", err)
			close(botDone)
		} else {
			go func() {
				defer close(botDone)
				bot.Run(ctx)
			}()
		}
	} else {
		close(botDone)
	}

	addr := cfg.Server.Address()
	go func() {
		if err := app.Listen(addr); err != nil {
			log.Fatalf("server failed to start: %v", err)
		}
	}()

	log.Infof("server started on %s", addr)

	gracefulShutdown(app, database, log, func() {
		stop()
		<-botDone
		svc.Jobs.Wait()
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				log.Warnw("redis_close_failed", "error", err)
			}
		}
	})
	return nil
}

// cleanupTimeline prunes assistant events older than retention once an hour.
func cleanupTimeline(ctx context.Context, repo ports.TimelineRepository, retention time.Duration, log *logger.Logger) {
	if retention <= 0 {
		return
	}
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		if err := repo.CleanupOld(ctx, retention); err != nil && ctx.Err() == nil {
			log.Warnw("timeline_cleanup_failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func globalErrorHandler(log *logger.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError

		if e, ok := err.(*fiber.Error); ok {
			code = e.Code
		}

		// Expected client errors are not worth an error-level entry.
		if code < fiber.StatusInternalServerError {
			log.Warnw("request failed",
				"method", c.Method(),
				"path", c.Path(),
				"status", code,
				"error", err.Error(),
				"request_id", services.RequestIDFrom(c.UserContext()),
			)
		} else {
			log.Errorw("request error",
				"method", c.Method(),
				"path", c.Path(),
				"status", code,
				"error", err.Error(),
				"request_id", services.RequestIDFrom(c.UserContext()),
			)
		}

		return c.Status(code).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
}

func gracefulShutdown(app *fiber.App, database *gorm.DB, log *logger.Logger, drain func()) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	<-quit
	log.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Errorf("server forced to shutdown: %v", err)
	}

	drain()

	if err := db.Close(database); err != nil {
		log.Errorf("failed to close database connection: %v", err)
	}

	log.Info("server exited gracefully")
}
