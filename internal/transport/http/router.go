package http

import (
	"net/http"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"gorm.io/gorm"

	"github.com/dia/backend/internal/config"
	"github.com/dia/backend/internal/core/ports"
	"github.com/dia/backend/internal/core/services"
	"github.com/dia/backend/internal/infrastructure/db"
	"github.com/dia/backend/internal/infrastructure/logger"
	"github.com/dia/backend/internal/transport/http/handlers"
	httpmw "github.com/dia/backend/internal/transport/http/middleware"
)

type RouterConfig struct {
	DB     *gorm.DB
	Logger *logger.Logger
	Config *config.Config

	LLM         ports.LLMProvider
	Embedder    ports.Embedder
	Index       ports.SemanticIndex
	Idempotency ports.IdempotencyStore
	Metrics     ports.AssistantMetrics

	// MetricsHandler is mounted at /metrics when set.
	MetricsHandler http.Handler
}

// Services are the long-lived pieces other transports and shutdown need.
type Services struct {
	Assistant ports.AssistantService
	Users     ports.UserService
	Tasks     ports.TaskService
	Jobs      *services.JobService
	Timeline  ports.TimelineRepository
}

func SetupRoutes(app *fiber.App, cfg RouterConfig) *Services {
	enableLocks := cfg.Config.Features.EnableLocks

	// Initialize repositories
	taskRepo := db.NewTaskRepository(cfg.DB, cfg.Logger)
	userRepo := db.NewUserRepository(cfg.DB, cfg.Logger)
	tokenRepo := db.NewRefreshTokenRepository(cfg.DB, cfg.Logger)
	tagRepo := db.NewSmartTagRepository(cfg.DB, cfg.Logger)
	timelineRepo := db.NewTimelineRepository(cfg.DB, cfg.Logger)
	settingRepo := db.NewUserSettingRepository(cfg.DB, cfg.Logger)
	transactor := db.NewTransactor(cfg.DB, cfg.Logger)

	// Initialize services
	indexer := services.NewTaskIndexer(cfg.Embedder, cfg.Index, cfg.Logger)
	settingService := services.NewUserSettingService(settingRepo, cfg.Logger, enableLocks)

	taskService := services.NewTaskService(services.TaskServiceConfig{
		Repository: taskRepo,
		Tags:       tagRepo,
		Transactor: transactor,
		Indexer:    indexer,
		Logger:     cfg.Logger,
	})

	authService := services.NewAuthService(services.AuthServiceConfig{
		Users:      userRepo,
		Tokens:     tokenRepo,
		Logger:     cfg.Logger,
		Secret:     cfg.Config.Auth.JWTSecret,
		AccessTTL:  cfg.Config.Auth.AccessTTL,
		RefreshTTL: cfg.Config.Auth.RefreshTTL,
	})

	userService := services.NewUserService(services.UserServiceConfig{
		Users:      userRepo,
		Tokens:     tokenRepo,
		Tasks:      taskRepo,
		Indexer:    indexer,
		Tags:       tagRepo,
		Settings:   settingRepo,
		Transactor: transactor,
		Logger:     cfg.Logger,
	})

	assistantService := services.NewAssistantService(services.AssistantServiceConfig{
		LLM:                cfg.LLM,
		Tasks:              taskRepo,
		Transactor:         transactor,
		Indexer:            indexer,
		Users:              userRepo,
		Settings:           settingService,
		Timeline:           timelineRepo,
		Metrics:            cfg.Metrics,
		Logger:             cfg.Logger,
		TransactionalApply: cfg.Config.Assistant.TransactionalApply,
		FallbackMessage:    cfg.Config.Assistant.FallbackMessage,
		RequestTimeout:     cfg.Config.Assistant.RequestTimeout,
		EnableLocks:        enableLocks,
	})

	jobService := services.NewJobService(assistantService, cfg.Logger, cfg.Config.Assistant.JobRetention)
	drafter := services.NewTaskDrafter(cfg.LLM, taskService, userRepo, cfg.Logger)
	tagService := services.NewSmartTagService(tagRepo, taskRepo, cfg.Logger)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService, cfg.Logger)
	userHandler := handlers.NewUserHandler(userService, cfg.Logger)
	taskHandler := handlers.NewTaskHandler(handlers.TaskHandlerConfig{
		Tasks:       taskService,
		Drafter:     drafter,
		Users:       userService,
		Preferences: settingService,
		DefaultTopK: cfg.Config.Assistant.SearchTopK,
		Logger:      cfg.Logger,
	})
	tagHandler := handlers.NewTagHandler(tagService, cfg.Logger)
	settingHandler := handlers.NewSettingHandler(settingService, cfg.Logger)
	assistantHandler := handlers.NewAssistantHandler(assistantService, jobService, userService, cfg.Logger)
	timelineHandler := handlers.NewTimelineHandler(timelineRepo, cfg.Config.Assistant.TimelineLimit, cfg.Logger)
	assistantSocket := handlers.NewAssistantSocket(assistantService, userService, cfg.Logger)

	if cfg.MetricsHandler != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.MetricsHandler))
	}

	requireAuth := httpmw.Auth(authService)

	// Assistant chat socket
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return c.SendStatus(fiber.StatusUpgradeRequired)
	})
	app.Get("/ws/assistant", requireAuth, websocket.New(assistantSocket.Handle))

	// API v1 routes
	api := app.Group("/api/v1")

	// Auth routes
	auth := api.Group("/auth")
	auth.Post("/register", authHandler.Register)
	auth.Post("/login", authHandler.Login)
	auth.Post("/refresh", authHandler.Refresh)
	auth.Post("/logout", authHandler.Logout)

	// User routes
	users := api.Group("/users", requireAuth)
	users.Get("/me", userHandler.GetMe)
	users.Patch("/me", userHandler.UpdateMe)
	users.Delete("/me", userHandler.DeleteMe)

	// Task routes
	tasks := api.Group("/tasks", requireAuth)
	tasks.Post("/", taskHandler.CreateTask)
	tasks.Post("/draft", taskHandler.DraftTask)
	tasks.Get("/", taskHandler.GetTasks)
	tasks.Get("/by-date", taskHandler.GetTasksByDate)
	tasks.Get("/search", taskHandler.SearchTasks)
	tasks.Get("/:id", taskHandler.GetTask)
	tasks.Patch("/:id", taskHandler.UpdateTask)
	tasks.Delete("/:id", taskHandler.DeleteTask)
	tasks.Post("/:id/tags", tagHandler.CreateTag)
	tasks.Get("/:id/tags", tagHandler.GetTaskTags)

	// Tag routes
	tags := api.Group("/tags", requireAuth)
	tags.Get("/", tagHandler.GetTags)
	tags.Delete("/:id", tagHandler.DeleteTag)

	// Settings routes
	settings := api.Group("/settings", requireAuth)
	settings.Get("/", settingHandler.GetSettings)
	settings.Put("/", settingHandler.UpdateSettings)

	// Assistant routes
	assistant := api.Group("/assistant", requireAuth)
	assistant.Post("/", httpmw.Idempotency(cfg.Idempotency, cfg.Logger), assistantHandler.Handle)
	assistant.Get("/jobs/:id", assistantHandler.GetJob)
	assistant.Get("/timeline", timelineHandler.GetEvents)

	return &Services{
		Assistant: assistantService,
		Users:     userService,
		Tasks:     taskService,
		Jobs:      jobService,
		Timeline:  timelineRepo,
	}
}
