package handlers

import (
	"context"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/dia/backend/internal/core/ports"
	"github.com/dia/backend/internal/infrastructure/logger"
	"github.com/dia/backend/internal/transport/http/dto"
	httpmw "github.com/dia/backend/internal/transport/http/middleware"
)

// SearchPreferences supplies the owner's preferred semantic search size.
type SearchPreferences interface {
	SearchTopK(ctx context.Context, ownerID string, def int) int
}

type TaskHandlerConfig struct {
	Tasks       ports.TaskService
	Drafter     ports.TaskDrafter
	Users       ports.UserService
	Preferences SearchPreferences
	DefaultTopK int
	Logger      *logger.Logger
}

type TaskHandler struct {
	tasks       ports.TaskService
	drafter     ports.TaskDrafter
	users       ports.UserService
	preferences SearchPreferences
	defaultTopK int
	logger      *logger.Logger
}

func NewTaskHandler(cfg TaskHandlerConfig) *TaskHandler {
	topK := cfg.DefaultTopK
	if topK <= 0 {
		topK = 5
	}
	return &TaskHandler{
		tasks:       cfg.Tasks,
		drafter:     cfg.Drafter,
		users:       cfg.Users,
		preferences: cfg.Preferences,
		defaultTopK: topK,
		logger:      cfg.Logger,
	}
}

// location is the caller's zone. Unknown users fall back to UTC.
func location(c *fiber.Ctx, users ports.UserService) *time.Location {
	if users == nil {
		return time.UTC
	}
	user, err := users.GetUser(c.UserContext(), httpmw.OwnerID(c))
	if err != nil {
		return time.UTC
	}
	return user.Location()
}

func (h *TaskHandler) CreateTask(c *fiber.Ctx) error {
	var req dto.CreateTaskRequest
	if err := c.BodyParser(&req); err != nil {
		h.logger.Warnw("task_create_body_parse_failed", "error", err)
		return badRequest(c, "invalid request body")
	}
	if errors := req.Validate(); len(errors) > 0 {
		h.logger.Warnw("task_create_validation_failed", "details", errors)
		return badRequest(c, "validation failed", errors...)
	}

	ownerID := httpmw.OwnerID(c)
	loc := location(c, h.users)
	h.logger.Infow("task_create_request", "owner_id", ownerID)
	task, err := h.tasks.CreateTask(c.UserContext(), ownerID, req.ToInput(loc))
	if err != nil {
		return respondError(c, h.logger, "task_create_failed", err)
	}

	h.logger.Infow("task_create_success", "id", task.ID)
	return c.Status(fiber.StatusCreated).JSON(dto.TaskToResponse(task, loc))
}

func (h *TaskHandler) DraftTask(c *fiber.Ctx) error {
	var req dto.DraftTaskRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if errors := req.Validate(); len(errors) > 0 {
		return badRequest(c, "validation failed", errors...)
	}

	ownerID := httpmw.OwnerID(c)
	h.logger.Infow("task_draft_request", "owner_id", ownerID)
	task, err := h.drafter.DraftTask(c.UserContext(), ownerID, req.Text)
	if err != nil {
		return respondError(c, h.logger, "task_draft_failed", err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.TaskToResponse(task, location(c, h.users)))
}

func (h *TaskHandler) GetTasks(c *fiber.Ctx) error {
	var query dto.TaskQuery
	if err := c.QueryParser(&query); err != nil {
		return badRequest(c, "invalid query")
	}

	loc := location(c, h.users)
	filter, errors := query.ToFilter(loc)
	if len(errors) > 0 {
		return badRequest(c, "validation failed", errors...)
	}

	tasks, err := h.tasks.ListTasks(c.UserContext(), httpmw.OwnerID(c), filter)
	if err != nil {
		return respondError(c, h.logger, "tasks_list_failed", err)
	}
	return c.JSON(dto.TasksToResponse(tasks, loc))
}

func (h *TaskHandler) GetTasksByDate(c *fiber.Ctx) error {
	loc := location(c, h.users)
	day := time.Now().In(loc)
	if raw := c.Query("date"); raw != "" {
		parsed, err := time.ParseInLocation("2006-01-02", raw, loc)
		if err != nil {
			return badRequest(c, "date must be YYYY-MM-DD")
		}
		day = parsed
	}

	tasks, err := h.tasks.ListTasksByDate(c.UserContext(), httpmw.OwnerID(c), day)
	if err != nil {
		return respondError(c, h.logger, "tasks_by_date_failed", err)
	}
	return c.JSON(dto.TasksToResponse(tasks, loc))
}

func (h *TaskHandler) SearchTasks(c *fiber.Ctx) error {
	query := c.Query("q")
	if query == "" {
		return badRequest(c, "q is required")
	}

	ownerID := httpmw.OwnerID(c)
	topK := h.defaultTopK
	if h.preferences != nil {
		topK = h.preferences.SearchTopK(c.UserContext(), ownerID, topK)
	}
	if raw := c.Query("top_k"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 50 {
			return badRequest(c, "top_k must be between 1 and 50")
		}
		topK = n
	}

	tasks, err := h.tasks.SearchTasks(c.UserContext(), ownerID, query, topK)
	if err != nil {
		return respondError(c, h.logger, "tasks_search_failed", err)
	}
	return c.JSON(dto.TasksToResponse(tasks, location(c, h.users)))
}

func (h *TaskHandler) GetTask(c *fiber.Ctx) error {
	task, err := h.tasks.GetTask(c.UserContext(), httpmw.OwnerID(c), c.Params("id"))
	if err != nil {
		return respondError(c, h.logger, "task_get_failed", err)
	}
	return c.JSON(dto.TaskToResponse(task, location(c, h.users)))
}

func (h *TaskHandler) UpdateTask(c *fiber.Ctx) error {
	var req dto.UpdateTaskRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if errors := req.Validate(); len(errors) > 0 {
		h.logger.Warnw("task_update_validation_failed", "details", errors)
		return badRequest(c, "validation failed", errors...)
	}

	id := c.Params("id")
	loc := location(c, h.users)
	h.logger.Infow("task_update_request", "id", id)
	task, err := h.tasks.UpdateTask(c.UserContext(), httpmw.OwnerID(c), id, req.ToDraft(loc))
	if err != nil {
		return respondError(c, h.logger, "task_update_failed", err)
	}
	return c.JSON(dto.TaskToResponse(task, loc))
}

func (h *TaskHandler) DeleteTask(c *fiber.Ctx) error {
	id := c.Params("id")
	h.logger.Infow("task_delete_request", "id", id)
	if err := h.tasks.DeleteTask(c.UserContext(), httpmw.OwnerID(c), id); err != nil {
		return respondError(c, h.logger, "task_delete_failed", err)
	}
	h.logger.Infow("task_delete_success", "id", id)
	return c.SendStatus(fiber.StatusNoContent)
}
