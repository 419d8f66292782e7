package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dia/backend/internal/core/ports"
	"github.com/dia/backend/internal/domain"
	"github.com/dia/backend/internal/infrastructure/logger"
)

type assistantService struct {
	classifier *IntentClassifier
	filters    *FilterExtractor
	editor     *ScheduleEditor
	tasks      ports.TaskRepository
	tx         ports.Transactor
	indexer    *TaskIndexer
	users      ports.UserRepository
	settings   ports.SettingService
	timeline   ports.TimelineRepository
	metrics    ports.AssistantMetrics
	logger     *logger.Logger

	transactional   bool
	fallbackMessage string
	requestTimeout  time.Duration
	now             func() time.Time

	locks *keyLocker
}

type AssistantServiceConfig struct {
	LLM        ports.LLMProvider
	Tasks      ports.TaskRepository
	Transactor ports.Transactor
	Indexer    *TaskIndexer
	Users      ports.UserRepository
	Settings   ports.SettingService
	Timeline   ports.TimelineRepository
	Metrics    ports.AssistantMetrics
	Logger     *logger.Logger

	// TransactionalApply applies every action of a request in one
	// transaction. When false, each action stands alone and failures are
	// reported per action.
	TransactionalApply bool
	FallbackMessage    string
	RequestTimeout     time.Duration
	EnableLocks        bool
	Clock              func() time.Time
}

func NewAssistantService(cfg AssistantServiceConfig) ports.AssistantService {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	fallback := cfg.FallbackMessage
	if fallback == "" {
		fallback = "Unknown agent"
	}
	return &assistantService{
		classifier:      NewIntentClassifier(cfg.LLM, cfg.Logger),
		filters:         NewFilterExtractor(cfg.LLM, cfg.Logger),
		editor:          NewScheduleEditor(cfg.LLM, cfg.Logger),
		tasks:           cfg.Tasks,
		tx:              cfg.Transactor,
		indexer:         cfg.Indexer,
		users:           cfg.Users,
		settings:        cfg.Settings,
		timeline:        cfg.Timeline,
		metrics:         cfg.Metrics,
		logger:          cfg.Logger,
		transactional:   cfg.TransactionalApply,
		fallbackMessage: fallback,
		requestTimeout:  cfg.RequestTimeout,
		now:             clock,
		locks:           newKeyLocker(cfg.EnableLocks),
	}
}

// Handle runs one natural-language request through classify, filter,
// fetch, edit and apply.
func (s *assistantService) Handle(ctx context.Context, ownerID, request string) (*domain.AssistantResult, error) {
	request = strings.TrimSpace(request)
	if request == "" {
		return nil, fmt.Errorf("%w: request is empty", domain.ErrValidation)
	}
	if s.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.requestTimeout)
		defer cancel()
	}
	requestID := RequestIDFrom(ctx)
	if requestID == "" {
		requestID = uuid.New().String()
		ctx = WithRequestID(ctx, requestID)
	}
	log := s.logger.With("request_id", requestID, "owner_id", ownerID)
	result := &domain.AssistantResult{RequestID: requestID, Actions: []domain.AppliedAction{}}

	intent, err := s.classifier.Classify(ctx, request)
	if err != nil {
		return nil, s.fail(ctx, log, ownerID, domain.EventTypeAssistantClassify, "", err)
	}
	result.Intent = intent
	s.record(ctx, ownerID, domain.EventTypeAssistantClassify, domain.EventStatusSuccess, string(intent), nil)

	if intent != domain.IntentSchedule {
		result.Message = s.fallback(ctx, ownerID)
		log.Infow("assistant_unknown_intent")
		s.incRequest(intent, "ok")
		s.record(ctx, ownerID, domain.EventTypeAssistantDone, domain.EventStatusSuccess, result.Message, nil)
		return result, nil
	}

	now := s.now().In(s.ownerLocation(ctx, ownerID))
	filter, err := s.filters.Extract(ctx, request, now)
	if err != nil {
		return nil, s.fail(ctx, log, ownerID, domain.EventTypeAssistantFilters, intent, err)
	}
	s.record(ctx, ownerID, domain.EventTypeAssistantFilters, domain.EventStatusSuccess, "", domain.JSONB{"filter": filter})

	// Fetch through apply must see a consistent view of the owner's tasks.
	unlock := s.locks.lock("owner:" + ownerID)
	defer unlock()

	tasks, err := s.tasks.Find(ctx, ownerID, filter)
	if err != nil {
		return nil, s.fail(ctx, log, ownerID, domain.EventTypeAssistantFetch, intent, storeErr("fetch tasks", err))
	}
	s.record(ctx, ownerID, domain.EventTypeAssistantFetch, domain.EventStatusSuccess, "", domain.JSONB{"count": len(tasks)})

	var candidates []domain.Task
	if len(tasks) > 0 {
		candidates = tasks
	}
	actions, err := s.editor.Edit(ctx, request, candidates, now)
	if err != nil {
		return nil, s.fail(ctx, log, ownerID, domain.EventTypeAssistantEdit, intent, err)
	}
	s.record(ctx, ownerID, domain.EventTypeAssistantEdit, domain.EventStatusSuccess, "", domain.JSONB{"actions": len(actions)})

	applied, err := s.apply(ctx, log, ownerID, actions)
	if err != nil {
		return nil, s.fail(ctx, log, ownerID, domain.EventTypeAssistantApply, intent, err)
	}
	result.Actions = applied
	for _, a := range applied {
		if s.metrics != nil {
			s.metrics.IncAction(string(a.Action), string(a.Result))
		}
	}

	s.incRequest(intent, "ok")
	s.record(ctx, ownerID, domain.EventTypeAssistantDone, domain.EventStatusSuccess, "", domain.JSONB{"actions": len(applied)})
	log.Infow("assistant_request_done", "actions", len(applied))
	return result, nil
}

func (s *assistantService) apply(ctx context.Context, log *logger.Logger, ownerID string, actions []domain.EditAction) ([]domain.AppliedAction, error) {
	if s.transactional && s.tx != nil {
		vecs, err := s.embedAhead(ctx, ownerID, actions)
		if err != nil {
			return nil, err
		}
		var results []domain.AppliedAction
		err = s.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
			results = make([]domain.AppliedAction, 0, len(actions))
			for _, action := range actions {
				res, err := s.applyOne(txCtx, log, ownerID, action, vecs)
				if err != nil {
					return err
				}
				results = append(results, res)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		return results, nil
	}

	results := make([]domain.AppliedAction, 0, len(actions))
	for _, action := range actions {
		res, err := s.applyOne(ctx, log, ownerID, action, nil)
		if err != nil {
			log.Warnw("assistant_action_failed", "action", action.Kind, "task_id", action.TaskID, "error", err)
			res = domain.AppliedAction{Action: action.Kind, TaskID: action.TaskID, Result: domain.ActionResultFailed, Error: err.Error()}
		}
		results = append(results, res)
	}
	return results, nil
}

// embedAhead embeds the tasks that CREATED and UPDATED actions will write,
// so the transaction does not wait on the embedding provider. Actions that
// will fail or be skipped are left for applyOne to report.
func (s *assistantService) embedAhead(ctx context.Context, ownerID string, actions []domain.EditAction) (Vectors, error) {
	if s.indexer == nil {
		return nil, nil
	}
	var previews []*domain.Task
	for _, action := range actions {
		switch action.Kind {
		case domain.ActionCreated:
			if task, err := action.Draft.NewTask("", ownerID); err == nil {
				previews = append(previews, task)
			}
		case domain.ActionUpdated:
			task, err := s.tasks.GetByID(ctx, ownerID, action.TaskID)
			if err != nil {
				return nil, storeErr("get task", err)
			}
			if task != nil {
				action.Draft.ApplyTo(task)
				previews = append(previews, task)
			}
		}
	}
	return s.indexer.Embed(ctx, previews...)
}

// applyOne performs a single action. Actions naming a task the owner does
// not have are skipped, not failed.
func (s *assistantService) applyOne(ctx context.Context, log *logger.Logger, ownerID string, action domain.EditAction, vecs Vectors) (domain.AppliedAction, error) {
	res := domain.AppliedAction{Action: action.Kind, TaskID: action.TaskID}

	switch action.Kind {
	case domain.ActionCreated:
		task, err := action.Draft.NewTask(uuid.New().String(), ownerID)
		if err != nil {
			return res, err
		}
		if err := s.tasks.Create(ctx, task); err != nil {
			return res, storeErr("create task", err)
		}
		if err := s.index(ctx, log, task, vecs); err != nil {
			return res, err
		}
		res.TaskID, res.Task, res.Result = task.ID, task, domain.ActionResultApplied

	case domain.ActionUpdated:
		task, err := s.tasks.GetByID(ctx, ownerID, action.TaskID)
		if err != nil {
			return res, storeErr("get task", err)
		}
		if task == nil {
			log.Infow("assistant_action_skipped", "action", action.Kind, "task_id", action.TaskID)
			res.Result = domain.ActionResultSkipped
			return res, nil
		}
		action.Draft.ApplyTo(task)
		if err := task.Validate(); err != nil {
			return res, err
		}
		if err := s.tasks.Update(ctx, task); err != nil {
			return res, storeErr("update task", err)
		}
		if err := s.index(ctx, log, task, vecs); err != nil {
			return res, err
		}
		res.Task, res.Result = task, domain.ActionResultApplied

	case domain.ActionDeleted:
		deleted, err := s.tasks.Delete(ctx, ownerID, action.TaskID)
		if err != nil {
			return res, storeErr("delete task", err)
		}
		if !deleted {
			log.Infow("assistant_action_skipped", "action", action.Kind, "task_id", action.TaskID)
			res.Result = domain.ActionResultSkipped
			return res, nil
		}
		if err := s.indexer.Delete(ctx, action.TaskID); err != nil {
			if s.transactional {
				return res, err
			}
			log.Warnw("assistant_unindex_failed", "task_id", action.TaskID, "error", err)
		}
		res.Result = domain.ActionResultApplied

	case domain.ActionRead:
		task, err := s.tasks.GetByID(ctx, ownerID, action.TaskID)
		if err != nil {
			return res, storeErr("get task", err)
		}
		if task == nil {
			log.Infow("assistant_action_skipped", "action", action.Kind, "task_id", action.TaskID)
			res.Result = domain.ActionResultSkipped
			return res, nil
		}
		res.Task, res.Result = task, domain.ActionResultApplied

	default:
		return res, fmt.Errorf("%w: %q", ErrUnsupportedAction, action.Kind)
	}
	return res, nil
}

// index mirrors task into the semantic index. Inside a transactional apply a
// failure aborts the request; otherwise the stored task stands.
func (s *assistantService) index(ctx context.Context, log *logger.Logger, task *domain.Task, vecs Vectors) error {
	err := s.indexer.UpsertWith(ctx, task, vecs)
	if err == nil {
		return nil
	}
	if s.transactional {
		return err
	}
	log.Warnw("assistant_index_failed", "task_id", task.ID, "error", err)
	return nil
}

func (s *assistantService) fallback(ctx context.Context, ownerID string) string {
	if s.settings != nil {
		if msg, ok := s.settings.Get(ctx, ownerID, domain.SettingFallbackMessage); ok && msg != "" {
			return msg
		}
	}
	return s.fallbackMessage
}

func (s *assistantService) ownerLocation(ctx context.Context, ownerID string) *time.Location {
	if s.users == nil {
		return time.UTC
	}
	user, err := s.users.GetByID(ctx, ownerID)
	if err != nil {
		s.logger.Warnw("assistant_owner_lookup_failed", "owner_id", ownerID, "error", err)
		return time.UTC
	}
	return user.Location()
}

func (s *assistantService) fail(ctx context.Context, log *logger.Logger, ownerID, stage string, intent domain.Intent, err error) error {
	log.Errorw("assistant_request_failed", "stage", stage, "error", err)
	label := string(intent)
	if label == "" {
		label = "none"
	}
	status := "error"
	if errors.Is(err, ErrUpstreamTimeout) {
		status = "timeout"
	}
	s.incRequest(domain.Intent(label), status)
	s.record(ctx, ownerID, domain.EventTypeAssistantFailed, domain.EventStatusFailed, err.Error(), domain.JSONB{"stage": stage})
	return err
}

func (s *assistantService) incRequest(intent domain.Intent, status string) {
	if s.metrics != nil {
		s.metrics.IncRequest(string(intent), status)
	}
}

// record writes a timeline event. Timeline failures never fail the request.
func (s *assistantService) record(ctx context.Context, ownerID, eventType string, status domain.EventStatus, msg string, meta domain.JSONB) {
	if s.timeline == nil {
		return
	}
	event := &domain.TimelineEvent{
		OwnerID:   ownerID,
		RequestID: RequestIDFrom(ctx),
		Type:      eventType,
		Status:    status,
		Message:   msg,
		Meta:      meta,
	}
	if err := s.timeline.Create(context.WithoutCancel(ctx), event); err != nil {
		s.logger.Warnw("timeline_record_failed", "type", eventType, "error", err)
	}
}
