package services

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dia/backend/internal/core/ports"
	"github.com/dia/backend/internal/domain"
	"github.com/dia/backend/internal/infrastructure/logger"
)

func newTestTaskService(store *memStore, tags *memTagRepo, withIndex bool) ports.TaskService {
	log := logger.NewNop()
	var indexer *TaskIndexer
	if withIndex {
		indexer = NewTaskIndexer(keywordEmbedder{}, memIndex{store}, log)
	}
	cfg := TaskServiceConfig{
		Repository: memTaskRepo{store},
		Transactor: memTransactor{store},
		Indexer:    indexer,
		Logger:     log,
	}
	if tags != nil {
		cfg.Tags = tags
	}
	return NewTaskService(cfg)
}

func TestTaskServiceLifecycle(t *testing.T) {
	store := newMemStore()
	tags := newMemTagRepo()
	svc := newTestTaskService(store, tags, true)
	ctx := context.Background()

	task, err := svc.CreateTask(ctx, "u1", ports.CreateTaskInput{Title: "Read a book", StartTime: at(20, 0)})
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusCreated, task.Status)
	assert.Contains(t, store.vectors, task.ID)

	_, err = svc.GetTask(ctx, "u2", task.ID)
	assert.ErrorIs(t, err, ErrTaskNotFound)

	done := domain.TaskStatusCompleted
	updated, err := svc.UpdateTask(ctx, "u1", task.ID, domain.TaskDraft{Status: &done})
	require.NoError(t, err)
	assert.Equal(t, done, updated.Status)
	assert.Equal(t, "Read a book", updated.Title)
	assert.Equal(t, "completed", store.vectors[task.ID].Payload["status"])
	assert.Equal(t, "u1", store.vectors[task.ID].Payload["owner_id"])

	require.NoError(t, tags.Create(ctx, &domain.SmartTag{ID: "tag1", OwnerID: "u1", TaskID: task.ID, Name: "leisure"}))
	require.NoError(t, svc.DeleteTask(ctx, "u1", task.ID))
	assert.Empty(t, store.tasks)
	assert.Empty(t, store.vectors)
	assert.Empty(t, tags.tags)

	assert.ErrorIs(t, svc.DeleteTask(ctx, "u1", task.ID), ErrTaskNotFound)
}

func TestTaskServiceValidation(t *testing.T) {
	svc := newTestTaskService(newMemStore(), nil, false)
	ctx := context.Background()

	_, err := svc.CreateTask(ctx, "u1", ports.CreateTaskInput{StartTime: at(9, 0)})
	assert.ErrorIs(t, err, ErrTaskInvalidInput)

	end := at(8, 0)
	_, err = svc.CreateTask(ctx, "u1", ports.CreateTaskInput{Title: "x", StartTime: at(9, 0), EndTime: &end})
	assert.ErrorIs(t, err, ErrTaskInvalidInput)

	_, err = svc.ListTasks(ctx, "u1", domain.Filter{StartTime: &domain.TimeRange{}})
	assert.ErrorIs(t, err, ErrTaskInvalidInput)
}

func TestTaskServiceListByDateUsesCalendarDay(t *testing.T) {
	store := newMemStore()
	svc := newTestTaskService(store, nil, false)
	ctx := context.Background()
	msk := time.FixedZone("MSK", 3*60*60)

	for _, start := range []time.Time{
		time.Date(2025, 4, 1, 0, 0, 0, 0, msk),
		time.Date(2025, 4, 1, 23, 59, 0, 0, msk),
		time.Date(2025, 4, 2, 0, 0, 0, 0, msk),
		time.Date(2025, 3, 31, 23, 0, 0, 0, msk),
	} {
		_, err := svc.CreateTask(ctx, "u1", ports.CreateTaskInput{Title: "t", StartTime: start})
		require.NoError(t, err)
	}

	tasks, err := svc.ListTasksByDate(ctx, "u1", time.Date(2025, 4, 1, 15, 0, 0, 0, msk))
	require.NoError(t, err)
	assert.Len(t, tasks, 2)
}

func TestTaskServiceSearch(t *testing.T) {
	store := newMemStore()
	svc := newTestTaskService(store, nil, true)
	ctx := context.Background()

	for _, title := range []string{"yoga", "groceries", "gym"} {
		_, err := svc.CreateTask(ctx, "u1", ports.CreateTaskInput{Title: title, StartTime: at(10, 0)})
		require.NoError(t, err)
	}
	_, err := svc.CreateTask(ctx, "u2", ports.CreateTaskInput{Title: "yard work", StartTime: at(10, 0)})
	require.NoError(t, err)

	tasks, err := svc.SearchTasks(ctx, "u1", "yoga class", 1)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "yoga", tasks[0].Title)
	assert.Equal(t, "u1", tasks[0].OwnerID)

	_, err = newTestTaskService(store, nil, false).SearchTasks(ctx, "u1", "yoga", 3)
	assert.ErrorIs(t, err, ErrSearchUnavailable)
}

func TestTaskServiceIndexFailureRollsBackCreate(t *testing.T) {
	store := newMemStore()
	store.failOn = "index"
	svc := newTestTaskService(store, nil, true)

	_, err := svc.CreateTask(context.Background(), "u1", ports.CreateTaskInput{Title: "x", StartTime: at(9, 0)})
	require.Error(t, err)
	assert.Empty(t, store.tasks)
}

func TestTaskPayloadRoundTrip(t *testing.T) {
	desc := "bring shoes"
	mark := domain.TaskMarkSport
	end := at(19, 0)
	task := &domain.Task{ID: "t1", OwnerID: "u1", Title: "Run", Description: &desc, Mark: &mark,
		StartTime: at(18, 0), EndTime: &end, Status: domain.TaskStatusInProgress}

	got, err := taskFromPayload("t1", "u1", taskPayload(task))
	require.NoError(t, err)
	assert.Equal(t, task.Title, got.Title)
	assert.Equal(t, *task.Description, *got.Description)
	assert.Equal(t, *task.Mark, *got.Mark)
	assert.True(t, got.StartTime.Equal(task.StartTime))
	assert.True(t, got.EndTime.Equal(end))
	assert.Nil(t, got.Reminder)
	assert.Equal(t, task.Status, got.Status)
}

func TestTaskServiceEmbedsOutsideTransaction(t *testing.T) {
	store := newMemStore()
	inTx := &atomic.Bool{}
	embedder := &txAwareEmbedder{inTx: inTx}
	log := logger.NewNop()
	svc := NewTaskService(TaskServiceConfig{
		Repository: memTaskRepo{store},
		Transactor: txTracker{memTransactor{store}, inTx},
		Indexer:    NewTaskIndexer(embedder, memIndex{store}, log),
		Logger:     log,
	})
	ctx := context.Background()

	task, err := svc.CreateTask(ctx, "u1", ports.CreateTaskInput{Title: "Swim", StartTime: at(7, 0)})
	require.NoError(t, err)
	title := "Swim laps"
	_, err = svc.UpdateTask(ctx, "u1", task.ID, domain.TaskDraft{Title: &title})
	require.NoError(t, err)

	assert.Equal(t, int32(2), embedder.calls.Load())
	assert.Zero(t, embedder.inside.Load())
	assert.Equal(t, "Swim laps", store.vectors[task.ID].Payload["title"])
}

func TestTaskServiceEmbeddingFailureStoresNothing(t *testing.T) {
	store := newMemStore()
	log := logger.NewNop()
	svc := NewTaskService(TaskServiceConfig{
		Repository: memTaskRepo{store},
		Transactor: memTransactor{store},
		Indexer:    NewTaskIndexer(failingEmbedder{}, memIndex{store}, log),
		Logger:     log,
	})

	_, err := svc.CreateTask(context.Background(), "u1", ports.CreateTaskInput{Title: "Swim", StartTime: at(7, 0)})
	assert.ErrorIs(t, err, ports.ErrUpstreamUnavailable)
	assert.Empty(t, store.tasks)
}
