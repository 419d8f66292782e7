package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dia/backend/internal/core/ports"
	"github.com/dia/backend/internal/domain"
	"github.com/dia/backend/internal/infrastructure/logger"
)

var ErrSearchUnavailable = errors.New("search: semantic index is not configured")

// TaskIndexer mirrors tasks into the semantic index. A nil *TaskIndexer is
// valid and does nothing, so deployments without embeddings keep working.
type TaskIndexer struct {
	embedder ports.Embedder
	index    ports.SemanticIndex
	logger   *logger.Logger
}

func NewTaskIndexer(embedder ports.Embedder, index ports.SemanticIndex, logger *logger.Logger) *TaskIndexer {
	if embedder == nil || index == nil {
		return nil
	}
	return &TaskIndexer{embedder: embedder, index: index, logger: logger}
}

// Vectors holds embeddings keyed by the text they were computed from.
type Vectors map[string][]float32

// Embed computes the embeddings of tasks up front so a later UpsertWith can
// write them without calling the embedding provider.
func (x *TaskIndexer) Embed(ctx context.Context, tasks ...*domain.Task) (Vectors, error) {
	if x == nil || len(tasks) == 0 {
		return nil, nil
	}
	vecs := make(Vectors, len(tasks))
	for _, task := range tasks {
		text := embeddingText(task)
		if _, ok := vecs[text]; ok {
			continue
		}
		vec, err := x.embedder.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed task %s: %w", task.ID, err)
		}
		vecs[text] = vec
	}
	return vecs, nil
}

// UpsertWith indexes task, reusing a vector from vecs when one was computed
// for the task's current text.
func (x *TaskIndexer) UpsertWith(ctx context.Context, task *domain.Task, vecs Vectors) error {
	if x == nil {
		return nil
	}
	text := embeddingText(task)
	vec, ok := vecs[text]
	if !ok {
		var err error
		if vec, err = x.embedder.Embed(ctx, text); err != nil {
			return fmt.Errorf("embed task %s: %w", task.ID, err)
		}
	}
	err := x.index.Upsert(ctx, ports.IndexEntry{
		TaskID:  task.ID,
		OwnerID: task.OwnerID,
		Vector:  vec,
		Payload: taskPayload(task),
	})
	if err != nil {
		return fmt.Errorf("index task %s: %w", task.ID, err)
	}
	return nil
}

func (x *TaskIndexer) Delete(ctx context.Context, taskID string) error {
	if x == nil {
		return nil
	}
	if err := x.index.Delete(ctx, taskID); err != nil {
		return fmt.Errorf("unindex task %s: %w", taskID, err)
	}
	return nil
}

// Search returns the owner's tasks closest to query, best match first.
func (x *TaskIndexer) Search(ctx context.Context, ownerID, query string, topK int) ([]domain.Task, error) {
	if x == nil {
		return nil, ErrSearchUnavailable
	}
	vec, err := x.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := x.index.Search(ctx, ownerID, vec, topK)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}

	tasks := make([]domain.Task, 0, len(hits))
	for _, hit := range hits {
		task, err := taskFromPayload(hit.TaskID, ownerID, hit.Payload)
		if err != nil {
			x.logger.Warnw("index_payload_invalid", "task_id", hit.TaskID, "error", err)
			continue
		}
		tasks = append(tasks, *task)
	}
	return tasks, nil
}

func embeddingText(t *domain.Task) string {
	parts := []string{t.Title}
	if t.Description != nil && *t.Description != "" {
		parts = append(parts, *t.Description)
	}
	if t.Mark != nil {
		parts = append(parts, string(*t.Mark))
	}
	return strings.Join(parts, "\n")
}

func taskPayload(t *domain.Task) domain.JSONB {
	p := domain.JSONB{
		"owner_id":   t.OwnerID,
		"title":      t.Title,
		"start_time": t.StartTime.UTC().Format(time.RFC3339Nano),
		"status":     string(t.Status),
	}
	if t.Description != nil {
		p["description"] = *t.Description
	}
	if t.EndTime != nil {
		p["end_time"] = t.EndTime.UTC().Format(time.RFC3339Nano)
	}
	if t.Reminder != nil {
		p["reminder"] = t.Reminder.UTC().Format(time.RFC3339Nano)
	}
	if t.Mark != nil {
		p["mark"] = string(*t.Mark)
	}
	return p
}

func taskFromPayload(id, ownerID string, p domain.JSONB) (*domain.Task, error) {
	str := func(key string) (string, bool) {
		v, ok := p[key].(string)
		return v, ok
	}
	stamp := func(key string) (*time.Time, error) {
		v, ok := str(key)
		if !ok {
			return nil, nil
		}
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		return &t, nil
	}

	task := &domain.Task{ID: id, OwnerID: ownerID}
	task.Title, _ = str("title")
	if desc, ok := str("description"); ok {
		task.Description = &desc
	}
	start, err := stamp("start_time")
	if err != nil {
		return nil, err
	}
	if start != nil {
		task.StartTime = *start
	}
	if task.EndTime, err = stamp("end_time"); err != nil {
		return nil, err
	}
	if task.Reminder, err = stamp("reminder"); err != nil {
		return nil, err
	}
	if mark, ok := str("mark"); ok {
		m := domain.TaskMark(mark)
		task.Mark = &m
	}
	status, _ := str("status")
	task.Status = domain.TaskStatus(status)
	return task, nil
}
