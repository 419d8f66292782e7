package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dia/backend/internal/core/ports"
	"github.com/dia/backend/internal/domain"
	"github.com/dia/backend/internal/infrastructure/logger"
)

const defaultJobRetention = time.Hour

// JobService runs assistant requests in the background and keeps their
// outcome in memory for polling.
type JobService struct {
	assistant ports.AssistantService
	logger    *logger.Logger
	retention time.Duration

	jobs map[string]*domain.Job
	mu   sync.RWMutex
	wg   sync.WaitGroup
}

func NewJobService(assistant ports.AssistantService, logger *logger.Logger, retention time.Duration) *JobService {
	if retention <= 0 {
		retention = defaultJobRetention
	}
	return &JobService{
		assistant: assistant,
		logger:    logger,
		retention: retention,
		jobs:      make(map[string]*domain.Job),
	}
}

// Submit registers a pending job and starts it. The job outlives ctx's
// cancellation but keeps its values, such as the request id.
func (s *JobService) Submit(ctx context.Context, ownerID, request string) *domain.Job {
	s.mu.Lock()
	s.pruneLocked(time.Now())

	now := time.Now()
	job := &domain.Job{
		ID:        uuid.New().String(),
		OwnerID:   ownerID,
		Request:   request,
		Status:    domain.JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.jobs[job.ID] = job
	jobCopy := *job
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(context.WithoutCancel(ctx), job.ID, ownerID, request)

	s.logger.Infow("job_submitted", "job_id", job.ID, "owner_id", ownerID)
	return &jobCopy
}

func (s *JobService) run(ctx context.Context, id, ownerID, request string) {
	defer s.wg.Done()
	s.update(id, func(j *domain.Job) { j.Status = domain.JobStatusRunning })

	result, err := s.assistant.Handle(ctx, ownerID, request)
	if err != nil {
		s.logger.Warnw("job_failed", "job_id", id, "error", err)
		s.update(id, func(j *domain.Job) {
			j.Status = domain.JobStatusFailed
			j.Error = err.Error()
		})
		return
	}
	s.update(id, func(j *domain.Job) {
		j.Status = domain.JobStatusCompleted
		j.Result = result
	})
	s.logger.Infow("job_completed", "job_id", id)
}

func (s *JobService) update(id string, fn func(j *domain.Job)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.jobs[id]
	if !exists {
		return
	}
	fn(job)
	job.UpdatedAt = time.Now()
}

func (s *JobService) Get(ownerID, id string) (*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, exists := s.jobs[id]
	if !exists || job.OwnerID != ownerID {
		return nil, ErrJobNotFound
	}

	// Return a copy to avoid race conditions
	jobCopy := *job
	return &jobCopy, nil
}

// Wait blocks until every submitted job has finished.
func (s *JobService) Wait() {
	s.wg.Wait()
}

func (s *JobService) pruneLocked(now time.Time) {
	for id, job := range s.jobs {
		finished := job.Status == domain.JobStatusCompleted || job.Status == domain.JobStatusFailed
		if finished && now.Sub(job.UpdatedAt) > s.retention {
			delete(s.jobs, id)
		}
	}
}
