package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dia/backend/internal/domain"
	"github.com/dia/backend/internal/infrastructure/logger"
)

type stubAssistant struct {
	release chan struct{}
	err     error
	seenID  string
}

func (s *stubAssistant) Handle(ctx context.Context, ownerID, request string) (*domain.AssistantResult, error) {
	if s.release != nil {
		<-s.release
	}
	s.seenID = RequestIDFrom(ctx)
	if s.err != nil {
		return nil, s.err
	}
	return &domain.AssistantResult{RequestID: s.seenID, Intent: domain.IntentSchedule, Actions: []domain.AppliedAction{}}, nil
}

func TestJobServiceCompletes(t *testing.T) {
	assistant := &stubAssistant{release: make(chan struct{})}
	jobs := NewJobService(assistant, logger.NewNop(), time.Hour)

	ctx, cancel := context.WithCancel(WithRequestID(context.Background(), "req-1"))
	job := jobs.Submit(ctx, "u1", "plan my week")
	cancel()
	assert.Equal(t, domain.JobStatusPending, job.Status)

	_, err := jobs.Get("u2", job.ID)
	assert.ErrorIs(t, err, ErrJobNotFound)

	close(assistant.release)
	jobs.Wait()

	got, err := jobs.Get("u1", job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, got.Status)
	require.NotNil(t, got.Result)
	assert.Equal(t, "req-1", got.Result.RequestID)
}

func TestJobServiceRecordsFailure(t *testing.T) {
	jobs := NewJobService(&stubAssistant{err: errors.New("llm down")}, logger.NewNop(), time.Hour)

	job := jobs.Submit(context.Background(), "u1", "plan")
	jobs.Wait()

	got, err := jobs.Get("u1", job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, got.Status)
	assert.Equal(t, "llm down", got.Error)
	assert.Nil(t, got.Result)
}

func TestJobServicePrunesFinishedJobs(t *testing.T) {
	jobs := NewJobService(&stubAssistant{}, logger.NewNop(), time.Minute)
	old := jobs.Submit(context.Background(), "u1", "first")
	jobs.Wait()

	jobs.mu.Lock()
	jobs.jobs[old.ID].UpdatedAt = time.Now().Add(-2 * time.Minute)
	jobs.mu.Unlock()

	jobs.Submit(context.Background(), "u1", "second")
	jobs.Wait()

	_, err := jobs.Get("u1", old.ID)
	assert.ErrorIs(t, err, ErrJobNotFound)
}
