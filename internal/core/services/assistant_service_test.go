package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dia/backend/internal/core/ports"
	"github.com/dia/backend/internal/domain"
	"github.com/dia/backend/internal/infrastructure/logger"
)

var testNow = time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)

type assistantHarness struct {
	llm      *scriptedLLM
	store    *memStore
	timeline *memTimeline
	settings *UserSettingService
	svc      ports.AssistantService
}

func newAssistantHarness(t *testing.T, transactional bool) *assistantHarness {
	t.Helper()
	log := logger.NewNop()
	h := &assistantHarness{
		llm:      newScriptedLLM(),
		store:    newMemStore(),
		timeline: &memTimeline{},
		settings: NewUserSettingService(newMemSettingRepo(), log, true),
	}
	h.svc = NewAssistantService(AssistantServiceConfig{
		LLM:                h.llm,
		Tasks:              memTaskRepo{h.store},
		Transactor:         memTransactor{h.store},
		Indexer:            NewTaskIndexer(keywordEmbedder{}, memIndex{h.store}, log),
		Users:              newMemUserRepo(domain.User{ID: "u1", Timezone: "UTC"}, domain.User{ID: "u2", Timezone: "UTC"}),
		Settings:           h.settings,
		Timeline:           h.timeline,
		Logger:             log,
		TransactionalApply: transactional,
		EnableLocks:        true,
		Clock:              func() time.Time { return testNow },
	})
	return h
}

func (h *assistantHarness) seed(task domain.Task) {
	if task.Status == "" {
		task.Status = domain.TaskStatusCreated
	}
	h.store.tasks[task.ID] = task
}

func (h *assistantHarness) scheduleTurn(filters, edit string) {
	h.llm.on("intent", `{"delegate_to": "schedule_agent"}`)
	h.llm.on("filters", filters)
	h.llm.on("edit", edit)
}

func at(hour, minute int) time.Time {
	return time.Date(2025, 4, 1, hour, minute, 0, 0, time.UTC)
}

func TestAssistantUnknownIntentTouchesNoStore(t *testing.T) {
	h := newAssistantHarness(t, true)
	h.llm.on("intent", `{"delegate_to": "none"}`)

	res, err := h.svc.Handle(context.Background(), "u1", "what's the weather like?")
	require.NoError(t, err)

	assert.Equal(t, domain.IntentUnknown, res.Intent)
	assert.Equal(t, "Unknown agent", res.Message)
	assert.Empty(t, res.Actions)
	assert.Equal(t, []string{"intent"}, h.llm.stages())
	assert.Zero(t, h.store.findCalls)
}

func TestAssistantUnknownIntentUsesOwnerFallback(t *testing.T) {
	h := newAssistantHarness(t, true)
	require.NoError(t, h.settings.UpdateSettings(context.Background(), "u1", map[string]interface{}{
		domain.SettingFallbackMessage: "I only manage your schedule.",
	}))
	h.llm.on("intent", `{"delegate_to": "weather_agent"}`)

	res, err := h.svc.Handle(context.Background(), "u1", "is it raining?")
	require.NoError(t, err)
	assert.Equal(t, "I only manage your schedule.", res.Message)
}

func TestAssistantCreateThenRead(t *testing.T) {
	h := newAssistantHarness(t, true)
	h.scheduleTurn(`{"filters": {}}`, `{"tasks": [{"action": "CREATED", "edited_task": {
		"id": "", "title": "Gym", "start_time": "2025-04-02T18:00:00", "end_time": "2025-04-02T19:30:00", "mark": "sport"}}]}`)

	res, err := h.svc.Handle(context.Background(), "u1", "add gym tomorrow at 18")
	require.NoError(t, err)
	require.Len(t, res.Actions, 1)

	created := res.Actions[0]
	assert.Equal(t, domain.ActionCreated, created.Action)
	assert.Equal(t, domain.ActionResultApplied, created.Result)
	require.NotEmpty(t, created.TaskID)
	assert.Contains(t, h.llm.lastCall("edit").UserMessage, `"tasks":null`)

	stored := h.store.tasks[created.TaskID]
	assert.Equal(t, "Gym", stored.Title)
	assert.Equal(t, "u1", stored.OwnerID)
	assert.Equal(t, domain.TaskStatusCreated, stored.Status)
	assert.True(t, stored.StartTime.Equal(time.Date(2025, 4, 2, 18, 0, 0, 0, time.UTC)))
	assert.Contains(t, h.store.vectors, created.TaskID)

	h.scheduleTurn(`{"filters": {"mark": "sport"}}`,
		fmt.Sprintf(`{"tasks": [{"action": "READ", "edited_task": {"id": %q}}]}`, created.TaskID))

	res, err = h.svc.Handle(context.Background(), "u1", "show my sport tasks")
	require.NoError(t, err)
	require.Len(t, res.Actions, 1)
	assert.Equal(t, domain.ActionRead, res.Actions[0].Action)
	require.NotNil(t, res.Actions[0].Task)
	assert.Equal(t, "Gym", res.Actions[0].Task.Title)

	var sent editRequest
	require.NoError(t, json.Unmarshal([]byte(h.llm.lastCall("edit").UserMessage), &sent))
	require.NotNil(t, sent.Tasks)
	require.Len(t, *sent.Tasks, 1)
	assert.Equal(t, "2025-04-02T18:00:00", *(*sent.Tasks)[0].StartTime)
	assert.Equal(t, "TODO", *(*sent.Tasks)[0].Status)
}

func TestAssistantMorningFilterNarrowsCandidates(t *testing.T) {
	h := newAssistantHarness(t, true)
	h.seed(domain.Task{ID: "t-morning", OwnerID: "u1", Title: "Standup", StartTime: at(7, 0)})
	h.seed(domain.Task{ID: "t-noon", OwnerID: "u1", Title: "Lunch", StartTime: at(13, 0)})
	h.seed(domain.Task{ID: "t-other", OwnerID: "u2", Title: "Run", StartTime: at(8, 0)})
	h.scheduleTurn(
		`{"filters": {"start_time": {"gte": "2025-04-01T06:00:00", "lte": "2025-04-01T12:00:00"}}}`,
		`{"tasks": [{"action": "READ", "edited_task": {"id": "t-morning"}}]}`)

	res, err := h.svc.Handle(context.Background(), "u1", "Show all my tasks this morning")
	require.NoError(t, err)

	msg := h.llm.lastCall("edit").UserMessage
	assert.Contains(t, msg, "t-morning")
	assert.NotContains(t, msg, "t-noon")
	assert.NotContains(t, msg, "t-other")
	require.Len(t, res.Actions, 1)
	assert.Equal(t, "Standup", res.Actions[0].Task.Title)
}

func TestAssistantPartialUpdateKeepsOtherFields(t *testing.T) {
	h := newAssistantHarness(t, true)
	desc := "weekly sync"
	mark := domain.TaskMarkWork
	h.seed(domain.Task{ID: "t1", OwnerID: "u1", Title: "Sync", Description: &desc, Mark: &mark, StartTime: at(10, 0)})
	h.scheduleTurn(`{"filters": {"start_time": "2025-04-01T10:00:00"}}`,
		`{"tasks": [{"action": "UPDATED", "edited_task": {"id": "t1", "start_time": "2025-04-01T15:00:00"}}]}`)

	res, err := h.svc.Handle(context.Background(), "u1", "move the sync to 3pm")
	require.NoError(t, err)
	require.Len(t, res.Actions, 1)
	assert.Equal(t, domain.ActionResultApplied, res.Actions[0].Result)

	stored := h.store.tasks["t1"]
	assert.True(t, stored.StartTime.Equal(at(15, 0)))
	assert.Equal(t, "Sync", stored.Title)
	require.NotNil(t, stored.Description)
	assert.Equal(t, "weekly sync", *stored.Description)
	require.NotNil(t, stored.Mark)
	assert.Equal(t, domain.TaskMarkWork, *stored.Mark)
}

func TestAssistantDeleteTwiceSkipsSecond(t *testing.T) {
	h := newAssistantHarness(t, true)
	h.seed(domain.Task{ID: "t1", OwnerID: "u1", Title: "Dentist", StartTime: at(11, 0)})
	h.store.vectors["t1"] = ports.IndexEntry{TaskID: "t1", OwnerID: "u1", Vector: []float32{0.1}}
	deleteEdit := `{"tasks": [{"action": "DELETED", "edited_task": "t1"}]}`

	h.scheduleTurn(`{"filters": {}}`, deleteEdit)
	res, err := h.svc.Handle(context.Background(), "u1", "cancel the dentist")
	require.NoError(t, err)
	assert.Equal(t, domain.ActionResultApplied, res.Actions[0].Result)
	assert.NotContains(t, h.store.tasks, "t1")
	assert.NotContains(t, h.store.vectors, "t1")

	h.scheduleTurn(`{"filters": {}}`, deleteEdit)
	res, err = h.svc.Handle(context.Background(), "u1", "cancel the dentist")
	require.NoError(t, err)
	assert.Equal(t, domain.ActionResultSkipped, res.Actions[0].Result)
	assert.Empty(t, res.Actions[0].Error)
}

func TestAssistantCannotTouchOtherOwnersTasks(t *testing.T) {
	h := newAssistantHarness(t, true)
	h.seed(domain.Task{ID: "t2", OwnerID: "u2", Title: "Private", StartTime: at(9, 0)})
	h.scheduleTurn(`{"filters": {}}`, `{"tasks": [
		{"action": "UPDATED", "edited_task": {"id": "t2", "title": "Hijacked"}},
		{"action": "DELETED", "edited_task": {"id": "t2"}},
		{"action": "READ", "edited_task": {"id": "t2"}}]}`)

	res, err := h.svc.Handle(context.Background(), "u1", "rename t2")
	require.NoError(t, err)
	require.Len(t, res.Actions, 3)
	for _, a := range res.Actions {
		assert.Equal(t, domain.ActionResultSkipped, a.Result, a.Action)
		assert.Nil(t, a.Task)
	}
	assert.Equal(t, "Private", h.store.tasks["t2"].Title)
}

func TestAssistantUnsupportedActionRejectsWholeResponse(t *testing.T) {
	h := newAssistantHarness(t, true)
	h.scheduleTurn(`{"filters": {}}`, `{"tasks": [
		{"action": "CREATED", "edited_task": {"title": "A", "start_time": "2025-04-01T10:00:00"}},
		{"action": "ARCHIVED", "edited_task": {"id": "x"}}]}`)

	_, err := h.svc.Handle(context.Background(), "u1", "archive stuff")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedAction)
	assert.Empty(t, h.store.tasks)
	assert.Contains(t, h.timeline.types(), domain.EventTypeAssistantFailed)
}

func TestAssistantTransactionalApplyRollsBack(t *testing.T) {
	h := newAssistantHarness(t, true)
	h.seed(domain.Task{ID: "t1", OwnerID: "u1", Title: "Call mom", StartTime: at(12, 0)})
	h.scheduleTurn(`{"filters": {}}`, `{"tasks": [
		{"action": "CREATED", "edited_task": {"title": "New", "start_time": "2025-04-01T10:00:00"}},
		{"action": "UPDATED", "edited_task": {"id": "t1", "end_time": "2025-04-01T08:00:00"}}]}`)

	_, err := h.svc.Handle(context.Background(), "u1", "do two things")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Len(t, h.store.tasks, 1)
	assert.Nil(t, h.store.tasks["t1"].EndTime)
}

func TestAssistantBestEffortApplyReportsPerAction(t *testing.T) {
	h := newAssistantHarness(t, false)
	h.seed(domain.Task{ID: "t1", OwnerID: "u1", Title: "Call mom", StartTime: at(12, 0)})
	h.scheduleTurn(`{"filters": {}}`, `{"tasks": [
		{"action": "CREATED", "edited_task": {"title": "New", "start_time": "2025-04-01T10:00:00"}},
		{"action": "UPDATED", "edited_task": {"id": "t1", "end_time": "2025-04-01T08:00:00"}}]}`)

	res, err := h.svc.Handle(context.Background(), "u1", "do two things")
	require.NoError(t, err)
	require.Len(t, res.Actions, 2)
	assert.Equal(t, domain.ActionResultApplied, res.Actions[0].Result)
	assert.Equal(t, domain.ActionResultFailed, res.Actions[1].Result)
	assert.NotEmpty(t, res.Actions[1].Error)
	assert.Len(t, h.store.tasks, 2)
}

func TestAssistantStageFailures(t *testing.T) {
	tests := []struct {
		name    string
		script  func(l *scriptedLLM)
		wantErr error
	}{
		{
			name:    "intent not json",
			script:  func(l *scriptedLLM) { l.on("intent", "schedule please") },
			wantErr: ErrMalformedResponse,
		},
		{
			name:    "intent missing field",
			script:  func(l *scriptedLLM) { l.on("intent", `{"agent": "schedule_agent"}`) },
			wantErr: ErrMalformedResponse,
		},
		{
			name: "filters timeout",
			script: func(l *scriptedLLM) {
				l.on("intent", `{"delegate_to": "schedule_agent"}`)
				l.fail("filters", fmt.Errorf("%w: deadline", ErrUpstreamTimeout))
			},
			wantErr: ErrUpstreamTimeout,
		},
		{
			name: "filters unknown key",
			script: func(l *scriptedLLM) {
				l.on("intent", `{"delegate_to": "schedule_agent"}`)
				l.on("filters", `{"filters": {"priority": "high"}}`)
			},
			wantErr: ErrFilterValidation,
		},
		{
			name: "edit not json",
			script: func(l *scriptedLLM) {
				l.on("intent", `{"delegate_to": "schedule_agent"}`)
				l.on("filters", `{"filters": {}}`)
				l.on("edit", `sure! here are your tasks`)
			},
			wantErr: ErrScheduleEditParse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newAssistantHarness(t, true)
			tt.script(h.llm)

			_, err := h.svc.Handle(context.Background(), "u1", "do something")
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			assert.Empty(t, h.store.tasks)
		})
	}
}

func TestAssistantRecordsTimeline(t *testing.T) {
	h := newAssistantHarness(t, true)
	h.scheduleTurn(`{"filters": {}}`, `{"tasks": []}`)

	ctx := WithRequestID(context.Background(), "req-42")
	res, err := h.svc.Handle(ctx, "u1", "anything today?")
	require.NoError(t, err)
	assert.Equal(t, "req-42", res.RequestID)

	events, err := h.timeline.ListByRequest(context.Background(), "u1", "req-42")
	require.NoError(t, err)
	types := make([]string, 0, len(events))
	for _, e := range events {
		types = append(types, e.Type)
	}
	assert.Equal(t, []string{
		domain.EventTypeAssistantClassify,
		domain.EventTypeAssistantFilters,
		domain.EventTypeAssistantFetch,
		domain.EventTypeAssistantEdit,
		domain.EventTypeAssistantDone,
	}, types)
}

func TestAssistantRejectsEmptyRequest(t *testing.T) {
	h := newAssistantHarness(t, true)
	_, err := h.svc.Handle(context.Background(), "u1", "   ")
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Empty(t, h.llm.stages())
}

// gatedLLM holds the first call of stage whose user message contains match
// until release is closed.
type gatedLLM struct {
	*scriptedLLM
	stage   string
	match   string
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (g *gatedLLM) Complete(ctx context.Context, req ports.CompletionRequest) (string, error) {
	if req.Stage == g.stage && strings.Contains(req.UserMessage, g.match) {
		g.once.Do(func() { close(g.entered) })
		<-g.release
	}
	return g.scriptedLLM.Complete(ctx, req)
}

func (l *scriptedLLM) count(stage string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, c := range l.calls {
		if c.Stage == stage {
			n++
		}
	}
	return n
}

func (m *memStore) finds() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.findCalls
}

func TestAssistantSerializesRequestsPerOwner(t *testing.T) {
	llm := newScriptedLLM()
	for i := 0; i < 3; i++ {
		llm.on("intent", `{"delegate_to": "schedule_agent"}`)
		llm.on("filters", `{"filters": {}}`)
		llm.on("edit", `{"tasks": []}`)
	}
	gate := &gatedLLM{scriptedLLM: llm, stage: "edit", match: "first", entered: make(chan struct{}), release: make(chan struct{})}
	store := newMemStore()
	log := logger.NewNop()
	svc := NewAssistantService(AssistantServiceConfig{
		LLM:                gate,
		Tasks:              memTaskRepo{store},
		Transactor:         memTransactor{store},
		Users:              newMemUserRepo(domain.User{ID: "u1"}, domain.User{ID: "u2"}),
		Timeline:           &memTimeline{},
		Logger:             log,
		TransactionalApply: true,
		EnableLocks:        true,
		Clock:              func() time.Time { return testNow },
	})
	ctx := context.Background()

	firstDone := make(chan error, 1)
	go func() {
		_, err := svc.Handle(ctx, "u1", "first request")
		firstDone <- err
	}()
	select {
	case <-gate.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first request never reached the edit stage")
	}
	assert.Equal(t, 1, store.finds())

	secondDone := make(chan error, 1)
	go func() {
		_, err := svc.Handle(ctx, "u1", "second request")
		secondDone <- err
	}()
	require.Eventually(t, func() bool { return llm.count("filters") == 2 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, store.finds(), "second request for the same owner must wait before fetching")

	otherDone := make(chan error, 1)
	go func() {
		_, err := svc.Handle(ctx, "u2", "third request")
		otherDone <- err
	}()
	select {
	case err := <-otherDone:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("another owner's request was blocked")
	}
	assert.Equal(t, 2, store.finds())

	close(gate.release)
	require.NoError(t, <-firstDone)
	require.NoError(t, <-secondDone)
	assert.Equal(t, 3, store.finds())

	assert.Zero(t, svc.(*assistantService).locks.size())
}

func TestAssistantLockTableIsPruned(t *testing.T) {
	h := newAssistantHarness(t, true)
	for _, owner := range []string{"u1", "u2"} {
		h.scheduleTurn(`{"filters": {}}`, `{"tasks": []}`)
		_, err := h.svc.Handle(context.Background(), owner, "anything today?")
		require.NoError(t, err)
	}
	assert.Zero(t, h.svc.(*assistantService).locks.size())
}

// txTracker marks the store as inside a transaction while fn runs.
type txTracker struct {
	memTransactor
	inTx *atomic.Bool
}

func (t txTracker) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	t.inTx.Store(true)
	defer t.inTx.Store(false)
	return t.memTransactor.WithinTransaction(ctx, fn)
}

// txAwareEmbedder counts embedding calls made inside a transaction.
type txAwareEmbedder struct {
	keywordEmbedder
	inTx   *atomic.Bool
	calls  atomic.Int32
	inside atomic.Int32
}

func (e *txAwareEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.calls.Add(1)
	if e.inTx.Load() {
		e.inside.Add(1)
	}
	return e.keywordEmbedder.Embed(ctx, text)
}

func TestAssistantEmbedsBeforeOpeningTransaction(t *testing.T) {
	llm := newScriptedLLM()
	store := newMemStore()
	store.tasks["t1"] = domain.Task{ID: "t1", OwnerID: "u1", Title: "Call mom", StartTime: at(12, 0), Status: domain.TaskStatusCreated}
	inTx := &atomic.Bool{}
	embedder := &txAwareEmbedder{inTx: inTx}
	log := logger.NewNop()
	svc := NewAssistantService(AssistantServiceConfig{
		LLM:                llm,
		Tasks:              memTaskRepo{store},
		Transactor:         txTracker{memTransactor{store}, inTx},
		Indexer:            NewTaskIndexer(embedder, memIndex{store}, log),
		Users:              newMemUserRepo(domain.User{ID: "u1"}),
		Timeline:           &memTimeline{},
		Logger:             log,
		TransactionalApply: true,
		Clock:              func() time.Time { return testNow },
	})
	llm.on("intent", `{"delegate_to": "schedule_agent"}`)
	llm.on("filters", `{"filters": {}}`)
	llm.on("edit", `{"tasks": [
		{"action": "CREATED", "edited_task": {"title": "Yoga", "start_time": "2025-04-01T10:00:00"}},
		{"action": "UPDATED", "edited_task": {"id": "t1", "title": "Call dad"}}]}`)

	res, err := svc.Handle(context.Background(), "u1", "add yoga and rename the call")
	require.NoError(t, err)
	require.Len(t, res.Actions, 2)

	assert.Equal(t, int32(2), embedder.calls.Load())
	assert.Zero(t, embedder.inside.Load())
	assert.Contains(t, store.vectors, res.Actions[0].TaskID)
	assert.Equal(t, "Call dad", store.vectors["t1"].Payload["title"])
}

func TestAssistantEmbeddingFailureAppliesNothing(t *testing.T) {
	h := newAssistantHarness(t, true)
	h.svc.(*assistantService).indexer = NewTaskIndexer(failingEmbedder{}, memIndex{h.store}, logger.NewNop())
	h.scheduleTurn(`{"filters": {}}`, `{"tasks": [
		{"action": "CREATED", "edited_task": {"title": "Yoga", "start_time": "2025-04-01T10:00:00"}}]}`)

	_, err := h.svc.Handle(context.Background(), "u1", "add yoga")
	require.ErrorIs(t, err, ports.ErrUpstreamUnavailable)
	assert.Empty(t, h.store.tasks)
}

type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, fmt.Errorf("%w: embedding: 429", ports.ErrUpstreamUnavailable)
}
