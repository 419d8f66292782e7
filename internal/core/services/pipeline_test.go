package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dia/backend/internal/domain"
	"github.com/dia/backend/internal/infrastructure/logger"
)

func TestIntentClassifierParsesFencedJSON(t *testing.T) {
	llm := newScriptedLLM().on("intent", "```json\n{\"delegate_to\": \"schedule_agent\"}\n```")
	c := NewIntentClassifier(llm, logger.NewNop())

	intent, err := c.Classify(context.Background(), "plan my day")
	require.NoError(t, err)
	assert.Equal(t, domain.IntentSchedule, intent)

	call := llm.lastCall("intent")
	assert.True(t, call.JSONMode)
	assert.Equal(t, intentPrompt, call.SystemPrompt)
	assert.Equal(t, "plan my day", call.UserMessage)
}

func TestFilterExtractor(t *testing.T) {
	msk := time.FixedZone("MSK", 3*60*60)
	now := time.Date(2025, 4, 1, 9, 0, 0, 0, msk)

	t.Run("null filters is empty", func(t *testing.T) {
		e := NewFilterExtractor(newScriptedLLM().on("filters", `{"filters": null}`), logger.NewNop())
		f, err := e.Extract(context.Background(), "everything", now)
		require.NoError(t, err)
		assert.True(t, f.IsEmpty())
	})

	t.Run("missing envelope is malformed", func(t *testing.T) {
		e := NewFilterExtractor(newScriptedLLM().on("filters", `{"start_time": "2025-04-01T10:00:00"}`), logger.NewNop())
		_, err := e.Extract(context.Background(), "x", now)
		assert.ErrorIs(t, err, ErrMalformedResponse)
	})

	t.Run("naive timestamps use the owner zone", func(t *testing.T) {
		e := NewFilterExtractor(newScriptedLLM().on("filters",
			`{"filters": {"start_time": {"gte": "2025-04-01T06:00:00", "lte": "2025-04-01T12:00:00"}, "mark": "Work", "status": "TODO"}}`),
			logger.NewNop())
		f, err := e.Extract(context.Background(), "work this morning", now)
		require.NoError(t, err)

		require.NotNil(t, f.StartTime)
		assert.True(t, f.StartTime.Gte.Equal(time.Date(2025, 4, 1, 3, 0, 0, 0, time.UTC)))
		assert.True(t, f.StartTime.Lte.Equal(time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)))
		assert.Equal(t, domain.TaskMarkWork, *f.Mark)
		assert.Equal(t, domain.TaskStatusCreated, *f.Status)
	})

	t.Run("single timestamp is an exact match", func(t *testing.T) {
		e := NewFilterExtractor(newScriptedLLM().on("filters", `{"filters": {"reminder": "2025-04-01T10:00:00Z"}}`), logger.NewNop())
		f, err := e.Extract(context.Background(), "x", now)
		require.NoError(t, err)
		require.NotNil(t, f.Reminder)
		assert.Equal(t, f.Reminder.Gte, f.Reminder.Lte)
	})

	t.Run("anchor carries the current date", func(t *testing.T) {
		llm := newScriptedLLM().on("filters", `{"filters": {}}`)
		_, err := NewFilterExtractor(llm, logger.NewNop()).Extract(context.Background(), "x", now)
		require.NoError(t, err)
		assert.Contains(t, llm.lastCall("filters").SystemPrompt, `"today":"2025-04-01"`)
		assert.Contains(t, llm.lastCall("filters").SystemPrompt, `"tomorrow":"2025-04-02"`)
	})

	invalid := map[string]string{
		"unknown mark":     `{"filters": {"mark": "chores"}}`,
		"bad timestamp":    `{"filters": {"start_time": "next tuesday"}}`,
		"unknown operator": `{"filters": {"end_time": {"gt": "2025-04-01T10:00:00"}}}`,
		"inverted range":   `{"filters": {"start_time": {"gte": "2025-04-02T00:00:00", "lte": "2025-04-01T00:00:00"}}}`,
		"empty range":      `{"filters": {"start_time": {}}}`,
		"not an object":    `{"filters": ["mark"]}`,
	}
	for name, body := range invalid {
		t.Run(name, func(t *testing.T) {
			e := NewFilterExtractor(newScriptedLLM().on("filters", body), logger.NewNop())
			_, err := e.Extract(context.Background(), "x", now)
			assert.ErrorIs(t, err, ErrFilterValidation)
		})
	}
}

func TestParseEditResponse(t *testing.T) {
	loc := time.UTC

	t.Run("bare array", func(t *testing.T) {
		actions, err := parseEditResponse([]byte(`[{"action": "read", "edited_task": {"id": "t1"}}]`), loc)
		require.NoError(t, err)
		require.Len(t, actions, 1)
		assert.Equal(t, domain.ActionRead, actions[0].Kind)
		assert.Equal(t, "t1", actions[0].TaskID)
	})

	t.Run("created ignores model id", func(t *testing.T) {
		actions, err := parseEditResponse([]byte(`{"tasks": [{"action": "CREATED", "edited_task": {
			"id": "made-up", "title": " Run ", "start_time": "2025-04-01T07:00:00", "end_time": "", "status": "IN_PROGRESS"}}]}`), loc)
		require.NoError(t, err)
		require.Len(t, actions, 1)
		assert.Empty(t, actions[0].TaskID)
		assert.Equal(t, "Run", *actions[0].Draft.Title)
		assert.Nil(t, actions[0].Draft.EndTime)
		assert.Equal(t, domain.TaskStatusInProgress, *actions[0].Draft.Status)
	})

	t.Run("empty list", func(t *testing.T) {
		actions, err := parseEditResponse([]byte(`{"tasks": []}`), loc)
		require.NoError(t, err)
		assert.Empty(t, actions)
	})

	failures := map[string]string{
		"missing tasks":       `{"result": []}`,
		"update without id":   `{"tasks": [{"action": "UPDATED", "edited_task": {"title": "x"}}]}`,
		"delete empty id":     `{"tasks": [{"action": "DELETED", "edited_task": ""}]}`,
		"created as string":   `{"tasks": [{"action": "CREATED", "edited_task": "Run"}]}`,
		"missing edited_task": `{"tasks": [{"action": "READ"}]}`,
		"bad timestamp":       `{"tasks": [{"action": "UPDATED", "edited_task": {"id": "t1", "start_time": "soon"}}]}`,
		"truncated":           `{"tasks": [{"action": "READ"`,
	}
	for name, body := range failures {
		t.Run(name, func(t *testing.T) {
			_, err := parseEditResponse([]byte(body), loc)
			assert.ErrorIs(t, err, ErrScheduleEditParse)
		})
	}

	t.Run("unknown action", func(t *testing.T) {
		_, err := parseEditResponse([]byte(`{"tasks": [{"action": "MOVED", "edited_task": {"id": "t1"}}]}`), loc)
		assert.ErrorIs(t, err, ErrUnsupportedAction)
		assert.ErrorIs(t, err, domain.ErrUnknownAction)
	})
}

func TestBuildTimeAnchorWeekBounds(t *testing.T) {
	// 2025-04-03 is a Thursday.
	anchor := buildTimeAnchor(time.Date(2025, 4, 3, 22, 30, 0, 0, time.UTC), time.UTC)
	assert.Contains(t, anchor, `"weekday":"Thursday"`)
	assert.Contains(t, anchor, `"this_week_start":"2025-03-31"`)
	assert.Contains(t, anchor, `"this_week_end":"2025-04-06"`)
	assert.Contains(t, anchor, `"next_week_start":"2025-04-07"`)
}
