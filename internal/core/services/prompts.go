package services

import (
	"encoding/json"
	"time"
)

const intentPrompt = `You route requests for a personal schedule assistant.
Decide which agent must handle the user's message.

Agents:
- "schedule_agent": anything about the user's tasks, plans, calendar, reminders or time management
  (create, move, reschedule, change, complete, delete, list or show tasks).

If no agent fits, answer with "none".

Reply with JSON only, no explanations:
{"delegate_to": "<agent name>"}`

const filterPrompt = `You turn a user's request into filters used to find their tasks in a database.

Rules:
- Use only the fields and formats from the schema below. Never add other keys, never produce commands, never explain.
- Drop any part of the request that is unclear instead of guessing.
- Resolve relative dates ("tomorrow", "monday", "this weekend") against the current time given below.
  When the request names no date, use the current date.
- When the user asks to move tasks "to X", search for the tasks that are NOT at X yet, so they can be moved there.
- Timestamps are local wall-clock time in the user's timezone, format YYYY-MM-DDTHH:MM:SS, without offset.
- Morning is 06:00-12:00, afternoon is 12:00-18:00, evening is 18:00-23:59.
- mark must be one of: "call", "work", "rest", "sport", "projects".
- status must be one of: "TODO", "IN_PROGRESS", "DONE", "CANCELLED".
- If the request needs no filtering at all, answer {"filters": {}}.

Schema of "filters":
{
  "start_time": "<timestamp>" | {"gte": "<timestamp>", "lte": "<timestamp>"},
  "end_time":   "<timestamp>" | {"gte": "<timestamp>", "lte": "<timestamp>"},
  "reminder":   "<timestamp>" | {"gte": "<timestamp>", "lte": "<timestamp>"},
  "mark":       "call" | "work" | "rest" | "sport" | "projects",
  "status":     "TODO" | "IN_PROGRESS" | "DONE" | "CANCELLED"
}
Every field is optional. Inside a range either bound may be omitted.

Example (current date 2025-04-01):
Input: "Show all my tasks this morning"
Answer:
{"filters": {"start_time": {"gte": "2025-04-01T06:00:00", "lte": "2025-04-01T12:00:00"}}}

Current time:
`

const editPrompt = `You are an assistant that edits a user's list of tasks.
You receive the user's request describing how their schedule should change, and the tasks it concerns.
Change the tasks according to the request and return the list of actions you performed.

Input:
{"user_request": "...", "tasks": [ ... ] | null}

Every task has exactly these fields:
{
  "id": "string",
  "title": "string",
  "description": "string | null",
  "start_time": "YYYY-MM-DDTHH:MM:SS",
  "end_time": "YYYY-MM-DDTHH:MM:SS | null",
  "reminder": "YYYY-MM-DDTHH:MM:SS | null",
  "mark": "call | work | rest | sport | projects | null",
  "status": "TODO | IN_PROGRESS | DONE | CANCELLED"
}

Output, JSON only:
{"tasks": [{"action": "CREATED" | "UPDATED" | "DELETED" | "READ", "edited_task": { ...task... }}]}

Rules:
- CREATED: a new task, its id is "".
- UPDATED: return the changed task with its existing id unchanged. Fields you do not change may be omitted.
- DELETED: return the task to delete with its id, unchanged.
- READ: return the task exactly as you received it, unchanged.
- If tasks is null and the user wants a new task, use CREATED.
- When the user only wants to see tasks, return READ for each matching task.
- Timestamps are local wall-clock time in the user's timezone.
- No text outside the JSON.

Current time:
`

const draftPrompt = `Create one task from the user's message.
Always plan relative to the current time given below and never schedule in the past.
Write title and description in the language of the user's message.

Reply with JSON only:
{
  "title": "string",
  "description": "string | null",
  "start_time": "YYYY-MM-DDTHH:MM:SS",
  "end_time": "YYYY-MM-DDTHH:MM:SS | null",
  "reminder": "YYYY-MM-DDTHH:MM:SS | null",
  "mark": "call | work | rest | sport | projects | null"
}

Current time:
`

// timeAnchor gives the model concrete dates so relative expressions resolve
// against the owner's clock.
type timeAnchor struct {
	Now           string `json:"now"`
	Weekday       string `json:"weekday"`
	Timezone      string `json:"timezone"`
	Today         string `json:"today"`
	Tomorrow      string `json:"tomorrow"`
	ThisWeekStart string `json:"this_week_start"`
	ThisWeekEnd   string `json:"this_week_end"`
	NextWeekStart string `json:"next_week_start"`
	NextWeekEnd   string `json:"next_week_end"`
}

const (
	localLayout = "2006-01-02T15:04:05"
	dateLayout  = "2006-01-02"
)

func buildTimeAnchor(now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	now = now.In(loc)
	daysSinceMonday := (int(now.Weekday()) + 6) % 7
	monday := time.Date(now.Year(), now.Month(), now.Day()-daysSinceMonday, 0, 0, 0, 0, loc)

	anchor := timeAnchor{
		Now:           now.Format(localLayout),
		Weekday:       now.Weekday().String(),
		Timezone:      loc.String(),
		Today:         now.Format(dateLayout),
		Tomorrow:      now.AddDate(0, 0, 1).Format(dateLayout),
		ThisWeekStart: monday.Format(dateLayout),
		ThisWeekEnd:   monday.AddDate(0, 0, 6).Format(dateLayout),
		NextWeekStart: monday.AddDate(0, 0, 7).Format(dateLayout),
		NextWeekEnd:   monday.AddDate(0, 0, 13).Format(dateLayout),
	}
	out, _ := json.Marshal(anchor)
	return string(out)
}
