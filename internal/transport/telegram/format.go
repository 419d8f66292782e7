package telegram

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dia/backend/internal/core/ports"
	"github.com/dia/backend/internal/domain"
)

const timeLayout = "Mon 02 Jan 15:04"

func formatResult(r *domain.AssistantResult, loc *time.Location) string {
	if r.Intent != domain.IntentSchedule {
		return r.Message
	}
	if len(r.Actions) == 0 {
		return "Nothing to change."
	}

	var sb strings.Builder
	for i, a := range r.Actions {
		if i > 0 {
			sb.WriteString("\n")
		}
		switch a.Result {
		case domain.ActionResultFailed:
			fmt.Fprintf(&sb, "Failed to %s: %s", verb(a.Action), a.Error)
			continue
		case domain.ActionResultSkipped:
			fmt.Fprintf(&sb, "Skipped %s: task not found", verb(a.Action))
			continue
		}
		switch a.Action {
		case domain.ActionCreated:
			sb.WriteString("Created: ")
		case domain.ActionUpdated:
			sb.WriteString("Updated: ")
		case domain.ActionDeleted:
			sb.WriteString("Deleted task")
			continue
		}
		if a.Task != nil {
			sb.WriteString(formatTask(a.Task, loc))
		}
	}
	return sb.String()
}

func formatTaskList(tasks []domain.Task, loc *time.Location) string {
	if len(tasks) == 0 {
		return "No tasks for today."
	}
	lines := make([]string, 0, len(tasks))
	for i := range tasks {
		lines = append(lines, "• "+formatTask(&tasks[i], loc))
	}
	return strings.Join(lines, "\n")
}

func formatTask(t *domain.Task, loc *time.Location) string {
	var sb strings.Builder
	sb.WriteString(t.StartTime.In(loc).Format(timeLayout))
	if t.EndTime != nil {
		sb.WriteString("-" + t.EndTime.In(loc).Format("15:04"))
	}
	sb.WriteString(" " + t.Title)
	if t.Mark != nil {
		fmt.Fprintf(&sb, " [%s]", *t.Mark)
	}
	if t.Status != domain.TaskStatusCreated {
		fmt.Fprintf(&sb, " (%s)", t.Status)
	}
	return sb.String()
}

var verbs = map[domain.ActionKind]string{
	domain.ActionCreated: "create",
	domain.ActionUpdated: "update",
	domain.ActionDeleted: "delete",
	domain.ActionRead:    "read",
}

func verb(kind domain.ActionKind) string {
	if v, ok := verbs[kind]; ok {
		return v
	}
	return strings.ToLower(string(kind))
}

func errorReply(err error) string {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return "I could not understand that request."
	case errors.Is(err, ports.ErrUpstreamTimeout):
		return "The assistant took too long to answer, please try again."
	case errors.Is(err, ports.ErrUpstreamUnavailable):
		return "The assistant is unavailable right now."
	}
	return "Something went wrong, please try again later."
}
