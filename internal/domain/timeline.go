package domain

// Assistant timeline event types
const (
	EventTypeAssistantClassify = "ASSISTANT_CLASSIFY"
	EventTypeAssistantFilters  = "ASSISTANT_FILTERS"
	EventTypeAssistantFetch    = "ASSISTANT_FETCH"
	EventTypeAssistantEdit     = "ASSISTANT_EDIT"
	EventTypeAssistantApply    = "ASSISTANT_APPLY"
	EventTypeAssistantDone     = "ASSISTANT_DONE"
	EventTypeAssistantFailed   = "ASSISTANT_FAILED"
)
