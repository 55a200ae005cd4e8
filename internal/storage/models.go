package storage

import (
	"encoding/json"
	"time"
)

// ToolCall represents a record of a tool invocation
type ToolCall struct {
	ID        int64           `json:"id"`
	SessionID string          `json:"session_id"`
	ToolName  string          `json:"tool_name"`
	Arguments json.RawMessage `json:"arguments"`
	Result    string          `json:"result"`
	Error     string          `json:"error"`
	Duration  int64           `json:"duration_ms"`
	CalledAt  time.Time       `json:"called_at"`
}

// TaskFilter defines filter options for listing tasks
type TaskFilter struct {
	Subject        *string
	IncompleteOnly bool
	Limit          int
}

// ToolCallStats summarises the audit log.
type ToolCallStats struct {
	TotalCalls  int64 `json:"total_calls"`
	FailedCalls int64 `json:"failed_calls"`
}
