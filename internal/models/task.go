package models

import "time"

// TaskStatus defines the lifecycle states of a tracked task.
type TaskStatus string

const (
	StatusActive    TaskStatus = "active"
	StatusSnoozed   TaskStatus = "snoozed"
	StatusResolved  TaskStatus = "resolved"
	StatusCancelled TaskStatus = "cancelled"
)

// Terminal reports whether the status permits no further transitions.
func (s TaskStatus) Terminal() bool {
	return s == StatusResolved || s == StatusCancelled
}

// Task represents a resolve task tracked in a chat. Rows are never deleted;
// resolved and cancelled tasks persist as history.
type Task struct {
	ID                string     `json:"id"`
	ChatID            int64      `json:"chat_id"`
	ChannelID         int64      `json:"channel_id"`
	TrackingMessageID *int64     `json:"tracking_message_id,omitempty"`
	AssigneeID        int64      `json:"assignee_id"`
	AssigneeName      string     `json:"assignee_name"`
	CreatorID         int64      `json:"creator_id"`
	Description       string     `json:"description"`
	Status            TaskStatus `json:"status"`
	IntervalMinutes   int        `json:"interval_minutes"`
	NextPingAt        time.Time  `json:"next_ping_at"`
	PingCount         int        `json:"ping_count"`
	MaxPings          int        `json:"max_pings"`
	EscalateChatID    *int64     `json:"escalate_chat_id,omitempty"`
	DueDate           *time.Time `json:"due_date,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	ResolvedAt        *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy        *int64     `json:"resolved_by,omitempty"`
}

// ShouldEscalate reports whether the next due ping should go out as an
// escalation instead of a plain reminder. The threshold compares the
// pre-increment ping count; a task with no escalation chat never escalates.
func (t *Task) ShouldEscalate() bool {
	return t.EscalateChatID != nil && t.PingCount >= t.MaxPings
}

// TaskFilter defines the available parameters for filtering tasks.
type TaskFilter struct {
	ChatID     *int64
	AssigneeID *int64
	Status     *TaskStatus
	// Open restricts the result to tasks the scheduler still cares about
	// (active or snoozed).
	Open bool
}
