package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"resolvebot/internal/models"
	"resolvebot/internal/repositories"
)

// MaxDescriptionLen bounds descriptions sourced from quoted messages.
const MaxDescriptionLen = 500

// Defaults are the injected lifecycle parameters; the engine never reads
// configuration itself.
type Defaults struct {
	IntervalMinutes int
	MaxPings        int
	// EscalateChatID of 0 leaves escalation disabled unless the creator
	// names a chat explicitly.
	EscalateChatID int64
}

// CreateTaskInput carries everything a create action may specify. Zero values
// fall back to the injected defaults.
type CreateTaskInput struct {
	ChatID          int64
	ChannelID       int64
	AssigneeID      int64
	AssigneeName    string
	CreatorID       int64
	Description     string
	Delay           time.Duration
	IntervalMinutes int
	MaxPings        int
	EscalateChatID  *int64
	DueDate         *time.Time
}

// TaskService is the task lifecycle engine. Every mutation is delegated to a
// guarded one-statement update in the repository, so two concurrent calls on
// the same task can never both win.
type TaskService interface {
	Create(ctx context.Context, input CreateTaskInput) (*models.Task, error)
	Get(ctx context.Context, id string) (*models.Task, error)
	List(ctx context.Context, filter models.TaskFilter) ([]models.Task, error)
	SetTrackingMessage(ctx context.Context, id string, messageID int64) error

	Resolve(ctx context.Context, id string, by int64) (*models.Task, error)
	Cancel(ctx context.Context, id string) (*models.Task, error)
	Snooze(ctx context.Context, id string, d time.Duration) (*models.Task, error)
	Reassign(ctx context.Context, id string, assigneeID int64, assigneeName string) (*models.Task, error)
}

type taskService struct {
	repo     repositories.TaskRepository
	defaults Defaults
}

// NewTaskService creates a new instance of TaskService.
func NewTaskService(repo repositories.TaskRepository, defaults Defaults) TaskService {
	return &taskService{repo: repo, defaults: defaults}
}

func (s *taskService) Create(ctx context.Context, input CreateTaskInput) (*models.Task, error) {
	if input.AssigneeID == 0 && input.AssigneeName == "" {
		return nil, fmt.Errorf("create task: assignee is required")
	}

	interval := input.IntervalMinutes
	if interval <= 0 {
		interval = s.defaults.IntervalMinutes
	}
	maxPings := input.MaxPings
	if maxPings <= 0 {
		maxPings = s.defaults.MaxPings
	}
	escalate := input.EscalateChatID
	if escalate == nil && s.defaults.EscalateChatID != 0 {
		id := s.defaults.EscalateChatID
		escalate = &id
	}
	channel := input.ChannelID
	if channel == 0 {
		channel = input.ChatID
	}

	now := time.Now()
	task := &models.Task{
		ID:              uuid.NewString(),
		ChatID:          input.ChatID,
		ChannelID:       channel,
		AssigneeID:      input.AssigneeID,
		AssigneeName:    input.AssigneeName,
		CreatorID:       input.CreatorID,
		Description:     truncate(input.Description, MaxDescriptionLen),
		Status:          models.StatusActive,
		IntervalMinutes: interval,
		NextPingAt:      now.Add(input.Delay),
		MaxPings:        maxPings,
		EscalateChatID:  escalate,
		DueDate:         input.DueDate,
		CreatedAt:       now,
	}

	if err := s.repo.Store(ctx, task); err != nil {
		return nil, fmt.Errorf("store task: %w", err)
	}
	return task, nil
}

func (s *taskService) Get(ctx context.Context, id string) (*models.Task, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *taskService) List(ctx context.Context, filter models.TaskFilter) ([]models.Task, error) {
	return s.repo.FindAll(ctx, filter)
}

// SetTrackingMessage records the message carrying the latest status card.
// Purely cosmetic continuity; failures never affect the lifecycle.
func (s *taskService) SetTrackingMessage(ctx context.Context, id string, messageID int64) error {
	return s.repo.SetTrackingMessage(ctx, id, messageID)
}

func (s *taskService) Resolve(ctx context.Context, id string, by int64) (*models.Task, error) {
	return s.repo.Resolve(ctx, id, by, time.Now())
}

func (s *taskService) Cancel(ctx context.Context, id string) (*models.Task, error) {
	return s.repo.Cancel(ctx, id)
}

func (s *taskService) Snooze(ctx context.Context, id string, d time.Duration) (*models.Task, error) {
	if d <= 0 {
		return nil, fmt.Errorf("snooze: duration must be positive")
	}
	return s.repo.Snooze(ctx, id, time.Now().Add(d))
}

// Reassign moves the task to a new assignee, forces it back to active and
// restarts the ping cycle. This is the only transition that resets the ping
// count. Terminal tasks stay terminal; reopening a cancelled task by handing
// it to someone else is a trap, not a feature.
func (s *taskService) Reassign(ctx context.Context, id string, assigneeID int64, assigneeName string) (*models.Task, error) {
	return s.repo.Reassign(ctx, id, assigneeID, assigneeName, time.Now())
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
