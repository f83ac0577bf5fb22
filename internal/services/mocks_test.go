package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"resolvebot/internal/models"
	"resolvebot/internal/repositories"
)

var (
	errListDue    = errors.New("due-set query failed")
	errSendFailed = errors.New("send failed")
)

// fakeTaskRepo is an in-memory TaskRepository with the same guarded-update
// semantics as the SQL implementation: every transition checks the current
// status under one lock, so concurrent attempts serialize exactly like the
// database's single-statement updates.
type fakeTaskRepo struct {
	mu    sync.Mutex
	tasks map[string]*models.Task

	failListDue bool
}

func newFakeTaskRepo() *fakeTaskRepo {
	return &fakeTaskRepo{tasks: make(map[string]*models.Task)}
}

func (r *fakeTaskRepo) put(t *models.Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *t
	r.tasks[t.ID] = &cp
}

func (r *fakeTaskRepo) get(id string) *models.Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tasks[id]; ok {
		cp := *t
		return &cp
	}
	return nil
}

func (r *fakeTaskRepo) Store(ctx context.Context, task *models.Task) error {
	r.put(task)
	return nil
}

func (r *fakeTaskRepo) FindByID(ctx context.Context, id string) (*models.Task, error) {
	if t := r.get(id); t != nil {
		return t, nil
	}
	return nil, repositories.ErrNotFound
}

func (r *fakeTaskRepo) FindAll(ctx context.Context, filter models.TaskFilter) ([]models.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Task
	for _, t := range r.tasks {
		if filter.ChatID != nil && t.ChatID != *filter.ChatID {
			continue
		}
		if filter.AssigneeID != nil && t.AssigneeID != *filter.AssigneeID {
			continue
		}
		if filter.Status != nil && t.Status != *filter.Status {
			continue
		}
		if filter.Open && t.Status.Terminal() {
			continue
		}
		out = append(out, *t)
	}
	return out, nil
}

func (r *fakeTaskRepo) SetTrackingMessage(ctx context.Context, id string, messageID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tasks[id]; ok {
		t.TrackingMessageID = &messageID
	}
	return nil
}

func (r *fakeTaskRepo) transition(id string, allowed []models.TaskStatus, mutate func(*models.Task)) (*models.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return nil, repositories.ErrConflict
	}
	permitted := false
	for _, s := range allowed {
		if t.Status == s {
			permitted = true
			break
		}
	}
	if !permitted {
		return nil, repositories.ErrConflict
	}
	mutate(t)
	cp := *t
	return &cp, nil
}

var openStatuses = []models.TaskStatus{models.StatusActive, models.StatusSnoozed}

func (r *fakeTaskRepo) Resolve(ctx context.Context, id string, by int64, at time.Time) (*models.Task, error) {
	return r.transition(id, openStatuses, func(t *models.Task) {
		t.Status = models.StatusResolved
		t.ResolvedAt = &at
		t.ResolvedBy = &by
	})
}

func (r *fakeTaskRepo) Cancel(ctx context.Context, id string) (*models.Task, error) {
	return r.transition(id, openStatuses, func(t *models.Task) {
		t.Status = models.StatusCancelled
	})
}

func (r *fakeTaskRepo) Snooze(ctx context.Context, id string, until time.Time) (*models.Task, error) {
	return r.transition(id, openStatuses, func(t *models.Task) {
		t.Status = models.StatusSnoozed
		t.NextPingAt = until
	})
}

func (r *fakeTaskRepo) Reassign(ctx context.Context, id string, assigneeID int64, assigneeName string, at time.Time) (*models.Task, error) {
	return r.transition(id, openStatuses, func(t *models.Task) {
		t.AssigneeID = assigneeID
		t.AssigneeName = assigneeName
		t.Status = models.StatusActive
		t.PingCount = 0
		t.NextPingAt = at
	})
}

func (r *fakeTaskRepo) MarkPinged(ctx context.Context, id string, next time.Time) (*models.Task, error) {
	return r.transition(id, []models.TaskStatus{models.StatusActive}, func(t *models.Task) {
		t.PingCount++
		t.NextPingAt = next
	})
}

func (r *fakeTaskRepo) PromoteExpiredSnoozes(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, t := range r.tasks {
		if t.Status == models.StatusSnoozed && !t.NextPingAt.After(now) {
			t.Status = models.StatusActive
			n++
		}
	}
	return n, nil
}

func (r *fakeTaskRepo) ListDue(ctx context.Context, now time.Time) ([]models.Task, error) {
	r.mu.Lock()
	if r.failListDue {
		r.mu.Unlock()
		return nil, errListDue
	}
	var out []models.Task
	for _, t := range r.tasks {
		if t.Status == models.StatusActive && !t.NextPingAt.After(now) {
			out = append(out, *t)
		}
	}
	r.mu.Unlock()
	return out, nil
}

// fakeNotifier records sends and can fail selected tasks, or run a hook
// before acknowledging a send (to model user actions racing the scheduler).
type fakeNotifier struct {
	mu          sync.Mutex
	reminders   []string
	escalations []string
	failIDs     map[string]bool
	beforeSend  func(t *models.Task)
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{failIDs: make(map[string]bool)}
}

func (n *fakeNotifier) SendReminder(ctx context.Context, t *models.Task) error {
	if n.beforeSend != nil {
		n.beforeSend(t)
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failIDs[t.ID] {
		return errSendFailed
	}
	n.reminders = append(n.reminders, t.ID)
	return nil
}

func (n *fakeNotifier) SendEscalation(ctx context.Context, t *models.Task) error {
	if n.beforeSend != nil {
		n.beforeSend(t)
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failIDs[t.ID] {
		return errSendFailed
	}
	n.escalations = append(n.escalations, t.ID)
	return nil
}

func (n *fakeNotifier) reminderCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.reminders)
}

func (n *fakeNotifier) escalationCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.escalations)
}
