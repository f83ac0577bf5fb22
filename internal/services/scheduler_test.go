package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"resolvebot/internal/models"
)

func past() time.Time   { return time.Now().Add(-time.Minute) }
func future() time.Time { return time.Now().Add(time.Hour) }

func activeTask(id string, nextPing time.Time) *models.Task {
	return &models.Task{
		ID:              id,
		ChatID:          100,
		ChannelID:       100,
		AssigneeID:      7,
		Status:          models.StatusActive,
		IntervalMinutes: 30,
		NextPingAt:      nextPing,
		MaxPings:        5,
	}
}

func TestTick_PingsDueTask(t *testing.T) {
	repo := newFakeTaskRepo()
	notifier := newFakeNotifier()
	repo.put(activeTask("t1", past()))

	sched := NewScheduler(repo, notifier, nil, time.Minute)
	if err := sched.Tick(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if notifier.reminderCount() != 1 {
		t.Fatalf("reminders = %d, want 1", notifier.reminderCount())
	}
	after := repo.get("t1")
	if after.PingCount != 1 {
		t.Errorf("ping count = %d, want 1", after.PingCount)
	}
	if until := time.Until(after.NextPingAt); until < 29*time.Minute || until > 30*time.Minute {
		t.Errorf("next ping in %v, want ~30m", until)
	}
}

func TestTick_NotDueNotPinged(t *testing.T) {
	repo := newFakeTaskRepo()
	notifier := newFakeNotifier()
	repo.put(activeTask("t1", future()))

	sched := NewScheduler(repo, notifier, nil, time.Minute)
	if err := sched.Tick(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if notifier.reminderCount() != 0 {
		t.Errorf("reminders = %d, want 0", notifier.reminderCount())
	}
}

func TestTick_SnoozedTaskLeftAlone(t *testing.T) {
	repo := newFakeTaskRepo()
	notifier := newFakeNotifier()
	task := activeTask("t1", future())
	task.Status = models.StatusSnoozed
	repo.put(task)

	sched := NewScheduler(repo, notifier, nil, time.Minute)
	if err := sched.Tick(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	after := repo.get("t1")
	if after.Status != models.StatusSnoozed {
		t.Errorf("status = %s, want snoozed", after.Status)
	}
	if !after.NextPingAt.Equal(task.NextPingAt) {
		t.Error("next ping changed for a snoozed task inside its window")
	}
	if notifier.reminderCount() != 0 {
		t.Errorf("reminders = %d, want 0", notifier.reminderCount())
	}
}

func TestTick_PromotesExpiredSnoozeBeforePinging(t *testing.T) {
	repo := newFakeTaskRepo()
	notifier := newFakeNotifier()
	task := activeTask("t1", past())
	task.Status = models.StatusSnoozed
	repo.put(task)

	sched := NewScheduler(repo, notifier, nil, time.Minute)
	if err := sched.Tick(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	after := repo.get("t1")
	if after.Status != models.StatusActive {
		t.Errorf("status = %s, want active after promotion", after.Status)
	}
	// Promotion runs before the due-set query, so the same tick may ping.
	if notifier.reminderCount() != 1 {
		t.Errorf("reminders = %d, want 1", notifier.reminderCount())
	}
}

func TestTick_EscalationThreshold(t *testing.T) {
	escalateTo := int64(-900)
	cases := []struct {
		name            string
		pingCount       int
		escalateChat    *int64
		wantEscalations int
		wantReminders   int
	}{
		{"below threshold", 2, &escalateTo, 0, 1},
		{"at threshold", 5, &escalateTo, 1, 0},
		{"above threshold", 9, &escalateTo, 1, 0},
		{"no escalation chat", 9, nil, 0, 1},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			repo := newFakeTaskRepo()
			notifier := newFakeNotifier()
			task := activeTask("t1", past())
			task.PingCount = c.pingCount
			task.EscalateChatID = c.escalateChat
			repo.put(task)

			sched := NewScheduler(repo, notifier, nil, time.Minute)
			if err := sched.Tick(context.Background()); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := notifier.escalationCount(); got != c.wantEscalations {
				t.Errorf("escalations = %d, want %d", got, c.wantEscalations)
			}
			if got := notifier.reminderCount(); got != c.wantReminders {
				t.Errorf("reminders = %d, want %d", got, c.wantReminders)
			}
			if after := repo.get("t1"); after.PingCount != c.pingCount+1 {
				t.Errorf("ping count = %d, want %d", after.PingCount, c.pingCount+1)
			}
		})
	}
}

func TestTick_SendFailureIsolatedPerTask(t *testing.T) {
	repo := newFakeTaskRepo()
	notifier := newFakeNotifier()
	repo.put(activeTask("bad", past()))
	repo.put(activeTask("good", past()))
	notifier.failIDs["bad"] = true

	sched := NewScheduler(repo, notifier, nil, time.Minute)
	if err := sched.Tick(context.Background()); err != nil {
		t.Fatalf("tick should contain per-task failures, got %v", err)
	}

	if bad := repo.get("bad"); bad.PingCount != 0 {
		t.Errorf("failed task advanced: ping count = %d", bad.PingCount)
	}
	if good := repo.get("good"); good.PingCount != 1 {
		t.Errorf("healthy task not advanced: ping count = %d", good.PingCount)
	}
}

func TestTick_DueQueryFailureAbandonsTick(t *testing.T) {
	repo := newFakeTaskRepo()
	notifier := newFakeNotifier()
	repo.put(activeTask("t1", past()))
	repo.failListDue = true

	sched := NewScheduler(repo, notifier, nil, time.Minute)
	if err := sched.Tick(context.Background()); err == nil {
		t.Fatal("expected tick error")
	}
	if notifier.reminderCount() != 0 {
		t.Error("nothing should be sent when the due-set query fails")
	}
}

// A user resolving between the due-set query and the send: the send happens,
// but the guarded advance loses and the row keeps its resolved state intact.
func TestTick_ResolveBetweenQueryAndSend(t *testing.T) {
	repo := newFakeTaskRepo()
	notifier := newFakeNotifier()
	repo.put(activeTask("t1", past()))

	notifier.beforeSend = func(task *models.Task) {
		if _, err := repo.Resolve(context.Background(), task.ID, 42, time.Now()); err != nil {
			t.Errorf("resolve during send: %v", err)
		}
	}

	sched := NewScheduler(repo, notifier, nil, time.Minute)
	if err := sched.Tick(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	after := repo.get("t1")
	if after.Status != models.StatusResolved {
		t.Errorf("status = %s, want resolved", after.Status)
	}
	if after.PingCount != 0 {
		t.Errorf("ping count = %d, want 0 (advance must lose the race)", after.PingCount)
	}
	if after.ResolvedAt == nil {
		t.Error("resolution timestamp missing")
	}
}

// Concurrent resolve and scheduler tick: the final row must be one of the two
// legal serializations, never a mixture.
func TestConcurrentResolveAndTick(t *testing.T) {
	for i := 0; i < 50; i++ {
		repo := newFakeTaskRepo()
		notifier := newFakeNotifier()
		repo.put(activeTask("t1", past()))
		sched := NewScheduler(repo, notifier, nil, time.Minute)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = sched.Tick(context.Background())
		}()
		go func() {
			defer wg.Done()
			_, _ = repo.Resolve(context.Background(), "t1", 42, time.Now())
		}()
		wg.Wait()

		after := repo.get("t1")
		switch after.Status {
		case models.StatusResolved:
			if after.ResolvedAt == nil || after.ResolvedBy == nil {
				t.Fatalf("resolved without resolution fields: %+v", after)
			}
			if after.PingCount > 1 {
				t.Fatalf("ping count = %d after resolution", after.PingCount)
			}
		case models.StatusActive:
			if after.PingCount != 1 {
				t.Fatalf("active task not pinged exactly once: count=%d", after.PingCount)
			}
			if after.ResolvedAt != nil || after.ResolvedBy != nil {
				t.Fatalf("active task carries resolution fields: %+v", after)
			}
		default:
			t.Fatalf("unexpected status %s", after.Status)
		}
	}
}

// End to end: a freshly created task with no delay is due on the very first
// tick and starts its ping cycle at the configured interval.
func TestCreateThenFirstTick(t *testing.T) {
	repo := newFakeTaskRepo()
	notifier := newFakeNotifier()
	svc := NewTaskService(repo, Defaults{IntervalMinutes: 30, MaxPings: 5})

	task, err := svc.Create(context.Background(), CreateTaskInput{
		ChatID:          100,
		AssigneeID:      7,
		AssigneeName:    "ana",
		CreatorID:       1,
		Description:     "respond to the incident",
		IntervalMinutes: 30,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sched := NewScheduler(repo, notifier, nil, time.Minute)
	if err := sched.Tick(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if notifier.reminderCount() != 1 {
		t.Fatalf("reminders = %d, want 1", notifier.reminderCount())
	}
	after := repo.get(task.ID)
	if after.PingCount != 1 {
		t.Errorf("ping count = %d, want 1", after.PingCount)
	}
	if until := time.Until(after.NextPingAt); until < 29*time.Minute || until > 30*time.Minute {
		t.Errorf("next ping in %v, want ~30m", until)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	repo := newFakeTaskRepo()
	sched := NewScheduler(repo, newFakeNotifier(), nil, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	go sched.Run(ctx)
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-sched.Done():
	case <-time.After(time.Second):
		t.Fatal("scheduler did not drain after cancellation")
	}
}
