package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"resolvebot/internal/models"
	"resolvebot/internal/repositories"
)

// Notifier delivers task notifications to the chat platform.
type Notifier interface {
	SendReminder(ctx context.Context, t *models.Task) error
	SendEscalation(ctx context.Context, t *models.Task) error
}

// Scheduler is the periodic ping process. It keeps no state between ticks;
// correctness is purely a function of the persisted status and next_ping_at
// columns, so a restart (or a crashed tick) loses nothing.
type Scheduler struct {
	tasks  repositories.TaskRepository
	notify Notifier
	email  EmailService // optional, nil disables the escalation copy
	period time.Duration
	done   chan struct{}
}

func NewScheduler(tasks repositories.TaskRepository, notify Notifier, email EmailService, period time.Duration) *Scheduler {
	return &Scheduler{
		tasks:  tasks,
		notify: notify,
		email:  email,
		period: period,
		done:   make(chan struct{}),
	}
}

// Run ticks until ctx is cancelled. Tick failures are logged and retried on
// the next period; nothing crashes the loop.
func (s *Scheduler) Run(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.period)
	defer ticker.Stop()
	for {
		if err := s.Tick(ctx); err != nil {
			log.Error().Err(err).Msg("scheduler tick abandoned")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Done is the drain hook: it closes once Run has observed cancellation and
// finished its in-flight tick.
func (s *Scheduler) Done() <-chan struct{} {
	return s.done
}

// Tick runs one scheduler pass: promote expired snoozes, then ping every due
// task. Per-task failures are contained; an error return means the pass
// itself could not run and will be retried from scratch.
func (s *Scheduler) Tick(ctx context.Context) error {
	now := time.Now()

	promoted, err := s.tasks.PromoteExpiredSnoozes(ctx, now)
	if err != nil {
		return fmt.Errorf("promote snoozes: %w", err)
	}
	if promoted > 0 {
		log.Debug().Int64("count", promoted).Msg("promoted expired snoozes")
	}

	due, err := s.tasks.ListDue(ctx, now)
	if err != nil {
		return fmt.Errorf("list due tasks: %w", err)
	}

	for i := range due {
		s.ping(ctx, &due[i], now)
	}
	return nil
}

// ping sends the reminder or escalation for one due task and advances its
// ping state. The advance is guarded on status=active: when a user resolved
// the task between the due-set query and here, the guard fails and the row is
// left alone.
func (s *Scheduler) ping(ctx context.Context, t *models.Task, now time.Time) {
	escalated := t.ShouldEscalate()

	var err error
	if escalated {
		err = s.notify.SendEscalation(ctx, t)
	} else {
		err = s.notify.SendReminder(ctx, t)
	}
	if err != nil {
		log.Error().Err(err).Str("task_id", t.ID).Int64("channel_id", t.ChannelID).
			Bool("escalated", escalated).Msg("notification send failed, task not advanced")
		return
	}

	next := now.Add(time.Duration(t.IntervalMinutes) * time.Minute)
	if _, err := s.tasks.MarkPinged(ctx, t.ID, next); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			log.Debug().Str("task_id", t.ID).Msg("task transitioned under the scheduler, ping not recorded")
		} else {
			log.Error().Err(err).Str("task_id", t.ID).Msg("advancing ping state failed")
		}
		return
	}

	if escalated && s.email != nil {
		if err := s.email.SendEscalationEmail(t); err != nil {
			log.Error().Err(err).Str("task_id", t.ID).Msg("escalation email failed")
		}
	}
}
