package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"resolvebot/internal/models"
)

// ErrNotFound is returned when a task id matches no row.
var ErrNotFound = errors.New("task not found")

// ErrConflict is returned when a guarded transition loses to a concurrent
// update: the row exists but its status no longer satisfies the precondition,
// or the row is gone. Callers surface it as "already completed or not found".
var ErrConflict = errors.New("task already completed or not found")

type TaskRepository interface {
	Store(ctx context.Context, task *models.Task) error
	FindByID(ctx context.Context, id string) (*models.Task, error)
	FindAll(ctx context.Context, filter models.TaskFilter) ([]models.Task, error)
	SetTrackingMessage(ctx context.Context, id string, messageID int64) error

	// Guarded transitions. Each is a single conditional UPDATE on the
	// status column; exactly one of two concurrent attempts can win.
	Resolve(ctx context.Context, id string, by int64, at time.Time) (*models.Task, error)
	Cancel(ctx context.Context, id string) (*models.Task, error)
	Snooze(ctx context.Context, id string, until time.Time) (*models.Task, error)
	Reassign(ctx context.Context, id string, assigneeID int64, assigneeName string, at time.Time) (*models.Task, error)
	MarkPinged(ctx context.Context, id string, next time.Time) (*models.Task, error)

	// Scheduler bulk operations.
	PromoteExpiredSnoozes(ctx context.Context, now time.Time) (int64, error)
	ListDue(ctx context.Context, now time.Time) ([]models.Task, error)
}

type taskRepository struct {
	db *sql.DB
}

func NewTaskRepository(db *sql.DB) TaskRepository {
	return &taskRepository{db: db}
}

const taskColumns = `id, chat_id, channel_id, tracking_message_id, assignee_id, assignee_name,
	creator_id, description, status, interval_minutes, next_ping_at, ping_count,
	max_pings, escalate_chat_id, due_date, created_at, resolved_at, resolved_by`

func (r *taskRepository) Store(ctx context.Context, task *models.Task) error {
	query := `
		INSERT INTO tasks (
			id, chat_id, channel_id, tracking_message_id, assignee_id, assignee_name,
			creator_id, description, status, interval_minutes, next_ping_at, ping_count,
			max_pings, escalate_chat_id, due_date, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`
	_, err := r.db.ExecContext(ctx, query,
		task.ID, task.ChatID, task.ChannelID, task.TrackingMessageID,
		task.AssigneeID, task.AssigneeName, task.CreatorID, task.Description,
		task.Status, task.IntervalMinutes, task.NextPingAt, task.PingCount,
		task.MaxPings, task.EscalateChatID, task.DueDate, task.CreatedAt,
	)
	return err
}

func (r *taskRepository) FindByID(ctx context.Context, id string) (*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`
	task, err := scanTask(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return task, nil
}

func (r *taskRepository) FindAll(ctx context.Context, filter models.TaskFilter) ([]models.Task, error) {
	baseQuery := `SELECT ` + taskColumns + ` FROM tasks`

	conditions := []string{}
	args := []interface{}{}
	argID := 1

	if filter.ChatID != nil {
		conditions = append(conditions, fmt.Sprintf("chat_id = $%d", argID))
		args = append(args, *filter.ChatID)
		argID++
	}
	if filter.AssigneeID != nil {
		conditions = append(conditions, fmt.Sprintf("assignee_id = $%d", argID))
		args = append(args, *filter.AssigneeID)
		argID++
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argID))
		args = append(args, *filter.Status)
		argID++
	}
	if filter.Open {
		conditions = append(conditions, fmt.Sprintf("status = ANY($%d)", argID))
		args = append(args, pq.Array([]string{string(models.StatusActive), string(models.StatusSnoozed)}))
		argID++
	}

	if len(conditions) > 0 {
		baseQuery += " WHERE " + strings.Join(conditions, " AND ")
	}
	baseQuery += " ORDER BY created_at DESC"

	rows, err := r.db.QueryContext(ctx, baseQuery, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTasks(rows)
}

func (r *taskRepository) SetTrackingMessage(ctx context.Context, id string, messageID int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE tasks SET tracking_message_id=$2 WHERE id=$1`, id, messageID)
	return err
}

func (r *taskRepository) Resolve(ctx context.Context, id string, by int64, at time.Time) (*models.Task, error) {
	return r.attemptTransition(ctx, id,
		[]models.TaskStatus{models.StatusActive, models.StatusSnoozed},
		`status='resolved', resolved_at=$3, resolved_by=$4`, at, by)
}

func (r *taskRepository) Cancel(ctx context.Context, id string) (*models.Task, error) {
	return r.attemptTransition(ctx, id,
		[]models.TaskStatus{models.StatusActive, models.StatusSnoozed},
		`status='cancelled'`)
}

func (r *taskRepository) Snooze(ctx context.Context, id string, until time.Time) (*models.Task, error) {
	return r.attemptTransition(ctx, id,
		[]models.TaskStatus{models.StatusActive, models.StatusSnoozed},
		`status='snoozed', next_ping_at=$3`, until)
}

func (r *taskRepository) Reassign(ctx context.Context, id string, assigneeID int64, assigneeName string, at time.Time) (*models.Task, error) {
	return r.attemptTransition(ctx, id,
		[]models.TaskStatus{models.StatusActive, models.StatusSnoozed},
		`assignee_id=$3, assignee_name=$4, status='active', ping_count=0, next_ping_at=$5`,
		assigneeID, assigneeName, at)
}

func (r *taskRepository) MarkPinged(ctx context.Context, id string, next time.Time) (*models.Task, error) {
	return r.attemptTransition(ctx, id,
		[]models.TaskStatus{models.StatusActive},
		`ping_count=ping_count+1, next_ping_at=$3`, next)
}

// attemptTransition applies a mutation iff the row's current status is in the
// allowed set, as one atomic conditional UPDATE. Placeholders in the set
// fragment start at $3. Zero rows updated means a concurrent transition won
// (or the id never existed) and the caller gets ErrConflict.
func (r *taskRepository) attemptTransition(ctx context.Context, id string, allowed []models.TaskStatus, set string, args ...interface{}) (*models.Task, error) {
	states := make([]string, len(allowed))
	for i, s := range allowed {
		states[i] = string(s)
	}
	query := fmt.Sprintf(`UPDATE tasks SET %s WHERE id = $1 AND status = ANY($2) RETURNING %s`,
		set, taskColumns)

	all := append([]interface{}{id, pq.Array(states)}, args...)
	task, err := scanTask(r.db.QueryRowContext(ctx, query, all...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrConflict
		}
		return nil, err
	}
	return task, nil
}

func (r *taskRepository) PromoteExpiredSnoozes(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE tasks SET status='active' WHERE status='snoozed' AND next_ping_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *taskRepository) ListDue(ctx context.Context, now time.Time) ([]models.Task, error) {
	query := `SELECT ` + taskColumns + `
		FROM tasks
		WHERE status = 'active' AND next_ping_at <= $1
		ORDER BY next_ping_at ASC`
	rows, err := r.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTasks(rows)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row rowScanner) (*models.Task, error) {
	t := &models.Task{}
	err := row.Scan(
		&t.ID, &t.ChatID, &t.ChannelID, &t.TrackingMessageID, &t.AssigneeID, &t.AssigneeName,
		&t.CreatorID, &t.Description, &t.Status, &t.IntervalMinutes, &t.NextPingAt, &t.PingCount,
		&t.MaxPings, &t.EscalateChatID, &t.DueDate, &t.CreatedAt, &t.ResolvedAt, &t.ResolvedBy,
	)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func collectTasks(rows *sql.Rows) ([]models.Task, error) {
	var tasks []models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}
