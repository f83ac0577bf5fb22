package repositories

import (
	"context"
	"database/sql"
)

// The partial index keeps the scheduler's due-set query cheap as resolved and
// cancelled history accumulates.
const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	id                  TEXT PRIMARY KEY,
	chat_id             BIGINT NOT NULL,
	channel_id          BIGINT NOT NULL,
	tracking_message_id BIGINT,
	assignee_id         BIGINT NOT NULL,
	assignee_name       TEXT NOT NULL DEFAULT '',
	creator_id          BIGINT NOT NULL,
	description         TEXT NOT NULL,
	status              TEXT NOT NULL,
	interval_minutes    INT NOT NULL,
	next_ping_at        TIMESTAMPTZ NOT NULL,
	ping_count          INT NOT NULL DEFAULT 0,
	max_pings           INT NOT NULL,
	escalate_chat_id    BIGINT,
	due_date            TIMESTAMPTZ,
	created_at          TIMESTAMPTZ NOT NULL,
	resolved_at         TIMESTAMPTZ,
	resolved_by         BIGINT
);

CREATE INDEX IF NOT EXISTS idx_tasks_next_ping
	ON tasks (next_ping_at)
	WHERE status IN ('active', 'snoozed');
`

// Migrate applies the task schema. Statements are idempotent, so running it
// against an existing database is safe.
func Migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, schema)
	return err
}
