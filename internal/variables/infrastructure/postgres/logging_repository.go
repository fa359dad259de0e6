package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	variables "hmi-core/internal/variables/domain"
)

// LoggingRepository persists per-topic recording switches.
type LoggingRepository struct {
	db *sql.DB
}

// NewLoggingRepository constructs a logging repository.
func NewLoggingRepository(db *sql.DB) *LoggingRepository {
	return &LoggingRepository{db: db}
}

// SetLoggingEnabled upserts the recording flag for one topic.
func (r *LoggingRepository) SetLoggingEnabled(ctx context.Context, topic string, enabled bool) error {
	if r == nil || r.db == nil {
		return errors.New("logging repository: nil db")
	}
	if topic == "" {
		return errors.New("logging repository: empty topic")
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO logging_topics (topic, enabled, updated_at)
VALUES ($1, $2, $3)
ON CONFLICT (topic)
DO UPDATE SET
	enabled = EXCLUDED.enabled,
	updated_at = EXCLUDED.updated_at`,
		topic, enabled, time.Now().UTC(),
	)
	return err
}

// List returns every logging topic ordered by name.
func (r *LoggingRepository) List(ctx context.Context) ([]variables.LoggingTopic, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("logging repository: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT topic, enabled, updated_at
FROM logging_topics
ORDER BY topic`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []variables.LoggingTopic
	for rows.Next() {
		var topic variables.LoggingTopic
		if err := rows.Scan(&topic.Topic, &topic.Enabled, &topic.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, topic)
	}
	return list, rows.Err()
}
