package postgres

import (
	"context"
	"database/sql"
	"errors"

	alarms "hmi-core/internal/alarms/domain"
	"hmi-core/internal/eventing"
)

// HistoryRepository persists append-only alarm history rows.
type HistoryRepository struct {
	db *sql.DB
}

// NewHistoryRepository constructs a history repository.
func NewHistoryRepository(db *sql.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Append inserts one history row and fills in the generated id.
func (r *HistoryRepository) Append(ctx context.Context, entry *alarms.HistoryEntry) error {
	if r == nil || r.db == nil {
		return errors.New("alarm history repository: nil db")
	}
	if entry == nil {
		return errors.New("alarm history repository: nil entry")
	}
	if entry.ID == "" {
		entry.ID = eventing.NewEventID()
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO alarm_history (
	id,
	definition_id,
	status,
	identifier,
	raw_value,
	priority,
	text_key,
	ts
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.ID,
		entry.DefinitionID,
		entry.Status,
		entry.Identifier,
		entry.RawValue,
		string(entry.Priority),
		entry.TextKey,
		entry.OccurredAt,
	)
	return err
}

// List returns history rows ordered by timestamp descending.
func (r *HistoryRepository) List(ctx context.Context, limit, offset int) ([]alarms.HistoryEntry, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alarm history repository: nil db")
	}
	limit, offset = alarms.ClampHistoryPage(limit, offset)

	rows, err := r.db.QueryContext(ctx, `
SELECT
	id,
	definition_id,
	status,
	identifier,
	raw_value,
	priority,
	text_key,
	ts
FROM alarm_history
ORDER BY ts DESC, id DESC
LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []alarms.HistoryEntry
	for rows.Next() {
		var (
			entry        alarms.HistoryEntry
			definitionID sql.NullString
			identifier   sql.NullString
			textKey      sql.NullString
			priority     sql.NullString
		)
		if err := rows.Scan(
			&entry.ID,
			&definitionID,
			&entry.Status,
			&identifier,
			&entry.RawValue,
			&priority,
			&textKey,
			&entry.OccurredAt,
		); err != nil {
			return nil, err
		}
		if definitionID.Valid {
			value := definitionID.String
			entry.DefinitionID = &value
		}
		entry.Identifier = identifier.String
		entry.Priority = alarms.Priority(priority.String)
		entry.TextKey = textKey.String
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
