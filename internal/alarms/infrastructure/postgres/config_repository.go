package postgres

import (
	"context"
	"database/sql"
	"errors"

	alarms "hmi-core/internal/alarms/domain"
)

// ConfigRepository loads alarm sources and definitions from Postgres.
type ConfigRepository struct {
	db *sql.DB
}

// NewConfigRepository constructs a config repository.
func NewConfigRepository(db *sql.DB) *ConfigRepository {
	return &ConfigRepository{db: db}
}

// ListSources returns every alarm source with its enabled definitions
// keyed by bit number.
func (r *ConfigRepository) ListSources(ctx context.Context) ([]alarms.Source, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alarm config repository: nil db")
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT
	c.id,
	c.identifier,
	d.id,
	d.bit_number,
	d.text_key,
	d.priority,
	d.enabled
FROM alarm_configs c
JOIN alarm_definitions d ON d.config_id = c.id
WHERE d.enabled
ORDER BY c.identifier, d.bit_number`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byIdentifier := make(map[string]*alarms.Source)
	var order []string
	for rows.Next() {
		var (
			configID   string
			identifier string
			def        alarms.Definition
		)
		if err := rows.Scan(
			&configID,
			&identifier,
			&def.ID,
			&def.BitNumber,
			&def.TextKey,
			&def.Priority,
			&def.Enabled,
		); err != nil {
			return nil, err
		}
		def.ConfigID = configID
		if err := def.Validate(); err != nil {
			return nil, err
		}
		source, ok := byIdentifier[identifier]
		if !ok {
			source = &alarms.Source{
				Identifier:  identifier,
				Definitions: make(map[int]alarms.Definition),
			}
			byIdentifier[identifier] = source
			order = append(order, identifier)
		}
		source.Definitions[def.BitNumber] = def
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sources := make([]alarms.Source, 0, len(order))
	for _, identifier := range order {
		sources = append(sources, *byIdentifier[identifier])
	}
	return sources, nil
}
