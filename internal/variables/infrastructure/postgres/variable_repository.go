package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	variables "hmi-core/internal/variables/domain"
)

// VariableRepository persists named UI state variables.
type VariableRepository struct {
	db *sql.DB
}

// NewVariableRepository constructs a variable repository.
func NewVariableRepository(db *sql.DB) *VariableRepository {
	return &VariableRepository{db: db}
}

// GetValues returns the values of the named variables in one query.
// Unknown names are simply absent from the result.
func (r *VariableRepository) GetValues(ctx context.Context, names []string) (map[string]string, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("variable repository: nil db")
	}
	values := make(map[string]string, len(names))
	if len(names) == 0 {
		return values, nil
	}

	query := `SELECT name, value FROM variables WHERE name IN (`
	args := make([]any, 0, len(names))
	for i, name := range names {
		if i > 0 {
			query += ", "
		}
		query += fmt.Sprintf("$%d", i+1)
		args = append(args, name)
	}
	query += ")"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, err
		}
		values[name] = value
	}
	return values, rows.Err()
}

// SetValue upserts a variable value.
func (r *VariableRepository) SetValue(ctx context.Context, name, value string) error {
	if r == nil || r.db == nil {
		return errors.New("variable repository: nil db")
	}
	if name == "" {
		return errors.New("variable repository: empty name")
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO variables (name, value, visible, updated_at)
VALUES ($1, $2, TRUE, $3)
ON CONFLICT (name)
DO UPDATE SET
	value = EXCLUDED.value,
	updated_at = EXCLUDED.updated_at`,
		name, value, time.Now().UTC(),
	)
	return err
}

// SetVisibility upserts a variable's visibility flag.
func (r *VariableRepository) SetVisibility(ctx context.Context, name string, visible bool) error {
	if r == nil || r.db == nil {
		return errors.New("variable repository: nil db")
	}
	if name == "" {
		return errors.New("variable repository: empty name")
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO variables (name, value, visible, updated_at)
VALUES ($1, '', $2, $3)
ON CONFLICT (name)
DO UPDATE SET
	visible = EXCLUDED.visible,
	updated_at = EXCLUDED.updated_at`,
		name, visible, time.Now().UTC(),
	)
	return err
}

// List returns every variable ordered by name.
func (r *VariableRepository) List(ctx context.Context) ([]variables.Variable, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("variable repository: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT name, value, visible, updated_at
FROM variables
ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []variables.Variable
	for rows.Next() {
		var variable variables.Variable
		if err := rows.Scan(&variable.Name, &variable.Value, &variable.Visible, &variable.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, variable)
	}
	return list, rows.Err()
}
