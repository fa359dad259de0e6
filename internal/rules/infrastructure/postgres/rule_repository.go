package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"hmi-core/internal/eventing"
	rules "hmi-core/internal/rules/domain"
)

// RuleRepository persists rules with their conditions and actions.
type RuleRepository struct {
	db *sql.DB
}

// NewRuleRepository constructs a rule repository.
func NewRuleRepository(db *sql.DB) *RuleRepository {
	return &RuleRepository{db: db}
}

// List returns every rule with conditions and actions ordered by position.
func (r *RuleRepository) List(ctx context.Context) ([]rules.Rule, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("rule repository: nil db")
	}

	ruleRows, err := r.db.QueryContext(ctx, `
SELECT id, name, logic, enabled
FROM rules
ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer ruleRows.Close()

	var list []rules.Rule
	index := make(map[string]int)
	for ruleRows.Next() {
		var rule rules.Rule
		if err := ruleRows.Scan(&rule.ID, &rule.Name, &rule.Logic, &rule.Enabled); err != nil {
			return nil, err
		}
		index[rule.ID] = len(list)
		list = append(list, rule)
	}
	if err := ruleRows.Err(); err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}

	conditionRows, err := r.db.QueryContext(ctx, `
SELECT id, rule_id, variable, operator, value, position
FROM rule_conditions
ORDER BY rule_id, position, id`)
	if err != nil {
		return nil, err
	}
	defer conditionRows.Close()

	for conditionRows.Next() {
		var condition rules.Condition
		if err := conditionRows.Scan(
			&condition.ID,
			&condition.RuleID,
			&condition.Variable,
			&condition.Operator,
			&condition.Value,
			&condition.Position,
		); err != nil {
			return nil, err
		}
		if i, ok := index[condition.RuleID]; ok {
			list[i].Conditions = append(list[i].Conditions, condition)
		}
	}
	if err := conditionRows.Err(); err != nil {
		return nil, err
	}

	actionRows, err := r.db.QueryContext(ctx, `
SELECT id, rule_id, type, target, value, position
FROM rule_actions
ORDER BY rule_id, position, id`)
	if err != nil {
		return nil, err
	}
	defer actionRows.Close()

	for actionRows.Next() {
		var action rules.Action
		if err := actionRows.Scan(
			&action.ID,
			&action.RuleID,
			&action.Type,
			&action.Target,
			&action.Value,
			&action.Position,
		); err != nil {
			return nil, err
		}
		if i, ok := index[action.RuleID]; ok {
			list[i].Actions = append(list[i].Actions, action)
		}
	}
	return list, actionRows.Err()
}

// SaveRules replaces the persisted rule set wholesale in one transaction:
// rules absent from the new set are deleted, present rules are upserted,
// and conditions and actions are rewritten from scratch.
func (r *RuleRepository) SaveRules(ctx context.Context, list []rules.Rule) error {
	if r == nil || r.db == nil {
		return errors.New("rule repository: nil db")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	keep := make([]string, 0, len(list))
	for i := range list {
		if list[i].ID == "" {
			list[i].ID = eventing.NewEventID()
		}
		keep = append(keep, list[i].ID)
	}

	if len(keep) == 0 {
		if _, err := tx.ExecContext(ctx, `DELETE FROM rules`); err != nil {
			return err
		}
	} else {
		// pq-style array parameters are unavailable through database/sql
		// placeholders here, so build the IN list explicitly.
		query := `DELETE FROM rules WHERE id NOT IN (`
		args := make([]any, 0, len(keep))
		for i, id := range keep {
			if i > 0 {
				query += ", "
			}
			query += fmt.Sprintf("$%d", i+1)
			args = append(args, id)
		}
		query += ")"
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return err
		}
	}

	for _, rule := range list {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO rules (id, name, logic, enabled)
VALUES ($1, $2, $3, $4)
ON CONFLICT (id)
DO UPDATE SET
	name = EXCLUDED.name,
	logic = EXCLUDED.logic,
	enabled = EXCLUDED.enabled`,
			rule.ID, rule.Name, string(rule.Logic), rule.Enabled,
		); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM rule_conditions WHERE rule_id = $1`, rule.ID); err != nil {
			return err
		}
		for position, condition := range rule.Conditions {
			if condition.ID == "" {
				condition.ID = eventing.NewEventID()
			}
			// Positions are regenerated from slice order on every save.
			condition.Position = position
			if _, err := tx.ExecContext(ctx, `
INSERT INTO rule_conditions (id, rule_id, variable, operator, value, position)
VALUES ($1, $2, $3, $4, $5, $6)`,
				condition.ID, rule.ID, condition.Variable, string(condition.Operator), condition.Value, condition.Position,
			); err != nil {
				return err
			}
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM rule_actions WHERE rule_id = $1`, rule.ID); err != nil {
			return err
		}
		for position, action := range rule.Actions {
			if action.ID == "" {
				action.ID = eventing.NewEventID()
			}
			action.Position = position
			if _, err := tx.ExecContext(ctx, `
INSERT INTO rule_actions (id, rule_id, type, target, value, position)
VALUES ($1, $2, $3, $4, $5, $6)`,
				action.ID, rule.ID, action.Type, action.Target, action.Value, action.Position,
			); err != nil {
				return err
			}
		}
	}

	return tx.Commit()
}
