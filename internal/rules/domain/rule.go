package rules

import (
	"errors"
	"strconv"
	"strings"
)

// Logic combines a rule's conditions.
type Logic string

const (
	LogicAnd Logic = "and"
	LogicOr  Logic = "or"
)

// Valid returns true when the logic operator is supported.
func (l Logic) Valid() bool {
	return l == LogicAnd || l == LogicOr
}

// Operator compares a variable value against a condition value.
type Operator string

const (
	OperatorEqual        Operator = "="
	OperatorNotEqual     Operator = "!="
	OperatorGreater      Operator = ">"
	OperatorLess         Operator = "<"
	OperatorGreaterEqual Operator = ">="
	OperatorLessEqual    Operator = "<="
)

// Valid returns true when the operator is supported.
func (o Operator) Valid() bool {
	switch o {
	case OperatorEqual, OperatorNotEqual,
		OperatorGreater, OperatorLess,
		OperatorGreaterEqual, OperatorLessEqual:
		return true
	default:
		return false
	}
}

// Condition is one comparison against a named variable.
type Condition struct {
	ID       string   `json:"id"`
	RuleID   string   `json:"rule_id"`
	Variable string   `json:"variable"`
	Operator Operator `json:"operator"`
	Value    string   `json:"value"`
	Position int      `json:"position"`
}

// Validate checks condition invariants.
func (c Condition) Validate() error {
	if c.Variable == "" {
		return errors.New("rule condition: empty variable")
	}
	if !c.Operator.Valid() {
		return errors.New("rule condition: invalid operator")
	}
	return nil
}

// Evaluate compares the condition against the given variable values.
// The second return is false when the referenced variable is unknown.
// Equality operators compare textually; ordering operators compare
// numerically and yield false when either side does not parse.
func (c Condition) Evaluate(values map[string]string) (bool, bool) {
	value, present := values[c.Variable]
	if !present {
		return false, false
	}
	switch c.Operator {
	case OperatorEqual:
		return value == c.Value, true
	case OperatorNotEqual:
		return value != c.Value, true
	}

	left, leftErr := strconv.ParseFloat(strings.TrimSpace(value), 64)
	right, rightErr := strconv.ParseFloat(strings.TrimSpace(c.Value), 64)
	if leftErr != nil || rightErr != nil {
		return false, true
	}
	switch c.Operator {
	case OperatorGreater:
		return left > right, true
	case OperatorLess:
		return left < right, true
	case OperatorGreaterEqual:
		return left >= right, true
	case OperatorLessEqual:
		return left <= right, true
	default:
		return false, true
	}
}

// Action types dispatched by the rule engine.
const (
	ActionSetVisibility     = "set_visibility"
	ActionSetLoggingEnabled = "set_logging_enabled"
	ActionSetValue          = "set_value"
)

// Action is one idempotent effect dispatched when a rule matches.
type Action struct {
	ID       string `json:"id"`
	RuleID   string `json:"rule_id"`
	Type     string `json:"type"`
	Target   string `json:"target"`
	Value    string `json:"value"`
	Position int    `json:"position"`
}

// Validate checks action invariants.
func (a Action) Validate() error {
	if a.Type == "" {
		return errors.New("rule action: empty type")
	}
	if a.Target == "" {
		return errors.New("rule action: empty target")
	}
	return nil
}

// Rule ties a condition set to an ordered action list.
type Rule struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Logic      Logic       `json:"logic"`
	Enabled    bool        `json:"enabled"`
	Conditions []Condition `json:"conditions"`
	Actions    []Action    `json:"actions"`
}

// Validate checks rule invariants.
func (r Rule) Validate() error {
	if r.ID == "" {
		return errors.New("rule: empty id")
	}
	if r.Name == "" {
		return errors.New("rule: empty name")
	}
	if !r.Logic.Valid() {
		return errors.New("rule: invalid logic operator")
	}
	for _, condition := range r.Conditions {
		if err := condition.Validate(); err != nil {
			return err
		}
	}
	for _, action := range r.Actions {
		if err := action.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Matches evaluates the condition set against the given variable values.
// A rule with no conditions never matches. With AND logic every condition
// must be evaluable and true; with OR logic one true condition suffices.
func (r Rule) Matches(values map[string]string) bool {
	if len(r.Conditions) == 0 {
		return false
	}
	if r.Logic == LogicOr {
		for _, condition := range r.Conditions {
			matched, ok := condition.Evaluate(values)
			if ok && matched {
				return true
			}
		}
		return false
	}
	for _, condition := range r.Conditions {
		matched, ok := condition.Evaluate(values)
		if !ok || !matched {
			return false
		}
	}
	return true
}

// References reports whether the rule reads the named variable.
func (r Rule) References(variable string) bool {
	for _, condition := range r.Conditions {
		if condition.Variable == variable {
			return true
		}
	}
	return false
}

// VariableNames returns the distinct variables read by the rules.
func VariableNames(list []Rule) []string {
	seen := make(map[string]struct{})
	var names []string
	for _, rule := range list {
		for _, condition := range rule.Conditions {
			if _, ok := seen[condition.Variable]; ok {
				continue
			}
			seen[condition.Variable] = struct{}{}
			names = append(names, condition.Variable)
		}
	}
	return names
}
