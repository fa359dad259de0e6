package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"

	"hmi-core/internal/ingest/events"
	"hmi-core/internal/observability/metrics"
	rules "hmi-core/internal/rules/domain"
)

// RuleRepository loads and replaces the persisted rule set.
type RuleRepository interface {
	List(ctx context.Context) ([]rules.Rule, error)
	SaveRules(ctx context.Context, list []rules.Rule) error
}

// VariableReader loads current variable values in one batch.
type VariableReader interface {
	GetValues(ctx context.Context, names []string) (map[string]string, error)
}

// ActionExecutor applies one action type. Implementations must be
// idempotent: re-applying the same action is a no-op.
type ActionExecutor interface {
	Execute(ctx context.Context, action rules.Action) error
}

// Engine evaluates the rules watching a variable whenever it changes.
type Engine struct {
	repo   RuleRepository
	values VariableReader
	logger *log.Logger

	mu        sync.RWMutex
	rules     []rules.Rule
	executors map[string]ActionExecutor
}

// EngineOption customizes the engine.
type EngineOption func(*Engine)

// WithLogger assigns a logger.
func WithLogger(logger *log.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine constructs a rule engine.
func NewEngine(repo RuleRepository, values VariableReader, opts ...EngineOption) (*Engine, error) {
	if repo == nil {
		return nil, errors.New("rule engine: nil rule repository")
	}
	if values == nil {
		return nil, errors.New("rule engine: nil variable reader")
	}
	engine := &Engine{
		repo:      repo,
		values:    values,
		logger:    log.Default(),
		executors: make(map[string]ActionExecutor),
	}
	for _, opt := range opts {
		opt(engine)
	}
	return engine, nil
}

// RegisterExecutor binds an action type to an executor. Later
// registrations for the same type win.
func (e *Engine) RegisterExecutor(actionType string, executor ActionExecutor) {
	if e == nil || actionType == "" || executor == nil {
		return
	}
	e.mu.Lock()
	e.executors[actionType] = executor
	e.mu.Unlock()
}

// LoadRules replaces the in-memory rule set from the repository.
func (e *Engine) LoadRules(ctx context.Context) error {
	if e == nil {
		return errors.New("rule engine: nil engine")
	}
	list, err := e.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("rule engine: load rules: %w", err)
	}
	e.mu.Lock()
	e.rules = list
	e.mu.Unlock()
	return nil
}

// Rules returns the current in-memory rule set.
func (e *Engine) Rules() []rules.Rule {
	if e == nil {
		return nil
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]rules.Rule(nil), e.rules...)
}

// SaveRules replaces the persisted rule set wholesale and reloads the
// in-memory copy.
func (e *Engine) SaveRules(ctx context.Context, list []rules.Rule) error {
	if e == nil {
		return errors.New("rule engine: nil engine")
	}
	for _, rule := range list {
		if err := rule.Validate(); err != nil {
			return fmt.Errorf("rule engine: save rules: %w", err)
		}
	}
	if err := e.repo.SaveRules(ctx, list); err != nil {
		return fmt.Errorf("rule engine: save rules: %w", err)
	}
	return e.LoadRules(ctx)
}

// OnVariableChanged evaluates the rules referencing the changed
// variable against a snapshot of the current variable values. Rules
// whose conditions never read the variable are not touched, so a rule
// fires once per qualifying change and not again on unrelated traffic.
// The delivered value overrides the stored one so the evaluation sees
// exactly the change that triggered it.
func (e *Engine) OnVariableChanged(ctx context.Context, event events.VariableChanged) error {
	if e == nil {
		return errors.New("rule engine: nil engine")
	}
	if event.Name == "" {
		return nil
	}

	e.mu.RLock()
	var list []rules.Rule
	for _, rule := range e.rules {
		if !rule.Enabled || len(rule.Conditions) == 0 {
			continue
		}
		if rule.References(event.Name) {
			list = append(list, rule)
		}
	}
	e.mu.RUnlock()
	if len(list) == 0 {
		return nil
	}

	values, err := e.values.GetValues(ctx, rules.VariableNames(list))
	if err != nil {
		metrics.IncRuleEvaluation(metrics.RuleOutcomeError)
		return fmt.Errorf("rule engine: load variables: %w", err)
	}
	if values == nil {
		values = make(map[string]string)
	}
	values[event.Name] = event.Value

	for _, rule := range list {
		if !rule.Matches(values) {
			metrics.IncRuleEvaluation(metrics.RuleOutcomeSkipped)
			continue
		}
		metrics.IncRuleEvaluation(metrics.RuleOutcomeMatched)
		e.dispatch(ctx, rule)
	}
	return nil
}

// dispatch runs the rule's actions in order. A failing action is logged
// and never blocks the remaining actions.
func (e *Engine) dispatch(ctx context.Context, rule rules.Rule) {
	actions := append([]rules.Action(nil), rule.Actions...)
	sort.SliceStable(actions, func(i, j int) bool {
		return actions[i].Position < actions[j].Position
	})

	for _, action := range actions {
		e.mu.RLock()
		executor, ok := e.executors[action.Type]
		e.mu.RUnlock()
		if !ok {
			e.logger.Printf("rule engine: rule %s: unknown action type %q, skipped", rule.ID, action.Type)
			metrics.IncRuleAction(action.Type, "skipped")
			continue
		}
		if err := executor.Execute(ctx, action); err != nil {
			e.logger.Printf("rule engine: rule %s: action %s on %s failed: %v", rule.ID, action.Type, action.Target, err)
			metrics.IncRuleAction(action.Type, metrics.ResultError)
			continue
		}
		metrics.IncRuleAction(action.Type, metrics.ResultSuccess)
	}
}
