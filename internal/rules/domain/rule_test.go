package rules

import "testing"

func TestConditionEvaluateTextual(t *testing.T) {
	values := map[string]string{"mode": "auto"}

	cases := []struct {
		name      string
		condition Condition
		matched   bool
		evaluable bool
	}{
		{"equal match", Condition{Variable: "mode", Operator: OperatorEqual, Value: "auto"}, true, true},
		{"equal mismatch", Condition{Variable: "mode", Operator: OperatorEqual, Value: "manual"}, false, true},
		{"not equal", Condition{Variable: "mode", Operator: OperatorNotEqual, Value: "manual"}, true, true},
		{"missing variable", Condition{Variable: "absent", Operator: OperatorEqual, Value: "auto"}, false, false},
	}
	for _, tc := range cases {
		matched, evaluable := tc.condition.Evaluate(values)
		if matched != tc.matched || evaluable != tc.evaluable {
			t.Fatalf("%s: got (%v, %v), want (%v, %v)", tc.name, matched, evaluable, tc.matched, tc.evaluable)
		}
	}
}

func TestConditionEvaluateNumeric(t *testing.T) {
	values := map[string]string{
		"temperature": "71.5",
		"label":       "hot",
	}

	cases := []struct {
		name      string
		condition Condition
		matched   bool
	}{
		{"greater true", Condition{Variable: "temperature", Operator: OperatorGreater, Value: "70"}, true},
		{"greater false", Condition{Variable: "temperature", Operator: OperatorGreater, Value: "80"}, false},
		{"less", Condition{Variable: "temperature", Operator: OperatorLess, Value: "80"}, true},
		{"greater equal boundary", Condition{Variable: "temperature", Operator: OperatorGreaterEqual, Value: "71.5"}, true},
		{"less equal boundary", Condition{Variable: "temperature", Operator: OperatorLessEqual, Value: "71.5"}, true},
		{"non numeric value yields false", Condition{Variable: "label", Operator: OperatorGreater, Value: "1"}, false},
		{"non numeric threshold yields false", Condition{Variable: "temperature", Operator: OperatorGreater, Value: "hot"}, false},
	}
	for _, tc := range cases {
		matched, evaluable := tc.condition.Evaluate(values)
		if !evaluable {
			t.Fatalf("%s: expected condition to be evaluable", tc.name)
		}
		if matched != tc.matched {
			t.Fatalf("%s: got %v, want %v", tc.name, matched, tc.matched)
		}
	}
}

func TestRuleMatchesAnd(t *testing.T) {
	rule := Rule{
		ID:      "r-1",
		Name:    "night mode",
		Logic:   LogicAnd,
		Enabled: true,
		Conditions: []Condition{
			{Variable: "mode", Operator: OperatorEqual, Value: "auto"},
			{Variable: "temperature", Operator: OperatorGreater, Value: "70"},
		},
	}

	if !rule.Matches(map[string]string{"mode": "auto", "temperature": "75"}) {
		t.Fatal("expected match when all conditions hold")
	}
	if rule.Matches(map[string]string{"mode": "auto", "temperature": "65"}) {
		t.Fatal("expected no match when one condition fails")
	}
	// A missing variable makes the conjunction unevaluable, never true.
	if rule.Matches(map[string]string{"mode": "auto"}) {
		t.Fatal("expected no match when a variable is missing")
	}
}

func TestRuleMatchesOr(t *testing.T) {
	rule := Rule{
		ID:      "r-2",
		Name:    "any trigger",
		Logic:   LogicOr,
		Enabled: true,
		Conditions: []Condition{
			{Variable: "mode", Operator: OperatorEqual, Value: "manual"},
			{Variable: "temperature", Operator: OperatorGreater, Value: "70"},
		},
	}

	if !rule.Matches(map[string]string{"mode": "auto", "temperature": "75"}) {
		t.Fatal("expected match when one condition holds")
	}
	if rule.Matches(map[string]string{"mode": "auto", "temperature": "65"}) {
		t.Fatal("expected no match when no condition holds")
	}
	if !rule.Matches(map[string]string{"mode": "manual"}) {
		t.Fatal("expected match from the evaluable true condition")
	}
}

func TestRuleWithoutConditionsNeverMatches(t *testing.T) {
	rule := Rule{ID: "r-3", Name: "empty", Logic: LogicAnd, Enabled: true}
	if rule.Matches(map[string]string{"mode": "auto"}) {
		t.Fatal("expected empty condition set to never match")
	}
}

func TestVariableNames(t *testing.T) {
	list := []Rule{
		{Conditions: []Condition{
			{Variable: "mode", Operator: OperatorEqual},
			{Variable: "temperature", Operator: OperatorGreater},
		}},
		{Conditions: []Condition{
			{Variable: "mode", Operator: OperatorNotEqual},
			{Variable: "pressure", Operator: OperatorLess},
		}},
	}
	names := VariableNames(list)
	if len(names) != 3 {
		t.Fatalf("expected 3 distinct names, got %v", names)
	}
	want := []string{"mode", "temperature", "pressure"}
	for i, name := range want {
		if names[i] != name {
			t.Fatalf("position %d: expected %s, got %s", i, name, names[i])
		}
	}
}

func TestRuleValidate(t *testing.T) {
	valid := Rule{
		ID:    "r-4",
		Name:  "valid",
		Logic: LogicOr,
		Conditions: []Condition{
			{Variable: "mode", Operator: OperatorEqual, Value: "auto"},
		},
		Actions: []Action{
			{Type: ActionSetVisibility, Target: "panel.settings", Value: "true"},
		},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid rule, got %v", err)
	}

	invalid := valid
	invalid.Logic = "xor"
	if err := invalid.Validate(); err == nil {
		t.Fatal("expected error for unsupported logic operator")
	}

	badCondition := valid
	badCondition.Conditions = []Condition{{Variable: "mode", Operator: "~", Value: "auto"}}
	if err := badCondition.Validate(); err == nil {
		t.Fatal("expected error for unsupported comparison operator")
	}
}
