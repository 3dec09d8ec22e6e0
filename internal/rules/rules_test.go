// SPDX-License-Identifier: Apache-2.0

package rules

import (
	"errors"
	"strings"
	"testing"

	"github.com/Sohailahussien/AI-Chat-APP-sub000/internal/domain"
)

func TestExpressionEval(t *testing.T) {
	value := map[string]any{
		"score":  0.82,
		"label":  "Positive",
		"tags":   []any{"billing", "urgent"},
		"nested": map[string]any{"count": 3},
		"text":   "refund requested",
	}

	cases := []struct {
		expr string
		want bool
	}{
		{expr: "score > 0.5", want: true},
		{expr: "value.score >= 0.9", want: false},
		{expr: `label == "Positive" && len(tags) == 2`, want: true},
		{expr: `lower(label) == "negative" or nested.count > 2`, want: true},
		{expr: `tags contains "urgent"`, want: true},
		{expr: `not (tags contains "spam")`, want: true},
		{expr: `!has(value, "missing")`, want: true},
		{expr: `text matches "^refund"`, want: true},
		{expr: `input.tags.0 == "billing"`, want: true},
		{expr: `missing == null`, want: true},
		{expr: `size(text) < 5`, want: false},
		{expr: `nested.count == -(-3)`, want: true},
		{expr: `type(nested) == "object" and empty(missing)`, want: true},
	}

	for _, tc := range cases {
		expr, err := Compile(tc.expr)
		if err != nil {
			t.Fatalf("Compile(%q): %v", tc.expr, err)
		}
		got, err := expr.Eval(value)
		if err != nil {
			t.Fatalf("Eval(%q): %v", tc.expr, err)
		}
		if got != tc.want {
			t.Fatalf("Eval(%q): expected %v got %v", tc.expr, tc.want, got)
		}
	}
}

func TestExpressionOnScalarValue(t *testing.T) {
	expr, err := Compile(`len(value) > 3 && value != "blocked"`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	ok, err := expr.Eval("hello")
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	if !ok {
		t.Fatal("expected expression to hold")
	}

	num, err := Compile("value > 10")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	ok, err = num.Eval(42)
	if err != nil {
		t.Fatalf("eval int: %v", err)
	}
	if !ok {
		t.Fatal("expected int input to be normalized to a number")
	}
}

func TestCompileRejectsCode(t *testing.T) {
	cases := []string{
		"",
		"os.exit(1)",
		"value = 3",
		"score >",
		"(score > 1",
		`"unterminated`,
		"len(a, b)",
		"value; drop()",
		strings.Repeat("(", 100) + "true" + strings.Repeat(")", 100),
	}

	for _, src := range cases {
		if _, err := Compile(src); err == nil {
			t.Fatalf("Compile(%q): expected error", src)
		}
	}
}

func TestExpressionTypeErrors(t *testing.T) {
	cases := []string{
		"score",
		"label > 1",
		"!score",
		"score && true",
	}

	for _, src := range cases {
		expr, err := Compile(src)
		if err != nil {
			t.Fatalf("Compile(%q): %v", src, err)
		}
		if _, err := expr.Eval(map[string]any{"score": 1, "label": "x"}); err == nil {
			t.Fatalf("Eval(%q): expected type error", src)
		}
	}
}

func TestEvaluatorRules(t *testing.T) {
	ev := NewEvaluator()

	cases := []struct {
		name  string
		rule  domain.Rule
		value any
		pass  bool
	}{
		{name: "email ok", rule: domain.Rule{Type: domain.RuleFormat, Rule: "email"}, value: "a@b.io", pass: true},
		{name: "email bad", rule: domain.Rule{Type: domain.RuleFormat, Rule: "email"}, value: "nope", pass: false},
		{name: "uuid ok", rule: domain.Rule{Type: domain.RuleFormat, Rule: "uuid"}, value: "6ba7b810-9dad-11d1-80b4-00c04fd430c8", pass: true},
		{name: "regex ok", rule: domain.Rule{Type: domain.RuleFormat, Rule: "regex:^[A-Z]{3}$"}, value: "ABC", pass: true},
		{name: "bare regex bad", rule: domain.Rule{Type: domain.RuleFormat, Rule: "^[0-9]+$"}, value: "12a", pass: false},
		{name: "json ok", rule: domain.Rule{Type: domain.RuleFormat, Rule: "json"}, value: `{"a":1}`, pass: true},
		{name: "required empty", rule: domain.Rule{Type: domain.RuleContent, Rule: "required"}, value: "  ", pass: false},
		{name: "min length", rule: domain.Rule{Type: domain.RuleContent, Rule: "min_length:3"}, value: "héllo", pass: true},
		{name: "max length", rule: domain.Rule{Type: domain.RuleContent, Rule: "max_length:3"}, value: "hello", pass: false},
		{name: "contains", rule: domain.Rule{Type: domain.RuleContent, Rule: "contains:refund"}, value: "a refund please", pass: true},
		{name: "not contains", rule: domain.Rule{Type: domain.RuleContent, Rule: "not_contains:password"}, value: "my password", pass: false},
		{name: "schema fields", rule: domain.Rule{Type: domain.RuleSchema, Rule: "name:string, age:number"}, value: map[string]any{"name": "a", "age": 3}, pass: true},
		{name: "schema missing", rule: domain.Rule{Type: domain.RuleSchema, Rule: "name,email"}, value: map[string]any{"name": "a"}, pass: false},
		{name: "schema wrong type", rule: domain.Rule{Type: domain.RuleSchema, Rule: "age:number"}, value: map[string]any{"age": "3"}, pass: false},
		{name: "schema array", rule: domain.Rule{Type: domain.RuleSchema, Rule: "array"}, value: []string{"a"}, pass: true},
		{name: "custom ok", rule: domain.Rule{Type: domain.RuleCustom, Rule: "len(value) > 2"}, value: "abc", pass: true},
		{name: "custom invalid", rule: domain.Rule{Type: domain.RuleCustom, Rule: "value ==="}, value: "abc", pass: false},
		{name: "unknown type", rule: domain.Rule{Type: "magic", Rule: "x"}, value: "abc", pass: false},
	}

	for _, tc := range cases {
		err := ev.Evaluate(tc.rule, tc.value)
		if tc.pass && err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
		if !tc.pass {
			if err == nil {
				t.Fatalf("%s: expected failure", tc.name)
			}
			if !errors.Is(err, domain.ErrValidationFailed) {
				t.Fatalf("%s: expected ErrValidationFailed got %v", tc.name, err)
			}
		}
	}
}

func TestEvaluatorUsesRuleErrorMessage(t *testing.T) {
	ev := NewEvaluator()
	err := ev.Evaluate(domain.Rule{
		Type:         domain.RuleCustom,
		Rule:         "score > 0.9",
		ErrorMessage: "confidence too low",
	}, map[string]any{"score": 0.1})

	if err == nil || err.Error() != "confidence too low" {
		t.Fatalf("expected rule error message, got %v", err)
	}
}
