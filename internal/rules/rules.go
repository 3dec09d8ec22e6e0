// SPDX-License-Identifier: Apache-2.0

// Package rules evaluates validation rule descriptors against step values.
package rules

import (
	"encoding/json"
	"fmt"
	"net/mail"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/Sohailahussien/AI-Chat-APP-sub000/internal/domain"
	"github.com/Sohailahussien/AI-Chat-APP-sub000/internal/prompt"
	"github.com/google/uuid"
)

// Evaluator checks format, content, schema and custom rules. Compiled custom
// expressions and format patterns are cached; an Evaluator is safe for
// concurrent use.
type Evaluator struct {
	expressions sync.Map // string -> *Expression
	patterns    sync.Map // string -> *regexp.Regexp
}

func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// Evaluate returns nil when value satisfies rule and a *domain.ValidationError
// otherwise. Malformed rules fail the same way, naming the syntax problem.
func (e *Evaluator) Evaluate(rule domain.Rule, value any) error {
	var (
		ok     bool
		reason string
	)

	switch rule.Type {
	case domain.RuleFormat:
		ok, reason = e.checkFormat(rule.Rule, value)
	case domain.RuleContent:
		ok, reason = checkContent(rule.Rule, value)
	case domain.RuleSchema:
		ok, reason = checkSchema(rule.Rule, value)
	case domain.RuleCustom:
		ok, reason = e.checkCustom(rule.Rule, value)
	default:
		ok, reason = false, fmt.Sprintf("unknown rule type %q", rule.Type)
	}

	if ok {
		return nil
	}

	msg := strings.TrimSpace(rule.ErrorMessage)
	if msg == "" {
		msg = fmt.Sprintf("%s rule %q failed: %s", rule.Type, rule.Rule, reason)
	}
	return &domain.ValidationError{Rule: rule, Message: msg}
}

func (e *Evaluator) checkCustom(src string, value any) (bool, string) {
	expr, err := e.compile(src)
	if err != nil {
		return false, "invalid expression: " + err.Error()
	}
	ok, err := expr.Eval(value)
	if err != nil {
		return false, err.Error()
	}
	if !ok {
		return false, "expression is false"
	}
	return true, ""
}

func (e *Evaluator) compile(src string) (*Expression, error) {
	if cached, ok := e.expressions.Load(src); ok {
		return cached.(*Expression), nil
	}
	expr, err := Compile(src)
	if err != nil {
		return nil, err
	}
	e.expressions.Store(src, expr)
	return expr, nil
}

func (e *Evaluator) pattern(src string) (*regexp.Regexp, error) {
	if cached, ok := e.patterns.Load(src); ok {
		return cached.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(src)
	if err != nil {
		return nil, err
	}
	e.patterns.Store(src, re)
	return re, nil
}

// ---------------- FORMAT ----------------

var namedFormats = map[string]func(string) bool{
	"email": func(s string) bool {
		addr, err := mail.ParseAddress(s)
		return err == nil && addr.Address == s
	},
	"url": func(s string) bool {
		u, err := url.ParseRequestURI(s)
		return err == nil && u.Scheme != "" && u.Host != ""
	},
	"uuid": func(s string) bool {
		_, err := uuid.Parse(s)
		return err == nil
	},
	"number": func(s string) bool {
		_, err := strconv.ParseFloat(s, 64)
		return err == nil
	},
	"integer": func(s string) bool {
		_, err := strconv.ParseInt(s, 10, 64)
		return err == nil
	},
	"json": func(s string) bool {
		return json.Valid([]byte(s))
	},
	"date": func(s string) bool {
		_, err := time.Parse(time.DateOnly, s)
		return err == nil
	},
	"datetime": func(s string) bool {
		_, err := time.Parse(time.RFC3339, s)
		return err == nil
	},
	"alpha": func(s string) bool {
		return s != "" && strings.IndexFunc(s, func(r rune) bool { return !unicode.IsLetter(r) }) < 0
	},
	"alphanumeric": func(s string) bool {
		return s != "" && strings.IndexFunc(s, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		}) < 0
	},
}

// checkFormat accepts a named format or a regular expression, optionally
// prefixed with "regex:".
func (e *Evaluator) checkFormat(rule string, value any) (bool, string) {
	rule = strings.TrimSpace(rule)
	s := prompt.Stringify(value)

	if check, ok := namedFormats[strings.ToLower(rule)]; ok {
		if check(strings.TrimSpace(s)) {
			return true, ""
		}
		return false, fmt.Sprintf("value is not a valid %s", strings.ToLower(rule))
	}

	re, err := e.pattern(strings.TrimPrefix(rule, "regex:"))
	if err != nil {
		return false, "invalid pattern: " + err.Error()
	}
	if !re.MatchString(s) {
		return false, "value does not match pattern"
	}
	return true, ""
}

// ---------------- CONTENT ----------------

// checkContent understands required, non_empty, min_length:N, max_length:N,
// contains:text, not_contains:text and equals:text.
func checkContent(rule string, value any) (bool, string) {
	name, arg, _ := strings.Cut(strings.TrimSpace(rule), ":")
	s := prompt.Stringify(value)
	length := utf8.RuneCountInString(s)

	switch strings.ToLower(strings.TrimSpace(name)) {
	case "required", "non_empty", "not_empty":
		if value == nil || strings.TrimSpace(s) == "" {
			return false, "value is empty"
		}
		return true, ""
	case "min_length":
		n, err := strconv.Atoi(strings.TrimSpace(arg))
		if err != nil {
			return false, "invalid min_length argument"
		}
		if length < n {
			return false, fmt.Sprintf("length %d is below %d", length, n)
		}
		return true, ""
	case "max_length":
		n, err := strconv.Atoi(strings.TrimSpace(arg))
		if err != nil {
			return false, "invalid max_length argument"
		}
		if length > n {
			return false, fmt.Sprintf("length %d exceeds %d", length, n)
		}
		return true, ""
	case "contains":
		if !strings.Contains(s, arg) {
			return false, fmt.Sprintf("value does not contain %q", arg)
		}
		return true, ""
	case "not_contains":
		if strings.Contains(s, arg) {
			return false, fmt.Sprintf("value contains %q", arg)
		}
		return true, ""
	case "equals":
		if s != arg {
			return false, fmt.Sprintf("value is not %q", arg)
		}
		return true, ""
	default:
		return false, fmt.Sprintf("unknown content rule %q", name)
	}
}

// ---------------- SCHEMA ----------------

var schemaTypes = map[string]struct{}{
	"string": {}, "number": {}, "bool": {}, "object": {}, "array": {}, "null": {},
}

// checkSchema takes either a bare type name ("object", "array", ...) or a
// comma separated list of required fields, each optionally typed as
// name:type.
func checkSchema(rule string, value any) (bool, string) {
	rule = strings.TrimSpace(rule)
	v := normalize(value)

	if _, ok := schemaTypes[rule]; ok {
		if got := typeName(v); got != rule {
			return false, fmt.Sprintf("expected %s, got %s", rule, got)
		}
		return true, ""
	}

	obj, ok := v.(map[string]any)
	if !ok {
		return false, fmt.Sprintf("expected object, got %s", typeName(v))
	}

	for _, field := range strings.Split(rule, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		name, wantType, typed := strings.Cut(field, ":")
		name = strings.TrimSpace(name)
		got, exists := obj[name]
		if !exists {
			return false, fmt.Sprintf("missing field %q", name)
		}
		if !typed {
			continue
		}
		wantType = strings.TrimSpace(wantType)
		if _, known := schemaTypes[wantType]; !known {
			return false, fmt.Sprintf("unknown type %q for field %q", wantType, name)
		}
		if gotType := typeName(got); gotType != wantType {
			return false, fmt.Sprintf("field %q is %s, expected %s", name, gotType, wantType)
		}
	}
	return true, ""
}
