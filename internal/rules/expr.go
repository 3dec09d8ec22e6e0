// SPDX-License-Identifier: Apache-2.0

package rules

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// The custom rule language is a small, side-effect free boolean grammar:
//
//	expr       = or
//	or         = and { ("||" | "or") and }
//	and        = unary { ("&&" | "and") unary }
//	unary      = ("!" | "not") unary | comparison
//	comparison = operand [ op operand ]       op: == != < <= > >= contains matches
//	operand    = "-" operand | primary
//	primary    = number | string | true | false | null | path | call | "(" expr ")"
//	call       = name "(" [ expr { "," expr } ] ")"
//
// Paths start at `value` (alias `input`); a bare field name such as `score`
// is looked up on the value itself. Numeric path segments index arrays.

const (
	maxExpressionLength = 4096
	maxExpressionDepth  = 64
)

var errNotBoolean = errors.New("expression did not evaluate to a boolean")

// Expression is a compiled custom rule.
type Expression struct {
	src  string
	root node
}

// Compile parses src into an Expression.
func Compile(src string) (*Expression, error) {
	if len(src) > maxExpressionLength {
		return nil, fmt.Errorf("expression longer than %d bytes", maxExpressionLength)
	}
	tokens, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	root, err := p.parseExpr(0)
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, fmt.Errorf("unexpected %q at offset %d", tok.text, tok.pos)
	}
	return &Expression{src: src, root: root}, nil
}

func (e *Expression) String() string {
	return e.src
}

// Eval evaluates the expression against value.
func (e *Expression) Eval(value any) (bool, error) {
	out, err := e.root.eval(normalize(value))
	if err != nil {
		return false, err
	}
	b, ok := out.(bool)
	if !ok {
		return false, errNotBoolean
	}
	return b, nil
}

// ---------------- LEXER ----------------

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokString
	tokIdent
	tokOp
	tokLParen
	tokRParen
	tokComma
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

func lex(src string) ([]token, error) {
	var tokens []token
	i := 0
	for i < len(src) {
		r, size := utf8.DecodeRuneInString(src[i:])
		switch {
		case unicode.IsSpace(r):
			i += size
		case r == '(':
			tokens = append(tokens, token{kind: tokLParen, text: "(", pos: i})
			i++
		case r == ')':
			tokens = append(tokens, token{kind: tokRParen, text: ")", pos: i})
			i++
		case r == ',':
			tokens = append(tokens, token{kind: tokComma, text: ",", pos: i})
			i++
		case r == '"' || r == '\'':
			text, next, err := lexString(src, i)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, token{kind: tokString, text: text, pos: i})
			i = next
		case r >= '0' && r <= '9':
			start := i
			for i < len(src) && (src[i] >= '0' && src[i] <= '9' || src[i] == '.') {
				i++
			}
			tokens = append(tokens, token{kind: tokNumber, text: src[start:i], pos: start})
		case r == '_' || unicode.IsLetter(r):
			start := i
			for i < len(src) {
				r, size := utf8.DecodeRuneInString(src[i:])
				if r != '_' && r != '.' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
					break
				}
				i += size
			}
			tokens = append(tokens, token{kind: tokIdent, text: src[start:i], pos: start})
		default:
			op := lexOperator(src[i:])
			if op == "" {
				return nil, fmt.Errorf("unexpected character %q at offset %d", r, i)
			}
			tokens = append(tokens, token{kind: tokOp, text: op, pos: i})
			i += len(op)
		}
	}
	tokens = append(tokens, token{kind: tokEOF, pos: len(src)})
	return tokens, nil
}

func lexString(src string, start int) (string, int, error) {
	quote := src[start]
	var b strings.Builder
	for i := start + 1; i < len(src); i++ {
		c := src[i]
		switch {
		case c == '\\' && i+1 < len(src):
			i++
			switch src[i] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			default:
				b.WriteByte(src[i])
			}
		case c == quote:
			return b.String(), i + 1, nil
		default:
			b.WriteByte(c)
		}
	}
	return "", 0, fmt.Errorf("unterminated string at offset %d", start)
}

func lexOperator(rest string) string {
	for _, op := range []string{"==", "!=", "<=", ">=", "&&", "||", "<", ">", "!", "-"} {
		if strings.HasPrefix(rest, op) {
			return op
		}
	}
	return ""
}

// ---------------- PARSER ----------------

type parser struct {
	tokens []token
	pos    int
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) next() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) isWord(words ...string) bool {
	tok := p.peek()
	if tok.kind != tokOp && tok.kind != tokIdent {
		return false
	}
	for _, w := range words {
		if tok.text == w {
			return true
		}
	}
	return false
}

func (p *parser) parseExpr(depth int) (node, error) {
	if depth > maxExpressionDepth {
		return nil, errors.New("expression nested too deeply")
	}
	return p.parseOr(depth)
}

func (p *parser) parseOr(depth int) (node, error) {
	left, err := p.parseAnd(depth)
	if err != nil {
		return nil, err
	}
	for p.isWord("||", "or") {
		p.next()
		right, err := p.parseAnd(depth)
		if err != nil {
			return nil, err
		}
		left = logicalNode{op: "or", left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAnd(depth int) (node, error) {
	left, err := p.parseUnary(depth)
	if err != nil {
		return nil, err
	}
	for p.isWord("&&", "and") {
		p.next()
		right, err := p.parseUnary(depth)
		if err != nil {
			return nil, err
		}
		left = logicalNode{op: "and", left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseUnary(depth int) (node, error) {
	if p.isWord("!", "not") {
		p.next()
		if depth+1 > maxExpressionDepth {
			return nil, errors.New("expression nested too deeply")
		}
		operand, err := p.parseUnary(depth + 1)
		if err != nil {
			return nil, err
		}
		return notNode{operand: operand}, nil
	}
	return p.parseComparison(depth)
}

func (p *parser) parseComparison(depth int) (node, error) {
	left, err := p.parseOperand(depth)
	if err != nil {
		return nil, err
	}
	if p.isWord("==", "!=", "<", "<=", ">", ">=", "contains", "matches") {
		op := p.next().text
		right, err := p.parseOperand(depth)
		if err != nil {
			return nil, err
		}
		if op == "matches" {
			if lit, ok := right.(literalNode); ok {
				pattern, isString := lit.value.(string)
				if !isString {
					return nil, errors.New("matches expects a string pattern")
				}
				re, err := regexp.Compile(pattern)
				if err != nil {
					return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
				}
				return matchNode{left: left, re: re}, nil
			}
		}
		return compareNode{op: op, left: left, right: right}, nil
	}
	return left, nil
}

func (p *parser) parseOperand(depth int) (node, error) {
	if tok := p.peek(); tok.kind == tokOp && tok.text == "-" {
		p.next()
		if depth+1 > maxExpressionDepth {
			return nil, errors.New("expression nested too deeply")
		}
		operand, err := p.parseOperand(depth + 1)
		if err != nil {
			return nil, err
		}
		return negateNode{operand: operand}, nil
	}
	return p.parsePrimary(depth)
}

func (p *parser) parsePrimary(depth int) (node, error) {
	tok := p.next()
	switch tok.kind {
	case tokNumber:
		f, err := strconv.ParseFloat(tok.text, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q at offset %d", tok.text, tok.pos)
		}
		return literalNode{value: f}, nil
	case tokString:
		return literalNode{value: tok.text}, nil
	case tokLParen:
		inner, err := p.parseExpr(depth + 1)
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.kind != tokRParen {
			return nil, fmt.Errorf("expected ) at offset %d", closing.pos)
		}
		return inner, nil
	case tokIdent:
		switch tok.text {
		case "true":
			return literalNode{value: true}, nil
		case "false":
			return literalNode{value: false}, nil
		case "null", "nil":
			return literalNode{value: nil}, nil
		}
		if p.peek().kind == tokLParen {
			return p.parseCall(tok, depth)
		}
		return newPathNode(tok.text), nil
	case tokEOF:
		return nil, errors.New("unexpected end of expression")
	default:
		return nil, fmt.Errorf("unexpected %q at offset %d", tok.text, tok.pos)
	}
}

func (p *parser) parseCall(name token, depth int) (node, error) {
	fn, ok := builtins[name.text]
	if !ok {
		return nil, fmt.Errorf("unknown function %q at offset %d", name.text, name.pos)
	}
	p.next() // (

	var args []node
	if p.peek().kind != tokRParen {
		for {
			arg, err := p.parseExpr(depth + 1)
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			if p.peek().kind != tokComma {
				break
			}
			p.next()
		}
	}
	if closing := p.next(); closing.kind != tokRParen {
		return nil, fmt.Errorf("expected ) at offset %d", closing.pos)
	}
	if len(args) != fn.arity {
		return nil, fmt.Errorf("%s expects %d argument(s), got %d", name.text, fn.arity, len(args))
	}
	return callNode{name: name.text, fn: fn.call, args: args}, nil
}

// ---------------- AST ----------------

type node interface {
	eval(value any) (any, error)
}

type literalNode struct{ value any }

func (n literalNode) eval(any) (any, error) { return n.value, nil }

type pathNode struct{ segments []string }

func newPathNode(path string) pathNode {
	segments := strings.Split(path, ".")
	if segments[0] == "value" || segments[0] == "input" {
		segments = segments[1:]
	}
	return pathNode{segments: segments}
}

func (n pathNode) eval(value any) (any, error) {
	current := value
	for _, seg := range n.segments {
		switch t := current.(type) {
		case map[string]any:
			current = t[seg]
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(t) {
				return nil, nil
			}
			current = t[idx]
		default:
			return nil, nil
		}
	}
	return current, nil
}

type notNode struct{ operand node }

func (n notNode) eval(value any) (any, error) {
	v, err := n.operand.eval(value)
	if err != nil {
		return nil, err
	}
	b, ok := v.(bool)
	if !ok {
		return nil, errors.New("! expects a boolean")
	}
	return !b, nil
}

type negateNode struct{ operand node }

func (n negateNode) eval(value any) (any, error) {
	v, err := n.operand.eval(value)
	if err != nil {
		return nil, err
	}
	f, ok := v.(float64)
	if !ok {
		return nil, errors.New("- expects a number")
	}
	return -f, nil
}

type logicalNode struct {
	op          string
	left, right node
}

func (n logicalNode) eval(value any) (any, error) {
	l, err := n.left.eval(value)
	if err != nil {
		return nil, err
	}
	lb, ok := l.(bool)
	if !ok {
		return nil, fmt.Errorf("%s expects boolean operands", n.op)
	}
	if n.op == "and" && !lb {
		return false, nil
	}
	if n.op == "or" && lb {
		return true, nil
	}
	r, err := n.right.eval(value)
	if err != nil {
		return nil, err
	}
	rb, ok := r.(bool)
	if !ok {
		return nil, fmt.Errorf("%s expects boolean operands", n.op)
	}
	return rb, nil
}

type compareNode struct {
	op          string
	left, right node
}

func (n compareNode) eval(value any) (any, error) {
	l, err := n.left.eval(value)
	if err != nil {
		return nil, err
	}
	r, err := n.right.eval(value)
	if err != nil {
		return nil, err
	}

	switch n.op {
	case "==":
		return equalValues(l, r), nil
	case "!=":
		return !equalValues(l, r), nil
	case "contains":
		return containsValue(l, r)
	case "matches":
		s, ok := l.(string)
		pattern, pok := r.(string)
		if !ok || !pok {
			return nil, errors.New("matches expects string operands")
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
		}
		return re.MatchString(s), nil
	}

	if lf, ok := l.(float64); ok {
		if rf, ok := r.(float64); ok {
			return compareOrdered(n.op, lf, rf), nil
		}
	}
	if ls, ok := l.(string); ok {
		if rs, ok := r.(string); ok {
			return compareOrdered(n.op, ls, rs), nil
		}
	}
	return nil, fmt.Errorf("cannot compare %s with %s using %s", typeName(l), typeName(r), n.op)
}

type matchNode struct {
	left node
	re   *regexp.Regexp
}

func (n matchNode) eval(value any) (any, error) {
	l, err := n.left.eval(value)
	if err != nil {
		return nil, err
	}
	s, ok := l.(string)
	if !ok {
		return false, nil
	}
	return n.re.MatchString(s), nil
}

type callNode struct {
	name string
	fn   func(args []any) (any, error)
	args []node
}

func (n callNode) eval(value any) (any, error) {
	args := make([]any, len(n.args))
	for i, arg := range n.args {
		v, err := arg.eval(value)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	out, err := n.fn(args)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", n.name, err)
	}
	return out, nil
}

func compareOrdered[T float64 | string](op string, a, b T) bool {
	switch op {
	case "<":
		return a < b
	case "<=":
		return a <= b
	case ">":
		return a > b
	default:
		return a >= b
	}
}

// ---------------- BUILTINS ----------------

type builtin struct {
	arity int
	call  func(args []any) (any, error)
}

var builtins = map[string]builtin{
	"len":    {arity: 1, call: builtinLen},
	"size":   {arity: 1, call: builtinLen},
	"empty":  {arity: 1, call: builtinEmpty},
	"type":   {arity: 1, call: func(args []any) (any, error) { return typeName(args[0]), nil }},
	"lower":  {arity: 1, call: stringFunc(strings.ToLower)},
	"upper":  {arity: 1, call: stringFunc(strings.ToUpper)},
	"trim":   {arity: 1, call: stringFunc(strings.TrimSpace)},
	"number": {arity: 1, call: builtinNumber},
	"has":    {arity: 2, call: builtinHas},
}

func builtinLen(args []any) (any, error) {
	switch t := args[0].(type) {
	case nil:
		return float64(0), nil
	case string:
		return float64(utf8.RuneCountInString(t)), nil
	case []any:
		return float64(len(t)), nil
	case map[string]any:
		return float64(len(t)), nil
	default:
		return nil, fmt.Errorf("no length for %s", typeName(t))
	}
}

func builtinEmpty(args []any) (any, error) {
	switch t := args[0].(type) {
	case nil:
		return true, nil
	case string:
		return strings.TrimSpace(t) == "", nil
	case []any:
		return len(t) == 0, nil
	case map[string]any:
		return len(t) == 0, nil
	default:
		return false, nil
	}
}

func builtinNumber(args []any) (any, error) {
	switch t := args[0].(type) {
	case float64:
		return t, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", t)
		}
		return f, nil
	case bool:
		if t {
			return float64(1), nil
		}
		return float64(0), nil
	default:
		return nil, fmt.Errorf("cannot convert %s to number", typeName(t))
	}
}

func builtinHas(args []any) (any, error) {
	key, ok := args[1].(string)
	if !ok {
		return nil, errors.New("key must be a string")
	}
	m, ok := args[0].(map[string]any)
	if !ok {
		return false, nil
	}
	_, exists := m[key]
	return exists, nil
}

func stringFunc(fn func(string) string) func(args []any) (any, error) {
	return func(args []any) (any, error) {
		s, ok := args[0].(string)
		if !ok {
			return nil, fmt.Errorf("expects a string, got %s", typeName(args[0]))
		}
		return fn(s), nil
	}
}

// ---------------- VALUES ----------------

// normalize maps arbitrary Go values onto the JSON value space
// (nil, bool, float64, string, []any, map[string]any).
func normalize(v any) any {
	switch t := v.(type) {
	case nil, bool, float64, string:
		return t
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case int32:
		return float64(t)
	case float32:
		return float64(t)
	case uint:
		return float64(t)
	case uint64:
		return float64(t)
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return t.String()
		}
		return f
	case json.RawMessage:
		var decoded any
		if err := json.Unmarshal(t, &decoded); err != nil {
			return string(t)
		}
		return decoded
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = normalize(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = normalize(item)
		}
		return out
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return string(raw)
	}
	return decoded
}

func equalValues(a, b any) bool {
	if af, ok := a.(float64); ok {
		bf, ok := b.(float64)
		return ok && af == bf
	}
	return reflect.DeepEqual(a, b)
}

func containsValue(container, item any) (any, error) {
	switch t := container.(type) {
	case nil:
		return false, nil
	case string:
		s, ok := item.(string)
		if !ok {
			return nil, errors.New("contains on a string expects a string")
		}
		return strings.Contains(t, s), nil
	case []any:
		for _, candidate := range t {
			if equalValues(candidate, item) {
				return true, nil
			}
		}
		return false, nil
	case map[string]any:
		key, ok := item.(string)
		if !ok {
			return nil, errors.New("contains on an object expects a string key")
		}
		_, exists := t[key]
		return exists, nil
	default:
		return nil, fmt.Errorf("contains not supported on %s", typeName(t))
	}
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "bool"
	case float64:
		return "number"
	case string:
		return "string"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
