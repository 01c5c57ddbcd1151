// Package formula evaluates author-supplied expression templates under an
// explicitly-scoped grammar: literals, arithmetic, comparison, boolean
// operators, and string concatenation. There is no attribute access, no call
// syntax, no indexing, and the only name resolution is the env map the caller
// passes in — the evaluator can never reach interpreter internals or host
// capabilities.
//
// Formula templates reference row fields with {field} placeholders.
// Substitute replaces each placeholder with a properly escaped literal before
// parsing, so only literal values ever enter the evaluator.
package formula

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

type node interface {
	eval(env map[string]any) (any, error)
}

type literalNode struct{ value any }

func (n literalNode) eval(map[string]any) (any, error) { return n.value, nil }

type identNode struct{ name string }

func (n identNode) eval(env map[string]any) (any, error) {
	value, ok := env[n.name]
	if !ok {
		return nil, fmt.Errorf("unknown name %q", n.name)
	}
	return normalize(value), nil
}

type unaryNode struct {
	op      tokenKind
	operand node
}

func (n unaryNode) eval(env map[string]any) (any, error) {
	value, err := n.operand.eval(env)
	if err != nil {
		return nil, err
	}
	switch n.op {
	case tokenMinus:
		f, ok := value.(float64)
		if !ok {
			return nil, fmt.Errorf("cannot negate %T", value)
		}
		return -f, nil
	case tokenNot:
		return !Truthy(value), nil
	}
	return nil, fmt.Errorf("unsupported unary operator")
}

type binaryNode struct {
	op          tokenKind
	left, right node
}

func (n binaryNode) eval(env map[string]any) (any, error) {
	// Boolean operators short-circuit.
	switch n.op {
	case tokenAnd:
		left, err := n.left.eval(env)
		if err != nil {
			return nil, err
		}
		if !Truthy(left) {
			return false, nil
		}
		right, err := n.right.eval(env)
		if err != nil {
			return nil, err
		}
		return Truthy(right), nil
	case tokenOr:
		left, err := n.left.eval(env)
		if err != nil {
			return nil, err
		}
		if Truthy(left) {
			return true, nil
		}
		right, err := n.right.eval(env)
		if err != nil {
			return nil, err
		}
		return Truthy(right), nil
	}

	left, err := n.left.eval(env)
	if err != nil {
		return nil, err
	}
	right, err := n.right.eval(env)
	if err != nil {
		return nil, err
	}

	switch n.op {
	case tokenPlus:
		if lf, ok := left.(float64); ok {
			if rf, ok := right.(float64); ok {
				return lf + rf, nil
			}
		}
		if ls, ok := left.(string); ok {
			if rs, ok := right.(string); ok {
				return ls + rs, nil
			}
		}
		return nil, fmt.Errorf("cannot add %T and %T", left, right)
	case tokenMinus, tokenStar, tokenSlash, tokenPercent:
		lf, lok := left.(float64)
		rf, rok := right.(float64)
		if !lok || !rok {
			return nil, fmt.Errorf("arithmetic requires numbers, got %T and %T", left, right)
		}
		switch n.op {
		case tokenMinus:
			return lf - rf, nil
		case tokenStar:
			return lf * rf, nil
		case tokenSlash:
			if rf == 0 {
				return nil, fmt.Errorf("division by zero")
			}
			return lf / rf, nil
		case tokenPercent:
			if rf == 0 {
				return nil, fmt.Errorf("modulo by zero")
			}
			return math.Mod(lf, rf), nil
		}
	case tokenEq:
		return equalValues(left, right), nil
	case tokenNeq:
		return !equalValues(left, right), nil
	case tokenLt, tokenLte, tokenGt, tokenGte:
		cmp, err := orderValues(left, right)
		if err != nil {
			return nil, err
		}
		switch n.op {
		case tokenLt:
			return cmp < 0, nil
		case tokenLte:
			return cmp <= 0, nil
		case tokenGt:
			return cmp > 0, nil
		case tokenGte:
			return cmp >= 0, nil
		}
	}
	return nil, fmt.Errorf("unsupported operator")
}

func equalValues(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch av := a.(type) {
	case float64:
		bv, ok := b.(float64)
		return ok && av == bv
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	}
	return false
}

func orderValues(a, b any) (int, error) {
	if af, ok := a.(float64); ok {
		if bf, ok := b.(float64); ok {
			switch {
			case af < bf:
				return -1, nil
			case af > bf:
				return 1, nil
			}
			return 0, nil
		}
	}
	if as, ok := a.(string); ok {
		if bs, ok := b.(string); ok {
			return strings.Compare(as, bs), nil
		}
	}
	return 0, fmt.Errorf("cannot order %T and %T", a, b)
}

type parser struct {
	lex lexer
	cur token
}

func parse(input string) (node, error) {
	p := &parser{lex: lexer{input: input}}
	if err := p.advance(); err != nil {
		return nil, err
	}
	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.cur.kind != tokenEOF {
		return nil, fmt.Errorf("unexpected trailing input at %d", p.cur.pos)
	}
	return expr, nil
}

func (p *parser) advance() error {
	tok, err := p.lex.next()
	if err != nil {
		return err
	}
	p.cur = tok
	return nil
}

func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.cur.kind == tokenOr {
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: tokenOr, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for p.cur.kind == tokenAnd {
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: tokenAnd, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseComparison() (node, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	switch p.cur.kind {
	case tokenEq, tokenNeq, tokenLt, tokenLte, tokenGt, tokenGte:
		op := p.cur.kind
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		return binaryNode{op: op, left: left, right: right}, nil
	}
	return left, nil
}

func (p *parser) parseAdditive() (node, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.cur.kind == tokenPlus || p.cur.kind == tokenMinus {
		op := p.cur.kind
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: op, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseMultiplicative() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.cur.kind == tokenStar || p.cur.kind == tokenSlash || p.cur.kind == tokenPercent {
		op := p.cur.kind
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: op, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (node, error) {
	switch p.cur.kind {
	case tokenMinus:
		if err := p.advance(); err != nil {
			return nil, err
		}
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return unaryNode{op: tokenMinus, operand: operand}, nil
	case tokenNot:
		if err := p.advance(); err != nil {
			return nil, err
		}
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return unaryNode{op: tokenNot, operand: operand}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (node, error) {
	switch p.cur.kind {
	case tokenNumber:
		n := literalNode{value: p.cur.num}
		return n, p.advance()
	case tokenString:
		n := literalNode{value: p.cur.text}
		return n, p.advance()
	case tokenTrue:
		return literalNode{value: true}, p.advance()
	case tokenFalse:
		return literalNode{value: false}, p.advance()
	case tokenNull:
		return literalNode{value: nil}, p.advance()
	case tokenIdent:
		n := identNode{name: p.cur.text}
		return n, p.advance()
	case tokenLParen:
		if err := p.advance(); err != nil {
			return nil, err
		}
		expr, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.cur.kind != tokenRParen {
			return nil, fmt.Errorf("missing closing parenthesis at %d", p.cur.pos)
		}
		return expr, p.advance()
	}
	return nil, fmt.Errorf("unexpected token at %d", p.cur.pos)
}

// Eval parses and evaluates expr. Identifiers resolve only through env;
// anything else is an error. Results are nil, bool, float64, or string.
func Eval(expr string, env map[string]any) (any, error) {
	root, err := parse(expr)
	if err != nil {
		return nil, err
	}
	return root.eval(env)
}

// EvalBool evaluates expr and reduces the result to truthiness. Any
// evaluation error yields false, matching the degrade-don't-crash contract
// for condition expressions.
func EvalBool(expr string, env map[string]any) bool {
	value, err := Eval(expr, env)
	if err != nil {
		return false
	}
	return Truthy(value)
}

// Check parses expr without evaluating it, for validating stored templates.
func Check(expr string) error {
	_, err := parse(expr)
	return err
}

// SubstituteAll replaces every {placeholder} in template with the same
// literal value, regardless of name. Validation uses it to syntax-check
// templates without real row data.
func SubstituteAll(template string, value any) string {
	out := template
	for {
		start := strings.IndexByte(out, '{')
		if start < 0 {
			return out
		}
		end := strings.IndexByte(out[start:], '}')
		if end < 0 {
			return out
		}
		out = out[:start] + Literal(value) + out[start+end+1:]
	}
}

// Truthy reduces an evaluator value to a boolean: nil and empty/zero values
// are false, everything else true.
func Truthy(value any) bool {
	switch v := normalize(value).(type) {
	case nil:
		return false
	case bool:
		return v
	case float64:
		return v != 0
	case string:
		return v != ""
	}
	return true
}

// Substitute replaces every {field} placeholder in template with the row's
// value rendered as a literal: strings quote-wrapped and escaped, numbers and
// booleans stringified, nil as null. Placeholders naming fields absent from
// the row are left untouched, which makes the later parse fail and the
// formula yield null for that row rather than raising.
func Substitute(template string, row map[string]any) string {
	if !strings.Contains(template, "{") {
		return template
	}
	// Longest names first so {total_net} never partially matches {total}.
	names := make([]string, 0, len(row))
	for name := range row {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return len(names[i]) > len(names[j]) })

	out := template
	for _, name := range names {
		placeholder := "{" + name + "}"
		if !strings.Contains(out, placeholder) {
			continue
		}
		out = strings.ReplaceAll(out, placeholder, Literal(row[name]))
	}
	return out
}

// Literal renders a Go value as an expression literal safe to splice into a
// template.
func Literal(value any) string {
	switch v := normalize(value).(type) {
	case nil:
		return "null"
	case bool:
		if v {
			return "true"
		}
		return "false"
	case float64:
		if v == math.Trunc(v) && math.Abs(v) < 1e15 {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case string:
		return quoteString(v)
	default:
		return quoteString(fmt.Sprintf("%v", value))
	}
}

func quoteString(s string) string {
	var sb strings.Builder
	sb.WriteByte('\'')
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			sb.WriteString(`\\`)
		case '\'':
			sb.WriteString(`\'`)
		case '\n':
			sb.WriteString(`\n`)
		case '\t':
			sb.WriteString(`\t`)
		default:
			sb.WriteByte(s[i])
		}
	}
	sb.WriteByte('\'')
	return sb.String()
}

// normalize maps arbitrary Go values onto the evaluator's value domain.
func normalize(value any) any {
	switch v := value.(type) {
	case nil, bool, float64, string:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	case uint:
		return float64(v)
	case uint32:
		return float64(v)
	case uint64:
		return float64(v)
	case time.Time:
		return v.Format("2006-01-02 15:04:05")
	}
	return value
}
