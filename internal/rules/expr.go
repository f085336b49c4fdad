// expr.go implements the restricted rule language used by transformation
// and validation rules (spec §4.3: "Rules are restricted expressions over
// record fields and the identifier value... evaluation runs in a sandbox
// with no access to host runtime primitives"). No third-party expression
// or scripting library appears anywhere in the retrieved corpus, so this
// is a small hand-rolled recursive-descent evaluator limited to
// comparisons, membership, and and/or conjunction — no function calls, no
// field assignment, no loops, nothing that could escape the scope map it
// is handed.
package rules

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Scope is the variable bindings a rule evaluates against: every field in
// ToFieldMap's output, plus the bare identifier "value" (the rule's own
// field) for per-field rules.
type Scope map[string]interface{}

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokNumber
	tokString
	tokOp
	tokLParen
	tokRParen
	tokLBracket
	tokRBracket
	tokComma
	tokEOF
)

type token struct {
	kind tokenKind
	text string
}

func tokenize(src string) ([]token, error) {
	var toks []token
	i := 0
	n := len(src)
	for i < n {
		c := src[i]
		switch {
		case c == ' ' || c == '\t':
			i++
		case c == '(':
			toks = append(toks, token{tokLParen, "("})
			i++
		case c == ')':
			toks = append(toks, token{tokRParen, ")"})
			i++
		case c == '[':
			toks = append(toks, token{tokLBracket, "["})
			i++
		case c == ']':
			toks = append(toks, token{tokRBracket, "]"})
			i++
		case c == ',':
			toks = append(toks, token{tokComma, ","})
			i++
		case c == '\'' || c == '"':
			quote := c
			j := i + 1
			for j < n && src[j] != quote {
				j++
			}
			if j >= n {
				return nil, fmt.Errorf("unterminated string literal starting at %d", i)
			}
			toks = append(toks, token{tokString, src[i+1 : j]})
			i = j + 1
		case c == '>' || c == '<' || c == '=' || c == '!':
			op := string(c)
			if i+1 < n && src[i+1] == '=' {
				op += "="
				i += 2
			} else {
				i++
			}
			toks = append(toks, token{tokOp, op})
		case isIdentStart(c):
			j := i
			for j < n && isIdentChar(src[j]) {
				j++
			}
			toks = append(toks, token{tokIdent, src[i:j]})
			i = j
		case isDigit(c) || (c == '-' && i+1 < n && isDigit(src[i+1])):
			j := i + 1
			for j < n && (isDigit(src[j]) || src[j] == '.') {
				j++
			}
			toks = append(toks, token{tokNumber, src[i:j]})
			i = j
		default:
			return nil, fmt.Errorf("unexpected character %q at %d in rule %q", c, i, src)
		}
	}
	toks = append(toks, token{tokEOF, ""})
	return toks, nil
}

func isDigit(c byte) bool      { return c >= '0' && c <= '9' }
func isIdentStart(c byte) bool { return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }
func isIdentChar(c byte) bool  { return isIdentStart(c) || isDigit(c) }

// Rule is a compiled restricted expression, ready to evaluate against many
// scopes without re-tokenizing.
type Rule struct {
	src   string
	toks  []token
	pos   int
}

// Compile tokenizes a rule's source text once; Eval parses and evaluates
// the token stream on each call.
func Compile(src string) (*Rule, error) {
	toks, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	return &Rule{src: src, toks: toks}, nil
}

func (r *Rule) peek() token  { return r.toks[r.pos] }
func (r *Rule) advance() token {
	t := r.toks[r.pos]
	if r.pos < len(r.toks)-1 {
		r.pos++
	}
	return t
}

// Eval evaluates the compiled rule against scope, returning a bool result.
// The rule grammar is: orExpr := andExpr ("or" andExpr)*
//
//	andExpr := comparison ("and" comparison)*
//	comparison := '(' orExpr ')' | operand [op operand]
//	operand := IDENT | NUMBER | STRING | '[' operand (',' operand)* ']'
//	op := > >= < <= == != in | not in
func (r *Rule) Eval(scope Scope) (bool, error) {
	r.pos = 0
	v, err := r.parseOr(scope)
	if err != nil {
		return false, fmt.Errorf("rule %q: %w", r.src, err)
	}
	if r.peek().kind != tokEOF {
		return false, fmt.Errorf("rule %q: unexpected trailing token %q", r.src, r.peek().text)
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("rule %q: did not evaluate to a boolean", r.src)
	}
	return b, nil
}

func (r *Rule) parseOr(scope Scope) (interface{}, error) {
	left, err := r.parseAnd(scope)
	if err != nil {
		return nil, err
	}
	for r.peek().kind == tokIdent && (r.peek().text == "or") {
		r.advance()
		right, err := r.parseAnd(scope)
		if err != nil {
			return nil, err
		}
		lb, lok := left.(bool)
		rb, rok := right.(bool)
		if !lok || !rok {
			return nil, fmt.Errorf("'or' requires boolean operands")
		}
		left = lb || rb
	}
	return left, nil
}

func (r *Rule) parseAnd(scope Scope) (interface{}, error) {
	left, err := r.parseComparison(scope)
	if err != nil {
		return nil, err
	}
	for r.peek().kind == tokIdent && r.peek().text == "and" {
		r.advance()
		right, err := r.parseComparison(scope)
		if err != nil {
			return nil, err
		}
		lb, lok := left.(bool)
		rb, rok := right.(bool)
		if !lok || !rok {
			return nil, fmt.Errorf("'and' requires boolean operands")
		}
		left = lb && rb
	}
	return left, nil
}

func (r *Rule) parseComparison(scope Scope) (interface{}, error) {
	left, err := r.parseOperand(scope)
	if err != nil {
		return nil, err
	}
	// "not in" / "in"
	if r.peek().kind == tokIdent && r.peek().text == "not" {
		r.advance()
		if r.peek().kind != tokIdent || r.peek().text != "in" {
			return nil, fmt.Errorf("expected 'in' after 'not'")
		}
		r.advance()
		list, err := r.parseOperand(scope)
		if err != nil {
			return nil, err
		}
		in, err := membership(left, list)
		if err != nil {
			return nil, err
		}
		return !in, nil
	}
	if r.peek().kind == tokIdent && r.peek().text == "in" {
		r.advance()
		list, err := r.parseOperand(scope)
		if err != nil {
			return nil, err
		}
		return membership(left, list)
	}
	if r.peek().kind != tokOp {
		// A bare operand (e.g. a boolean field reference) is its own result.
		return left, nil
	}
	op := r.advance().text
	right, err := r.parseOperand(scope)
	if err != nil {
		return nil, err
	}
	return compare(left, op, right)
}

func (r *Rule) parseOperand(scope Scope) (interface{}, error) {
	t := r.peek()
	switch t.kind {
	case tokIdent:
		r.advance()
		switch t.text {
		case "true":
			return true, nil
		case "false":
			return false, nil
		case "null", "none":
			return nil, nil
		}
		v, ok := scope[t.text]
		if !ok {
			return nil, fmt.Errorf("unknown identifier %q", t.text)
		}
		return v, nil
	case tokNumber:
		r.advance()
		d, err := decimal.NewFromString(t.text)
		if err != nil {
			return nil, fmt.Errorf("invalid number literal %q", t.text)
		}
		return d, nil
	case tokString:
		r.advance()
		return t.text, nil
	case tokLBracket:
		r.advance()
		var items []interface{}
		for r.peek().kind != tokRBracket {
			v, err := r.parseOperand(scope)
			if err != nil {
				return nil, err
			}
			items = append(items, v)
			if r.peek().kind == tokComma {
				r.advance()
			}
		}
		r.advance() // consume ']'
		return items, nil
	case tokLParen:
		r.advance()
		v, err := r.parseOr(scope)
		if err != nil {
			return nil, err
		}
		if r.peek().kind != tokRParen {
			return nil, fmt.Errorf("expected ')'")
		}
		r.advance()
		return v, nil
	default:
		return nil, fmt.Errorf("unexpected token %q", t.text)
	}
}

func membership(v interface{}, list interface{}) (bool, error) {
	items, ok := list.([]interface{})
	if !ok {
		return false, fmt.Errorf("right-hand side of 'in' must be a list")
	}
	for _, it := range items {
		eq, err := compare(v, "==", it)
		if err == nil && eq.(bool) {
			return true, nil
		}
	}
	return false, nil
}

func toDecimal(v interface{}) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case decimal.Decimal:
		return n, true
	case int64:
		return decimal.NewFromInt(n), true
	case int32:
		return decimal.NewFromInt(int64(n)), true
	case int:
		return decimal.NewFromInt(int64(n)), true
	case uint32:
		return decimal.NewFromInt(int64(n)), true
	case uint64:
		return decimal.NewFromInt(int64(n)), true
	case float64:
		return decimal.NewFromFloat(n), true
	case string:
		d, err := decimal.NewFromString(n)
		if err != nil {
			return decimal.Decimal{}, false
		}
		return d, true
	}
	return decimal.Decimal{}, false
}

func compare(left interface{}, op string, right interface{}) (interface{}, error) {
	if left == nil || right == nil {
		switch op {
		case "==":
			return left == nil && right == nil, nil
		case "!=":
			return !(left == nil && right == nil), nil
		default:
			return nil, fmt.Errorf("operator %q is not defined on null operands", op)
		}
	}

	if ld, lok := toDecimal(left); lok {
		if rd, rok := toDecimal(right); rok {
			switch op {
			case ">":
				return ld.GreaterThan(rd), nil
			case ">=":
				return ld.GreaterThanOrEqual(rd), nil
			case "<":
				return ld.LessThan(rd), nil
			case "<=":
				return ld.LessThanOrEqual(rd), nil
			case "==":
				return ld.Equal(rd), nil
			case "!=":
				return !ld.Equal(rd), nil
			}
			return nil, fmt.Errorf("unsupported operator %q", op)
		}
	}

	ls, lok := left.(string)
	rs, rok := right.(string)
	if lok && rok {
		switch op {
		case "==":
			return ls == rs, nil
		case "!=":
			return ls != rs, nil
		case ">":
			return strings.Compare(ls, rs) > 0, nil
		case ">=":
			return strings.Compare(ls, rs) >= 0, nil
		case "<":
			return strings.Compare(ls, rs) < 0, nil
		case "<=":
			return strings.Compare(ls, rs) <= 0, nil
		}
	}

	lb, lok := left.(bool)
	rb, rok := right.(bool)
	if lok && rok {
		switch op {
		case "==":
			return lb == rb, nil
		case "!=":
			return lb != rb, nil
		}
	}

	return nil, fmt.Errorf("cannot compare %v (%T) %s %v (%T)", left, left, op, right, right)
}
