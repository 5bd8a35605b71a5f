package tf

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// exprOp identifies the kind of an expression tree node.
type exprOp int

const (
	opLiteral exprOp = iota
	opVar
	opCall
	opAssign
	opNot
	opNeg
	opTernary
	opAnd
	opOr
	opBinary
)

// exprNode is one node of a parsed expression.
type exprNode struct {
	op   exprOp
	val  Value      // opLiteral
	name string     // opVar, opAssign, opCall; operator text for opBinary
	args []exprNode // opCall arguments; operands for the rest
}

var errDivZero = errors.New("division by zero")

// ---------- Parser ----------

// exprParser holds the state for parsing an expression string.
type exprParser struct {
	src string
	pos int
}

func (p *exprParser) skipSpaces() {
	for p.pos < len(p.src) && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t') {
		p.pos++
	}
}

func (p *exprParser) peek() byte {
	p.skipSpaces()
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

// accept consumes tok if the input continues with it.
func (p *exprParser) accept(tok string) bool {
	p.skipSpaces()
	if strings.HasPrefix(p.src[p.pos:], tok) {
		p.pos += len(tok)
		return true
	}
	return false
}

// parseExpr parses an expression.
// Grammar:
//
//	E → name ':=' E | C ('?' E ':' E)?
//	C → A ('||' A)*
//	A → R ('&&' R)*
//	R → S (relop S)*        relop: == != <= >= < > =~ !~ =/ !/
//	S → M (('+'|'-') M)*
//	M → U (('*'|'/'|'%') U)*
//	U → '!' U | '-' U | '+' U | P
//	P → number | string | name | name '(' E (',' E)* ')' | '(' E ')'
func parseExpr(src string) (exprNode, error) {
	p := &exprParser{src: src}
	if p.peek() == 0 {
		return exprNode{}, errors.New("empty expression")
	}
	n, err := p.parseE()
	if err != nil {
		return exprNode{}, err
	}
	if p.peek() != 0 {
		return exprNode{}, fmt.Errorf("unexpected %q at position %d", p.src[p.pos:], p.pos+1)
	}
	return n, nil
}

func (p *exprParser) parseE() (exprNode, error) {
	// Assignment needs one token of lookahead past the name.
	start := p.pos
	p.skipSpaces()
	if name := p.scanName(); name != "" && p.accept(":=") {
		rhs, err := p.parseE()
		if err != nil {
			return exprNode{}, err
		}
		return exprNode{op: opAssign, name: name, args: []exprNode{rhs}}, nil
	}
	p.pos = start

	cond, err := p.parseC()
	if err != nil {
		return exprNode{}, err
	}
	if !p.accept("?") {
		return cond, nil
	}
	yes, err := p.parseE()
	if err != nil {
		return exprNode{}, err
	}
	if !p.accept(":") {
		return exprNode{}, errors.New("missing ':' in conditional")
	}
	no, err := p.parseE()
	if err != nil {
		return exprNode{}, err
	}
	return exprNode{op: opTernary, args: []exprNode{cond, yes, no}}, nil
}

func (p *exprParser) parseC() (exprNode, error) {
	left, err := p.parseA()
	if err != nil {
		return exprNode{}, err
	}
	for p.accept("||") {
		right, err := p.parseA()
		if err != nil {
			return exprNode{}, err
		}
		left = exprNode{op: opOr, args: []exprNode{left, right}}
	}
	return left, nil
}

func (p *exprParser) parseA() (exprNode, error) {
	left, err := p.parseR()
	if err != nil {
		return exprNode{}, err
	}
	for p.accept("&&") {
		right, err := p.parseR()
		if err != nil {
			return exprNode{}, err
		}
		left = exprNode{op: opAnd, args: []exprNode{left, right}}
	}
	return left, nil
}

// relops is ordered so two-character operators are tried first.
var relops = []string{"==", "!=", "<=", ">=", "=~", "!~", "=/", "!/", "<", ">"}

func (p *exprParser) parseR() (exprNode, error) {
	left, err := p.parseS()
	if err != nil {
		return exprNode{}, err
	}
	for {
		op := ""
		for _, r := range relops {
			if p.accept(r) {
				op = r
				break
			}
		}
		if op == "" {
			return left, nil
		}
		right, err := p.parseS()
		if err != nil {
			return exprNode{}, err
		}
		left = exprNode{op: opBinary, name: op, args: []exprNode{left, right}}
	}
}

func (p *exprParser) parseS() (exprNode, error) {
	left, err := p.parseM()
	if err != nil {
		return exprNode{}, err
	}
	for {
		var op string
		switch p.peek() {
		case '+', '-':
			op = string(p.src[p.pos])
			p.pos++
		default:
			return left, nil
		}
		right, err := p.parseM()
		if err != nil {
			return exprNode{}, err
		}
		left = exprNode{op: opBinary, name: op, args: []exprNode{left, right}}
	}
}

func (p *exprParser) parseM() (exprNode, error) {
	left, err := p.parseU()
	if err != nil {
		return exprNode{}, err
	}
	for {
		var op string
		switch p.peek() {
		case '*', '/', '%':
			op = string(p.src[p.pos])
			p.pos++
		default:
			return left, nil
		}
		right, err := p.parseU()
		if err != nil {
			return exprNode{}, err
		}
		left = exprNode{op: opBinary, name: op, args: []exprNode{left, right}}
	}
}

func (p *exprParser) parseU() (exprNode, error) {
	switch p.peek() {
	case '!':
		// Not a != or !~ operator here: those only follow an operand.
		p.pos++
		n, err := p.parseU()
		if err != nil {
			return exprNode{}, err
		}
		return exprNode{op: opNot, args: []exprNode{n}}, nil
	case '-':
		p.pos++
		n, err := p.parseU()
		if err != nil {
			return exprNode{}, err
		}
		return exprNode{op: opNeg, args: []exprNode{n}}, nil
	case '+':
		p.pos++
		return p.parseU()
	}
	return p.parseP()
}

func (p *exprParser) parseP() (exprNode, error) {
	ch := p.peek()
	switch {
	case ch == 0:
		return exprNode{}, errors.New("unexpected end of expression")
	case ch == '(':
		p.pos++
		n, err := p.parseE()
		if err != nil {
			return exprNode{}, err
		}
		if !p.accept(")") {
			return exprNode{}, errors.New("missing ')'")
		}
		return n, nil
	case ch == '"' || ch == '\'':
		s, err := p.scanString(ch)
		if err != nil {
			return exprNode{}, err
		}
		return exprNode{op: opLiteral, val: StringValue(s)}, nil
	case ch >= '0' && ch <= '9' || ch == '.':
		return p.scanNumber()
	case isNameByte(ch, true):
		name := p.scanName()
		if p.peek() != '(' {
			return exprNode{op: opVar, name: name}, nil
		}
		p.pos++
		call := exprNode{op: opCall, name: strings.ToLower(name)}
		if p.accept(")") {
			return call, nil
		}
		for {
			arg, err := p.parseE()
			if err != nil {
				return exprNode{}, err
			}
			call.args = append(call.args, arg)
			if p.accept(")") {
				return call, nil
			}
			if !p.accept(",") {
				return exprNode{}, fmt.Errorf("missing ')' in call to %s", name)
			}
		}
	}
	return exprNode{}, fmt.Errorf("unexpected %q at position %d", ch, p.pos+1)
}

func (p *exprParser) scanName() string {
	start := p.pos
	for p.pos < len(p.src) && isNameByte(p.src[p.pos], p.pos == start) {
		p.pos++
	}
	return p.src[start:p.pos]
}

func (p *exprParser) scanString(quote byte) (string, error) {
	p.pos++ // opening quote
	var sb strings.Builder
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch {
		case c == '\\' && p.pos+1 < len(p.src):
			p.pos++
			sb.WriteByte(p.src[p.pos])
		case c == quote:
			p.pos++
			return sb.String(), nil
		default:
			sb.WriteByte(c)
		}
		p.pos++
	}
	return "", errors.New("unterminated string")
}

func (p *exprParser) scanNumber() (exprNode, error) {
	start := p.pos
	isFloat := false
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if c >= '0' && c <= '9' {
			p.pos++
		} else if c == '.' && !isFloat {
			isFloat = true
			p.pos++
		} else {
			break
		}
	}
	text := p.src[start:p.pos]
	if isFloat {
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return exprNode{}, fmt.Errorf("bad number %q", text)
		}
		return exprNode{op: opLiteral, val: FloatValue(f)}, nil
	}
	n, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return exprNode{}, fmt.Errorf("bad number %q", text)
	}
	return exprNode{op: opLiteral, val: IntValue(n)}, nil
}

// ---------- Evaluation ----------

// EvalExpr parses and evaluates an expression against the engine's
// variables. Assignments store typed values.
func (e *Engine) EvalExpr(src string) (Value, error) {
	n, err := parseExpr(src)
	if err != nil {
		return Value{}, err
	}
	return e.evalNode(n)
}

func (e *Engine) evalNode(n exprNode) (Value, error) {
	switch n.op {
	case opLiteral:
		return n.val, nil

	case opVar:
		if v, ok := e.locals[n.name]; ok {
			return StringValue(v), nil
		}
		v, ok := e.vars.Get(n.name)
		if !ok {
			return StringValue(""), nil
		}
		return v, nil

	case opAssign:
		v, err := e.evalNode(n.args[0])
		if err != nil {
			return Value{}, err
		}
		e.vars.Set(n.name, v)
		return v, nil

	case opNot:
		v, err := e.evalNode(n.args[0])
		if err != nil {
			return Value{}, err
		}
		return boolValue(!v.Truthy()), nil

	case opNeg:
		v, err := e.evalNode(n.args[0])
		if err != nil {
			return Value{}, err
		}
		if k, _ := v.numericKind(); k == KindFloat {
			return FloatValue(-v.Float()), nil
		}
		return IntValue(-v.Int()), nil

	case opTernary:
		c, err := e.evalNode(n.args[0])
		if err != nil {
			return Value{}, err
		}
		if c.Truthy() {
			return e.evalNode(n.args[1])
		}
		return e.evalNode(n.args[2])

	case opAnd, opOr:
		l, err := e.evalNode(n.args[0])
		if err != nil {
			return Value{}, err
		}
		if n.op == opAnd && !l.Truthy() {
			return IntValue(0), nil
		}
		if n.op == opOr && l.Truthy() {
			return IntValue(1), nil
		}
		r, err := e.evalNode(n.args[1])
		if err != nil {
			return Value{}, err
		}
		return boolValue(r.Truthy()), nil

	case opBinary:
		l, err := e.evalNode(n.args[0])
		if err != nil {
			return Value{}, err
		}
		r, err := e.evalNode(n.args[1])
		if err != nil {
			return Value{}, err
		}
		return binaryOp(n.name, l, r)

	case opCall:
		args := make([]Value, len(n.args))
		for i, a := range n.args {
			v, err := e.evalNode(a)
			if err != nil {
				return Value{}, err
			}
			args[i] = v
		}
		return callFunc(n.name, args)
	}
	return Value{}, fmt.Errorf("bad expression node %d", n.op)
}

func binaryOp(op string, l, r Value) (Value, error) {
	switch op {
	case "=~":
		return boolValue(l.String() == r.String()), nil
	case "!~":
		return boolValue(l.String() != r.String()), nil
	case "=/":
		return boolValue(GlobMatch(r.String(), l.String())), nil
	case "!/":
		return boolValue(!GlobMatch(r.String(), l.String())), nil
	}

	lk, lnum := l.numericKind()
	rk, rnum := r.numericKind()

	switch op {
	case "==", "!=", "<", "<=", ">", ">=":
		var cmp int
		if lnum && rnum {
			cmp = compareFloat(l.Float(), r.Float())
		} else {
			cmp = strings.Compare(l.String(), r.String())
		}
		switch op {
		case "==":
			return boolValue(cmp == 0), nil
		case "!=":
			return boolValue(cmp != 0), nil
		case "<":
			return boolValue(cmp < 0), nil
		case "<=":
			return boolValue(cmp <= 0), nil
		case ">":
			return boolValue(cmp > 0), nil
		default:
			return boolValue(cmp >= 0), nil
		}
	}

	if lk == KindFloat || rk == KindFloat {
		a, b := l.Float(), r.Float()
		switch op {
		case "+":
			return FloatValue(a + b), nil
		case "-":
			return FloatValue(a - b), nil
		case "*":
			return FloatValue(a * b), nil
		case "/":
			if b == 0 {
				return Value{}, errDivZero
			}
			return FloatValue(a / b), nil
		case "%":
			if b == 0 {
				return Value{}, errDivZero
			}
			return FloatValue(math.Mod(a, b)), nil
		}
	} else {
		a, b := l.Int(), r.Int()
		switch op {
		case "+":
			return IntValue(a + b), nil
		case "-":
			return IntValue(a - b), nil
		case "*":
			return IntValue(a * b), nil
		case "/":
			if b == 0 {
				return Value{}, errDivZero
			}
			return IntValue(a / b), nil
		case "%":
			if b == 0 {
				return Value{}, errDivZero
			}
			return IntValue(a % b), nil
		}
	}
	return Value{}, fmt.Errorf("unknown operator %q", op)
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// exprFunc is a built-in expression function.
type exprFunc struct {
	minArgs, maxArgs int // maxArgs < 0 means unlimited
	fn               func(args []Value) (Value, error)
}

var exprFuncs = map[string]exprFunc{
	"strlen": {1, 1, func(a []Value) (Value, error) {
		return IntValue(int64(utf8.RuneCountInString(a[0].String()))), nil
	}},
	"substr": {2, 3, fnSubstr},
	"toupper": {1, 1, func(a []Value) (Value, error) {
		return StringValue(strings.ToUpper(a[0].String())), nil
	}},
	"tolower": {1, 1, func(a []Value) (Value, error) {
		return StringValue(strings.ToLower(a[0].String())), nil
	}},
	"abs": {1, 1, func(a []Value) (Value, error) {
		if k, _ := a[0].numericKind(); k == KindFloat {
			return FloatValue(math.Abs(a[0].Float())), nil
		}
		n := a[0].Int()
		if n < 0 {
			n = -n
		}
		return IntValue(n), nil
	}},
	"strcat": {0, -1, func(a []Value) (Value, error) {
		var sb strings.Builder
		for _, v := range a {
			sb.WriteString(v.String())
		}
		return StringValue(sb.String()), nil
	}},
	"mod": {2, 2, func(a []Value) (Value, error) {
		return binaryOp("%", IntValue(a[0].Int()), IntValue(a[1].Int()))
	}},
}

// fnSubstr returns substr(s, start[, length]) counted in runes. Out-of-range
// bounds are clamped.
func fnSubstr(a []Value) (Value, error) {
	rs := []rune(a[0].String())
	start := len(rs)
	if n := a[1].Int(); n < 0 {
		start = 0
	} else if n < int64(len(rs)) {
		start = int(n)
	}
	end := len(rs)
	if len(a) == 3 {
		if n := a[2].Int(); n >= 0 && n < int64(end-start) {
			end = start + int(n)
		}
	}
	return StringValue(string(rs[start:end])), nil
}

func callFunc(name string, args []Value) (Value, error) {
	f, ok := exprFuncs[name]
	if !ok {
		return Value{}, fmt.Errorf("unknown function %s()", name)
	}
	if len(args) < f.minArgs || (f.maxArgs >= 0 && len(args) > f.maxArgs) {
		return Value{}, fmt.Errorf("%s(): wrong number of arguments (%d)", name, len(args))
	}
	return f.fn(args)
}

// --- # commands ---

func cmdExpr(e *Engine, name, args string) Result {
	v, err := e.EvalExpr(args)
	if err != nil {
		return Errorf("#%s: %v", name, err)
	}
	return Message(v.String())
}

// cmdTest evaluates a condition. A false result is the break signal, which
// stops the rest of a macro body.
func cmdTest(e *Engine, name, args string) Result {
	v, err := e.EvalExpr(args)
	if err != nil {
		return Errorf("#%s: %v", name, err)
	}
	if !v.Truthy() {
		return Error(BreakSentinel)
	}
	return Success()
}
