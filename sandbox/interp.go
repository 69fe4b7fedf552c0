package sandbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// interp evaluates one parsed fragment against the sandbox namespace. It is
// constructed per Execute call; captured output accumulates in out.
type interp struct {
	sb    *Sandbox
	ctx   context.Context
	out   strings.Builder
	steps int
}

// fatalError marks faults that must not be caught by try(): cancellation and
// step budget exhaustion.
type fatalError struct{ err error }

func (e *fatalError) Error() string { return e.err.Error() }
func (e *fatalError) Unwrap() error { return e.err }

// charge debits n steps at once; bulk builtins use it so work proportional to
// data size counts against the budget like interpreted loops do.
func (in *interp) charge(n int) error {
	in.steps += n
	if in.sb.opts.StepBudget > 0 && in.steps > in.sb.opts.StepBudget {
		return &fatalError{err: fmt.Errorf("step budget of %d exceeded", in.sb.opts.StepBudget)}
	}
	return nil
}

func (in *interp) step() error {
	in.steps++
	if in.sb.opts.StepBudget > 0 && in.steps > in.sb.opts.StepBudget {
		return &fatalError{err: fmt.Errorf("step budget of %d exceeded", in.sb.opts.StepBudget)}
	}
	if in.steps%1024 == 0 {
		select {
		case <-in.ctx.Done():
			return &fatalError{err: in.ctx.Err()}
		default:
		}
	}
	return nil
}

func (in *interp) execStmts(stmts []stmt) error {
	for _, s := range stmts {
		if err := in.execStmt(s); err != nil {
			return err
		}
	}
	return nil
}

func (in *interp) execStmt(s stmt) error {
	if err := in.step(); err != nil {
		return err
	}
	switch node := s.(type) {
	case *assignStmt:
		return in.execAssign(node)
	case *exprStmt:
		v, err := in.evalExpr(node.x)
		if err != nil {
			return err
		}
		// Bare expression results echo into the captured output so the
		// model sees what it evaluated, REPL style.
		if v.Kind != KindNull {
			in.out.WriteString(v.Repr())
			in.out.WriteByte('\n')
		}
		return nil
	case *ifStmt:
		cond, err := in.evalExpr(node.cond)
		if err != nil {
			return err
		}
		if cond.Truthy() {
			return in.execStmts(node.then)
		}
		return in.execStmts(node.els)
	case *forStmt:
		return in.execFor(node)
	default:
		return fmt.Errorf("line ?: unhandled statement %T", s)
	}
}

func (in *interp) execAssign(node *assignStmt) error {
	if restrictedNames[node.name] {
		return restrictedError(node.name)
	}
	v, err := in.evalExpr(node.value)
	if err != nil {
		return err
	}
	if node.index == nil {
		in.sb.ns.bind(node.name, v)
		return nil
	}
	target, ok := in.sb.ns.lookup(node.name)
	if !ok {
		return fmt.Errorf("line %d: unbound name %q", node.line, node.name)
	}
	key, err := in.evalExpr(node.index)
	if err != nil {
		return err
	}
	switch target.Kind {
	case KindList:
		if key.Kind != KindInt {
			return fmt.Errorf("line %d: list index must be int, got %s", node.line, key.Kind)
		}
		xs := target.AsList()
		i, err := normalizeIndex(key.AsInt(), len(xs), node.line)
		if err != nil {
			return err
		}
		xs[i] = v
		return nil
	case KindMap:
		if key.Kind != KindString {
			return fmt.Errorf("line %d: map key must be string, got %s", node.line, key.Kind)
		}
		target.AsMap()[key.AsString()] = v
		return nil
	default:
		return fmt.Errorf("line %d: cannot index-assign into %s", node.line, target.Kind)
	}
}

func (in *interp) execFor(node *forStmt) error {
	if restrictedNames[node.loopVar] {
		return restrictedError(node.loopVar)
	}
	iter, err := in.evalExpr(node.iter)
	if err != nil {
		return err
	}
	runBody := func(v Value) error {
		if err := in.step(); err != nil {
			return err
		}
		in.sb.ns.bind(node.loopVar, v)
		return in.execStmts(node.body)
	}
	switch iter.Kind {
	case KindList:
		for _, e := range iter.AsList() {
			if err := runBody(e); err != nil {
				return err
			}
		}
	case KindString:
		for _, r := range iter.AsString() {
			if err := runBody(Str(string(r))); err != nil {
				return err
			}
		}
	case KindMap:
		for _, k := range sortedKeys(iter.AsMap()) {
			if err := runBody(Str(k)); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("line %d: cannot iterate over %s", node.line, iter.Kind)
	}
	return nil
}

func (in *interp) evalExpr(x expr) (Value, error) {
	if err := in.step(); err != nil {
		return Null, err
	}
	switch node := x.(type) {
	case *literalExpr:
		return node.val, nil
	case *identExpr:
		if restrictedNames[node.name] {
			return Null, restrictedError(node.name)
		}
		if v, ok := in.sb.ns.lookup(node.name); ok {
			return v, nil
		}
		return Null, fmt.Errorf("line %d: unbound name %q", node.line, node.name)
	case *unaryExpr:
		return in.evalUnary(node)
	case *binaryExpr:
		return in.evalBinary(node)
	case *indexExpr:
		return in.evalIndex(node)
	case *callExpr:
		return in.evalCall(node)
	case *listExpr:
		elems := make([]Value, len(node.elems))
		for i, e := range node.elems {
			v, err := in.evalExpr(e)
			if err != nil {
				return Null, err
			}
			elems[i] = v
		}
		return List(elems), nil
	case *mapExpr:
		m := make(map[string]Value, len(node.keys))
		for i := range node.keys {
			k, err := in.evalExpr(node.keys[i])
			if err != nil {
				return Null, err
			}
			if k.Kind != KindString {
				return Null, fmt.Errorf("line %d: map key must be string, got %s", node.line, k.Kind)
			}
			v, err := in.evalExpr(node.vals[i])
			if err != nil {
				return Null, err
			}
			m[k.AsString()] = v
		}
		return MapOf(m), nil
	default:
		return Null, fmt.Errorf("unhandled expression %T", x)
	}
}

func (in *interp) evalUnary(node *unaryExpr) (Value, error) {
	v, err := in.evalExpr(node.x)
	if err != nil {
		return Null, err
	}
	switch node.op {
	case tokMinus:
		switch v.Kind {
		case KindInt:
			return Int(-v.AsInt()), nil
		case KindFloat:
			return Float(-v.AsFloat()), nil
		}
		return Null, fmt.Errorf("line %d: cannot negate %s", node.line, v.Kind)
	case tokNot:
		return Bool(!v.Truthy()), nil
	}
	return Null, fmt.Errorf("line %d: unhandled unary operator", node.line)
}

func (in *interp) evalBinary(node *binaryExpr) (Value, error) {
	// Short-circuit logic first.
	if node.op == tokAnd || node.op == tokOr {
		lhs, err := in.evalExpr(node.lhs)
		if err != nil {
			return Null, err
		}
		if node.op == tokAnd && !lhs.Truthy() {
			return Bool(false), nil
		}
		if node.op == tokOr && lhs.Truthy() {
			return Bool(true), nil
		}
		rhs, err := in.evalExpr(node.rhs)
		if err != nil {
			return Null, err
		}
		return Bool(rhs.Truthy()), nil
	}

	lhs, err := in.evalExpr(node.lhs)
	if err != nil {
		return Null, err
	}
	rhs, err := in.evalExpr(node.rhs)
	if err != nil {
		return Null, err
	}

	switch node.op {
	case tokEq:
		return Bool(Equal(lhs, rhs)), nil
	case tokNeq:
		return Bool(!Equal(lhs, rhs)), nil
	}

	if lhs.Kind == KindString && rhs.Kind == KindString {
		return stringBinary(node.op, lhs.AsString(), rhs.AsString(), node.line)
	}
	if lhs.Kind == KindList && rhs.Kind == KindList && node.op == tokPlus {
		merged := make([]Value, 0, len(lhs.AsList())+len(rhs.AsList()))
		merged = append(merged, lhs.AsList()...)
		merged = append(merged, rhs.AsList()...)
		return List(merged), nil
	}
	return numericBinary(node.op, lhs, rhs, node.line)
}

func stringBinary(op tokenType, a, b string, line int) (Value, error) {
	switch op {
	case tokPlus:
		return Str(a + b), nil
	case tokLt:
		return Bool(a < b), nil
	case tokLte:
		return Bool(a <= b), nil
	case tokGt:
		return Bool(a > b), nil
	case tokGte:
		return Bool(a >= b), nil
	}
	return Null, fmt.Errorf("line %d: unsupported string operation", line)
}

func numericBinary(op tokenType, lhs, rhs Value, line int) (Value, error) {
	if lhs.Kind == KindInt && rhs.Kind == KindInt {
		a, b := lhs.AsInt(), rhs.AsInt()
		switch op {
		case tokPlus:
			return Int(a + b), nil
		case tokMinus:
			return Int(a - b), nil
		case tokStar:
			return Int(a * b), nil
		case tokSlash:
			if b == 0 {
				return Null, fmt.Errorf("line %d: division by zero", line)
			}
			return Int(a / b), nil
		case tokPercent:
			if b == 0 {
				return Null, fmt.Errorf("line %d: division by zero", line)
			}
			return Int(a % b), nil
		case tokLt:
			return Bool(a < b), nil
		case tokLte:
			return Bool(a <= b), nil
		case tokGt:
			return Bool(a > b), nil
		case tokGte:
			return Bool(a >= b), nil
		}
	}

	af, aok := toFloat(lhs)
	bf, bok := toFloat(rhs)
	if !aok || !bok {
		return Null, fmt.Errorf("line %d: unsupported operand types %s and %s", line, lhs.Kind, rhs.Kind)
	}
	switch op {
	case tokPlus:
		return Float(af + bf), nil
	case tokMinus:
		return Float(af - bf), nil
	case tokStar:
		return Float(af * bf), nil
	case tokSlash:
		if bf == 0 {
			return Null, fmt.Errorf("line %d: division by zero", line)
		}
		return Float(af / bf), nil
	case tokLt:
		return Bool(af < bf), nil
	case tokLte:
		return Bool(af <= bf), nil
	case tokGt:
		return Bool(af > bf), nil
	case tokGte:
		return Bool(af >= bf), nil
	}
	return Null, fmt.Errorf("line %d: unsupported numeric operation", line)
}

func toFloat(v Value) (float64, bool) {
	switch v.Kind {
	case KindInt:
		return float64(v.AsInt()), true
	case KindFloat:
		return v.AsFloat(), true
	default:
		return 0, false
	}
}

func (in *interp) evalIndex(node *indexExpr) (Value, error) {
	x, err := in.evalExpr(node.x)
	if err != nil {
		return Null, err
	}
	if node.slice {
		return in.evalSlice(node, x)
	}
	key, err := in.evalExpr(node.lo)
	if err != nil {
		return Null, err
	}
	switch x.Kind {
	case KindString:
		if key.Kind != KindInt {
			return Null, fmt.Errorf("line %d: string index must be int, got %s", node.line, key.Kind)
		}
		s := x.AsString()
		i, err := normalizeIndex(key.AsInt(), len(s), node.line)
		if err != nil {
			return Null, err
		}
		return Str(s[i : i+1]), nil
	case KindList:
		if key.Kind != KindInt {
			return Null, fmt.Errorf("line %d: list index must be int, got %s", node.line, key.Kind)
		}
		xs := x.AsList()
		i, err := normalizeIndex(key.AsInt(), len(xs), node.line)
		if err != nil {
			return Null, err
		}
		return xs[i], nil
	case KindMap:
		if key.Kind != KindString {
			return Null, fmt.Errorf("line %d: map key must be string, got %s", node.line, key.Kind)
		}
		v, ok := x.AsMap()[key.AsString()]
		if !ok {
			return Null, fmt.Errorf("line %d: key %q not found", node.line, key.AsString())
		}
		return v, nil
	default:
		return Null, fmt.Errorf("line %d: cannot index %s", node.line, x.Kind)
	}
}

// evalSlice implements x[lo:hi] over strings and lists with negative offsets
// counted from the end and out-of-range bounds clamped.
func (in *interp) evalSlice(node *indexExpr, x Value) (Value, error) {
	var length int
	switch x.Kind {
	case KindString:
		length = len(x.AsString())
	case KindList:
		length = len(x.AsList())
	default:
		return Null, fmt.Errorf("line %d: cannot slice %s", node.line, x.Kind)
	}

	lo, hi := 0, length
	if node.lo != nil {
		v, err := in.evalExpr(node.lo)
		if err != nil {
			return Null, err
		}
		if v.Kind != KindInt {
			return Null, fmt.Errorf("line %d: slice bound must be int, got %s", node.line, v.Kind)
		}
		lo = clampIndex(v.AsInt(), length)
	}
	if node.hi != nil {
		v, err := in.evalExpr(node.hi)
		if err != nil {
			return Null, err
		}
		if v.Kind != KindInt {
			return Null, fmt.Errorf("line %d: slice bound must be int, got %s", node.line, v.Kind)
		}
		hi = clampIndex(v.AsInt(), length)
	}
	if lo > hi {
		lo = hi
	}
	if x.Kind == KindString {
		return Str(x.AsString()[lo:hi]), nil
	}
	out := make([]Value, hi-lo)
	copy(out, x.AsList()[lo:hi])
	return List(out), nil
}

func (in *interp) evalCall(node *callExpr) (Value, error) {
	if restrictedNames[node.name] {
		return Null, restrictedError(node.name)
	}

	// try is a form, not a function: its argument is evaluated under error
	// capture so sandbox code can observe sub-call and runtime failures.
	if node.name == "try" {
		return in.evalTry(node)
	}

	b, ok := in.sb.caps[node.name]
	if !ok {
		if _, bound := in.sb.ns.lookup(node.name); bound {
			return Null, fmt.Errorf("line %d: %q is a variable, not a callable operation", node.line, node.name)
		}
		return Null, fmt.Errorf("line %d: unknown operation %q", node.line, node.name)
	}

	args := make([]Value, len(node.args))
	for i, a := range node.args {
		v, err := in.evalExpr(a)
		if err != nil {
			return Null, err
		}
		args[i] = v
	}
	if len(args) < b.minArgs || (b.maxArgs >= 0 && len(args) > b.maxArgs) {
		return Null, fmt.Errorf("line %d: %s: wrong number of arguments (got %d)", node.line, b.name, len(args))
	}
	v, err := b.fn(in, args)
	if err != nil {
		var fe *fatalError
		if errors.As(err, &fe) {
			return Null, err
		}
		return Null, fmt.Errorf("line %d: %s: %w", node.line, b.name, err)
	}
	return v, nil
}

func (in *interp) evalTry(node *callExpr) (Value, error) {
	if len(node.args) != 1 {
		return Null, fmt.Errorf("line %d: try takes exactly one expression", node.line)
	}
	v, err := in.evalExpr(node.args[0])
	if err != nil {
		var fe *fatalError
		if errors.As(err, &fe) {
			return Null, err
		}
		return MapOf(map[string]Value{
			"ok":    Bool(false),
			"value": Null,
			"error": Str(err.Error()),
		}), nil
	}
	return MapOf(map[string]Value{
		"ok":    Bool(true),
		"value": v,
		"error": Str(""),
	}), nil
}

// normalizeIndex resolves a possibly-negative index against length, erroring
// when out of range.
func normalizeIndex(i int64, length int, line int) (int, error) {
	idx := int(i)
	if idx < 0 {
		idx += length
	}
	if idx < 0 || idx >= length {
		return 0, fmt.Errorf("line %d: index %d out of range (length %d)", line, i, length)
	}
	return idx, nil
}

// clampIndex resolves a possibly-negative slice bound against length,
// clamping into [0, length].
func clampIndex(i int64, length int) int {
	idx := int(i)
	if idx < 0 {
		idx += length
	}
	if idx < 0 {
		return 0
	}
	if idx > length {
		return length
	}
	return idx
}
