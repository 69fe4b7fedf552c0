package sandbox

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// builtin is one entry of the capability table. maxArgs of -1 means variadic.
type builtin struct {
	name    string
	minArgs int
	maxArgs int
	fn      func(in *interp, args []Value) (Value, error)
}

// maxRange bounds range() allocation so a single call cannot exhaust memory.
const maxRange = 10_000_000

// newCapabilityTable builds the explicit table of operations available to
// sandboxed code. Everything callable lives here; there is no other route to
// host functionality.
func newCapabilityTable() map[string]*builtin {
	table := map[string]*builtin{}
	add := func(b *builtin) { table[b.name] = b }

	// Introspection. vars and get are always present: the model
	// relies on them to explore large contexts.
	add(&builtin{name: "vars", minArgs: 0, maxArgs: 0, fn: func(in *interp, _ []Value) (Value, error) {
		names := in.sb.ns.names()
		out := make([]Value, len(names))
		for i, n := range names {
			out[i] = Str(n)
		}
		return List(out), nil
	}})
	add(&builtin{name: "get", minArgs: 1, maxArgs: 1, fn: func(in *interp, args []Value) (Value, error) {
		name, err := wantString(args[0], "name")
		if err != nil {
			return Null, err
		}
		if restrictedNames[name] {
			return Null, restrictedError(name)
		}
		v, ok := in.sb.ns.lookup(name)
		if !ok {
			return Null, fmt.Errorf("unbound name %q", name)
		}
		return v, nil
	}})
	add(&builtin{name: "print", minArgs: 0, maxArgs: -1, fn: func(in *interp, args []Value) (Value, error) {
		parts := make([]string, len(args))
		for i, a := range args {
			parts[i] = a.Text()
		}
		in.out.WriteString(strings.Join(parts, " "))
		in.out.WriteByte('\n')
		return Null, nil
	}})

	// The fixed sub-call entry point. Execution blocks until the nested
	// completion returns; failures surface as ordinary catchable errors.
	add(&builtin{name: "llm", minArgs: 1, maxArgs: 1, fn: func(in *interp, args []Value) (Value, error) {
		prompt, err := wantString(args[0], "prompt")
		if err != nil {
			return Null, err
		}
		if in.sb.opts.SubCall == nil {
			return Null, errors.New("no sub-call backend configured")
		}
		result, err := in.sb.opts.SubCall(in.ctx, prompt)
		if err != nil {
			return Null, err
		}
		return Str(result), nil
	}})

	// Conversions and generic operations.
	add(&builtin{name: "len", minArgs: 1, maxArgs: 1, fn: func(_ *interp, args []Value) (Value, error) {
		n := args[0].Size()
		if n < 0 {
			return Null, fmt.Errorf("len of %s", args[0].Kind)
		}
		return Int(int64(n)), nil
	}})
	add(&builtin{name: "type", minArgs: 1, maxArgs: 1, fn: func(_ *interp, args []Value) (Value, error) {
		return Str(args[0].Kind.String()), nil
	}})
	add(&builtin{name: "str", minArgs: 1, maxArgs: 1, fn: func(_ *interp, args []Value) (Value, error) {
		return Str(args[0].Text()), nil
	}})
	add(&builtin{name: "int", minArgs: 1, maxArgs: 1, fn: func(_ *interp, args []Value) (Value, error) {
		switch args[0].Kind {
		case KindInt:
			return args[0], nil
		case KindFloat:
			return Int(int64(args[0].AsFloat())), nil
		case KindString:
			n, err := strconv.ParseInt(strings.TrimSpace(args[0].AsString()), 10, 64)
			if err != nil {
				return Null, fmt.Errorf("cannot convert %q to int", args[0].AsString())
			}
			return Int(n), nil
		case KindBool:
			if args[0].AsBool() {
				return Int(1), nil
			}
			return Int(0), nil
		}
		return Null, fmt.Errorf("cannot convert %s to int", args[0].Kind)
	}})
	add(&builtin{name: "float", minArgs: 1, maxArgs: 1, fn: func(_ *interp, args []Value) (Value, error) {
		switch args[0].Kind {
		case KindFloat:
			return args[0], nil
		case KindInt:
			return Float(float64(args[0].AsInt())), nil
		case KindString:
			f, err := strconv.ParseFloat(strings.TrimSpace(args[0].AsString()), 64)
			if err != nil {
				return Null, fmt.Errorf("cannot convert %q to float", args[0].AsString())
			}
			return Float(f), nil
		}
		return Null, fmt.Errorf("cannot convert %s to float", args[0].Kind)
	}})
	add(&builtin{name: "abs", minArgs: 1, maxArgs: 1, fn: func(_ *interp, args []Value) (Value, error) {
		switch args[0].Kind {
		case KindInt:
			if n := args[0].AsInt(); n < 0 {
				return Int(-n), nil
			}
			return args[0], nil
		case KindFloat:
			if f := args[0].AsFloat(); f < 0 {
				return Float(-f), nil
			}
			return args[0], nil
		}
		return Null, fmt.Errorf("abs of %s", args[0].Kind)
	}})
	add(&builtin{name: "min", minArgs: 1, maxArgs: -1, fn: func(_ *interp, args []Value) (Value, error) {
		return pickExtreme(args, false)
	}})
	add(&builtin{name: "max", minArgs: 1, maxArgs: -1, fn: func(_ *interp, args []Value) (Value, error) {
		return pickExtreme(args, true)
	}})
	add(&builtin{name: "range", minArgs: 1, maxArgs: 2, fn: func(in *interp, args []Value) (Value, error) {
		if args[0].Kind != KindInt || (len(args) == 2 && args[1].Kind != KindInt) {
			return Null, errors.New("range bounds must be ints")
		}
		var lo, hi int64
		if len(args) == 1 {
			hi = args[0].AsInt()
		} else {
			lo, hi = args[0].AsInt(), args[1].AsInt()
		}
		if hi < lo {
			hi = lo
		}
		if hi-lo > maxRange {
			return Null, fmt.Errorf("range of %d exceeds limit of %d", hi-lo, maxRange)
		}
		if err := in.charge(int(hi - lo)); err != nil {
			return Null, err
		}
		out := make([]Value, 0, hi-lo)
		for i := lo; i < hi; i++ {
			out = append(out, Int(i))
		}
		return List(out), nil
	}})
	add(&builtin{name: "sum", minArgs: 1, maxArgs: 1, fn: func(in *interp, args []Value) (Value, error) {
		if args[0].Kind != KindList {
			return Null, fmt.Errorf("sum of %s", args[0].Kind)
		}
		if err := in.charge(len(args[0].AsList())); err != nil {
			return Null, err
		}
		var isum int64
		var fsum float64
		isInt := true
		for _, e := range args[0].AsList() {
			switch e.Kind {
			case KindInt:
				isum += e.AsInt()
				fsum += float64(e.AsInt())
			case KindFloat:
				isInt = false
				fsum += e.AsFloat()
			default:
				return Null, fmt.Errorf("sum over non-numeric element %s", e.Kind)
			}
		}
		if isInt {
			return Int(isum), nil
		}
		return Float(fsum), nil
	}})

	// String operations.
	addString := func(name string, minArgs, maxArgs int, fn func(s string, args []Value) (Value, error)) {
		add(&builtin{name: name, minArgs: minArgs, maxArgs: maxArgs, fn: func(_ *interp, args []Value) (Value, error) {
			s, err := wantString(args[0], "text")
			if err != nil {
				return Null, err
			}
			return fn(s, args[1:])
		}})
	}
	addString("upper", 1, 1, func(s string, _ []Value) (Value, error) {
		return Str(strings.ToUpper(s)), nil
	})
	addString("lower", 1, 1, func(s string, _ []Value) (Value, error) {
		return Str(strings.ToLower(s)), nil
	})
	addString("trim", 1, 1, func(s string, _ []Value) (Value, error) {
		return Str(strings.TrimSpace(s)), nil
	})
	addString("lines", 1, 1, func(s string, _ []Value) (Value, error) {
		split := strings.Split(s, "\n")
		out := make([]Value, len(split))
		for i, l := range split {
			out[i] = Str(l)
		}
		return List(out), nil
	})
	addString("split", 2, 2, func(s string, rest []Value) (Value, error) {
		sep, err := wantString(rest[0], "separator")
		if err != nil {
			return Null, err
		}
		split := strings.Split(s, sep)
		out := make([]Value, len(split))
		for i, p := range split {
			out[i] = Str(p)
		}
		return List(out), nil
	})
	addString("contains", 2, 2, func(s string, rest []Value) (Value, error) {
		sub, err := wantString(rest[0], "substring")
		if err != nil {
			return Null, err
		}
		return Bool(strings.Contains(s, sub)), nil
	})
	addString("find", 2, 3, func(s string, rest []Value) (Value, error) {
		sub, err := wantString(rest[0], "substring")
		if err != nil {
			return Null, err
		}
		from := 0
		if len(rest) == 2 {
			if rest[1].Kind != KindInt {
				return Null, errors.New("start offset must be int")
			}
			from = clampIndex(rest[1].AsInt(), len(s))
		}
		i := strings.Index(s[from:], sub)
		if i < 0 {
			return Int(-1), nil
		}
		return Int(int64(from + i)), nil
	})
	addString("count", 2, 2, func(s string, rest []Value) (Value, error) {
		sub, err := wantString(rest[0], "substring")
		if err != nil {
			return Null, err
		}
		return Int(int64(strings.Count(s, sub))), nil
	})
	addString("replace", 3, 3, func(s string, rest []Value) (Value, error) {
		oldS, err := wantString(rest[0], "old")
		if err != nil {
			return Null, err
		}
		newS, err := wantString(rest[1], "new")
		if err != nil {
			return Null, err
		}
		return Str(strings.ReplaceAll(s, oldS, newS)), nil
	})
	add(&builtin{name: "chunk", minArgs: 2, maxArgs: 2, fn: func(in *interp, args []Value) (Value, error) {
		s, err := wantString(args[0], "text")
		if err != nil {
			return Null, err
		}
		if args[1].Kind != KindInt || args[1].AsInt() <= 0 {
			return Null, errors.New("chunk size must be a positive int")
		}
		size := int(args[1].AsInt())
		if err := in.charge(len(s)/size + 1); err != nil {
			return Null, err
		}
		out := make([]Value, 0, len(s)/size+1)
		for start := 0; start < len(s); start += size {
			end := start + size
			if end > len(s) {
				end = len(s)
			}
			out = append(out, Str(s[start:end]))
		}
		return List(out), nil
	}})

	// Sequence and mapping operations.
	add(&builtin{name: "append", minArgs: 2, maxArgs: -1, fn: func(_ *interp, args []Value) (Value, error) {
		if args[0].Kind != KindList {
			return Null, fmt.Errorf("append to %s", args[0].Kind)
		}
		xs := args[0].AsList()
		out := make([]Value, 0, len(xs)+len(args)-1)
		out = append(out, xs...)
		out = append(out, args[1:]...)
		return List(out), nil
	}})
	add(&builtin{name: "join", minArgs: 2, maxArgs: 2, fn: func(_ *interp, args []Value) (Value, error) {
		if args[0].Kind != KindList {
			return Null, fmt.Errorf("join of %s", args[0].Kind)
		}
		sep, err := wantString(args[1], "separator")
		if err != nil {
			return Null, err
		}
		parts := make([]string, len(args[0].AsList()))
		for i, e := range args[0].AsList() {
			parts[i] = e.Text()
		}
		return Str(strings.Join(parts, sep)), nil
	}})
	add(&builtin{name: "sort", minArgs: 1, maxArgs: 1, fn: func(_ *interp, args []Value) (Value, error) {
		if args[0].Kind != KindList {
			return Null, fmt.Errorf("sort of %s", args[0].Kind)
		}
		xs := args[0].AsList()
		out := make([]Value, len(xs))
		copy(out, xs)
		var sortErr error
		sort.SliceStable(out, func(i, j int) bool {
			less, err := valueLess(out[i], out[j])
			if err != nil && sortErr == nil {
				sortErr = err
			}
			return less
		})
		if sortErr != nil {
			return Null, sortErr
		}
		return List(out), nil
	}})
	add(&builtin{name: "keys", minArgs: 1, maxArgs: 1, fn: func(_ *interp, args []Value) (Value, error) {
		if args[0].Kind != KindMap {
			return Null, fmt.Errorf("keys of %s", args[0].Kind)
		}
		ks := sortedKeys(args[0].AsMap())
		out := make([]Value, len(ks))
		for i, k := range ks {
			out[i] = Str(k)
		}
		return List(out), nil
	}})
	add(&builtin{name: "values", minArgs: 1, maxArgs: 1, fn: func(_ *interp, args []Value) (Value, error) {
		if args[0].Kind != KindMap {
			return Null, fmt.Errorf("values of %s", args[0].Kind)
		}
		m := args[0].AsMap()
		out := make([]Value, 0, len(m))
		for _, k := range sortedKeys(m) {
			out = append(out, m[k])
		}
		return List(out), nil
	}})
	add(&builtin{name: "has", minArgs: 2, maxArgs: 2, fn: func(_ *interp, args []Value) (Value, error) {
		if args[0].Kind != KindMap {
			return Null, fmt.Errorf("has on %s", args[0].Kind)
		}
		key, err := wantString(args[1], "key")
		if err != nil {
			return Null, err
		}
		_, ok := args[0].AsMap()[key]
		return Bool(ok), nil
	}})

	return table
}

func wantString(v Value, what string) (string, error) {
	if v.Kind != KindString {
		return "", fmt.Errorf("%s must be a string, got %s", what, v.Kind)
	}
	return v.AsString(), nil
}

func pickExtreme(args []Value, wantMax bool) (Value, error) {
	items := args
	if len(args) == 1 && args[0].Kind == KindList {
		items = args[0].AsList()
	}
	if len(items) == 0 {
		return Null, errors.New("empty sequence")
	}
	best := items[0]
	for _, e := range items[1:] {
		less, err := valueLess(e, best)
		if err != nil {
			return Null, err
		}
		if less != wantMax {
			best = e
		}
	}
	return best, nil
}

func valueLess(a, b Value) (bool, error) {
	if a.Kind == KindString && b.Kind == KindString {
		return a.AsString() < b.AsString(), nil
	}
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if !aok || !bok {
		return false, fmt.Errorf("cannot compare %s and %s", a.Kind, b.Kind)
	}
	return af < bf, nil
}

func sortedKeys(m map[string]Value) []string {
	ks := make([]string, 0, len(m))
	for k := range m {
		ks = append(ks, k)
	}
	sort.Strings(ks)
	return ks
}
