package sandbox

// Statement nodes. The set is closed; the interpreter switches exhaustively.
type stmt interface{ isStmt() }

// assignStmt binds the result of Value to Target (a plain name) or to an
// index expression Target[Key].
type assignStmt struct {
	name  string
	index expr // nil for plain name assignment
	value expr
	line  int
}

type exprStmt struct {
	x    expr
	line int
}

type ifStmt struct {
	cond expr
	then []stmt
	els  []stmt // nil when no else branch
	line int
}

type forStmt struct {
	loopVar string
	iter    expr
	body    []stmt
	line    int
}

func (*assignStmt) isStmt() {}
func (*exprStmt) isStmt()   {}
func (*ifStmt) isStmt()     {}
func (*forStmt) isStmt()    {}

// Expression nodes.
type expr interface{ isExpr() }

type literalExpr struct {
	val Value
}

type identExpr struct {
	name string
	line int
}

type unaryExpr struct {
	op   tokenType // tokMinus or tokNot
	x    expr
	line int
}

type binaryExpr struct {
	op   tokenType
	lhs  expr
	rhs  expr
	line int
}

// indexExpr covers both single indexing x[i] and slicing x[lo:hi]; lo/hi may
// be nil in a slice to mean start/end.
type indexExpr struct {
	x     expr
	lo    expr
	hi    expr
	slice bool
	line  int
}

// callExpr invokes a capability-table operation by name. Only identifiers
// are callable; the sandbox has no first-class functions.
type callExpr struct {
	name string
	args []expr
	line int
}

type listExpr struct {
	elems []expr
}

type mapExpr struct {
	keys []expr
	vals []expr
	line int
}

func (*literalExpr) isExpr() {}
func (*identExpr) isExpr()   {}
func (*unaryExpr) isExpr()   {}
func (*binaryExpr) isExpr()  {}
func (*indexExpr) isExpr()   {}
func (*callExpr) isExpr()    {}
func (*listExpr) isExpr()    {}
func (*mapExpr) isExpr()     {}
