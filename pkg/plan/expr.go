package plan

// Expr is a scalar expression within a plan node.
type Expr interface {
	expr()
}

// LiteralKind discriminates Literal values.
type LiteralKind int

const (
	LiteralString LiteralKind = iota
	LiteralInt
	LiteralFloat
	LiteralBool
	LiteralNull
)

// BinaryOp is an infix operator.
type BinaryOp string

const (
	OpAdd BinaryOp = "+"
	OpSub BinaryOp = "-"
	OpMul BinaryOp = "*"
	OpDiv BinaryOp = "/"
	OpMod BinaryOp = "%"
	OpEq  BinaryOp = "="
	OpNe  BinaryOp = "<>"
	OpLt  BinaryOp = "<"
	OpLe  BinaryOp = "<="
	OpGt  BinaryOp = ">"
	OpGe  BinaryOp = ">="
	OpAnd BinaryOp = "AND"
	OpOr  BinaryOp = "OR"
)

// UnaryOp is a prefix operator.
type UnaryOp string

const (
	OpNot UnaryOp = "NOT"
	OpNeg UnaryOp = "-"
)

// Column references a column, optionally table-qualified.
type Column struct {
	Table string
	Name  string
}

// Literal is a constant value. Exactly one value field is meaningful,
// selected by Kind; LiteralNull carries none.
type Literal struct {
	Kind  LiteralKind
	Str   string
	Int   int64
	Float float64
	Bool  bool
}

// Binary applies an infix operator.
type Binary struct {
	Op    BinaryOp
	Left  Expr
	Right Expr
}

// Unary applies a prefix operator.
type Unary struct {
	Op      UnaryOp
	Operand Expr
}

// Func is a scalar function call.
type Func struct {
	Name string
	Args []Expr
}

// Aggregate is an aggregate function call.
type Aggregate struct {
	Name     string
	Args     []Expr
	Distinct bool
}

// When pairs a CASE branch condition with its result.
type When struct {
	Cond   Expr
	Result Expr
}

// Case is a CASE expression. Operand is nil in the searched form; Else is
// nil when no ELSE branch was given.
type Case struct {
	Operand Expr
	Whens   []When
	Else    Expr
}

// IsNull tests for NULL (IS [NOT] NULL).
type IsNull struct {
	Operand Expr
	Negated bool
}

// Like is a [NOT] LIKE pattern match.
type Like struct {
	Operand Expr
	Pattern Expr
	Negated bool
}

// InList tests membership in a literal list.
type InList struct {
	Operand Expr
	List    []Expr
	Negated bool
}

// InSubquery tests membership in a subquery result.
type InSubquery struct {
	Operand    Expr
	Plan       Node
	Negated    bool
	Correlated bool
}

// Exists tests for subquery non-emptiness.
type Exists struct {
	Plan       Node
	Negated    bool
	Correlated bool
}

// Between is a range test.
type Between struct {
	Operand Expr
	Low     Expr
	High    Expr
	Negated bool
}

// Alias names a projected expression (AS).
type Alias struct {
	Expr Expr
	Name string
}

// Star is the * projection, optionally table-qualified (t.*).
type Star struct {
	Table string
}

// WindowFunc is a window function call. Over names a WINDOW clause
// definition when non-empty; otherwise Spec holds the inline window.
type WindowFunc struct {
	Name string
	Args []Expr
	Over string
	Spec WindowSpec
}

// ScalarSubquery is a subquery used as a scalar value.
type ScalarSubquery struct {
	Plan       Node
	Correlated bool
}

// Raw carries a fragment of SQL text restored verbatim from the source for
// constructs with no first-class representation. The emitter quotes nothing
// inside it.
type Raw struct {
	SQL string
}

func (*Column) expr()         {}
func (*Literal) expr()        {}
func (*Binary) expr()         {}
func (*Unary) expr()          {}
func (*Func) expr()           {}
func (*Aggregate) expr()      {}
func (*Case) expr()           {}
func (*IsNull) expr()         {}
func (*Like) expr()           {}
func (*InList) expr()         {}
func (*InSubquery) expr()     {}
func (*Exists) expr()         {}
func (*Between) expr()        {}
func (*Alias) expr()          {}
func (*Star) expr()           {}
func (*WindowFunc) expr()     {}
func (*ScalarSubquery) expr() {}
func (*Raw) expr()            {}

// Conjuncts splits a predicate on top-level ANDs.
func Conjuncts(e Expr) []Expr {
	if b, ok := e.(*Binary); ok && b.Op == OpAnd {
		return append(Conjuncts(b.Left), Conjuncts(b.Right)...)
	}
	return []Expr{e}
}

// AndAll joins predicates with AND; nil for an empty slice.
func AndAll(preds []Expr) Expr {
	if len(preds) == 0 {
		return nil
	}
	out := preds[0]
	for _, p := range preds[1:] {
		out = &Binary{Op: OpAnd, Left: out, Right: p}
	}
	return out
}
