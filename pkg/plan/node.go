// Package plan defines the backend-agnostic logical plan IR produced by the
// parser, transformed by the rewrite engine, and consumed by the emitter.
//
// Plan trees are treated as immutable once constructed: transformations build
// new nodes and share untouched subtrees rather than mutating in place.
package plan

// JoinKind identifies the join operator variant.
type JoinKind int

const (
	JoinInner JoinKind = iota
	JoinLeft
	JoinRight
	JoinFull
	JoinCross
)

// String returns the SQL keyword form of the join kind.
func (k JoinKind) String() string {
	switch k {
	case JoinInner:
		return "INNER JOIN"
	case JoinLeft:
		return "LEFT JOIN"
	case JoinRight:
		return "RIGHT JOIN"
	case JoinFull:
		return "FULL JOIN"
	case JoinCross:
		return "CROSS JOIN"
	}
	return "JOIN"
}

// SortItem is one ORDER BY term.
type SortItem struct {
	Expr Expr
	Desc bool
}

// WindowSpec is a window definition, either named (WINDOW clause) or inline
// in an OVER(...).
type WindowSpec struct {
	Name        string
	PartitionBy []Expr
	OrderBy     []SortItem
	// Frame holds the frame clause text verbatim (e.g. "ROWS BETWEEN ...");
	// empty when the window has no explicit frame.
	Frame string
}

// Node is a relational operator in a logical plan tree.
type Node interface {
	// Children returns the node's input plans in a fixed order.
	Children() []Node
	node()
}

// TableScan reads a base table (or collection), optionally aliased.
type TableScan struct {
	Schema string
	Table  string
	Alias  string
}

// Projection evaluates the select list over its input.
type Projection struct {
	Exprs []Expr
	Input Node
}

// Filter keeps input rows satisfying the predicate (WHERE).
type Filter struct {
	Predicate Expr
	Input     Node
}

// Sort orders its input by the given terms.
type Sort struct {
	Items []SortItem
	Input Node
}

// Limit truncates its input. Offset is zero when no OFFSET was given.
type Limit struct {
	Count  int64
	Offset int64
	Input  Node
}

// Join combines two inputs. On is nil for CROSS joins.
type Join struct {
	Kind  JoinKind
	Left  Node
	Right Node
	On    Expr
}

// GroupBy groups its input and evaluates aggregates per group.
type GroupBy struct {
	GroupExprs []Expr
	AggExprs   []Expr
	Input      Node
}

// Having filters groups after aggregation.
type Having struct {
	Predicate Expr
	Input     Node
}

// Distinct removes duplicate rows.
type Distinct struct {
	Input Node
}

// Union combines the result sets of its inputs. All preserves duplicates.
type Union struct {
	Inputs []Node
	All    bool
}

// Window carries named WINDOW clause definitions for its input scope.
type Window struct {
	Specs []WindowSpec
	Input Node
}

// SubqueryScan is a derived table in FROM. Correlated is set when the inner
// plan references columns from an enclosing scope.
type SubqueryScan struct {
	Plan       Node
	Alias      string
	Correlated bool
}

// CTE binds one common table expression over Body. Several CTEs in one WITH
// clause nest outward-in: the first CTE is the outermost node.
type CTE struct {
	Name      string
	Recursive bool
	Def       Node
	Body      Node
}

func (*TableScan) node()    {}
func (*Projection) node()   {}
func (*Filter) node()       {}
func (*Sort) node()         {}
func (*Limit) node()        {}
func (*Join) node()         {}
func (*GroupBy) node()      {}
func (*Having) node()       {}
func (*Distinct) node()     {}
func (*Union) node()        {}
func (*Window) node()       {}
func (*SubqueryScan) node() {}
func (*CTE) node()          {}

func (*TableScan) Children() []Node { return nil }

// A Projection with a nil Input is a FROM-less SELECT.
func (n *Projection) Children() []Node {
	if n.Input == nil {
		return nil
	}
	return []Node{n.Input}
}
func (n *Filter) Children() []Node       { return []Node{n.Input} }
func (n *Sort) Children() []Node         { return []Node{n.Input} }
func (n *Limit) Children() []Node        { return []Node{n.Input} }
func (n *Join) Children() []Node         { return []Node{n.Left, n.Right} }
func (n *GroupBy) Children() []Node      { return []Node{n.Input} }
func (n *Having) Children() []Node       { return []Node{n.Input} }
func (n *Distinct) Children() []Node     { return []Node{n.Input} }
func (n *Union) Children() []Node        { return n.Inputs }
func (n *Window) Children() []Node       { return []Node{n.Input} }
func (n *SubqueryScan) Children() []Node { return []Node{n.Plan} }
func (n *CTE) Children() []Node          { return []Node{n.Def, n.Body} }
