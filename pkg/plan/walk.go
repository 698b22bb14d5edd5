package plan

import "strings"

// Visit walks the plan preorder, descending into subquery plans embedded in
// expressions. The walk stops early when fn returns false.
func Visit(n Node, fn func(Node) bool) bool {
	if n == nil {
		return true
	}
	if !fn(n) {
		return false
	}
	if !visitNodeExprs(n, fn) {
		return false
	}
	for _, c := range n.Children() {
		if !Visit(c, fn) {
			return false
		}
	}
	return true
}

// ReferencesTable reports whether any scan in the plan reads the named
// table. Matching ignores case; a CTE's self-reference check uses this.
func ReferencesTable(n Node, table string) bool {
	found := false
	Visit(n, func(node Node) bool {
		if ts, ok := node.(*TableScan); ok && strings.EqualFold(ts.Table, table) {
			found = true
			return false
		}
		return true
	})
	return found
}

func visitNodeExprs(n Node, fn func(Node) bool) bool {
	return visitExprPlans(nodeExprs(n), fn)
}

// nodeExprs returns the expressions held directly by a node.
func nodeExprs(n Node) []Expr {
	switch t := n.(type) {
	case *Projection:
		return t.Exprs
	case *Filter:
		return []Expr{t.Predicate}
	case *Having:
		return []Expr{t.Predicate}
	case *Join:
		if t.On != nil {
			return []Expr{t.On}
		}
	case *GroupBy:
		return append(append([]Expr{}, t.GroupExprs...), t.AggExprs...)
	case *Sort:
		out := make([]Expr, 0, len(t.Items))
		for _, it := range t.Items {
			out = append(out, it.Expr)
		}
		return out
	}
	return nil
}

// ExprColumns collects every column the expression references, descending
// into embedded subquery plans.
func ExprColumns(e Expr) []*Column {
	var cols []*Column
	collectExprColumns(e, &cols)
	return cols
}

func collectExprColumns(e Expr, cols *[]*Column) {
	switch t := e.(type) {
	case nil:
	case *Column:
		*cols = append(*cols, t)
	case *Binary:
		collectExprColumns(t.Left, cols)
		collectExprColumns(t.Right, cols)
	case *Unary:
		collectExprColumns(t.Operand, cols)
	case *Func:
		for _, a := range t.Args {
			collectExprColumns(a, cols)
		}
	case *Aggregate:
		for _, a := range t.Args {
			collectExprColumns(a, cols)
		}
	case *Case:
		collectExprColumns(t.Operand, cols)
		for _, w := range t.Whens {
			collectExprColumns(w.Cond, cols)
			collectExprColumns(w.Result, cols)
		}
		collectExprColumns(t.Else, cols)
	case *IsNull:
		collectExprColumns(t.Operand, cols)
	case *Like:
		collectExprColumns(t.Operand, cols)
		collectExprColumns(t.Pattern, cols)
	case *InList:
		collectExprColumns(t.Operand, cols)
		for _, v := range t.List {
			collectExprColumns(v, cols)
		}
	case *InSubquery:
		collectExprColumns(t.Operand, cols)
		collectPlanColumns(t.Plan, cols)
	case *Exists:
		collectPlanColumns(t.Plan, cols)
	case *Between:
		collectExprColumns(t.Operand, cols)
		collectExprColumns(t.Low, cols)
		collectExprColumns(t.High, cols)
	case *Alias:
		collectExprColumns(t.Expr, cols)
	case *WindowFunc:
		for _, a := range t.Args {
			collectExprColumns(a, cols)
		}
		for _, p := range t.Spec.PartitionBy {
			collectExprColumns(p, cols)
		}
		for _, it := range t.Spec.OrderBy {
			collectExprColumns(it.Expr, cols)
		}
	case *ScalarSubquery:
		collectPlanColumns(t.Plan, cols)
	}
}

func collectPlanColumns(n Node, cols *[]*Column) {
	Visit(n, func(node Node) bool {
		for _, x := range nodeExprs(node) {
			collectExprColumns(x, cols)
		}
		return true
	})
}

func visitExprPlans(xs []Expr, fn func(Node) bool) bool {
	for _, x := range xs {
		if !visitExprPlan(x, fn) {
			return false
		}
	}
	return true
}

func visitExprPlan(x Expr, fn func(Node) bool) bool {
	switch t := x.(type) {
	case nil:
		return true
	case *Binary:
		return visitExprPlan(t.Left, fn) && visitExprPlan(t.Right, fn)
	case *Unary:
		return visitExprPlan(t.Operand, fn)
	case *Func:
		return visitExprPlans(t.Args, fn)
	case *Aggregate:
		return visitExprPlans(t.Args, fn)
	case *Case:
		if !visitExprPlan(t.Operand, fn) {
			return false
		}
		for _, w := range t.Whens {
			if !visitExprPlan(w.Cond, fn) || !visitExprPlan(w.Result, fn) {
				return false
			}
		}
		return visitExprPlan(t.Else, fn)
	case *IsNull:
		return visitExprPlan(t.Operand, fn)
	case *Like:
		return visitExprPlan(t.Operand, fn) && visitExprPlan(t.Pattern, fn)
	case *InList:
		return visitExprPlan(t.Operand, fn) && visitExprPlans(t.List, fn)
	case *InSubquery:
		return visitExprPlan(t.Operand, fn) && Visit(t.Plan, fn)
	case *Exists:
		return Visit(t.Plan, fn)
	case *Between:
		return visitExprPlan(t.Operand, fn) && visitExprPlan(t.Low, fn) && visitExprPlan(t.High, fn)
	case *Alias:
		return visitExprPlan(t.Expr, fn)
	case *WindowFunc:
		return visitExprPlans(t.Args, fn)
	case *ScalarSubquery:
		return Visit(t.Plan, fn)
	}
	return true
}
