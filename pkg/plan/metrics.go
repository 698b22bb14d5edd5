package plan

import "github.com/TFMV/crossplan/pkg/models"

// Collect walks the plan and gathers shape metrics for diagnostics.
func Collect(n Node) models.PlanMetrics {
	var m models.PlanMetrics
	walkNode(n, 1, &m)
	return m
}

func walkNode(n Node, depth int, m *models.PlanMetrics) {
	if n == nil {
		return
	}
	m.NodeCount++
	if depth > m.Depth {
		m.Depth = depth
	}
	switch t := n.(type) {
	case *SubqueryScan:
		m.SubqueryCount++
		if t.Correlated {
			m.CorrelatedCount++
		}
	case *Window:
		m.WindowCount++
	case *Projection:
		walkExprs(t.Exprs, depth, m)
	case *Filter:
		walkExpr(t.Predicate, depth, m)
	case *Having:
		walkExpr(t.Predicate, depth, m)
	case *Sort:
		for _, it := range t.Items {
			walkExpr(it.Expr, depth, m)
		}
	case *Join:
		walkExpr(t.On, depth, m)
	case *GroupBy:
		walkExprs(t.GroupExprs, depth, m)
		walkExprs(t.AggExprs, depth, m)
	}
	for _, c := range n.Children() {
		walkNode(c, depth+1, m)
	}
}

func walkExprs(xs []Expr, depth int, m *models.PlanMetrics) {
	for _, x := range xs {
		walkExpr(x, depth, m)
	}
}

func walkExpr(x Expr, depth int, m *models.PlanMetrics) {
	if x == nil {
		return
	}
	switch t := x.(type) {
	case *Binary:
		walkExpr(t.Left, depth, m)
		walkExpr(t.Right, depth, m)
	case *Unary:
		walkExpr(t.Operand, depth, m)
	case *Func:
		walkExprs(t.Args, depth, m)
	case *Aggregate:
		walkExprs(t.Args, depth, m)
	case *Case:
		walkExpr(t.Operand, depth, m)
		for _, w := range t.Whens {
			walkExpr(w.Cond, depth, m)
			walkExpr(w.Result, depth, m)
		}
		walkExpr(t.Else, depth, m)
	case *IsNull:
		walkExpr(t.Operand, depth, m)
	case *Like:
		walkExpr(t.Operand, depth, m)
		walkExpr(t.Pattern, depth, m)
	case *InList:
		walkExpr(t.Operand, depth, m)
		walkExprs(t.List, depth, m)
	case *InSubquery:
		m.SubqueryCount++
		if t.Correlated {
			m.CorrelatedCount++
		}
		walkExpr(t.Operand, depth, m)
		walkNode(t.Plan, depth+1, m)
	case *Exists:
		m.SubqueryCount++
		if t.Correlated {
			m.CorrelatedCount++
		}
		walkNode(t.Plan, depth+1, m)
	case *Between:
		walkExpr(t.Operand, depth, m)
		walkExpr(t.Low, depth, m)
		walkExpr(t.High, depth, m)
	case *Alias:
		walkExpr(t.Expr, depth, m)
	case *WindowFunc:
		m.WindowCount++
		walkExprs(t.Args, depth, m)
		walkExprs(t.Spec.PartitionBy, depth, m)
		for _, it := range t.Spec.OrderBy {
			walkExpr(it.Expr, depth, m)
		}
	case *ScalarSubquery:
		m.SubqueryCount++
		if t.Correlated {
			m.CorrelatedCount++
		}
		walkNode(t.Plan, depth+1, m)
	}
}
