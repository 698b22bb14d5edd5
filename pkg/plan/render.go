package plan

import (
	"fmt"
	"strconv"
	"strings"
)

// Render returns an indented textual tree of the plan for diagnostics.
func Render(n Node) string {
	var sb strings.Builder
	renderNode(&sb, n, 0)
	return sb.String()
}

func renderNode(sb *strings.Builder, n Node, depth int) {
	if n == nil {
		return
	}
	indent := strings.Repeat("  ", depth)
	switch t := n.(type) {
	case *TableScan:
		sb.WriteString(indent + "TableScan " + scanName(t))
	case *Projection:
		sb.WriteString(indent + "Projection " + exprList(t.Exprs))
	case *Filter:
		sb.WriteString(indent + "Filter " + ExprString(t.Predicate))
	case *Sort:
		items := make([]string, len(t.Items))
		for i, it := range t.Items {
			items[i] = ExprString(it.Expr)
			if it.Desc {
				items[i] += " DESC"
			}
		}
		sb.WriteString(indent + "Sort " + strings.Join(items, ", "))
	case *Limit:
		sb.WriteString(indent + "Limit count=" + strconv.FormatInt(t.Count, 10))
		if t.Offset > 0 {
			sb.WriteString(" offset=" + strconv.FormatInt(t.Offset, 10))
		}
	case *Join:
		sb.WriteString(indent + t.Kind.String())
		if t.On != nil {
			sb.WriteString(" on=" + ExprString(t.On))
		}
	case *GroupBy:
		sb.WriteString(indent + "GroupBy " + exprList(t.GroupExprs))
		if len(t.AggExprs) > 0 {
			sb.WriteString(" aggs=" + exprList(t.AggExprs))
		}
	case *Having:
		sb.WriteString(indent + "Having " + ExprString(t.Predicate))
	case *Distinct:
		sb.WriteString(indent + "Distinct")
	case *Union:
		if t.All {
			sb.WriteString(indent + "UnionAll")
		} else {
			sb.WriteString(indent + "Union")
		}
	case *Window:
		names := make([]string, len(t.Specs))
		for i := range t.Specs {
			names[i] = t.Specs[i].Name
		}
		sb.WriteString(indent + "Window " + strings.Join(names, ", "))
	case *SubqueryScan:
		sb.WriteString(indent + "SubqueryScan")
		if t.Alias != "" {
			sb.WriteString(" as " + t.Alias)
		}
		if t.Correlated {
			sb.WriteString(" correlated")
		}
	case *CTE:
		sb.WriteString(indent + "CTE " + t.Name)
		if t.Recursive {
			sb.WriteString(" recursive")
		}
	}
	sb.WriteString("\n")
	for _, c := range n.Children() {
		renderNode(sb, c, depth+1)
	}
}

func scanName(t *TableScan) string {
	name := t.Table
	if t.Schema != "" {
		name = t.Schema + "." + name
	}
	if t.Alias != "" {
		name += " as " + t.Alias
	}
	return name
}

func exprList(xs []Expr) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = ExprString(x)
	}
	return strings.Join(parts, ", ")
}

// ExprString renders an expression in a neutral textual form for debug
// output. It is not dialect-quoted SQL; the emitter owns that.
func ExprString(e Expr) string {
	switch t := e.(type) {
	case nil:
		return ""
	case *Column:
		if t.Table != "" {
			return t.Table + "." + t.Name
		}
		return t.Name
	case *Literal:
		switch t.Kind {
		case LiteralString:
			return "'" + t.Str + "'"
		case LiteralInt:
			return strconv.FormatInt(t.Int, 10)
		case LiteralFloat:
			return strconv.FormatFloat(t.Float, 'g', -1, 64)
		case LiteralBool:
			if t.Bool {
				return "TRUE"
			}
			return "FALSE"
		case LiteralNull:
			return "NULL"
		}
	case *Binary:
		return "(" + ExprString(t.Left) + " " + string(t.Op) + " " + ExprString(t.Right) + ")"
	case *Unary:
		if t.Op == OpNot {
			return "NOT " + ExprString(t.Operand)
		}
		return string(t.Op) + ExprString(t.Operand)
	case *Func:
		return t.Name + "(" + exprList(t.Args) + ")"
	case *Aggregate:
		inner := exprList(t.Args)
		if t.Distinct {
			inner = "DISTINCT " + inner
		}
		return t.Name + "(" + inner + ")"
	case *Case:
		var sb strings.Builder
		sb.WriteString("CASE")
		if t.Operand != nil {
			sb.WriteString(" " + ExprString(t.Operand))
		}
		for _, w := range t.Whens {
			sb.WriteString(" WHEN " + ExprString(w.Cond) + " THEN " + ExprString(w.Result))
		}
		if t.Else != nil {
			sb.WriteString(" ELSE " + ExprString(t.Else))
		}
		sb.WriteString(" END")
		return sb.String()
	case *IsNull:
		if t.Negated {
			return ExprString(t.Operand) + " IS NOT NULL"
		}
		return ExprString(t.Operand) + " IS NULL"
	case *Like:
		op := " LIKE "
		if t.Negated {
			op = " NOT LIKE "
		}
		return ExprString(t.Operand) + op + ExprString(t.Pattern)
	case *InList:
		op := " IN "
		if t.Negated {
			op = " NOT IN "
		}
		return ExprString(t.Operand) + op + "(" + exprList(t.List) + ")"
	case *InSubquery:
		op := " IN "
		if t.Negated {
			op = " NOT IN "
		}
		return ExprString(t.Operand) + op + "(<subquery>)"
	case *Exists:
		if t.Negated {
			return "NOT EXISTS(<subquery>)"
		}
		return "EXISTS(<subquery>)"
	case *Between:
		op := " BETWEEN "
		if t.Negated {
			op = " NOT BETWEEN "
		}
		return ExprString(t.Operand) + op + ExprString(t.Low) + " AND " + ExprString(t.High)
	case *Alias:
		return ExprString(t.Expr) + " AS " + t.Name
	case *Star:
		if t.Table != "" {
			return t.Table + ".*"
		}
		return "*"
	case *WindowFunc:
		over := t.Over
		if over == "" {
			over = "..."
		}
		return t.Name + "(" + exprList(t.Args) + ") OVER (" + over + ")"
	case *ScalarSubquery:
		return "(<subquery>)"
	case *Raw:
		return t.SQL
	}
	return fmt.Sprintf("%v", e)
}
