package parser

import (
	"strings"

	"github.com/pingcap/tidb/parser/ast"
	"github.com/pingcap/tidb/parser/format"
	"github.com/pingcap/tidb/parser/opcode"
	"github.com/pingcap/tidb/parser/test_driver"

	"github.com/TFMV/crossplan/pkg/errors"
	"github.com/TFMV/crossplan/pkg/plan"
)

func lowerExpr(expr ast.ExprNode, sc *scope) (plan.Expr, error) {
	if expr == nil {
		return nil, nil
	}

	switch e := expr.(type) {
	case *ast.ColumnNameExpr:
		col := &plan.Column{Table: e.Name.Table.O, Name: e.Name.Name.O}
		sc.refColumn(col.Table)
		return col, nil

	case *test_driver.ValueExpr:
		return lowerValue(e)

	case *ast.BinaryOperationExpr:
		op, ok := lowerOp(e.Op)
		if !ok {
			return restoreRaw(e)
		}
		l, err := lowerExpr(e.L, sc)
		if err != nil {
			return nil, err
		}
		r, err := lowerExpr(e.R, sc)
		if err != nil {
			return nil, err
		}
		return &plan.Binary{Op: op, Left: l, Right: r}, nil

	case *ast.ParenthesesExpr:
		return lowerExpr(e.Expr, sc)

	case *ast.UnaryOperationExpr:
		inner, err := lowerExpr(e.V, sc)
		if err != nil {
			return nil, err
		}
		switch e.Op {
		case opcode.Not, opcode.Not2:
			return &plan.Unary{Op: plan.OpNot, Operand: inner}, nil
		case opcode.Minus:
			// Fold negation into numeric literals.
			if lit, ok := inner.(*plan.Literal); ok {
				switch lit.Kind {
				case plan.LiteralInt:
					return &plan.Literal{Kind: plan.LiteralInt, Int: -lit.Int}, nil
				case plan.LiteralFloat:
					return &plan.Literal{Kind: plan.LiteralFloat, Float: -lit.Float}, nil
				}
			}
			return &plan.Unary{Op: plan.OpNeg, Operand: inner}, nil
		case opcode.Plus:
			return inner, nil
		}
		return restoreRaw(e)

	case *ast.FuncCallExpr:
		args, err := lowerExprs(e.Args, sc)
		if err != nil {
			return nil, err
		}
		return &plan.Func{Name: e.FnName.O, Args: args}, nil

	case *ast.AggregateFuncExpr:
		args, err := lowerAggArgs(e.Args, sc)
		if err != nil {
			return nil, err
		}
		return &plan.Aggregate{Name: strings.ToUpper(e.F), Args: args, Distinct: e.Distinct}, nil

	case *ast.WindowFuncExpr:
		args, err := lowerExprs(e.Args, sc)
		if err != nil {
			return nil, err
		}
		spec, err := lowerWindowSpec(&e.Spec, sc)
		if err != nil {
			return nil, err
		}
		return &plan.WindowFunc{
			Name: strings.ToUpper(e.Name),
			Args: args,
			Over: e.Spec.Ref.O,
			Spec: spec,
		}, nil

	case *ast.IsNullExpr:
		operand, err := lowerExpr(e.Expr, sc)
		if err != nil {
			return nil, err
		}
		return &plan.IsNull{Operand: operand, Negated: e.Not}, nil

	case *ast.IsTruthExpr:
		// IS [NOT] TRUE/FALSE compares against 1/0, matching how the
		// relational backends evaluate boolean columns.
		operand, err := lowerExpr(e.Expr, sc)
		if err != nil {
			return nil, err
		}
		op := plan.OpEq
		if e.Not {
			op = plan.OpNe
		}
		return &plan.Binary{
			Op:    op,
			Left:  operand,
			Right: &plan.Literal{Kind: plan.LiteralInt, Int: e.True},
		}, nil

	case *ast.PatternLikeOrIlikeExpr:
		operand, err := lowerExpr(e.Expr, sc)
		if err != nil {
			return nil, err
		}
		pattern, err := lowerExpr(e.Pattern, sc)
		if err != nil {
			return nil, err
		}
		return &plan.Like{Operand: operand, Pattern: pattern, Negated: e.Not}, nil

	case *ast.PatternInExpr:
		operand, err := lowerExpr(e.Expr, sc)
		if err != nil {
			return nil, err
		}
		if e.Sel != nil {
			sub, ok := e.Sel.(*ast.SubqueryExpr)
			if !ok {
				return restoreRaw(e)
			}
			p, correlated, err := lowerSubquery(sub.Query, sc)
			if err != nil {
				return nil, err
			}
			return &plan.InSubquery{Operand: operand, Plan: p, Negated: e.Not, Correlated: correlated}, nil
		}
		list, err := lowerExprs(e.List, sc)
		if err != nil {
			return nil, err
		}
		return &plan.InList{Operand: operand, List: list, Negated: e.Not}, nil

	case *ast.BetweenExpr:
		operand, err := lowerExpr(e.Expr, sc)
		if err != nil {
			return nil, err
		}
		low, err := lowerExpr(e.Left, sc)
		if err != nil {
			return nil, err
		}
		high, err := lowerExpr(e.Right, sc)
		if err != nil {
			return nil, err
		}
		return &plan.Between{Operand: operand, Low: low, High: high, Negated: e.Not}, nil

	case *ast.CaseExpr:
		operand, err := lowerExpr(e.Value, sc)
		if err != nil {
			return nil, err
		}
		whens := make([]plan.When, 0, len(e.WhenClauses))
		for _, w := range e.WhenClauses {
			cond, err := lowerExpr(w.Expr, sc)
			if err != nil {
				return nil, err
			}
			result, err := lowerExpr(w.Result, sc)
			if err != nil {
				return nil, err
			}
			whens = append(whens, plan.When{Cond: cond, Result: result})
		}
		elseExpr, err := lowerExpr(e.ElseClause, sc)
		if err != nil {
			return nil, err
		}
		return &plan.Case{Operand: operand, Whens: whens, Else: elseExpr}, nil

	case *ast.ExistsSubqueryExpr:
		sub, ok := e.Sel.(*ast.SubqueryExpr)
		if !ok {
			return restoreRaw(e)
		}
		p, correlated, err := lowerSubquery(sub.Query, sc)
		if err != nil {
			return nil, err
		}
		return &plan.Exists{Plan: p, Negated: e.Not, Correlated: correlated}, nil

	case *ast.SubqueryExpr:
		p, correlated, err := lowerSubquery(e.Query, sc)
		if err != nil {
			return nil, err
		}
		return &plan.ScalarSubquery{Plan: p, Correlated: correlated}, nil

	default:
		return restoreRaw(expr)
	}
}

func lowerExprs(exprs []ast.ExprNode, sc *scope) ([]plan.Expr, error) {
	if len(exprs) == 0 {
		return nil, nil
	}
	out := make([]plan.Expr, 0, len(exprs))
	for _, e := range exprs {
		x, err := lowerExpr(e, sc)
		if err != nil {
			return nil, err
		}
		out = append(out, x)
	}
	return out, nil
}

// lowerAggArgs maps COUNT(*)'s bare wildcard argument to a Star expression.
func lowerAggArgs(args []ast.ExprNode, sc *scope) ([]plan.Expr, error) {
	if len(args) == 0 {
		return []plan.Expr{&plan.Star{}}, nil
	}
	out := make([]plan.Expr, 0, len(args))
	for _, a := range args {
		if col, ok := a.(*ast.ColumnNameExpr); ok && col.Name.Name.O == "*" {
			out = append(out, &plan.Star{})
			continue
		}
		x, err := lowerExpr(a, sc)
		if err != nil {
			return nil, err
		}
		out = append(out, x)
	}
	return out, nil
}

func lowerOp(op opcode.Op) (plan.BinaryOp, bool) {
	switch op {
	case opcode.Plus:
		return plan.OpAdd, true
	case opcode.Minus:
		return plan.OpSub, true
	case opcode.Mul:
		return plan.OpMul, true
	case opcode.Div:
		return plan.OpDiv, true
	case opcode.Mod:
		return plan.OpMod, true
	case opcode.EQ:
		return plan.OpEq, true
	case opcode.NE:
		return plan.OpNe, true
	case opcode.LT:
		return plan.OpLt, true
	case opcode.LE:
		return plan.OpLe, true
	case opcode.GT:
		return plan.OpGt, true
	case opcode.GE:
		return plan.OpGe, true
	case opcode.LogicAnd:
		return plan.OpAnd, true
	case opcode.LogicOr:
		return plan.OpOr, true
	}
	return "", false
}

func lowerValue(e *test_driver.ValueExpr) (plan.Expr, error) {
	d := e.Datum
	switch d.Kind() {
	case test_driver.KindNull:
		return &plan.Literal{Kind: plan.LiteralNull}, nil
	case test_driver.KindInt64:
		return &plan.Literal{Kind: plan.LiteralInt, Int: d.GetInt64()}, nil
	case test_driver.KindUint64:
		return &plan.Literal{Kind: plan.LiteralInt, Int: int64(d.GetUint64())}, nil
	case test_driver.KindFloat64:
		return &plan.Literal{Kind: plan.LiteralFloat, Float: d.GetFloat64()}, nil
	case test_driver.KindFloat32:
		return &plan.Literal{Kind: plan.LiteralFloat, Float: float64(d.GetFloat32())}, nil
	case test_driver.KindString:
		return &plan.Literal{Kind: plan.LiteralString, Str: d.GetString()}, nil
	case test_driver.KindBytes:
		return &plan.Literal{Kind: plan.LiteralString, Str: string(d.GetBytes())}, nil
	}
	return restoreRaw(e)
}

func lowerWindowSpec(ws *ast.WindowSpec, sc *scope) (plan.WindowSpec, error) {
	spec := plan.WindowSpec{Name: ws.Name.O}
	if ws.PartitionBy != nil {
		for _, item := range ws.PartitionBy.Items {
			x, err := lowerExpr(item.Expr, sc)
			if err != nil {
				return spec, err
			}
			spec.PartitionBy = append(spec.PartitionBy, x)
		}
	}
	if ws.OrderBy != nil {
		for _, item := range ws.OrderBy.Items {
			x, err := lowerExpr(item.Expr, sc)
			if err != nil {
				return spec, err
			}
			spec.OrderBy = append(spec.OrderBy, plan.SortItem{Expr: x, Desc: item.Desc})
		}
	}
	if ws.Frame != nil {
		frame, err := restoreText(ws.Frame)
		if err != nil {
			return spec, err
		}
		spec.Frame = frame
	}
	return spec, nil
}

// restoreRaw falls back to the source text of a construct with no
// first-class plan representation.
func restoreRaw(n ast.Node) (plan.Expr, error) {
	text, err := restoreText(n)
	if err != nil {
		return nil, err
	}
	return &plan.Raw{SQL: text}, nil
}

func restoreText(n ast.Node) (string, error) {
	var sb strings.Builder
	ctx := format.NewRestoreCtx(format.DefaultRestoreFlags, &sb)
	if err := n.Restore(ctx); err != nil {
		return "", errors.Wrapf(err, errors.CodeParseFailed, "cannot restore %T", n)
	}
	return sb.String(), nil
}
