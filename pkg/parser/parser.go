// Package parser turns raw SQL text into logical plans. The front end is the
// pingcap parser; its AST is lowered into the plan IR clause by clause, in
// evaluation order: FROM, JOIN, WHERE, GROUP BY, HAVING, WINDOW, SELECT,
// DISTINCT, ORDER BY, LIMIT.
package parser

import (
	"strings"

	"github.com/pingcap/tidb/parser"
	"github.com/pingcap/tidb/parser/ast"

	"github.com/TFMV/crossplan/pkg/errors"
	"github.com/TFMV/crossplan/pkg/plan"
)

// Parse lowers exactly one SELECT (or set operation) statement into a
// logical plan. Multi-statement input and non-query statements are parse
// errors; callers route non-query statements around the planner.
func Parse(sql string) (plan.Node, error) {
	if strings.TrimSpace(sql) == "" {
		return nil, errors.ErrEmptyStatement
	}

	rewritten, marks := rewriteFullJoins(sql)

	p := parser.New()
	stmts, _, err := p.Parse(rewritten, "", "")
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeParseFailed, "syntax error")
	}
	if len(stmts) == 0 {
		return nil, errors.ErrEmptyStatement
	}
	if len(stmts) > 1 {
		return nil, errors.ErrMultiStatement
	}

	root := newScope(nil)
	root.fj = &fullJoinState{marks: marks}

	switch stmt := stmts[0].(type) {
	case *ast.SelectStmt:
		n, _, err := lowerSelect(stmt, root)
		return n, err
	case *ast.SetOprStmt:
		n, _, err := lowerSetOpr(stmt, root)
		return n, err
	default:
		return nil, errors.Newf(errors.CodeParseFailed,
			"statement %T is not a query; only SELECT lowers to a plan", stmt)
	}
}

type fullJoinState struct {
	marks []fullJoinMark
}

// claim pops the head mark when it names the given right-side table or
// alias, identifying a join that was textually a FULL JOIN.
func (f *fullJoinState) claim(table, alias string) bool {
	if f == nil || len(f.marks) == 0 {
		return false
	}
	m := f.marks[0]
	table = strings.ToLower(table)
	alias = strings.ToLower(alias)
	if m.table == table || (alias != "" && (m.table == alias || m.alias == alias)) {
		f.marks = f.marks[1:]
		return true
	}
	return false
}

type loweredCTE struct {
	name      string
	recursive bool
	def       plan.Node
}

func lowerSelect(stmt *ast.SelectStmt, parent *scope) (plan.Node, bool, error) {
	sc := newScope(parent)

	ctes, err := lowerWith(stmt.With, sc)
	if err != nil {
		return nil, false, err
	}

	var base plan.Node
	if stmt.From != nil && stmt.From.TableRefs != nil {
		base, err = lowerJoin(stmt.From.TableRefs, sc)
		if err != nil {
			return nil, false, err
		}
	}

	// The select list is lowered before the nodes beneath it exist so its
	// aggregates can seed the GroupBy node; column refs land in the scope
	// either way.
	exprs, err := lowerFields(stmt, sc)
	if err != nil {
		return nil, false, err
	}

	if stmt.Where != nil {
		pred, err := lowerExpr(stmt.Where, sc)
		if err != nil {
			return nil, false, err
		}
		base = &plan.Filter{Predicate: pred, Input: base}
	}

	if stmt.GroupBy != nil {
		var groupExprs []plan.Expr
		for _, item := range stmt.GroupBy.Items {
			x, err := lowerExpr(item.Expr, sc)
			if err != nil {
				return nil, false, err
			}
			groupExprs = append(groupExprs, x)
		}
		base = &plan.GroupBy{
			GroupExprs: groupExprs,
			AggExprs:   collectAggregates(exprs),
			Input:      base,
		}
	}

	if stmt.Having != nil {
		pred, err := lowerExpr(stmt.Having.Expr, sc)
		if err != nil {
			return nil, false, err
		}
		base = &plan.Having{Predicate: pred, Input: base}
	}

	if len(stmt.WindowSpecs) > 0 {
		specs := make([]plan.WindowSpec, 0, len(stmt.WindowSpecs))
		for i := range stmt.WindowSpecs {
			spec, err := lowerWindowSpec(&stmt.WindowSpecs[i], sc)
			if err != nil {
				return nil, false, err
			}
			specs = append(specs, spec)
		}
		base = &plan.Window{Specs: specs, Input: base}
	}

	base = &plan.Projection{Exprs: exprs, Input: base}

	if stmt.Distinct {
		base = &plan.Distinct{Input: base}
	}

	if stmt.OrderBy != nil {
		items, err := lowerByItems(stmt.OrderBy.Items, sc)
		if err != nil {
			return nil, false, err
		}
		base = &plan.Sort{Items: items, Input: base}
	}

	if stmt.Limit != nil {
		base, err = lowerLimit(stmt.Limit, base)
		if err != nil {
			return nil, false, err
		}
	}

	base = wrapCTEs(ctes, base)
	return base, sc.close(), nil
}

func lowerSetOpr(stmt *ast.SetOprStmt, parent *scope) (plan.Node, bool, error) {
	sc := newScope(parent)

	ctes, err := lowerWith(stmt.With, sc)
	if err != nil {
		return nil, false, err
	}

	if stmt.SelectList == nil || len(stmt.SelectList.Selects) == 0 {
		return nil, false, errors.New(errors.CodeParseFailed, "empty set operation")
	}

	var inputs []plan.Node
	all := false
	for i, sel := range stmt.SelectList.Selects {
		s, ok := sel.(*ast.SelectStmt)
		if !ok {
			return nil, false, errors.Newf(errors.CodeParseFailed,
				"unsupported set operation branch %T", sel)
		}
		if i > 0 && s.AfterSetOperator != nil {
			switch *s.AfterSetOperator {
			case ast.Union:
			case ast.UnionAll:
				all = true
			default:
				return nil, false, errors.Newf(errors.CodeParseFailed,
					"unsupported set operation %v; only UNION is supported", *s.AfterSetOperator)
			}
		}
		n, _, err := lowerSelect(s, sc)
		if err != nil {
			return nil, false, err
		}
		inputs = append(inputs, n)
	}

	var base plan.Node = &plan.Union{Inputs: inputs, All: all}

	if stmt.OrderBy != nil {
		items, err := lowerByItems(stmt.OrderBy.Items, sc)
		if err != nil {
			return nil, false, err
		}
		base = &plan.Sort{Items: items, Input: base}
	}

	if stmt.Limit != nil {
		base, err = lowerLimit(stmt.Limit, base)
		if err != nil {
			return nil, false, err
		}
	}

	base = wrapCTEs(ctes, base)
	return base, sc.close(), nil
}

func lowerWith(with *ast.WithClause, sc *scope) ([]loweredCTE, error) {
	if with == nil {
		return nil, nil
	}
	ctes := make([]loweredCTE, 0, len(with.CTEs))
	for _, c := range with.CTEs {
		if c.Query == nil {
			return nil, errors.Newf(errors.CodeParseFailed, "common table expression %s has no query", c.Name.O)
		}
		def, _, err := lowerSubquery(c.Query.Query, sc)
		if err != nil {
			return nil, err
		}
		name := c.Name.O
		// Visible to the rest of this block and to later CTEs.
		sc.declare(name)
		ctes = append(ctes, loweredCTE{
			name:      name,
			recursive: with.IsRecursive && plan.ReferencesTable(def, name),
			def:       def,
		})
	}
	return ctes, nil
}

// wrapCTEs nests the WITH bindings around the body, first CTE outermost.
func wrapCTEs(ctes []loweredCTE, body plan.Node) plan.Node {
	for i := len(ctes) - 1; i >= 0; i-- {
		body = &plan.CTE{
			Name:      ctes[i].name,
			Recursive: ctes[i].recursive,
			Def:       ctes[i].def,
			Body:      body,
		}
	}
	return body
}

func lowerJoin(j *ast.Join, sc *scope) (plan.Node, error) {
	left, err := lowerTableRef(j.Left, sc)
	if err != nil {
		return nil, err
	}
	if j.Right == nil {
		return left, nil
	}
	right, err := lowerTableRef(j.Right, sc)
	if err != nil {
		return nil, err
	}

	var kind plan.JoinKind
	switch j.Tp {
	case ast.LeftJoin:
		kind = plan.JoinLeft
		if table, alias := rightSideNames(right); sc.fullJoins().claim(table, alias) {
			kind = plan.JoinFull
		}
	case ast.RightJoin:
		kind = plan.JoinRight
	default:
		// The grammar folds INNER JOIN and comma joins into CrossJoin;
		// an ON condition tells them apart.
		if j.On != nil {
			kind = plan.JoinInner
		} else {
			kind = plan.JoinCross
		}
	}

	var on plan.Expr
	if j.On != nil {
		on, err = lowerExpr(j.On.Expr, sc)
		if err != nil {
			return nil, err
		}
	}

	return &plan.Join{Kind: kind, Left: left, Right: right, On: on}, nil
}

func lowerTableRef(ref ast.ResultSetNode, sc *scope) (plan.Node, error) {
	switch t := ref.(type) {
	case *ast.Join:
		return lowerJoin(t, sc)
	case *ast.TableSource:
		switch src := t.Source.(type) {
		case *ast.TableName:
			ts := &plan.TableScan{Schema: src.Schema.O, Table: src.Name.O, Alias: t.AsName.O}
			if ts.Alias != "" {
				sc.declare(ts.Alias)
			} else {
				sc.declare(ts.Table)
			}
			return ts, nil
		case *ast.SelectStmt, *ast.SetOprStmt:
			p, correlated, err := lowerSubquery(src, sc)
			if err != nil {
				return nil, err
			}
			sc.declare(t.AsName.O)
			return &plan.SubqueryScan{Plan: p, Alias: t.AsName.O, Correlated: correlated}, nil
		}
	}
	return nil, errors.Newf(errors.CodeParseFailed, "unsupported table reference %T", ref)
}

func lowerSubquery(q ast.Node, sc *scope) (plan.Node, bool, error) {
	switch t := q.(type) {
	case *ast.SelectStmt:
		return lowerSelect(t, sc)
	case *ast.SetOprStmt:
		return lowerSetOpr(t, sc)
	case *ast.SubqueryExpr:
		return lowerSubquery(t.Query, sc)
	}
	return nil, false, errors.Newf(errors.CodeParseFailed, "unsupported subquery %T", q)
}

func lowerFields(stmt *ast.SelectStmt, sc *scope) ([]plan.Expr, error) {
	if stmt.Fields == nil {
		return nil, errors.New(errors.CodeParseFailed, "statement has no select list")
	}
	exprs := make([]plan.Expr, 0, len(stmt.Fields.Fields))
	for _, f := range stmt.Fields.Fields {
		if f.WildCard != nil {
			exprs = append(exprs, &plan.Star{Table: f.WildCard.Table.O})
			continue
		}
		x, err := lowerExpr(f.Expr, sc)
		if err != nil {
			return nil, err
		}
		if f.AsName.O != "" {
			x = &plan.Alias{Expr: x, Name: f.AsName.O}
		}
		exprs = append(exprs, x)
	}
	return exprs, nil
}

func lowerByItems(items []*ast.ByItem, sc *scope) ([]plan.SortItem, error) {
	out := make([]plan.SortItem, 0, len(items))
	for _, item := range items {
		x, err := lowerExpr(item.Expr, sc)
		if err != nil {
			return nil, err
		}
		out = append(out, plan.SortItem{Expr: x, Desc: item.Desc})
	}
	return out, nil
}

func lowerLimit(l *ast.Limit, input plan.Node) (plan.Node, error) {
	count, err := limitValue(l.Count, "LIMIT")
	if err != nil {
		return nil, err
	}
	offset := int64(0)
	if l.Offset != nil {
		offset, err = limitValue(l.Offset, "OFFSET")
		if err != nil {
			return nil, err
		}
	}
	return &plan.Limit{Count: count, Offset: offset, Input: input}, nil
}

func limitValue(e ast.ExprNode, clause string) (int64, error) {
	x, err := lowerExpr(e, newScope(nil))
	if err != nil {
		return 0, err
	}
	lit, ok := x.(*plan.Literal)
	if !ok || lit.Kind != plan.LiteralInt || lit.Int < 0 {
		return 0, errors.Newf(errors.CodeParseFailed, "%s requires a non-negative integer constant", clause)
	}
	return lit.Int, nil
}

func collectAggregates(exprs []plan.Expr) []plan.Expr {
	var aggs []plan.Expr
	var walk func(x plan.Expr)
	walk = func(x plan.Expr) {
		switch t := x.(type) {
		case nil:
		case *plan.Aggregate:
			aggs = append(aggs, t)
		case *plan.Alias:
			walk(t.Expr)
		case *plan.Binary:
			walk(t.Left)
			walk(t.Right)
		case *plan.Unary:
			walk(t.Operand)
		case *plan.Func:
			for _, a := range t.Args {
				walk(a)
			}
		case *plan.Case:
			walk(t.Operand)
			for _, w := range t.Whens {
				walk(w.Cond)
				walk(w.Result)
			}
			walk(t.Else)
		}
	}
	for _, x := range exprs {
		walk(x)
	}
	return aggs
}
