package rewrite

import (
	"strconv"
	"strings"

	"github.com/TFMV/crossplan/pkg/plan"
)

// transform rebuilds the tree bottom-up, applying f to every node after its
// children have been rebuilt. Subquery plans embedded in expressions are
// left alone; rules operate on the relational tree.
func transform(n plan.Node, f func(plan.Node) plan.Node) plan.Node {
	if n == nil {
		return nil
	}
	switch t := n.(type) {
	case *plan.TableScan:
		return f(t)
	case *plan.Projection:
		return f(&plan.Projection{Exprs: t.Exprs, Input: transform(t.Input, f)})
	case *plan.Filter:
		return f(&plan.Filter{Predicate: t.Predicate, Input: transform(t.Input, f)})
	case *plan.Sort:
		return f(&plan.Sort{Items: t.Items, Input: transform(t.Input, f)})
	case *plan.Limit:
		return f(&plan.Limit{Count: t.Count, Offset: t.Offset, Input: transform(t.Input, f)})
	case *plan.Join:
		return f(&plan.Join{Kind: t.Kind, Left: transform(t.Left, f), Right: transform(t.Right, f), On: t.On})
	case *plan.GroupBy:
		return f(&plan.GroupBy{GroupExprs: t.GroupExprs, AggExprs: t.AggExprs, Input: transform(t.Input, f)})
	case *plan.Having:
		return f(&plan.Having{Predicate: t.Predicate, Input: transform(t.Input, f)})
	case *plan.Distinct:
		return f(&plan.Distinct{Input: transform(t.Input, f)})
	case *plan.Union:
		inputs := make([]plan.Node, len(t.Inputs))
		for i, in := range t.Inputs {
			inputs[i] = transform(in, f)
		}
		return f(&plan.Union{Inputs: inputs, All: t.All})
	case *plan.Window:
		return f(&plan.Window{Specs: t.Specs, Input: transform(t.Input, f)})
	case *plan.SubqueryScan:
		return f(&plan.SubqueryScan{Plan: transform(t.Plan, f), Alias: t.Alias, Correlated: t.Correlated})
	case *plan.CTE:
		return f(&plan.CTE{Name: t.Name, Recursive: t.Recursive, Def: transform(t.Def, f), Body: transform(t.Body, f)})
	}
	return f(n)
}

// mergeFilters collapses stacked filters into a single conjunction,
// dropping duplicate conjuncts. The lower filter's conjuncts come first.
func mergeFilters(n plan.Node, _ Options) (plan.Node, []string, error) {
	out := transform(n, func(node plan.Node) plan.Node {
		outer, ok := node.(*plan.Filter)
		if !ok {
			return node
		}
		inner, ok := outer.Input.(*plan.Filter)
		if !ok {
			return node
		}
		conj := append(plan.Conjuncts(inner.Predicate), plan.Conjuncts(outer.Predicate)...)
		seen := make(map[uint64]struct{}, len(conj))
		uniq := conj[:0]
		for _, c := range conj {
			h := plan.HashExpr(c)
			if _, dup := seen[h]; dup {
				continue
			}
			seen[h] = struct{}{}
			uniq = append(uniq, c)
		}
		return &plan.Filter{Predicate: plan.AndAll(uniq), Input: inner.Input}
	})
	return out, nil, nil
}

// pushdownFilter moves filter conjuncts closer to the data. A filter over
// a join distributes each conjunct onto the base-table side that resolves
// all of its column qualifiers, honoring outer-join sides; a filter over a
// projection slides below it unless the predicate uses a projected alias or
// the projection sits on a barrier (aggregation, set ops, pagination).
func pushdownFilter(n plan.Node, _ Options) (plan.Node, []string, error) {
	out := transform(n, func(node plan.Node) plan.Node {
		f, ok := node.(*plan.Filter)
		if !ok {
			return node
		}
		switch in := f.Input.(type) {
		case *plan.Projection:
			if in.Input == nil || isBarrier(in.Input) || referencesProjectionAlias(f.Predicate, in) {
				return node
			}
			return &plan.Projection{
				Exprs: in.Exprs,
				Input: &plan.Filter{Predicate: f.Predicate, Input: in.Input},
			}
		case *plan.Join:
			return pushIntoJoin(f, in)
		}
		return node
	})
	return out, nil, nil
}

// isBarrier reports nodes a filter must not cross: the predicate would see
// different rows (or an invalid scope) on the far side.
func isBarrier(n plan.Node) bool {
	switch n.(type) {
	case *plan.GroupBy, *plan.Having, *plan.Distinct, *plan.Window, *plan.Union, *plan.Limit, *plan.Sort:
		return true
	}
	return false
}

// pushIntoJoin distributes conjuncts onto the join sides that resolve
// them. Only base-table sides absorb predicates; outer joins accept pushes
// on their preserved side only, FULL JOIN on neither.
func pushIntoJoin(f *plan.Filter, j *plan.Join) plan.Node {
	pushLeft := j.Kind == plan.JoinInner || j.Kind == plan.JoinCross || j.Kind == plan.JoinLeft
	pushRight := j.Kind == plan.JoinInner || j.Kind == plan.JoinCross || j.Kind == plan.JoinRight

	leftScan, _ := j.Left.(*plan.TableScan)
	rightScan, _ := j.Right.(*plan.TableScan)
	if (!pushLeft || leftScan == nil) && (!pushRight || rightScan == nil) {
		return f
	}

	var left, right, keep []plan.Expr
	for _, c := range plan.Conjuncts(f.Predicate) {
		switch {
		case pushLeft && leftScan != nil && resolvedByScan(c, leftScan):
			left = append(left, c)
		case pushRight && rightScan != nil && resolvedByScan(c, rightScan):
			right = append(right, c)
		default:
			keep = append(keep, c)
		}
	}
	if len(left) == 0 && len(right) == 0 {
		return f
	}

	out := &plan.Join{
		Kind:  j.Kind,
		Left:  filteredScan(j.Left, left),
		Right: filteredScan(j.Right, right),
		On:    j.On,
	}
	if len(keep) == 0 {
		return out
	}
	return &plan.Filter{Predicate: plan.AndAll(keep), Input: out}
}

// resolvedByScan reports whether every column the conjunct touches is
// qualified with the scan's visible name.
func resolvedByScan(c plan.Expr, ts *plan.TableScan) bool {
	name := ts.Alias
	if name == "" {
		name = ts.Table
	}
	cols := plan.ExprColumns(c)
	if len(cols) == 0 {
		return false
	}
	for _, col := range cols {
		if !strings.EqualFold(col.Table, name) {
			return false
		}
	}
	return true
}

// filteredScan wraps a scan in a derived table carrying the pushed
// predicate. The scan keeps its alias inside the subquery, so the pushed
// conjuncts' qualifiers stay valid, and the derived table reuses the same
// name for the enclosing scope.
func filteredScan(side plan.Node, preds []plan.Expr) plan.Node {
	if len(preds) == 0 {
		return side
	}
	ts := side.(*plan.TableScan)
	name := ts.Alias
	if name == "" {
		name = ts.Table
	}
	return &plan.SubqueryScan{
		Plan: &plan.Projection{
			Exprs: []plan.Expr{&plan.Star{}},
			Input: &plan.Filter{Predicate: plan.AndAll(preds), Input: ts},
		},
		Alias: name,
	}
}

func referencesProjectionAlias(pred plan.Expr, proj *plan.Projection) bool {
	aliases := make(map[string]struct{})
	for _, x := range proj.Exprs {
		if a, ok := x.(*plan.Alias); ok {
			aliases[strings.ToLower(a.Name)] = struct{}{}
		}
	}
	if len(aliases) == 0 {
		return false
	}
	for _, c := range plan.ExprColumns(pred) {
		if c.Table != "" {
			continue
		}
		if _, ok := aliases[strings.ToLower(c.Name)]; ok {
			return true
		}
	}
	return false
}

// pruneProjection drops a bare SELECT * layered directly over another
// projection; the inner one already fixes the output shape.
func pruneProjection(n plan.Node, _ Options) (plan.Node, []string, error) {
	out := transform(n, func(node plan.Node) plan.Node {
		proj, ok := node.(*plan.Projection)
		if !ok || len(proj.Exprs) != 1 {
			return node
		}
		star, ok := proj.Exprs[0].(*plan.Star)
		if !ok || star.Table != "" {
			return node
		}
		switch proj.Input.(type) {
		case *plan.Projection, *plan.Distinct:
			return proj.Input
		}
		return node
	})
	return out, nil, nil
}

// inlineSingleUseCTE replaces a CTE referenced exactly once in its body with
// a derived table and drops the binding. Recursive and self-referential
// definitions are left materialized and the refusal is recorded.
func inlineSingleUseCTE(n plan.Node, _ Options) (plan.Node, []string, error) {
	var notes []string
	out := transform(n, func(node plan.Node) plan.Node {
		cte, ok := node.(*plan.CTE)
		if !ok {
			return node
		}
		if cte.Recursive || plan.ReferencesTable(cte.Def, cte.Name) {
			notes = append(notes, "inline_single_use_cte:skipped_recursive:"+cte.Name)
			return node
		}
		if countScans(cte.Body, cte.Name) != 1 {
			return node
		}
		return replaceScan(cte.Body, cte.Name, cte.Def)
	})
	return out, notes, nil
}

func countScans(n plan.Node, table string) int {
	count := 0
	plan.Visit(n, func(node plan.Node) bool {
		if ts, ok := node.(*plan.TableScan); ok && strings.EqualFold(ts.Table, table) {
			count++
		}
		return true
	})
	return count
}

func replaceScan(n plan.Node, table string, def plan.Node) plan.Node {
	return transform(n, func(node plan.Node) plan.Node {
		ts, ok := node.(*plan.TableScan)
		if !ok || !strings.EqualFold(ts.Table, table) {
			return node
		}
		alias := ts.Alias
		if alias == "" {
			alias = ts.Table
		}
		return &plan.SubqueryScan{Plan: def, Alias: alias}
	})
}

// autoLimit caps plans that have no limit of their own.
func autoLimit(n plan.Node, opts Options) (plan.Node, []string, error) {
	if !opts.AutoLimit {
		return n, nil, nil
	}
	return capTop(n, opts.AutoLimitCap), nil, nil
}

func capTop(n plan.Node, cap int64) plan.Node {
	switch t := n.(type) {
	case *plan.CTE:
		return &plan.CTE{Name: t.Name, Recursive: t.Recursive, Def: t.Def, Body: capTop(t.Body, cap)}
	case *plan.Limit:
		return n
	}
	return &plan.Limit{Count: cap, Input: n}
}

// paginate forces the top-level limit to the requested page, injecting a
// deterministic ORDER BY when the dialect's offset form requires one.
func paginate(n plan.Node, opts Options) (plan.Node, []string, error) {
	if opts.Page == nil {
		return n, nil, nil
	}
	return pageTop(n, opts), nil, nil
}

func pageTop(n plan.Node, opts Options) plan.Node {
	switch t := n.(type) {
	case *plan.CTE:
		return &plan.CTE{Name: t.Name, Recursive: t.Recursive, Def: t.Def, Body: pageTop(t.Body, opts)}
	case *plan.Limit:
		return &plan.Limit{
			Count:  opts.Page.Size,
			Offset: opts.Page.Offset,
			Input:  ensureOrdered(t.Input, opts),
		}
	}
	return &plan.Limit{
		Count:  opts.Page.Size,
		Offset: opts.Page.Offset,
		Input:  ensureOrdered(n, opts),
	}
}

func ensureOrdered(n plan.Node, opts Options) plan.Node {
	if !opts.RequireOrderedOffset || opts.Page.Offset == 0 {
		return n
	}
	if _, ok := n.(*plan.Sort); ok {
		return n
	}
	return &plan.Sort{
		Items: []plan.SortItem{{Expr: orderTerm(opts.DefaultOrderTerm)}},
		Input: n,
	}
}

// orderTerm interprets the configured term as an ordinal when numeric,
// otherwise as a column name. Default is the first projected column.
func orderTerm(term string) plan.Expr {
	if term == "" {
		return &plan.Literal{Kind: plan.LiteralInt, Int: 1}
	}
	if v, err := strconv.ParseInt(term, 10, 64); err == nil {
		return &plan.Literal{Kind: plan.LiteralInt, Int: v}
	}
	return &plan.Column{Name: term}
}
