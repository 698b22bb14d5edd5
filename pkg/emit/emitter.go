// Package emit renders logical plans as SQL text for a concrete dialect.
// Rendering is bottom-up and deterministic: one flattened SELECT block per
// query scope, subqueries parenthesized, identifiers quoted the dialect's
// way.
package emit

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/TFMV/crossplan/pkg/dialect"
	"github.com/TFMV/crossplan/pkg/errors"
	"github.com/TFMV/crossplan/pkg/models"
	"github.com/TFMV/crossplan/pkg/plan"
)

// Emit renders the plan as a single SQL statement for the dialect.
func Emit(n plan.Node, d dialect.Descriptor) (string, error) {
	e := &emitter{d: d}
	return e.emitQuery(n)
}

type emitter struct {
	d dialect.Descriptor
}

// flatSelect is one query scope collapsed into clause slots.
type flatSelect struct {
	distinct bool
	exprs    []plan.Expr
	from     plan.Node
	where    plan.Expr
	groupBy  []plan.Expr
	having   plan.Expr
	windows  []plan.WindowSpec
	orderBy  []plan.SortItem
	limit    *plan.Limit
}

// emitQuery renders a plan rooted at an optional chain of CTE bindings.
func (e *emitter) emitQuery(n plan.Node) (string, error) {
	var ctes []*plan.CTE
	for {
		c, ok := n.(*plan.CTE)
		if !ok {
			break
		}
		if !e.d.SupportsCTE {
			return "", errors.Unsupported(string(e.d.Backend), "common table expressions")
		}
		ctes = append(ctes, c)
		n = c.Body
	}

	body, err := e.emitBlock(n)
	if err != nil {
		return "", err
	}
	if len(ctes) == 0 {
		return body, nil
	}

	recursive := false
	defs := make([]string, 0, len(ctes))
	for _, c := range ctes {
		if c.Recursive {
			recursive = true
		}
		def, err := e.emitQuery(c.Def)
		if err != nil {
			return "", err
		}
		defs = append(defs, e.d.Quote(c.Name)+" AS ("+def+")")
	}

	prefix := "WITH "
	// T-SQL spells recursive CTEs without the keyword.
	if recursive && e.d.Backend != models.BackendMSSQL {
		prefix = "WITH RECURSIVE "
	}
	return prefix + strings.Join(defs, ", ") + " " + body, nil
}

func (e *emitter) emitBlock(n plan.Node) (string, error) {
	var fs flatSelect

	if l, ok := n.(*plan.Limit); ok {
		fs.limit = l
		n = l.Input
	}
	if s, ok := n.(*plan.Sort); ok {
		fs.orderBy = s.Items
		n = s.Input
	}
	if u, ok := n.(*plan.Union); ok {
		return e.emitUnion(u, fs.orderBy, fs.limit)
	}
	if d, ok := n.(*plan.Distinct); ok {
		fs.distinct = true
		n = d.Input
	}

	proj, ok := n.(*plan.Projection)
	if !ok {
		return "", errors.Newf(errors.CodeEmitFailed, "query block has no projection (found %T)", n)
	}
	fs.exprs = proj.Exprs
	n = proj.Input

	if w, ok := n.(*plan.Window); ok {
		fs.windows = w.Specs
		n = w.Input
	}
	if h, ok := n.(*plan.Having); ok {
		fs.having = h.Predicate
		n = h.Input
	}
	if g, ok := n.(*plan.GroupBy); ok {
		fs.groupBy = g.GroupExprs
		n = g.Input
	}
	var preds []plan.Expr
	for {
		f, ok := n.(*plan.Filter)
		if !ok {
			break
		}
		preds = append(plan.Conjuncts(f.Predicate), preds...)
		n = f.Input
	}
	fs.where = plan.AndAll(preds)
	fs.from = n

	if err := e.checkFeatures(&fs); err != nil {
		return "", err
	}

	if hasFullJoin(fs.from) && !e.d.SupportsFullJoin {
		if !e.d.FullJoinFallback {
			return "", errors.Unsupported(string(e.d.Backend), "FULL JOIN")
		}
		return e.emitFullJoinFallback(fs)
	}

	return e.renderSelect(fs)
}

func (e *emitter) checkFeatures(fs *flatSelect) error {
	if !e.d.SupportsWindowFunctions {
		if len(fs.windows) > 0 || anyWindowFunc(fs.exprs) {
			return errors.Unsupported(string(e.d.Backend), "window functions")
		}
	}
	return nil
}

func anyWindowFunc(exprs []plan.Expr) bool {
	for _, x := range exprs {
		if a, ok := x.(*plan.Alias); ok {
			x = a.Expr
		}
		if _, ok := x.(*plan.WindowFunc); ok {
			return true
		}
	}
	return false
}

// emitFullJoinFallback emulates FULL JOIN as the union of the left- and
// right-join variants of the same block. UNION (not ALL) removes the rows
// matched by both sides.
func (e *emitter) emitFullJoinFallback(fs flatSelect) (string, error) {
	orderBy, limit := fs.orderBy, fs.limit
	fs.orderBy, fs.limit = nil, nil

	left := fs
	left.from = replaceFullJoins(fs.from, plan.JoinLeft)
	leftSQL, err := e.renderSelect(left)
	if err != nil {
		return "", err
	}

	right := fs
	right.from = replaceFullJoins(fs.from, plan.JoinRight)
	rightSQL, err := e.renderSelect(right)
	if err != nil {
		return "", err
	}

	sql := leftSQL + " UNION " + rightSQL
	return e.appendTail(sql, orderBy, limit)
}

func hasFullJoin(n plan.Node) bool {
	switch t := n.(type) {
	case *plan.Join:
		return t.Kind == plan.JoinFull || hasFullJoin(t.Left) || hasFullJoin(t.Right)
	}
	return false
}

func replaceFullJoins(n plan.Node, kind plan.JoinKind) plan.Node {
	j, ok := n.(*plan.Join)
	if !ok {
		return n
	}
	k := j.Kind
	if k == plan.JoinFull {
		k = kind
	}
	return &plan.Join{
		Kind:  k,
		Left:  replaceFullJoins(j.Left, kind),
		Right: replaceFullJoins(j.Right, kind),
		On:    j.On,
	}
}

func (e *emitter) emitUnion(u *plan.Union, orderBy []plan.SortItem, limit *plan.Limit) (string, error) {
	sep := " UNION "
	if u.All {
		sep = " UNION ALL "
	}
	branches := make([]string, 0, len(u.Inputs))
	for _, in := range u.Inputs {
		sql, err := e.emitBlock(in)
		if err != nil {
			return "", err
		}
		branches = append(branches, sql)
	}
	return e.appendTail(strings.Join(branches, sep), orderBy, limit)
}

// appendTail adds ORDER BY and pagination to already-rendered set
// operation or fallback text.
func (e *emitter) appendTail(sql string, orderBy []plan.SortItem, limit *plan.Limit) (string, error) {
	if len(orderBy) > 0 {
		items, err := e.renderSortItems(orderBy)
		if err != nil {
			return "", err
		}
		sql += " ORDER BY " + items
	}
	if limit == nil {
		return sql, nil
	}
	if e.d.LimitStyle == dialect.OffsetFetch {
		if len(orderBy) == 0 {
			return "", errors.New(errors.CodeEmitFailed,
				"OFFSET/FETCH pagination on a set operation requires ORDER BY")
		}
		return sql + offsetFetchClause(limit), nil
	}
	return sql + limitOffsetClause(limit), nil
}

func (e *emitter) renderSelect(fs flatSelect) (string, error) {
	var sb strings.Builder
	sb.WriteString("SELECT ")

	if fs.distinct {
		sb.WriteString("DISTINCT ")
	}

	// T-SQL renders a zero-offset limit as TOP.
	topStyle := e.d.LimitStyle == dialect.OffsetFetch && fs.limit != nil && fs.limit.Offset == 0
	if topStyle {
		sb.WriteString("TOP " + strconv.FormatInt(fs.limit.Count, 10) + " ")
	}

	cols := make([]string, 0, len(fs.exprs))
	for _, x := range fs.exprs {
		s, err := e.renderExpr(x)
		if err != nil {
			return "", err
		}
		cols = append(cols, s)
	}
	sb.WriteString(strings.Join(cols, ", "))

	if fs.from != nil {
		from, err := e.renderFrom(fs.from)
		if err != nil {
			return "", err
		}
		sb.WriteString(" FROM " + from)
	}

	if fs.where != nil {
		pred, err := e.renderExpr(fs.where)
		if err != nil {
			return "", err
		}
		sb.WriteString(" WHERE " + pred)
	}

	if len(fs.groupBy) > 0 {
		items := make([]string, 0, len(fs.groupBy))
		for _, x := range fs.groupBy {
			s, err := e.renderExpr(x)
			if err != nil {
				return "", err
			}
			items = append(items, s)
		}
		sb.WriteString(" GROUP BY " + strings.Join(items, ", "))
	}

	if fs.having != nil {
		pred, err := e.renderExpr(fs.having)
		if err != nil {
			return "", err
		}
		sb.WriteString(" HAVING " + pred)
	}

	if len(fs.windows) > 0 {
		defs := make([]string, 0, len(fs.windows))
		for i := range fs.windows {
			spec, err := e.renderWindowSpec(&fs.windows[i])
			if err != nil {
				return "", err
			}
			defs = append(defs, fs.windows[i].Name+" AS ("+spec+")")
		}
		sb.WriteString(" WINDOW " + strings.Join(defs, ", "))
	}

	if len(fs.orderBy) > 0 {
		items, err := e.renderSortItems(fs.orderBy)
		if err != nil {
			return "", err
		}
		sb.WriteString(" ORDER BY " + items)
	}

	if fs.limit != nil && !topStyle {
		if e.d.LimitStyle == dialect.OffsetFetch {
			if len(fs.orderBy) == 0 {
				return "", errors.New(errors.CodeEmitFailed,
					"OFFSET/FETCH pagination requires ORDER BY")
			}
			sb.WriteString(offsetFetchClause(fs.limit))
		} else {
			sb.WriteString(limitOffsetClause(fs.limit))
		}
	}

	return sb.String(), nil
}

func limitOffsetClause(l *plan.Limit) string {
	s := " LIMIT " + strconv.FormatInt(l.Count, 10)
	if l.Offset > 0 {
		s += " OFFSET " + strconv.FormatInt(l.Offset, 10)
	}
	return s
}

func offsetFetchClause(l *plan.Limit) string {
	return fmt.Sprintf(" OFFSET %d ROWS FETCH NEXT %d ROWS ONLY", l.Offset, l.Count)
}

func (e *emitter) renderFrom(n plan.Node) (string, error) {
	switch t := n.(type) {
	case *plan.TableScan:
		name := e.d.Quote(t.Table)
		if t.Schema != "" {
			name = e.d.Quote(t.Schema) + "." + name
		}
		if t.Alias != "" {
			name += " AS " + e.d.Quote(t.Alias)
		}
		return name, nil
	case *plan.SubqueryScan:
		sub, err := e.emitQuery(t.Plan)
		if err != nil {
			return "", err
		}
		out := "(" + sub + ")"
		if t.Alias != "" {
			out += " AS " + e.d.Quote(t.Alias)
		}
		return out, nil
	case *plan.Join:
		left, err := e.renderFrom(t.Left)
		if err != nil {
			return "", err
		}
		right, err := e.renderFrom(t.Right)
		if err != nil {
			return "", err
		}
		out := left + " " + t.Kind.String() + " " + right
		if t.On != nil {
			on, err := e.renderExpr(t.On)
			if err != nil {
				return "", err
			}
			out += " ON " + on
		}
		return out, nil
	}
	return "", errors.Newf(errors.CodeEmitFailed, "unexpected node %T in FROM", n)
}

func (e *emitter) renderSortItems(items []plan.SortItem) (string, error) {
	parts := make([]string, 0, len(items))
	for _, it := range items {
		s, err := e.renderExpr(it.Expr)
		if err != nil {
			return "", err
		}
		if it.Desc {
			s += " DESC"
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, ", "), nil
}

func (e *emitter) renderWindowSpec(s *plan.WindowSpec) (string, error) {
	var parts []string
	if len(s.PartitionBy) > 0 {
		items := make([]string, 0, len(s.PartitionBy))
		for _, x := range s.PartitionBy {
			r, err := e.renderExpr(x)
			if err != nil {
				return "", err
			}
			items = append(items, r)
		}
		parts = append(parts, "PARTITION BY "+strings.Join(items, ", "))
	}
	if len(s.OrderBy) > 0 {
		items, err := e.renderSortItems(s.OrderBy)
		if err != nil {
			return "", err
		}
		parts = append(parts, "ORDER BY "+items)
	}
	if s.Frame != "" {
		parts = append(parts, s.Frame)
	}
	return strings.Join(parts, " "), nil
}

func (e *emitter) renderExpr(x plan.Expr) (string, error) {
	switch t := x.(type) {
	case *plan.Column:
		name := e.d.Quote(t.Name)
		if t.Table != "" {
			name = e.d.Quote(t.Table) + "." + name
		}
		return name, nil

	case *plan.Literal:
		return e.renderLiteral(t), nil

	case *plan.Binary:
		l, err := e.renderExpr(t.Left)
		if err != nil {
			return "", err
		}
		r, err := e.renderExpr(t.Right)
		if err != nil {
			return "", err
		}
		return "(" + l + " " + string(t.Op) + " " + r + ")", nil

	case *plan.Unary:
		inner, err := e.renderExpr(t.Operand)
		if err != nil {
			return "", err
		}
		if t.Op == plan.OpNot {
			return "NOT " + inner, nil
		}
		return "-" + inner, nil

	case *plan.Func:
		args, err := e.renderExprList(t.Args)
		if err != nil {
			return "", err
		}
		return t.Name + "(" + args + ")", nil

	case *plan.Aggregate:
		args, err := e.renderExprList(t.Args)
		if err != nil {
			return "", err
		}
		if t.Distinct {
			args = "DISTINCT " + args
		}
		return t.Name + "(" + args + ")", nil

	case *plan.Case:
		return e.renderCase(t)

	case *plan.IsNull:
		inner, err := e.renderExpr(t.Operand)
		if err != nil {
			return "", err
		}
		if t.Negated {
			return inner + " IS NOT NULL", nil
		}
		return inner + " IS NULL", nil

	case *plan.Like:
		operand, err := e.renderExpr(t.Operand)
		if err != nil {
			return "", err
		}
		pattern, err := e.renderExpr(t.Pattern)
		if err != nil {
			return "", err
		}
		op := " LIKE "
		if t.Negated {
			op = " NOT LIKE "
		}
		return operand + op + pattern, nil

	case *plan.InList:
		operand, err := e.renderExpr(t.Operand)
		if err != nil {
			return "", err
		}
		list, err := e.renderExprList(t.List)
		if err != nil {
			return "", err
		}
		op := " IN ("
		if t.Negated {
			op = " NOT IN ("
		}
		return operand + op + list + ")", nil

	case *plan.InSubquery:
		operand, err := e.renderExpr(t.Operand)
		if err != nil {
			return "", err
		}
		sub, err := e.emitQuery(t.Plan)
		if err != nil {
			return "", err
		}
		op := " IN ("
		if t.Negated {
			op = " NOT IN ("
		}
		return operand + op + sub + ")", nil

	case *plan.Exists:
		sub, err := e.emitQuery(t.Plan)
		if err != nil {
			return "", err
		}
		if t.Negated {
			return "NOT EXISTS (" + sub + ")", nil
		}
		return "EXISTS (" + sub + ")", nil

	case *plan.Between:
		operand, err := e.renderExpr(t.Operand)
		if err != nil {
			return "", err
		}
		low, err := e.renderExpr(t.Low)
		if err != nil {
			return "", err
		}
		high, err := e.renderExpr(t.High)
		if err != nil {
			return "", err
		}
		op := " BETWEEN "
		if t.Negated {
			op = " NOT BETWEEN "
		}
		return operand + op + low + " AND " + high, nil

	case *plan.Alias:
		inner, err := e.renderExpr(t.Expr)
		if err != nil {
			return "", err
		}
		return inner + " AS " + e.d.Quote(t.Name), nil

	case *plan.Star:
		if t.Table != "" {
			return e.d.Quote(t.Table) + ".*", nil
		}
		return "*", nil

	case *plan.WindowFunc:
		if !e.d.SupportsWindowFunctions {
			return "", errors.Unsupported(string(e.d.Backend), "window functions")
		}
		args, err := e.renderExprList(t.Args)
		if err != nil {
			return "", err
		}
		call := t.Name + "(" + args + ")"
		if t.Over != "" {
			return call + " OVER " + t.Over, nil
		}
		spec, err := e.renderWindowSpec(&t.Spec)
		if err != nil {
			return "", err
		}
		return call + " OVER (" + spec + ")", nil

	case *plan.ScalarSubquery:
		sub, err := e.emitQuery(t.Plan)
		if err != nil {
			return "", err
		}
		return "(" + sub + ")", nil

	case *plan.Raw:
		return t.SQL, nil
	}
	return "", errors.Newf(errors.CodeEmitFailed, "unexpected expression %T", x)
}

func (e *emitter) renderExprList(xs []plan.Expr) (string, error) {
	parts := make([]string, 0, len(xs))
	for _, x := range xs {
		s, err := e.renderExpr(x)
		if err != nil {
			return "", err
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, ", "), nil
}

func (e *emitter) renderCase(c *plan.Case) (string, error) {
	var sb strings.Builder
	sb.WriteString("CASE")
	if c.Operand != nil {
		s, err := e.renderExpr(c.Operand)
		if err != nil {
			return "", err
		}
		sb.WriteString(" " + s)
	}
	for _, w := range c.Whens {
		cond, err := e.renderExpr(w.Cond)
		if err != nil {
			return "", err
		}
		result, err := e.renderExpr(w.Result)
		if err != nil {
			return "", err
		}
		sb.WriteString(" WHEN " + cond + " THEN " + result)
	}
	if c.Else != nil {
		s, err := e.renderExpr(c.Else)
		if err != nil {
			return "", err
		}
		sb.WriteString(" ELSE " + s)
	}
	sb.WriteString(" END")
	return sb.String(), nil
}

func (e *emitter) renderLiteral(l *plan.Literal) string {
	switch l.Kind {
	case plan.LiteralString:
		return "'" + strings.ReplaceAll(l.Str, "'", "''") + "'"
	case plan.LiteralInt:
		return strconv.FormatInt(l.Int, 10)
	case plan.LiteralFloat:
		return strconv.FormatFloat(l.Float, 'g', -1, 64)
	case plan.LiteralBool:
		return e.d.BoolLiteral(l.Bool)
	default:
		return e.d.NullLiteral
	}
}
