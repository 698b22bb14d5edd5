package plan

import (
	"bytes"
	"encoding/binary"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Hash returns a stable 64-bit digest of the plan's structure. Two plans
// hash equal iff their canonical encodings are byte-identical, so the digest
// is safe to use as a cache key component.
func Hash(n Node) uint64 {
	return xxhash.Sum64(Encode(n))
}

// Equal reports structural equality of two plans.
func Equal(a, b Node) bool {
	return bytes.Equal(Encode(a), Encode(b))
}

// HashExpr digests a single expression the same way Hash digests a plan.
func HashExpr(e Expr) uint64 {
	var enc encoder
	enc.expr(e)
	return xxhash.Sum64(enc.buf.Bytes())
}

// Encode renders the plan into its canonical byte form: a preorder walk
// writing a one-byte tag per node/expression followed by length-prefixed
// payload fields.
func Encode(n Node) []byte {
	var enc encoder
	enc.node(n)
	return enc.buf.Bytes()
}

// ExprEqual reports structural equality of two expressions.
func ExprEqual(a, b Expr) bool {
	var ea, eb encoder
	ea.expr(a)
	eb.expr(b)
	return bytes.Equal(ea.buf.Bytes(), eb.buf.Bytes())
}

type encoder struct {
	buf bytes.Buffer
}

func (e *encoder) tag(t byte) {
	e.buf.WriteByte(t)
}

func (e *encoder) str(s string) {
	var lb [4]byte
	binary.LittleEndian.PutUint32(lb[:], uint32(len(s)))
	e.buf.Write(lb[:])
	e.buf.WriteString(s)
}

func (e *encoder) i64(v int64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	e.buf.Write(b[:])
}

func (e *encoder) flag(b bool) {
	if b {
		e.buf.WriteByte(1)
	} else {
		e.buf.WriteByte(0)
	}
}

// Node tags occupy 0x01-0x1f, expression tags 0x20-0x3f.
const (
	tagTableScan byte = 0x01 + iota
	tagProjection
	tagFilter
	tagSort
	tagLimit
	tagJoin
	tagGroupBy
	tagHaving
	tagDistinct
	tagUnion
	tagWindow
	tagSubqueryScan
	tagCTE
)

const (
	tagColumn byte = 0x20 + iota
	tagLiteral
	tagBinary
	tagUnary
	tagFunc
	tagAggregate
	tagCase
	tagIsNull
	tagLike
	tagInList
	tagInSubquery
	tagExists
	tagBetween
	tagAlias
	tagStar
	tagWindowFunc
	tagScalarSubquery
	tagRaw
)

func (e *encoder) node(n Node) {
	switch t := n.(type) {
	case nil:
		e.tag(0)
	case *TableScan:
		e.tag(tagTableScan)
		e.str(t.Schema)
		e.str(t.Table)
		e.str(t.Alias)
	case *Projection:
		e.tag(tagProjection)
		e.exprs(t.Exprs)
		e.node(t.Input)
	case *Filter:
		e.tag(tagFilter)
		e.expr(t.Predicate)
		e.node(t.Input)
	case *Sort:
		e.tag(tagSort)
		e.sortItems(t.Items)
		e.node(t.Input)
	case *Limit:
		e.tag(tagLimit)
		e.i64(t.Count)
		e.i64(t.Offset)
		e.node(t.Input)
	case *Join:
		e.tag(tagJoin)
		e.i64(int64(t.Kind))
		e.node(t.Left)
		e.node(t.Right)
		e.optExpr(t.On)
	case *GroupBy:
		e.tag(tagGroupBy)
		e.exprs(t.GroupExprs)
		e.exprs(t.AggExprs)
		e.node(t.Input)
	case *Having:
		e.tag(tagHaving)
		e.expr(t.Predicate)
		e.node(t.Input)
	case *Distinct:
		e.tag(tagDistinct)
		e.node(t.Input)
	case *Union:
		e.tag(tagUnion)
		e.flag(t.All)
		e.i64(int64(len(t.Inputs)))
		for _, in := range t.Inputs {
			e.node(in)
		}
	case *Window:
		e.tag(tagWindow)
		e.i64(int64(len(t.Specs)))
		for i := range t.Specs {
			e.windowSpec(&t.Specs[i])
		}
		e.node(t.Input)
	case *SubqueryScan:
		e.tag(tagSubqueryScan)
		e.str(t.Alias)
		e.flag(t.Correlated)
		e.node(t.Plan)
	case *CTE:
		e.tag(tagCTE)
		e.str(t.Name)
		e.flag(t.Recursive)
		e.node(t.Def)
		e.node(t.Body)
	}
}

func (e *encoder) expr(x Expr) {
	switch t := x.(type) {
	case *Column:
		e.tag(tagColumn)
		e.str(t.Table)
		e.str(t.Name)
	case *Literal:
		e.tag(tagLiteral)
		e.i64(int64(t.Kind))
		switch t.Kind {
		case LiteralString:
			e.str(t.Str)
		case LiteralInt:
			e.i64(t.Int)
		case LiteralFloat:
			e.str(strconv.FormatFloat(t.Float, 'g', -1, 64))
		case LiteralBool:
			e.flag(t.Bool)
		}
	case *Binary:
		e.tag(tagBinary)
		e.str(string(t.Op))
		e.expr(t.Left)
		e.expr(t.Right)
	case *Unary:
		e.tag(tagUnary)
		e.str(string(t.Op))
		e.expr(t.Operand)
	case *Func:
		e.tag(tagFunc)
		e.str(t.Name)
		e.exprs(t.Args)
	case *Aggregate:
		e.tag(tagAggregate)
		e.str(t.Name)
		e.flag(t.Distinct)
		e.exprs(t.Args)
	case *Case:
		e.tag(tagCase)
		e.optExpr(t.Operand)
		e.i64(int64(len(t.Whens)))
		for _, w := range t.Whens {
			e.expr(w.Cond)
			e.expr(w.Result)
		}
		e.optExpr(t.Else)
	case *IsNull:
		e.tag(tagIsNull)
		e.flag(t.Negated)
		e.expr(t.Operand)
	case *Like:
		e.tag(tagLike)
		e.flag(t.Negated)
		e.expr(t.Operand)
		e.expr(t.Pattern)
	case *InList:
		e.tag(tagInList)
		e.flag(t.Negated)
		e.expr(t.Operand)
		e.exprs(t.List)
	case *InSubquery:
		e.tag(tagInSubquery)
		e.flag(t.Negated)
		e.flag(t.Correlated)
		e.expr(t.Operand)
		e.node(t.Plan)
	case *Exists:
		e.tag(tagExists)
		e.flag(t.Negated)
		e.flag(t.Correlated)
		e.node(t.Plan)
	case *Between:
		e.tag(tagBetween)
		e.flag(t.Negated)
		e.expr(t.Operand)
		e.expr(t.Low)
		e.expr(t.High)
	case *Alias:
		e.tag(tagAlias)
		e.str(t.Name)
		e.expr(t.Expr)
	case *Star:
		e.tag(tagStar)
		e.str(t.Table)
	case *WindowFunc:
		e.tag(tagWindowFunc)
		e.str(t.Name)
		e.str(t.Over)
		e.exprs(t.Args)
		e.windowSpec(&t.Spec)
	case *ScalarSubquery:
		e.tag(tagScalarSubquery)
		e.flag(t.Correlated)
		e.node(t.Plan)
	case *Raw:
		e.tag(tagRaw)
		e.str(t.SQL)
	}
}

func (e *encoder) optExpr(x Expr) {
	if x == nil {
		e.flag(false)
		return
	}
	e.flag(true)
	e.expr(x)
}

func (e *encoder) exprs(xs []Expr) {
	e.i64(int64(len(xs)))
	for _, x := range xs {
		e.expr(x)
	}
}

func (e *encoder) sortItems(items []SortItem) {
	e.i64(int64(len(items)))
	for _, it := range items {
		e.flag(it.Desc)
		e.expr(it.Expr)
	}
}

func (e *encoder) windowSpec(s *WindowSpec) {
	e.str(s.Name)
	e.exprs(s.PartitionBy)
	e.sortItems(s.OrderBy)
	e.str(s.Frame)
}
