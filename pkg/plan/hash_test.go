package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func samplePlan() Node {
	return &Limit{
		Count: 10,
		Input: &Projection{
			Exprs: []Expr{
				&Column{Table: "u", Name: "id"},
				&Alias{Name: "n", Expr: &Aggregate{Name: "COUNT", Args: []Expr{&Star{}}}},
			},
			Input: &Filter{
				Predicate: &Binary{
					Op:    OpGt,
					Left:  &Column{Name: "age"},
					Right: &Literal{Kind: LiteralInt, Int: 21},
				},
				Input: &TableScan{Table: "users", Alias: "u"},
			},
		},
	}
}

func TestHash_Deterministic(t *testing.T) {
	a := samplePlan()
	b := samplePlan()

	assert.Equal(t, Hash(a), Hash(b), "identical plans must hash identically")
	assert.True(t, Equal(a, b))
}

func TestHash_SensitiveToStructure(t *testing.T) {
	base := samplePlan()

	tests := []struct {
		name   string
		mutant Node
	}{
		{
			name: "different limit count",
			mutant: &Limit{Count: 11, Input: samplePlan().(*Limit).Input},
		},
		{
			name: "different table",
			mutant: &Limit{
				Count: 10,
				Input: &Projection{
					Exprs: samplePlan().(*Limit).Input.(*Projection).Exprs,
					Input: &Filter{
						Predicate: samplePlan().(*Limit).Input.(*Projection).Input.(*Filter).Predicate,
						Input:     &TableScan{Table: "accounts", Alias: "u"},
					},
				},
			},
		},
		{
			name:   "different operator",
			mutant: &Filter{Predicate: &Binary{Op: OpLt, Left: &Column{Name: "age"}, Right: &Literal{Kind: LiteralInt, Int: 21}}, Input: &TableScan{Table: "users"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotEqual(t, Hash(base), Hash(tt.mutant))
			assert.False(t, Equal(base, tt.mutant))
		})
	}
}

func TestHash_LiteralKindsDistinct(t *testing.T) {
	// "1" as a string and 1 as an int must not collide.
	s := &Filter{
		Predicate: &Binary{Op: OpEq, Left: &Column{Name: "v"}, Right: &Literal{Kind: LiteralString, Str: "1"}},
		Input:     &TableScan{Table: "t"},
	}
	i := &Filter{
		Predicate: &Binary{Op: OpEq, Left: &Column{Name: "v"}, Right: &Literal{Kind: LiteralInt, Int: 1}},
		Input:     &TableScan{Table: "t"},
	}

	assert.NotEqual(t, Hash(s), Hash(i))
}

func TestHash_SharedSubtrees(t *testing.T) {
	// A rewritten plan that shares subtrees with the original must still
	// hash by structure, not identity.
	scan := &TableScan{Table: "t"}
	a := &Filter{Predicate: &IsNull{Operand: &Column{Name: "x"}}, Input: scan}
	b := &Filter{Predicate: &IsNull{Operand: &Column{Name: "x"}}, Input: &TableScan{Table: "t"}}

	assert.True(t, Equal(a, b))
}

func TestExprEqual(t *testing.T) {
	a := &Binary{Op: OpAnd, Left: &Column{Name: "a"}, Right: &Column{Name: "b"}}
	b := &Binary{Op: OpAnd, Left: &Column{Name: "a"}, Right: &Column{Name: "b"}}
	c := &Binary{Op: OpOr, Left: &Column{Name: "a"}, Right: &Column{Name: "b"}}

	assert.True(t, ExprEqual(a, b))
	assert.False(t, ExprEqual(a, c))
	assert.NotEqual(t, HashExpr(a), HashExpr(c))
}

func TestConjuncts(t *testing.T) {
	p := AndAll([]Expr{
		&Column{Name: "a"},
		&Column{Name: "b"},
		&Column{Name: "c"},
	})

	parts := Conjuncts(p)
	assert.Len(t, parts, 3)
	assert.Equal(t, "a", parts[0].(*Column).Name)
	assert.Equal(t, "c", parts[2].(*Column).Name)

	// Non-AND predicate is a single conjunct.
	single := Conjuncts(&IsNull{Operand: &Column{Name: "x"}})
	assert.Len(t, single, 1)

	assert.Nil(t, AndAll(nil))
}
