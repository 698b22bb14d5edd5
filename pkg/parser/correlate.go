package parser

import "strings"

// scope tracks the relation names visible in one query block so that
// subqueries can be marked correlated at construction time. A qualified
// column whose qualifier resolves in an enclosing block, not the current
// one, correlates the block it appears in. Unqualified columns are assumed
// local; without catalog access there is nothing better to do.
type scope struct {
	parent *scope
	names  map[string]struct{}
	// outer holds qualifiers that did not resolve locally, bubbled to the
	// parent when the scope closes.
	outer []string
	// fj is the statement-wide FULL JOIN bookkeeping, shared down the chain.
	fj *fullJoinState
}

func newScope(parent *scope) *scope {
	s := &scope{parent: parent, names: make(map[string]struct{})}
	if parent != nil {
		s.fj = parent.fj
	}
	return s
}

func (s *scope) fullJoins() *fullJoinState {
	return s.fj
}

// declare registers a table name or alias visible in this block.
func (s *scope) declare(name string) {
	if name != "" {
		s.names[strings.ToLower(name)] = struct{}{}
	}
}

func (s *scope) has(name string) bool {
	_, ok := s.names[strings.ToLower(name)]
	return ok
}

// refColumn records a column reference made while lowering this block.
func (s *scope) refColumn(qualifier string) {
	if qualifier == "" || s.has(qualifier) {
		return
	}
	s.outer = append(s.outer, strings.ToLower(qualifier))
}

// close resolves the block's unresolved qualifiers against ancestors and
// reports whether any of them did: that is, whether the block is correlated.
// Qualifiers that resolve nowhere are bubbled to the parent untouched, so a
// doubly nested subquery correlates every block between it and the
// resolving one.
func (s *scope) close() bool {
	correlated := false
	for _, q := range s.outer {
		if resolvesAbove(s.parent, q) {
			correlated = true
		}
		if s.parent != nil {
			s.parent.refColumn(q)
		}
	}
	return correlated
}

func resolvesAbove(s *scope, qualifier string) bool {
	for ; s != nil; s = s.parent {
		if s.has(qualifier) {
			return true
		}
	}
	return false
}
