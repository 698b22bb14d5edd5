// Package rewrite transforms logical plans through a fixed, ordered list of
// rules. Every rule runs exactly once per compile; rules are pure functions
// that rebuild nodes instead of mutating them, so a rewrite failure always
// leaves the input plan intact for fallback.
package rewrite

import (
	"github.com/TFMV/crossplan/pkg/errors"
	"github.com/TFMV/crossplan/pkg/models"
	"github.com/TFMV/crossplan/pkg/plan"
)

// DefaultAutoLimitCap bounds unbounded queries when auto-limiting is on.
const DefaultAutoLimitCap = 1000

// Options steer the optional rules. Zero value disables auto-limiting and
// pagination.
type Options struct {
	// AutoLimit caps queries that have no LIMIT of their own.
	AutoLimit    bool
	AutoLimitCap int64

	// Page overrides the plan's top-level limit with explicit pagination.
	Page *models.Pagination

	// RequireOrderedOffset injects an ORDER BY when pagination uses a
	// non-zero offset and the plan is unordered; dialects whose offset
	// clause demands ordering set it.
	RequireOrderedOffset bool
	// DefaultOrderTerm is the injected ordering term, an ordinal or a
	// column name. Empty means ordinal 1.
	DefaultOrderTerm string
}

type rule struct {
	name  string
	apply func(plan.Node, Options) (plan.Node, []string, error)
}

// Engine applies the rule list in order.
type Engine struct {
	rules []rule
}

// New returns an engine with the standard rules: merge_filters,
// pushdown_filter, prune_projection, inline_single_use_cte, auto_limit,
// paginate.
func New() *Engine {
	return &Engine{rules: []rule{
		{"merge_filters", mergeFilters},
		{"pushdown_filter", pushdownFilter},
		{"prune_projection", pruneProjection},
		{"inline_single_use_cte", inlineSingleUseCTE},
		{"auto_limit", autoLimit},
		{"paginate", paginate},
	}}
}

// Rewrite runs every rule once and returns the rewritten plan plus the
// names of the rules that changed it. On error the returned plan is the
// untouched input, ready for fallback execution.
func (e *Engine) Rewrite(n plan.Node, opts Options) (plan.Node, []string, error) {
	if opts.AutoLimitCap <= 0 {
		opts.AutoLimitCap = DefaultAutoLimitCap
	}

	var applied []string
	cur := n
	for _, r := range e.rules {
		next, notes, err := r.apply(cur, opts)
		if err != nil {
			return n, applied, errors.Wrapf(err, errors.CodeRewriteFailed, "rule %s", r.name)
		}
		if !plan.Equal(next, cur) {
			applied = append(applied, r.name)
		}
		applied = append(applied, notes...)
		cur = next
	}
	return cur, applied, nil
}
