package executors

import (
	"context"
	"sort"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/TFMV/crossplan/pkg/errors"
	"github.com/TFMV/crossplan/pkg/models"
	"github.com/TFMV/crossplan/pkg/parser"
	"github.com/TFMV/crossplan/pkg/plan"
)

// redisExecutor exposes the keyspace as a single-column relation: the
// table name in `SELECT * FROM <pattern>` is a KEYS glob. A LIKE filter
// on key narrows the glob instead; LIMIT truncates client-side. The
// database argument selects the numeric redis database.
type redisExecutor struct {
	logger zerolog.Logger
}

// NewRedis creates the Redis executor.
func NewRedis(logger zerolog.Logger) Executor {
	return &redisExecutor{logger: logger.With().Str("backend", "redis").Logger()}
}

func (e *redisExecutor) Backend() models.Backend {
	return models.BackendRedis
}

func (e *redisExecutor) Validate(sql string) error {
	_, err := lowerToKeys(sql)
	return err
}

func (e *redisExecutor) Execute(ctx context.Context, sqlText, database string, conn *ConnHandle) (*models.ResultSet, error) {
	if conn == nil || conn.Redis == nil {
		return nil, errors.New(errors.CodeConnectionFailed, "no redis connection")
	}

	q, err := lowerToKeys(sqlText)
	if err != nil {
		return nil, err
	}

	if database != "" {
		n, err := strconv.Atoi(database)
		if err != nil {
			return nil, errors.Newf(errors.CodeInvalidRequest, "redis database must be a number, got %q", database)
		}
		if err := conn.Redis.Do(ctx, "select", n).Err(); err != nil {
			return nil, ctxErr(ctx, err)
		}
	}

	e.logger.Debug().Str("pattern", q.pattern).Msg("Listing keys")

	keys, err := conn.Redis.Keys(ctx, q.pattern).Result()
	if err != nil {
		return nil, ctxErr(ctx, err)
	}

	// KEYS order is unspecified; sort for stable output.
	sort.Strings(keys)
	if q.limit > 0 && int64(len(keys)) > q.limit {
		keys = keys[:q.limit]
	}

	rs := &models.ResultSet{Columns: []string{"key"}, Rows: make([][]string, 0, len(keys))}
	for _, k := range keys {
		rs.Rows = append(rs.Rows, []string{k})
	}
	return rs, nil
}

type keysQuery struct {
	pattern string
	limit   int64
}

func lowerToKeys(sqlText string) (*keysQuery, error) {
	root, err := parser.Parse(sqlText)
	if err != nil {
		return nil, err
	}

	q := &keysQuery{}
	n := root

	if l, ok := n.(*plan.Limit); ok {
		if l.Offset > 0 {
			return nil, errors.Unsupported("redis", "OFFSET")
		}
		q.limit = l.Count
		n = l.Input
	}

	proj, ok := n.(*plan.Projection)
	if !ok {
		return nil, errors.Unsupported("redis", "set operations and CTEs")
	}
	if len(proj.Exprs) != 1 {
		return nil, errors.Unsupported("redis", "multi-column projections")
	}
	switch t := proj.Exprs[0].(type) {
	case *plan.Star:
	case *plan.Column:
		if t.Name != "key" {
			return nil, errors.Unsupported("redis", "column "+t.Name)
		}
	default:
		return nil, errors.Unsupported("redis", "computed select expressions")
	}
	n = proj.Input

	pattern := ""
	if f, ok := n.(*plan.Filter); ok {
		like, ok := f.Predicate.(*plan.Like)
		if !ok || like.Negated {
			return nil, errors.Unsupported("redis", "filters other than key LIKE")
		}
		col, ok := like.Operand.(*plan.Column)
		if !ok || col.Name != "key" {
			return nil, errors.Unsupported("redis", "filters other than key LIKE")
		}
		lit, ok := like.Pattern.(*plan.Literal)
		if !ok || lit.Kind != plan.LiteralString {
			return nil, errors.Unsupported("redis", "non-literal LIKE patterns")
		}
		pattern = likeToGlob(lit.Str)
		n = f.Input
	}

	scan, ok := n.(*plan.TableScan)
	if !ok {
		return nil, errors.Unsupported("redis", "joins and subqueries")
	}
	if pattern == "" {
		pattern = scan.Table
	}
	q.pattern = pattern
	return q, nil
}

// likeToGlob maps LIKE wildcards to the KEYS glob syntax.
func likeToGlob(pattern string) string {
	out := make([]rune, 0, len(pattern))
	for _, r := range pattern {
		switch r {
		case '%':
			out = append(out, '*')
		case '_':
			out = append(out, '?')
		default:
			out = append(out, r)
		}
	}
	return string(out)
}
