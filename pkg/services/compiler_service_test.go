package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TFMV/crossplan/pkg/cache"
	"github.com/TFMV/crossplan/pkg/errors"
	"github.com/TFMV/crossplan/pkg/models"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

type nopTimer struct{}

func (nopTimer) Stop() time.Duration { return 0 }

type nopMetrics struct{}

func (nopMetrics) IncrementCounter(string, ...string)          {}
func (nopMetrics) RecordHistogram(string, float64, ...string)  {}
func (nopMetrics) RecordGauge(string, float64, ...string)      {}
func (nopMetrics) StartTimer(string) Timer                     { return nopTimer{} }

func newTestCompiler(t *testing.T) CompilerService {
	t.Helper()
	return NewCompilerService(cache.New(cache.DefaultConfig()), CompilerConfig{}, nopLogger{}, nopMetrics{})
}

func TestCompileBasic(t *testing.T) {
	svc := newTestCompiler(t)

	req := &models.CompileRequest{
		SQL:     "SELECT id, name FROM users WHERE age > 21",
		Backend: models.BackendPostgres,
	}

	q, err := svc.Compile(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, models.StatementQuery, q.Kind)
	assert.False(t, q.FromCache)
	assert.Equal(t, `SELECT "id", "name" FROM "users" WHERE ("age" > 21)`, q.SQL)
	assert.Equal(t, []string{"id", "name"}, q.Headers)
}

func TestCompileCacheHit(t *testing.T) {
	svc := newTestCompiler(t)
	req := &models.CompileRequest{SQL: "SELECT id FROM users", Backend: models.BackendMySQL}

	first, err := svc.Compile(context.Background(), req)
	require.NoError(t, err)
	require.False(t, first.FromCache)

	second, err := svc.Compile(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, first.SQL, second.SQL)
	assert.Equal(t, first.Headers, second.Headers)

	stats := svc.CacheStats()
	assert.GreaterOrEqual(t, stats.Hits, uint64(1))
}

func TestCompileFingerprintInsensitivity(t *testing.T) {
	svc := newTestCompiler(t)

	first, err := svc.Compile(context.Background(),
		&models.CompileRequest{SQL: "SELECT id FROM users", Backend: models.BackendPostgres})
	require.NoError(t, err)

	// Same statement modulo whitespace, case, and comments hits the
	// source-level cache.
	second, err := svc.Compile(context.Background(),
		&models.CompileRequest{SQL: "  select   ID from USERS  -- trailing", Backend: models.BackendPostgres})
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, first.SQL, second.SQL)
}

func TestCompilePlanLevelCache(t *testing.T) {
	svc := newTestCompiler(t)

	first, err := svc.Compile(context.Background(),
		&models.CompileRequest{SQL: "SELECT id FROM users WHERE a = 1 AND b = 2", Backend: models.BackendPostgres})
	require.NoError(t, err)

	// Different raw text, same plan after parsing: the fingerprint misses
	// but the plan hash hits, so emit is skipped.
	before := svc.CacheStats()
	second, err := svc.Compile(context.Background(),
		&models.CompileRequest{SQL: "SELECT id FROM users WHERE a = 1 AND (b = 2)", Backend: models.BackendPostgres})
	require.NoError(t, err)
	assert.Equal(t, first.SQL, second.SQL)
	assert.Greater(t, svc.CacheStats().Hits, before.Hits)
}

func TestCompileKeyPartitioning(t *testing.T) {
	svc := newTestCompiler(t)
	ctx := context.Background()
	const sql = "SELECT id FROM users ORDER BY id"

	pg, err := svc.Compile(ctx, &models.CompileRequest{SQL: sql, Backend: models.BackendPostgres})
	require.NoError(t, err)

	my, err := svc.Compile(ctx, &models.CompileRequest{SQL: sql, Backend: models.BackendMySQL})
	require.NoError(t, err)
	assert.False(t, my.FromCache, "backends must not share cache entries")
	assert.NotEqual(t, pg.SQL, my.SQL)

	paged, err := svc.Compile(ctx, &models.CompileRequest{
		SQL:     sql,
		Backend: models.BackendPostgres,
		Page:    &models.Pagination{Size: 10, Offset: 20},
	})
	require.NoError(t, err)
	assert.False(t, paged.FromCache, "pagination must partition the cache key")
	assert.Contains(t, paged.SQL, "LIMIT 10 OFFSET 20")
}

func TestCompilePagination(t *testing.T) {
	svc := newTestCompiler(t)

	q, err := svc.Compile(context.Background(), &models.CompileRequest{
		SQL:     "SELECT id FROM users",
		Backend: models.BackendMSSQL,
		Page:    &models.Pagination{Size: 25, Offset: 50},
	})
	require.NoError(t, err)
	// SQL Server pagination needs an ORDER BY; the rewrite injects the
	// ordinal when the statement has none.
	assert.Contains(t, q.SQL, "ORDER BY 1")
	assert.Contains(t, q.SQL, "OFFSET 50 ROWS FETCH NEXT 25 ROWS ONLY")
	assert.Contains(t, q.AppliedRules, "paginate")
}

func TestCompileAutoLimit(t *testing.T) {
	svc := NewCompilerService(cache.New(cache.DefaultConfig()),
		CompilerConfig{AutoLimitCap: 500}, nopLogger{}, nopMetrics{})

	q, err := svc.Compile(context.Background(), &models.CompileRequest{
		SQL:     "SELECT id FROM users",
		Backend: models.BackendPostgres,
		Options: models.CompileOptions{AutoLimit: true},
	})
	require.NoError(t, err)
	assert.Contains(t, q.SQL, "LIMIT 500")
	assert.Contains(t, q.AppliedRules, "auto_limit")
}

func TestCompilePassthrough(t *testing.T) {
	svc := newTestCompiler(t)

	for _, sql := range []string{
		"INSERT INTO users VALUES (1, 'a')",
		"CREATE TABLE t (id INT)",
		"EXPLAIN SELECT 1",
	} {
		q, err := svc.Compile(context.Background(),
			&models.CompileRequest{SQL: sql, Backend: models.BackendPostgres})
		require.NoError(t, err, sql)
		assert.Equal(t, models.StatementPassthrough, q.Kind, sql)
		assert.Equal(t, sql, q.SQL, sql)
		assert.Empty(t, q.AppliedRules, sql)
	}

	// Passthrough statements never occupy the cache.
	assert.Zero(t, svc.CacheStats().Size)
}

func TestCompileErrors(t *testing.T) {
	svc := newTestCompiler(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  *models.CompileRequest
		code string
	}{
		{
			name: "empty statement",
			req:  &models.CompileRequest{SQL: "   ", Backend: models.BackendPostgres},
			code: errors.CodeInvalidRequest,
		},
		{
			name: "invalid pagination",
			req: &models.CompileRequest{
				SQL:     "SELECT 1",
				Backend: models.BackendPostgres,
				Page:    &models.Pagination{Size: 0},
			},
			code: errors.CodeInvalidRequest,
		},
		{
			name: "unknown backend",
			req:  &models.CompileRequest{SQL: "SELECT 1", Backend: "oracle"},
			code: errors.CodeInvalidRequest,
		},
		{
			name: "syntax error",
			req:  &models.CompileRequest{SQL: "SELECT FROM FROM", Backend: models.BackendPostgres},
			code: errors.CodeParseFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Compile(ctx, tt.req)
			require.Error(t, err)
			assert.Equal(t, tt.code, errors.GetCode(err))
		})
	}

	t.Run("failed compiles are not cached", func(t *testing.T) {
		_, err := svc.Compile(ctx, &models.CompileRequest{SQL: "SELECT FROM FROM", Backend: models.BackendPostgres})
		require.Error(t, err)
		assert.Zero(t, svc.CacheStats().Size)
	})

	t.Run("canceled context", func(t *testing.T) {
		canceled, cancel := context.WithCancel(ctx)
		cancel()
		_, err := svc.Compile(canceled, &models.CompileRequest{SQL: "SELECT 1", Backend: models.BackendPostgres})
		require.Error(t, err)
		assert.Equal(t, errors.CodeCanceled, errors.GetCode(err))
	})
}

func TestDebugPlanAndMetrics(t *testing.T) {
	svc := newTestCompiler(t)

	tree, err := svc.DebugPlan("SELECT id FROM users WHERE age > 21")
	require.NoError(t, err)
	assert.Contains(t, tree, "TableScan users")
	assert.Contains(t, tree, "Filter")

	m, err := svc.PlanMetrics("SELECT id FROM users WHERE EXISTS (SELECT 1 FROM orders WHERE orders.user_id = users.id)")
	require.NoError(t, err)
	assert.Greater(t, m.NodeCount, 0)
	assert.Equal(t, 1, m.SubqueryCount)
	assert.Equal(t, 1, m.CorrelatedCount)

	_, err = svc.DebugPlan("NOT SQL AT ALL")
	require.Error(t, err)
	assert.True(t, errors.IsParse(err))
}

func TestCompileHeaderInference(t *testing.T) {
	svc := newTestCompiler(t)

	q, err := svc.Compile(context.Background(), &models.CompileRequest{
		SQL:     "SELECT u.id AS uid, name, COUNT(*), UPPER(city) FROM users u GROUP BY u.id, name, city",
		Backend: models.BackendPostgres,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"uid", "name", "count", "upper"}, q.Headers)
}
