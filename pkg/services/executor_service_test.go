package services

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TFMV/crossplan/pkg/errors"
	"github.com/TFMV/crossplan/pkg/executors"
	"github.com/TFMV/crossplan/pkg/models"
)

func newTestExecutorService(t *testing.T, blockDangerous bool) (ExecutorService, *executors.ConnHandle) {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE users (id INTEGER, name TEXT, age INTEGER)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO users VALUES (1, 'alice', 30), (2, 'bob', 17), (3, 'carol', 45)`)
	require.NoError(t, err)

	lite, err := executors.NewSQLite(zerolog.Nop())
	require.NoError(t, err)
	registry := executors.NewRegistry()
	registry.Register(lite)

	compiler := newTestCompiler(t)
	svc := NewExecutorService(compiler, registry, nopLogger{}, nopMetrics{}, blockDangerous)
	return svc, &executors.ConnHandle{DB: db}
}

func TestExecuteEndToEnd(t *testing.T) {
	svc, conn := newTestExecutorService(t, false)

	rs, err := svc.Execute(context.Background(), &models.CompileRequest{
		SQL:     "SELECT id, name FROM users WHERE age > 21 ORDER BY id",
		Backend: models.BackendSQLite,
	}, conn)
	require.NoError(t, err)

	assert.Equal(t, []string{"id", "name"}, rs.Columns)
	require.Equal(t, int64(2), rs.RowCount)
	assert.Equal(t, []string{"1", "alice"}, rs.Rows[0])
	assert.Equal(t, []string{"3", "carol"}, rs.Rows[1])
}

func TestExecutePaginated(t *testing.T) {
	svc, conn := newTestExecutorService(t, false)

	rs, err := svc.Execute(context.Background(), &models.CompileRequest{
		SQL:     "SELECT id FROM users ORDER BY id",
		Backend: models.BackendSQLite,
		Page:    &models.Pagination{Size: 1, Offset: 1},
	}, conn)
	require.NoError(t, err)
	require.Equal(t, int64(1), rs.RowCount)
	assert.Equal(t, []string{"2"}, rs.Rows[0])
}

func TestExecuteBlocksDangerous(t *testing.T) {
	svc, conn := newTestExecutorService(t, true)

	_, err := svc.Execute(context.Background(), &models.CompileRequest{
		SQL:     "DROP TABLE users",
		Backend: models.BackendSQLite,
	}, conn)
	require.Error(t, err)
	assert.Equal(t, errors.CodeValidationFailed, errors.GetCode(err))
}

func TestExecuteValidatorRejects(t *testing.T) {
	// With the service-level guard off, the backend validator still
	// refuses destructive DDL on sqlite.
	svc, conn := newTestExecutorService(t, false)

	_, err := svc.Execute(context.Background(), &models.CompileRequest{
		SQL:     "DROP TABLE users",
		Backend: models.BackendSQLite,
	}, conn)
	require.Error(t, err)
	assert.Equal(t, errors.CodeValidationFailed, errors.GetCode(err))
}

func TestExecuteUnknownBackend(t *testing.T) {
	svc, conn := newTestExecutorService(t, false)

	_, err := svc.Execute(context.Background(), &models.CompileRequest{
		SQL:     "SELECT 1",
		Backend: models.BackendPostgres,
	}, conn)
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidRequest, errors.GetCode(err))
}

func TestExecuteFailureKeepsCompileCached(t *testing.T) {
	svc, conn := newTestExecutorService(t, false)
	ctx := context.Background()
	req := &models.CompileRequest{
		SQL:     "SELECT id FROM missing_table",
		Backend: models.BackendSQLite,
	}

	_, err := svc.Execute(ctx, req, conn)
	require.Error(t, err)
	assert.Equal(t, errors.CodeExecutionFailed, errors.GetCode(err))

	// The compile was valid; the second attempt must not pay for parsing
	// again, and the execution error must repeat.
	_, err = svc.Execute(ctx, req, conn)
	require.Error(t, err)
	assert.Equal(t, errors.CodeExecutionFailed, errors.GetCode(err))
}

func TestValidateOnly(t *testing.T) {
	svc, _ := newTestExecutorService(t, false)

	require.NoError(t, svc.Validate(context.Background(), &models.CompileRequest{
		SQL:     "SELECT id FROM users",
		Backend: models.BackendSQLite,
	}))

	err := svc.Validate(context.Background(), &models.CompileRequest{
		SQL:     "DROP TABLE users",
		Backend: models.BackendSQLite,
	})
	require.Error(t, err)
	assert.Equal(t, errors.CodeValidationFailed, errors.GetCode(err))
}

// The mongodb and redis executors interpret the compiled SQL by parsing it
// back into a plan, so everything the compiler emits for them must survive
// their own Validate.
func TestCompiledSQLRoundTripsMinimalBackends(t *testing.T) {
	compiler := newTestCompiler(t)

	t.Run("mongodb", func(t *testing.T) {
		queries := []string{
			"SELECT name FROM users WHERE age > 30",
			"SELECT name, city FROM users WHERE city IN ('oslo', 'bergen') ORDER BY name LIMIT 5",
			"SELECT * FROM users WHERE name LIKE 'al%'",
		}
		mongo := executors.NewMongo(zerolog.Nop())
		for _, q := range queries {
			compiled, err := compiler.Compile(context.Background(), &models.CompileRequest{
				SQL:     q,
				Backend: models.BackendMongoDB,
			})
			require.NoError(t, err, q)
			assert.NoError(t, mongo.Validate(compiled.SQL), "compiled %q", compiled.SQL)
		}
	})

	t.Run("redis", func(t *testing.T) {
		queries := []string{
			"SELECT * FROM `sess:*` LIMIT 10",
			"SELECT key FROM keyspace WHERE key LIKE 'user:%'",
		}
		rds := executors.NewRedis(zerolog.Nop())
		for _, q := range queries {
			compiled, err := compiler.Compile(context.Background(), &models.CompileRequest{
				SQL:     q,
				Backend: models.BackendRedis,
			})
			require.NoError(t, err, q)
			assert.NoError(t, rds.Validate(compiled.SQL), "compiled %q", compiled.SQL)
		}
	})
}
