package executors

import (
	"context"
	"database/sql"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TFMV/crossplan/pkg/errors"
	"github.com/TFMV/crossplan/pkg/models"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	_, err := r.Get(models.BackendPostgres)
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidRequest, errors.GetCode(err))

	lite, err := NewSQLite(testLogger())
	require.NoError(t, err)
	r.Register(lite)

	got, err := r.Get(models.BackendSQLite)
	require.NoError(t, err)
	assert.Equal(t, models.BackendSQLite, got.Backend())
	assert.Len(t, r.Backends(), 1)
}

func openSQLite(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSQLiteExecute(t *testing.T) {
	db := openSQLite(t)
	_, err := db.Exec(`CREATE TABLE users (id INTEGER, name TEXT, score REAL, note TEXT)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO users VALUES (1, 'alice', 9.5, NULL), (2, 'bob', 7.25, 'x')`)
	require.NoError(t, err)

	lite, err := NewSQLite(testLogger())
	require.NoError(t, err)

	rs, err := lite.Execute(context.Background(),
		"SELECT id, name, score, note FROM users ORDER BY id", "", &ConnHandle{DB: db})
	require.NoError(t, err)

	assert.Equal(t, []string{"id", "name", "score", "note"}, rs.Columns)
	require.Len(t, rs.Rows, 2)
	assert.Equal(t, []string{"1", "alice", "9.5", ""}, rs.Rows[0])
	assert.Equal(t, []string{"2", "bob", "7.25", "x"}, rs.Rows[1])
}

func TestSQLiteExecuteErrors(t *testing.T) {
	lite, err := NewSQLite(testLogger())
	require.NoError(t, err)

	t.Run("nil connection", func(t *testing.T) {
		_, err := lite.Execute(context.Background(), "SELECT 1", "", nil)
		require.Error(t, err)
		assert.Equal(t, errors.CodeConnectionFailed, errors.GetCode(err))
	})

	t.Run("bad sql", func(t *testing.T) {
		db := openSQLite(t)
		_, err := lite.Execute(context.Background(), "SELECT FROM WHERE", "", &ConnHandle{DB: db})
		require.Error(t, err)
		assert.Equal(t, errors.CodeExecutionFailed, errors.GetCode(err))
	})

	t.Run("canceled context", func(t *testing.T) {
		db := openSQLite(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := lite.Execute(ctx, "SELECT 1", "", &ConnHandle{DB: db})
		require.Error(t, err)
		assert.Equal(t, errors.CodeCanceled, errors.GetCode(err))
	})
}

func TestSQLiteValidate(t *testing.T) {
	lite, err := NewSQLite(testLogger())
	require.NoError(t, err)

	assert.NoError(t, lite.Validate("SELECT 1"))
	assert.NoError(t, lite.Validate("SELECT id FROM t WHERE x = 1"))

	for _, stmt := range []string{
		"DROP TABLE users",
		"  drop table users",
		"TRUNCATE users",
		"ALTER TABLE users ADD COLUMN x",
		"",
	} {
		err := lite.Validate(stmt)
		require.Error(t, err, stmt)
		assert.Equal(t, errors.CodeValidationFailed, errors.GetCode(err))
	}
}

func TestPostgresValidate(t *testing.T) {
	pg, err := NewPostgres(testLogger())
	require.NoError(t, err)

	assert.NoError(t, pg.Validate(`SELECT "id" FROM "users" WHERE "age" > 21`))

	err = pg.Validate("SELECT id FROM (")
	require.Error(t, err)
	assert.Equal(t, errors.CodeValidationFailed, errors.GetCode(err))
}

func TestMySQLValidate(t *testing.T) {
	my, err := NewMySQL(testLogger())
	require.NoError(t, err)

	assert.NoError(t, my.Validate("SELECT `id` FROM `users` LIMIT 5"))

	err = my.Validate("SELEC id FRM users")
	require.Error(t, err)
	assert.Equal(t, errors.CodeValidationFailed, errors.GetCode(err))
}

func TestMSSQLValidate(t *testing.T) {
	ms, err := NewMSSQL(testLogger())
	require.NoError(t, err)

	assert.NoError(t, ms.Validate("SELECT TOP 10 [id] FROM [users]"))
	assert.NoError(t, ms.Validate("SELECT [id] FROM [users];"))

	// Separators inside literals and bracketed identifiers don't split
	// the statement.
	assert.NoError(t, ms.Validate("SELECT [id] FROM [users] WHERE [note] = 'a;b'"))
	assert.NoError(t, ms.Validate("SELECT [id] FROM [users] WHERE [note] = 'it''s; fine'"))
	assert.NoError(t, ms.Validate("SELECT [odd;name] FROM [users]"))

	err = ms.Validate("SELECT 1; DROP TABLE users")
	require.Error(t, err)
	assert.Equal(t, errors.CodeValidationFailed, errors.GetCode(err))

	err = ms.Validate("SELECT 'a;b'; DROP TABLE users")
	require.Error(t, err)
	assert.Equal(t, errors.CodeValidationFailed, errors.GetCode(err))
}
