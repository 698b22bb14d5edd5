package executors

import (
	"strings"

	// Registers the sqlite3 database/sql driver.
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/TFMV/crossplan/pkg/errors"
	"github.com/TFMV/crossplan/pkg/models"
)

// sqliteExecutor runs queries against a file or in-memory SQLite database.
// The database argument is ignored: the file opened for the connection is
// the database.
type sqliteExecutor struct {
	sqlExecutor
}

// NewSQLite creates the SQLite executor.
func NewSQLite(logger zerolog.Logger) (Executor, error) {
	base, err := newSQLExecutor(models.BackendSQLite, logger, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteExecutor{sqlExecutor: base}, nil
}

// Validate rejects destructive DDL. SQLite has no privilege system, so the
// guard lives here.
func (e *sqliteExecutor) Validate(sql string) error {
	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		return errors.New(errors.CodeValidationFailed, "empty statement")
	}
	upper := strings.ToUpper(trimmed)
	for _, prefix := range []string{"DROP ", "TRUNCATE ", "ALTER ", "VACUUM"} {
		if strings.HasPrefix(upper, prefix) {
			return errors.Newf(errors.CodeValidationFailed,
				"destructive statement %q is not allowed on sqlite", strings.Fields(upper)[0])
		}
	}
	return nil
}
