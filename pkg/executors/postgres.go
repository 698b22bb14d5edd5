package executors

import (
	// Registers the pgx database/sql driver.
	_ "github.com/jackc/pgx/v5/stdlib"
	pg_query "github.com/pganalyze/pg_query_go/v5"
	"github.com/rs/zerolog"

	"github.com/TFMV/crossplan/pkg/errors"
	"github.com/TFMV/crossplan/pkg/models"
)

// postgresExecutor runs queries through the pgx stdlib driver. Database
// selection maps to search_path since PostgreSQL cannot switch databases
// on an open connection.
type postgresExecutor struct {
	sqlExecutor
}

// NewPostgres creates the PostgreSQL executor.
func NewPostgres(logger zerolog.Logger) (Executor, error) {
	base, err := newSQLExecutor(models.BackendPostgres, logger, func(database string) string {
		return "SET search_path TO " + quoteIdent(database, `"`)
	})
	if err != nil {
		return nil, err
	}
	return &postgresExecutor{sqlExecutor: base}, nil
}

// Validate parses the statement with the real PostgreSQL grammar.
func (e *postgresExecutor) Validate(sql string) error {
	if _, err := pg_query.Parse(sql); err != nil {
		return errors.Wrap(err, errors.CodeValidationFailed, "statement rejected by postgres grammar")
	}
	return nil
}
