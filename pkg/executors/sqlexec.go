package executors

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/TFMV/crossplan/pkg/dialect"
	"github.com/TFMV/crossplan/pkg/errors"
	"github.com/TFMV/crossplan/pkg/models"
)

// sqlExecutor is the shared database/sql execution path. Backend-specific
// executors embed it and supply validation plus the database-switch
// statement.
type sqlExecutor struct {
	backend models.Backend
	d       dialect.Descriptor
	logger  zerolog.Logger
	// useStmt renders the statement that selects a database or schema.
	// nil means switching is a no-op for this backend.
	useStmt func(database string) string
}

func newSQLExecutor(b models.Backend, logger zerolog.Logger, useStmt func(string) string) (sqlExecutor, error) {
	d, err := dialect.ForBackend(b)
	if err != nil {
		return sqlExecutor{}, err
	}
	return sqlExecutor{
		backend: b,
		d:       d,
		logger:  logger.With().Str("backend", string(b)).Logger(),
		useStmt: useStmt,
	}, nil
}

func (e *sqlExecutor) Backend() models.Backend {
	return e.backend
}

func (e *sqlExecutor) Execute(ctx context.Context, sqlText, database string, conn *ConnHandle) (*models.ResultSet, error) {
	if conn == nil || conn.DB == nil {
		return nil, errors.Newf(errors.CodeConnectionFailed, "no %s connection", e.backend)
	}

	e.logger.Debug().
		Str("query", sqlText).
		Str("database", database).
		Msg("Executing query")

	if database != "" && e.useStmt != nil {
		if _, err := conn.DB.ExecContext(ctx, e.useStmt(database)); err != nil {
			return nil, errors.Wrapf(err, errors.CodeExecutionFailed,
				"failed to switch to database %q", database)
		}
	}

	rows, err := conn.DB.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, ctxErr(ctx, err)
	}
	return normalizeRows(rows, e.d)
}
