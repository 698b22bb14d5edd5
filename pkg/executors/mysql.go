package executors

import (
	"strings"

	// Registers the mysql database/sql driver.
	_ "github.com/go-sql-driver/mysql"
	"github.com/pingcap/tidb/parser"
	"github.com/rs/zerolog"

	"github.com/TFMV/crossplan/pkg/errors"
	"github.com/TFMV/crossplan/pkg/models"
)

type mysqlExecutor struct {
	sqlExecutor
}

// NewMySQL creates the MySQL executor.
func NewMySQL(logger zerolog.Logger) (Executor, error) {
	base, err := newSQLExecutor(models.BackendMySQL, logger, func(database string) string {
		return "USE " + quoteIdent(database, "`")
	})
	if err != nil {
		return nil, err
	}
	return &mysqlExecutor{sqlExecutor: base}, nil
}

// Validate checks the statement against the MySQL grammar.
func (e *mysqlExecutor) Validate(sql string) error {
	if strings.TrimSpace(sql) == "" {
		return errors.New(errors.CodeValidationFailed, "empty statement")
	}
	p := parser.New()
	if _, _, err := p.Parse(sql, "", ""); err != nil {
		return errors.Wrap(err, errors.CodeValidationFailed, "statement rejected by mysql grammar")
	}
	return nil
}

// quoteIdent quotes an identifier with the given quote rune, doubling any
// embedded quotes.
func quoteIdent(ident, q string) string {
	return q + strings.ReplaceAll(ident, q, q+q) + q
}
