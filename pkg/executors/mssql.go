package executors

import (
	"strings"

	// Registers the sqlserver database/sql driver.
	_ "github.com/microsoft/go-mssqldb"
	"github.com/rs/zerolog"

	"github.com/TFMV/crossplan/pkg/errors"
	"github.com/TFMV/crossplan/pkg/models"
)

type mssqlExecutor struct {
	sqlExecutor
}

// NewMSSQL creates the SQL Server executor.
func NewMSSQL(logger zerolog.Logger) (Executor, error) {
	base, err := newSQLExecutor(models.BackendMSSQL, logger, func(database string) string {
		return "USE [" + strings.ReplaceAll(database, "]", "]]") + "]"
	})
	if err != nil {
		return nil, err
	}
	return &mssqlExecutor{sqlExecutor: base}, nil
}

// Validate performs a shallow syntactic screen. T-SQL has no embeddable
// grammar, so only statements the emitter can never produce are rejected.
func (e *mssqlExecutor) Validate(sql string) error {
	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		return errors.New(errors.CodeValidationFailed, "empty statement")
	}
	if i := statementSeparator(trimmed); i >= 0 && i != len(trimmed)-1 {
		return errors.New(errors.CodeValidationFailed, "multiple statements are not allowed")
	}
	return nil
}

// statementSeparator returns the index of the first semicolon outside
// string literals and bracketed identifiers, or -1. Both quote forms
// escape their closer by doubling.
func statementSeparator(sql string) int {
	for i := 0; i < len(sql); i++ {
		switch sql[i] {
		case '\'':
			for i++; i < len(sql); i++ {
				if sql[i] != '\'' {
					continue
				}
				if i+1 < len(sql) && sql[i+1] == '\'' {
					i++
					continue
				}
				break
			}
		case '[':
			for i++; i < len(sql); i++ {
				if sql[i] != ']' {
					continue
				}
				if i+1 < len(sql) && sql[i+1] == ']' {
					i++
					continue
				}
				break
			}
		case ';':
			return i
		}
	}
	return -1
}
