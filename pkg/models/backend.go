// Package models provides data structures shared across the compilation pipeline.
package models

import (
	"fmt"
	"strings"
)

// Backend identifies a target database engine.
type Backend string

// Supported backends.
const (
	BackendPostgres Backend = "postgres"
	BackendMySQL    Backend = "mysql"
	BackendSQLite   Backend = "sqlite"
	BackendMSSQL    Backend = "mssql"
	BackendMongoDB  Backend = "mongodb"
	BackendRedis    Backend = "redis"
)

// Backends lists every backend the pipeline knows about, in stable order.
var Backends = []Backend{
	BackendPostgres,
	BackendMySQL,
	BackendSQLite,
	BackendMSSQL,
	BackendMongoDB,
	BackendRedis,
}

// ParseBackend resolves a user-supplied backend name, accepting the common
// aliases seen in connection strings.
func ParseBackend(s string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "postgres", "postgresql", "pg":
		return BackendPostgres, nil
	case "mysql", "mariadb":
		return BackendMySQL, nil
	case "sqlite", "sqlite3":
		return BackendSQLite, nil
	case "mssql", "sqlserver":
		return BackendMSSQL, nil
	case "mongodb", "mongo":
		return BackendMongoDB, nil
	case "redis":
		return BackendRedis, nil
	default:
		return "", fmt.Errorf("unknown backend %q", s)
	}
}

// IsRelational reports whether the backend speaks full SQL.
func (b Backend) IsRelational() bool {
	switch b {
	case BackendPostgres, BackendMySQL, BackendSQLite, BackendMSSQL:
		return true
	default:
		return false
	}
}

// String implements fmt.Stringer.
func (b Backend) String() string { return string(b) }
