// Package models provides data structures shared across the compilation pipeline.
package models

import (
	"time"
)

// Pagination describes a page window requested by the caller. Size is the
// number of rows per page and Offset the number of rows to skip.
type Pagination struct {
	Size   int64 `json:"size"`
	Offset int64 `json:"offset"`
}

// CompileOptions carries the option flags that participate in the cache key.
type CompileOptions struct {
	// AutoLimit wraps the statement in a row cap when it has no explicit
	// LIMIT. The cap itself is pipeline configuration, not a per-request
	// knob, so it is not part of the options here.
	AutoLimit bool `json:"auto_limit"`
}

// CompileRequest is the inbound contract from the application shell.
type CompileRequest struct {
	SQL      string         `json:"sql"`
	Backend  Backend        `json:"backend"`
	Page     *Pagination    `json:"page,omitempty"`
	Options  CompileOptions `json:"options"`
	Database string         `json:"database,omitempty"`
	Timeout  time.Duration  `json:"timeout,omitempty"`
}

// StatementKind classifies the raw statement before planning.
type StatementKind int

const (
	// StatementQuery is a SELECT (or set operation) that goes through the
	// full parse/rewrite/emit pipeline.
	StatementQuery StatementKind = iota
	// StatementPassthrough is anything else (DDL, DML, TCL, DCL, utility):
	// forwarded to the backend verbatim, never optimized or cached by plan.
	StatementPassthrough
)

// String returns the string representation of the statement kind.
func (k StatementKind) String() string {
	switch k {
	case StatementQuery:
		return "query"
	case StatementPassthrough:
		return "passthrough"
	default:
		return "unknown"
	}
}

// CompiledQuery is the outcome of a successful compile.
type CompiledQuery struct {
	SQL          string        `json:"sql"`
	Backend      Backend       `json:"backend"`
	Kind         StatementKind `json:"kind"`
	Headers      []string      `json:"headers,omitempty"`
	Database     string        `json:"database,omitempty"`
	FromCache    bool          `json:"from_cache"`
	AppliedRules []string      `json:"applied_rules,omitempty"`
	CompileTime  time.Duration `json:"compile_time"`
}

// ResultSet is the uniform execution result: a column-header list plus rows
// of string cells. Type-specific formatting happens in the executors so the
// rest of the pipeline stays backend-agnostic.
type ResultSet struct {
	Columns       []string      `json:"columns"`
	Rows          [][]string    `json:"rows"`
	RowCount      int64         `json:"row_count"`
	ExecutionTime time.Duration `json:"execution_time"`
}

// PlanMetrics summarizes the shape of an optimized plan for diagnostics.
type PlanMetrics struct {
	NodeCount       int `json:"node_count"`
	Depth           int `json:"depth"`
	SubqueryCount   int `json:"subquery_count"`
	CorrelatedCount int `json:"correlated_count"`
	WindowCount     int `json:"window_count"`
}

// CacheStats is the diagnostic snapshot of the plan cache counters.
type CacheStats struct {
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
	Size      int    `json:"size"`
}
