// Package services contains business logic implementations.
package services

import (
	"context"
	"time"

	"github.com/TFMV/crossplan/pkg/executors"
	"github.com/TFMV/crossplan/pkg/models"
)

// CompilerService turns raw SQL into backend-specific SQL through the
// parse, rewrite, and emit pipeline, with two-level plan caching.
type CompilerService interface {
	// Compile produces dialect SQL for the request's backend.
	Compile(ctx context.Context, req *models.CompileRequest) (*models.CompiledQuery, error)
	// DebugPlan renders the optimized plan tree for a statement.
	DebugPlan(sql string) (string, error)
	// PlanMetrics summarizes the optimized plan's shape.
	PlanMetrics(sql string) (*models.PlanMetrics, error)
	// LastRewriteRules reports the rules applied by the most recent
	// non-cached compile.
	LastRewriteRules() []string
	// CacheStats snapshots the plan cache counters.
	CacheStats() models.CacheStats
}

// ExecutorService compiles and runs a request against a live connection.
type ExecutorService interface {
	Execute(ctx context.Context, req *models.CompileRequest, conn *executors.ConnHandle) (*models.ResultSet, error)
	// Validate runs the backend executor's validation without executing.
	Validate(ctx context.Context, req *models.CompileRequest) error
}

// Logger defines logging interface.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// MetricsCollector defines metrics collection interface.
type MetricsCollector interface {
	IncrementCounter(name string, labels ...string)
	RecordHistogram(name string, value float64, labels ...string)
	RecordGauge(name string, value float64, labels ...string)
	StartTimer(name string) Timer
}

// Timer represents a timing measurement.
type Timer interface {
	Stop() time.Duration
}
