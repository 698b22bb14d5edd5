package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/TFMV/crossplan/pkg/errors"
	"github.com/TFMV/crossplan/pkg/executors"
	"github.com/TFMV/crossplan/pkg/models"
)

// executorService implements ExecutorService: compile, validate against the
// backend executor, then dispatch.
type executorService struct {
	compiler CompilerService
	registry *executors.Registry
	logger   Logger
	metrics  MetricsCollector

	classifier *StatementClassifier
	// blockDangerous rejects destructive statements before they reach a
	// backend.
	blockDangerous bool
}

// NewExecutorService creates a new executor service.
func NewExecutorService(
	compiler CompilerService,
	registry *executors.Registry,
	logger Logger,
	metrics MetricsCollector,
	blockDangerous bool,
) ExecutorService {
	return &executorService{
		compiler:       compiler,
		registry:       registry,
		logger:         logger,
		metrics:        metrics,
		classifier:     NewStatementClassifier(),
		blockDangerous: blockDangerous,
	}
}

// Execute compiles the request and runs it on the backend connection.
func (s *executorService) Execute(ctx context.Context, req *models.CompileRequest, conn *executors.ConnHandle) (*models.ResultSet, error) {
	timer := s.metrics.StartTimer("execute")
	defer timer.Stop()

	// Correlation ID tying the compile and execution log lines together.
	queryID := uuid.New().String()

	if s.blockDangerous && s.classifier.IsDangerous(req.SQL) {
		s.metrics.IncrementCounter("execute_blocked")
		return nil, errors.New(errors.CodeValidationFailed, "destructive statement blocked")
	}

	compiled, err := s.compiler.Compile(ctx, req)
	if err != nil {
		return nil, err
	}

	exec, err := s.registry.Get(req.Backend)
	if err != nil {
		return nil, err
	}

	if err := exec.Validate(compiled.SQL); err != nil {
		s.metrics.IncrementCounter("execute_validation_errors")
		return nil, err
	}

	execCtx := ctx
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	start := time.Now()
	rs, err := exec.Execute(execCtx, compiled.SQL, compiled.Database, conn)
	elapsed := time.Since(start)

	if err != nil {
		// Execution failures never touch the plan cache: a valid compile
		// stays cached even when the backend rejects or times out.
		s.metrics.IncrementCounter("execute_errors")
		s.logger.Error("Execution failed",
			"query_id", queryID,
			"error", err,
			"backend", req.Backend,
			"execution_time", elapsed)
		return nil, err
	}

	rs.RowCount = int64(len(rs.Rows))
	rs.ExecutionTime = elapsed

	// Cached compiles keep the inferred headers even when the backend
	// reports none (an empty result from mongodb, say).
	if len(rs.Columns) == 0 && len(compiled.Headers) > 0 {
		rs.Columns = compiled.Headers
	}

	s.metrics.IncrementCounter("execute_success")
	s.metrics.RecordHistogram("execution_time", elapsed.Seconds())
	s.logger.Info("Executed statement",
		"query_id", queryID,
		"backend", req.Backend,
		"rows", rs.RowCount,
		"from_cache", compiled.FromCache,
		"execution_time", elapsed)

	return rs, nil
}

// Validate runs the backend executor's validation without executing.
func (s *executorService) Validate(ctx context.Context, req *models.CompileRequest) error {
	compiled, err := s.compiler.Compile(ctx, req)
	if err != nil {
		return err
	}
	exec, err := s.registry.Get(req.Backend)
	if err != nil {
		return err
	}
	return exec.Validate(compiled.SQL)
}
