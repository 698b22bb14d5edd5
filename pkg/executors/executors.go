// Package executors dispatches compiled SQL to concrete database backends
// and normalizes every result into string-valued rows.
package executors

import (
	"context"
	"database/sql"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/TFMV/crossplan/pkg/errors"
	"github.com/TFMV/crossplan/pkg/models"
)

// ConnHandle carries the live connection for whichever backend an executor
// targets. Exactly one field is set.
type ConnHandle struct {
	DB    *sql.DB
	Mongo *mongo.Client
	Redis *redis.Client
}

// Executor runs dialect-specific SQL against one backend.
type Executor interface {
	// Backend returns the backend this executor serves.
	Backend() models.Backend
	// Validate checks the statement against backend-specific rules without
	// executing it.
	Validate(sql string) error
	// Execute runs the statement. A non-empty database selects the target
	// database or schema before execution.
	Execute(ctx context.Context, sql, database string, conn *ConnHandle) (*models.ResultSet, error)
}

// Registry maps backends to executors.
type Registry struct {
	mu        sync.RWMutex
	executors map[models.Backend]Executor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{executors: make(map[models.Backend]Executor)}
}

// Register adds or replaces the executor for its backend.
func (r *Registry) Register(e Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[e.Backend()] = e
}

// Get returns the executor for a backend.
func (r *Registry) Get(b models.Backend) (Executor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.executors[b]
	if !ok {
		return nil, errors.Newf(errors.CodeInvalidRequest, "no executor registered for backend %q", b)
	}
	return e, nil
}

// Backends lists the registered backends in no particular order.
func (r *Registry) Backends() []models.Backend {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Backend, 0, len(r.executors))
	for b := range r.executors {
		out = append(out, b)
	}
	return out
}

// ctxErr maps a failed execution to the error taxonomy, preferring the
// context's verdict when the deadline fired or the caller canceled.
func ctxErr(ctx context.Context, err error) error {
	switch ctx.Err() {
	case context.DeadlineExceeded:
		return errors.Wrap(err, errors.CodeDeadlineExceeded, "query deadline exceeded")
	case context.Canceled:
		return errors.Wrap(err, errors.CodeCanceled, "query canceled")
	}
	return errors.Wrap(err, errors.CodeExecutionFailed, "query execution failed")
}
