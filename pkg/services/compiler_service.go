package services

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/TFMV/crossplan/pkg/cache"
	"github.com/TFMV/crossplan/pkg/dialect"
	"github.com/TFMV/crossplan/pkg/emit"
	"github.com/TFMV/crossplan/pkg/errors"
	"github.com/TFMV/crossplan/pkg/models"
	"github.com/TFMV/crossplan/pkg/parser"
	"github.com/TFMV/crossplan/pkg/plan"
	"github.com/TFMV/crossplan/pkg/rewrite"
)

// CompilerConfig tunes the compile pipeline.
type CompilerConfig struct {
	// AutoLimitCap is the row cap applied when a request asks for an
	// automatic limit. Zero means the engine default.
	AutoLimitCap int64
	// DefaultOrderTerm orders paginated queries that carry no ORDER BY of
	// their own, on backends that demand one. Empty means ordinal 1.
	DefaultOrderTerm string
}

// compilerService implements CompilerService.
type compilerService struct {
	cache   *cache.PlanCache
	engine  *rewrite.Engine
	cfg     CompilerConfig
	logger  Logger
	metrics MetricsCollector

	classifier *StatementClassifier

	mu        sync.Mutex
	lastRules []string
}

// NewCompilerService creates a new compiler service.
func NewCompilerService(
	planCache *cache.PlanCache,
	cfg CompilerConfig,
	logger Logger,
	metrics MetricsCollector,
) CompilerService {
	return &compilerService{
		cache:      planCache,
		engine:     rewrite.New(),
		cfg:        cfg,
		logger:     logger,
		metrics:    metrics,
		classifier: NewStatementClassifier(),
	}
}

// Compile produces dialect SQL for the request's backend.
func (s *compilerService) Compile(ctx context.Context, req *models.CompileRequest) (*models.CompiledQuery, error) {
	timer := s.metrics.StartTimer("compile")
	defer timer.Stop()
	start := time.Now()

	if err := s.validateRequest(req); err != nil {
		s.metrics.IncrementCounter("compile_validation_errors")
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CodeCanceled, "compile canceled")
	}

	d, err := dialect.ForBackend(req.Backend)
	if err != nil {
		return nil, err
	}

	// Non-query statements skip the pipeline entirely: forwarded verbatim,
	// never cached under a plan key.
	if !s.classifier.IsQueryStatement(req.SQL) {
		s.logger.Debug("Passing statement through", "backend", req.Backend)
		s.metrics.IncrementCounter("compile_passthrough")
		return &models.CompiledQuery{
			SQL:         strings.TrimSpace(req.SQL),
			Backend:     req.Backend,
			Kind:        models.StatementPassthrough,
			Database:    req.Database,
			CompileTime: time.Since(start),
		}, nil
	}

	key := cache.Key{
		Fingerprint: cache.Fingerprint(req.SQL),
		Backend:     req.Backend,
		Page:        req.Page,
		Options:     req.Options,
	}

	compiled := false
	entry, err := s.cache.Do(key.SourceKey(), func() (*cache.Entry, error) {
		compiled = true
		return s.compile(req, d, key)
	})
	if err != nil {
		s.metrics.IncrementCounter("compile_errors")
		return nil, err
	}

	var applied []string
	if compiled {
		s.metrics.IncrementCounter("compile_misses")
		applied = s.LastRewriteRules()
	} else {
		s.metrics.IncrementCounter("compile_hits")
	}

	return &models.CompiledQuery{
		SQL:          entry.SQL,
		Backend:      req.Backend,
		Kind:         models.StatementQuery,
		Headers:      entry.Headers,
		Database:     req.Database,
		FromCache:    !compiled,
		AppliedRules: applied,
		CompileTime:  time.Since(start),
	}, nil
}

// compile is the cache-miss path: parse, rewrite, emit, store.
func (s *compilerService) compile(req *models.CompileRequest, d dialect.Descriptor, key cache.Key) (*cache.Entry, error) {
	root, err := parser.Parse(req.SQL)
	if err != nil {
		return nil, err
	}

	optimized, applied, err := s.engine.Rewrite(root, s.rewriteOptions(req, d))
	if err != nil {
		// The engine hands back the untouched input plan on failure, so
		// the statement still compiles, just unoptimized.
		s.logger.Warn("Rewrite failed, emitting unoptimized plan", "error", err)
		s.metrics.IncrementCounter("rewrite_fallbacks")
	}
	s.setLastRules(applied)

	key.PlanHash = plan.Hash(optimized)

	// Second cache level: a different raw text can normalize to the same
	// optimized plan.
	if e, ok := s.cache.Get(key.PlanKey()); ok {
		s.cache.Put(key.SourceKey(), e)
		return e, nil
	}

	sql, err := emit.Emit(optimized, d)
	if err != nil {
		return nil, err
	}

	m := plan.Collect(optimized)
	entry := &cache.Entry{
		SQL:       sql,
		Headers:   headersFor(optimized),
		NodeCount: m.NodeCount,
		Depth:     m.Depth,
		CreatedAt: time.Now(),
	}
	s.cache.PutBoth(key.SourceKey(), key.PlanKey(), entry)

	s.logger.Debug("Compiled statement",
		"backend", req.Backend,
		"nodes", m.NodeCount,
		"rules", applied)
	return entry, nil
}

func (s *compilerService) rewriteOptions(req *models.CompileRequest, d dialect.Descriptor) rewrite.Options {
	return rewrite.Options{
		AutoLimit:            req.Options.AutoLimit,
		AutoLimitCap:         s.cfg.AutoLimitCap,
		Page:                 req.Page,
		RequireOrderedOffset: d.RequiresOrderedOffset,
		DefaultOrderTerm:     s.cfg.DefaultOrderTerm,
	}
}

func (s *compilerService) validateRequest(req *models.CompileRequest) error {
	if req == nil {
		return errors.New(errors.CodeInvalidRequest, "nil compile request")
	}
	if strings.TrimSpace(req.SQL) == "" {
		return errors.New(errors.CodeInvalidRequest, "empty statement")
	}
	if req.Page != nil && (req.Page.Size <= 0 || req.Page.Offset < 0) {
		return errors.Newf(errors.CodeInvalidRequest,
			"invalid pagination size=%d offset=%d", req.Page.Size, req.Page.Offset)
	}
	return nil
}

// DebugPlan renders the optimized plan tree for a statement.
func (s *compilerService) DebugPlan(sql string) (string, error) {
	root, err := parser.Parse(sql)
	if err != nil {
		return "", err
	}
	optimized, _, err := s.engine.Rewrite(root, rewrite.Options{AutoLimitCap: s.cfg.AutoLimitCap})
	if err != nil {
		optimized = root
	}
	return plan.Render(optimized), nil
}

// PlanMetrics summarizes the optimized plan's shape.
func (s *compilerService) PlanMetrics(sql string) (*models.PlanMetrics, error) {
	root, err := parser.Parse(sql)
	if err != nil {
		return nil, err
	}
	optimized, _, err := s.engine.Rewrite(root, rewrite.Options{AutoLimitCap: s.cfg.AutoLimitCap})
	if err != nil {
		optimized = root
	}
	m := plan.Collect(optimized)
	return &m, nil
}

// LastRewriteRules reports the rules applied by the most recent non-cached
// compile.
func (s *compilerService) LastRewriteRules() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.lastRules))
	copy(out, s.lastRules)
	return out
}

func (s *compilerService) setLastRules(rules []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRules = rules
}

// CacheStats snapshots the plan cache counters.
func (s *compilerService) CacheStats() models.CacheStats {
	st := s.cache.Stats()
	return models.CacheStats{
		Hits:      st.Hits,
		Misses:    st.Misses,
		Evictions: st.Evictions,
		Size:      int(st.Size),
	}
}

// headersFor infers the column headers a client will see, preferring the
// declared alias, then the column name, then a lowered function name.
func headersFor(n plan.Node) []string {
	// The outermost projection may sit under limit, sort, or CTE wrappers.
	for {
		switch t := n.(type) {
		case *plan.Limit:
			n = t.Input
		case *plan.Sort:
			n = t.Input
		case *plan.Distinct:
			n = t.Input
		case *plan.CTE:
			n = t.Body
		case *plan.Union:
			if len(t.Inputs) == 0 {
				return nil
			}
			n = t.Inputs[0]
		case *plan.Projection:
			headers := make([]string, 0, len(t.Exprs))
			for _, x := range t.Exprs {
				headers = append(headers, headerFor(x))
			}
			return headers
		default:
			return nil
		}
	}
}

func headerFor(x plan.Expr) string {
	switch t := x.(type) {
	case *plan.Alias:
		return t.Name
	case *plan.Column:
		return t.Name
	case *plan.Star:
		return "*"
	case *plan.Aggregate:
		return strings.ToLower(t.Name)
	case *plan.Func:
		return strings.ToLower(t.Name)
	case *plan.WindowFunc:
		return strings.ToLower(t.Name)
	}
	return "column"
}
