// Package main provides the entry point for the crossplan CLI.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/TFMV/crossplan/cmd/crossplan/config"
	"github.com/TFMV/crossplan/pkg/cache"
	"github.com/TFMV/crossplan/pkg/executors"
	"github.com/TFMV/crossplan/pkg/infrastructure/metrics"
	"github.com/TFMV/crossplan/pkg/infrastructure/pool"
	"github.com/TFMV/crossplan/pkg/models"
	"github.com/TFMV/crossplan/pkg/services"
)

var (
	// Version information (set by build flags)
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "crossplan",
	Short: "Crossplan SQL compiler",
	Long: `A database-agnostic SQL compiler.

Crossplan parses a statement once, optimizes the logical plan, and emits
SQL for postgres, mysql, sqlite, mssql, mongodb, or redis.`,
}

var compileCmd = &cobra.Command{
	Use:   "compile [sql]",
	Short: "Compile a statement for a target backend",
	Long: `Compile a statement and print the backend-specific SQL.

Example:
  crossplan compile --backend mysql "SELECT id FROM users WHERE age > 21"
  crossplan compile --backend mssql --page-size 25 --page-offset 50 "SELECT id FROM users"`,
	Args: cobra.ExactArgs(1),
	RunE: runCompile,
}

var explainCmd = &cobra.Command{
	Use:   "explain [sql]",
	Short: "Show the optimized plan for a statement",
	Args:  cobra.ExactArgs(1),
	RunE:  runExplain,
}

var execCmd = &cobra.Command{
	Use:   "exec [sql]",
	Short: "Compile and execute a statement against a backend",
	Long: `Compile a statement, then run it on the DSN-configured backend and
print the rows tab-separated.

Example:
  crossplan exec --backend sqlite --dsn ./app.db "SELECT id, name FROM users"`,
	Args: cobra.ExactArgs(1),
	RunE: runExec,
}

func init() {
	rootCmd.AddCommand(compileCmd, explainCmd, execCmd)

	for _, cmd := range []*cobra.Command{compileCmd, explainCmd, execCmd} {
		cmd.Flags().StringP("backend", "b", "postgres", "target backend (postgres, mysql, sqlite, mssql, mongodb, redis)")
		cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
		cmd.Flags().Bool("auto-limit", false, "cap unbounded queries")
		cmd.Flags().Int64("auto-limit-cap", 1000, "row cap for auto-limited queries")
		cmd.Flags().Int64("page-size", 0, "pagination page size")
		cmd.Flags().Int64("page-offset", 0, "pagination row offset")
	}
	execCmd.Flags().String("dsn", "", "backend connection string")
	execCmd.Flags().String("database", "", "database, schema, or redis db number")
	execCmd.Flags().Duration("timeout", 5*time.Minute, "query timeout")
	execCmd.Flags().Bool("allow-dangerous", false, "allow destructive statements")
	execCmd.Flags().Bool("metrics", false, "serve Prometheus metrics")
	execCmd.Flags().String("metrics-address", ":9090", "metrics server address")

	cobra.OnInitialize(func() {
		viper.SetEnvPrefix("CROSSPLAN")
		viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
		viper.AutomaticEnv()
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("crossplan %s (commit %s, built %s)\n", version, commit, buildDate)
		},
	})
}

func newLogger(cmd *cobra.Command) zerolog.Logger {
	level, _ := cmd.Flags().GetString("log-level")
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(lvl).
		With().Timestamp().Logger()
}

func requestFromFlags(cmd *cobra.Command, sql string) (*models.CompileRequest, error) {
	name, _ := cmd.Flags().GetString("backend")
	backend, err := models.ParseBackend(name)
	if err != nil {
		return nil, err
	}

	req := &models.CompileRequest{SQL: sql, Backend: backend}
	if autoLimit, _ := cmd.Flags().GetBool("auto-limit"); autoLimit {
		req.Options.AutoLimit = true
	}
	if size, _ := cmd.Flags().GetInt64("page-size"); size > 0 {
		offset, _ := cmd.Flags().GetInt64("page-offset")
		req.Page = &models.Pagination{Size: size, Offset: offset}
	}
	return req, nil
}

func newCompiler(cmd *cobra.Command, logger zerolog.Logger) services.CompilerService {
	limitCap, _ := cmd.Flags().GetInt64("auto-limit-cap")
	return services.NewCompilerService(
		cache.New(cache.DefaultConfig()),
		services.CompilerConfig{AutoLimitCap: limitCap},
		&loggerAdapter{logger: logger},
		&metricsAdapter{collector: metrics.NewNoOpCollector()},
	)
}

func runCompile(cmd *cobra.Command, args []string) error {
	logger := newLogger(cmd)
	req, err := requestFromFlags(cmd, args[0])
	if err != nil {
		return err
	}

	compiled, err := newCompiler(cmd, logger).Compile(cmd.Context(), req)
	if err != nil {
		return err
	}

	fmt.Println(compiled.SQL)
	if len(compiled.AppliedRules) > 0 {
		logger.Info().Strs("rules", compiled.AppliedRules).Msg("Rewrite rules applied")
	}
	return nil
}

func runExplain(cmd *cobra.Command, args []string) error {
	logger := newLogger(cmd)
	compiler := newCompiler(cmd, logger)

	tree, err := compiler.DebugPlan(args[0])
	if err != nil {
		return err
	}
	fmt.Print(tree)

	m, err := compiler.PlanMetrics(args[0])
	if err != nil {
		return err
	}
	logger.Info().
		Int("nodes", m.NodeCount).
		Int("depth", m.Depth).
		Int("subqueries", m.SubqueryCount).
		Int("correlated", m.CorrelatedCount).
		Int("windows", m.WindowCount).
		Msg("Plan metrics")
	return nil
}

func runExec(cmd *cobra.Command, args []string) error {
	logger := newLogger(cmd)
	req, err := requestFromFlags(cmd, args[0])
	if err != nil {
		return err
	}
	req.Database, _ = cmd.Flags().GetString("database")
	req.Timeout, _ = cmd.Flags().GetDuration("timeout")

	dsn, _ := cmd.Flags().GetString("dsn")
	if dsn == "" {
		dsn = viper.GetString("dsn")
	}
	if dsn == "" {
		return fmt.Errorf("exec requires --dsn or CROSSPLAN_DSN")
	}

	var collector metrics.Collector = metrics.NewNoOpCollector()
	if enabled, _ := cmd.Flags().GetBool("metrics"); enabled {
		prom := metrics.NewPrometheusCollector()
		collector = prom
		addr, _ := cmd.Flags().GetString("metrics-address")
		mux := http.NewServeMux()
		mux.Handle("/metrics", prom.Handler())
		go func() {
			if err := http.ListenAndServe(addr, mux); err != nil {
				logger.Error().Err(err).Msg("Metrics server stopped")
			}
		}()
	}

	cfg := config.DefaultConfig()
	conns, err := pool.New(pool.Config{
		Backend:            req.Backend,
		DSN:                dsn,
		MaxOpenConnections: cfg.ConnectionPool.MaxOpenConnections,
		MaxIdleConnections: cfg.ConnectionPool.MaxIdleConnections,
		ConnMaxLifetime:    cfg.ConnectionPool.ConnMaxLifetime,
		ConnMaxIdleTime:    cfg.ConnectionPool.ConnMaxIdleTime,
		ConnectionTimeout:  cfg.ConnectionPool.ConnectionTimeout,
	}, logger)
	if err != nil {
		return err
	}
	defer conns.Close()

	registry := executors.NewRegistry()
	if err := registerExecutor(registry, req.Backend, logger); err != nil {
		return err
	}

	allowDangerous, _ := cmd.Flags().GetBool("allow-dangerous")
	svc := services.NewExecutorService(
		newCompiler(cmd, logger),
		registry,
		&loggerAdapter{logger: logger},
		&metricsAdapter{collector: collector},
		!allowDangerous,
	)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	handle, err := conns.Get(ctx)
	if err != nil {
		return err
	}

	rs, err := svc.Execute(ctx, req, handle)
	if err != nil {
		return err
	}

	fmt.Println(strings.Join(rs.Columns, "\t"))
	for _, row := range rs.Rows {
		fmt.Println(strings.Join(row, "\t"))
	}
	logger.Info().
		Int64("rows", rs.RowCount).
		Dur("execution_time", rs.ExecutionTime).
		Msg("Done")
	return nil
}

func registerExecutor(registry *executors.Registry, backend models.Backend, logger zerolog.Logger) error {
	switch backend {
	case models.BackendPostgres:
		e, err := executors.NewPostgres(logger)
		if err != nil {
			return err
		}
		registry.Register(e)
	case models.BackendMySQL:
		e, err := executors.NewMySQL(logger)
		if err != nil {
			return err
		}
		registry.Register(e)
	case models.BackendSQLite:
		e, err := executors.NewSQLite(logger)
		if err != nil {
			return err
		}
		registry.Register(e)
	case models.BackendMSSQL:
		e, err := executors.NewMSSQL(logger)
		if err != nil {
			return err
		}
		registry.Register(e)
	case models.BackendMongoDB:
		registry.Register(executors.NewMongo(logger))
	case models.BackendRedis:
		registry.Register(executors.NewRedis(logger))
	default:
		return fmt.Errorf("unknown backend %q", backend)
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
