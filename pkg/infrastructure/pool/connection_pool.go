// Package pool manages live backend connections for the executor layer.
package pool

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	pkgerrors "github.com/TFMV/crossplan/pkg/errors"
	"github.com/TFMV/crossplan/pkg/executors"
	"github.com/TFMV/crossplan/pkg/models"
)

// Config represents pool configuration for one backend.
type Config struct {
	Backend            models.Backend `json:"backend"`
	DSN                string         `json:"dsn"`
	MaxOpenConnections int            `json:"max_open_connections"`
	MaxIdleConnections int            `json:"max_idle_connections"`
	ConnMaxLifetime    time.Duration  `json:"conn_max_lifetime"`
	ConnMaxIdleTime    time.Duration  `json:"conn_max_idle_time"`
	ConnectionTimeout  time.Duration  `json:"connection_timeout"`
}

// ConnectionPool hands out a ready connection handle for its backend.
type ConnectionPool interface {
	// Get returns the connection handle, opening it on first use.
	Get(ctx context.Context) (*executors.ConnHandle, error)
	// Stats returns pool statistics.
	Stats() PoolStats
	// HealthCheck pings the backend.
	HealthCheck(ctx context.Context) error
	// Close closes the underlying connections.
	Close() error
}

// PoolStats represents connection pool statistics.
type PoolStats struct {
	Backend           models.Backend `json:"backend"`
	OpenConnections   int            `json:"open_connections"`
	InUse             int            `json:"in_use"`
	Idle              int            `json:"idle"`
	WaitCount         int64          `json:"wait_count"`
	LastHealthCheck   time.Time      `json:"last_health_check"`
	HealthCheckStatus string         `json:"health_check_status"`
}

// sqlDrivers maps relational backends to their database/sql driver names.
var sqlDrivers = map[models.Backend]string{
	models.BackendPostgres: "pgx",
	models.BackendMySQL:    "mysql",
	models.BackendSQLite:   "sqlite3",
	models.BackendMSSQL:    "sqlserver",
}

// connectionPool implements ConnectionPool.
type connectionPool struct {
	cfg    Config
	logger zerolog.Logger

	mu     sync.Mutex
	handle *executors.ConnHandle
	closed bool

	lastHealthCheck   time.Time
	healthCheckStatus string
}

// New creates a connection pool for the configured backend. The connection
// itself opens lazily on the first Get.
func New(cfg Config, logger zerolog.Logger) (ConnectionPool, error) {
	if cfg.DSN == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidRequest, "pool requires a DSN")
	}
	if _, relational := sqlDrivers[cfg.Backend]; !relational &&
		cfg.Backend != models.BackendMongoDB && cfg.Backend != models.BackendRedis {
		return nil, pkgerrors.Newf(pkgerrors.CodeInvalidRequest, "unknown backend %q", cfg.Backend)
	}
	return &connectionPool{
		cfg:    cfg,
		logger: logger.With().Str("backend", string(cfg.Backend)).Logger(),
	}, nil
}

// Get returns the connection handle, opening it on first use.
func (p *connectionPool) Get(ctx context.Context) (*executors.ConnHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, pkgerrors.New(pkgerrors.CodeConnectionFailed, "connection pool is closed")
	}
	if p.handle != nil {
		return p.handle, nil
	}

	if p.cfg.ConnectionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.ConnectionTimeout)
		defer cancel()
	}

	handle, err := p.open(ctx)
	if err != nil {
		return nil, err
	}
	p.handle = handle
	p.logger.Info().Msg("Opened backend connection")
	return handle, nil
}

func (p *connectionPool) open(ctx context.Context) (*executors.ConnHandle, error) {
	switch p.cfg.Backend {
	case models.BackendMongoDB:
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(p.cfg.DSN))
		if err != nil {
			return nil, pkgerrors.Wrap(err, pkgerrors.CodeConnectionFailed, "failed to connect to mongodb")
		}
		return &executors.ConnHandle{Mongo: client}, nil

	case models.BackendRedis:
		opts, err := redis.ParseURL(p.cfg.DSN)
		if err != nil {
			return nil, pkgerrors.Wrap(err, pkgerrors.CodeInvalidRequest, "invalid redis DSN")
		}
		if p.cfg.MaxOpenConnections > 0 {
			opts.PoolSize = p.cfg.MaxOpenConnections
		}
		return &executors.ConnHandle{Redis: redis.NewClient(opts)}, nil

	default:
		db, err := sql.Open(sqlDrivers[p.cfg.Backend], p.cfg.DSN)
		if err != nil {
			return nil, pkgerrors.Wrapf(err, pkgerrors.CodeConnectionFailed,
				"failed to open %s connection", p.cfg.Backend)
		}
		if p.cfg.MaxOpenConnections > 0 {
			db.SetMaxOpenConns(p.cfg.MaxOpenConnections)
		}
		if p.cfg.MaxIdleConnections > 0 {
			db.SetMaxIdleConns(p.cfg.MaxIdleConnections)
		}
		if p.cfg.ConnMaxLifetime > 0 {
			db.SetConnMaxLifetime(p.cfg.ConnMaxLifetime)
		}
		if p.cfg.ConnMaxIdleTime > 0 {
			db.SetConnMaxIdleTime(p.cfg.ConnMaxIdleTime)
		}
		return &executors.ConnHandle{DB: db}, nil
	}
}

// Stats returns pool statistics.
func (p *connectionPool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := PoolStats{
		Backend:           p.cfg.Backend,
		LastHealthCheck:   p.lastHealthCheck,
		HealthCheckStatus: p.healthCheckStatus,
	}
	if p.handle != nil && p.handle.DB != nil {
		s := p.handle.DB.Stats()
		stats.OpenConnections = s.OpenConnections
		stats.InUse = s.InUse
		stats.Idle = s.Idle
		stats.WaitCount = s.WaitCount
	}
	return stats
}

// HealthCheck pings the backend.
func (p *connectionPool) HealthCheck(ctx context.Context) error {
	handle, err := p.Get(ctx)
	if err != nil {
		return err
	}

	switch {
	case handle.DB != nil:
		err = handle.DB.PingContext(ctx)
	case handle.Mongo != nil:
		err = handle.Mongo.Ping(ctx, nil)
	case handle.Redis != nil:
		err = handle.Redis.Ping(ctx).Err()
	}

	p.mu.Lock()
	p.lastHealthCheck = time.Now()
	if err != nil {
		p.healthCheckStatus = "unhealthy"
	} else {
		p.healthCheckStatus = "healthy"
	}
	p.mu.Unlock()

	if err != nil {
		return pkgerrors.Wrap(err, pkgerrors.CodeConnectionFailed, "health check failed")
	}
	return nil
}

// Close closes the underlying connections.
func (p *connectionPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	if p.handle == nil {
		return nil
	}
	handle := p.handle
	p.handle = nil

	switch {
	case handle.DB != nil:
		return handle.DB.Close()
	case handle.Mongo != nil:
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return handle.Mongo.Disconnect(ctx)
	case handle.Redis != nil:
		return handle.Redis.Close()
	}
	return nil
}
