package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	MaxConnLifetime time.Duration
	DialTimeout     time.Duration
}

// DB wraps the database/sql handle in an Ent driver. Dialect is one of
// dialect.Postgres or dialect.SQLite and drives the statement builders.
type DB struct {
	*sql.DB
	Dialect string
	drv     *entsql.Driver
	pool    *pgxpool.Pool
	log     *slog.Logger
}

// DialectFor picks the driver from the DSN: postgres URLs go through pgx,
// anything else is treated as a SQLite path or URI.
func DialectFor(dsn string) string {
	lower := strings.ToLower(dsn)
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return dialect.Postgres
	}
	return dialect.SQLite
}

// builder returns the Ent statement builder for the connected dialect.
func (db *DB) builder() *entsql.DialectBuilder {
	return entsql.Dialect(db.Dialect)
}

// Open connects to the ledger database.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	name := DialectFor(cfg.DSN)
	logger.Info("connecting to database", "dialect", name)

	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 3 * time.Second
	}

	var (
		db   *sql.DB
		pool *pgxpool.Pool
		err  error
	)
	switch name {
	case dialect.Postgres:
		pc, perr := pgxpool.ParseConfig(cfg.DSN)
		if perr != nil {
			logger.Error("failed to parse database url", "error", perr)
			return nil, perr
		}
		if cfg.MaxOpenConns > 0 {
			pc.MaxConns = int32(cfg.MaxOpenConns)
		}
		if cfg.MaxConnLifetime > 0 {
			pc.MaxConnLifetime = cfg.MaxConnLifetime
		}
		pc.ConnConfig.RuntimeParams["application_name"] = "exam-importer"

		dialCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
		pool, err = pgxpool.NewWithConfig(dialCtx, pc)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			return nil, err
		}
		db = stdlib.OpenDBFromPool(pool)
	default:
		db, err = sql.Open("sqlite", cfg.DSN)
		if err != nil {
			logger.Error("failed to open sqlite database", "error", err)
			return nil, err
		}
		// SQLite allows a single writer; ":memory:" databases also live per connection.
		db.SetMaxOpenConns(1)
	}

	if name == dialect.Postgres {
		if cfg.MaxIdleConns > 0 {
			db.SetMaxIdleConns(cfg.MaxIdleConns)
		}
		if cfg.MaxConnLifetime > 0 {
			db.SetConnMaxLifetime(cfg.MaxConnLifetime)
		}
	}

	out := &DB{DB: db, Dialect: name, drv: entsql.OpenDB(name, db), pool: pool, log: logger}
	if err := HealthCheck(ctx, out, cfg.DialTimeout, logger); err != nil {
		_ = out.Close()
		return nil, fmt.Errorf("database ping: %w", err)
	}
	logger.Info("successfully connected to database", "dialect", name)
	return out, nil
}

// Close closes the database connections gracefully
func (db *DB) Close() error {
	db.log.Info("closing database connections")
	err := db.drv.Close()
	if db.pool != nil {
		db.pool.Close()
	}
	if err != nil {
		db.log.Error("failed to close database", "error", err)
		return err
	}
	db.log.Info("database connections closed")
	return nil
}

// HealthCheck pings using database/sql to catch DSN issues early.
func HealthCheck(ctx context.Context, db *DB, timeout time.Duration, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("pinging database")
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := db.PingContext(ctx); err != nil {
		return err
	}
	logger.Debug("database ping successful")
	return nil
}
