package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/zulandar/instantory/internal/config"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Conn is an open database handle together with the pool that backs it.
type Conn struct {
	DB   *gorm.DB
	pool *pgxpool.Pool
}

// Connect opens the database described by cfg. Postgres connections go
// through a pgx pool sized by cfg.MaxConns; mysql and sqlite use the
// database/sql pool with the same limits.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*Conn, error) {
	gcfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}

	switch strings.ToLower(cfg.Driver) {
	case "postgres", "":
		pool, err := openPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: stdlib.OpenDBFromPool(pool)}), gcfg)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("db: connect postgres: %w", err)
		}
		return &Conn{DB: gdb, pool: pool}, nil

	case "mysql":
		gdb, err := gorm.Open(mysql.Open(cfg.DSN), gcfg)
		if err != nil {
			return nil, fmt.Errorf("db: connect mysql: %w", err)
		}
		if err := limitSQLPool(gdb, cfg); err != nil {
			return nil, err
		}
		return &Conn{DB: gdb}, nil

	case "sqlite":
		gdb, err := gorm.Open(sqlite.Open(cfg.DSN), gcfg)
		if err != nil {
			return nil, fmt.Errorf("db: connect sqlite: %w", err)
		}
		// One writer at a time; also keeps :memory: databases on a single connection.
		cfg.MaxConns = 1
		if err := limitSQLPool(gdb, cfg); err != nil {
			return nil, err
		}
		return &Conn{DB: gdb}, nil

	default:
		return nil, fmt.Errorf("db: unsupported driver %q", cfg.Driver)
	}
}

func openPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("db: parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pc.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		pc.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pc.ConnConfig.RuntimeParams["application_name"] = "instantory"

	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("db: open postgres pool: %w", err)
	}
	return pool, nil
}

func limitSQLPool(gdb *gorm.DB, cfg config.DatabaseConfig) error {
	sqlDB, err := gdb.DB()
	if err != nil {
		return fmt.Errorf("db: sql handle: %w", err)
	}
	if cfg.MaxConns > 0 {
		sqlDB.SetMaxOpenConns(int(cfg.MaxConns))
	}
	if cfg.MinConns > 0 {
		sqlDB.SetMaxIdleConns(int(cfg.MinConns))
	}
	if cfg.MaxConnLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.MaxConnLifetime)
	}
	return nil
}

// Ping verifies the database is reachable.
func (c *Conn) Ping(ctx context.Context) error {
	if c.pool != nil {
		if err := c.pool.Ping(ctx); err != nil {
			return fmt.Errorf("db: ping: %w", err)
		}
		return nil
	}
	sqlDB, err := c.DB.DB()
	if err != nil {
		return fmt.Errorf("db: sql handle: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("db: ping: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (c *Conn) Close() error {
	sqlDB, err := c.DB.DB()
	if err != nil {
		return fmt.Errorf("db: sql handle: %w", err)
	}
	err = sqlDB.Close()
	if c.pool != nil {
		c.pool.Close()
	}
	if err != nil {
		return fmt.Errorf("db: close: %w", err)
	}
	return nil
}
