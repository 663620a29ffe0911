// Package database opens the SQL pool behind the mysql and sqlite store
// drivers.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"

	"fuwachat/internal/config"
	"fuwachat/internal/logger"
	"fuwachat/internal/store/sqlstore"
)

const (
	connectAttempts = 6
	firstBackoff    = 500 * time.Millisecond
	maxBackoff      = 8 * time.Second
)

// DSN returns the database/sql driver name and data source for cfg.
func DSN(cfg config.Config) (driver, dsn string, err error) {
	switch cfg.StoreDriver {
	case "mysql":
		dsn = fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
			cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)
		return "mysql", dsn, nil
	case "sqlite", "sqlite3":
		return "sqlite3", "file:" + cfg.SQLitePath + "?_busy_timeout=5000&_journal_mode=WAL", nil
	default:
		return "", "", fmt.Errorf("store driver %q does not use a SQL database", cfg.StoreDriver)
	}
}

// Init opens the pool, waits until it answers a ping and creates the schema.
func Init(cfg config.Config) (*sql.DB, error) {
	driver, dsn, err := DSN(cfg)
	if err != nil {
		return nil, err
	}
	db, err := openWithRetry(driver, dsn, connectAttempts, firstBackoff)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", driver, err)
	}

	if driver == "sqlite3" {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	dialect, err := sqlstore.DialectFor(driver)
	if err != nil {
		db.Close()
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := sqlstore.New(db, dialect).Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	logger.Info("database_ready", "driver", driver)
	return db, nil
}

func openWithRetry(driver, dsn string, attempts int, sleep time.Duration) (*sql.DB, error) {
	var last error
	for i := 1; i <= attempts; i++ {
		db, err := sql.Open(driver, dsn)
		if err == nil {
			if perr := pingWithTimeout(db, 2*time.Second); perr == nil {
				return db, nil
			} else {
				last = perr
			}
			db.Close()
		} else {
			last = err
		}
		logger.Warn("database_connect_retry", "driver", driver, "attempt", i, "error", last)
		if i == attempts {
			break
		}
		time.Sleep(sleep)
		if sleep < maxBackoff {
			sleep *= 2
		}
	}
	return nil, last
}

func pingWithTimeout(db *sql.DB, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return db.PingContext(ctx)
}
