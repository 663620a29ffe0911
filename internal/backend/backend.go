// Package backend assembles the conversation store selected by STORE_DRIVER.
package backend

import (
	"context"
	"database/sql"
	"fmt"

	"fuwachat/internal/config"
	"fuwachat/internal/database"
	"fuwachat/internal/logger"
	"fuwachat/internal/store"
	"fuwachat/internal/store/pebblestore"
	"fuwachat/internal/store/redisfeed"
	"fuwachat/internal/store/sqlstore"
)

// Backend is the wired store plus the resources behind it.
type Backend struct {
	Driver  string
	Service *store.Service
	// Adapter is Service wrapped with Prometheus instrumentation.
	Adapter store.Adapter
	Relay   *redisfeed.Relay

	db *sql.DB
}

// Open builds the store for cfg. When REDIS_ADDR is set, changes are
// relayed to and from other instances; call Run to consume them.
func Open(ctx context.Context, cfg config.Config) (*Backend, error) {
	b := &Backend{Driver: cfg.StoreDriver}

	var docs store.Documents
	switch cfg.StoreDriver {
	case "memory":
		docs = store.NewMemory()
	case "mysql", "sqlite", "sqlite3":
		db, err := database.Init(cfg)
		if err != nil {
			return nil, err
		}
		driver, _, _ := database.DSN(cfg)
		dialect, err := sqlstore.DialectFor(driver)
		if err != nil {
			db.Close()
			return nil, err
		}
		b.db = db
		docs = sqlstore.New(db, dialect)
	case "pebble":
		ps, err := pebblestore.Open(cfg.PebblePath)
		if err != nil {
			return nil, err
		}
		docs = ps
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}

	var opts []store.Option
	if cfg.RedisAddr != "" {
		relay, err := redisfeed.Dial(ctx, cfg.RedisAddr, redisfeed.DefaultChannel)
		if err != nil {
			docs.Close()
			if b.db != nil {
				b.db.Close()
			}
			return nil, err
		}
		b.Relay = relay
		opts = append(opts, store.WithRelay(relay))
	}

	b.Service = store.New(docs, opts...)
	b.Adapter = store.Instrument(b.Service, b.Driver)
	logger.Info("store_ready", "driver", b.Driver, "relay", b.Relay != nil)
	return b, nil
}

// Run consumes relayed changes until ctx is done. It returns at once when
// no relay is configured.
func (b *Backend) Run(ctx context.Context) error {
	if b.Relay == nil {
		return nil
	}
	return b.Relay.Run(ctx, b.Service.Notify)
}

// Close releases the relay, the documents backend and the SQL pool.
func (b *Backend) Close() error {
	if b.Relay != nil {
		b.Relay.Close()
	}
	err := b.Service.Close()
	if b.db != nil {
		if cerr := b.db.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
