package main

import (
	"context"
	"database/sql"
	stderrors "errors"
	"log/slog"

	_ "modernc.org/sqlite"

	"github.com/vango-dev/params/internal/config"
	"github.com/vango-dev/params/internal/errors"
	"github.com/vango-dev/params/pkg/session"
)

// driverNames maps dialects to the database/sql driver registered for them.
// Only the SQLite driver is linked in; the other dialects need a build that
// imports their driver.
var driverNames = map[session.SQLDialect]string{
	session.DialectSQLite:     "sqlite",
	session.DialectPostgreSQL: "pgx",
	session.DialectMySQL:      "mysql",
}

// openStore opens the configured snapshot store. The returned close func
// releases the store and, for SQL stores, the database handle.
func openStore(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (session.Store, func() error, error) {
	if cfg.Driver == "" || cfg.Driver == "memory" {
		store := session.NewMemoryStore()
		return store, store.Close, nil
	}

	dialect, err := session.ParseDialect(cfg.Driver)
	if err != nil {
		return nil, nil, errors.New(errors.CodeConfigInvalid).Wrap(err)
	}
	db, err := sql.Open(driverNames[dialect], cfg.DSN)
	if err != nil {
		return nil, nil, errors.New(errors.CodeStore).Wrap(err).
			WithDetail("No database driver for " + dialect.String() + " is linked into paramsd.").
			WithSuggestion("Use store.driver sqlite or memory.")
	}
	if dialect == session.DialectSQLite {
		// SQLite allows one writer; a single connection also keeps
		// ":memory:" databases shared.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, errors.New(errors.CodeStore).Wrap(err).WithSource(cfg.DSN)
	}

	store := session.NewSQLStore(db,
		session.WithSQLDialect(dialect),
		session.WithSQLTableName(cfg.Table),
		session.WithSQLLogger(logger),
	)
	if err := store.CreateTable(ctx); err != nil {
		store.Close()
		db.Close()
		return nil, nil, errors.New(errors.CodeStore).Wrap(err)
	}
	logger.Info("snapshot store ready", "dialect", dialect.String(), "table", cfg.Table)

	return store, func() error {
		return stderrors.Join(store.Close(), db.Close())
	}, nil
}
