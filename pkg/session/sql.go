package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// SQLStore keeps snapshots in a SQL table. It works with any database/sql
// driver; the dialect selects placeholder and upsert syntax. Expiry times are
// stored as Unix seconds so comparisons behave the same on every backend.
//
//	CREATE TABLE params_sessions (
//	    id         VARCHAR(64) PRIMARY KEY,
//	    data       BLOB NOT NULL,
//	    expires_at BIGINT NOT NULL,
//	    updated_at BIGINT NOT NULL
//	);
type SQLStore struct {
	db        *sql.DB
	tableName string
	dialect   SQLDialect
	logger    *slog.Logger
	now       func() time.Time

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
	wg     sync.WaitGroup
}

// SQLDialect represents the SQL dialect for query generation.
type SQLDialect int

const (
	// DialectSQLite uses SQLite syntax (? placeholders, INSERT OR REPLACE).
	DialectSQLite SQLDialect = iota
	// DialectPostgreSQL uses PostgreSQL syntax ($1 placeholders, ON CONFLICT).
	DialectPostgreSQL
	// DialectMySQL uses MySQL syntax (? placeholders, ON DUPLICATE KEY).
	DialectMySQL
)

// String returns the dialect name as accepted by ParseDialect.
func (d SQLDialect) String() string {
	switch d {
	case DialectSQLite:
		return "sqlite"
	case DialectPostgreSQL:
		return "postgres"
	case DialectMySQL:
		return "mysql"
	}
	return fmt.Sprintf("SQLDialect(%d)", int(d))
}

// ParseDialect resolves a dialect name.
func ParseDialect(name string) (SQLDialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	case "postgres", "postgresql", "pgx":
		return DialectPostgreSQL, nil
	case "mysql":
		return DialectMySQL, nil
	}
	return DialectSQLite, fmt.Errorf("session: unknown SQL dialect %q", name)
}

// SQLStoreOption configures SQLStore behavior.
type SQLStoreOption func(*sqlStoreConfig)

type sqlStoreConfig struct {
	tableName       string
	dialect         SQLDialect
	cleanupInterval time.Duration
	logger          *slog.Logger
}

// WithSQLTableName sets the table name. Default: "params_sessions".
func WithSQLTableName(name string) SQLStoreOption {
	return func(c *sqlStoreConfig) {
		if name != "" {
			c.tableName = name
		}
	}
}

// WithSQLDialect sets the SQL dialect. Default: DialectSQLite.
func WithSQLDialect(dialect SQLDialect) SQLStoreOption {
	return func(c *sqlStoreConfig) {
		c.dialect = dialect
	}
}

// WithSQLCleanupInterval sets how often expired rows are deleted.
// Default: 5 minutes.
func WithSQLCleanupInterval(d time.Duration) SQLStoreOption {
	return func(c *sqlStoreConfig) {
		if d > 0 {
			c.cleanupInterval = d
		}
	}
}

// WithSQLLogger sets the logger used for background cleanup failures.
func WithSQLLogger(logger *slog.Logger) SQLStoreOption {
	return func(c *sqlStoreConfig) {
		c.logger = logger
	}
}

// NewSQLStore creates a SQL-backed store. The caller owns db; Close does not
// close it.
func NewSQLStore(db *sql.DB, opts ...SQLStoreOption) *SQLStore {
	cfg := &sqlStoreConfig{
		tableName:       "params_sessions",
		dialect:         DialectSQLite,
		cleanupInterval: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}

	s := &SQLStore{
		db:        db,
		tableName: cfg.tableName,
		dialect:   cfg.dialect,
		logger:    cfg.logger.With("component", "session_store", "dialect", cfg.dialect.String()),
		now:       time.Now,
		done:      make(chan struct{}),
	}
	s.wg.Add(1)
	go s.cleanupLoop(cfg.cleanupInterval)
	return s
}

// placeholder returns the n-th (1-based) bind parameter for the dialect.
func (s *SQLStore) placeholder(n int) string {
	if s.dialect == DialectPostgreSQL {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (s *SQLStore) upsertQuery() string {
	switch s.dialect {
	case DialectPostgreSQL:
		return fmt.Sprintf(`
			INSERT INTO %s (id, data, expires_at, updated_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE SET
				data = EXCLUDED.data,
				expires_at = EXCLUDED.expires_at,
				updated_at = EXCLUDED.updated_at
		`, s.tableName)
	case DialectMySQL:
		return fmt.Sprintf(`
			INSERT INTO %s (id, data, expires_at, updated_at)
			VALUES (?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE
				data = VALUES(data),
				expires_at = VALUES(expires_at),
				updated_at = VALUES(updated_at)
		`, s.tableName)
	default:
		return fmt.Sprintf(`
			INSERT OR REPLACE INTO %s (id, data, expires_at, updated_at)
			VALUES (?, ?, ?, ?)
		`, s.tableName)
	}
}

func (s *SQLStore) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// Save upserts a snapshot.
func (s *SQLStore) Save(ctx context.Context, sessionID string, data []byte, expiresAt time.Time) error {
	if s.isClosed() {
		return ErrStoreClosed
	}
	_, err := s.db.ExecContext(ctx, s.upsertQuery(), sessionID, data, expiresAt.Unix(), s.now().Unix())
	return err
}

// Load returns the snapshot if it exists and hasn't expired.
func (s *SQLStore) Load(ctx context.Context, sessionID string) ([]byte, error) {
	if s.isClosed() {
		return nil, ErrStoreClosed
	}
	query := fmt.Sprintf(`SELECT data FROM %s WHERE id = %s AND expires_at > %s`,
		s.tableName, s.placeholder(1), s.placeholder(2))

	var data []byte
	err := s.db.QueryRowContext(ctx, query, sessionID, s.now().Unix()).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Delete removes a snapshot.
func (s *SQLStore) Delete(ctx context.Context, sessionID string) error {
	if s.isClosed() {
		return ErrStoreClosed
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = %s`, s.tableName, s.placeholder(1))
	_, err := s.db.ExecContext(ctx, query, sessionID)
	return err
}

// SaveAll upserts every record in one transaction.
func (s *SQLStore) SaveAll(ctx context.Context, records map[string]Record) error {
	if s.isClosed() {
		return ErrStoreClosed
	}
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, s.upsertQuery())
	if err != nil {
		return err
	}
	defer stmt.Close()

	updated := s.now().Unix()
	for id, rec := range records {
		if _, err := stmt.ExecContext(ctx, id, rec.Data, rec.ExpiresAt.Unix(), updated); err != nil {
			return fmt.Errorf("save %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// Close stops background cleanup. The database handle stays open.
func (s *SQLStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.done)
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

func (s *SQLStore) cleanupLoop(interval time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if _, err := s.DeleteExpired(ctx); err != nil {
				s.logger.Warn("expired snapshot cleanup failed", "error", err)
			}
			cancel()
		case <-s.done:
			return
		}
	}
}

// DeleteExpired removes expired rows and reports how many were deleted.
func (s *SQLStore) DeleteExpired(ctx context.Context) (int64, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE expires_at <= %s`, s.tableName, s.placeholder(1))
	res, err := s.db.ExecContext(ctx, query, s.now().Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CreateTable creates the snapshot table and its expiry index if missing.
func (s *SQLStore) CreateTable(ctx context.Context) error {
	var query string
	switch s.dialect {
	case DialectPostgreSQL:
		query = fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id VARCHAR(64) PRIMARY KEY,
				data BYTEA NOT NULL,
				expires_at BIGINT NOT NULL,
				updated_at BIGINT NOT NULL
			)
		`, s.tableName)
	case DialectMySQL:
		query = fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id VARCHAR(64) PRIMARY KEY,
				data BLOB NOT NULL,
				expires_at BIGINT NOT NULL,
				updated_at BIGINT NOT NULL
			)
		`, s.tableName)
	default:
		query = fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id TEXT PRIMARY KEY,
				data BLOB NOT NULL,
				expires_at INTEGER NOT NULL,
				updated_at INTEGER NOT NULL
			)
		`, s.tableName)
	}
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return err
	}

	index := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_expires ON %s(expires_at)`, s.tableName, s.tableName)
	if s.dialect == DialectMySQL {
		// MySQL has no IF NOT EXISTS for indexes; a duplicate is ignored.
		index = fmt.Sprintf(`CREATE INDEX idx_%s_expires ON %s(expires_at)`, s.tableName, s.tableName)
		_, _ = s.db.ExecContext(ctx, index)
		return nil
	}
	_, err := s.db.ExecContext(ctx, index)
	return err
}
