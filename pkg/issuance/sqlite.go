package issuance

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

const (
	// DriverModernc is the pure-Go SQLite driver (modernc.org/sqlite).
	DriverModernc = "sqlite"

	// DriverMattn is the cgo SQLite driver (github.com/mattn/go-sqlite3).
	DriverMattn = "sqlite3"
)

// SQLiteConfig contains configuration for the SQLite store.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string

	// Driver selects the database/sql driver: DriverModernc (default) or
	// DriverMattn.
	Driver string

	// MaxOpenConns is the maximum number of open connections.
	// Default: 1 (SQLite serializes writers anyway)
	MaxOpenConns int

	// WALMode enables Write-Ahead Logging.
	WALMode bool

	// BusyTimeout is how long to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// DefaultSQLiteConfig returns the default SQLite configuration.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		Path:         "data/issued.db",
		Driver:       DriverModernc,
		MaxOpenConns: 1,
		WALMode:      true,
		BusyTimeout:  5 * time.Second,
	}
}

// SQLiteStore implements Store on SQLite.
type SQLiteStore struct {
	db     *sql.DB
	config *SQLiteConfig
	logger *slog.Logger

	mu     sync.RWMutex
	insert *sql.Stmt
	closed bool
}

// NewSQLiteStore opens (and if needed creates) the database.
func NewSQLiteStore(config *SQLiteConfig) (*SQLiteStore, error) {
	if config == nil {
		config = DefaultSQLiteConfig()
	}
	if config.Driver == "" {
		config.Driver = DriverModernc
	}
	if config.Driver != DriverModernc && config.Driver != DriverMattn {
		return nil, fmt.Errorf("unsupported sqlite driver %q", config.Driver)
	}
	if config.MaxOpenConns <= 0 {
		config.MaxOpenConns = 1
	}
	if config.BusyTimeout <= 0 {
		config.BusyTimeout = 5 * time.Second
	}

	logger := slog.Default().With("component", "issuance.sqlite", "driver", config.Driver)

	db, err := sql.Open(config.Driver, config.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open issuance database: %w", err)
	}
	db.SetMaxOpenConns(config.MaxOpenConns)

	s := &SQLiteStore{db: db, config: config, logger: logger}
	if err := s.initialize(); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Info("issuance ledger initialized",
		"path", config.Path,
		"wal_mode", config.WALMode,
	)
	return s, nil
}

func (s *SQLiteStore) initialize() error {
	if s.config.WALMode {
		if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			return fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", s.config.BusyTimeout.Milliseconds())); err != nil {
		return fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if _, err := s.db.Exec(Schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	if _, err := s.db.Exec(InsertSchemaVersion, SchemaVersion); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}

	var version sql.NullInt64
	if err := s.db.QueryRow(GetSchemaVersion).Scan(&version); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if !version.Valid || version.Int64 != SchemaVersion {
		return fmt.Errorf("schema version mismatch: expected %d, got %d", SchemaVersion, version.Int64)
	}

	insert, err := s.db.Prepare(`
		INSERT INTO issued_certificates (
			id, serial, subject, issuer,
			not_before, not_after, issued_at,
			peer_subject, peer_serial, connection_id, channel
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	s.insert = insert
	return nil
}

// Record inserts r.
func (s *SQLiteStore) Record(ctx context.Context, r *Record) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrStoreClosed
	}

	_, err := s.insert.ExecContext(ctx,
		r.ID, r.Serial, r.Subject, r.Issuer,
		r.NotBefore.UnixNano(), r.NotAfter.UnixNano(), r.IssuedAt.UnixNano(),
		r.PeerSubject, r.PeerSerial, r.ConnectionID, r.Channel,
	)
	if err != nil {
		return fmt.Errorf("failed to record issuance: %w", err)
	}
	return nil
}

// Query returns matching records, newest first.
func (s *SQLiteStore) Query(ctx context.Context, q *Query) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	where, args := buildWhere(q)
	stmt := `SELECT id, serial, subject, issuer, not_before, not_after, issued_at,
			COALESCE(peer_subject, ''), COALESCE(peer_serial, ''),
			COALESCE(connection_id, ''), COALESCE(channel, '')
		FROM issued_certificates` + where + ` ORDER BY issued_at DESC`
	if q != nil && q.Limit > 0 {
		stmt += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query issuances: %w", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		var (
			r                           Record
			notBefore, notAfter, issued int64
		)
		if err := rows.Scan(&r.ID, &r.Serial, &r.Subject, &r.Issuer,
			&notBefore, &notAfter, &issued,
			&r.PeerSubject, &r.PeerSerial, &r.ConnectionID, &r.Channel); err != nil {
			return nil, fmt.Errorf("failed to scan issuance: %w", err)
		}
		r.NotBefore = time.Unix(0, notBefore)
		r.NotAfter = time.Unix(0, notAfter)
		r.IssuedAt = time.Unix(0, issued)
		out = append(out, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate issuances: %w", err)
	}
	return out, nil
}

// Count returns the number of matching records, ignoring Limit.
func (s *SQLiteStore) Count(ctx context.Context, q *Query) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, ErrStoreClosed
	}

	where, args := buildWhere(q)
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM issued_certificates"+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count issuances: %w", err)
	}
	return n, nil
}

// DeleteIssuedBefore removes records issued before t.
func (s *SQLiteStore) DeleteIssuedBefore(ctx context.Context, t time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, ErrStoreClosed
	}

	res, err := s.db.ExecContext(ctx, "DELETE FROM issued_certificates WHERE issued_at < ?", t.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to delete issuances: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.insert != nil {
		_ = s.insert.Close()
	}
	return s.db.Close()
}

func buildWhere(q *Query) (string, []any) {
	if q == nil {
		return "", nil
	}

	var (
		conds []string
		args  []any
	)
	if q.Subject != "" {
		conds = append(conds, "LOWER(subject) LIKE ?")
		args = append(args, "%"+strings.ToLower(q.Subject)+"%")
	}
	if q.Serial != "" {
		conds = append(conds, "serial = ?")
		args = append(args, q.Serial)
	}
	if !q.Since.IsZero() {
		conds = append(conds, "issued_at >= ?")
		args = append(args, q.Since.UnixNano())
	}
	if !q.Until.IsZero() {
		conds = append(conds, "issued_at <= ?")
		args = append(args, q.Until.UnixNano())
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
