// Package store persists subjects and their analysis reports in SQLite.
// Reports are append-only: one row per analysis, always queried scoped to the
// owning subject.
package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/quietfield/a11yd/internal/errs"
	"github.com/quietfield/a11yd/internal/report"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const historyLimit = 50

var ErrUserNotFound = errors.New("user not found")

// User is a subject identity. PasswordHash never leaves this package's
// callers except for credential verification.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Store wraps the sqlite handle. Safe for concurrent use; sqlite serializes
// single-row writes natively.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open opens (or creates) the database at path and runs pending migrations.
func Open(path string, logger *zap.Logger) (*Store, error) {
	dsn := path
	if path == ":memory:" {
		dsn = "file::memory:?cache=shared"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening store %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		`PRAGMA foreign_keys = ON`,
		`PRAGMA journal_mode = WAL`,
		`PRAGMA busy_timeout = 5000`,
	} {
		if _, err := db.Exec(pragma); err != nil {
			logger.Warn("setting sqlite pragma", zap.String("pragma", pragma), zap.Error(err))
		}
	}

	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting migration dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db, logger: logger.Named("store")}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// CreateUser inserts a subject. Duplicate usernames fail with Conflict and
// write nothing.
func (s *Store) CreateUser(ctx context.Context, username, passwordHash string) (*User, error) {
	u := &User{
		ID:           uuid.New().String(),
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		u.ID, u.Username, u.PasswordHash, u.CreatedAt.Unix(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, errs.Wrap(errs.Conflict, "user already exists", err)
		}
		return nil, errs.Wrap(errs.PersistenceFailure, "creating user", err)
	}
	return u, nil
}

// GetUserByUsername returns a subject with its credential hash for login
// verification.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, created_at FROM users WHERE username = ? LIMIT 1`,
		username,
	))
}

// GetUserByID returns a subject by id.
func (s *Store) GetUserByID(ctx context.Context, id string) (*User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, created_at FROM users WHERE id = ? LIMIT 1`,
		id,
	))
}

func (s *Store) scanUser(row *sql.Row) (*User, error) {
	var u User
	var createdAt int64
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, errs.Wrap(errs.PersistenceFailure, "reading user", err)
	}
	u.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &u, nil
}

// SaveReport appends one report owned by ownerID. The full report body is
// stored as a single JSON document so the insert is atomic.
func (s *Store) SaveReport(ctx context.Context, ownerID string, rep *report.Report) (*report.Report, error) {
	if ownerID == "" {
		return nil, errs.New(errs.Unauthorized, "report owner is required")
	}

	saved := *rep
	saved.ID = uuid.New().String()
	saved.CreatedAt = time.Now().UTC()
	saved.Persisted = true

	body, err := json.Marshal(&saved)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "encoding report", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO reports (id, user_id, url, score, created_at, body) VALUES (?, ?, ?, ?, ?, ?)`,
		saved.ID, ownerID, saved.URL, saved.Score, saved.CreatedAt.UnixNano(), string(body),
	)
	if err != nil {
		return nil, errs.Wrap(errs.PersistenceFailure, "saving report", err)
	}
	return &saved, nil
}

// ListRecentReports returns ownerID's newest reports, newest first, capped at
// 50. The owner scope is part of the query itself; there is no unscoped read.
func (s *Store) ListRecentReports(ctx context.Context, ownerID string, limit int) ([]*report.Report, error) {
	if ownerID == "" {
		return nil, errs.New(errs.Unauthorized, "report owner is required")
	}
	if limit <= 0 || limit > historyLimit {
		limit = historyLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT body FROM reports WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`,
		ownerID, limit,
	)
	if err != nil {
		return nil, errs.Wrap(errs.PersistenceFailure, "listing reports", err)
	}
	defer rows.Close()

	var out []*report.Report
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, errs.Wrap(errs.PersistenceFailure, "scanning report", err)
		}
		var rep report.Report
		if err := json.Unmarshal([]byte(body), &rep); err != nil {
			return nil, errs.Wrap(errs.Internal, "decoding stored report", err)
		}
		out = append(out, &rep)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.PersistenceFailure, "listing reports", err)
	}
	return out, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
