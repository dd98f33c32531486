package repository

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/wandersync/pkg/model"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLite implements HistoryRepository on an embedded SQLite database
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the database at path and applies pending
// migrations. Pass ":memory:" for an in-memory database.
func NewSQLite(path string) (*SQLite, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, goerr.Wrap(err, "failed to create data directory", goerr.V("path", path))
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open sqlite", goerr.V("path", path))
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, goerr.Wrap(err, "failed to ping sqlite", goerr.V("path", path))
	}

	// A single connection keeps ":memory:" databases alive and avoids "database is locked"
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA busy_timeout = 5000", "PRAGMA journal_mode=WAL"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, goerr.Wrap(err, "failed to set pragma", goerr.V("pragma", pragma))
		}
	}

	r := &SQLite{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, goerr.Wrap(err, "failed to run migrations")
	}

	return r, nil
}

// Close closes the database
func (r *SQLite) Close() error {
	return r.db.Close()
}

func (r *SQLite) migrate() error {
	if _, err := r.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return goerr.Wrap(err, "failed to create schema_version table")
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return goerr.Wrap(err, "failed to read migrations directory")
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		var version int
		if _, err := fmt.Sscanf(entry.Name(), "%d_", &version); err != nil {
			return goerr.Wrap(err, "failed to parse migration version", goerr.V("file", entry.Name()))
		}

		var applied int
		if err := r.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&applied); err != nil {
			return goerr.Wrap(err, "failed to check migration", goerr.V("version", version))
		}
		if applied > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return goerr.Wrap(err, "failed to read migration", goerr.V("file", entry.Name()))
		}

		tx, err := r.db.Begin()
		if err != nil {
			return goerr.Wrap(err, "failed to begin migration", goerr.V("version", version))
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return goerr.Wrap(err, "failed to apply migration", goerr.V("version", version))
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return goerr.Wrap(err, "failed to record migration", goerr.V("version", version))
		}
		if err := tx.Commit(); err != nil {
			return goerr.Wrap(err, "failed to commit migration", goerr.V("version", version))
		}
	}

	return nil
}

func (r *SQLite) PutHistory(ctx context.Context, history *model.History) error {
	if history.ID == "" {
		return goerr.New("history ID is empty")
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO histories (id, user_id, query, response, created_at) VALUES (?, ?, ?, ?, ?)`,
		string(history.ID), history.UserID, history.Query, history.Response, history.CreatedAt.UnixNano(),
	)
	if err != nil {
		return goerr.Wrap(err, "failed to insert history", goerr.V("id", history.ID))
	}
	return nil
}

func (r *SQLite) GetHistory(ctx context.Context, id model.HistoryID) (*model.History, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, query, response, created_at FROM histories WHERE id = ?`, string(id))

	history, err := scanHistory(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, goerr.Wrap(ErrNotFound, "no such history", goerr.V("id", id))
		}
		return nil, goerr.Wrap(err, "failed to get history", goerr.V("id", id))
	}
	return history, nil
}

func (r *SQLite) ListHistory(ctx context.Context, userID string, limit int) ([]*model.History, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, query, response, created_at FROM histories
		 WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`,
		userID, normalizeLimit(limit))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list histories", goerr.V("user_id", userID))
	}
	defer rows.Close()

	var histories []*model.History
	for rows.Next() {
		history, err := scanHistory(rows)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to scan history")
		}
		histories = append(histories, history)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate histories")
	}

	return histories, nil
}

func (r *SQLite) DeleteHistory(ctx context.Context, id model.HistoryID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM histories WHERE id = ?`, string(id))
	if err != nil {
		return goerr.Wrap(err, "failed to delete history", goerr.V("id", id))
	}

	n, err := res.RowsAffected()
	if err != nil {
		return goerr.Wrap(err, "failed to get affected rows")
	}
	if n == 0 {
		return goerr.Wrap(ErrNotFound, "no such history", goerr.V("id", id))
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanHistory(s rowScanner) (*model.History, error) {
	var (
		history   model.History
		id        string
		createdAt int64
	)
	if err := s.Scan(&id, &history.UserID, &history.Query, &history.Response, &createdAt); err != nil {
		return nil, err
	}
	history.ID = model.HistoryID(id)
	history.CreatedAt = time.Unix(0, createdAt)
	return &history, nil
}
