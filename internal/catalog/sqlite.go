package catalog

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/nvandessel/hddl-sim/internal/models"
	_ "modernc.org/sqlite" // SQLite driver
)

// DBFileName is the catalog database inside a project's .hddl directory.
const DBFileName = "catalog.db"

// DefaultPath returns <projectRoot>/.hddl/catalog.db.
func DefaultPath(projectRoot string) string {
	return filepath.Join(projectRoot, ".hddl", DBFileName)
}

// SQLiteCatalog implements Catalog using SQLite for persistence.
type SQLiteCatalog struct {
	mu     sync.RWMutex
	db     *sql.DB
	dbPath string
}

// OpenSQLite opens or creates the catalog database at dbPath.
func OpenSQLite(ctx context.Context, dbPath string) (*SQLiteCatalog, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create catalog directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite works best with single writer

	if err := InitSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteCatalog{db: db, dbPath: dbPath}, nil
}

// Path returns the database file path.
func (c *SQLiteCatalog) Path() string {
	return c.dbPath
}

// Register inserts or replaces the entry.
func (c *SQLiteCatalog) Register(ctx context.Context, e Entry) error {
	if err := validateEntry(e); err != nil {
		return err
	}
	body, err := models.Marshal(e.Scenario)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", e.Name, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO entries (name, kind, scenario_id, title, event_count, body, source, content_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			kind = excluded.kind,
			scenario_id = excluded.scenario_id,
			title = excluded.title,
			event_count = excluded.event_count,
			body = excluded.body,
			source = excluded.source,
			content_hash = excluded.content_hash,
			updated_at = excluded.updated_at`,
		e.Name, string(e.Kind), nullString(e.Scenario.ID), nullString(e.Scenario.Title),
		len(e.Scenario.Events), string(body), nullString(e.Source), contentHash(body), now, now)
	if err != nil {
		return fmt.Errorf("failed to register %s: %w", e.Name, err)
	}
	return nil
}

// Get returns the named entry.
func (c *SQLiteCatalog) Get(ctx context.Context, name string) (*Entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var (
		kind, body string
		source     sql.NullString
	)
	err := c.db.QueryRowContext(ctx,
		`SELECT kind, body, source FROM entries WHERE name = ?`, name).Scan(&kind, &body, &source)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", name, err)
	}

	s, err := models.Parse([]byte(body))
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", name, err)
	}
	return &Entry{Name: name, Kind: Kind(kind), Scenario: s, Source: source.String}, nil
}

// List returns entries of kind, sorted by name.
func (c *SQLiteCatalog) List(ctx context.Context, kind Kind) ([]EntryInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	query := `SELECT name, kind, scenario_id, title, event_count, source, content_hash, updated_at FROM entries`
	var args []any
	if kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, string(kind))
	}
	query += ` ORDER BY name`

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	defer rows.Close()

	infos := make([]EntryInfo, 0)
	for rows.Next() {
		var (
			info                      EntryInfo
			k, updated                string
			scenarioID, title, source sql.NullString
		)
		if err := rows.Scan(&info.Name, &k, &scenarioID, &title, &info.Events, &source, &info.ContentHash, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		info.Kind = Kind(k)
		info.ScenarioID = scenarioID.String
		info.Title = title.String
		info.Source = source.String
		if t, err := time.Parse(time.RFC3339Nano, updated); err == nil {
			info.UpdatedAt = t
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

// Remove deletes the named entry.
func (c *SQLiteCatalog) Remove(ctx context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	res, err := c.db.ExecContext(ctx, `DELETE FROM entries WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("failed to remove %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to remove %s: %w", name, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return nil
}

// Clear deletes every entry.
func (c *SQLiteCatalog) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.db.ExecContext(ctx, `DELETE FROM entries`); err != nil {
		return fmt.Errorf("failed to clear catalog: %w", err)
	}
	return nil
}

// Close closes the database.
func (c *SQLiteCatalog) Close() error {
	return c.db.Close()
}

func contentHash(body []byte) string {
	hash := sha256.Sum256(body)
	return hex.EncodeToString(hash[:8])
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
