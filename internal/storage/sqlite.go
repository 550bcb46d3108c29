package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/masahif/sitediff/internal/report"
	// SQLite database driver (CGO-free)
	_ "modernc.org/sqlite"
)

// Metadata keys in crawl_meta
const (
	metaOldBase             = "old_base"
	metaNewBase             = "new_base"
	metaGeneratedAt         = "generated_at"
	metaConsolidatedTargets = "consolidated_targets"
)

// SQLiteStorage keeps the report in a SQLite database
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool - single connection prevents lock conflicts
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)

	storage := &SQLiteStorage{db: db}

	if err := storage.InitSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return storage, nil
}

// InitSchema creates the database schema
func (s *SQLiteStorage) InitSchema() error {
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -64000", // 64MB cache
		"PRAGMA temp_store = MEMORY",
		"PRAGMA busy_timeout = 30000",  // 30 second timeout for locks
		"PRAGMA locking_mode = NORMAL", // Allow external monitoring processes
	}

	for _, pragma := range pragmas {
		if _, err := s.db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute pragma %s: %w", pragma, err)
		}
	}

	if _, err := s.db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// Save replaces the stored report inside one transaction
func (s *SQLiteStorage) Save(ctx context.Context, r *report.Report) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := saveReport(ctx, tx, r); err != nil {
		return err
	}
	return tx.Commit()
}

// Update loads, mutates and saves the report inside one transaction
func (s *SQLiteStorage) Update(ctx context.Context, fn func(*report.Report) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// take the write lock before reading so another process cannot commit
	// between our read and our write
	if _, err := tx.ExecContext(ctx, "DELETE FROM crawl_meta WHERE 0"); err != nil {
		return fmt.Errorf("failed to lock report: %w", err)
	}

	r, err := loadReport(ctx, tx)
	if err != nil {
		return err
	}
	if err := fn(r); err != nil {
		return err
	}
	if err := saveReport(ctx, tx, r); err != nil {
		return err
	}
	return tx.Commit()
}

// querier is satisfied by *sql.DB and *sql.Tx
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func saveReport(ctx context.Context, tx *sql.Tx, r *report.Report) error {
	for _, table := range []string{"pages", "redirect_buckets", "crawl_meta"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	targets, err := json.Marshal(nonNil(r.Meta.ConsolidatedTargets))
	if err != nil {
		return fmt.Errorf("failed to encode consolidated targets: %w", err)
	}
	meta := map[string]string{
		metaOldBase:             r.Meta.OldBase,
		metaNewBase:             r.Meta.NewBase,
		metaGeneratedAt:         r.Meta.GeneratedAt.UTC().Format(time.RFC3339Nano),
		metaConsolidatedTargets: string(targets),
	}
	for key, value := range meta {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO crawl_meta (key, value) VALUES (?, ?)", key, value); err != nil {
			return fmt.Errorf("failed to save meta %s: %w", key, err)
		}
	}

	bucketStmt, err := tx.PrepareContext(ctx, "INSERT INTO redirect_buckets (rank, path, count) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = bucketStmt.Close() }()

	for i, b := range r.Meta.TopRedirectBuckets {
		if _, err := bucketStmt.ExecContext(ctx, i, b.Path, b.Count); err != nil {
			return fmt.Errorf("failed to insert bucket %s: %w", b.Path, err)
		}
	}

	pageStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO pages (
			path, position, old_status, new_status, old_title, new_title, final_path,
			title_match, h1_match, desc_match, redirect_to_different_path,
			consolidated_redirect, links_missing_count, links_extra_count, entry_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = pageStmt.Close() }()

	for i, p := range r.Paths {
		entry := r.Pages[p]
		if entry == nil {
			entry = &report.PageEntry{}
		}
		entryJSON, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("failed to encode entry %s: %w", p, err)
		}
		if _, err := pageStmt.ExecContext(ctx,
			p, i,
			entry.Old.Status, entry.New.Status,
			entry.Old.Title, entry.New.Title, entry.New.FinalPath,
			entry.Diff.TitleMatch, entry.Diff.H1Match, entry.Diff.DescMatch,
			entry.Diff.RedirectToDifferentPath, entry.Diff.ConsolidatedRedirect,
			entry.Diff.LinksMissingInNewCount, entry.Diff.LinksExtraInNewCount,
			string(entryJSON),
		); err != nil {
			return fmt.Errorf("failed to insert page %s: %w", p, err)
		}
	}
	return nil
}

// Load reads the stored report
func (s *SQLiteStorage) Load(ctx context.Context) (*report.Report, error) {
	return loadReport(ctx, s.db)
}

func loadReport(ctx context.Context, q querier) (*report.Report, error) {
	generatedAt, err := getMeta(ctx, q, metaGeneratedAt)
	if err != nil {
		return nil, err
	}
	if generatedAt == "" {
		return nil, ErrReportNotFound
	}

	r := &report.Report{
		Paths: []string{},
		Pages: make(map[string]*report.PageEntry),
	}
	if r.Meta.GeneratedAt, err = time.Parse(time.RFC3339Nano, generatedAt); err != nil {
		return nil, fmt.Errorf("invalid generated_at %q: %w", generatedAt, err)
	}
	if r.Meta.OldBase, err = getMeta(ctx, q, metaOldBase); err != nil {
		return nil, err
	}
	if r.Meta.NewBase, err = getMeta(ctx, q, metaNewBase); err != nil {
		return nil, err
	}
	targets, err := getMeta(ctx, q, metaConsolidatedTargets)
	if err != nil {
		return nil, err
	}
	r.Meta.ConsolidatedTargets = []string{}
	if targets != "" {
		if err := json.Unmarshal([]byte(targets), &r.Meta.ConsolidatedTargets); err != nil {
			return nil, fmt.Errorf("failed to decode consolidated targets: %w", err)
		}
	}

	if r.Meta.TopRedirectBuckets, err = loadBuckets(ctx, q); err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx, "SELECT path, entry_json FROM pages ORDER BY position")
	if err != nil {
		return nil, fmt.Errorf("failed to query pages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var path, entryJSON string
		if err := rows.Scan(&path, &entryJSON); err != nil {
			return nil, fmt.Errorf("failed to scan page: %w", err)
		}
		var entry report.PageEntry
		if err := json.Unmarshal([]byte(entryJSON), &entry); err != nil {
			return nil, fmt.Errorf("failed to decode entry %s: %w", path, err)
		}
		r.Paths = append(r.Paths, path)
		r.Pages[path] = &entry
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read pages: %w", err)
	}

	return r, nil
}

func loadBuckets(ctx context.Context, q querier) ([]report.BucketEntry, error) {
	rows, err := q.QueryContext(ctx, "SELECT path, count FROM redirect_buckets ORDER BY rank")
	if err != nil {
		return nil, fmt.Errorf("failed to query buckets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	buckets := []report.BucketEntry{}
	for rows.Next() {
		var b report.BucketEntry
		if err := rows.Scan(&b.Path, &b.Count); err != nil {
			return nil, fmt.Errorf("failed to scan bucket: %w", err)
		}
		buckets = append(buckets, b)
	}
	return buckets, rows.Err()
}

// ChangedPaths returns the paths listed by the changed_pages view
func (s *SQLiteStorage) ChangedPaths(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT path FROM changed_pages ORDER BY path")
	if err != nil {
		return nil, fmt.Errorf("failed to query changed pages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("failed to scan changed page: %w", err)
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// GetMeta retrieves a metadata value
func (s *SQLiteStorage) GetMeta(key string) (string, error) {
	return getMeta(context.Background(), s.db, key)
}

func getMeta(ctx context.Context, q querier, key string) (string, error) {
	var value string
	err := q.QueryRowContext(ctx, "SELECT value FROM crawl_meta WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get meta: %w", err)
	}
	return value, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
