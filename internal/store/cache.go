// Package store provides a SQLite-backed cache of document metadata and
// extracted search text.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jazzyalex/agent-sessions/internal/model"

	_ "modernc.org/sqlite" // register sqlite driver
)

// Cache provides SQLite-backed document caching. It is safe for concurrent
// use.
type Cache struct {
	db *sql.DB
}

// Open opens or creates the cache database at the given path.
func Open(dbPath string) (*Cache, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=synchronous(normal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening cache db: %w", err)
	}
	// One connection: search workers write text concurrently and SQLite
	// allows a single writer anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Cache{db: db}, nil
}

// Close closes the cache database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// FileInfo holds the tracked mtime and size for a file.
type FileInfo struct {
	MtimeNs   int64
	SizeBytes int64
}

// GetTrackedFiles returns a map of file_path -> FileInfo for all tracked files.
func (c *Cache) GetTrackedFiles() (map[string]FileInfo, error) {
	rows, err := c.db.Query("SELECT file_path, mtime_ns, size_bytes FROM file_tracker")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	result := make(map[string]FileInfo)
	for rows.Next() {
		var path string
		var fi FileInfo
		if err := rows.Scan(&path, &fi.MtimeNs, &fi.SizeBytes); err != nil {
			return nil, err
		}
		result[path] = fi
	}
	return result, rows.Err()
}

// DocumentStats are per-document counts recorded alongside metadata.
type DocumentStats struct {
	UserEvents int
	EventCount int
}

// SaveDocument stores document metadata and its file tracking info. Any
// cached text for the document is dropped, since a re-save means the file
// changed.
func (c *Cache) SaveDocument(d model.Document, st DocumentStats) error {
	tx, err := c.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(time.RFC3339)
	startTime := ""
	if !d.StartTime.IsZero() {
		startTime = d.StartTime.UTC().Format(time.RFC3339Nano)
	}
	mtime := d.ModifiedAt.UnixNano()

	// A file keeps one document row even if its id changed between parses.
	_, err = tx.Exec(`DELETE FROM document_text WHERE EXISTS (
		SELECT 1 FROM documents d
		WHERE d.source = document_text.source AND d.doc_id = document_text.doc_id AND d.file_path = ?)`, d.Path)
	if err != nil {
		return err
	}
	_, err = tx.Exec("DELETE FROM documents WHERE file_path = ?", d.Path)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`INSERT OR REPLACE INTO documents
		(source, doc_id, file_path, repo, model, start_time,
		 file_mtime_ns, file_size, user_events, event_count, parsed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.Source, d.ID, d.Path, d.Repo, d.Model, startTime,
		mtime, d.SizeBytes, st.UserEvents, st.EventCount, now,
	)
	if err != nil {
		return err
	}

	_, err = tx.Exec("DELETE FROM document_text WHERE source = ? AND doc_id = ?", d.Source, d.ID)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`INSERT OR REPLACE INTO file_tracker (file_path, mtime_ns, size_bytes)
		VALUES (?, ?, ?)`, d.Path, mtime, d.SizeBytes)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// LoadDocuments reads all cached document metadata. Returned documents are
// marked Indexed and carry no Session.
func (c *Cache) LoadDocuments() ([]model.Document, error) {
	rows, err := c.db.Query(`SELECT
		source, doc_id, file_path, repo, model, start_time, file_mtime_ns, file_size, user_events
		FROM documents`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var docs []model.Document
	for rows.Next() {
		var d model.Document
		var repo, modelName, startStr sql.NullString
		var mtime int64
		if err := rows.Scan(&d.Source, &d.ID, &d.Path, &repo, &modelName, &startStr, &mtime, &d.SizeBytes, &d.Prompts); err != nil {
			return nil, err
		}
		d.Repo = repo.String
		d.Model = modelName.String
		if startStr.Valid && startStr.String != "" {
			d.StartTime, _ = time.Parse(time.RFC3339Nano, startStr.String)
		}
		d.ModifiedAt = time.Unix(0, mtime)
		d.Indexed = true
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// GetText returns the cached extracted text for a document.
func (c *Cache) GetText(source, docID string) (string, bool, error) {
	var text string
	err := c.db.QueryRow("SELECT text FROM document_text WHERE source = ? AND doc_id = ?", source, docID).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return text, true, nil
}

// PutText stores extracted text for a document. Writing the same text
// twice leaves the row unchanged apart from updated_at.
func (c *Cache) PutText(source, docID, text string) error {
	_, err := c.db.Exec(`INSERT OR REPLACE INTO document_text (source, doc_id, text, updated_at)
		VALUES (?, ?, ?, ?)`, source, docID, text, time.Now().UTC().Format(time.RFC3339))
	return err
}

// InvalidatePath drops cached text and tracking for every document backed
// by path, so the next load reparses it. Metadata rows are kept until then.
func (c *Cache) InvalidatePath(path string) error {
	tx, err := c.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM document_text WHERE EXISTS (
		SELECT 1 FROM documents d
		WHERE d.source = document_text.source AND d.doc_id = document_text.doc_id AND d.file_path = ?)`, path); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM file_tracker WHERE file_path = ?", path); err != nil {
		return err
	}
	return tx.Commit()
}

// DeletePath removes everything cached for a file that no longer exists.
func (c *Cache) DeletePath(path string) error {
	if err := c.InvalidatePath(path); err != nil {
		return err
	}
	_, err := c.db.Exec("DELETE FROM documents WHERE file_path = ?", path)
	return err
}

// DocumentCount returns the number of cached documents.
func (c *Cache) DocumentCount() (int, error) {
	var count int
	err := c.db.QueryRow("SELECT COUNT(*) FROM documents").Scan(&count)
	return count, err
}

// TextCount returns the number of documents with cached text.
func (c *Cache) TextCount() (int, error) {
	var count int
	err := c.db.QueryRow("SELECT COUNT(*) FROM document_text").Scan(&count)
	return count, err
}
