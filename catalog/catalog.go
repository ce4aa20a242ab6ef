/*
Copyright © 2026 the esgf authors.
This file is part of esgf.

esgf is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

esgf is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with esgf.  If not, see <http://www.gnu.org/licenses/>.
*/

// Package catalog manages the local installation directory of downloaded
// ESGF files and keeps a record of them in an SQLite database.
//
// An installation rooted at root has the layout
//
//	root/data/<dataset id with dots as slashes>/<filename>
//	root/db/esgf.db
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const schemaVersion = 1

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("catalog: record not found")

// Status values of a record.
const (
	StatusDone    = "done"
	StatusPending = "pending"
)

// Record describes one file of the installation.
type Record struct {
	// ID is the file instance id.
	ID           string
	DatasetID    string
	Filename     string
	Path         string
	URL          string
	Checksum     string
	ChecksumType string
	Size         int64
	Status       string
	UpdatedAt    time.Time
}

// DatasetSummary counts the recorded files of one dataset.
type DatasetSummary struct {
	DatasetID string
	Files     int
	Size      int64
}

// Catalog is an installation directory with its database.
type Catalog struct {
	Root string
	db   *sql.DB
}

// Install creates the installation layout under root if needed and opens
// its database.
func Install(root string) (*Catalog, error) {
	if root == "" {
		return nil, errors.New("catalog: empty installation path")
	}
	for _, dir := range []string{"data", "db"} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			return nil, fmt.Errorf("catalog: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)",
		filepath.Join(root, "db", "esgf.db"), (5 * time.Second).Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("catalog: open failed: %w", err)
	}
	c := &Catalog{Root: root, db: db}
	if err := c.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("catalog: migration failed: %w", err)
	}
	return c, nil
}

func (c *Catalog) migrate() error {
	var version int
	if err := c.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return err
	}
	if version >= schemaVersion {
		return nil
	}
	tx, err := c.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	schema := `
	CREATE TABLE IF NOT EXISTS files (
		id TEXT PRIMARY KEY,
		dataset_id TEXT NOT NULL,
		filename TEXT NOT NULL,
		path TEXT NOT NULL,
		url TEXT NOT NULL,
		checksum TEXT NOT NULL,
		checksum_type TEXT NOT NULL,
		size INTEGER NOT NULL,
		status TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_files_dataset ON files(dataset_id);
	`
	if _, err := tx.Exec(schema); err != nil {
		return err
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return err
	}
	return tx.Commit()
}

// DataPath returns the absolute path of a file stored under the data
// directory of the installation.
func (c *Catalog) DataPath(elem ...string) string {
	return filepath.Join(append([]string{c.Root, "data"}, elem...)...)
}

// Put inserts r or replaces the record with the same id. A zero UpdatedAt
// is set to the current time.
func (c *Catalog) Put(ctx context.Context, r Record) error {
	if r.ID == "" {
		return errors.New("catalog: record has no id")
	}
	if r.Status == "" {
		r.Status = StatusDone
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = time.Now()
	}
	_, err := c.db.ExecContext(ctx, `
	INSERT INTO files (id, dataset_id, filename, path, url, checksum, checksum_type, size, status, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		dataset_id = excluded.dataset_id,
		filename = excluded.filename,
		path = excluded.path,
		url = excluded.url,
		checksum = excluded.checksum,
		checksum_type = excluded.checksum_type,
		size = excluded.size,
		status = excluded.status,
		updated_at = excluded.updated_at
	`, r.ID, r.DatasetID, r.Filename, r.Path, r.URL, r.Checksum, r.ChecksumType, r.Size, r.Status,
		r.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("catalog: storing %s: %w", r.ID, err)
	}
	return nil
}

const selectRecord = `SELECT id, dataset_id, filename, path, url, checksum, checksum_type, size, status, updated_at FROM files`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(s scanner) (Record, error) {
	var r Record
	var updated string
	if err := s.Scan(&r.ID, &r.DatasetID, &r.Filename, &r.Path, &r.URL, &r.Checksum,
		&r.ChecksumType, &r.Size, &r.Status, &updated); err != nil {
		return r, err
	}
	t, err := time.Parse(time.RFC3339Nano, updated)
	if err != nil {
		return r, fmt.Errorf("catalog: record %s: %w", r.ID, err)
	}
	r.UpdatedAt = t
	return r, nil
}

// Get returns the record with the given id.
func (c *Catalog) Get(ctx context.Context, id string) (Record, error) {
	r, err := scanRecord(c.db.QueryRowContext(ctx, selectRecord+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return r, fmt.Errorf("%w: %s", ErrNotFound, id)
	} else if err != nil {
		return r, fmt.Errorf("catalog: %w", err)
	}
	return r, nil
}

// List returns the records of a dataset ordered by filename, or all records
// ordered by dataset and filename if datasetID is empty.
func (c *Catalog) List(ctx context.Context, datasetID string) ([]Record, error) {
	var rows *sql.Rows
	var err error
	if datasetID == "" {
		rows, err = c.db.QueryContext(ctx, selectRecord+` ORDER BY dataset_id, filename`)
	} else {
		rows, err = c.db.QueryContext(ctx, selectRecord+` WHERE dataset_id = ? ORDER BY filename`, datasetID)
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	defer rows.Close()
	var records []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("catalog: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	return records, nil
}

// Datasets summarizes the recorded files per dataset, ordered by dataset id.
func (c *Catalog) Datasets(ctx context.Context) ([]DatasetSummary, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT dataset_id, COUNT(*), COALESCE(SUM(size), 0) FROM files GROUP BY dataset_id ORDER BY dataset_id`)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	defer rows.Close()
	var out []DatasetSummary
	for rows.Next() {
		var s DatasetSummary
		if err := rows.Scan(&s.DatasetID, &s.Files, &s.Size); err != nil {
			return nil, fmt.Errorf("catalog: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	return out, nil
}

// Delete removes the record with the given id. The file itself is kept.
func (c *Catalog) Delete(ctx context.Context, id string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM files WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("catalog: deleting %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Close closes the database.
func (c *Catalog) Close() error {
	return c.db.Close()
}
