// Package queue implements the source-URL work queue (spec §4.E): a small
// SQLite-backed relational store, accessed through the stdlib
// database/sql interface with a single-writer connection.
package queue

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/justapithecus/quarry-depot/codec"
	"github.com/justapithecus/quarry-depot/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS source_urls (
	handler_name TEXT NOT NULL,
	url          TEXT NOT NULL,
	status       TEXT NOT NULL,
	PRIMARY KEY (handler_name, url)
);
`

// Queue wraps a single-writer sqlite connection holding the source_urls
// table (spec §4.E schema).
type Queue struct {
	db *sql.DB
}

// Open opens (creating if absent) the sqlite database at path and ensures
// its schema exists. The connection pool is capped at one connection: the
// persistent queue database is single-writer, owned by the orchestrator's
// process (spec §5 "Shared resources").
func Open(path string) (*Queue, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("queue: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("queue: create schema: %w", err)
	}
	return &Queue{db: db}, nil
}

// Close closes the underlying database connection.
func (q *Queue) Close() error {
	return q.db.Close()
}

// AddURLs inserts rows with status TODO for each url under handler.
// Existing (handler, url) rows are updated to TODO only if overwrite is
// true (spec §4.E add_urls).
func (q *Queue) AddURLs(ctx context.Context, handler string, urls []string, overwrite bool) error {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("queue: begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := addURLsTx(ctx, tx, handler, urls, overwrite); err != nil {
		return err
	}
	return tx.Commit()
}

func addURLsTx(ctx context.Context, tx *sql.Tx, handler string, urls []string, overwrite bool) error {
	insert, err := tx.PrepareContext(ctx, `
		INSERT INTO source_urls (handler_name, url, status) VALUES (?, ?, ?)
		ON CONFLICT (handler_name, url) DO UPDATE SET status = excluded.status
		WHERE ?
	`)
	if err != nil {
		return fmt.Errorf("queue: prepare add_urls: %w", err)
	}
	defer insert.Close()

	for _, url := range urls {
		if _, err := insert.ExecContext(ctx, handler, url, string(types.StatusTODO), overwrite); err != nil {
			return fmt.Errorf("queue: add_urls %s/%s: %w", handler, url, err)
		}
	}
	return nil
}

// UpdateSources sets each row's status to newStatus, except that terminal
// success statuses (PROCESSED, CACHE_LOADED) delete the row instead — a
// successful non-persistent fetch removes the URL from the work set while
// the Collection event preserves the outcome (spec §4.E update_sources).
// Persistent variants (PERSISTENT_PROCESSED/PERSISTENT_CACHED) are stored
// as ordinary status rows and never deleted (spec §9 resolved decision).
func (q *Queue) UpdateSources(ctx context.Context, handler string, urls []string, newStatus types.SourceStatus) error {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("queue: begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := updateSourcesTx(ctx, tx, handler, urls, newStatus); err != nil {
		return err
	}
	return tx.Commit()
}

func updateSourcesTx(ctx context.Context, tx *sql.Tx, handler string, urls []string, newStatus types.SourceStatus) error {
	if newStatus.IsTerminalSuccess() {
		del, err := tx.PrepareContext(ctx, `DELETE FROM source_urls WHERE handler_name = ? AND url = ?`)
		if err != nil {
			return fmt.Errorf("queue: prepare delete: %w", err)
		}
		defer del.Close()
		for _, url := range urls {
			if _, err := del.ExecContext(ctx, handler, url); err != nil {
				return fmt.Errorf("queue: delete %s/%s: %w", handler, url, err)
			}
		}
		return nil
	}

	upd, err := tx.PrepareContext(ctx, `UPDATE source_urls SET status = ? WHERE handler_name = ? AND url = ?`)
	if err != nil {
		return fmt.Errorf("queue: prepare update: %w", err)
	}
	defer upd.Close()
	for _, url := range urls {
		if _, err := upd.ExecContext(ctx, string(newStatus), handler, url); err != nil {
			return fmt.Errorf("queue: update %s/%s: %w", handler, url, err)
		}
	}
	return nil
}

// NextBatch returns up to size rows with status TODO or SESSION_BROKEN. If
// toProcessing is true, the returned rows' status is atomically promoted
// to PROCESSING before return (spec §4.E next_batch).
func (q *Queue) NextBatch(ctx context.Context, size int, toProcessing bool) ([]types.SourceURLRow, error) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("queue: begin tx: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT handler_name, url, status FROM source_urls
		WHERE status IN (?, ?)
		LIMIT ?
	`, string(types.StatusTODO), string(types.StatusSessionBroken), size)
	if err != nil {
		return nil, fmt.Errorf("queue: query next_batch: %w", err)
	}

	var batch []types.SourceURLRow
	for rows.Next() {
		var r types.SourceURLRow
		var status string
		if err := rows.Scan(&r.HandlerName, &r.URL, &status); err != nil {
			rows.Close()
			return nil, fmt.Errorf("queue: scan next_batch row: %w", err)
		}
		r.Status = types.SourceStatus(status)
		batch = append(batch, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("queue: iterate next_batch: %w", err)
	}
	rows.Close()

	if toProcessing && len(batch) > 0 {
		upd, err := tx.PrepareContext(ctx, `UPDATE source_urls SET status = ? WHERE handler_name = ? AND url = ?`)
		if err != nil {
			return nil, fmt.Errorf("queue: prepare promote: %w", err)
		}
		for i := range batch {
			if _, err := upd.ExecContext(ctx, string(types.StatusProcessing), batch[i].HandlerName, batch[i].URL); err != nil {
				upd.Close()
				return nil, fmt.Errorf("queue: promote %s/%s: %w", batch[i].HandlerName, batch[i].URL, err)
			}
			batch[i].Status = types.StatusProcessing
		}
		upd.Close()
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("queue: commit next_batch: %w", err)
	}
	return batch, nil
}

// Reset sets every row whose status is in statuses back to TODO, used to
// retry after a crash (spec §4.E reset).
func (q *Queue) Reset(ctx context.Context, statuses []types.SourceStatus) error {
	if len(statuses) == 0 {
		return nil
	}
	placeholders := make([]any, len(statuses)+1)
	placeholders[0] = string(types.StatusTODO)
	query := `UPDATE source_urls SET status = ? WHERE status IN (`
	for i, s := range statuses {
		if i > 0 {
			query += ", "
		}
		query += "?"
		placeholders[i+1] = string(s)
	}
	query += ")"

	if _, err := q.db.ExecContext(ctx, query, placeholders...); err != nil {
		return fmt.Errorf("queue: reset: %w", err)
	}
	return nil
}

// IntegrateEvents writes each event's file to eventsDir, then applies its
// queue update, all within a single transaction (spec §4.E integrate_events,
// §8 invariant 2: integration order does not affect the resulting table).
// File writes happen before the transaction commits; a crash between a
// write and commit leaves a harmless orphan file, detected by the next
// directory sweep (spec §4.E atomicity note).
func (q *Queue) IntegrateEvents(ctx context.Context, eventsDir string, events []types.Event) error {
	if len(events) == 0 {
		return nil
	}

	if err := os.MkdirAll(eventsDir, 0o755); err != nil {
		return fmt.Errorf("queue: mkdir %s: %w", eventsDir, err)
	}
	for _, e := range events {
		name, payload := codec.Encode(e)
		if err := writeEventFile(eventsDir, name, payload); err != nil {
			return err
		}
	}

	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("queue: begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, e := range events {
		switch e.Kind {
		case types.KindRegistration:
			reg := e.Registration
			if err := addURLsTx(ctx, tx, reg.HandlerName, []string{reg.URL}, reg.Overwrite); err != nil {
				return err
			}
		case types.KindCollection:
			coll := e.Collection
			if err := updateSourcesTx(ctx, tx, coll.HandlerName, []string{coll.URL}, coll.Status); err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("queue: commit integrate_events: %w", err)
	}
	return nil
}

func writeEventFile(dir, name string, payload []byte) error {
	path := filepath.Join(dir, name)
	if _, err := os.Stat(path); err == nil {
		return nil // same content hashes to the same name; already written
	}
	tmp, err := os.CreateTemp(dir, ".tmp-event-*")
	if err != nil {
		return fmt.Errorf("queue: create temp event file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("queue: write event file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("queue: close temp event file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("queue: rename event file: %w", err)
	}
	return nil
}
