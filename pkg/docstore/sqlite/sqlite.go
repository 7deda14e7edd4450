// Package sqlite stores submissions as JSON documents in an embedded SQLite
// database. Insertion order is the rowid order.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	_ "modernc.org/sqlite"

	"redditcrawler/pkg/checkpoint"
	"redditcrawler/pkg/docstore"
	"redditcrawler/pkg/docstore/schema"
	"redditcrawler/pkg/logger"
	"redditcrawler/pkg/pushshift"
)

// scanPageSize bounds how many rows Scan holds between callbacks
const scanPageSize = 500

// Store implements docstore.Store on SQLite
type Store struct {
	db     *sql.DB
	logger logger.Logger
}

var _ docstore.Store = (*Store)(nil)

// New opens (creating if needed) the database at dbPath
func New(dbPath string, log logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.NewNopLogger()
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, &docstore.StoreError{Op: "open", Err: err}
	}
	// one writer; Scan never keeps rows open across callbacks
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, &docstore.StoreError{Op: "enable_wal", Err: err}
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, &docstore.StoreError{Op: "busy_timeout", Err: err}
	}

	return &Store{db: db, logger: logger.ForComponent(log, "sqlite")}, nil
}

// RunMigrations runs all pending database migrations
func (s *Store) RunMigrations(ctx context.Context) error {
	runner, err := schema.NewMigrationRunner(s.db, schema.SQLite)
	if err != nil {
		return &docstore.StoreError{Op: "create_migration_runner", Err: err}
	}
	applied, err := runner.Run(ctx)
	if err != nil {
		return &docstore.StoreError{Op: "run_migrations", Err: err}
	}
	if applied > 0 {
		s.logger.InfoWithFields("applied migrations", map[string]interface{}{"count": applied})
	}
	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return &docstore.StoreError{Op: "close", Err: err}
	}
	return nil
}

// UpsertSubmissions saves or replaces submissions in one transaction
func (s *Store) UpsertSubmissions(ctx context.Context, subreddit string, subs []pushshift.Submission) error {
	if len(subs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &docstore.StoreError{Op: "begin_transaction", Err: err}
	}
	defer tx.Rollback()

	query := `
		INSERT INTO submissions (
			collection, id, created_utc, num_comments, comments_scrapped, doc, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (collection, id) DO UPDATE SET
			created_utc = excluded.created_utc,
			num_comments = excluded.num_comments,
			comments_scrapped = excluded.comments_scrapped,
			doc = excluded.doc,
			updated_at = CURRENT_TIMESTAMP
	`
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return &docstore.StoreError{Op: "prepare_statement", Err: err}
	}
	defer stmt.Close()

	collection := docstore.CollectionName(subreddit)
	for _, sub := range subs {
		doc, err := json.Marshal(sub)
		if err != nil {
			return &docstore.StoreError{Op: "marshal_submission", Err: err}
		}
		if _, err := stmt.ExecContext(ctx,
			collection, sub.ID, sub.CreatedUTC, sub.NumComments, sub.CommentsScrapped, string(doc),
		); err != nil {
			return &docstore.StoreError{Op: "upsert_submission", Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &docstore.StoreError{Op: "commit_transaction", Err: err}
	}
	return nil
}

// Scan walks the collection by rowid in pages of scanPageSize
func (s *Store) Scan(ctx context.Context, subreddit string, skip int, fn func(pushshift.Submission) error) error {
	collection := docstore.CollectionName(subreddit)

	var lastSeq int64
	if skip > 0 {
		err := s.db.QueryRowContext(ctx,
			"SELECT seq FROM submissions WHERE collection = ? ORDER BY seq LIMIT 1 OFFSET ?",
			collection, skip-1,
		).Scan(&lastSeq)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return &docstore.StoreError{Op: "scan_skip", Err: err}
		}
	}

	for {
		page, err := s.scanPage(ctx, collection, lastSeq)
		if err != nil {
			return err
		}
		if len(page) == 0 {
			return nil
		}
		for _, row := range page {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := fn(row.sub); err != nil {
				if errors.Is(err, docstore.ErrStopScan) {
					return nil
				}
				return err
			}
			lastSeq = row.seq
		}
	}
}

type scannedRow struct {
	seq int64
	sub pushshift.Submission
}

func (s *Store) scanPage(ctx context.Context, collection string, afterSeq int64) ([]scannedRow, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT seq, doc FROM submissions WHERE collection = ? AND seq > ? ORDER BY seq LIMIT ?",
		collection, afterSeq, scanPageSize,
	)
	if err != nil {
		return nil, &docstore.StoreError{Op: "scan_submissions", Err: err}
	}
	defer rows.Close()

	var page []scannedRow
	for rows.Next() {
		var row scannedRow
		var doc string
		if err := rows.Scan(&row.seq, &doc); err != nil {
			return nil, &docstore.StoreError{Op: "scan_submission", Err: err}
		}
		if err := json.Unmarshal([]byte(doc), &row.sub); err != nil {
			return nil, &docstore.StoreError{Op: "decode_submission", Err: err}
		}
		page = append(page, row)
	}
	if err := rows.Err(); err != nil {
		return nil, &docstore.StoreError{Op: "scan_submissions", Err: err}
	}
	return page, nil
}

// Count returns the number of stored submissions of subreddit
func (s *Store) Count(ctx context.Context, subreddit string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM submissions WHERE collection = ?", docstore.CollectionName(subreddit),
	).Scan(&n)
	if err != nil {
		return 0, &docstore.StoreError{Op: "count_submissions", Err: err}
	}
	return n, nil
}

// Load returns the crawl state of subreddit, NotStarted when absent
func (s *Store) Load(ctx context.Context, subreddit string) (checkpoint.State, error) {
	var status string
	var cursor int64
	err := s.db.QueryRowContext(ctx,
		"SELECT status, cursor_utc FROM crawl_state WHERE subreddit = ?", subreddit,
	).Scan(&status, &cursor)
	if errors.Is(err, sql.ErrNoRows) {
		return checkpoint.NotStarted(), nil
	}
	if err != nil {
		return checkpoint.State{}, &docstore.StoreError{Op: "load_state", Err: err}
	}
	state := checkpoint.State{Status: checkpoint.Status(status), Cursor: cursor}
	if err := state.Validate(); err != nil {
		return checkpoint.State{}, &docstore.StoreError{Op: "load_state", Err: err}
	}
	return state, nil
}

// Save upserts the single crawl_state row of subreddit
func (s *Store) Save(ctx context.Context, subreddit string, state checkpoint.State) error {
	if err := state.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO crawl_state (subreddit, status, cursor_utc, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (subreddit) DO UPDATE SET
			status = excluded.status,
			cursor_utc = excluded.cursor_utc,
			updated_at = excluded.updated_at
	`, subreddit, string(state.Status), state.Cursor, time.Now().UTC().Unix())
	if err != nil {
		return &docstore.StoreError{Op: "save_state", Err: err}
	}
	return nil
}

// List returns every stored crawl state ordered by subreddit
func (s *Store) List(ctx context.Context) ([]checkpoint.Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT subreddit, status, cursor_utc, updated_at FROM crawl_state ORDER BY subreddit",
	)
	if err != nil {
		return nil, &docstore.StoreError{Op: "list_state", Err: err}
	}
	defer rows.Close()

	var entries []checkpoint.Entry
	for rows.Next() {
		var e checkpoint.Entry
		var status string
		var updated int64
		if err := rows.Scan(&e.Subreddit, &status, &e.State.Cursor, &updated); err != nil {
			return nil, &docstore.StoreError{Op: "list_state", Err: err}
		}
		e.State.Status = checkpoint.Status(status)
		e.UpdatedAt = time.Unix(updated, 0).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, &docstore.StoreError{Op: "list_state", Err: err}
	}
	return entries, nil
}

// Delete removes the crawl state of subreddit
func (s *Store) Delete(ctx context.Context, subreddit string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM crawl_state WHERE subreddit = ?", subreddit); err != nil {
		return &docstore.StoreError{Op: "delete_state", Err: err}
	}
	return nil
}
