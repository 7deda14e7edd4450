// Package postgres stores submissions as JSONB documents in PostgreSQL.
// Insertion order is the seq column.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	_ "github.com/lib/pq"

	"redditcrawler/pkg/checkpoint"
	"redditcrawler/pkg/docstore"
	"redditcrawler/pkg/docstore/schema"
	"redditcrawler/pkg/logger"
	"redditcrawler/pkg/pushshift"
)

const scanPageSize = 500

// Store implements docstore.Store on PostgreSQL
type Store struct {
	db     *sql.DB
	logger logger.Logger
}

var _ docstore.Store = (*Store)(nil)

// PoolConfig configures the PostgreSQL connection pool
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DefaultPoolConfig returns a small pool; the crawler is sequential
func DefaultPoolConfig() *PoolConfig {
	return &PoolConfig{
		MaxOpenConns:    4,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 10 * time.Minute,
	}
}

// New creates a store with the default pool configuration
func New(connString string, log logger.Logger) (*Store, error) {
	return NewWithPool(connString, DefaultPoolConfig(), log)
}

// NewWithPool creates a store with a custom pool configuration
func NewWithPool(connString string, pool *PoolConfig, log logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.NewNopLogger()
	}
	db, err := sql.Open("postgres", connString)
	if err != nil {
		return nil, &docstore.StoreError{Op: "open", Err: err}
	}

	if pool != nil {
		db.SetMaxOpenConns(pool.MaxOpenConns)
		db.SetMaxIdleConns(pool.MaxIdleConns)
		db.SetConnMaxLifetime(pool.ConnMaxLifetime)
		db.SetConnMaxIdleTime(pool.ConnMaxIdleTime)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, &docstore.StoreError{Op: "ping", Err: err}
	}

	return &Store{db: db, logger: logger.ForComponent(log, "postgres")}, nil
}

// RunMigrations runs all pending database migrations
func (s *Store) RunMigrations(ctx context.Context) error {
	runner, err := schema.NewMigrationRunner(s.db, schema.Postgres)
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

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO submissions (
			collection, id, created_utc, num_comments, comments_scrapped, doc, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (collection, id) DO UPDATE SET
			created_utc = EXCLUDED.created_utc,
			num_comments = EXCLUDED.num_comments,
			comments_scrapped = EXCLUDED.comments_scrapped,
			doc = EXCLUDED.doc,
			updated_at = NOW()
	`)
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

// Scan walks the collection by seq in pages of scanPageSize
func (s *Store) Scan(ctx context.Context, subreddit string, skip int, fn func(pushshift.Submission) error) error {
	collection := docstore.CollectionName(subreddit)

	var lastSeq int64
	if skip > 0 {
		err := s.db.QueryRowContext(ctx,
			"SELECT seq FROM submissions WHERE collection = $1 ORDER BY seq LIMIT 1 OFFSET $2",
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
		rows, err := s.db.QueryContext(ctx,
			"SELECT seq, doc FROM submissions WHERE collection = $1 AND seq > $2 ORDER BY seq LIMIT $3",
			collection, lastSeq, scanPageSize,
		)
		if err != nil {
			return &docstore.StoreError{Op: "scan_submissions", Err: err}
		}

		var seqs []int64
		var page []pushshift.Submission
		for rows.Next() {
			var seq int64
			var doc []byte
			if err := rows.Scan(&seq, &doc); err != nil {
				rows.Close()
				return &docstore.StoreError{Op: "scan_submission", Err: err}
			}
			var sub pushshift.Submission
			if err := json.Unmarshal(doc, &sub); err != nil {
				rows.Close()
				return &docstore.StoreError{Op: "decode_submission", Err: err}
			}
			seqs = append(seqs, seq)
			page = append(page, sub)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return &docstore.StoreError{Op: "scan_submissions", Err: err}
		}
		if len(page) == 0 {
			return nil
		}

		for i, sub := range page {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := fn(sub); err != nil {
				if errors.Is(err, docstore.ErrStopScan) {
					return nil
				}
				return err
			}
			lastSeq = seqs[i]
		}
	}
}

func (s *Store) Count(ctx context.Context, subreddit string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM submissions WHERE collection = $1", docstore.CollectionName(subreddit),
	).Scan(&n)
	if err != nil {
		return 0, &docstore.StoreError{Op: "count_submissions", Err: err}
	}
	return n, nil
}

func (s *Store) Load(ctx context.Context, subreddit string) (checkpoint.State, error) {
	var status string
	var cursor int64
	err := s.db.QueryRowContext(ctx,
		"SELECT status, cursor_utc FROM crawl_state WHERE subreddit = $1", subreddit,
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

func (s *Store) Save(ctx context.Context, subreddit string, state checkpoint.State) error {
	if err := state.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO crawl_state (subreddit, status, cursor_utc, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (subreddit) DO UPDATE SET
			status = EXCLUDED.status,
			cursor_utc = EXCLUDED.cursor_utc,
			updated_at = NOW()
	`, subreddit, string(state.Status), state.Cursor)
	if err != nil {
		return &docstore.StoreError{Op: "save_state", Err: err}
	}
	return nil
}

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
		if err := rows.Scan(&e.Subreddit, &status, &e.State.Cursor, &e.UpdatedAt); err != nil {
			return nil, &docstore.StoreError{Op: "list_state", Err: err}
		}
		e.State.Status = checkpoint.Status(status)
		e.UpdatedAt = e.UpdatedAt.UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, &docstore.StoreError{Op: "list_state", Err: err}
	}
	return entries, nil
}

func (s *Store) Delete(ctx context.Context, subreddit string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM crawl_state WHERE subreddit = $1", subreddit); err != nil {
		return &docstore.StoreError{Op: "delete_state", Err: err}
	}
	return nil
}
