package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"sort"
	"sync"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"

	"FeedBot/internal/ports"
)

const insertBatchSize = 500

//go:embed schema.sql
var schemaSQL string

// PostgresStore mirrors seen-state into Postgres. Everything is loaded at
// open; Persist upserts only entries changed since the last successful call.
type PostgresStore struct {
	*seenState

	db      *sql.DB
	builder sq.StatementBuilderType

	persistMu sync.Mutex
}

var _ ports.SeenStore = (*PostgresStore)(nil)

// OpenPostgres connects with the lib/pq driver and verifies the connection.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// NewPostgresStore wires a sql.DB and loads the persisted state.
func NewPostgresStore(ctx context.Context, db *sql.DB) (*PostgresStore, error) {
	s := &PostgresStore{
		seenState: newSeenState(),
		db:        db,
		builder:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
	if err := s.reload(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// EnsureSchema creates the state tables when absent.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) reload(ctx context.Context) error {
	urls, err := s.loadURLs(ctx)
	if err != nil {
		return err
	}
	checkpoints, err := s.loadCheckpoints(ctx)
	if err != nil {
		return err
	}
	s.load(urls, checkpoints)
	return nil
}

func (s *PostgresStore) loadURLs(ctx context.Context) ([]string, error) {
	query, args, err := s.builder.Select("url").From("seen_urls").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build seen query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query seen urls: %w", err)
	}

	var urls []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan url: %w", err)
		}
		urls = append(urls, u)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("rows iteration: %w", rowsErr)
	}

	if closeErr := rows.Close(); closeErr != nil {
		return nil, fmt.Errorf("close rows: %w", closeErr)
	}

	return urls, nil
}

func (s *PostgresStore) loadCheckpoints(ctx context.Context) (map[string]int, error) {
	query, args, err := s.builder.Select("source_id", "total").From("source_checkpoints").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build checkpoint query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query checkpoints: %w", err)
	}

	result := make(map[string]int)
	for rows.Next() {
		var (
			id    string
			total int
		)
		if err := rows.Scan(&id, &total); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		result[id] = total
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("rows iteration: %w", rowsErr)
	}

	if closeErr := rows.Close(); closeErr != nil {
		return nil, fmt.Errorf("close rows: %w", closeErr)
	}

	return result, nil
}

// Persist upserts pending changes in one transaction. On failure the
// changes stay pending for the next call.
func (s *PostgresStore) Persist(ctx context.Context) error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	urls, checkpoints := s.dirty()
	if len(urls) == 0 && len(checkpoints) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin persist: %w", err)
	}

	if err := s.insertURLs(ctx, tx, urls); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := s.upsertCheckpoints(ctx, tx, checkpoints); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit persist: %w", err)
	}

	s.clean(urls, checkpoints)
	return nil
}

func (s *PostgresStore) insertURLs(ctx context.Context, tx *sql.Tx, urls []string) error {
	for start := 0; start < len(urls); start += insertBatchSize {
		end := min(start+insertBatchSize, len(urls))

		insert := s.builder.Insert("seen_urls").Columns("url")
		for _, u := range urls[start:end] {
			insert = insert.Values(u)
		}
		query, args, err := insert.Suffix("ON CONFLICT (url) DO NOTHING").ToSql()
		if err != nil {
			return fmt.Errorf("build seen insert: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert seen urls: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) upsertCheckpoints(ctx context.Context, tx *sql.Tx, checkpoints map[string]int) error {
	if len(checkpoints) == 0 {
		return nil
	}

	ids := make([]string, 0, len(checkpoints))
	for id := range checkpoints {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	insert := s.builder.Insert("source_checkpoints").Columns("source_id", "total", "updated_at")
	for _, id := range ids {
		insert = insert.Values(id, checkpoints[id], sq.Expr("NOW()"))
	}
	query, args, err := insert.
		Suffix("ON CONFLICT (source_id) DO UPDATE SET total = EXCLUDED.total, updated_at = EXCLUDED.updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build checkpoint upsert: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert checkpoints: %w", err)
	}
	return nil
}
