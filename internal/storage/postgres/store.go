package postgres

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"whaleScope/internal/storage"
)

var schema = []string{`
	CREATE TABLE IF NOT EXISTS whale_documents (
		collection TEXT NOT NULL,
		doc_key TEXT NOT NULL,
		doc JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (collection, doc_key)
	)`, `
	CREATE TABLE IF NOT EXISTS whale_kv (
		collection TEXT NOT NULL,
		key TEXT NOT NULL,
		value JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (collection, key)
	)`,
}

// Store is the Postgres remote store. Documents live in JSONB columns keyed
// by collection and the joined unique-key values.
type Store struct {
	pool          *pgxpool.Pool
	checkInterval time.Duration
	pingTimeout  time.Duration
	logger        *zap.Logger
	now           func() time.Time
	ping          func(ctx context.Context) error
	ensure        func(ctx context.Context) error

	mu        sync.Mutex
	up        bool
	checkedAt time.Time
}

var _ storage.Remote = (*Store)(nil)

// NewStore creates the pool without connecting; the first Available call
// pings the server.
func NewStore(ctx context.Context, dsn string, checkInterval time.Duration, logger *zap.Logger) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if checkInterval <= 0 {
		checkInterval = 30 * time.Second
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	s := &Store{
		pool:          pool,
		checkInterval: checkInterval,
		pingTimeout:  5 * time.Second,
		logger:        logger,
		now:           time.Now,
		ping:          pool.Ping,
	}
	s.ensure = s.createTables
	return s, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the document and kv tables. Available also runs it
// whenever the store comes up.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if err := s.createTables(ctx); err != nil {
		s.markDown(err)
		return err
	}
	return nil
}

func (s *Store) createTables(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// Available returns the cached verdict and pings again at most once per
// check interval. Coming up requires the schema to be in place.
func (s *Store) Available(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if !s.checkedAt.IsZero() && now.Sub(s.checkedAt) < s.checkInterval {
		return s.up
	}

	pingCtx, cancel := context.WithTimeout(ctx, s.pingTimeout)
	defer cancel()
	err := s.ping(pingCtx)
	if err == nil && !s.up {
		err = s.ensure(pingCtx)
	}
	was := s.up
	s.up = err == nil
	s.checkedAt = now

	switch {
	case s.up && !was:
		s.logger.Info("remote store connected")
	case !s.up:
		s.logger.Warn("remote store unavailable", zap.Duration("retry_in", s.checkInterval), zap.Error(err))
	}
	return s.up
}

// markDown forces the next ping to wait a full interval.
func (s *Store) markDown(err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.up {
		s.logger.Warn("remote store marked down", zap.Error(err))
	}
	s.up = false
	s.checkedAt = s.now()
}

// UpsertMany writes docs in one batch, replacing existing documents with the
// same unique-key values.
func (s *Store) UpsertMany(ctx context.Context, collection string, docs []storage.Document, uniqueKeys []string) error {
	if len(docs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, doc := range docs {
		key, err := storage.DocKey(doc, uniqueKeys)
		if err != nil {
			return fmt.Errorf("upsert %s: %w", collection, err)
		}
		body, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("upsert %s: marshal %s: %w", collection, key, err)
		}
		batch.Queue(`
			INSERT INTO whale_documents (collection, doc_key, doc, updated_at)
			VALUES ($1, $2, $3::jsonb, now())
			ON CONFLICT (collection, doc_key)
			DO UPDATE SET doc = EXCLUDED.doc, updated_at = now()
		`, collection, key, string(body))
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range docs {
		if _, err := br.Exec(); err != nil {
			s.markDown(err)
			return fmt.Errorf("upsert %s: %w", collection, err)
		}
	}
	return nil
}

// FindAll returns documents of collection ordered by a top-level field.
func (s *Store) FindAll(ctx context.Context, collection string, q storage.FindQuery) ([]storage.Document, error) {
	sql, args := findQuery(collection, q)
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		s.markDown(err)
		return nil, fmt.Errorf("find %s: %w", collection, err)
	}
	defer rows.Close()

	var out []storage.Document
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("find %s: %w", collection, err)
		}
		doc, err := decodeDocument(raw)
		if err != nil {
			return nil, fmt.Errorf("find %s: %w", collection, err)
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		s.markDown(err)
		return nil, fmt.Errorf("find %s: %w", collection, err)
	}
	return out, nil
}

func (s *Store) GetKV(ctx context.Context, collection, key string) (storage.Document, bool, error) {
	var raw []byte
	row := s.pool.QueryRow(ctx, `SELECT value FROM whale_kv WHERE collection=$1 AND key=$2`, collection, key)
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		s.markDown(err)
		return nil, false, fmt.Errorf("get %s/%s: %w", collection, key, err)
	}
	doc, err := decodeDocument(raw)
	if err != nil {
		return nil, false, fmt.Errorf("get %s/%s: %w", collection, key, err)
	}
	return doc, true, nil
}

func (s *Store) SetKV(ctx context.Context, collection, key string, value storage.Document) error {
	body, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("set %s/%s: %w", collection, key, err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO whale_kv (collection, key, value, updated_at)
		VALUES ($1, $2, $3::jsonb, now())
		ON CONFLICT (collection, key) DO UPDATE
		SET value = EXCLUDED.value, updated_at = now()
	`, collection, key, string(body))
	if err != nil {
		s.markDown(err)
		return fmt.Errorf("set %s/%s: %w", collection, key, err)
	}
	return nil
}

// findQuery orders by the JSONB value of the sort field, so numbers compare
// numerically and RFC 3339 strings chronologically.
func findQuery(collection string, q storage.FindQuery) (string, []any) {
	sql := `SELECT doc FROM whale_documents WHERE collection=$1`
	args := []any{collection}
	if q.SortField != "" {
		args = append(args, q.SortField)
		dir := "DESC"
		if q.Ascending {
			dir = "ASC"
		}
		sql += fmt.Sprintf(` ORDER BY doc -> $%d %s, doc_key %s`, len(args), dir, dir)
	}
	if q.Limit > 0 {
		args = append(args, q.Limit)
		sql += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	return sql, args
}

func decodeDocument(raw []byte) (storage.Document, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc storage.Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}
