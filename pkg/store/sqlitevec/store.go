// Package sqlitevec is the durable memory.Store engine. Records live in a
// SQLite table, the text index is an FTS5 table and the vector index is a
// sqlite-vec vec0 table; one SQL transaction covers all three.
//
// FTS5 requires building with the sqlite_fts5 tag.
package sqlitevec

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	"github.com/harun/synmem/pkg/memory"
	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

func init() {
	sqlite_vec.Auto()
}

// EngineName is reported in Stats.
const EngineName = "sqlite-vec"

// maxKeywordTerms caps the OR-expansion of a full-text query.
const maxKeywordTerms = 32

// Config configures the engine.
type Config struct {
	// Path of the database file; ":memory:" for a private in-memory database.
	Path        string
	Dimension   int
	Model       string
	BusyTimeout time.Duration
	// SkipMigrations leaves the schema untouched; used when the caller
	// manages the database.
	SkipMigrations bool
	Logger         zerolog.Logger
}

// Store implements memory.Store on SQLite.
type Store struct {
	db        *sql.DB
	path      string
	dimension int
	model     string
	logger    zerolog.Logger
	closed    atomic.Bool
}

var _ memory.Store = (*Store)(nil)

// Open opens or creates the database at cfg.Path.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	inMemory := cfg.Path == ":memory:"
	if !inMemory {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d&_txlock=immediate&_foreign_keys=on",
		cfg.Path, cfg.BusyTimeout.Milliseconds())
	if !inMemory {
		dsn += "&_journal_mode=WAL&_synchronous=NORMAL"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if inMemory {
		// Every connection to ":memory:" is a separate database.
		db.SetMaxOpenConns(1)
	}

	s, err := New(ctx, db, cfg)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an already opened database.
func New(ctx context.Context, db *sql.DB, cfg Config) (*Store, error) {
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive, got %d", cfg.Dimension)
	}
	s := &Store{
		db:        db,
		path:      cfg.Path,
		dimension: cfg.Dimension,
		model:     cfg.Model,
		logger:    cfg.Logger.With().Str("component", "sqlitevec").Logger(),
	}
	if !cfg.SkipMigrations {
		if err := s.migrate(ctx); err != nil {
			return nil, err
		}
	}

	s.logger.Debug().
		Str("path", cfg.Path).
		Int("dimension", cfg.Dimension).
		Str("model", cfg.Model).
		Msg("Memory store opened")
	return s, nil
}

// DB exposes the underlying handle for maintenance tooling.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Dimension() int { return s.dimension }

const memoryColumns = `m.id, m.content, m.source, m.title, m.content_type, m.tags, m.metadata, m.created_at, m.updated_at`

const upsertMemory = `
INSERT INTO memories (id, content, source, title, content_type, tags, metadata, created_at, updated_at, seq)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM memories))
ON CONFLICT(id) DO UPDATE SET
	content = excluded.content,
	source = excluded.source,
	title = excluded.title,
	content_type = excluded.content_type,
	tags = excluded.tags,
	metadata = excluded.metadata,
	updated_at = excluded.updated_at,
	seq = excluded.seq
RETURNING created_at`

// StoreMemory writes the record row, the FTS row and the vector row in one
// transaction.
func (s *Store) StoreMemory(ctx context.Context, m *memory.Memory, embedding []float32) error {
	if s.closed.Load() {
		return memory.ErrClosed
	}
	if err := memory.CheckDimension(s.dimension, embedding); err != nil {
		return err
	}
	p, err := m.Prepared(time.Now())
	if err != nil {
		return err
	}

	blob, err := sqlite_vec.SerializeFloat32(embedding)
	if err != nil {
		return fmt.Errorf("failed to serialize embedding: %w", err)
	}
	tags, err := encodeTags(p.Tags)
	if err != nil {
		return err
	}
	metadata, err := encodeMetadata(p.Metadata)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify("begin store", err)
	}

	var createdAt int64
	err = tx.QueryRowContext(ctx, upsertMemory,
		p.ID, p.Content, p.Source, p.Title, p.ContentType, tags, metadata,
		p.CreatedAt.UnixNano(), p.UpdatedAt.UnixNano(),
	).Scan(&createdAt)
	if err != nil {
		return s.abort(tx, "write record", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM memories_fts WHERE memory_id = ?`, p.ID); err != nil {
		return s.abort(tx, "clear text index", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO memories_fts (memory_id, title, content, tags) VALUES (?, ?, ?, ?)`,
		p.ID, p.Title, p.Content, strings.Join(p.Tags, " "),
	); err != nil {
		return s.abort(tx, "write text index", err)
	}

	// vec0 does not support upserts.
	if _, err := tx.ExecContext(ctx, `DELETE FROM memory_vectors WHERE memory_id = ?`, p.ID); err != nil {
		return s.abort(tx, "clear vector index", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO memory_vectors (memory_id, embedding) VALUES (?, ?)`, p.ID, blob,
	); err != nil {
		return s.abort(tx, "write vector index", err)
	}

	if err := tx.Commit(); err != nil {
		return s.abort(tx, "commit store", err)
	}

	p.CreatedAt = fromNanos(createdAt)
	m.Adopt(p)
	return nil
}

// DeleteMemory removes id from all three tables in one transaction.
func (s *Store) DeleteMemory(ctx context.Context, id string) (bool, error) {
	if s.closed.Load() {
		return false, memory.ErrClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, classify("begin delete", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id)
	if err != nil {
		return false, s.abort(tx, "delete record", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, s.abort(tx, "delete record", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM memories_fts WHERE memory_id = ?`, id); err != nil {
		return false, s.abort(tx, "delete from text index", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM memory_vectors WHERE memory_id = ?`, id); err != nil {
		return false, s.abort(tx, "delete from vector index", err)
	}
	if err := tx.Commit(); err != nil {
		return false, s.abort(tx, "commit delete", err)
	}
	return affected > 0, nil
}

func (s *Store) GetMemory(ctx context.Context, id string) (*memory.Memory, error) {
	if s.closed.Load() {
		return nil, memory.ErrClosed
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+memoryColumns+` FROM memories m WHERE m.id = ?`, id)
	m, err := scanMemory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", memory.ErrNotFound, id)
	}
	if err != nil {
		return nil, classify("get memory", err)
	}
	return m, nil
}

func (s *Store) GetRecent(ctx context.Context, limit int) ([]memory.Memory, error) {
	if s.closed.Load() {
		return nil, memory.ErrClosed
	}
	if limit <= 0 {
		return []memory.Memory{}, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+memoryColumns+` FROM memories m ORDER BY m.seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, classify("list recent", err)
	}
	defer rows.Close()

	out := make([]memory.Memory, 0, limit)
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, classify("scan recent", err)
		}
		out = append(out, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list recent", err)
	}
	return out, nil
}

// FullTextSearch ranks with bm25, negated so that higher is better. Title
// matches weigh double, tag matches one and a half.
func (s *Store) FullTextSearch(ctx context.Context, query string, limit int) ([]memory.ScoredMemory, error) {
	if s.closed.Load() {
		return nil, memory.ErrClosed
	}
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: empty query", memory.ErrInvalidQuery)
	}
	match := buildMatchQuery(query)
	if match == "" || limit <= 0 {
		return []memory.ScoredMemory{}, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+memoryColumns+`, -bm25(memories_fts, 0.0, 2.0, 1.0, 1.5) AS score
		FROM memories_fts
		JOIN memories m ON m.id = memories_fts.memory_id
		WHERE memories_fts MATCH ?
		ORDER BY score DESC, m.seq DESC
		LIMIT ?`, match, limit)
	if err != nil {
		return nil, classify("full text search", err)
	}
	defer rows.Close()

	return scanScored(rows, func(v float64) float64 { return v })
}

// VectorSearch scans the vec0 table with cosine distance; the score is
// 1 - distance, which is the cosine similarity.
func (s *Store) VectorSearch(ctx context.Context, embedding []float32, limit int) ([]memory.ScoredMemory, error) {
	if s.closed.Load() {
		return nil, memory.ErrClosed
	}
	if err := memory.CheckDimension(s.dimension, embedding); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return []memory.ScoredMemory{}, nil
	}

	blob, err := sqlite_vec.SerializeFloat32(embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize query embedding: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+memoryColumns+`, vec_distance_cosine(v.embedding, ?) AS distance
		FROM memory_vectors v
		JOIN memories m ON m.id = v.memory_id
		ORDER BY distance ASC, m.seq DESC
		LIMIT ?`, blob, limit)
	if err != nil {
		return nil, classify("vector search", err)
	}
	defer rows.Close()

	return scanScored(rows, func(distance float64) float64 {
		sim := 1 - distance
		return math.Max(-1, math.Min(1, sim))
	})
}

func (s *Store) Stats(ctx context.Context) (memory.Stats, error) {
	stats := memory.Stats{Engine: EngineName, Dimension: s.dimension, Model: s.model, Path: s.path}
	if s.closed.Load() {
		return stats, memory.ErrClosed
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories`).Scan(&stats.Count); err != nil {
		return stats, classify("count memories", err)
	}
	return stats, nil
}

// Compact merges FTS5 segments and checkpoints the WAL.
func (s *Store) Compact(ctx context.Context) error {
	if s.closed.Load() {
		return memory.ErrClosed
	}
	stmts := []string{
		`INSERT INTO memories_fts(memories_fts) VALUES('optimize')`,
		`PRAGMA optimize`,
	}
	if s.path != ":memory:" {
		stmts = append(stmts, `PRAGMA wal_checkpoint(TRUNCATE)`)
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return classify("compact", err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.db.Close()
}

// abort rolls tx back after a failed step. A rollback failure leaves the
// indices in an unknown state and is always reported as ErrInconsistent.
func (s *Store) abort(tx *sql.Tx, step string, cause error) error {
	if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
		s.logger.Error().
			Err(rbErr).
			AnErr("cause", cause).
			Str("step", step).
			Msg("Rollback failed after partial dual-index write")
		return fmt.Errorf("%w: %s failed and rollback failed: %v (cause: %v)", memory.ErrInconsistent, step, rbErr, cause)
	}
	if errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", step, cause)
	}
	if isTransient(cause) {
		return fmt.Errorf("%w: %s: %w", memory.ErrIOFailure, step, cause)
	}
	return fmt.Errorf("%w: %s: %w", memory.ErrInconsistent, step, cause)
}

// classify tags busy, locked and I/O errors as transient.
func classify(op string, err error) error {
	if isTransient(err) {
		return fmt.Errorf("%w: %s: %w", memory.ErrIOFailure, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isTransient(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code {
	case sqlite3.ErrBusy, sqlite3.ErrLocked, sqlite3.ErrIoErr:
		return true
	}
	return false
}

// buildMatchQuery quotes every term so that FTS5 operators in user text are
// treated as words, and ORs the terms for recall.
func buildMatchQuery(query string) string {
	seen := make(map[string]bool)
	var terms []string
	for _, tok := range memory.Tokenize(query) {
		if seen[tok] {
			continue
		}
		seen[tok] = true
		terms = append(terms, `"`+tok+`"`)
		if len(terms) == maxKeywordTerms {
			break
		}
	}
	return strings.Join(terms, " OR ")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMemory(row rowScanner, extra ...any) (*memory.Memory, error) {
	var (
		m                    memory.Memory
		tags, metadata       string
		createdAt, updatedAt int64
	)
	dest := append([]any{
		&m.ID, &m.Content, &m.Source, &m.Title, &m.ContentType,
		&tags, &metadata, &createdAt, &updatedAt,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tags), &m.Tags); err != nil {
		return nil, fmt.Errorf("decode tags of %s: %w", m.ID, err)
	}
	if err := json.Unmarshal([]byte(metadata), &m.Metadata); err != nil {
		return nil, fmt.Errorf("decode metadata of %s: %w", m.ID, err)
	}
	if len(m.Tags) == 0 {
		m.Tags = nil
	}
	if len(m.Metadata) == 0 {
		m.Metadata = nil
	}
	m.CreatedAt = fromNanos(createdAt)
	m.UpdatedAt = fromNanos(updatedAt)
	return &m, nil
}

func scanScored(rows *sql.Rows, score func(float64) float64) ([]memory.ScoredMemory, error) {
	out := []memory.ScoredMemory{}
	for rows.Next() {
		var raw sql.NullFloat64
		m, err := scanMemory(rows, &raw)
		if err != nil {
			return nil, classify("scan search result", err)
		}
		v := 0.0
		if raw.Valid && !math.IsNaN(raw.Float64) {
			v = score(raw.Float64)
		}
		out = append(out, memory.ScoredMemory{Memory: *m, Score: v})
	}
	if err := rows.Err(); err != nil {
		return nil, classify("read search results", err)
	}
	return out, nil
}

func encodeTags(tags []string) (string, error) {
	if len(tags) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("encode tags: %w", err)
	}
	return string(b), nil
}

func encodeMetadata(md map[string]string) (string, error) {
	if len(md) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(md)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	return string(b), nil
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
