package sqlitevec

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/harun/synmem/pkg/memory"
)

const baseSchema = `
CREATE TABLE IF NOT EXISTS memories (
	id TEXT PRIMARY KEY,
	content TEXT NOT NULL,
	source TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	content_type TEXT NOT NULL DEFAULT '',
	tags TEXT NOT NULL DEFAULT '[]',
	metadata TEXT NOT NULL DEFAULT '{}',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	seq INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_memories_seq ON memories(seq);

CREATE VIRTUAL TABLE IF NOT EXISTS memories_fts USING fts5(
	memory_id UNINDEXED,
	title,
	content,
	tags,
	tokenize = 'porter unicode61'
);

CREATE TABLE IF NOT EXISTS store_meta (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

const vectorSchema = `
CREATE VIRTUAL TABLE IF NOT EXISTS memory_vectors USING vec0(
	memory_id TEXT PRIMARY KEY,
	embedding float[%d] distance_metric=cosine
)`

const (
	metaDimension = "embedding_dimension"
	metaModel     = "embedding_model"
)

// migrate creates the schema and pins the embedding generation. The vector
// table is created only after the stored dimension has been checked, since
// vec0 keeps the dimension it was created with.
func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, baseSchema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	if err := s.checkGeneration(ctx); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(vectorSchema, s.dimension)); err != nil {
		return fmt.Errorf("failed to create vector table: %w", err)
	}
	return nil
}

func (s *Store) checkGeneration(ctx context.Context) error {
	stored, ok, err := s.meta(ctx, metaDimension)
	if err != nil {
		return err
	}
	if ok {
		dim, err := strconv.Atoi(stored)
		if err != nil {
			return fmt.Errorf("corrupt %s marker %q: %w", metaDimension, stored, err)
		}
		if dim != s.dimension {
			return fmt.Errorf("database holds %d-dimensional embeddings; re-embed into a new database to use %d: %w",
				dim, s.dimension, &memory.DimensionMismatchError{Expected: dim, Actual: s.dimension})
		}
	} else if err := s.setMeta(ctx, metaDimension, strconv.Itoa(s.dimension)); err != nil {
		return err
	}

	if s.model == "" {
		return nil
	}
	storedModel, ok, err := s.meta(ctx, metaModel)
	if err != nil {
		return err
	}
	if ok && storedModel != s.model {
		s.logger.Warn().
			Str("stored_model", storedModel).
			Str("model", s.model).
			Msg("Embedding model changed with equal dimension; existing vectors keep their original model")
	}
	return s.setMeta(ctx, metaModel, s.model)
}

func (s *Store) meta(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM store_meta WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return value, true, nil
}

func (s *Store) setMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO store_meta (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}
