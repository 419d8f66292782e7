// Package vector stores task embeddings in PostgreSQL via pgvector so index
// writes can share the task transaction.
package vector

import (
	"context"
	"fmt"
	"time"

	"github.com/dia/backend/internal/core/ports"
	"github.com/dia/backend/internal/domain"
	"github.com/dia/backend/internal/infrastructure/db"
	"github.com/dia/backend/internal/infrastructure/logger"
	"github.com/pgvector/pgvector-go"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

type pgvectorIndex struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPgvectorIndex(database *gorm.DB, log *logger.Logger) ports.SemanticIndex {
	return &pgvectorIndex{db: database, log: log}
}

// Migrate creates the extension, the embeddings table and its ANN index.
func Migrate(database *gorm.DB, dimensions int) error {
	if dimensions <= 0 {
		return fmt.Errorf("vector: invalid dimensions %d", dimensions)
	}
	if err := database.Exec(`CREATE EXTENSION IF NOT EXISTS vector`).Error; err != nil {
		return errors.Wrap(err, "failed to create vector extension")
	}
	if err := database.Exec(fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS task_embeddings (
			task_id    VARCHAR(36) PRIMARY KEY,
			owner_id   VARCHAR(36) NOT NULL,
			embedding  vector(%d) NOT NULL,
			payload    JSONB,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, dimensions)).Error; err != nil {
		return errors.Wrap(err, "failed to create task_embeddings")
	}
	if err := database.Exec(`
		CREATE INDEX IF NOT EXISTS idx_task_embeddings_owner
		ON task_embeddings (owner_id)
	`).Error; err != nil {
		return errors.Wrap(err, "failed to create owner index")
	}
	if err := database.Exec(`
		CREATE INDEX IF NOT EXISTS idx_task_embeddings_hnsw
		ON task_embeddings USING hnsw (embedding vector_cosine_ops)
	`).Error; err != nil {
		return errors.Wrap(err, "failed to create hnsw index")
	}
	return nil
}

func (s *pgvectorIndex) Upsert(ctx context.Context, entry ports.IndexEntry) error {
	stmt := `
		INSERT INTO task_embeddings (task_id, owner_id, embedding, payload, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (task_id)
		DO UPDATE SET
			owner_id = EXCLUDED.owner_id,
			embedding = EXCLUDED.embedding,
			payload = EXCLUDED.payload,
			updated_at = EXCLUDED.updated_at
	`
	err := db.Conn(ctx, s.db).Exec(stmt,
		entry.TaskID,
		entry.OwnerID,
		pgvector.NewVector(entry.Vector),
		entry.Payload,
		time.Now().UTC(),
	).Error
	if err != nil {
		s.log.Errorw("vector_index_upsert_failed", "task_id", entry.TaskID, "error", err)
		return errors.Wrap(err, "failed to upsert task embedding")
	}
	s.log.Debugw("vector_index_upsert_ok", "task_id", entry.TaskID)
	return nil
}

func (s *pgvectorIndex) Delete(ctx context.Context, taskID string) error {
	if err := db.Conn(ctx, s.db).Exec(`DELETE FROM task_embeddings WHERE task_id = ?`, taskID).Error; err != nil {
		s.log.Errorw("vector_index_delete_failed", "task_id", taskID, "error", err)
		return errors.Wrap(err, "failed to delete task embedding")
	}
	return nil
}

type searchRow struct {
	TaskID  string
	Payload domain.JSONB
	Score   float64
}

func (s *pgvectorIndex) Search(ctx context.Context, ownerID string, vec []float32, topK int) ([]ports.SearchHit, error) {
	if topK <= 0 {
		topK = 5
	}
	query := `
		SELECT task_id, payload, 1 - (embedding <=> ?) AS score
		FROM task_embeddings
		WHERE owner_id = ?
		ORDER BY embedding <=> ?
		LIMIT ?
	`
	v := pgvector.NewVector(vec)
	var rows []searchRow
	if err := db.Conn(ctx, s.db).Raw(query, v, ownerID, v, topK).Scan(&rows).Error; err != nil {
		s.log.Errorw("vector_index_search_failed", "owner_id", ownerID, "error", err)
		return nil, errors.Wrap(err, "failed to search task embeddings")
	}

	hits := make([]ports.SearchHit, 0, len(rows))
	for _, r := range rows {
		hits = append(hits, ports.SearchHit{TaskID: r.TaskID, Score: r.Score, Payload: r.Payload})
	}
	return hits, nil
}
