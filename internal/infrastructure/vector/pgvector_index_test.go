package vector

import (
	"context"
	"testing"

	"github.com/dia/backend/internal/core/ports"
	"github.com/dia/backend/internal/domain"
	"github.com/dia/backend/internal/infrastructure/logger"
	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func dryRunDB(t *testing.T) *gorm.DB {
	t.Helper()
	database, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  "host=localhost user=test dbname=test sslmode=disable",
		PreferSimpleProtocol: true,
	}), &gorm.Config{DryRun: true, DisableAutomaticPing: true})
	require.NoError(t, err)
	return database
}

func TestUpsertBindsVectorAndPayload(t *testing.T) {
	database := dryRunDB(t)
	var captured *gorm.Statement
	require.NoError(t, database.Callback().Raw().After("gorm:raw").Register("test:capture", func(d *gorm.DB) {
		captured = d.Statement
	}))

	idx := NewPgvectorIndex(database, logger.NewNop())
	err := idx.Upsert(context.Background(), ports.IndexEntry{
		TaskID:  "t1",
		OwnerID: "o1",
		Vector:  []float32{0.1, 0.2},
		Payload: domain.JSONB{"title": "Gym"},
	})
	require.NoError(t, err)
	require.NotNil(t, captured)

	assert.Contains(t, captured.SQL.String(), "ON CONFLICT (task_id)")
	require.Len(t, captured.Vars, 5)
	assert.Equal(t, "t1", captured.Vars[0])
	assert.Equal(t, "o1", captured.Vars[1])
	vec, ok := captured.Vars[2].(pgvector.Vector)
	require.True(t, ok)
	assert.Equal(t, []float32{0.1, 0.2}, vec.Slice())
}

func TestMigrateRejectsInvalidDimensions(t *testing.T) {
	assert.Error(t, Migrate(dryRunDB(t), 0))
}
