package roles

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/PYPE-AI-MAIN/whispey-sub003/internal/models"
)

type stubLookup struct {
	role string
	err  error
}

func (s stubLookup) ProjectRole(ctx context.Context, email, projectID string) (string, error) {
	return s.role, s.err
}

func TestResolveDegradesToDefault(t *testing.T) {
	ctx := context.Background()

	t.Run("lookup error", func(t *testing.T) {
		role := Resolve(ctx, stubLookup{err: errors.New("db down")}, "a@b.com", "p-1")
		assert.Equal(t, DefaultRole, role)
	})

	t.Run("empty role", func(t *testing.T) {
		role := Resolve(ctx, stubLookup{}, "a@b.com", "p-1")
		assert.Equal(t, DefaultRole, role)
	})

	t.Run("missing identity", func(t *testing.T) {
		assert.Equal(t, DefaultRole, Resolve(ctx, stubLookup{role: "admin"}, "", "p-1"))
		assert.Equal(t, DefaultRole, Resolve(ctx, stubLookup{role: "admin"}, "a@b.com", ""))
	})

	t.Run("resolved role passes through", func(t *testing.T) {
		role := Resolve(ctx, stubLookup{role: "admin"}, "a@b.com", "p-1")
		assert.Equal(t, "admin", role)
	})
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.ProjectMember{}))
	return db
}

func TestDBLookup(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.Create(&models.ProjectMember{
		ProjectID: "p-1",
		Email:     "owner@example.com",
		Role:      "owner",
	}).Error)

	lookup := NewDBLookup(db)
	ctx := context.Background()

	t.Run("member found", func(t *testing.T) {
		role, err := lookup.ProjectRole(ctx, "owner@example.com", "p-1")
		require.NoError(t, err)
		assert.Equal(t, "owner", role)
	})

	t.Run("no membership yields default", func(t *testing.T) {
		role, err := lookup.ProjectRole(ctx, "stranger@example.com", "p-1")
		require.NoError(t, err)
		assert.Equal(t, DefaultRole, role)
	})

	t.Run("membership is project scoped", func(t *testing.T) {
		role, err := lookup.ProjectRole(ctx, "owner@example.com", "p-2")
		require.NoError(t, err)
		assert.Equal(t, DefaultRole, role)
	})
}
