package database

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kmorrow/pocketbooks/internal/database/repository"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	require.NoError(t, RunMigrations(path, "migrations"))
	db, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMigrationsAreRerunnable(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "test.db")
	require.NoError(t, RunMigrations(path, "migrations"))
	require.NoError(t, RunMigrations(path, "migrations"))
}

func TestSeedDefaultsIsIdempotent(t *testing.T) {
	t.Parallel()

	db := testDB(t)
	ctx := context.Background()

	require.NoError(t, SeedDefaults(ctx, db))
	catRepo := repository.NewCategoryRepo(db)
	first, err := catRepo.List(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, first)

	require.NoError(t, SeedDefaults(ctx, db))
	second, err := catRepo.List(ctx)
	require.NoError(t, err)
	require.Len(t, second, len(first))

	names := map[string]bool{}
	system := map[string]bool{}
	for _, c := range second {
		names[c.Name] = true
		system[c.Name] = c.IsSystem
	}
	require.True(t, names["Groceries"])
	require.True(t, system["Transfers"])
	require.True(t, system["Uncategorised"])
	require.False(t, system["Groceries"])
}

func TestWithTxRollsBackOnError(t *testing.T) {
	t.Parallel()

	db := testDB(t)
	ctx := context.Background()
	require.NoError(t, SeedDefaults(ctx, db))

	boom := errors.New("boom")
	err := WithTx(ctx, db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM categories`); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	cats, err := repository.NewCategoryRepo(db).List(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, cats)
}

func TestNowIsUTCSecondPrecision(t *testing.T) {
	t.Parallel()

	now := Now()
	require.Equal(t, "UTC", now.Location().String())
	require.Zero(t, now.Nanosecond())
}
