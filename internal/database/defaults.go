package database

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/kmorrow/pocketbooks/internal/database/repository"
)

// SeedDefaults ensures baseline categories exist for new databases.
// It is idempotent and safe to run on every startup.
func SeedDefaults(ctx context.Context, db *sql.DB) error {
	catRepo := repository.NewCategoryRepo(db)
	existing, err := catRepo.List(ctx)
	if err == nil && len(existing) > 0 {
		return nil
	}
	defaults := []struct {
		name     string
		isSystem bool
	}{
		{"Income", false},
		{"Groceries", false},
		{"Restaurants", false},
		{"Transport", false},
		{"Shopping", false},
		{"Utilities", false},
		{"Subscriptions", false},
		{"Health", false},
		{"Entertainment", false},
		{"Transfers", true},
		{"Reimbursements", true},
		{"Uncategorised", true},
	}
	for idx, d := range defaults {
		id := uuid.NewSHA1(uuid.NameSpaceOID, []byte("cat:"+d.name)).String()
		cat := repository.Category{ID: id, Name: d.name, SortOrder: idx, IsSystem: d.isSystem}
		if err := catRepo.Upsert(ctx, cat); err != nil {
			return err
		}
	}
	return nil
}
