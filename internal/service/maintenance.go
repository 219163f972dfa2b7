package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kmorrow/pocketbooks/internal/database"
)

// MaintenanceService houses destructive/ops actions. None of these are
// reachable from the collaborator-facing operations.
type MaintenanceService struct {
	DB *sql.DB
}

// Reset wipes all user data, audit trail included. It keeps the schema
// intact so the app can continue running against an empty household.
func (s *MaintenanceService) Reset(ctx context.Context) error {
	if s.DB == nil {
		return fmt.Errorf("maintenance: db not configured")
	}
	if err := database.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		tables := []string{
			"audit_log",
			"batches",
			"payee_mappings",
			"categorization_rules",
			"transactions",
			"categories",
			"accounts",
		}
		for _, t := range tables {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+t); err != nil {
				return fmt.Errorf("reset table %s: %w", t, err)
			}
		}
		return nil
	}); err != nil {
		return err
	}
	_, _ = s.DB.ExecContext(ctx, "VACUUM")
	return nil
}
