package service

import (
	"context"
	"fmt"

	"github.com/kmorrow/pocketbooks/internal/database/repository"
)

// History exposes the audit trail to the reporting/UI collaborator.
type History struct {
	Transactions *repository.TransactionRepo
	Audit        *repository.AuditRepo
}

// GetAuditHistory returns every category change recorded for the
// transaction, oldest first.
func (s *History) GetAuditHistory(ctx context.Context, transactionID string) ([]repository.AuditEntry, error) {
	t, err := s.Transactions.Get(ctx, transactionID)
	if err != nil {
		return nil, fmt.Errorf("load transaction: %w", err)
	}
	if t == nil {
		return nil, ErrTransactionNotFound
	}
	return s.Audit.ListByTransaction(ctx, transactionID)
}
