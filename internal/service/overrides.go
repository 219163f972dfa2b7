package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/kmorrow/pocketbooks/internal/database"
	"github.com/kmorrow/pocketbooks/internal/database/repository"
	"github.com/kmorrow/pocketbooks/internal/payee"
)

// Overrides applies manual categorization and the lock flag that shields a
// transaction from automatic recategorization.
type Overrides struct {
	DB           *sql.DB
	Transactions *repository.TransactionRepo
	Payees       *repository.PayeeRepo
	Audit        *repository.AuditRepo
}

// OverrideResult reports what an override changed.
type OverrideResult struct {
	PreviousCategoryID *string
	NewCategoryID      string
	LearnedPayee       bool
}

// ApplyOverride sets the category manually, locks the transaction, writes
// the audit entry, and optionally learns the payee in one unit of work. The category assignment and the payee learning are separate steps
// so each can be exercised alone.
func (s *Overrides) ApplyOverride(ctx context.Context, transactionID, categoryID string, learnPayee bool) (OverrideResult, error) {
	if categoryID == "" {
		return OverrideResult{}, ErrCategoryRequired
	}

	var res OverrideResult
	err := database.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		txRepo := s.Transactions.WithTx(tx)
		t, err := txRepo.Get(ctx, transactionID)
		if err != nil {
			return fmt.Errorf("load transaction: %w", err)
		}
		if t == nil {
			return ErrTransactionNotFound
		}

		res.PreviousCategoryID = t.CategoryID
		res.NewCategoryID = categoryID

		if err := assignManualCategory(ctx, txRepo, s.Audit.WithTx(tx), *t, categoryID, repository.SourceManual, nil); err != nil {
			return err
		}

		if learnPayee {
			learned, err := learnPayeeMapping(ctx, s.Payees.WithTx(tx), t.Description(), categoryID)
			if err != nil {
				return err
			}
			res.LearnedPayee = learned
		}
		return nil
	})
	if err != nil {
		return OverrideResult{}, err
	}
	return res, nil
}

// Lock freezes the transaction's category against automatic runs without
// changing the category itself.
func (s *Overrides) Lock(ctx context.Context, transactionID string) error {
	return s.setLocked(ctx, transactionID, true)
}

// Unlock releases the transaction back to automatic categorization.
func (s *Overrides) Unlock(ctx context.Context, transactionID string) error {
	return s.setLocked(ctx, transactionID, false)
}

func (s *Overrides) setLocked(ctx context.Context, transactionID string, locked bool) error {
	return database.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		txRepo := s.Transactions.WithTx(tx)
		t, err := txRepo.Get(ctx, transactionID)
		if err != nil {
			return fmt.Errorf("load transaction: %w", err)
		}
		if t == nil {
			return ErrTransactionNotFound
		}
		return txRepo.SetLocked(ctx, transactionID, locked)
	})
}

// assignManualCategory is the shared "set category + lock + audit"
// primitive behind overrides and bulk assignment.
func assignManualCategory(ctx context.Context, txRepo *repository.TransactionRepo, auditRepo *repository.AuditRepo, t repository.Transaction, categoryID string, source repository.CategorySource, batchID *string) error {
	if err := txRepo.UpdateCategorization(ctx, t.ID, &categoryID, source, nil); err != nil {
		return fmt.Errorf("set category: %w", err)
	}
	if err := txRepo.SetLocked(ctx, t.ID, true); err != nil {
		return fmt.Errorf("lock transaction: %w", err)
	}
	if sameCategory(t.CategoryID, &categoryID) {
		return nil
	}
	return auditRepo.Insert(ctx, repository.AuditEntry{
		ID:                 uuid.NewString(),
		TransactionID:      t.ID,
		PreviousCategoryID: t.CategoryID,
		NewCategoryID:      &categoryID,
		ChangeSource:       source,
		ChangedBy:          "user",
		BatchID:            batchID,
	})
}

// learnPayeeMapping normalizes the description and upserts the mapping.
// Names that normalize to nothing are not learnable.
func learnPayeeMapping(ctx context.Context, payeeRepo *repository.PayeeRepo, description, categoryID string) (bool, error) {
	key := payee.Normalize(description)
	if key == "" {
		return false, nil
	}
	if err := payeeRepo.Upsert(ctx, key, categoryID); err != nil {
		return false, fmt.Errorf("learn payee: %w", err)
	}
	return true, nil
}
