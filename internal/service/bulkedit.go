package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kmorrow/pocketbooks/internal/config"
	"github.com/kmorrow/pocketbooks/internal/database"
	"github.com/kmorrow/pocketbooks/internal/database/repository"
	"github.com/kmorrow/pocketbooks/internal/payee"
)

// BulkEditor applies one edit across a caller-supplied id list.
type BulkEditor struct {
	DB           *sql.DB
	Transactions *repository.TransactionRepo
	Payees       *repository.PayeeRepo
	Audit        *repository.AuditRepo
	Policy       config.PolicyConfig
}

// BulkResult reports per-disposition counts for a bulk operation. Skips
// are part of a successful result, not errors.
type BulkResult struct {
	Updated           int
	SkippedLocked     int
	SkippedIneligible int
	LearnedPayees     int
}

// AssignCategory sets the category on every unlocked transaction in the
// list, locking each one. With learnPayee, payees are deduplicated by
// normalized description across the whole batch and each unique payee is
// learned once.
func (s *BulkEditor) AssignCategory(ctx context.Context, ids []string, categoryID string, learnPayee bool) (BulkResult, error) {
	if categoryID == "" {
		return BulkResult{}, ErrCategoryRequired
	}
	if err := validateIDs(ids, s.Policy.MaxBatchSize); err != nil {
		return BulkResult{}, err
	}

	var res BulkResult
	err := database.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		txRepo := s.Transactions.WithTx(tx)
		auditRepo := s.Audit.WithTx(tx)
		payeeRepo := s.Payees.WithTx(tx)

		txs, err := txRepo.GetMany(ctx, ids)
		if err != nil {
			return fmt.Errorf("load transactions: %w", err)
		}

		seenPayees := map[string]bool{}
		for _, t := range txs {
			if t.CategoryLocked {
				res.SkippedLocked++
				continue
			}
			if err := assignManualCategory(ctx, txRepo, auditRepo, t, categoryID, repository.SourceBulkEdit, nil); err != nil {
				return err
			}
			res.Updated++

			if !learnPayee {
				continue
			}
			key := payee.Normalize(t.Description())
			if key == "" || seenPayees[key] {
				continue
			}
			seenPayees[key] = true
			if err := payeeRepo.Upsert(ctx, key, categoryID); err != nil {
				return fmt.Errorf("learn payee: %w", err)
			}
			res.LearnedPayees++
		}
		return nil
	})
	if err != nil {
		return BulkResult{}, err
	}
	return res, nil
}

// UpdateFlags merges the flag patch into every transaction in the list.
// Flags are independent of category locking, so locked rows are updated
// too.
func (s *BulkEditor) UpdateFlags(ctx context.Context, ids []string, patch repository.FlagPatch) (BulkResult, error) {
	if err := validateIDs(ids, s.Policy.MaxBatchSize); err != nil {
		return BulkResult{}, err
	}
	if patch.IsEmpty() {
		return BulkResult{}, ValidationError("flag patch is empty")
	}

	var res BulkResult
	err := database.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		txRepo := s.Transactions.WithTx(tx)
		txs, err := txRepo.GetMany(ctx, ids)
		if err != nil {
			return fmt.Errorf("load transactions: %w", err)
		}
		for _, t := range txs {
			if err := txRepo.SetFlags(ctx, t.ID, patch); err != nil {
				return fmt.Errorf("set flags: %w", err)
			}
			res.Updated++
		}
		return nil
	})
	if err != nil {
		return BulkResult{}, err
	}
	return res, nil
}

// Approve locks the listed transactions that already carry a category,
// marking them manually confirmed without changing the category value.
// Uncategorized rows are ineligible; locked rows are already approved.
func (s *BulkEditor) Approve(ctx context.Context, ids []string) (BulkResult, error) {
	if err := validateIDs(ids, s.Policy.MaxBatchSize); err != nil {
		return BulkResult{}, err
	}

	var res BulkResult
	err := database.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		txRepo := s.Transactions.WithTx(tx)
		txs, err := txRepo.GetMany(ctx, ids)
		if err != nil {
			return fmt.Errorf("load transactions: %w", err)
		}
		for _, t := range txs {
			if t.CategoryLocked {
				res.SkippedLocked++
				continue
			}
			if t.CategoryID == nil {
				res.SkippedIneligible++
				continue
			}
			if err := txRepo.SetSource(ctx, t.ID, repository.SourceManual); err != nil {
				return fmt.Errorf("set source: %w", err)
			}
			if err := txRepo.SetLocked(ctx, t.ID, true); err != nil {
				return fmt.Errorf("lock transaction: %w", err)
			}
			res.Updated++
		}
		return nil
	})
	if err != nil {
		return BulkResult{}, err
	}
	return res, nil
}
