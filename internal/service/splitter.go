package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/kmorrow/pocketbooks/internal/database"
	"github.com/kmorrow/pocketbooks/internal/database/repository"
)

// splitToleranceCents is the allowed rounding slack between the child sum
// and the parent amount.
const splitToleranceCents = 1

// Splitter decomposes a transaction into categorized children. A split
// parent stays in the ledger but is excluded from cashflow totals; its
// children carry the amounts.
type Splitter struct {
	DB           *sql.DB
	Transactions *repository.TransactionRepo
	Audit        *repository.AuditRepo
}

// SplitLine describes one child of a split. AmountCents is the unsigned
// magnitude; children inherit the parent's sign.
type SplitLine struct {
	AmountCents int64
	CategoryID  string
	Description string
}

// Split validates the lines and creates the children in one unit of work.
// Children copy the parent's account, date, and provider metadata, are
// locked, and carry source manual. Nested splits are rejected.
func (s *Splitter) Split(ctx context.Context, parentID string, lines []SplitLine) ([]repository.Transaction, error) {
	if len(lines) < 2 {
		return nil, ErrTooFewSplitLines
	}
	var sum int64
	for _, l := range lines {
		if l.AmountCents <= 0 {
			return nil, ErrSplitLineAmount
		}
		if l.CategoryID == "" {
			return nil, ErrSplitLineCategory
		}
		sum += l.AmountCents
	}

	var children []repository.Transaction
	err := database.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		txRepo := s.Transactions.WithTx(tx)
		auditRepo := s.Audit.WithTx(tx)

		parent, err := txRepo.Get(ctx, parentID)
		if err != nil {
			return fmt.Errorf("load parent: %w", err)
		}
		if parent == nil {
			return ErrTransactionNotFound
		}
		if parent.IsSplitParent {
			return ErrAlreadySplit
		}
		if parent.IsSplitChild {
			return ErrNestedSplit
		}

		parentAbs := parent.AmountCents
		sign := int64(1)
		if parentAbs < 0 {
			parentAbs = -parentAbs
			sign = -1
		}
		diff := sum - parentAbs
		if diff < -splitToleranceCents || diff > splitToleranceCents {
			return ErrSplitSumMismatch
		}

		for _, l := range lines {
			desc := l.Description
			if desc == "" {
				desc = parent.Description()
			}
			catID := l.CategoryID
			child := repository.Transaction{
				ID:                  uuid.NewString(),
				AccountID:           parent.AccountID,
				ExternalID:          parent.ExternalID,
				Date:                parent.Date,
				AmountCents:         sign * l.AmountCents,
				RawDescription:      parent.RawDescription,
				CleanDescription:    desc,
				CategoryID:          &catID,
				CategorySource:      repository.SourceManual,
				CategoryLocked:      true,
				IsSplitChild:        true,
				ParentTransactionID: &parent.ID,
			}
			if err := txRepo.Insert(ctx, child); err != nil {
				return fmt.Errorf("insert child: %w", err)
			}
			if err := auditRepo.Insert(ctx, repository.AuditEntry{
				ID:            uuid.NewString(),
				TransactionID: child.ID,
				NewCategoryID: &catID,
				ChangeSource:  repository.SourceManual,
				ChangedBy:     "user",
			}); err != nil {
				return err
			}
			children = append(children, child)
		}

		return txRepo.SetSplitParent(ctx, parent.ID, true)
	})
	if err != nil {
		return nil, err
	}
	return children, nil
}

// Unsplit deletes every child and restores the parent to a normal
// transaction. Selective unsplit is not supported; it is all-or-nothing.
func (s *Splitter) Unsplit(ctx context.Context, parentID string) error {
	return database.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		txRepo := s.Transactions.WithTx(tx)

		parent, err := txRepo.Get(ctx, parentID)
		if err != nil {
			return fmt.Errorf("load parent: %w", err)
		}
		if parent == nil {
			return ErrTransactionNotFound
		}
		if !parent.IsSplitParent {
			return ErrNotSplit
		}

		deleted, err := txRepo.DeleteChildren(ctx, parentID)
		if err != nil {
			return fmt.Errorf("delete children: %w", err)
		}
		if deleted == 0 {
			return ErrNotSplit
		}
		return txRepo.SetSplitParent(ctx, parentID, false)
	})
}
