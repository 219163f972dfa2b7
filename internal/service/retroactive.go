package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kmorrow/pocketbooks/internal/config"
	"github.com/kmorrow/pocketbooks/internal/database"
	"github.com/kmorrow/pocketbooks/internal/database/repository"
	"github.com/kmorrow/pocketbooks/internal/logger"
	"github.com/kmorrow/pocketbooks/internal/rules"
)

const opRetroactiveRule = "retroactive_rule"

// Retroactive previews and applies a rule against historical transactions,
// grouping the mutations under a batch so they can be undone together.
type Retroactive struct {
	DB           *sql.DB
	Transactions *repository.TransactionRepo
	Rules        *repository.RuleRepo
	Audit        *repository.AuditRepo
	Batches      *repository.BatchRepo
	Policy       config.PolicyConfig
}

// PreviewEntry describes what applying the rule would do to one matching
// transaction.
type PreviewEntry struct {
	TransactionID     string
	CurrentCategoryID *string
	WouldBeCategoryID string
	Locked            bool
	AlreadyCorrect    bool
	WillSkip          bool
}

// RulePreview aggregates a dry run.
type RulePreview struct {
	RuleID          string
	Entries         []PreviewEntry
	TotalMatching   int
	WouldChange     int
	WouldSkipLocked int
}

// ApplyResult reports a retroactive application.
type ApplyResult struct {
	BatchID       string
	AppliedCount  int
	SkippedLocked int
}

// UndoResult reports a batch undo.
type UndoResult struct {
	RevertedCount int
	SkippedLocked int
}

// Preview evaluates the rule against transactions in the optional date
// range without mutating anything. Locked matches are reported but
// flagged as will-skip.
func (s *Retroactive) Preview(ctx context.Context, ruleID string, from, to *time.Time) (RulePreview, error) {
	rule, err := s.Rules.Get(ctx, ruleID)
	if err != nil {
		return RulePreview{}, fmt.Errorf("load rule: %w", err)
	}
	if rule == nil {
		return RulePreview{}, ErrRuleNotFound
	}

	filters := repository.TransactionFilters{}
	if from != nil {
		filters.From = *from
	}
	if to != nil {
		filters.To = *to
	}
	txs, err := s.Transactions.List(ctx, filters)
	if err != nil {
		return RulePreview{}, fmt.Errorf("load transactions: %w", err)
	}

	preview := RulePreview{RuleID: ruleID}
	for _, t := range txs {
		if !rules.Matches(*rule, t) {
			continue
		}
		entry := PreviewEntry{
			TransactionID:     t.ID,
			CurrentCategoryID: t.CategoryID,
			WouldBeCategoryID: rule.CategoryID,
			Locked:            t.CategoryLocked,
			AlreadyCorrect:    sameCategory(t.CategoryID, &rule.CategoryID),
			WillSkip:          t.CategoryLocked,
		}
		preview.Entries = append(preview.Entries, entry)
		preview.TotalMatching++
		switch {
		case entry.Locked:
			preview.WouldSkipLocked++
		case !entry.AlreadyCorrect:
			preview.WouldChange++
		}
	}
	return preview, nil
}

// Apply assigns the rule's category to every unlocked transaction in the
// explicit id list (normally the preview's matching set), creating one
// batch record and one audit entry per actual change, all in one unit of
// work. Already-correct rows are no-ops and write no audit entry.
func (s *Retroactive) Apply(ctx context.Context, ruleID string, ids []string) (ApplyResult, error) {
	if err := validateIDs(ids, s.Policy.MaxBatchSize); err != nil {
		return ApplyResult{}, err
	}

	rule, err := s.Rules.Get(ctx, ruleID)
	if err != nil {
		return ApplyResult{}, fmt.Errorf("load rule: %w", err)
	}
	if rule == nil {
		return ApplyResult{}, ErrRuleNotFound
	}

	res := ApplyResult{BatchID: uuid.NewString()}
	err = database.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		txRepo := s.Transactions.WithTx(tx)
		auditRepo := s.Audit.WithTx(tx)
		batchRepo := s.Batches.WithTx(tx)

		txs, err := txRepo.GetMany(ctx, ids)
		if err != nil {
			return fmt.Errorf("load transactions: %w", err)
		}

		type change struct {
			tx repository.Transaction
		}
		var changes []change
		for _, t := range txs {
			if t.CategoryLocked {
				res.SkippedLocked++
				continue
			}
			if sameCategory(t.CategoryID, &rule.CategoryID) {
				continue
			}
			changes = append(changes, change{tx: t})
		}

		if err := batchRepo.Insert(ctx, repository.Batch{
			ID:               res.BatchID,
			RuleID:           &rule.ID,
			OperationType:    opRetroactiveRule,
			AppliedAt:        database.Now(),
			TransactionCount: len(changes),
		}); err != nil {
			return fmt.Errorf("create batch: %w", err)
		}

		conf := ruleConfidence
		for _, c := range changes {
			if err := txRepo.UpdateCategorization(ctx, c.tx.ID, &rule.CategoryID, repository.SourceRule, &conf); err != nil {
				return fmt.Errorf("apply rule category: %w", err)
			}
			if rule.SetTransfer || rule.SetPassThrough {
				patch := repository.FlagPatch{}
				if rule.SetTransfer {
					v := true
					patch.IsTransfer = &v
				}
				if rule.SetPassThrough {
					v := true
					patch.IsPassThrough = &v
				}
				if err := txRepo.SetFlags(ctx, c.tx.ID, patch); err != nil {
					return fmt.Errorf("set rule flags: %w", err)
				}
			}
			if err := auditRepo.Insert(ctx, repository.AuditEntry{
				ID:                 uuid.NewString(),
				TransactionID:      c.tx.ID,
				PreviousCategoryID: c.tx.CategoryID,
				NewCategoryID:      &rule.CategoryID,
				ChangeSource:       repository.SourceRule,
				RuleID:             &rule.ID,
				Confidence:         &conf,
				ChangedBy:          "system",
				BatchID:            &res.BatchID,
			}); err != nil {
				return err
			}
			res.AppliedCount++
		}
		return nil
	})
	if err != nil {
		return ApplyResult{}, err
	}
	return res, nil
}

// Undo reverts every non-reverted audit entry of the batch to its previous
// category, marks those entries reverted, and marks the batch undone, all
// in one unit of work. Entries whose transactions were locked again by a later
// action are skipped and logged, not reverted. Undoing an already-undone
// batch is a conflict error and writes nothing.
func (s *Retroactive) Undo(ctx context.Context, batchID string) (UndoResult, error) {
	var res UndoResult
	err := database.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		txRepo := s.Transactions.WithTx(tx)
		auditRepo := s.Audit.WithTx(tx)
		batchRepo := s.Batches.WithTx(tx)

		batch, err := batchRepo.Get(ctx, batchID)
		if err != nil {
			return fmt.Errorf("load batch: %w", err)
		}
		if batch == nil {
			return ErrBatchNotFound
		}
		if batch.IsUndone {
			return ErrBatchAlreadyUndone
		}

		entries, err := auditRepo.ListByBatch(ctx, batchID)
		if err != nil {
			return fmt.Errorf("load batch entries: %w", err)
		}

		for _, e := range entries {
			if e.IsReverted {
				continue
			}
			t, err := txRepo.Get(ctx, e.TransactionID)
			if err != nil {
				return fmt.Errorf("load transaction: %w", err)
			}
			if t == nil {
				continue
			}
			if t.CategoryLocked {
				res.SkippedLocked++
				log := logger.FromContext(ctx)
				log.Warn().
					Str("batch", batchID).
					Str("transaction", t.ID).
					Msg("undo skipping transaction locked after batch")
				continue
			}
			if err := txRepo.UpdateCategorization(ctx, t.ID, e.PreviousCategoryID, repository.SourceSystem, nil); err != nil {
				return fmt.Errorf("revert category: %w", err)
			}
			if err := auditRepo.MarkReverted(ctx, e.ID); err != nil {
				return fmt.Errorf("mark entry reverted: %w", err)
			}
			res.RevertedCount++
		}

		flipped, err := batchRepo.MarkUndone(ctx, batchID, database.Now())
		if err != nil {
			return fmt.Errorf("mark batch undone: %w", err)
		}
		if !flipped {
			return ErrBatchAlreadyUndone
		}
		return nil
	})
	if err != nil {
		return UndoResult{}, err
	}
	return res, nil
}
