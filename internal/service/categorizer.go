package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/kmorrow/pocketbooks/internal/config"
	"github.com/kmorrow/pocketbooks/internal/database"
	"github.com/kmorrow/pocketbooks/internal/database/repository"
	"github.com/kmorrow/pocketbooks/internal/logger"
	"github.com/kmorrow/pocketbooks/internal/payee"
	"github.com/kmorrow/pocketbooks/internal/rules"
)

// ruleConfidence is recorded for rule-sourced assignments. Rules are
// authoritative.
const ruleConfidence = 1.0

// Categorizer runs the waterfall: user rules, then payee memory, then the
// provider default already on the row.
type Categorizer struct {
	DB           *sql.DB
	Transactions *repository.TransactionRepo
	Rules        *repository.RuleRepo
	Payees       *repository.PayeeRepo
	Audit        *repository.AuditRepo
	Policy       config.PolicyConfig
}

// WaterfallTally summarizes one categorization run.
type WaterfallTally struct {
	Processed       int
	RulesApplied    int
	MemoryApplied   int
	ProviderDefault int
	SkippedLocked   int
	Uncategorized   int
}

// CategorizeBatch categorizes the given transactions in one unit of work.
// Locked transactions are skipped and counted, never mutated. Re-running
// over the same ids yields the same tally; audit entries are written only
// when a category actually changes, so a converged batch writes nothing.
func (s *Categorizer) CategorizeBatch(ctx context.Context, ids []string, batchID *string) (WaterfallTally, error) {
	if err := validateIDs(ids, s.Policy.MaxBatchSize); err != nil {
		return WaterfallTally{}, err
	}

	activeRules, err := s.Rules.ListActive(ctx)
	if err != nil {
		return WaterfallTally{}, fmt.Errorf("load rules: %w", err)
	}
	matcher := rules.NewMatcher(activeRules)

	var tally WaterfallTally
	err = database.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		txRepo := s.Transactions.WithTx(tx)
		payeeRepo := s.Payees.WithTx(tx)
		auditRepo := s.Audit.WithTx(tx)

		txs, err := txRepo.GetMany(ctx, ids)
		if err != nil {
			return fmt.Errorf("load transactions: %w", err)
		}

		for _, t := range txs {
			if t.CategoryLocked {
				tally.SkippedLocked++
				continue
			}
			tally.Processed++

			if rule := matcher.Match(t); rule != nil {
				tally.RulesApplied++
				if err := s.applyRule(ctx, txRepo, auditRepo, t, *rule, batchID); err != nil {
					return err
				}
				continue
			}

			key := payee.Normalize(t.Description())
			if key != "" {
				mapping, err := payeeRepo.Get(ctx, key)
				if err != nil {
					return fmt.Errorf("payee lookup: %w", err)
				}
				if mapping != nil {
					tally.MemoryApplied++
					if err := s.applyMemory(ctx, txRepo, payeeRepo, auditRepo, t, *mapping, batchID); err != nil {
						return err
					}
					continue
				}
			}

			// fall through: provider default stays
			tally.ProviderDefault++
			if t.CategoryID == nil {
				tally.Uncategorized++
			}
		}
		return nil
	})
	if err != nil {
		return WaterfallTally{}, err
	}

	log := logger.FromContext(ctx)
	log.Debug().
		Int("processed", tally.Processed).
		Int("rules", tally.RulesApplied).
		Int("memory", tally.MemoryApplied).
		Int("skipped_locked", tally.SkippedLocked).
		Msg("waterfall run complete")
	return tally, nil
}

func (s *Categorizer) applyRule(ctx context.Context, txRepo *repository.TransactionRepo, auditRepo *repository.AuditRepo, t repository.Transaction, rule repository.Rule, batchID *string) error {
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
		if err := txRepo.SetFlags(ctx, t.ID, patch); err != nil {
			return fmt.Errorf("set rule flags: %w", err)
		}
	}

	if sameCategory(t.CategoryID, &rule.CategoryID) {
		return nil
	}
	conf := ruleConfidence
	if err := txRepo.UpdateCategorization(ctx, t.ID, &rule.CategoryID, repository.SourceRule, &conf); err != nil {
		return fmt.Errorf("apply rule category: %w", err)
	}
	ruleID := rule.ID
	return auditRepo.Insert(ctx, repository.AuditEntry{
		ID:                 uuid.NewString(),
		TransactionID:      t.ID,
		PreviousCategoryID: t.CategoryID,
		NewCategoryID:      &rule.CategoryID,
		ChangeSource:       repository.SourceRule,
		RuleID:             &ruleID,
		Confidence:         &conf,
		ChangedBy:          "system",
		BatchID:            batchID,
	})
}

func (s *Categorizer) applyMemory(ctx context.Context, txRepo *repository.TransactionRepo, payeeRepo *repository.PayeeRepo, auditRepo *repository.AuditRepo, t repository.Transaction, m repository.PayeeMapping, batchID *string) error {
	if sameCategory(t.CategoryID, &m.CategoryID) {
		return nil
	}
	conf := memoryConfidence(m.UsageCount)
	if err := txRepo.UpdateCategorization(ctx, t.ID, &m.CategoryID, repository.SourcePayeeMemory, &conf); err != nil {
		return fmt.Errorf("apply payee memory: %w", err)
	}
	if err := payeeRepo.Touch(ctx, m.NormalizedPayee); err != nil {
		return fmt.Errorf("bump payee usage: %w", err)
	}
	return auditRepo.Insert(ctx, repository.AuditEntry{
		ID:                 uuid.NewString(),
		TransactionID:      t.ID,
		PreviousCategoryID: t.CategoryID,
		NewCategoryID:      &m.CategoryID,
		ChangeSource:       repository.SourcePayeeMemory,
		Confidence:         &conf,
		ChangedBy:          "system",
		BatchID:            batchID,
	})
}

// memoryConfidence grows with reuse and saturates below rule confidence;
// a mapping seen once is a weaker signal than one confirmed many times.
func memoryConfidence(usageCount int) float64 {
	conf := 0.5 + 0.05*float64(usageCount)
	if conf > 0.95 {
		conf = 0.95
	}
	return conf
}
