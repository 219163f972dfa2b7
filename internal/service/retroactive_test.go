package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kmorrow/pocketbooks/internal/database/repository"
)

// seedRetroScenario creates ten Starbucks transactions, three of them
// locked, plus one non-matching transaction, and a contains rule over
// "starbucks".
func seedRetroScenario(t *testing.T, f *fixture) (ruleID string, matchIDs []string) {
	t.Helper()

	acct := f.account(t, "Everyday")
	coffee := f.category(t, "Coffee")
	dining := f.category(t, "Dining")

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		spec := txSpec{
			Account:     acct,
			AmountCents: -500 - int64(i),
			Description: "STARBUCKS STORE",
			Date:        base.AddDate(0, 0, i),
		}
		if i < 3 {
			spec.CategoryID = &dining
			spec.Locked = true
		}
		matchIDs = append(matchIDs, f.transaction(t, spec))
	}
	f.transaction(t, txSpec{Account: acct, AmountCents: -900, Description: "TESCO", Date: base})

	ruleID = f.rule(t, repository.Rule{
		Name:             "starbucks to coffee",
		MerchantContains: strPtr("starbucks"),
		CategoryID:       coffee,
		Priority:         50,
		IsActive:         true,
	})
	return ruleID, matchIDs
}

func TestRetroactivePreviewCounts(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := testCtx(t)
	ruleID, _ := seedRetroScenario(t, f)

	preview, err := f.Retroactive.Preview(ctx, ruleID, nil, nil)
	require.NoError(t, err)
	require.Equal(t, 10, preview.TotalMatching)
	require.Equal(t, 7, preview.WouldChange)
	require.Equal(t, 3, preview.WouldSkipLocked)
	require.Len(t, preview.Entries, 10)

	// pure read: nothing changed
	for _, e := range preview.Entries {
		got := f.get(t, e.TransactionID)
		require.NotEqual(t, repository.SourceRule, got.CategorySource)
		require.Empty(t, f.auditFor(t, e.TransactionID))
	}

	_, err = f.Retroactive.Preview(ctx, "missing", nil, nil)
	require.ErrorIs(t, err, ErrRuleNotFound)
}

func TestRetroactivePreviewDateRange(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := testCtx(t)
	ruleID, _ := seedRetroScenario(t, f)

	from := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 1, 8, 0, 0, 0, 0, time.UTC)
	preview, err := f.Retroactive.Preview(ctx, ruleID, &from, &to)
	require.NoError(t, err)
	require.Equal(t, 3, preview.TotalMatching)
}

func TestRetroactiveApplyCreatesBatchAndAudits(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := testCtx(t)
	ruleID, matchIDs := seedRetroScenario(t, f)

	res, err := f.Retroactive.Apply(ctx, ruleID, matchIDs)
	require.NoError(t, err)
	require.Equal(t, 7, res.AppliedCount)
	require.Equal(t, 3, res.SkippedLocked)
	require.NotEmpty(t, res.BatchID)

	batch, err := f.Batches.Get(ctx, res.BatchID)
	require.NoError(t, err)
	require.NotNil(t, batch)
	require.Equal(t, ruleID, *batch.RuleID)
	require.Equal(t, "retroactive_rule", batch.OperationType)
	require.Equal(t, 7, batch.TransactionCount)
	require.False(t, batch.IsUndone)

	entries, err := f.Audit.ListByBatch(ctx, res.BatchID)
	require.NoError(t, err)
	require.Len(t, entries, 7)
	for _, e := range entries {
		require.Equal(t, repository.SourceRule, e.ChangeSource)
		require.Equal(t, "system", e.ChangedBy)
		require.Equal(t, ruleID, *e.RuleID)
		require.False(t, e.IsReverted)
	}

	// locked rows keep their category
	locked := f.get(t, matchIDs[0])
	require.Equal(t, repository.SourceRule, f.get(t, matchIDs[5]).CategorySource)
	require.NotEqual(t, repository.SourceRule, locked.CategorySource)
}

func TestRetroactiveApplyIsIdempotentPerCategory(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := testCtx(t)
	ruleID, matchIDs := seedRetroScenario(t, f)

	first, err := f.Retroactive.Apply(ctx, ruleID, matchIDs)
	require.NoError(t, err)
	require.Equal(t, 7, first.AppliedCount)

	// a second run finds every unlocked row already correct
	second, err := f.Retroactive.Apply(ctx, ruleID, matchIDs)
	require.NoError(t, err)
	require.Equal(t, 0, second.AppliedCount)

	entries, err := f.Audit.ListByBatch(ctx, second.BatchID)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestRetroactiveUndoRevertsBatch(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := testCtx(t)
	ruleID, matchIDs := seedRetroScenario(t, f)

	res, err := f.Retroactive.Apply(ctx, ruleID, matchIDs)
	require.NoError(t, err)

	undo, err := f.Retroactive.Undo(ctx, res.BatchID)
	require.NoError(t, err)
	require.Equal(t, 7, undo.RevertedCount)
	require.Equal(t, 0, undo.SkippedLocked)

	// unlocked matches had no category before the apply
	reverted := f.get(t, matchIDs[5])
	require.Nil(t, reverted.CategoryID)
	require.Equal(t, repository.SourceSystem, reverted.CategorySource)

	batch, err := f.Batches.Get(ctx, res.BatchID)
	require.NoError(t, err)
	require.True(t, batch.IsUndone)
	require.NotNil(t, batch.UndoneAt)

	entries, err := f.Audit.ListByBatch(ctx, res.BatchID)
	require.NoError(t, err)
	require.Len(t, entries, 7)
	for _, e := range entries {
		require.True(t, e.IsReverted)
	}

	// the history survives the undo; only the reverted bit flips
	require.Len(t, f.auditFor(t, matchIDs[5]), 1)
}

func TestRetroactiveUndoTwiceConflicts(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := testCtx(t)
	ruleID, matchIDs := seedRetroScenario(t, f)

	res, err := f.Retroactive.Apply(ctx, ruleID, matchIDs)
	require.NoError(t, err)

	_, err = f.Retroactive.Undo(ctx, res.BatchID)
	require.NoError(t, err)

	_, err = f.Retroactive.Undo(ctx, res.BatchID)
	require.ErrorIs(t, err, ErrBatchAlreadyUndone)
	require.True(t, IsConflict(err))

	_, err = f.Retroactive.Undo(ctx, "missing")
	require.ErrorIs(t, err, ErrBatchNotFound)
}

func TestRetroactiveUndoSkipsRelockedTransactions(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := testCtx(t)
	ruleID, matchIDs := seedRetroScenario(t, f)

	res, err := f.Retroactive.Apply(ctx, ruleID, matchIDs)
	require.NoError(t, err)

	// the user confirms one of the applied rows before the undo
	relocked := matchIDs[5]
	require.NoError(t, f.Overrides.Lock(testCtx(t), relocked))

	undo, err := f.Retroactive.Undo(ctx, res.BatchID)
	require.NoError(t, err)
	require.Equal(t, 6, undo.RevertedCount)
	require.Equal(t, 1, undo.SkippedLocked)

	kept := f.get(t, relocked)
	require.NotNil(t, kept.CategoryID)
	require.Equal(t, repository.SourceRule, kept.CategorySource)
}
