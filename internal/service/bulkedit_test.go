package service

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kmorrow/pocketbooks/internal/database/repository"
)

func TestBulkAssignSkipsLockedAndAudits(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := testCtx(t)
	acct := f.account(t, "Everyday")
	groceries := f.category(t, "Groceries")
	old := f.category(t, "Old")

	a := f.transaction(t, txSpec{Account: acct, AmountCents: -100, Description: "TESCO 1"})
	b := f.transaction(t, txSpec{Account: acct, AmountCents: -200, Description: "TESCO 2", CategoryID: &old})
	locked := f.transaction(t, txSpec{Account: acct, AmountCents: -300, Description: "TESCO 3", CategoryID: &old, Locked: true})

	res, err := f.BulkEditor.AssignCategory(ctx, []string{a, b, locked}, groceries, false)
	require.NoError(t, err)
	require.Equal(t, 2, res.Updated)
	require.Equal(t, 1, res.SkippedLocked)

	require.Equal(t, groceries, *f.get(t, a).CategoryID)
	require.True(t, f.get(t, a).CategoryLocked)
	require.Equal(t, repository.SourceBulkEdit, f.get(t, b).CategorySource)
	require.Equal(t, old, *f.get(t, locked).CategoryID)

	require.Len(t, f.auditFor(t, a), 1)
	require.Len(t, f.auditFor(t, locked), 0)
}

func TestBulkAssignNoOpWritesNoAudit(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := testCtx(t)
	acct := f.account(t, "Everyday")
	groceries := f.category(t, "Groceries")

	a := f.transaction(t, txSpec{Account: acct, AmountCents: -100, Description: "TESCO", CategoryID: &groceries})

	res, err := f.BulkEditor.AssignCategory(ctx, []string{a}, groceries, false)
	require.NoError(t, err)
	require.Equal(t, 1, res.Updated)
	require.Empty(t, f.auditFor(t, a))
	require.True(t, f.get(t, a).CategoryLocked)
}

func TestBulkAssignLearnsEachPayeeOnce(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := testCtx(t)
	acct := f.account(t, "Everyday")
	coffee := f.category(t, "Coffee")

	a := f.transaction(t, txSpec{Account: acct, AmountCents: -100, Description: "Starbucks Inc."})
	b := f.transaction(t, txSpec{Account: acct, AmountCents: -200, Description: "THE STARBUCKS"})
	c := f.transaction(t, txSpec{Account: acct, AmountCents: -300, Description: "Pret A Manger"})

	res, err := f.BulkEditor.AssignCategory(ctx, []string{a, b, c}, coffee, true)
	require.NoError(t, err)
	require.Equal(t, 3, res.Updated)
	require.Equal(t, 2, res.LearnedPayees)

	m, err := f.Payees.Get(ctx, "starbucks")
	require.NoError(t, err)
	require.NotNil(t, m)
	require.Equal(t, 1, m.UsageCount)
}

func TestBulkAssignValidation(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := testCtx(t)

	_, err := f.BulkEditor.AssignCategory(ctx, nil, "cat", false)
	require.ErrorIs(t, err, ErrEmptyIDList)

	_, err = f.BulkEditor.AssignCategory(ctx, []string{"x"}, "", false)
	require.ErrorIs(t, err, ErrCategoryRequired)

	big := make([]string, f.BulkEditor.Policy.MaxBatchSize+1)
	for i := range big {
		big[i] = "x"
	}
	_, err = f.BulkEditor.AssignCategory(ctx, big, "cat", false)
	require.ErrorIs(t, err, ErrBatchTooLarge)
	require.True(t, IsValidation(err))
}

func TestBulkUpdateFlagsIgnoresLock(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := testCtx(t)
	acct := f.account(t, "Everyday")
	cat := f.category(t, "Groceries")

	locked := f.transaction(t, txSpec{Account: acct, AmountCents: -100, Description: "X", CategoryID: &cat, Locked: true})

	res, err := f.BulkEditor.UpdateFlags(ctx, []string{locked}, repository.FlagPatch{IsBusiness: boolPtr(true)})
	require.NoError(t, err)
	require.Equal(t, 1, res.Updated)

	got := f.get(t, locked)
	require.True(t, got.IsBusiness)
	require.Equal(t, cat, *got.CategoryID)
	require.Empty(t, f.auditFor(t, locked))
}

func TestBulkUpdateFlagsRejectsEmptyPatch(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := testCtx(t)

	_, err := f.BulkEditor.UpdateFlags(ctx, []string{"x"}, repository.FlagPatch{})
	require.True(t, IsValidation(err))
}

func TestBulkApprove(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := testCtx(t)
	acct := f.account(t, "Everyday")
	cat := f.category(t, "Groceries")

	categorized := f.transaction(t, txSpec{Account: acct, AmountCents: -100, Description: "A", CategoryID: &cat, Source: repository.SourceRule})
	uncategorized := f.transaction(t, txSpec{Account: acct, AmountCents: -200, Description: "B"})
	locked := f.transaction(t, txSpec{Account: acct, AmountCents: -300, Description: "C", CategoryID: &cat, Locked: true})

	res, err := f.BulkEditor.Approve(ctx, []string{categorized, uncategorized, locked})
	require.NoError(t, err)
	require.Equal(t, 1, res.Updated)
	require.Equal(t, 1, res.SkippedIneligible)
	require.Equal(t, 1, res.SkippedLocked)

	got := f.get(t, categorized)
	require.True(t, got.CategoryLocked)
	require.Equal(t, repository.SourceManual, got.CategorySource)
	require.Equal(t, cat, *got.CategoryID)
	require.Empty(t, f.auditFor(t, categorized))

	require.False(t, f.get(t, uncategorized).CategoryLocked)
}
