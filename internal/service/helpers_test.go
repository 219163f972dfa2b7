package service

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/kmorrow/pocketbooks/internal/config"
	"github.com/kmorrow/pocketbooks/internal/database"
	"github.com/kmorrow/pocketbooks/internal/database/repository"
)

// fixture wires every service over one migrated throwaway database.
type fixture struct {
	db *sql.DB

	Transactions *repository.TransactionRepo
	Rules        *repository.RuleRepo
	Payees       *repository.PayeeRepo
	Audit        *repository.AuditRepo
	Batches      *repository.BatchRepo

	Categorizer *Categorizer
	Overrides   *Overrides
	BulkEditor  *BulkEditor
	Splitter    *Splitter
	Transfers   *Transfers
	Retroactive *Retroactive
	History     *History
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	migrations, err := filepath.Abs("../database/migrations")
	require.NoError(t, err)
	require.NoError(t, database.RunMigrations(dbPath, migrations))

	db, err := database.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	f := &fixture{
		db:           db,
		Transactions: repository.NewTransactionRepo(db),
		Rules:        repository.NewRuleRepo(db),
		Payees:       repository.NewPayeeRepo(db),
		Audit:        repository.NewAuditRepo(db),
		Batches:      repository.NewBatchRepo(db),
	}
	pol := config.DefaultPolicy()
	f.Categorizer = &Categorizer{DB: db, Transactions: f.Transactions, Rules: f.Rules, Payees: f.Payees, Audit: f.Audit, Policy: pol}
	f.Overrides = &Overrides{DB: db, Transactions: f.Transactions, Payees: f.Payees, Audit: f.Audit}
	f.BulkEditor = &BulkEditor{DB: db, Transactions: f.Transactions, Payees: f.Payees, Audit: f.Audit, Policy: pol}
	f.Splitter = &Splitter{DB: db, Transactions: f.Transactions, Audit: f.Audit}
	f.Transfers = &Transfers{DB: db, Transactions: f.Transactions, Audit: f.Audit, Policy: pol}
	f.Retroactive = &Retroactive{DB: db, Transactions: f.Transactions, Rules: f.Rules, Audit: f.Audit, Batches: f.Batches, Policy: pol}
	f.History = &History{Transactions: f.Transactions, Audit: f.Audit}
	return f
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func (f *fixture) account(t *testing.T, name string) string {
	t.Helper()
	id := uuid.NewString()
	require.NoError(t, repository.NewAccountRepo(f.db).Upsert(testCtx(t), repository.Account{
		ID: id, Name: name, Institution: "Testbank", AccountType: "checking",
	}))
	return id
}

func (f *fixture) category(t *testing.T, name string) string {
	t.Helper()
	id := uuid.NewString()
	require.NoError(t, repository.NewCategoryRepo(f.db).Upsert(testCtx(t), repository.Category{
		ID: id, Name: name,
	}))
	return id
}

// txSpec is the adjustable part of a seeded transaction.
type txSpec struct {
	Account     string
	AmountCents int64
	Description string
	Date        time.Time
	CategoryID  *string
	Source      repository.CategorySource
	Locked      bool
}

func (f *fixture) transaction(t *testing.T, spec txSpec) string {
	t.Helper()
	if spec.Date.IsZero() {
		spec.Date = time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	}
	if spec.Source == "" {
		spec.Source = repository.SourceProvider
	}
	id := uuid.NewString()
	require.NoError(t, f.Transactions.Insert(testCtx(t), repository.Transaction{
		ID:             id,
		AccountID:      spec.Account,
		Date:           spec.Date,
		AmountCents:    spec.AmountCents,
		RawDescription: spec.Description,
		CategoryID:     spec.CategoryID,
		CategorySource: spec.Source,
		CategoryLocked: spec.Locked,
	}))
	return id
}

func (f *fixture) rule(t *testing.T, r repository.Rule) string {
	t.Helper()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Direction == "" {
		r.Direction = repository.DirectionAny
	}
	r.IsActive = true
	require.NoError(t, f.Rules.Insert(testCtx(t), r))
	return r.ID
}

func (f *fixture) get(t *testing.T, id string) repository.Transaction {
	t.Helper()
	tx, err := f.Transactions.Get(testCtx(t), id)
	require.NoError(t, err)
	require.NotNil(t, tx)
	return *tx
}

func (f *fixture) auditFor(t *testing.T, id string) []repository.AuditEntry {
	t.Helper()
	entries, err := f.Audit.ListByTransaction(testCtx(t), id)
	require.NoError(t, err)
	return entries
}

func strPtr(s string) *string { return &s }
func i64Ptr(v int64) *int64   { return &v }
func boolPtr(v bool) *bool    { return &v }
