package main

import (
	"context"
	"log"
	"os"
	"path/filepath"

	"github.com/kmorrow/pocketbooks/internal/config"
	"github.com/kmorrow/pocketbooks/internal/database"
	"github.com/kmorrow/pocketbooks/internal/database/repository"
	"github.com/kmorrow/pocketbooks/internal/logger"
	"github.com/kmorrow/pocketbooks/internal/service"
)

// main runs one synchronous categorization pass over every unlocked,
// uncategorized transaction. The ingestion collaborator invokes this after
// persisting a feed; HTTP handlers wire the same services.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	lg := logger.New()
	ctx := logger.WithContext(context.Background(), lg)

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		log.Fatalf("mkdir db dir: %v", err)
	}

	if err := database.RunMigrations(cfg.Database.Path, "internal/database/migrations"); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	if err := database.SeedDefaults(ctx, db); err != nil {
		log.Fatalf("seed defaults: %v", err)
	}

	txRepo := repository.NewTransactionRepo(db)
	ruleRepo := repository.NewRuleRepo(db)
	payeeRepo := repository.NewPayeeRepo(db)
	auditRepo := repository.NewAuditRepo(db)

	categorizer := &service.Categorizer{
		DB:           db,
		Transactions: txRepo,
		Rules:        ruleRepo,
		Payees:       payeeRepo,
		Audit:        auditRepo,
		Policy:       cfg.Policy,
	}

	pending, err := txRepo.List(ctx, repository.TransactionFilters{Uncategorized: true, UnlockedOnly: true})
	if err != nil {
		log.Fatalf("list pending: %v", err)
	}
	if len(pending) == 0 {
		lg.Info().Msg("nothing to categorize")
		return
	}

	for start := 0; start < len(pending); start += cfg.Policy.MaxBatchSize {
		end := start + cfg.Policy.MaxBatchSize
		if end > len(pending) {
			end = len(pending)
		}
		ids := make([]string, 0, end-start)
		for _, t := range pending[start:end] {
			ids = append(ids, t.ID)
		}
		tally, err := categorizer.CategorizeBatch(ctx, ids, nil)
		if err != nil {
			log.Fatalf("categorize: %v", err)
		}
		lg.Info().
			Int("processed", tally.Processed).
			Int("rules_applied", tally.RulesApplied).
			Int("memory_applied", tally.MemoryApplied).
			Int("provider_default", tally.ProviderDefault).
			Int("skipped_locked", tally.SkippedLocked).
			Int("uncategorized", tally.Uncategorized).
			Msg("categorization batch complete")
	}
}
