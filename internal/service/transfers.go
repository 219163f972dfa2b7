package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"
	"github.com/google/uuid"

	"github.com/kmorrow/pocketbooks/internal/config"
	"github.com/kmorrow/pocketbooks/internal/database"
	"github.com/kmorrow/pocketbooks/internal/database/repository"
	"github.com/kmorrow/pocketbooks/internal/logger"
)

// transferKeywords self-qualify a transaction as a likely transfer,
// independent of any pairing. Single words are matched as whole tokens so
// "ach" does not fire on "peach"; phrases are matched by containment.
var transferKeywordTokens = map[string]bool{
	"transfer": true,
	"xfer":     true,
	"ach":      true,
	"wire":     true,
	"internal": true,
	"sweep":    true,
}

var transferKeywordPhrases = []string{
	"from savings", "to savings", "from checking", "to checking",
}

// p2pServices are known peer-to-payment providers.
var p2pServices = []string{
	"venmo", "zelle", "paypal", "cash app", "apple cash", "google pay",
}

// P2PClass is the classification of a peer-to-payment transaction.
type P2PClass string

const (
	P2PTransfer P2PClass = "transfer"
	P2PExpense  P2PClass = "expense"
	P2PIncome   P2PClass = "income"
	P2PUnknown  P2PClass = "unknown"
)

// Transfers detects internal transfers and manages reimbursement links.
// Detection is a heuristic; the flags it sets stay user-overridable.
type Transfers struct {
	DB           *sql.DB
	Transactions *repository.TransactionRepo
	Audit        *repository.AuditRepo
	Policy       config.PolicyConfig
}

// TransferPair is one matched leg pair.
type TransferPair struct {
	OutflowID string
	InflowID  string
}

// TransferDetection reports one detection run.
type TransferDetection struct {
	Pairs          []TransferPair
	KeywordFlagged []string
	FlaggedCount   int
}

// DetectTransferPairs scans [from, to) for internal-transfer pairs:
// different accounts, equal magnitude with opposite sign within tolerance,
// dates within the configured window. Pairing is greedy earliest-first and
// one-to-one; a transaction never joins two pairs. Keyword-indicated
// transactions are flagged independently of pairing. Both legs of a pair
// and every keyword hit get is_transfer set, in one unit of work.
func (s *Transfers) DetectTransferPairs(ctx context.Context, from, to time.Time) (TransferDetection, error) {
	var det TransferDetection
	err := database.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		txRepo := s.Transactions.WithTx(tx)
		txs, err := txRepo.List(ctx, repository.TransactionFilters{From: from, To: to})
		if err != nil {
			return fmt.Errorf("load transactions: %w", err)
		}

		flag := map[string]bool{}
		for _, t := range txs {
			if HasTransferKeywords(t.Description()) {
				flag[t.ID] = true
				det.KeywordFlagged = append(det.KeywordFlagged, t.ID)
			}
		}

		// List returns date-ascending order, so the outer scan is
		// earliest-first and each leg takes its earliest counterpart.
		used := map[string]bool{}
		for i, a := range txs {
			if used[a.ID] || a.IsSplitParent {
				continue
			}
			for j := i + 1; j < len(txs); j++ {
				b := txs[j]
				if used[b.ID] || b.IsSplitParent {
					continue
				}
				if !s.candidatePair(a, b) {
					continue
				}
				used[a.ID], used[b.ID] = true, true
				flag[a.ID], flag[b.ID] = true, true
				pair := TransferPair{OutflowID: a.ID, InflowID: b.ID}
				if a.AmountCents > 0 {
					pair = TransferPair{OutflowID: b.ID, InflowID: a.ID}
				}
				det.Pairs = append(det.Pairs, pair)
				break
			}
		}

		v := true
		for id := range flag {
			if err := txRepo.SetFlags(ctx, id, repository.FlagPatch{IsTransfer: &v}); err != nil {
				return fmt.Errorf("flag transfer: %w", err)
			}
		}
		det.FlaggedCount = len(flag)
		return nil
	})
	if err != nil {
		return TransferDetection{}, err
	}
	sort.Strings(det.KeywordFlagged)
	return det, nil
}

func (s *Transfers) candidatePair(a, b repository.Transaction) bool {
	if a.AccountID == b.AccountID {
		return false
	}
	sum := a.AmountCents + b.AmountCents
	if sum < 0 {
		sum = -sum
	}
	if sum > s.Policy.TransferToleranceCents {
		return false
	}
	// opposite signs; two zero-ish amounts summing inside tolerance are
	// not a transfer
	if (a.AmountCents >= 0) == (b.AmountCents >= 0) {
		return false
	}
	return daysApart(a.Date, b.Date) <= s.Policy.TransferWindowDays
}

// HasTransferKeywords reports whether the description contains a
// transfer-indicating keyword or phrase.
func HasTransferKeywords(description string) bool {
	desc := strings.ToLower(description)
	for _, phrase := range transferKeywordPhrases {
		if strings.Contains(desc, phrase) {
			return true
		}
	}
	for _, tok := range strings.FieldsFunc(desc, func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	}) {
		if transferKeywordTokens[tok] {
			return true
		}
	}
	return false
}

// ClassifyP2P classifies a transaction against known peer-to-payment
// services. Pure; usable on unsaved rows.
func ClassifyP2P(description string, amountCents int64, isTransfer bool) P2PClass {
	desc := strings.ToLower(description)
	for _, svc := range p2pServices {
		if !strings.Contains(desc, svc) {
			continue
		}
		switch {
		case isTransfer:
			return P2PTransfer
		case amountCents < 0:
			return P2PExpense
		default:
			return P2PIncome
		}
	}
	return P2PUnknown
}

// LinkReimbursement ties an inflow to the prior outflow it repays. The
// inflow becomes a pass-through; with copyCategory, it takes the
// outflow's category with source reimbursement_link.
func (s *Transfers) LinkReimbursement(ctx context.Context, inflowID, outflowID string, copyCategory bool) error {
	return database.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		txRepo := s.Transactions.WithTx(tx)

		inflow, err := txRepo.Get(ctx, inflowID)
		if err != nil {
			return fmt.Errorf("load inflow: %w", err)
		}
		if inflow == nil {
			return ErrTransactionNotFound
		}
		if inflow.AmountCents <= 0 {
			return ErrNotAnInflow
		}
		if inflow.ReimbursementOfID != nil {
			return ErrAlreadyLinked
		}

		outflow, err := txRepo.Get(ctx, outflowID)
		if err != nil {
			return fmt.Errorf("load outflow: %w", err)
		}
		if outflow == nil {
			return ErrTransactionNotFound
		}
		if outflow.AmountCents >= 0 {
			return ErrNotAnOutflow
		}

		if err := txRepo.SetReimbursement(ctx, inflowID, &outflowID, true); err != nil {
			return fmt.Errorf("link reimbursement: %w", err)
		}

		if !copyCategory || outflow.CategoryID == nil || sameCategory(inflow.CategoryID, outflow.CategoryID) {
			return nil
		}
		if err := txRepo.UpdateCategorization(ctx, inflowID, outflow.CategoryID, repository.SourceReimbursement, nil); err != nil {
			return fmt.Errorf("copy category: %w", err)
		}
		return s.Audit.WithTx(tx).Insert(ctx, repository.AuditEntry{
			ID:                 uuid.NewString(),
			TransactionID:      inflowID,
			PreviousCategoryID: inflow.CategoryID,
			NewCategoryID:      outflow.CategoryID,
			ChangeSource:       repository.SourceReimbursement,
			ChangedBy:          "user",
		})
	})
}

// UnlinkReimbursement clears the link and the pass-through flag. The
// category stays as-is; only the relationship is reversed.
func (s *Transfers) UnlinkReimbursement(ctx context.Context, inflowID string) error {
	return database.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		txRepo := s.Transactions.WithTx(tx)
		inflow, err := txRepo.Get(ctx, inflowID)
		if err != nil {
			return fmt.Errorf("load inflow: %w", err)
		}
		if inflow == nil {
			return ErrTransactionNotFound
		}
		if inflow.ReimbursementOfID == nil {
			return ErrNotLinked
		}
		return txRepo.SetReimbursement(ctx, inflowID, nil, false)
	})
}

// ReimbursementCandidate is a possible repayment for an outflow, scored by
// description similarity.
type ReimbursementCandidate struct {
	Transaction repository.Transaction
	Similarity  float64
}

// FindReimbursementCandidates searches inflows in the forward window
// whose amounts fall within the configured tolerance of the outflow's
// magnitude, excluding already-linked rows. Results are ordered
// most-similar-description first.
func (s *Transfers) FindReimbursementCandidates(ctx context.Context, outflowID string) ([]ReimbursementCandidate, error) {
	outflow, err := s.Transactions.Get(ctx, outflowID)
	if err != nil {
		return nil, fmt.Errorf("load outflow: %w", err)
	}
	if outflow == nil {
		return nil, ErrTransactionNotFound
	}
	if outflow.AmountCents >= 0 {
		return nil, ErrNotAnOutflow
	}

	target := -outflow.AmountCents
	tol := s.Policy.ReimbursementTolerance
	minCents := int64(float64(target) * (1 - tol))
	maxCents := int64(float64(target) * (1 + tol))
	from := outflow.Date
	to := outflow.Date.AddDate(0, 0, s.Policy.ReimbursementWindowDays)

	inflows, err := s.Transactions.InflowCandidates(ctx, from, to, minCents, maxCents)
	if err != nil {
		return nil, fmt.Errorf("load candidates: %w", err)
	}

	out := make([]ReimbursementCandidate, 0, len(inflows))
	for _, in := range inflows {
		if in.ID == outflow.ID {
			continue
		}
		out = append(out, ReimbursementCandidate{
			Transaction: in,
			Similarity:  descriptionSimilarity(outflow.Description(), in.Description()),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })

	log := logger.FromContext(ctx)
	log.Debug().
		Str("outflow", outflowID).
		Int("candidates", len(out)).
		Msg("reimbursement candidate search")
	return out, nil
}

func descriptionSimilarity(a, b string) float64 {
	a, b = strings.ToUpper(a), strings.ToUpper(b)
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 1
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(maxLen)
}

func daysApart(a, b time.Time) int {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return int(d.Hours() / 24)
}
