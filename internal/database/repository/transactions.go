package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

const txColumns = `id, account_id, external_id, date, amount, raw_description, clean_description,
 category_id, category_source, category_locked, confidence,
 is_transfer, is_pass_through, is_business,
 parent_transaction_id, is_split_parent, is_split_child, reimbursement_of_id,
 created_at, updated_at`

// TransactionFilters defines list filters.
type TransactionFilters struct {
	AccountID     string
	CategoryID    string
	From          time.Time
	To            time.Time
	Search        string
	Uncategorized bool
	UnlockedOnly  bool
}

// FlagPatch is a partial update of the relationship flags. Nil fields are
// left untouched.
type FlagPatch struct {
	IsTransfer    *bool
	IsPassThrough *bool
	IsBusiness    *bool
}

// IsEmpty reports whether the patch changes nothing.
func (p FlagPatch) IsEmpty() bool {
	return p.IsTransfer == nil && p.IsPassThrough == nil && p.IsBusiness == nil
}

// TransactionRepo handles transactions.
type TransactionRepo struct {
	db DBTX
}

func NewTransactionRepo(db DBTX) *TransactionRepo { return &TransactionRepo{db: db} }

// WithTx returns a repo bound to the given transaction.
func (r *TransactionRepo) WithTx(tx *sql.Tx) *TransactionRepo { return &TransactionRepo{db: tx} }

func (r *TransactionRepo) Insert(ctx context.Context, t Transaction) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO transactions(
	 id, account_id, external_id, date, amount, raw_description, clean_description,
	 category_id, category_source, category_locked, confidence,
	 is_transfer, is_pass_through, is_business,
	 parent_transaction_id, is_split_parent, is_split_child, reimbursement_of_id,
	 created_at, updated_at)
	VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP);
	`,
		t.ID, t.AccountID, t.ExternalID, t.Date, t.AmountCents, t.RawDescription, t.CleanDescription,
		t.CategoryID, string(t.CategorySource), t.CategoryLocked, t.Confidence,
		t.IsTransfer, t.IsPassThrough, t.IsBusiness,
		t.ParentTransactionID, t.IsSplitParent, t.IsSplitChild, t.ReimbursementOfID)
	return err
}

func (r *TransactionRepo) Get(ctx context.Context, id string) (*Transaction, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+txColumns+` FROM transactions WHERE id = ?`, id)
	t, err := scanTransaction(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

// GetMany loads the given ids, preserving input order. Unknown ids are
// silently absent from the result.
func (r *TransactionRepo) GetMany(ctx context.Context, ids []string) ([]Transaction, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := r.db.QueryContext(ctx, `SELECT `+txColumns+` FROM transactions WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := make(map[string]Transaction, len(ids))
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		byID[t.ID] = t
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	out := make([]Transaction, 0, len(byID))
	for _, id := range ids {
		if t, ok := byID[id]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *TransactionRepo) List(ctx context.Context, f TransactionFilters) ([]Transaction, error) {
	var where []string
	var args []interface{}

	if f.AccountID != "" {
		where = append(where, "account_id = ?")
		args = append(args, f.AccountID)
	}
	if f.CategoryID != "" {
		where = append(where, "category_id = ?")
		args = append(args, f.CategoryID)
	}
	if !f.From.IsZero() {
		where = append(where, "date >= ?")
		args = append(args, f.From)
	}
	if !f.To.IsZero() {
		where = append(where, "date < ?")
		args = append(args, f.To)
	}
	if f.Search != "" {
		where = append(where, "raw_description LIKE ?")
		args = append(args, "%"+f.Search+"%")
	}
	if f.Uncategorized {
		where = append(where, "category_id IS NULL")
	}
	if f.UnlockedOnly {
		where = append(where, "category_locked = 0")
	}

	query := `SELECT ` + txColumns + ` FROM transactions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY date ASC, created_at ASC, id ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// UpdateCategorization sets the category, its source, and the confidence
// in one write. It does not touch the lock flag.
func (r *TransactionRepo) UpdateCategorization(ctx context.Context, id string, categoryID *string, source CategorySource, confidence *float64) error {
	_, err := r.db.ExecContext(ctx, `
	UPDATE transactions SET category_id = ?, category_source = ?, confidence = ?, updated_at = CURRENT_TIMESTAMP
	WHERE id = ?`, categoryID, string(source), confidence, id)
	return err
}

// SetSource changes the category source without touching the category.
func (r *TransactionRepo) SetSource(ctx context.Context, id string, source CategorySource) error {
	_, err := r.db.ExecContext(ctx, `
	UPDATE transactions SET category_source = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, string(source), id)
	return err
}

func (r *TransactionRepo) SetLocked(ctx context.Context, id string, locked bool) error {
	_, err := r.db.ExecContext(ctx, `
	UPDATE transactions SET category_locked = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, locked, id)
	return err
}

// SetFlags merges a partial flag patch into the row.
func (r *TransactionRepo) SetFlags(ctx context.Context, id string, p FlagPatch) error {
	var set []string
	var args []interface{}
	if p.IsTransfer != nil {
		set = append(set, "is_transfer = ?")
		args = append(args, *p.IsTransfer)
	}
	if p.IsPassThrough != nil {
		set = append(set, "is_pass_through = ?")
		args = append(args, *p.IsPassThrough)
	}
	if p.IsBusiness != nil {
		set = append(set, "is_business = ?")
		args = append(args, *p.IsBusiness)
	}
	if len(set) == 0 {
		return nil
	}
	args = append(args, id)
	_, err := r.db.ExecContext(ctx, `
	UPDATE transactions SET `+strings.Join(set, ", ")+`, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, args...)
	return err
}

func (r *TransactionRepo) SetSplitParent(ctx context.Context, id string, isParent bool) error {
	_, err := r.db.ExecContext(ctx, `
	UPDATE transactions SET is_split_parent = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, isParent, id)
	return err
}

func (r *TransactionRepo) ChildrenOf(ctx context.Context, parentID string) ([]Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+txColumns+` FROM transactions WHERE parent_transaction_id = ? ORDER BY created_at ASC, id ASC`, parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// DeleteChildren removes every split child of the parent and reports how
// many rows went away.
func (r *TransactionRepo) DeleteChildren(ctx context.Context, parentID string) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE parent_transaction_id = ?`, parentID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// SetReimbursement links (or clears) the reimbursement pointer and the
// pass-through flag in one write.
func (r *TransactionRepo) SetReimbursement(ctx context.Context, id string, of *string, passThrough bool) error {
	_, err := r.db.ExecContext(ctx, `
	UPDATE transactions SET reimbursement_of_id = ?, is_pass_through = ?, updated_at = CURRENT_TIMESTAMP
	WHERE id = ?`, of, passThrough, id)
	return err
}

// InflowCandidates returns unlinked inflows inside [from, to) whose
// amounts fall within [minCents, maxCents]. Split parents are excluded;
// their children carry the spendable amounts.
func (r *TransactionRepo) InflowCandidates(ctx context.Context, from, to time.Time, minCents, maxCents int64) ([]Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT `+txColumns+` FROM transactions
	WHERE amount > 0
	  AND date >= ? AND date < ?
	  AND amount >= ? AND amount <= ?
	  AND reimbursement_of_id IS NULL
	  AND is_split_parent = 0
	ORDER BY date ASC, id ASC`, from, to, minCents, maxCents)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// SumCashflow totals signed amounts over [from, to), honoring the
// aggregation invariants: split parents, transfers, and pass-throughs are
// excluded; split children are included.
func (r *TransactionRepo) SumCashflow(ctx context.Context, from, to time.Time) (int64, error) {
	row := r.db.QueryRowContext(ctx, `
	SELECT COALESCE(SUM(amount), 0) FROM transactions
	WHERE date >= ? AND date < ?
	  AND is_split_parent = 0
	  AND is_transfer = 0
	  AND is_pass_through = 0`, from, to)
	var total int64
	if err := row.Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func scanTransaction(row scanner) (Transaction, error) {
	var t Transaction
	var external, category, parent, reimb sql.NullString
	var source string
	var confidence sql.NullFloat64
	if err := row.Scan(&t.ID, &t.AccountID, &external, &t.Date, &t.AmountCents,
		&t.RawDescription, &t.CleanDescription,
		&category, &source, &t.CategoryLocked, &confidence,
		&t.IsTransfer, &t.IsPassThrough, &t.IsBusiness,
		&parent, &t.IsSplitParent, &t.IsSplitChild, &reimb,
		&t.CreatedAt, &t.UpdatedAt); err != nil {
		return Transaction{}, err
	}
	t.CategorySource = CategorySource(source)
	if external.Valid {
		t.ExternalID = &external.String
	}
	if category.Valid {
		t.CategoryID = &category.String
	}
	if confidence.Valid {
		t.Confidence = &confidence.Float64
	}
	if parent.Valid {
		t.ParentTransactionID = &parent.String
	}
	if reimb.Valid {
		t.ReimbursementOfID = &reimb.String
	}
	return t, nil
}
