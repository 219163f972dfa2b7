package repository

import (
	"context"
	"database/sql"
)

const ruleColumns = `id, name, priority, is_active, merchant_exact, merchant_contains,
 amount_min, amount_max, account_id, direction, category_id,
 set_transfer, set_pass_through, created_at`

// RuleRepo stores categorization rules.
type RuleRepo struct{ db DBTX }

func NewRuleRepo(db DBTX) *RuleRepo { return &RuleRepo{db: db} }

// WithTx returns a repo bound to the given transaction.
func (r *RuleRepo) WithTx(tx *sql.Tx) *RuleRepo { return &RuleRepo{db: tx} }

func (r *RuleRepo) Insert(ctx context.Context, rule Rule) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO categorization_rules(
	 id, name, priority, is_active, merchant_exact, merchant_contains,
	 amount_min, amount_max, account_id, direction, category_id,
	 set_transfer, set_pass_through, created_at)
	VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	`, rule.ID, rule.Name, rule.Priority, rule.IsActive, rule.MerchantExact, rule.MerchantContains,
		rule.AmountMinCents, rule.AmountMaxCents, rule.AccountID, string(rule.Direction), rule.CategoryID,
		rule.SetTransfer, rule.SetPassThrough)
	return err
}

func (r *RuleRepo) Update(ctx context.Context, rule Rule) error {
	_, err := r.db.ExecContext(ctx, `
	UPDATE categorization_rules SET
	 name = ?, priority = ?, is_active = ?, merchant_exact = ?, merchant_contains = ?,
	 amount_min = ?, amount_max = ?, account_id = ?, direction = ?, category_id = ?,
	 set_transfer = ?, set_pass_through = ?
	WHERE id = ?
	`, rule.Name, rule.Priority, rule.IsActive, rule.MerchantExact, rule.MerchantContains,
		rule.AmountMinCents, rule.AmountMaxCents, rule.AccountID, string(rule.Direction), rule.CategoryID,
		rule.SetTransfer, rule.SetPassThrough, rule.ID)
	return err
}

func (r *RuleRepo) SetActive(ctx context.Context, id string, active bool) error {
	_, err := r.db.ExecContext(ctx, `UPDATE categorization_rules SET is_active = ? WHERE id = ?`, active, id)
	return err
}

func (r *RuleRepo) Get(ctx context.Context, id string) (*Rule, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM categorization_rules WHERE id = ?`, id)
	rule, err := scanRule(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &rule, nil
}

// ListActive returns active rules in evaluation order: priority descending,
// then created_at ascending, then id ascending. The secondary keys make the
// priority tiebreak deterministic: within a priority band, the earlier rule
// wins.
func (r *RuleRepo) ListActive(ctx context.Context) ([]Rule, error) {
	return r.list(ctx, `WHERE is_active = 1`)
}

func (r *RuleRepo) List(ctx context.Context) ([]Rule, error) {
	return r.list(ctx, ``)
}

func (r *RuleRepo) list(ctx context.Context, where string) ([]Rule, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+ruleColumns+` FROM categorization_rules `+where+`
	ORDER BY priority DESC, created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}

func scanRule(row scanner) (Rule, error) {
	var rule Rule
	var exact, contains, account sql.NullString
	var amountMin, amountMax sql.NullInt64
	var direction string
	if err := row.Scan(&rule.ID, &rule.Name, &rule.Priority, &rule.IsActive,
		&exact, &contains, &amountMin, &amountMax, &account, &direction, &rule.CategoryID,
		&rule.SetTransfer, &rule.SetPassThrough, &rule.CreatedAt); err != nil {
		return Rule{}, err
	}
	rule.Direction = Direction(direction)
	if exact.Valid {
		rule.MerchantExact = &exact.String
	}
	if contains.Valid {
		rule.MerchantContains = &contains.String
	}
	if amountMin.Valid {
		rule.AmountMinCents = &amountMin.Int64
	}
	if amountMax.Valid {
		rule.AmountMaxCents = &amountMax.Int64
	}
	if account.Valid {
		rule.AccountID = &account.String
	}
	return rule, nil
}
