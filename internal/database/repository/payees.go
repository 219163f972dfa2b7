package repository

import (
	"context"
	"database/sql"
)

// PayeeRepo stores learned payee -> category mappings, keyed by the
// normalized payee name.
type PayeeRepo struct{ db DBTX }

func NewPayeeRepo(db DBTX) *PayeeRepo { return &PayeeRepo{db: db} }

// WithTx returns a repo bound to the given transaction.
func (r *PayeeRepo) WithTx(tx *sql.Tx) *PayeeRepo { return &PayeeRepo{db: tx} }

func (r *PayeeRepo) Get(ctx context.Context, normalizedPayee string) (*PayeeMapping, error) {
	row := r.db.QueryRowContext(ctx, `
	SELECT normalized_payee, category_id, usage_count, last_used_at
	FROM payee_mappings WHERE normalized_payee = ?`, normalizedPayee)
	var m PayeeMapping
	if err := row.Scan(&m.NormalizedPayee, &m.CategoryID, &m.UsageCount, &m.LastUsedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

// Upsert records a manual categorization for the payee. Last write wins on
// conflicting categories; usage count grows either way.
func (r *PayeeRepo) Upsert(ctx context.Context, normalizedPayee, categoryID string) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO payee_mappings(normalized_payee, category_id, usage_count, last_used_at)
	VALUES(?, ?, 1, CURRENT_TIMESTAMP)
	ON CONFLICT(normalized_payee) DO UPDATE SET
	 category_id = excluded.category_id,
	 usage_count = usage_count + 1,
	 last_used_at = CURRENT_TIMESTAMP`, normalizedPayee, categoryID)
	return err
}

// Touch bumps usage without changing the mapped category. Called when the
// waterfall reuses a mapping.
func (r *PayeeRepo) Touch(ctx context.Context, normalizedPayee string) error {
	_, err := r.db.ExecContext(ctx, `
	UPDATE payee_mappings SET usage_count = usage_count + 1, last_used_at = CURRENT_TIMESTAMP
	WHERE normalized_payee = ?`, normalizedPayee)
	return err
}

func (r *PayeeRepo) Delete(ctx context.Context, normalizedPayee string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM payee_mappings WHERE normalized_payee = ?`, normalizedPayee)
	return err
}

// List returns mappings most-used first, for the UI collaborator.
func (r *PayeeRepo) List(ctx context.Context) ([]PayeeMapping, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT normalized_payee, category_id, usage_count, last_used_at
	FROM payee_mappings ORDER BY usage_count DESC, normalized_payee ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PayeeMapping
	for rows.Next() {
		var m PayeeMapping
		if err := rows.Scan(&m.NormalizedPayee, &m.CategoryID, &m.UsageCount, &m.LastUsedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
