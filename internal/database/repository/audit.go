package repository

import (
	"context"
	"database/sql"
)

const auditColumns = `id, transaction_id, previous_category_id, new_category_id, change_source,
 rule_id, confidence, changed_by, batch_id, is_reverted, created_at`

// AuditRepo stores the append-only category-change log. There is no update
// or delete beyond MarkReverted.
type AuditRepo struct{ db DBTX }

func NewAuditRepo(db DBTX) *AuditRepo { return &AuditRepo{db: db} }

// WithTx returns a repo bound to the given transaction.
func (r *AuditRepo) WithTx(tx *sql.Tx) *AuditRepo { return &AuditRepo{db: tx} }

func (r *AuditRepo) Insert(ctx context.Context, e AuditEntry) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO audit_log(
	 id, transaction_id, previous_category_id, new_category_id, change_source,
	 rule_id, confidence, changed_by, batch_id, is_reverted, created_at)
	VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, 0, CURRENT_TIMESTAMP)
	`, e.ID, e.TransactionID, e.PreviousCategoryID, e.NewCategoryID, string(e.ChangeSource),
		e.RuleID, e.Confidence, e.ChangedBy, e.BatchID)
	return err
}

// MarkReverted flips the single mutable bit on an audit entry.
func (r *AuditRepo) MarkReverted(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE audit_log SET is_reverted = 1 WHERE id = ?`, id)
	return err
}

// ListByTransaction returns the full change history for one transaction,
// oldest first.
func (r *AuditRepo) ListByTransaction(ctx context.Context, transactionID string) ([]AuditEntry, error) {
	return r.list(ctx, `WHERE transaction_id = ?`, transactionID)
}

// ListByBatch returns every entry written under one batch, oldest first.
func (r *AuditRepo) ListByBatch(ctx context.Context, batchID string) ([]AuditEntry, error) {
	return r.list(ctx, `WHERE batch_id = ?`, batchID)
}

func (r *AuditRepo) list(ctx context.Context, where string, args ...interface{}) ([]AuditEntry, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+auditColumns+` FROM audit_log `+where+`
	ORDER BY rowid ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AuditEntry
	for rows.Next() {
		e, err := scanAuditEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanAuditEntry(row scanner) (AuditEntry, error) {
	var e AuditEntry
	var prev, next, ruleID, batchID sql.NullString
	var confidence sql.NullFloat64
	var source string
	if err := row.Scan(&e.ID, &e.TransactionID, &prev, &next, &source,
		&ruleID, &confidence, &e.ChangedBy, &batchID, &e.IsReverted, &e.CreatedAt); err != nil {
		return AuditEntry{}, err
	}
	e.ChangeSource = CategorySource(source)
	if prev.Valid {
		e.PreviousCategoryID = &prev.String
	}
	if next.Valid {
		e.NewCategoryID = &next.String
	}
	if ruleID.Valid {
		e.RuleID = &ruleID.String
	}
	if batchID.Valid {
		e.BatchID = &batchID.String
	}
	return e, nil
}
