package repository

import (
	"context"
	"database/sql"
	"time"
)

// BatchRepo stores batch records for retroactive and bulk mutations.
type BatchRepo struct{ db DBTX }

func NewBatchRepo(db DBTX) *BatchRepo { return &BatchRepo{db: db} }

// WithTx returns a repo bound to the given transaction.
func (r *BatchRepo) WithTx(tx *sql.Tx) *BatchRepo { return &BatchRepo{db: tx} }

func (r *BatchRepo) Insert(ctx context.Context, b Batch) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO batches(id, rule_id, operation_type, applied_at, transaction_count,
	 range_start, range_end, is_undone, undone_at)
	VALUES(?, ?, ?, ?, ?, ?, ?, 0, NULL)
	`, b.ID, b.RuleID, b.OperationType, b.AppliedAt, b.TransactionCount, b.RangeStart, b.RangeEnd)
	return err
}

func (r *BatchRepo) Get(ctx context.Context, id string) (*Batch, error) {
	row := r.db.QueryRowContext(ctx, `
	SELECT id, rule_id, operation_type, applied_at, transaction_count,
	 range_start, range_end, is_undone, undone_at
	FROM batches WHERE id = ?`, id)
	var b Batch
	var ruleID sql.NullString
	var rangeStart, rangeEnd, undoneAt sql.NullTime
	if err := row.Scan(&b.ID, &ruleID, &b.OperationType, &b.AppliedAt, &b.TransactionCount,
		&rangeStart, &rangeEnd, &b.IsUndone, &undoneAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if ruleID.Valid {
		b.RuleID = &ruleID.String
	}
	if rangeStart.Valid {
		b.RangeStart = &rangeStart.Time
	}
	if rangeEnd.Valid {
		b.RangeEnd = &rangeEnd.Time
	}
	if undoneAt.Valid {
		b.UndoneAt = &undoneAt.Time
	}
	return &b, nil
}

// MarkUndone flips is_undone. It refuses to flip twice: the caller treats
// zero affected rows as an already-undone conflict.
func (r *BatchRepo) MarkUndone(ctx context.Context, id string, undoneAt time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
	UPDATE batches SET is_undone = 1, undone_at = ? WHERE id = ? AND is_undone = 0`, undoneAt, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
