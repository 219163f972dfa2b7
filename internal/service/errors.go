package service

import "errors"

// ValidationError reports bad input: the request can never succeed as
// given. No partial mutation occurs.
type ValidationError string

func (e ValidationError) Error() string { return string(e) }

// ConflictError reports a request that is well-formed but collides with
// current state ("already done"). Callers render these differently from
// validation failures.
type ConflictError string

func (e ConflictError) Error() string { return string(e) }

var (
	ErrEmptyIDList         = ValidationError("empty transaction id list")
	ErrBatchTooLarge       = ValidationError("transaction id list exceeds max batch size")
	ErrTransactionNotFound = ValidationError("transaction not found")
	ErrRuleNotFound        = ValidationError("rule not found")
	ErrBatchNotFound       = ValidationError("batch not found")
	ErrCategoryRequired    = ValidationError("category id required")
	ErrTooFewSplitLines    = ValidationError("split requires at least two line items")
	ErrSplitLineAmount     = ValidationError("split line amounts must be positive")
	ErrSplitLineCategory   = ValidationError("every split line requires a category")
	ErrSplitSumMismatch    = ValidationError("split line amounts do not sum to the parent amount")
	ErrNotAnInflow         = ValidationError("transaction is not an inflow")
	ErrNotAnOutflow        = ValidationError("transaction is not an outflow")

	ErrAlreadySplit       = ConflictError("transaction is already split")
	ErrNestedSplit        = ConflictError("cannot split a split child")
	ErrNotSplit           = ConflictError("transaction has no split children")
	ErrBatchAlreadyUndone = ConflictError("batch is already undone")
	ErrAlreadyLinked      = ConflictError("transaction is already linked to a reimbursement")
	ErrNotLinked          = ConflictError("transaction is not linked to a reimbursement")
)

// IsValidation reports whether err is (or wraps) a validation error.
func IsValidation(err error) bool {
	var v ValidationError
	return errors.As(err, &v)
}

// IsConflict reports whether err is (or wraps) a conflict error.
func IsConflict(err error) bool {
	var c ConflictError
	return errors.As(err, &c)
}

func validateIDs(ids []string, max int) error {
	if len(ids) == 0 {
		return ErrEmptyIDList
	}
	if max > 0 && len(ids) > max {
		return ErrBatchTooLarge
	}
	return nil
}

func sameCategory(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
