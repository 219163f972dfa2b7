package repository

import "time"

// CategorySource records which layer of the waterfall (or which manual
// action) last assigned a transaction's category.
type CategorySource string

const (
	SourceProvider      CategorySource = "provider"
	SourceRule          CategorySource = "rule"
	SourcePayeeMemory   CategorySource = "payee_memory"
	SourceManual        CategorySource = "manual"
	SourceBulkEdit      CategorySource = "bulk_edit"
	SourceReimbursement CategorySource = "reimbursement_link"
	SourceSystem        CategorySource = "system"
)

// Direction constrains a rule to inflows, outflows, or either.
type Direction string

const (
	DirectionInflow  Direction = "inflow"
	DirectionOutflow Direction = "outflow"
	DirectionAny     Direction = "any"
)

// Account represents an account row.
type Account struct {
	ID          string
	Name        string
	Institution string
	AccountType string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Category represents a category row.
type Category struct {
	ID        string
	ParentID  *string
	Name      string
	Icon      *string
	SortOrder int
	IsSystem  bool
}

// Transaction represents a transaction row. Amounts are signed integer
// cents: positive inflow, negative outflow.
type Transaction struct {
	ID                  string
	AccountID           string
	ExternalID          *string
	Date                time.Time
	AmountCents         int64
	RawDescription      string
	CleanDescription    string
	CategoryID          *string
	CategorySource      CategorySource
	CategoryLocked      bool
	Confidence          *float64
	IsTransfer          bool
	IsPassThrough       bool
	IsBusiness          bool
	ParentTransactionID *string
	IsSplitParent       bool
	IsSplitChild        bool
	ReimbursementOfID   *string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Description returns the cleaned description when present, falling back
// to the raw provider string.
func (t Transaction) Description() string {
	if t.CleanDescription != "" {
		return t.CleanDescription
	}
	return t.RawDescription
}

// Direction derives the transaction's direction from its sign.
func (t Transaction) Direction() Direction {
	if t.AmountCents >= 0 {
		return DirectionInflow
	}
	return DirectionOutflow
}

// Rule represents a categorization rule row. Predicate fields are
// pointer-optional; nil means the dimension is unconstrained. All set
// predicates must hold for the rule to match.
type Rule struct {
	ID               string
	Name             string
	Priority         int
	IsActive         bool
	MerchantExact    *string
	MerchantContains *string
	AmountMinCents   *int64
	AmountMaxCents   *int64
	AccountID        *string
	Direction        Direction
	CategoryID       string
	SetTransfer      bool
	SetPassThrough   bool
	CreatedAt        time.Time
}

// PayeeMapping represents a learned payee -> category association.
type PayeeMapping struct {
	NormalizedPayee string
	CategoryID      string
	UsageCount      int
	LastUsedAt      time.Time
}

// AuditEntry is one append-only category-change record. Entries are never
// edited or deleted; undo only flips IsReverted.
type AuditEntry struct {
	ID                 string
	TransactionID      string
	PreviousCategoryID *string
	NewCategoryID      *string
	ChangeSource       CategorySource
	RuleID             *string
	Confidence         *float64
	ChangedBy          string
	BatchID            *string
	IsReverted         bool
	CreatedAt          time.Time
}

// Batch groups the mutations of one retroactive-rule application or bulk
// action so they can be undone together.
type Batch struct {
	ID               string
	RuleID           *string
	OperationType    string
	AppliedAt        time.Time
	TransactionCount int
	RangeStart       *time.Time
	RangeEnd         *time.Time
	IsUndone         bool
	UndoneAt         *time.Time
}
