package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and time filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// LedgerEvent is one row of the append-only mutation journal. The journal is
// a write-behind mirror of the in-memory ledger used for audit and archival;
// it is never read back to reconstruct ledger state.
type LedgerEvent struct {
	ID          int64
	Kind        string // deposit, hedge_open, hedge_reduce, hedge_close, stable_deploy, rebalance
	Participant Address
	Asset       Address
	Class       AssetClass
	AmountDelta int64
	ValueDelta  int64
	PositionID  uint64 // hedge position id, 0 otherwise
	CreatedAt   time.Time
}

// LedgerJournal persists ledger mutation events.
type LedgerJournal interface {
	Append(ctx context.Context, ev LedgerEvent) error
	List(ctx context.Context, participant Address, opts ListOpts) ([]LedgerEvent, error)
	ListBefore(ctx context.Context, before time.Time) ([]LedgerEvent, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
	ListBefore(ctx context.Context, before time.Time) ([]AuditEntry, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}
