package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/basislabs/hedgerd/internal/domain"
)

// JournalStore implements domain.LedgerJournal using PostgreSQL. Addresses
// are stored as lowercase hex text so rows stay greppable with psql.
type JournalStore struct {
	pool *pgxpool.Pool
}

// NewJournalStore creates a new JournalStore backed by the given pool.
func NewJournalStore(pool *pgxpool.Pool) *JournalStore {
	return &JournalStore{pool: pool}
}

// Append inserts a new journal row. The event's ID and CreatedAt are assigned
// by the database.
func (s *JournalStore) Append(ctx context.Context, ev domain.LedgerEvent) error {
	const query = `
		INSERT INTO ledger_journal
			(kind, participant, asset, class, amount_delta, value_delta, position_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.pool.Exec(ctx, query,
		ev.Kind,
		ev.Participant.Hex(),
		ev.Asset.Hex(),
		string(ev.Class),
		ev.AmountDelta,
		ev.ValueDelta,
		int64(ev.PositionID),
	)
	if err != nil {
		return fmt.Errorf("postgres: append journal %s: %w", ev.Kind, err)
	}
	return nil
}

// List returns a participant's journal rows, newest first, with pagination
// and optional time filtering.
func (s *JournalStore) List(ctx context.Context, participant domain.Address, opts domain.ListOpts) ([]domain.LedgerEvent, error) {
	query := `
		SELECT id, kind, participant, asset, class, amount_delta, value_delta, position_id, created_at
		FROM ledger_journal
		WHERE participant = $1`
	args := []any{participant.Hex()}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list journal: %w", err)
	}
	defer rows.Close()

	return scanLedgerEvents(rows)
}

// ListBefore returns all journal rows older than the given cutoff, oldest
// first, for archival.
func (s *JournalStore) ListBefore(ctx context.Context, before time.Time) ([]domain.LedgerEvent, error) {
	const query = `
		SELECT id, kind, participant, asset, class, amount_delta, value_delta, position_id, created_at
		FROM ledger_journal
		WHERE created_at < $1
		ORDER BY created_at ASC`

	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list journal before: %w", err)
	}
	defer rows.Close()

	return scanLedgerEvents(rows)
}

// DeleteBefore removes journal rows older than the given cutoff and returns
// the number of rows deleted.
func (s *JournalStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM ledger_journal WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete journal before: %w", err)
	}
	return tag.RowsAffected(), nil
}

// rowScanner is satisfied by pgx.Rows; it keeps scanLedgerEvents decoupled
// from the concrete rows type.
type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanLedgerEvents(rows rowScanner) ([]domain.LedgerEvent, error) {
	var events []domain.LedgerEvent
	for rows.Next() {
		var (
			ev                        domain.LedgerEvent
			participant, asset, class string
			positionID                int64
		)
		if err := rows.Scan(&ev.ID, &ev.Kind, &participant, &asset, &class,
			&ev.AmountDelta, &ev.ValueDelta, &positionID, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan journal row: %w", err)
		}
		ev.Participant = common.HexToAddress(participant)
		ev.Asset = common.HexToAddress(asset)
		ev.Class = domain.AssetClass(class)
		ev.PositionID = uint64(positionID)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: journal rows: %w", err)
	}
	return events, nil
}

// Compile-time interface check.
var _ domain.LedgerJournal = (*JournalStore)(nil)
