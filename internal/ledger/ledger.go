// Package ledger owns the per-participant position collections: yield
// positions by asset class, the global hedge-position arena with
// per-participant id sequences, and stable-venue positions. The ledger is the
// authoritative in-memory state; mutations are serialized by the service
// layer's participant guard and mirrored to the journal best-effort.
package ledger

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/basislabs/hedgerd/internal/domain"
	"github.com/basislabs/hedgerd/internal/valuation"
)

// Ledger holds all position state. The internal mutex protects the
// collections for concurrent readers; writer serialization and re-entrancy
// rejection are the caller's responsibility (see service.Guard).
type Ledger struct {
	valuer valuation.Service
	assets map[domain.AssetClass]domain.Address
	venues *VenueRegistry
	logger *slog.Logger

	mu          sync.RWMutex
	nextHedgeID uint64
	yield       map[domain.Address]map[domain.AssetClass][]domain.YieldPosition
	hedges      map[uint64]*domain.HedgePosition
	hedgeIDs    map[domain.Address][]uint64
	stable      map[domain.Address]map[domain.Address][]domain.StablePosition
}

// New creates an empty Ledger. assets maps each asset class to its
// yield-bearing asset address; both mutation validation and the exposure
// fold rely on it.
func New(valuer valuation.Service, assets map[domain.AssetClass]domain.Address, venues *VenueRegistry, logger *slog.Logger) *Ledger {
	cp := make(map[domain.AssetClass]domain.Address, len(assets))
	for c, a := range assets {
		cp[c] = a
	}
	return &Ledger{
		valuer:      valuer,
		assets:      cp,
		venues:      venues,
		logger:      logger.With(slog.String("component", "ledger")),
		nextHedgeID: 1,
		yield:       make(map[domain.Address]map[domain.AssetClass][]domain.YieldPosition),
		hedges:      make(map[uint64]*domain.HedgePosition),
		hedgeIDs:    make(map[domain.Address][]uint64),
		stable:      make(map[domain.Address]map[domain.Address][]domain.StablePosition),
	}
}

// Asset returns the yield-bearing asset address for a class.
func (l *Ledger) Asset(class domain.AssetClass) (domain.Address, bool) {
	a, ok := l.assets[class]
	return a, ok
}

// ClassOf returns the asset class an asset address belongs to.
func (l *Ledger) ClassOf(asset domain.Address) (domain.AssetClass, bool) {
	for c, a := range l.assets {
		if a == asset {
			return c, true
		}
	}
	return "", false
}

// Venues returns the approved-venue registry.
func (l *Ledger) Venues() *VenueRegistry {
	return l.venues
}

// RecordYieldDeposit appends a new yield position valued at deposit time.
// Every deposit is a distinct ledger line; same-asset entries are never
// merged.
func (l *Ledger) RecordYieldDeposit(ctx context.Context, participant domain.Address, class domain.AssetClass, asset domain.Address, mintedAmount int64) (domain.YieldPosition, error) {
	if mintedAmount <= 0 {
		return domain.YieldPosition{}, domain.ErrInvalidAmount
	}
	// The asset must be the one registered for the class, or the per-class
	// exposure fold would book it under the wrong bucket.
	if want, ok := l.assets[class]; !ok || want != asset {
		return domain.YieldPosition{}, domain.ErrUnknownAssetClass
	}

	pos := domain.YieldPosition{
		Asset:     asset,
		Amount:    mintedAmount,
		ValueUSD:  l.valuer.ValueOf(asset, mintedAmount),
		Class:     class,
		CreatedAt: time.Now().UTC(),
	}

	l.mu.Lock()
	byClass, ok := l.yield[participant]
	if !ok {
		byClass = make(map[domain.AssetClass][]domain.YieldPosition)
		l.yield[participant] = byClass
	}
	byClass[class] = append(byClass[class], pos)
	l.mu.Unlock()

	l.logger.InfoContext(ctx, "yield deposit recorded",
		slog.String("participant", participant.Hex()),
		slog.String("class", string(class)),
		slog.Int64("amount", mintedAmount),
		slog.Int64("value_usd", pos.ValueUSD),
	)
	return pos, nil
}

// RecordHedgeOpen allocates a fresh hedge position id and appends a short
// position for the participant. Hedging the stable class is disallowed.
func (l *Ledger) RecordHedgeOpen(ctx context.Context, participant domain.Address, asset domain.Address, executedAmount int64, fundingRate int64, venueID uint64) (uint64, error) {
	if executedAmount <= 0 {
		return 0, domain.ErrInvalidAmount
	}
	class, ok := l.ClassOf(asset)
	if !ok {
		return 0, domain.ErrUnknownAssetClass
	}
	if class == domain.ClassUSD {
		return 0, domain.ErrStableHedgeDisallowed
	}

	l.mu.Lock()
	id := l.nextHedgeID
	l.nextHedgeID++
	pos := &domain.HedgePosition{
		ID:          id,
		VenueID:     venueID,
		Asset:       asset,
		Amount:      executedAmount,
		ValueUSD:    l.valuer.ValueOf(asset, executedAmount),
		Short:       true,
		FundingRate: fundingRate,
		OpenedAt:    time.Now().UTC(),
	}
	l.hedges[id] = pos
	l.hedgeIDs[participant] = append(l.hedgeIDs[participant], id)
	l.mu.Unlock()

	l.logger.InfoContext(ctx, "hedge opened",
		slog.String("participant", participant.Hex()),
		slog.Uint64("position_id", id),
		slog.Int64("amount", executedAmount),
		slog.Int64("value_usd", pos.ValueUSD),
		slog.Int64("funding_rate", fundingRate),
	)
	return id, nil
}

// RecordStableDeploy appends a stable position for an approved venue.
func (l *Ledger) RecordStableDeploy(ctx context.Context, participant domain.Address, venue domain.Address, amount int64) (domain.StablePosition, error) {
	if amount <= 0 {
		return domain.StablePosition{}, domain.ErrInvalidAmount
	}
	if !l.venues.IsApproved(venue) {
		return domain.StablePosition{}, domain.ErrVenueNotApproved
	}
	asset, ok := l.assets[domain.ClassUSD]
	if !ok {
		return domain.StablePosition{}, domain.ErrUnknownAssetClass
	}

	pos := domain.StablePosition{
		Asset:      asset,
		Amount:     amount,
		ValueUSD:   l.valuer.ValueOf(asset, amount),
		Venue:      venue,
		DeployedAt: time.Now().UTC(),
	}

	l.mu.Lock()
	byVenue, ok := l.stable[participant]
	if !ok {
		byVenue = make(map[domain.Address][]domain.StablePosition)
		l.stable[participant] = byVenue
	}
	byVenue[venue] = append(byVenue[venue], pos)
	l.mu.Unlock()

	l.logger.InfoContext(ctx, "stable capital deployed",
		slog.String("participant", participant.Hex()),
		slog.String("venue", venue.Hex()),
		slog.Int64("amount", amount),
		slog.Int64("value_usd", pos.ValueUSD),
	)
	return pos, nil
}

// RecordHedgeReduce closes up to usdValueToReduce worth of the participant's
// short hedges on the given class, in id-sequence order. It returns the USD
// value actually requested for closing, which is less than usdValueToReduce
// when the matching positions ran out first; callers decide whether that
// shortfall matters. A venue failure mid-scan rolls the participant's hedge
// state back to its pre-call snapshot and aborts.
func (l *Ledger) RecordHedgeReduce(ctx context.Context, participant domain.Address, class domain.AssetClass, usdValueToReduce int64, maxSlippageBps int64, venue domain.HedgeVenue) (int64, error) {
	if usdValueToReduce <= 0 {
		return 0, domain.ErrInvalidAmount
	}
	target, ok := l.assets[class]
	if !ok || class == domain.ClassUSD {
		return 0, domain.ErrUnknownAssetClass
	}

	snap := l.snapshotHedges(participant)
	remaining := usdValueToReduce

	l.mu.Lock()
	ids := l.hedgeIDs[participant]
	i := 0
	for i < len(ids) && remaining > 0 {
		pos := l.hedges[ids[i]]
		if pos == nil || pos.Asset != target || !pos.Short || pos.ValueUSD == 0 {
			i++
			continue
		}

		closeValue := remaining
		if pos.ValueUSD < closeValue {
			closeValue = pos.ValueUSD
		}
		// Translate USD to asset units proportionally to the position's
		// current amount-to-value ratio.
		closeAmount := domain.MulDiv(pos.Amount, closeValue, pos.ValueUSD)
		if closeAmount == 0 {
			i++
			continue
		}

		// The venue round-trip happens outside the collection lock; the
		// participant guard keeps other writers out meanwhile.
		venueID := pos.VenueID
		id := pos.ID
		l.mu.Unlock()
		closed, _, err := venue.CloseShort(ctx, venueID, closeAmount, maxSlippageBps)
		l.mu.Lock()
		if err != nil {
			l.restoreHedges(participant, snap)
			l.mu.Unlock()
			return 0, fmt.Errorf("ledger: close short %d: %w", id, err)
		}

		// The venue may execute less than requested; remaining is
		// decremented by the requested value regardless.
		pos.Amount -= closed
		pos.ValueUSD = l.valuer.ValueOf(pos.Asset, pos.Amount)
		remaining -= closeValue

		if pos.Amount == 0 {
			// Swap-with-last-and-pop; the id moved into slot i must be
			// examined, so i does not advance.
			last := len(ids) - 1
			ids[i] = ids[last]
			ids = ids[:last]
			l.hedgeIDs[participant] = ids
			delete(l.hedges, id)
			continue
		}
		i++
	}
	l.mu.Unlock()

	reduced := usdValueToReduce - remaining
	l.logger.InfoContext(ctx, "hedge reduced",
		slog.String("participant", participant.Hex()),
		slog.String("class", string(class)),
		slog.Int64("requested_usd", usdValueToReduce),
		slog.Int64("reduced_usd", reduced),
	)
	return reduced, nil
}

// hedgeSnapshot captures one participant's hedge state for rollback.
type hedgeSnapshot struct {
	ids       []uint64
	positions map[uint64]domain.HedgePosition
}

func (l *Ledger) snapshotHedges(participant domain.Address) hedgeSnapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	ids := make([]uint64, len(l.hedgeIDs[participant]))
	copy(ids, l.hedgeIDs[participant])
	positions := make(map[uint64]domain.HedgePosition, len(ids))
	for _, id := range ids {
		if p := l.hedges[id]; p != nil {
			positions[id] = *p
		}
	}
	return hedgeSnapshot{ids: ids, positions: positions}
}

// restoreHedges puts a participant's hedge state back to a snapshot. Caller
// holds l.mu.
func (l *Ledger) restoreHedges(participant domain.Address, snap hedgeSnapshot) {
	for _, id := range l.hedgeIDs[participant] {
		if _, ok := snap.positions[id]; !ok {
			delete(l.hedges, id)
		}
	}
	ids := make([]uint64, len(snap.ids))
	copy(ids, snap.ids)
	l.hedgeIDs[participant] = ids
	for id, p := range snap.positions {
		cp := p
		l.hedges[id] = &cp
	}
}

// YieldPositions returns copies of the participant's yield positions for one
// class, in deposit order.
func (l *Ledger) YieldPositions(participant domain.Address, class domain.AssetClass) []domain.YieldPosition {
	l.mu.RLock()
	defer l.mu.RUnlock()
	src := l.yield[participant][class]
	out := make([]domain.YieldPosition, len(src))
	copy(out, src)
	return out
}

// HedgePositions returns copies of the participant's open hedge positions in
// id-sequence order.
func (l *Ledger) HedgePositions(participant domain.Address) []domain.HedgePosition {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ids := l.hedgeIDs[participant]
	out := make([]domain.HedgePosition, 0, len(ids))
	for _, id := range ids {
		if p := l.hedges[id]; p != nil {
			out = append(out, *p)
		}
	}
	return out
}

// HedgePosition returns a copy of one hedge position from the global table.
func (l *Ledger) HedgePosition(id uint64) (domain.HedgePosition, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.hedges[id]
	if !ok {
		return domain.HedgePosition{}, domain.ErrNotFound
	}
	return *p, nil
}

// Participants returns every address holding at least one position, in
// byte order. The auto-rebalancer iterates this set.
func (l *Ledger) Participants() []domain.Address {
	l.mu.RLock()
	seen := make(map[domain.Address]struct{})
	for p := range l.yield {
		seen[p] = struct{}{}
	}
	for p := range l.hedgeIDs {
		seen[p] = struct{}{}
	}
	for p := range l.stable {
		seen[p] = struct{}{}
	}
	l.mu.RUnlock()

	out := make([]domain.Address, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b domain.Address) int {
		return bytes.Compare(a[:], b[:])
	})
	return out
}

// StablePositions returns copies of the participant's stable positions for
// every venue.
func (l *Ledger) StablePositions(participant domain.Address) []domain.StablePosition {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []domain.StablePosition
	for _, positions := range l.stable[participant] {
		out = append(out, positions...)
	}
	return out
}
