package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/basislabs/hedgerd/internal/domain"
	"github.com/basislabs/hedgerd/internal/ledger"
	"github.com/basislabs/hedgerd/internal/notify"
)

// AdminService is the ownership-gated configuration surface: allocation
// policy, the approved stable-venue registry, and the active hedging venue.
// Every operation checks the caller against the single owner address.
type AdminService struct {
	owner    domain.Address
	registry *ledger.VenueRegistry
	audit    domain.AuditStore // optional
	notifier *notify.Notifier  // optional
	logger   *slog.Logger

	mu          sync.RWMutex
	policy      domain.AllocationPolicy
	hedgeVenues map[domain.Address]domain.HedgeVenue
	activeVenue domain.Address
}

// NewAdminService creates an AdminService with the given initial policy and
// known hedging venue connectors. active selects the initial hedging venue.
func NewAdminService(
	owner domain.Address,
	policy domain.AllocationPolicy,
	registry *ledger.VenueRegistry,
	hedgeVenues map[domain.Address]domain.HedgeVenue,
	active domain.Address,
	audit domain.AuditStore,
	notifier *notify.Notifier,
	logger *slog.Logger,
) (*AdminService, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	cp := make(map[domain.Address]domain.HedgeVenue, len(hedgeVenues))
	for a, v := range hedgeVenues {
		cp[a] = v
	}
	if _, ok := cp[active]; !ok && len(cp) > 0 {
		return nil, fmt.Errorf("admin_service: unknown hedging venue %s", active.Hex())
	}
	return &AdminService{
		owner:       owner,
		registry:    registry,
		audit:       audit,
		notifier:    notifier,
		logger:      logger.With(slog.String("component", "admin_service")),
		policy:      policy,
		hedgeVenues: cp,
		activeVenue: active,
	}, nil
}

// Owner returns the administrative capability holder.
func (s *AdminService) Owner() domain.Address {
	return s.owner
}

// Policy returns the current allocation policy. Implements
// engine.PolicySource.
func (s *AdminService) Policy() domain.AllocationPolicy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.policy
}

// HedgeVenue returns the active hedging venue connector. Implements
// engine.VenueSource.
func (s *AdminService) HedgeVenue() domain.HedgeVenue {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hedgeVenues[s.activeVenue]
}

// ApprovedVenues returns the approved stable venues in approval order.
func (s *AdminService) ApprovedVenues() []domain.Address {
	return s.registry.List()
}

// ActiveHedgeVenue returns the address of the active hedging venue.
func (s *AdminService) ActiveHedgeVenue() domain.Address {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeVenue
}

// UpdatePolicy replaces the allocation policy. The targets must sum to
// exactly 10000 bps.
func (s *AdminService) UpdatePolicy(ctx context.Context, caller domain.Address, policy domain.AllocationPolicy) error {
	if caller != s.owner {
		return domain.ErrNotOwner
	}
	if err := policy.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	s.policy = policy
	s.mu.Unlock()

	s.logAndNotify(ctx, "policy_updated", "Allocation policy updated",
		fmt.Sprintf("targets eth=%d btc=%d usd=%d bps, threshold=%d bps",
			policy.TargetETHBps, policy.TargetBTCBps, policy.TargetUSDBps, policy.ThresholdBps),
		map[string]any{
			"event":            "policy_updated",
			"target_eth_bps":   policy.TargetETHBps,
			"target_btc_bps":   policy.TargetBTCBps,
			"target_usd_bps":   policy.TargetUSDBps,
			"threshold_bps":    policy.ThresholdBps,
			"max_slippage_bps": policy.MaxSlippageBps,
		})
	return nil
}

// ApproveVenue adds a stable venue to the approved registry.
func (s *AdminService) ApproveVenue(ctx context.Context, caller domain.Address, venue domain.Address) error {
	if caller != s.owner {
		return domain.ErrNotOwner
	}
	s.registry.Approve(venue)
	s.logAndNotify(ctx, "venue_approved", "Venue approved", venue.Hex(),
		map[string]any{"event": "venue_approved", "venue": venue.Hex()})
	return nil
}

// RevokeVenue removes a stable venue from the approved registry.
func (s *AdminService) RevokeVenue(ctx context.Context, caller domain.Address, venue domain.Address) error {
	if caller != s.owner {
		return domain.ErrNotOwner
	}
	if !s.registry.Revoke(venue) {
		return domain.ErrNotFound
	}
	s.logAndNotify(ctx, "venue_revoked", "Venue revoked", venue.Hex(),
		map[string]any{"event": "venue_revoked", "venue": venue.Hex()})
	return nil
}

// SetHedgeVenue switches the active hedging venue to a known connector.
func (s *AdminService) SetHedgeVenue(ctx context.Context, caller domain.Address, venue domain.Address) error {
	if caller != s.owner {
		return domain.ErrNotOwner
	}

	s.mu.Lock()
	if _, ok := s.hedgeVenues[venue]; !ok {
		s.mu.Unlock()
		return domain.ErrNotFound
	}
	s.activeVenue = venue
	s.mu.Unlock()

	s.logAndNotify(ctx, "hedge_venue_changed", "Hedging venue changed", venue.Hex(),
		map[string]any{"event": "hedge_venue_changed", "venue": venue.Hex()})
	return nil
}

func (s *AdminService) logAndNotify(ctx context.Context, event, title, message string, detail map[string]any) {
	if s.audit != nil {
		if err := s.audit.Log(ctx, event, detail); err != nil {
			s.logger.WarnContext(ctx, "audit log failed",
				slog.String("event", event),
				slog.String("error", err.Error()),
			)
		}
	}
	if s.notifier != nil {
		if err := s.notifier.Notify(ctx, event, title, message); err != nil {
			s.logger.WarnContext(ctx, "notify failed",
				slog.String("event", event),
				slog.String("error", err.Error()),
			)
		}
	}
}
