package valuation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/basislabs/hedgerd/internal/domain"
)

// LiveService is a Service that refreshes its rate table from a
// domain.RateCache. Between refreshes it behaves exactly like a
// StaticService over the last snapshot, preserving the determinism the
// valuation contract requires within a single operation. Assets missing from
// the cache fall back to the seed rates.
type LiveService struct {
	cache  domain.RateCache
	assets []domain.Address
	logger *slog.Logger

	mu    sync.RWMutex
	rates map[domain.Address]int64
}

// NewLive creates a LiveService seeded with the given rates. Refresh must be
// called (typically on a ticker) to pull updated rates from the cache.
func NewLive(cache domain.RateCache, seed map[domain.Address]int64, logger *slog.Logger) *LiveService {
	rates := make(map[domain.Address]int64, len(seed))
	assets := make([]domain.Address, 0, len(seed))
	for a, r := range seed {
		rates[a] = r
		assets = append(assets, a)
	}
	return &LiveService{
		cache:  cache,
		assets: assets,
		logger: logger.With(slog.String("component", "valuation")),
		rates:  rates,
	}
}

// Refresh pulls the latest rates from the cache. Assets absent from the
// cache keep their previous rate.
func (s *LiveService) Refresh(ctx context.Context) error {
	fresh, err := s.cache.GetRates(ctx, s.assets)
	if err != nil {
		return err
	}

	s.mu.Lock()
	for a, r := range fresh {
		if r > 0 {
			s.rates[a] = r
		}
	}
	s.mu.Unlock()

	s.logger.DebugContext(ctx, "rates refreshed", slog.Int("assets", len(fresh)))
	return nil
}

// RefreshLoop refreshes on the given interval until the context is
// cancelled.
func (s *LiveService) RefreshLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Refresh(ctx); err != nil {
				s.logger.WarnContext(ctx, "rate refresh failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// ValueOf converts amount units of asset into USD at the last snapshot.
func (s *LiveService) ValueOf(asset domain.Address, amount int64) int64 {
	s.mu.RLock()
	rate, ok := s.rates[asset]
	s.mu.RUnlock()
	if !ok {
		return 0
	}
	return domain.MulDiv(amount, rate, domain.ValueScale)
}

// AmountFor converts usdValue into asset units at the last snapshot.
func (s *LiveService) AmountFor(asset domain.Address, usdValue int64) int64 {
	s.mu.RLock()
	rate, ok := s.rates[asset]
	s.mu.RUnlock()
	if !ok || rate == 0 {
		return 0
	}
	return domain.MulDiv(usdValue, domain.ValueScale, rate)
}

// Compile-time interface check.
var _ Service = (*LiveService)(nil)
