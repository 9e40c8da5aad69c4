package ledger

import (
	"github.com/basislabs/hedgerd/internal/domain"
)

// Summary folds the three position collections into the participant's
// exposure view. It is computed fresh on every call; there is no cached
// aggregate to drift out of sync with the ledger.
func (l *Ledger) Summary(participant domain.Address) domain.PortfolioSummary {
	l.mu.RLock()
	defer l.mu.RUnlock()

	s := domain.PortfolioSummary{Participant: participant}

	yieldByClass := make(map[domain.AssetClass]int64, len(domain.AssetClasses))
	for class, positions := range l.yield[participant] {
		for _, p := range positions {
			yieldByClass[class] += p.ValueUSD
			s.TotalValueUSD += p.ValueUSD
		}
	}

	hedgeByClass := make(map[domain.AssetClass]int64)
	for _, id := range l.hedgeIDs[participant] {
		p := l.hedges[id]
		if p == nil {
			continue
		}
		if class, ok := l.ClassOf(p.Asset); ok {
			hedgeByClass[class] += p.ValueUSD
		}
	}

	var stableValue int64
	for _, positions := range l.stable[participant] {
		for _, p := range positions {
			stableValue += p.ValueUSD
		}
	}
	s.TotalValueUSD += stableValue

	s.ETHExposureUSD = yieldByClass[domain.ClassETH] - hedgeByClass[domain.ClassETH]
	s.BTCExposureUSD = yieldByClass[domain.ClassBTC] - hedgeByClass[domain.ClassBTC]
	s.USDExposureUSD = yieldByClass[domain.ClassUSD] + stableValue
	return s
}

// YieldValue returns the summed value of the participant's yield positions
// for one class.
func (l *Ledger) YieldValue(participant domain.Address, class domain.AssetClass) int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var total int64
	for _, p := range l.yield[participant][class] {
		total += p.ValueUSD
	}
	return total
}
