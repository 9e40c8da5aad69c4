package ledger

import (
	"sync"

	"github.com/basislabs/hedgerd/internal/domain"
)

// VenueRegistry is the explicit approved-venue set: an insertion-ordered
// list maintained incrementally on approve and revoke.
type VenueRegistry struct {
	mu       sync.RWMutex
	approved map[domain.Address]bool
	order    []domain.Address
}

// NewVenueRegistry creates a registry pre-approved with the given venues, in
// order.
func NewVenueRegistry(venues ...domain.Address) *VenueRegistry {
	r := &VenueRegistry{approved: make(map[domain.Address]bool)}
	for _, v := range venues {
		r.Approve(v)
	}
	return r
}

// Approve adds a venue to the registry. Approving an already approved venue
// is a no-op.
func (r *VenueRegistry) Approve(venue domain.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.approved[venue] {
		return
	}
	r.approved[venue] = true
	r.order = append(r.order, venue)
}

// Revoke removes a venue from the registry. Revoking preserves the relative
// order of the remaining venues. It returns false when the venue was not
// approved.
func (r *VenueRegistry) Revoke(venue domain.Address) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.approved[venue] {
		return false
	}
	delete(r.approved, venue)
	for i, v := range r.order {
		if v == venue {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// IsApproved reports whether a venue is currently approved.
func (r *VenueRegistry) IsApproved(venue domain.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.approved[venue]
}

// List returns the approved venues in approval order.
func (r *VenueRegistry) List() []domain.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Address, len(r.order))
	copy(out, r.order)
	return out
}
