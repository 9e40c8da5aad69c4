package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/basislabs/hedgerd/internal/domain"
)

func TestVenueRegistry(t *testing.T) {
	r := NewVenueRegistry()

	assert.False(t, r.IsApproved(venueAddr))
	assert.Empty(t, r.List())

	r.Approve(venueAddr)
	r.Approve(otherVenue)
	r.Approve(venueAddr) // duplicate approval is a no-op

	assert.True(t, r.IsApproved(venueAddr))
	assert.Equal(t, []domain.Address{venueAddr, otherVenue}, r.List())

	assert.True(t, r.Revoke(venueAddr))
	assert.False(t, r.IsApproved(venueAddr))
	assert.Equal(t, []domain.Address{otherVenue}, r.List())

	// Revoking an unapproved venue reports false.
	assert.False(t, r.Revoke(venueAddr))

	// Re-approval appends at the end.
	r.Approve(venueAddr)
	assert.Equal(t, []domain.Address{otherVenue, venueAddr}, r.List())
}
