package service

import (
	"context"
	"sync"

	"github.com/basislabs/hedgerd/internal/domain"
)

// guardToken marks a context as being inside a guarded mutating operation
// for one participant.
type guardToken struct {
	participant domain.Address
}

// Guard wraps every externally triggered mutating entry point. It serializes
// writers per participant and rejects re-entrant calls: when a collaborator
// invoked mid-operation calls back into an entry point with the context it
// was handed, the nested call fails with ErrReentrantCall instead of
// observing intermediate ledger state.
type Guard struct {
	mu    sync.Mutex
	locks map[domain.Address]*sync.Mutex
}

// NewGuard creates an empty Guard.
func NewGuard() *Guard {
	return &Guard{locks: make(map[domain.Address]*sync.Mutex)}
}

// Enter acquires the participant's write slot. The returned context must be
// propagated into all collaborator calls; the release function must be
// called on every exit path.
func (g *Guard) Enter(ctx context.Context, participant domain.Address) (context.Context, func(), error) {
	if ctx.Value(guardToken{participant}) != nil {
		return nil, nil, domain.ErrReentrantCall
	}

	g.mu.Lock()
	lock, ok := g.locks[participant]
	if !ok {
		lock = &sync.Mutex{}
		g.locks[participant] = lock
	}
	g.mu.Unlock()

	lock.Lock()
	return context.WithValue(ctx, guardToken{participant}, struct{}{}), lock.Unlock, nil
}
