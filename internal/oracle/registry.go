package oracle

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/quorumlabs/settled/internal/domain"
)

// Registry maps oracle references to live oracle handles. Market registration
// resolves the caller-supplied reference through the registry, and startup
// rehydration uses it to reattach persisted markets to their oracles.
type Registry struct {
	mu      sync.RWMutex
	oracles map[common.Address]domain.Oracle
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{oracles: make(map[common.Address]domain.Oracle)}
}

// Register adds an oracle under its own reference address.
func (r *Registry) Register(o domain.Oracle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.oracles[o.Ref()] = o
}

// Lookup returns the oracle registered under ref, or
// domain.ErrInvalidOracle if none is known.
func (r *Registry) Lookup(ref common.Address) (domain.Oracle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.oracles[ref]
	if !ok {
		return nil, domain.ErrInvalidOracle
	}
	return o, nil
}

// List returns every registered oracle reference.
func (r *Registry) List() []common.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	refs := make([]common.Address, 0, len(r.oracles))
	for ref := range r.oracles {
		refs = append(refs, ref)
	}
	return refs
}
