package ledger

import (
	"errors"
	"slices"
	"sync"

	"github.com/goodnatureofminers/ledgerchat/internal/chat/model"
)

// Registry holds the chains the client knows how to connect to.
type Registry struct {
	mu     sync.RWMutex
	chains map[uint64]model.ChainParams
}

// NewRegistry builds a registry preloaded with chains.
func NewRegistry(chains ...model.ChainParams) *Registry {
	r := &Registry{chains: make(map[uint64]model.ChainParams, len(chains))}
	for _, c := range chains {
		r.chains[c.ChainID] = c
	}
	return r
}

// Register adds or replaces a chain definition.
func (r *Registry) Register(params model.ChainParams) error {
	if params.ChainID == 0 {
		return errors.New("chain id is required")
	}
	if params.RPCURL == "" {
		return errors.New("chain rpc url is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.chains[params.ChainID] = params
	return nil
}

// Lookup returns the chain registered under id.
func (r *Registry) Lookup(id uint64) (model.ChainParams, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	params, ok := r.chains[id]
	return params, ok
}

// IDs lists registered chain ids in ascending order.
func (r *Registry) IDs() []uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]uint64, 0, len(r.chains))
	for id := range r.chains {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
