package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/OV1-Kenobi/satnam-frost/frost"
	"github.com/OV1-Kenobi/satnam-frost/interfaces"
)

// MemoryRegistry is an in-memory FederationRegistry. Deployments that keep
// federation metadata elsewhere implement the interface over their own store;
// this one covers tests and single-process setups.
type MemoryRegistry struct {
	mutex sync.RWMutex
	keys  map[interfaces.GroupID][]byte
}

// NewMemoryRegistry creates an empty registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		keys: make(map[interfaces.GroupID][]byte),
	}
}

// Register records the group public key for a federation. The key must be a
// valid 33-byte compressed secp256k1 point; re-registering a federation
// replaces its key.
func (r *MemoryRegistry) Register(groupID interfaces.GroupID, groupPublicKey []byte) error {
	if groupID == "" {
		return fmt.Errorf("empty group id")
	}
	if _, err := frost.ParseCommitment(groupPublicKey); err != nil {
		return fmt.Errorf("invalid group public key for %s: %w", groupID, err)
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.keys[groupID] = append([]byte(nil), groupPublicKey...)
	return nil
}

// GroupPublicKey returns the registered compressed group public key.
func (r *MemoryRegistry) GroupPublicKey(ctx context.Context, groupID interfaces.GroupID) ([]byte, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	key, ok := r.keys[groupID]
	if !ok {
		return nil, fmt.Errorf("no group public key registered for %s", groupID)
	}
	return append([]byte(nil), key...), nil
}
