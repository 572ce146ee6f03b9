// Package interfaces defines the shared types and contracts of the threshold
// signing coordinator.
//
// The package has no dependencies on the rest of the project, which keeps the
// layering one-directional: the protocol core (coordinator, storage, frost,
// approval packages) depends on interfaces, and external concerns such as
// publication and notification plug in through the collaborator contracts
// defined here rather than the core importing them.
//
// # Sessions and the nonce ledger
//
// A Session is one signing ceremony: an ordered participant set, a threshold,
// and two per-participant maps filled in over the protocol rounds (nonce
// commitments in round 1, signature shares in round 2). The NonceRecord ledger
// is a separate append-only table with a uniqueness constraint on the
// commitment value itself; it is the storage-level defense against nonce
// reuse, which would leak the federation's private key.
//
// # Concurrency contract
//
// SessionRepository writes are optimistic: each mutation is conditioned on the
// UpdatedAt token captured when the session was read, and a lost race surfaces
// ErrConcurrentUpdate so the caller can re-read and retry. Operations are
// idempotent per participant, so retrying is always safe.
package interfaces
