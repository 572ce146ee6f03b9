// Package coordinator drives threshold-signing ceremonies through the
// two-round signing protocol: nonce commitment collection, signature share
// collection, and aggregation into a single Schnorr signature, without any
// party ever reconstructing the federation's private key.
//
// # Lifecycle
//
// A session moves one way through
//
//	pending -> nonce_collection -> signing -> aggregating -> completed
//
// with failed and expired as absorbing states reachable from any non-terminal
// state. Expiry is enforced against the wall clock at the top of every
// mutating call, before any state validation; there is no separate cancel
// token, since a party can simply let the deadline pass or call FailSession.
//
// # Concurrency
//
// The coordinator is invoked concurrently by independent participant
// processes; nothing serializes access in-process. Session mutations rely on
// the repository's optimistic-lock contract and surface ErrConcurrentUpdate
// to callers, for whom re-read-and-retry is always safe because every
// operation is idempotent per participant. The signing-to-aggregating
// transition is a status-keyed conditional write: exactly one caller of
// TransitionToAggregating wins, and only the winner runs the aggregation.
//
// # Collaborators
//
// The group public key for verification comes from a FederationRegistry.
// Publication of the finished signature and delivery of completion notices
// are optional collaborators configured with WithPublisher and WithNotifier;
// their failures are logged and never affect session state.
package coordinator
