// Package approval gates the creation of signing sessions behind the
// federation's permission model.
//
// A creation request has three outcomes: allowed, in which case the session
// is created immediately; requires approval, in which case a pending request
// is opened carrying the full session spec and named approvals accumulate
// until a configured threshold is met; or denied. Approving and rejecting are
// themselves restricted to roles the permission service recognizes for the
// event type.
//
// The gate fails closed: any permission or authorization lookup error is
// treated as a denial, never as consent.
package approval
