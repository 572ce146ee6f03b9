// Package frost implements the elliptic-curve arithmetic of the threshold
// signing protocol over secp256k1: parsing and validation of signature-share
// scalars and nonce-commitment points, aggregation of shares into a final
// Schnorr signature, and verification against a federation's group public
// key.
//
// Aggregation is deliberately dumb: s is the modular sum of the submitted
// share scalars and R is the point sum of the matching nonce commitments. All
// protocol bookkeeping (who may contribute, when, and exactly once) lives in
// the coordinator and storage packages; this package only guarantees that
// malformed inputs are rejected before they can poison a signature.
package frost
