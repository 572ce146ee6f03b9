package frost

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/OV1-Kenobi/satnam-frost/interfaces"
)

// Serialized sizes on secp256k1.
const (
	// ScalarSize is the length of a serialized signature share.
	ScalarSize = 32
	// CommitmentSize is the length of a compressed nonce-commitment point.
	CommitmentSize = 33
)

var (
	// ErrMalformedScalar is returned for shares that are not canonical nonzero
	// scalars modulo the curve order.
	ErrMalformedScalar = errors.New("malformed signature share scalar")

	// ErrMalformedPoint is returned for commitments that are not valid
	// compressed curve points.
	ErrMalformedPoint = errors.New("malformed nonce commitment point")
)

// ParseShare interprets a serialized signature share as a scalar modulo the
// curve order. Values of the wrong length, zero, or at or above the order are
// rejected.
func ParseShare(share []byte) (*secp256k1.ModNScalar, error) {
	if len(share) != ScalarSize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrMalformedScalar, ScalarSize, len(share))
	}

	var s secp256k1.ModNScalar
	if overflow := s.SetByteSlice(share); overflow {
		return nil, fmt.Errorf("%w: value exceeds curve order", ErrMalformedScalar)
	}
	if s.IsZero() {
		return nil, fmt.Errorf("%w: zero scalar", ErrMalformedScalar)
	}
	return &s, nil
}

// ParseCommitment interprets a serialized nonce commitment as a compressed
// secp256k1 point.
func ParseCommitment(commitment []byte) (*secp256k1.PublicKey, error) {
	if len(commitment) != CommitmentSize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrMalformedPoint, CommitmentSize, len(commitment))
	}

	point, err := secp256k1.ParsePubKey(commitment)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPoint, err)
	}
	return point, nil
}

// Aggregate combines signature shares and their nonce commitments into a
// final signature: s is the sum of all share scalars modulo the curve order,
// R is the elliptic-curve sum of all commitment points. The two slices must
// be index-aligned per participant.
func Aggregate(shares [][]byte, commitments [][]byte) (*interfaces.FinalSignature, error) {
	if len(shares) == 0 {
		return nil, fmt.Errorf("%w: no shares", ErrMalformedScalar)
	}
	if len(shares) != len(commitments) {
		return nil, fmt.Errorf("share count %d does not match commitment count %d", len(shares), len(commitments))
	}

	var s secp256k1.ModNScalar
	for i, share := range shares {
		scalar, err := ParseShare(share)
		if err != nil {
			return nil, fmt.Errorf("share %d: %w", i, err)
		}
		s.Add(scalar)
	}

	r, err := GroupCommitment(commitments)
	if err != nil {
		return nil, err
	}

	sBytes := s.Bytes()
	return &interfaces.FinalSignature{
		R: r,
		S: sBytes[:],
	}, nil
}

// GroupCommitment sums nonce commitments into the aggregated commitment R,
// returned in compressed encoding. Participants use the same sum to derive
// the challenge their signature shares respond to.
func GroupCommitment(commitments [][]byte) ([]byte, error) {
	if len(commitments) == 0 {
		return nil, fmt.Errorf("%w: no commitments", ErrMalformedPoint)
	}

	var r secp256k1.JacobianPoint
	for i, commitment := range commitments {
		point, err := ParseCommitment(commitment)
		if err != nil {
			return nil, fmt.Errorf("commitment %d: %w", i, err)
		}

		var p secp256k1.JacobianPoint
		point.AsJacobian(&p)
		secp256k1.AddNonConst(&r, &p, &r)
	}

	r.ToAffine()
	if (r.X.IsZero() && r.Y.IsZero()) || r.Z.IsZero() {
		return nil, fmt.Errorf("%w: aggregated commitment is the point at infinity", ErrMalformedPoint)
	}
	return secp256k1.NewPublicKey(&r.X, &r.Y).SerializeCompressed(), nil
}

// Challenge derives the Schnorr challenge scalar c = H(R || P || m) reduced
// modulo the curve order, over the compressed encodings of the aggregated
// commitment and the group public key.
func Challenge(r, groupPub []byte, messageHash interfaces.MessageHash) *secp256k1.ModNScalar {
	h := sha256.New()
	h.Write(r)
	h.Write(groupPub)
	h.Write(messageHash.Bytes())

	var c secp256k1.ModNScalar
	c.SetByteSlice(h.Sum(nil))
	return &c
}

// Verify checks an aggregated signature against the group public key:
// s*G == R + c*P with c = Challenge(R, P, m). It returns false rather than an
// error for any malformed input, so a flipped bit anywhere simply fails.
func Verify(sig interfaces.FinalSignature, groupPub []byte, messageHash interfaces.MessageHash) bool {
	var s secp256k1.ModNScalar
	if len(sig.S) != ScalarSize || s.SetByteSlice(sig.S) {
		return false
	}

	rPoint, err := ParseCommitment(sig.R)
	if err != nil {
		return false
	}
	pubPoint, err := ParseCommitment(groupPub)
	if err != nil {
		return false
	}

	c := Challenge(sig.R, groupPub, messageHash)

	// lhs = s*G
	var lhs secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(&s, &lhs)

	// rhs = R + c*P
	var p, cP, r, rhs secp256k1.JacobianPoint
	pubPoint.AsJacobian(&p)
	secp256k1.ScalarMultNonConst(c, &p, &cP)
	rPoint.AsJacobian(&r)
	secp256k1.AddNonConst(&r, &cP, &rhs)

	lhs.ToAffine()
	rhs.ToAffine()
	return lhs.X.Equals(&rhs.X) && lhs.Y.Equals(&rhs.Y) && lhs.Z.Equals(&rhs.Z)
}
