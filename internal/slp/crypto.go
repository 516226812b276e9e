package slp

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha1" //nolint:gosec // G505: SHA-1 required by RFC 2608 §9.2 authenticator blocks
	"encoding/asn1"
	"errors"
	"fmt"
	"math/big"
)

// DigestSize is the length of a SHA-1 digest in bytes (spec.md §4.3).
const DigestSize = sha1.Size

// Digest computes the SHA-1 digest of data, as required by RFC 2608 §9.2
// authenticator blocks (BSD=2, DSA-SHA1).
//
// original_source/openslp/common/slp_crypto.c: SLPCryptoSHA1Digest.
func Digest(data []byte) [DigestSize]byte {
	return sha1.Sum(data) //nolint:gosec // G401: RFC-mandated
}

// Sentinel errors for the crypto primitives.
var (
	// ErrDSAKeyNil indicates a nil key was passed to a sign/verify
	// operation.
	ErrDSAKeyNil = errors.New("slp: DSA key is nil")

	// ErrDSASignatureInvalid indicates DSA_verify rejected the signature.
	ErrDSASignatureInvalid = errors.New("slp: DSA signature verification failed")

	// ErrUnsupportedAuthAlgorithm indicates a key with no DSA parameters,
	// the only crypto backend wired for authenticator blocks.
	ErrUnsupportedAuthAlgorithm = errors.New("slp: unsupported authentication algorithm")
)

// DSAKey holds the five DSA parameters (p, q, g, private scalar x, public
// value y), mirroring SLPCryptoDSAKey in
// original_source/openslp/common/slp_crypto.c. A zero PrivateScalar means
// the key is public-only (verification, never signing).
type DSAKey struct {
	P, Q, G       *big.Int
	PublicValue   *big.Int
	PrivateScalar *big.Int // nil for verify-only keys
}

// dsaSignature is the ASN.1 DER structure produced by DSA signing
// (spec.md §3: "ASN.1-DER DSA signature for BSD=2").
type dsaSignature struct {
	R, S *big.Int
}

// Dup deep-copies a DSAKey, duplicating every big.Int field so the
// original and the copy can be destroyed independently.
//
// original_source/openslp/common/slp_crypto.c: SLPCryptoDSAKeyDup.
func (k *DSAKey) Dup() *DSAKey {
	if k == nil {
		return nil
	}
	dup := &DSAKey{
		P:           dupBigInt(k.P),
		Q:           dupBigInt(k.Q),
		G:           dupBigInt(k.G),
		PublicValue: dupBigInt(k.PublicValue),
	}
	if k.PrivateScalar != nil {
		dup.PrivateScalar = dupBigInt(k.PrivateScalar)
	}
	return dup
}

func dupBigInt(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

// Destroy zeroes and releases the private scalar, matching
// SLPCryptoDSAKeyDestroy's intent (the C implementation calls DSA_free,
// which wipes key material; Go's GC does not, so we zero explicitly).
func (k *DSAKey) Destroy() {
	if k == nil || k.PrivateScalar == nil {
		return
	}
	k.PrivateScalar.SetInt64(0)
	k.PrivateScalar = nil
}

// DSASign signs digest with key, returning the ASN.1 DER encoded
// signature. Returns a non-nil error on failure; err == nil means success
// (spec.md §9 Open Question: the documented contract, not the C source's
// inverted `DSA_sign(...) == 0` return value, is authoritative).
//
// original_source/openslp/common/slp_crypto.c: SLPCryptoDSASign.
func DSASign(key *DSAKey, digest []byte) ([]byte, error) {
	if key == nil || key.PrivateScalar == nil {
		return nil, ErrDSAKeyNil
	}
	r, s, err := dsaSignRaw(key, digest)
	if err != nil {
		return nil, fmt.Errorf("dsa sign: %w", err)
	}
	der, err := asn1.Marshal(dsaSignature{R: r, S: s})
	if err != nil {
		return nil, fmt.Errorf("dsa sign: encode signature: %w", err)
	}
	return der, nil
}

// DSAVerify verifies a DER-encoded DSA signature over digest using key's
// public parameters.
//
// original_source/openslp/common/slp_crypto.c: SLPCryptoDSAVerify.
func DSAVerify(key *DSAKey, digest, sigDER []byte) (bool, error) {
	if key == nil {
		return false, ErrDSAKeyNil
	}
	var sig dsaSignature
	if _, err := asn1.Unmarshal(sigDER, &sig); err != nil {
		return false, fmt.Errorf("dsa verify: decode signature: %w", err)
	}
	return dsaVerifyRaw(key, digest, sig.R, sig.S), nil
}

// dsaSignRaw implements textbook DSA signing (FIPS 186): r = (g^k mod p)
// mod q, s = k^-1(H(m) + x*r) mod q, retrying with a fresh k on a
// degenerate r or s of zero.
func dsaSignRaw(key *DSAKey, digest []byte) (r, s *big.Int, err error) {
	if key.P == nil || key.Q == nil || key.G == nil {
		return nil, nil, ErrDSAKeyNil
	}
	z := hashToInt(digest, key.Q)
	for {
		k, kErr := randFieldElement(key.Q)
		if kErr != nil {
			return nil, nil, kErr
		}
		r = new(big.Int).Exp(key.G, k, key.P)
		r.Mod(r, key.Q)
		if r.Sign() == 0 {
			continue
		}
		kInv := new(big.Int).ModInverse(k, key.Q)
		if kInv == nil {
			continue
		}
		s = new(big.Int).Mul(key.PrivateScalar, r)
		s.Add(s, z)
		s.Mul(s, kInv)
		s.Mod(s, key.Q)
		if s.Sign() == 0 {
			continue
		}
		return r, s, nil
	}
}

// dsaVerifyRaw implements textbook DSA verification.
func dsaVerifyRaw(key *DSAKey, digest []byte, r, s *big.Int) bool {
	if key.P == nil || key.Q == nil || key.G == nil || key.PublicValue == nil {
		return false
	}
	if r.Sign() <= 0 || r.Cmp(key.Q) >= 0 || s.Sign() <= 0 || s.Cmp(key.Q) >= 0 {
		return false
	}
	w := new(big.Int).ModInverse(s, key.Q)
	if w == nil {
		return false
	}
	z := hashToInt(digest, key.Q)
	u1 := new(big.Int).Mul(z, w)
	u1.Mod(u1, key.Q)
	u2 := new(big.Int).Mul(r, w)
	u2.Mod(u2, key.Q)
	v1 := new(big.Int).Exp(key.G, u1, key.P)
	v2 := new(big.Int).Exp(key.PublicValue, u2, key.P)
	v := v1.Mul(v1, v2)
	v.Mod(v, key.P)
	v.Mod(v, key.Q)
	return v.Cmp(r) == 0
}

// hashToInt truncates a digest to the bit length of q, per FIPS 186-4
// §4.2.
func hashToInt(digest []byte, q *big.Int) *big.Int {
	orderBits := q.BitLen()
	orderBytes := (orderBits + 7) / 8
	if len(digest) > orderBytes {
		digest = digest[:orderBytes]
	}
	ret := new(big.Int).SetBytes(digest)
	excess := len(digest)*8 - orderBits
	if excess > 0 {
		ret.Rsh(ret, uint(excess))
	}
	return ret
}

// randFieldElement returns a cryptographically random integer in
// [1, q-1].
func randFieldElement(q *big.Int) (*big.Int, error) {
	for {
		k, err := rand.Int(rand.Reader, q)
		if err != nil {
			return nil, fmt.Errorf("random field element: %w", err)
		}
		if k.Sign() != 0 {
			return k, nil
		}
	}
}

// -------------------------------------------------------------------------
// Ed25519 — modern SPI offered alongside DSA/SHA-1 (spec.md §9)
// -------------------------------------------------------------------------

// Ed25519Sign signs digest (any length; Ed25519 hashes internally) and
// returns the 64-byte signature.
func Ed25519Sign(priv ed25519.PrivateKey, digest []byte) ([]byte, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("ed25519 sign: %w", ErrDSAKeyNil)
	}
	return ed25519.Sign(priv, digest), nil
}

// Ed25519Verify verifies an Ed25519 signature over digest.
func Ed25519Verify(pub ed25519.PublicKey, digest, sig []byte) bool {
	return ed25519.Verify(pub, digest, sig)
}
