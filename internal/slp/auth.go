package slp

import (
	"errors"
	"fmt"
	"time"
)

// -------------------------------------------------------------------------
// Auth errors
// -------------------------------------------------------------------------

// Sentinel errors for authentication block processing (spec.md §4.4).
var (
	// ErrAuthUnknownSPI indicates the SPI string on an authentication
	// block does not resolve to any configured key (AUTHENTICATION_UNKNOWN,
	// spec.md §4.4 step 3).
	ErrAuthUnknownSPI = errors.New("slp: unknown authentication SPI")

	// ErrAuthStale indicates a nonzero authenticator timestamp that has
	// already elapsed (AUTHENTICATION_FAILED, spec.md §4.4 step 4).
	ErrAuthStale = errors.New("slp: authenticator timestamp has expired")

	// ErrAuthSignatureInvalid indicates the DSA/Ed25519 signature did not
	// verify against the reconstructed canonical bytes (spec.md §4.4 step 5).
	ErrAuthSignatureInvalid = errors.New("slp: authenticator signature invalid")

	// ErrAuthBlockTruncated indicates fewer bytes remain than the
	// authenticator's own block-length field claims.
	ErrAuthBlockTruncated = errors.New("slp: authenticator block truncated")
)

// BSD values identify the authentication algorithm carried in an
// authenticator block (spec.md §3).
type BSD uint16

const (
	// BSDNone marks the end of an authenticator block list when used as
	// a count of zero; not a wire value.
	BSDNone BSD = 0

	// BSDDSASHA1 is the sole algorithm defined by RFC 2608 §9.2.
	BSDDSASHA1 BSD = 2
)

// AuthKey is one SPI's key material, used for both signing (if
// PrivateScalar is set) and verification.
type AuthKey struct {
	// SPI is the security parameter index string that identifies this
	// key on the wire (spec.md §3).
	SPI string

	// DSA holds the DSA parameters for BSDDSASHA1, the only algorithm
	// authenticator blocks are signed and verified with. A key with a nil
	// DSA is rejected with ErrUnsupportedAuthAlgorithm.
	DSA *DSAKey
}

// AuthKeyStore resolves an SPI string to the key material needed to sign
// or verify an authenticator block.
type AuthKeyStore interface {
	// LookupKey returns the key registered under spi, or
	// ErrAuthUnknownSPI if none is configured.
	LookupKey(spi string) (AuthKey, error)

	// CurrentKey returns the key this agent signs outgoing messages with.
	CurrentKey() AuthKey
}

// AuthBlock is a single authenticator block (spec.md §3): a timestamp, the
// signing SPI, and the algorithm-specific signature bytes. Canonical byte
// sequences — not the raw wire bytes — are what gets signed and verified
// (spec.md §4.4).
type AuthBlock struct {
	BSD       BSD
	Timestamp uint32 // seconds since 1970-01-01 UTC; 0 means "no expiry"
	SPI       string
	Signature []byte
}

// decodeAuthBlock parses one authenticator block: bsd(2) + block-length(2)
// + timestamp(4) + spi-string + signature bytes sized by block-length.
func decodeAuthBlock(b *buffer) (AuthBlock, error) {
	var a AuthBlock

	bsd, err := b.readUint16()
	if err != nil {
		return AuthBlock{}, fmt.Errorf("decode auth block bsd: %w", err)
	}
	a.BSD = BSD(bsd)

	blockLen, err := b.readUint16()
	if err != nil {
		return AuthBlock{}, fmt.Errorf("decode auth block length: %w", err)
	}
	// blockLen counts the bytes of this block including the two fields
	// already read (RFC 2608 §9.2). It must not run past the buffer.
	if int(blockLen) < 4 || int(blockLen)-4 > b.remaining() {
		return AuthBlock{}, fmt.Errorf("auth block length %d: %w", blockLen, ErrAuthBlockTruncated)
	}
	bodyLen := int(blockLen) - 4

	start := b.curpos
	if a.Timestamp, err = b.readUint32(); err != nil {
		return AuthBlock{}, fmt.Errorf("decode auth block timestamp: %w", err)
	}
	if a.SPI, err = b.readString(); err != nil {
		return AuthBlock{}, fmt.Errorf("decode auth block spi: %w", err)
	}
	consumed := b.curpos - start
	sigLen := bodyLen - consumed
	if sigLen < 0 {
		return AuthBlock{}, fmt.Errorf("auth block length %d shorter than header: %w", blockLen, ErrAuthBlockTruncated)
	}
	sig, err := b.readBytes(sigLen)
	if err != nil {
		return AuthBlock{}, fmt.Errorf("decode auth block signature: %w", err)
	}
	a.Signature = append([]byte(nil), sig...)
	return a, nil
}

// authBlockEncodedLen returns the wire size of a as if its Signature were
// sigLen bytes, used to precompute message length before signing (the
// signature itself is filled in afterward by encodeAuthBlock).
func authBlockEncodedLen(spi string, sigLen int) int {
	return 2 + 2 + 4 + stringEncodedLen(spi) + sigLen
}

// encodeAuthBlock writes one authenticator block.
func encodeAuthBlock(b *buffer, a AuthBlock) error {
	blockLen := authBlockEncodedLen(a.SPI, len(a.Signature))
	if err := b.writeUint16(uint16(a.BSD)); err != nil { //nolint:gosec // BSD values fit in uint16 by construction
		return err
	}
	if err := b.writeUint16(uint16(blockLen)); err != nil { //nolint:gosec // bounded by caller-computed message size
		return err
	}
	if err := b.writeUint32(a.Timestamp); err != nil {
		return err
	}
	if err := b.writeString(a.SPI); err != nil {
		return err
	}
	return b.writeBytes(a.Signature)
}

// -------------------------------------------------------------------------
// Canonical byte sequences (spec.md §4.4)
// -------------------------------------------------------------------------

// urlAuthCanonicalBytes builds the canonical byte sequence signed/verified
// for a URL entry's authenticator: SPI string || URL lifetime (16-bit) ||
// URL length (16-bit) || URL bytes || timestamp (32-bit).
func urlAuthCanonicalBytes(spi string, lifetime uint16, url string, timestamp uint32) []byte {
	size := stringEncodedLen(spi) + 2 + stringEncodedLen(url) + 4
	w := newWriteBuffer(size)
	_ = w.writeString(spi)
	_ = w.writeUint16(lifetime)
	_ = w.writeString(url)
	_ = w.writeUint32(timestamp)
	return w.data
}

// attrListAuthCanonicalBytes builds the canonical byte sequence for an
// attribute-list authenticator: SPI string || attr-list length (16-bit) ||
// attr-list bytes || timestamp (32-bit).
func attrListAuthCanonicalBytes(spi, attrList string, timestamp uint32) []byte {
	size := stringEncodedLen(spi) + stringEncodedLen(attrList) + 4
	w := newWriteBuffer(size)
	_ = w.writeString(spi)
	_ = w.writeString(attrList)
	_ = w.writeUint32(timestamp)
	return w.data
}

// daAdvertAuthCanonicalBytes builds the canonical byte sequence for a
// DAAdvert authenticator: SPI || URL (no lifetime field — a DA's own URL
// never expires) || timestamp.
func daAdvertAuthCanonicalBytes(spi, url string, timestamp uint32) []byte {
	size := stringEncodedLen(spi) + stringEncodedLen(url) + 4
	w := newWriteBuffer(size)
	_ = w.writeString(spi)
	_ = w.writeString(url)
	_ = w.writeUint32(timestamp)
	return w.data
}

// -------------------------------------------------------------------------
// Sign / Verify
// -------------------------------------------------------------------------

// signCanonical signs canonical bytes with key, returning a populated
// AuthBlock. timestamp is injected so callers can pin it deterministically
// in tests.
func signCanonical(key AuthKey, canonical []byte, timestamp uint32) (AuthBlock, error) {
	if key.DSA == nil {
		return AuthBlock{}, fmt.Errorf("sign canonical bytes: %w", ErrUnsupportedAuthAlgorithm)
	}
	digest := Digest(canonical)
	sig, err := DSASign(key.DSA, digest[:])
	if err != nil {
		return AuthBlock{}, fmt.Errorf("sign canonical bytes: %w", err)
	}
	return AuthBlock{
		BSD:       BSDDSASHA1,
		Timestamp: timestamp,
		SPI:       key.SPI,
		Signature: sig,
	}, nil
}

// verifyCanonical implements the five-step verification procedure from
// spec.md §4.4: resolve the SPI, reject a stale nonzero timestamp, then
// verify the signature over the canonical bytes rebuilt from parsed
// fields — never over the raw wire buffer, which an attacker could pad.
func verifyCanonical(keys AuthKeyStore, block AuthBlock, canonical []byte, now time.Time) error {
	key, err := keys.LookupKey(block.SPI)
	if err != nil {
		return fmt.Errorf("verify auth block: %w", ErrAuthUnknownSPI)
	}
	if block.Timestamp != 0 && unixTime(now) > block.Timestamp {
		return ErrAuthStale
	}
	if block.BSD != BSDDSASHA1 || key.DSA == nil {
		return fmt.Errorf("verify auth block: %w", ErrUnsupportedAuthAlgorithm)
	}
	digest := Digest(canonical)
	ok, err := DSAVerify(key.DSA, digest[:], block.Signature)
	if err != nil {
		return fmt.Errorf("verify auth block: %w", err)
	}
	if !ok {
		return ErrAuthSignatureInvalid
	}
	return nil
}

// unixTime converts a time.Time to the 32-bit Unix-epoch seconds count
// authenticator timestamps use (spec.md §3). Wraps in 2106; out of scope.
func unixTime(t time.Time) uint32 {
	return uint32(t.Unix()) //nolint:gosec // wraps in 2106 like the wire format itself
}

// timeFromUnix converts an authenticator timestamp back to time.Time.
func timeFromUnix(v uint32) time.Time {
	return time.Unix(int64(v), 0)
}

// SignURLEntry signs a URL entry on behalf of key, returning the
// AuthBlock to attach to the entry.
func SignURLEntry(key AuthKey, lifetime uint16, url string, timestamp uint32) (AuthBlock, error) {
	canonical := urlAuthCanonicalBytes(key.SPI, lifetime, url, timestamp)
	return signCanonical(key, canonical, timestamp)
}

// VerifyURLEntry verifies block against a URL entry's fields.
func VerifyURLEntry(keys AuthKeyStore, block AuthBlock, lifetime uint16, url string, now time.Time) error {
	canonical := urlAuthCanonicalBytes(block.SPI, lifetime, url, block.Timestamp)
	return verifyCanonical(keys, block, canonical, now)
}

// SignAttrList signs an attribute-list string on behalf of key.
func SignAttrList(key AuthKey, attrList string, timestamp uint32) (AuthBlock, error) {
	canonical := attrListAuthCanonicalBytes(key.SPI, attrList, timestamp)
	return signCanonical(key, canonical, timestamp)
}

// VerifyAttrList verifies block against an attribute-list string.
func VerifyAttrList(keys AuthKeyStore, block AuthBlock, attrList string, now time.Time) error {
	canonical := attrListAuthCanonicalBytes(block.SPI, attrList, block.Timestamp)
	return verifyCanonical(keys, block, canonical, now)
}

// SignDAAdvert signs a DA's own URL for inclusion in a DAAdvert.
func SignDAAdvert(key AuthKey, url string, timestamp uint32) (AuthBlock, error) {
	canonical := daAdvertAuthCanonicalBytes(key.SPI, url, timestamp)
	return signCanonical(key, canonical, timestamp)
}

// VerifyDAAdvert verifies block against a DAAdvert's URL.
func VerifyDAAdvert(keys AuthKeyStore, block AuthBlock, url string, now time.Time) error {
	canonical := daAdvertAuthCanonicalBytes(block.SPI, url, block.Timestamp)
	return verifyCanonical(keys, block, canonical, now)
}

// -------------------------------------------------------------------------
// Authenticator block lists (spec.md §3: a URL entry or DAAdvert carries a
// count-prefixed list of authenticator blocks, one per configured SPI).
// -------------------------------------------------------------------------

// decodeAuthBlockList reads an 8-bit count followed by that many
// authenticator blocks, matching the wire layout of URL entries and
// DAAdvert messages (spec.md §3).
func decodeAuthBlockList(b *buffer) ([]AuthBlock, error) {
	count, err := b.readUint8()
	if err != nil {
		return nil, fmt.Errorf("decode auth block count: %w", err)
	}
	if count == 0 {
		return nil, nil
	}
	blocks := make([]AuthBlock, 0, count)
	for i := 0; i < int(count); i++ {
		blk, err := decodeAuthBlock(b)
		if err != nil {
			return nil, fmt.Errorf("decode auth block %d of %d: %w", i+1, count, err)
		}
		blocks = append(blocks, blk)
	}
	return blocks, nil
}

// encodeAuthBlockList writes an 8-bit count followed by each block.
func encodeAuthBlockList(b *buffer, blocks []AuthBlock) error {
	if len(blocks) > 0xFF {
		return fmt.Errorf("slp: %d authenticator blocks exceeds uint8 count", len(blocks))
	}
	if err := b.writeUint8(uint8(len(blocks))); err != nil { //nolint:gosec // bounds checked above
		return err
	}
	for _, blk := range blocks {
		if err := encodeAuthBlock(b, blk); err != nil {
			return err
		}
	}
	return nil
}

// authBlockListEncodedLen returns the wire size of a list of blocks.
func authBlockListEncodedLen(blocks []AuthBlock) int {
	n := 1
	for _, blk := range blocks {
		n += authBlockEncodedLen(blk.SPI, len(blk.Signature))
	}
	return n
}
