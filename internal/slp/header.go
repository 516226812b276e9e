package slp

import (
	"errors"
	"fmt"
)

// Version is the SLPv2 protocol version (RFC 2608 §8.1).
const Version uint8 = 2

// HeaderSize is the fixed portion of the SLPv2 header preceding the
// language tag: version(1) + function-id(1) + length(3) + flags(2) +
// ext-offset(3) + xid(2) = 12 bytes (RFC 2608 §8.1).
const HeaderSize = 12

// FunctionID identifies the kind of PDU carried by a message
// (spec.md §3).
type FunctionID uint8

// SLPv2 function IDs (RFC 2608 §8.1).
const (
	FuncSrvRqst     FunctionID = 1
	FuncSrvRply     FunctionID = 2
	FuncSrvReg      FunctionID = 3
	FuncSrvDeReg    FunctionID = 4
	FuncSrvAck      FunctionID = 5
	FuncAttrRqst    FunctionID = 6
	FuncAttrRply    FunctionID = 7
	FuncDAAdvert    FunctionID = 8
	FuncSrvTypeRqst FunctionID = 9
	FuncSrvTypeRply FunctionID = 10
	FuncSAAdvert    FunctionID = 11
)

// String returns the RFC 2608 name of the function ID.
func (f FunctionID) String() string {
	switch f {
	case FuncSrvRqst:
		return "SrvRqst"
	case FuncSrvRply:
		return "SrvRply"
	case FuncSrvReg:
		return "SrvReg"
	case FuncSrvDeReg:
		return "SrvDeReg"
	case FuncSrvAck:
		return "SrvAck"
	case FuncAttrRqst:
		return "AttrRqst"
	case FuncAttrRply:
		return "AttrRply"
	case FuncDAAdvert:
		return "DAAdvert"
	case FuncSrvTypeRqst:
		return "SrvTypeRqst"
	case FuncSrvTypeRply:
		return "SrvTypeRply"
	case FuncSAAdvert:
		return "SAAdvert"
	default:
		return unknownFmt(uint8(f))
	}
}

func unknownFmt(v uint8) string {
	return fmt.Sprintf("Unknown(%d)", v)
}

// Flags carries the per-message header flag bits (spec.md §3).
type Flags uint16

const (
	// FlagOverflow indicates the reply was truncated at the MTU boundary
	// and the requester should retry over TCP (spec.md §4.2).
	FlagOverflow Flags = 1 << 15

	// FlagFresh indicates a brand-new registration rather than a refresh
	// (spec.md §3, glossary: FRESH flag).
	FlagFresh Flags = 1 << 14

	// FlagMulticast indicates the message was sent via multicast
	// (RFC 2608 §8.1).
	FlagMulticast Flags = 1 << 13

	// flagReservedMask covers the 13 reserved bits that MUST be zero
	// (spec.md §3 invariant: flags.reserved == 0).
	flagReservedMask Flags = 0x1FFF
)

// Reserved reports the value of the 13 reserved flag bits.
func (f Flags) Reserved() Flags { return f & flagReservedMask }

// Header is the common SLPv2 message header (spec.md §3).
type Header struct {
	Version      uint8
	Function     FunctionID
	Length       uint32 // 24-bit on the wire
	Flags        Flags
	ExtOffset    uint32 // 24-bit on the wire; 0 means no extensions
	XID          uint16
	LanguageTag  string
}

// Sentinel errors for header validation (spec.md §3 invariants).
var (
	ErrReservedFlagsSet  = errors.New("slp: reserved header flags must be zero")
	ErrVersionMismatch   = errors.New("slp: unsupported protocol version")
	ErrExtOffsetOutOfRange = errors.New("slp: extension offset does not point inside the buffer")
)

// validate checks the header invariants from spec.md §3: reserved flags
// clear, and extoffset either zero or pointing inside the buffer beyond
// the fixed preamble.
func (h Header) validate(totalLen int) error {
	if h.Flags.Reserved() != 0 {
		return ErrReservedFlagsSet
	}
	if h.ExtOffset != 0 && (h.ExtOffset < HeaderSize || int(h.ExtOffset) >= totalLen) {
		return fmt.Errorf("extoffset %d, total length %d: %w", h.ExtOffset, totalLen, ErrExtOffsetOutOfRange)
	}
	return nil
}

// decodeHeader parses the fixed header plus the language tag. The
// returned buffer's curpos is positioned just after the language tag,
// ready for the function-specific body parser.
func decodeHeader(b *buffer) (Header, error) {
	var h Header
	var err error

	if h.Version, err = b.readUint8(); err != nil {
		return Header{}, fmt.Errorf("decode header version: %w", err)
	}
	fn, err := b.readUint8()
	if err != nil {
		return Header{}, fmt.Errorf("decode header function-id: %w", err)
	}
	h.Function = FunctionID(fn)
	if h.Length, err = b.readUint24(); err != nil {
		return Header{}, fmt.Errorf("decode header length: %w", err)
	}
	flags, err := b.readUint16()
	if err != nil {
		return Header{}, fmt.Errorf("decode header flags: %w", err)
	}
	h.Flags = Flags(flags)
	if h.ExtOffset, err = b.readUint24(); err != nil {
		return Header{}, fmt.Errorf("decode header ext-offset: %w", err)
	}
	if h.XID, err = b.readUint16(); err != nil {
		return Header{}, fmt.Errorf("decode header xid: %w", err)
	}
	if h.LanguageTag, err = b.readString(); err != nil {
		return Header{}, fmt.Errorf("decode header language tag: %w", err)
	}

	if err := h.validate(int(h.Length)); err != nil {
		return Header{}, err
	}
	return h, nil
}

// encodeHeader writes the fixed header plus language tag. The length
// field must already reflect the full serialized message (spec.md §4.2:
// "The header length field is written last after all bodies are known" —
// here the caller computes total length up front and passes it in via h,
// which has the same effect without a second pass).
func encodeHeader(b *buffer, h Header) error {
	if err := b.writeUint8(h.Version); err != nil {
		return err
	}
	if err := b.writeUint8(uint8(h.Function)); err != nil {
		return err
	}
	if err := b.writeUint24(h.Length); err != nil {
		return err
	}
	if err := b.writeUint16(uint16(h.Flags)); err != nil {
		return err
	}
	if err := b.writeUint24(h.ExtOffset); err != nil {
		return err
	}
	if err := b.writeUint16(h.XID); err != nil {
		return err
	}
	return b.writeString(h.LanguageTag)
}

// headerEncodedLen returns the wire size of a header given its language
// tag, used by body serializers to precompute total message length.
func headerEncodedLen(h Header) int {
	return HeaderSize + stringEncodedLen(h.LanguageTag)
}

// -------------------------------------------------------------------------
// Extensions (spec.md §4.2)
// -------------------------------------------------------------------------

// MandatoryExtensionMin is the lowest extension ID in the "mandatory"
// range; an unknown extension ID at or above this value MUST cause a
// VER_NOT_SUPPORTED error reply (spec.md §4.2). Per RFC 2608 §8.1,
// mandatory extension IDs are >= 0x8000.
const MandatoryExtensionMin = 0x8000

// Extension is one link of the singly-linked extension chain starting at
// Header.ExtOffset (spec.md §4.2).
type Extension struct {
	ID       uint16
	NextOff  uint32 // 24-bit on the wire; 0 terminates the chain
	Body     []byte
}

// IsMandatory reports whether this extension's ID falls in the range
// that MUST be understood or rejected.
func (e Extension) IsMandatory() bool {
	return e.ID >= MandatoryExtensionMin
}

// decodeExtensions walks the extension chain starting at offset within
// raw, stopping at a zero NextOff. Each extension body runs from its own
// start (ID+NextOff, 5 bytes) to the next extension's start (or end of
// raw for the last one).
func decodeExtensions(raw []byte, offset uint32) ([]Extension, error) {
	var exts []Extension
	if offset == 0 {
		return nil, nil
	}
	seen := map[uint32]bool{}
	off := offset
	for off != 0 {
		if seen[off] {
			return nil, fmt.Errorf("slp: extension chain loop at offset %d", off)
		}
		seen[off] = true
		if int(off)+5 > len(raw) {
			return nil, fmt.Errorf("slp: extension header at %d exceeds buffer: %w", off, ErrBufferUnderrun)
		}
		b := newReadBuffer(raw[off:])
		id, err := b.readUint16()
		if err != nil {
			return nil, fmt.Errorf("decode extension id: %w", err)
		}
		next, err := b.readUint24()
		if err != nil {
			return nil, fmt.Errorf("decode extension next-offset: %w", err)
		}
		bodyEnd := len(raw)
		if next != 0 {
			if int(next) > len(raw) || next <= off {
				return nil, fmt.Errorf("slp: extension next-offset %d invalid", next)
			}
			bodyEnd = int(next)
		}
		body := raw[int(off)+5 : bodyEnd]
		exts = append(exts, Extension{ID: id, NextOff: next, Body: body})
		off = next
	}
	return exts, nil
}
