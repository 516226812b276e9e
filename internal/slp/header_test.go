package slp

import "testing"

func TestHeaderReservedFlagsRejected(t *testing.T) {
	t.Parallel()

	h := Header{Version: Version, Function: FuncSrvAck, Flags: 0x0001, LanguageTag: "en"}
	if err := h.validate(100); err == nil {
		t.Fatal("expected ErrReservedFlagsSet")
	}
}

func TestHeaderExtOffsetOutOfRange(t *testing.T) {
	t.Parallel()

	h := Header{Version: Version, Function: FuncSrvAck, ExtOffset: 5, LanguageTag: "en"}
	if err := h.validate(100); err == nil {
		t.Fatal("expected ErrExtOffsetOutOfRange for offset inside fixed preamble")
	}

	h.ExtOffset = 50
	if err := h.validate(100); err != nil {
		t.Fatalf("expected valid ext-offset, got %v", err)
	}
}

func TestDecodeExtensionsChain(t *testing.T) {
	t.Parallel()

	// Two extensions: first at offset 20 pointing to a second at offset
	// 30, which terminates the chain.
	raw := make([]byte, 40)
	// ext 1: id=0x0001, next=30
	raw[20], raw[21] = 0x00, 0x01
	raw[22], raw[23], raw[24] = 0x00, 0x00, 30
	// ext 2: id=0x0002, next=0
	raw[30], raw[31] = 0x00, 0x02
	raw[32], raw[33], raw[34] = 0x00, 0x00, 0x00

	exts, err := decodeExtensions(raw, 20)
	if err != nil {
		t.Fatalf("decodeExtensions: %v", err)
	}
	if len(exts) != 2 {
		t.Fatalf("got %d extensions, want 2", len(exts))
	}
	if exts[0].ID != 1 || exts[1].ID != 2 {
		t.Errorf("unexpected extension ids: %v, %v", exts[0].ID, exts[1].ID)
	}
}

func TestDecodeExtensionsDetectsLoop(t *testing.T) {
	t.Parallel()

	raw := make([]byte, 30)
	// ext at offset 10 points back to itself.
	raw[10], raw[11] = 0x00, 0x01
	raw[12], raw[13], raw[14] = 0x00, 0x00, 10

	if _, err := decodeExtensions(raw, 10); err == nil {
		t.Fatal("expected loop detection error")
	}
}
