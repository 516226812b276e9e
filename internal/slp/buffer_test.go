package slp

import (
	"testing"
)

func TestBufferUint24RoundTrip(t *testing.T) {
	t.Parallel()

	for _, v := range []uint32{0, 1, 0xFF, 0xFFFF, 0xFFFFFF} {
		w := newWriteBuffer(3)
		if err := w.writeUint24(v); err != nil {
			t.Fatalf("writeUint24(%d): %v", v, err)
		}
		r := newReadBuffer(w.data)
		got, err := r.readUint24()
		if err != nil {
			t.Fatalf("readUint24: %v", err)
		}
		if got != v {
			t.Errorf("round trip %d: got %d", v, got)
		}
	}
}

func TestBufferStringRoundTrip(t *testing.T) {
	t.Parallel()

	s := "service:myservice://host.example.com/path"
	w := newWriteBuffer(stringEncodedLen(s))
	if err := w.writeString(s); err != nil {
		t.Fatalf("writeString: %v", err)
	}
	r := newReadBuffer(w.data)
	got, err := r.readString()
	if err != nil {
		t.Fatalf("readString: %v", err)
	}
	if got != s {
		t.Errorf("got %q, want %q", got, s)
	}
}

func TestBufferReadUnderrun(t *testing.T) {
	t.Parallel()

	r := newReadBuffer([]byte{0x01})
	if _, err := r.readUint16(); err == nil {
		t.Fatal("expected underrun error reading uint16 from 1 byte")
	}
}

func TestBufferStringLengthExceedsRemaining(t *testing.T) {
	t.Parallel()

	// Length prefix claims 100 bytes but only 2 remain.
	raw := []byte{0x00, 0x64, 0x41, 0x42}
	r := newReadBuffer(raw)
	if _, err := r.readString(); err == nil {
		t.Fatal("expected ErrStringTooLong")
	}
}

func TestBufferWriteOverrun(t *testing.T) {
	t.Parallel()

	w := newWriteBuffer(1)
	if err := w.writeUint16(1); err == nil {
		t.Fatal("expected overrun error writing uint16 into a 1-byte buffer")
	}
}
