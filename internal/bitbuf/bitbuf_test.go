package bitbuf

import (
	"errors"
	"testing"
)

func TestRoundTripByteString(t *testing.T) {
	cases := [][]byte{
		{0x00},
		{0xFF},
		{0xA5, 0x3C},
		{0x01, 0x02, 0x03, 0x04},
		{},
	}

	for _, data := range cases {
		b := FromByteString(data)
		got, err := b.ToByteString()
		if err != nil {
			t.Fatalf("ToByteString(%x): %v", data, err)
		}
		if len(got) != len(data) {
			t.Fatalf("ToByteString(%x) = %x, want same length", data, got)
		}
		for i := range data {
			if got[i] != data[i] {
				t.Fatalf("ToByteString(%x) = %x, want %x", data, got, data)
			}
		}
	}
}

func TestAppendOrdersLowerFieldsFirst(t *testing.T) {
	field1 := FromUint64(4, 0b1010)
	field2 := FromUint64(4, 0b0101)

	msg := New()
	msg.Append(field1)
	msg.Append(field2)

	out, err := msg.ToByteString()
	if err != nil {
		t.Fatal(err)
	}
	if out[0] != 0b10100101 {
		t.Fatalf("got byte %08b, want %08b", out[0], 0b10100101)
	}
}

func TestPrependPlacesBitsBeforeExisting(t *testing.T) {
	body := FromUint64(4, 0b0101)
	presence := FromUint64(1, 1)

	buf := body.Clone()
	buf.Prepend(presence)

	if buf.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", buf.Len())
	}
	if buf.ToUint64() != 0b10101 {
		t.Fatalf("ToUint64() = %b, want %b", buf.ToUint64(), 0b10101)
	}
}

func TestFromUint64ToUint64RoundTrip(t *testing.T) {
	for _, v := range []uint64{0, 1, 2, 255, 1 << 20, 0xFFFFFFFF} {
		b := FromUint64(40, v)
		if got := b.ToUint64(); got != v {
			t.Fatalf("round trip %d: got %d", v, got)
		}
	}
}

func TestPadToByte(t *testing.T) {
	b := FromUint64(3, 0b101)
	pad := b.PadToByte()
	if pad != 5 {
		t.Fatalf("PadToByte() = %d, want 5", pad)
	}
	if b.Len() != 8 {
		t.Fatalf("Len() after pad = %d, want 8", b.Len())
	}
}

func TestPullMoreUnderflow(t *testing.T) {
	b := New()
	err := b.PullMore(4)
	if !errors.Is(err, ErrUnderflow) {
		t.Fatalf("PullMore with no source: got %v, want ErrUnderflow", err)
	}
}

func TestPullMoreFromSource(t *testing.T) {
	source := FromUint64(8, 0xAB)
	b := FromUint64(4, 0x0)
	b.SetSource(source)

	if err := b.PullMore(8); err != nil {
		t.Fatalf("PullMore: %v", err)
	}
	if b.Len() != 8 {
		t.Fatalf("Len() = %d, want 8", b.Len())
	}
}

func TestToByteStringRequiresByteAlignment(t *testing.T) {
	b := FromUint64(3, 0b101)
	if _, err := b.ToByteString(); err == nil {
		t.Fatal("expected error for non-byte-aligned buffer")
	}
}

func TestShiftLeftInsertsZerosAtFront(t *testing.T) {
	b := FromUint64(4, 0b1111)
	b.ShiftLeft(2)
	if b.Len() != 6 {
		t.Fatalf("Len() = %d, want 6", b.Len())
	}
	if b.ToUint64() != 0b001111 {
		t.Fatalf("ToUint64() = %b, want %b", b.ToUint64(), 0b001111)
	}
}
