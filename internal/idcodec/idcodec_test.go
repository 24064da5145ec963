package idcodec

import (
	"testing"

	"github.com/dccl-go/dccl/internal/bitbuf"
)

func TestDefaultOneByteRoundTrip(t *testing.T) {
	c := NewDefault("t")
	buf, err := c.Encode(100)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if buf.Len() != 8 {
		t.Fatalf("got %d bits, want 8", buf.Len())
	}
	raw, err := buf.ToByteString()
	if err != nil {
		t.Fatalf("to byte string: %v", err)
	}
	if raw[0]&1 != 0 {
		t.Fatalf("discriminator bit (LSB of first byte) = 1, want 0 for a one-byte id")
	}
	got, err := c.Decode(bitbuf.FromBits(buf.Bits()))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != 100 {
		t.Fatalf("got %d, want 100", got)
	}
}

func TestDefaultTwoByteRoundTrip(t *testing.T) {
	c := NewDefault("t")
	buf, err := c.Encode(5000)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if buf.Len() != 16 {
		t.Fatalf("got %d bits, want 16", buf.Len())
	}
	raw, err := buf.ToByteString()
	if err != nil {
		t.Fatalf("to byte string: %v", err)
	}
	if raw[0]&1 != 1 {
		t.Fatalf("discriminator bit (LSB of first byte) = 0, want 1 for a two-byte id")
	}
	got, err := c.Decode(bitbuf.FromBits(buf.Bits()))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != 5000 {
		t.Fatalf("got %d, want 5000", got)
	}
}

func TestDefaultOddOneByteIDKeepsDiscriminatorAtLSB(t *testing.T) {
	c := NewDefault("t")
	buf, err := c.Encode(5)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	raw, err := buf.ToByteString()
	if err != nil {
		t.Fatalf("to byte string: %v", err)
	}
	if raw[0] != 5<<1 {
		t.Fatalf("got wire byte %#x, want %#x (id shifted up, discriminator 0 at the LSB)", raw[0], byte(5<<1))
	}
	got, err := c.Decode(bitbuf.FromBits(buf.Bits()))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != 5 {
		t.Fatalf("got %d, want 5", got)
	}
}

func TestLegacy8RoundTrip(t *testing.T) {
	c := NewLegacy8("t")
	buf, err := c.Encode(255)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if buf.Len() != 8 {
		t.Fatalf("got %d bits, want 8", buf.Len())
	}
	got, err := c.Decode(bitbuf.FromBits(buf.Bits()))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != 255 {
		t.Fatalf("got %d, want 255", got)
	}
	if _, err := c.Encode(256); err == nil {
		t.Fatal("expected range error for id 256")
	}
}
