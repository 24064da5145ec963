// Package idcodec implements the message-identifier codecs that open
// every DCCL message's head: a discriminator-bit codec
// that spends one or two bytes depending on how large the ID is, and a
// pluggable fixed-width legacy codec for the 8-bit ID namespace some
// deployments still use. Grounded on
// original_source/src/field_codec_id.cpp's DCCLDefaultIdentifierCodec.
package idcodec

import (
	"fmt"

	"github.com/dccl-go/dccl/internal/bitbuf"
)

// oneByteMaxID is the largest ID that fits in the default codec's
// one-byte form: 7 payload bits (the 8th bit is the discriminator).
const oneByteMaxID = (1 << 7) - 1

// twoByteMaxID is the largest ID the default codec can represent at
// all: 15 payload bits across its two-byte form.
const twoByteMaxID = (1 << 15) - 1

// Codec encodes and decodes a bare message ID at the front of the bit
// stream, ahead of any field the message schema declares.
type Codec interface {
	Name() string
	MaxSize() int
	Encode(id int32) (*bitbuf.Buffer, error)
	Decode(bits *bitbuf.Buffer) (int32, error)
}

// Factory builds a Codec instance under the registry name it was
// resolved by.
type Factory func(name string) Codec

// Default is the standard discriminator-bit identifier codec: IDs up to
// oneByteMaxID take a single byte, larger IDs up to twoByteMaxID take
// two bytes. In both forms the discriminator occupies the
// least-significant bit of the first byte (0 for one-byte, 1 for
// two-byte); the payload bits surround it, so the two-byte form's first
// byte is its id's high 7 bits followed by the discriminator, and its
// second byte is the id's low 8 bits.
type Default struct{ name string }

// NewDefault builds the default identifier codec under the given name.
func NewDefault(name string) Codec { return &Default{name: name} }

func (c *Default) Name() string { return c.name }

func (c *Default) MaxSize() int { return 16 }

func (c *Default) Encode(id int32) (*bitbuf.Buffer, error) {
	if id < 0 || id > twoByteMaxID {
		return nil, fmt.Errorf("idcodec: id %d out of range [0, %d]", id, twoByteMaxID)
	}
	if id <= oneByteMaxID {
		buf := bitbuf.FromUint64(7, uint64(id))
		buf.Append(bitbuf.FromUint64(1, 0)) // discriminator: LSB of first byte
		return buf, nil
	}
	buf := bitbuf.FromUint64(7, uint64(id)>>8)
	buf.Append(bitbuf.FromUint64(1, 1)) // discriminator: LSB of first byte
	buf.Append(bitbuf.FromUint64(8, uint64(id)&0xff))
	return buf, nil
}

func (c *Default) Decode(bits *bitbuf.Buffer) (int32, error) {
	first, err := bits.ReadBits(8)
	if err != nil {
		return 0, err
	}
	firstByte := first.ToUint64()
	high := firstByte >> 1
	if firstByte&1 == 0 {
		return int32(high), nil
	}
	second, err := bits.ReadBits(8)
	if err != nil {
		return 0, err
	}
	return int32(high<<8 | second.ToUint64()), nil
}

// Legacy8 is a fixed one-byte identifier codec with no discriminator
// bit, covering the 8-bit ID namespace of dccl.legacy_id8, for
// deployments whose message IDs predate the two-byte default codec.
type Legacy8 struct{ name string }

// NewLegacy8 builds the legacy 8-bit identifier codec under the given
// name.
func NewLegacy8(name string) Codec { return &Legacy8{name: name} }

func (c *Legacy8) Name() string { return c.name }

func (c *Legacy8) MaxSize() int { return 8 }

func (c *Legacy8) Encode(id int32) (*bitbuf.Buffer, error) {
	if id < 0 || id > 255 {
		return nil, fmt.Errorf("idcodec: legacy id %d out of range [0, 255]", id)
	}
	return bitbuf.FromUint64(8, uint64(id)), nil
}

func (c *Legacy8) Decode(bits *bitbuf.Buffer) (int32, error) {
	chunk, err := bits.ReadBits(8)
	if err != nil {
		return 0, err
	}
	return int32(chunk.ToUint64()), nil
}
