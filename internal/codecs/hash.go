package codecs

import (
	"fmt"
	"hash"

	"github.com/dccl-go/dccl/internal/bitbuf"
	"github.com/dccl-go/dccl/internal/fieldcodec"
	"github.com/dccl-go/dccl/internal/schema"
)

// Hash is the masked structural-hash field codec: the
// engine computes an FNV-1a hash over every other field's
// declaration and stores it in the field as a plain uint64 value; this
// codec's only job is to mask it down to the declared width and
// bit-pack it, so two peers whose schemas have drifted land on
// different wire values for the same field instead of silently
// decoding garbage. max_length is repurposed here as the hash width in
// bits rather than a byte count, since a structural hash has no natural
// "length" of its own.
type Hash struct {
	name string
}

func NewHash(name string) fieldcodec.Codec { return &Hash{name: name} }

func (c *Hash) Name() string { return c.name }

func (c *Hash) Validate(f *schema.Field) error {
	return fieldcodec.Require(f.Options.MaxLength > 0 && f.Options.MaxLength <= 64, "hash field must declare a max_length between 1 and 64 bits")
}

func (c *Hash) width(f *schema.Field) int { return f.Options.MaxLength }

func (c *Hash) mask(f *schema.Field) uint64 {
	width := c.width(f)
	if width >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << uint(width)) - 1
}

func (c *Hash) MaxSize(f *schema.Field) (int, error) { return c.width(f), nil }
func (c *Hash) MinSize(f *schema.Field) (int, error) { return c.width(f), nil }

func (c *Hash) Size(f *schema.Field, value any, present bool) (int, error) { return c.width(f), nil }

func (c *Hash) Encode(ctx *fieldcodec.Context, f *schema.Field, value any, present bool, strict bool) (*bitbuf.Buffer, error) {
	raw, ok := value.(uint64)
	if !ok {
		return nil, fmt.Errorf("hash field %q: expected a precomputed uint64 hash, got %T", f.Name, value)
	}
	return bitbuf.FromUint64(c.width(f), raw&c.mask(f)), nil
}

func (c *Hash) Decode(ctx *fieldcodec.Context, f *schema.Field, bits *bitbuf.Buffer, strict bool) (any, error) {
	chunk, err := bits.ReadBits(c.width(f))
	if err != nil {
		return nil, err
	}
	return chunk.ToUint64(), nil
}

func (c *Hash) Info(f *schema.Field) string {
	return fmt.Sprintf("%s: structural hash (%d bits)", f.Name, c.width(f))
}

func (c *Hash) Hash(f *schema.Field, h hash.Hash64) {
	fmt.Fprintf(hashWriter{h}, "%s|%d", c.name, c.width(f))
}
