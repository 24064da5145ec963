package codecs

import (
	"fmt"
	"hash"

	"github.com/dccl-go/dccl/internal/bitbuf"
	"github.com/dccl-go/dccl/internal/dlog"
	"github.com/dccl-go/dccl/internal/fieldcodec"
	"github.com/dccl-go/dccl/internal/schema"
)

// Presence decorates any Codec with a single leading presence bit in
// place of that codec's own reserved-null encoding, an alternative
// optional-field strategy. The decorated field is
// forced to LabelRequired before being handed to inner, so inner never
// spends bits on its own null handling.
//
// Presence also implements fieldcodec.Repeated: rather than the message
// codec's default fixed max_repeat slots, a repeated presence-bit field
// writes one presence bit + value per element, terminated by a single
// EOF presence bit rather than a fixed slot count.
type Presence struct {
	name  string
	inner fieldcodec.Codec
}

// NewPresence builds a presence-bit decorator over inner, registered
// under name.
func NewPresence(name string, inner fieldcodec.Codec) fieldcodec.Codec {
	return &Presence{name: name, inner: inner}
}

func (c *Presence) Name() string { return c.name }

func (c *Presence) Validate(f *schema.Field) error {
	return c.inner.Validate(forceRequired(f))
}

func (c *Presence) MaxSize(f *schema.Field) (int, error) {
	inner, err := c.inner.MaxSize(forceRequired(f))
	if err != nil {
		return 0, err
	}
	return 1 + inner, nil
}

func (c *Presence) MinSize(f *schema.Field) (int, error) {
	return 1, nil
}

func (c *Presence) Size(f *schema.Field, value any, present bool) (int, error) {
	if !present {
		return 1, nil
	}
	inner, err := c.inner.Size(forceRequired(f), value, true)
	if err != nil {
		return 0, err
	}
	return 1 + inner, nil
}

func (c *Presence) Encode(ctx *fieldcodec.Context, f *schema.Field, value any, present bool, strict bool) (*bitbuf.Buffer, error) {
	if !present {
		return bitbuf.FromUint64(1, 0), nil
	}
	inner, err := c.inner.Encode(ctx, forceRequired(f), value, true, strict)
	if err != nil {
		return nil, err
	}
	out := bitbuf.FromUint64(1, 1)
	out.Append(inner)
	return out, nil
}

func (c *Presence) Decode(ctx *fieldcodec.Context, f *schema.Field, bits *bitbuf.Buffer, strict bool) (any, error) {
	presence, err := bits.ReadBits(1)
	if err != nil {
		return nil, err
	}
	if presence.ToUint64() == 0 {
		return nil, fieldcodec.ErrNullValue
	}
	return c.inner.Decode(ctx, forceRequired(f), bits, strict)
}

func (c *Presence) Info(f *schema.Field) string {
	return fmt.Sprintf("%s: presence-bit + %s", f.Name, c.inner.Info(forceRequired(f)))
}

func (c *Presence) Hash(f *schema.Field, h hash.Hash64) {
	fmt.Fprintf(hashWriter{h}, "%s|", c.name)
	c.inner.Hash(forceRequired(f), h)
}

func (c *Presence) MaxSizeRepeated(f *schema.Field) (int, error) {
	innerMax, err := c.inner.MaxSize(forceRequired(f))
	if err != nil {
		return 0, err
	}
	return f.Options.MaxRepeat*(1+innerMax) + 1, nil
}

func (c *Presence) MinSizeRepeated(f *schema.Field) (int, error) {
	return 1, nil // zero elements: just the EOF bit
}

func (c *Presence) SizeRepeated(f *schema.Field, values []any) (int, error) {
	total := 1 // trailing EOF bit
	forced := forceRequired(f)
	for _, v := range values {
		n, err := c.inner.Size(forced, v, true)
		if err != nil {
			return 0, err
		}
		total += 1 + n
	}
	return total, nil
}

func (c *Presence) EncodeRepeated(ctx *fieldcodec.Context, f *schema.Field, values []any, strict bool) (*bitbuf.Buffer, error) {
	if len(values) > f.Options.MaxRepeat {
		if strict {
			return nil, fmt.Errorf("%w: repeated field %q has %d values, exceeds max_repeat %d", ErrOutOfRange, f.Name, len(values), f.Options.MaxRepeat)
		}
		dlog.Log.Debugf("repeated field %q: %d values exceeds max_repeat %d, dropping extras", f.Name, len(values), f.Options.MaxRepeat)
		values = values[:f.Options.MaxRepeat]
	}

	forced := forceRequired(f)
	out := bitbuf.New()
	for _, v := range values {
		encoded, err := c.inner.Encode(ctx, forced, v, true, strict)
		if err != nil {
			return nil, err
		}
		out.Append(bitbuf.FromUint64(1, 1))
		out.Append(encoded)
	}
	out.Append(bitbuf.FromUint64(1, 0)) // EOF symbol
	return out, nil
}

func (c *Presence) DecodeRepeated(ctx *fieldcodec.Context, f *schema.Field, bits *bitbuf.Buffer, strict bool) ([]any, error) {
	forced := forceRequired(f)
	var values []any
	for i := 0; i <= f.Options.MaxRepeat; i++ {
		marker, err := bits.ReadBits(1)
		if err != nil {
			return nil, err
		}
		if marker.ToUint64() == 0 {
			return values, nil
		}
		v, err := c.inner.Decode(ctx, forced, bits, strict)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return nil, fmt.Errorf("repeated field %q: EOF symbol missing after max_repeat %d elements", f.Name, f.Options.MaxRepeat)
}
