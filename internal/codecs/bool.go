package codecs

import (
	"fmt"
	"hash"

	"github.com/dccl-go/dccl/internal/bitbuf"
	"github.com/dccl-go/dccl/internal/fieldcodec"
	"github.com/dccl-go/dccl/internal/schema"
)

// Bool is the default bool field codec. A required bool takes a single
// bit (0=false, 1=true). An optional bool takes two bits so a reserved
// code can represent "absent" alongside false and true, mirroring
// original_source/src/dccl_field_codec_default.cpp's
// DCCLDefaultBoolCodec (code 0 = null, 1 = false, 2 = true).
type Bool struct {
	name string
}

func NewBool(name string) fieldcodec.Codec { return &Bool{name: name} }

func (c *Bool) Name() string { return c.name }

func (c *Bool) Validate(f *schema.Field) error {
	if f.Label == schema.LabelRepeated {
		return fieldcodec.Require(f.Options.MaxRepeat > 0, "repeated bool field missing max_repeat")
	}
	return nil
}

func (c *Bool) width(f *schema.Field) int {
	if f.Label == schema.LabelOptional {
		return 2
	}
	return 1
}

func (c *Bool) MaxSize(f *schema.Field) (int, error) { return c.width(f), nil }
func (c *Bool) MinSize(f *schema.Field) (int, error) { return c.width(f), nil }

func (c *Bool) Size(f *schema.Field, value any, present bool) (int, error) {
	return c.width(f), nil
}

func (c *Bool) Encode(ctx *fieldcodec.Context, f *schema.Field, value any, present bool, strict bool) (*bitbuf.Buffer, error) {
	width := c.width(f)
	if !present {
		if f.Label != schema.LabelOptional {
			return nil, fmt.Errorf("bool field %q: empty encoding requested for a required field", f.Name)
		}
		return bitbuf.FromUint64(width, 0), nil // code 0 = null
	}
	b, ok := value.(bool)
	if !ok {
		return nil, fmt.Errorf("bool field %q: value %v is not a bool", f.Name, value)
	}
	if f.Label == schema.LabelOptional {
		if b {
			return bitbuf.FromUint64(width, 2), nil
		}
		return bitbuf.FromUint64(width, 1), nil
	}
	if b {
		return bitbuf.FromUint64(width, 1), nil
	}
	return bitbuf.FromUint64(width, 0), nil
}

func (c *Bool) Decode(ctx *fieldcodec.Context, f *schema.Field, bits *bitbuf.Buffer, strict bool) (any, error) {
	width := c.width(f)
	chunk, err := bits.ReadBits(width)
	if err != nil {
		return nil, err
	}
	raw := chunk.ToUint64()
	if f.Label == schema.LabelOptional {
		switch raw {
		case 0:
			return nil, fieldcodec.ErrNullValue
		case 1:
			return false, nil
		default:
			return true, nil
		}
	}
	return raw != 0, nil
}

func (c *Bool) Info(f *schema.Field) string {
	return fmt.Sprintf("%s: bool (%d bits)", f.Name, c.width(f))
}

func (c *Bool) Hash(f *schema.Field, h hash.Hash64) {
	fmt.Fprintf(hashWriter{h}, "%s|%v", c.name, f.Label)
}
