package codecs

import (
	"fmt"
	"hash"

	"github.com/dccl-go/dccl/internal/bitbuf"
	"github.com/dccl-go/dccl/internal/fieldcodec"
	"github.com/dccl-go/dccl/internal/schema"
)

// Enum is the default enum field codec. With packed_enum (the default),
// the wire value is the enum value's declaration index, bit-packed the
// same way the numeric codec packs a bounded integer — the cheapest
// encoding, but it changes if values are reordered. With packed_enum=
// false, the wire value is the enum's raw declared number, bit-packed
// over [min number, max number] — stable across reordering at the cost
// of a wider field when the numbers are sparse. Unknown numbers/indices
// read off the wire (schema skew between peers) decode as
// fieldcodec.ErrNullValue rather than an error, matching the
// discriminator-style forward-compatibility policy the other codecs use.
type Enum struct {
	name string
}

func NewEnum(name string) fieldcodec.Codec { return &Enum{name: name} }

func (c *Enum) Name() string { return c.name }

func (c *Enum) Validate(f *schema.Field) error {
	if err := fieldcodec.Require(len(f.Options.EnumValues) > 0, "enum field declares no values"); err != nil {
		return err
	}
	if f.Label == schema.LabelRepeated {
		if err := fieldcodec.Require(f.Options.MaxRepeat > 0, "repeated enum field missing max_repeat"); err != nil {
			return err
		}
	}
	width, err := c.bitWidth(f)
	if err != nil {
		return err
	}
	if width > 63 {
		return fmt.Errorf("enum field %q requires %d bits, overflows wire type", f.Name, width)
	}
	return nil
}

// codeCount returns the number of distinct representable wire codes,
// i.e. how many values packed_enum must be able to discriminate (or the
// [min,max] span of raw numbers for unpacked enums).
func (c *Enum) codeCount(f *schema.Field) uint64 {
	if f.Options.PackedEnum {
		return uint64(len(f.Options.EnumValues))
	}
	minN, maxN := c.numberRange(f)
	return uint64(maxN-minN) + 1
}

func (c *Enum) numberRange(f *schema.Field) (int32, int32) {
	minN, maxN := f.Options.EnumValues[0].Number, f.Options.EnumValues[0].Number
	for _, v := range f.Options.EnumValues[1:] {
		if v.Number < minN {
			minN = v.Number
		}
		if v.Number > maxN {
			maxN = v.Number
		}
	}
	return minN, maxN
}

func (c *Enum) bitWidth(f *schema.Field) (int, error) {
	count := c.codeCount(f)
	if f.Label == schema.LabelOptional {
		count++
	}
	return ceilLog2(count), nil
}

func (c *Enum) nullCode(width int) uint64 {
	if width == 0 {
		return 0
	}
	return (uint64(1) << uint(width)) - 1
}

func (c *Enum) MaxSize(f *schema.Field) (int, error) { return c.bitWidth(f) }
func (c *Enum) MinSize(f *schema.Field) (int, error) { return c.bitWidth(f) }

func (c *Enum) Size(f *schema.Field, value any, present bool) (int, error) {
	return c.bitWidth(f)
}

func (c *Enum) indexOf(f *schema.Field, number int32) (int, bool) {
	for i, v := range f.Options.EnumValues {
		if v.Number == number {
			return i, true
		}
	}
	return 0, false
}

func (c *Enum) Encode(ctx *fieldcodec.Context, f *schema.Field, value any, present bool, strict bool) (*bitbuf.Buffer, error) {
	width, err := c.bitWidth(f)
	if err != nil {
		return nil, err
	}
	if !present {
		if f.Label != schema.LabelOptional {
			return nil, fmt.Errorf("enum field %q: empty encoding requested for a required field", f.Name)
		}
		return bitbuf.FromUint64(width, c.nullCode(width)), nil
	}

	number, err := toEnumNumber(value)
	if err != nil {
		return nil, err
	}

	if f.Options.PackedEnum {
		idx, ok := c.indexOf(f, number)
		if !ok {
			return nil, fmt.Errorf("%w: enum field %q has no declared value %d", ErrOutOfRange, f.Name, number)
		}
		return bitbuf.FromUint64(width, uint64(idx)), nil
	}

	minN, _ := c.numberRange(f)
	return bitbuf.FromUint64(width, uint64(number-minN)), nil
}

func (c *Enum) Decode(ctx *fieldcodec.Context, f *schema.Field, bits *bitbuf.Buffer, strict bool) (any, error) {
	width, err := c.bitWidth(f)
	if err != nil {
		return nil, err
	}
	chunk, err := bits.ReadBits(width)
	if err != nil {
		return nil, err
	}
	raw := chunk.ToUint64()

	if f.Label == schema.LabelOptional && raw == c.nullCode(width) {
		return nil, fieldcodec.ErrNullValue
	}

	if f.Options.PackedEnum {
		if raw >= uint64(len(f.Options.EnumValues)) {
			return nil, fieldcodec.ErrNullValue
		}
		return f.Options.EnumValues[raw].Number, nil
	}

	minN, maxN := c.numberRange(f)
	number := minN + int32(raw)
	if number > maxN {
		return nil, fieldcodec.ErrNullValue
	}
	if _, ok := c.indexOf(f, number); !ok {
		return nil, fieldcodec.ErrNullValue
	}
	return number, nil
}

func (c *Enum) Info(f *schema.Field) string {
	width, _ := c.bitWidth(f)
	return fmt.Sprintf("%s: enum (%d values, packed=%v, %d bits)", f.Name, len(f.Options.EnumValues), f.Options.PackedEnum, width)
}

func (c *Enum) Hash(f *schema.Field, h hash.Hash64) {
	fmt.Fprintf(hashWriter{h}, "%s|%v|%d", c.name, f.Options.PackedEnum, len(f.Options.EnumValues))
	for _, v := range f.Options.EnumValues {
		fmt.Fprintf(hashWriter{h}, "|%s:%d", v.Name, v.Number)
	}
}

func toEnumNumber(value any) (int32, error) {
	switch v := value.(type) {
	case int32:
		return v, nil
	case int:
		return int32(v), nil
	default:
		return 0, fmt.Errorf("codecs: cannot convert %T to an enum number", value)
	}
}
