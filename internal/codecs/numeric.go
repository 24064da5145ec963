package codecs

import (
	"fmt"
	"hash"
	"math"

	"github.com/dccl-go/dccl/internal/bitbuf"
	"github.com/dccl-go/dccl/internal/dlog"
	"github.com/dccl-go/dccl/internal/fieldcodec"
	"github.com/dccl-go/dccl/internal/schema"
)

// Numeric is the default numeric field codec, shared by
// int32/int64/uint32/uint64/double/float — the same pattern
// original_source/src/dccl.cpp registers
// DCCLDefaultNumericFieldCodec<double/float/int32/int64/uint32/uint64>
// under one default codec name per family. The enum and hash codecs are
// separate types that pack their own bounded integers the same way.
type Numeric struct {
	name string
}

// NewNumeric builds the default numeric codec under the given registry
// name.
func NewNumeric(name string) fieldcodec.Codec { return &Numeric{name: name} }

func (n *Numeric) Name() string { return n.name }

func (n *Numeric) Validate(f *schema.Field) error {
	if err := fieldcodec.Require(f.Options.HasBounds, "missing min/max"); err != nil {
		return err
	}
	if err := fieldcodec.Require(f.Options.Min <= f.Options.Max, "min must be <= max"); err != nil {
		return err
	}
	if f.Label == schema.LabelRepeated {
		if err := fieldcodec.Require(f.Options.MaxRepeat > 0, "repeated numeric field missing max_repeat"); err != nil {
			return err
		}
	}
	width, err := n.bitWidth(f)
	if err != nil {
		return err
	}
	if width > 63 {
		return fmt.Errorf("numeric field %q requires %d bits, overflows wire type", f.Name, width)
	}
	return nil
}

// valueCount returns the number of distinct representable values in
// [min, max] at the field's precision.
func (n *Numeric) valueCount(f *schema.Field) uint64 {
	scale := scaleFor(f.Options.Precision)
	span := math.Round((f.Options.Max - f.Options.Min) * scale)
	return uint64(span) + 1
}

// bitWidth returns the bit width of the wire field, including the
// reserved all-ones null code when the field is optional.
func (n *Numeric) bitWidth(f *schema.Field) (int, error) {
	count := n.valueCount(f)
	if f.Label == schema.LabelOptional {
		count++
	}
	return ceilLog2(count), nil
}

func (n *Numeric) nullCode(f *schema.Field, width int) uint64 {
	_ = f
	if width == 0 {
		return 0
	}
	return (uint64(1) << uint(width)) - 1
}

func (n *Numeric) MaxSize(f *schema.Field) (int, error) { return n.bitWidth(f) }
func (n *Numeric) MinSize(f *schema.Field) (int, error) { return n.bitWidth(f) }

func (n *Numeric) Size(f *schema.Field, value any, present bool) (int, error) {
	return n.bitWidth(f)
}

// clampOrReject applies the field's strict/non-strict out-of-range
// policy, logging and clamping in non-strict mode.
func (n *Numeric) clampOrReject(f *schema.Field, value float64, strict bool) (float64, error) {
	if value >= f.Options.Min && value <= f.Options.Max {
		return value, nil
	}
	if strict {
		return 0, fmt.Errorf("%w: value %v outside [%v, %v] for field %q", ErrOutOfRange, value, f.Options.Min, f.Options.Max, f.Name)
	}
	clamped := value
	if clamped < f.Options.Min {
		clamped = f.Options.Min
	}
	if clamped > f.Options.Max {
		clamped = f.Options.Max
	}
	dlog.Log.Debugf("numeric field %q: value %v out of range, clamped to %v", f.Name, value, clamped)
	return clamped, nil
}

func (n *Numeric) Encode(ctx *fieldcodec.Context, f *schema.Field, value any, present bool, strict bool) (*bitbuf.Buffer, error) {
	width, err := n.bitWidth(f)
	if err != nil {
		return nil, err
	}
	if !present {
		if f.Label != schema.LabelOptional {
			return nil, fmt.Errorf("numeric field %q: empty encoding requested for a required field", f.Name)
		}
		return bitbuf.FromUint64(width, n.nullCode(f, width)), nil
	}

	fval, err := toFloat64(value)
	if err != nil {
		return nil, err
	}
	rounded := roundToPrecision(fval, f.Options.Precision)
	clamped, err := n.clampOrReject(f, rounded, strict)
	if err != nil {
		return nil, err
	}

	scale := scaleFor(f.Options.Precision)
	raw := uint64(math.Round((clamped - f.Options.Min) * scale))

	if f.Label == schema.LabelOptional && raw >= n.nullCode(f, width) {
		// value would collide with the reserved null code; clamp down by
		// one unit (can only happen at the very top of the range).
		raw--
	}
	return bitbuf.FromUint64(width, raw), nil
}

func (n *Numeric) Decode(ctx *fieldcodec.Context, f *schema.Field, bits *bitbuf.Buffer, strict bool) (any, error) {
	width, err := n.bitWidth(f)
	if err != nil {
		return nil, err
	}
	chunk, err := bits.ReadBits(width)
	if err != nil {
		return nil, err
	}
	raw := chunk.ToUint64()

	if f.Label == schema.LabelOptional && raw == n.nullCode(f, width) {
		return nil, fieldcodec.ErrNullValue
	}

	scale := scaleFor(f.Options.Precision)
	value := float64(raw)/scale + f.Options.Min
	return fromFloat64(f.Kind, value), nil
}

func (n *Numeric) Info(f *schema.Field) string {
	width, _ := n.bitWidth(f)
	return fmt.Sprintf("%s: %s in [%v, %v] precision %d (%d bits)", f.Name, f.Kind, f.Options.Min, f.Options.Max, f.Options.Precision, width)
}

func (n *Numeric) Hash(f *schema.Field, h hash.Hash64) {
	fmt.Fprintf(hashWriter{h}, "%s|%v|%v|%d|%v", n.name, f.Options.Min, f.Options.Max, f.Options.Precision, f.Label)
}
