package codecs

import (
	"fmt"
	"hash"

	"github.com/dccl-go/dccl/internal/bitbuf"
	"github.com/dccl-go/dccl/internal/dlog"
	"github.com/dccl-go/dccl/internal/fieldcodec"
	"github.com/dccl-go/dccl/internal/schema"
)

func toRawBytes(value any) ([]byte, error) {
	switch v := value.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	default:
		return nil, fmt.Errorf("codecs: cannot convert %T to bytes", value)
	}
}

func fromRawBytes(kind schema.Kind, raw []byte) any {
	if kind == schema.KindString {
		return string(raw)
	}
	out := make([]byte, len(raw))
	copy(out, raw)
	return out
}

func prefixBits(maxLength int) int {
	return ceilLog2(uint64(maxLength) + 1)
}

func clampLength(f *schema.Field, raw []byte, strict bool) ([]byte, error) {
	if len(raw) <= f.Options.MaxLength {
		return raw, nil
	}
	if strict {
		return nil, fmt.Errorf("%w: field %q value length %d exceeds max_length %d", ErrOutOfRange, f.Name, len(raw), f.Options.MaxLength)
	}
	dlog.Log.Debugf("field %q: value length %d exceeds max_length %d, truncating", f.Name, len(raw), f.Options.MaxLength)
	return raw[:f.Options.MaxLength], nil
}

// LengthPrefixed is the default2/default3 string/bytes codec: a
// ceil(log2(max_length+1))-bit length prefix followed by that many
// bytes. It carries a documented quirk inherited from
// original_source/src/dccl_field_codec_default.cpp's
// DCCLDefaultStringCodec/DCCLDefaultBytesCodec: a decoded length of zero
// is reported as fieldcodec.ErrNullValue even for a required field, so a
// genuinely empty (zero-length) value is indistinguishable from "absent"
// on the wire. Use dccl.var_bytes when that distinction matters.
type LengthPrefixed struct {
	name string
}

func NewLengthPrefixed(name string) fieldcodec.Codec { return &LengthPrefixed{name: name} }

func (c *LengthPrefixed) Name() string { return c.name }

func (c *LengthPrefixed) Validate(f *schema.Field) error {
	if err := fieldcodec.Require(f.Options.MaxLength > 0, "missing max_length"); err != nil {
		return err
	}
	if f.Label == schema.LabelRepeated {
		return fieldcodec.Require(f.Options.MaxRepeat > 0, "repeated field missing max_repeat")
	}
	return nil
}

func (c *LengthPrefixed) MaxSize(f *schema.Field) (int, error) {
	return prefixBits(f.Options.MaxLength) + f.Options.MaxLength*8, nil
}

func (c *LengthPrefixed) MinSize(f *schema.Field) (int, error) {
	return prefixBits(f.Options.MaxLength), nil
}

func (c *LengthPrefixed) Size(f *schema.Field, value any, present bool) (int, error) {
	if !present {
		return prefixBits(f.Options.MaxLength), nil
	}
	raw, err := toRawBytes(value)
	if err != nil {
		return 0, err
	}
	return prefixBits(f.Options.MaxLength) + len(raw)*8, nil
}

func (c *LengthPrefixed) Encode(ctx *fieldcodec.Context, f *schema.Field, value any, present bool, strict bool) (*bitbuf.Buffer, error) {
	pbits := prefixBits(f.Options.MaxLength)
	if !present {
		if f.Label != schema.LabelOptional {
			return nil, fmt.Errorf("field %q: empty encoding requested for a required field", f.Name)
		}
		return bitbuf.FromUint64(pbits, 0), nil
	}
	raw, err := toRawBytes(value)
	if err != nil {
		return nil, err
	}
	raw, err = clampLength(f, raw, strict)
	if err != nil {
		return nil, err
	}
	out := bitbuf.FromUint64(pbits, uint64(len(raw)))
	for _, b := range raw {
		out.Append(bitbuf.FromUint64(8, uint64(b)))
	}
	return out, nil
}

func (c *LengthPrefixed) Decode(ctx *fieldcodec.Context, f *schema.Field, bits *bitbuf.Buffer, strict bool) (any, error) {
	pbits := prefixBits(f.Options.MaxLength)
	lenChunk, err := bits.ReadBits(pbits)
	if err != nil {
		return nil, err
	}
	length := int(lenChunk.ToUint64())
	if length == 0 {
		return nil, fieldcodec.ErrNullValue
	}
	dataChunk, err := bits.ReadBits(length * 8)
	if err != nil {
		return nil, err
	}
	raw, err := dataChunk.ToByteString()
	if err != nil {
		return nil, err
	}
	return fromRawBytes(f.Kind, raw), nil
}

func (c *LengthPrefixed) Info(f *schema.Field) string {
	return fmt.Sprintf("%s: %s length-prefixed, max_length=%d", f.Name, f.Kind, f.Options.MaxLength)
}

func (c *LengthPrefixed) Hash(f *schema.Field, h hash.Hash64) {
	fmt.Fprintf(hashWriter{h}, "%s|%d|%v", c.name, f.Options.MaxLength, f.Label)
}

// VarBytes is the dccl.var_bytes codec: same length
// prefix as LengthPrefixed, but an optional field spends one extra
// presence bit instead of reserving length zero as the null code, so a
// genuinely empty value round-trips, grounded on
// original_source/src/codecs3/field_codec_var_bytes.cpp.
type VarBytes struct {
	name string
}

func NewVarBytes(name string) fieldcodec.Codec { return &VarBytes{name: name} }

func (c *VarBytes) Name() string { return c.name }

func (c *VarBytes) Validate(f *schema.Field) error {
	if err := fieldcodec.Require(f.Options.MaxLength > 0, "missing max_length"); err != nil {
		return err
	}
	if f.Label == schema.LabelRepeated {
		return fieldcodec.Require(f.Options.MaxRepeat > 0, "repeated field missing max_repeat")
	}
	return nil
}

func (c *VarBytes) presenceBits(f *schema.Field) int {
	if f.Label == schema.LabelOptional {
		return 1
	}
	return 0
}

func (c *VarBytes) MaxSize(f *schema.Field) (int, error) {
	return c.presenceBits(f) + prefixBits(f.Options.MaxLength) + f.Options.MaxLength*8, nil
}

func (c *VarBytes) MinSize(f *schema.Field) (int, error) {
	if f.Label == schema.LabelOptional {
		return 1, nil
	}
	return prefixBits(f.Options.MaxLength), nil
}

func (c *VarBytes) Size(f *schema.Field, value any, present bool) (int, error) {
	if !present {
		return c.presenceBits(f), nil
	}
	raw, err := toRawBytes(value)
	if err != nil {
		return 0, err
	}
	return c.presenceBits(f) + prefixBits(f.Options.MaxLength) + len(raw)*8, nil
}

func (c *VarBytes) Encode(ctx *fieldcodec.Context, f *schema.Field, value any, present bool, strict bool) (*bitbuf.Buffer, error) {
	pbits := prefixBits(f.Options.MaxLength)
	if !present {
		if f.Label != schema.LabelOptional {
			return nil, fmt.Errorf("field %q: empty encoding requested for a required field", f.Name)
		}
		return bitbuf.FromUint64(1, 0), nil
	}
	raw, err := toRawBytes(value)
	if err != nil {
		return nil, err
	}
	raw, err = clampLength(f, raw, strict)
	if err != nil {
		return nil, err
	}

	out := bitbuf.New()
	if f.Label == schema.LabelOptional {
		out.Append(bitbuf.FromUint64(1, 1))
	}
	out.Append(bitbuf.FromUint64(pbits, uint64(len(raw))))
	for _, b := range raw {
		out.Append(bitbuf.FromUint64(8, uint64(b)))
	}
	return out, nil
}

func (c *VarBytes) Decode(ctx *fieldcodec.Context, f *schema.Field, bits *bitbuf.Buffer, strict bool) (any, error) {
	if f.Label == schema.LabelOptional {
		presence, err := bits.ReadBits(1)
		if err != nil {
			return nil, err
		}
		if presence.ToUint64() == 0 {
			return nil, fieldcodec.ErrNullValue
		}
	}
	pbits := prefixBits(f.Options.MaxLength)
	lenChunk, err := bits.ReadBits(pbits)
	if err != nil {
		return nil, err
	}
	length := int(lenChunk.ToUint64())
	dataChunk, err := bits.ReadBits(length * 8)
	if err != nil {
		return nil, err
	}
	raw, err := dataChunk.ToByteString()
	if err != nil {
		return nil, err
	}
	return fromRawBytes(f.Kind, raw), nil
}

func (c *VarBytes) Info(f *schema.Field) string {
	return fmt.Sprintf("%s: %s var-bytes, max_length=%d", f.Name, f.Kind, f.Options.MaxLength)
}

func (c *VarBytes) Hash(f *schema.Field, h hash.Hash64) {
	fmt.Fprintf(hashWriter{h}, "%s|%d|%v", c.name, f.Options.MaxLength, f.Label)
}
