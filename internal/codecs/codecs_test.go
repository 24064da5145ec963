package codecs

import (
	"testing"
	"time"

	"github.com/dccl-go/dccl/internal/bitbuf"
	"github.com/dccl-go/dccl/internal/fieldcodec"
	"github.com/dccl-go/dccl/internal/schema"
)

var emptyCtx = &fieldcodec.Context{}

func TestNumericRoundTrip(t *testing.T) {
	f := &schema.Field{Name: "x", Kind: schema.KindDouble, Label: schema.LabelRequired,
		Options: schema.FieldOptions{HasBounds: true, Min: -100, Max: 100, Precision: 2}}
	c := NewNumeric("t")
	if err := c.Validate(f); err != nil {
		t.Fatalf("validate: %v", err)
	}
	buf, err := c.Encode(emptyCtx, f, 12.34, true, true)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := c.Decode(emptyCtx, f, bitbuf.FromBits(buf.Bits()), true)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.(float64) < 12.33 || got.(float64) > 12.35 {
		t.Fatalf("got %v, want ~12.34", got)
	}
}

func TestNumericOptionalNull(t *testing.T) {
	f := &schema.Field{Name: "x", Kind: schema.KindInt32, Label: schema.LabelOptional,
		Options: schema.FieldOptions{HasBounds: true, Min: 0, Max: 10}}
	c := NewNumeric("t")
	buf, err := c.Encode(emptyCtx, f, nil, false, true)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	_, err = c.Decode(emptyCtx, f, bitbuf.FromBits(buf.Bits()), true)
	if err != fieldcodec.ErrNullValue {
		t.Fatalf("got %v, want ErrNullValue", err)
	}
}

func TestNumericStrictRejectsOutOfRange(t *testing.T) {
	f := &schema.Field{Name: "x", Kind: schema.KindInt32, Label: schema.LabelRequired,
		Options: schema.FieldOptions{HasBounds: true, Min: 0, Max: 10}}
	c := NewNumeric("t")
	if _, err := c.Encode(emptyCtx, f, int32(20), true, true); err == nil {
		t.Fatal("expected strict out-of-range error")
	}
	buf, err := c.Encode(emptyCtx, f, int32(20), true, false)
	if err != nil {
		t.Fatalf("non-strict encode: %v", err)
	}
	got, err := c.Decode(emptyCtx, f, bitbuf.FromBits(buf.Bits()), false)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.(int32) != 10 {
		t.Fatalf("got %v, want clamped 10", got)
	}
}

func TestBoolRoundTrip(t *testing.T) {
	f := &schema.Field{Name: "b", Kind: schema.KindBool, Label: schema.LabelOptional}
	c := NewBool("t")
	for _, want := range []bool{true, false} {
		buf, err := c.Encode(emptyCtx, f, want, true, true)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		got, err := c.Decode(emptyCtx, f, bitbuf.FromBits(buf.Bits()), true)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got.(bool) != want {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
	buf, err := c.Encode(emptyCtx, f, nil, false, true)
	if err != nil {
		t.Fatalf("encode absent: %v", err)
	}
	if _, err := c.Decode(emptyCtx, f, bitbuf.FromBits(buf.Bits()), true); err != fieldcodec.ErrNullValue {
		t.Fatalf("got %v, want ErrNullValue", err)
	}
}

func enumField(label schema.Label) *schema.Field {
	return &schema.Field{Name: "e", Kind: schema.KindEnum, Label: label,
		Options: schema.FieldOptions{PackedEnum: true, EnumValues: []schema.EnumValue{
			{Name: "A", Number: 1}, {Name: "B", Number: 5}, {Name: "C", Number: 9},
		}}}
}

func TestEnumPackedRoundTrip(t *testing.T) {
	f := enumField(schema.LabelRequired)
	c := NewEnum("t")
	buf, err := c.Encode(emptyCtx, f, int32(5), true, true)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := c.Decode(emptyCtx, f, bitbuf.FromBits(buf.Bits()), true)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.(int32) != 5 {
		t.Fatalf("got %v, want 5", got)
	}
}

func TestEnumUnpackedRoundTrip(t *testing.T) {
	f := enumField(schema.LabelRequired)
	f.Options.PackedEnum = false
	c := NewEnum("t")
	buf, err := c.Encode(emptyCtx, f, int32(9), true, true)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := c.Decode(emptyCtx, f, bitbuf.FromBits(buf.Bits()), true)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.(int32) != 9 {
		t.Fatalf("got %v, want 9", got)
	}
}

func TestEnumUnknownWireValueIsNull(t *testing.T) {
	f := enumField(schema.LabelRequired)
	c := NewEnum("t")
	// 3 declared values need 2 bits; code 3 is unused.
	buf := bitbuf.FromUint64(2, 3)
	if _, err := c.Decode(emptyCtx, f, buf, true); err != fieldcodec.ErrNullValue {
		t.Fatalf("got %v, want ErrNullValue", err)
	}
}

func TestLengthPrefixedRoundTrip(t *testing.T) {
	f := &schema.Field{Name: "s", Kind: schema.KindString, Label: schema.LabelRequired,
		Options: schema.FieldOptions{MaxLength: 16}}
	c := NewLengthPrefixed("t")
	buf, err := c.Encode(emptyCtx, f, "hello", true, true)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := c.Decode(emptyCtx, f, bitbuf.FromBits(buf.Bits()), true)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.(string) != "hello" {
		t.Fatalf("got %q, want %q", got, "hello")
	}
}

func TestLengthPrefixedEmptyStringDecodesNull(t *testing.T) {
	f := &schema.Field{Name: "s", Kind: schema.KindString, Label: schema.LabelRequired,
		Options: schema.FieldOptions{MaxLength: 16}}
	c := NewLengthPrefixed("t")
	buf, err := c.Encode(emptyCtx, f, "", true, true)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := c.Decode(emptyCtx, f, bitbuf.FromBits(buf.Bits()), true); err != fieldcodec.ErrNullValue {
		t.Fatalf("got %v, want ErrNullValue (documented length=0 quirk)", err)
	}
}

func TestVarBytesDistinguishesEmptyFromAbsent(t *testing.T) {
	f := &schema.Field{Name: "s", Kind: schema.KindString, Label: schema.LabelOptional,
		Options: schema.FieldOptions{MaxLength: 16}}
	c := NewVarBytes("t")

	emptyBuf, err := c.Encode(emptyCtx, f, "", true, true)
	if err != nil {
		t.Fatalf("encode empty: %v", err)
	}
	got, err := c.Decode(emptyCtx, f, bitbuf.FromBits(emptyBuf.Bits()), true)
	if err != nil {
		t.Fatalf("decode empty: %v", err)
	}
	if got.(string) != "" {
		t.Fatalf("got %q, want empty string", got)
	}

	absentBuf, err := c.Encode(emptyCtx, f, nil, false, true)
	if err != nil {
		t.Fatalf("encode absent: %v", err)
	}
	if _, err := c.Decode(emptyCtx, f, bitbuf.FromBits(absentBuf.Bits()), true); err != fieldcodec.ErrNullValue {
		t.Fatalf("got %v, want ErrNullValue", err)
	}
}

func TestPresenceRoundTripAndAbsent(t *testing.T) {
	f := &schema.Field{Name: "v", Kind: schema.KindInt32, Label: schema.LabelOptional,
		Options: schema.FieldOptions{HasBounds: true, Min: 0, Max: 1000}}
	c := NewPresence("t", NewNumeric("inner"))

	buf, err := c.Encode(emptyCtx, f, int32(42), true, true)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := c.Decode(emptyCtx, f, bitbuf.FromBits(buf.Bits()), true)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.(int32) != 42 {
		t.Fatalf("got %v, want 42", got)
	}

	absent, err := c.Encode(emptyCtx, f, nil, false, true)
	if err != nil {
		t.Fatalf("encode absent: %v", err)
	}
	if _, err := c.Decode(emptyCtx, f, bitbuf.FromBits(absent.Bits()), true); err != fieldcodec.ErrNullValue {
		t.Fatalf("got %v, want ErrNullValue", err)
	}
}

func TestPresenceRepeatedEOFSymbol(t *testing.T) {
	f := &schema.Field{Name: "v", Kind: schema.KindInt32, Label: schema.LabelRepeated,
		Options: schema.FieldOptions{HasBounds: true, Min: 0, Max: 1000, MaxRepeat: 10}}
	rc := NewPresence("t", NewNumeric("inner")).(fieldcodec.Repeated)

	values := []any{int32(1), int32(2), int32(3)}
	buf, err := rc.EncodeRepeated(emptyCtx, f, values, true)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := rc.DecodeRepeated(emptyCtx, f, bitbuf.FromBits(buf.Bits()), true)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d values, want 3", len(got))
	}
	for i, v := range got {
		if v.(int32) != values[i] {
			t.Fatalf("value %d: got %v, want %v", i, v, values[i])
		}
	}
}

func TestPresenceRepeatedEmpty(t *testing.T) {
	f := &schema.Field{Name: "v", Kind: schema.KindInt32, Label: schema.LabelRepeated,
		Options: schema.FieldOptions{HasBounds: true, Min: 0, Max: 1000, MaxRepeat: 10}}
	rc := NewPresence("t", NewNumeric("inner")).(fieldcodec.Repeated)

	buf, err := rc.EncodeRepeated(emptyCtx, f, nil, true)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if buf.Len() != 1 {
		t.Fatalf("expected a single EOF bit, got %d bits", buf.Len())
	}
	got, err := rc.DecodeRepeated(emptyCtx, f, bitbuf.FromBits(buf.Bits()), true)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("got %d values, want 0", len(got))
	}
}

func TestStaticAlwaysDecodesDeclaredValue(t *testing.T) {
	f := &schema.Field{Name: "ver", Kind: schema.KindString, Label: schema.LabelRequired,
		Options: schema.FieldOptions{StaticValue: "v1"}}
	c := NewStatic("t")
	buf, err := c.Encode(emptyCtx, f, "ignored", true, true)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("expected zero-width encoding, got %d bits", buf.Len())
	}
	got, err := c.Decode(emptyCtx, f, bitbuf.FromBits(nil), true)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.(string) != "v1" {
		t.Fatalf("got %q, want %q", got, "v1")
	}
}

func TestHashMasksToDeclaredWidth(t *testing.T) {
	f := &schema.Field{Name: "h", Kind: schema.KindUint64, Label: schema.LabelRequired,
		Options: schema.FieldOptions{MaxLength: 8}}
	c := NewHash("t")
	buf, err := c.Encode(emptyCtx, f, uint64(0xFFFFFFFFFFFFFFFF), true, true)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if buf.Len() != 8 {
		t.Fatalf("got %d bits, want 8", buf.Len())
	}
	got, err := c.Decode(emptyCtx, f, bitbuf.FromBits(buf.Bits()), true)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.(uint64) != 0xFF {
		t.Fatalf("got %x, want 0xff", got)
	}
}

func TestTimeRoundTripSameDay(t *testing.T) {
	fixed := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	old := Clock
	Clock = func() time.Time { return fixed }
	defer func() { Clock = old }()

	f := &schema.Field{Name: "t", Kind: schema.KindUint32, Label: schema.LabelRequired, IsTime: true}
	c := NewTime("t")
	value := time.Date(2026, 7, 31, 11, 59, 30, 0, time.UTC)
	buf, err := c.Encode(emptyCtx, f, value, true, true)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := c.Decode(emptyCtx, f, bitbuf.FromBits(buf.Bits()), true)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	gotTime := got.(time.Time)
	if gotTime.Hour() != 11 || gotTime.Minute() != 59 || gotTime.Second() != 30 {
		t.Fatalf("got %v, want 11:59:30", gotTime)
	}
}

func TestTimeRollsOverToPreviousDay(t *testing.T) {
	// now is just after midnight; an encoded time-of-day of 23:59:50 should
	// resolve to yesterday, not today.
	fixed := time.Date(2026, 7, 31, 0, 0, 10, 0, time.UTC)
	old := Clock
	Clock = func() time.Time { return fixed }
	defer func() { Clock = old }()

	f := &schema.Field{Name: "t", Kind: schema.KindUint32, Label: schema.LabelRequired, IsTime: true}
	c := NewTime("t")
	value := time.Date(2026, 7, 30, 23, 59, 50, 0, time.UTC)
	buf, err := c.Encode(emptyCtx, f, value, true, true)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := c.Decode(emptyCtx, f, bitbuf.FromBits(buf.Bits()), true)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	gotTime := got.(time.Time)
	if gotTime.Day() != 30 {
		t.Fatalf("got day %d, want 30 (previous day)", gotTime.Day())
	}
}
