// Package codecs is the built-in field-codec library: numeric, bool,
// enum, bytes/string (length-prefixed and var-bytes), presence-bit,
// static, hash, and time, spanning the three codec-version families.
// It is grounded throughout on
// original_source/src/dccl_field_codec_default.cpp,
// original_source/src/codecs3/field_codec_var_bytes.cpp, and
// original_source/src/codecs4/field_codec_hash.h.
package codecs

import (
	"errors"
	"fmt"
	"hash"
	"math"
	"math/bits"

	"github.com/dccl-go/dccl/internal/schema"
)

// ErrOutOfRange is returned by Encode in strict mode when a numeric or
// enum value falls outside its declared bounds, or a string/bytes value
// exceeds its declared max_length.
var ErrOutOfRange = errors.New("codecs: value out of range")

// hashWriter adapts a hash.Hash64 to io.Writer for fmt.Fprintf, used by
// every built-in codec's Hash method to contribute to the structural hash.
type hashWriter struct{ h hash.Hash64 }

func (w hashWriter) Write(p []byte) (int, error) { return w.h.Write(p) }

// toFloat64 converts a reflected numeric Go value into the float64 the
// numeric codec's bounds math operates on.
func toFloat64(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint32:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	case int:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("codecs: cannot convert %T to a numeric value", value)
	}
}

// fromFloat64 converts a decoded float64 back into the field kind's
// native Go representation.
func fromFloat64(kind schema.Kind, value float64) any {
	switch kind {
	case schema.KindInt32, schema.KindEnum:
		return int32(math.Round(value))
	case schema.KindInt64:
		return int64(math.Round(value))
	case schema.KindUint32:
		return uint32(math.Round(value))
	case schema.KindUint64:
		return uint64(math.Round(value))
	case schema.KindFloat:
		return float32(value)
	default:
		return value
	}
}

// ceilLog2 returns the number of bits needed to represent count distinct
// values (ceil(log2(count))), 0 for count <= 1.
func ceilLog2(count uint64) int {
	if count <= 1 {
		return 0
	}
	return bits.Len64(count - 1)
}

// scaleFor returns 10^precision, supporting negative precision (pre-round
// to a power of ten).
func scaleFor(precision int) float64 {
	return math.Pow(10, float64(precision))
}

// roundToPrecision pre-rounds value to the field's declared precision
// before range clamping.
func roundToPrecision(value float64, precision int) float64 {
	scale := scaleFor(precision)
	return math.Round(value*scale) / scale
}

// forceRequired returns a shallow copy of f with its label forced to
// LabelRequired, used by decorator codecs (presence-bit) that want an
// inner codec's plain, non-null-extended encoding.
func forceRequired(f *schema.Field) *schema.Field {
	clone := *f
	clone.Label = schema.LabelRequired
	return &clone
}
