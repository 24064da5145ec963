package codecs

import (
	"fmt"
	"hash"
	"math"
	"time"

	"github.com/dccl-go/dccl/internal/bitbuf"
	"github.com/dccl-go/dccl/internal/fieldcodec"
	"github.com/dccl-go/dccl/internal/schema"
)

// Clock is the wall clock dccl.time2 consults to disambiguate a decoded
// seconds-of-day value into a full timestamp. Tests replace it with a
// fixed instant.
var Clock = time.Now

const secondsPerDay = 86400

// Time is the dccl.time2 codec: only the time-of-day is
// carried on the wire, as a bounded integer of seconds-of-day at the
// field's declared precision (default whole seconds). On decode, the
// date is reconstructed by picking whichever of {yesterday, today,
// tomorrow} at that time-of-day lands closest to Clock(), the "rolling
// window" behavior original_source's time codecs use for compact
// timestamps that are always encoded and decoded close to real time.
// A message more than half a day old is not detected as such: decode
// simply returns the nearest candidate, same as the original.
type Time struct {
	name string
}

func NewTime(name string) fieldcodec.Codec { return &Time{name: name} }

func (c *Time) Name() string { return c.name }

func (c *Time) Validate(f *schema.Field) error {
	width, err := c.bitWidth(f)
	if err != nil {
		return err
	}
	if width > 63 {
		return fmt.Errorf("time field %q requires %d bits, overflows wire type", f.Name, width)
	}
	return nil
}

func (c *Time) valueCount(f *schema.Field) uint64 {
	scale := scaleFor(f.Options.Precision)
	return uint64(math.Round(secondsPerDay*scale)) + 1
}

func (c *Time) bitWidth(f *schema.Field) (int, error) {
	count := c.valueCount(f)
	if f.Label == schema.LabelOptional {
		count++
	}
	return ceilLog2(count), nil
}

func (c *Time) nullCode(width int) uint64 {
	if width == 0 {
		return 0
	}
	return (uint64(1) << uint(width)) - 1
}

func (c *Time) MaxSize(f *schema.Field) (int, error) { return c.bitWidth(f) }
func (c *Time) MinSize(f *schema.Field) (int, error) { return c.bitWidth(f) }

func (c *Time) Size(f *schema.Field, value any, present bool) (int, error) { return c.bitWidth(f) }

func secondsOfDay(t time.Time) float64 {
	t = t.UTC()
	return float64(t.Hour()*3600+t.Minute()*60+t.Second()) + float64(t.Nanosecond())/1e9
}

func (c *Time) Encode(ctx *fieldcodec.Context, f *schema.Field, value any, present bool, strict bool) (*bitbuf.Buffer, error) {
	width, err := c.bitWidth(f)
	if err != nil {
		return nil, err
	}
	if !present {
		if f.Label != schema.LabelOptional {
			return nil, fmt.Errorf("time field %q: empty encoding requested for a required field", f.Name)
		}
		return bitbuf.FromUint64(width, c.nullCode(width)), nil
	}
	t, ok := value.(time.Time)
	if !ok {
		return nil, fmt.Errorf("time field %q: value %T is not a time.Time", f.Name, value)
	}
	scale := scaleFor(f.Options.Precision)
	raw := uint64(math.Round(secondsOfDay(t) * scale))
	if raw >= uint64(c.valueCount(f)) {
		raw = uint64(c.valueCount(f)) - 1
	}
	if f.Label == schema.LabelOptional && raw >= c.nullCode(width) {
		raw--
	}
	return bitbuf.FromUint64(width, raw), nil
}

func (c *Time) Decode(ctx *fieldcodec.Context, f *schema.Field, bits *bitbuf.Buffer, strict bool) (any, error) {
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

	scale := scaleFor(f.Options.Precision)
	secs := float64(raw) / scale

	now := Clock().UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	best := midnight.Add(time.Duration(secs * float64(time.Second)))
	bestDelta := absDuration(best.Sub(now))
	for _, offset := range []int{-1, 1} {
		candidate := midnight.AddDate(0, 0, offset).Add(time.Duration(secs * float64(time.Second)))
		if d := absDuration(candidate.Sub(now)); d < bestDelta {
			best, bestDelta = candidate, d
		}
	}
	return best, nil
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

func (c *Time) Info(f *schema.Field) string {
	width, _ := c.bitWidth(f)
	return fmt.Sprintf("%s: time-of-day precision %d (%d bits)", f.Name, f.Options.Precision, width)
}

func (c *Time) Hash(f *schema.Field, h hash.Hash64) {
	fmt.Fprintf(hashWriter{h}, "%s|%d|%v", c.name, f.Options.Precision, f.Label)
}
