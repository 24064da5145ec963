package codecs

import (
	"fmt"
	"hash"

	"github.com/dccl-go/dccl/internal/bitbuf"
	"github.com/dccl-go/dccl/internal/fieldcodec"
	"github.com/dccl-go/dccl/internal/schema"
)

// Static is the zero-width static-value codec: the
// field's value is fixed at schema-compile time by static_value and
// never touches the wire. Encode is a no-op; Decode always returns the
// declared constant.
type Static struct {
	name string
}

func NewStatic(name string) fieldcodec.Codec { return &Static{name: name} }

func (c *Static) Name() string { return c.name }

func (c *Static) Validate(f *schema.Field) error {
	return fieldcodec.Require(f.Options.StaticValue != "", "static field missing static_value")
}

func (c *Static) MaxSize(f *schema.Field) (int, error) { return 0, nil }
func (c *Static) MinSize(f *schema.Field) (int, error) { return 0, nil }

func (c *Static) Size(f *schema.Field, value any, present bool) (int, error) { return 0, nil }

func (c *Static) Encode(ctx *fieldcodec.Context, f *schema.Field, value any, present bool, strict bool) (*bitbuf.Buffer, error) {
	return bitbuf.New(), nil
}

func (c *Static) Decode(ctx *fieldcodec.Context, f *schema.Field, bits *bitbuf.Buffer, strict bool) (any, error) {
	return staticValueFor(f), nil
}

func staticValueFor(f *schema.Field) any {
	switch f.Kind {
	case schema.KindString:
		return f.Options.StaticValue
	case schema.KindBytes:
		return []byte(f.Options.StaticValue)
	case schema.KindBool:
		return f.Options.StaticValue == "true"
	default:
		return f.Options.StaticValue
	}
}

func (c *Static) Info(f *schema.Field) string {
	return fmt.Sprintf("%s: static %q (0 bits)", f.Name, f.Options.StaticValue)
}

func (c *Static) Hash(f *schema.Field, h hash.Hash64) {
	fmt.Fprintf(hashWriter{h}, "%s|%s", c.name, f.Options.StaticValue)
}
