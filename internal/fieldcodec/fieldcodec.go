// Package fieldcodec defines the contract every built-in and user-plugged
// field codec implements, modeled on the layered
// FieldCodecSelector / TypedFieldCodec / RepeatedTypedFieldCodec hierarchy
// in original_source/src/field_codec_typed.h, flattened into plain Go
// interfaces.
package fieldcodec

import (
	"errors"
	"hash"

	"github.com/dccl-go/dccl/internal/bitbuf"
	"github.com/dccl-go/dccl/internal/schema"
)

// ErrNullValue is the internal signal that an optional field was absent
// on the wire. Codec.Decode returns it (wrapped or bare) instead of a
// value; the message codec catches it and suppresses field assignment.
var ErrNullValue = errors.New("fieldcodec: null value")

// Context is the explicit "current message" object threaded through every
// codec call, replacing ambient global state. Root is the top-level
// message being encoded/decoded; Stack
// holds every enclosing submessage, outermost first, for codecs (e.g. a
// legacy speed codec) that inspect a sibling field to choose an encoding.
type Context struct {
	Root  any
	Stack []any
}

// Current returns the innermost message currently being processed, or
// Root if there is no enclosing submessage.
func (c *Context) Current() any {
	if len(c.Stack) == 0 {
		return c.Root
	}
	return c.Stack[len(c.Stack)-1]
}

// Push returns a Context with msg pushed onto the submessage stack.
func (c *Context) Push(msg any) *Context {
	stack := make([]any, len(c.Stack)+1)
	copy(stack, c.Stack)
	stack[len(stack)-1] = msg
	return &Context{Root: c.Root, Stack: stack}
}

// Codec is the capability set every field codec exposes: validate,
// encode(empty)/encode(value), decode, size(empty)/size(value),
// min_size, max_size, info, hash.
type Codec interface {
	// Name is the registry name this codec instance was constructed
	// under, used in Info and in Hash's name contribution.
	Name() string

	// Validate runs at load time; it must fail (SchemaError) if a
	// required option is missing, if min > max, or if the field's
	// computed maximum would overflow its wire type.
	Validate(f *schema.Field) error

	// MaxSize and MinSize are bit widths that must bracket Size for
	// every valid value: MinSize <= Size(v) <= MaxSize.
	MaxSize(f *schema.Field) (int, error)
	MinSize(f *schema.Field) (int, error)

	// Size returns the bit width Encode would produce for value. When
	// present is false, it returns the width of the empty encoding.
	Size(f *schema.Field, value any, present bool) (int, error)

	// Encode produces the field's bits. present distinguishes "encode
	// the empty/absent form" from "encode this value"; strict controls
	// out-of-range / over-length behavior (OutOfRange vs. clamp-and-log).
	Encode(ctx *Context, f *schema.Field, value any, present bool, strict bool) (*bitbuf.Buffer, error)

	// Decode consumes this field's bits from bits (which may PullMore
	// from its Source) and returns the decoded value. It returns
	// ErrNullValue if the field was absent on the wire.
	Decode(ctx *Context, f *schema.Field, bits *bitbuf.Buffer, strict bool) (any, error)

	// Info renders a short human-readable description of this field's
	// codec and bounds, used by the engine's pretty-printer.
	Info(f *schema.Field) string

	// Hash writes this codec's name and bounds into h so that identical
	// field declarations across peers produce identical descriptor
	// hashes.
	Hash(f *schema.Field, h hash.Hash64)
}

// Repeated is implemented by codecs with bespoke repeated-field behavior.
// A codec that does not implement Repeated is driven through the
// message codec's default repeated protocol: exactly
// max_repeat slots, empty-encoded where absent.
type Repeated interface {
	Codec
	MaxSizeRepeated(f *schema.Field) (int, error)
	MinSizeRepeated(f *schema.Field) (int, error)
	SizeRepeated(f *schema.Field, values []any) (int, error)
	EncodeRepeated(ctx *Context, f *schema.Field, values []any, strict bool) (*bitbuf.Buffer, error)
	DecodeRepeated(ctx *Context, f *schema.Field, bits *bitbuf.Buffer, strict bool) ([]any, error)
}

// Factory builds a Codec instance for a field, given the resolved
// registry name under which it was looked up.
type Factory func(name string) Codec

// Require is the common "fail Validate with a SchemaError-shaped message"
// helper used across the built-in codecs, mirroring
// original_source's DCCLFieldCodecBase::require().
func Require(cond bool, msg string) error {
	if cond {
		return nil
	}
	return errors.New(msg)
}
