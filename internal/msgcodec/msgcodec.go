// Package msgcodec implements the DCCL message codec: it walks a
// compiled schema.Descriptor field by field, driving each field's
// fieldcodec.Codec, splitting the wire into a head phase (in_head
// fields) and a body phase (everything else), recursing into nested
// messages, and enforcing that every required field was present on
// decode — reporting every missing one by its dotted path rather than
// failing on the first. Grounded on
// original_source/src/codec.cpp's single recursive field-iteration loop,
// split here into head/body passes and expressed over explicit
// typeconv.Access accessors instead of runtime RTTI.
package msgcodec

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/dccl-go/dccl/internal/bitbuf"
	"github.com/dccl-go/dccl/internal/dlog"
	"github.com/dccl-go/dccl/internal/fieldcodec"
	"github.com/dccl-go/dccl/internal/registry"
	"github.com/dccl-go/dccl/internal/schema"
	"github.com/dccl-go/dccl/internal/typeconv"
)

// Codec drives schema-described encode/decode for one engine's
// registered codec_version.
type Codec struct {
	Registry     *registry.Registry
	CodecVersion int
}

// New builds a message codec bound to reg's codec table at the given
// codec_version family.
func New(reg *registry.Registry, codecVersion int) *Codec {
	return &Codec{Registry: reg, CodecVersion: codecVersion}
}

// Uninitialized is an error naming one or more missing required fields
// by their dotted paths from the message root. DecodePhase does not
// return it; it reports those paths as its first return value.
type Uninitialized struct {
	MissingPaths []string
}

func (e *Uninitialized) Error() string {
	return fmt.Sprintf("msgcodec: missing required field(s): %s", strings.Join(e.MissingPaths, ", "))
}

// slotField returns f adjusted for per-slot encoding within the
// default fixed max_repeat protocol: a repeated field's individual
// slots are encoded exactly like an optional field of the same
// underlying codec, so an unused slot costs only that codec's empty/
// null encoding.
func slotField(f *schema.Field) *schema.Field {
	if f.Label != schema.LabelRepeated {
		return f
	}
	clone := *f
	clone.Label = schema.LabelOptional
	return &clone
}

func resolveCodec(reg *registry.Registry, f *schema.Field, version int) (fieldcodec.Codec, error) {
	codec, err := reg.Resolve(f, version)
	if err != nil {
		return nil, err
	}
	if err := codec.Validate(f); err != nil {
		return nil, fmt.Errorf("field %q: %w", f.Name, err)
	}
	return codec, nil
}

// EncodePhase encodes every field of d whose Options.InHead matches
// wantHead, in declaration order, recursing into nested messages.
func (mc *Codec) EncodePhase(ctx *fieldcodec.Context, d *schema.Descriptor, container reflect.Value, wantHead bool, strict bool) (*bitbuf.Buffer, error) {
	table := typeconv.ForDescriptor(d)
	out := bitbuf.New()
	for i := range d.Fields {
		f := &d.Fields[i]
		if f.Options.InHead != wantHead {
			continue
		}
		encoded, err := mc.encodeField(ctx, f, &table.Access[i], container, strict)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
		out.Append(encoded)
	}
	return out, nil
}

func (mc *Codec) encodeField(ctx *fieldcodec.Context, f *schema.Field, access *typeconv.Access, container reflect.Value, strict bool) (*bitbuf.Buffer, error) {
	if f.Kind == schema.KindMessage {
		return mc.encodeMessageField(ctx, f, access, container, strict)
	}

	codec, err := resolveCodec(mc.Registry, f, mc.CodecVersion)
	if err != nil {
		return nil, err
	}

	if f.Label == schema.LabelRepeated {
		return mc.encodeRepeatedScalar(ctx, f, codec, access, container, strict)
	}

	value, present := access.Get(container)
	return codec.Encode(ctx, f, value, present, strict)
}

func (mc *Codec) encodeRepeatedScalar(ctx *fieldcodec.Context, f *schema.Field, codec fieldcodec.Codec, access *typeconv.Access, container reflect.Value, strict bool) (*bitbuf.Buffer, error) {
	n := access.RepeatedLen(container)
	if rc, ok := codec.(fieldcodec.Repeated); ok {
		values := make([]any, n)
		for i := 0; i < n; i++ {
			values[i] = access.RepeatedGet(container, i)
		}
		return rc.EncodeRepeated(ctx, f, values, strict)
	}

	if n > f.Options.MaxRepeat {
		if strict {
			return nil, fmt.Errorf("repeated field %q has %d values, exceeds max_repeat %d", f.Name, n, f.Options.MaxRepeat)
		}
		dlog.Log.Debugf("repeated field %q: %d values exceeds max_repeat %d, dropping extras", f.Name, n, f.Options.MaxRepeat)
		n = f.Options.MaxRepeat
	}

	slot := slotField(f)
	out := bitbuf.New()
	for i := 0; i < f.Options.MaxRepeat; i++ {
		if i < n {
			v := access.RepeatedGet(container, i)
			encoded, err := codec.Encode(ctx, slot, v, true, strict)
			if err != nil {
				return nil, err
			}
			out.Append(encoded)
			continue
		}
		encoded, err := codec.Encode(ctx, slot, nil, false, strict)
		if err != nil {
			return nil, err
		}
		out.Append(encoded)
	}
	return out, nil
}

func (mc *Codec) encodeMessageField(ctx *fieldcodec.Context, f *schema.Field, access *typeconv.Access, container reflect.Value, strict bool) (*bitbuf.Buffer, error) {
	nested := f.MessageRef
	out := bitbuf.New()

	encodeOne := func(present bool, value any) error {
		var nestedContainer reflect.Value
		if present {
			nestedContainer = reflect.ValueOf(value)
		} else {
			nestedContainer = reflect.New(nested.Type).Elem()
		}
		head, err := mc.EncodePhase(ctx.Push(nestedContainer.Interface()), nested, nestedContainer, true, strict)
		if err != nil {
			return err
		}
		body, err := mc.EncodePhase(ctx.Push(nestedContainer.Interface()), nested, nestedContainer, false, strict)
		if err != nil {
			return err
		}
		out.Append(head)
		out.Append(body)
		return nil
	}

	switch f.Label {
	case schema.LabelRepeated:
		n := access.RepeatedLen(container)
		if n > f.Options.MaxRepeat {
			n = f.Options.MaxRepeat
		}
		for i := 0; i < f.Options.MaxRepeat; i++ {
			if i < n {
				if err := encodeOne(true, access.RepeatedGet(container, i)); err != nil {
					return nil, err
				}
				continue
			}
			if err := encodeOne(false, nil); err != nil {
				return nil, err
			}
		}
	default:
		value, present := access.Get(container)
		if err := encodeOne(present, value); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// DecodePhase decodes every field of d whose Options.InHead matches
// wantHead, in declaration order, into container, recursing into
// nested messages. It returns the dotted paths of any required field
// (at any depth) that decoded as absent; a missing required field is
// not itself an error, so the error is nil in that case.
func (mc *Codec) DecodePhase(ctx *fieldcodec.Context, d *schema.Descriptor, bits *bitbuf.Buffer, container reflect.Value, wantHead bool, strict bool) ([]string, error) {
	table := typeconv.ForDescriptor(d)
	var missing []string
	for i := range d.Fields {
		f := &d.Fields[i]
		if f.Options.InHead != wantHead {
			continue
		}
		paths, err := mc.decodeField(ctx, f, &table.Access[i], bits, container, strict)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
		missing = append(missing, paths...)
	}
	return missing, nil
}

func (mc *Codec) decodeField(ctx *fieldcodec.Context, f *schema.Field, access *typeconv.Access, bits *bitbuf.Buffer, container reflect.Value, strict bool) ([]string, error) {
	if f.Kind == schema.KindMessage {
		return mc.decodeMessageField(ctx, f, access, bits, container, strict)
	}

	codec, err := resolveCodec(mc.Registry, f, mc.CodecVersion)
	if err != nil {
		return nil, err
	}

	if f.Label == schema.LabelRepeated {
		return mc.decodeRepeatedScalar(ctx, f, codec, access, bits, container, strict)
	}

	value, err := codec.Decode(ctx, f, bits, strict)
	if err == fieldcodec.ErrNullValue {
		access.Clear(container)
		if f.Label == schema.LabelRequired {
			return []string{f.Name}, nil
		}
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	access.Set(container, value)
	return nil, nil
}

func (mc *Codec) decodeRepeatedScalar(ctx *fieldcodec.Context, f *schema.Field, codec fieldcodec.Codec, access *typeconv.Access, bits *bitbuf.Buffer, container reflect.Value, strict bool) ([]string, error) {
	access.Clear(container)
	if rc, ok := codec.(fieldcodec.Repeated); ok {
		values, err := rc.DecodeRepeated(ctx, f, bits, strict)
		if err != nil {
			return nil, err
		}
		for _, v := range values {
			access.RepeatedAppend(container, v)
		}
		return nil, nil
	}

	slot := slotField(f)
	for i := 0; i < f.Options.MaxRepeat; i++ {
		v, err := codec.Decode(ctx, slot, bits, strict)
		if err == fieldcodec.ErrNullValue {
			continue
		}
		if err != nil {
			return nil, err
		}
		access.RepeatedAppend(container, v)
	}
	return nil, nil
}

func (mc *Codec) decodeMessageField(ctx *fieldcodec.Context, f *schema.Field, access *typeconv.Access, bits *bitbuf.Buffer, container reflect.Value, strict bool) ([]string, error) {
	nested := f.MessageRef

	decodeOne := func() (reflect.Value, []string, error) {
		nc := reflect.New(nested.Type).Elem()
		var missing []string
		headMissing, err := mc.DecodePhase(ctx.Push(nc.Addr().Interface()), nested, bits, nc, true, strict)
		if err != nil {
			return reflect.Value{}, nil, err
		}
		missing = append(missing, prefixPaths(f.Name, headMissing)...)
		bodyMissing, err := mc.DecodePhase(ctx.Push(nc.Addr().Interface()), nested, bits, nc, false, strict)
		if err != nil {
			return reflect.Value{}, nil, err
		}
		missing = append(missing, prefixPaths(f.Name, bodyMissing)...)
		return nc, missing, nil
	}

	switch f.Label {
	case schema.LabelRepeated:
		access.Clear(container)
		var missing []string
		for i := 0; i < f.Options.MaxRepeat; i++ {
			nc, m, err := decodeOne()
			if err != nil {
				return nil, err
			}
			access.RepeatedAppend(container, nc.Interface())
			missing = append(missing, m...)
		}
		return missing, nil
	default:
		nc, missing, err := decodeOne()
		if err != nil {
			return nil, err
		}
		access.Set(container, nc.Interface())
		return missing, nil
	}
}

func prefixPaths(prefix string, paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = prefix + "." + p
	}
	return out
}
