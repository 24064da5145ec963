// Package dccl implements Dynamic Compact Control Language: a
// bit-packed binary codec that derives every field's wire width from
// its declared bounds, producing fixed-maximum-length, byte-aligned
// payloads for bandwidth-constrained links. A caller compiles a schema
// once per Go message type (via struct tags and a DCCLMessage method),
// loads it into an Engine, and then repeatedly Encodes/Decodes values
// of that type.
package dccl

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	uuid "github.com/satori/go.uuid"

	"github.com/dccl-go/dccl/internal/bitbuf"
	"github.com/dccl-go/dccl/internal/dcrypt"
	"github.com/dccl-go/dccl/internal/fieldcodec"
	"github.com/dccl-go/dccl/internal/idcodec"
	"github.com/dccl-go/dccl/internal/msgcodec"
	"github.com/dccl-go/dccl/internal/plugin"
	"github.com/dccl-go/dccl/internal/registry"
	"github.com/dccl-go/dccl/internal/schema"
	"github.com/dccl-go/dccl/internal/typeconv"
)

// Described is implemented by every message type an Engine can load.
// MessageOptions supplies the message-level declarations (id, max_bytes,
// codec_version, ...) struct tags can't express on their own.
type Described = schema.Described

// MessageOptions is the message-level option vocabulary a DCCLMessage
// method returns.
type MessageOptions = schema.MessageOptions

// Engine is a loaded set of message schemas sharing one codec registry,
// one identifier codec, and one optional crypto provider. The zero
// value is not usable; use NewEngine.
type Engine struct {
	mu          sync.RWMutex
	registry    *registry.Registry
	byID        map[int32]*schema.Descriptor
	byType      map[reflect.Type]*schema.Descriptor
	structHash  map[int32]uint64
	idCodecName string
	crypto      *dcrypt.Cipher
	skipEncrypt map[int32]bool
	plugins     *plugin.Manager
	strict      bool
}

// NewEngine returns an Engine with the built-in codec library installed
// and strict bounds-checking enabled.
func NewEngine() *Engine {
	reg := registry.New()
	return &Engine{
		registry:    reg,
		byID:        make(map[int32]*schema.Descriptor),
		byType:      make(map[reflect.Type]*schema.Descriptor),
		structHash:  make(map[int32]uint64),
		idCodecName: registry.NameIdentity,
		plugins:     plugin.NewManager(reg),
		strict:      true,
	}
}

// SetStrict toggles strict mode: true rejects out-of-range/over-length
// values at encode time, false clamps/truncates them and logs a
// debug-level message.
func (e *Engine) SetStrict(strict bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.strict = strict
}

// SetIDCodec selects the identifier codec by its registered name (e.g.
// registry.NameIdentity or registry.NameLegacyID8) for every message
// loaded afterward. Changing to a different codec unloads every message
// loaded so far.
func (e *Engine) SetIDCodec(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.registry.ResolveIdentifier(name); err != nil {
		return newError(KindSchemaError, err, "unknown identifier codec %q", name)
	}
	if name != e.idCodecName {
		e.byID = make(map[int32]*schema.Descriptor)
		e.byType = make(map[reflect.Type]*schema.Descriptor)
		e.structHash = make(map[int32]uint64)
	}
	e.idCodecName = name
	return nil
}

// SetCryptoPassphrase enables body encryption under a key derived from
// passphrase; an empty passphrase disables it. skipIDs exempts those
// message IDs from encryption entirely — their bodies travel in
// plaintext even while the passphrase is set, for messages that must
// stay legible to a plain observer (e.g. a status message relayed
// through infrastructure that doesn't hold the key).
func (e *Engine) SetCryptoPassphrase(passphrase string, skipIDs []int32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if passphrase == "" {
		e.crypto = nil
		e.skipEncrypt = nil
		return
	}
	e.crypto = dcrypt.NewCipher(passphrase)
	skip := make(map[int32]bool, len(skipIDs))
	for _, id := range skipIDs {
		skip[id] = true
	}
	e.skipEncrypt = skip
}

func (e *Engine) idCodec() (idcodec.Codec, error) {
	factory, err := e.registry.ResolveIdentifier(e.idCodecName)
	if err != nil {
		return nil, newError(KindSchemaError, err, "identifier codec %q no longer registered", e.idCodecName)
	}
	return factory(e.idCodecName), nil
}

func messageType(msg Described) reflect.Type {
	t := reflect.TypeOf(msg)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t
}

// Load compiles msg's schema, validates every field codec against its
// declared options, checks that the descriptor's maximum size fits its
// declared max_bytes, and rejects an ID already claimed by another
// loaded type.
func (e *Engine) Load(msg Described) error {
	d, err := schema.Compile(msg)
	if err != nil {
		return newError(KindSchemaError, err, "compiling %T", msg)
	}

	if err := validateFields(e.registry, d, d.Options.CodecVersion); err != nil {
		return newError(KindSchemaError, err, "%s", d.Name)
	}

	idc, err := e.idCodec()
	if err != nil {
		return err
	}
	maxBits, err := sizeBits(e.registry, d, d.Options.CodecVersion, true)
	if err != nil {
		return newError(KindSchemaError, err, "%s", d.Name)
	}
	maxBytes := byteLen(idc.MaxSize()) + byteLen(maxBits)
	if maxBytes > d.Options.MaxBytes {
		return newError(KindCapacityError, nil, "%s: max size %d bytes exceeds declared max_bytes %d", d.Name, maxBytes, d.Options.MaxBytes)
	}

	digest, err := structuralHash(e.registry, d, d.Options.CodecVersion)
	if err != nil {
		return newError(KindSchemaError, err, "%s: hashing schema", d.Name)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if existing, ok := e.byID[d.Options.ID]; ok && existing.Type != d.Type {
		return newError(KindIDCollision, nil, "id %d already claimed by %s", d.Options.ID, existing.Name)
	}
	e.byID[d.Options.ID] = d
	e.byType[d.Type] = d
	e.structHash[d.Options.ID] = digest
	return nil
}

// Unload removes msg's schema from the engine; subsequent Encode/Decode
// calls for it fail.
func (e *Engine) Unload(msg Described) error {
	t := messageType(msg)
	e.mu.Lock()
	defer e.mu.Unlock()
	d, ok := e.byType[t]
	if !ok {
		return newError(KindSchemaError, nil, "%s was never loaded", t)
	}
	delete(e.byType, t)
	delete(e.byID, d.Options.ID)
	delete(e.structHash, d.Options.ID)
	return nil
}

func (e *Engine) descriptorFor(msg Described) (*schema.Descriptor, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	d, ok := e.byType[messageType(msg)]
	if !ok {
		return nil, newError(KindSchemaError, nil, "%T is not loaded", msg)
	}
	return d, nil
}

func byteLen(bits int) int { return (bits + 7) / 8 }

func validateFields(reg *registry.Registry, d *schema.Descriptor, version int) error {
	for i := range d.Fields {
		f := &d.Fields[i]
		if f.Kind == schema.KindMessage {
			if err := validateFields(reg, f.MessageRef, f.MessageRef.Options.CodecVersion); err != nil {
				return fmt.Errorf("%s.%w", f.Name, err)
			}
			continue
		}
		codec, err := reg.Resolve(f, version)
		if err != nil {
			return fmt.Errorf("field %q: %w", f.Name, err)
		}
		if err := codec.Validate(f); err != nil {
			return fmt.Errorf("field %q: %w", f.Name, err)
		}
	}
	return nil
}

// sizeBits computes a descriptor's worst- (useMax=true) or best-
// (useMax=false) case total field width in bits, recursing into nested
// messages and accounting for the default fixed max_repeat slot
// protocol as well as codecs with bespoke repeated sizing.
func sizeBits(reg *registry.Registry, d *schema.Descriptor, version int, useMax bool) (int, error) {
	total := 0
	for i := range d.Fields {
		f := &d.Fields[i]

		if f.Kind == schema.KindMessage {
			nested, err := sizeBits(reg, f.MessageRef, f.MessageRef.Options.CodecVersion, useMax)
			if err != nil {
				return 0, err
			}
			if f.Label == schema.LabelRepeated {
				nested *= f.Options.MaxRepeat
			}
			total += nested
			continue
		}

		codec, err := reg.Resolve(f, version)
		if err != nil {
			return 0, err
		}

		if f.Label == schema.LabelRepeated {
			if rc, ok := codec.(fieldcodec.Repeated); ok {
				n, err := repeatedBound(rc, f, useMax)
				if err != nil {
					return 0, err
				}
				total += n
				continue
			}
			slot := *f
			slot.Label = schema.LabelOptional
			n, err := fieldBound(codec, &slot, useMax)
			if err != nil {
				return 0, err
			}
			total += n * f.Options.MaxRepeat
			continue
		}

		n, err := fieldBound(codec, f, useMax)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

func fieldBound(codec fieldcodec.Codec, f *schema.Field, useMax bool) (int, error) {
	if useMax {
		return codec.MaxSize(f)
	}
	return codec.MinSize(f)
}

func repeatedBound(rc fieldcodec.Repeated, f *schema.Field, useMax bool) (int, error) {
	if useMax {
		return rc.MaxSizeRepeated(f)
	}
	return rc.MinSizeRepeated(f)
}

// Encode serializes msg, which must have been Loaded first.
func (e *Engine) Encode(msg Described) ([]byte, error) {
	d, err := e.descriptorFor(msg)
	if err != nil {
		return nil, err
	}
	e.mu.RLock()
	strict := e.strict
	crypto := e.crypto
	if crypto != nil && e.skipEncrypt[d.Options.ID] {
		crypto = nil
	}
	e.mu.RUnlock()

	idc, err := e.idCodec()
	if err != nil {
		return nil, err
	}
	idBits, err := idc.Encode(d.Options.ID)
	if err != nil {
		return nil, newError(KindSchemaError, err, "encoding id")
	}

	container, err := typeconv.StructValue(msg)
	if err != nil {
		return nil, newError(KindSchemaError, err, "%T", msg)
	}
	if idx, ok := findHashField(d); ok {
		e.mu.RLock()
		digest := e.structHash[d.Options.ID]
		e.mu.RUnlock()
		typeconv.ForDescriptor(d).Access[idx].Set(container, digest)
	}
	ctx := &fieldcodec.Context{Root: msg}
	mc := msgcodec.New(e.registry, d.Options.CodecVersion)

	headFields, err := mc.EncodePhase(ctx, d, container, true, strict)
	if err != nil {
		return nil, classifyFieldErr(err, false)
	}
	bodyFields, err := mc.EncodePhase(ctx, d, container, false, strict)
	if err != nil {
		return nil, classifyFieldErr(err, false)
	}

	head := bitbuf.New()
	head.Append(idBits)
	head.Append(headFields)
	head.PadToByte()
	headBytes, err := head.ToByteString()
	if err != nil {
		return nil, newError(KindSchemaError, err, "packing head")
	}

	body := bitbuf.New()
	body.Append(bodyFields)
	body.PadToByte()
	bodyBytes, err := body.ToByteString()
	if err != nil {
		return nil, newError(KindSchemaError, err, "packing body")
	}

	if crypto != nil {
		bodyBytes, err = crypto.Encrypt(headBytes, bodyBytes)
		if err != nil {
			return nil, newError(KindCryptoUnavailable, err, "encrypting body")
		}
	}

	out := append(headBytes, bodyBytes...)
	if len(out) > d.Options.MaxBytes {
		return nil, newError(KindCapacityError, nil, "%s: encoded %d bytes exceeds max_bytes %d", d.Name, len(out), d.Options.MaxBytes)
	}
	return out, nil
}

// Decode parses data into out, whose concrete type must already be
// Loaded. It returns a *Error of KindUnknownID if data's message ID has
// no loaded descriptor, or KindUninitialized (with MissingPaths set) if
// any required field decoded as absent.
func (e *Engine) Decode(data []byte, out Described) error {
	idc, err := e.idCodec()
	if err != nil {
		return err
	}
	e.mu.RLock()
	strict := e.strict
	e.mu.RUnlock()

	headBuf := bitbuf.FromByteString(data)
	totalBits := headBuf.Len()
	id, err := idc.Decode(headBuf)
	if err != nil {
		return newError(KindUnderflow, err, "decoding id")
	}

	e.mu.RLock()
	d, ok := e.byID[id]
	crypto := e.crypto
	if crypto != nil && e.skipEncrypt[id] {
		crypto = nil
	}
	e.mu.RUnlock()
	if !ok {
		return newError(KindUnknownID, nil, "no loaded message with id %d", id)
	}
	if d.Type != messageType(out) {
		return newError(KindSchemaError, nil, "id %d is %s, not %T", id, d.Name, out)
	}

	container, err := typeconv.StructValue(out)
	if err != nil {
		return newError(KindSchemaError, err, "%T", out)
	}
	ctx := &fieldcodec.Context{Root: out}
	mc := msgcodec.New(e.registry, d.Options.CodecVersion)

	headMissing, err := mc.DecodePhase(ctx, d, headBuf, container, true, strict)
	if err != nil {
		return classifyFieldErr(err, true)
	}

	consumedBits := totalBits - headBuf.Len()
	headBytesLen := byteLen(consumedBits)
	if headBytesLen > len(data) {
		return newError(KindUnderflow, nil, "head overruns message")
	}
	headBytes := data[:headBytesLen]
	bodyRaw := data[headBytesLen:]

	if crypto != nil {
		bodyRaw, err = crypto.Decrypt(headBytes, bodyRaw)
		if err != nil {
			return newError(KindCryptoUnavailable, err, "decrypting body")
		}
	}

	bodyBuf := bitbuf.FromByteString(bodyRaw)
	bodyMissing, err := mc.DecodePhase(ctx, d, bodyBuf, container, false, strict)
	if err != nil {
		return classifyFieldErr(err, true)
	}

	missing := append(headMissing, bodyMissing...)
	if len(missing) > 0 {
		return &Error{Kind: KindUninitialized, Message: fmt.Sprintf("%s", d.Name), MissingPaths: missing}
	}

	if idx, ok := findHashField(d); ok {
		got, _ := typeconv.ForDescriptor(d).Access[idx].Get(container)
		e.mu.RLock()
		want := e.structHash[d.Options.ID]
		e.mu.RUnlock()
		if width := d.Fields[idx].Options.MaxLength; width < 64 {
			want &= (uint64(1) << uint(width)) - 1
		}
		if asUint64(got) != want {
			return newError(KindHashMismatch, nil, "%s: schema hash mismatch", d.Name)
		}
	}
	return nil
}

func asUint64(v any) uint64 {
	switch n := v.(type) {
	case uint64:
		return n
	case uint32:
		return uint64(n)
	default:
		return 0
	}
}

// classifyFieldErr maps a field-codec error bubbling up from EncodePhase
// or DecodePhase to an error Kind. A truncated/corrupt buffer surfaces
// as bitbuf.ErrUnderflow regardless of which phase hit it, and always
// classifies as KindUnderflow; everything else is KindOutOfRange on the
// encode path (a value rejected against its declared bounds) and
// KindUnderflow on the decode path (decoding can't produce an
// out-of-range value, only run out of wire to read).
func classifyFieldErr(err error, decoding bool) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, fieldcodec.ErrNullValue) || errors.Is(err, bitbuf.ErrUnderflow) {
		return newError(KindUnderflow, err, "unexpected null or truncated field")
	}
	if decoding {
		return newError(KindUnderflow, err, "decoding field")
	}
	return newError(KindOutOfRange, err, "encoding field")
}

// Size returns the exact encoded size in bytes of msg, which must have
// been Loaded first.
func (e *Engine) Size(msg Described) (int, error) {
	out, err := e.Encode(msg)
	if err != nil {
		return 0, err
	}
	return len(out), nil
}

// MaxSize returns the largest possible encoded size in bytes for msg's
// type, computed from its schema alone.
func (e *Engine) MaxSize(msg Described) (int, error) {
	d, err := e.descriptorFor(msg)
	if err != nil {
		return 0, err
	}
	idc, err := e.idCodec()
	if err != nil {
		return 0, err
	}
	bits, err := sizeBits(e.registry, d, d.Options.CodecVersion, true)
	if err != nil {
		return 0, newError(KindSchemaError, err, "%s", d.Name)
	}
	return byteLen(idc.MaxSize()) + byteLen(bits), nil
}

// MinSize returns the smallest possible encoded size in bytes for msg's
// type.
func (e *Engine) MinSize(msg Described) (int, error) {
	d, err := e.descriptorFor(msg)
	if err != nil {
		return 0, err
	}
	idc, err := e.idCodec()
	if err != nil {
		return 0, err
	}
	bits, err := sizeBits(e.registry, d, d.Options.CodecVersion, false)
	if err != nil {
		return 0, newError(KindSchemaError, err, "%s", d.Name)
	}
	idBits, err := idc.Encode(d.Options.ID)
	if err != nil {
		return 0, newError(KindSchemaError, err, "encoding id")
	}
	return byteLen(idBits.Len()) + byteLen(bits), nil
}

// ID returns the message ID encoded at the front of data without fully
// decoding it, using the engine's configured identifier codec.
func (e *Engine) ID(data []byte) (int32, error) {
	idc, err := e.idCodec()
	if err != nil {
		return 0, err
	}
	id, err := idc.Decode(bitbuf.FromByteString(data))
	if err != nil {
		return 0, newError(KindUnderflow, err, "decoding id")
	}
	return id, nil
}

// LoadLibrary mounts a dynamic codec-plugin shared object, built with
// `go build -buildmode=plugin`, returning a handle to pass to
// UnloadLibrary. See internal/plugin for the expected DcclLoad/
// DcclUnload symbols.
func (e *Engine) LoadLibrary(path string) (string, error) {
	id, err := e.plugins.Load(path)
	if err != nil {
		return "", newError(KindPluginError, err, "loading %s", path)
	}
	return id.String(), nil
}

// UnloadLibrary tears down a plugin previously mounted with LoadLibrary.
// Plugins must be unmounted in reverse mount order.
func (e *Engine) UnloadLibrary(handle string) error {
	id, err := uuid.FromString(handle)
	if err != nil {
		return newError(KindPluginError, err, "invalid handle %q", handle)
	}
	if err := e.plugins.Unload(id); err != nil {
		return newError(KindPluginError, err, "unloading %s", handle)
	}
	return nil
}

// Info returns a human-readable, colorized summary of every field in
// msg's loaded schema: name, kind, codec, and bit width.
func (e *Engine) Info(msg Described) (string, error) {
	d, err := e.descriptorFor(msg)
	if err != nil {
		return "", err
	}
	return renderInfo(e.registry, d, d.Options.CodecVersion)
}
