package registry

import (
	"github.com/dccl-go/dccl/internal/codecs"
	"github.com/dccl-go/dccl/internal/fieldcodec"
	"github.com/dccl-go/dccl/internal/idcodec"
	"github.com/dccl-go/dccl/internal/schema"
)

var numericKinds = []schema.Kind{
	schema.KindInt32, schema.KindInt64,
	schema.KindUint32, schema.KindUint64,
	schema.KindDouble, schema.KindFloat,
}

var everyKind = append(append([]schema.Kind{}, numericKinds...),
	schema.KindBool, schema.KindString, schema.KindBytes, schema.KindEnum)

// installBuiltins registers the built-in codec library (internal/codecs)
// across the three default-codec names, so a field's per-version default
// (chosen by defaultNameFor) always resolves, and so a field that
// explicitly names dccl.default2/3/4 or dccl.var_bytes gets it too
// regardless of the engine's configured codec_version.
func installBuiltins(r *Registry) {
	defaultNames := []string{NameDefault2, NameDefault3, NameDefault4}

	for _, name := range defaultNames {
		name := name
		for _, kind := range numericKinds {
			must(r.Register(name, kind, func(n string) fieldcodec.Codec { return codecs.NewNumeric(n) }, ""))
		}
		must(r.Register(name, schema.KindBool, func(n string) fieldcodec.Codec { return codecs.NewBool(n) }, ""))
		must(r.Register(name, schema.KindEnum, func(n string) fieldcodec.Codec { return codecs.NewEnum(n) }, ""))
		must(r.Register(name, schema.KindString, func(n string) fieldcodec.Codec { return codecs.NewLengthPrefixed(n) }, ""))
		must(r.Register(name, schema.KindBytes, func(n string) fieldcodec.Codec { return codecs.NewLengthPrefixed(n) }, ""))
	}

	must(r.Register(NameVarBytes, schema.KindString, func(n string) fieldcodec.Codec { return codecs.NewVarBytes(n) }, ""))
	must(r.Register(NameVarBytes, schema.KindBytes, func(n string) fieldcodec.Codec { return codecs.NewVarBytes(n) }, ""))

	must(r.Register(NameTime2, schema.KindUint32, func(n string) fieldcodec.Codec { return codecs.NewTime(n) }, ""))

	must(r.Register(NameHash, schema.KindUint64, func(n string) fieldcodec.Codec { return codecs.NewHash(n) }, ""))
	must(r.Register(NameHash, schema.KindUint32, func(n string) fieldcodec.Codec { return codecs.NewHash(n) }, ""))

	for _, kind := range everyKind {
		must(r.Register(NameStatic2, kind, func(n string) fieldcodec.Codec { return codecs.NewStatic(n) }, ""))
	}

	installPresence(r)

	r.RegisterIdentifier(NameIdentity, func(n string) idcodec.Codec { return idcodec.NewDefault(n) })
	r.RegisterIdentifier(NameLegacyID8, func(n string) idcodec.Codec { return idcodec.NewLegacy8(n) })
}

// installPresence registers the presence-bit decorator over the plain
// default codec for each kind; the wrapped inner codec is
// always forced required, so which version-family default it would
// otherwise have picked makes no difference.
func installPresence(r *Registry) {
	for _, kind := range numericKinds {
		kind := kind
		must(r.Register(NamePresence, kind, func(n string) fieldcodec.Codec {
			return codecs.NewPresence(n, codecs.NewNumeric(NameDefault2))
		}, ""))
	}
	must(r.Register(NamePresence, schema.KindBool, func(n string) fieldcodec.Codec {
		return codecs.NewPresence(n, codecs.NewBool(NameDefault2))
	}, ""))
	must(r.Register(NamePresence, schema.KindEnum, func(n string) fieldcodec.Codec {
		return codecs.NewPresence(n, codecs.NewEnum(NameDefault2))
	}, ""))
	must(r.Register(NamePresence, schema.KindString, func(n string) fieldcodec.Codec {
		return codecs.NewPresence(n, codecs.NewLengthPrefixed(NameDefault2))
	}, ""))
	must(r.Register(NamePresence, schema.KindBytes, func(n string) fieldcodec.Codec {
		return codecs.NewPresence(n, codecs.NewLengthPrefixed(NameDefault2))
	}, ""))
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}
