package dccl

import (
	"strings"

	"github.com/fatih/color"

	"github.com/dccl-go/dccl/internal/registry"
	"github.com/dccl-go/dccl/internal/schema"
)

var (
	infoHeader = color.New(color.Bold, color.FgCyan)
	infoField  = color.New(color.FgGreen)
	infoKind   = color.New(color.FgYellow)
	infoWarn   = color.New(color.FgRed)
)

// renderInfo writes a human-readable summary of every field in d: its
// label, kind, resolved codec, and declared bounds, indenting into
// nested messages.
func renderInfo(reg *registry.Registry, d *schema.Descriptor, version int) (string, error) {
	var b strings.Builder
	b.WriteString(infoHeader.Sprintf("%s", d.Name))
	b.WriteString(color.New(color.Faint).Sprintf(" (id=%d, max_bytes=%d, codec_version=%d)\n", d.Options.ID, d.Options.MaxBytes, d.Options.CodecVersion))
	if err := renderFields(&b, reg, d, version, 1); err != nil {
		return "", err
	}
	return b.String(), nil
}

func renderFields(b *strings.Builder, reg *registry.Registry, d *schema.Descriptor, version int, depth int) error {
	indent := strings.Repeat("  ", depth)
	for i := range d.Fields {
		f := &d.Fields[i]

		b.WriteString(indent)
		b.WriteString(infoField.Sprint(f.Name))
		b.WriteString(" ")
		b.WriteString(infoKind.Sprintf("%s/%s", labelName(f.Label), f.Kind))

		if f.Kind == schema.KindMessage {
			b.WriteString("\n")
			if err := renderFields(b, reg, f.MessageRef, f.MessageRef.Options.CodecVersion, depth+1); err != nil {
				return err
			}
			continue
		}

		codec, err := reg.Resolve(f, version)
		if err != nil {
			b.WriteString(" ")
			b.WriteString(infoWarn.Sprintf("<%v>\n", err))
			continue
		}
		b.WriteString("  ")
		b.WriteString(codec.Info(f))
		b.WriteString("\n")
	}
	return nil
}

func labelName(l schema.Label) string {
	switch l {
	case schema.LabelRequired:
		return "required"
	case schema.LabelOptional:
		return "optional"
	case schema.LabelRepeated:
		return "repeated"
	default:
		return "unknown"
	}
}
