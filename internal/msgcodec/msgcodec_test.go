package msgcodec

import (
	"reflect"
	"testing"

	"github.com/dccl-go/dccl/internal/bitbuf"
	"github.com/dccl-go/dccl/internal/fieldcodec"
	"github.com/dccl-go/dccl/internal/registry"
	"github.com/dccl-go/dccl/internal/schema"
)

type reading struct {
	X       float64  `dccl:"index=1,min=-100,max=100,precision=2"`
	Battery bool     `dccl:"index=2"`
	Note    *string  `dccl:"index=3,max_length=8,codec=dccl.var_bytes"`
	Tags    []string `dccl:"index=4,max_length=4,max_repeat=3"`
}

func (reading) DCCLMessage() schema.MessageOptions {
	return schema.MessageOptions{ID: 10, MaxBytes: 32, CodecVersion: 4}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	d, err := schema.Compile(&reading{})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	reg := registry.New()
	mc := New(reg, d.Options.CodecVersion)

	note := "hi"
	in := &reading{X: 12.5, Battery: true, Note: &note, Tags: []string{"a", "bb"}}
	container := reflect.ValueOf(in).Elem()
	ctx := &fieldcodec.Context{Root: in}

	body, err := mc.EncodePhase(ctx, d, container, false, true)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	out := &reading{}
	outContainer := reflect.ValueOf(out).Elem()
	outCtx := &fieldcodec.Context{Root: out}
	missing, err := mc.DecodePhase(outCtx, d, bitbuf.FromBits(body.Bits()), outContainer, false, true)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(missing) != 0 {
		t.Fatalf("unexpected missing fields: %v", missing)
	}
	if out.X < 12.49 || out.X > 12.51 {
		t.Fatalf("got X=%v, want ~12.5", out.X)
	}
	if !out.Battery {
		t.Fatal("got Battery=false, want true")
	}
	if out.Note == nil || *out.Note != "hi" {
		t.Fatalf("got Note=%v, want \"hi\"", out.Note)
	}
	if len(out.Tags) != 2 || out.Tags[0] != "a" || out.Tags[1] != "bb" {
		t.Fatalf("got Tags=%v, want [a bb]", out.Tags)
	}
}

type withRequiredPresence struct {
	A int32 `dccl:"index=1,min=0,max=10,codec=dccl.presence"`
}

func (withRequiredPresence) DCCLMessage() schema.MessageOptions {
	return schema.MessageOptions{ID: 11, MaxBytes: 4, CodecVersion: 2}
}

// A required field is always present in the Go source struct (it isn't
// a pointer), so "missing required field" can only be observed when a
// peer's wire bytes disagree with the schema — here, a presence-bit
// codec explicitly bound to a required field decodes a cleared presence
// bit, exactly the cross-peer schema drift scenario the dotted-path
// report exists for.
func TestDecodeReportsMissingRequiredField(t *testing.T) {
	d, err := schema.Compile(&withRequiredPresence{})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	reg := registry.New()
	mc := New(reg, d.Options.CodecVersion)

	out := &withRequiredPresence{}
	outContainer := reflect.ValueOf(out).Elem()
	outCtx := &fieldcodec.Context{Root: out}

	absentBit := bitbuf.FromUint64(1, 0) // presence bit cleared
	missing, err := mc.DecodePhase(outCtx, d, absentBit, outContainer, false, true)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(missing) != 1 || missing[0] != "A" {
		t.Fatalf("got missing=%v, want [A]", missing)
	}
}
