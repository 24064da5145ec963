// Package schema compiles a DCCL message descriptor from a Go struct's
// reflected type and its `dccl:"..."` struct tags, building a minimal IR
// and compiling descriptors at build time rather than depending on an
// external descriptor runtime. The tag-driven compilation style is
// modeled directly on glint's own struct-tag reflection compiler
// (newMapEncoderUsingTagWithSchemaAndOpts and its `glint:"name"` tags).
package schema

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Kind is the wire-level field kind:
// {int32,int64,uint32,uint64,double,float,bool,string,bytes,enum,message}.
type Kind int

const (
	KindInvalid Kind = iota
	KindInt32
	KindInt64
	KindUint32
	KindUint64
	KindDouble
	KindFloat
	KindBool
	KindString
	KindBytes
	KindEnum
	KindMessage
)

func (k Kind) String() string {
	switch k {
	case KindInt32:
		return "int32"
	case KindInt64:
		return "int64"
	case KindUint32:
		return "uint32"
	case KindUint64:
		return "uint64"
	case KindDouble:
		return "double"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindEnum:
		return "enum"
	case KindMessage:
		return "message"
	default:
		return "invalid"
	}
}

// Label is the field cardinality: required, optional, or repeated.
type Label int

const (
	LabelRequired Label = iota
	LabelOptional
	LabelRepeated
)

// EnumValue is one declared (name, number) pair of an enum field.
type EnumValue struct {
	Name   string
	Number int32
}

// FieldOptions is the field-level option vocabulary a `dccl:"..."` tag
// can declare.
type FieldOptions struct {
	Codec       string // per-field codec-name override
	Min         float64
	Max         float64
	HasBounds   bool
	Precision   int
	MaxLength   int
	MaxRepeat   int
	InHead      bool
	PackedEnum  bool // default true; false selects unpacked raw-number encoding
	StaticValue string
	Omit        bool
	Units       string // opaque to the core, passed through to the schema compiler
	EnumValues  []EnumValue
}

// Field is one compiled struct field.
type Field struct {
	Index      int // declaration order, 1-based, matches the struct tag's explicit index when given
	Name       string
	GoIndex    int // index into reflect.Type.Field
	Kind       Kind
	Label      Label
	Options    FieldOptions
	GoType     reflect.Type // the Go field type (possibly ptr/slice wrapped)
	ElemType   reflect.Type // for message/enum kinds, the concrete element type
	IsTime     bool         // field is (*/[])time.Time, forced through the time codec
	MessageRef *Descriptor  // populated for KindMessage fields
}

// MessageOptions is the message-level option vocabulary a DCCLMessage
// method returns.
type MessageOptions struct {
	ID           int32
	MaxBytes     int
	CodecVersion int
	Codec        string
	CodecGroup   string
	UnitSystem   string
}

// Described is implemented by every DCCL message type.
type Described interface {
	DCCLMessage() MessageOptions
}

// Descriptor is a compiled message schema.
type Descriptor struct {
	Name    string
	Type    reflect.Type
	Fields  []Field
	Options MessageOptions
}

// FieldByDottedPath resolves "a.b.c" against this descriptor's nested
// message fields, the same dotted form Decode reports missing required
// fields in.
func (d *Descriptor) FieldByDottedPath(path string) (*Field, bool) {
	parts := strings.SplitN(path, ".", 2)
	for i := range d.Fields {
		f := &d.Fields[i]
		if f.Name != parts[0] {
			continue
		}
		if len(parts) == 1 {
			return f, true
		}
		if f.MessageRef != nil {
			return f.MessageRef.FieldByDottedPath(parts[1])
		}
		return nil, false
	}
	return nil, false
}

var timeType = reflect.TypeOf(time.Time{})

// Compile builds a Descriptor for the concrete type of msg, which must
// implement Described and be a struct or pointer to struct.
func Compile(msg Described) (*Descriptor, error) {
	t := reflect.TypeOf(msg)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("schema: %s is not a struct", t)
	}
	return compileType(t, msg.DCCLMessage())
}

func compileType(t reflect.Type, opts MessageOptions) (*Descriptor, error) {
	d := &Descriptor{Name: t.Name(), Type: t, Options: opts}

	seenIndex := map[int]string{}
	nextAuto := 1
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if sf.PkgPath != "" { // unexported
			continue
		}
		tag, ok := sf.Tag.Lookup("dccl")
		if !ok {
			continue
		}
		opts, err := parseFieldTag(tag)
		if err != nil {
			return nil, fmt.Errorf("schema: field %s: %w", sf.Name, err)
		}
		if opts.Omit {
			continue
		}

		field := Field{Name: sf.Name, GoIndex: i, Options: opts, GoType: sf.Type}

		if idx, ok := explicitIndex(tag); ok {
			field.Index = idx
		} else {
			field.Index = nextAuto
		}
		nextAuto = field.Index + 1
		if prev, dup := seenIndex[field.Index]; dup {
			return nil, fmt.Errorf("schema: field index %d used by both %q and %q", field.Index, prev, sf.Name)
		}
		seenIndex[field.Index] = sf.Name

		goType := sf.Type
		switch goType.Kind() {
		case reflect.Ptr:
			field.Label = LabelOptional
			goType = goType.Elem()
		case reflect.Slice:
			if goType.Elem().Kind() != reflect.Uint8 {
				field.Label = LabelRepeated
				goType = goType.Elem()
			}
		default:
			field.Label = LabelRequired
		}

		if err := classify(&field, goType); err != nil {
			return nil, fmt.Errorf("schema: field %s: %w", sf.Name, err)
		}

		d.Fields = append(d.Fields, field)
	}

	sort.SliceStable(d.Fields, func(i, j int) bool { return d.Fields[i].Index < d.Fields[j].Index })
	return d, nil
}

func classify(field *Field, goType reflect.Type) error {
	switch {
	case goType == timeType:
		field.IsTime = true
		field.Kind = KindUint32
		if field.Options.Codec == "" {
			field.Options.Codec = "dccl.time2"
		}
	case goType.Kind() == reflect.Slice && goType.Elem().Kind() == reflect.Uint8:
		field.Kind = KindBytes
	case goType.Kind() == reflect.String:
		field.Kind = KindString
	case goType.Kind() == reflect.Bool:
		field.Kind = KindBool
	case goType.Kind() == reflect.Int32:
		if len(field.Options.EnumValues) > 0 {
			field.Kind = KindEnum
			field.ElemType = goType
		} else {
			field.Kind = KindInt32
		}
	case goType.Kind() == reflect.Int64:
		field.Kind = KindInt64
	case goType.Kind() == reflect.Uint32:
		field.Kind = KindUint32
	case goType.Kind() == reflect.Uint64:
		field.Kind = KindUint64
	case goType.Kind() == reflect.Float64:
		field.Kind = KindDouble
	case goType.Kind() == reflect.Float32:
		field.Kind = KindFloat
	case goType.Kind() == reflect.Struct:
		field.Kind = KindMessage
		field.ElemType = goType
		msgOpts := MessageOptions{CodecVersion: 0}
		if zero := reflect.New(goType).Interface(); zero != nil {
			if d, ok := zero.(Described); ok {
				msgOpts = d.DCCLMessage()
			}
		}
		nested, err := compileType(goType, msgOpts)
		if err != nil {
			return err
		}
		field.MessageRef = nested
	default:
		return fmt.Errorf("unsupported Go type %s", goType)
	}
	return nil
}

func explicitIndex(tag string) (int, bool) {
	for _, part := range strings.Split(tag, ",") {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) == 2 && strings.TrimSpace(kv[0]) == "index" {
			n, err := strconv.Atoi(strings.TrimSpace(kv[1]))
			if err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

// parseFieldTag parses a `dccl:"key=value,key=value"` struct tag. The enum
// option has the form enum=NAME:NUMBER;NAME:NUMBER in declaration order.
func parseFieldTag(tag string) (FieldOptions, error) {
	var opts FieldOptions
	opts.PackedEnum = true

	for _, part := range strings.Split(tag, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, "=", 2)
		key := strings.TrimSpace(kv[0])
		var val string
		if len(kv) == 2 {
			val = strings.TrimSpace(kv[1])
		}

		switch key {
		case "index":
			// handled by explicitIndex
		case "codec":
			opts.Codec = val
		case "min":
			f, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return opts, fmt.Errorf("min: %w", err)
			}
			opts.Min = f
			opts.HasBounds = true
		case "max":
			f, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return opts, fmt.Errorf("max: %w", err)
			}
			opts.Max = f
			opts.HasBounds = true
		case "precision":
			n, err := strconv.Atoi(val)
			if err != nil {
				return opts, fmt.Errorf("precision: %w", err)
			}
			opts.Precision = n
		case "max_length":
			n, err := strconv.Atoi(val)
			if err != nil {
				return opts, fmt.Errorf("max_length: %w", err)
			}
			opts.MaxLength = n
		case "max_repeat":
			n, err := strconv.Atoi(val)
			if err != nil {
				return opts, fmt.Errorf("max_repeat: %w", err)
			}
			opts.MaxRepeat = n
		case "in_head":
			opts.InHead = true
		case "packed_enum":
			opts.PackedEnum = val != "false"
		case "static_value":
			opts.StaticValue = val
		case "omit":
			opts.Omit = true
		case "units":
			opts.Units = val
		case "enum":
			for _, pair := range strings.Split(val, ";") {
				nv := strings.SplitN(pair, ":", 2)
				if len(nv) != 2 {
					return opts, fmt.Errorf("enum: malformed pair %q", pair)
				}
				num, err := strconv.Atoi(nv[1])
				if err != nil {
					return opts, fmt.Errorf("enum: %w", err)
				}
				opts.EnumValues = append(opts.EnumValues, EnumValue{Name: nv[0], Number: int32(num)})
			}
		default:
			return opts, fmt.Errorf("unknown dccl tag option %q", key)
		}
	}
	return opts, nil
}
