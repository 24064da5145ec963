// Package typeconv is the one place reflection crosses into the codec
// layer: given a compiled schema.Descriptor, it builds a
// per-field accessor table for a concrete Go struct value. All other
// codec code in this module is generic over plain Go values (bool, int64,
// string, []byte, ...) and never touches reflect directly.
//
// Accessor tables are memoized per reflect.Type behind a bounded LRU,
// grounded on kryptco-kr's use of github.com/hashicorp/golang-lru for its
// own per-key cache, so an engine loading many distinct message types over
// a long run doesn't grow its reflection cache without bound.
package typeconv

import (
	"fmt"
	"reflect"

	lru "github.com/hashicorp/golang-lru"

	"github.com/dccl-go/dccl/internal/schema"
)

// cacheSize bounds the number of distinct Go types whose accessor tables
// are retained at once.
const cacheSize = 256

var tableCache *lru.Cache

func init() {
	c, err := lru.New(cacheSize)
	if err != nil {
		panic(fmt.Sprintf("typeconv: failed to build accessor cache: %v", err))
	}
	tableCache = c
}

// Access is the typed getter/setter/append-repeated surface for one field.
type Access struct {
	Field *schema.Field

	// Get returns the field's current value and whether it is present
	// (always true for required fields). Values are returned/accepted as
	// plain Go values (bool, int32, int64, uint32, uint64, float32,
	// float64, string, []byte, time.Time, or a nested struct value).
	Get func(container reflect.Value) (value any, present bool)
	// Set assigns value back into container, boxing through a pointer for
	// optional fields.
	Set func(container reflect.Value, value any)
	// Clear resets the field to its zero/absent state.
	Clear func(container reflect.Value)

	// RepeatedLen/RepeatedGet/RepeatedAppend are populated for repeated
	// fields only.
	RepeatedLen    func(container reflect.Value) int
	RepeatedGet    func(container reflect.Value, i int) any
	RepeatedAppend func(container reflect.Value, value any)
}

// Table holds the field accessors for one descriptor, parallel to
// Descriptor.Fields.
type Table struct {
	Descriptor *schema.Descriptor
	Access     []Access
}

// ForDescriptor returns (building and caching if necessary) the accessor
// table for d.
func ForDescriptor(d *schema.Descriptor) *Table {
	if v, ok := tableCache.Get(d.Type); ok {
		return v.(*Table)
	}
	table := build(d)
	tableCache.Add(d.Type, table)
	return table
}

func build(d *schema.Descriptor) *Table {
	t := &Table{Descriptor: d, Access: make([]Access, len(d.Fields))}
	for i := range d.Fields {
		t.Access[i] = buildAccess(&d.Fields[i])
	}
	return t
}

func buildAccess(f *schema.Field) Access {
	goIdx := f.GoIndex

	switch f.Label {
	case schema.LabelRequired:
		return Access{
			Field: f,
			Get: func(c reflect.Value) (any, bool) {
				return c.Field(goIdx).Interface(), true
			},
			Set: func(c reflect.Value, v any) {
				c.Field(goIdx).Set(reflect.ValueOf(v).Convert(c.Field(goIdx).Type()))
			},
			Clear: func(c reflect.Value) {
				fv := c.Field(goIdx)
				fv.Set(reflect.Zero(fv.Type()))
			},
		}
	case schema.LabelOptional:
		return Access{
			Field: f,
			Get: func(c reflect.Value) (any, bool) {
				fv := c.Field(goIdx)
				if fv.IsNil() {
					return nil, false
				}
				return fv.Elem().Interface(), true
			},
			Set: func(c reflect.Value, v any) {
				fv := c.Field(goIdx)
				elemType := fv.Type().Elem()
				ptr := reflect.New(elemType)
				ptr.Elem().Set(reflect.ValueOf(v).Convert(elemType))
				fv.Set(ptr)
			},
			Clear: func(c reflect.Value) {
				fv := c.Field(goIdx)
				fv.Set(reflect.Zero(fv.Type()))
			},
		}
	case schema.LabelRepeated:
		return Access{
			Field: f,
			RepeatedLen: func(c reflect.Value) int {
				return c.Field(goIdx).Len()
			},
			RepeatedGet: func(c reflect.Value, i int) any {
				return c.Field(goIdx).Index(i).Interface()
			},
			RepeatedAppend: func(c reflect.Value, v any) {
				fv := c.Field(goIdx)
				elemType := fv.Type().Elem()
				fv.Set(reflect.Append(fv, reflect.ValueOf(v).Convert(elemType)))
			},
			Clear: func(c reflect.Value) {
				fv := c.Field(goIdx)
				fv.Set(reflect.MakeSlice(fv.Type(), 0, 0))
			},
		}
	}
	return Access{Field: f}
}

// StructValue returns the addressable struct reflect.Value backing msg,
// which must be a non-nil pointer to a struct.
func StructValue(msg any) (reflect.Value, error) {
	v := reflect.ValueOf(msg)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return reflect.Value{}, fmt.Errorf("typeconv: message must be a non-nil pointer, got %T", msg)
	}
	v = v.Elem()
	if v.Kind() != reflect.Struct {
		return reflect.Value{}, fmt.Errorf("typeconv: message must point to a struct, got %T", msg)
	}
	return v, nil
}
