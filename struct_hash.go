package dccl

import (
	"hash"
	"hash/fnv"

	"github.com/dccl-go/dccl/internal/registry"
	"github.com/dccl-go/dccl/internal/schema"
)

// structuralHash folds every field's codec-contributed name/bounds into
// one FNV-64a digest, skipping the hash field itself so it isn't hashing
// its own output. Two
// descriptors with identical field declarations, loaded under the same
// codec_version, always produce the same digest; any divergence in a
// bound, codec choice, or declaration order changes it.
func structuralHash(reg *registry.Registry, d *schema.Descriptor, version int) (uint64, error) {
	h := fnv.New64a()
	if err := writeStructuralHash(reg, d, version, h); err != nil {
		return 0, err
	}
	return h.Sum64(), nil
}

func writeStructuralHash(reg *registry.Registry, d *schema.Descriptor, version int, h hash.Hash64) error {
	for i := range d.Fields {
		f := &d.Fields[i]
		if f.Options.Codec == registry.NameHash {
			continue
		}
		if f.Kind == schema.KindMessage {
			if err := writeStructuralHash(reg, f.MessageRef, f.MessageRef.Options.CodecVersion, h); err != nil {
				return err
			}
			continue
		}
		codec, err := reg.Resolve(f, version)
		if err != nil {
			return err
		}
		codec.Hash(f, h)
	}
	return nil
}

// findHashField returns the index into d.Fields of the field bound to
// the structural-hash codec, if any.
func findHashField(d *schema.Descriptor) (int, bool) {
	for i := range d.Fields {
		if d.Fields[i].Options.Codec == registry.NameHash {
			return i, true
		}
	}
	return -1, false
}
