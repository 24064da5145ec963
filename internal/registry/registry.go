// Package registry implements the field-codec registry and the three
// frozen codec-version-family tables: a
// (codec_name, schema_field_type_tag) → codec factory table, with
// per-message resolution including a per-field codec override.
//
// The v2/v3/v4 default tables are process-wide and built lazily, exactly
// once, via golang.org/x/sync/singleflight (solidcoredata-dca pulls in
// golang.org/x/sync) — every Engine shares them read-only, since registered
// codec factories live for the engine's whole lifetime.
// Per-engine state (the mutable name→factory table itself, which plugins
// extend) is NOT shared; each Registry value is independent.
package registry

import (
	"fmt"
	"sync"

	"github.com/blang/semver"
	"golang.org/x/sync/singleflight"

	"github.com/dccl-go/dccl/internal/dlog"
	"github.com/dccl-go/dccl/internal/fieldcodec"
	"github.com/dccl-go/dccl/internal/idcodec"
	"github.com/dccl-go/dccl/internal/schema"
)

// Canonical built-in codec names.
const (
	NameDefault2  = "dccl.default2"
	NameDefault3  = "dccl.default3"
	NameDefault4  = "dccl.default4"
	NameTime2     = "dccl.time2"
	NameStatic2   = "dccl.static2"
	NamePresence  = "dccl.presence"
	NameVarBytes  = "dccl.var_bytes"
	NameHash      = "dccl.hash"
	NameMessage   = "dccl.message"
	NameIdentity  = "dccl.id"
	NameLegacyID8 = "dccl.legacy_id8"
)

type key struct {
	name string
	kind schema.Kind
}

// entry is one registered (name, kind) → factory binding, with an
// optional semver compatibility range gating which codec_version families
// a plugin-contributed codec may serve.
type entry struct {
	factory fieldcodec.Factory
	rng     semver.Range // nil means "compatible with every family"
}

// Registry is the per-engine mutable codec table. The zero value is not
// usable; use New.
type Registry struct {
	mu         sync.RWMutex
	entries    map[key]entry
	identifier map[string]idcodec.Factory
}

// New returns a Registry pre-seeded with every built-in codec across all
// three version families.
func New() *Registry {
	r := &Registry{entries: make(map[key]entry), identifier: make(map[string]idcodec.Factory)}
	installBuiltins(r)
	return r
}

// RegisterIdentifier adds or replaces an identifier codec factory under
// name, independent of the field-codec table (identifier codecs operate
// on the bare message ID, not a schema.Field).
func (r *Registry) RegisterIdentifier(name string, factory idcodec.Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.identifier[name] = factory
}

// Register adds or replaces a codec factory under (name, kind). rngExpr,
// if non-empty, is a blang/semver range expression (e.g. ">=3.0.0")
// restricting which codec_version families may resolve to this entry;
// used by plugins that register a single codec name
// intended for a subset of families.
func (r *Registry) Register(name string, kind schema.Kind, factory fieldcodec.Factory, rngExpr string) error {
	var rng semver.Range
	if rngExpr != "" {
		parsed, err := semver.ParseRange(rngExpr)
		if err != nil {
			return fmt.Errorf("registry: invalid version range %q: %w", rngExpr, err)
		}
		rng = parsed
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[key{name, kind}]; exists {
		dlog.Log.Debugf("registry: replacing existing codec %q for kind %v", name, kind)
	}
	r.entries[key{name, kind}] = entry{factory: factory, rng: rng}
	return nil
}

// familyVersion turns an integer codec_version into the semver value the
// family tables and plugin ranges are compared against.
func familyVersion(version int) semver.Version {
	return semver.Version{Major: uint64(version)}
}

// Resolve picks the codec name for field f under the given codec_version
// family (an explicit per-field `codec` option always wins), looks up the
// matching factory, and constructs a Codec instance.
func (r *Registry) Resolve(f *schema.Field, codecVersion int) (fieldcodec.Codec, error) {
	name := f.Options.Codec
	if name == "" {
		name = defaultNameFor(codecVersion, f.Kind)
	}

	r.mu.RLock()
	e, ok := r.entries[key{name, f.Kind}]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("registry: no codec %q registered for kind %v", name, f.Kind)
	}
	if e.rng != nil && !e.rng(familyVersion(codecVersion)) {
		return nil, fmt.Errorf("registry: codec %q is not compatible with codec_version %d", name, codecVersion)
	}
	return e.factory(name), nil
}

// ResolveIdentifier looks up a by-name identifier codec factory. Unlike
// field codecs, identifier codecs are not keyed by schema.Kind — they
// operate on the bare message ID.
func (r *Registry) ResolveIdentifier(name string) (idcodec.Factory, error) {
	r.mu.RLock()
	factory, ok := r.identifier[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("registry: no identifier codec named %q", name)
	}
	return factory, nil
}

var (
	familyGroup      singleflight.Group
	familyDefaultsMu sync.RWMutex
	familyDefaults   map[int]map[schema.Kind]string
)

// defaultNameFor resolves the frozen per-version default codec name for a
// field kind, building the three family tables exactly once process-wide.
func defaultNameFor(version int, kind schema.Kind) string {
	ensureFamilyTables()
	familyDefaultsMu.RLock()
	defer familyDefaultsMu.RUnlock()
	overrides, ok := familyDefaults[version]
	if !ok {
		return defaultCodecNameForVersion(version)
	}
	if name, ok := overrides[kind]; ok {
		return name
	}
	return defaultCodecNameForVersion(version)
}

func defaultCodecNameForVersion(version int) string {
	switch version {
	case 2:
		return NameDefault2
	case 3:
		return NameDefault3
	case 4:
		return NameDefault4
	default:
		return NameDefault2
	}
}

func ensureFamilyTables() {
	familyDefaultsMu.RLock()
	if familyDefaults != nil {
		familyDefaultsMu.RUnlock()
		return
	}
	familyDefaultsMu.RUnlock()

	_, _, _ = familyGroup.Do("build-family-tables", func() (any, error) {
		familyDefaultsMu.Lock()
		defer familyDefaultsMu.Unlock()
		if familyDefaults != nil {
			return nil, nil
		}
		// v2: numeric/bool/enum/string/bytes all share the default2
		// length-prefixed family.
		v2 := map[schema.Kind]string{}
		// v3: string defaults to length-prefixed default3; var_bytes is
		// available as an explicit opt-in only.
		v3 := map[schema.Kind]string{}
		// v4: var_bytes becomes the default for both bytes and string.
		v4 := map[schema.Kind]string{
			schema.KindString: NameVarBytes,
			schema.KindBytes:  NameVarBytes,
		}
		familyDefaults = map[int]map[schema.Kind]string{2: v2, 3: v3, 4: v4}
		return nil, nil
	})
}
