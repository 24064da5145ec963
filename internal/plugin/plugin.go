// Package plugin implements dynamic loading of third-party codec
// libraries, the Go analogue of the original's C-ABI
// dccl3_load/dccl3_unload plugin hook: a shared object built with
// `go build -buildmode=plugin` exposing DcclLoad/DcclUnload functions
// that register and tear down additional field/identifier codecs
// against an engine's registry.
package plugin

import (
	"fmt"
	goplugin "plugin"
	"sync"

	uuid "github.com/satori/go.uuid"

	"github.com/dccl-go/dccl/internal/dlog"
	"github.com/dccl-go/dccl/internal/registry"
)

// Hooks is the symbol pair every plugin shared object must export.
type Hooks struct {
	// Load is called once, immediately after the shared object is
	// opened, with the engine's registry so the plugin can register its
	// codecs.
	Load func(reg *registry.Registry) error
	// Unload is called when the plugin is unmounted, in reverse mount
	// order with every other still-loaded plugin (LIFO).
	Unload func(reg *registry.Registry)
}

const (
	loadSymbol   = "DcclLoad"
	unloadSymbol = "DcclUnload"
)

// handle is one mounted plugin.
type handle struct {
	id     uuid.UUID
	path   string
	unload func(reg *registry.Registry)
}

// Manager tracks every plugin mounted against one engine's registry and
// tears them down in LIFO order on UnloadAll.
type Manager struct {
	mu      sync.Mutex
	reg     *registry.Registry
	mounted []handle
	byID    map[uuid.UUID]int
}

// NewManager returns a Manager that mounts plugins into reg.
func NewManager(reg *registry.Registry) *Manager {
	return &Manager{reg: reg, byID: make(map[uuid.UUID]int)}
}

// Load opens the shared object at path, resolves its DcclLoad/
// DcclUnload symbols, calls DcclLoad against the manager's registry, and
// returns a handle ID used to Unload it later.
func (m *Manager) Load(path string) (uuid.UUID, error) {
	p, err := goplugin.Open(path)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("plugin: opening %s: %w", path, err)
	}

	loadSym, err := p.Lookup(loadSymbol)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("plugin: %s missing %s: %w", path, loadSymbol, err)
	}
	load, ok := loadSym.(func(*registry.Registry) error)
	if !ok {
		return uuid.UUID{}, fmt.Errorf("plugin: %s's %s has the wrong signature", path, loadSymbol)
	}

	unloadSym, err := p.Lookup(unloadSymbol)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("plugin: %s missing %s: %w", path, unloadSymbol, err)
	}
	unload, ok := unloadSym.(func(*registry.Registry))
	if !ok {
		return uuid.UUID{}, fmt.Errorf("plugin: %s's %s has the wrong signature", path, unloadSymbol)
	}

	if err := load(m.reg); err != nil {
		return uuid.UUID{}, fmt.Errorf("plugin: %s: DcclLoad failed: %w", path, err)
	}

	id := uuid.NewV4()
	m.mu.Lock()
	m.byID[id] = len(m.mounted)
	m.mounted = append(m.mounted, handle{id: id, path: path, unload: unload})
	m.mu.Unlock()

	dlog.Log.Infof("plugin: mounted %s as %s", path, id)
	return id, nil
}

// Unload tears down the plugin identified by id. A
// plugin can only be unmounted after every plugin mounted after it has
// already been unmounted (LIFO); Unload returns an error otherwise.
func (m *Manager) Unload(id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx, ok := m.byID[id]
	if !ok {
		return fmt.Errorf("plugin: no mounted plugin with id %s", id)
	}
	if idx != len(m.mounted)-1 {
		return fmt.Errorf("plugin: %s is not the most recently mounted plugin, unload LIFO", id)
	}

	h := m.mounted[idx]
	h.unload(m.reg)
	m.mounted = m.mounted[:idx]
	delete(m.byID, id)
	dlog.Log.Infof("plugin: unmounted %s (%s)", h.path, id)
	return nil
}

// UnloadAll tears down every mounted plugin in LIFO order. The Engine
// does not call it.
func (m *Manager) UnloadAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.mounted) - 1; i >= 0; i-- {
		h := m.mounted[i]
		h.unload(m.reg)
		delete(m.byID, h.id)
	}
	m.mounted = nil
}
