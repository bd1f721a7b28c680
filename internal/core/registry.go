package core

import (
	"fmt"
	"sort"
	"sync"
)

var (
	registry   = make(map[string]EntityDefinition)
	registryMu sync.RWMutex
)

// Register adds an entity definition to the registry.
// Panics on a duplicate type or a key field missing from Fields.
func Register(def EntityDefinition) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[def.Tipo]; exists {
		panic(fmt.Sprintf("entity already registered: %s", def.Tipo))
	}
	if _, ok := def.Field(def.KeyField); !ok {
		panic(fmt.Sprintf("entity %s: key field %q not in fields", def.Tipo, def.KeyField))
	}

	registry[def.Tipo] = def
}

// Get returns an entity definition by type.
func Get(tipo string) (EntityDefinition, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	def, ok := registry[tipo]
	return def, ok
}

// MustGet is Get returning ErrUnknownEntity for unregistered types.
func MustGet(tipo string) (EntityDefinition, error) {
	def, ok := Get(tipo)
	if !ok {
		return EntityDefinition{}, fmt.Errorf("%w: %s", ErrUnknownEntity, tipo)
	}
	return def, nil
}

// All returns every registered definition sorted by type.
func All() []EntityDefinition {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]EntityDefinition, 0, len(registry))
	for _, def := range registry {
		result = append(result, def)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Tipo < result[j].Tipo
	})

	return result
}

// Descriptors returns the client-facing catalog of one entity.
func (d EntityDefinition) Descriptors() []FieldDescriptor {
	out := make([]FieldDescriptor, len(d.Fields))
	for i, f := range d.Fields {
		out[i] = FieldDescriptor{ID: f.ID, Label: f.Label, Default: f.Default}
	}
	return out
}

// CurrentCatalog builds the catalog of every registered entity.
func CurrentCatalog() Catalog {
	cat := make(Catalog)
	for _, def := range All() {
		cat[def.Tipo] = def.Descriptors()
	}
	return cat
}

// clearRegistry removes all registered entities. Tests only.
func clearRegistry() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[string]EntityDefinition)
}
