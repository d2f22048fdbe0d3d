package connector

import (
	"fmt"
	"sync"

	"github.com/edgehub-net/edgehub/pkg/util"
)

// Constructor builds a connector instance for an id.
type Constructor func(id string) Connector

// Factory constructs connector instances by type name. The type table
// is owned by the factory: NewFactory and Rebind copy the caller's map, so
// later mutations of the argument do not leak into the registry.
//
// The factory is injected into the controller rather than held as
// process-global state; rebinding a type is observed by every
// subsequent Create through the same factory.
type Factory struct {
	mu       sync.RWMutex
	types    map[string]Constructor
	provider util.LoggerProvider
}

// NewFactory creates a factory over a copy of types. A nil provider
// leaves constructed connectors with their default no-op logger.
func NewFactory(types map[string]Constructor, provider util.LoggerProvider) *Factory {
	f := &Factory{provider: provider}
	f.Rebind(types)
	return f
}

// Rebind replaces the whole type table with a copy of types.
func (f *Factory) Rebind(types map[string]Constructor) {
	copied := make(map[string]Constructor, len(types))
	for name, ctor := range types {
		copied[name] = ctor
	}
	f.mu.Lock()
	f.types = copied
	f.mu.Unlock()
}

// Has reports whether a type name is registered.
func (f *Factory) Has(typeName string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.types[typeName]
	return ok
}

// Create constructs a connector of the named type with the given id
// and attaches a provider logger when a provider is present.
func (f *Factory) Create(typeName, id string) (Connector, error) {
	if typeName == "" {
		return nil, fmt.Errorf("%w: type name is required", util.ErrInvalidType)
	}
	if id == "" {
		return nil, fmt.Errorf("%w: id is required", util.ErrInvalidID)
	}

	f.mu.RLock()
	ctor, ok := f.types[typeName]
	provider := f.provider
	f.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", util.ErrUnknownType, typeName)
	}

	inst := ctor(id)
	if provider != nil {
		inst.SetLogger(provider.GetLogger(id))
	}
	return inst, nil
}
