// Package functions is the introspection catalog shared by the host
// and the worker binary. Both endpoints link the same catalog; a call
// carries only a function name resolvable here, never code.
package functions

import (
	"fmt"
	"sort"
	"sync"

	"github.com/calanthe/periscope/wire"
)

// Func is one catalog entry. s is the per-session worker state, or
// nil for a global call issued without a session context. Arguments
// arrive with every handle reference already resolved to the live
// object it names.
type Func func(s *State, args []any, kwargs map[string]any) (any, error)

var (
	catalogMu sync.RWMutex
	catalog   = map[string]Func{}
)

// Register adds a function to the catalog. Registering the same name
// twice is a programming error and panics.
func Register(name string, fn Func) {
	catalogMu.Lock()
	defer catalogMu.Unlock()
	if _, dup := catalog[name]; dup {
		panic(fmt.Sprintf("functions: duplicate registration of %q", name))
	}
	catalog[name] = fn
}

// Lookup resolves a catalog name.
func Lookup(name string) (Func, error) {
	catalogMu.RLock()
	defer catalogMu.RUnlock()
	fn, ok := catalog[name]
	if !ok {
		return nil, wire.Remote(wire.KindUnknownFunction, "no catalog function %q", name)
	}
	return fn, nil
}

// Names returns the sorted catalog names, for diagnostics.
func Names() []string {
	catalogMu.RLock()
	defer catalogMu.RUnlock()
	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var (
	rootsMu sync.RWMutex
	roots   = map[string]any{}
)

// RegisterRoot exposes a live object under a name so sessions can
// obtain a handle to it via get_root. This is the seam the embedding
// binary's introspection set plugs into.
func RegisterRoot(name string, obj any) {
	rootsMu.Lock()
	defer rootsMu.Unlock()
	roots[name] = obj
}

func lookupRoot(name string) (any, error) {
	rootsMu.RLock()
	defer rootsMu.RUnlock()
	obj, ok := roots[name]
	if !ok {
		return nil, wire.Remote(wire.KindUnknownRoot, "no root object %q", name)
	}
	return obj, nil
}

var (
	searchMu   sync.RWMutex
	searchPath []string
)

// SetSearchPath records the process-wide support-library roots. The
// worker binary sets this from its bootstrap arguments before
// entering the dispatch loop.
func SetSearchPath(paths []string) {
	searchMu.Lock()
	defer searchMu.Unlock()
	searchPath = append([]string(nil), paths...)
}

// SearchPath returns the process-wide support-library roots.
func SearchPath() []string {
	searchMu.RLock()
	defer searchMu.RUnlock()
	return append([]string(nil), searchPath...)
}
