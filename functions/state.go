package functions

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/calanthe/periscope/wire"
)

// State is one session's private object table inside the worker. It
// is created on first reference to the session id and destroyed when
// the deletion message for that id arrives. Ids are never reused for
// the lifetime of the State.
type State struct {
	ID uint64

	mu      sync.Mutex
	objects map[uint64]any
	ids     map[any]uint64
	nextID  uint64
}

// NewState creates an empty session state.
func NewState(id uint64) *State {
	return &State{
		ID:      id,
		objects: make(map[uint64]any),
		ids:     make(map[any]uint64),
	}
}

// Bind registers an object in the session's table and returns the
// wire reference naming it. Binding the same comparable object twice
// yields the same id, mirroring handle identity on the caller side.
func (s *State) Bind(obj any) wire.Ref {
	s.mu.Lock()
	defer s.mu.Unlock()

	if isComparable(obj) {
		if id, ok := s.ids[obj]; ok {
			return wire.Ref(id)
		}
	}
	s.nextID++
	id := s.nextID
	s.objects[id] = obj
	if isComparable(obj) {
		s.ids[obj] = id
	}
	return wire.Ref(id)
}

// Object resolves a handle id to the live object it names. A miss is
// a handle resolution failure, never a fresh object.
func (s *State) Object(id uint64) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[id]
	if !ok {
		return nil, fmt.Errorf("functions: session %d, id %d: %w", s.ID, id, wire.ErrHandleNotFound)
	}
	return obj, nil
}

// Len reports how many objects the session currently pins.
func (s *State) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

// ResolveRefs replaces every wire.Ref in args and kwargs, including
// nested containers, with the object it names in this session.
func (s *State) ResolveRefs(args []any, kwargs map[string]any) ([]any, map[string]any, error) {
	resolve := func(r wire.Ref) (any, error) {
		return s.Object(uint64(r))
	}
	for i, a := range args {
		v, err := resolveValue(a, resolve)
		if err != nil {
			return nil, nil, err
		}
		args[i] = v
	}
	for k, a := range kwargs {
		v, err := resolveValue(a, resolve)
		if err != nil {
			return nil, nil, err
		}
		kwargs[k] = v
	}
	return args, kwargs, nil
}

func resolveValue(v any, fn wire.ReconcileFunc) (any, error) {
	switch x := v.(type) {
	case wire.Ref:
		return fn(x)
	case []any:
		for i, e := range x {
			r, err := resolveValue(e, fn)
			if err != nil {
				return nil, err
			}
			x[i] = r
		}
		return x, nil
	case map[string]any:
		for k, e := range x {
			r, err := resolveValue(e, fn)
			if err != nil {
				return nil, err
			}
			x[k] = r
		}
		return x, nil
	default:
		return v, nil
	}
}

func isComparable(obj any) bool {
	if obj == nil {
		return false
	}
	return reflect.TypeOf(obj).Comparable()
}
