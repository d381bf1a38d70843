package functions

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/calanthe/periscope/wire"
)

// The built-in introspection set. Every function receives arguments
// with handle references already resolved to live objects, and
// returns either plain values or a wire.Ref for anything that must
// stay inside the worker.

func init() {
	Register("get_sys_path", getSysPath)
	Register("get_root", getRoot)
	Register("get_type_name", getTypeName)
	Register("get_repr", getRepr)
	Register("is_callable", isCallable)
	Register("get_attribute_names", getAttributeNames)
	Register("get_attribute", getAttribute)
	Register("get_method_return", getMethodReturn)
	Register("get_call_return", getCallReturn)
}

// getSysPath is a process-global query; it needs no session.
func getSysPath(s *State, args []any, kwargs map[string]any) (any, error) {
	return SearchPath(), nil
}

func getRoot(s *State, args []any, kwargs map[string]any) (any, error) {
	if err := needSession(s); err != nil {
		return nil, err
	}
	name, err := stringArg(args, 0)
	if err != nil {
		return nil, err
	}
	obj, err := lookupRoot(name)
	if err != nil {
		return nil, err
	}
	return s.Bind(obj), nil
}

func getTypeName(s *State, args []any, kwargs map[string]any) (any, error) {
	obj, err := objectArg(args, 0)
	if err != nil {
		return nil, err
	}
	return reflect.TypeOf(obj).String(), nil
}

func getRepr(s *State, args []any, kwargs map[string]any) (any, error) {
	obj, err := objectArg(args, 0)
	if err != nil {
		return nil, err
	}
	return fmt.Sprintf("%v", obj), nil
}

func isCallable(s *State, args []any, kwargs map[string]any) (any, error) {
	obj, err := objectArg(args, 0)
	if err != nil {
		return nil, err
	}
	return reflect.ValueOf(obj).Kind() == reflect.Func, nil
}

// getAttributeNames lists exported fields and methods, sorted.
func getAttributeNames(s *State, args []any, kwargs map[string]any) (any, error) {
	obj, err := objectArg(args, 0)
	if err != nil {
		return nil, err
	}
	v := reflect.ValueOf(obj)
	t := v.Type()

	var names []string
	for i := 0; i < t.NumMethod(); i++ {
		names = append(names, t.Method(i).Name)
	}
	elem := t
	if elem.Kind() == reflect.Pointer {
		elem = elem.Elem()
	}
	if elem.Kind() == reflect.Struct {
		for i := 0; i < elem.NumField(); i++ {
			if f := elem.Field(i); f.IsExported() {
				names = append(names, f.Name)
			}
		}
	}
	sort.Strings(names)
	return names, nil
}

func getAttribute(s *State, args []any, kwargs map[string]any) (any, error) {
	if err := needSession(s); err != nil {
		return nil, err
	}
	obj, err := objectArg(args, 0)
	if err != nil {
		return nil, err
	}
	name, err := stringArg(args, 1)
	if err != nil {
		return nil, err
	}

	v := reflect.Indirect(reflect.ValueOf(obj))
	if v.Kind() != reflect.Struct {
		return nil, wire.Remote(wire.KindNoSuchAttribute, "%T has no fields", obj)
	}
	f := v.FieldByName(name)
	if !f.IsValid() || !f.CanInterface() {
		return nil, wire.Remote(wire.KindNoSuchAttribute, "%T has no attribute %q", obj, name)
	}
	return liftResult(s, f)
}

// getMethodReturn invokes a method on the target object. This is the
// forward-call target for every method-like operation on a handle.
func getMethodReturn(s *State, args []any, kwargs map[string]any) (any, error) {
	if err := needSession(s); err != nil {
		return nil, err
	}
	obj, err := objectArg(args, 0)
	if err != nil {
		return nil, err
	}
	name, err := stringArg(args, 1)
	if err != nil {
		return nil, err
	}

	m := reflect.ValueOf(obj).MethodByName(name)
	if !m.IsValid() {
		return nil, wire.Remote(wire.KindNoSuchAttribute, "%T has no method %q", obj, name)
	}
	return invokeValue(s, name, m, args[2:])
}

// getCallReturn invokes a function-valued object itself. This is the
// forward-call target behind Handle.Call.
func getCallReturn(s *State, args []any, kwargs map[string]any) (any, error) {
	if err := needSession(s); err != nil {
		return nil, err
	}
	obj, err := objectArg(args, 0)
	if err != nil {
		return nil, err
	}
	v := reflect.ValueOf(obj)
	if v.Kind() != reflect.Func {
		return nil, wire.Remote(wire.KindBadArgument, "%T is not callable", obj)
	}
	return invokeValue(s, fmt.Sprintf("%T", obj), v, args[1:])
}

// invokeValue calls a reflected function with decoded wire arguments
// and lifts its results. name is only used in failure messages.
func invokeValue(s *State, name string, m reflect.Value, rest []any) (any, error) {
	mt := m.Type()
	if mt.IsVariadic() {
		if len(rest) < mt.NumIn()-1 {
			return nil, wire.Remote(wire.KindBadArgument,
				"%s wants at least %d arguments, got %d", name, mt.NumIn()-1, len(rest))
		}
	} else if len(rest) != mt.NumIn() {
		return nil, wire.Remote(wire.KindBadArgument,
			"%s wants %d arguments, got %d", name, mt.NumIn(), len(rest))
	}

	in := make([]reflect.Value, len(rest))
	for i, a := range rest {
		var pt reflect.Type
		if mt.IsVariadic() && i >= mt.NumIn()-1 {
			pt = mt.In(mt.NumIn() - 1).Elem()
		} else {
			pt = mt.In(i)
		}
		av, err := convertArg(a, pt)
		if err != nil {
			return nil, wire.Remote(wire.KindBadArgument, "%s argument %d: %v", name, i, err)
		}
		in[i] = av
	}

	out := m.Call(in)

	// A trailing error return is surfaced as the call's failure.
	if n := len(out); n > 0 && mt.Out(n-1) == errType {
		if !out[n-1].IsNil() {
			return nil, out[n-1].Interface().(error)
		}
		out = out[:n-1]
	}
	switch len(out) {
	case 0:
		return nil, nil
	case 1:
		return liftResult(s, out[0])
	default:
		results := make([]any, len(out))
		for i, o := range out {
			r, err := liftResult(s, o)
			if err != nil {
				return nil, err
			}
			results[i] = r
		}
		return results, nil
	}
}

var errType = reflect.TypeOf((*error)(nil)).Elem()

// liftResult turns a reflected value into something the wire can
// carry: scalars and strings go as-is, anything structured stays in
// the worker behind a new (or deduplicated) handle.
func liftResult(s *State, v reflect.Value) (any, error) {
	switch v.Kind() {
	case reflect.Bool:
		return v.Bool(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(v.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return v.Float(), nil
	case reflect.String:
		return v.String(), nil
	case reflect.Slice, reflect.Array:
		if isScalarKind(v.Type().Elem().Kind()) {
			out := make([]any, v.Len())
			for i := 0; i < v.Len(); i++ {
				e, err := liftResult(s, v.Index(i))
				if err != nil {
					return nil, err
				}
				out[i] = e
			}
			return out, nil
		}
	case reflect.Interface, reflect.Pointer:
		if v.IsNil() {
			return nil, nil
		}
	case reflect.Invalid:
		return nil, nil
	}
	return s.Bind(v.Interface()), nil
}

func isNumericKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

func isScalarKind(k reflect.Kind) bool {
	switch k {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// convertArg adapts a decoded wire value (int64, float64, string,
// bool, or a resolved object) to the parameter type of a method.
func convertArg(a any, t reflect.Type) (reflect.Value, error) {
	if a == nil {
		return reflect.Zero(t), nil
	}
	av := reflect.ValueOf(a)
	if av.Type().AssignableTo(t) {
		return av, nil
	}
	if av.Type().ConvertibleTo(t) && isNumericKind(av.Kind()) && isNumericKind(t.Kind()) {
		return av.Convert(t), nil
	}
	return reflect.Value{}, fmt.Errorf("cannot use %T as %s", a, t)
}

func needSession(s *State) error {
	if s == nil {
		return wire.Remote(wire.KindBadArgument, "function requires a session context")
	}
	return nil
}

func objectArg(args []any, i int) (any, error) {
	if i >= len(args) || args[i] == nil {
		return nil, wire.Remote(wire.KindBadArgument, "missing object argument %d", i)
	}
	if r, ok := args[i].(wire.Ref); ok {
		// An unresolved reference here means dispatch skipped the
		// exchange step; surface it as a resolution failure.
		return nil, fmt.Errorf("functions: unresolved ref %d: %w", uint64(r), wire.ErrHandleNotFound)
	}
	return args[i], nil
}

func stringArg(args []any, i int) (string, error) {
	if i >= len(args) {
		return "", wire.Remote(wire.KindBadArgument, "missing string argument %d", i)
	}
	v, ok := args[i].(string)
	if !ok {
		return "", wire.Remote(wire.KindBadArgument, "argument %d: want string, got %T", i, args[i])
	}
	return v, nil
}
