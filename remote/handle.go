package remote

import (
	"fmt"

	"github.com/calanthe/periscope/wire"
)

// Handle is an immutable proxy for an object that exists only inside
// a worker process. It carries the object's id and the evaluator
// whose channel every further operation must be routed through. On
// the wire it reduces to its id alone.
type Handle struct {
	id   uint64
	eval *SubprocessEvaluator
}

// ID returns the remote object's id.
func (h *Handle) ID() uint64 { return h.id }

// WireRef lowers the handle to its wire shape.
func (h *Handle) WireRef() wire.Ref { return wire.Ref(h.id) }

func (h *Handle) String() string {
	return fmt.Sprintf("Handle(%d@session %d)", h.id, h.eval.id)
}

// Invoke calls a method on the remote object. Every operation on a
// handle is itself a remote call keyed by (id, method, arguments);
// the result may recursively contain more handles.
func (h *Handle) Invoke(method string, args ...any) (any, error) {
	callArgs := append([]any{h, method}, args...)
	return h.eval.Invoke("get_method_return", callArgs, nil)
}

// Call invokes the remote object itself; it must be a function value
// (see IsCallable).
func (h *Handle) Call(args ...any) (any, error) {
	callArgs := append([]any{h}, args...)
	return h.eval.Invoke("get_call_return", callArgs, nil)
}

// TypeName reports the remote object's concrete type.
func (h *Handle) TypeName() (string, error) {
	return h.stringCall("get_type_name")
}

// Repr returns a printable rendering of the remote object.
func (h *Handle) Repr() (string, error) {
	return h.stringCall("get_repr")
}

// IsCallable reports whether the remote object is a function value.
func (h *Handle) IsCallable() (bool, error) {
	result, err := h.eval.Invoke("is_callable", []any{h}, nil)
	if err != nil {
		return false, err
	}
	b, ok := result.(bool)
	if !ok {
		return false, &wire.ProtocolError{Op: "is_callable", Err: fmt.Errorf("got %T", result)}
	}
	return b, nil
}

// AttributeNames lists the remote object's exported fields and
// methods.
func (h *Handle) AttributeNames() ([]string, error) {
	result, err := h.eval.Invoke("get_attribute_names", []any{h}, nil)
	if err != nil {
		return nil, err
	}
	return toStringSlice(result)
}

// Attribute reads an exported field. Structured values come back as
// further handles.
func (h *Handle) Attribute(name string) (any, error) {
	return h.eval.Invoke("get_attribute", []any{h, name}, nil)
}

func (h *Handle) stringCall(fn string) (string, error) {
	result, err := h.eval.Invoke(fn, []any{h}, nil)
	if err != nil {
		return "", err
	}
	s, ok := result.(string)
	if !ok {
		return "", &wire.ProtocolError{Op: fn, Err: fmt.Errorf("got %T", result)}
	}
	return s, nil
}
