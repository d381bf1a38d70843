// Package wire implements the request/response protocol between the
// host and a worker process. Messages are CBOR; remote-object handles
// cross the wire as a tagged id and nothing else, and are reconciled
// against the receiving endpoint's own registry on decode.
package wire

import (
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// refTagNum is the application-specific CBOR tag wrapping a handle id.
const refTagNum = 40500

// Ref is the wire shape of a remote-object handle: the numeric id of
// the real object, nothing more. The receiving side re-attaches the
// channel binding during decode.
type Ref uint64

// RefMarshaler is implemented by endpoint-local handle types so the
// encoder can lower them to a bare Ref before serialization.
type RefMarshaler interface {
	WireRef() Ref
}

// ReconcileFunc maps a decoded Ref to the endpoint's canonical value
// for that id. Returning the same instance for the same id is what
// keeps handle identity stable across repeated round trips.
type ReconcileFunc func(Ref) (any, error)

// Request is one call sent to a worker.
//
// A nil Session means "call globally, no session context". An empty
// Func with a non-nil Session means "destroy that session's state".
type Request struct {
	Session *uint64        `cbor:"session"`
	Func    string         `cbor:"func"`
	Args    []any          `cbor:"args"`
	Kwargs  map[string]any `cbor:"kwargs"`
}

// Response is the worker's answer to exactly one Request. Err and
// Result are mutually exclusive.
type Response struct {
	Err    *RemoteError `cbor:"err"`
	Result any          `cbor:"result"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	tags := cbor.NewTagSet()
	err := tags.Add(
		cbor.TagOptions{EncTag: cbor.EncTagRequired, DecTag: cbor.DecTagRequired},
		reflect.TypeOf(Ref(0)), refTagNum)
	if err != nil {
		panic(fmt.Sprintf("wire: failed to register handle tag: %v", err))
	}
	encMode, err = cbor.CanonicalEncOptions().EncModeWithTags(tags)
	if err != nil {
		panic(fmt.Sprintf("wire: failed to create CBOR enc mode: %v", err))
	}
	decMode, err = cbor.DecOptions{
		IntDec:         cbor.IntDecConvertSigned,
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecModeWithTags(tags)
	if err != nil {
		panic(fmt.Sprintf("wire: failed to create CBOR dec mode: %v", err))
	}
}

// lower walks a value about to be encoded and reduces every
// endpoint-local handle to its wire Ref. Containers are rebuilt so the
// caller's slices and maps are never mutated.
func lower(v any) any {
	switch x := v.(type) {
	case RefMarshaler:
		return x.WireRef()
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = lower(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = lower(e)
		}
		return out
	default:
		return v
	}
}

// reconcile walks a decoded value and replaces every Ref through fn.
// Decoded containers are rebuilt in place.
func reconcile(v any, fn ReconcileFunc) (any, error) {
	switch x := v.(type) {
	case Ref:
		return fn(x)
	case []any:
		for i, e := range x {
			r, err := reconcile(e, fn)
			if err != nil {
				return nil, err
			}
			x[i] = r
		}
		return x, nil
	case map[string]any:
		for k, e := range x {
			r, err := reconcile(e, fn)
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
