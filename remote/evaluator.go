package remote

import (
	"sync"

	"github.com/calanthe/periscope/functions"
	"github.com/calanthe/periscope/wire"
)

// Evaluator is one logical analysis context. The local and subprocess
// variants are interchangeable: same catalog, same call shape,
// observably equal results up to handle representation.
type Evaluator interface {
	// Invoke calls a catalog function with positional and keyword
	// arguments. kwargs may be nil.
	Invoke(name string, args []any, kwargs map[string]any) (any, error)
	// Close releases the session. It is guaranteed-once; the owner
	// must call it when the analysis context is discarded.
	Close() error
}

// LocalEvaluator dispatches catalog functions directly against
// in-process state. No serialization, no isolation.
type LocalEvaluator struct {
	state *functions.State
}

// Invoke runs the named catalog function in-process. Results that
// would be handles remotely come back as wire.Ref values resolvable
// through this evaluator.
func (e *LocalEvaluator) Invoke(name string, args []any, kwargs map[string]any) (any, error) {
	fn, err := functions.Lookup(name)
	if err != nil {
		return nil, err
	}
	args, kwargs, err = e.state.ResolveRefs(args, kwargs)
	if err != nil {
		return nil, err
	}
	return fn(e.state, args, kwargs)
}

// Close is a no-op: local state dies with the evaluator and owes no
// remote cleanup.
func (e *LocalEvaluator) Close() error { return nil }

// SessionID returns this evaluator's session id.
func (e *LocalEvaluator) SessionID() uint64 { return e.state.ID }

// SubprocessEvaluator tags every call with its session id and routes
// it through the worker it was bound to at construction. Handles in
// results are reconciled against this evaluator's registry so the
// same remote object always surfaces as the same Handle instance.
type SubprocessEvaluator struct {
	id     uint64
	worker *Worker

	hmu     sync.Mutex
	handles map[uint64]*Handle

	umu  sync.Mutex
	used bool

	closeOnce sync.Once
}

// SessionID returns this evaluator's session id.
func (e *SubprocessEvaluator) SessionID() uint64 { return e.id }

// Worker returns the worker process this session is bound to.
func (e *SubprocessEvaluator) Worker() *Worker { return e.worker }

// Invoke sends one call through the bound worker and blocks for the
// response. A transported failure is returned with its original kind
// and message; transport and protocol failures surface as their own
// error types.
func (e *SubprocessEvaluator) Invoke(name string, args []any, kwargs map[string]any) (any, error) {
	e.umu.Lock()
	e.used = true
	e.umu.Unlock()

	return e.worker.call(&e.id, name, args, kwargs, e.reconcile)
}

// reconcile maps a decoded handle reference to this session's
// canonical Handle: the existing instance if the id is known,
// otherwise a fresh Handle bound to this evaluator.
func (e *SubprocessEvaluator) reconcile(ref wire.Ref) (any, error) {
	e.hmu.Lock()
	defer e.hmu.Unlock()

	id := uint64(ref)
	if h, ok := e.handles[id]; ok {
		return h, nil
	}
	h := &Handle{id: id, eval: e}
	e.handles[id] = h
	return h, nil
}

// Close releases the session. If it ever issued a remote call, its
// id is enqueued for deferred deletion on the worker; a session never
// used remotely was never created there and owes nothing.
func (e *SubprocessEvaluator) Close() error {
	e.closeOnce.Do(func() {
		e.umu.Lock()
		used := e.used
		e.umu.Unlock()
		if used {
			e.worker.EnqueueSessionDelete(e.id)
		}
	})
	return nil
}
