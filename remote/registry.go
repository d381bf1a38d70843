package remote

import (
	"sync"
	"sync/atomic"

	"github.com/calanthe/periscope/functions"
)

// Registry owns every worker process the host spawns, keyed by
// executable identity. Create one at host startup and Close it at
// shutdown; it replaces any notion of an ambient process-wide worker
// cache.
type Registry struct {
	rec CallRecorder

	mu      sync.Mutex
	workers map[string]*Worker

	nextSession atomic.Uint64
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRecorder attaches a call recorder to every worker the registry
// creates.
func WithRecorder(rec CallRecorder) RegistryOption {
	return func(r *Registry) { r.rec = rec }
}

// NewRegistry creates an empty worker registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{workers: make(map[string]*Worker)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get returns the worker for an executable identity, creating the
// wrapper if needed. The child process itself is not spawned until
// the first call. Idempotent: one worker per identity, never
// duplicated.
func (r *Registry) Get(command Command) *Worker {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := command.Identity()
	w, ok := r.workers[key]
	if !ok {
		w = newWorker(command, r.rec)
		r.workers[key] = w
	}
	return w
}

// Drop removes a worker from the registry and kills its process.
// The next Get for the same identity creates a fresh worker; this is
// the recovery path after a transport failure.
func (r *Registry) Drop(w *Worker) {
	r.mu.Lock()
	delete(r.workers, w.Identity())
	r.mu.Unlock()
	_ = w.Kill()
}

// NewEvaluator creates a session bound to the worker for the given
// executable identity. Session ids come from an atomic counter and
// are never reused while the registry lives.
func (r *Registry) NewEvaluator(command Command) *SubprocessEvaluator {
	return &SubprocessEvaluator{
		id:      r.nextSession.Add(1),
		worker:  r.Get(command),
		handles: make(map[uint64]*Handle),
	}
}

// NewLocalEvaluator creates a session that dispatches catalog
// functions in-process, with no serialization and no isolation. Used
// when the analysis target runs on the host's own runtime.
func (r *Registry) NewLocalEvaluator() *LocalEvaluator {
	return &LocalEvaluator{state: functions.NewState(r.nextSession.Add(1))}
}

// Close terminates every worker. Call it exactly once, at host
// shutdown.
func (r *Registry) Close() error {
	r.mu.Lock()
	workers := make([]*Worker, 0, len(r.workers))
	for _, w := range r.workers {
		workers = append(workers, w)
	}
	r.workers = make(map[string]*Worker)
	r.mu.Unlock()

	var first error
	for _, w := range workers {
		if err := w.Terminate(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
