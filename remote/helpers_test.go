package remote

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/calanthe/periscope/functions"
	"github.com/calanthe/periscope/wire"
	"github.com/calanthe/periscope/worker"
)

func init() {
	functions.RegisterRoot("remote_gadget", defaultGadget)
}

// gadget is the remote introspection target for this package's tests.
type gadget struct {
	Label string
	Count int64
}

func (g *gadget) Describe() string    { return "gadget " + g.Label }
func (g *gadget) Scale(f int64) int64 { return g.Count * f }
func (g *gadget) Self() *gadget       { return g }

var defaultGadget = &gadget{Label: "omega", Count: 7}

// newPipeWorker connects a Worker to a real dispatch loop over
// in-memory pipes, standing in for a spawned child process.
func newPipeWorker(t *testing.T, rec CallRecorder) (*Worker, *worker.Listener) {
	t.Helper()

	hostIn, childOut := io.Pipe()
	childIn, hostOut := io.Pipe()

	l := worker.NewListener(childIn, childOut)
	go l.Listen()

	w := newWorker(Command{Exec: "pipe-worker"}, rec)
	w.started = true
	w.stdin = hostOut
	w.codec = wire.NewCodec(hostOut, hostIn)

	t.Cleanup(func() { hostOut.Close() })
	return w, l
}

// callRecord is one request observed by a scripted worker.
type callRecord struct {
	global  bool
	session uint64
	fn      string
}

// scriptedWorker records the exact request sequence a Worker emits
// and answers every request with an empty success.
type scriptedWorker struct {
	mu   sync.Mutex
	seen []callRecord
}

func (s *scriptedWorker) records() []callRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]callRecord(nil), s.seen...)
}

func newScriptedWorker(t *testing.T) (*Worker, *scriptedWorker) {
	t.Helper()

	hostIn, childOut := io.Pipe()
	childIn, hostOut := io.Pipe()

	script := &scriptedWorker{}
	codec := wire.NewCodec(childOut, childIn)
	go func() {
		for {
			req, err := codec.ReadRequest()
			if err != nil {
				return
			}
			rec := callRecord{fn: req.Func}
			if req.Session == nil {
				rec.global = true
			} else {
				rec.session = *req.Session
			}
			script.mu.Lock()
			script.seen = append(script.seen, rec)
			script.mu.Unlock()
			if err := codec.WriteResponse(&wire.Response{}); err != nil {
				return
			}
		}
	}()

	w := newWorker(Command{Exec: "scripted-worker"}, nil)
	w.started = true
	w.stdin = hostOut
	w.codec = wire.NewCodec(hostOut, hostIn)

	t.Cleanup(func() { hostOut.Close() })
	return w, script
}

// newVanishingWorker reads exactly one request and then closes its
// end of the pipes without answering, imitating a child that dies
// mid-call.
func newVanishingWorker(t *testing.T) *Worker {
	t.Helper()

	hostIn, childOut := io.Pipe()
	childIn, hostOut := io.Pipe()

	codec := wire.NewCodec(childOut, childIn)
	go func() {
		_, _ = codec.ReadRequest()
		childOut.Close()
		childIn.Close()
	}()

	w := newWorker(Command{Exec: "vanishing-worker"}, nil)
	w.started = true
	w.stdin = hostOut
	w.codec = wire.NewCodec(hostOut, hostIn)

	t.Cleanup(func() { hostOut.Close() })
	return w
}

// fakeRecorder captures recorder invocations.
type fakeRecorder struct {
	mu      sync.Mutex
	entries []string
}

func (r *fakeRecorder) RecordCall(workerID string, session *uint64, fn string, elapsed time.Duration, callErr error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, fn)
}

func (r *fakeRecorder) recorded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.entries...)
}

// evaluatorFor binds a fresh session to a worker, the way the
// registry does, without requiring a spawned process.
func evaluatorFor(w *Worker, id uint64) *SubprocessEvaluator {
	return &SubprocessEvaluator{id: id, worker: w, handles: make(map[uint64]*Handle)}
}
