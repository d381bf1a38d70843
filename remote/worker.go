package remote

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/tliron/commonlog"

	"github.com/calanthe/periscope/wire"
)

var log = commonlog.GetLogger("periscope.remote")

// Worker wraps one child process and the stream pair leading to it.
// The child is spawned lazily on first call and lives until
// Terminate/Kill or host exit. All calls are serialized by a mutex:
// the wire protocol has no framing that could keep two interleaved
// requests apart.
type Worker struct {
	command Command
	rec     CallRecorder

	mu      sync.Mutex // serializes spawn + every exchange
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	codec   *wire.Codec
	started bool
	broken  error // first transport failure; poisons the worker

	dmu       sync.Mutex // guards deletions; separate so Close never blocks on a call in flight
	deletions []uint64
}

func newWorker(command Command, rec CallRecorder) *Worker {
	return &Worker{command: command, rec: rec}
}

// Identity returns the executable identity this worker was keyed by.
func (w *Worker) Identity() string { return w.command.Identity() }

// EnqueueSessionDelete schedules a destroy-session message. It is
// flushed before the next real call on this worker rather than sent
// immediately, piggy-backing cleanup onto real traffic. A worker that
// is never called again reclaims the state only when it exits; the
// registry's Close bounds that to host shutdown.
func (w *Worker) EnqueueSessionDelete(id uint64) {
	w.dmu.Lock()
	defer w.dmu.Unlock()
	w.deletions = append(w.deletions, id)
}

// GetSysPath asks the worker for its runtime's module search path.
// This is a process-global query; no session is created on the
// worker.
func (w *Worker) GetSysPath() ([]string, error) {
	result, err := w.call(nil, "get_sys_path", nil, nil, nil)
	if err != nil {
		return nil, err
	}
	return toStringSlice(result)
}

// call performs one blocking exchange. Pending session deletions are
// flushed first, in FIFO order, so the worker's view of which
// sessions exist is consistent before the real request lands.
func (w *Worker) call(session *uint64, fn string, args []any, kwargs map[string]any, reconcile wire.ReconcileFunc) (any, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.broken != nil {
		return nil, &wire.TransportError{Op: "call", Err: w.broken}
	}
	if err := w.startLocked(); err != nil {
		w.broken = err
		return nil, &wire.TransportError{Op: "spawn", Err: err}
	}
	if err := w.flushDeletionsLocked(); err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := w.exchangeLocked(&wire.Request{
		Session: session,
		Func:    fn,
		Args:    args,
		Kwargs:  kwargs,
	}, reconcile)
	if w.rec != nil {
		var callErr error
		if err != nil {
			callErr = err
		} else if resp.Err != nil {
			callErr = resp.Err
		}
		w.rec.RecordCall(w.command.Exec, session, fn, time.Since(start), callErr)
	}
	if err != nil {
		return nil, err
	}
	if resp.Err != nil {
		return nil, resp.Err
	}
	return resp.Result, nil
}

// exchangeLocked writes one request and blocks for its response.
// Transport failures poison the worker: the pipes are in an unknown
// state, so no later call may reuse them.
func (w *Worker) exchangeLocked(req *wire.Request, reconcile wire.ReconcileFunc) (*wire.Response, error) {
	if err := w.codec.WriteRequest(req); err != nil {
		w.poisonLocked(err)
		return nil, err
	}
	resp, err := w.codec.ReadResponse(reconcile)
	if err != nil {
		w.poisonLocked(err)
		return nil, err
	}
	return resp, nil
}

func (w *Worker) poisonLocked(err error) {
	if wire.IsTransport(err) && w.broken == nil {
		w.broken = err
		log.Errorf("worker %s unusable: %v", w.command.Exec, err)
	}
}

// flushDeletionsLocked drains the deletion queue. Each deletion is a
// full request/response exchange; responses are read and discarded to
// keep the strict alternation intact.
func (w *Worker) flushDeletionsLocked() error {
	w.dmu.Lock()
	pending := w.deletions
	w.deletions = nil
	w.dmu.Unlock()

	for _, id := range pending {
		resp, err := w.exchangeLocked(&wire.Request{Session: &id}, nil)
		if err != nil {
			return err
		}
		if resp.Err != nil {
			// The worker refused a deletion; nothing to recover, but
			// it must not be silent.
			log.Warningf("session %d deletion failed: %v", id, resp.Err)
		}
	}
	return nil
}

// startLocked spawns the child on first use: stdin/stdout become the
// wire, stderr is passed through untouched (diagnostic output is not
// this layer's concern).
func (w *Worker) startLocked() error {
	if w.started {
		return nil
	}

	cmd := exec.Command(w.command.Exec, w.command.argv()...)
	cmd.Env = append(os.Environ(), w.command.Env...)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("remote: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("remote: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("remote: start %s: %w", w.command.Exec, err)
	}
	// Reap the child whenever it exits, including the EOF-triggered
	// exit when we close stdin at shutdown.
	go func() { _ = cmd.Wait() }()

	w.cmd = cmd
	w.stdin = stdin
	w.codec = wire.NewCodec(stdin, stdout)
	w.started = true
	log.Infof("spawned worker %s (pid %d)", w.command.Exec, cmd.Process.Pid)
	return nil
}

// Terminate asks the child to exit: stdin closes (which alone makes
// the dispatch loop exit) and SIGTERM follows.
func (w *Worker) Terminate() error {
	return w.stop(syscall.SIGTERM)
}

// Kill forcibly ends the child process.
func (w *Worker) Kill() error {
	return w.stop(syscall.SIGKILL)
}

func (w *Worker) stop(sig syscall.Signal) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.started {
		return nil
	}
	if w.broken == nil {
		w.broken = fmt.Errorf("remote: worker stopped")
	}
	_ = w.stdin.Close()
	if w.cmd.Process != nil {
		if err := w.cmd.Process.Signal(sig); err != nil && !isProcessDone(err) {
			return fmt.Errorf("remote: signal %s: %w", sig, err)
		}
	}
	return nil
}

func isProcessDone(err error) bool {
	return errors.Is(err, os.ErrProcessDone)
}

func toStringSlice(v any) ([]string, error) {
	switch x := v.(type) {
	case []string:
		return x, nil
	case []any:
		out := make([]string, len(x))
		for i, e := range x {
			s, ok := e.(string)
			if !ok {
				return nil, &wire.ProtocolError{Op: "decode string list", Err: fmt.Errorf("element %d is %T", i, e)}
			}
			out[i] = s
		}
		return out, nil
	case nil:
		return nil, nil
	default:
		return nil, &wire.ProtocolError{Op: "decode string list", Err: fmt.Errorf("got %T", v)}
	}
}
