// Package worker implements the child-process side of the call
// protocol: a single-threaded read-dispatch-write loop over the
// process's standard streams, with lazily created per-session state.
package worker

import (
	"errors"
	"io"

	"github.com/tliron/commonlog"

	"github.com/calanthe/periscope/functions"
	"github.com/calanthe/periscope/wire"
)

var log = commonlog.GetLogger("periscope.worker")

// ErrParentGone is returned by Listen when the input stream closes.
// It means the parent process went away; the binary should exit with
// a non-zero status, not report an error anywhere.
var ErrParentGone = errors.New("worker: input stream closed by parent")

// Listener is the dispatch loop. It owns one stream pair and all
// session state reachable through it. The protocol is strictly
// alternating: one request, one response, no pipelining, so the loop
// needs no locking of its own.
type Listener struct {
	codec    *wire.Codec
	sessions map[uint64]*functions.State
}

// NewListener wraps the stream pair the parent handed us. r is the
// request stream (stdin in production), w the response stream.
func NewListener(r io.Reader, w io.Writer) *Listener {
	return &Listener{
		codec:    wire.NewCodec(w, r),
		sessions: make(map[uint64]*functions.State),
	}
}

// Listen runs the dispatch loop until the request stream closes.
// Failures inside a dispatched function never end the loop; they are
// transported back as the failing call's response.
func (l *Listener) Listen() error {
	for {
		req, err := l.codec.ReadRequest()
		if err != nil {
			if wire.IsTransport(err) {
				return ErrParentGone
			}
			// Malformed payload: answer with a protocol failure so
			// the caller's pending read is not left hanging, and keep
			// the request/response cadence intact.
			log.Errorf("undecodable request: %v", err)
			resp := &wire.Response{Err: &wire.RemoteError{Kind: wire.KindProtocol, Message: err.Error()}}
			if werr := l.codec.WriteResponse(resp); werr != nil {
				return ErrParentGone
			}
			continue
		}

		resp := l.dispatch(req)
		if err := l.codec.WriteResponse(resp); err != nil {
			if wire.IsTransport(err) {
				return ErrParentGone
			}
			// The result was not encodable. The caller still gets a
			// response, just a failing one.
			log.Errorf("unencodable response: %v", err)
			resp = &wire.Response{Err: &wire.RemoteError{Kind: wire.KindProtocol, Message: err.Error()}}
			if werr := l.codec.WriteResponse(resp); werr != nil {
				return ErrParentGone
			}
		}
	}
}

// dispatch executes one request. Every failure, including panics in
// the target function, becomes a failing response.
func (l *Listener) dispatch(req *wire.Request) (resp *wire.Response) {
	defer func() {
		if r := recover(); r != nil {
			resp = &wire.Response{Err: wire.Remote(wire.KindPanic, "%v", r)}
		}
	}()

	result, err := l.run(req)
	if err != nil {
		return &wire.Response{Err: wire.AsRemote(err)}
	}
	return &wire.Response{Result: result}
}

func (l *Listener) run(req *wire.Request) (any, error) {
	// No session: a process-global query.
	if req.Session == nil {
		fn, err := functions.Lookup(req.Func)
		if err != nil {
			return nil, err
		}
		return fn(nil, req.Args, req.Kwargs)
	}

	// No function: destroy the session's state. The response is a
	// plain success so the caller-side queue flush stays in lockstep.
	if req.Func == "" {
		delete(l.sessions, *req.Session)
		log.Debugf("session %d destroyed", *req.Session)
		return nil, nil
	}

	fn, err := functions.Lookup(req.Func)
	if err != nil {
		return nil, err
	}
	s := l.session(*req.Session)
	args, kwargs, err := s.ResolveRefs(req.Args, req.Kwargs)
	if err != nil {
		return nil, err
	}
	return fn(s, args, kwargs)
}

// session returns the state for an id, creating it on first use.
func (l *Listener) session(id uint64) *functions.State {
	s, ok := l.sessions[id]
	if !ok {
		s = functions.NewState(id)
		l.sessions[id] = s
		log.Debugf("session %d created", id)
	}
	return s
}

// Sessions reports how many sessions currently hold state.
func (l *Listener) Sessions() int {
	return len(l.sessions)
}

// HasSession reports whether the given session currently holds state.
func (l *Listener) HasSession(id uint64) bool {
	_, ok := l.sessions[id]
	return ok
}
