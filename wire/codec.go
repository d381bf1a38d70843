package wire

import (
	"errors"
	"io"
	"syscall"

	"github.com/fxamacker/cbor/v2"
)

// Codec serializes requests and responses over one byte-stream pair.
// CBOR items are self-delimiting, so no extra framing is needed. The
// protocol is strictly alternating; the Codec does no locking of its
// own — serialization of callers is the owner's job.
type Codec struct {
	w   io.Writer
	dec *cbor.Decoder
}

// NewCodec wraps a write stream and a read stream.
func NewCodec(w io.Writer, r io.Reader) *Codec {
	return &Codec{w: w, dec: decMode.NewDecoder(r)}
}

// WriteRequest encodes one request onto the write stream. Handle
// values anywhere in Args or Kwargs are lowered to their wire Ref.
func (c *Codec) WriteRequest(req *Request) error {
	out := Request{
		Session: req.Session,
		Func:    req.Func,
		Args:    lower(req.Args).([]any),
		Kwargs:  lower(req.Kwargs).(map[string]any),
	}
	return c.write(&out, "write request")
}

// WriteResponse encodes one response onto the write stream.
func (c *Codec) WriteResponse(resp *Response) error {
	out := Response{Err: resp.Err, Result: lower(resp.Result)}
	return c.write(&out, "write response")
}

func (c *Codec) write(v any, op string) error {
	data, err := encMode.Marshal(v)
	if err != nil {
		return &ProtocolError{Op: op, Err: err}
	}
	if _, err := c.w.Write(data); err != nil {
		return &TransportError{Op: op, Err: err}
	}
	return nil
}

// ReadRequest blocks until one full request is available. Handle
// references are left as bare Refs: the dispatcher resolves them once
// it knows which session the request belongs to.
func (c *Codec) ReadRequest() (*Request, error) {
	var req Request
	if err := c.dec.Decode(&req); err != nil {
		return nil, classifyRead(err, "read request")
	}
	return &req, nil
}

// ReadResponse blocks until one full response is available and
// reconciles every handle reference in the result through fn.
func (c *Codec) ReadResponse(fn ReconcileFunc) (*Response, error) {
	var resp Response
	if err := c.dec.Decode(&resp); err != nil {
		return nil, classifyRead(err, "read response")
	}
	if fn != nil && resp.Result != nil {
		result, err := reconcile(resp.Result, fn)
		if err != nil {
			return nil, err
		}
		resp.Result = result
	}
	return &resp, nil
}

// classifyRead splits stream closure from malformed payloads so the
// caller never mistakes a codec bug for a dead worker or vice versa.
func classifyRead(err error, op string) error {
	if streamClosed(err) {
		return &TransportError{Op: op, Err: err}
	}
	return &ProtocolError{Op: op, Err: err}
}

func streamClosed(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, syscall.EPIPE)
}
