package registry

import (
	"errors"
	"fmt"
)

// Engine executes triggers against registry state.
// It holds no state of its own and is safe for concurrent use; callers
// serialize execution against one store.
type Engine struct {
	params Params
}

// New creates an engine with the given parameters.
func New(params Params) *Engine {
	return &Engine{params: params}
}

// Params returns the engine parameters.
func (e *Engine) Params() Params {
	return e.params
}

// Result is a trigger response together with the state changes to commit.
// Changes is empty for a bounced trigger.
type Result struct {
	Response *Response
	Request  Request // Request is nil when the payload did not parse
	Err      error   // Err is the rejection of a bounced trigger
	Changes  []Change
}

// Execute runs t at time now over the state in r. A rejected trigger
// yields a bounced response and no changes; an error is returned only
// when the state could not be read.
func (e *Engine) Execute(r Reader, t Trigger, now uint64) (*Result, error) {
	v := newView(r)
	out := newOutcome()

	req, err := ParseRequest(t, e.params)
	if err == nil {
		err = e.apply(v, t, req, now, out)
	}

	if v.err != nil {
		return nil, fmt.Errorf("read state:\n%w", v.err)
	}

	if err != nil {
		var rerr *Error
		if !errors.As(err, &rerr) {
			return nil, err
		}
		return &Result{Response: e.bounce(t, rerr), Request: req, Err: rerr}, nil
	}

	resp := out.response(t.Unit, v)
	if v.err != nil {
		return nil, fmt.Errorf("read state:\n%w", v.err)
	}

	return &Result{Response: resp, Request: req, Changes: v.changes()}, nil
}

func (e *Engine) apply(v *view, t Trigger, req Request, now uint64, out *outcome) error {
	switch r := req.(type) {
	case SupportRequest:
		return e.recordSupport(v, t.Sender, r, now, out)
	case MetadataRequest:
		if err := e.setMetadata(v, t.Sender, r, out); err != nil {
			return err
		}
	case WithdrawRequest:
		if err := e.withdraw(v, t.Sender, r, now, out); err != nil {
			return err
		}
	case MoveRequest:
		if err := e.move(v, t.Sender, r, now, out); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown request %T", req)
	}

	// attachments of service triggers are retained
	if t.Amount > 0 {
		if _, err := credit(v, feesVar, t.Amount); err != nil {
			return err
		}
	}

	return nil
}

// Reject bounces t as malformed without executing it. Hosts use it for
// triggers whose payload could not be decoded.
func (e *Engine) Reject(t Trigger, reason string) *Response {
	return e.bounce(t, malformed("%s", reason))
}

func (e *Engine) bounce(t Trigger, err *Error) *Response {
	return &Response{
		Unit:    t.Unit,
		Bounced: true,
		Error:   err.Msg,
		Refund:  e.params.Refund(t.Amount),
	}
}
