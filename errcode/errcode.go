package errcode

import "errors"

// Code is a stable, caller-facing error identifier.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes (short, stable).
const (
	OK Code = "ok"

	Transport         Code = "transport"          // bus/link failure
	ProtocolViolation Code = "protocol_violation" // e.g. write-enable latch not set
	DeviceFailure     Code = "device_failure"     // program-fail / erase-fail reported by the chip
	Timeout           Code = "timeout"            // ready-wait exceeded its bound
	NotFound          Code = "not_found"
	InvalidArgument   Code = "invalid_argument"
	ResourceExhausted Code = "resource_exhausted"
	Uninitialized     Code = "uninitialized"
	Corrupt           Code = "corrupt"
	Unsupported       Code = "unsupported"

	Error Code = "error" // generic fallback
)

// E keeps a code together with the failing operation and a cause.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	s := string(e.C)
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}
func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// Is lets errors.Is(err, errcode.Timeout) match any E carrying that code.
func (e *E) Is(target error) bool {
	if c, ok := target.(Code); ok {
		return e.C == c
	}
	return false
}

// New returns an E without a cause.
func New(c Code, op, msg string) *E { return &E{C: c, Op: op, Msg: msg} }

// Wrap attaches a code to err. A nil err yields nil.
func Wrap(c Code, op string, err error) error {
	if err == nil {
		return nil
	}
	return &E{C: c, Op: op, Err: err}
}

// Wrapf is Wrap with a context message (serial number, page, block).
func Wrapf(c Code, op, msg string, err error) error {
	if err == nil {
		return nil
	}
	return &E{C: c, Op: op, Msg: msg, Err: err}
}

// Of extracts a Code from an error, defaulting to Error.
// The outermost coded error in the chain wins.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	type coder interface{ Code() Code }
	for e := err; e != nil; e = errors.Unwrap(e) {
		if c, ok := e.(Code); ok {
			return c
		}
		if x, ok := e.(coder); ok {
			return x.Code()
		}
	}
	return Error
}

// Keep returns err unchanged when it already carries a code, otherwise wraps
// it with c.
func Keep(c Code, op string, err error) error {
	if err == nil {
		return nil
	}
	if Of(err) != Error {
		return err
	}
	return Wrap(c, op, err)
}
