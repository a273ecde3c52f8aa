package spinand

import (
	"batlog-go/errcode"
	"batlog-go/x/conv"
)

// Sentinel errors. They carry an errcode so callers can either compare
// them directly or classify with errcode.Of.
var (
	ErrUninitialized = errcode.New(errcode.Uninitialized, "spinand", "device not initialised")
	ErrNoDevice      = errcode.New(errcode.Transport, "spinand", "no device responding")
	ErrProtection    = errcode.New(errcode.ProtocolViolation, "spinand", "block protection still set")
	ErrWriteLatch    = errcode.New(errcode.ProtocolViolation, "spinand", "write-enable latch not set")
	ErrProgramFailed = errcode.New(errcode.DeviceFailure, "spinand", "program failed")
	ErrEraseFailed   = errcode.New(errcode.DeviceFailure, "spinand", "erase failed")
	ErrTimeout       = errcode.New(errcode.Timeout, "spinand", "device busy")
	ErrBufferSize    = errcode.New(errcode.InvalidArgument, "spinand", "buffer size does not match page")
)

// pageErr attaches the implicated address to a sentinel.
func pageErr(op string, what string, n uint32, sentinel *errcode.E) error {
	return &errcode.E{C: sentinel.C, Op: op, Msg: what + " " + conv.U32(n), Err: sentinel}
}

func transportErr(op string, err error) error {
	return &errcode.E{C: errcode.Transport, Op: op, Err: err}
}
