// Package er provides a typed error system: every error carries both a
// human message and an ErrorCode identifying its category, so callers can
// switch on kind instead of matching strings.
package er

import (
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
)

// R is the error interface returned throughout the wallet core in place of
// the builtin error. It carries a category (ErrorCode) plus an optional
// capture stack for debugging.
type R interface {
	error
	Message() string
	Code() *ErrorCode
	Stack() []string
	HasStack() bool
}

// ErrorType groups a family of related ErrorCodes, e.g. all errors raised by
// the ledger package.
type ErrorType struct {
	Name  string
	Codes []*ErrorCode
}

// NewErrorType declares a new error family. Use one per package:
//
//	var Err = er.NewErrorType("ledger.Err")
func NewErrorType(ident string) ErrorType {
	return ErrorType{Name: ident}
}

// ErrorCode identifies one specific category of fault within an ErrorType.
type ErrorCode struct {
	Detail  string
	Type    *ErrorType
	wrapped error
}

// Code declares a new ErrorCode within the type.
func (e *ErrorType) Code(info string) *ErrorCode {
	ec := &ErrorCode{Detail: info, Type: e}
	e.Codes = append(e.Codes, ec)
	return ec
}

// CodeWithDetail declares a new ErrorCode with a fixed human-readable detail
// string appended to every instance.
func (e *ErrorType) CodeWithDetail(info, detail string) *ErrorCode {
	ec := &ErrorCode{Detail: info + ": " + detail, Type: e}
	e.Codes = append(e.Codes, ec)
	return ec
}

type wrappedErr struct {
	code     *ErrorCode
	messages []string
	wrapped  R
	bstack   []byte
}

// New constructs an R of this code carrying an additional message and,
// optionally, an underlying R to wrap.
func (c *ErrorCode) New(info string, wrapped R) R {
	var messages []string
	if info == "" {
		messages = []string{c.Detail}
	} else {
		messages = []string{c.Detail, info}
	}
	return wrappedErr{
		code:     c,
		messages: messages,
		wrapped:  wrapped,
		bstack:   debug.Stack(),
	}
}

// Default constructs a bare R of this code with no extra message.
func (c *ErrorCode) Default() R {
	return c.New("", nil)
}

// Is reports whether err was constructed from this exact code.
func (c *ErrorCode) Is(err R) bool {
	if err == nil {
		return c == nil
	}
	if we, ok := err.(wrappedErr); ok {
		return we.code == c
	}
	return false
}

func (we wrappedErr) Code() *ErrorCode { return we.code }
func (we wrappedErr) HasStack() bool   { return we.bstack != nil }

func (we wrappedErr) Stack() []string {
	lines := strings.Split(string(we.bstack), "\n")
	if len(lines) > 5 {
		lines = lines[5:]
	}
	return lines
}

func (we wrappedErr) Message() string {
	msg := strings.Join(we.messages, ": ")
	if we.wrapped != nil {
		return msg + ": " + we.wrapped.Message()
	}
	return msg
}

func (we wrappedErr) Error() string { return we.Message() }

// New builds an untyped R from a plain string, for ad hoc invariant
// failures that don't warrant their own ErrorCode.
func New(s string) R {
	return wrappedErr{
		code:     nil,
		messages: []string{s},
		bstack:   debug.Stack(),
	}
}

// Errorf is New with fmt.Sprintf formatting.
func Errorf(format string, a ...interface{}) R {
	return New(fmt.Sprintf(format, a...))
}

// E wraps a plain error (e.g. from a library call) as an R.
func E(err error) R {
	if err == nil {
		return nil
	}
	return wrappedErr{messages: []string{err.Error()}, bstack: debug.Stack()}
}

var errLoopBreak = errors.New("loop break")

// LoopBreak is a sentinel (non-)error used to stop a ForEach-style
// iteration early without signalling a real failure.
var LoopBreak = E(errLoopBreak)

// IsLoopBreak reports whether err is the LoopBreak sentinel.
func IsLoopBreak(err R) bool {
	we, ok := err.(wrappedErr)
	return ok && len(we.messages) == 1 && we.messages[0] == errLoopBreak.Error()
}
