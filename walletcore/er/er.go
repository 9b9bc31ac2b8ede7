// Package er implements a typed error system used throughout the wallet
// engine in place of bare error strings. Every package declares an
// ErrorType and a closed set of ErrorCodes; callers match on the code
// rather than on string comparison.
package er

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"runtime/debug"
	"strings"
)

// GenericErrorType is for packages with only one or two error codes which
// don't warrant their own error type.
var GenericErrorType = NewErrorType("er.GenericErrorType")

var ErrUnexpectedEOF = GenericErrorType.CodeWithDefault("ErrUnexpectedEOF", io.ErrUnexpectedEOF)
var EOF = GenericErrorType.CodeWithDefault("EOF", io.EOF)

// ErrorCode identifies a particular kind of fault within an ErrorType.
type ErrorCode struct {
	Detail         string
	Type           *ErrorType
	defaultWrapped error
}

type typedErr struct {
	messages []string
	errType  *ErrorType
	code     *ErrorCode
	err      R
}

// ErrorType groups a family of related ErrorCodes.
type ErrorType struct {
	Name  string
	Codes []*ErrorCode
}

// NewErrorType creates a new error type identified by name, e.g.
// var Err = er.NewErrorType("txmgr.Err")
func NewErrorType(ident string) ErrorType {
	return ErrorType{Name: ident}
}

func (c *ErrorCode) Is(err R) bool {
	if err == nil {
		return c == nil
	}
	if te, ok := err.(typedErr); ok {
		return te.code == c
	}
	return false
}

func (c *ErrorCode) new(info string, wrapped R, bstack []byte) R {
	var messages []string
	if info == "" {
		messages = []string{c.Detail}
	} else {
		messages = []string{c.Detail, info}
	}
	if wrapped == nil {
		if bstack == nil {
			bstack = captureStack()
		}
		wrapped = newErr("", bstack)
	} else if te, ok := wrapped.(typedErr); ok && te.code == c {
		if info != "" {
			te.messages = append(messages, te.messages...)
		}
		return te
	}
	return typedErr{messages: messages, errType: c.Type, code: c, err: wrapped}
}

// New builds an error for this code, optionally wrapping a cause.
func (c *ErrorCode) New(info string, cause R) R {
	if cause == nil {
		return c.new(info, nil, captureStack())
	}
	return c.new(info, cause, nil)
}

// Default returns the code's error with its default wrapped cause, if any.
func (c *ErrorCode) Default() R {
	if c.defaultWrapped != nil {
		return c.new("", wrap(c.defaultWrapped), nil)
	}
	return c.new("", nil, captureStack())
}

func (e *ErrorType) Is(err R) bool {
	if err == nil {
		return false
	}
	te, ok := err.(typedErr)
	return ok && te.errType == e
}

// Decode returns the ErrorCode an error was built from, or nil.
func (e *ErrorType) Decode(err R) *ErrorCode {
	if err == nil {
		return nil
	}
	if te, ok := err.(typedErr); ok {
		return te.code
	}
	return nil
}

func (e *ErrorType) newCode(info, detail string) *ErrorCode {
	header := info
	if detail != "" {
		header = header + ": " + detail
	}
	ec := &ErrorCode{Detail: header, Type: e}
	e.Codes = append(e.Codes, ec)
	return ec
}

func (e *ErrorType) Code(info string) *ErrorCode {
	return e.newCode(info, "")
}

func (e *ErrorType) CodeWithDetail(info, detail string) *ErrorCode {
	return e.newCode(info, detail)
}

func (e *ErrorType) CodeWithDefault(info string, defaultErr error) *ErrorCode {
	ec := e.newCode(info, "")
	ec.defaultWrapped = defaultErr
	return ec
}

func (te typedErr) AddMessage(m string) {
	te.messages = append([]string{m}, te.messages...)
}

func (te typedErr) Message() string {
	inner := te.err.Message()
	if inner == "" {
		return strings.Join(te.messages, ": ")
	}
	return fmt.Sprintf("%s: %s", strings.Join(te.messages, ": "), inner)
}

func (te typedErr) HasStack() bool { return te.err.HasStack() }
func (te typedErr) Stack() []string { return te.err.Stack() }

func (te typedErr) String() string {
	s := ""
	if te.err.HasStack() {
		s = "\n\n" + strings.Join(te.err.Stack(), "\n") + "\n"
	}
	return te.Message() + s
}

func (te typedErr) Error() string { return te.String() }

// R is the error interface returned by every exported engine function.
type R interface {
	Message() string
	Stack() []string
	HasStack() bool
	String() string
	Error() string
	AddMessage(m string)
}

type baseErr struct {
	messages []string
	e        error
	bstack   []byte
	stack    []string
}

func (e baseErr) HasStack() bool { return e.bstack != nil }

var argumentsRegex = regexp.MustCompile(`\([0-9a-fx, \.]*\)$`)
var goFileRegex = regexp.MustCompile(`\.go:[0-9]+ `)

func (e baseErr) Stack() []string {
	if e.stack == nil {
		lines := strings.Split(string(e.bstack), "\n")
		if len(lines) > 5 {
			lines = lines[5:]
		}
		var stack []string
		fun := ""
		for _, line := range lines {
			x := argumentsRegex.ReplaceAllString(line, "()")
			x = "  " + strings.TrimSpace(x)
			if !goFileRegex.MatchString(x) {
				fun = x
			} else {
				stack = append(stack, x+"\t"+fun)
			}
		}
		e.stack = stack
	}
	return e.stack
}

func (e baseErr) AddMessage(m string) {
	if e.messages == nil {
		e.messages = []string{m, e.e.Error()}
	} else {
		e.messages = append([]string{m}, e.messages...)
	}
}

func (e baseErr) Message() string {
	if e.messages == nil {
		return e.e.Error()
	}
	return strings.Join(e.messages, ", ")
}

func (e baseErr) String() string {
	s := ""
	if e.bstack != nil {
		s = "\n\n" + strings.Join(e.Stack(), "\n") + "\n"
	}
	return e.Message() + s
}

func (e baseErr) Error() string { return e.String() }

func captureStack() []byte { return debug.Stack() }

func newErr(s string, bstack []byte) R {
	return baseErr{e: errors.New(s), bstack: bstack}
}

// New creates an untyped error with a captured stack trace.
func New(s string) R { return newErr(s, captureStack()) }

// Errorf creates an untyped formatted error with a captured stack trace.
func Errorf(format string, a ...interface{}) R {
	return baseErr{e: fmt.Errorf(format, a...), bstack: captureStack()}
}

func wrap(e error) R {
	switch e {
	case io.ErrUnexpectedEOF:
		return ErrUnexpectedEOF.Default()
	case io.EOF:
		return EOF.Default()
	default:
		return baseErr{e: e, bstack: captureStack()}
	}
}

// E wraps a standard library error as an er.R, preserving stdlib sentinels.
func E(e error) R {
	if e == nil {
		return nil
	}
	return wrap(e)
}
