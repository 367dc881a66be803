// ABOUTME: Error taxonomy for backend calls: not started, process died, rpc, io, parse
// ABOUTME: Sentinels match by kind with errors.Is; ErrStreamActive guards the single stream slot

package backend

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mauromedda/openagent-go/internal/jsonrpc"
)

// Kind identifies the class of a backend failure.
type Kind int

const (
	// KindNotStarted: call attempted before Start or after Stop.
	KindNotStarted Kind = iota + 1
	// KindProcessDied: no response within the timeout, or the child exited.
	// A hang and a crash are indistinguishable from the client side.
	KindProcessDied
	// KindRPC: the child answered with a JSON-RPC error object.
	KindRPC
	// KindIO: spawn or pipe write failure.
	KindIO
	// KindParse: a result could not be decoded into the expected shape.
	KindParse
)

func (k Kind) String() string {
	switch k {
	case KindNotStarted:
		return "not started"
	case KindProcessDied:
		return "process died"
	case KindRPC:
		return "rpc"
	case KindIO:
		return "io"
	case KindParse:
		return "parse"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is returned for every failed backend operation.
type Error struct {
	Kind    Kind
	Code    int32           // KindRPC only
	Message string          // KindRPC message, or detail for IO/Parse
	Data    json.RawMessage // KindRPC only
	Err     error
}

// Sentinels for errors.Is. They match any *Error of the same kind.
var (
	ErrNotStarted  = &Error{Kind: KindNotStarted}
	ErrProcessDied = &Error{Kind: KindProcessDied}
)

// ErrStreamActive is returned by CallStreaming while a previous stream is
// still installed. Clear it with ClearStream first.
var ErrStreamActive = errors.New("a streaming call is already active")

func (e *Error) Error() string {
	switch e.Kind {
	case KindNotStarted:
		return "backend not started"
	case KindProcessDied:
		return "backend process died"
	case KindRPC:
		return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
	case KindIO:
		return "io error: " + e.detail()
	case KindParse:
		return "parse error: " + e.detail()
	default:
		return e.detail()
	}
}

func (e *Error) detail() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return e.Message + ": " + e.Err.Error()
	case e.Err != nil:
		return e.Err.Error()
	default:
		return e.Message
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// KindOf returns the Kind of err, or 0 when err is not a backend error.
func KindOf(err error) Kind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return 0
}

func ioError(msg string, err error) *Error {
	return &Error{Kind: KindIO, Message: msg, Err: err}
}

func parseError(msg string, err error) *Error {
	return &Error{Kind: KindParse, Message: msg, Err: err}
}

func rpcError(code int32, message string, data json.RawMessage) *Error {
	if message == "" {
		message = jsonrpc.CodeText(code)
	}
	return &Error{Kind: KindRPC, Code: code, Message: message, Data: data}
}

func processDied(err error) *Error {
	return &Error{Kind: KindProcessDied, Err: err}
}
