// ABOUTME: JSON-RPC 2.0 envelope types exchanged with the backend process
// ABOUTME: Request, Response, Notification, error object, and standard error codes

package jsonrpc

import (
	"encoding/json"
	"fmt"
)

// Version is the protocol version carried in every envelope.
const Version = "2.0"

// Standard JSON-RPC 2.0 error codes.
const (
	CodeParse          = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternal       = -32603
)

// Application error codes reported by the backend server.
const (
	CodeSessionNotFound = -32001
	CodeToolNotFound    = -32002
	CodeBudgetExceeded  = -32003
	CodeCancelled       = -32004
)

// CodeText describes a known error code. Unknown codes yield "".
func CodeText(code int32) string {
	switch code {
	case CodeParse:
		return "parse error"
	case CodeInvalidRequest:
		return "invalid request"
	case CodeMethodNotFound:
		return "method not found"
	case CodeInvalidParams:
		return "invalid params"
	case CodeInternal:
		return "internal error"
	case CodeSessionNotFound:
		return "session not found"
	case CodeToolNotFound:
		return "tool not found"
	case CodeBudgetExceeded:
		return "token budget exceeded"
	case CodeCancelled:
		return "cancelled"
	default:
		return ""
	}
}

// Request is a client-to-server call. ID is assigned by the caller's dispatcher.
type Request struct {
	JSONRPC string
	Method  string
	Params  json.RawMessage
	ID      uint64
}

// Response answers the Request with the same ID. Exactly one of Result and
// Error is meaningful; HasResult distinguishes a present null result from a
// missing one.
type Response struct {
	JSONRPC   string
	ID        uint64
	Result    json.RawMessage
	HasResult bool
	Error     *Error
}

// Notification is a server-to-client message with no ID and no reply.
type Notification struct {
	JSONRPC string
	Method  string
	Params  json.RawMessage
}

// Error is the JSON-RPC error object.
type Error struct {
	Code    int32
	Message string
	Data    json.RawMessage
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Kind classifies a decoded line.
type Kind int

const (
	// KindUnrecognized covers non-JSON text and objects that are neither shape.
	KindUnrecognized Kind = iota
	KindResponse
	KindNotification
)

func (k Kind) String() string {
	switch k {
	case KindResponse:
		return "response"
	case KindNotification:
		return "notification"
	default:
		return "unrecognized"
	}
}

// Message is the result of decoding one line. Only the field matching Kind is set.
type Message struct {
	Kind         Kind
	Response     *Response
	Notification *Notification
}

// NewRequest builds a request envelope.
func NewRequest(id uint64, method string, params json.RawMessage) *Request {
	return &Request{JSONRPC: Version, Method: method, Params: params, ID: id}
}

// NewResult builds a success response.
func NewResult(id uint64, result json.RawMessage) *Response {
	return &Response{JSONRPC: Version, ID: id, Result: result, HasResult: true}
}

// NewErrorResponse builds a failure response.
func NewErrorResponse(id uint64, code int32, message string) *Response {
	return &Response{JSONRPC: Version, ID: id, Error: &Error{Code: code, Message: message}}
}

// NewNotification builds a notification envelope.
func NewNotification(method string, params json.RawMessage) *Notification {
	return &Notification{JSONRPC: Version, Method: method, Params: params}
}
