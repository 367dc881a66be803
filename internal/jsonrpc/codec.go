// ABOUTME: Line codec for JSON-RPC 2.0 over stdio using easyjson lexer/writer
// ABOUTME: Encode emits one compact object per line; Decode classifies lines and never fails

package jsonrpc

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/mailru/easyjson"
	"github.com/mailru/easyjson/jlexer"
	"github.com/mailru/easyjson/jwriter"
)

// Encode serializes a request as a single newline-terminated line.
func Encode(req *Request) ([]byte, error) {
	return encodeLine(req)
}

// EncodeResponse serializes a response as a single newline-terminated line.
func EncodeResponse(resp *Response) ([]byte, error) {
	return encodeLine(resp)
}

// EncodeNotification serializes a notification as a single newline-terminated line.
func EncodeNotification(n *Notification) ([]byte, error) {
	return encodeLine(n)
}

func encodeLine(v easyjson.Marshaler) ([]byte, error) {
	w := jwriter.Writer{}
	v.MarshalEasyJSON(&w)
	w.RawByte('\n')
	return w.BuildBytes()
}

// Decode classifies one line read from the peer. Responses are tried first
// (numeric id plus result or error), then notifications (method, no id).
// Everything else, including non-JSON debug output, is KindUnrecognized.
func Decode(line []byte) Message {
	var env envelope
	l := jlexer.Lexer{Data: line}
	env.UnmarshalEasyJSON(&l)
	if l.Error() != nil {
		return Message{Kind: KindUnrecognized}
	}

	if env.hasID {
		id, err := strconv.ParseUint(string(env.id), 10, 64)
		if err != nil || env.hasResult == (env.rpcErr != nil) {
			return Message{Kind: KindUnrecognized}
		}
		return Message{Kind: KindResponse, Response: &Response{
			JSONRPC:   env.jsonrpc,
			ID:        id,
			Result:    env.result,
			HasResult: env.hasResult,
			Error:     env.rpcErr,
		}}
	}

	if env.method != "" {
		return Message{Kind: KindNotification, Notification: &Notification{
			JSONRPC: env.jsonrpc,
			Method:  env.method,
			Params:  env.params,
		}}
	}

	return Message{Kind: KindUnrecognized}
}

// envelope is the union of every field either shape may carry.
type envelope struct {
	jsonrpc   string
	method    string
	id        []byte
	hasID     bool
	params    json.RawMessage
	result    json.RawMessage
	hasResult bool
	rpcErr    *Error
}

// UnmarshalEasyJSON implements easyjson.Unmarshaler.
func (e *envelope) UnmarshalEasyJSON(in *jlexer.Lexer) {
	isTopLevel := in.IsStart()
	in.Delim('{')
	for !in.IsDelim('}') {
		key := in.UnsafeFieldName(false)
		in.WantColon()
		switch key {
		case "jsonrpc":
			if in.IsNull() {
				in.Skip()
			} else {
				e.jsonrpc = in.String()
			}
		case "method":
			if in.IsNull() {
				in.Skip()
			} else {
				e.method = in.String()
			}
		case "id":
			if in.IsNull() {
				in.Skip()
			} else {
				e.id = cloneBytes(in.Raw())
				e.hasID = true
			}
		case "params":
			if in.IsNull() {
				in.Skip()
			} else {
				e.params = cloneBytes(in.Raw())
			}
		case "result":
			// A null result is still a result.
			e.result = cloneBytes(in.Raw())
			e.hasResult = true
		case "error":
			if in.IsNull() {
				in.Skip()
			} else {
				e.rpcErr = &Error{}
				e.rpcErr.UnmarshalEasyJSON(in)
			}
		default:
			in.SkipRecursive()
		}
		in.WantComma()
	}
	in.Delim('}')
	if isTopLevel {
		in.Consumed()
	}
}

// UnmarshalEasyJSON implements easyjson.Unmarshaler.
func (e *Error) UnmarshalEasyJSON(in *jlexer.Lexer) {
	in.Delim('{')
	for !in.IsDelim('}') {
		key := in.UnsafeFieldName(false)
		in.WantColon()
		if in.IsNull() {
			in.Skip()
			in.WantComma()
			continue
		}
		switch key {
		case "code":
			e.Code = in.Int32()
		case "message":
			e.Message = in.String()
		case "data":
			e.Data = cloneBytes(in.Raw())
		default:
			in.SkipRecursive()
		}
		in.WantComma()
	}
	in.Delim('}')
}

// MarshalEasyJSON implements easyjson.Marshaler.
func (r *Request) MarshalEasyJSON(w *jwriter.Writer) {
	w.RawString(`{"jsonrpc":`)
	w.String(versionOr(r.JSONRPC))
	w.RawString(`,"method":`)
	w.String(r.Method)
	w.RawString(`,"params":`)
	if len(r.Params) == 0 {
		w.RawString("{}")
	} else {
		w.Raw(compact(r.Params))
	}
	w.RawString(`,"id":`)
	w.Uint64(r.ID)
	w.RawByte('}')
}

// MarshalEasyJSON implements easyjson.Marshaler.
func (r *Response) MarshalEasyJSON(w *jwriter.Writer) {
	w.RawString(`{"jsonrpc":`)
	w.String(versionOr(r.JSONRPC))
	w.RawString(`,"id":`)
	w.Uint64(r.ID)
	if r.Error != nil {
		w.RawString(`,"error":`)
		r.Error.MarshalEasyJSON(w)
	} else {
		w.RawString(`,"result":`)
		w.Raw(compact(r.Result))
	}
	w.RawByte('}')
}

// MarshalEasyJSON implements easyjson.Marshaler.
func (n *Notification) MarshalEasyJSON(w *jwriter.Writer) {
	w.RawString(`{"jsonrpc":`)
	w.String(versionOr(n.JSONRPC))
	w.RawString(`,"method":`)
	w.String(n.Method)
	if len(n.Params) > 0 {
		w.RawString(`,"params":`)
		w.Raw(compact(n.Params))
	}
	w.RawByte('}')
}

// MarshalEasyJSON implements easyjson.Marshaler.
func (e *Error) MarshalEasyJSON(w *jwriter.Writer) {
	w.RawString(`{"code":`)
	w.Int32(e.Code)
	w.RawString(`,"message":`)
	w.String(e.Message)
	if len(e.Data) > 0 {
		w.RawString(`,"data":`)
		w.Raw(compact(e.Data))
	}
	w.RawByte('}')
}

func versionOr(v string) string {
	if v == "" {
		return Version
	}
	return v
}

// compact keeps embedded raw values on a single line.
func compact(raw json.RawMessage) ([]byte, error) {
	if !bytes.ContainsAny(raw, "\r\n") {
		return raw, nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}
