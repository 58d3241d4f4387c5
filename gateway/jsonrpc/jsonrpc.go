// Package jsonrpc holds the JSON-RPC 2.0 envelope exchanged with clients and
// upstream nodes, plus the per-call record kept in endpoint history.
package jsonrpc

import (
	"encoding/json"
	"time"
)

const Version = "2.0"

const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Error is a JSON-RPC error object.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return e.Message
}

// NewError creates a JSON-RPC error object
func NewError(code int, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Request is an inbound or outbound JSON-RPC call.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  Value  `json:"params"`
	ID      ID     `json:"id"`
}

// NewRequest builds a 2.0 request
func NewRequest(method string, params Value, id ID) *Request {
	return &Request{JSONRPC: Version, Method: method, Params: params, ID: id}
}

// Response carries either Result or Error.
type Response struct {
	JSONRPC string `json:"jsonrpc"`
	ID      ID     `json:"id"`
	Result  Value  `json:"result"`
	Error   *Error `json:"error,omitempty"`
}

type resultResponse struct {
	JSONRPC string `json:"jsonrpc"`
	ID      ID     `json:"id"`
	Result  Value  `json:"result"`
}

type errorResponse struct {
	JSONRPC string `json:"jsonrpc"`
	ID      ID     `json:"id"`
	Error   *Error `json:"error"`
}

// MarshalJSON omits result when an error is present.
func (r Response) MarshalJSON() ([]byte, error) {
	if r.Error != nil {
		return json.Marshal(errorResponse{JSONRPC: r.JSONRPC, ID: r.ID, Error: r.Error})
	}
	return json.Marshal(resultResponse{JSONRPC: r.JSONRPC, ID: r.ID, Result: r.Result})
}

// NewErrorResponse builds an error envelope for id
func NewErrorResponse(id ID, code int, message string) *Response {
	return &Response{JSONRPC: Version, ID: id, Error: NewError(code, message)}
}

// Record is one observed upstream call. StartTime anchors cache freshness.
type Record struct {
	Method    string    `json:"method"`
	Params    Value     `json:"params"`
	Result    Value     `json:"result"`
	Error     *Error    `json:"error,omitempty"`
	TimeTaken int64     `json:"time_taken"`
	StartTime time.Time `json:"start_time"`
}

// Response turns a record into the reply for req.
func (r *Record) Response(id ID) *Response {
	return &Response{JSONRPC: Version, ID: id, Result: r.Result, Error: r.Error}
}
