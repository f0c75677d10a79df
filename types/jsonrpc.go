package types

import (
	"encoding/json"
	"fmt"
)

// JSONRPCVersion is the only protocol version the server speaks.
const JSONRPCVersion = "2.0"

// A2A JSON-RPC method names
const (
	MethodTasksSend          = "tasks/send"
	MethodTasksSendSubscribe = "tasks/sendSubscribe"
	MethodTasksGet           = "tasks/get"
	MethodTasksCancel        = "tasks/cancel"
)

// JSON-RPC error codes, standard range plus the A2A server-defined range.
const (
	ErrCodeParseError       = -32700
	ErrCodeInvalidRequest   = -32600
	ErrCodeMethodNotFound   = -32601
	ErrCodeInvalidParams    = -32602
	ErrCodeInternalError    = -32603
	ErrCodeServerError      = -32000
	ErrCodeTaskNotFound     = -32001
	ErrCodeInvalidTaskState = -32004
)

// JSONRPCRequest is a JSON-RPC 2.0 request envelope. Params stays raw until
// the dispatcher knows which parameter struct the method takes.
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// JSONRPCSuccessResponse is a JSON-RPC 2.0 success envelope
type JSONRPCSuccessResponse struct {
	JSONRPC string `json:"jsonrpc"`
	ID      any    `json:"id,omitempty"`
	Result  any    `json:"result"`
}

// JSONRPCError is the error object of a JSON-RPC 2.0 error response
type JSONRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// JSONRPCErrorResponse is a JSON-RPC 2.0 error envelope
type JSONRPCErrorResponse struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      any           `json:"id,omitempty"`
	Error   *JSONRPCError `json:"error"`
}

// NewSuccessResponse builds a success envelope for the given request id
func NewSuccessResponse(id any, result any) JSONRPCSuccessResponse {
	return JSONRPCSuccessResponse{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Result:  result,
	}
}

// NewErrorResponse builds an error envelope for the given request id
func NewErrorResponse(id any, code int, message string, data any) JSONRPCErrorResponse {
	return JSONRPCErrorResponse{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Error: &JSONRPCError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// A2AError is the RPC-visible error taxonomy. It travels as a Go error inside
// the server and maps one-to-one onto a JSONRPCError at the boundary.
type A2AError struct {
	Code    int
	Message string
	Data    any
}

// Error implements the error interface
func (e *A2AError) Error() string {
	return fmt.Sprintf("a2a error %d: %s", e.Code, e.Message)
}

// JSONRPCError converts the error to its wire form
func (e *A2AError) JSONRPCError() *JSONRPCError {
	return &JSONRPCError{Code: e.Code, Message: e.Message, Data: e.Data}
}

// NewTaskNotFoundError indicates the referenced task id has no live entry
func NewTaskNotFoundError(taskID string) *A2AError {
	return &A2AError{
		Code:    ErrCodeTaskNotFound,
		Message: "Task not found",
		Data:    map[string]any{"taskId": taskID},
	}
}

// NewMethodNotFoundError indicates an unknown method or an unroutable skill
func NewMethodNotFoundError(detail string) *A2AError {
	return &A2AError{
		Code:    ErrCodeMethodNotFound,
		Message: "Method not found",
		Data:    detail,
	}
}

// NewInvalidParamsError indicates a missing or malformed request parameter
func NewInvalidParamsError(detail string) *A2AError {
	return &A2AError{
		Code:    ErrCodeInvalidParams,
		Message: "Invalid params",
		Data:    detail,
	}
}

// NewInvalidTaskStateError indicates a message arrived for a task whose state
// does not admit re-entry
func NewInvalidTaskStateError(taskID string, state TaskState) *A2AError {
	return &A2AError{
		Code:    ErrCodeInvalidTaskState,
		Message: fmt.Sprintf("Task %s in state %s cannot accept new messages", taskID, state),
	}
}

// NewInternalError wraps an unexpected server-side failure
func NewInternalError(detail string) *A2AError {
	return &A2AError{
		Code:    ErrCodeInternalError,
		Message: "Internal error",
		Data:    detail,
	}
}
