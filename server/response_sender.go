package server

import (
	gin "github.com/gin-gonic/gin"
	zap "go.uber.org/zap"

	types "github.com/apia-framework/a2a/types"
)

// ResponseSender defines how to send JSON-RPC responses
type ResponseSender interface {
	// SendSuccess sends a JSON-RPC success response
	SendSuccess(c *gin.Context, id any, result any)

	// SendError sends a JSON-RPC error response
	SendError(c *gin.Context, id any, code int, message string)

	// SendA2AError sends a JSON-RPC error response from an A2AError
	SendA2AError(c *gin.Context, id any, err *types.A2AError)
}

// DefaultResponseSender implements the ResponseSender interface
type DefaultResponseSender struct {
	logger *zap.Logger
}

var _ ResponseSender = (*DefaultResponseSender)(nil)

// NewDefaultResponseSender creates a new default response sender
func NewDefaultResponseSender(logger *zap.Logger) *DefaultResponseSender {
	return &DefaultResponseSender{
		logger: logger,
	}
}

// SendSuccess sends a JSON-RPC success response
func (rs *DefaultResponseSender) SendSuccess(c *gin.Context, id any, result any) {
	resp := types.NewSuccessResponse(id, result)
	c.JSON(200, resp)
	rs.logger.Debug("sending success response", zap.Any("id", id))
}

// SendError sends a JSON-RPC error response
func (rs *DefaultResponseSender) SendError(c *gin.Context, id any, code int, message string) {
	resp := types.NewErrorResponse(id, code, message, nil)
	c.JSON(200, resp) // JSON-RPC always returns 200 OK, errors are in the response body
	rs.logger.Error("sending error response", zap.Int("code", code), zap.String("message", message))
}

// SendA2AError sends a JSON-RPC error response from an A2AError
func (rs *DefaultResponseSender) SendA2AError(c *gin.Context, id any, err *types.A2AError) {
	resp := types.JSONRPCErrorResponse{
		JSONRPC: types.JSONRPCVersion,
		ID:      id,
		Error:   err.JSONRPCError(),
	}
	c.JSON(200, resp)
	rs.logger.Error("sending error response", zap.Int("code", err.Code), zap.String("message", err.Message))
}
