// Package mcp implements the Model Context Protocol server for OrgMCP.
// It exposes the knowledge service's search and status operations as tools
// over stdio.
package mcp

import (
	"context"
	"errors"
	"fmt"

	orgerrors "github.com/Aman-CERP/orgmcp/internal/errors"
)

// MCP error codes. The -3200x codes are ours; the rest are standard JSON-RPC.
const (
	// ErrCodeIndexNotReady indicates the index is missing, rebuilding, or
	// incompatible with the current configuration.
	ErrCodeIndexNotReady = -32001

	// ErrCodeNotFound indicates the referenced content does not exist.
	ErrCodeNotFound = -32002

	// ErrCodeTimeout indicates the request timed out or was canceled.
	ErrCodeTimeout = -32003

	// Standard JSON-RPC error codes.
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// ErrToolNotFound indicates the requested tool does not exist.
var ErrToolNotFound = errors.New("tool not found")

// MCPError represents an MCP protocol error with code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts internal errors to MCP errors.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var orgErr *orgerrors.OrgError
	if errors.As(err, &orgErr) {
		return mapOrgError(orgErr)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{
			Code:    ErrCodeTimeout,
			Message: "Request timed out.",
		}
	case errors.Is(err, context.Canceled):
		return &MCPError{
			Code:    ErrCodeTimeout,
			Message: "Request was canceled.",
		}
	case errors.Is(err, ErrToolNotFound):
		return &MCPError{
			Code:    ErrCodeMethodNotFound,
			Message: "Tool not found.",
		}
	default:
		return &MCPError{
			Code:    ErrCodeInternalError,
			Message: "Internal server error.",
		}
	}
}

// NewInvalidParamsError creates an error for invalid parameters with a custom message.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{
		Code:    ErrCodeInvalidParams,
		Message: msg,
	}
}

// NewMethodNotFoundError creates an error for unknown methods/tools.
func NewMethodNotFoundError(name string) *MCPError {
	return &MCPError{
		Code:    ErrCodeMethodNotFound,
		Message: fmt.Sprintf("Tool '%s' not found.", name),
	}
}

// NewResourceNotFoundError creates an error for unknown resources.
func NewResourceNotFoundError(uri string) *MCPError {
	return &MCPError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("Resource '%s' not found.", uri),
	}
}

// mapOrgError converts an OrgError to an MCPError. The suggestion, when
// present, rides along in the message so clients can surface the fix.
func mapOrgError(oe *orgerrors.OrgError) *MCPError {
	message := oe.Message
	if oe.Suggestion != "" {
		message = fmt.Sprintf("%s %s", oe.Message, oe.Suggestion)
	}

	switch oe.Code {
	case orgerrors.ErrCodeNotFound:
		return &MCPError{Code: ErrCodeNotFound, Message: message}
	case orgerrors.ErrCodeCorruptIndex, orgerrors.ErrCodeVersionMismatch, orgerrors.ErrCodeRebuildFailed:
		return &MCPError{Code: ErrCodeIndexNotReady, Message: message}
	}

	switch oe.Category {
	case orgerrors.CategoryValidation:
		return &MCPError{Code: ErrCodeInvalidParams, Message: message}
	case orgerrors.CategoryNetwork:
		return &MCPError{Code: ErrCodeTimeout, Message: message}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: message}
	}
}
