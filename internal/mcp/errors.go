// Package mcp exposes the memory engine as a Model Context Protocol
// server. Seven tools cover the verb surface; replies are plain text so
// any MCP client can render them without schema knowledge.
package mcp

import (
	"errors"
	"fmt"

	memerrors "github.com/openclaw/openclaw-memory/internal/errors"
)

// JSON-RPC error codes used when a request never reaches the engine.
const (
	ErrCodeInvalidParams = -32602
	ErrCodeInternalError = -32603

	// ErrCodeStorage covers index-database and memory-file failures.
	ErrCodeStorage = -32001

	// ErrCodeEmbedding covers provider errors and timeouts.
	ErrCodeEmbedding = -32002

	// ErrCodeNotFound covers reads of missing memory paths.
	ErrCodeNotFound = -32004
)

// ProtocolError is a JSON-RPC level failure.
type ProtocolError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// NewInvalidParamsError builds an invalid-params protocol error.
func NewInvalidParamsError(message string) *ProtocolError {
	return &ProtocolError{Code: ErrCodeInvalidParams, Message: message}
}

// MapError converts an engine error into a protocol error, for the cases
// where a request must fail at the JSON-RPC layer rather than produce a
// text reply.
func MapError(err error) *ProtocolError {
	if err == nil {
		return nil
	}

	var me *memerrors.MemoryError
	if errors.As(err, &me) {
		switch me.Category {
		case memerrors.CategoryStorage:
			if me.Code == memerrors.ErrCodeNotFound {
				return &ProtocolError{Code: ErrCodeNotFound, Message: me.Message}
			}
			return &ProtocolError{Code: ErrCodeStorage, Message: me.Message}
		case memerrors.CategoryEmbedding:
			return &ProtocolError{Code: ErrCodeEmbedding, Message: me.Message}
		case memerrors.CategoryConfig, memerrors.CategoryRejection:
			return &ProtocolError{Code: ErrCodeInvalidParams, Message: me.Message}
		}
	}
	return &ProtocolError{Code: ErrCodeInternalError, Message: err.Error()}
}

// renderError turns an engine error into the one-line text reply the verb
// surface promises: rejections as "Rejected: <reason>", everything else as
// "Error: <kind>: <message>".
func renderError(err error) string {
	return memerrors.FormatReply(err)
}
