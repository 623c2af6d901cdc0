package contract

import "errors"

var (
	ErrModelInvoke     = errors.New("model invoke failed")
	ErrSchemaViolation = errors.New("model response violates schema")
	ErrValidation      = errors.New("validation failed")
	ErrToolExec        = errors.New("tool execution failed")
	ErrLoopBound       = errors.New("tool loop bound exceeded")
	ErrUnknownToolCall = errors.New("tool result references unknown call id")
	ErrClientNotFound  = errors.New("client not found")
)
