package domain

import "errors"

var (
	ErrToolNotFound     = errors.New("tool not found")
	ErrDuplicateTool    = errors.New("duplicate tool name")
	ErrEmptyToolName    = errors.New("tool name cannot be empty")
	ErrRetriesExhausted = errors.New("retries exhausted")
	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrSessionNotFound  = errors.New("session not found")
	ErrTraceNotFound    = errors.New("trace not found")
)
