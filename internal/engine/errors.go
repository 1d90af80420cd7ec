package engine

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes fatal simulation errors.
type ErrorCode string

const (
	// ErrCodeScriptRead indicates the script file could not be read.
	ErrCodeScriptRead ErrorCode = "SCRIPT_READ"

	// ErrCodeScriptParse indicates a malformed script or command.
	ErrCodeScriptParse ErrorCode = "SCRIPT_PARSE"

	// ErrCodeFlashImage indicates an unreadable or oversized flash image,
	// or an offset past the end of the flash.
	ErrCodeFlashImage ErrorCode = "FLASH_IMAGE"

	// ErrCodeUnknownCommand indicates an unsupported SPI command byte.
	ErrCodeUnknownCommand ErrorCode = "UNKNOWN_COMMAND"

	// ErrCodeLogOpen indicates the event log output could not be opened.
	ErrCodeLogOpen ErrorCode = "LOG_OPEN"

	// ErrCodeLogWrite indicates an event could not be appended to the log.
	ErrCodeLogWrite ErrorCode = "LOG_WRITE"

	// ErrCodeBadAction indicates an action whose payload a peripheral
	// cannot carry out.
	ErrCodeBadAction ErrorCode = "BAD_ACTION"

	// ErrCodeTimestampOrder indicates an event older than the last logged one.
	ErrCodeTimestampOrder ErrorCode = "TIMESTAMP_ORDER"

	// ErrCodeEvaluator indicates the circuit evaluator failed to step.
	ErrCodeEvaluator ErrorCode = "EVALUATOR"
)

var knownCodes = map[ErrorCode]bool{
	ErrCodeScriptRead:     true,
	ErrCodeScriptParse:    true,
	ErrCodeFlashImage:     true,
	ErrCodeUnknownCommand: true,
	ErrCodeLogOpen:        true,
	ErrCodeLogWrite:       true,
	ErrCodeBadAction:      true,
	ErrCodeTimestampOrder: true,
	ErrCodeEvaluator:      true,
}

// ParseErrorCode returns the code named s, if it is one of the defined codes.
func ParseErrorCode(s string) (ErrorCode, bool) {
	c := ErrorCode(s)
	return c, knownCodes[c]
}

// SimError is a fatal condition that aborts a run.
type SimError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Peripheral names the model that raised the error, if any.
	Peripheral string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *SimError) Error() string {
	msg := e.Message
	if e.Peripheral != "" {
		msg = fmt.Sprintf("%s: %s", e.Peripheral, msg)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

// Unwrap returns the underlying cause.
func (e *SimError) Unwrap() error {
	return e.Err
}

// NewError creates a SimError without a cause.
func NewError(code ErrorCode, message string) *SimError {
	return &SimError{Code: code, Message: message}
}

// WrapError creates a SimError around err.
func WrapError(code ErrorCode, message string, err error) *SimError {
	return &SimError{Code: code, Message: message, Err: err}
}

// PeripheralError creates a SimError attributed to a peripheral.
func PeripheralError(code ErrorCode, peripheral, message string) *SimError {
	return &SimError{Code: code, Message: message, Peripheral: peripheral}
}

// CodeOf returns the code of the first SimError in err's chain, or "" if
// there is none.
func CodeOf(err error) ErrorCode {
	var se *SimError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// IsCode reports whether err carries the given code.
// Uses errors.As to handle wrapped errors.
func IsCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}
