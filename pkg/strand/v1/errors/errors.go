package errors

import (
	"errors"
	"fmt"
)

// --- Strand Core Error Types ---

// ConfigError represents an error encountered during the loading or parsing
// of the policy document or interpreter options.
type ConfigError struct {
	Message string
	Cause   error
}

func NewConfigError(message string, cause error) *ConfigError {
	return &ConfigError{Message: message, Cause: cause}
}
func (e *ConfigError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("configuration error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("configuration error: %s", e.Message)
}
func (e *ConfigError) Unwrap() error { return e.Cause }

// ValidationError indicates that some input (policy document structure,
// schema version, node payloads) failed validation checks.
type ValidationError struct {
	Message string
	Cause   error
}

func NewValidationError(message string, cause error) *ValidationError {
	return &ValidationError{Message: message, Cause: cause}
}
func (e *ValidationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("validation error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}
func (e *ValidationError) Unwrap() error { return e.Cause }

// ModuleNotFoundError indicates that a module named in a policy document
// could not be found in the module registry.
type ModuleNotFoundError struct {
	ModuleName string
}

func NewModuleNotFoundError(moduleName string) *ModuleNotFoundError {
	return &ModuleNotFoundError{ModuleName: moduleName}
}
func (e *ModuleNotFoundError) Error() string {
	return fmt.Sprintf("module not found: %s", e.ModuleName)
}

// NestingError is the fatal error produced when pushing a frame would exceed
// the fixed interpreter stack depth. It terminates only the offending
// execution; the shared graph and other executions are unaffected.
type NestingError struct {
	Depth int
	Max   int
	Node  string
}

func NewNestingError(node string, depth, max int) *NestingError {
	return &NestingError{Node: node, Depth: depth, Max: max}
}
func (e *NestingError) Error() string {
	return fmt.Sprintf("policy nesting too deep at %q: depth %d exceeds maximum %d", e.Node, e.Depth, e.Max)
}

// IsNesting checks if an error is a NestingError using errors.As.
func IsNesting(err error) bool {
	var ne *NestingError
	return errors.As(err, &ne)
}

// StopError is produced when an operation issues the stop-processing
// directive, abandoning the current execution's stack immediately.
type StopError struct {
	Node string
}

func NewStopError(node string) *StopError {
	return &StopError{Node: node}
}
func (e *StopError) Error() string {
	if e.Node != "" {
		return fmt.Sprintf("execution stopped at %q", e.Node)
	}
	return "execution stopped"
}

// CanceledError is returned when a suspended execution is resumed after its
// cancellation callback has already been delivered.
type CanceledError struct {
	ExecutionID string
}

func NewCanceledError(executionID string) *CanceledError {
	return &CanceledError{ExecutionID: executionID}
}
func (e *CanceledError) Error() string {
	return fmt.Sprintf("execution %s was canceled while suspended", e.ExecutionID)
}

// IsCanceled checks if an error is a CanceledError using errors.As.
func IsCanceled(err error) bool {
	var ce *CanceledError
	return errors.As(err, &ce)
}
