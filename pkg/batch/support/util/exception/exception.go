// Package exception defines the error taxonomy of the batch engine.
//
// BatchError is the general wrapper carrying the originating module and the skip/retry flags.
// SourceError, MappingError, WriteError and ConfigError classify failures of the chunk loop:
//
//   - SourceError: the record source could not be read. Fatal for the step.
//   - MappingError: a single record could not be mapped. Handled by the skip policy.
//   - WriteError: a chunk write failed. The chunk is rolled back and the step fails.
//   - ConfigError: invalid configuration, detected before any record is read.
package exception

import (
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"strings"
	"sync"
)

// BatchError is an error raised by a batch component.
type BatchError struct {
	// Module is the component that raised the error ("reader", "mapper", "writer", "config", a step name...).
	Module      string
	Message     string
	OriginalErr error
	isRetryable bool
	isSkippable bool
	// StackTrace is captured at construction time for debugging.
	StackTrace string
}

// NewBatchError wraps originalErr with the given module, message and flags.
func NewBatchError(module, message string, originalErr error, isSkippable, isRetryable bool) *BatchError {
	return &BatchError{
		Module:      module,
		Message:     message,
		OriginalErr: originalErr,
		isRetryable: isRetryable,
		isSkippable: isSkippable,
		StackTrace:  captureStack(),
	}
}

// NewBatchErrorf is NewBatchError with a formatted, non-skippable, non-retryable message.
// If the last argument is an error it becomes the wrapped error.
func NewBatchErrorf(module, format string, a ...interface{}) *BatchError {
	var originalErr error
	if len(a) > 0 {
		if err, ok := a[len(a)-1].(error); ok {
			originalErr = err
			a = a[:len(a)-1]
		}
	}
	return NewBatchError(module, fmt.Sprintf(format, a...), originalErr, false, false)
}

func captureStack() string {
	buf := make([]byte, 2048)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}

func (e *BatchError) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Module, e.Message, e.OriginalErr)
	}
	return fmt.Sprintf("[%s] %s", e.Module, e.Message)
}

func (e *BatchError) Unwrap() error {
	return e.OriginalErr
}

// IsRetryable reports whether the operation that raised e may be attempted again.
func (e *BatchError) IsRetryable() bool {
	return e.isRetryable
}

// IsSkippable reports whether the item that raised e may be skipped.
func (e *BatchError) IsSkippable() bool {
	return e.isSkippable
}

// ExtractErrorMessage returns the Message of a BatchError, or err.Error() otherwise.
func ExtractErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var be *BatchError
	if errors.As(err, &be) {
		return be.Message
	}
	return err.Error()
}

// --- error type registry ---

var (
	errorRegistry = make(map[string]error)
	registryMutex sync.RWMutex
)

// RegisterErrorType registers a sentinel error under a name that can be referenced from
// configuration (for example in the retryable error list of the write retry wrapper).
// It panics on an empty name or nil prototype.
func RegisterErrorType(name string, prototype error) {
	if name == "" {
		panic("error type name cannot be empty")
	}
	if prototype == nil {
		panic(fmt.Sprintf("cannot register nil prototype for %q", name))
	}
	registryMutex.Lock()
	defer registryMutex.Unlock()
	errorRegistry[name] = prototype
}

// IsErrorTypeRegistered reports whether name has been registered.
func IsErrorTypeRegistered(name string) bool {
	registryMutex.RLock()
	defer registryMutex.RUnlock()
	_, ok := errorRegistry[name]
	return ok
}

// IsErrorOfType reports whether err matches typeName. A match is any of:
// a registered sentinel found with errors.Is, an error in the chain whose message contains
// typeName, or an error in the chain whose Go type name equals typeName.
func IsErrorOfType(err error, typeName string) bool {
	if err == nil || typeName == "" {
		return false
	}

	registryMutex.RLock()
	target, ok := errorRegistry[typeName]
	registryMutex.RUnlock()
	if ok && errors.Is(err, target) {
		return true
	}

	for cur := err; cur != nil; cur = errors.Unwrap(cur) {
		if strings.Contains(cur.Error(), typeName) {
			return true
		}
		t := reflect.TypeOf(cur)
		if t.String() == typeName || (t.Kind() == reflect.Ptr && t.Elem().String() == typeName) {
			return true
		}
	}
	return false
}
