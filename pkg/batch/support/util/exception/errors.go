package exception

import (
	"errors"
	"fmt"
	"strings"
)

// NoFailedIndex is the FailedIndex of a WriteError whose failing item is unknown.
const NoFailedIndex = -1

// SourceError reports an I/O failure of the record source at the given 1-based line.
type SourceError struct {
	Line  int
	Cause error
}

// NewSourceError returns a *SourceError.
func NewSourceError(line int, cause error) *SourceError {
	return &SourceError{Line: line, Cause: cause}
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source error at line %d: %v", e.Line, e.Cause)
}

func (e *SourceError) Unwrap() error { return e.Cause }

// MappingError reports that the record at Line could not be turned into a domain object.
type MappingError struct {
	Line      int
	RawRecord []string
	Cause     error
}

// NewMappingError returns a *MappingError holding a copy of raw.
func NewMappingError(line int, raw []string, cause error) *MappingError {
	cp := make([]string, len(raw))
	copy(cp, raw)
	return &MappingError{Line: line, RawRecord: cp, Cause: cause}
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("mapping error at line %d [%s]: %v", e.Line, strings.Join(e.RawRecord, ","), e.Cause)
}

func (e *MappingError) Unwrap() error { return e.Cause }

// WriteError reports a failed chunk write. FailedIndex is the position of the offending item in
// the chunk, or NoFailedIndex when the writer cannot tell.
type WriteError struct {
	FailedIndex int
	Cause       error
}

// NewWriteError returns a *WriteError.
func NewWriteError(failedIndex int, cause error) *WriteError {
	return &WriteError{FailedIndex: failedIndex, Cause: cause}
}

func (e *WriteError) Error() string {
	if e.FailedIndex == NoFailedIndex {
		return fmt.Sprintf("write error: %v", e.Cause)
	}
	return fmt.Sprintf("write error at item %d: %v", e.FailedIndex, e.Cause)
}

func (e *WriteError) Unwrap() error { return e.Cause }

// HasFailedIndex reports whether the failing item is known.
func (e *WriteError) HasFailedIndex() bool {
	return e.FailedIndex >= 0
}

// ConfigError reports an invalid configuration value.
type ConfigError struct {
	Field   string
	Message string
}

// NewConfigError returns a *ConfigError.
func NewConfigError(field, format string, a ...interface{}) *ConfigError {
	return &ConfigError{Field: field, Message: fmt.Sprintf(format, a...)}
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %s", e.Field, e.Message)
}

// IsMappingError reports whether err wraps a *MappingError.
func IsMappingError(err error) bool {
	var me *MappingError
	return errors.As(err, &me)
}

// IsSourceError reports whether err wraps a *SourceError.
func IsSourceError(err error) bool {
	var se *SourceError
	return errors.As(err, &se)
}

// IsWriteError reports whether err wraps a *WriteError.
func IsWriteError(err error) bool {
	var we *WriteError
	return errors.As(err, &we)
}

// IsConfigError reports whether err wraps a *ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
