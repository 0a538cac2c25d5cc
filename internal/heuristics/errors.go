package heuristics

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRecord is wrapped by every ValidationError.
	ErrInvalidRecord = errors.New("invalid transaction record")
	// ErrInvalidConfig is wrapped by every ConfigurationError.
	ErrInvalidConfig = errors.New("invalid engine configuration")
)

// ValidationError rejects one malformed record. The batch continues without it.
type ValidationError struct {
	Index  int // Position in the input batch, -1 when unknown
	Hash   string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Hash != "" {
		return fmt.Sprintf("record %d (%s): %s: %s", e.Index, e.Hash, e.Field, e.Reason)
	}
	return fmt.Sprintf("record %d: %s: %s", e.Index, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidRecord }

// ConfigurationError fails a whole evaluation before any record is processed.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration %s: %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return ErrInvalidConfig }
