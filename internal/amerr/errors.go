package amerr

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a referenced object does not exist.
var ErrNotFound = errors.New("not found")

// ConfigurationError is returned when a rule set or a configuration value is
// invalid. It is never retried, the configuration must be fixed.
type ConfigurationError struct {
	// Source identifies where the invalid configuration was loaded from,
	// e.g. a file path or a repository.
	Source string
	Err    error
}

func NewConfigurationError(source string, err error) *ConfigurationError {
	return &ConfigurationError{Source: source, Err: err}
}

func (e *ConfigurationError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("configuration error: %s", e.Err)
	}

	return fmt.Sprintf("configuration error in %s: %s", e.Source, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// PermanentError is a remote error that will not go away by retrying, e.g.
// missing permissions.
type PermanentError struct {
	Err error
}

func NewPermanentError(err error) *PermanentError {
	return &PermanentError{Err: err}
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent error: %s", e.Err)
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// StaleStateError is returned when the conditions that caused an operation
// to be scheduled are not fulfilled anymore.
type StaleStateError struct {
	Reason string
}

func (e *StaleStateError) Error() string {
	return "state changed: " + e.Reason
}

// QueueExhaustedError is returned when a merge queue entry reached its
// attempt ceiling.
type QueueExhaustedError struct {
	Attempts    int
	MaxAttempts int
	// LastErr is the reason of the last failed attempt, it can be nil.
	LastErr error
}

func (e *QueueExhaustedError) Error() string {
	if e.LastErr == nil {
		return fmt.Sprintf("giving up after %d/%d requeues", e.Attempts, e.MaxAttempts)
	}

	return fmt.Sprintf("giving up after %d/%d requeues: %s", e.Attempts, e.MaxAttempts, e.LastErr)
}

func (e *QueueExhaustedError) Unwrap() error {
	return e.LastErr
}

// IsPermanent returns true if err wraps a *PermanentError.
func IsPermanent(err error) bool {
	var permErr *PermanentError
	return errors.As(err, &permErr)
}

// IsConfiguration returns true if err wraps a *ConfigurationError.
func IsConfiguration(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}
