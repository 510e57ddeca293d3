// Package errs defines the typed error taxonomy shared across domainguard's
// components, so callers can branch on failure class with errors.As instead
// of matching strings.
package errs

import (
	"fmt"
	"time"
)

// ConfigError wraps a policy or settings load/validation failure. The tick
// that produced it keeps its previous good snapshot.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error in %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// RemoteTransient is a retryable remote-API failure (timeout, 5xx, 429).
type RemoteTransient struct {
	Op  string
	Err error
}

func (e *RemoteTransient) Error() string {
	return fmt.Sprintf("remote transient error during %s: %v", e.Op, e.Err)
}

func (e *RemoteTransient) Unwrap() error { return e.Err }

// RemotePermanent is a non-retryable remote-API failure (401, 404, other 4xx).
type RemotePermanent struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *RemotePermanent) Error() string {
	return fmt.Sprintf("remote permanent error during %s (status %d): %v", e.Op, e.StatusCode, e.Err)
}

func (e *RemotePermanent) Unwrap() error { return e.Err }

// StateCorruption signals an on-disk state file that failed to parse. The
// caller quarantines the file and starts from empty state.
type StateCorruption struct {
	Path string
	Err  error
}

func (e *StateCorruption) Error() string {
	return fmt.Sprintf("corrupted state file %s: %v", e.Path, e.Err)
}

func (e *StateCorruption) Unwrap() error { return e.Err }

// PolicyConflict marks a single policy item skipped for the tick because it
// violates a cross-list invariant (e.g. present in both deny and allow).
type PolicyConflict struct {
	Domain string
	Reason string
}

func (e *PolicyConflict) Error() string {
	return fmt.Sprintf("policy conflict for %s: %s", e.Domain, e.Reason)
}

// OverrideViolation is returned when an operator command is refused because
// panic is active. Expiration lets the caller report when it will clear.
type OverrideViolation struct {
	Command    string
	Expiration time.Time
}

func (e *OverrideViolation) Error() string {
	return fmt.Sprintf("%s refused: panic active until %s", e.Command, e.Expiration.Format(time.RFC3339))
}
