package reconcile

import (
	"errors"
	"fmt"
)

// ErrValidation is the base condition for all import validation failures.
// Concrete failures wrap it so callers can classify with errors.Is.
var ErrValidation = errors.New("host validation failed")

// MalformedRecordError reports a remote interface record that failed basic
// type coercion. Always fatal to the current normalize call.
type MalformedRecordError struct {
	Field  string
	Reason string
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("malformed interface record: field %q %s", e.Field, e.Reason)
}

// ConfigurationError reports a local configuration that is insufficient to
// build a valid payload. Surfaced to the caller, never retried.
type ConfigurationError struct {
	msg string
}

func (e *ConfigurationError) Error() string {
	return e.msg
}

func configErrf(format string, args ...any) error {
	return &ConfigurationError{msg: fmt.Sprintf(format, args...)}
}

func validationErrf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// TemplateNotFoundError reports a remote template with no local counterpart.
type TemplateNotFoundError struct {
	TemplateID string
	Name       string
}

func (e *TemplateNotFoundError) Error() string {
	return fmt.Sprintf("template %q (id %s) is not known locally", e.Name, e.TemplateID)
}

// Is makes TemplateNotFoundError match ErrValidation.
func (e *TemplateNotFoundError) Is(target error) bool {
	return target == ErrValidation
}

// RemoteAPIError wraps a failure from the remote client, carrying the
// attempted payload for diagnostics.
type RemoteAPIError struct {
	Op      string
	Payload map[string]any
	Err     error
}

func (e *RemoteAPIError) Error() string {
	return fmt.Sprintf("zabbix %s failed: %v", e.Op, e.Err)
}

func (e *RemoteAPIError) Unwrap() error {
	return e.Err
}

// LinkAmbiguityError reports that interface linking could not uniquely match
// a remote interface. Candidates carries every remote interface considered.
type LinkAmbiguityError struct {
	HostID     string
	Candidates []InterfaceRecord
}

func (e *LinkAmbiguityError) Error() string {
	return fmt.Sprintf("cannot uniquely link interface on host %s: %d remote candidates", e.HostID, len(e.Candidates))
}
