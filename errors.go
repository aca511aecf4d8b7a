package tablekit

import (
	"errors"
	"fmt"
)

// ErrDestroyed is returned by every operation after Destroy.
var ErrDestroyed = errors.New("table destroyed")

// ConfigError reports an invalid construction option. It is fatal: New
// returns it before any state is created.
type ConfigError struct {
	Option string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config option %q: %s", e.Option, e.Reason)
}

// ValidationError carries the messages of business rules a cell edit
// violated. The edit is rejected.
type ValidationError struct {
	Field    string
	Value    any
	Messages []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("edit rejected for field %q: %d rule violation(s)", e.Field, len(e.Messages))
}
