package cli

import (
	"errors"
	"fmt"

	"github.com/TeldridgeLDN/PE-Scanner-sub000/pkg/limits"
)

// Process exit codes. ExitUnavailable follows sysexits EX_UNAVAILABLE so
// scripts can retry when the shared store is down.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitConfigError = 2
	ExitUnavailable = 69
)

// ConfigError reports a configuration problem, optionally tied to a field
// path such as "store.redis.url".
type ConfigError struct {
	Field   string
	Message string
}

// NewConfigError creates a ConfigError. An empty field reports the error
// against the configuration as a whole.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{Field: field, Message: message}
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return "config error: " + e.Message
	}
	return fmt.Sprintf("config error in %s: %s", e.Field, e.Message)
}

// CommandError wraps a failure of a named subcommand ("usage reset").
type CommandError struct {
	Command string
	Err     error
}

// NewCommandError wraps err as a failure of command.
func NewCommandError(command string, err error) *CommandError {
	return &CommandError{Command: command, Err: err}
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }

// ExitCode maps err to a process exit code.
func ExitCode(err error) int {
	var cfgErr *ConfigError
	switch {
	case err == nil:
		return ExitOK
	case errors.As(err, &cfgErr):
		return ExitConfigError
	case errors.Is(err, limits.ErrStoreUnavailable):
		return ExitUnavailable
	default:
		return ExitFailure
	}
}
