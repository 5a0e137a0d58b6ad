package cli

import (
	"errors"
	"fmt"
	"testing"

	"github.com/TeldridgeLDN/PE-Scanner-sub000/pkg/limits"
)

func TestConfigError(t *testing.T) {
	tests := []struct {
		name string
		err  *ConfigError
		want string
	}{
		{
			name: "with field",
			err:  &ConfigError{Field: "store.backend", Message: "unsupported backend"},
			want: "config error in store.backend: unsupported backend",
		},
		{
			name: "without field",
			err:  &ConfigError{Message: "file not found"},
			want: "config error: file not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewConfigError(t *testing.T) {
	err := NewConfigError("field", "message")
	if err.Field != "field" {
		t.Errorf("Field = %q, want %q", err.Field, "field")
	}
	if err.Message != "message" {
		t.Errorf("Message = %q, want %q", err.Message, "message")
	}
}

func TestCommandError(t *testing.T) {
	underlyingErr := errors.New("underlying error")
	err := NewCommandError("run", underlyingErr)

	expected := "run: underlying error"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
	if err.Unwrap() != underlyingErr {
		t.Errorf("Unwrap() = %v, want %v", err.Unwrap(), underlyingErr)
	}
	if !errors.Is(err, underlyingErr) {
		t.Error("errors.Is() should work with CommandError.Unwrap()")
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"config error", NewConfigError("", "bad"), ExitConfigError},
		{"wrapped config error", fmt.Errorf("loading: %w", NewConfigError("quota.mode", "bad")), ExitConfigError},
		{"command error", NewCommandError("run", errors.New("boom")), ExitFailure},
		{"plain error", errors.New("boom"), ExitFailure},
		{"store down", NewCommandError("usage get", &limits.StoreError{Op: "get", Key: "k", Err: errors.New("dial tcp: refused")}), ExitUnavailable},
		{"store sentinel", fmt.Errorf("reset: %w", limits.ErrStoreUnavailable), ExitUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}
