package cli

import (
	"errors"
	"fmt"
	"testing"
)

func TestConfigError(t *testing.T) {
	tests := []struct {
		name string
		err  *ConfigError
		want string
	}{
		{"with field", NewConfigError("storage.backend", "unsupported backend"), "config error in storage.backend: unsupported backend"},
		{"without field", NewConfigError("", "file not found"), "config error: file not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCommandError(t *testing.T) {
	inner := errors.New("database is locked")
	err := NewCommandError("evaluate", inner)

	if got, want := err.Error(), "command evaluate failed: database is locked"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, inner) {
		t.Error("CommandError should unwrap to the inner error")
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"blocked", ErrBlocked, ExitBlocked},
		{"wrapped blocked", NewCommandError("evaluate", ErrBlocked), ExitBlocked},
		{"config", fmt.Errorf("load: %w", NewConfigError("", "bad")), ExitConfig},
		{"other", errors.New("boom"), ExitError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}
