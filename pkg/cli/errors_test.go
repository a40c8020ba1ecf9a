package cli

import (
	"errors"
	"testing"
)

func TestConfigError(t *testing.T) {
	tests := []struct {
		name string
		err  *ConfigError
		want string
	}{
		{
			name: "with field",
			err:  NewConfigError("budget.monthly_budget_usd", "must be positive"),
			want: "config error in budget.monthly_budget_usd: must be positive",
		},
		{
			name: "without field",
			err:  NewConfigError("", "failed to load config"),
			want: "config error: failed to load config",
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

func TestCommandErrorUnwrap(t *testing.T) {
	underlyingErr := errors.New("database is locked")
	err := NewCommandError("maintenance", underlyingErr)

	if err.Error() != "command maintenance failed: database is locked" {
		t.Errorf("Error() = %q", err.Error())
	}
	if !errors.Is(err, underlyingErr) {
		t.Error("errors.Is() should work with CommandError.Unwrap()")
	}
}

func TestUsageError(t *testing.T) {
	err := NewUsageError("tier", "must be 2 or 3, got %d", 5)
	if err.Error() != "invalid --tier: must be 2 or 3, got 5" {
		t.Errorf("Error() = %q", err.Error())
	}
}
