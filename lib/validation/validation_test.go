package validation

import (
	"errors"
	"testing"
	"time"
)

func TestRequired(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{"valid string", "sqlite3", false},
		{"empty string", "", true},
		{"whitespace only", "   ", true},
		{"tab only", "\t", true},
		{"valid with spaces", " mysql ", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Required("database.driver", tt.value)
			if (err != nil) != tt.wantErr {
				t.Errorf("Required() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrRequired) {
				t.Errorf("Required() error should wrap ErrRequired")
			}
		})
	}
}

func TestResultMessage(t *testing.T) {
	err := Required("database.url", "")
	if err.Error() != "database.url is required" {
		t.Errorf("Error() = %q", err.Error())
	}

	var r *Result
	if !errors.As(err, &r) || r.Field != "database.url" {
		t.Errorf("expected a *Result for database.url, got %#v", err)
	}

	if got := NewResult("", "bad", nil).Error(); got != "bad" {
		t.Errorf("Error() without field = %q", got)
	}
}

func TestOneOf(t *testing.T) {
	if err := OneOf("database.kind", "sql", "sql", "redis"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	err := OneOf("database.kind", "mongo", "sql", "redis")
	if !errors.Is(err, ErrInvalidFormat) {
		t.Errorf("expected ErrInvalidFormat, got %v", err)
	}
	if want := `database.kind must be one of sql, redis, got "mongo"`; err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestAtLeast(t *testing.T) {
	tests := []struct {
		value   int
		wantErr bool
	}{
		{0, true},
		{1, false},
		{5, false},
		{-3, true},
	}

	for _, tt := range tests {
		err := AtLeast("breaker.failure_threshold", tt.value, 1)
		if (err != nil) != tt.wantErr {
			t.Errorf("AtLeast(%d) error = %v, wantErr %v", tt.value, err, tt.wantErr)
		}
		if err != nil && !errors.Is(err, ErrOutOfRange) {
			t.Errorf("AtLeast(%d) error should wrap ErrOutOfRange", tt.value)
		}
	}
}

func TestNonNegative(t *testing.T) {
	if err := NonNegative("web.probe_burst", 0); err != nil {
		t.Errorf("0 should be valid: %v", err)
	}
	if err := NonNegative("web.probe_burst", -1); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("-1 should be out of range, got %v", err)
	}
	if err := NonNegative("web.probe_rate", 0.5); err != nil {
		t.Errorf("0.5 should be valid: %v", err)
	}
	if err := NonNegative("web.probe_rate", -0.1); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("-0.1 should be out of range, got %v", err)
	}
}

func TestDuration(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		want    time.Duration
		wantErr error
	}{
		{"empty uses default", "", 0, nil},
		{"seconds", "10s", 10 * time.Second, nil},
		{"compound", "1m30s", 90 * time.Second, nil},
		{"garbage", "soon", 0, ErrInvalidDuration},
		{"negative", "-5s", 0, ErrOutOfRange},
		{"zero", "0s", 0, ErrOutOfRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Duration("breaker.reset_timeout", tt.value)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Duration(%q) error = %v, want %v", tt.value, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Duration(%q) unexpected error: %v", tt.value, err)
			}
			if got != tt.want {
				t.Errorf("Duration(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestHostPort(t *testing.T) {
	tests := []struct {
		value   string
		wantErr error
	}{
		{"127.0.0.1:8080", nil},
		{":8080", nil},
		{"[::1]:9000", nil},
		{"localhost", ErrInvalidFormat},
		{"", ErrRequired},
	}

	for _, tt := range tests {
		err := HostPort("web.listen", tt.value)
		if tt.wantErr == nil && err != nil {
			t.Errorf("HostPort(%q) unexpected error: %v", tt.value, err)
		}
		if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
			t.Errorf("HostPort(%q) error = %v, want %v", tt.value, err, tt.wantErr)
		}
	}
}

func TestAll(t *testing.T) {
	calls := 0
	first := errors.New("first")
	err := All(
		func() error { calls++; return nil },
		func() error { calls++; return first },
		func() error { calls++; return errors.New("second") },
	)
	if err != first {
		t.Errorf("All() = %v, want first error", err)
	}
	if calls != 2 {
		t.Errorf("All() ran %d validators, want 2", calls)
	}
	if err := All(); err != nil {
		t.Errorf("All() with no validators = %v", err)
	}
}
