package config

import (
	"strings"
	"testing"
)

func TestValidatorRequireNonEmpty(t *testing.T) {
	tests := []struct {
		name      string
		value     string
		wantError bool
	}{
		{name: "non-empty value", value: "localhost", wantError: false},
		{name: "empty value", value: "", wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewValidator()
			v.RequireNonEmpty("host", tt.value)
			if v.HasErrors() != tt.wantError {
				t.Errorf("HasErrors() = %v, want %v", v.HasErrors(), tt.wantError)
			}
		})
	}
}

func TestValidatorRequireRange(t *testing.T) {
	tests := []struct {
		name      string
		value     int
		wantError bool
	}{
		{name: "lower bound", value: 1, wantError: false},
		{name: "upper bound", value: 65535, wantError: false},
		{name: "below range", value: 0, wantError: true},
		{name: "above range", value: 70000, wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewValidator()
			v.RequirePort("port", tt.value)
			if v.HasErrors() != tt.wantError {
				t.Errorf("HasErrors() = %v, want %v", v.HasErrors(), tt.wantError)
			}
		})
	}
}

func TestValidatorRequireOneOf(t *testing.T) {
	v := NewValidator()
	v.RequireOneOf("sslMode", "disable", "disable", "require")
	if v.HasErrors() {
		t.Error("allowed value should pass")
	}

	v = NewValidator()
	v.RequireOneOf("sslMode", "maybe", "disable", "require")
	if !v.HasErrors() {
		t.Error("disallowed value should fail")
	}
}

func TestValidatorCollectsAllErrors(t *testing.T) {
	v := NewValidator().
		RequireNonEmpty("host", "").
		RequirePort("port", 0).
		RequirePositive("maxTokens", -1)

	if len(v.Errors()) != 3 {
		t.Fatalf("expected 3 errors, got %d", len(v.Errors()))
	}
	err := v.Error()
	if err == nil {
		t.Fatal("expected combined error")
	}
	for _, field := range []string{"host", "port", "maxTokens"} {
		if !strings.Contains(err.Error(), field) {
			t.Errorf("combined error should mention %s: %v", field, err)
		}
	}
}

func TestValidatorErrorNilWhenClean(t *testing.T) {
	v := NewValidator().RequireNonEmpty("host", "localhost")
	if err := v.Error(); err != nil {
		t.Errorf("expected nil error, got %v", err)
	}
}

func TestValidateRedis(t *testing.T) {
	if err := ValidateRedis("localhost:6379", 0, "navqa:session:"); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}
	if err := ValidateRedis("", 20, ""); err == nil {
		t.Error("expected error for bad redis config")
	}
}

func TestValidatePostgres(t *testing.T) {
	if err := ValidatePostgres("localhost", 5432, "postgres", "navqa", "disable"); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}
	if err := ValidatePostgres("localhost", 5432, "postgres", "navqa", "sometimes"); err == nil {
		t.Error("expected error for invalid sslMode")
	}
}

func TestValidateMongo(t *testing.T) {
	if err := ValidateMongo("mongodb://localhost:27017", "navqa", "sessions"); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}
	if err := ValidateMongo("", "", ""); err == nil {
		t.Error("expected error for empty mongo config")
	}
}

func TestValidatePGVector(t *testing.T) {
	if err := ValidatePGVector("localhost", 5432, "postgres", "navqa", "disable", 1536, "regulation_vectors"); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}
	if err := ValidatePGVector("localhost", 5432, "postgres", "navqa", "disable", 0, ""); err == nil {
		t.Error("expected error for bad dimension and table")
	}
}

func TestValidateLLM(t *testing.T) {
	if err := ValidateLLM("key", "gpt-4o-mini", 0.2, 2000); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}
	if err := ValidateLLM("", "gpt-4o-mini", 3.5, 0); err == nil {
		t.Error("expected error for missing key and out-of-range settings")
	}
}
