// Package config validates backend settings before connections are opened,
// so a bad deployment fails at startup with every problem listed instead of
// on the first query.
package config

import (
	"fmt"
)

// ValidationError is one failed check.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for field %q: %s", e.Field, e.Message)
}

// Validator collects validation errors across chained checks.
type Validator struct {
	errors []ValidationError
}

// NewValidator creates an empty validator.
func NewValidator() *Validator {
	return &Validator{}
}

// RequireNonEmpty checks that a string field is set.
func (v *Validator) RequireNonEmpty(field, value string) *Validator {
	if value == "" {
		v.errors = append(v.errors, ValidationError{
			Field:   field,
			Message: "value cannot be empty",
		})
	}
	return v
}

// RequirePositive checks that an integer field is greater than 0.
func (v *Validator) RequirePositive(field string, value int) *Validator {
	if value <= 0 {
		v.errors = append(v.errors, ValidationError{
			Field:   field,
			Message: fmt.Sprintf("value must be positive, got %d", value),
		})
	}
	return v
}

// RequireRange checks that an integer field lies in [min, max].
func (v *Validator) RequireRange(field string, value, min, max int) *Validator {
	if value < min || value > max {
		v.errors = append(v.errors, ValidationError{
			Field:   field,
			Message: fmt.Sprintf("value must be between %d and %d, got %d", min, max, value),
		})
	}
	return v
}

// RequireFloatRange checks that a float field lies in [min, max].
func (v *Validator) RequireFloatRange(field string, value, min, max float64) *Validator {
	if value < min || value > max {
		v.errors = append(v.errors, ValidationError{
			Field:   field,
			Message: fmt.Sprintf("value must be between %.2f and %.2f, got %.2f", min, max, value),
		})
	}
	return v
}

// RequirePort checks that a port number is valid.
func (v *Validator) RequirePort(field string, port int) *Validator {
	return v.RequireRange(field, port, 1, 65535)
}

// RequireOneOf checks that a string value is one of the allowed options.
func (v *Validator) RequireOneOf(field string, value string, allowed ...string) *Validator {
	for _, a := range allowed {
		if a == value {
			return v
		}
	}
	v.errors = append(v.errors, ValidationError{
		Field:   field,
		Message: fmt.Sprintf("value must be one of %v, got %q", allowed, value),
	})
	return v
}

// HasErrors reports whether any check failed.
func (v *Validator) HasErrors() bool {
	return len(v.errors) > 0
}

// Error returns a combined error listing every failed check, or nil.
func (v *Validator) Error() error {
	if !v.HasErrors() {
		return nil
	}
	msg := "configuration validation failed:\n"
	for _, e := range v.errors {
		msg += fmt.Sprintf("  - %s: %s\n", e.Field, e.Message)
	}
	return fmt.Errorf("%s", msg)
}

// Errors returns all collected errors.
func (v *Validator) Errors() []ValidationError {
	return v.errors
}

// ValidatePostgres validates a PostgreSQL connection config.
func ValidatePostgres(host string, port int, user, dbName, sslMode string) error {
	v := NewValidator()
	v.RequireNonEmpty("host", host)
	v.RequirePort("port", port)
	v.RequireNonEmpty("user", user)
	v.RequireNonEmpty("dbName", dbName)
	v.RequireOneOf("sslMode", sslMode, "disable", "require", "verify-ca", "verify-full")
	return v.Error()
}

// ValidateRedis validates a Redis connection config.
func ValidateRedis(addr string, db int, prefix string) error {
	v := NewValidator()
	v.RequireNonEmpty("addr", addr)
	v.RequireRange("db", db, 0, 15)
	v.RequireNonEmpty("prefix", prefix)
	return v.Error()
}

// ValidateMongo validates a MongoDB connection config.
func ValidateMongo(uri, database, collection string) error {
	v := NewValidator()
	v.RequireNonEmpty("uri", uri)
	v.RequireNonEmpty("database", database)
	v.RequireNonEmpty("collection", collection)
	return v.Error()
}

// ValidatePGVector validates a pgvector store config.
func ValidatePGVector(host string, port int, user, dbName, sslMode string, dimension int, tableName string) error {
	v := NewValidator()
	v.RequireNonEmpty("host", host)
	v.RequirePort("port", port)
	v.RequireNonEmpty("user", user)
	v.RequireNonEmpty("dbName", dbName)
	v.RequireOneOf("sslMode", sslMode, "disable", "require", "verify-ca", "verify-full")
	v.RequireRange("dimension", dimension, 1, 16000)
	v.RequireNonEmpty("tableName", tableName)
	return v.Error()
}

// ValidateLLM validates chat model settings shared by the providers.
func ValidateLLM(apiKey, model string, temperature float64, maxTokens int) error {
	v := NewValidator()
	v.RequireNonEmpty("apiKey", apiKey)
	v.RequireNonEmpty("model", model)
	v.RequireFloatRange("temperature", temperature, 0.0, 2.0)
	v.RequirePositive("maxTokens", maxTokens)
	return v.Error()
}
