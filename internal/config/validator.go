package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Path    string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// HasErrors returns true if there are validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator validates sitegate configuration.
type Validator struct {
	structs *validator.Validate
	errors  ValidationErrors
}

// NewValidator creates a new configuration validator. Field paths in
// reported errors use the YAML names.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})
	return &Validator{structs: v}
}

// ValidateConfig validates a sitegate configuration.
func ValidateConfig(cfg *Config) error {
	return NewValidator().Validate(cfg)
}

// Validate validates the configuration and returns ValidationErrors when
// anything is wrong.
func (v *Validator) Validate(cfg *Config) error {
	v.errors = make(ValidationErrors, 0)

	if cfg == nil {
		v.addError("", "configuration is nil")
		return v.errors
	}

	v.validateStruct(cfg)
	v.validateIdentity(&cfg.Identity)
	v.validateDurations(cfg)

	if v.errors.HasErrors() {
		return v.errors
	}
	return nil
}

func (v *Validator) validateStruct(cfg *Config) {
	err := v.structs.Struct(cfg)
	if err == nil {
		return
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		v.addError("", err.Error())
		return
	}
	for _, fe := range fieldErrs {
		v.addError(trimRootNamespace(fe.Namespace()), describeTag(fe))
	}
}

func (v *Validator) validateIdentity(id *IdentityConfig) {
	if id.ClientSecret.Kind() == "" {
		v.addError("identity.clientSecret", "exactly one of value, env or file is required")
	}
}

func (v *Validator) validateDurations(cfg *Config) {
	if cfg.Identity.RefreshBuffer < 0 {
		v.addError("identity.refreshBuffer", "must not be negative")
	}
	if cfg.Identity.FallbackWindow < 0 {
		v.addError("identity.fallbackWindow", "must not be negative")
	}
	if cfg.Identity.TokenCacheTTL < 0 {
		v.addError("identity.tokenCacheTTL", "must not be negative")
	}
	if cfg.Graph.Timeout < 0 {
		v.addError("graph.timeout", "must not be negative")
	}
	if cfg.SharePoint.ProvisionInterval < 0 {
		v.addError("sharepoint.provisionInterval", "must not be negative")
	}
}

func (v *Validator) addError(path, message string) {
	v.errors = append(v.errors, ValidationError{Path: path, Message: message})
}

// trimRootNamespace drops the leading "Config." from validator namespaces.
func trimRootNamespace(ns string) string {
	if idx := strings.Index(ns, "."); idx >= 0 {
		return ns[idx+1:]
	}
	return ns
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "url":
		return "must be a valid URL"
	case "gte":
		return fmt.Sprintf("must be >= %s", fe.Param())
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}
