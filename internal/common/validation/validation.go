// Package validation wraps go-playground/validator with the tags used by API
// definition documents and a collector for checks that struct tags cannot
// express.
package validation

import (
	"fmt"
	"net/url"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"mediation-router/internal/common/errors"
)

var httpMethods = []string{"GET", "HEAD", "POST", "PUT", "PATCH", "DELETE", "OPTIONS", "CONNECT", "TRACE"}

// Validator validates structs using struct tags
type Validator struct {
	validate *validator.Validate
}

// FieldError is a single validation failure
type FieldError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag,omitempty"`
	Value   string `json:"value,omitempty"`
	Message string `json:"message"`
	Param   string `json:"param,omitempty"`
}

// Result holds structured validation results
type Result struct {
	Valid  bool         `json:"valid"`
	Errors []FieldError `json:"errors,omitempty"`
}

// New creates a validator with the definition tags registered
func New() *Validator {
	v := validator.New()
	registerDefinitionValidators(v)

	// report json/yaml names rather than Go field names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		for _, tag := range []string{"json", "yaml"} {
			name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
			if name != "" && name != "-" {
				return name
			}
		}
		return fld.Name
	})

	return &Validator{validate: v}
}

// Struct validates s and returns a validation AppError on failure
func (v *Validator) Struct(s interface{}) error {
	result := v.StructResult(s)
	if result.Valid {
		return nil
	}
	return toError(result.Errors)
}

// StructResult validates s and returns every failure
func (v *Validator) StructResult(s interface{}) *Result {
	err := v.validate.Struct(s)
	if err == nil {
		return &Result{Valid: true}
	}
	return &Result{Errors: extract(err)}
}

// Var validates a single value against tag
func (v *Validator) Var(field interface{}, tag string) error {
	if err := v.validate.Var(field, tag); err != nil {
		return toError(extract(err))
	}
	return nil
}

// Collector accumulates semantic failures next to struct-tag results
type Collector struct {
	prefix string
	errors []FieldError
}

// NewCollector creates a collector whose fields are reported under prefix
func NewCollector(prefix string) *Collector {
	return &Collector{prefix: prefix}
}

// Add records a failure for field
func (c *Collector) Add(field, message string) *Collector {
	if c.prefix != "" {
		field = c.prefix + "." + field
	}
	c.errors = append(c.errors, FieldError{Field: field, Message: message})
	return c
}

// Check records err against field when it is non-nil
func (c *Collector) Check(field string, err error) *Collector {
	if err != nil {
		c.Add(field, fmt.Sprintf("field '%s' %v", field, err))
	}
	return c
}

// Merge appends the failures of a struct-tag result
func (c *Collector) Merge(result *Result) *Collector {
	if result == nil || result.Valid {
		return c
	}
	for _, e := range result.Errors {
		if c.prefix != "" {
			e.Field = c.prefix + "." + e.Field
		}
		c.errors = append(c.errors, e)
	}
	return c
}

// HasErrors reports whether any failure was recorded
func (c *Collector) HasErrors() bool {
	return len(c.errors) > 0
}

// Errors returns the recorded failures
func (c *Collector) Errors() []FieldError {
	return c.errors
}

// Result returns the collected failures as a Result
func (c *Collector) Result() *Result {
	return &Result{Valid: !c.HasErrors(), Errors: c.errors}
}

// Err returns nil or a validation AppError combining every failure
func (c *Collector) Err() error {
	if !c.HasErrors() {
		return nil
	}
	return toError(c.errors)
}

func toError(fieldErrors []FieldError) error {
	if len(fieldErrors) == 1 {
		return errors.ValidationError(fieldErrors[0].Message)
	}
	messages := make([]string, len(fieldErrors))
	for i, e := range fieldErrors {
		messages[i] = e.Message
	}
	return errors.ValidationError(fmt.Sprintf("validation failed: %s", strings.Join(messages, "; ")))
}

func extract(err error) []FieldError {
	validationErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []FieldError{{Field: "unknown", Tag: "error", Message: err.Error()}}
	}

	fieldErrors := make([]FieldError, 0, len(validationErrs))
	for _, fe := range validationErrs {
		fieldErrors = append(fieldErrors, FieldError{
			Field:   namespace(fe),
			Tag:     fe.Tag(),
			Value:   fmt.Sprintf("%v", fe.Value()),
			Message: formatFieldError(fe),
			Param:   fe.Param(),
		})
	}
	return fieldErrors
}

// namespace drops the root struct name: Definition.resources[0].methods -> resources[0].methods
func namespace(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func formatFieldError(fe validator.FieldError) string {
	field := namespace(fe)
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("field '%s' is required", field)
	case "min":
		return fmt.Sprintf("field '%s' must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("field '%s' must be at most %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("field '%s' must be one of: %s", field, fe.Param())
	case "api_context":
		return fmt.Sprintf("field '%s' must start with '/'", field)
	case "http_method":
		return fmt.Sprintf("field '%s' must be a valid HTTP method", field)
	case "regexp":
		return fmt.Sprintf("field '%s' must be a valid regular expression", field)
	case "endpoint_url":
		return fmt.Sprintf("field '%s' must be an http or https URL with a host", field)
	case "hostname_rfc1123":
		return fmt.Sprintf("field '%s' must be a valid host name", field)
	case "excluded_with":
		return fmt.Sprintf("field '%s' cannot be combined with %s", field, fe.Param())
	default:
		return fmt.Sprintf("field '%s' failed validation: %s", field, fe.Tag())
	}
}

func registerDefinitionValidators(v *validator.Validate) {
	v.RegisterValidation("api_context", func(fl validator.FieldLevel) bool {
		return strings.HasPrefix(fl.Field().String(), "/")
	})

	v.RegisterValidation("http_method", func(fl validator.FieldLevel) bool {
		method := strings.ToUpper(strings.TrimSpace(fl.Field().String()))
		for _, valid := range httpMethods {
			if method == valid {
				return true
			}
		}
		return false
	})

	v.RegisterValidation("regexp", func(fl validator.FieldLevel) bool {
		_, err := regexp.Compile(fl.Field().String())
		return err == nil
	})

	v.RegisterValidation("endpoint_url", func(fl validator.FieldLevel) bool {
		u, err := url.Parse(fl.Field().String())
		if err != nil || u.Host == "" {
			return false
		}
		scheme := strings.ToLower(u.Scheme)
		return scheme == "http" || scheme == "https"
	})
}

var globalValidator = New()

// ValidateStruct validates s with the shared validator
func ValidateStruct(s interface{}) error {
	return globalValidator.Struct(s)
}

// ValidateStructResult validates s with the shared validator and returns every failure
func ValidateStructResult(s interface{}) *Result {
	return globalValidator.StructResult(s)
}
