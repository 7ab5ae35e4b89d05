// Package validation wraps go-playground/validator with the tags request DTOs use.
package validation

import (
	"encoding/base64"
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	dErrors "warden/pkg/domain-errors"
)

const genericMessage = "invalid request body"

// messages maps a failed tag to its client message. "{f}" is the JSON field
// name and "{p}" the tag parameter.
var messages = map[string]string{
	"required":  "{f} is required",
	"uuid":      "{f} must be a valid uuid",
	"ip":        "{f} must be an IP address",
	"min":       "{f} must be at least {p}",
	"max":       "{f} must be at most {p}",
	"oneof":     "{f} must be one of [{p}]",
	"notblank":  "{f} must not be blank",
	"base64url": "{f} must be unpadded base64url",
	"numeric":   "{f} has an invalid format",
	"len":       "{f} has an invalid format",
}

var defaultValidator = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonName)
	for tag, fn := range map[string]validator.Func{
		"notblank":  notBlank,
		"base64url": rawURLBase64,
	} {
		if err := v.RegisterValidation(tag, fn); err != nil {
			panic(err)
		}
	}
	return v
}

func jsonName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	return name
}

func notBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

func rawURLBase64(fl validator.FieldLevel) bool {
	_, err := base64.RawURLEncoding.DecodeString(fl.Field().String())
	return err == nil
}

// Validate checks req against its validate tags. Failures come back as a
// validation_failed domain error naming every offending field.
func Validate(req any) error {
	if err := defaultValidator.Struct(req); err != nil {
		return dErrors.New(dErrors.CodeValidation, ErrorMessage(err))
	}
	return nil
}

// ErrorMessage renders validator field errors with JSON field names, joined by "; ".
func ErrorMessage(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return genericMessage
	}
	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		if fe.Field() == "" {
			continue
		}
		parts = append(parts, render(fe))
	}
	if len(parts) == 0 {
		return genericMessage
	}
	return strings.Join(parts, "; ")
}

func render(fe validator.FieldError) string {
	tmpl, ok := messages[fe.ActualTag()]
	if !ok {
		tmpl = "{f} is invalid"
	}
	return strings.NewReplacer("{f}", fe.Field(), "{p}", fe.Param()).Replace(tmpl)
}
