// Package validation wraps go-playground/validator/v10 behind a
// thread-safe singleton, grounded on the teacher's internal/validation
// package — trimmed to the one entry point the API layer needs
// (ValidateStruct) and translated into Sentry Fleet's apierr.Error shape
// instead of the teacher's own APIError type.
package validation

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/sentryfleet/sentryfleet/internal/apierr"
)

var (
	instance *validator.Validate
	once     sync.Once
)

func get() *validator.Validate {
	once.Do(func() {
		instance = validator.New(validator.WithRequiredStructEnabled())
	})
	return instance
}

var templates = map[string]string{
	"required": "%s is required",
	"email":    "%s must be a valid email address",
	"url":      "%s must be a valid URL",
	"oneof":    "%s must be one of: %s",
	"gte":      "%s must be greater than or equal to %s",
	"lte":      "%s must be less than or equal to %s",
	"gt":       "%s must be greater than %s",
	"lt":       "%s must be less than %s",
	"min":      "%s must be at least %s",
	"max":      "%s must be at most %s",
}

func translate(fe validator.FieldError) string {
	field, tag, param := fe.Field(), fe.Tag(), fe.Param()
	if template, ok := templates[tag]; ok {
		if strings.Contains(template, "%s must be") && param != "" && strings.Count(template, "%s") == 2 {
			return fmt.Sprintf(template, field, param)
		}
		return fmt.Sprintf(template, field)
	}
	return fmt.Sprintf("%s failed validation %q", field, tag)
}

// ValidateStruct validates s and returns an *apierr.Error with
// apierr.KindInvalidInput describing every failing field, or nil.
func ValidateStruct(s any) error {
	err := get().Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apierr.Wrap(apierr.KindInvalidInput, "request validation failed", err)
	}

	messages := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		messages = append(messages, translate(fe))
	}
	return apierr.New(apierr.KindInvalidInput, strings.Join(messages, "; "))
}
