// Package validation wraps go-playground/validator for request and command
// input checks, and converts failures into apperr validation errors.
package validation

import (
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/rbright/rehearse/internal/apperr"
)

// Validator implements echo.Validator using go-playground/validator.
type Validator struct {
	v *validator.Validate
}

// New creates a Validator with the custom tags used across rehearse:
//
//	ext=.pdf .docx   file path must end in one of the listed extensions (case-insensitive)
//	hhmm             24h clock time HH:MM
func New() *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(fieldName)
	_ = v.RegisterValidation("ext", hasExtension)
	_ = v.RegisterValidation("hhmm", isClockTime)
	return &Validator{v: v}
}

// Validate performs struct validation.
func (cv *Validator) Validate(i any) error {
	return cv.v.Struct(i)
}

// Check validates i and converts the first failure into an apperr validation
// error. messages maps "field.tag" (json field name) to user-visible text.
func (cv *Validator) Check(i any, messages map[string]string) error {
	err := cv.v.Struct(i)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return apperr.Validation(err.Error())
	}
	first := fieldErrs[0]
	key := first.Field() + "." + first.Tag()
	if msg, ok := messages[key]; ok {
		return apperr.Validation(msg).WithDetail("field", first.Field())
	}
	if msg, ok := messages[first.Field()]; ok {
		return apperr.Validation(msg).WithDetail("field", first.Field())
	}
	return apperr.Validation(describe(first)).WithDetail("field", first.Field())
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), strings.ReplaceAll(fe.Param(), " ", ", "))
	case "ext":
		return fmt.Sprintf("%s must be a %s file", fe.Field(), strings.ReplaceAll(fe.Param(), " ", " or "))
	default:
		return fmt.Sprintf("%s is invalid (%s)", fe.Field(), fe.Tag())
	}
}

func fieldName(field reflect.StructField) string {
	name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
	if name == "" || name == "-" {
		return field.Name
	}
	return name
}

func hasExtension(fl validator.FieldLevel) bool {
	value := strings.TrimSpace(fl.Field().String())
	if value == "" {
		return true
	}
	ext := strings.ToLower(filepath.Ext(value))
	for _, allowed := range strings.Fields(fl.Param()) {
		if ext == strings.ToLower(allowed) {
			return true
		}
	}
	return false
}

func isClockTime(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}
	if len(value) != 5 || value[2] != ':' {
		return false
	}
	hh := int(value[0]-'0')*10 + int(value[1]-'0')
	mm := int(value[3]-'0')*10 + int(value[4]-'0')
	for _, idx := range []int{0, 1, 3, 4} {
		if value[idx] < '0' || value[idx] > '9' {
			return false
		}
	}
	return hh < 24 && mm < 60
}
