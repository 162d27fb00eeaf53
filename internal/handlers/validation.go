package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Global validator instance (reused across all handlers)
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// report fields by their JSON names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// patchSchema describes the properties a PATCH body may carry
type patchSchema struct {
	patchable map[string]bool
	// nonNull properties reject an explicit null
	nonNull map[string]bool
	// validateRaw adds property specific checks on the undecoded value
	validateRaw func(property string, raw json.RawMessage) []string
}

// decodePatch reads a PATCH body into target and returns every problem found
// rather than stopping at the first.
func decodePatch(body io.Reader, schema patchSchema, target any) ([]string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return []string{"request body must be a JSON object"}, nil
	}

	properties := make([]string, 0, len(raw))
	for p := range raw {
		properties = append(properties, p)
	}
	sort.Strings(properties)

	var problems []string
	for _, p := range properties {
		if !schema.patchable[p] {
			problems = append(problems, fmt.Sprintf("%s is not a patchable property", p))
			continue
		}
		if schema.nonNull[p] && bytes.Equal(bytes.TrimSpace(raw[p]), []byte("null")) {
			problems = append(problems, fmt.Sprintf("%s must have a value", p))
			continue
		}
		if schema.validateRaw != nil {
			problems = append(problems, schema.validateRaw(p, raw[p])...)
		}
	}
	if len(problems) > 0 {
		return problems, nil
	}

	if err := json.Unmarshal(data, target); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return []string{formatTypeError(typeErr)}, nil
		}
		return []string{"request body must be a JSON object"}, nil
	}

	return ValidateRequest(target), nil
}

// ValidateRequest validates a request struct using go-playground/validator and
// returns one message per failing field.
func ValidateRequest(req any) []string {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return []string{err.Error()}
	}
	t := reflect.TypeOf(req)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	messages := make([]string, 0, len(ve))
	for _, fe := range ve {
		messages = append(messages, fmt.Sprintf("%s %s", fe.Field(), formatValidationError(fe, t)))
	}
	return messages
}

// formatValidationError converts a validator FieldError to a user-friendly message
func formatValidationError(fe validator.FieldError, t reflect.Type) string {
	switch fe.Tag() {
	case "required":
		return "must have a value"
	case "required_with":
		return fmt.Sprintf("must be patched together with %s", jsonName(t, fe.Param()))
	case "min":
		if fe.Kind() == reflect.String {
			return "must have a value"
		}
		return fmt.Sprintf("must be %s or greater", fe.Param())
	case "max":
		return fmt.Sprintf("must be %s or less", fe.Param())
	default:
		return fmt.Sprintf("failed validation: %s", fe.Tag())
	}
}

func formatTypeError(e *json.UnmarshalTypeError) string {
	field := e.Field
	if field == "" {
		field = "request body"
	}
	switch e.Type.Kind() {
	case reflect.Slice:
		return fmt.Sprintf("%s must be an array", field)
	case reflect.String:
		return fmt.Sprintf("%s must be a string", field)
	case reflect.Int, reflect.Int32, reflect.Int64:
		return fmt.Sprintf("%s must be a number", field)
	default:
		return fmt.Sprintf("%s has an invalid value", field)
	}
}

// jsonName returns the JSON name of the named struct field of t
func jsonName(t reflect.Type, field string) string {
	if t.Kind() == reflect.Struct {
		if f, ok := t.FieldByName(field); ok {
			if name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]; name != "" {
				return name
			}
		}
	}
	return field
}
