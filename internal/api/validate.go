package api

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// requestValidator checks the `validate` tags on ingress DTOs. Field names
// in validation errors are reported by their json tag so callers see the
// wire-level name, not the Go identifier.
var requestValidator = newRequestValidator()

func newRequestValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateRequest runs req through the shared validator and flattens the
// first failure into a single caller-facing message.
func validateRequest(req interface{}) error {
	err := requestValidator.Struct(req)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return err
	}
	first := verrs[0]
	switch first.Tag() {
	case "required":
		return fmt.Errorf("%s is required", first.Field())
	case "oneof":
		return fmt.Errorf("%s must be one of: %s", first.Field(), first.Param())
	default:
		return fmt.Errorf("%s failed %s validation", first.Field(), first.Tag())
	}
}
