// Package val provides struct validation used by the aggregate
// repository before planning a save.
package val

import (
	"reflect"
	"strings"

	"github.com/code19m/errx"
	"github.com/go-playground/validator/v10"
)

// CodeValidationFailed is the errx code carried by validation errors.
const CodeValidationFailed = "VALIDATION_FAILED"

var validate *validator.Validate //nolint: gochecknoglobals // single shared validator instance

func init() { //nolint: gochecknoinits // validator setup has no failure modes
	validate = validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(getTagName)
}

// Struct validates v against its `validate` struct tags and returns an
// errx error listing every failed field, or nil.
func Struct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	errs, ok := err.(validator.ValidationErrors) //nolint: errorlint // validator returns this concrete type
	if !ok {
		return errx.Wrap(err, errx.WithCode(CodeValidationFailed))
	}

	details := make(errx.D, len(errs))
	for _, fe := range errs {
		tag := fe.Tag()
		if fe.Param() != "" {
			tag += "=" + fe.Param()
		}
		details[fe.Namespace()] = tag
	}

	return errx.New(
		"validation failed",
		errx.WithCode(CodeValidationFailed),
		errx.WithDetails(details),
	)
}

// getTagName returns the display name of a struct field, preferring the
// rel column name, then the json name, falling back to the field name.
func getTagName(fld reflect.StructField) string {
	for _, tagName := range []string{"rel", "json"} {
		name := strings.SplitN(fld.Tag.Get(tagName), ",", 2)[0]
		if name != "" && name != "-" && !strings.Contains(name, ":") {
			return name
		}
	}
	return fld.Name
}
