package httputil

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	appErrors "github.com/unclebandit/phishdrill-backend/internal/errors"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ValidateStruct checks struct tags and reports every failing field as a
// ValidationError item.
func ValidateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return appErrors.NewValidation("invalid request", err.Error())
	}

	var items []string
	for _, fe := range fieldErrs {
		field := fe.Field()
		switch fe.Tag() {
		case "required":
			items = append(items, field+" is required")
		case "email":
			items = append(items, field+" must be a valid email")
		case "min":
			items = append(items, field+" must be at least "+fe.Param())
		case "max":
			items = append(items, field+" must be at most "+fe.Param())
		default:
			items = append(items, field+" is invalid")
		}
	}
	return appErrors.NewValidation("invalid request", items...)
}
