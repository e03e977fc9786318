package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"checkout-service/internal/payment"

	"github.com/go-playground/validator/v10"
)

var structValidator = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// report fields by their JSON names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	if err := v.RegisterValidation("card_expiry", func(fl validator.FieldLevel) bool {
		return payment.ValidExpiry(fl.Field().String())
	}); err != nil {
		panic(err)
	}
	return v
}

// validateStruct runs the struct's validate tags and reports the first failing field as a ValidationError of kind
func validateStruct(s interface{}, kind error) error {
	err := structValidator.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return fmt.Errorf("%v: %w", err, kind)
	}
	fe := fieldErrs[0]
	return &ValidationError{Field: fe.Field(), Reason: reasonFor(fe), kind: kind}
}

func reasonFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "credit_card":
		return "is not a valid card number"
	case "card_expiry":
		return "must be MM/YY or MM/YYYY"
	case "number":
		return "must contain only digits"
	case "min":
		return "must be at least " + fe.Param() + " characters"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	default:
		return "failed " + fe.Tag()
	}
}
