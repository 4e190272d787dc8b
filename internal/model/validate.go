package model

import (
	"errors"
	"math"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("npi", validateNPITag)
	_ = v.RegisterValidation("finite", validateFinite)
	return v
}

// Validate checks v against its `validate` struct tags and converts any
// violation into a StructuralInputError naming the first offending field.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var ves validator.ValidationErrors
	if errors.As(err, &ves) && len(ves) > 0 {
		fe := ves[0]
		return NewStructuralError(fe.Namespace(), "failed %q constraint (value %v)", fe.Tag(), fe.Value())
	}
	return NewStructuralError("input", "%v", err)
}

// ValidNPI reports whether npi is a 10-digit identifier with a valid Luhn
// check digit under the 80840 prefix.
func ValidNPI(npi string) bool {
	if len(npi) != 10 {
		return false
	}
	for _, r := range npi {
		if r < '0' || r > '9' {
			return false
		}
	}
	digits := "80840" + npi
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

func validateNPITag(fl validator.FieldLevel) bool {
	return ValidNPI(strings.TrimSpace(fl.Field().String()))
}

func validateFinite(fl validator.FieldLevel) bool {
	f := fl.Field()
	switch f.Kind() {
	case reflect.Float32, reflect.Float64:
		x := f.Float()
		return !math.IsNaN(x) && !math.IsInf(x, 0)
	default:
		return true
	}
}
