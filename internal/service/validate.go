package service

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{3,32}$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	mustRegister(v, "username", func(fl validator.FieldLevel) bool {
		return usernamePattern.MatchString(fl.Field().String())
	})
	return v
}

// mustRegister panics when a custom tag cannot be registered.
func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register validation %q: %v", tag, err))
	}
}

type credentials struct {
	Username string `validate:"username"`
	Password string `validate:"min=8,max=72"`
}

// normalizeUsername makes usernames case-insensitive.
func normalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// check runs struct validation and reports failures as ErrInvalidInput.
func check(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]string, len(verrs))
		for i, fe := range verrs {
			fields[i] = fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag())
		}
		return fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(fields, "; "))
	}
	return fmt.Errorf("%w: %w", ErrInvalidInput, err)
}
