package utils

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// MaxMoneyDecimals is the precision of stored amounts
const MaxMoneyDecimals = 2

// MaxMoney is the largest amount whose cents fit in an int64 column
var MaxMoney = decimal.NewFromInt(math.MaxInt64).Shift(-MaxMoneyDecimals)

// Validator wraps go-playground/validator. Field names in errors come from
// json tags and decimal.Decimal fields support the "money" rule.
type Validator struct {
	validate *validator.Validate
}

// FieldError describes the first rule a struct failed
type FieldError struct {
	Field string
	Rule  string
	Param string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Message())
}

// Message renders the failed rule for API consumers
func (e *FieldError) Message() string {
	switch e.Rule {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(e.Param, " ", ", ")
	case "money":
		return fmt.Sprintf("must be greater than zero, at most %s, with at most %d decimal places",
			MaxMoney.String(), MaxMoneyDecimals)
	case "gt":
		return "must be greater than " + e.Param
	case "max":
		return "must be at most " + e.Param + " characters"
	default:
		return "failed rule " + e.Rule
	}
}

// NewValidator creates a validator with the money rule registered
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	// Decimals are validated through their string form.
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.String()
		}
		return nil
	}, decimal.Decimal{})

	_ = v.RegisterValidation("money", func(fl validator.FieldLevel) bool {
		d, err := decimal.NewFromString(fl.Field().String())
		if err != nil {
			return false
		}
		return IsMoney(d)
	})

	return &Validator{validate: v}
}

// Struct validates s and returns a *FieldError for the first failure
func (v *Validator) Struct(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &FieldError{Field: fe.Field(), Rule: fe.Tag(), Param: fe.Param()}
	}
	return err
}

// IsMoney reports whether d is a positive amount with at most two decimals
// that can be stored as int64 cents
func IsMoney(d decimal.Decimal) bool {
	if !d.IsPositive() || d.GreaterThan(MaxMoney) {
		return false
	}
	return d.Equal(d.Truncate(MaxMoneyDecimals))
}

var controlChars = regexp.MustCompile(`[\x00-\x1f\x7f]`)

// SanitizeString removes control characters
func SanitizeString(s string) string {
	return strings.TrimSpace(controlChars.ReplaceAllString(s, ""))
}
