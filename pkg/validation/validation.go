package validation

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/aldoetobex/clearinsure-backend/pkg/models"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	v *validator.Validate

	// Vehicle registration: 3-12 chars, letters, digits and spaces (KAA 123B).
	rePlate = regexp.MustCompile(`^[A-Z0-9 ]{3,12}$`)
	// Staff id: 3-30 chars, alphanumerics plus dash and slash.
	reStaffID = regexp.MustCompile(`^[A-Za-z0-9/-]{3,30}$`)
	rePhone   = regexp.MustCompile(`^\+?[0-9 ]{9,15}$`)
)

func init() {
	v = validator.New()

	// Use JSON tag as the field name in error output
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})

	_ = v.RegisterValidation("regplate", func(fl validator.FieldLevel) bool {
		val := NormalizePlate(fl.Field().String())
		if val == "" { // let omitempty handle empty
			return true
		}
		return rePlate.MatchString(val)
	})

	_ = v.RegisterValidation("staffid", func(fl validator.FieldLevel) bool {
		val := strings.TrimSpace(fl.Field().String())
		if val == "" {
			return true
		}
		return reStaffID.MatchString(val)
	})

	_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		val := strings.TrimSpace(fl.Field().String())
		if val == "" {
			return true
		}
		return rePhone.MatchString(val)
	})

	_ = v.RegisterValidation("covertype", func(fl validator.FieldLevel) bool {
		return models.CoverType(fl.Field().String()).IsValid()
	})

	// Non-negative amount with at most two decimals, as a string.
	_ = v.RegisterValidation("money", func(fl validator.FieldLevel) bool {
		val := strings.TrimSpace(fl.Field().String())
		if val == "" {
			return true
		}
		d, err := decimal.NewFromString(val)
		return err == nil && !d.IsNegative() && d.Exponent() >= -2
	})
}

// NormalizePlate upper-cases and trims a registration number and collapses
// inner whitespace.
func NormalizePlate(s string) string {
	return strings.Join(strings.Fields(strings.ToUpper(s)), " ")
}

// Values converts validated string fields into typed values. A value that
// still fails to convert is recorded against its field instead of panicking.
type Values struct {
	errs map[string][]string
}

func (vs *Values) fail(field, msg string) {
	if vs.errs == nil {
		vs.errs = make(map[string][]string)
	}
	vs.errs[field] = append(vs.errs[field], msg)
}

// Money parses an amount, ignoring surrounding whitespace like the money tag.
func (vs *Values) Money(field, s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		vs.fail(field, "Invalid amount")
		return decimal.Zero
	}
	return d
}

// OptionalMoney is Money with a blank value read as zero.
func (vs *Values) OptionalMoney(field, s string) decimal.Decimal {
	if strings.TrimSpace(s) == "" {
		return decimal.Zero
	}
	return vs.Money(field, s)
}

func (vs *Values) UUID(field, s string) uuid.UUID {
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		vs.fail(field, "Invalid UUID format")
		return uuid.Nil
	}
	return id
}

// Errors returns the conversion failures, or nil when every value parsed.
func (vs *Values) Errors() map[string][]string {
	return vs.errs
}

// Validate returns map[field][]messages (Laravel-like)
func Validate(s any) (map[string][]string, error) {
	if err := v.Struct(s); err != nil {
		ve, ok := err.(validator.ValidationErrors)
		if !ok {
			return nil, err
		}
		out := make(map[string][]string)
		for _, e := range ve {
			field := e.Field() // already mapped from json tag

			switch e.Tag() {
			case "required", "required_if":
				out[field] = append(out[field], "This field is required")

			case "email":
				out[field] = append(out[field], "Invalid email format")

			case "min", "gte":
				if e.Kind() == reflect.String {
					out[field] = append(out[field], fmt.Sprintf("Must be at least %s characters", e.Param()))
				} else {
					out[field] = append(out[field], fmt.Sprintf("Must be at least %s", e.Param()))
				}

			case "max", "lte":
				if e.Kind() == reflect.String {
					out[field] = append(out[field], fmt.Sprintf("Must be at most %s characters", e.Param()))
				} else {
					out[field] = append(out[field], fmt.Sprintf("Must be at most %s", e.Param()))
				}

			case "gt":
				out[field] = append(out[field], fmt.Sprintf("Must be greater than %s", e.Param()))

			case "oneof":
				out[field] = append(out[field], "Value is not allowed")

			case "uuid", "uuid4":
				out[field] = append(out[field], "Invalid UUID format")

			case "datetime":
				out[field] = append(out[field], fmt.Sprintf("Invalid date, expected %s", e.Param()))

			case "regplate":
				out[field] = append(out[field], "Invalid registration number")

			case "staffid":
				out[field] = append(out[field], "Invalid staff ID format")

			case "phone":
				out[field] = append(out[field], "Invalid phone number")

			case "covertype":
				out[field] = append(out[field], "Unknown cover type")

			case "money":
				out[field] = append(out[field], "Invalid amount")

			default:
				// Fallback to original error text if we missed a tag
				out[field] = append(out[field], e.Error())
			}
		}
		return out, nil
	}
	return nil, nil
}
