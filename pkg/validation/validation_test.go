package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Email    string `json:"email" validate:"required,email"`
	Plate    string `json:"registration_number" validate:"required,regplate"`
	StaffID  string `json:"staff_id" validate:"omitempty,staffid"`
	Cover    string `json:"cover_type" validate:"required,covertype"`
	Password string `json:"password" validate:"required,min=8"`
}

func TestValidateUsesJSONNames(t *testing.T) {
	errs, err := Validate(sample{Email: "nope", Plate: "K@A", StaffID: "x", Cover: "Motorcycle", Password: "short"})
	require.NoError(t, err)

	assert.Equal(t, []string{"Invalid email format"}, errs["email"])
	assert.Equal(t, []string{"Invalid registration number"}, errs["registration_number"])
	assert.Equal(t, []string{"Invalid staff ID format"}, errs["staff_id"])
	assert.Equal(t, []string{"Unknown cover type"}, errs["cover_type"])
	assert.Equal(t, []string{"Must be at least 8 characters"}, errs["password"])
}

func TestValidatePasses(t *testing.T) {
	errs, err := Validate(sample{Email: "a@b.co", Plate: " kaa 123b ", Cover: "PSV", Password: "longenough"})
	require.NoError(t, err)
	assert.Nil(t, errs)
}

func TestNormalizePlate(t *testing.T) {
	assert.Equal(t, "KAA 123B", NormalizePlate("  kaa   123b "))
}

func TestMoneyTag(t *testing.T) {
	type amount struct {
		Value string `json:"value" validate:"required,money"`
	}
	for _, ok := range []string{"0", "1500", "1500.5", "1500.50"} {
		errs, _ := Validate(amount{Value: ok})
		assert.Nil(t, errs, ok)
	}
	for _, bad := range []string{"-1", "12.345", "abc"} {
		errs, _ := Validate(amount{Value: bad})
		assert.Equal(t, []string{"Invalid amount"}, errs["value"], bad)
	}
}

func TestValuesConvertPaddedInput(t *testing.T) {
	var v Values
	assert.Equal(t, "12000", v.Money("premium_amount", " 12000 ").String())
	assert.True(t, v.OptionalMoney("excess", "  ").IsZero())
	id := v.UUID("policy_id", " 6f1c2a9e-4b7d-4c1e-9a51-1d2f3e4a5b6c")
	assert.Equal(t, "6f1c2a9e-4b7d-4c1e-9a51-1d2f3e4a5b6c", id.String())
	assert.Nil(t, v.Errors())
}

func TestValuesCollectFailures(t *testing.T) {
	var v Values
	assert.True(t, v.Money("premium_amount", "12,000").IsZero())
	v.UUID("quote_id", "not-a-uuid")
	assert.Equal(t, map[string][]string{
		"premium_amount": {"Invalid amount"},
		"quote_id":       {"Invalid UUID format"},
	}, v.Errors())
}
