package premium

import (
	"testing"

	"github.com/aldoetobex/clearinsure-backend/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestComprehensiveUsesDefaultRate(t *testing.T) {
	rate := DefaultRates()[models.CoverComprehensive]

	out, err := Calculate(rate, Input{CoverType: models.CoverComprehensive, VehicleValue: dec("1000000")})
	require.NoError(t, err)
	assert.True(t, out.BasePremium.Equal(dec("55000")), "base %s", out.BasePremium)
	assert.True(t, out.TotalPremium.Equal(dec("55000")))
	assert.Empty(t, out.AddOnLines)
}

func TestThirdPartyOnlyIsFlat(t *testing.T) {
	rate := DefaultRates()[models.CoverThirdPartyOnly]

	out, err := Calculate(rate, Input{CoverType: models.CoverThirdPartyOnly, VehicleValue: dec("3500000")})
	require.NoError(t, err)
	assert.True(t, out.BasePremium.Equal(dec("8000")))
}

func TestFireAndTheftAddsPercentage(t *testing.T) {
	rate := DefaultRates()[models.CoverThirdPartyFireTheft]

	out, err := Calculate(rate, Input{CoverType: models.CoverThirdPartyFireTheft, VehicleValue: dec("800000")})
	require.NoError(t, err)
	// 8000 + 800000 * 1.5%
	assert.True(t, out.BasePremium.Equal(dec("20000")), "base %s", out.BasePremium)
}

func TestPSVKeywordMatch(t *testing.T) {
	rate := DefaultRates()[models.CoverPSV]
	cases := map[string]string{
		"Taxi":               "25000",
		"14-seater matatu":   "70000",
		"Matatu 25 seater":   "95000",
		"School BUS":         "135000",
		"taxi with 14 seats": "25000",
		"tuk tuk":            "25000",
		"":                   "25000",
	}
	for cat, want := range cases {
		out, err := Calculate(rate, Input{CoverType: models.CoverPSV, UseCategory: cat})
		require.NoError(t, err)
		assert.True(t, out.BasePremium.Equal(dec(want)), "category %q: got %s want %s", cat, out.BasePremium, want)
	}
}

func TestAddOnsArePercentagesOfBaseSummed(t *testing.T) {
	rate := DefaultRates()[models.CoverThirdPartyOnly]

	out, err := Calculate(rate, Input{
		CoverType: models.CoverThirdPartyOnly,
		AddOns: AddOns{
			PoliticalViolence:  true,
			WindscreenCover:    true,
			PassengerLiability: true,
			RoadRescue:         true,
		},
	})
	require.NoError(t, err)
	// 8000 * (5+3+8+2)% = 1440, not compounded
	assert.True(t, out.AddOnsTotal.Equal(dec("1440")), "add-ons %s", out.AddOnsTotal)
	assert.True(t, out.TotalPremium.Equal(dec("9440")))
	assert.Len(t, out.AddOnLines, 4)
}

func TestUnknownCover(t *testing.T) {
	_, err := Calculate(models.PremiumRate{}, Input{CoverType: "Motorcycle"})
	assert.ErrorIs(t, err, ErrUnknownCover)
}
