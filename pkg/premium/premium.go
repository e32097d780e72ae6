// Package premium prices a vehicle cover against a company's rate card.
package premium

import (
	"errors"
	"strings"

	"github.com/aldoetobex/clearinsure-backend/pkg/models"
	"github.com/shopspring/decimal"
)

var (
	hundred = decimal.NewFromInt(100)

	addOnPoliticalViolence  = decimal.NewFromInt(5)
	addOnWindscreen         = decimal.NewFromInt(3)
	addOnPassengerLiability = decimal.NewFromInt(8)
	addOnRoadRescue         = decimal.NewFromInt(2)
)

var ErrUnknownCover = errors.New("premium: unknown cover type")

type AddOns struct {
	PoliticalViolence  bool `json:"political_violence"`
	WindscreenCover    bool `json:"windscreen_cover"`
	PassengerLiability bool `json:"passenger_liability"`
	RoadRescue         bool `json:"road_rescue"`
}

type Input struct {
	CoverType    models.CoverType `json:"cover_type"`
	VehicleValue decimal.Decimal  `json:"vehicle_value"`
	UseCategory  string           `json:"use_category"`
	AddOns       AddOns           `json:"add_ons"`
}

type Line struct {
	Name   string          `json:"name"`
	Amount decimal.Decimal `json:"amount"`
}

type Breakdown struct {
	CoverType    models.CoverType `json:"cover_type"`
	VehicleValue decimal.Decimal  `json:"vehicle_value"`
	UseCategory  string           `json:"use_category"`
	AddOns       AddOns           `json:"add_ons"`
	BasePremium  decimal.Decimal  `json:"base_premium"`
	AddOnLines   []Line           `json:"add_on_lines"`
	AddOnsTotal  decimal.Decimal  `json:"add_ons_total"`
	TotalPremium decimal.Decimal  `json:"total_premium"`
}

// Calculate prices in against rate. Each add-on is a percentage of the base
// premium; add-ons are summed, never compounded.
func Calculate(rate models.PremiumRate, in Input) (Breakdown, error) {
	base, err := basePremium(rate, in)
	if err != nil {
		return Breakdown{}, err
	}
	base = base.Round(2)

	out := Breakdown{
		CoverType:    in.CoverType,
		VehicleValue: in.VehicleValue,
		UseCategory:  in.UseCategory,
		AddOns:       in.AddOns,
		BasePremium:  base,
		AddOnsTotal:  decimal.Zero,
	}

	add := func(on bool, name string, pct decimal.Decimal) {
		if !on {
			return
		}
		amt := base.Mul(pct).Div(hundred).Round(2)
		out.AddOnLines = append(out.AddOnLines, Line{Name: name, Amount: amt})
		out.AddOnsTotal = out.AddOnsTotal.Add(amt)
	}
	add(in.AddOns.PoliticalViolence, "political_violence", addOnPoliticalViolence)
	add(in.AddOns.WindscreenCover, "windscreen_cover", addOnWindscreen)
	add(in.AddOns.PassengerLiability, "passenger_liability", addOnPassengerLiability)
	add(in.AddOns.RoadRescue, "road_rescue", addOnRoadRescue)

	out.TotalPremium = base.Add(out.AddOnsTotal)
	return out, nil
}

func basePremium(rate models.PremiumRate, in Input) (decimal.Decimal, error) {
	switch in.CoverType {
	case models.CoverComprehensive:
		return in.VehicleValue.Mul(rate.ComprehensiveDefaultRate).Div(hundred), nil
	case models.CoverThirdPartyOnly:
		return rate.TPOFlatRate, nil
	case models.CoverThirdPartyFireTheft:
		return rate.TPFTBaseRate.Add(in.VehicleValue.Mul(rate.TPFTPercentage).Div(hundred)), nil
	case models.CoverPSV:
		return psvRate(rate, in.UseCategory), nil
	}
	return decimal.Zero, ErrUnknownCover
}

// psvRate picks the flat PSV rate by keyword; first match wins, taxi otherwise.
func psvRate(rate models.PremiumRate, useCategory string) decimal.Decimal {
	cat := strings.ToLower(useCategory)
	switch {
	case strings.Contains(cat, "taxi"):
		return rate.PSVTaxiRate
	case strings.Contains(cat, "14"):
		return rate.PSVMatatu14Rate
	case strings.Contains(cat, "25"):
		return rate.PSVMatatu25Rate
	case strings.Contains(cat, "bus"):
		return rate.PSVBusRate
	}
	return rate.PSVTaxiRate
}

// DefaultRates is the rate card seeded for every company.
func DefaultRates() map[models.CoverType]models.PremiumRate {
	d := decimal.NewFromFloat
	return map[models.CoverType]models.PremiumRate{
		models.CoverComprehensive: {
			CoverType:                models.CoverComprehensive,
			ComprehensiveMinRate:     d(4.0),
			ComprehensiveMaxRate:     d(7.0),
			ComprehensiveDefaultRate: d(5.5),
			Active:                   true,
		},
		models.CoverThirdPartyOnly: {
			CoverType:   models.CoverThirdPartyOnly,
			TPOFlatRate: d(8000),
			Active:      true,
		},
		models.CoverThirdPartyFireTheft: {
			CoverType:      models.CoverThirdPartyFireTheft,
			TPFTBaseRate:   d(8000),
			TPFTPercentage: d(1.5),
			Active:         true,
		},
		models.CoverPSV: {
			CoverType:       models.CoverPSV,
			PSVTaxiRate:     d(25000),
			PSVMatatu14Rate: d(70000),
			PSVMatatu25Rate: d(95000),
			PSVBusRate:      d(135000),
			Active:          true,
		},
	}
}
