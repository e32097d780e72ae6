package claims

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/aldoetobex/clearinsure-backend/pkg/models"
)

// FraudAssessment is what a scorer reports for one claim.
type FraudAssessment struct {
	Score  int
	Risk   models.FraudRisk
	Report string
}

// FraudScorer rates a claim that is under review.
type FraudScorer interface {
	Score(ctx context.Context, claim *models.Claim) (FraudAssessment, error)
}

// RiskFor tiers a score: below 20 is Low, below 35 Medium, otherwise High.
func RiskFor(score int) models.FraudRisk {
	switch {
	case score < 20:
		return models.FraudRiskLow
	case score < 35:
		return models.FraudRiskMedium
	}
	return models.FraudRiskHigh
}

// PlaceholderScorer draws a uniform score in [Min, Max]. It performs no
// analysis and says so in the report.
type PlaceholderScorer struct {
	Min, Max int
	rand     func(n int) int
}

func NewPlaceholderScorer(min, max int) *PlaceholderScorer {
	if max < min {
		min, max = max, min
	}
	return &PlaceholderScorer{Min: min, Max: max, rand: rand.Intn}
}

func (p *PlaceholderScorer) Score(_ context.Context, c *models.Claim) (FraudAssessment, error) {
	score := p.Min + p.rand(p.Max-p.Min+1)
	risk := RiskFor(score)
	report := fmt.Sprintf(
		"Placeholder fraud check for claim %s (no analysis performed).\nScore: %d/100\nRisk level: %s\n"+
			"Review the accident narrative, police abstract and repair estimate manually before deciding.",
		c.ClaimNumber, score, risk)
	return FraudAssessment{Score: score, Risk: risk, Report: report}, nil
}
