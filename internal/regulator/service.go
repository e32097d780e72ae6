// Package regulator serves the read-only oversight views: every company's
// policies and claims with holder details masked, and per-company totals.
package regulator

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/aldoetobex/clearinsure-backend/internal/policies"
	apperr "github.com/aldoetobex/clearinsure-backend/pkg/errors"
	"github.com/aldoetobex/clearinsure-backend/pkg/models"
	"github.com/aldoetobex/clearinsure-backend/pkg/sanitize"
	"github.com/aldoetobex/clearinsure-backend/pkg/utils"
)

const descriptionLimit = 280

type Service struct {
	db  *gorm.DB
	now func() time.Time
}

func NewService(db *gorm.DB) *Service { return &Service{db: db, now: time.Now} }

func redact(s string) string { return sanitize.RedactNationalIDs(sanitize.RedactPII(s)) }

/* =============================== Policies =============================== */

// Policy is a policy with the holder's contact and identity data masked.
type Policy struct {
	ID                 uuid.UUID           `json:"id"`
	PolicyNumber       string              `json:"policy_number"`
	PolicyType         models.CoverType    `json:"policy_type"`
	CompanyID          uuid.UUID           `json:"company_id"`
	CompanyName        string              `json:"company_name"`
	InsuredName        string              `json:"insured_name"`
	NationalID         string              `json:"national_id"`
	PhoneNumber        string              `json:"phone_number"`
	EmailAddress       string              `json:"email_address"`
	RegistrationNumber string              `json:"registration_number"`
	MakeModel          string              `json:"make_model"`
	EffectiveDate      time.Time           `json:"effective_date"`
	ExpiryDate         time.Time           `json:"expiry_date"`
	PremiumAmount      decimal.Decimal     `json:"premium_amount"`
	SumInsured         decimal.Decimal     `json:"sum_insured"`
	Status             models.PolicyStatus `json:"status"`
	CancellationReason string              `json:"cancellation_reason,omitempty"`
}

func toPolicy(p *models.Policy, now time.Time) Policy {
	out := Policy{
		ID: p.ID, PolicyNumber: p.PolicyNumber, PolicyType: p.PolicyType, CompanyID: p.CompanyID,
		InsuredName: p.InsuredName, NationalID: sanitize.MaskID(p.NationalID),
		PhoneNumber: redact(p.PhoneNumber), EmailAddress: sanitize.MaskEmail(p.EmailAddress),
		RegistrationNumber: p.RegistrationNumber, MakeModel: p.MakeModel,
		EffectiveDate: p.EffectiveDate, ExpiryDate: p.ExpiryDate,
		PremiumAmount: p.PremiumAmount, SumInsured: p.SumInsured,
		Status: p.EffectiveStatus(now), CancellationReason: redact(p.CancellationReason),
	}
	if p.Company != nil {
		out.CompanyName = p.Company.Name
	}
	return out
}

// PolicyFilter narrows the policy listing; zero values match everything.
type PolicyFilter struct {
	CompanyID *uuid.UUID
	Status    models.PolicyStatus
	Page      int
	Size      int
}

func (s *Service) ListPolicies(ctx context.Context, f PolicyFilter) ([]Policy, int64, error) {
	now := s.now()
	scope := func(db *gorm.DB) *gorm.DB {
		if f.CompanyID != nil {
			db = db.Where("policies.company_id = ?", *f.CompanyID)
		}
		return db.Scopes(policies.StatusScope(f.Status, now))
	}

	var total int64
	if err := s.db.WithContext(ctx).Model(&models.Policy{}).Scopes(scope).Count(&total).Error; err != nil {
		return nil, 0, apperr.Wrap(apperr.CodeInternal, err, "count policies")
	}
	var rows []models.Policy
	if err := s.db.WithContext(ctx).Preload("Company").Scopes(scope, utils.Paginate(f.Page, f.Size)).
		Order("policies.created_at DESC").Find(&rows).Error; err != nil {
		return nil, 0, apperr.Wrap(apperr.CodeInternal, err, "list policies")
	}
	out := make([]Policy, 0, len(rows))
	for i := range rows {
		out = append(out, toPolicy(&rows[i], now))
	}
	return out, total, nil
}

func (s *Service) GetPolicy(ctx context.Context, id uuid.UUID) (*Policy, error) {
	var p models.Policy
	err := s.db.WithContext(ctx).Preload("Company").First(&p, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.New(apperr.CodeNotFound, "policy not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "load policy")
	}
	out := toPolicy(&p, s.now())
	return &out, nil
}

/* ================================ Claims ================================ */

// Claim is the oversight view of a claim. Free text is redacted and cut.
type Claim struct {
	ID                  uuid.UUID             `json:"id"`
	ClaimNumber         string                `json:"claim_number"`
	PolicyNumber        string                `json:"policy_number"`
	CompanyID           uuid.UUID             `json:"company_id"`
	AccidentDate        time.Time             `json:"accident_date"`
	AccidentLocation    string                `json:"accident_location"`
	AccidentDescription string                `json:"accident_description"`
	EstimatedLoss       decimal.Decimal       `json:"estimated_loss"`
	Status              models.ClaimStatus    `json:"status"`
	FraudCheckPerformed bool                  `json:"fraud_check_performed"`
	FraudScore          *int                  `json:"fraud_score,omitempty"`
	FraudRisk           models.FraudRisk      `json:"fraud_risk,omitempty"`
	Decision            *models.ClaimDecision `json:"decision,omitempty"`
	CreatedAt           time.Time             `json:"created_at"`
}

func toClaim(c *models.Claim) Claim {
	out := Claim{
		ID: c.ID, ClaimNumber: c.ClaimNumber, CompanyID: c.CompanyID,
		AccidentDate: c.AccidentDate, AccidentLocation: c.AccidentLocation,
		AccidentDescription: sanitize.Summary(redact(c.AccidentDescription), descriptionLimit),
		EstimatedLoss:       c.EstimatedLoss, Status: c.Status,
		FraudCheckPerformed: c.FraudCheckPerformed, FraudScore: c.FraudScore, FraudRisk: c.FraudRisk,
		Decision: c.Decision(), CreatedAt: c.CreatedAt,
	}
	if d := out.Decision; d != nil {
		d.Reason = redact(d.Reason)
	}
	if c.Policy != nil {
		out.PolicyNumber = c.Policy.PolicyNumber
	}
	return out
}

type ClaimFilter struct {
	CompanyID *uuid.UUID
	Status    models.ClaimStatus
	Page      int
	Size      int
}

func (s *Service) ListClaims(ctx context.Context, f ClaimFilter) ([]Claim, int64, error) {
	scope := func(db *gorm.DB) *gorm.DB {
		if f.CompanyID != nil {
			db = db.Where("company_id = ?", *f.CompanyID)
		}
		if f.Status != "" {
			db = db.Where("status = ?", f.Status)
		}
		return db
	}

	var total int64
	if err := s.db.WithContext(ctx).Model(&models.Claim{}).Scopes(scope).Count(&total).Error; err != nil {
		return nil, 0, apperr.Wrap(apperr.CodeInternal, err, "count claims")
	}
	var rows []models.Claim
	if err := s.db.WithContext(ctx).
		Preload("Policy", func(db *gorm.DB) *gorm.DB { return db.Select("id", "policy_number") }).
		Scopes(scope, utils.Paginate(f.Page, f.Size)).
		Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, 0, apperr.Wrap(apperr.CodeInternal, err, "list claims")
	}
	out := make([]Claim, 0, len(rows))
	for i := range rows {
		out = append(out, toClaim(&rows[i]))
	}
	return out, total, nil
}

/* =============================== Summary ================================ */

// CompanySummary totals one company's book.
type CompanySummary struct {
	CompanyID         uuid.UUID       `json:"company_id"`
	CompanyName       string          `json:"company_name"`
	Active            bool            `json:"active"`
	Insurers          int64           `json:"insurers"`
	ActivePolicies    int64           `json:"active_policies"`
	ExpiredPolicies   int64           `json:"expired_policies"`
	CancelledPolicies int64           `json:"cancelled_policies"`
	ActivePremium     decimal.Decimal `json:"active_premium"`
	OpenClaims        int64           `json:"open_claims"`
	ApprovedClaims    int64           `json:"approved_claims"`
	RejectedClaims    int64           `json:"rejected_claims"`
	HighRiskClaims    int64           `json:"high_risk_claims"`
}

// Summary returns one row per company, ordered by name.
func (s *Service) Summary(ctx context.Context) ([]CompanySummary, error) {
	db := s.db.WithContext(ctx)
	today := models.DateOf(s.now())

	var companies []models.Company
	if err := db.Order("name").Find(&companies).Error; err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "list companies")
	}
	out := make([]CompanySummary, 0, len(companies))
	index := make(map[uuid.UUID]int, len(companies))
	for i, c := range companies {
		out = append(out, CompanySummary{CompanyID: c.ID, CompanyName: c.Name, Active: c.Active, ActivePremium: decimal.Zero})
		index[c.ID] = i
	}

	var insurers []struct {
		CompanyID uuid.UUID
		N         int64
	}
	if err := db.Model(&models.Insurer{}).Select("company_id, COUNT(*) AS n").
		Where("company_id IS NOT NULL").Group("company_id").Scan(&insurers).Error; err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "count insurers")
	}
	for _, r := range insurers {
		if i, ok := index[r.CompanyID]; ok {
			out[i].Insurers = r.N
		}
	}

	var pols []struct {
		CompanyID     uuid.UUID
		Status        models.PolicyStatus
		ExpiryDate    time.Time
		PremiumAmount decimal.Decimal
	}
	if err := db.Model(&models.Policy{}).
		Select("company_id, status, expiry_date, premium_amount").Scan(&pols).Error; err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "load policies")
	}
	for _, p := range pols {
		i, ok := index[p.CompanyID]
		if !ok {
			continue
		}
		switch {
		case p.Status == models.PolicyCancelled:
			out[i].CancelledPolicies++
		case p.ExpiryDate.Before(today):
			out[i].ExpiredPolicies++
		default:
			out[i].ActivePolicies++
			out[i].ActivePremium = out[i].ActivePremium.Add(p.PremiumAmount)
		}
	}

	var claims []struct {
		CompanyID uuid.UUID
		Status    models.ClaimStatus
		FraudRisk models.FraudRisk
		N         int64
	}
	if err := db.Model(&models.Claim{}).Select("company_id, status, fraud_risk, COUNT(*) AS n").
		Group("company_id, status, fraud_risk").Scan(&claims).Error; err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "count claims")
	}
	for _, c := range claims {
		i, ok := index[c.CompanyID]
		if !ok {
			continue
		}
		switch c.Status {
		case models.ClaimApproved:
			out[i].ApprovedClaims += c.N
		case models.ClaimRejected:
			out[i].RejectedClaims += c.N
		default:
			out[i].OpenClaims += c.N
		}
		if c.FraudRisk == models.FraudRiskHigh {
			out[i].HighRiskClaims += c.N
		}
	}
	return out, nil
}
