// Package monitoring lets customers watch policies they do not own. A watch
// grants a read-only summary; it never transfers ownership.
package monitoring

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aldoetobex/clearinsure-backend/pkg/database"
	apperr "github.com/aldoetobex/clearinsure-backend/pkg/errors"
	"github.com/aldoetobex/clearinsure-backend/pkg/models"
	"github.com/aldoetobex/clearinsure-backend/pkg/validation"
)

type Service struct {
	db  *gorm.DB
	now func() time.Time
}

func NewService(db *gorm.DB) *Service { return &Service{db: db, now: time.Now} }

// Summary is the view a monitoring customer gets; holder details are left out.
type Summary struct {
	PolicyID           uuid.UUID           `json:"policy_id"`
	PolicyNumber       string              `json:"policy_number"`
	PolicyType         models.CoverType    `json:"policy_type"`
	RegistrationNumber string              `json:"registration_number"`
	MakeModel          string              `json:"make_model"`
	CompanyName        string              `json:"company_name"`
	EffectiveDate      time.Time           `json:"effective_date"`
	ExpiryDate         time.Time           `json:"expiry_date"`
	Status             models.PolicyStatus `json:"status"`
	Monitoring         bool                `json:"monitoring"`
	MonitoredSince     *time.Time          `json:"monitored_since,omitempty"`
}

type summaryRow struct {
	ID                 uuid.UUID
	PolicyNumber       string
	PolicyType         models.CoverType
	RegistrationNumber string
	MakeModel          string
	EffectiveDate      time.Time
	ExpiryDate         time.Time
	Status             models.PolicyStatus
	CompanyName        string
	MonitoredSince     *time.Time
}

func (s *Service) toSummary(r summaryRow, now time.Time) Summary {
	p := models.Policy{ExpiryDate: r.ExpiryDate, Status: r.Status}
	return Summary{
		PolicyID: r.ID, PolicyNumber: r.PolicyNumber, PolicyType: r.PolicyType,
		RegistrationNumber: r.RegistrationNumber, MakeModel: r.MakeModel, CompanyName: r.CompanyName,
		EffectiveDate: r.EffectiveDate, ExpiryDate: r.ExpiryDate, Status: p.EffectiveStatus(now),
		Monitoring: r.MonitoredSince != nil, MonitoredSince: r.MonitoredSince,
	}
}

func (s *Service) base(customerID uuid.UUID) *gorm.DB {
	return s.db.Table("policies").
		Select(`policies.id, policies.policy_number, policies.policy_type, policies.registration_number,
			policies.make_model, policies.effective_date, policies.expiry_date, policies.status,
			companies.name AS company_name, cmp.created_at AS monitored_since`).
		Joins("JOIN companies ON companies.id = policies.company_id").
		Joins("LEFT JOIN customer_monitored_policies cmp ON cmp.policy_id = policies.id AND cmp.customer_id = ?", customerID)
}

// Search finds policies by registration number, newest first.
func (s *Service) Search(ctx context.Context, customerID uuid.UUID, registration string) ([]Summary, error) {
	reg := validation.NormalizePlate(registration)
	if reg == "" {
		return nil, apperr.New(apperr.CodeValidation, "registration number is required").
			WithDetails(map[string][]string{"registration_number": {"This field is required"}})
	}
	var rows []summaryRow
	if err := s.base(customerID).WithContext(ctx).
		Where("policies.registration_number = ?", reg).
		Order("policies.created_at DESC").Limit(20).
		Scan(&rows).Error; err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "search policies")
	}
	now := s.now()
	out := make([]Summary, 0, len(rows))
	for _, r := range rows {
		out = append(out, s.toSummary(r, now))
	}
	return out, nil
}

// Monitor starts watching a policy. Watching twice is a conflict.
func (s *Service) Monitor(ctx context.Context, customerID, policyID uuid.UUID) (*Summary, error) {
	err := database.WithTx(ctx, s.db, func(tx *gorm.DB) error {
		var p models.Policy
		if err := tx.Select("id").First(&p, "id = ?", policyID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.New(apperr.CodeNotFound, "policy not found")
			}
			return apperr.Wrap(apperr.CodeInternal, err, "load policy")
		}
		var n int64
		if err := tx.Model(&models.CustomerMonitoredPolicy{}).
			Where("customer_id = ? AND policy_id = ?", customerID, policyID).
			Count(&n).Error; err != nil {
			return apperr.Wrap(apperr.CodeInternal, err, "check monitoring")
		}
		if n > 0 {
			return alreadyMonitored()
		}
		if err := tx.Create(&models.CustomerMonitoredPolicy{CustomerID: customerID, PolicyID: policyID}).Error; err != nil {
			if database.IsUniqueViolation(err, "") {
				return alreadyMonitored()
			}
			return apperr.Wrap(apperr.CodeInternal, err, "monitor policy")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.one(ctx, customerID, policyID)
}

func alreadyMonitored() error {
	return apperr.New(apperr.CodeConflict, "you are already monitoring this policy")
}

// Unmonitor stops watching a policy.
func (s *Service) Unmonitor(ctx context.Context, customerID, policyID uuid.UUID) error {
	res := s.db.WithContext(ctx).
		Where("customer_id = ? AND policy_id = ?", customerID, policyID).
		Delete(&models.CustomerMonitoredPolicy{})
	if res.Error != nil {
		return apperr.Wrap(apperr.CodeInternal, res.Error, "unmonitor policy")
	}
	if res.RowsAffected == 0 {
		return apperr.New(apperr.CodeNotFound, "policy is not monitored")
	}
	return nil
}

// List returns every watched policy with its current derived status.
func (s *Service) List(ctx context.Context, customerID uuid.UUID) ([]Summary, error) {
	var rows []summaryRow
	if err := s.base(customerID).WithContext(ctx).
		Where("cmp.id IS NOT NULL").
		Order("cmp.created_at DESC").
		Scan(&rows).Error; err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "list monitored policies")
	}
	now := s.now()
	out := make([]Summary, 0, len(rows))
	for _, r := range rows {
		out = append(out, s.toSummary(r, now))
	}
	return out, nil
}

func (s *Service) one(ctx context.Context, customerID, policyID uuid.UUID) (*Summary, error) {
	var row summaryRow
	if err := s.base(customerID).WithContext(ctx).
		Where("policies.id = ?", policyID).
		Scan(&row).Error; err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "load policy")
	}
	out := s.toSummary(row, s.now())
	return &out, nil
}
