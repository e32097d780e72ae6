package requests

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/aldoetobex/clearinsure-backend/internal/policies"
	"github.com/aldoetobex/clearinsure-backend/internal/principals"
	"github.com/aldoetobex/clearinsure-backend/pkg/database"
	apperr "github.com/aldoetobex/clearinsure-backend/pkg/errors"
	"github.com/aldoetobex/clearinsure-backend/pkg/models"
	"github.com/aldoetobex/clearinsure-backend/pkg/sanitize"
)

// RequestRenewal opens a renewal on the customer's Active policy within the
// last RenewalWindowDays days of its term. The next term starts the day after
// expiry and runs 365 days from the current expiry.
func (s *Service) RequestRenewal(ctx context.Context, customer *principals.Principal, policyID uuid.UUID, notes string) (*models.PolicyRenewalRequest, error) {
	now := s.now()

	var out models.PolicyRenewalRequest
	err := database.WithTx(ctx, s.db, func(tx *gorm.DB) error {
		p, err := ownedPolicy(tx, customer, policyID)
		if err != nil {
			return err
		}
		if st := p.EffectiveStatus(now); st != models.PolicyActive {
			return apperr.Newf(apperr.CodeStateConflict, "only active policies can be renewed; policy is %s", st).
				WithDetails(map[string]string{"status": string(st)})
		}
		days := p.DaysUntilExpiry(now)
		if days < 0 || days > RenewalWindowDays {
			return apperr.Newf(apperr.CodeStateConflict,
				"renewal opens %d days before expiry; policy expires in %d days", RenewalWindowDays, days).
				WithDetails(map[string]int{"days_until_expiry": days})
		}
		pending, err := pendingExists(tx, &models.PolicyRenewalRequest{}, "policy_id = ?", p.ID)
		if err != nil {
			return err
		}
		if pending {
			return alreadyPending(KindRenewal)
		}

		expiry := models.DateOf(p.ExpiryDate)
		out = models.PolicyRenewalRequest{
			CustomerID:        customer.ID,
			PolicyID:          p.ID,
			CompanyID:         p.CompanyID,
			CurrentExpiryDate: expiry,
			NewEffectiveDate:  expiry.AddDate(0, 0, 1),
			NewExpiryDate:     expiry.AddDate(0, 0, 365),
			CurrentPremium:    p.PremiumAmount,
			Notes:             sanitize.Text(notes),
			RequestReview:     models.RequestReview{Status: models.RequestPending},
		}
		if err := tx.Create(&out).Error; err != nil {
			return insertErr(KindRenewal, err)
		}
		s.logSubmitted(ctx, tx, KindRenewal, out.ID, customer, "")
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.transitioned(KindRenewal, "submit")
	return &out, nil
}

// ReviewRenewal decides a renewal request. Approval moves the existing policy
// onto the requested term in place, optionally at a new premium.
func (s *Service) ReviewRenewal(ctx context.Context, insurer *principals.Principal, id uuid.UUID, d Decision) (*models.PolicyRenewalRequest, error) {
	if err := d.validate(); err != nil {
		return nil, err
	}
	now := s.now()
	var out *models.PolicyRenewalRequest
	err := database.WithTx(ctx, s.db, func(tx *gorm.DB) error {
		r, err := lockPending[models.PolicyRenewalRequest](tx, *insurer.AffiliationID, id)
		if err != nil {
			return err
		}
		if d.Approve {
			p, err := lockPolicy(tx, r.PolicyID)
			if err != nil {
				return err
			}
			if err := requesterHolds(tx, r.CustomerID, p); err != nil {
				return err
			}
			if err := policies.ApplyRenewal(ctx, tx, p, insurer.ID, policies.Renewal{
				EffectiveDate: r.NewEffectiveDate,
				ExpiryDate:    r.NewExpiryDate,
				Premium:       d.Premium,
			}, now); err != nil {
				return err
			}
			r.ApprovedPremium = decimal.NewNullDecimal(p.PremiumAmount)
			if err := tx.Model(r).Update("approved_premium", r.ApprovedPremium).Error; err != nil {
				return apperr.Wrap(apperr.CodeInternal, err, "record approved premium")
			}
		}
		if err := settle(ctx, tx, KindRenewal, r.ID, r, insurer, d, now); err != nil {
			return err
		}
		out = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.transitioned(KindRenewal, string(out.Status))
	if d.Approve {
		s.rec.Transition("policy", "renew")
	}
	return out, nil
}
