package requests

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aldoetobex/clearinsure-backend/internal/policies"
	"github.com/aldoetobex/clearinsure-backend/internal/principals"
	"github.com/aldoetobex/clearinsure-backend/pkg/database"
	apperr "github.com/aldoetobex/clearinsure-backend/pkg/errors"
	"github.com/aldoetobex/clearinsure-backend/pkg/models"
)

// RequestCancellation asks the insurer to cancel one of the customer's
// Active policies.
func (s *Service) RequestCancellation(ctx context.Context, customer *principals.Principal, policyID uuid.UUID, reason string) (*models.PolicyCancellationRequest, error) {
	reason, err := requireReason(reason)
	if err != nil {
		return nil, err
	}
	now := s.now()

	var out models.PolicyCancellationRequest
	err = database.WithTx(ctx, s.db, func(tx *gorm.DB) error {
		p, err := ownedPolicy(tx, customer, policyID)
		if err != nil {
			return err
		}
		if st := p.EffectiveStatus(now); st != models.PolicyActive {
			return apperr.Newf(apperr.CodeStateConflict, "only active policies can be cancelled; policy is %s", st).
				WithDetails(map[string]string{"status": string(st)})
		}
		pending, err := pendingExists(tx, &models.PolicyCancellationRequest{}, "customer_id = ? AND policy_id = ?", customer.ID, p.ID)
		if err != nil {
			return err
		}
		if pending {
			return alreadyPending(KindCancellation)
		}

		out = models.PolicyCancellationRequest{
			CustomerID: customer.ID, PolicyID: p.ID, CompanyID: p.CompanyID, Reason: reason,
			RequestReview: models.RequestReview{Status: models.RequestPending},
		}
		if err := tx.Create(&out).Error; err != nil {
			return insertErr(KindCancellation, err)
		}
		s.logSubmitted(ctx, tx, KindCancellation, out.ID, customer, reason)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.transitioned(KindCancellation, "submit")
	return &out, nil
}

// ReviewCancellation decides a cancellation request. Approval cancels the
// policy with the reviewing insurer as canceller and the customer's reason.
func (s *Service) ReviewCancellation(ctx context.Context, insurer *principals.Principal, id uuid.UUID, d Decision) (*models.PolicyCancellationRequest, error) {
	if err := d.validate(); err != nil {
		return nil, err
	}
	now := s.now()
	var out *models.PolicyCancellationRequest
	err := database.WithTx(ctx, s.db, func(tx *gorm.DB) error {
		r, err := lockPending[models.PolicyCancellationRequest](tx, *insurer.AffiliationID, id)
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
			if err := policies.ApplyCancellation(ctx, tx, p, insurer.ID, r.Reason, now); err != nil {
				return err
			}
		}
		if err := settle(ctx, tx, KindCancellation, r.ID, r, insurer, d, now); err != nil {
			return err
		}
		out = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.transitioned(KindCancellation, string(out.Status))
	if d.Approve {
		s.rec.Transition("policy", "cancel")
	}
	return out, nil
}
