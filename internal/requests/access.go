package requests

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aldoetobex/clearinsure-backend/internal/principals"
	"github.com/aldoetobex/clearinsure-backend/pkg/database"
	apperr "github.com/aldoetobex/clearinsure-backend/pkg/errors"
	"github.com/aldoetobex/clearinsure-backend/pkg/models"
	"github.com/aldoetobex/clearinsure-backend/pkg/sanitize"
	"github.com/aldoetobex/clearinsure-backend/pkg/utils"
)

// PolicyLookup is what a customer sees of a policy found by number before
// they hold it.
type PolicyLookup struct {
	ID                 uuid.UUID           `json:"id"`
	PolicyNumber       string              `json:"policy_number"`
	PolicyType         models.CoverType    `json:"policy_type"`
	CompanyName        string              `json:"company_name"`
	RegistrationNumber string              `json:"registration_number"`
	MakeModel          string              `json:"make_model"`
	Status             models.PolicyStatus `json:"status"`
	ExpiryDate         time.Time           `json:"expiry_date"`
	HolderEmail        string              `json:"holder_email"`
	Owned              bool                `json:"owned"`
	PendingRequest     bool                `json:"pending_request"`
}

func normalizeNumber(s string) string { return strings.ToUpper(strings.TrimSpace(s)) }

func findByNumber(tx *gorm.DB, number string) (*models.Policy, error) {
	var p models.Policy
	err := tx.Preload("Company").First(&p, "policy_number = ?", number).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, policyNotFound()
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "find policy")
	}
	return &p, nil
}

// SearchPolicy finds a policy by its number for an access request. The
// holder email is masked.
func (s *Service) SearchPolicy(ctx context.Context, customer *principals.Principal, number string) (*PolicyLookup, error) {
	number = normalizeNumber(number)
	if number == "" {
		return nil, apperr.New(apperr.CodeValidation, "a policy number is required").
			WithDetails(map[string][]string{"policy_number": {"This field is required"}})
	}
	db := s.db.WithContext(ctx)
	p, err := findByNumber(db, number)
	if err != nil {
		return nil, err
	}
	pending, err := pendingExists(db, &models.PolicyAccessRequest{}, "customer_id = ? AND policy_id = ?", customer.ID, p.ID)
	if err != nil {
		return nil, err
	}
	out := &PolicyLookup{
		ID:                 p.ID,
		PolicyNumber:       p.PolicyNumber,
		PolicyType:         p.PolicyType,
		RegistrationNumber: p.RegistrationNumber,
		MakeModel:          p.MakeModel,
		Status:             p.EffectiveStatus(s.now()),
		ExpiryDate:         p.ExpiryDate,
		HolderEmail:        sanitize.MaskEmail(p.EmailAddress),
		Owned:              p.EmailAddress == principals.NormalizeEmail(customer.Email),
		PendingRequest:     pending,
	}
	if p.Company != nil {
		out.CompanyName = p.Company.Name
	}
	return out, nil
}

// RequestAccess asks the policy's insurer to link a policy to the customer.
func (s *Service) RequestAccess(ctx context.Context, customer *principals.Principal, number, reason string) (*models.PolicyAccessRequest, error) {
	reason, err := requireReason(reason)
	if err != nil {
		return nil, err
	}
	number = normalizeNumber(number)

	var out models.PolicyAccessRequest
	err = database.WithTx(ctx, s.db, func(tx *gorm.DB) error {
		p, err := findByNumber(tx, number)
		if err != nil {
			return err
		}
		if p.EmailAddress == principals.NormalizeEmail(customer.Email) {
			return apperr.New(apperr.CodeConflict, "this policy is already linked to your account")
		}
		pending, err := pendingExists(tx, &models.PolicyAccessRequest{}, "customer_id = ? AND policy_id = ?", customer.ID, p.ID)
		if err != nil {
			return err
		}
		if pending {
			return alreadyPending(KindAccess)
		}

		out = models.PolicyAccessRequest{
			CustomerID: customer.ID, PolicyID: p.ID, CompanyID: p.CompanyID, Reason: reason,
			RequestReview: models.RequestReview{Status: models.RequestPending},
		}
		if err := tx.Create(&out).Error; err != nil {
			return insertErr(KindAccess, err)
		}
		s.logSubmitted(ctx, tx, KindAccess, out.ID, customer, reason)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.transitioned(KindAccess, "submit")
	return &out, nil
}

// ReviewAccess decides an access request. Approval overwrites the policy's
// holder email with the customer's; there is no undo.
func (s *Service) ReviewAccess(ctx context.Context, insurer *principals.Principal, id uuid.UUID, d Decision) (*models.PolicyAccessRequest, error) {
	if err := d.validate(); err != nil {
		return nil, err
	}
	now := s.now()
	var out *models.PolicyAccessRequest
	err := database.WithTx(ctx, s.db, func(tx *gorm.DB) error {
		r, err := lockPending[models.PolicyAccessRequest](tx, *insurer.AffiliationID, id)
		if err != nil {
			return err
		}
		if d.Approve {
			p, err := lockPolicy(tx, r.PolicyID)
			if err != nil {
				return err
			}
			var c models.Customer
			if err := tx.Select("id", "email").First(&c, "id = ?", r.CustomerID).Error; err != nil {
				return apperr.Wrap(apperr.CodeInternal, err, "load customer")
			}
			previous := p.EmailAddress
			if err := tx.Model(p).Update("email_address", c.Email).Error; err != nil {
				return apperr.Wrap(apperr.CodeInternal, err, "transfer policy")
			}
			utils.LogEvent(ctx, tx, utils.Event{
				Entity: "policy", EntityID: p.ID, ActorID: insurer.ID, ActorRole: models.RoleInsurer,
				Action: "transfer", Reason: sanitize.MaskEmail(previous) + " -> " + sanitize.MaskEmail(c.Email),
			})
		}
		if err := settle(ctx, tx, KindAccess, r.ID, r, insurer, d, now); err != nil {
			return err
		}
		out = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.transitioned(KindAccess, string(out.Status))
	return out, nil
}
