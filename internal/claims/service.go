// Package claims runs the claim lifecycle: filing against a policy, review,
// fraud check and the final decision.
package claims

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aldoetobex/clearinsure-backend/internal/principals"
	"github.com/aldoetobex/clearinsure-backend/internal/storage"
	"github.com/aldoetobex/clearinsure-backend/pkg/database"
	apperr "github.com/aldoetobex/clearinsure-backend/pkg/errors"
	"github.com/aldoetobex/clearinsure-backend/pkg/logger"
	"github.com/aldoetobex/clearinsure-backend/pkg/metrics"
	"github.com/aldoetobex/clearinsure-backend/pkg/models"
	"github.com/aldoetobex/clearinsure-backend/pkg/sanitize"
	"github.com/aldoetobex/clearinsure-backend/pkg/sequence"
	"github.com/aldoetobex/clearinsure-backend/pkg/utils"
)

type Service struct {
	db     *gorm.DB
	store  storage.ObjectStore
	scorer FraudScorer
	rec    *metrics.Recorder
	logg   *logger.Logger
	now    func() time.Time
}

type Params struct {
	DB       *gorm.DB
	Store    storage.ObjectStore
	Scorer   FraudScorer
	Recorder *metrics.Recorder
	Logger   *logger.Logger
}

func NewService(p Params) *Service {
	if p.Logger == nil {
		p.Logger = logger.Nop()
	}
	if p.Scorer == nil {
		p.Scorer = NewPlaceholderScorer(5, 45)
	}
	return &Service{db: p.DB, store: p.Store, scorer: p.Scorer, rec: p.Recorder, logg: p.Logger, now: time.Now}
}

// View is a claim with its decision resolved.
type View struct {
	models.Claim
	Decision *models.ClaimDecision `json:"decision,omitempty"`
}

func newView(c models.Claim) View { return View{Claim: c, Decision: c.Decision()} }

func notFound() error { return apperr.New(apperr.CodeNotFound, "claim not found") }

func stateConflict(action string, status models.ClaimStatus) error {
	return apperr.Newf(apperr.CodeStateConflict, "cannot %s: claim is already %s", action, status).
		WithDetails(map[string]string{"status": string(status)})
}

/* ================================= File ================================= */

// Filing is the accident narrative an insurer records.
type Filing struct {
	AccidentDate        time.Time
	AccidentTime        string
	AccidentLocation    string
	AccidentDescription string
	PoliceReportNumber  string
	PoliceStation       string
	WitnessName         string
	WitnessPhone        string
	WitnessStatement    string
	DamageDescription   string
	EstimatedLoss       decimal.Decimal
	ThirdPartyInvolved  bool
	ThirdPartyDetails   string
}

// File opens the single claim a policy may ever have. Cancelled policies
// cannot be claimed against.
func (s *Service) File(ctx context.Context, insurer *principals.Principal, policyID uuid.UUID, f Filing, docs []storage.Upload) (*View, error) {
	companyID := *insurer.AffiliationID
	now := s.now()

	c := models.Claim{
		PolicyID:            policyID,
		CompanyID:           companyID,
		FiledBy:             insurer.ID,
		AccidentDate:        models.DateOf(f.AccidentDate),
		AccidentTime:        strings.TrimSpace(f.AccidentTime),
		AccidentLocation:    strings.TrimSpace(f.AccidentLocation),
		AccidentDescription: sanitize.Text(f.AccidentDescription),
		PoliceReportNumber:  strings.TrimSpace(f.PoliceReportNumber),
		PoliceStation:       strings.TrimSpace(f.PoliceStation),
		WitnessName:         strings.TrimSpace(f.WitnessName),
		WitnessPhone:        strings.TrimSpace(f.WitnessPhone),
		WitnessStatement:    sanitize.Text(f.WitnessStatement),
		DamageDescription:   sanitize.Text(f.DamageDescription),
		EstimatedLoss:       f.EstimatedLoss.Round(2),
		ThirdPartyInvolved:  f.ThirdPartyInvolved,
		ThirdPartyDetails:   sanitize.Text(f.ThirdPartyDetails),
		Status:              models.ClaimPending,
	}

	batch := storage.NewBatch(s.store, s.logg)
	err := database.WithTx(ctx, s.db, func(tx *gorm.DB) error {
		var p models.Policy
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&p, "id = ? AND company_id = ?", policyID, companyID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.New(apperr.CodeNotFound, "policy not found")
			}
			return apperr.Wrap(apperr.CodeInternal, err, "lock policy")
		}
		if st := p.EffectiveStatus(now); st == models.PolicyCancelled {
			return apperr.Newf(apperr.CodeStateConflict, "policy %s is %s", p.PolicyNumber, st)
		}
		if c.AccidentDate.Before(p.EffectiveDate) || c.AccidentDate.After(p.ExpiryDate) {
			return apperr.New(apperr.CodeValidation, "accident date is outside the policy period").
				WithDetails(map[string][]string{"accident_date": {"Must fall within the policy period"}})
		}

		var existing models.Claim
		err := tx.Select("claim_number").First(&existing, "policy_id = ?", policyID).Error
		if err == nil {
			return duplicateClaim(existing.ClaimNumber)
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.Wrap(apperr.CodeInternal, err, "check existing claim")
		}

		if c.ClaimNumber, err = sequence.NextNumber(tx, sequence.ClaimPrefix); err != nil {
			return apperr.Wrap(apperr.CodeInternal, err, "allocate claim number")
		}
		if err := tx.Create(&c).Error; err != nil {
			if database.IsUniqueViolation(err, "") {
				return duplicateClaim("")
			}
			return apperr.Wrap(apperr.CodeInternal, err, "create claim")
		}

		rows := make([]models.ClaimDocument, 0, len(docs))
		for _, u := range docs {
			key := storage.ObjectKey("claim", c.ID, u.Slot, u.Header.Filename)
			if err := batch.Stage(ctx, key, u); err != nil {
				return apperr.Wrap(apperr.CodeDependency, err, "upload claim document")
			}
			rows = append(rows, models.ClaimDocument{
				ClaimID: c.ID, Slot: u.Slot, Key: key, Mime: u.Mime,
				Size: u.Header.Size, OriginalName: u.Header.Filename,
			})
		}
		if len(rows) > 0 {
			if err := tx.Create(&rows).Error; err != nil {
				return apperr.Wrap(apperr.CodeInternal, err, "save claim documents")
			}
		}
		c.Documents = rows

		utils.LogEvent(ctx, tx, utils.Event{
			Entity: "claim", EntityID: c.ID, ActorID: insurer.ID, ActorRole: models.RoleInsurer,
			Action: "file", NewStatus: string(models.ClaimPending),
		})
		return nil
	})
	if err != nil {
		batch.Discard(ctx)
		return nil, err
	}
	_ = batch.Promote(ctx)

	s.rec.Transition("claim", "file")
	s.logg.Info(s.logg.WithField(ctx, "claim_number", c.ClaimNumber), "claim filed")
	v := newView(c)
	return &v, nil
}

func duplicateClaim(number string) error {
	msg := "a claim already exists for this policy"
	if number != "" {
		msg += ": " + number
	}
	return apperr.New(apperr.CodeConflict, msg).WithDetails(map[string]string{"claim_number": number})
}

/* ============================= Transitions ============================== */

// transition locks the claim, checks it belongs to the insurer's company and
// hands it to apply. apply mutates the row and returns the columns to save.
func (s *Service) transition(ctx context.Context, insurer *principals.Principal, claimID uuid.UUID, action string,
	apply func(tx *gorm.DB, c *models.Claim, now time.Time) ([]string, error)) (*View, error) {

	now := s.now()
	var out models.Claim
	err := database.WithTx(ctx, s.db, func(tx *gorm.DB) error {
		var c models.Claim
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&c, "id = ? AND company_id = ?", claimID, *insurer.AffiliationID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound()
			}
			return apperr.Wrap(apperr.CodeInternal, err, "lock claim")
		}
		old := c.Status
		cols, err := apply(tx, &c, now)
		if err != nil {
			return err
		}
		if err := tx.Model(&c).Select(cols).Updates(&c).Error; err != nil {
			return apperr.Wrap(apperr.CodeInternal, err, action+" claim")
		}
		utils.LogEvent(ctx, tx, utils.Event{
			Entity: "claim", EntityID: c.ID, ActorID: insurer.ID, ActorRole: models.RoleInsurer,
			Action: action, OldStatus: string(old), NewStatus: string(c.Status), Reason: c.RejectionReason,
		})
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.rec.Transition("claim", action)
	v := newView(out)
	return &v, nil
}

// Review moves a Pending claim to Under Review.
func (s *Service) Review(ctx context.Context, insurer *principals.Principal, claimID uuid.UUID, notes string) (*View, error) {
	return s.transition(ctx, insurer, claimID, "review", func(_ *gorm.DB, c *models.Claim, now time.Time) ([]string, error) {
		if c.Status != models.ClaimPending {
			return nil, stateConflict("start review", c.Status)
		}
		c.Status = models.ClaimUnderReview
		c.ReviewedBy = &insurer.ID
		c.ReviewedAt = &now
		c.ReviewNotes = sanitize.Text(notes)
		return []string{"status", "reviewed_by", "reviewed_at", "review_notes"}, nil
	})
}

// FraudCheck scores a claim that is Under Review. Running it again replaces
// the previous result.
func (s *Service) FraudCheck(ctx context.Context, insurer *principals.Principal, claimID uuid.UUID) (*View, error) {
	return s.transition(ctx, insurer, claimID, "fraud_check", func(_ *gorm.DB, c *models.Claim, now time.Time) ([]string, error) {
		if c.Status != models.ClaimUnderReview {
			return nil, stateConflict("run fraud check", c.Status)
		}
		a, err := s.scorer.Score(ctx, c)
		if err != nil {
			return nil, apperr.Wrap(apperr.CodeDependency, err, "fraud scoring failed")
		}
		c.FraudCheckPerformed = true
		c.FraudScore = &a.Score
		c.FraudRisk = a.Risk
		c.FraudReport = a.Report
		c.FraudCheckedAt = &now
		return []string{"fraud_check_performed", "fraud_score", "fraud_risk", "fraud_report", "fraud_checked_at"}, nil
	})
}

// Approve settles a claim Under Review whose fraud check has run.
func (s *Service) Approve(ctx context.Context, insurer *principals.Principal, claimID uuid.UUID) (*View, error) {
	return s.transition(ctx, insurer, claimID, "approve", func(_ *gorm.DB, c *models.Claim, now time.Time) ([]string, error) {
		if c.Status != models.ClaimUnderReview {
			return nil, stateConflict("approve", c.Status)
		}
		if !c.FraudCheckPerformed {
			return nil, apperr.New(apperr.CodeStateConflict, "run the fraud check before approving").
				WithDetails(map[string]string{"status": string(c.Status)})
		}
		c.Status = models.ClaimApproved
		c.ApprovedBy = &insurer.ID
		c.ApprovedAt = &now
		return []string{"status", "approved_by", "approved_at"}, nil
	})
}

// Reject closes a claim Under Review with a reason.
func (s *Service) Reject(ctx context.Context, insurer *principals.Principal, claimID uuid.UUID, reason string) (*View, error) {
	reason = sanitize.Text(reason)
	if reason == "" {
		return nil, apperr.New(apperr.CodeValidation, "a rejection reason is required").
			WithDetails(map[string][]string{"reason": {"This field is required"}})
	}
	return s.transition(ctx, insurer, claimID, "reject", func(_ *gorm.DB, c *models.Claim, now time.Time) ([]string, error) {
		if c.Status != models.ClaimUnderReview {
			return nil, stateConflict("reject", c.Status)
		}
		c.Status = models.ClaimRejected
		c.RejectedBy = &insurer.ID
		c.RejectedAt = &now
		c.RejectionReason = reason
		return []string{"status", "rejected_by", "rejected_at", "rejection_reason"}, nil
	})
}

/* ================================= Read ================================= */

// ListCompany pages through a company's claims, optionally by status.
func (s *Service) ListCompany(ctx context.Context, companyID uuid.UUID, status models.ClaimStatus, page, size int) ([]View, int64, error) {
	scope := func(db *gorm.DB) *gorm.DB {
		db = db.Where("claims.company_id = ?", companyID)
		if status != "" {
			db = db.Where("claims.status = ?", status)
		}
		return db
	}
	return s.list(ctx, scope, page, size)
}

// ListOwned pages through claims on policies held under email.
func (s *Service) ListOwned(ctx context.Context, email string, page, size int) ([]View, int64, error) {
	email = principals.NormalizeEmail(email)
	scope := func(db *gorm.DB) *gorm.DB {
		return db.Joins("JOIN policies ON policies.id = claims.policy_id").
			Where("policies.email_address = ?", email)
	}
	return s.list(ctx, scope, page, size)
}

func (s *Service) list(ctx context.Context, scope func(*gorm.DB) *gorm.DB, page, size int) ([]View, int64, error) {
	var total int64
	if err := s.db.WithContext(ctx).Model(&models.Claim{}).Scopes(scope).Count(&total).Error; err != nil {
		return nil, 0, apperr.Wrap(apperr.CodeInternal, err, "count claims")
	}
	var rows []models.Claim
	if err := s.db.WithContext(ctx).Model(&models.Claim{}).Scopes(scope, utils.Paginate(page, size)).
		Preload("Policy").Order("claims.created_at DESC").Find(&rows).Error; err != nil {
		return nil, 0, apperr.Wrap(apperr.CodeInternal, err, "list claims")
	}
	out := make([]View, 0, len(rows))
	for _, c := range rows {
		out = append(out, newView(c))
	}
	return out, total, nil
}

// GetCompany loads one company claim with its policy and documents.
func (s *Service) GetCompany(ctx context.Context, companyID, id uuid.UUID) (*View, error) {
	var c models.Claim
	err := s.db.WithContext(ctx).Preload("Policy").Preload("Documents").
		First(&c, "id = ? AND company_id = ?", id, companyID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound()
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "load claim")
	}
	if c.Documents == nil {
		c.Documents = []models.ClaimDocument{}
	}
	v := newView(c)
	return &v, nil
}
