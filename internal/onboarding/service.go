// Package onboarding runs the approval workflow that binds insurers to a
// company and regulators to a regulatory body.
package onboarding

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aldoetobex/clearinsure-backend/internal/principals"
	"github.com/aldoetobex/clearinsure-backend/pkg/database"
	apperr "github.com/aldoetobex/clearinsure-backend/pkg/errors"
	"github.com/aldoetobex/clearinsure-backend/pkg/logger"
	"github.com/aldoetobex/clearinsure-backend/pkg/metrics"
	"github.com/aldoetobex/clearinsure-backend/pkg/models"
	"github.com/aldoetobex/clearinsure-backend/pkg/sanitize"
	"github.com/aldoetobex/clearinsure-backend/pkg/utils"
)

type Service struct {
	db   *gorm.DB
	rec  *metrics.Recorder
	logg *logger.Logger
	now  func() time.Time
}

func NewService(db *gorm.DB, rec *metrics.Recorder, logg *logger.Logger) *Service {
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{db: db, rec: rec, logg: logg, now: time.Now}
}

// Request is the role-independent view of an onboarding request.
type Request struct {
	ID              uuid.UUID            `json:"id"`
	Kind            models.Role          `json:"kind"`
	PrincipalID     uuid.UUID            `json:"principal_id"`
	Username        string               `json:"username,omitempty"`
	Email           string               `json:"email,omitempty"`
	StaffID         string               `json:"staff_id"`
	AffiliationID   uuid.UUID            `json:"affiliation_id"`
	AffiliationName string               `json:"affiliation_name,omitempty"`
	Status          models.RequestStatus `json:"status"`
	ReviewedBy      *uuid.UUID           `json:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time           `json:"reviewed_at,omitempty"`
	RejectionReason string               `json:"rejection_reason,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
}

func fromInsurerRequest(r *models.InsurerRequest) Request {
	out := Request{
		ID: r.ID, Kind: models.RoleInsurer, PrincipalID: r.InsurerID, StaffID: r.StaffID,
		AffiliationID: r.CompanyID, Status: r.Status, ReviewedBy: r.ReviewedBy,
		ReviewedAt: r.ReviewedAt, RejectionReason: r.RejectionReason, CreatedAt: r.CreatedAt,
	}
	if r.Insurer != nil {
		out.Username, out.Email = r.Insurer.Username, r.Insurer.Email
	}
	if r.Company != nil {
		out.AffiliationName = r.Company.Name
	}
	return out
}

func fromRegulatorRequest(r *models.RegulatorRequest) Request {
	out := Request{
		ID: r.ID, Kind: models.RoleRegulator, PrincipalID: r.RegulatorID, StaffID: r.StaffID,
		AffiliationID: r.RegulatoryBodyID, Status: r.Status, ReviewedBy: r.ReviewedBy,
		ReviewedAt: r.ReviewedAt, RejectionReason: r.RejectionReason, CreatedAt: r.CreatedAt,
	}
	if r.Regulator != nil {
		out.Username, out.Email = r.Regulator.Username, r.Regulator.Email
	}
	if r.RegulatoryBody != nil {
		out.AffiliationName = r.RegulatoryBody.Name
	}
	return out
}

/* ================================ Submit ================================ */

// Submit files an onboarding request for an unapproved insurer or regulator.
// affiliationID names a company for insurers and a regulatory body for
// regulators; it must exist and be active.
func (s *Service) Submit(ctx context.Context, p *principals.Principal, staffID string, affiliationID uuid.UUID) (*Request, error) {
	if !p.NeedsApproval() {
		return nil, apperr.New(apperr.CodeForbidden, "onboarding is for insurers and regulators")
	}
	if p.Approved {
		return nil, apperr.New(apperr.CodeConflict, "account is already approved")
	}
	staffID = strings.TrimSpace(staffID)

	var out Request
	err := database.WithTx(ctx, s.db, func(tx *gorm.DB) error {
		if err := checkAffiliation(tx, p.Role, affiliationID); err != nil {
			return err
		}

		var pending int64
		var err error
		if p.Role == models.RoleInsurer {
			err = tx.Model(&models.InsurerRequest{}).
				Where("insurer_id = ? AND status = ?", p.ID, models.RequestPending).
				Count(&pending).Error
		} else {
			err = tx.Model(&models.RegulatorRequest{}).
				Where("regulator_id = ? AND status = ?", p.ID, models.RequestPending).
				Count(&pending).Error
		}
		if err != nil {
			return apperr.Wrap(apperr.CodeInternal, err, "check pending request")
		}
		if pending > 0 {
			return apperr.New(apperr.CodeConflict, "an onboarding request is already pending review")
		}

		if p.Role == models.RoleInsurer {
			r := models.InsurerRequest{InsurerID: p.ID, StaffID: staffID, CompanyID: affiliationID, Status: models.RequestPending}
			if err := tx.Create(&r).Error; err != nil {
				return insertErr(err)
			}
			out = fromInsurerRequest(&r)
		} else {
			r := models.RegulatorRequest{RegulatorID: p.ID, StaffID: staffID, RegulatoryBodyID: affiliationID, Status: models.RequestPending}
			if err := tx.Create(&r).Error; err != nil {
				return insertErr(err)
			}
			out = fromRegulatorRequest(&r)
		}

		utils.LogEvent(ctx, tx, utils.Event{
			Entity: string(p.Role) + "_request", EntityID: out.ID, ActorID: p.ID, ActorRole: p.Role,
			Action: "submit", NewStatus: string(models.RequestPending),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.rec.Transition(string(p.Role)+"_request", "submit")
	return &out, nil
}

func checkAffiliation(tx *gorm.DB, role models.Role, id uuid.UUID) error {
	var (
		active bool
		err    error
		field  = "company_id"
	)
	if role == models.RoleInsurer {
		var c models.Company
		err = tx.First(&c, "id = ?", id).Error
		active = c.Active
	} else {
		field = "regulatory_body_id"
		var b models.RegulatoryBody
		err = tx.First(&b, "id = ?", id).Error
		active = b.Active
	}
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && !active) {
		return apperr.New(apperr.CodeValidation, "unknown or inactive affiliation").
			WithDetails(map[string][]string{field: {"Value is not allowed"}})
	}
	if err != nil {
		return apperr.Wrap(apperr.CodeInternal, err, "load affiliation")
	}
	return nil
}

func insertErr(err error) error {
	if database.IsUniqueViolation(err, "") {
		return apperr.Wrap(apperr.CodeConflict, err, "an onboarding request is already pending review")
	}
	return apperr.Wrap(apperr.CodeInternal, err, "create onboarding request")
}

/* ================================ Status ================================ */

// Latest returns the principal's most recent request, or nil.
func (s *Service) Latest(ctx context.Context, p *principals.Principal) (*Request, error) {
	q := s.db.WithContext(ctx).Order("created_at DESC")
	var (
		out *Request
		err error
	)
	switch p.Role {
	case models.RoleInsurer:
		var r models.InsurerRequest
		if err = q.Preload("Company").Where("insurer_id = ?", p.ID).First(&r).Error; err == nil {
			v := fromInsurerRequest(&r)
			out = &v
		}
	case models.RoleRegulator:
		var r models.RegulatorRequest
		if err = q.Preload("RegulatoryBody").Where("regulator_id = ?", p.ID).First(&r).Error; err == nil {
			v := fromRegulatorRequest(&r)
			out = &v
		}
	default:
		return nil, apperr.New(apperr.CodeForbidden, "onboarding is for insurers and regulators")
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "load onboarding request")
	}
	return out, nil
}

/* ================================= List ================================= */

// List pages through requests of one kind, optionally filtered by status.
func (s *Service) List(ctx context.Context, kind models.Role, status models.RequestStatus, page, size int) ([]Request, int64, error) {
	var (
		total int64
		out   = []Request{}
	)
	filter := func(db *gorm.DB) *gorm.DB {
		if status != "" {
			return db.Where("status = ?", status)
		}
		return db
	}

	switch kind {
	case models.RoleInsurer:
		if err := s.db.WithContext(ctx).Model(&models.InsurerRequest{}).Scopes(filter).Count(&total).Error; err != nil {
			return nil, 0, apperr.Wrap(apperr.CodeInternal, err, "count requests")
		}
		var rows []models.InsurerRequest
		if err := s.db.WithContext(ctx).Scopes(filter, utils.Paginate(page, size)).
			Preload("Insurer").Preload("Company").
			Order("created_at DESC").Find(&rows).Error; err != nil {
			return nil, 0, apperr.Wrap(apperr.CodeInternal, err, "list requests")
		}
		for i := range rows {
			out = append(out, fromInsurerRequest(&rows[i]))
		}
	case models.RoleRegulator:
		if err := s.db.WithContext(ctx).Model(&models.RegulatorRequest{}).Scopes(filter).Count(&total).Error; err != nil {
			return nil, 0, apperr.Wrap(apperr.CodeInternal, err, "count requests")
		}
		var rows []models.RegulatorRequest
		if err := s.db.WithContext(ctx).Scopes(filter, utils.Paginate(page, size)).
			Preload("Regulator").Preload("RegulatoryBody").
			Order("created_at DESC").Find(&rows).Error; err != nil {
			return nil, 0, apperr.Wrap(apperr.CodeInternal, err, "list requests")
		}
		for i := range rows {
			out = append(out, fromRegulatorRequest(&rows[i]))
		}
	default:
		return nil, 0, apperr.Newf(apperr.CodeValidation, "unknown request kind %q", kind)
	}
	return out, total, nil
}

/* ================================ Review ================================ */

// Decision is an admin verdict on a request.
type Decision struct {
	Approve bool
	Reason  string
}

// Review applies an admin decision to a pending request. Approval copies the
// staff id and affiliation onto the principal in the same transaction.
// Reviewed requests are terminal.
func (s *Service) Review(ctx context.Context, adminID uuid.UUID, kind models.Role, requestID uuid.UUID, d Decision) (*Request, error) {
	d.Reason = sanitize.Text(d.Reason)
	if !d.Approve && d.Reason == "" {
		return nil, apperr.New(apperr.CodeValidation, "a rejection reason is required").
			WithDetails(map[string][]string{"reason": {"This field is required"}})
	}

	now := s.now()
	var out Request
	err := database.WithTx(ctx, s.db, func(tx *gorm.DB) error {
		var err error
		switch kind {
		case models.RoleInsurer:
			out, err = s.reviewInsurer(tx, adminID, requestID, d, now)
		case models.RoleRegulator:
			out, err = s.reviewRegulator(tx, adminID, requestID, d, now)
		default:
			return apperr.Newf(apperr.CodeValidation, "unknown request kind %q", kind)
		}
		if err != nil {
			return err
		}
		utils.LogEvent(ctx, tx, utils.Event{
			Entity: string(kind) + "_request", EntityID: out.ID, ActorID: adminID, ActorRole: models.RoleAdmin,
			Action: "review", OldStatus: string(models.RequestPending), NewStatus: string(out.Status), Reason: d.Reason,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.rec.Transition(string(kind)+"_request", string(out.Status))
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{"request_id": out.ID, "status": out.Status}), "onboarding request reviewed")
	return &out, nil
}

func alreadyReviewed(status models.RequestStatus) error {
	return apperr.New(apperr.CodeStateConflict, "request already reviewed").
		WithDetails(map[string]string{"status": string(status)})
}

func verdict(d Decision) models.RequestStatus {
	if d.Approve {
		return models.RequestApproved
	}
	return models.RequestRejected
}

func (s *Service) reviewInsurer(tx *gorm.DB, adminID, requestID uuid.UUID, d Decision, now time.Time) (Request, error) {
	var r models.InsurerRequest
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&r, "id = ?", requestID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Request{}, apperr.New(apperr.CodeNotFound, "request not found")
		}
		return Request{}, apperr.Wrap(apperr.CodeInternal, err, "lock request")
	}
	if r.Status != models.RequestPending {
		return Request{}, alreadyReviewed(r.Status)
	}

	if d.Approve {
		if err := checkAffiliation(tx, models.RoleInsurer, r.CompanyID); err != nil {
			return Request{}, err
		}
		if err := tx.Model(&models.Insurer{}).Where("id = ?", r.InsurerID).Updates(map[string]any{
			"staff_id":      r.StaffID,
			"company_id":    r.CompanyID,
			"approved":      true,
			"approval_date": now,
		}).Error; err != nil {
			return Request{}, apperr.Wrap(apperr.CodeInternal, err, "approve insurer")
		}
	}

	r.Status = verdict(d)
	r.ReviewedBy = &adminID
	r.ReviewedAt = &now
	if !d.Approve {
		r.RejectionReason = d.Reason
	}
	if err := tx.Model(&r).Select("status", "reviewed_by", "reviewed_at", "rejection_reason").Updates(&r).Error; err != nil {
		return Request{}, apperr.Wrap(apperr.CodeInternal, err, "update request")
	}
	return fromInsurerRequest(&r), nil
}

func (s *Service) reviewRegulator(tx *gorm.DB, adminID, requestID uuid.UUID, d Decision, now time.Time) (Request, error) {
	var r models.RegulatorRequest
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&r, "id = ?", requestID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Request{}, apperr.New(apperr.CodeNotFound, "request not found")
		}
		return Request{}, apperr.Wrap(apperr.CodeInternal, err, "lock request")
	}
	if r.Status != models.RequestPending {
		return Request{}, alreadyReviewed(r.Status)
	}

	if d.Approve {
		if err := checkAffiliation(tx, models.RoleRegulator, r.RegulatoryBodyID); err != nil {
			return Request{}, err
		}
		if err := tx.Model(&models.Regulator{}).Where("id = ?", r.RegulatorID).Updates(map[string]any{
			"staff_id":           r.StaffID,
			"regulatory_body_id": r.RegulatoryBodyID,
			"approved":           true,
			"approval_date":      now,
		}).Error; err != nil {
			return Request{}, apperr.Wrap(apperr.CodeInternal, err, "approve regulator")
		}
	}

	r.Status = verdict(d)
	r.ReviewedBy = &adminID
	r.ReviewedAt = &now
	if !d.Approve {
		r.RejectionReason = d.Reason
	}
	if err := tx.Model(&r).Select("status", "reviewed_by", "reviewed_at", "rejection_reason").Updates(&r).Error; err != nil {
		return Request{}, apperr.Wrap(apperr.CodeInternal, err, "update request")
	}
	return fromRegulatorRequest(&r), nil
}

/* ============================= Affiliations ============================= */

// Affiliation is an active company or regulatory body offered on the form.
type Affiliation struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// Affiliations lists what a principal of role may apply to join.
func (s *Service) Affiliations(ctx context.Context, role models.Role) ([]Affiliation, error) {
	table := "companies"
	if role == models.RoleRegulator {
		table = "regulatory_bodies"
	}
	out := []Affiliation{}
	if err := s.db.WithContext(ctx).Table(table).
		Select("id, name").Where("active = ?", true).Order("name").
		Scan(&out).Error; err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "list affiliations")
	}
	return out, nil
}
