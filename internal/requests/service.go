// Package requests runs the customer-initiated workflows that an insurer of
// the policy's company decides: access to an existing policy, cancellation
// and renewal.
package requests

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
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

// Kind names one of the three request workflows.
type Kind string

const (
	KindAccess       Kind = "access"
	KindCancellation Kind = "cancellation"
	KindRenewal      Kind = "renewal"
)

func ParseKind(s string) (Kind, bool) {
	switch k := Kind(s); k {
	case KindAccess, KindCancellation, KindRenewal:
		return k, true
	}
	return "", false
}

func (k Kind) entity() string { return string(k) + "_request" }

// RenewalWindowDays is how close to expiry a renewal may be requested.
const RenewalWindowDays = 30

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

// Decision is an insurer's ruling on a pending request. Premium only applies
// to renewals and overrides the carried-forward premium when set.
type Decision struct {
	Approve bool
	Reason  string
	Premium decimal.NullDecimal
}

func (d Decision) validate() error {
	if !d.Approve && sanitize.Text(d.Reason) == "" {
		return apperr.New(apperr.CodeValidation, "a rejection reason is required").
			WithDetails(map[string][]string{"reason": {"This field is required"}})
	}
	if d.Premium.Valid && !d.Premium.Decimal.IsPositive() {
		return apperr.New(apperr.CodeValidation, "premium must be greater than zero").
			WithDetails(map[string][]string{"premium": {"Must be greater than zero"}})
	}
	return nil
}

func requireReason(reason string) (string, error) {
	reason = sanitize.Text(reason)
	if reason == "" {
		return "", apperr.New(apperr.CodeValidation, "a reason is required").
			WithDetails(map[string][]string{"reason": {"This field is required"}})
	}
	return reason, nil
}

func requestNotFound() error { return apperr.New(apperr.CodeNotFound, "request not found") }
func policyNotFound() error  { return apperr.New(apperr.CodeNotFound, "policy not found") }

func alreadyPending(k Kind) error {
	return apperr.Newf(apperr.CodeConflict, "a %s request for this policy is already pending", k)
}

/* ============================ Shared review ============================= */

type reviewable[T any] interface {
	*T
	Review() *models.RequestReview
}

// lockPending locks a request of the insurer's company and checks that it
// still awaits a decision.
func lockPending[T any, PT reviewable[T]](tx *gorm.DB, companyID, id uuid.UUID) (PT, error) {
	var row T
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&row, "id = ? AND company_id = ?", id, companyID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, requestNotFound()
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "lock request")
	}
	r := PT(&row)
	if st := r.Review().Status; st != models.RequestPending {
		return nil, apperr.Newf(apperr.CodeStateConflict, "request is already %s", st).
			WithDetails(map[string]string{"status": string(st)})
	}
	return r, nil
}

// settle records the decision on a locked request and logs it.
func settle[T any, PT reviewable[T]](ctx context.Context, tx *gorm.DB, k Kind, id uuid.UUID, r PT, insurer *principals.Principal, d Decision, now time.Time) error {
	rv := r.Review()
	rv.Status = models.RequestRejected
	if d.Approve {
		rv.Status = models.RequestApproved
	}
	rv.ReviewedBy = &insurer.ID
	rv.ReviewedAt = &now
	if !d.Approve {
		rv.RejectionReason = sanitize.Text(d.Reason)
	}
	if err := tx.Model(r).Select("status", "reviewed_by", "reviewed_at", "rejection_reason").Updates(r).Error; err != nil {
		return apperr.Wrap(apperr.CodeInternal, err, "save decision")
	}
	utils.LogEvent(ctx, tx, utils.Event{
		Entity: k.entity(), EntityID: id, ActorID: insurer.ID, ActorRole: models.RoleInsurer,
		Action: string(rv.Status), OldStatus: string(models.RequestPending), NewStatus: string(rv.Status),
		Reason: rv.RejectionReason,
	})
	return nil
}

// lockPolicy locks the policy a request refers to.
func lockPolicy(tx *gorm.DB, id uuid.UUID) (*models.Policy, error) {
	var p models.Policy
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&p, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, policyNotFound()
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "lock policy")
	}
	return &p, nil
}

// ownedPolicy loads a policy held under the customer's email.
func ownedPolicy(tx *gorm.DB, customer *principals.Principal, id uuid.UUID) (*models.Policy, error) {
	var p models.Policy
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&p, "id = ? AND email_address = ?", id, principals.NormalizeEmail(customer.Email)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, policyNotFound()
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "load policy")
	}
	return &p, nil
}

// requesterHolds checks that the customer behind a request still holds the
// policy. An approved access request by another customer moves the holder.
func requesterHolds(tx *gorm.DB, customerID uuid.UUID, p *models.Policy) error {
	var c models.Customer
	err := tx.Select("id", "email").First(&c, "id = ?", customerID).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.Wrap(apperr.CodeInternal, err, "load customer")
	}
	if err != nil || principals.NormalizeEmail(c.Email) != principals.NormalizeEmail(p.EmailAddress) {
		return apperr.New(apperr.CodeStateConflict, "the requesting customer no longer holds this policy")
	}
	return nil
}

func pendingExists(tx *gorm.DB, model any, where string, args ...any) (bool, error) {
	var n int64
	err := tx.Model(model).Where(where, args...).Where("status = ?", models.RequestPending).Count(&n).Error
	if err != nil {
		return false, apperr.Wrap(apperr.CodeInternal, err, "check pending request")
	}
	return n > 0, nil
}

// insertErr maps the pending-request partial unique index to 409.
func insertErr(k Kind, err error) error {
	if database.IsUniqueViolation(err, "") {
		return alreadyPending(k)
	}
	return apperr.Wrap(apperr.CodeInternal, err, "create request")
}

func (s *Service) logSubmitted(ctx context.Context, tx *gorm.DB, k Kind, id uuid.UUID, customer *principals.Principal, reason string) {
	utils.LogEvent(ctx, tx, utils.Event{
		Entity: k.entity(), EntityID: id, ActorID: customer.ID, ActorRole: models.RoleCustomer,
		Action: "submit", NewStatus: string(models.RequestPending), Reason: reason,
	})
}

func (s *Service) transitioned(k Kind, action string) {
	s.rec.Transition(k.entity(), action)
}

/* ================================ Lists ================================= */

// Query selects requests of one kind for a customer or a company queue.
type Query struct {
	Kind       Kind
	CustomerID *uuid.UUID
	CompanyID  *uuid.UUID
	Status     models.RequestStatus
	Page       int
	Size       int
}

// summaryColumns is what a customer may see of a policy that may not be
// theirs yet.
var summaryColumns = []string{
	"id", "policy_number", "policy_type", "company_id", "registration_number",
	"make_model", "effective_date", "expiry_date", "status",
}

func (q Query) scope(db *gorm.DB) *gorm.DB {
	if q.CustomerID != nil {
		db = db.Where("customer_id = ?", *q.CustomerID)
	}
	if q.CompanyID != nil {
		db = db.Where("company_id = ?", *q.CompanyID)
	}
	if q.Status != "" {
		db = db.Where("status = ?", q.Status)
	}
	return db
}

func (q Query) preload(db *gorm.DB) *gorm.DB {
	if q.CompanyID != nil {
		return db.Preload("Policy")
	}
	return db.Preload("Policy", func(db *gorm.DB) *gorm.DB { return db.Select(summaryColumns) })
}

func page[T any](ctx context.Context, db *gorm.DB, q Query) (models.Page[T], error) {
	var total int64
	if err := db.WithContext(ctx).Model(new(T)).Scopes(q.scope).Count(&total).Error; err != nil {
		return models.Page[T]{}, apperr.Wrap(apperr.CodeInternal, err, "count requests")
	}
	var rows []T
	if err := db.WithContext(ctx).Model(new(T)).Scopes(q.scope, q.preload, utils.Paginate(q.Page, q.Size)).
		Order("created_at DESC").Find(&rows).Error; err != nil {
		return models.Page[T]{}, apperr.Wrap(apperr.CodeInternal, err, "list requests")
	}
	return utils.PageOf(q.Page, q.Size, total, rows), nil
}

// List pages through requests of q.Kind. The result is a models.Page of the
// kind's row type.
func (s *Service) List(ctx context.Context, q Query) (any, error) {
	switch q.Kind {
	case KindAccess:
		return page[models.PolicyAccessRequest](ctx, s.db, q)
	case KindCancellation:
		return page[models.PolicyCancellationRequest](ctx, s.db, q)
	case KindRenewal:
		return page[models.PolicyRenewalRequest](ctx, s.db, q)
	}
	return nil, apperr.Newf(apperr.CodeNotFound, "unknown request kind %q", q.Kind)
}
