// Package principals resolves the four role variants (admin, customer,
// insurer, regulator) through one identity abstraction.
package principals

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aldoetobex/clearinsure-backend/pkg/database"
	apperr "github.com/aldoetobex/clearinsure-backend/pkg/errors"
	"github.com/aldoetobex/clearinsure-backend/pkg/models"
)

/* ============================== Identity ================================ */

// Identity is the tagged principal carried on the session: role plus id.
type Identity struct {
	Role models.Role
	ID   uuid.UUID
}

// String renders the session subject, e.g. "insurer_7d0c...".
func (i Identity) String() string {
	return string(i.Role) + "_" + i.ID.String()
}

// ParseIdentity is the inverse of Identity.String.
func ParseIdentity(s string) (Identity, error) {
	role, id, ok := strings.Cut(s, "_")
	if !ok {
		return Identity{}, fmt.Errorf("malformed identity %q", s)
	}
	r := models.Role(role)
	if !r.IsValid() {
		return Identity{}, fmt.Errorf("unknown role %q", role)
	}
	uid, err := uuid.Parse(id)
	if err != nil {
		return Identity{}, fmt.Errorf("malformed identity id: %w", err)
	}
	return Identity{Role: r, ID: uid}, nil
}

// Home maps each role to its landing route.
var Home = map[models.Role]string{
	models.RoleAdmin:     "/admin/dashboard",
	models.RoleCustomer:  "/customer/dashboard",
	models.RoleInsurer:   "/insurer/dashboard",
	models.RoleRegulator: "/regulator/dashboard",
}

/* ============================== Principal =============================== */

// Principal is the role-independent view of an account.
type Principal struct {
	Identity
	Username     string
	Email        string
	PasswordHash string
	StaffID      string
	Active       bool
	// Approved is always true for admins and customers.
	Approved bool
	// AffiliationID is the company (insurer) or regulatory body (regulator).
	AffiliationID *uuid.UUID
	ApprovalDate  *time.Time
	CreatedAt     time.Time
}

// NeedsApproval reports whether the role goes through onboarding.
func (p *Principal) NeedsApproval() bool {
	return p.Role == models.RoleInsurer || p.Role == models.RoleRegulator
}

func fromAdmin(a *models.Admin) *Principal {
	staff := ""
	if a.StaffID != nil {
		staff = *a.StaffID
	}
	return &Principal{
		Identity: Identity{Role: models.RoleAdmin, ID: a.ID},
		Username: a.Username, Email: a.Email, PasswordHash: a.PasswordHash,
		StaffID: staff, Active: a.Active, Approved: true, CreatedAt: a.CreatedAt,
	}
}

func fromCustomer(c *models.Customer) *Principal {
	return &Principal{
		Identity: Identity{Role: models.RoleCustomer, ID: c.ID},
		Username: c.Username, Email: c.Email, PasswordHash: c.PasswordHash,
		Active: c.Active, Approved: true, CreatedAt: c.CreatedAt,
	}
}

func fromInsurer(i *models.Insurer) *Principal {
	return &Principal{
		Identity: Identity{Role: models.RoleInsurer, ID: i.ID},
		Username: i.Username, Email: i.Email, PasswordHash: i.PasswordHash,
		StaffID: i.StaffID, Active: i.Active, Approved: i.Approved,
		AffiliationID: i.CompanyID, ApprovalDate: i.ApprovalDate, CreatedAt: i.CreatedAt,
	}
}

func fromRegulator(r *models.Regulator) *Principal {
	return &Principal{
		Identity: Identity{Role: models.RoleRegulator, ID: r.ID},
		Username: r.Username, Email: r.Email, PasswordHash: r.PasswordHash,
		StaffID: r.StaffID, Active: r.Active, Approved: r.Approved,
		AffiliationID: r.RegulatoryBodyID, ApprovalDate: r.ApprovalDate, CreatedAt: r.CreatedAt,
	}
}

// TableFor returns the role's home table.
func TableFor(role models.Role) string {
	switch role {
	case models.RoleAdmin:
		return "admins"
	case models.RoleCustomer:
		return "customers"
	case models.RoleInsurer:
		return "insurers"
	case models.RoleRegulator:
		return "regulators"
	}
	return ""
}

/* ============================== Directory =============================== */

type Directory struct{ db *gorm.DB }

func NewDirectory(db *gorm.DB) *Directory { return &Directory{db: db} }

// load fetches one principal of role matching the where clause.
func load(ctx context.Context, db *gorm.DB, role models.Role, query string, args ...any) (*Principal, error) {
	q := db.WithContext(ctx).Where(query, args...)
	var (
		p   *Principal
		err error
	)
	switch role {
	case models.RoleAdmin:
		var a models.Admin
		if err = q.First(&a).Error; err == nil {
			p = fromAdmin(&a)
		}
	case models.RoleCustomer:
		var c models.Customer
		if err = q.First(&c).Error; err == nil {
			p = fromCustomer(&c)
		}
	case models.RoleInsurer:
		var i models.Insurer
		if err = q.First(&i).Error; err == nil {
			p = fromInsurer(&i)
		}
	case models.RoleRegulator:
		var r models.Regulator
		if err = q.First(&r).Error; err == nil {
			p = fromRegulator(&r)
		}
	default:
		return nil, apperr.Newf(apperr.CodeUnauthorized, "unknown role %q", role)
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "load principal")
	}
	return p, nil
}

// Resolve loads the principal behind a session identity. Missing accounts
// are reported as unauthorized.
func (d *Directory) Resolve(ctx context.Context, id Identity) (*Principal, error) {
	p, err := load(ctx, d.db, id.Role, "id = ?", id.ID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, apperr.New(apperr.CodeUnauthorized, "account no longer exists")
	}
	return p, nil
}

// FindForLogin checks the role tables in the fixed order Admin, Customer,
// Insurer, Regulator and returns the first account with email.
func (d *Directory) FindForLogin(ctx context.Context, email string) (*Principal, error) {
	email = NormalizeEmail(email)
	for _, role := range models.Roles {
		p, err := load(ctx, d.db, role, "email = ?", email)
		if err != nil {
			return nil, err
		}
		if p != nil {
			return p, nil
		}
	}
	return nil, nil
}

// FindByEmailOrUsername returns the registry row holding either value, or
// nil. exclude skips one principal, for edits.
func (d *Directory) FindByEmailOrUsername(ctx context.Context, email, username string, exclude *uuid.UUID) (*models.PrincipalIdentity, error) {
	q := d.db.WithContext(ctx).
		Where("(email = ? OR username = ?)", NormalizeEmail(email), strings.TrimSpace(username))
	if exclude != nil {
		q = q.Where("principal_id <> ?", *exclude)
	}
	var row models.PrincipalIdentity
	err := q.First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "lookup identity")
	}
	return &row, nil
}

// ListByRole returns a page of principals of one role, newest first.
func (d *Directory) ListByRole(ctx context.Context, role models.Role, page, size int) ([]*Principal, int64, error) {
	table := TableFor(role)
	if table == "" {
		return nil, 0, apperr.Newf(apperr.CodeValidation, "unknown role %q", role)
	}
	var total int64
	if err := d.db.WithContext(ctx).Table(table).Count(&total).Error; err != nil {
		return nil, 0, apperr.Wrap(apperr.CodeInternal, err, "count principals")
	}

	q := d.db.WithContext(ctx).Order("created_at DESC").Offset((page - 1) * size).Limit(size)
	out := []*Principal{}
	var err error
	switch role {
	case models.RoleAdmin:
		var rows []models.Admin
		if err = q.Find(&rows).Error; err == nil {
			for i := range rows {
				out = append(out, fromAdmin(&rows[i]))
			}
		}
	case models.RoleCustomer:
		var rows []models.Customer
		if err = q.Find(&rows).Error; err == nil {
			for i := range rows {
				out = append(out, fromCustomer(&rows[i]))
			}
		}
	case models.RoleInsurer:
		var rows []models.Insurer
		if err = q.Find(&rows).Error; err == nil {
			for i := range rows {
				out = append(out, fromInsurer(&rows[i]))
			}
		}
	case models.RoleRegulator:
		var rows []models.Regulator
		if err = q.Find(&rows).Error; err == nil {
			for i := range rows {
				out = append(out, fromRegulator(&rows[i]))
			}
		}
	}
	if err != nil {
		return nil, 0, apperr.Wrap(apperr.CodeInternal, err, "list principals")
	}
	return out, total, nil
}

/* ============================== Onboarding ============================== */

// Onboarding states reported to unapproved insurers and regulators.
const (
	OnboardingNoRequest = "no_request"
	OnboardingPending   = "pending"
	OnboardingRejected  = "rejected"
	OnboardingApproved  = "approved"
)

// OnboardingState derives where an insurer or regulator is in onboarding
// from their latest request.
func (d *Directory) OnboardingState(ctx context.Context, p *Principal) (string, error) {
	if !p.NeedsApproval() || p.Approved {
		return OnboardingApproved, nil
	}
	var (
		status models.RequestStatus
		err    error
	)
	q := d.db.WithContext(ctx).Order("created_at DESC").Limit(1)
	if p.Role == models.RoleInsurer {
		var r models.InsurerRequest
		err = q.Where("insurer_id = ?", p.ID).First(&r).Error
		status = r.Status
	} else {
		var r models.RegulatorRequest
		err = q.Where("regulator_id = ?", p.ID).First(&r).Error
		status = r.Status
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return OnboardingNoRequest, nil
	}
	if err != nil {
		return "", apperr.Wrap(apperr.CodeInternal, err, "load onboarding request")
	}
	switch status {
	case models.RequestPending:
		return OnboardingPending, nil
	case models.RequestRejected:
		return OnboardingRejected, nil
	}
	// approved request but principal not flagged; treat as pending review
	return OnboardingPending, nil
}

/* =============================== Writes ================================= */

// NewAccount is the input for Create.
type NewAccount struct {
	Role         models.Role
	Username     string
	Email        string
	PasswordHash string
	StaffID      string
}

// Create writes the role row and its registry entry in tx. Insurers and
// regulators start unapproved and unaffiliated.
func Create(ctx context.Context, tx *gorm.DB, in NewAccount) (*Principal, error) {
	in.Email = NormalizeEmail(in.Email)
	in.Username = strings.TrimSpace(in.Username)
	tx = tx.WithContext(ctx)

	var p *Principal
	switch in.Role {
	case models.RoleAdmin:
		a := models.Admin{Username: in.Username, Email: in.Email, PasswordHash: in.PasswordHash, Active: true}
		if in.StaffID != "" {
			staff := in.StaffID
			a.StaffID = &staff
		}
		if err := tx.Create(&a).Error; err != nil {
			return nil, createErr(err)
		}
		p = fromAdmin(&a)
	case models.RoleCustomer:
		c := models.Customer{Username: in.Username, Email: in.Email, PasswordHash: in.PasswordHash, Active: true}
		if err := tx.Create(&c).Error; err != nil {
			return nil, createErr(err)
		}
		p = fromCustomer(&c)
	case models.RoleInsurer:
		i := models.Insurer{Username: in.Username, Email: in.Email, PasswordHash: in.PasswordHash, StaffID: in.StaffID, Active: true}
		if err := tx.Create(&i).Error; err != nil {
			return nil, createErr(err)
		}
		p = fromInsurer(&i)
	case models.RoleRegulator:
		r := models.Regulator{Username: in.Username, Email: in.Email, PasswordHash: in.PasswordHash, StaffID: in.StaffID, Active: true}
		if err := tx.Create(&r).Error; err != nil {
			return nil, createErr(err)
		}
		p = fromRegulator(&r)
	default:
		return nil, apperr.Newf(apperr.CodeValidation, "unknown role %q", in.Role)
	}

	reg := models.PrincipalIdentity{Role: in.Role, PrincipalID: p.ID, Username: in.Username, Email: in.Email}
	if err := tx.Create(&reg).Error; err != nil {
		return nil, createErr(err)
	}
	return p, nil
}

// ProfileUpdate carries the editable account fields; nil means unchanged.
type ProfileUpdate struct {
	Username     *string
	Email        *string
	StaffID      *string
	PasswordHash *string
	Active       *bool
}

// Update applies u to the principal and keeps the registry in step.
func Update(ctx context.Context, tx *gorm.DB, id Identity, u ProfileUpdate) error {
	tx = tx.WithContext(ctx)
	fields := map[string]any{}
	registry := map[string]any{}
	if u.Username != nil {
		name := strings.TrimSpace(*u.Username)
		fields["username"] = name
		registry["username"] = name
	}
	if u.Email != nil {
		email := NormalizeEmail(*u.Email)
		fields["email"] = email
		registry["email"] = email
	}
	if u.StaffID != nil && id.Role != models.RoleCustomer {
		fields["staff_id"] = strings.TrimSpace(*u.StaffID)
	}
	if u.PasswordHash != nil {
		fields["password_hash"] = *u.PasswordHash
	}
	if u.Active != nil {
		fields["active"] = *u.Active
	}
	if len(fields) == 0 {
		return nil
	}
	fields["updated_at"] = time.Now()

	res := tx.Table(TableFor(id.Role)).Where("id = ?", id.ID).Updates(fields)
	if res.Error != nil {
		return createErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.New(apperr.CodeNotFound, "account not found")
	}
	if len(registry) > 0 {
		if err := tx.Model(&models.PrincipalIdentity{}).
			Where("principal_id = ?", id.ID).
			Updates(registry).Error; err != nil {
			return createErr(err)
		}
	}
	return nil
}

func createErr(err error) error {
	if database.IsUniqueViolation(err, "") {
		return apperr.Wrap(apperr.CodeConflict, err, "username or email already in use")
	}
	return apperr.Wrap(apperr.CodeInternal, err, "write principal")
}

func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
