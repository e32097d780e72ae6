// Package admin holds the administrator surfaces: account management,
// reference data (companies, regulatory bodies) and CSV exports.
package admin

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/aldoetobex/clearinsure-backend/internal/principals"
	"github.com/aldoetobex/clearinsure-backend/pkg/database"
	apperr "github.com/aldoetobex/clearinsure-backend/pkg/errors"
	"github.com/aldoetobex/clearinsure-backend/pkg/logger"
	"github.com/aldoetobex/clearinsure-backend/pkg/models"
	"github.com/aldoetobex/clearinsure-backend/pkg/utils"
)

type Service struct {
	db   *gorm.DB
	dir  *principals.Directory
	logg *logger.Logger
	now  func() time.Time
}

func NewService(db *gorm.DB, logg *logger.Logger) *Service {
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{db: db, dir: principals.NewDirectory(db), logg: logg, now: time.Now}
}

/* ================================ Users ================================= */

// User is an account as the admin console lists it.
type User struct {
	ID            uuid.UUID   `json:"id"`
	Role          models.Role `json:"role"`
	Username      string      `json:"username"`
	Email         string      `json:"email"`
	StaffID       string      `json:"staff_id,omitempty"`
	Active        bool        `json:"active"`
	Approved      bool        `json:"approved"`
	AffiliationID *uuid.UUID  `json:"affiliation_id,omitempty"`
	ApprovalDate  *time.Time  `json:"approval_date,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
}

func toUser(p *principals.Principal) User {
	return User{
		ID: p.ID, Role: p.Role, Username: p.Username, Email: p.Email, StaffID: p.StaffID,
		Active: p.Active, Approved: p.Approved, AffiliationID: p.AffiliationID,
		ApprovalDate: p.ApprovalDate, CreatedAt: p.CreatedAt,
	}
}

func (s *Service) ListUsers(ctx context.Context, role models.Role, page, size int) ([]User, int64, error) {
	rows, total, err := s.dir.ListByRole(ctx, role, page, size)
	if err != nil {
		return nil, 0, err
	}
	out := make([]User, 0, len(rows))
	for _, p := range rows {
		out = append(out, toUser(p))
	}
	return out, total, nil
}

// UserEdit carries the fields an admin may change; nil means unchanged.
type UserEdit struct {
	Username *string
	Email    *string
	StaffID  *string
	Password *string
}

// EditUser updates an account. Username and email stay unique across all
// roles, ignoring the account being edited.
func (s *Service) EditUser(ctx context.Context, admin *principals.Principal, id principals.Identity, e UserEdit) (*User, error) {
	if e.Username != nil || e.Email != nil {
		var email, username string
		if e.Email != nil {
			email = *e.Email
		}
		if e.Username != nil {
			username = *e.Username
		}
		existing, err := s.dir.FindByEmailOrUsername(ctx, email, username, &id.ID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			field := "username"
			if e.Email != nil && existing.Email == principals.NormalizeEmail(email) {
				field = "email"
			}
			return nil, apperr.Newf(apperr.CodeConflict, "%s already in use", field).
				WithDetails(map[string]string{"field": field})
		}
	}

	u := principals.ProfileUpdate{Username: e.Username, Email: e.Email, StaffID: e.StaffID}
	if e.Password != nil {
		hash, err := bcrypt.GenerateFromPassword([]byte(*e.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, apperr.Wrap(apperr.CodeInternal, err, "hash password")
		}
		h := string(hash)
		u.PasswordHash = &h
	}

	err := database.WithTx(ctx, s.db, func(tx *gorm.DB) error {
		if err := principals.Update(ctx, tx, id, u); err != nil {
			return err
		}
		utils.LogEvent(ctx, tx, utils.Event{
			Entity: string(id.Role), EntityID: id.ID, ActorID: admin.ID, ActorRole: models.RoleAdmin,
			Action: "edit",
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.user(ctx, id)
}

// SetActive enables or disables an account. Admins cannot disable themselves.
func (s *Service) SetActive(ctx context.Context, admin *principals.Principal, id principals.Identity, active bool) (*User, error) {
	if id == admin.Identity && !active {
		return nil, apperr.New(apperr.CodeStateConflict, "you cannot disable your own account")
	}
	action := "deactivate"
	if active {
		action = "activate"
	}
	err := database.WithTx(ctx, s.db, func(tx *gorm.DB) error {
		if err := principals.Update(ctx, tx, id, principals.ProfileUpdate{Active: &active}); err != nil {
			return err
		}
		utils.LogEvent(ctx, tx, utils.Event{
			Entity: string(id.Role), EntityID: id.ID, ActorID: admin.ID, ActorRole: models.RoleAdmin,
			Action: action,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{"principal": id.String(), "active": active}), "account status changed")
	return s.user(ctx, id)
}

func (s *Service) user(ctx context.Context, id principals.Identity) (*User, error) {
	p, err := s.dir.Resolve(ctx, id)
	if err != nil {
		if apperr.CodeOf(err) == apperr.CodeUnauthorized {
			return nil, apperr.New(apperr.CodeNotFound, "account not found")
		}
		return nil, err
	}
	u := toUser(p)
	return &u, nil
}

/* ============================ Reference data ============================ */

// RefKind names a reference table an admin maintains.
type RefKind string

const (
	RefCompanies RefKind = "companies"
	RefBodies    RefKind = "bodies"
)

func ParseRefKind(v string) (RefKind, bool) {
	switch RefKind(v) {
	case RefCompanies, RefBodies:
		return RefKind(v), true
	}
	return "", false
}

func (k RefKind) table() string {
	if k == RefBodies {
		return "regulatory_bodies"
	}
	return "companies"
}

func (k RefKind) noun() string {
	if k == RefBodies {
		return "regulatory body"
	}
	return "company"
}

// Ref is a company or regulatory body.
type Ref struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Service) ListRefs(ctx context.Context, kind RefKind) ([]Ref, error) {
	out := []Ref{}
	if err := s.db.WithContext(ctx).Table(kind.table()).
		Select("id, name, active, created_at").
		Order("name").Scan(&out).Error; err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "list "+kind.table())
	}
	return out, nil
}

// CreateRef adds an active company or regulatory body. Names are unique.
func (s *Service) CreateRef(ctx context.Context, admin *principals.Principal, kind RefKind, name string) (*Ref, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.New(apperr.CodeValidation, "name is required").
			WithDetails(map[string][]string{"name": {"This field is required"}})
	}

	var ref Ref
	err := database.WithTx(ctx, s.db, func(tx *gorm.DB) error {
		var id uuid.UUID
		var created time.Time
		var err error
		switch kind {
		case RefBodies:
			row := models.RegulatoryBody{Name: name, Active: true}
			err = tx.Create(&row).Error
			id, created = row.ID, row.CreatedAt
		default:
			row := models.Company{Name: name, Active: true}
			err = tx.Create(&row).Error
			id, created = row.ID, row.CreatedAt
		}
		if database.IsUniqueViolation(err, "") {
			return apperr.Newf(apperr.CodeConflict, "%s %q already exists", kind.noun(), name).
				WithDetails(map[string]string{"name": name})
		}
		if err != nil {
			return apperr.Wrap(apperr.CodeInternal, err, "create "+kind.noun())
		}
		ref = Ref{ID: id, Name: name, Active: true, CreatedAt: created}
		utils.LogEvent(ctx, tx, utils.Event{
			Entity: strings.ReplaceAll(kind.noun(), " ", "_"), EntityID: id, ActorID: admin.ID,
			ActorRole: models.RoleAdmin, Action: "create",
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &ref, nil
}

// ToggleRef flips the active flag. Inactive companies and bodies drop out of
// the onboarding options; existing affiliations are kept.
func (s *Service) ToggleRef(ctx context.Context, admin *principals.Principal, kind RefKind, id uuid.UUID) (*Ref, error) {
	var ref Ref
	err := database.WithTx(ctx, s.db, func(tx *gorm.DB) error {
		err := tx.Table(kind.table()).Select("id, name, active, created_at").
			Where("id = ?", id).Take(&ref).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.Newf(apperr.CodeNotFound, "%s not found", kind.noun())
		}
		if err != nil {
			return apperr.Wrap(apperr.CodeInternal, err, "load "+kind.noun())
		}
		ref.Active = !ref.Active
		if err := tx.Table(kind.table()).Where("id = ?", id).
			Updates(map[string]any{"active": ref.Active, "updated_at": s.now()}).Error; err != nil {
			return apperr.Wrap(apperr.CodeInternal, err, "update "+kind.noun())
		}
		action := "deactivate"
		if ref.Active {
			action = "activate"
		}
		utils.LogEvent(ctx, tx, utils.Event{
			Entity: strings.ReplaceAll(kind.noun(), " ", "_"), EntityID: id, ActorID: admin.ID,
			ActorRole: models.RoleAdmin, Action: action,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &ref, nil
}
