// Package policies owns the policy lifecycle: issuance by an insurer,
// cancellation, photo attachments and company-scoped listings.
package policies

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
	"github.com/aldoetobex/clearinsure-backend/pkg/validation"
)

type Service struct {
	db    *gorm.DB
	store storage.ObjectStore
	rec   *metrics.Recorder
	logg  *logger.Logger
	now   func() time.Time
}

type Params struct {
	DB       *gorm.DB
	Store    storage.ObjectStore
	Recorder *metrics.Recorder
	Logger   *logger.Logger
}

func NewService(p Params) *Service {
	if p.Logger == nil {
		p.Logger = logger.Nop()
	}
	return &Service{db: p.DB, store: p.Store, rec: p.Recorder, logg: p.Logger, now: time.Now}
}

/* ================================ Views ================================= */

// View is a policy with its read-time status.
type View struct {
	models.Policy
	EffectiveStatus models.PolicyStatus `json:"effective_status"`
	DaysUntilExpiry int                 `json:"days_until_expiry"`
}

func NewView(p models.Policy, now time.Time) View {
	return View{Policy: p, EffectiveStatus: p.EffectiveStatus(now), DaysUntilExpiry: p.DaysUntilExpiry(now)}
}

// StatusScope filters by derived status. Expired is a stored Active row whose
// expiry date is before today.
func StatusScope(status models.PolicyStatus, now time.Time) func(*gorm.DB) *gorm.DB {
	today := models.DateOf(now)
	return func(db *gorm.DB) *gorm.DB {
		switch status {
		case models.PolicyActive:
			return db.Where("policies.status = ? AND policies.expiry_date >= ?", models.PolicyActive, today)
		case models.PolicyExpired:
			return db.Where("policies.status = ? AND policies.expiry_date < ?", models.PolicyActive, today)
		case models.PolicyCancelled:
			return db.Where("policies.status = ?", models.PolicyCancelled)
		}
		return db
	}
}

func notFound() error { return apperr.New(apperr.CodeNotFound, "policy not found") }

/* ================================ Create ================================ */

// Application is the insurer-entered policy form.
type Application struct {
	PolicyType    models.CoverType
	EffectiveDate time.Time
	PremiumAmount decimal.Decimal
	PaymentMode   string

	InsuredName   string
	NationalID    string
	KRAPin        string
	DateOfBirth   *time.Time
	PhoneNumber   string
	EmailAddress  string
	PostalAddress string

	RegistrationNumber string
	MakeModel          string
	YearOfManufacture  int
	ChassisNumber      string
	EngineNumber       string
	BodyType           string
	Color              string
	SeatingCapacity    int
	UseCategory        string

	SumInsured         decimal.Decimal
	Excess             decimal.Decimal
	PoliticalViolence  bool
	WindscreenCover    bool
	PassengerLiability bool
	RoadRescue         bool

	QuoteID *uuid.UUID
}

// Create issues a policy for the insurer's company. At most one effectively
// Active policy may hold a registration number; creation is serialized per
// registration. Photos are staged and promoted only after commit.
func (s *Service) Create(ctx context.Context, insurer *principals.Principal, app Application, photos []storage.Upload) (*View, error) {
	companyID := *insurer.AffiliationID
	app.RegistrationNumber = validation.NormalizePlate(app.RegistrationNumber)
	app.EmailAddress = principals.NormalizeEmail(app.EmailAddress)
	now := s.now()

	p := models.Policy{
		PolicyType:         app.PolicyType,
		CompanyID:          companyID,
		CreatedBy:          insurer.ID,
		QuoteID:            app.QuoteID,
		EffectiveDate:      models.DateOf(app.EffectiveDate),
		ExpiryDate:         models.DateOf(app.EffectiveDate).AddDate(1, 0, 0),
		PremiumAmount:      app.PremiumAmount.Round(2),
		PaymentMode:        strings.TrimSpace(app.PaymentMode),
		InsuredName:        strings.TrimSpace(app.InsuredName),
		NationalID:         strings.TrimSpace(app.NationalID),
		KRAPin:             strings.ToUpper(strings.TrimSpace(app.KRAPin)),
		DateOfBirth:        app.DateOfBirth,
		PhoneNumber:        strings.TrimSpace(app.PhoneNumber),
		EmailAddress:       app.EmailAddress,
		PostalAddress:      strings.TrimSpace(app.PostalAddress),
		RegistrationNumber: app.RegistrationNumber,
		MakeModel:          strings.TrimSpace(app.MakeModel),
		YearOfManufacture:  app.YearOfManufacture,
		ChassisNumber:      strings.ToUpper(strings.TrimSpace(app.ChassisNumber)),
		EngineNumber:       strings.ToUpper(strings.TrimSpace(app.EngineNumber)),
		BodyType:           strings.TrimSpace(app.BodyType),
		Color:              strings.TrimSpace(app.Color),
		SeatingCapacity:    app.SeatingCapacity,
		UseCategory:        strings.TrimSpace(app.UseCategory),
		SumInsured:         app.SumInsured.Round(2),
		Excess:             app.Excess.Round(2),
		PoliticalViolence:  app.PoliticalViolence,
		WindscreenCover:    app.WindscreenCover,
		PassengerLiability: app.PassengerLiability,
		RoadRescue:         app.RoadRescue,
		Status:             models.PolicyActive,
	}

	batch := storage.NewBatch(s.store, s.logg)
	err := database.WithTx(ctx, s.db, func(tx *gorm.DB) error {
		if err := database.LockKey(tx, "policy_registration:"+p.RegistrationNumber); err != nil {
			return apperr.Wrap(apperr.CodeInternal, err, "lock registration")
		}
		if err := checkRegistration(tx, p.RegistrationNumber, uuid.Nil, now); err != nil {
			return err
		}

		var quote *models.Quote
		if app.QuoteID != nil {
			q, err := convertibleQuote(tx, companyID, *app.QuoteID, now)
			if err != nil {
				return err
			}
			quote = q
		}

		number, err := sequence.NextNumber(tx, p.PolicyType.NumberPrefix())
		if err != nil {
			return apperr.Wrap(apperr.CodeInternal, err, "allocate policy number")
		}
		p.PolicyNumber = number

		if err := tx.Create(&p).Error; err != nil {
			return apperr.Wrap(apperr.CodeInternal, err, "create policy")
		}

		rows, err := stagePhotos(ctx, batch, p.ID, photos)
		if err != nil {
			return err
		}
		if len(rows) > 0 {
			if err := tx.Create(&rows).Error; err != nil {
				return apperr.Wrap(apperr.CodeInternal, err, "save policy photos")
			}
		}
		p.Photos = rows

		if quote != nil {
			if err := tx.Model(quote).Updates(map[string]any{
				"status": models.QuoteConverted, "policy_id": p.ID,
			}).Error; err != nil {
				return apperr.Wrap(apperr.CodeInternal, err, "convert quote")
			}
		}

		utils.LogEvent(ctx, tx, utils.Event{
			Entity: "policy", EntityID: p.ID, ActorID: insurer.ID, ActorRole: models.RoleInsurer,
			Action: "create", NewStatus: string(models.PolicyActive),
		})
		return nil
	})
	if err != nil {
		batch.Discard(ctx)
		return nil, err
	}
	_ = batch.Promote(ctx)

	s.rec.Transition("policy", "create")
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{"policy_number": p.PolicyNumber, "company_id": companyID}), "policy created")
	v := NewView(p, now)
	return &v, nil
}

func checkRegistration(tx *gorm.DB, reg string, exclude uuid.UUID, now time.Time) error {
	var existing models.Policy
	q := tx.Scopes(StatusScope(models.PolicyActive, now)).Where("registration_number = ?", reg)
	if exclude != uuid.Nil {
		q = q.Where("id <> ?", exclude)
	}
	err := q.Select("id", "policy_number").First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return apperr.Wrap(apperr.CodeInternal, err, "check registration")
	}
	return apperr.Newf(apperr.CodeConflict, "vehicle %s already has an active policy %s", reg, existing.PolicyNumber).
		WithDetails(map[string]string{"registration_number": reg, "policy_number": existing.PolicyNumber})
}

func convertibleQuote(tx *gorm.DB, companyID, quoteID uuid.UUID, now time.Time) (*models.Quote, error) {
	var q models.Quote
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&q, "id = ? AND company_id = ?", quoteID, companyID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.New(apperr.CodeNotFound, "quote not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "load quote")
	}
	if st := q.EffectiveStatus(now); st != models.QuoteSent {
		return nil, apperr.Newf(apperr.CodeStateConflict, "quote is already %s", st)
	}
	return &q, nil
}

func stagePhotos(ctx context.Context, batch *storage.Batch, policyID uuid.UUID, photos []storage.Upload) ([]models.PolicyPhoto, error) {
	rows := make([]models.PolicyPhoto, 0, len(photos))
	for _, u := range photos {
		key := storage.ObjectKey("policy", policyID, u.Slot, u.Header.Filename)
		if err := batch.Stage(ctx, key, u); err != nil {
			return nil, apperr.Wrap(apperr.CodeDependency, err, "upload policy photo")
		}
		rows = append(rows, models.PolicyPhoto{
			PolicyID: policyID, Slot: u.Slot, Key: key, Mime: u.Mime,
			Size: u.Header.Size, OriginalName: u.Header.Filename,
		})
	}
	return rows, nil
}

/* ============================ Photo upload ============================== */

// AttachPhotos adds or replaces photos on an existing company policy. A new
// file in an occupied slot replaces the old one.
func (s *Service) AttachPhotos(ctx context.Context, insurer *principals.Principal, policyID uuid.UUID, photos []storage.Upload) ([]models.PolicyPhoto, error) {
	if len(photos) == 0 {
		return nil, apperr.New(apperr.CodeValidation, "no photos in a recognised slot").
			WithDetails(map[string][]string{"photos": {"This field is required"}})
	}

	batch := storage.NewBatch(s.store, s.logg)
	var (
		rows     []models.PolicyPhoto
		replaced []string
	)
	err := database.WithTx(ctx, s.db, func(tx *gorm.DB) error {
		var p models.Policy
		if err := tx.Select("id").First(&p, "id = ? AND company_id = ?", policyID, *insurer.AffiliationID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound()
			}
			return apperr.Wrap(apperr.CodeInternal, err, "load policy")
		}

		slots := make([]string, 0, len(photos))
		for _, u := range photos {
			slots = append(slots, u.Slot)
		}
		var old []models.PolicyPhoto
		if err := tx.Where("policy_id = ? AND slot IN ?", p.ID, slots).Find(&old).Error; err != nil {
			return apperr.Wrap(apperr.CodeInternal, err, "load photos")
		}
		for _, o := range old {
			replaced = append(replaced, o.Key)
		}
		if len(old) > 0 {
			if err := tx.Delete(&old).Error; err != nil {
				return apperr.Wrap(apperr.CodeInternal, err, "replace photos")
			}
		}

		var err error
		if rows, err = stagePhotos(ctx, batch, p.ID, photos); err != nil {
			return err
		}
		if err := tx.Create(&rows).Error; err != nil {
			return apperr.Wrap(apperr.CodeInternal, err, "save policy photos")
		}
		return nil
	})
	if err != nil {
		batch.Discard(ctx)
		return nil, err
	}
	_ = batch.Promote(ctx)
	for _, key := range replaced {
		if err := s.store.Delete(ctx, key); err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "object_key", key), "delete replaced photo: "+err.Error())
		}
	}
	return rows, nil
}

/* ================================ Cancel ================================ */

// CancelResult reports whether the call changed anything.
type CancelResult struct {
	Policy           View `json:"policy"`
	AlreadyCancelled bool `json:"already_cancelled"`
}

// Cancel moves an Active policy of the insurer's company to Cancelled.
// Cancelling a Cancelled policy is a no-op; an Expired one is a conflict.
func (s *Service) Cancel(ctx context.Context, insurer *principals.Principal, policyID uuid.UUID, reason string) (*CancelResult, error) {
	reason = sanitize.Text(reason)
	if reason == "" {
		return nil, apperr.New(apperr.CodeValidation, "a cancellation reason is required").
			WithDetails(map[string][]string{"reason": {"This field is required"}})
	}

	now := s.now()
	var out CancelResult
	err := database.WithTx(ctx, s.db, func(tx *gorm.DB) error {
		var p models.Policy
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&p, "id = ? AND company_id = ?", policyID, *insurer.AffiliationID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound()
			}
			return apperr.Wrap(apperr.CodeInternal, err, "lock policy")
		}

		if p.Status == models.PolicyCancelled {
			out = CancelResult{Policy: NewView(p, now), AlreadyCancelled: true}
			return nil
		}
		if err := ApplyCancellation(ctx, tx, &p, insurer.ID, reason, now); err != nil {
			return err
		}
		out = CancelResult{Policy: NewView(p, now)}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !out.AlreadyCancelled {
		s.rec.Transition("policy", "cancel")
	}
	return &out, nil
}

// ApplyCancellation cancels a locked policy row inside tx. Only effectively
// Active policies can be cancelled.
func ApplyCancellation(ctx context.Context, tx *gorm.DB, p *models.Policy, by uuid.UUID, reason string, now time.Time) error {
	if st := p.EffectiveStatus(now); st != models.PolicyActive {
		return apperr.Newf(apperr.CodeStateConflict, "policy is %s", st).
			WithDetails(map[string]string{"status": string(st)})
	}
	p.Status = models.PolicyCancelled
	p.CancelledBy = &by
	p.CancellationDate = &now
	p.CancellationReason = reason
	if err := tx.Model(p).Select("status", "cancelled_by", "cancellation_date", "cancellation_reason").Updates(p).Error; err != nil {
		return apperr.Wrap(apperr.CodeInternal, err, "cancel policy")
	}
	utils.LogEvent(ctx, tx, utils.Event{
		Entity: "policy", EntityID: p.ID, ActorID: by, ActorRole: models.RoleInsurer,
		Action: "cancel", OldStatus: string(models.PolicyActive), NewStatus: string(models.PolicyCancelled), Reason: reason,
	})
	return nil
}

// Renewal is the new term an approved renewal request applies.
type Renewal struct {
	EffectiveDate time.Time
	ExpiryDate    time.Time
	Premium       decimal.NullDecimal
}

// ApplyRenewal moves a locked policy row onto a new term inside tx. The
// policy keeps its number; a Cancelled policy is never renewed, and the
// vehicle must not have picked up another active policy meanwhile.
func ApplyRenewal(ctx context.Context, tx *gorm.DB, p *models.Policy, by uuid.UUID, r Renewal, now time.Time) error {
	if p.Status == models.PolicyCancelled {
		return apperr.New(apperr.CodeStateConflict, "a cancelled policy cannot be renewed").
			WithDetails(map[string]string{"status": string(p.Status)})
	}
	if err := database.LockKey(tx, "policy_registration:"+p.RegistrationNumber); err != nil {
		return apperr.Wrap(apperr.CodeInternal, err, "lock registration")
	}
	if err := checkRegistration(tx, p.RegistrationNumber, p.ID, now); err != nil {
		return err
	}

	old := p.EffectiveStatus(now)
	p.EffectiveDate = models.DateOf(r.EffectiveDate)
	p.ExpiryDate = models.DateOf(r.ExpiryDate)
	p.Status = models.PolicyActive
	p.RenewedAt = &now
	cols := []string{"effective_date", "expiry_date", "status", "renewed_at"}
	if r.Premium.Valid {
		p.PremiumAmount = r.Premium.Decimal.Round(2)
		cols = append(cols, "premium_amount")
	}
	if err := tx.Model(p).Select(cols).Updates(p).Error; err != nil {
		return apperr.Wrap(apperr.CodeInternal, err, "renew policy")
	}
	utils.LogEvent(ctx, tx, utils.Event{
		Entity: "policy", EntityID: p.ID, ActorID: by, ActorRole: models.RoleInsurer,
		Action: "renew", OldStatus: string(old), NewStatus: string(models.PolicyActive),
	})
	return nil
}

/* ================================= Read ================================= */

// Filter narrows policy listings.
type Filter struct {
	Status models.PolicyStatus
	Search string
	Page   int
	Size   int
}

func (f Filter) scope(now time.Time) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		db = db.Scopes(StatusScope(f.Status, now))
		if q := strings.ToLower(strings.TrimSpace(f.Search)); q != "" {
			like := "%" + q + "%"
			db = db.Where("(LOWER(policy_number) LIKE ? OR LOWER(registration_number) LIKE ? OR LOWER(insured_name) LIKE ?)", like, like, like)
		}
		return db
	}
}

func (s *Service) list(ctx context.Context, base func(*gorm.DB) *gorm.DB, f Filter) ([]View, int64, error) {
	now := s.now()
	var total int64
	if err := s.db.WithContext(ctx).Model(&models.Policy{}).Scopes(base, f.scope(now)).Count(&total).Error; err != nil {
		return nil, 0, apperr.Wrap(apperr.CodeInternal, err, "count policies")
	}
	var rows []models.Policy
	if err := s.db.WithContext(ctx).Scopes(base, f.scope(now), utils.Paginate(f.Page, f.Size)).
		Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, 0, apperr.Wrap(apperr.CodeInternal, err, "list policies")
	}
	out := make([]View, 0, len(rows))
	for _, p := range rows {
		out = append(out, NewView(p, now))
	}
	return out, total, nil
}

// ListCompany pages through one company's policies.
func (s *Service) ListCompany(ctx context.Context, companyID uuid.UUID, f Filter) ([]View, int64, error) {
	return s.list(ctx, func(db *gorm.DB) *gorm.DB { return db.Where("company_id = ?", companyID) }, f)
}

// ListOwned pages through the policies whose holder email is email.
func (s *Service) ListOwned(ctx context.Context, email string, f Filter) ([]View, int64, error) {
	email = principals.NormalizeEmail(email)
	return s.list(ctx, func(db *gorm.DB) *gorm.DB { return db.Where("email_address = ?", email) }, f)
}

// GetCompany loads a company policy with photos.
func (s *Service) GetCompany(ctx context.Context, companyID, id uuid.UUID) (*View, error) {
	return s.get(ctx, "id = ? AND company_id = ?", id, companyID)
}

// GetOwned loads a policy owned by email.
func (s *Service) GetOwned(ctx context.Context, email string, id uuid.UUID) (*View, error) {
	return s.get(ctx, "id = ? AND email_address = ?", id, principals.NormalizeEmail(email))
}

func (s *Service) get(ctx context.Context, query string, args ...any) (*View, error) {
	var p models.Policy
	err := s.db.WithContext(ctx).
		Preload("Photos", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Where(query, args...).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound()
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "load policy")
	}
	if p.Photos == nil {
		p.Photos = []models.PolicyPhoto{}
	}
	v := NewView(p, s.now())
	return &v, nil
}
