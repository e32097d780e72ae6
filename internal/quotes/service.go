// Package quotes prices vehicle covers against a company's rate card, keeps
// the last calculation as a read-once draft and records issued quotes.
package quotes

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aldoetobex/clearinsure-backend/internal/principals"
	"github.com/aldoetobex/clearinsure-backend/pkg/database"
	apperr "github.com/aldoetobex/clearinsure-backend/pkg/errors"
	"github.com/aldoetobex/clearinsure-backend/pkg/logger"
	"github.com/aldoetobex/clearinsure-backend/pkg/metrics"
	"github.com/aldoetobex/clearinsure-backend/pkg/models"
	"github.com/aldoetobex/clearinsure-backend/pkg/premium"
	"github.com/aldoetobex/clearinsure-backend/pkg/redis"
	"github.com/aldoetobex/clearinsure-backend/pkg/sequence"
	"github.com/aldoetobex/clearinsure-backend/pkg/utils"
)

const (
	DraftTTL      = 30 * time.Minute
	QuoteValidity = 30 * 24 * time.Hour
)

type Service struct {
	db     *gorm.DB
	drafts redis.DraftStore
	ttl    time.Duration
	rec    *metrics.Recorder
	logg   *logger.Logger
	now    func() time.Time
}

type Params struct {
	DB       *gorm.DB
	Drafts   redis.DraftStore
	DraftTTL time.Duration
	Recorder *metrics.Recorder
	Logger   *logger.Logger
}

func NewService(p Params) *Service {
	if p.Logger == nil {
		p.Logger = logger.Nop()
	}
	if p.DraftTTL <= 0 {
		p.DraftTTL = DraftTTL
	}
	return &Service{db: p.DB, drafts: p.Drafts, ttl: p.DraftTTL, rec: p.Recorder, logg: p.Logger, now: time.Now}
}

// View is a quote with its read-time status.
type View struct {
	models.Quote
	EffectiveStatus models.QuoteStatus `json:"effective_status"`
}

func (s *Service) view(q models.Quote) View {
	return View{Quote: q, EffectiveStatus: q.EffectiveStatus(s.now())}
}

func activeRate(db *gorm.DB, companyID uuid.UUID, cover models.CoverType) (*models.PremiumRate, error) {
	var r models.PremiumRate
	err := db.First(&r, "company_id = ? AND cover_type = ? AND active = ?", companyID, cover, true).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.Newf(apperr.CodeNotFound, "no active premium rate for %s", cover)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "load premium rate")
	}
	return &r, nil
}

func (s *Service) price(db *gorm.DB, companyID uuid.UUID, in premium.Input) (premium.Breakdown, error) {
	rate, err := activeRate(db, companyID, in.CoverType)
	if err != nil {
		return premium.Breakdown{}, err
	}
	b, err := premium.Calculate(*rate, in)
	if errors.Is(err, premium.ErrUnknownCover) {
		return premium.Breakdown{}, apperr.New(apperr.CodeValidation, "unknown cover type").
			WithDetails(map[string][]string{"cover_type": {"Value is not allowed"}})
	}
	return b, err
}

/* ============================== Calculator ============================== */

// Calculate prices in against the insurer's company rate card and keeps the
// result as the insurer's draft, replacing any earlier one.
func (s *Service) Calculate(ctx context.Context, insurer *principals.Principal, in premium.Input) (*premium.Breakdown, error) {
	b, err := s.price(s.db.WithContext(ctx), *insurer.AffiliationID, in)
	if err != nil {
		return nil, err
	}
	if s.drafts != nil {
		payload, err := json.Marshal(b)
		if err == nil {
			err = s.drafts.SaveDraft(ctx, insurer.ID.String(), payload, s.ttl)
		}
		if err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "quote draft not saved")
		}
	}
	return &b, nil
}

// ConsumeDraft returns the insurer's last calculation and clears it.
func (s *Service) ConsumeDraft(ctx context.Context, insurer *principals.Principal) (*premium.Breakdown, error) {
	if s.drafts == nil {
		return nil, apperr.New(apperr.CodeNotFound, "no calculation draft")
	}
	raw, err := s.drafts.TakeDraft(ctx, insurer.ID.String())
	if errors.Is(err, redis.ErrNotFound) {
		return nil, apperr.New(apperr.CodeNotFound, "no calculation draft")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeDependency, err, "load calculation draft")
	}
	var b premium.Breakdown
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "decode calculation draft")
	}
	return &b, nil
}

/* ================================ Quotes ================================ */

// Issue is what an insurer sends to a prospective customer.
type Issue struct {
	CustomerName  string
	CustomerEmail string
	Input         premium.Input
}

// Save prices the issue again server-side and records it as a Sent quote
// valid for thirty days.
func (s *Service) Save(ctx context.Context, insurer *principals.Principal, in Issue) (*View, error) {
	companyID := *insurer.AffiliationID
	now := s.now().UTC()

	var q models.Quote
	err := database.WithTx(ctx, s.db, func(tx *gorm.DB) error {
		b, err := s.price(tx, companyID, in.Input)
		if err != nil {
			return err
		}
		number, err := sequence.NextNumber(tx, sequence.QuotePrefix)
		if err != nil {
			return apperr.Wrap(apperr.CodeInternal, err, "allocate quote number")
		}
		q = models.Quote{
			QuoteNumber:        number,
			CompanyID:          companyID,
			CreatedBy:          insurer.ID,
			CustomerName:       strings.TrimSpace(in.CustomerName),
			CustomerEmail:      principals.NormalizeEmail(in.CustomerEmail),
			CoverType:          b.CoverType,
			VehicleValue:       b.VehicleValue.Round(2),
			UseCategory:        strings.TrimSpace(b.UseCategory),
			PoliticalViolence:  b.AddOns.PoliticalViolence,
			WindscreenCover:    b.AddOns.WindscreenCover,
			PassengerLiability: b.AddOns.PassengerLiability,
			RoadRescue:         b.AddOns.RoadRescue,
			BasePremium:        b.BasePremium,
			AddOnsTotal:        b.AddOnsTotal,
			TotalPremium:       b.TotalPremium,
			ValidUntil:         now.Add(QuoteValidity),
			Status:             models.QuoteSent,
		}
		if err := tx.Create(&q).Error; err != nil {
			return apperr.Wrap(apperr.CodeInternal, err, "create quote")
		}
		utils.LogEvent(ctx, tx, utils.Event{
			Entity: "quote", EntityID: q.ID, ActorID: insurer.ID, ActorRole: models.RoleInsurer,
			Action: "issue", NewStatus: string(models.QuoteSent),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.rec.Transition("quote", "issue")
	v := s.view(q)
	return &v, nil
}

// List pages through a company's quotes. Status filters on the read-time
// status, so Expired matches unconverted quotes past their validity.
func (s *Service) List(ctx context.Context, companyID uuid.UUID, status models.QuoteStatus, page, size int) ([]View, int64, error) {
	now := s.now().UTC()
	scope := func(db *gorm.DB) *gorm.DB {
		db = db.Where("company_id = ?", companyID)
		switch status {
		case models.QuoteSent:
			db = db.Where("status = ? AND valid_until >= ?", models.QuoteSent, now)
		case models.QuoteExpired:
			db = db.Where("status = ? AND valid_until < ?", models.QuoteSent, now)
		case models.QuoteConverted:
			db = db.Where("status = ?", models.QuoteConverted)
		}
		return db
	}

	var total int64
	if err := s.db.WithContext(ctx).Model(&models.Quote{}).Scopes(scope).Count(&total).Error; err != nil {
		return nil, 0, apperr.Wrap(apperr.CodeInternal, err, "count quotes")
	}
	var rows []models.Quote
	if err := s.db.WithContext(ctx).Scopes(scope, utils.Paginate(page, size)).
		Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, 0, apperr.Wrap(apperr.CodeInternal, err, "list quotes")
	}
	out := make([]View, 0, len(rows))
	for _, q := range rows {
		out = append(out, s.view(q))
	}
	return out, total, nil
}

// Get loads one company quote.
func (s *Service) Get(ctx context.Context, companyID, id uuid.UUID) (*View, error) {
	var q models.Quote
	err := s.db.WithContext(ctx).First(&q, "id = ? AND company_id = ?", id, companyID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.New(apperr.CodeNotFound, "quote not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "load quote")
	}
	v := s.view(q)
	return &v, nil
}
