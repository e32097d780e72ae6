package quotes

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aldoetobex/clearinsure-backend/internal/principals"
	"github.com/aldoetobex/clearinsure-backend/pkg/database"
	apperr "github.com/aldoetobex/clearinsure-backend/pkg/errors"
	"github.com/aldoetobex/clearinsure-backend/pkg/models"
	"github.com/aldoetobex/clearinsure-backend/pkg/utils"
)

// rateColumns are overwritten when a rate for (company, cover) already exists.
var rateColumns = []string{
	"comprehensive_min_rate", "comprehensive_max_rate", "comprehensive_default_rate",
	"tpo_flat_rate", "tpft_base_rate", "tpft_percentage",
	"psv_taxi_rate", "psv_matatu_14_rate", "psv_matatu_25_rate", "psv_bus_rate",
	"active", "updated_at",
}

func checkRate(r *models.PremiumRate) error {
	fields := map[string]decimal.Decimal{
		"comprehensive_min_rate": r.ComprehensiveMinRate, "comprehensive_max_rate": r.ComprehensiveMaxRate,
		"comprehensive_default_rate": r.ComprehensiveDefaultRate, "tpo_flat_rate": r.TPOFlatRate,
		"tpft_base_rate": r.TPFTBaseRate, "tpft_percentage": r.TPFTPercentage,
		"psv_taxi_rate": r.PSVTaxiRate, "psv_matatu_14_rate": r.PSVMatatu14Rate,
		"psv_matatu_25_rate": r.PSVMatatu25Rate, "psv_bus_rate": r.PSVBusRate,
	}
	errs := map[string][]string{}
	for name, v := range fields {
		if v.IsNegative() {
			errs[name] = append(errs[name], "Must be at least 0")
		}
	}
	if r.CoverType == models.CoverComprehensive {
		if r.ComprehensiveDefaultRate.LessThan(r.ComprehensiveMinRate) || r.ComprehensiveDefaultRate.GreaterThan(r.ComprehensiveMaxRate) {
			errs["comprehensive_default_rate"] = append(errs["comprehensive_default_rate"], "Must lie between the minimum and maximum rate")
		}
	}
	if len(errs) > 0 {
		return apperr.New(apperr.CodeValidation, "invalid premium rate").WithDetails(errs)
	}
	return nil
}

// UpsertRate sets the rate a company charges for one cover type.
func (s *Service) UpsertRate(ctx context.Context, admin *principals.Principal, r models.PremiumRate) (*models.PremiumRate, error) {
	if !r.CoverType.IsValid() {
		return nil, apperr.New(apperr.CodeValidation, "unknown cover type").
			WithDetails(map[string][]string{"cover_type": {"Value is not allowed"}})
	}
	if err := checkRate(&r); err != nil {
		return nil, err
	}

	var out models.PremiumRate
	err := database.WithTx(ctx, s.db, func(tx *gorm.DB) error {
		var company models.Company
		if err := tx.Select("id").First(&company, "id = ?", r.CompanyID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.New(apperr.CodeNotFound, "company not found")
			}
			return apperr.Wrap(apperr.CodeInternal, err, "load company")
		}
		r.ID = uuid.Nil
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "company_id"}, {Name: "cover_type"}},
			DoUpdates: clause.AssignmentColumns(rateColumns),
		}).Create(&r).Error; err != nil {
			return apperr.Wrap(apperr.CodeInternal, err, "save premium rate")
		}
		if err := tx.First(&out, "company_id = ? AND cover_type = ?", r.CompanyID, r.CoverType).Error; err != nil {
			return apperr.Wrap(apperr.CodeInternal, err, "reload premium rate")
		}
		utils.LogEvent(ctx, tx, utils.Event{
			Entity: "premium_rate", EntityID: out.ID, ActorID: admin.ID, ActorRole: models.RoleAdmin,
			Action: "upsert",
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ListRates returns rate cards, for one company when companyID is set.
func (s *Service) ListRates(ctx context.Context, companyID *uuid.UUID) ([]models.PremiumRate, error) {
	db := s.db.WithContext(ctx).Model(&models.PremiumRate{})
	if companyID != nil {
		db = db.Where("company_id = ?", *companyID)
	}
	out := []models.PremiumRate{}
	if err := db.Order("company_id, cover_type").Find(&out).Error; err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "list premium rates")
	}
	return out, nil
}
