// Package seed writes the reference data a fresh portal needs: the default
// administrator, insurance companies, regulatory bodies and rate cards.
// Running it again only fills in what is missing.
package seed

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aldoetobex/clearinsure-backend/internal/principals"
	"github.com/aldoetobex/clearinsure-backend/pkg/config"
	"github.com/aldoetobex/clearinsure-backend/pkg/database"
	"github.com/aldoetobex/clearinsure-backend/pkg/logger"
	"github.com/aldoetobex/clearinsure-backend/pkg/models"
	"github.com/aldoetobex/clearinsure-backend/pkg/premium"
)

var ErrAdminPassword = errors.New("seed: admin password is not configured")

// Result counts the rows created by one run.
type Result struct {
	Admin            bool
	Companies        int
	RegulatoryBodies int
	Rates            int
}

func Run(ctx context.Context, db *gorm.DB, cfg config.SeedConfig, logg *logger.Logger) (Result, error) {
	if logg == nil {
		logg = logger.Nop()
	}
	var res Result
	err := database.WithTx(ctx, db, func(tx *gorm.DB) error {
		created, err := seedAdmin(ctx, tx, cfg)
		if err != nil {
			return err
		}
		res.Admin = created

		for _, name := range names(cfg.Companies) {
			n, err := insertNamed(tx, &models.Company{Name: name, Active: true})
			if err != nil {
				return err
			}
			res.Companies += n
		}
		for _, name := range names(cfg.RegulatoryBodies) {
			n, err := insertNamed(tx, &models.RegulatoryBody{Name: name, Active: true})
			if err != nil {
				return err
			}
			res.RegulatoryBodies += n
		}

		if !cfg.DefaultRates {
			return nil
		}
		var companies []models.Company
		if err := tx.Select("id").Find(&companies).Error; err != nil {
			return err
		}
		for _, c := range companies {
			for _, rate := range premium.DefaultRates() {
				rate.CompanyID = c.ID
				r := tx.Clauses(clause.OnConflict{
					Columns:   []clause.Column{{Name: "company_id"}, {Name: "cover_type"}},
					DoNothing: true,
				}).Create(&rate)
				if r.Error != nil {
					return r.Error
				}
				res.Rates += int(r.RowsAffected)
			}
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	logg.Info(logg.WithFields(ctx, map[string]any{
		"admin":             res.Admin,
		"companies":         res.Companies,
		"regulatory_bodies": res.RegulatoryBodies,
		"rates":             res.Rates,
	}), "seed completed")
	return res, nil
}

func seedAdmin(ctx context.Context, tx *gorm.DB, cfg config.SeedConfig) (bool, error) {
	email := principals.NormalizeEmail(cfg.AdminEmail)
	if email == "" {
		return false, nil
	}
	var n int64
	if err := tx.Model(&models.PrincipalIdentity{}).
		Where("email = ? OR username = ?", email, strings.TrimSpace(cfg.AdminUsername)).
		Count(&n).Error; err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}
	if cfg.AdminPassword == "" {
		return false, ErrAdminPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return false, err
	}
	_, err = principals.Create(ctx, tx, principals.NewAccount{
		Role:         models.RoleAdmin,
		Username:     cfg.AdminUsername,
		Email:        email,
		PasswordHash: string(hash),
		StaffID:      cfg.AdminStaffID,
	})
	return err == nil, err
}

// insertNamed creates a company or body unless one with the same name
// exists, returning the number of rows written.
func insertNamed(tx *gorm.DB, row any) (int, error) {
	r := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoNothing: true,
	}).Create(row)
	return int(r.RowsAffected), r.Error
}

func names(list []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(list))
	for _, n := range list {
		n = strings.TrimSpace(n)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}
