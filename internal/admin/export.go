package admin

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/aldoetobex/clearinsure-backend/internal/policies"
	apperr "github.com/aldoetobex/clearinsure-backend/pkg/errors"
	"github.com/aldoetobex/clearinsure-backend/pkg/models"
)

// ExportKind selects the dataset written by Export.
type ExportKind string

const (
	ExportSummary   ExportKind = "summary"
	ExportCompanies ExportKind = "companies"
	ExportUsers     ExportKind = "users"
	ExportPolicies  ExportKind = "policies"
	ExportClaims    ExportKind = "claims"
)

const exportBatch = 500

func ParseExportKind(v string) (ExportKind, bool) {
	switch ExportKind(v) {
	case ExportSummary, ExportCompanies, ExportUsers, ExportPolicies, ExportClaims:
		return ExportKind(v), true
	}
	return "", false
}

// ExportFilename is clearinsure_<kind>_<YYYYmmdd_HHMMSS>.csv.
func ExportFilename(kind ExportKind, at time.Time) string {
	return fmt.Sprintf("clearinsure_%s_%s.csv", kind, at.Format("20060102_150405"))
}

// Export writes the dataset as CSV with a header row.
func (s *Service) Export(ctx context.Context, kind ExportKind, w io.Writer) error {
	cw := csv.NewWriter(w)
	db := s.db.WithContext(ctx)
	now := s.now()

	var err error
	switch kind {
	case ExportSummary:
		err = s.exportSummary(db, cw, now)
	case ExportCompanies:
		err = exportCompanies(db, cw)
	case ExportUsers:
		err = exportUsers(db, cw)
	case ExportPolicies:
		err = exportPolicies(db, cw, now)
	case ExportClaims:
		err = exportClaims(db, cw)
	default:
		return apperr.Newf(apperr.CodeValidation, "unknown export type %q", kind)
	}
	if err != nil {
		return apperr.Wrap(apperr.CodeInternal, err, "export "+string(kind))
	}
	cw.Flush()
	return cw.Error()
}

func count(db *gorm.DB, model any, scopes ...func(*gorm.DB) *gorm.DB) (string, error) {
	var n int64
	err := db.Model(model).Scopes(scopes...).Count(&n).Error
	return strconv.FormatInt(n, 10), err
}

func (s *Service) exportSummary(db *gorm.DB, cw *csv.Writer, now time.Time) error {
	byStatus := func(status any) func(*gorm.DB) *gorm.DB {
		return func(db *gorm.DB) *gorm.DB { return db.Where("status = ?", status) }
	}
	rows := []struct {
		metric string
		model  any
		scopes []func(*gorm.DB) *gorm.DB
	}{
		{"admins", &models.Admin{}, nil},
		{"customers", &models.Customer{}, nil},
		{"insurers", &models.Insurer{}, nil},
		{"regulators", &models.Regulator{}, nil},
		{"companies", &models.Company{}, nil},
		{"regulatory_bodies", &models.RegulatoryBody{}, nil},
		{"policies_active", &models.Policy{}, []func(*gorm.DB) *gorm.DB{policies.StatusScope(models.PolicyActive, now)}},
		{"policies_expired", &models.Policy{}, []func(*gorm.DB) *gorm.DB{policies.StatusScope(models.PolicyExpired, now)}},
		{"policies_cancelled", &models.Policy{}, []func(*gorm.DB) *gorm.DB{policies.StatusScope(models.PolicyCancelled, now)}},
		{"claims_pending", &models.Claim{}, []func(*gorm.DB) *gorm.DB{byStatus(models.ClaimPending)}},
		{"claims_under_review", &models.Claim{}, []func(*gorm.DB) *gorm.DB{byStatus(models.ClaimUnderReview)}},
		{"claims_approved", &models.Claim{}, []func(*gorm.DB) *gorm.DB{byStatus(models.ClaimApproved)}},
		{"claims_rejected", &models.Claim{}, []func(*gorm.DB) *gorm.DB{byStatus(models.ClaimRejected)}},
		{"quotes", &models.Quote{}, nil},
	}
	if err := cw.Write([]string{"metric", "value"}); err != nil {
		return err
	}
	for _, r := range rows {
		v, err := count(db, r.model, r.scopes...)
		if err != nil {
			return err
		}
		if err := cw.Write([]string{r.metric, v}); err != nil {
			return err
		}
	}
	return nil
}

func exportCompanies(db *gorm.DB, cw *csv.Writer) error {
	type row struct {
		Name      string
		Active    bool
		Insurers  int64
		Policies  int64
		Claims    int64
		CreatedAt time.Time
	}
	var rows []row
	err := db.Table("companies").
		Select(`companies.name, companies.active, companies.created_at,
			(SELECT COUNT(*) FROM insurers WHERE insurers.company_id = companies.id) AS insurers,
			(SELECT COUNT(*) FROM policies WHERE policies.company_id = companies.id) AS policies,
			(SELECT COUNT(*) FROM claims WHERE claims.company_id = companies.id) AS claims`).
		Order("companies.name").Scan(&rows).Error
	if err != nil {
		return err
	}
	if err := cw.Write([]string{"name", "active", "insurers", "policies", "claims", "created_at"}); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write([]string{
			r.Name, strconv.FormatBool(r.Active), strconv.FormatInt(r.Insurers, 10),
			strconv.FormatInt(r.Policies, 10), strconv.FormatInt(r.Claims, 10), stamp(r.CreatedAt),
		}); err != nil {
			return err
		}
	}
	return nil
}

func exportUsers(db *gorm.DB, cw *csv.Writer) error {
	if err := cw.Write([]string{"role", "username", "email", "staff_id", "active", "approved", "created_at"}); err != nil {
		return err
	}
	var admins []models.Admin
	if err := db.Order("created_at").Find(&admins).Error; err != nil {
		return err
	}
	for _, a := range admins {
		staff := ""
		if a.StaffID != nil {
			staff = *a.StaffID
		}
		if err := cw.Write(userRow(models.RoleAdmin, a.Username, a.Email, staff, a.Active, true, a.CreatedAt)); err != nil {
			return err
		}
	}
	var customers []models.Customer
	if err := db.Order("created_at").Find(&customers).Error; err != nil {
		return err
	}
	for _, c := range customers {
		if err := cw.Write(userRow(models.RoleCustomer, c.Username, c.Email, "", c.Active, true, c.CreatedAt)); err != nil {
			return err
		}
	}
	var insurers []models.Insurer
	if err := db.Order("created_at").Find(&insurers).Error; err != nil {
		return err
	}
	for _, i := range insurers {
		if err := cw.Write(userRow(models.RoleInsurer, i.Username, i.Email, i.StaffID, i.Active, i.Approved, i.CreatedAt)); err != nil {
			return err
		}
	}
	var regulators []models.Regulator
	if err := db.Order("created_at").Find(&regulators).Error; err != nil {
		return err
	}
	for _, r := range regulators {
		if err := cw.Write(userRow(models.RoleRegulator, r.Username, r.Email, r.StaffID, r.Active, r.Approved, r.CreatedAt)); err != nil {
			return err
		}
	}
	return nil
}

func userRow(role models.Role, username, email, staff string, active, approved bool, created time.Time) []string {
	return []string{string(role), username, email, staff, strconv.FormatBool(active), strconv.FormatBool(approved), stamp(created)}
}

func exportPolicies(db *gorm.DB, cw *csv.Writer, now time.Time) error {
	if err := cw.Write([]string{
		"policy_number", "policy_type", "company", "insured_name", "registration_number",
		"status", "effective_date", "expiry_date", "premium_amount", "created_at",
	}); err != nil {
		return err
	}
	var batch []models.Policy
	return db.Preload("Company").
		FindInBatches(&batch, exportBatch, func(_ *gorm.DB, _ int) error {
			for i := range batch {
				p := &batch[i]
				company := ""
				if p.Company != nil {
					company = p.Company.Name
				}
				if err := cw.Write([]string{
					p.PolicyNumber, string(p.PolicyType), company, p.InsuredName, p.RegistrationNumber,
					string(p.EffectiveStatus(now)), day(p.EffectiveDate), day(p.ExpiryDate),
					p.PremiumAmount.StringFixed(2), stamp(p.CreatedAt),
				}); err != nil {
					return err
				}
			}
			return nil
		}).Error
}

func exportClaims(db *gorm.DB, cw *csv.Writer) error {
	if err := cw.Write([]string{
		"claim_number", "policy_number", "status", "accident_date", "estimated_loss",
		"fraud_checked", "fraud_score", "fraud_risk", "created_at",
	}); err != nil {
		return err
	}
	var batch []models.Claim
	return db.Preload("Policy", func(db *gorm.DB) *gorm.DB {
		return db.Select("id", "policy_number")
	}).
		FindInBatches(&batch, exportBatch, func(_ *gorm.DB, _ int) error {
			for i := range batch {
				c := &batch[i]
				policyNumber, score := "", ""
				if c.Policy != nil {
					policyNumber = c.Policy.PolicyNumber
				}
				if c.FraudScore != nil {
					score = strconv.Itoa(*c.FraudScore)
				}
				if err := cw.Write([]string{
					c.ClaimNumber, policyNumber, string(c.Status), day(c.AccidentDate),
					c.EstimatedLoss.StringFixed(2), strconv.FormatBool(c.FraudCheckPerformed),
					score, string(c.FraudRisk), stamp(c.CreatedAt),
				}); err != nil {
					return err
				}
			}
			return nil
		}).Error
}

func day(t time.Time) string   { return t.Format("2006-01-02") }
func stamp(t time.Time) string { return t.UTC().Format(time.RFC3339) }
