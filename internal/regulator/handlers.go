package regulator

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	apperr "github.com/aldoetobex/clearinsure-backend/pkg/errors"
	"github.com/aldoetobex/clearinsure-backend/pkg/models"
	"github.com/aldoetobex/clearinsure-backend/pkg/utils"
	"github.com/aldoetobex/clearinsure-backend/pkg/validation"
)

type Handler struct{ svc *Service }

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

func companyFilter(c *fiber.Ctx) (*uuid.UUID, map[string][]string) {
	raw := c.Query("company_id")
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, validation.Field("company_id", "Invalid UUID format")
	}
	return &id, nil
}

// @Summary      Policies across companies
// @Description  Holder identity and contact fields are masked.
// @Tags         regulator
// @Security     BearerAuth
// @Produce      json
// @Param        company_id  query  string  false  "Company ID (UUID)"
// @Param        status      query  string  false  "Active | Expired | Cancelled"
// @Param        page        query  int     false  "Page number"
// @Param        pageSize    query  int     false  "Page size (max 50)"
// @Success      200  {object}  models.Page[Policy]
// @Failure      400  {object}  models.ValidationErrorResponse
// @Router       /regulator/policies [get]
func (h *Handler) ListPolicies(c *fiber.Ctx) error {
	company, errs := companyFilter(c)
	if errs != nil {
		return validation.Respond(c, errs)
	}
	status := models.PolicyStatus(c.Query("status"))
	switch status {
	case "", models.PolicyActive, models.PolicyExpired, models.PolicyCancelled:
	default:
		return validation.Respond(c, validation.Field("status", "Value is not allowed"))
	}
	page, size := utils.ParsePage(c)
	items, total, err := h.svc.ListPolicies(c.UserContext(), PolicyFilter{CompanyID: company, Status: status, Page: page, Size: size})
	if err != nil {
		return err
	}
	return c.JSON(utils.PageOf(page, size, total, items))
}

// @Summary      Policy detail
// @Tags         regulator
// @Security     BearerAuth
// @Produce      json
// @Param        id  path  string  true  "Policy ID (UUID)"
// @Success      200  {object}  Policy
// @Failure      404  {object}  models.ErrorResponse
// @Router       /regulator/policies/{id} [get]
func (h *Handler) GetPolicy(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return apperr.New(apperr.CodeNotFound, "policy not found")
	}
	out, err := h.svc.GetPolicy(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(out)
}

// @Summary      Claims across companies
// @Tags         regulator
// @Security     BearerAuth
// @Produce      json
// @Param        company_id  query  string  false  "Company ID (UUID)"
// @Param        status      query  string  false  "Pending | Under Review | Approved | Rejected"
// @Param        page        query  int     false  "Page number"
// @Param        pageSize    query  int     false  "Page size (max 50)"
// @Success      200  {object}  models.Page[Claim]
// @Failure      400  {object}  models.ValidationErrorResponse
// @Router       /regulator/claims [get]
func (h *Handler) ListClaims(c *fiber.Ctx) error {
	company, errs := companyFilter(c)
	if errs != nil {
		return validation.Respond(c, errs)
	}
	status := models.ClaimStatus(c.Query("status"))
	switch status {
	case "", models.ClaimPending, models.ClaimUnderReview, models.ClaimApproved, models.ClaimRejected:
	default:
		return validation.Respond(c, validation.Field("status", "Value is not allowed"))
	}
	page, size := utils.ParsePage(c)
	items, total, err := h.svc.ListClaims(c.UserContext(), ClaimFilter{CompanyID: company, Status: status, Page: page, Size: size})
	if err != nil {
		return err
	}
	return c.JSON(utils.PageOf(page, size, total, items))
}

// @Summary      Per-company summary
// @Tags         regulator
// @Security     BearerAuth
// @Produce      json
// @Success      200  {array}  CompanySummary
// @Router       /regulator/summary [get]
func (h *Handler) Summary(c *fiber.Ctx) error {
	out, err := h.svc.Summary(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(out)
}
