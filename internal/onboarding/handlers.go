package onboarding

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/aldoetobex/clearinsure-backend/internal/auth"
	apperr "github.com/aldoetobex/clearinsure-backend/pkg/errors"
	"github.com/aldoetobex/clearinsure-backend/pkg/models"
	"github.com/aldoetobex/clearinsure-backend/pkg/utils"
	"github.com/aldoetobex/clearinsure-backend/pkg/validation"
)

/* ================================ DTOs ================================= */

// Request body for onboarding submission. affiliation_id is a company for
// insurers and a regulatory body for regulators.
type SubmitRequest struct {
	StaffID       string `json:"staff_id" validate:"required,staffid"`
	AffiliationID string `json:"affiliation_id" validate:"required,uuid"`
}

// Request body for an admin review
type ReviewRequest struct {
	Decision string `json:"decision" validate:"required,oneof=approve reject"`
	Reason   string `json:"reason" validate:"required_if=Decision reject,max=1000"`
}

// Onboarding status as seen by the applicant
type StatusResponse struct {
	Approved bool     `json:"approved"`
	Request  *Request `json:"request"`
}

type Handler struct{ svc *Service }

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

/* ============================= Applicant ================================ */

// @Summary      Submit onboarding request
// @Description  Insurer or regulator asks to join a company or regulatory body. Only one request may be pending.
// @Tags         onboarding
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  SubmitRequest  true  "Onboarding payload"
// @Success      201      {object}  Request
// @Failure      400      {object}  models.ValidationErrorResponse
// @Failure      409      {object}  models.ErrorResponse  "request already pending"
// @Router       /insurer/onboarding [post]
// @Router       /regulator/onboarding [post]
func (h *Handler) Submit(c *fiber.Ctx) error {
	var in SubmitRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	in.StaffID = strings.TrimSpace(in.StaffID)
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	var conv validation.Values
	affiliation := conv.UUID("affiliation_id", in.AffiliationID)
	if errs := conv.Errors(); errs != nil {
		return validation.Respond(c, errs)
	}
	req, err := h.svc.Submit(c.UserContext(), auth.MustPrincipal(c), in.StaffID, affiliation)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(req)
}

// @Summary      Onboarding status
// @Tags         onboarding
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  StatusResponse
// @Router       /insurer/onboarding [get]
// @Router       /regulator/onboarding [get]
func (h *Handler) Status(c *fiber.Ctx) error {
	p := auth.MustPrincipal(c)
	req, err := h.svc.Latest(c.UserContext(), p)
	if err != nil {
		return err
	}
	return c.JSON(StatusResponse{Approved: p.Approved && p.AffiliationID != nil, Request: req})
}

// @Summary      Affiliation options
// @Description  Active companies (insurer) or regulatory bodies (regulator) to choose from
// @Tags         onboarding
// @Security     BearerAuth
// @Produce      json
// @Success      200  {array}  Affiliation
// @Router       /insurer/onboarding/options [get]
// @Router       /regulator/onboarding/options [get]
func (h *Handler) Affiliations(c *fiber.Ctx) error {
	out, err := h.svc.Affiliations(c.UserContext(), auth.MustRole(c))
	if err != nil {
		return err
	}
	return c.JSON(out)
}

/* ================================ Admin ================================= */

func parseKind(v string) (models.Role, error) {
	switch models.Role(v) {
	case models.RoleInsurer, models.RoleRegulator:
		return models.Role(v), nil
	}
	return "", apperr.New(apperr.CodeNotFound, "unknown request kind")
}

// @Summary      List onboarding requests
// @Tags         admin
// @Security     BearerAuth
// @Produce      json
// @Param        kind      path   string  true   "insurer | regulator"
// @Param        status    query  string  false  "pending | approved | rejected"
// @Param        page      query  int     false  "Page number"
// @Param        pageSize  query  int     false  "Page size (max 50)"
// @Success      200  {object}  models.Page[Request]
// @Router       /admin/onboarding/{kind} [get]
func (h *Handler) AdminList(c *fiber.Ctx) error {
	kind, err := parseKind(c.Params("kind"))
	if err != nil {
		return err
	}
	status := models.RequestStatus(strings.ToLower(c.Query("status")))
	switch status {
	case "", models.RequestPending, models.RequestApproved, models.RequestRejected:
	default:
		return validation.Respond(c, validation.Field("status", "Value is not allowed"))
	}

	page, size := utils.ParsePage(c)
	items, total, err := h.svc.List(c.UserContext(), kind, status, page, size)
	if err != nil {
		return err
	}
	return c.JSON(utils.PageOf(page, size, total, items))
}

// @Summary      Review onboarding request
// @Description  Approve or reject a pending request. Reviewed requests cannot be reviewed again.
// @Tags         admin
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        kind     path  string         true  "insurer | regulator"
// @Param        id       path  string         true  "Request ID (UUID)"
// @Param        payload  body  ReviewRequest  true  "Decision"
// @Success      200  {object}  Request
// @Failure      404  {object}  models.ErrorResponse
// @Failure      422  {object}  models.ErrorResponse  "request already reviewed"
// @Router       /admin/onboarding/{kind}/{id} [post]
func (h *Handler) AdminReview(c *fiber.Ctx) error {
	kind, err := parseKind(c.Params("kind"))
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return apperr.New(apperr.CodeNotFound, "request not found")
	}

	var in ReviewRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	in.Decision = strings.ToLower(strings.TrimSpace(in.Decision))
	in.Reason = strings.TrimSpace(in.Reason)
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	out, err := h.svc.Review(c.UserContext(), auth.MustUserID(c), kind, id, Decision{
		Approve: in.Decision == "approve",
		Reason:  in.Reason,
	})
	if err != nil {
		return err
	}
	return c.JSON(out)
}
