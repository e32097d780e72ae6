package requests

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/aldoetobex/clearinsure-backend/internal/auth"
	apperr "github.com/aldoetobex/clearinsure-backend/pkg/errors"
	"github.com/aldoetobex/clearinsure-backend/pkg/models"
	"github.com/aldoetobex/clearinsure-backend/pkg/utils"
	"github.com/aldoetobex/clearinsure-backend/pkg/validation"
)

/* ================================ DTOs ================================= */

// Request body for an access request
type AccessRequestBody struct {
	PolicyNumber string `json:"policy_number" validate:"required,max=20"`
	Reason       string `json:"reason" validate:"required,max=2000"`
}

// Request body for a cancellation request
type CancellationRequestBody struct {
	PolicyID string `json:"policy_id" validate:"required,uuid"`
	Reason   string `json:"reason" validate:"required,max=2000"`
}

// Request body for a renewal request
type RenewalRequestBody struct {
	PolicyID string `json:"policy_id" validate:"required,uuid"`
	Notes    string `json:"notes" validate:"max=2000"`
}

// Request body for an insurer decision. premium only applies to renewals.
type ReviewBody struct {
	Decision string `json:"decision" validate:"required,oneof=approve reject"`
	Reason   string `json:"reason" validate:"required_if=Decision reject,max=2000"`
	Premium  string `json:"premium" validate:"omitempty,money"`
}

func (in ReviewBody) decision(conv *validation.Values) Decision {
	d := Decision{Approve: in.Decision == "approve", Reason: in.Reason}
	if strings.TrimSpace(in.Premium) != "" {
		d.Premium = decimal.NewNullDecimal(conv.Money("premium", in.Premium))
	}
	return d
}

type Handler struct{ svc *Service }

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

func parseKind(c *fiber.Ctx) (Kind, error) {
	k, ok := ParseKind(c.Params("kind"))
	if !ok {
		return "", apperr.New(apperr.CodeNotFound, "unknown request kind")
	}
	return k, nil
}

func parseStatus(s string) (models.RequestStatus, bool) {
	switch st := models.RequestStatus(s); st {
	case "", models.RequestPending, models.RequestApproved, models.RequestRejected:
		return st, true
	}
	return "", false
}

func bind(c *fiber.Ctx, in any) (bool, error) {
	if err := c.BodyParser(in); err != nil {
		return false, fiber.ErrBadRequest
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return false, validation.Respond(c, errs)
	}
	return true, nil
}

/* =============================== Customer =============================== */

// @Summary      Find policy by number
// @Description  Used before requesting access. The holder email is masked.
// @Tags         customer
// @Security     BearerAuth
// @Produce      json
// @Param        policy_number  query  string  true  "Policy number, e.g. CO-0001"
// @Success      200  {object}  PolicyLookup
// @Failure      404  {object}  models.ErrorResponse
// @Router       /customer/requests/policy-search [get]
func (h *Handler) SearchPolicy(c *fiber.Ctx) error {
	out, err := h.svc.SearchPolicy(c.UserContext(), auth.MustPrincipal(c), c.Query("policy_number"))
	if err != nil {
		return err
	}
	return c.JSON(out)
}

// @Summary      Request policy access
// @Tags         customer
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  AccessRequestBody  true  "Policy number and reason"
// @Success      201  {object}  models.PolicyAccessRequest
// @Failure      409  {object}  models.ErrorResponse  "already linked or pending"
// @Router       /customer/requests/access [post]
func (h *Handler) RequestAccess(c *fiber.Ctx) error {
	var in AccessRequestBody
	if ok, err := bind(c, &in); !ok {
		return err
	}
	out, err := h.svc.RequestAccess(c.UserContext(), auth.MustPrincipal(c), in.PolicyNumber, in.Reason)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(out)
}

// @Summary      Request cancellation
// @Tags         customer
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  CancellationRequestBody  true  "Policy and reason"
// @Success      201  {object}  models.PolicyCancellationRequest
// @Failure      409  {object}  models.ErrorResponse  "already pending"
// @Failure      422  {object}  models.ErrorResponse  "policy not active"
// @Router       /customer/requests/cancellation [post]
func (h *Handler) RequestCancellation(c *fiber.Ctx) error {
	var in CancellationRequestBody
	if ok, err := bind(c, &in); !ok {
		return err
	}
	var conv validation.Values
	policyID := conv.UUID("policy_id", in.PolicyID)
	if errs := conv.Errors(); errs != nil {
		return validation.Respond(c, errs)
	}
	out, err := h.svc.RequestCancellation(c.UserContext(), auth.MustPrincipal(c), policyID, in.Reason)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(out)
}

// @Summary      Request renewal
// @Description  Allowed within 30 days of expiry on an active policy.
// @Tags         customer
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  RenewalRequestBody  true  "Policy and notes"
// @Success      201  {object}  models.PolicyRenewalRequest
// @Failure      409  {object}  models.ErrorResponse  "already pending"
// @Failure      422  {object}  models.ErrorResponse  "outside renewal window"
// @Router       /customer/requests/renewal [post]
func (h *Handler) RequestRenewal(c *fiber.Ctx) error {
	var in RenewalRequestBody
	if ok, err := bind(c, &in); !ok {
		return err
	}
	var conv validation.Values
	policyID := conv.UUID("policy_id", in.PolicyID)
	if errs := conv.Errors(); errs != nil {
		return validation.Respond(c, errs)
	}
	out, err := h.svc.RequestRenewal(c.UserContext(), auth.MustPrincipal(c), policyID, in.Notes)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(out)
}

// @Summary      My requests
// @Tags         customer
// @Security     BearerAuth
// @Produce      json
// @Param        kind      path   string  true   "access | cancellation | renewal"
// @Param        status    query  string  false  "pending | approved | rejected"
// @Param        page      query  int     false  "Page number"
// @Param        pageSize  query  int     false  "Page size (max 50)"
// @Success      200  {object}  models.Page[models.PolicyRenewalRequest]
// @Router       /customer/requests/{kind} [get]
func (h *Handler) ListMine(c *fiber.Ctx) error {
	id := auth.MustUserID(c)
	return h.list(c, Query{CustomerID: &id}, c.Query("status"))
}

/* =============================== Insurer ================================ */

// @Summary      Company request queue
// @Tags         requests
// @Security     BearerAuth
// @Produce      json
// @Param        kind      path   string  true   "access | cancellation | renewal"
// @Param        status    query  string  false  "pending (default) | approved | rejected | all"
// @Param        page      query  int     false  "Page number"
// @Param        pageSize  query  int     false  "Page size (max 50)"
// @Success      200  {object}  models.Page[models.PolicyAccessRequest]
// @Router       /insurer/requests/{kind} [get]
func (h *Handler) Queue(c *fiber.Ctx) error {
	company := auth.MustAffiliation(c)
	status := c.Query("status", string(models.RequestPending))
	if status == "all" {
		status = ""
	}
	return h.list(c, Query{CompanyID: &company}, status)
}

func (h *Handler) list(c *fiber.Ctx, q Query, status string) error {
	kind, err := parseKind(c)
	if err != nil {
		return err
	}
	st, ok := parseStatus(status)
	if !ok {
		return validation.Respond(c, validation.Field("status", "Value is not allowed"))
	}
	q.Kind, q.Status = kind, st
	q.Page, q.Size = utils.ParsePage(c)
	out, err := h.svc.List(c.UserContext(), q)
	if err != nil {
		return err
	}
	return c.JSON(out)
}

// @Summary      Decide request
// @Description  Approve or reject a pending request of the insurer's company. Rejection needs a reason; renewals accept an optional premium override.
// @Tags         requests
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        kind     path  string      true  "access | cancellation | renewal"
// @Param        id       path  string      true  "Request ID (UUID)"
// @Param        payload  body  ReviewBody  true  "Decision"
// @Success      200  {object}  models.PolicyRenewalRequest
// @Failure      404  {object}  models.ErrorResponse
// @Failure      422  {object}  models.ErrorResponse  "not pending"
// @Router       /insurer/requests/{kind}/{id}/review [post]
func (h *Handler) Review(c *fiber.Ctx) error {
	kind, err := parseKind(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return requestNotFound()
	}
	var in ReviewBody
	if ok, err := bind(c, &in); !ok {
		return err
	}

	var conv validation.Values
	d := in.decision(&conv)
	if errs := conv.Errors(); errs != nil {
		return validation.Respond(c, errs)
	}

	ctx, insurer := c.UserContext(), auth.MustPrincipal(c)
	var out any
	switch kind {
	case KindAccess:
		out, err = h.svc.ReviewAccess(ctx, insurer, id, d)
	case KindCancellation:
		out, err = h.svc.ReviewCancellation(ctx, insurer, id, d)
	case KindRenewal:
		out, err = h.svc.ReviewRenewal(ctx, insurer, id, d)
	}
	if err != nil {
		return err
	}
	return c.JSON(out)
}
