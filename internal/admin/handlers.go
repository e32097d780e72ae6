package admin

import (
	"bytes"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/aldoetobex/clearinsure-backend/internal/auth"
	"github.com/aldoetobex/clearinsure-backend/internal/principals"
	apperr "github.com/aldoetobex/clearinsure-backend/pkg/errors"
	"github.com/aldoetobex/clearinsure-backend/pkg/models"
	"github.com/aldoetobex/clearinsure-backend/pkg/utils"
	"github.com/aldoetobex/clearinsure-backend/pkg/validation"
)

/* ================================ DTOs ================================= */

// Request body for an account edit; omitted fields are left unchanged.
type EditUserRequest struct {
	Username *string `json:"username" validate:"omitempty,min=3,max=40"`
	Email    *string `json:"email" validate:"omitempty,email,max=120"`
	StaffID  *string `json:"staff_id" validate:"omitempty,staffid"`
	Password *string `json:"password" validate:"omitempty,min=8,max=72"`
}

// Request body for toggling an account
type ActiveRequest struct {
	Active *bool `json:"active" validate:"required"`
}

// Request body for a new company or regulatory body
type RefRequest struct {
	Name string `json:"name" validate:"required,max=120"`
}

type Handler struct{ svc *Service }

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

func userIdentity(c *fiber.Ctx) (principals.Identity, error) {
	role := models.Role(c.Params("role"))
	if !role.IsValid() {
		return principals.Identity{}, apperr.New(apperr.CodeNotFound, "unknown role")
	}
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return principals.Identity{}, apperr.New(apperr.CodeNotFound, "account not found")
	}
	return principals.Identity{Role: role, ID: id}, nil
}

/* ================================ Users ================================= */

// @Summary      List accounts
// @Tags         admin
// @Security     BearerAuth
// @Produce      json
// @Param        role      path   string  true   "admin | customer | insurer | regulator"
// @Param        page      query  int     false  "Page number"
// @Param        pageSize  query  int     false  "Page size (max 50)"
// @Success      200  {object}  models.Page[User]
// @Failure      404  {object}  models.ErrorResponse
// @Router       /admin/users/{role} [get]
func (h *Handler) ListUsers(c *fiber.Ctx) error {
	role := models.Role(c.Params("role"))
	if !role.IsValid() {
		return apperr.New(apperr.CodeNotFound, "unknown role")
	}
	page, size := utils.ParsePage(c)
	items, total, err := h.svc.ListUsers(c.UserContext(), role, page, size)
	if err != nil {
		return err
	}
	return c.JSON(utils.PageOf(page, size, total, items))
}

// @Summary      Edit account
// @Description  Username and email must stay unique across every role.
// @Tags         admin
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        role     path  string           true  "admin | customer | insurer | regulator"
// @Param        id       path  string           true  "Account ID (UUID)"
// @Param        payload  body  EditUserRequest  true  "Changes"
// @Success      200  {object}  User
// @Failure      400  {object}  models.ValidationErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Failure      409  {object}  models.ErrorResponse  "username or email in use"
// @Router       /admin/users/{role}/{id} [patch]
func (h *Handler) EditUser(c *fiber.Ctx) error {
	id, err := userIdentity(c)
	if err != nil {
		return err
	}
	var in EditUserRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}
	out, err := h.svc.EditUser(c.UserContext(), auth.MustPrincipal(c), id, UserEdit{
		Username: in.Username, Email: in.Email, StaffID: in.StaffID, Password: in.Password,
	})
	if err != nil {
		return err
	}
	return c.JSON(out)
}

// @Summary      Enable or disable account
// @Tags         admin
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        role     path  string         true  "admin | customer | insurer | regulator"
// @Param        id       path  string         true  "Account ID (UUID)"
// @Param        payload  body  ActiveRequest  true  "Active flag"
// @Success      200  {object}  User
// @Failure      404  {object}  models.ErrorResponse
// @Failure      422  {object}  models.ErrorResponse  "cannot disable self"
// @Router       /admin/users/{role}/{id}/active [put]
func (h *Handler) SetActive(c *fiber.Ctx) error {
	id, err := userIdentity(c)
	if err != nil {
		return err
	}
	var in ActiveRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}
	out, err := h.svc.SetActive(c.UserContext(), auth.MustPrincipal(c), id, *in.Active)
	if err != nil {
		return err
	}
	return c.JSON(out)
}

/* ============================ Reference data ============================ */

func refKind(c *fiber.Ctx) (RefKind, error) {
	kind, ok := ParseRefKind(c.Params("kind"))
	if !ok {
		return "", apperr.New(apperr.CodeNotFound, "unknown reference list")
	}
	return kind, nil
}

// @Summary      List companies or regulatory bodies
// @Tags         admin
// @Security     BearerAuth
// @Produce      json
// @Param        kind  path  string  true  "companies | bodies"
// @Success      200  {array}  Ref
// @Router       /admin/refs/{kind} [get]
func (h *Handler) ListRefs(c *fiber.Ctx) error {
	kind, err := refKind(c)
	if err != nil {
		return err
	}
	out, err := h.svc.ListRefs(c.UserContext(), kind)
	if err != nil {
		return err
	}
	return c.JSON(out)
}

// @Summary      Create company or regulatory body
// @Tags         admin
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        kind     path  string      true  "companies | bodies"
// @Param        payload  body  RefRequest  true  "Name"
// @Success      201  {object}  Ref
// @Failure      400  {object}  models.ValidationErrorResponse
// @Failure      409  {object}  models.ErrorResponse  "name taken"
// @Router       /admin/refs/{kind} [post]
func (h *Handler) CreateRef(c *fiber.Ctx) error {
	kind, err := refKind(c)
	if err != nil {
		return err
	}
	var in RefRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}
	out, err := h.svc.CreateRef(c.UserContext(), auth.MustPrincipal(c), kind, in.Name)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(out)
}

// @Summary      Toggle company or regulatory body
// @Tags         admin
// @Security     BearerAuth
// @Produce      json
// @Param        kind  path  string  true  "companies | bodies"
// @Param        id    path  string  true  "ID (UUID)"
// @Success      200  {object}  Ref
// @Failure      404  {object}  models.ErrorResponse
// @Router       /admin/refs/{kind}/{id}/toggle [post]
func (h *Handler) ToggleRef(c *fiber.Ctx) error {
	kind, err := refKind(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return apperr.Newf(apperr.CodeNotFound, "%s not found", kind.noun())
	}
	out, err := h.svc.ToggleRef(c.UserContext(), auth.MustPrincipal(c), kind, id)
	if err != nil {
		return err
	}
	return c.JSON(out)
}

/* ================================ Export ================================ */

// @Summary      Export CSV
// @Tags         admin
// @Security     BearerAuth
// @Produce      text/csv
// @Param        type  query  string  true  "summary | companies | users | policies | claims"
// @Success      200  {file}    file
// @Failure      400  {object}  models.ValidationErrorResponse
// @Router       /admin/export [get]
func (h *Handler) Export(c *fiber.Ctx) error {
	kind, ok := ParseExportKind(c.Query("type"))
	if !ok {
		return validation.Respond(c, validation.Field("type", "Value is not allowed"))
	}
	var buf bytes.Buffer
	if err := h.svc.Export(c.UserContext(), kind, &buf); err != nil {
		return err
	}
	c.Attachment(ExportFilename(kind, h.svc.now()))
	c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
	return c.Send(buf.Bytes())
}
