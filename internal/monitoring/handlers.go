package monitoring

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/aldoetobex/clearinsure-backend/internal/auth"
	apperr "github.com/aldoetobex/clearinsure-backend/pkg/errors"
)

type Handler struct{ svc *Service }

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

func policyID(c *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return uuid.Nil, apperr.New(apperr.CodeNotFound, "policy not found")
	}
	return id, nil
}

// @Summary      Search policies by vehicle
// @Tags         customer
// @Security     BearerAuth
// @Produce      json
// @Param        registration_number  query  string  true  "Vehicle registration"
// @Success      200  {array}   Summary
// @Failure      400  {object}  models.ErrorResponse
// @Router       /customer/monitoring/search [get]
func (h *Handler) Search(c *fiber.Ctx) error {
	out, err := h.svc.Search(c.UserContext(), auth.MustUserID(c), c.Query("registration_number"))
	if err != nil {
		return err
	}
	return c.JSON(out)
}

// @Summary      Monitored policies
// @Tags         customer
// @Security     BearerAuth
// @Produce      json
// @Success      200  {array}  Summary
// @Router       /customer/monitoring [get]
func (h *Handler) List(c *fiber.Ctx) error {
	out, err := h.svc.List(c.UserContext(), auth.MustUserID(c))
	if err != nil {
		return err
	}
	return c.JSON(out)
}

// @Summary      Monitor policy
// @Tags         customer
// @Security     BearerAuth
// @Produce      json
// @Param        id  path  string  true  "Policy ID (UUID)"
// @Success      201  {object}  Summary
// @Failure      404  {object}  models.ErrorResponse
// @Failure      409  {object}  models.ErrorResponse  "already monitoring"
// @Router       /customer/monitoring/{id} [post]
func (h *Handler) Monitor(c *fiber.Ctx) error {
	id, err := policyID(c)
	if err != nil {
		return err
	}
	out, err := h.svc.Monitor(c.UserContext(), auth.MustUserID(c), id)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(out)
}

// @Summary      Stop monitoring policy
// @Tags         customer
// @Security     BearerAuth
// @Param        id  path  string  true  "Policy ID (UUID)"
// @Success      204
// @Failure      404  {object}  models.ErrorResponse
// @Router       /customer/monitoring/{id} [delete]
func (h *Handler) Unmonitor(c *fiber.Ctx) error {
	id, err := policyID(c)
	if err != nil {
		return err
	}
	if err := h.svc.Unmonitor(c.UserContext(), auth.MustUserID(c), id); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}
