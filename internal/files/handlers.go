package files

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/aldoetobex/clearinsure-backend/internal/auth"
	apperr "github.com/aldoetobex/clearinsure-backend/pkg/errors"
)

// Signed download link
type LinkResponse struct {
	URL       string    `json:"url"`
	ExpiresIn int       `json:"expires_in"`
	Now       time.Time `json:"now"`
}

type Handler struct{ svc *Service }

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

// @Summary      Download attachment
// @Description  Policy photo or claim document. Returns a short-lived signed URL, or the file itself when storage is local.
// @Tags         files
// @Security     BearerAuth
// @Produce      json
// @Produce      octet-stream
// @Param        kind  path  string  true  "photos | documents"
// @Param        id    path  string  true  "Attachment ID (UUID)"
// @Success      200  {object}  LinkResponse
// @Failure      404  {object}  models.ErrorResponse
// @Failure      503  {object}  models.ErrorResponse
// @Router       /files/{kind}/{id} [get]
func (h *Handler) Get(c *fiber.Ctx) error {
	kind, ok := ParseKind(c.Params("kind"))
	if !ok {
		return apperr.New(apperr.CodeNotFound, "file not found")
	}
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return apperr.New(apperr.CodeNotFound, "file not found")
	}

	d, err := h.svc.Open(c.UserContext(), auth.MustPrincipal(c), kind, id)
	if err != nil {
		return err
	}
	if d.Body == nil {
		return c.JSON(LinkResponse{URL: d.URL, ExpiresIn: int(d.ExpiresIn.Seconds()), Now: h.svc.now().UTC()})
	}

	c.Set(fiber.HeaderContentType, d.File.Mime)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("inline; filename=%q", d.File.OriginalName))
	return c.SendStream(d.Body, int(d.File.Size))
}
