package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/mvergaray/facturador-api/internal/application/dto"
	"github.com/mvergaray/facturador-api/internal/application/pipeline"
	"github.com/mvergaray/facturador-api/internal/domain"
)

// DocumentHandler maneja las peticiones HTTP del pipeline de comprobantes (protegido).
type DocumentHandler struct {
	commands *pipeline.Commands
}

// NewDocumentHandler construye el handler.
func NewDocumentHandler(commands *pipeline.Commands) *DocumentHandler {
	return &DocumentHandler{commands: commands}
}

// Create crea un borrador y le asigna el siguiente correlativo de su serie.
// POST /api/documents
func (h *DocumentHandler) Create(c *fiber.Ctx) error {
	companyID := GetCompanyID(c)
	if companyID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token inválido"})
	}
	var in dto.CreateDocumentRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	draft, err := in.ToEntity(companyID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "issue_date inválido (formato YYYY-MM-DD)"})
	}
	doc, err := h.commands.CreateDraft(c.Context(), draft)
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: err.Error()})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
	return c.Status(fiber.StatusCreated).JSON(dto.NewDocumentResponse(doc))
}

// Submit encola el envío del comprobante a SUNAT. El trabajo pesado (firma,
// SOAP, reintentos) lo hace el worker; acá solo se crea el job.
// POST /api/documents/:id/submit
func (h *DocumentHandler) Submit(c *fiber.Ctx) error {
	companyID := GetCompanyID(c)
	if companyID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token inválido"})
	}
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "id requerido"})
	}

	// El documento debe pertenecer a la empresa del token.
	st, err := h.commands.GetDocumentStatus(c.Context(), id)
	if err != nil {
		return h.mapError(c, err)
	}
	if st.Document.CompanyID != companyID {
		return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{Code: "FORBIDDEN", Message: "acceso denegado al comprobante"})
	}

	job, err := h.commands.EnqueueSubmission(c.Context(), id)
	if err != nil {
		return h.mapError(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(dto.NewJobResponse(job))
}

// Status consulta ligera para polling: estado del documento más su job activo.
// GET /api/documents/:id/status
func (h *DocumentHandler) Status(c *fiber.Ctx) error {
	companyID := GetCompanyID(c)
	if companyID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token inválido"})
	}
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "id requerido"})
	}
	st, err := h.commands.GetDocumentStatus(c.Context(), id)
	if err != nil {
		return h.mapError(c, err)
	}
	if st.Document.CompanyID != companyID {
		return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{Code: "FORBIDDEN", Message: "acceso denegado al comprobante"})
	}
	return c.JSON(dto.NewDocumentStatusResponse(st.Document, st.Job))
}

// mapError traduce los errores de dominio del pipeline a respuestas HTTP.
func (h *DocumentHandler) mapError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: "comprobante no encontrado"})
	case errors.Is(err, domain.ErrJobInFlight):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "JOB_IN_FLIGHT", Message: "el comprobante ya tiene un envío pendiente"})
	case errors.Is(err, domain.ErrConflict):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "CONFLICT", Message: err.Error()})
	case errors.Is(err, domain.ErrValidation):
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: err.Error()})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
}
