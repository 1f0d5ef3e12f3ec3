package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/mvergaray/facturador-api/internal/application/dto"
	"github.com/mvergaray/facturador-api/internal/application/pipeline"
	"github.com/mvergaray/facturador-api/internal/domain"
)

// AdminHandler operaciones de recuperación manual del pipeline (solo rol admin).
type AdminHandler struct {
	commands *pipeline.Commands
}

// NewAdminHandler construye el handler.
func NewAdminHandler(commands *pipeline.Commands) *AdminHandler {
	return &AdminHandler{commands: commands}
}

// ResetFailedJobs reencola todos los jobs FAILED con el contador de intentos en cero.
// POST /api/admin/jobs/reset-failed
func (h *AdminHandler) ResetFailedJobs(c *fiber.Ctx) error {
	n, err := h.commands.AdminResetFailedJobs(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
	return c.JSON(fiber.Map{"requeued": n})
}

// ResetDocument devuelve un documento a DRAFT limpiando los campos derivados
// (XML, hash, ticket, códigos SUNAT). Se rechaza si el documento tiene un job
// sin terminar.
// POST /api/admin/documents/:id/reset
func (h *AdminHandler) ResetDocument(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "id requerido"})
	}
	if err := h.commands.AdminResetDocument(c.Context(), id); err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: "comprobante no encontrado"})
		case errors.Is(err, domain.ErrJobInFlight):
			return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "JOB_IN_FLIGHT", Message: "el comprobante tiene un job sin terminar; resetee primero el job"})
		default:
			return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
		}
	}
	return c.JSON(fiber.Map{"status": "DRAFT"})
}
