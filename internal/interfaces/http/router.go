package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/mvergaray/facturador-api/internal/application/pipeline"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	Commands  *pipeline.Commands
	JWTSecret string
}

// Router registra las rutas de la API. Todas las rutas exigen Bearer Token;
// las de /api/admin exigen además el rol admin.
func Router(app *fiber.App, deps RouterDeps) {
	api := app.Group("/api", AuthMiddleware(deps.JWTSecret))

	documents := api.Group("/documents")
	documentHandler := NewDocumentHandler(deps.Commands)
	documents.Post("/", documentHandler.Create)
	documents.Post("/:id/submit", documentHandler.Submit)
	documents.Get("/:id/status", documentHandler.Status)

	admin := api.Group("/admin", RequireRole("admin"))
	adminHandler := NewAdminHandler(deps.Commands)
	admin.Post("/jobs/reset-failed", adminHandler.ResetFailedJobs)
	admin.Post("/documents/:id/reset", adminHandler.ResetDocument)
}
