package handlers

import (
	"github.com/gofiber/fiber/v2"
)

// RegisterRoutes mounts every endpoint on app
func RegisterRoutes(app *fiber.App, allotments *AllotmentHandler, pans *PANHandler, performance *PerformanceHandler) {
	app.Get("/health", performance.Health)

	api := app.Group("/api/v1")

	// PAN Routes
	api.Get("/pans", pans.GetPANs)
	api.Post("/pans/sync", pans.SyncPANs)
	api.Put("/pans/:pan", pans.RenamePAN)
	api.Delete("/pans/:pan", pans.DeletePAN)

	// Allotment Routes
	api.Get("/allotments/:ipo", allotments.GetResults)
	allotment := api.Group("/allotments/:ipo")
	allotment.Post("/check", allotments.StartCheck)
	allotment.Get("/events", allotments.Events)
	allotment.Post("/pans", allotments.AddPAN)
	allotment.Post("/pans/:pan/refresh", allotments.RefreshPAN)
	allotment.Delete("/pans/:pan", allotments.RemovePAN)

	api.Get("/metrics", performance.GetMetrics)
}
