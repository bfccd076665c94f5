package handlers

import (
	"github.com/fenilmodi00/ipo-allotment-client/models"
	"github.com/fenilmodi00/ipo-allotment-client/services"
	"github.com/gofiber/fiber/v2"
)

type PANHandler struct {
	Service *services.AllotmentService
}

func NewPANHandler(service *services.AllotmentService) *PANHandler {
	return &PANHandler{Service: service}
}

// GetPANs returns the merged PAN list and the device PANs not yet in the account
func (h *PANHandler) GetPANs(c *fiber.Ctx) error {
	ctx := c.UserContext()
	registry := h.Service.Registry()

	if c.QueryBool("refresh", false) {
		if err := registry.RefreshCloud(ctx); err != nil {
			return respondError(c, err)
		}
	}

	pans, err := registry.Current(ctx)
	if err != nil {
		return respondError(c, err)
	}
	pending, err := registry.NeedsSync(ctx)
	if err != nil {
		return respondError(c, err)
	}
	if pending == nil {
		pending = []models.PANEntry{}
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"pans":       pans,
			"needs_sync": pending,
		},
	})
}

func (h *PANHandler) SyncPANs(c *fiber.Ctx) error {
	synced, err := h.Service.Registry().SyncLocal(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    fiber.Map{"synced": synced},
	})
}

func (h *PANHandler) RenamePAN(c *fiber.Ctx) error {
	type Request struct {
		Name string `json:"name"`
	}
	var req Request
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request")
	}

	if err := h.Service.RenamePAN(c.UserContext(), pathParam(c, "pan"), req.Name); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}

func (h *PANHandler) DeletePAN(c *fiber.Ctx) error {
	source := models.PANSource(c.Query("source"))
	if err := h.Service.DeletePAN(c.UserContext(), pathParam(c, "pan"), source); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}
