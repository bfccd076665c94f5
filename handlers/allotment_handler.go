package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fenilmodi00/ipo-allotment-client/models"
	"github.com/fenilmodi00/ipo-allotment-client/services"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"
)

const eventKeepAlive = 15 * time.Second

type AllotmentHandler struct {
	Service *services.AllotmentService
}

func NewAllotmentHandler(service *services.AllotmentService) *AllotmentHandler {
	return &AllotmentHandler{Service: service}
}

type checkRequest struct {
	Registrar    string `json:"registrar"`
	ForceRefresh bool   `json:"force_refresh"`
	Wait         bool   `json:"wait"`
}

type addPANRequest struct {
	PANNumber   string `json:"pan_number"`
	Name        string `json:"name"`
	SaveToCloud bool   `json:"save_to_cloud"`
}

// StartCheck runs a reconciliation pass. With wait the response carries the
// finished view, otherwise the pass runs in the background and the current view
// is returned immediately.
func (h *AllotmentHandler) StartCheck(c *fiber.Ctx) error {
	ipoName := pathParam(c, "ipo")
	if ipoName == "" {
		return badRequest(c, "IPO name is required")
	}

	var req checkRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "Invalid request")
		}
	}

	if req.Wait {
		if _, err := h.Service.ReconcileIPO(c.UserContext(), ipoName, req.Registrar, req.ForceRefresh); err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{
			"success": true,
			"data":    h.Service.View(ipoName, "", models.SourceFilterAll),
		})
	}

	session := h.Service.Session(ipoName, req.Registrar)
	go func() {
		_, err := h.Service.ReconcileIPO(context.Background(), ipoName, req.Registrar, req.ForceRefresh)
		if err != nil && !errors.Is(err, services.ErrSuperseded) {
			logrus.WithFields(logrus.Fields{
				"component": "AllotmentHandler",
				"ipo_name":  ipoName,
			}).WithError(err).Warn("Background reconciliation failed")
		}
	}()

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"success": true,
		"data":    services.BuildResultView(session.Snapshot(), "", models.SourceFilterAll),
	})
}

// GetResults returns the filtered, sorted results of an IPO with counts
func (h *AllotmentHandler) GetResults(c *fiber.Ctx) error {
	ipoName := pathParam(c, "ipo")
	if ipoName == "" {
		return badRequest(c, "IPO name is required")
	}

	view := h.Service.View(ipoName, c.Query("q"), models.ParseSourceFilter(c.Query("source", "ALL")))
	return c.JSON(fiber.Map{
		"success": true,
		"data":    view,
	})
}

func (h *AllotmentHandler) AddPAN(c *fiber.Ctx) error {
	var req addPANRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request")
	}

	entry := models.PANEntry{PANNumber: req.PANNumber, Name: req.Name}
	result, err := h.Service.AddPAN(c.UserContext(), pathParam(c, "ipo"), entry, req.SaveToCloud)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    result,
	})
}

func (h *AllotmentHandler) RefreshPAN(c *fiber.Ctx) error {
	result, err := h.Service.RefreshPAN(c.UserContext(), pathParam(c, "ipo"), pathParam(c, "pan"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    result,
	})
}

func (h *AllotmentHandler) RemovePAN(c *fiber.Ctx) error {
	source := models.PANSource(c.Query("source"))
	if err := h.Service.RemovePAN(c.UserContext(), pathParam(c, "ipo"), pathParam(c, "pan"), source); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}

// Events streams session snapshots as server-sent events. With follow=false the
// stream ends at the first snapshot that is not mid-pass.
func (h *AllotmentHandler) Events(c *fiber.Ctx) error {
	ipoName := pathParam(c, "ipo")
	if ipoName == "" {
		return badRequest(c, "IPO name is required")
	}
	follow := c.QueryBool("follow", true)

	updates, cancel := h.Service.Session(ipoName, "").Subscribe(8)

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer cancel()
		logger := logrus.WithFields(logrus.Fields{
			"component": "AllotmentHandler",
			"ipo_name":  ipoName,
		})

		keepAlive := time.NewTicker(eventKeepAlive)
		defer keepAlive.Stop()

		for {
			select {
			case snapshot, ok := <-updates:
				if !ok {
					return
				}
				if err := writeSnapshotEvent(w, snapshot); err != nil {
					logger.WithError(err).Debug("Event stream closed")
					return
				}
				if !follow && snapshot.State != models.SessionReconciling {
					return
				}
			case <-keepAlive.C:
				if _, err := w.WriteString(": keep-alive\n\n"); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					return
				}
			}
		}
	}))
	return nil
}

func writeSnapshotEvent(w *bufio.Writer, snapshot models.SessionSnapshot) error {
	payload, err := json.Marshal(services.BuildResultView(snapshot, "", models.SourceFilterAll))
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "id: %d\nevent: snapshot\ndata: %s\n\n", snapshot.Generation, payload); err != nil {
		return err
	}
	return w.Flush()
}
