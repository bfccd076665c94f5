package handlers

import (
	"context"
	"sort"
	"time"

	"github.com/fenilmodi00/ipo-allotment-client/services"
	"github.com/fenilmodi00/ipo-allotment-client/shared"
	"github.com/gofiber/fiber/v2"
)

// HealthCheck probes one dependency
type HealthCheck func(ctx context.Context) error

type PerformanceHandler struct {
	Service      *services.AllotmentService
	Metrics      []*shared.ServiceMetrics
	HealthChecks map[string]HealthCheck
}

func NewPerformanceHandler(service *services.AllotmentService, checks map[string]HealthCheck, metrics ...*shared.ServiceMetrics) *PerformanceHandler {
	return &PerformanceHandler{
		Service:      service,
		Metrics:      metrics,
		HealthChecks: checks,
	}
}

// Health reports ok when every dependency check passes
func (h *PerformanceHandler) Health(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.HealthChecks))
	for name := range h.HealthChecks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := "ok"
	checks := make(map[string]string, len(names))
	for _, name := range names {
		if err := h.HealthChecks[name](ctx); err != nil {
			checks[name] = err.Error()
			status = "degraded"
			continue
		}
		checks[name] = "ok"
	}

	code := fiber.StatusOK
	if status != "ok" {
		code = fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(fiber.Map{
		"status":    status,
		"checks":    checks,
		"timestamp": time.Now().Unix(),
	})
}

// GetMetrics returns request metrics and the state of every session
func (h *PerformanceHandler) GetMetrics(c *fiber.Ctx) error {
	snapshots := make([]shared.MetricsSnapshot, 0, len(h.Metrics))
	for _, metrics := range h.Metrics {
		snapshot := metrics.GetSnapshot()
		snapshot.CustomMetrics["success_rate"] = metrics.GetSuccessRate()
		snapshots = append(snapshots, snapshot)
	}

	sessions := make([]fiber.Map, 0)
	if h.Service != nil {
		for _, session := range h.Service.Sessions() {
			snapshot := session.Snapshot()
			sessions = append(sessions, fiber.Map{
				"ipo_name":   snapshot.IPOName,
				"state":      snapshot.State,
				"generation": snapshot.Generation,
				"counts":     services.CountResults(snapshot.Results),
				"running":    session.Running(),
			})
		}
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"services": snapshots,
			"sessions": sessions,
		},
	})
}
