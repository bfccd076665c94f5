package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fenilmodi00/ipo-allotment-client/services"
	"github.com/fenilmodi00/ipo-allotment-client/shared"
	"github.com/fenilmodi00/ipo-allotment-client/storage"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	app    *fiber.App
	checks *atomic.Int64
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	checks := &atomic.Int64{}

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/api/v1/allotment/check":
			checks.Add(1)
			_, _ = w.Write([]byte(`{"success":true,"data":[{"status":"ALLOTTED","units":20,"message":"Allotted"}]}`))
		case r.URL.Path == "/api/v1/user/pans" && r.Method == http.MethodGet:
			_, _ = w.Write([]byte(`{"success":true,"data":[{"pan_number":"BBBBB2222B","name":"Cloud B"}]}`))
		case r.URL.Path == "/api/v1/user/pans" && r.Method == http.MethodPost:
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"title":"Limit reached","error":"Upgrade to save more PANs"}`))
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	t.Cleanup(backend.Close)

	client := services.NewBackendClient(shared.ServiceConfig{
		BaseURL:            backend.URL,
		AuthToken:          "token",
		HTTPRequestTimeout: 5 * time.Second,
	})
	kv := storage.NewMemoryStore()
	registry := services.NewPANRegistry(services.NewLocalPANStore(kv), client, "token")
	require.NoError(t, registry.RefreshCloud(context.Background()))

	poller := services.NewPollingClient(client, shared.PollingConfig{MaxRetries: 1, RetryInterval: time.Millisecond})
	service := services.NewAllotmentService(registry, services.NewAllotmentCacheStore(kv), poller, shared.ReconcileConfig{})
	t.Cleanup(service.Close)

	checksByName := map[string]HealthCheck{
		"store": func(context.Context) error { return nil },
	}

	app := fiber.New()
	RegisterRoutes(app,
		NewAllotmentHandler(service),
		NewPANHandler(service),
		NewPerformanceHandler(service, checksByName, poller.Metrics(), client.Metrics()),
	)
	return &testEnv{app: app, checks: checks}
}

func (e *testEnv) do(t *testing.T, method, path, body string) (int, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp.StatusCode, decoded
}

func TestCheckAndViewAllotments(t *testing.T) {
	env := newTestEnv(t)

	status, body := env.do(t, http.MethodPost, "/api/v1/allotments/Acme%20Ltd/pans", `{"pan_number":"aaaaa1111a","name":"Riya"}`)
	require.Equal(t, fiber.StatusCreated, status, body)

	status, body = env.do(t, http.MethodPost, "/api/v1/allotments/Acme%20Ltd/check", `{"registrar":"Link Intime","wait":true}`)
	require.Equal(t, fiber.StatusOK, status, body)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, "READY", data["state"])
	assert.Equal(t, "Acme Ltd", data["ipo_name"])
	assert.Equal(t, int64(2), env.checks.Load())

	status, body = env.do(t, http.MethodGet, "/api/v1/allotments/Acme%20Ltd?source=CLOUD", "")
	require.Equal(t, fiber.StatusOK, status)
	data = body["data"].(map[string]interface{})
	results := data["results"].([]interface{})
	require.Len(t, results, 1)
	assert.Equal(t, "BBBBB2222B", results[0].(map[string]interface{})["pan_number"])
	counts := data["counts"].(map[string]interface{})
	assert.Equal(t, float64(2), counts["total"])
	assert.Equal(t, float64(2), counts["allotted"])

	// a second non-forced pass is served from cache
	status, _ = env.do(t, http.MethodPost, "/api/v1/allotments/Acme%20Ltd/check", `{"wait":true}`)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, int64(2), env.checks.Load())
}

func TestAddPANValidationAndDuplicates(t *testing.T) {
	env := newTestEnv(t)

	status, body := env.do(t, http.MethodPost, "/api/v1/allotments/Acme/pans", `{"pan_number":"bad"}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "INVALID_PAN", body["code"])

	status, _ = env.do(t, http.MethodPost, "/api/v1/allotments/Acme/check", `{"wait":true}`)
	require.Equal(t, fiber.StatusOK, status)

	status, body = env.do(t, http.MethodPost, "/api/v1/allotments/Acme/pans", `{"pan_number":"BBBBB2222B"}`)
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, "DUPLICATE_PAN", body["code"])

	status, body = env.do(t, http.MethodPost, "/api/v1/allotments/Acme/pans", `{"pan_number":"CCCCC3333C","save_to_cloud":true}`)
	assert.Equal(t, fiber.StatusBadGateway, status)
	assert.Equal(t, "Limit reached", body["title"])
	assert.Equal(t, "Upgrade to save more PANs", body["error"])
}

func TestRefreshUnknownPAN(t *testing.T) {
	env := newTestEnv(t)
	status, body := env.do(t, http.MethodPost, "/api/v1/allotments/Acme/pans/AAAAA1111A/refresh", "")
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, false, body["success"])
}

func TestGetPANs(t *testing.T) {
	env := newTestEnv(t)

	status, _ := env.do(t, http.MethodPost, "/api/v1/allotments/Acme/pans", `{"pan_number":"AAAAA1111A"}`)
	require.Equal(t, fiber.StatusCreated, status)

	status, body := env.do(t, http.MethodGet, "/api/v1/pans", "")
	require.Equal(t, fiber.StatusOK, status)
	data := body["data"].(map[string]interface{})
	assert.Len(t, data["pans"], 2)
	assert.Len(t, data["needs_sync"], 1)

	status, _ = env.do(t, http.MethodDelete, "/api/v1/pans/AAAAA1111A?source=LOCAL", "")
	require.Equal(t, fiber.StatusOK, status)
	_, body = env.do(t, http.MethodGet, "/api/v1/pans", "")
	assert.Len(t, body["data"].(map[string]interface{})["needs_sync"], 0)
}

func TestEventsStreamsSnapshot(t *testing.T) {
	env := newTestEnv(t)
	status, _ := env.do(t, http.MethodPost, "/api/v1/allotments/Acme/check", `{"wait":true}`)
	require.Equal(t, fiber.StatusOK, status)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/allotments/Acme/events?follow=false", nil)
	resp, err := env.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "event: snapshot")
	assert.Contains(t, string(raw), `"state":"READY"`)
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t)

	status, body := env.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "ok", body["status"])

	status, body = env.do(t, http.MethodGet, "/api/v1/metrics", "")
	assert.Equal(t, fiber.StatusOK, status)
	data := body["data"].(map[string]interface{})
	assert.Len(t, data["services"], 2)
}

func TestErrorStatus(t *testing.T) {
	assert.Equal(t, fiber.StatusNotFound, errorStatus(services.ErrPANNotFound))
	assert.Equal(t, fiber.StatusConflict, errorStatus(services.ErrSuperseded))
	assert.Equal(t, fiber.StatusBadRequest, errorStatus(services.ErrInvalidPAN))
	assert.Equal(t, fiber.StatusBadGateway, errorStatus(shared.NewSyncError("t", "m", "add", nil)))
	assert.Equal(t, fiber.StatusInternalServerError, errorStatus(shared.NewStorageError("write", errors.New("disk"))))
	assert.Equal(t, fiber.StatusInternalServerError, errorStatus(errors.New("boom")))
}
