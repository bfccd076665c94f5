package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/fenilmodi00/ipo-allotment-client/models"
	"github.com/fenilmodi00/ipo-allotment-client/shared"
	"github.com/sirupsen/logrus"
)

const (
	allotmentCheckPath = "/api/v1/allotment/check"
	userPANsPath       = "/api/v1/user/pans"
)

// BackendClient talks to the allotment backend: the registrar check endpoint and
// the account PAN endpoints
type BackendClient struct {
	baseURL     string
	token       string
	client      *http.Client
	factory     *shared.HTTPClientFactory
	rateLimiter *shared.HTTPRequestRateLimiter
	metrics     *shared.ServiceMetrics
}

// NewBackendClient creates a client for the backend described by config
func NewBackendClient(config shared.ServiceConfig) *BackendClient {
	factory := shared.NewHTTPClientFactory(config.HTTPRequestTimeout)
	return &BackendClient{
		baseURL:     config.BaseURL,
		token:       config.AuthToken,
		client:      factory.CreateOptimizedHTTPClient(config.HTTPRequestTimeout),
		factory:     factory,
		rateLimiter: shared.NewHTTPRequestRateLimiter(config.MinRequestInterval),
		metrics:     shared.NewServiceMetrics("Allotment_Backend"),
	}
}

// Metrics returns the request metrics of the client
func (b *BackendClient) Metrics() *shared.ServiceMetrics {
	return b.metrics
}

// Close releases pooled connections
func (b *BackendClient) Close() {
	b.factory.CleanupAllClients()
}

type userPANsResponse struct {
	Success bool              `json:"success"`
	Data    []models.PANEntry `json:"data"`
}

type backendErrorResponse struct {
	Title string `json:"title"`
	Error string `json:"error"`
}

// CheckAllotmentStatus posts one allotment check. Non-2xx responses are returned
// as network errors.
func (b *BackendClient) CheckAllotmentStatus(ctx context.Context, ipoName, registrar string, panNumbers []string, forceRefresh bool) (*models.AllotmentAPIResult, error) {
	body := models.AllotmentCheckRequest{
		IPOName:      ipoName,
		Registrar:    registrar,
		PANNumbers:   panNumbers,
		ForceRefresh: forceRefresh,
	}

	var result models.AllotmentAPIResult
	if err := b.do(ctx, http.MethodPost, allotmentCheckPath, b.token, body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListUserPANs returns the PANs saved to the account
func (b *BackendClient) ListUserPANs(ctx context.Context, token string) ([]models.PANEntry, error) {
	var response userPANsResponse
	if err := b.do(ctx, http.MethodGet, userPANsPath, token, nil, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// AddUserPAN saves a PAN to the account
func (b *BackendClient) AddUserPAN(ctx context.Context, token string, entry models.PANEntry) error {
	return b.do(ctx, http.MethodPost, userPANsPath, token, entry, nil)
}

// UpdateUserPAN renames a PAN saved to the account
func (b *BackendClient) UpdateUserPAN(ctx context.Context, token string, entry models.PANEntry) error {
	return b.do(ctx, http.MethodPut, userPANsPath+"/"+url.PathEscape(entry.PANNumber), token, entry, nil)
}

// DeleteUserPAN removes a PAN from the account
func (b *BackendClient) DeleteUserPAN(ctx context.Context, token, pan string) error {
	return b.do(ctx, http.MethodDelete, userPANsPath+"/"+url.PathEscape(pan), token, nil, nil)
}

func (b *BackendClient) do(ctx context.Context, method, path, token string, payload, out interface{}) error {
	logger := logrus.WithFields(logrus.Fields{
		"component": "BackendClient",
		"method":    method,
		"path":      path,
	})

	if err := b.rateLimiter.Wait(ctx); err != nil {
		return err
	}

	var reader io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	shared.SetJSONHeaders(request, token)

	started := time.Now()
	response, err := b.client.Do(request)
	if err != nil {
		b.metrics.RecordRequest(false, time.Since(started))
		logger.WithError(err).Debug("Backend request failed")
		return shared.NewServiceError(shared.ErrorCategoryNetwork, "REQUEST_FAILED",
			err.Error(), "BackendClient", path, true, err)
	}
	defer response.Body.Close()

	raw, err := io.ReadAll(response.Body)
	b.metrics.RecordRequest(err == nil && response.StatusCode < 300, time.Since(started))
	if err != nil {
		return shared.NewServiceError(shared.ErrorCategoryNetwork, "READ_FAILED",
			err.Error(), "BackendClient", path, true, err)
	}

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		logger.WithField("status_code", response.StatusCode).Warn("Backend returned an error status")
		return backendError(path, response.StatusCode, raw)
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return shared.NewServiceError(shared.ErrorCategoryNetwork, "DECODE_FAILED",
			fmt.Sprintf("failed to decode backend response: %v", err), "BackendClient", path, false, err)
	}
	return nil
}

// backendError surfaces the backend's {title, error} body verbatim. Account PAN
// calls become sync errors; the check endpoint becomes a network error.
func backendError(path string, statusCode int, body []byte) error {
	var decoded backendErrorResponse
	_ = json.Unmarshal(body, &decoded)

	message := decoded.Error
	if message == "" {
		message = fmt.Sprintf("backend returned status %d", statusCode)
	}

	if path == allotmentCheckPath {
		return shared.NewServiceError(shared.ErrorCategoryNetwork, "BAD_STATUS", message,
			"BackendClient", path, statusCode >= 500, nil).WithDetails(statusDetails(statusCode))
	}

	title := decoded.Title
	if title == "" {
		title = http.StatusText(statusCode)
	}
	return shared.NewSyncError(title, message, path, nil).WithDetails(statusDetails(statusCode))
}

func statusDetails(statusCode int) map[string]int {
	return map[string]int{"status_code": statusCode}
}
