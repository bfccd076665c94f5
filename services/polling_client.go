package services

import (
	"context"
	"strings"
	"time"

	"github.com/fenilmodi00/ipo-allotment-client/models"
	"github.com/fenilmodi00/ipo-allotment-client/shared"
	"github.com/sirupsen/logrus"
)

// AllotmentBackend is the remote allotment check call. The interface takes a PAN
// list but the polling client always sends exactly one PAN.
type AllotmentBackend interface {
	CheckAllotmentStatus(ctx context.Context, ipoName, registrar string, panNumbers []string, forceRefresh bool) (*models.AllotmentAPIResult, error)
}

// PollingClient checks one PAN, re-polling while the registrar job is still running
type PollingClient struct {
	backend AllotmentBackend
	config  shared.PollingConfig
	metrics *shared.ServiceMetrics
}

// NewPollingClient creates a polling client
func NewPollingClient(backend AllotmentBackend, config shared.PollingConfig) *PollingClient {
	return &PollingClient{
		backend: backend,
		config:  config,
		metrics: shared.NewServiceMetrics("Allotment_Polling"),
	}
}

// Metrics returns the request metrics of the client
func (p *PollingClient) Metrics() *shared.ServiceMetrics {
	return p.metrics
}

// CheckOne returns the backend's answer for one PAN. While the single returned
// record reports CHECKING it retries the identical request after RetryInterval,
// up to MaxRetries times, then accepts the last response even if still CHECKING.
// Transport failures become NOT_APPLIED / "No record found". Only context
// cancellation is returned as an error.
func (p *PollingClient) CheckOne(ctx context.Context, ipoName, registrar, panNumber string, forceRefresh bool) (models.AllotmentOutcome, error) {
	logger := logrus.WithFields(logrus.Fields{
		"component": "PollingClient",
		"ipo_name":  ipoName,
		"registrar": registrar,
		"pan":       maskPAN(panNumber),
	})

	for attempt := 0; ; attempt++ {
		started := time.Now()
		result, err := p.backend.CheckAllotmentStatus(ctx, ipoName, registrar, []string{panNumber}, forceRefresh)
		p.metrics.RecordRequest(err == nil, time.Since(started))

		if ctxErr := ctx.Err(); ctxErr != nil {
			return models.AllotmentOutcome{}, ctxErr
		}

		if err != nil {
			p.metrics.IncrementCustomCounter("check_failures")
			logger.WithError(err).WithField("attempt", attempt+1).Warn("Allotment check failed, treating as no record")
			return noRecordOutcome(), nil
		}

		if !stillChecking(result) || attempt >= p.config.MaxRetries {
			if stillChecking(result) {
				p.metrics.IncrementCustomCounter("retry_ceiling_reached")
				logger.WithField("attempts", attempt+1).Warn("Registrar still checking after retry ceiling")
			}
			return normalizeAPIResult(result), nil
		}

		p.metrics.IncrementCustomCounter("checking_retries")
		logger.WithField("attempt", attempt+1).Debug("Registrar still checking, retrying")

		if err := shared.SleepContext(ctx, p.config.RetryInterval); err != nil {
			return models.AllotmentOutcome{}, err
		}
	}
}

// stillChecking reports whether the response is the registrar's in-progress sentinel
func stillChecking(result *models.AllotmentAPIResult) bool {
	if result == nil || len(result.Data) != 1 {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(result.Data[0].Status), string(models.StatusChecking))
}

// maskPAN hides the middle of a PAN in logs
func maskPAN(pan string) string {
	if len(pan) < 4 {
		return pan
	}
	return pan[:2] + strings.Repeat("*", len(pan)-4) + pan[len(pan)-2:]
}
