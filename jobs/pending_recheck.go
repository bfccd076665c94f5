package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/fenilmodi00/ipo-allotment-client/services"
	"github.com/sirupsen/logrus"
)

// PendingRecheckJob re-runs a normal pass for idle sessions still holding rows
// without an authoritative answer (WAITING, CHECKING, UNKNOWN or ERROR)
type PendingRecheckJob struct {
	Service  *services.AllotmentService
	Interval time.Duration
	Timeout  time.Duration
}

func NewPendingRecheckJob(service *services.AllotmentService, interval time.Duration) *PendingRecheckJob {
	return &PendingRecheckJob{
		Service:  service,
		Interval: interval,
		Timeout:  10 * time.Minute,
	}
}

// Start runs the job on every tick until ctx is done
func (j *PendingRecheckJob) Start(ctx context.Context) {
	logrus.WithField("interval", j.Interval).Info("Starting Pending Recheck Job")
	ticker := time.NewTicker(j.Interval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				j.Run(ctx)
			}
		}
	}()
}

// Run rechecks every eligible session once and returns how many were rechecked
func (j *PendingRecheckJob) Run(ctx context.Context) int {
	startTime := time.Now()
	ctx, cancel := context.WithTimeout(ctx, j.Timeout)
	defer cancel()

	rechecked := 0
	for _, session := range j.Service.Sessions() {
		if ctx.Err() != nil {
			break
		}
		if !session.NeedsRecheck() {
			continue
		}

		logger := logrus.WithFields(logrus.Fields{
			"component": "PendingRecheckJob",
			"ipo_name":  session.IPOName(),
		})
		if _, err := j.Service.ReconcileIPO(ctx, session.IPOName(), "", false); err != nil {
			if !errors.Is(err, services.ErrSuperseded) {
				logger.WithError(err).Warn("Pending recheck failed")
			}
			continue
		}
		rechecked++
	}

	if rechecked > 0 {
		logrus.Infof("Pending Recheck Job completed: rechecked %d sessions (took %v)", rechecked, time.Since(startTime))
	}
	return rechecked
}
