package jobs

import (
	"context"
	"time"

	"github.com/fenilmodi00/ipo-allotment-client/services"
	"github.com/sirupsen/logrus"
)

// CloudPANRefreshJob keeps the registry's snapshot of account PANs current
type CloudPANRefreshJob struct {
	Registry *services.PANRegistry
	Interval time.Duration
}

func NewCloudPANRefreshJob(registry *services.PANRegistry, interval time.Duration) *CloudPANRefreshJob {
	return &CloudPANRefreshJob{Registry: registry, Interval: interval}
}

func (j *CloudPANRefreshJob) Start(ctx context.Context) {
	logrus.WithField("interval", j.Interval).Info("Starting Cloud PAN Refresh Job")
	ticker := time.NewTicker(j.Interval)

	go func() {
		defer ticker.Stop()
		// Run immediately on start
		j.Run(ctx)

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

func (j *CloudPANRefreshJob) Run(ctx context.Context) error {
	if err := j.Registry.RefreshCloud(ctx); err != nil {
		logrus.Errorf("Cloud PAN Refresh Job failed: %v", err)
		return err
	}
	logrus.Debugf("Cloud PAN Refresh Job completed: %d account PANs", len(j.Registry.CloudPANs()))
	return nil
}
