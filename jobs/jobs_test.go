package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fenilmodi00/ipo-allotment-client/models"
	"github.com/fenilmodi00/ipo-allotment-client/services"
	"github.com/fenilmodi00/ipo-allotment-client/shared"
	"github.com/fenilmodi00/ipo-allotment-client/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedBackend answers with status for every check
type scriptedBackend struct {
	mutex  sync.Mutex
	status string
	calls  int
}

func (b *scriptedBackend) CheckAllotmentStatus(context.Context, string, string, []string, bool) (*models.AllotmentAPIResult, error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.calls++
	return &models.AllotmentAPIResult{Success: true, Data: []models.AllotmentAPIRecord{{Status: b.status}}}, nil
}

func (b *scriptedBackend) set(status string) {
	b.mutex.Lock()
	b.status = status
	b.mutex.Unlock()
}

func (b *scriptedBackend) count() int {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.calls
}

func TestPendingRecheckJobRechecksUnresolvedSessions(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryStore()
	registry := services.NewPANRegistry(services.NewLocalPANStore(kv), nil, "")
	require.NoError(t, registry.AddLocal(ctx, models.PANEntry{PANNumber: "AAAAA1111A"}))

	backend := &scriptedBackend{status: "UNKNOWN"}
	service := services.NewAllotmentService(registry, services.NewAllotmentCacheStore(kv),
		services.NewPollingClient(backend, shared.PollingConfig{RetryInterval: time.Millisecond}),
		shared.ReconcileConfig{})
	defer service.Close()

	_, err := service.ReconcileIPO(ctx, "Acme Ltd", "", false)
	require.NoError(t, err)
	_, err = service.ReconcileIPO(ctx, "Done Ltd", "", false)
	require.NoError(t, err)
	require.Equal(t, 2, backend.count())

	job := NewPendingRecheckJob(service, time.Hour)
	backend.set("ALLOTTED")
	assert.Equal(t, 2, job.Run(ctx))
	assert.Equal(t, 4, backend.count())

	// everything resolved now
	assert.Equal(t, 0, job.Run(ctx))
	assert.Equal(t, 4, backend.count())
}

type failingCloud struct{}

func (failingCloud) ListUserPANs(context.Context, string) ([]models.PANEntry, error) {
	return nil, errors.New("unauthorized")
}
func (failingCloud) AddUserPAN(context.Context, string, models.PANEntry) error    { return nil }
func (failingCloud) UpdateUserPAN(context.Context, string, models.PANEntry) error { return nil }
func (failingCloud) DeleteUserPAN(context.Context, string, string) error          { return nil }

func TestCloudPANRefreshJobSurfacesSyncError(t *testing.T) {
	registry := services.NewPANRegistry(services.NewLocalPANStore(storage.NewMemoryStore()), failingCloud{}, "token")
	err := NewCloudPANRefreshJob(registry, time.Hour).Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, shared.ErrorCategorySync, shared.CategoryOf(err))
}
