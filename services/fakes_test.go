package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fenilmodi00/ipo-allotment-client/models"
	"github.com/fenilmodi00/ipo-allotment-client/shared"
	"github.com/fenilmodi00/ipo-allotment-client/storage"
)

type backendCall struct {
	ipoName   string
	registrar string
	pan       string
	force     bool
}

// fakeBackend answers allotment checks through a scripted respond function
type fakeBackend struct {
	mutex   sync.Mutex
	calls   []backendCall
	respond func(ctx context.Context, pan string, call int) (*models.AllotmentAPIResult, error)
}

func (f *fakeBackend) CheckAllotmentStatus(ctx context.Context, ipoName, registrar string, panNumbers []string, forceRefresh bool) (*models.AllotmentAPIResult, error) {
	f.mutex.Lock()
	call := len(f.calls)
	f.calls = append(f.calls, backendCall{ipoName: ipoName, registrar: registrar, pan: panNumbers[0], force: forceRefresh})
	respond := f.respond
	f.mutex.Unlock()

	if respond == nil {
		return apiRecord("NOT_ALLOTTED", "Not allotted"), nil
	}
	return respond(ctx, panNumbers[0], call)
}

func (f *fakeBackend) Calls() []backendCall {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	calls := make([]backendCall, len(f.calls))
	copy(calls, f.calls)
	return calls
}

func (f *fakeBackend) CallsFor(pan string) int {
	count := 0
	for _, call := range f.Calls() {
		if call.pan == pan {
			count++
		}
	}
	return count
}

// statusByPAN answers every check for a PAN with a fixed status
func statusByPAN(statuses map[string]string) func(context.Context, string, int) (*models.AllotmentAPIResult, error) {
	return func(_ context.Context, pan string, _ int) (*models.AllotmentAPIResult, error) {
		status, ok := statuses[pan]
		if !ok {
			status = "NOT_APPLIED"
		}
		if status == "ALLOTTED" {
			return allottedRecord(50), nil
		}
		return apiRecord(status, ""), nil
	}
}

func apiRecord(status, message string) *models.AllotmentAPIResult {
	return &models.AllotmentAPIResult{
		Success: true,
		Data:    []models.AllotmentAPIRecord{{Status: status, Message: message}},
	}
}

func allottedRecord(units int) *models.AllotmentAPIResult {
	return &models.AllotmentAPIResult{
		Success: true,
		Data: []models.AllotmentAPIRecord{{
			Status:  "ALLOTTED",
			Units:   &units,
			Message: "Allotted",
			DPID:    "IN300123",
		}},
	}
}

// fakeCloud is an in-memory account PAN list that can be told to fail
type fakeCloud struct {
	mutex   sync.Mutex
	entries []models.PANEntry
	failErr error
}

func (f *fakeCloud) ListUserPANs(_ context.Context, _ string) ([]models.PANEntry, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if f.failErr != nil {
		return nil, f.failErr
	}
	entries := make([]models.PANEntry, len(f.entries))
	copy(entries, f.entries)
	return entries, nil
}

func (f *fakeCloud) AddUserPAN(_ context.Context, _ string, entry models.PANEntry) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if f.failErr != nil {
		return f.failErr
	}
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeCloud) UpdateUserPAN(_ context.Context, _ string, entry models.PANEntry) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if f.failErr != nil {
		return f.failErr
	}
	for i := range f.entries {
		if f.entries[i].PANNumber == entry.PANNumber {
			f.entries[i] = entry
			return nil
		}
	}
	return errors.New("not found")
}

func (f *fakeCloud) DeleteUserPAN(_ context.Context, _ string, pan string) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if f.failErr != nil {
		return f.failErr
	}
	kept := f.entries[:0]
	for _, entry := range f.entries {
		if entry.PANNumber != pan {
			kept = append(kept, entry)
		}
	}
	f.entries = kept
	return nil
}

func (f *fakeCloud) setFailure(err error) {
	f.mutex.Lock()
	f.failErr = err
	f.mutex.Unlock()
}

func testPollingConfig() shared.PollingConfig {
	return shared.PollingConfig{MaxRetries: shared.DefaultPollMaxRetries, RetryInterval: time.Millisecond}
}

type sessionFixture struct {
	kv      *storage.MemoryStore
	cache   *AllotmentCacheStore
	backend *fakeBackend
	session *ReconcileSession
}

func newSessionFixture(pacing time.Duration) *sessionFixture {
	kv := storage.NewMemoryStore()
	cache := NewAllotmentCacheStore(kv)
	backend := &fakeBackend{}
	poller := NewPollingClient(backend, testPollingConfig())
	session := NewReconcileSession("Acme Ltd", "Link Intime India Private Ltd", cache, poller,
		shared.ReconcileConfig{PANPacing: pacing})
	return &sessionFixture{kv: kv, cache: cache, backend: backend, session: session}
}

func localPAN(pan, name string) models.PANEntry {
	return models.PANEntry{PANNumber: pan, Name: name, Source: models.PANSourceLocal}
}

func cloudPAN(pan, name string) models.PANEntry {
	return models.PANEntry{PANNumber: pan, Name: name, Source: models.PANSourceCloud}
}

func resultFor(pan string, status models.AllotmentStatus) models.AllotmentResult {
	return models.AllotmentResult{PANNumber: pan, Name: pan, Source: models.PANSourceLocal, Status: status}
}

func statusesOf(results []models.AllotmentResult) map[string]models.AllotmentStatus {
	statuses := make(map[string]models.AllotmentStatus, len(results))
	for _, result := range results {
		statuses[result.PANNumber] = result.Status
	}
	return statuses
}
