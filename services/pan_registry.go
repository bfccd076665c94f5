package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/fenilmodi00/ipo-allotment-client/models"
	"github.com/fenilmodi00/ipo-allotment-client/shared"
	"github.com/fenilmodi00/ipo-allotment-client/storage"
	"github.com/sirupsen/logrus"
)

// UnsavedPANsKey is the store key of the device-local PAN list
const UnsavedPANsKey = "UNSAVED_PANS"

// MergePanSources merges local and cloud PANs into one list unique on PAN number.
// A cloud entry replaces a local entry with the same PAN; a local entry never
// replaces a cloud one. Order is first insertion: local entries, then cloud-only ones.
func MergePanSources(localPans, cloudPans []models.PANEntry) []models.PANEntry {
	merged := make(map[string]models.PANEntry, len(localPans)+len(cloudPans))
	order := make([]string, 0, len(localPans)+len(cloudPans))

	insert := func(entry models.PANEntry, source models.PANSource) {
		entry.Source = source
		existing, exists := merged[entry.PANNumber]
		if !exists {
			order = append(order, entry.PANNumber)
		} else if existing.Source == models.PANSourceCloud && source == models.PANSourceLocal {
			return
		}
		merged[entry.PANNumber] = entry
	}

	for _, entry := range localPans {
		insert(entry, models.PANSourceLocal)
	}
	for _, entry := range cloudPans {
		insert(entry, models.PANSourceCloud)
	}

	result := make([]models.PANEntry, 0, len(order))
	for _, pan := range order {
		result = append(result, merged[pan])
	}
	return result
}

// NeedsSync returns the local PANs that have no cloud copy
func NeedsSync(localPans, cloudPans []models.PANEntry) []models.PANEntry {
	inCloud := make(map[string]bool, len(cloudPans))
	for _, entry := range cloudPans {
		inCloud[entry.PANNumber] = true
	}

	var pending []models.PANEntry
	for _, entry := range localPans {
		if !inCloud[entry.PANNumber] {
			entry.Source = models.PANSourceLocal
			pending = append(pending, entry)
		}
	}
	return pending
}

// LocalPANStore persists the device-local (unsaved) PAN list
type LocalPANStore struct {
	kv    storage.KVStore
	mutex sync.Mutex
}

// NewLocalPANStore creates a store over kv
func NewLocalPANStore(kv storage.KVStore) *LocalPANStore {
	return &LocalPANStore{kv: kv}
}

// List returns the stored local PANs
func (s *LocalPANStore) List(ctx context.Context) ([]models.PANEntry, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.read(ctx)
}

// Add appends a PAN, rejecting duplicates
func (s *LocalPANStore) Add(ctx context.Context, entry models.PANEntry) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	entries, err := s.read(ctx)
	if err != nil {
		return err
	}
	for _, existing := range entries {
		if existing.PANNumber == entry.PANNumber {
			return shared.NewValidationError(ErrDuplicatePAN.Code,
				fmt.Sprintf("PAN %s is already saved on this device", entry.PANNumber))
		}
	}

	entry.Source = models.PANSourceLocal
	return s.write(ctx, append(entries, entry))
}

// Remove deletes a PAN; removing an absent PAN is not an error
func (s *LocalPANStore) Remove(ctx context.Context, pan string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	entries, err := s.read(ctx)
	if err != nil {
		return err
	}

	kept := entries[:0]
	for _, existing := range entries {
		if existing.PANNumber != pan {
			kept = append(kept, existing)
		}
	}
	return s.write(ctx, kept)
}

// Rename changes the display name of a stored PAN
func (s *LocalPANStore) Rename(ctx context.Context, pan, name string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	entries, err := s.read(ctx)
	if err != nil {
		return err
	}
	for i := range entries {
		if entries[i].PANNumber == pan {
			entries[i].Name = name
			return s.write(ctx, entries)
		}
	}
	return shared.NewValidationError(ErrPANNotFound.Code,
		fmt.Sprintf("PAN %s is not saved on this device", pan))
}

func (s *LocalPANStore) read(ctx context.Context) ([]models.PANEntry, error) {
	raw, found, err := s.kv.Get(ctx, UnsavedPANsKey)
	if err != nil {
		return nil, shared.NewStorageError("read unsaved PANs", err)
	}
	if !found || raw == "" {
		return nil, nil
	}

	var entries []models.PANEntry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, shared.NewStorageError("decode unsaved PANs", err)
	}
	for i := range entries {
		entries[i].PANNumber = NormalizePAN(entries[i].PANNumber)
		entries[i].Source = models.PANSourceLocal
	}
	return entries, nil
}

func (s *LocalPANStore) write(ctx context.Context, entries []models.PANEntry) error {
	if entries == nil {
		entries = []models.PANEntry{}
	}
	payload, err := json.Marshal(entries)
	if err != nil {
		return shared.NewStorageError("encode unsaved PANs", err)
	}
	if err := s.kv.Set(ctx, UnsavedPANsKey, string(payload)); err != nil {
		return shared.NewStorageError("write unsaved PANs", err)
	}
	return nil
}

// CloudPANClient manages the PANs saved to the user's account
type CloudPANClient interface {
	ListUserPANs(ctx context.Context, token string) ([]models.PANEntry, error)
	AddUserPAN(ctx context.Context, token string, entry models.PANEntry) error
	UpdateUserPAN(ctx context.Context, token string, entry models.PANEntry) error
	DeleteUserPAN(ctx context.Context, token, pan string) error
}

// PANRegistry combines the local PAN store with a snapshot of the cloud PANs
type PANRegistry struct {
	local *LocalPANStore
	cloud CloudPANClient
	token string

	mutex     sync.RWMutex
	cloudPANs []models.PANEntry
}

// NewPANRegistry creates a registry. cloud may be nil when no account is linked.
func NewPANRegistry(local *LocalPANStore, cloud CloudPANClient, token string) *PANRegistry {
	return &PANRegistry{local: local, cloud: cloud, token: token}
}

// Current returns the merged, de-duplicated PAN list
func (r *PANRegistry) Current(ctx context.Context) ([]models.PANEntry, error) {
	localPANs, err := r.local.List(ctx)
	if err != nil {
		return nil, err
	}
	return MergePanSources(localPANs, r.CloudPANs()), nil
}

// CloudPANs returns a copy of the cloud snapshot
func (r *PANRegistry) CloudPANs() []models.PANEntry {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	snapshot := make([]models.PANEntry, len(r.cloudPANs))
	copy(snapshot, r.cloudPANs)
	return snapshot
}

// NeedsSync returns local PANs not yet saved to the account
func (r *PANRegistry) NeedsSync(ctx context.Context) ([]models.PANEntry, error) {
	localPANs, err := r.local.List(ctx)
	if err != nil {
		return nil, err
	}
	return NeedsSync(localPANs, r.CloudPANs()), nil
}

// RefreshCloud reloads the cloud snapshot from the account
func (r *PANRegistry) RefreshCloud(ctx context.Context) error {
	if r.cloud == nil {
		return nil
	}

	entries, err := r.cloud.ListUserPANs(ctx, r.token)
	if err != nil {
		return asSyncError(err, "Could not load saved PANs", "list")
	}
	for i := range entries {
		entries[i].PANNumber = NormalizePAN(entries[i].PANNumber)
		entries[i].Source = models.PANSourceCloud
	}

	r.mutex.Lock()
	r.cloudPANs = entries
	r.mutex.Unlock()

	logrus.WithFields(logrus.Fields{
		"component": "PANRegistry",
		"cloud_pan": len(entries),
	}).Debug("Refreshed cloud PAN snapshot")
	return nil
}

// AddLocal saves a validated PAN on the device
func (r *PANRegistry) AddLocal(ctx context.Context, entry models.PANEntry) error {
	if r.hasCloud(entry.PANNumber) {
		return shared.NewValidationError(ErrDuplicatePAN.Code,
			fmt.Sprintf("PAN %s is already saved to your account", entry.PANNumber))
	}
	return r.local.Add(ctx, entry)
}

// AddCloud saves a PAN to the account. The snapshot is updated optimistically and
// rolled back when the backend call fails.
func (r *PANRegistry) AddCloud(ctx context.Context, entry models.PANEntry) error {
	if err := r.requireCloud("add"); err != nil {
		return err
	}
	entry.Source = models.PANSourceCloud

	r.mutex.Lock()
	for _, existing := range r.cloudPANs {
		if existing.PANNumber == entry.PANNumber {
			r.mutex.Unlock()
			return shared.NewValidationError(ErrDuplicatePAN.Code,
				fmt.Sprintf("PAN %s is already saved to your account", entry.PANNumber))
		}
	}
	r.cloudPANs = append(r.cloudPANs, entry)
	r.mutex.Unlock()

	if err := r.cloud.AddUserPAN(ctx, r.token, entry); err != nil {
		r.removeFromSnapshot(entry.PANNumber)
		return asSyncError(err, "Could not save PAN", "add")
	}
	return nil
}

// UpdateCloud renames a cloud PAN, rolling back on failure
func (r *PANRegistry) UpdateCloud(ctx context.Context, entry models.PANEntry) error {
	if err := r.requireCloud("update"); err != nil {
		return err
	}

	r.mutex.Lock()
	index := -1
	for i, existing := range r.cloudPANs {
		if existing.PANNumber == entry.PANNumber {
			index = i
			break
		}
	}
	if index < 0 {
		r.mutex.Unlock()
		return shared.NewValidationError(ErrPANNotFound.Code,
			fmt.Sprintf("PAN %s is not saved to your account", entry.PANNumber))
	}
	previous := r.cloudPANs[index]
	entry.Source = models.PANSourceCloud
	r.cloudPANs[index] = entry
	r.mutex.Unlock()

	if err := r.cloud.UpdateUserPAN(ctx, r.token, entry); err != nil {
		r.mutex.Lock()
		for i, existing := range r.cloudPANs {
			if existing.PANNumber == previous.PANNumber {
				r.cloudPANs[i] = previous
			}
		}
		r.mutex.Unlock()
		return asSyncError(err, "Could not update PAN", "update")
	}
	return nil
}

// RenameLocal changes the display name of a device-local PAN
func (r *PANRegistry) RenameLocal(ctx context.Context, pan, name string) error {
	return r.local.Rename(ctx, pan, name)
}

// HasCloud reports whether the PAN is saved to the account
func (r *PANRegistry) HasCloud(pan string) bool {
	return r.hasCloud(pan)
}

// RemoveLocal deletes a device-local PAN
func (r *PANRegistry) RemoveLocal(ctx context.Context, pan string) error {
	return r.local.Remove(ctx, pan)
}

// RemoveCloud deletes a PAN from the account, restoring it on failure
func (r *PANRegistry) RemoveCloud(ctx context.Context, pan string) error {
	if err := r.requireCloud("delete"); err != nil {
		return err
	}

	r.mutex.Lock()
	index := -1
	for i, existing := range r.cloudPANs {
		if existing.PANNumber == pan {
			index = i
			break
		}
	}
	if index < 0 {
		r.mutex.Unlock()
		return shared.NewValidationError(ErrPANNotFound.Code,
			fmt.Sprintf("PAN %s is not saved to your account", pan))
	}
	removed := r.cloudPANs[index]
	r.cloudPANs = append(r.cloudPANs[:index:index], r.cloudPANs[index+1:]...)
	r.mutex.Unlock()

	if err := r.cloud.DeleteUserPAN(ctx, r.token, pan); err != nil {
		r.mutex.Lock()
		if index > len(r.cloudPANs) {
			index = len(r.cloudPANs)
		}
		restored := make([]models.PANEntry, 0, len(r.cloudPANs)+1)
		restored = append(restored, r.cloudPANs[:index]...)
		restored = append(restored, removed)
		restored = append(restored, r.cloudPANs[index:]...)
		r.cloudPANs = restored
		r.mutex.Unlock()
		return asSyncError(err, "Could not delete PAN", "delete")
	}
	return nil
}

// SyncLocal pushes every needs-sync PAN to the account and drops it from the
// device on success. It stops at the first failure.
func (r *PANRegistry) SyncLocal(ctx context.Context) (int, error) {
	if err := r.requireCloud("sync"); err != nil {
		return 0, err
	}

	pending, err := r.NeedsSync(ctx)
	if err != nil {
		return 0, err
	}

	synced := 0
	for _, entry := range pending {
		if err := r.AddCloud(ctx, entry); err != nil {
			return synced, err
		}
		if err := r.local.Remove(ctx, entry.PANNumber); err != nil {
			return synced, err
		}
		synced++
	}

	logrus.WithFields(logrus.Fields{
		"component": "PANRegistry",
		"synced":    synced,
	}).Info("Synced local PANs to account")
	return synced, nil
}

func (r *PANRegistry) hasCloud(pan string) bool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	for _, existing := range r.cloudPANs {
		if existing.PANNumber == pan {
			return true
		}
	}
	return false
}

func (r *PANRegistry) removeFromSnapshot(pan string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	kept := make([]models.PANEntry, 0, len(r.cloudPANs))
	for _, existing := range r.cloudPANs {
		if existing.PANNumber != pan {
			kept = append(kept, existing)
		}
	}
	r.cloudPANs = kept
}

func (r *PANRegistry) requireCloud(operation string) error {
	if r.cloud == nil {
		return shared.NewSyncError("Not signed in", "Sign in to save PANs to your account", operation, nil)
	}
	return nil
}

// asSyncError keeps a backend-provided title and message, otherwise wraps err
func asSyncError(err error, title, operation string) error {
	var serviceErr *shared.ServiceError
	if errors.As(err, &serviceErr) && serviceErr.Category == shared.ErrorCategorySync {
		return serviceErr
	}
	return shared.NewSyncError(title, err.Error(), operation, err)
}
