package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/fenilmodi00/ipo-allotment-client/models"
	"github.com/fenilmodi00/ipo-allotment-client/shared"
	"github.com/sirupsen/logrus"
)

// AllotmentService keeps one reconciliation session per IPO and routes PAN edits
// through the registry before they reach a session
type AllotmentService struct {
	registry *PANRegistry
	cache    *AllotmentCacheStore
	poller   *PollingClient
	config   shared.ReconcileConfig

	mutex    sync.Mutex
	sessions map[string]*ReconcileSession
}

// NewAllotmentService creates the service
func NewAllotmentService(registry *PANRegistry, cache *AllotmentCacheStore, poller *PollingClient, config shared.ReconcileConfig) *AllotmentService {
	return &AllotmentService{
		registry: registry,
		cache:    cache,
		poller:   poller,
		config:   config,
		sessions: make(map[string]*ReconcileSession),
	}
}

// Registry returns the PAN registry
func (s *AllotmentService) Registry() *PANRegistry {
	return s.registry
}

// Poller returns the polling client
func (s *AllotmentService) Poller() *PollingClient {
	return s.poller
}

// Session returns the session of an IPO, creating it on first use. A non-empty
// registrar replaces the one remembered by the session.
func (s *AllotmentService) Session(ipoName, registrar string) *ReconcileSession {
	ipoName = strings.TrimSpace(ipoName)

	s.mutex.Lock()
	defer s.mutex.Unlock()

	session, exists := s.sessions[ipoName]
	if !exists {
		session = NewReconcileSession(ipoName, registrar, s.cache, s.poller, s.config)
		s.sessions[ipoName] = session
		logrus.WithFields(logrus.Fields{
			"component": "AllotmentService",
			"ipo_name":  ipoName,
		}).Debug("Created reconciliation session")
		return session
	}
	session.SetRegistrar(registrar)
	return session
}

// Sessions returns every session, ordered by IPO name
func (s *AllotmentService) Sessions() []*ReconcileSession {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	sessions := make([]*ReconcileSession, 0, len(s.sessions))
	for _, session := range s.sessions {
		sessions = append(sessions, session)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].IPOName() < sessions[j].IPOName()
	})
	return sessions
}

// ReconcileIPO runs a pass over the current merged PAN set
func (s *AllotmentService) ReconcileIPO(ctx context.Context, ipoName, registrar string, forceRefresh bool) ([]models.AllotmentResult, error) {
	if strings.TrimSpace(ipoName) == "" {
		return nil, shared.NewValidationError("INVALID_IPO", "IPO name is required")
	}
	return s.Session(ipoName, registrar).ReconcileFrom(ctx, s.registry.Current, forceRefresh)
}

// View returns the filtered view of an IPO's session
func (s *AllotmentService) View(ipoName, query string, filter models.SourceFilter) ResultView {
	return s.Session(ipoName, "").View(query, filter)
}

// RefreshPAN spot-refreshes one PAN of an IPO
func (s *AllotmentService) RefreshPAN(ctx context.Context, ipoName, pan string) (models.AllotmentResult, error) {
	return s.Session(ipoName, "").RefreshPAN(ctx, pan)
}

// AddPAN validates a PAN, saves it to the device or the account and appends it to
// the IPO's result list. A PAN already listed is rejected before anything is saved.
func (s *AllotmentService) AddPAN(ctx context.Context, ipoName string, entry models.PANEntry, saveToCloud bool) (models.AllotmentResult, error) {
	pan, err := ValidatePAN(entry.PANNumber)
	if err != nil {
		return models.AllotmentResult{}, err
	}
	entry.PANNumber = pan
	entry.Name = strings.TrimSpace(entry.Name)

	session := s.Session(ipoName, "")
	if session.HasPAN(pan) {
		return models.AllotmentResult{}, duplicatePAN(pan)
	}

	if saveToCloud {
		entry.Source = models.PANSourceCloud
		err = s.registry.AddCloud(ctx, entry)
	} else {
		entry.Source = models.PANSourceLocal
		err = s.registry.AddLocal(ctx, entry)
	}
	if err != nil {
		return models.AllotmentResult{}, err
	}

	return session.AddPAN(entry)
}

// RemovePAN deletes a PAN from its store and from the IPO's result list
func (s *AllotmentService) RemovePAN(ctx context.Context, ipoName, pan string, source models.PANSource) error {
	pan = NormalizePAN(pan)
	if err := s.DeletePAN(ctx, pan, source); err != nil {
		return err
	}

	// The session may not list the PAN yet, e.g. before its first pass.
	session := s.Session(ipoName, "")
	if !session.HasPAN(pan) {
		return nil
	}
	if err := session.RemovePAN(ctx, pan); err != nil && !errors.Is(err, ErrPANNotFound) {
		return err
	}
	return nil
}

// DeletePAN deletes a PAN from the device or the account without touching any session
func (s *AllotmentService) DeletePAN(ctx context.Context, pan string, source models.PANSource) error {
	pan = NormalizePAN(pan)
	if source == "" {
		source = models.PANSourceLocal
		if s.registry.HasCloud(pan) {
			source = models.PANSourceCloud
		}
	}
	if source == models.PANSourceCloud {
		return s.registry.RemoveCloud(ctx, pan)
	}
	return s.registry.RemoveLocal(ctx, pan)
}

// RenamePAN changes a PAN's display name in whichever store holds it
func (s *AllotmentService) RenamePAN(ctx context.Context, pan, name string) error {
	pan = NormalizePAN(pan)
	name = strings.TrimSpace(name)
	if s.registry.HasCloud(pan) {
		return s.registry.UpdateCloud(ctx, models.PANEntry{PANNumber: pan, Name: name})
	}
	return s.registry.RenameLocal(ctx, pan, name)
}

// Close stops every session
func (s *AllotmentService) Close() {
	for _, session := range s.Sessions() {
		session.Close()
	}
}
