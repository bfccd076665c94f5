package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/fenilmodi00/ipo-allotment-client/models"
	"github.com/fenilmodi00/ipo-allotment-client/shared"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// PANLoader returns the PAN set a reconciliation pass works on
type PANLoader func(ctx context.Context) ([]models.PANEntry, error)

// ReconcileSession owns the live allotment results of one IPO.
//
// Every Reconcile call starts a new generation and cancels the pass it replaces.
// Writes carry the generation they were started under and are dropped once a
// newer pass exists, so a superseded pass can never overwrite fresher state.
// Persisted writes carry a revision and older revisions are never written over
// newer ones.
type ReconcileSession struct {
	ipoName string
	cache   *AllotmentCacheStore
	poller  *PollingClient
	config  shared.ReconcileConfig

	mutex      sync.Mutex
	registrar  string
	generation uint64
	cancelPass context.CancelFunc
	running    bool
	state      models.SessionState
	results    []models.AllotmentResult
	lastErr    error
	revision   uint64

	subscribers    map[int]chan models.SessionSnapshot
	nextSubscriber int

	persistMutex      sync.Mutex
	persistedRevision uint64
}

// NewReconcileSession creates an idle session for an IPO
func NewReconcileSession(ipoName, registrar string, cache *AllotmentCacheStore, poller *PollingClient, config shared.ReconcileConfig) *ReconcileSession {
	return &ReconcileSession{
		ipoName:     ipoName,
		registrar:   registrar,
		cache:       cache,
		poller:      poller,
		config:      config,
		state:       models.SessionIdle,
		subscribers: make(map[int]chan models.SessionSnapshot),
	}
}

// IPOName returns the IPO identity of the session
func (s *ReconcileSession) IPOName() string {
	return s.ipoName
}

// SetRegistrar updates the registrar name used by subsequent checks
func (s *ReconcileSession) SetRegistrar(registrar string) {
	if registrar == "" {
		return
	}
	s.mutex.Lock()
	s.registrar = registrar
	s.mutex.Unlock()
}

// Reconcile runs a pass over a fixed PAN set
func (s *ReconcileSession) Reconcile(ctx context.Context, pans []models.PANEntry, forceRefresh bool) ([]models.AllotmentResult, error) {
	return s.ReconcileFrom(ctx, func(context.Context) ([]models.PANEntry, error) {
		return pans, nil
	}, forceRefresh)
}

// ReconcileFrom runs a pass over the PAN set returned by load.
//
// Without forceRefresh a cache holding a resolved answer for every PAN is
// returned as-is with no network calls. Otherwise every PAN is published
// immediately (reusing displayed or cached rows), then unresolved PANs (all
// PANs when forced) are checked one at a time in order, with PANPacing between
// checks. The final set is persisted. Per-PAN failures never abort the pass;
// a failing load or cache read does, leaving the published rows visible.
func (s *ReconcileSession) ReconcileFrom(ctx context.Context, load PANLoader, forceRefresh bool) ([]models.AllotmentResult, error) {
	passCtx, gen := s.beginPass(ctx)
	defer s.endPass(gen)

	logger := logrus.WithFields(logrus.Fields{
		"component":     "ReconcileSession",
		"ipo_name":      s.ipoName,
		"pass_id":       uuid.NewString(),
		"generation":    gen,
		"force_refresh": forceRefresh,
	})

	pans, err := load(passCtx)
	if err != nil {
		return nil, s.fail(gen, logger, fmt.Errorf("failed to load PANs: %w", err))
	}

	order, byPAN := indexPANs(pans)
	if len(order) == 0 {
		if !s.update(gen, func() {
			s.results = nil
			s.state = models.SessionNoPANs
			s.lastErr = nil
		}) {
			return nil, ErrSuperseded
		}
		logger.Info("No PANs to reconcile")
		return []models.AllotmentResult{}, nil
	}

	var cached []models.AllotmentResult
	if !forceRefresh {
		cached, err = s.cache.Load(passCtx, s.ipoName, byPAN)
		if err != nil {
			return nil, s.fail(gen, logger, err)
		}

		if cacheCovers(cached, len(order)) {
			if !s.update(gen, func() {
				s.results = cached
				s.state = models.SessionReady
				s.lastErr = nil
			}) {
				return nil, ErrSuperseded
			}
			logger.WithField("pan_count", len(order)).Info("Serving allotment results from cache")
			return copyResults(cached), nil
		}
	}

	var working []models.AllotmentResult
	if !s.update(gen, func() {
		working = buildWorkingSet(order, byPAN, s.results, cached)
		s.results = copyResults(working)
		s.state = models.SessionReconciling
		s.lastErr = nil
	}) {
		return nil, ErrSuperseded
	}

	s.mutex.Lock()
	registrar := RegistrarParam(s.registrar)
	s.mutex.Unlock()

	checked := 0
	for i, pan := range order {
		if working[i].Status.IsResolved() && !forceRefresh {
			continue
		}

		if checked > 0 {
			if err := shared.SleepContext(passCtx, s.config.PANPacing); err != nil {
				return nil, s.interrupted(gen, logger, err)
			}
		}
		checked++

		if !s.patch(gen, pan, func(result *models.AllotmentResult) {
			result.Status = models.StatusChecking
			result.Message = models.MessageChecking
		}) {
			return nil, ErrSuperseded
		}

		outcome, err := s.poller.CheckOne(passCtx, s.ipoName, registrar, pan, forceRefresh)
		if err != nil {
			return nil, s.interrupted(gen, logger, err)
		}

		working[i] = outcome.Apply(working[i])
		if !s.patch(gen, pan, func(result *models.AllotmentResult) {
			*result = outcome.Apply(*result)
		}) {
			return nil, ErrSuperseded
		}
	}

	var final []models.AllotmentResult
	var revision uint64
	if !s.update(gen, func() {
		s.state = models.SessionReady
		s.lastErr = nil
		final = copyResults(s.results)
		revision = s.revision
	}) {
		return nil, ErrSuperseded
	}

	s.persist(ctx, revision, final, logger)
	logger.WithFields(logrus.Fields{
		"pan_count": len(order),
		"checked":   checked,
	}).Info("Reconciliation pass completed")

	return final, nil
}

// RefreshPAN re-checks a single PAN outside the paced loop and merges the answer
// into the full result set, which is then persisted.
func (s *ReconcileSession) RefreshPAN(ctx context.Context, panNumber string) (models.AllotmentResult, error) {
	pan := NormalizePAN(panNumber)
	logger := logrus.WithFields(logrus.Fields{
		"component": "ReconcileSession",
		"ipo_name":  s.ipoName,
		"pan":       maskPAN(pan),
	})

	s.mutex.Lock()
	gen := s.generation
	index := s.indexOfLocked(pan)
	if index < 0 {
		s.mutex.Unlock()
		return models.AllotmentResult{}, panNotFound(pan)
	}
	previous := s.results[index]
	s.results[index].Status = models.StatusChecking
	s.results[index].Message = models.MessageChecking
	registrar := RegistrarParam(s.registrar)
	s.changedLocked()
	s.mutex.Unlock()

	outcome, err := s.poller.CheckOne(ctx, s.ipoName, registrar, pan, true)
	if err != nil {
		s.patch(gen, pan, func(result *models.AllotmentResult) {
			*result = previous
		})
		return models.AllotmentResult{}, err
	}

	var refreshed models.AllotmentResult
	var final []models.AllotmentResult
	var revision uint64
	found := true

	s.mutex.Lock()
	if gen != s.generation {
		s.mutex.Unlock()
		logger.Debug("Dropping spot refresh from superseded generation")
		return models.AllotmentResult{}, ErrSuperseded
	}
	if index = s.indexOfLocked(pan); index < 0 {
		found = false
	} else {
		s.results[index] = outcome.Apply(s.results[index])
		refreshed = s.results[index]
		final = copyResults(s.results)
		s.changedLocked()
		revision = s.revision
	}
	s.mutex.Unlock()

	if !found {
		return models.AllotmentResult{}, panNotFound(pan)
	}

	// A row still CHECKING after the retry ceiling is left for the next pass.
	if refreshed.Status.IsResolved() {
		s.persist(ctx, revision, final, logger)
	}
	logger.WithField("status", refreshed.Status).Info("Spot refresh completed")
	return refreshed, nil
}

// HasPAN reports whether the PAN is in the live result set
func (s *ReconcileSession) HasPAN(panNumber string) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.indexOfLocked(NormalizePAN(panNumber)) >= 0
}

// AddPAN appends a waiting row for a new PAN. Malformed PANs and PANs already in
// the live result set are rejected without touching the set.
func (s *ReconcileSession) AddPAN(entry models.PANEntry) (models.AllotmentResult, error) {
	pan, err := ValidatePAN(entry.PANNumber)
	if err != nil {
		return models.AllotmentResult{}, err
	}
	entry.PANNumber = pan

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.indexOfLocked(pan) >= 0 {
		return models.AllotmentResult{}, duplicatePAN(pan)
	}

	result := models.NewWaitingResult(entry, models.MessageTapToCheck)
	s.results = append(s.results, result)
	if s.state == models.SessionNoPANs || s.state == models.SessionIdle {
		s.state = models.SessionReady
	}
	s.changedLocked()
	return result, nil
}

// RemovePAN drops a PAN's row and persists the remaining set
func (s *ReconcileSession) RemovePAN(ctx context.Context, panNumber string) error {
	pan := NormalizePAN(panNumber)

	s.mutex.Lock()
	index := s.indexOfLocked(pan)
	if index < 0 {
		s.mutex.Unlock()
		return panNotFound(pan)
	}
	s.results = append(s.results[:index:index], s.results[index+1:]...)
	if len(s.results) == 0 {
		s.state = models.SessionNoPANs
	}
	s.changedLocked()
	final := copyResults(s.results)
	revision := s.revision
	s.mutex.Unlock()

	s.persist(ctx, revision, final, logrus.WithFields(logrus.Fields{
		"component": "ReconcileSession",
		"ipo_name":  s.ipoName,
	}))
	return nil
}

// Snapshot returns a copy of the session state
func (s *ReconcileSession) Snapshot() models.SessionSnapshot {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.snapshotLocked()
}

// View returns the filtered, sorted view of the live results with counts
func (s *ReconcileSession) View(query string, filter models.SourceFilter) ResultView {
	return BuildResultView(s.Snapshot(), query, filter)
}

// Running reports whether a pass is in flight
func (s *ReconcileSession) Running() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.running
}

// NeedsRecheck reports whether an idle session holds rows without an
// authoritative answer
func (s *ReconcileSession) NeedsRecheck() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.running {
		return false
	}
	for _, result := range s.results {
		if !result.Status.IsResolved() {
			return true
		}
	}
	return false
}

// Subscribe registers an observer. The current snapshot is delivered first.
// A slow observer misses intermediate snapshots but always receives the latest.
// The returned function unsubscribes and closes the channel.
func (s *ReconcileSession) Subscribe(buffer int) (<-chan models.SessionSnapshot, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan models.SessionSnapshot, buffer)

	s.mutex.Lock()
	id := s.nextSubscriber
	s.nextSubscriber++
	s.subscribers[id] = ch
	ch <- s.snapshotLocked()
	s.mutex.Unlock()

	// Whoever removes the entry under the lock closes the channel.
	return ch, func() {
		s.mutex.Lock()
		defer s.mutex.Unlock()
		if _, ok := s.subscribers[id]; ok {
			delete(s.subscribers, id)
			close(ch)
		}
	}
}

// Close cancels any pass in flight and closes every subscriber
func (s *ReconcileSession) Close() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.cancelPass != nil {
		s.cancelPass()
		s.cancelPass = nil
	}
	s.generation++
	for id, ch := range s.subscribers {
		delete(s.subscribers, id)
		close(ch)
	}
}

func (s *ReconcileSession) beginPass(ctx context.Context) (context.Context, uint64) {
	passCtx, cancel := context.WithCancel(ctx)

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.cancelPass != nil {
		s.cancelPass()
	}
	s.generation++
	s.cancelPass = cancel
	s.running = true
	return passCtx, s.generation
}

func (s *ReconcileSession) endPass(gen uint64) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if gen != s.generation {
		return
	}
	if s.cancelPass != nil {
		s.cancelPass()
		s.cancelPass = nil
	}
	s.running = false
}

// update applies fn and notifies observers when gen is still current
func (s *ReconcileSession) update(gen uint64, fn func()) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if gen != s.generation {
		return false
	}
	fn()
	s.changedLocked()
	return true
}

// patch edits one PAN's row when gen is still current. A PAN removed meanwhile
// is left alone.
func (s *ReconcileSession) patch(gen uint64, pan string, fn func(result *models.AllotmentResult)) bool {
	return s.update(gen, func() {
		if index := s.indexOfLocked(pan); index >= 0 {
			fn(&s.results[index])
		}
	})
}

// fail records a pass-level error. Published rows stay visible.
func (s *ReconcileSession) fail(gen uint64, logger *logrus.Entry, err error) error {
	if !s.update(gen, func() {
		s.state = models.SessionError
		s.lastErr = passFailure("prepare pass", err)
	}) {
		return ErrSuperseded
	}
	logger.WithError(err).Error("Reconciliation pass aborted")
	return err
}

// passFailure returns err as recorded on the session. Errors the classifier
// treats as permanent are wrapped as retryable, since starting a new pass is
// how any failed pass is retried.
func passFailure(operation string, err error) error {
	if shared.IsRetryableError(err) {
		return err
	}
	return shared.NewServiceError(shared.ErrorCategoryProcessing, "PASS_FAILED", err.Error(), "ReconcileSession", operation, true, err)
}

// interrupted handles a pass whose context ended mid-loop. Rows left in
// CHECKING are put back to WAITING.
func (s *ReconcileSession) interrupted(gen uint64, logger *logrus.Entry, err error) error {
	if !s.update(gen, func() {
		for i := range s.results {
			if s.results[i].Status == models.StatusChecking {
				s.results[i].Status = models.StatusWaiting
				s.results[i].Message = models.MessageWaiting
			}
		}
		s.state = models.SessionError
		s.lastErr = passFailure("check PANs", err)
	}) {
		logger.Debug("Superseded pass stopped")
		return ErrSuperseded
	}
	logger.WithError(err).Warn("Reconciliation pass interrupted")
	return err
}

func (s *ReconcileSession) persist(ctx context.Context, revision uint64, results []models.AllotmentResult, logger *logrus.Entry) {
	s.persistMutex.Lock()
	defer s.persistMutex.Unlock()

	if revision < s.persistedRevision {
		logger.WithField("revision", revision).Debug("Skipping persist of outdated result set")
		return
	}
	if err := s.cache.Save(context.WithoutCancel(ctx), s.ipoName, results); err != nil {
		logger.WithError(err).Warn("Failed to persist allotment results")
		return
	}
	s.persistedRevision = revision
}

func (s *ReconcileSession) changedLocked() {
	s.revision++
	snapshot := s.snapshotLocked()
	for _, ch := range s.subscribers {
		select {
		case ch <- snapshot:
		default:
			// Drop the oldest queued snapshot so the latest one fits.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snapshot:
			default:
			}
		}
	}
}

func (s *ReconcileSession) snapshotLocked() models.SessionSnapshot {
	snapshot := models.SessionSnapshot{
		IPOName:    s.ipoName,
		Generation: s.generation,
		State:      s.state,
		Results:    copyResults(s.results),
	}
	if s.lastErr != nil {
		snapshot.Error = s.lastErr.Error()
		snapshot.Retryable = shared.IsRetryableError(s.lastErr)
	}
	return snapshot
}

func (s *ReconcileSession) indexOfLocked(pan string) int {
	for i := range s.results {
		if s.results[i].PANNumber == pan {
			return i
		}
	}
	return -1
}

// indexPANs normalizes and de-duplicates PANs, keeping first-seen order and
// preferring the CLOUD copy of a PAN present twice
func indexPANs(pans []models.PANEntry) ([]string, map[string]models.PANEntry) {
	order := make([]string, 0, len(pans))
	byPAN := make(map[string]models.PANEntry, len(pans))

	for _, entry := range pans {
		entry.PANNumber = NormalizePAN(entry.PANNumber)
		if entry.PANNumber == "" {
			continue
		}
		existing, exists := byPAN[entry.PANNumber]
		if !exists {
			order = append(order, entry.PANNumber)
		} else if existing.Source == models.PANSourceCloud && entry.Source != models.PANSourceCloud {
			continue
		}
		byPAN[entry.PANNumber] = entry
	}
	return order, byPAN
}

// cacheCovers reports whether cached holds a resolved answer for each of total PANs.
// cached is already filtered and de-duplicated against the PAN set.
func cacheCovers(cached []models.AllotmentResult, total int) bool {
	if len(cached) != total {
		return false
	}
	for _, result := range cached {
		if !result.Status.IsResolved() {
			return false
		}
	}
	return true
}

// buildWorkingSet creates one row per PAN in order, reusing displayed rows first,
// then cached rows. Reused rows stuck in CHECKING are demoted to WAITING.
func buildWorkingSet(order []string, byPAN map[string]models.PANEntry, displayed, cached []models.AllotmentResult) []models.AllotmentResult {
	previous := make(map[string]models.AllotmentResult, len(displayed)+len(cached))
	for _, result := range cached {
		previous[result.PANNumber] = result
	}
	for _, result := range displayed {
		previous[result.PANNumber] = result
	}

	working := make([]models.AllotmentResult, 0, len(order))
	for _, pan := range order {
		entry := byPAN[pan]
		result, ok := previous[pan]
		if !ok {
			working = append(working, models.NewWaitingResult(entry, models.MessageTapToCheck))
			continue
		}

		result.Name = entry.DisplayName()
		result.Source = entry.Source
		if result.Status == models.StatusChecking {
			result.Status = models.StatusWaiting
			result.Message = models.MessageWaiting
		}
		working = append(working, result)
	}
	return working
}

func copyResults(results []models.AllotmentResult) []models.AllotmentResult {
	if results == nil {
		return nil
	}
	copied := make([]models.AllotmentResult, len(results))
	copy(copied, results)
	return copied
}

func panNotFound(pan string) error {
	return shared.NewValidationError(ErrPANNotFound.Code, fmt.Sprintf("PAN %s is not in this result list", pan))
}

func duplicatePAN(pan string) error {
	return shared.NewValidationError(ErrDuplicatePAN.Code, fmt.Sprintf("PAN %s has already been added", pan))
}
