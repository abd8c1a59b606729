package service

import (
	"context"
	"log"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ACBRI/veritas.ia/internal/geo"
	"github.com/ACBRI/veritas.ia/internal/model"

	"github.com/google/uuid"
)

const (
	SubmissionInterval    = 5 * time.Minute
	MaxAccuracyMeters     = 100.0
	DefaultNearbyRadiusKm = 5.0
)

// ReportTransport is the request/response side of the backend.
type ReportTransport interface {
	Create(ctx context.Context, draft model.ReportDraft) (model.Report, error)
	List(ctx context.Context, bounds geo.BoundsInput, filter *model.OffenseType, activeOnly bool) ([]model.Report, error)
	Confirm(ctx context.Context, id uuid.UUID) (model.ConfirmationAck, error)
}

type ChangeNotifier interface {
	Notify(ev model.ChangeEvent)
}

// ReportStore owns the authoritative report collection. Every mutation
// builds a new snapshot under mu and installs it whole, so readers never see
// a half-applied merge. Network calls happen outside mu.
type ReportStore struct {
	transport ReportTransport
	sessionID string

	mu             sync.RWMutex
	reports        map[uuid.UUID]model.Report
	lastSubmission time.Time
	lastBounds     *model.ViewBounds
	lastFilter     *model.OffenseType
	connected      bool
	notifier       ChangeNotifier
	now            func() time.Time

	// submitMu keeps two submissions from passing the throttle together.
	submitMu sync.Mutex
	loading  int32
}

func NewReportStore(transport ReportTransport, sessionID string) *ReportStore {
	return &ReportStore{
		transport: transport,
		sessionID: sessionID,
		reports:   make(map[uuid.UUID]model.Report),
		now:       time.Now,
	}
}

func (s *ReportStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

// SetNotifier installs the receiver of change announcements.
func (s *ReportStore) SetNotifier(n ChangeNotifier) {
	s.mu.Lock()
	s.notifier = n
	s.mu.Unlock()
}

// SetConnection records the push connection status.
func (s *ReportStore) SetConnection(connected bool) {
	s.mu.Lock()
	if s.connected == connected {
		s.mu.Unlock()
		return
	}
	s.connected = connected
	ev := model.ChangeEvent{Kind: model.ChangeConnection, Connected: &connected, At: s.now()}
	n := s.notifier
	s.mu.Unlock()

	if n != nil {
		n.Notify(ev)
	}
}

func (s *ReportStore) SessionID() string {
	return s.sessionID
}

func (s *ReportStore) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// Loading is true while at least one fetch is in flight.
func (s *ReportStore) Loading() bool {
	return atomic.LoadInt32(&s.loading) > 0
}

func (s *ReportStore) Get(id uuid.UUID) (model.Report, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reports[id]
	return r, ok
}

// Reports returns a copy of the collection, newest first.
func (s *ReportStore) Reports() []model.Report {
	snapshot := s.snapshot()
	out := make([]model.Report, 0, len(snapshot))
	for _, r := range snapshot {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

// FetchForBounds loads the reports inside bounds and merges them by id. A
// report already held keeps its local confirmation flag.
func (s *ReportStore) FetchForBounds(ctx context.Context, bounds geo.BoundsInput, filter *model.OffenseType) ([]model.Report, error) {
	b, err := geo.NormalizeBounds(bounds)
	if err != nil {
		return nil, err
	}

	atomic.AddInt32(&s.loading, 1)
	defer atomic.AddInt32(&s.loading, -1)

	fetched, err := s.transport.List(ctx, geo.Explicit(b), filter, true)
	if err != nil {
		return nil, err
	}

	merged := make([]model.Report, 0, len(fetched))
	s.mutate(func(next map[uuid.UUID]model.Report, emit func(model.ChangeEvent)) {
		for _, r := range fetched {
			if existing, ok := next[r.ID]; ok {
				r.UserHasConfirmed = existing.UserHasConfirmed
			} else {
				r.UserHasConfirmed = false
			}
			next[r.ID] = r
			merged = append(merged, r)
			emit(upsertEvent(r))
		}

		s.lastBounds = &b
		if filter != nil {
			f := *filter
			s.lastFilter = &f
		} else {
			s.lastFilter = nil
		}
	})
	return merged, nil
}

// Refresh re-fetches the last requested window. It does nothing until a
// window has been fetched once.
func (s *ReportStore) Refresh(ctx context.Context) error {
	s.mu.RLock()
	bounds, filter := s.lastBounds, s.lastFilter
	s.mu.RUnlock()
	if bounds == nil {
		return nil
	}

	_, err := s.FetchForBounds(ctx, geo.Explicit(*bounds), filter)
	return err
}

// Submit sends a new report after the throttle and accuracy checks.
func (s *ReportStore) Submit(ctx context.Context, draft model.ReportDraft) (model.Report, error) {
	s.submitMu.Lock()
	defer s.submitMu.Unlock()

	s.mu.RLock()
	last, now := s.lastSubmission, s.now()
	s.mu.RUnlock()

	if !last.IsZero() {
		if elapsed := now.Sub(last); elapsed < SubmissionInterval {
			remaining := SubmissionInterval - elapsed
			return model.Report{}, &model.RateLimitedError{
				MinutesRemaining: int(math.Ceil(remaining.Minutes())),
			}
		}
	}

	if draft.Location.Accuracy > MaxAccuracyMeters {
		return model.Report{}, &model.LocationTooImpreciseError{AccuracyMeters: draft.Location.Accuracy}
	}

	created, err := s.transport.Create(ctx, draft)
	if err != nil {
		return model.Report{}, err
	}

	var stored model.Report
	s.mutate(func(next map[uuid.UUID]model.Report, emit func(model.ChangeEvent)) {
		s.lastSubmission = s.now()
		if existing, ok := next[created.ID]; ok {
			// The push feed delivered it first.
			stored = existing
			return
		}
		created.UserHasConfirmed = false
		next[created.ID] = created
		stored = created
		emit(upsertEvent(created))
	})

	log.Printf("store: submitted report %s", stored.ID)
	return stored, nil
}

// Confirm adds this session's confirmation optimistically and rolls it back
// if the backend call fails. Confirming twice is a no-op.
func (s *ReportStore) Confirm(ctx context.Context, id uuid.UUID) (model.Report, error) {
	var (
		current model.Report
		found   bool
		already bool
	)
	s.mutate(func(next map[uuid.UUID]model.Report, emit func(model.ChangeEvent)) {
		current, found = next[id]
		if !found {
			return
		}
		if current.UserHasConfirmed {
			already = true
			return
		}
		current.ConfirmationCount++
		current.UserHasConfirmed = true
		next[id] = current
		emit(upsertEvent(current))
	})
	if !found {
		return model.Report{}, &model.NotFoundError{ID: id}
	}
	if already {
		return current, nil
	}

	if _, err := s.transport.Confirm(ctx, id); err != nil {
		s.mutate(func(next map[uuid.UUID]model.Report, emit func(model.ChangeEvent)) {
			r, ok := next[id]
			if !ok {
				return
			}
			if r.ConfirmationCount > 0 {
				r.ConfirmationCount--
			}
			r.UserHasConfirmed = false
			next[id] = r
			emit(upsertEvent(r))
		})
		return model.Report{}, err
	}

	if r, ok := s.Get(id); ok {
		return r, nil
	}
	return current, nil
}

// ApplyPushEvent installs one live event. Applying the same event twice
// leaves the same state as applying it once.
func (s *ReportStore) ApplyPushEvent(ev model.PushEvent) {
	s.mutate(func(next map[uuid.UUID]model.Report, emit func(model.ChangeEvent)) {
		switch ev.Kind {
		case model.PushNewReport:
			if ev.Report == nil {
				return
			}
			if _, ok := next[ev.Report.ID]; ok {
				return
			}
			r := *ev.Report
			r.UserHasConfirmed = false
			next[r.ID] = r
			emit(upsertEvent(r))

		case model.PushConfirmationUpdate:
			r, ok := next[ev.ReportID]
			if !ok {
				return
			}
			count := ev.ConfirmationCount
			if count < 0 {
				count = 0
			}
			if r.ConfirmationCount == count {
				return
			}
			r.ConfirmationCount = count
			next[r.ID] = r
			emit(upsertEvent(r))

		case model.PushReportExpired:
			r, ok := next[ev.ReportID]
			if !ok || (!r.IsActive && r.IsExpired) {
				return
			}
			r.IsActive = false
			r.IsExpired = true
			next[r.ID] = r
			emit(upsertEvent(r))

		case model.PushReportDeleted:
			if _, ok := next[ev.ReportID]; !ok {
				return
			}
			delete(next, ev.ReportID)
			emit(model.ChangeEvent{Kind: model.ChangeRemove, ReportID: ev.ReportID})
		}
	})
}

// Nearby returns the reports within radiusKm of origin, closest first. A
// non-positive radius means DefaultNearbyRadiusKm.
func (s *ReportStore) Nearby(origin model.Location, radiusKm float64) []model.Report {
	if radiusKm <= 0 {
		radiusKm = DefaultNearbyRadiusKm
	}

	type hit struct {
		report model.Report
		dist   float64
	}
	var hits []hit
	for _, r := range s.snapshot() {
		if d := geo.DistanceKm(origin, r.Location); d <= radiusKm {
			hits = append(hits, hit{report: r, dist: d})
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].dist < hits[j].dist })

	out := make([]model.Report, len(hits))
	for i, h := range hits {
		out[i] = h.report
	}
	return out
}

// Prune drops reports created more than maxAge ago and returns how many
// were removed.
func (s *ReportStore) Prune(maxAge time.Duration) int {
	removed := 0
	s.mutate(func(next map[uuid.UUID]model.Report, emit func(model.ChangeEvent)) {
		cutoff := s.now().Add(-maxAge)
		for id, r := range next {
			if r.CreatedAt.Before(cutoff) {
				delete(next, id)
				removed++
				emit(model.ChangeEvent{Kind: model.ChangeRemove, ReportID: id})
			}
		}
	})
	return removed
}

func (s *ReportStore) snapshot() map[uuid.UUID]model.Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reports
}

// mutate runs fn against a copy of the collection under the write lock and
// installs the copy. Events collected through emit are delivered after the
// lock is released.
func (s *ReportStore) mutate(fn func(next map[uuid.UUID]model.Report, emit func(model.ChangeEvent))) {
	var events []model.ChangeEvent

	s.mu.Lock()
	next := make(map[uuid.UUID]model.Report, len(s.reports)+1)
	for id, r := range s.reports {
		next[id] = r
	}
	at := s.now()
	fn(next, func(ev model.ChangeEvent) {
		ev.At = at
		events = append(events, ev)
	})
	s.reports = next
	n := s.notifier
	s.mu.Unlock()

	if n == nil {
		return
	}
	for _, ev := range events {
		n.Notify(ev)
	}
}

func upsertEvent(r model.Report) model.ChangeEvent {
	return model.ChangeEvent{Kind: model.ChangeUpsert, ReportID: r.ID, Report: &r}
}
