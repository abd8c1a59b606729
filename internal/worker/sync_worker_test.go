package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ACBRI/veritas.ia/internal/geo"
	"github.com/ACBRI/veritas.ia/internal/model"
)

type fakeStore struct {
	mu          sync.Mutex
	refreshErrs []error
	refreshes   int
	fetches     int
	fetchErr    error
	pruned      []time.Duration
}

func (f *fakeStore) FetchForBounds(ctx context.Context, bounds geo.BoundsInput, filter *model.OffenseType) ([]model.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	return nil, f.fetchErr
}

func (f *fakeStore) Refresh(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	if len(f.refreshErrs) == 0 {
		return nil
	}
	err := f.refreshErrs[0]
	f.refreshErrs = f.refreshErrs[1:]
	return err
}

func (f *fakeStore) Prune(maxAge time.Duration) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pruned = append(f.pruned, maxAge)
	return 0
}

func (f *fakeStore) refreshCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshes
}

func newTestWorker(store Store, interval time.Duration) *SyncWorker {
	w := NewSyncWorker(store, interval, 30*24*time.Hour)
	w.retryDelay = time.Millisecond
	return w
}

func TestRunRefreshRetriesTransportErrors(t *testing.T) {
	transient := &model.TransportError{Err: errors.New("connection refused")}
	store := &fakeStore{refreshErrs: []error{transient, transient}}
	w := newTestWorker(store, time.Minute)

	if err := w.RunRefresh(context.Background()); err != nil {
		t.Fatalf("expected third attempt to succeed, got %v", err)
	}
	if store.refreshes != 3 {
		t.Fatalf("expected 3 attempts, got %d", store.refreshes)
	}
}

func TestRunRefreshGivesUpAfterThreeAttempts(t *testing.T) {
	transient := &model.TransportError{StatusCode: 503, Err: errors.New("unavailable")}
	store := &fakeStore{refreshErrs: []error{transient, transient, transient, transient}}
	w := newTestWorker(store, time.Minute)

	err := w.RunRefresh(context.Background())
	if !errors.Is(err, model.ErrTransport) {
		t.Fatalf("expected last transport error, got %v", err)
	}
	if store.refreshes != 3 {
		t.Fatalf("expected 3 attempts, got %d", store.refreshes)
	}
}

func TestWarmUpDoesNotRetryValidationErrors(t *testing.T) {
	store := &fakeStore{fetchErr: model.ErrInvalidCoordinates}
	w := newTestWorker(store, time.Minute)

	err := w.WarmUp(context.Background(), geo.BoundsArray{0, 0, 1, 1}, nil)
	if !errors.Is(err, model.ErrInvalidCoordinates) {
		t.Fatalf("expected invalid coordinates, got %v", err)
	}
	if store.fetches != 1 {
		t.Fatalf("validation errors must not be retried, got %d attempts", store.fetches)
	}
}

func TestScheduledRefreshRunsAndStops(t *testing.T) {
	store := &fakeStore{}
	w := newTestWorker(store, time.Second)
	if err := w.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for store.refreshCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("scheduled refresh never ran")
		}
		time.Sleep(50 * time.Millisecond)
	}

	w.Stop()
	after := store.refreshCount()
	time.Sleep(1500 * time.Millisecond)
	if store.refreshCount() != after {
		t.Fatalf("refresh ran after stop")
	}
}

func TestPruneJobUsesRetention(t *testing.T) {
	store := &fakeStore{}
	w := newTestWorker(store, time.Minute)
	w.pruneJob()
	if len(store.pruned) != 1 || store.pruned[0] != 30*24*time.Hour {
		t.Fatalf("unexpected prune calls %v", store.pruned)
	}
}

func TestZeroIntervalsScheduleNothing(t *testing.T) {
	w := NewSyncWorker(&fakeStore{}, 0, 0)
	if err := w.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer w.Stop()

	if n := len(w.cron.Entries()); n != 0 {
		t.Fatalf("expected no scheduled jobs, got %d", n)
	}
}
