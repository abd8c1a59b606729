package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/ACBRI/veritas.ia/internal/geo"
	"github.com/ACBRI/veritas.ia/internal/model"

	"github.com/avast/retry-go"
	"github.com/robfig/cron/v3"
)

const (
	maxRetryAttempts = 3
	initialDelay     = 1 * time.Second
	maxDelay         = 30 * time.Second
	refreshTimeout   = 30 * time.Second

	pruneSchedule = "@every 24h"
)

type Store interface {
	FetchForBounds(ctx context.Context, bounds geo.BoundsInput, filter *model.OffenseType) ([]model.Report, error)
	Refresh(ctx context.Context) error
	Prune(maxAge time.Duration) int
}

// SyncWorker keeps the store close to the backend between push events: it
// re-fetches the current window periodically and drops old reports.
type SyncWorker struct {
	store           Store
	refreshInterval time.Duration
	retention       time.Duration
	retryDelay      time.Duration

	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
}

func NewSyncWorker(store Store, refreshInterval, retention time.Duration) *SyncWorker {
	ctx, cancel := context.WithCancel(context.Background())
	return &SyncWorker{
		store:           store,
		refreshInterval: refreshInterval,
		retention:       retention,
		retryDelay:      initialDelay,
		cron:            cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger))),
		ctx:             ctx,
		cancel:          cancel,
	}
}

func (w *SyncWorker) Start() error {
	if w.refreshInterval > 0 {
		spec := fmt.Sprintf("@every %s", w.refreshInterval)
		if _, err := w.cron.AddFunc(spec, w.refreshJob); err != nil {
			return fmt.Errorf("schedule refresh: %w", err)
		}
	}
	if w.retention > 0 {
		if _, err := w.cron.AddFunc(pruneSchedule, w.pruneJob); err != nil {
			return fmt.Errorf("schedule prune: %w", err)
		}
	}

	w.cron.Start()
	log.Printf("sync: started (refresh every %v, retention %v)", w.refreshInterval, w.retention)
	return nil
}

func (w *SyncWorker) Stop() {
	w.cancel()
	<-w.cron.Stop().Done()
	log.Println("sync: stopped")
}

// WarmUp performs the first fetch for bounds with the refresh retry policy.
func (w *SyncWorker) WarmUp(ctx context.Context, bounds geo.BoundsInput, filter *model.OffenseType) error {
	return w.withRetry(ctx, "warm-up", func() error {
		_, err := w.store.FetchForBounds(ctx, bounds, filter)
		return err
	})
}

// RunRefresh re-fetches the current window, retrying transport failures.
func (w *SyncWorker) RunRefresh(ctx context.Context) error {
	return w.withRetry(ctx, "refresh", func() error {
		return w.store.Refresh(ctx)
	})
}

func (w *SyncWorker) refreshJob() {
	ctx, cancel := context.WithTimeout(w.ctx, refreshTimeout)
	defer cancel()

	if err := w.RunRefresh(ctx); err != nil && w.ctx.Err() == nil {
		log.Printf("sync: refresh failed: %v", err)
	}
}

func (w *SyncWorker) pruneJob() {
	if removed := w.store.Prune(w.retention); removed > 0 {
		log.Printf("sync: pruned %d old reports", removed)
	}
}

func (w *SyncWorker) withRetry(ctx context.Context, op string, fn func() error) error {
	return retry.Do(
		fn,
		retry.Context(ctx),
		retry.Attempts(maxRetryAttempts),
		retry.Delay(w.retryDelay),
		retry.MaxDelay(maxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(retryable),
		retry.OnRetry(func(n uint, err error) {
			log.Printf("sync: %s retry %d: %v", op, n+1, err)
		}),
	)
}

// Only transport failures are worth repeating; validation and malformed
// responses fail the same way every time.
func retryable(err error) bool {
	return errors.Is(err, model.ErrTransport)
}
