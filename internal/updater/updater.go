package updater

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/LimaLegalLab/jurisprudencia/backend/internal/fetcher"
	"github.com/LimaLegalLab/jurisprudencia/backend/internal/rulings"
	"github.com/LimaLegalLab/jurisprudencia/backend/internal/similarity"
	"go.uber.org/zap"
)

var (
	errMissingFetcher = errors.New("fetch engine is required")
	errMissingStore   = errors.New("rulings service is required")
	// ErrUpdateInProgress rejects a trigger that overlaps a running ingestion.
	ErrUpdateInProgress = errors.New("updater: ingestion already in progress")
	noOpLogger          = zap.NewNop()
)

// UpdateError carries an operation-coded failure from an ingestion cycle.
type UpdateError struct {
	code string
	err  error
}

func (e *UpdateError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *UpdateError) Unwrap() error {
	return e.err
}

func (e *UpdateError) Code() string {
	return e.code
}

const (
	opUpdaterNew = "updater.new"
	opCycle      = "updater.cycle"
)

func newUpdateError(operation, reason string, cause error) error {
	return &UpdateError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

// Config describes the dependencies and limits of the ingestion cycles.
type Config struct {
	Fetcher        *fetcher.Fetcher
	Store          *rulings.Service
	Index          *similarity.Index
	Interval       time.Duration
	MaxPagesAuto   int
	MaxPagesManual int
	Clock          func() time.Time
	Logger         *zap.Logger
}

// Updater drives the periodic background ingestion cycle and serializes it
// with manual triggers behind one ingestion lock.
type Updater struct {
	fetcher        *fetcher.Fetcher
	store          *rulings.Service
	index          *similarity.Index
	interval       time.Duration
	maxPagesAuto   int
	maxPagesManual int
	clock          func() time.Time
	logger         *zap.Logger

	ingestionMu sync.Mutex
	running     atomic.Bool
	lastUpdate  atomic.Int64
}

// NewUpdater constructs the ingestion coordinator.
func NewUpdater(cfg Config) (*Updater, error) {
	if cfg.Fetcher == nil {
		return nil, newUpdateError(opUpdaterNew, "missing_fetcher", errMissingFetcher)
	}
	if cfg.Store == nil {
		return nil, newUpdateError(opUpdaterNew, "missing_store", errMissingStore)
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Updater{
		fetcher:        cfg.Fetcher,
		store:          cfg.Store,
		index:          cfg.Index,
		interval:       cfg.Interval,
		maxPagesAuto:   cfg.MaxPagesAuto,
		maxPagesManual: cfg.MaxPagesManual,
		clock:          clock,
		logger:         logger,
	}, nil
}

// Run drives the periodic background cycle until the context is cancelled.
// The in-flight cycle finishes before Run returns.
func (u *Updater) Run(ctx context.Context) {
	u.running.Store(true)
	defer u.running.Store(false)

	ticker := time.NewTicker(u.interval)
	defer ticker.Stop()

	u.logger.Info("background updater started", zap.Duration("interval", u.interval))
	for {
		select {
		case <-ctx.Done():
			u.logger.Info("background updater stopped")
			return
		case <-ticker.C:
			if _, err := u.runCycle(ctx, u.maxPagesAuto); err != nil && !errors.Is(err, ErrUpdateInProgress) {
				u.logger.Error("background update failed", zap.Error(err))
			}
		}
	}
}

// TriggerManual starts one on-demand ingestion cycle with the manual page
// budget. Overlapping a running cycle returns ErrUpdateInProgress.
func (u *Updater) TriggerManual(ctx context.Context) (int64, error) {
	return u.runCycle(ctx, u.maxPagesManual)
}

// Running reports whether the background loop is active.
func (u *Updater) Running() bool {
	return u.running.Load()
}

// LastUpdate returns the completion time of the most recent successful cycle,
// zero when no cycle has completed yet.
func (u *Updater) LastUpdate() time.Time {
	seconds := u.lastUpdate.Load()
	if seconds == 0 {
		return time.Time{}
	}
	return time.Unix(seconds, 0).UTC()
}

// runCycle fetches from the source (stopping at the newest stored publication
// date), saves the batch and invalidates the similarity index. Only one
// cycle runs at a time.
func (u *Updater) runCycle(ctx context.Context, maxPages int) (int64, error) {
	if !u.ingestionMu.TryLock() {
		return 0, ErrUpdateInProgress
	}
	defer u.ingestionMu.Unlock()

	stopDate, err := u.store.LatestPublicationDate(ctx)
	if err != nil {
		return 0, newUpdateError(opCycle, "stop_date_failed", err)
	}

	records, err := u.fetcher.Fetch(ctx, fetcher.Request{
		StartPage: 1,
		MaxPages:  maxPages,
		StopDate:  stopDate,
	})
	if err != nil {
		return 0, newUpdateError(opCycle, "fetch_failed", err)
	}
	if len(records) == 0 {
		u.logger.Info("ingestion cycle found no new records")
		return 0, nil
	}

	inserted, err := u.store.Save(ctx, records)
	if err != nil {
		return 0, newUpdateError(opCycle, "save_failed", err)
	}

	if u.index != nil {
		u.index.Invalidate()
	}
	u.lastUpdate.Store(u.clock().UTC().Unix())
	u.logger.Info("ingestion cycle completed",
		zap.Int("fetched", len(records)), zap.Int64("inserted", inserted))
	return inserted, nil
}
