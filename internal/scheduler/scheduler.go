// Package scheduler runs the background jobs of the price service: the cache
// sweep and the optional catalog price refresh.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/guarzo/pkmprices/internal/catalog"
	"github.com/guarzo/pkmprices/internal/model"
	"github.com/guarzo/pkmprices/internal/pricing"
)

// DefaultSweepInterval matches the hourly sweep of the cache.
const DefaultSweepInterval = time.Hour

// Pricer is the part of the pricing service the jobs use.
type Pricer interface {
	BatchResolve(ctx context.Context, items []pricing.BatchItem, mode pricing.Mode) []pricing.BatchResult
	ClearExpiredCache() int
}

// Progress receives refresh progress; *progress.Indicator satisfies it.
type Progress interface {
	Add(n, failed int)
}

// Config controls job timing.
type Config struct {
	SweepInterval time.Duration `yaml:"sweep_interval"`
	// RefreshCron is a six-field cron spec (with seconds). Empty disables the refresh job.
	RefreshCron string `yaml:"refresh_cron"`
	PageSize    int    `yaml:"page_size"`
}

// RefreshReport summarizes one refresh run.
type RefreshReport struct {
	RunID  string
	Cards  int
	Saved  int
	Failed int
}

// ErrRefreshRunning is returned when a refresh is requested while one is in flight.
var ErrRefreshRunning = errors.New("refresh already running")

// Scheduler owns the cron instance and its jobs.
type Scheduler struct {
	cron   *cron.Cron
	cfg    Config
	pricer Pricer
	store  catalog.Store

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	refreshing bool
	progress   Progress
}

// New creates a scheduler. store may be nil, which disables the refresh job.
func New(ctx context.Context, cfg Config, pricer Pricer, store catalog.Store) *Scheduler {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	jobCtx, cancel := context.WithCancel(ctx)
	return &Scheduler{
		cron:   cron.New(cron.WithSeconds()),
		cfg:    cfg,
		pricer: pricer,
		store:  store,
		ctx:    jobCtx,
		cancel: cancel,
	}
}

// WithProgress reports refresh progress to p.
func (s *Scheduler) WithProgress(p Progress) *Scheduler {
	s.progress = p
	return s
}

// RegisterAll adds the sweep job and, when configured, the refresh job.
func (s *Scheduler) RegisterAll() error {
	sweepSpec := fmt.Sprintf("@every %s", s.cfg.SweepInterval)
	if _, err := s.cron.AddFunc(sweepSpec, func() { s.RunSweepNow() }); err != nil {
		return fmt.Errorf("register sweep job: %w", err)
	}

	if s.cfg.RefreshCron == "" {
		return nil
	}
	if s.store == nil {
		log.Println("Scheduler: refresh_cron set but no catalog store configured, refresh disabled")
		return nil
	}
	if _, err := s.cron.AddFunc(s.cfg.RefreshCron, s.refreshJob); err != nil {
		return fmt.Errorf("register refresh job: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	log.Printf("Scheduler: started (sweep every %s, refresh %q)", s.cfg.SweepInterval, s.cfg.RefreshCron)
}

// Stop cancels running jobs and waits for them until ctx ends.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()
	done := s.cron.Stop()
	select {
	case <-done.Done():
		log.Println("Scheduler: stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}

// RunSweepNow removes expired cache entries immediately.
func (s *Scheduler) RunSweepNow() int {
	return s.pricer.ClearExpiredCache()
}

func (s *Scheduler) refreshJob() {
	if _, err := s.RunRefreshNow(s.ctx); err != nil && !errors.Is(err, ErrRefreshRunning) {
		log.Printf("Scheduler: refresh failed: %v", err)
	}
}

// RunRefreshNow pages through the catalog, resolves every card and writes the
// quotes back. Cards that fail to resolve or save are counted and skipped.
func (s *Scheduler) RunRefreshNow(ctx context.Context) (RefreshReport, error) {
	if s.store == nil {
		return RefreshReport{}, errors.New("no catalog store configured")
	}
	s.mu.Lock()
	if s.refreshing {
		s.mu.Unlock()
		return RefreshReport{}, ErrRefreshRunning
	}
	s.refreshing = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.refreshing = false
		s.mu.Unlock()
	}()

	report := RefreshReport{RunID: uuid.NewString()}
	start := time.Now()
	log.Printf("Scheduler: refresh %s started", report.RunID)

	for offset := 0; ; offset += s.cfg.PageSize {
		cards, err := s.store.ListCards(ctx, s.cfg.PageSize, offset)
		if err != nil {
			return report, fmt.Errorf("refresh %s: list cards at %d: %w", report.RunID, offset, err)
		}
		if len(cards) == 0 {
			break
		}

		saved, failed := s.refreshPage(ctx, report.RunID, cards)
		report.Cards += len(cards)
		report.Saved += saved
		report.Failed += failed
		if s.progress != nil {
			s.progress.Add(len(cards), failed)
		}

		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("refresh %s: %w", report.RunID, err)
		}
		if len(cards) < s.cfg.PageSize {
			break
		}
	}

	log.Printf("Scheduler: refresh %s finished: %d cards, %d saved, %d failed in %s",
		report.RunID, report.Cards, report.Saved, report.Failed, time.Since(start).Round(time.Millisecond))
	return report, nil
}

func (s *Scheduler) refreshPage(ctx context.Context, runID string, cards []model.Card) (saved, failed int) {
	items := make([]pricing.BatchItem, len(cards))
	for i, c := range cards {
		items[i] = pricing.BatchItem{Name: c.Name, SetName: c.SetName, UpstreamID: c.UpstreamID}
	}

	results := s.pricer.BatchResolve(ctx, items, pricing.ModeAll)
	for i, res := range results {
		card := cards[i]
		if res.Err != nil {
			log.Printf("Scheduler: refresh %s: card %d (%s): %v", runID, card.ID, card.Key(), res.Err)
			failed++
			continue
		}
		if err := s.store.SavePrices(ctx, card.ID, res.Quotes); err != nil {
			log.Printf("Scheduler: refresh %s: save card %d: %v", runID, card.ID, err)
			failed++
			continue
		}
		saved++
	}
	return saved, failed
}
