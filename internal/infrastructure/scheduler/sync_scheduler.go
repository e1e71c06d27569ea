package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/carelink/backend/internal/domain/integration"
	"github.com/carelink/backend/internal/domain/partner"
	"github.com/carelink/backend/internal/domain/shared"
)

// CycleExecutor runs one sync cycle for one partner: pull, transform and
// apply, push, or both, per the partner's sync configuration. It returns
// the cursor the next cycle should resume from.
type CycleExecutor interface {
	Execute(ctx context.Context, p *partner.Partner, state *integration.SyncState) (*integration.CycleResult, error)
}

// Config holds sync scheduler tuning
type Config struct {
	// Enabled turns scheduled sync on or off globally
	Enabled bool
	// CycleTimeout bounds one sync cycle
	CycleTimeout time.Duration
	// RefreshPeriod is how often partner sync configurations are reloaded
	RefreshPeriod time.Duration
}

// DefaultConfig returns sensible scheduler defaults
func DefaultConfig() Config {
	return Config{
		Enabled:       true,
		CycleTimeout:  5 * time.Minute,
		RefreshPeriod: time.Minute,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.CycleTimeout <= 0 {
		return errors.New("scheduler cycle timeout must be positive")
	}
	if c.RefreshPeriod <= 0 {
		return errors.New("scheduler refresh period must be positive")
	}
	return nil
}

// partnerJob is one partner's active sync timer
type partnerJob struct {
	frequency time.Duration
	stop      chan struct{}
}

// SyncScheduler drives periodic synchronization, one timer per partner
// whose configuration requires it. At most one cycle runs per partner at
// a time; an overlapping tick is skipped and logged. Realtime-scoped
// partners register no timer, their exchange happens through webhooks.
type SyncScheduler struct {
	config   Config
	partners partner.Reader
	states   integration.SyncStateRepository
	executor CycleExecutor
	logger   *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool

	jobsMu sync.Mutex
	jobs   map[uuid.UUID]*partnerJob

	activeMu sync.Mutex
	active   map[uuid.UUID]struct{}
}

// NewSyncScheduler creates a sync scheduler
func NewSyncScheduler(config Config, partners partner.Reader, states integration.SyncStateRepository, executor CycleExecutor, logger *zap.Logger) (*SyncScheduler, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &SyncScheduler{
		config:   config,
		partners: partners,
		states:   states,
		executor: executor,
		logger:   logger,
		jobs:     make(map[uuid.UUID]*partnerJob),
		active:   make(map[uuid.UUID]struct{}),
	}, nil
}

// Start loads the current partner set and begins ticking. The partner set
// is reloaded every RefreshPeriod so registry changes apply without a
// restart.
func (s *SyncScheduler) Start(ctx context.Context) error {
	if !s.config.Enabled {
		s.logger.Info("sync scheduler disabled")
		return nil
	}

	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	if err := s.refresh(ctx); err != nil {
		s.logger.Error("initial partner load failed", zap.Error(err))
	}

	s.wg.Add(1)
	go s.refreshLoop(ctx)

	s.logger.Info("sync scheduler started",
		zap.Duration("cycle_timeout", s.config.CycleTimeout),
		zap.Duration("refresh_period", s.config.RefreshPeriod),
	)
	return nil
}

// Stop stops all timers and waits for running cycles until ctx expires
func (s *SyncScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	s.jobsMu.Lock()
	for id, job := range s.jobs {
		close(job.stop)
		delete(s.jobs, id)
	}
	s.jobsMu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("sync scheduler stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("sync scheduler stop timed out")
		return ctx.Err()
	}
}

// TriggerSync runs a cycle for one partner outside its schedule. It
// returns ErrCycleInProgress when a cycle for that partner is already
// running.
func (s *SyncScheduler) TriggerSync(ctx context.Context, partnerID uuid.UUID) (*integration.CycleResult, error) {
	p, err := s.partners.FindByID(ctx, partnerID)
	if err != nil {
		return nil, err
	}
	if p.SyncConfig == nil {
		return nil, ErrPartnerNotScheduled
	}
	return s.runCycle(ctx, p)
}

func (s *SyncScheduler) refreshLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.RefreshPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.refresh(ctx); err != nil {
				s.logger.Error("partner refresh failed", zap.Error(err))
			}
		}
	}
}

// refresh reconciles active timers against the partners that currently
// require sync.
func (s *SyncScheduler) refresh(ctx context.Context) error {
	partners, err := s.partners.FindRequiringSync(ctx)
	if err != nil {
		return err
	}

	wanted := make(map[uuid.UUID]time.Duration, len(partners))
	byID := make(map[uuid.UUID]partner.Partner, len(partners))
	for _, p := range partners {
		cfg := p.SyncConfig
		if cfg == nil || cfg.Scope == partner.SyncScopeRealtime {
			continue
		}
		wanted[p.ID] = cfg.Frequency
		byID[p.ID] = p
	}

	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()

	for id, job := range s.jobs {
		freq, keep := wanted[id]
		if keep && freq == job.frequency {
			delete(wanted, id)
			continue
		}
		close(job.stop)
		delete(s.jobs, id)
	}

	for id, freq := range wanted {
		job := &partnerJob{frequency: freq, stop: make(chan struct{})}
		s.jobs[id] = job
		s.wg.Add(1)
		go s.tickLoop(ctx, id, job)
		s.logger.Info("sync timer registered",
			zap.String("partner_id", id.String()),
			zap.Duration("frequency", freq),
		)
	}
	return nil
}

func (s *SyncScheduler) tickLoop(ctx context.Context, partnerID uuid.UUID, job *partnerJob) {
	defer s.wg.Done()

	ticker := time.NewTicker(job.frequency)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-job.stop:
			return
		case <-ticker.C:
			p, err := s.partners.FindByID(ctx, partnerID)
			if err != nil {
				s.logger.Error("partner lookup failed on tick",
					zap.String("partner_id", partnerID.String()),
					zap.Error(err),
				)
				continue
			}
			if !p.RequiresSync() {
				continue
			}
			if _, err := s.runCycle(ctx, p); err != nil && !errors.Is(err, ErrCycleInProgress) {
				s.logger.Error("scheduled sync cycle failed",
					zap.String("partner_id", partnerID.String()),
					zap.Error(err),
				)
			}
		}
	}
}

// runCycle executes one cycle under the per-partner exclusivity guard
func (s *SyncScheduler) runCycle(ctx context.Context, p *partner.Partner) (*integration.CycleResult, error) {
	s.activeMu.Lock()
	if _, busy := s.active[p.ID]; busy {
		s.activeMu.Unlock()
		s.logger.Info("sync cycle skipped, previous cycle still running",
			zap.String("partner_id", p.ID.String()),
		)
		return nil, ErrCycleInProgress
	}
	s.active[p.ID] = struct{}{}
	s.activeMu.Unlock()

	defer func() {
		s.activeMu.Lock()
		delete(s.active, p.ID)
		s.activeMu.Unlock()
	}()

	state, err := s.loadState(ctx, p.ID)
	if err != nil {
		return nil, err
	}

	state.MarkRunning()
	if err := s.states.Save(ctx, state); err != nil {
		return nil, err
	}

	cycleCtx, cancel := context.WithTimeout(ctx, s.config.CycleTimeout)
	defer cancel()

	started := time.Now()
	result, execErr := s.executor.Execute(cycleCtx, p, state)
	if execErr != nil {
		state.FailCycle(execErr.Error())
		if saveErr := s.states.Save(ctx, state); saveErr != nil {
			s.logger.Error("failed to persist sync state",
				zap.String("partner_id", p.ID.String()),
				zap.Error(saveErr),
			)
		}
		return nil, execErr
	}

	state.CompleteCycle(result.NextCursor)
	if err := s.states.Save(ctx, state); err != nil {
		return nil, err
	}

	s.logger.Info("sync cycle completed",
		zap.String("partner_id", p.ID.String()),
		zap.Duration("elapsed", time.Since(started)),
		zap.Int("pulled", result.PulledRecords),
		zap.Int("pushed", result.PushedRecords),
		zap.Int("applied", result.AppliedRecords),
		zap.Int("failed_records", len(result.Failures)),
		zap.String("cursor", state.LastCursor),
	)
	return result, nil
}

func (s *SyncScheduler) loadState(ctx context.Context, partnerID uuid.UUID) (*integration.SyncState, error) {
	state, err := s.states.FindByPartner(ctx, partnerID)
	if err == nil {
		return state, nil
	}
	if errors.Is(err, shared.ErrNotFound) {
		return integration.NewSyncState(partnerID), nil
	}
	return nil, err
}
