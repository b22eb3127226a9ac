package services

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Wikid82/sentinel/internal/logger"
	"github.com/Wikid82/sentinel/internal/models"
	"github.com/Wikid82/sentinel/internal/sentinel"
	"github.com/Wikid82/sentinel/internal/store"
)

// DefaultUpdateInterval applies when the configured interval is not positive.
const DefaultUpdateInterval = 1800 * time.Second

// IntelSyncJob periodically refreshes the intel source. A run only happens
// when an API key and base are configured and either an operator asked for a
// resync or the update interval has elapsed with auto update on.
type IntelSyncJob struct {
	Cron *cron.Cron

	config  *store.ConfigStore
	state   *store.StateStore
	intel   sentinel.IntelSource
	now     func() time.Time
	running atomic.Bool
}

// NewIntelSyncJob returns a job that has not been scheduled yet.
func NewIntelSyncJob(config *store.ConfigStore, state *store.StateStore, intel sentinel.IntelSource) *IntelSyncJob {
	if intel == nil {
		intel = sentinel.NoopIntel{}
	}
	return &IntelSyncJob{
		Cron:   cron.New(),
		config: config,
		state:  state,
		intel:  intel,
		now:    time.Now,
	}
}

// Start schedules the job and starts the scheduler.
func (j *IntelSyncJob) Start(schedule string) error {
	if strings.TrimSpace(schedule) == "" {
		schedule = "@every 1m"
	}
	if _, err := j.Cron.AddFunc(schedule, func() {
		if _, err := j.RunOnce(context.Background()); err != nil {
			logger.Log().WithError(err).Warn("sentinel: intel sync failed")
		}
	}); err != nil {
		return fmt.Errorf("schedule intel sync %q: %w", schedule, err)
	}
	j.Cron.Start()
	return nil
}

// Stop stops the scheduler and waits for a running job.
func (j *IntelSyncJob) Stop() {
	<-j.Cron.Stop().Done()
}

// RunOnce refreshes the intel source if a sync is due. It reports whether a
// refresh happened. Overlapping calls return immediately.
func (j *IntelSyncJob) RunOnce(ctx context.Context) (bool, error) {
	if !j.running.CompareAndSwap(false, true) {
		return false, nil
	}
	defer j.running.Store(false)

	cfg := j.config.Current()
	if strings.TrimSpace(cfg.APIKey) == "" || strings.TrimSpace(cfg.APIBase) == "" {
		return false, nil
	}
	now := j.now().UTC()
	if !syncDue(cfg, j.state.Current(), now) {
		return false, nil
	}

	if err := j.intel.Refresh(ctx); err != nil {
		return false, fmt.Errorf("refresh intel: %w", err)
	}

	stamp := now.Truncate(time.Second)
	if _, err := j.state.Update(func(st *models.LocalState) error {
		st.LastSync = &stamp
		return nil
	}); err != nil {
		return true, fmt.Errorf("record sync time: %w", err)
	}
	logger.Log().WithField("last_sync", stamp.Format(time.RFC3339)).Info("sentinel: intel refreshed")
	return true, nil
}

func syncDue(cfg *models.SentinelConfig, st *models.LocalState, now time.Time) bool {
	if st.LastManualResync != nil && (st.LastSync == nil || st.LastManualResync.After(*st.LastSync)) {
		return true
	}
	if !cfg.AutoUpdate {
		return false
	}
	if st.LastSync == nil {
		return true
	}
	interval := time.Duration(cfg.UpdateInterval) * time.Second
	if interval <= 0 {
		interval = DefaultUpdateInterval
	}
	return now.Sub(*st.LastSync) >= interval
}
