package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"funnelreport/internal/domain"
	"funnelreport/pkg/logger"
)

// Job is a periodic task run by JobRunner.
type Job interface {
	Name() string
	Run(ctx context.Context) error
	Interval() time.Duration
}

// JobRunner runs each registered job on its own ticker. A tick that arrives
// while the previous run of the same job is still going is skipped.
type JobRunner struct {
	jobs   []Job
	guard  *KeyedGuard
	logger *logger.Logger
	wg     sync.WaitGroup
}

func NewJobRunner(guard *KeyedGuard, logger *logger.Logger) *JobRunner {
	return &JobRunner{guard: guard, logger: logger}
}

func (r *JobRunner) Register(job Job) {
	r.jobs = append(r.jobs, job)
	r.logger.WithFields(map[string]any{
		"job":      job.Name(),
		"interval": job.Interval(),
	}).Info("Registered periodic job")
}

// Start launches the jobs and returns. They stop when ctx is cancelled; Wait
// blocks until they have.
func (r *JobRunner) Start(ctx context.Context) {
	for _, job := range r.jobs {
		r.wg.Go(func() {
			r.loop(ctx, job)
		})
	}
}

func (r *JobRunner) Wait() {
	r.wg.Wait()
}

func (r *JobRunner) loop(ctx context.Context, job Job) {
	// run once on startup
	r.execute(ctx, job)

	ticker := time.NewTicker(job.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.WithField("job", job.Name()).Info("Stopping periodic job")
			return
		case <-ticker.C:
			r.execute(ctx, job)
		}
	}
}

func (r *JobRunner) execute(ctx context.Context, job Job) {
	log := r.logger.WithContext(ctx).WithField("job", job.Name())

	release, ok := r.guard.TryAcquire("job:" + job.Name())
	if !ok {
		log.Warn("Previous run still in progress, skipping")
		return
	}
	defer release()

	start := time.Now()
	if err := job.Run(ctx); err != nil {
		log.WithError(err).WithField("duration", time.Since(start)).Error("Periodic job failed")
		return
	}
	log.WithField("duration", time.Since(start)).Info("Periodic job completed")
}

// WeeklySnapshotJob refreshes the trailing weeks of snapshots for every tenant.
type WeeklySnapshotJob struct {
	tenants       domain.TenantDirectory
	syncer        *SyncService
	logger        *logger.Logger
	interval      time.Duration
	lookbackWeeks int
	now           func() time.Time
}

func NewWeeklySnapshotJob(tenants domain.TenantDirectory, syncer *SyncService, logger *logger.Logger, interval time.Duration, lookbackWeeks int) *WeeklySnapshotJob {
	if lookbackWeeks <= 0 {
		lookbackWeeks = 1
	}
	return &WeeklySnapshotJob{
		tenants:       tenants,
		syncer:        syncer,
		logger:        logger,
		interval:      interval,
		lookbackWeeks: lookbackWeeks,
		now:           time.Now,
	}
}

func (j *WeeklySnapshotJob) Name() string            { return weeklySyncJob }
func (j *WeeklySnapshotJob) Interval() time.Duration { return j.interval }

// Run syncs every tenant. One tenant's failure does not stop the others.
func (j *WeeklySnapshotJob) Run(ctx context.Context) error {
	ids, err := j.tenants.ListTenants(ctx)
	if err != nil {
		return fmt.Errorf("failed to list tenants: %w", err)
	}

	end := domain.Day(j.now())
	start := domain.WeekStartOf(end).AddDate(0, 0, -7*(j.lookbackWeeks-1))

	var errs []error
	for _, id := range ids {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, err := j.syncer.SyncRange(ctx, id, start, end)
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrSyncInProgress):
			j.logger.WithTenant(ctx, id).Info("Sync already running, skipping tenant")
		case domain.IsNotFound(err):
			j.logger.WithTenant(ctx, id).Debug("Tenant has no ads credentials, skipping")
		default:
			j.logger.WithContext(ctx).WithError(err).WithField("tenant_id", id).Error("Tenant snapshot sync failed")
			errs = append(errs, fmt.Errorf("tenant %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// LeadSyncJob pulls CRM contacts for every tenant.
type LeadSyncJob struct {
	tenants  domain.TenantDirectory
	syncer   *LeadSyncService
	logger   *logger.Logger
	interval time.Duration
}

func NewLeadSyncJob(tenants domain.TenantDirectory, syncer *LeadSyncService, logger *logger.Logger, interval time.Duration) *LeadSyncJob {
	return &LeadSyncJob{tenants: tenants, syncer: syncer, logger: logger, interval: interval}
}

func (j *LeadSyncJob) Name() string            { return leadSyncJob }
func (j *LeadSyncJob) Interval() time.Duration { return j.interval }

func (j *LeadSyncJob) Run(ctx context.Context) error {
	ids, err := j.tenants.ListTenants(ctx)
	if err != nil {
		return fmt.Errorf("failed to list tenants: %w", err)
	}

	var errs []error
	for _, id := range ids {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, err := j.syncer.SyncTenant(ctx, id)
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrSyncInProgress):
			j.logger.WithTenant(ctx, id).Info("Lead sync already running, skipping tenant")
		case domain.IsNotFound(err):
			j.logger.WithTenant(ctx, id).Debug("Tenant has no CRM token, skipping")
		default:
			j.logger.WithContext(ctx).WithError(err).WithField("tenant_id", id).Error("Tenant lead sync failed")
			errs = append(errs, fmt.Errorf("tenant %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}
