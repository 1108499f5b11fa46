package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"funnelreport/internal/domain"
	"funnelreport/pkg/logger"
	"funnelreport/pkg/metrics"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

type SyncMode string

const (
	// SyncBlocking waits for the sync before returning.
	SyncBlocking SyncMode = "blocking"
	// SyncBackground detaches the sync from the caller and only logs its errors.
	SyncBackground SyncMode = "background"
)

func ParseSyncMode(s string) SyncMode {
	if SyncMode(s) == SyncBlocking {
		return SyncBlocking
	}
	return SyncBackground
}

const weeklySyncJob = "weekly_metrics"

// SyncResult summarizes one fetch-and-persist run.
type SyncResult struct {
	TenantID  string   `json:"tenant_id"`
	Weeks     []string `json:"weeks"`
	Snapshots int      `json:"snapshots"`
}

// SyncOptions tunes the sync service.
type SyncOptions struct {
	BatchSize         int
	StaleAfter        time.Duration
	BackgroundTimeout time.Duration
}

// SyncService keeps weekly snapshots fresh for the ranges reports ask for.
type SyncService struct {
	snapshots domain.SnapshotRepository
	tenants   domain.TenantDirectory
	ads       domain.AdsAPIClient
	creatives *CreativeCache
	guard     *KeyedGuard
	logger    *logger.Logger
	metrics   *metrics.Metrics
	opts      SyncOptions
	now       func() time.Time
}

func NewSyncService(
	snapshots domain.SnapshotRepository,
	tenants domain.TenantDirectory,
	ads domain.AdsAPIClient,
	creatives *CreativeCache,
	guard *KeyedGuard,
	logger *logger.Logger,
	metrics *metrics.Metrics,
	opts SyncOptions,
) *SyncService {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = 24 * time.Hour
	}
	if opts.BackgroundTimeout <= 0 {
		opts.BackgroundTimeout = 10 * time.Minute
	}
	return &SyncService{
		snapshots: snapshots,
		tenants:   tenants,
		ads:       ads,
		creatives: creatives,
		guard:     guard,
		logger:    logger,
		metrics:   metrics,
		opts:      opts,
		now:       time.Now,
	}
}

func snapshotGuardKey(tenantID string) string { return "snapshots:" + tenantID }

// CheckFreshness lists the weeks of [start, end] that have no snapshots and
// whether the current calendar week is missing or older than StaleAfter.
func (s *SyncService) CheckFreshness(ctx context.Context, tenantID string, start, end time.Time) (*domain.FreshnessReport, error) {
	existing, err := s.snapshots.GetByDateRange(ctx, tenantID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshots: %w", err)
	}

	have := make(map[string]bool, len(existing))
	for _, snap := range existing {
		have[snap.WeekStart.Format(domain.DateLayout)] = true
	}

	report := &domain.FreshnessReport{
		TenantID:      tenantID,
		ExpectedWeeks: []string{},
		MissingWeeks:  []string{},
	}
	for _, week := range domain.WeeksInRange(start, end) {
		report.ExpectedWeeks = append(report.ExpectedWeeks, week.StartString())
		if !have[week.StartString()] {
			report.MissingWeeks = append(report.MissingWeeks, week.StartString())
		}
	}

	current := domain.WeekOf(s.now())
	currentRows, err := s.snapshots.GetByDateRange(ctx, tenantID, current.Start, current.End)
	if err != nil {
		return nil, fmt.Errorf("failed to load current week snapshots: %w", err)
	}

	var latest time.Time
	for _, snap := range currentRows {
		if snap.WeekStart.Equal(current.Start) && snap.SavedAt.After(latest) {
			latest = snap.SavedAt
		}
	}
	report.CurrentWeekNeedsUpdate = latest.IsZero() || s.now().Sub(latest) > s.opts.StaleAfter

	return report, nil
}

// EnsureFresh syncs [start, end] when weeks are missing or the current week is
// stale. In background mode it returns immediately and the sync outlives ctx.
// Missing credentials and an already-running sync are not errors.
func (s *SyncService) EnsureFresh(ctx context.Context, tenantID string, start, end time.Time, mode SyncMode) error {
	if mode == SyncBlocking {
		return s.ensureFresh(ctx, tenantID, start, end)
	}

	bgCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.BackgroundTimeout)
	go func() {
		defer cancel()
		if err := s.ensureFresh(bgCtx, tenantID, start, end); err != nil {
			s.logger.WithContext(bgCtx).WithError(err).WithField("tenant_id", tenantID).Error("Background sync failed")
		}
	}()
	return nil
}

func (s *SyncService) ensureFresh(ctx context.Context, tenantID string, start, end time.Time) error {
	log := s.logger.WithTenant(ctx, tenantID)

	report, err := s.CheckFreshness(ctx, tenantID, start, end)
	if err != nil {
		return err
	}
	if !report.NeedsSync() {
		return nil
	}

	accountID, token, err := s.credentials(ctx, tenantID)
	if domain.IsNotFound(err) {
		log.WithError(err).Info("Skipping sync, tenant has no ads credentials")
		return nil
	}
	if err != nil {
		return err
	}

	log.WithFields(map[string]any{
		"missing_weeks":      len(report.MissingWeeks),
		"current_week_stale": report.CurrentWeekNeedsUpdate,
	}).Info("Snapshots out of date, syncing")

	_, err = s.syncWeeks(ctx, tenantID, accountID, token, domain.WeeksInRange(start, end))
	if errors.Is(err, domain.ErrSyncInProgress) {
		log.Debug("Sync already running for tenant")
		return nil
	}
	return err
}

// SyncRange fetches and persists every week of [start, end]. It returns
// ErrSyncInProgress when a sync for the tenant is already running and a
// NotFoundError when the tenant has no ad account or token.
func (s *SyncService) SyncRange(ctx context.Context, tenantID string, start, end time.Time) (*SyncResult, error) {
	accountID, token, err := s.credentials(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return s.syncWeeks(ctx, tenantID, accountID, token, domain.WeeksInRange(start, end))
}

// credentials resolves the ad account and token in parallel.
func (s *SyncService) credentials(ctx context.Context, tenantID string) (string, string, error) {
	var accountID, token string

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		accountID, err = s.tenants.AdAccountID(gctx, tenantID)
		return err
	})
	g.Go(func() error {
		var err error
		token, err = s.tenants.AdsAccessToken(gctx, tenantID)
		return err
	})
	if err := g.Wait(); err != nil {
		return "", "", err
	}

	if accountID == "" {
		return "", "", &domain.NotFoundError{Resource: "ad account", ID: tenantID}
	}
	if token == "" {
		return "", "", &domain.NotFoundError{Resource: "ads access token", ID: tenantID}
	}
	return accountID, token, nil
}

func (s *SyncService) syncWeeks(ctx context.Context, tenantID, accountID, token string, weeks []domain.Week) (*SyncResult, error) {
	release, ok := s.guard.TryAcquire(snapshotGuardKey(tenantID))
	if !ok {
		return nil, domain.ErrSyncInProgress
	}
	defer release()

	start := time.Now()
	s.metrics.IncSyncsInProgress()
	defer s.metrics.DecSyncsInProgress()

	log := s.logger.WithTenant(ctx, tenantID)
	log.WithField("weeks", len(weeks)).Info("Starting weekly snapshot sync")

	result := &SyncResult{TenantID: tenantID, Weeks: []string{}}

	for _, batch := range lo.Chunk(weeks, s.opts.BatchSize) {
		snapshots, err := s.fetchBatch(ctx, accountID, token, tenantID, batch)
		if err != nil {
			s.metrics.RecordSync(weeklySyncJob, "failed", time.Since(start))
			return nil, err
		}

		s.enrich(ctx, tenantID, token, snapshots)

		if err := s.snapshots.UpsertMany(ctx, snapshots); err != nil {
			s.metrics.RecordSync(weeklySyncJob, "failed", time.Since(start))
			return nil, fmt.Errorf("failed to save snapshots: %w", err)
		}

		s.metrics.RecordSnapshotsUpserted(tenantID, len(snapshots))
		result.Snapshots += len(snapshots)
		for _, week := range batch {
			result.Weeks = append(result.Weeks, week.StartString())
		}
	}

	duration := time.Since(start)
	s.metrics.RecordSync(weeklySyncJob, "success", duration)
	log.WithFields(map[string]any{
		"duration":  duration,
		"weeks":     len(result.Weeks),
		"snapshots": result.Snapshots,
	}).Info("Weekly snapshot sync completed")

	return result, nil
}

// fetchBatch fetches the weeks of one batch concurrently.
func (s *SyncService) fetchBatch(ctx context.Context, accountID, token, tenantID string, weeks []domain.Week) ([]domain.WeeklySnapshot, error) {
	perWeek := make([][]domain.WeeklySnapshot, len(weeks))

	g, gctx := errgroup.WithContext(ctx)
	for i, week := range weeks {
		g.Go(func() error {
			rows, err := s.ads.FetchWeeklyInsights(gctx, accountID, token, week)
			if err != nil {
				return err
			}
			savedAt := s.now().UTC()
			for j := range rows {
				rows[j].TenantID = tenantID
				rows[j].WeekStart = week.Start
				rows[j].WeekEnd = week.End
				rows[j].SavedAt = savedAt
			}
			perWeek[i] = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return lo.Flatten(perWeek), nil
}

// enrich attaches creative and lead-form references and warms the creative
// cache. Failures leave the platform metrics intact.
func (s *SyncService) enrich(ctx context.Context, tenantID, token string, snapshots []domain.WeeklySnapshot) {
	if len(snapshots) == 0 {
		return
	}
	log := s.logger.WithTenant(ctx, tenantID)

	adIDs := lo.Map(snapshots, func(snap domain.WeeklySnapshot, _ int) string { return snap.AdID })
	details, err := s.ads.FetchAdDetails(ctx, adIDs, token)
	if err != nil {
		log.WithError(err).Warn("Failed to fetch ad details, saving metrics without creative references")
		return
	}

	for i := range snapshots {
		d, ok := details[snapshots[i].AdID]
		if !ok {
			continue
		}
		snapshots[i].CreativeID = d.CreativeID
		snapshots[i].CreativeTitle = d.CreativeTitle
		snapshots[i].CreativeBody = d.CreativeBody
		snapshots[i].LeadFormID = d.LeadFormID
	}

	if s.creatives == nil {
		return
	}
	creativeIDs := lo.Map(snapshots, func(snap domain.WeeklySnapshot, _ int) string { return snap.CreativeID })
	records := s.creatives.GetMany(ctx, creativeIDs, tenantID, token)
	for i := range snapshots {
		if record, ok := records[snapshots[i].CreativeID]; ok {
			snapshots[i].CreativeRaw = record.RawPayload
			snapshots[i].CreativeTitle = firstNonEmpty(snapshots[i].CreativeTitle, record.Title)
			snapshots[i].CreativeBody = firstNonEmpty(snapshots[i].CreativeBody, record.Body)
		}
	}
}
