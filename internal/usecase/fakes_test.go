package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	"funnelreport/internal/domain"
	"funnelreport/internal/infrastructure"
	"funnelreport/pkg/logger"
	"funnelreport/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
)

func testLogger() *logger.Logger {
	log := logger.New("error")
	log.SetOutput(io.Discard)
	return log
}

func testMetrics() *metrics.Metrics {
	return metrics.NewWithRegistry(prometheus.NewRegistry())
}

func date(s string) time.Time {
	t, err := time.Parse(domain.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

// fakeAdsClient serves canned insights and creatives.
type fakeAdsClient struct {
	mu sync.Mutex

	insights    map[string][]domain.WeeklySnapshot // keyed by week start
	insightsErr error
	details     map[string]domain.AdDetails
	creatives   map[string]json.RawMessage
	creativeErr error
	videos      map[string]*domain.VideoDetails

	// when set, FetchWeeklyInsights signals started and waits for release
	started chan struct{}
	release chan struct{}

	insightCalls  int
	creativeCalls int
	videoCalls    int
}

func (f *fakeAdsClient) FetchWeeklyInsights(ctx context.Context, adAccountID, token string, week domain.Week) ([]domain.WeeklySnapshot, error) {
	if f.started != nil {
		select {
		case f.started <- struct{}{}:
		default:
		}
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.insightCalls++
	if f.insightsErr != nil {
		return nil, f.insightsErr
	}
	rows := f.insights[week.StartString()]
	return append([]domain.WeeklySnapshot(nil), rows...), nil
}

func (f *fakeAdsClient) FetchAdDetails(ctx context.Context, adIDs []string, token string) (map[string]domain.AdDetails, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]domain.AdDetails)
	for _, id := range adIDs {
		if d, ok := f.details[id]; ok {
			out[id] = d
		}
	}
	return out, nil
}

func (f *fakeAdsClient) FetchCreative(ctx context.Context, creativeID, token string) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creativeCalls++
	if f.creativeErr != nil {
		return nil, f.creativeErr
	}
	raw, ok := f.creatives[creativeID]
	if !ok {
		return nil, &domain.UpstreamError{API: "ads", StatusCode: 404, Body: "not found"}
	}
	return raw, nil
}

func (f *fakeAdsClient) FetchVideo(ctx context.Context, videoID, token string) (*domain.VideoDetails, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.videoCalls++
	v, ok := f.videos[videoID]
	if !ok {
		return nil, errors.New("video not found")
	}
	return v, nil
}

func (f *fakeAdsClient) calls() (insights, creatives, videos int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.insightCalls, f.creativeCalls, f.videoCalls
}

// fakeCRMClient serves pages keyed by page URL; "" is the first page.
type fakeCRMClient struct {
	pages map[string]*domain.CRMContactsPage
	err   error
	calls []string
}

func (f *fakeCRMClient) ListContacts(ctx context.Context, token, pageURL string) (*domain.CRMContactsPage, error) {
	f.calls = append(f.calls, pageURL)
	if f.err != nil {
		return nil, f.err
	}
	page, ok := f.pages[pageURL]
	if !ok {
		return &domain.CRMContactsPage{}, nil
	}
	return page, nil
}

func crmPage(next string, contacts ...domain.CRMContact) *domain.CRMContactsPage {
	page := &domain.CRMContactsPage{Contacts: contacts}
	page.Meta.NextPageURL = next
	page.Meta.Total = len(contacts)
	return page
}

func contact(id, adName string, tags ...string) domain.CRMContact {
	c := domain.CRMContact{ID: id, FirstName: "Lead " + id, Tags: tags, DateAdded: "2024-03-05T10:00:00Z"}
	c.Attribution.AdName = adName
	return c
}

// failingSnapshotRepo fails every read.
type failingSnapshotRepo struct{}

func (failingSnapshotRepo) UpsertMany(ctx context.Context, snapshots []domain.WeeklySnapshot) error {
	return errors.New("db down")
}

func (failingSnapshotRepo) GetByDateRange(ctx context.Context, tenantID string, start, end time.Time) ([]domain.WeeklySnapshot, error) {
	return nil, errors.New("db down")
}

// recordingFreshness records EnsureFresh calls.
type recordingFreshness struct {
	mu    sync.Mutex
	modes []SyncMode
	err   error
}

func (r *recordingFreshness) EnsureFresh(ctx context.Context, tenantID string, start, end time.Time, mode SyncMode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modes = append(r.modes, mode)
	return r.err
}

func newTenants() *infrastructure.TenantDirectory {
	return infrastructure.NewTenantDirectory([]infrastructure.TenantCredentials{
		{ID: "t1", AdAccountID: "act_1", AdsAccessToken: "ads-token", CRMAccessToken: "crm-token"},
		{ID: "no-creds"},
	})
}

func weekSnapshot(tenant, campaign, adSet, ad, weekStart string, m domain.AdMetrics) domain.WeeklySnapshot {
	week := domain.WeekOf(date(weekStart))
	m.FillDerivedRatios()
	return domain.WeeklySnapshot{
		TenantID:     tenant,
		CampaignID:   "cid-" + campaign,
		CampaignName: campaign,
		AdSetID:      "sid-" + adSet,
		AdSetName:    adSet,
		AdID:         "aid-" + ad,
		AdName:       ad,
		Metrics:      m,
		WeekStart:    week.Start,
		WeekEnd:      week.End,
		SavedAt:      week.Start,
	}
}
