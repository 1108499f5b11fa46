package domain

import (
	"context"
	"encoding/json"
	"time"
)

// interface for weekly snapshot persistence
type SnapshotRepository interface {
	// UpsertMany inserts or overwrites snapshots keyed by (tenant, ad, week start).
	UpsertMany(ctx context.Context, snapshots []WeeklySnapshot) error
	// GetByDateRange returns non-deleted snapshots whose week overlaps [start, end].
	GetByDateRange(ctx context.Context, tenantID string, start, end time.Time) ([]WeeklySnapshot, error)
}

// interface for CRM lead persistence. Implementations enforce the lead
// status invariants on every write.
type LeadRepository interface {
	// Upsert inserts or overwrites leads keyed by (client, CRM contact id).
	Upsert(ctx context.Context, leads []Lead) error
	Update(ctx context.Context, lead Lead) error
	GetByID(ctx context.Context, clientID, id string) (*Lead, error)
	GetByCRMContactID(ctx context.Context, clientID, contactID string) (*Lead, error)
	GetByDateRange(ctx context.Context, clientID string, start, end time.Time) ([]Lead, error)
}

// interface for cached creative metadata
type CreativeRepository interface {
	Get(ctx context.Context, creativeID string) (*CreativeRecord, error)
	Save(ctx context.Context, record CreativeRecord) error
}

// the interface for tenant credential lookups (tenant CRUD lives elsewhere)
type TenantDirectory interface {
	ListTenants(ctx context.Context) ([]string, error)
	AdAccountID(ctx context.Context, tenantID string) (string, error)
	AdsAccessToken(ctx context.Context, tenantID string) (string, error)
	CRMAccessToken(ctx context.Context, tenantID string) (string, error)
}

// AdDetails is per-ad metadata resolved by multi-ID lookups.
type AdDetails struct {
	AdID          string
	CreativeID    string
	CreativeTitle string
	CreativeBody  string
	LeadFormID    string
}

// VideoDetails is playback metadata for a video creative.
type VideoDetails struct {
	SourceURL       string
	DurationSeconds float64
	PictureURL      string
}

// interface for the ads platform API
type AdsAPIClient interface {
	// FetchWeeklyInsights returns ad-level snapshots for one week. Tenant, week
	// bounds and SavedAt are left for the caller to fill.
	FetchWeeklyInsights(ctx context.Context, adAccountID, token string, week Week) ([]WeeklySnapshot, error)
	FetchAdDetails(ctx context.Context, adIDs []string, token string) (map[string]AdDetails, error)
	FetchCreative(ctx context.Context, creativeID, token string) (json.RawMessage, error)
	FetchVideo(ctx context.Context, videoID, token string) (*VideoDetails, error)
}

// interface for the CRM API
type CRMClient interface {
	// ListContacts fetches one page. An empty pageURL requests the first page.
	ListContacts(ctx context.Context, token, pageURL string) (*CRMContactsPage, error)
}
