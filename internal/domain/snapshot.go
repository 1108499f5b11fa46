package domain

import (
	"encoding/json"
	"time"
)

// AdMetrics is the platform-reported metrics bag for one ad over one week.
// Values are absolutes for that week, not cumulative.
type AdMetrics struct {
	Impressions int64   `json:"impressions"`
	Reach       int64   `json:"reach"`
	Frequency   float64 `json:"frequency"`
	Clicks      int64   `json:"clicks"`
	LinkClicks  int64   `json:"link_clicks"`
	Spend       float64 `json:"spend"`

	CTR float64 `json:"ctr"`
	CPC float64 `json:"cpc"`
	CPM float64 `json:"cpm"`
	CPR float64 `json:"cpr"`

	PostEngagements int64 `json:"post_engagements"`
	PageEngagements int64 `json:"page_engagements"`
	PostReactions   int64 `json:"post_reactions"`
	Comments        int64 `json:"comments"`
	Shares          int64 `json:"shares"`

	VideoPlays int64 `json:"video_plays"`
	VideoP25   int64 `json:"video_p25"`
	VideoP50   int64 `json:"video_p50"`
	VideoP75   int64 `json:"video_p75"`
	VideoP100  int64 `json:"video_p100"`
	ThruPlays  int64 `json:"thruplays"`

	Results         int64   `json:"results"`
	Conversions     int64   `json:"conversions"`
	ConversionValue float64 `json:"conversion_value"`
	Leads           int64   `json:"leads"`
}

// FillDerivedRatios computes ratio metrics the platform omitted from their
// underlying counts. Reported values are kept as-is.
func (m *AdMetrics) FillDerivedRatios() {
	if m.CTR == 0 && m.Impressions > 0 {
		m.CTR = float64(m.Clicks) / float64(m.Impressions) * 100
	}
	if m.CPC == 0 && m.Clicks > 0 {
		m.CPC = m.Spend / float64(m.Clicks)
	}
	if m.CPM == 0 && m.Impressions > 0 {
		m.CPM = m.Spend / float64(m.Impressions) * 1000
	}
	if m.CPR == 0 && m.Results > 0 {
		m.CPR = m.Spend / float64(m.Results)
	}
	if m.Frequency == 0 && m.Reach > 0 {
		m.Frequency = float64(m.Impressions) / float64(m.Reach)
	}
}

// WeeklySnapshot is one row per (TenantID, AdID, WeekStart).
type WeeklySnapshot struct {
	TenantID string `json:"tenant_id"`

	CampaignID   string `json:"campaign_id"`
	CampaignName string `json:"campaign_name"`
	AdSetID      string `json:"adset_id"`
	AdSetName    string `json:"adset_name"`
	AdID         string `json:"ad_id"`
	AdName       string `json:"ad_name"`

	CreativeID    string          `json:"creative_id,omitempty"`
	CreativeTitle string          `json:"creative_title,omitempty"`
	CreativeBody  string          `json:"creative_body,omitempty"`
	CreativeRaw   json.RawMessage `json:"creative_raw,omitempty"`
	LeadFormID    string          `json:"lead_form_id,omitempty"`

	Metrics AdMetrics `json:"metrics"`

	WeekStart time.Time `json:"week_start"`
	WeekEnd   time.Time `json:"week_end"`
	SavedAt   time.Time `json:"saved_at"`
	Deleted   bool      `json:"-"`
}

// SnapshotKey is the uniqueness key of a weekly snapshot.
type SnapshotKey struct {
	TenantID  string
	AdID      string
	WeekStart string
}

func (s WeeklySnapshot) Key() SnapshotKey {
	return SnapshotKey{TenantID: s.TenantID, AdID: s.AdID, WeekStart: s.WeekStart.Format(DateLayout)}
}
