package infrastructure

import (
	"strconv"
	"strings"

	"funnelreport/internal/domain"
)

type actionValue struct {
	ActionType string `json:"action_type"`
	Value      string `json:"value"`
}

// insightRow is one ad-level insights record. The platform encodes numbers as strings.
type insightRow struct {
	CampaignID   string `json:"campaign_id"`
	CampaignName string `json:"campaign_name"`
	AdSetID      string `json:"adset_id"`
	AdSetName    string `json:"adset_name"`
	AdID         string `json:"ad_id"`
	AdName       string `json:"ad_name"`

	Impressions      string `json:"impressions"`
	Reach            string `json:"reach"`
	Frequency        string `json:"frequency"`
	Clicks           string `json:"clicks"`
	InlineLinkClicks string `json:"inline_link_clicks"`
	Spend            string `json:"spend"`
	CTR              string `json:"ctr"`
	CPC              string `json:"cpc"`
	CPM              string `json:"cpm"`

	Actions          []actionValue `json:"actions"`
	Conversions      []actionValue `json:"conversions"`
	ConversionValues []actionValue `json:"conversion_values"`

	VideoPlays    []actionValue `json:"video_play_actions"`
	VideoP25      []actionValue `json:"video_p25_watched_actions"`
	VideoP50      []actionValue `json:"video_p50_watched_actions"`
	VideoP75      []actionValue `json:"video_p75_watched_actions"`
	VideoP100     []actionValue `json:"video_p100_watched_actions"`
	VideoThruPlay []actionValue `json:"video_thruplay_watched_actions"`
}

func (r insightRow) toSnapshot() domain.WeeklySnapshot {
	actions := indexActions(r.Actions)

	leads := actions["lead"]
	if leads == 0 {
		leads = actions["onsite_conversion.lead_grouped"]
	}

	metrics := domain.AdMetrics{
		Impressions: parseInt(r.Impressions),
		Reach:       parseInt(r.Reach),
		Frequency:   parseFloat(r.Frequency),
		Clicks:      parseInt(r.Clicks),
		LinkClicks:  parseInt(r.InlineLinkClicks),
		Spend:       parseFloat(r.Spend),
		CTR:         parseFloat(r.CTR),
		CPC:         parseFloat(r.CPC),
		CPM:         parseFloat(r.CPM),

		PostEngagements: int64(actions["post_engagement"]),
		PageEngagements: int64(actions["page_engagement"]),
		PostReactions:   int64(actions["post_reaction"]),
		Comments:        int64(actions["comment"]),
		Shares:          int64(actions["post"]),

		VideoPlays: int64(sumActions(r.VideoPlays)),
		VideoP25:   int64(sumActions(r.VideoP25)),
		VideoP50:   int64(sumActions(r.VideoP50)),
		VideoP75:   int64(sumActions(r.VideoP75)),
		VideoP100:  int64(sumActions(r.VideoP100)),
		ThruPlays:  int64(sumActions(r.VideoThruPlay)),

		Results:         int64(leads),
		Leads:           int64(leads),
		Conversions:     int64(sumActions(r.Conversions)),
		ConversionValue: sumActions(r.ConversionValues),
	}
	metrics.FillDerivedRatios()

	return domain.WeeklySnapshot{
		CampaignID:   r.CampaignID,
		CampaignName: strings.TrimSpace(r.CampaignName),
		AdSetID:      r.AdSetID,
		AdSetName:    strings.TrimSpace(r.AdSetName),
		AdID:         r.AdID,
		AdName:       strings.TrimSpace(r.AdName),
		Metrics:      metrics,
	}
}

func indexActions(actions []actionValue) map[string]float64 {
	out := make(map[string]float64, len(actions))
	for _, a := range actions {
		out[a.ActionType] += parseFloat(a.Value)
	}
	return out
}

func sumActions(actions []actionValue) float64 {
	var total float64
	for _, a := range actions {
		total += parseFloat(a.Value)
	}
	return total
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}

func parseInt(s string) int64 {
	return int64(parseFloat(s))
}
