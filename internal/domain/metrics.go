package domain

import (
	"fmt"
	"strings"
	"time"
)

type GroupBy string

const (
	GroupByCampaign GroupBy = "campaign"
	GroupByAdSet    GroupBy = "adset"
	GroupByAd       GroupBy = "ad"
)

func (g GroupBy) Valid() bool {
	return g == GroupByCampaign || g == GroupByAdSet || g == GroupByAd
}

// Metric names a reportable column.
type Metric string

const (
	MetricSpend           Metric = "fb_spend"
	MetricImpressions     Metric = "fb_impressions"
	MetricReach           Metric = "fb_reach"
	MetricClicks          Metric = "fb_clicks"
	MetricLinkClicks      Metric = "fb_link_clicks"
	MetricFrequency       Metric = "fb_frequency"
	MetricCTR             Metric = "fb_ctr"
	MetricCPC             Metric = "fb_cpc"
	MetricCPM             Metric = "fb_cpm"
	MetricCPR             Metric = "fb_cpr"
	MetricPostEngagements Metric = "fb_post_engagements"
	MetricPageEngagements Metric = "fb_page_engagements"
	MetricVideoPlays      Metric = "fb_video_plays"
	MetricVideoP25        Metric = "fb_video_p25"
	MetricVideoP50        Metric = "fb_video_p50"
	MetricVideoP75        Metric = "fb_video_p75"
	MetricVideoP100       Metric = "fb_video_p100"
	MetricThruPlays       Metric = "fb_thruplays"
	MetricResults         Metric = "fb_results"
	MetricConversions     Metric = "fb_conversions"
	MetricConversionValue Metric = "fb_conversion_value"
	MetricPlatformLeads   Metric = "fb_leads"

	MetricNumberOfLeads              Metric = "numberOfLeads"
	MetricNumberOfNewLeads           Metric = "numberOfNewLeads"
	MetricNumberOfInProgress         Metric = "numberOfInProgress"
	MetricNumberOfEstimateSets       Metric = "numberOfEstimateSets"
	MetricNumberOfVirtualQuotes      Metric = "numberOfVirtualQuotes"
	MetricNumberOfProposalsPresented Metric = "numberOfProposalsPresented"
	MetricNumberOfJobsBooked         Metric = "numberOfJobsBooked"
	MetricNumberOfUnqualifiedLeads   Metric = "numberOfUnqualifiedLeads"
	MetricNumberOfEstimatesCanceled  Metric = "numberOfEstimatesCanceled"
	MetricNumberOfJobsLost           Metric = "numberOfJobsLost"
	MetricTotalRevenue               Metric = "totalRevenue"

	MetricCostPerLead            Metric = "costPerLead"
	MetricCostPerEstimateSet     Metric = "costPerEstimateSet"
	MetricCostPerJobBooked       Metric = "costPerJobBooked"
	MetricCostOfMarketingPercent Metric = "costOfMarketingPercent"
	MetricEstimateSetRate        Metric = "estimateSetRate"
)

// AllMetrics lists every reportable column in output order.
var AllMetrics = []Metric{
	MetricSpend, MetricImpressions, MetricReach, MetricClicks, MetricLinkClicks,
	MetricFrequency, MetricCTR, MetricCPC, MetricCPM, MetricCPR,
	MetricPostEngagements, MetricPageEngagements,
	MetricVideoPlays, MetricVideoP25, MetricVideoP50, MetricVideoP75, MetricVideoP100, MetricThruPlays,
	MetricResults, MetricConversions, MetricConversionValue, MetricPlatformLeads,
	MetricNumberOfLeads, MetricNumberOfNewLeads, MetricNumberOfInProgress,
	MetricNumberOfEstimateSets, MetricNumberOfVirtualQuotes, MetricNumberOfProposalsPresented,
	MetricNumberOfJobsBooked, MetricNumberOfUnqualifiedLeads, MetricNumberOfEstimatesCanceled,
	MetricNumberOfJobsLost, MetricTotalRevenue,
	MetricCostPerLead, MetricCostPerEstimateSet, MetricCostPerJobBooked,
	MetricCostOfMarketingPercent, MetricEstimateSetRate,
}

var knownMetrics = func() map[Metric]bool {
	m := make(map[Metric]bool, len(AllMetrics))
	for _, metric := range AllMetrics {
		m[metric] = true
	}
	return m
}()

// ColumnSet is the ordered set of requested metrics.
type ColumnSet []Metric

// ParseColumns converts the request's flag object into a ColumnSet, rejecting unknown names.
func ParseColumns(flags map[string]bool) (ColumnSet, error) {
	var unknown []string
	for name := range flags {
		if !knownMetrics[Metric(name)] {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		return nil, &ValidationError{Field: "columns", Message: fmt.Sprintf("unknown columns: %s", strings.Join(unknown, ", "))}
	}

	var cols ColumnSet
	for _, metric := range AllMetrics {
		if flags[string(metric)] {
			cols = append(cols, metric)
		}
	}
	return cols, nil
}

// Range is an inclusive numeric range; nil bounds are open.
type Range struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

func (r *Range) Contains(v float64) bool {
	if r == nil {
		return true
	}
	if r.Min != nil && v < *r.Min {
		return false
	}
	if r.Max != nil && v > *r.Max {
		return false
	}
	return true
}

// ReportFilters are the report's date range plus lead-level and ad-name filters.
type ReportFilters struct {
	StartDate        string `json:"startDate" validate:"required"`
	EndDate          string `json:"endDate" validate:"required"`
	EstimateSetLeads *bool  `json:"estimateSetLeads,omitempty"`
	JobBookedLeads   *bool  `json:"jobBookedLeads,omitempty"`
	ZipCode          string `json:"zipCode,omitempty"`
	ServiceType      string `json:"serviceType,omitempty"`
	LeadScore        *Range `json:"leadScore,omitempty"`
	CampaignName     string `json:"campaignName,omitempty"`
	AdSetName        string `json:"adSetName,omitempty"`
	AdName           string `json:"adName,omitempty"`
}

// ReportRequest is the aggregation engine's external contract.
type ReportRequest struct {
	ClientID string          `json:"clientId" validate:"required"`
	Filters  ReportFilters   `json:"filters"`
	Columns  map[string]bool `json:"columns"`
	GroupBy  GroupBy         `json:"groupBy" validate:"required,oneof=campaign adset ad"`
}

// ReportRow is one projected output row. Only identity fields and requested
// metrics are present; metrics that cannot be computed are nil.
type ReportRow map[string]any

type ReportResult struct {
	Rows                  []ReportRow `json:"rows"`
	AvailableZipCodes     []string    `json:"availableZipCodes"`
	AvailableServiceTypes []string    `json:"availableServiceTypes"`

	// Columns and GroupBy echo the parsed request for exporters.
	Columns     ColumnSet `json:"-"`
	GroupBy     GroupBy   `json:"-"`
	GeneratedAt time.Time `json:"generatedAt"`
}

// FreshnessReport describes what a sync would need to fetch for a range.
type FreshnessReport struct {
	TenantID               string   `json:"tenant_id"`
	ExpectedWeeks          []string `json:"expected_weeks"`
	MissingWeeks           []string `json:"missing_weeks"`
	CurrentWeekNeedsUpdate bool     `json:"current_week_needs_update"`
}

func (f FreshnessReport) NeedsSync() bool {
	return len(f.MissingWeeks) > 0 || f.CurrentWeekNeedsUpdate
}
