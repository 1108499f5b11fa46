package usecase

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"funnelreport/internal/domain"
	"funnelreport/pkg/logger"
	"funnelreport/pkg/metrics"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

// FreshnessEnsurer triggers a snapshot sync ahead of a report.
type FreshnessEnsurer interface {
	EnsureFresh(ctx context.Context, tenantID string, start, end time.Time, mode SyncMode) error
}

// ReportService aggregates weekly snapshots and CRM leads into per-group rows.
type ReportService struct {
	snapshots domain.SnapshotRepository
	leads     domain.LeadRepository
	freshness FreshnessEnsurer
	syncMode  SyncMode
	validate  *validator.Validate
	logger    *logger.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

func NewReportService(
	snapshots domain.SnapshotRepository,
	leads domain.LeadRepository,
	freshness FreshnessEnsurer,
	syncMode SyncMode,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) *ReportService {
	return &ReportService{
		snapshots: snapshots,
		leads:     leads,
		freshness: freshness,
		syncMode:  syncMode,
		validate:  newValidator(),
		logger:    logger,
		metrics:   metrics,
		now:       time.Now,
	}
}

// reportQuery is a validated request.
type reportQuery struct {
	tenantID string
	start    time.Time
	end      time.Time
	groupBy  domain.GroupBy
	columns  domain.ColumnSet
	filters  domain.ReportFilters
}

func (s *ReportService) parse(req domain.ReportRequest) (*reportQuery, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, validationError(err)
	}

	start, err := domain.ParseDate("startDate", req.Filters.StartDate)
	if err != nil {
		return nil, err
	}
	end, err := domain.ParseDate("endDate", req.Filters.EndDate)
	if err != nil {
		return nil, err
	}
	if end.Before(start) {
		return nil, &domain.ValidationError{Field: "endDate", Message: "must not be before startDate"}
	}

	columns, err := domain.ParseColumns(req.Columns)
	if err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		columns = domain.AllMetrics
	}

	if r := req.Filters.LeadScore; r != nil && r.Min != nil && r.Max != nil && *r.Min > *r.Max {
		return nil, &domain.ValidationError{Field: "leadScore", Message: "min must not exceed max"}
	}

	return &reportQuery{
		tenantID: req.ClientID,
		start:    start,
		end:      end,
		groupBy:  req.GroupBy,
		columns:  columns,
		filters:  req.Filters,
	}, nil
}

// Generate builds the report. Store failures abort the whole report; partial
// row sets are never returned.
func (s *ReportService) Generate(ctx context.Context, req domain.ReportRequest) (*domain.ReportResult, error) {
	started := time.Now()

	q, err := s.parse(req)
	if err != nil {
		// the raw group_by is user input, keep it out of the label set
		s.metrics.RecordReport("unknown", "invalid", time.Since(started))
		return nil, err
	}

	log := s.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id":  q.tenantID,
		"group_by":   q.groupBy,
		"start_date": req.Filters.StartDate,
		"end_date":   req.Filters.EndDate,
	})

	if s.freshness != nil {
		if err := s.freshness.EnsureFresh(ctx, q.tenantID, q.start, q.end, s.syncMode); err != nil {
			log.WithError(err).Warn("Snapshot sync failed, reporting from stored data")
		}
	}

	result, err := s.build(ctx, q)
	if err != nil {
		s.metrics.RecordReport(string(q.groupBy), "failed", time.Since(started))
		return nil, err
	}

	duration := time.Since(started)
	s.metrics.RecordReport(string(q.groupBy), "success", duration)
	log.WithFields(map[string]any{
		"duration": duration,
		"rows":     len(result.Rows),
	}).Info("Report generated")

	return result, nil
}

func (s *ReportService) build(ctx context.Context, q *reportQuery) (*domain.ReportResult, error) {
	snapshots, err := s.snapshots.GetByDateRange(ctx, q.tenantID, q.start, q.end)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshots: %w", err)
	}
	leads, err := s.leads.GetByDateRange(ctx, q.tenantID, q.start, q.end)
	if err != nil {
		return nil, fmt.Errorf("failed to load leads: %w", err)
	}

	// built from every snapshot so name filters do not break attribution
	index := buildAttributionIndex(snapshots)

	filteredLeads := newLeadFilter(q.filters).apply(leads)
	filteredSnapshots := newSnapshotFilter(q.filters).apply(snapshots)

	groups := make(map[string]*groupAccumulator)
	var order []*groupAccumulator
	for _, snap := range filteredSnapshots {
		key := groupKey(q.groupBy, snap.CampaignName, snap.AdSetName, snap.AdName)
		acc, ok := groups[key]
		if !ok {
			acc = newGroupAccumulator(snap)
			groups[key] = acc
			order = append(order, acc)
		}
		acc.addSnapshot(snap)
	}

	dropped := 0
	for _, lead := range filteredLeads {
		names, ok := index.resolve(lead.AdName, lead.AdSetName, lead.CampaignName)
		if !ok {
			dropped++
			continue
		}
		acc, ok := groups[groupKey(q.groupBy, names.CampaignName, names.AdSetName, names.AdName)]
		if !ok {
			continue
		}
		acc.addLead(lead)
	}
	if dropped > 0 {
		s.metrics.RecordAttributionDropped(q.tenantID, dropped)
		s.logger.WithContext(ctx).WithFields(map[string]any{
			"tenant_id": q.tenantID,
			"dropped":   dropped,
		}).Info("Leads without a matching ad were left out of the report")
	}

	sort.SliceStable(order, func(i, j int) bool {
		return order[i].sums.Spend > order[j].sums.Spend
	})

	rows := make([]domain.ReportRow, 0, len(order))
	for _, acc := range order {
		rows = append(rows, acc.project(q.groupBy, q.columns))
	}

	return &domain.ReportResult{
		Rows:                  rows,
		AvailableZipCodes:     distinctSorted(lo.Map(leads, func(l domain.Lead, _ int) string { return l.Zip })),
		AvailableServiceTypes: distinctSorted(lo.Map(leads, func(l domain.Lead, _ int) string { return l.Service })),
		Columns:               q.columns,
		GroupBy:               q.groupBy,
		GeneratedAt:           s.now().UTC(),
	}, nil
}

func groupKey(groupBy domain.GroupBy, campaign, adSet, ad string) string {
	switch groupBy {
	case domain.GroupByCampaign:
		return nameKey(campaign)
	case domain.GroupByAdSet:
		return nameKey(adSet)
	default:
		return nameKey(ad)
	}
}

func distinctSorted(values []string) []string {
	out := lo.Uniq(lo.FilterMap(values, func(v string, _ int) (string, bool) {
		v = strings.TrimSpace(v)
		return v, v != ""
	}))
	sort.Strings(out)
	return out
}

// containsMatcher is a case-insensitive substring match with regex metacharacters escaped.
func containsMatcher(value string) *regexp.Regexp {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return regexp.MustCompile("(?i)" + regexp.QuoteMeta(value))
}

func matches(re *regexp.Regexp, value string) bool {
	return re == nil || re.MatchString(value)
}

type leadFilter struct {
	zip         *regexp.Regexp
	service     *regexp.Regexp
	score       *domain.Range
	estimateSet bool
	jobBooked   bool
}

func newLeadFilter(f domain.ReportFilters) leadFilter {
	return leadFilter{
		zip:         containsMatcher(f.ZipCode),
		service:     containsMatcher(f.ServiceType),
		score:       f.LeadScore,
		estimateSet: f.EstimateSetLeads != nil && *f.EstimateSetLeads,
		jobBooked:   f.JobBookedLeads != nil && *f.JobBookedLeads,
	}
}

func (f leadFilter) apply(leads []domain.Lead) []domain.Lead {
	return lo.Filter(leads, func(l domain.Lead, _ int) bool {
		if !matches(f.zip, l.Zip) || !matches(f.service, l.Service) {
			return false
		}
		if !f.score.Contains(l.LeadScore) {
			return false
		}
		if f.estimateSet && !l.Status.IsNetEstimate() {
			return false
		}
		if f.jobBooked && l.Status != domain.StatusJobBooked {
			return false
		}
		return true
	})
}

type snapshotFilter struct {
	campaign *regexp.Regexp
	adSet    *regexp.Regexp
	ad       *regexp.Regexp
}

func newSnapshotFilter(f domain.ReportFilters) snapshotFilter {
	return snapshotFilter{
		campaign: containsMatcher(f.CampaignName),
		adSet:    containsMatcher(f.AdSetName),
		ad:       containsMatcher(f.AdName),
	}
}

func (f snapshotFilter) apply(snapshots []domain.WeeklySnapshot) []domain.WeeklySnapshot {
	return lo.Filter(snapshots, func(s domain.WeeklySnapshot, _ int) bool {
		return matches(f.campaign, s.CampaignName) && matches(f.adSet, s.AdSetName) && matches(f.ad, s.AdName)
	})
}

// funnelCounts tallies leads by status.
type funnelCounts struct {
	leads             int
	newLeads          int
	inProgress        int
	estimateSet       int
	virtualQuote      int
	proposalPresented int
	jobBooked         int
	unqualified       int
	estimateCanceled  int
	jobLost           int
}

func (f funnelCounts) netEstimates() int {
	return f.estimateSet + f.virtualQuote + f.proposalPresented + f.jobBooked
}

func (f funnelCounts) netUnqualified() int {
	return f.unqualified + f.estimateCanceled + f.jobLost
}

// groupAccumulator holds the running sums for one output row. Ratio metrics
// are summed per record and divided by records at projection time.
type groupAccumulator struct {
	campaignID   string
	campaignName string
	adSetID      string
	adSetName    string
	adID         string
	adName       string
	creativeID   string

	records int
	sums    domain.AdMetrics
	funnel  funnelCounts
	revenue float64
}

func newGroupAccumulator(s domain.WeeklySnapshot) *groupAccumulator {
	return &groupAccumulator{
		campaignID:   s.CampaignID,
		campaignName: s.CampaignName,
		adSetID:      s.AdSetID,
		adSetName:    s.AdSetName,
		adID:         s.AdID,
		adName:       s.AdName,
		creativeID:   s.CreativeID,
	}
}

func (a *groupAccumulator) addSnapshot(s domain.WeeklySnapshot) {
	m := s.Metrics
	a.records++

	a.sums.Impressions += m.Impressions
	a.sums.Reach += m.Reach
	a.sums.Clicks += m.Clicks
	a.sums.LinkClicks += m.LinkClicks
	a.sums.Spend += m.Spend
	a.sums.PostEngagements += m.PostEngagements
	a.sums.PageEngagements += m.PageEngagements
	a.sums.PostReactions += m.PostReactions
	a.sums.Comments += m.Comments
	a.sums.Shares += m.Shares
	a.sums.VideoPlays += m.VideoPlays
	a.sums.VideoP25 += m.VideoP25
	a.sums.VideoP50 += m.VideoP50
	a.sums.VideoP75 += m.VideoP75
	a.sums.VideoP100 += m.VideoP100
	a.sums.ThruPlays += m.ThruPlays
	a.sums.Results += m.Results
	a.sums.Conversions += m.Conversions
	a.sums.ConversionValue += m.ConversionValue
	a.sums.Leads += m.Leads

	a.sums.Frequency += m.Frequency
	a.sums.CTR += m.CTR
	a.sums.CPC += m.CPC
	a.sums.CPM += m.CPM
	a.sums.CPR += m.CPR

	if a.creativeID == "" {
		a.creativeID = s.CreativeID
	}
}

func (a *groupAccumulator) addLead(l domain.Lead) {
	a.funnel.leads++
	switch l.Status {
	case domain.StatusNew:
		a.funnel.newLeads++
	case domain.StatusInProgress:
		a.funnel.inProgress++
	case domain.StatusEstimateSet:
		a.funnel.estimateSet++
	case domain.StatusVirtualQuote:
		a.funnel.virtualQuote++
	case domain.StatusProposalPresented:
		a.funnel.proposalPresented++
	case domain.StatusJobBooked:
		a.funnel.jobBooked++
	case domain.StatusUnqualified:
		a.funnel.unqualified++
	case domain.StatusEstimateCanceled:
		a.funnel.estimateCanceled++
	case domain.StatusJobLost:
		a.funnel.jobLost++
	}
	if l.JobBookedAmount > 0 {
		a.revenue += l.JobBookedAmount
	}
}

// mean is the per-record average of a summed ratio metric.
func (a *groupAccumulator) mean(sum float64) float64 {
	if a.records == 0 {
		return 0
	}
	return sum / float64(a.records)
}

// ratio returns nil instead of NaN or Inf.
func ratio(num, den float64) *float64 {
	if den == 0 {
		return nil
	}
	v := num / den
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func percent(num, den float64) *float64 {
	v := ratio(num, den)
	if v == nil {
		return nil
	}
	p := *v * 100
	return &p
}

// columnValues computes every reportable metric for a group.
var columnValues = map[domain.Metric]func(a *groupAccumulator) any{
	domain.MetricSpend:           func(a *groupAccumulator) any { return a.sums.Spend },
	domain.MetricImpressions:     func(a *groupAccumulator) any { return a.sums.Impressions },
	domain.MetricReach:           func(a *groupAccumulator) any { return a.sums.Reach },
	domain.MetricClicks:          func(a *groupAccumulator) any { return a.sums.Clicks },
	domain.MetricLinkClicks:      func(a *groupAccumulator) any { return a.sums.LinkClicks },
	domain.MetricFrequency:       func(a *groupAccumulator) any { return a.mean(a.sums.Frequency) },
	domain.MetricCTR:             func(a *groupAccumulator) any { return a.mean(a.sums.CTR) },
	domain.MetricCPC:             func(a *groupAccumulator) any { return a.mean(a.sums.CPC) },
	domain.MetricCPM:             func(a *groupAccumulator) any { return a.mean(a.sums.CPM) },
	domain.MetricCPR:             func(a *groupAccumulator) any { return a.mean(a.sums.CPR) },
	domain.MetricPostEngagements: func(a *groupAccumulator) any { return a.sums.PostEngagements },
	domain.MetricPageEngagements: func(a *groupAccumulator) any { return a.sums.PageEngagements },
	domain.MetricVideoPlays:      func(a *groupAccumulator) any { return a.sums.VideoPlays },
	domain.MetricVideoP25:        func(a *groupAccumulator) any { return a.sums.VideoP25 },
	domain.MetricVideoP50:        func(a *groupAccumulator) any { return a.sums.VideoP50 },
	domain.MetricVideoP75:        func(a *groupAccumulator) any { return a.sums.VideoP75 },
	domain.MetricVideoP100:       func(a *groupAccumulator) any { return a.sums.VideoP100 },
	domain.MetricThruPlays:       func(a *groupAccumulator) any { return a.sums.ThruPlays },
	domain.MetricResults:         func(a *groupAccumulator) any { return a.sums.Results },
	domain.MetricConversions:     func(a *groupAccumulator) any { return a.sums.Conversions },
	domain.MetricConversionValue: func(a *groupAccumulator) any { return a.sums.ConversionValue },
	domain.MetricPlatformLeads:   func(a *groupAccumulator) any { return a.sums.Leads },

	domain.MetricNumberOfLeads:              func(a *groupAccumulator) any { return a.funnel.leads },
	domain.MetricNumberOfNewLeads:           func(a *groupAccumulator) any { return a.funnel.newLeads },
	domain.MetricNumberOfInProgress:         func(a *groupAccumulator) any { return a.funnel.inProgress },
	domain.MetricNumberOfEstimateSets:       func(a *groupAccumulator) any { return a.funnel.netEstimates() },
	domain.MetricNumberOfVirtualQuotes:      func(a *groupAccumulator) any { return a.funnel.virtualQuote },
	domain.MetricNumberOfProposalsPresented: func(a *groupAccumulator) any { return a.funnel.proposalPresented },
	domain.MetricNumberOfJobsBooked:         func(a *groupAccumulator) any { return a.funnel.jobBooked },
	domain.MetricNumberOfUnqualifiedLeads:   func(a *groupAccumulator) any { return a.funnel.unqualified },
	domain.MetricNumberOfEstimatesCanceled:  func(a *groupAccumulator) any { return a.funnel.estimateCanceled },
	domain.MetricNumberOfJobsLost:           func(a *groupAccumulator) any { return a.funnel.jobLost },
	domain.MetricTotalRevenue:               func(a *groupAccumulator) any { return a.revenue },

	domain.MetricCostPerLead: func(a *groupAccumulator) any {
		return ratio(a.sums.Spend, float64(a.funnel.leads))
	},
	domain.MetricCostPerEstimateSet: func(a *groupAccumulator) any {
		return ratio(a.sums.Spend, float64(a.funnel.netEstimates()))
	},
	domain.MetricCostPerJobBooked: func(a *groupAccumulator) any {
		return ratio(a.sums.Spend, float64(a.funnel.jobBooked))
	},
	domain.MetricCostOfMarketingPercent: func(a *groupAccumulator) any {
		return percent(a.sums.Spend, a.revenue)
	},
	domain.MetricEstimateSetRate: func(a *groupAccumulator) any {
		net := a.funnel.netEstimates()
		return percent(float64(net), float64(net+a.funnel.netUnqualified()))
	},
}

// project emits the identity fields for the grouping plus the requested columns.
func (a *groupAccumulator) project(groupBy domain.GroupBy, columns domain.ColumnSet) domain.ReportRow {
	row := domain.ReportRow{
		"campaignId":   a.campaignID,
		"campaignName": a.campaignName,
	}
	if groupBy == domain.GroupByAdSet || groupBy == domain.GroupByAd {
		row["adSetId"] = a.adSetID
		row["adSetName"] = a.adSetName
	}
	if groupBy == domain.GroupByAd {
		row["adId"] = a.adID
		row["adName"] = a.adName
		row["creativeId"] = a.creativeID
	}

	for _, metric := range columns {
		if value, ok := columnValues[metric]; ok {
			row[string(metric)] = value(a)
		}
	}
	return row
}
