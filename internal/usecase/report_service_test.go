package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"funnelreport/internal/domain"
	"funnelreport/internal/infrastructure"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reportFixture struct {
	service   *ReportService
	snapshots *infrastructure.SnapshotRepository
	leads     *infrastructure.LeadRepository
	freshness *recordingFreshness
}

func newReportFixture(t *testing.T, snapshots []domain.WeeklySnapshot, leads []domain.Lead) *reportFixture {
	t.Helper()
	log := testLogger()
	snapRepo := infrastructure.NewSnapshotRepository(log)
	leadRepo := infrastructure.NewLeadRepository(log)
	require.NoError(t, snapRepo.UpsertMany(context.Background(), snapshots))
	require.NoError(t, leadRepo.Upsert(context.Background(), leads))

	freshness := &recordingFreshness{}
	service := NewReportService(snapRepo, leadRepo, freshness, SyncBlocking, log, testMetrics())
	return &reportFixture{service: service, snapshots: snapRepo, leads: leadRepo, freshness: freshness}
}

func reportRequest(groupBy domain.GroupBy, columns ...domain.Metric) domain.ReportRequest {
	cols := make(map[string]bool, len(columns))
	for _, c := range columns {
		cols[string(c)] = true
	}
	return domain.ReportRequest{
		ClientID: "t1",
		GroupBy:  groupBy,
		Columns:  cols,
		Filters:  domain.ReportFilters{StartDate: "2024-03-04", EndDate: "2024-03-10"},
	}
}

var leadSeq int

func testLead(adName string, status domain.LeadStatus) domain.Lead {
	leadSeq++
	return domain.Lead{
		ClientID:     "t1",
		CRMContactID: fmt.Sprintf("contact-%d", leadSeq),
		AdName:       adName,
		Status:       status,
		CreatedDate:  date("2024-03-05"),
	}
}

// floatValue reads a plain or pointer metric; ok is false for a nil pointer.
func floatValue(t *testing.T, row domain.ReportRow, key string) (float64, bool) {
	t.Helper()
	switch v := row[key].(type) {
	case float64:
		return v, true
	case *float64:
		if v == nil {
			return 0, false
		}
		return *v, true
	default:
		t.Fatalf("metric %s has unexpected type %T", key, row[key])
		return 0, false
	}
}

func TestReportPlatformRatios(t *testing.T) {
	for _, groupBy := range []domain.GroupBy{domain.GroupByCampaign, domain.GroupByAdSet, domain.GroupByAd} {
		t.Run(string(groupBy), func(t *testing.T) {
			f := newReportFixture(t, []domain.WeeklySnapshot{
				weekSnapshot("t1", "Spring", "Homeowners", "Video A", "2024-03-04", domain.AdMetrics{Spend: 100, Impressions: 1000, Clicks: 20}),
			}, nil)

			result, err := f.service.Generate(context.Background(), reportRequest(groupBy,
				domain.MetricCTR, domain.MetricCPC, domain.MetricCostPerLead, domain.MetricNumberOfLeads))
			require.NoError(t, err)
			require.Len(t, result.Rows, 1)
			row := result.Rows[0]

			ctr, _ := floatValue(t, row, string(domain.MetricCTR))
			assert.InDelta(t, 2.0, ctr, 1e-9)
			cpc, _ := floatValue(t, row, string(domain.MetricCPC))
			assert.InDelta(t, 5.0, cpc, 1e-9)

			assert.Equal(t, 0, row[string(domain.MetricNumberOfLeads)])
			_, ok := floatValue(t, row, string(domain.MetricCostPerLead))
			assert.False(t, ok, "cost per lead is undefined without leads")
		})
	}
}

func TestReportFunnelMetrics(t *testing.T) {
	booked := testLead("Video A", domain.StatusJobBooked)
	booked.JobBookedAmount = 1000
	leads := []domain.Lead{
		testLead("Video A", domain.StatusEstimateSet),
		booked,
		testLead("Video A", domain.StatusUnqualified),
		testLead("Video A", domain.StatusJobLost),
		testLead("Video A", domain.StatusNew),
		testLead("Video A", domain.StatusInProgress),
	}
	f := newReportFixture(t, []domain.WeeklySnapshot{
		weekSnapshot("t1", "Spring", "Homeowners", "Video A", "2024-03-04", domain.AdMetrics{Spend: 100}),
	}, leads)

	result, err := f.service.Generate(context.Background(), reportRequest(domain.GroupByAd))
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	row := result.Rows[0]

	assert.Equal(t, 6, row[string(domain.MetricNumberOfLeads)])
	assert.Equal(t, 2, row[string(domain.MetricNumberOfEstimateSets)])
	assert.Equal(t, 1, row[string(domain.MetricNumberOfJobsBooked)])
	assert.Equal(t, 1, row[string(domain.MetricNumberOfUnqualifiedLeads)])
	assert.Equal(t, 1000.0, row[string(domain.MetricTotalRevenue)])

	// new and in-progress leads are not counted in the rate
	rate, ok := floatValue(t, row, string(domain.MetricEstimateSetRate))
	require.True(t, ok)
	assert.InDelta(t, 50.0, rate, 1e-9)

	cpl, ok := floatValue(t, row, string(domain.MetricCostPerLead))
	require.True(t, ok)
	assert.InDelta(t, 100.0/6, cpl, 1e-9)

	cpe, ok := floatValue(t, row, string(domain.MetricCostPerEstimateSet))
	require.True(t, ok)
	assert.InDelta(t, 50.0, cpe, 1e-9)

	com, ok := floatValue(t, row, string(domain.MetricCostOfMarketingPercent))
	require.True(t, ok)
	assert.InDelta(t, 10.0, com, 1e-9)

	assert.Equal(t, "aid-Video A", row["adId"])
	assert.Equal(t, "Homeowners", row["adSetName"])
	assert.Contains(t, row, "creativeId")
}

func TestReportCostMetricsNilWithoutLeads(t *testing.T) {
	f := newReportFixture(t, []domain.WeeklySnapshot{
		weekSnapshot("t1", "Spring", "Homeowners", "Video A", "2024-03-04", domain.AdMetrics{Spend: 100}),
	}, nil)

	result, err := f.service.Generate(context.Background(), reportRequest(domain.GroupByCampaign))
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)

	for _, metric := range []domain.Metric{
		domain.MetricCostPerLead,
		domain.MetricCostPerEstimateSet,
		domain.MetricCostPerJobBooked,
		domain.MetricCostOfMarketingPercent,
		domain.MetricEstimateSetRate,
	} {
		_, ok := floatValue(t, result.Rows[0], string(metric))
		assert.False(t, ok, "%s should be nil", metric)
	}
}

func TestReportRowsSortedBySpend(t *testing.T) {
	f := newReportFixture(t, []domain.WeeklySnapshot{
		weekSnapshot("t1", "Low", "S1", "A1", "2024-03-04", domain.AdMetrics{Spend: 30}),
		weekSnapshot("t1", "High", "S2", "A2", "2024-03-04", domain.AdMetrics{Spend: 100}),
		weekSnapshot("t1", "Mid", "S3", "A3", "2024-03-04", domain.AdMetrics{Spend: 50}),
		weekSnapshot("t1", "Mid", "S3", "A4", "2024-03-04", domain.AdMetrics{Spend: 10}),
	}, nil)

	result, err := f.service.Generate(context.Background(), reportRequest(domain.GroupByCampaign, domain.MetricSpend))
	require.NoError(t, err)
	require.Len(t, result.Rows, 3)

	var names []any
	prev := -1.0
	for i, row := range result.Rows {
		names = append(names, row["campaignName"])
		spend := row[string(domain.MetricSpend)].(float64)
		if i > 0 {
			assert.LessOrEqual(t, spend, prev)
		}
		prev = spend
	}
	assert.Equal(t, []any{"High", "Mid", "Low"}, names)
	assert.Equal(t, 60.0, result.Rows[1][string(domain.MetricSpend)])
}

func TestReportProjectsOnlyRequestedColumns(t *testing.T) {
	f := newReportFixture(t, []domain.WeeklySnapshot{
		weekSnapshot("t1", "Spring", "Homeowners", "Video A", "2024-03-04", domain.AdMetrics{Spend: 100}),
	}, nil)

	result, err := f.service.Generate(context.Background(), reportRequest(domain.GroupByCampaign, domain.MetricSpend))
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)

	row := result.Rows[0]
	assert.Len(t, row, 3)
	assert.Equal(t, "cid-Spring", row["campaignId"])
	assert.NotContains(t, row, "adSetId")
	assert.Equal(t, domain.ColumnSet{domain.MetricSpend}, result.Columns)
}

func TestReportAttribution(t *testing.T) {
	withAdSet := testLead("video a", domain.StatusNew)
	withAdSet.AdSetName = "Renters"
	leads := []domain.Lead{
		testLead("Video A", domain.StatusNew),
		testLead("VIDEO A", domain.StatusEstimateSet),
		withAdSet,
		testLead("Deleted Ad", domain.StatusNew),
		testLead("", domain.StatusNew),
	}
	f := newReportFixture(t, []domain.WeeklySnapshot{
		weekSnapshot("t1", "Spring", "Homeowners", "Video A", "2024-03-04", domain.AdMetrics{Spend: 100}),
		weekSnapshot("t1", "Spring", "Renters", "Image B", "2024-03-04", domain.AdMetrics{Spend: 40}),
	}, leads)

	result, err := f.service.Generate(context.Background(), reportRequest(domain.GroupByAdSet, domain.MetricNumberOfLeads))
	require.NoError(t, err)
	require.Len(t, result.Rows, 2)

	byAdSet := map[any]domain.ReportRow{}
	for _, row := range result.Rows {
		byAdSet[row["adSetName"]] = row
	}
	// names resolve through the ad name map; the lead's own ad set wins
	assert.Equal(t, 2, byAdSet["Homeowners"][string(domain.MetricNumberOfLeads)])
	assert.Equal(t, 1, byAdSet["Renters"][string(domain.MetricNumberOfLeads)])
}

func TestReportPerRecordMeanForRatios(t *testing.T) {
	// CTR 1% on 1000 impressions and 3% on 100 impressions. The weighted CTR
	// would be about 1.18%; ratio metrics are averaged per record instead.
	f := newReportFixture(t, []domain.WeeklySnapshot{
		weekSnapshot("t1", "Spring", "Homeowners", "Video A", "2024-03-04", domain.AdMetrics{Impressions: 1000, Clicks: 10, Spend: 10}),
		weekSnapshot("t1", "Spring", "Homeowners", "Video A", "2024-03-11", domain.AdMetrics{Impressions: 100, Clicks: 3, Spend: 10}),
	}, nil)

	req := reportRequest(domain.GroupByAd, domain.MetricCTR, domain.MetricImpressions)
	req.Filters.EndDate = "2024-03-17"
	result, err := f.service.Generate(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)

	ctr, _ := floatValue(t, result.Rows[0], string(domain.MetricCTR))
	assert.InDelta(t, 2.0, ctr, 1e-9)
	assert.Equal(t, int64(1100), result.Rows[0][string(domain.MetricImpressions)])
}

func TestReportNameFiltersAreLiteral(t *testing.T) {
	f := newReportFixture(t, []domain.WeeklySnapshot{
		weekSnapshot("t1", "Spring (2024) Promo", "S1", "A1", "2024-03-04", domain.AdMetrics{Spend: 10}),
		weekSnapshot("t1", "Spring 2024", "S2", "A2", "2024-03-04", domain.AdMetrics{Spend: 20}),
		weekSnapshot("t1", "Fall", "S3", "A3", "2024-03-04", domain.AdMetrics{Spend: 30}),
	}, nil)

	req := reportRequest(domain.GroupByCampaign, domain.MetricSpend)
	req.Filters.CampaignName = "SPRING (2024)"
	result, err := f.service.Generate(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, "Spring (2024) Promo", result.Rows[0]["campaignName"])

	req = reportRequest(domain.GroupByCampaign, domain.MetricSpend)
	req.Filters.AdName = ".*"
	result, err = f.service.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, result.Rows)
}

func TestReportLeadFilters(t *testing.T) {
	a := testLead("Video A", domain.StatusNew)
	a.Zip, a.Service, a.LeadScore = "30301", "Roofing", 3
	b := testLead("Video A", domain.StatusEstimateSet)
	b.Zip, b.Service, b.LeadScore = "30302", "Siding", 8
	c := testLead("Video A", domain.StatusJobBooked)
	c.Zip, c.Service, c.LeadScore = "30301", "roofing", 9
	d := testLead("Video A", domain.StatusNew)

	f := newReportFixture(t, []domain.WeeklySnapshot{
		weekSnapshot("t1", "Spring", "Homeowners", "Video A", "2024-03-04", domain.AdMetrics{Spend: 100}),
	}, []domain.Lead{a, b, c, d})

	count := func(mutate func(*domain.ReportFilters)) any {
		t.Helper()
		req := reportRequest(domain.GroupByCampaign, domain.MetricNumberOfLeads)
		mutate(&req.Filters)
		result, err := f.service.Generate(context.Background(), req)
		require.NoError(t, err)
		require.Len(t, result.Rows, 1)
		// available values come from every lead in range, not the filtered set
		assert.Equal(t, []string{"30301", "30302"}, result.AvailableZipCodes)
		assert.Equal(t, []string{"Roofing", "Siding", "roofing"}, result.AvailableServiceTypes)
		return result.Rows[0][string(domain.MetricNumberOfLeads)]
	}

	yes, no := true, false
	minScore, maxScore := 5.0, 8.0

	assert.Equal(t, 4, count(func(*domain.ReportFilters) {}))
	assert.Equal(t, 2, count(func(rf *domain.ReportFilters) { rf.ZipCode = "30301" }))
	assert.Equal(t, 2, count(func(rf *domain.ReportFilters) { rf.ServiceType = "ROOF" }))
	assert.Equal(t, 1, count(func(rf *domain.ReportFilters) { rf.LeadScore = &domain.Range{Min: &minScore, Max: &maxScore} }))
	assert.Equal(t, 2, count(func(rf *domain.ReportFilters) { rf.EstimateSetLeads = &yes }))
	assert.Equal(t, 1, count(func(rf *domain.ReportFilters) { rf.JobBookedLeads = &yes }))
	assert.Equal(t, 4, count(func(rf *domain.ReportFilters) { rf.JobBookedLeads = &no }))
}

func TestReportValidation(t *testing.T) {
	f := newReportFixture(t, nil, nil)
	minScore, maxScore := 9.0, 1.0

	tests := []struct {
		name      string
		mutate    func(*domain.ReportRequest)
		wantField string
	}{
		{"missing client", func(r *domain.ReportRequest) { r.ClientID = "" }, "clientId"},
		{"bad group by", func(r *domain.ReportRequest) { r.GroupBy = "week" }, "groupBy"},
		{"missing start", func(r *domain.ReportRequest) { r.Filters.StartDate = "" }, "startDate"},
		{"malformed end", func(r *domain.ReportRequest) { r.Filters.EndDate = "03/10/2024" }, "endDate"},
		{"end before start", func(r *domain.ReportRequest) { r.Filters.EndDate = "2024-03-01" }, "endDate"},
		{"unknown column", func(r *domain.ReportRequest) { r.Columns = map[string]bool{"fb_magic": true} }, "columns"},
		{"inverted score range", func(r *domain.ReportRequest) {
			r.Filters.LeadScore = &domain.Range{Min: &minScore, Max: &maxScore}
		}, "leadScore"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := reportRequest(domain.GroupByCampaign)
			tt.mutate(&req)
			_, err := f.service.Generate(context.Background(), req)
			var vErr *domain.ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.wantField, vErr.Field)
		})
	}
	assert.Empty(t, f.freshness.modes, "invalid requests never trigger a sync")
}

func TestReportFreshness(t *testing.T) {
	f := newReportFixture(t, []domain.WeeklySnapshot{
		weekSnapshot("t1", "Spring", "Homeowners", "Video A", "2024-03-04", domain.AdMetrics{Spend: 100}),
	}, nil)
	f.freshness.err = errors.New("ads API down")

	result, err := f.service.Generate(context.Background(), reportRequest(domain.GroupByCampaign))
	require.NoError(t, err)
	assert.Len(t, result.Rows, 1)
	assert.Equal(t, []SyncMode{SyncBlocking}, f.freshness.modes)
}

func TestReportStoreFailureAborts(t *testing.T) {
	log := testLogger()
	service := NewReportService(failingSnapshotRepo{}, infrastructure.NewLeadRepository(log), nil, SyncBackground, log, testMetrics())

	result, err := service.Generate(context.Background(), reportRequest(domain.GroupByCampaign))
	assert.Error(t, err)
	assert.Nil(t, result)
}
