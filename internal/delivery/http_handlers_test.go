package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"funnelreport/internal/domain"
	"funnelreport/internal/infrastructure"
	"funnelreport/internal/usecase"
	"funnelreport/pkg/logger"
	"funnelreport/pkg/metrics"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	router *gin.Engine
	leads  *infrastructure.LeadRepository
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"Invalid parameter","code":100}}`))
	}))
	t.Cleanup(upstream.Close)

	log := logger.New("error")
	log.SetOutput(io.Discard)
	m := metrics.NewWithRegistry(prometheus.NewRegistry())

	snapshots := infrastructure.NewSnapshotRepository(log)
	leads := infrastructure.NewLeadRepository(log)
	tenants := infrastructure.NewTenantDirectory([]infrastructure.TenantCredentials{
		{ID: "t1", AdAccountID: "act_1", AdsAccessToken: "ads-token", CRMAccessToken: "crm-token"},
		{ID: "no-creds"},
	})

	week := domain.WeekOf(time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC))
	require.NoError(t, snapshots.UpsertMany(context.Background(), []domain.WeeklySnapshot{{
		TenantID: "t1", CampaignID: "c1", CampaignName: "Spring", AdSetID: "s1", AdSetName: "Homeowners",
		AdID: "a1", AdName: "Video A", Metrics: domain.AdMetrics{Spend: 100},
		WeekStart: week.Start, WeekEnd: week.End, SavedAt: week.Start,
	}}))

	ads := infrastructure.NewAdsClient(upstream.URL, time.Second, 0, time.Millisecond, 1000, log, m)
	crm := infrastructure.NewCRMClient(upstream.URL, time.Second, 0, time.Millisecond, 1000, log, m)
	guard := usecase.NewKeyedGuard()
	cache := usecase.NewCreativeCache(infrastructure.NewCreativeRepository(log), ads, log, m, 0, 0)

	syncer := usecase.NewSyncService(snapshots, tenants, ads, cache, guard, log, m, usecase.SyncOptions{})
	reports := usecase.NewReportService(snapshots, leads, nil, usecase.SyncBackground, log, m)
	leadSync := usecase.NewLeadSyncService(crm, leads, snapshots, tenants, guard, log, m, 0)
	leadService := usecase.NewLeadService(leads, log)

	handlers := NewHTTPHandlers(reports, syncer, leadSync, leadService, log)
	router := NewHTTPRouter(handlers, log, m, 5*time.Second).SetupRoutes()

	return &testServer{router: router, leads: leads}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", "req-1")

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func reportBody(groupBy string) map[string]any {
	return map[string]any{
		"clientId": "t1",
		"groupBy":  groupBy,
		"columns":  map[string]bool{"fb_spend": true, "costPerLead": true},
		"filters":  map[string]any{"startDate": "2024-03-04", "endDate": "2024-03-10"},
	}
}

func TestGenerateReport(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPost, "/api/v1/reports", reportBody("campaign"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "req-1", rec.Header().Get("X-Request-ID"))

	body := decode(t, rec)
	assert.Equal(t, "req-1", body["request_id"])
	rows := body["rows"].([]any)
	require.Len(t, rows, 1)

	row := rows[0].(map[string]any)
	assert.Equal(t, "Spring", row["campaignName"])
	assert.Equal(t, 100.0, row["fb_spend"])
	assert.Nil(t, row["costPerLead"])
	assert.Contains(t, row, "costPerLead")
}

func TestGenerateReportValidation(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPost, "/api/v1/reports", reportBody("week"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "Invalid request", body["error"])
	assert.Equal(t, "req-1", body["request_id"])

	req := httptest.NewRequest(http.MethodPost, "/api/v1/reports", bytes.NewBufferString("{not json"))
	raw := httptest.NewRecorder()
	srv.router.ServeHTTP(raw, req)
	assert.Equal(t, http.StatusBadRequest, raw.Code)
}

func TestExportReport(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPost, "/api/v1/reports/export", reportBody("ad"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, xlsxContentType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "report_t1_ad_2024-03-04_2024-03-10.xlsx")
	assert.NotZero(t, rec.Body.Len())

	body := reportBody("campaign")
	body["clientId"] = `t"1`
	rec = srv.do(t, http.MethodPost, "/api/v1/reports/export", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	disposition, params, err := mime.ParseMediaType(rec.Header().Get("Content-Disposition"))
	require.NoError(t, err)
	assert.Equal(t, "attachment", disposition)
	assert.Equal(t, `report_t"1_campaign_2024-03-04_2024-03-10.xlsx`, params["filename"])
}

func TestSyncEndpoints(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodGet, "/api/v1/sync/t1/status?startDate=2024-02-26&endDate=2024-03-10", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	freshness := decode(t, rec)["freshness"].(map[string]any)
	assert.Equal(t, []any{"2024-02-26"}, freshness["missing_weeks"])

	rec = srv.do(t, http.MethodGet, "/api/v1/sync/t1/status?startDate=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = srv.do(t, http.MethodPost, "/api/v1/sync/no-creds?startDate=2024-03-04&endDate=2024-03-10", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// the ads API rejects the request
	rec = srv.do(t, http.MethodPost, "/api/v1/sync/t1?startDate=2024-03-04&endDate=2024-03-10", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "Upstream API error", decode(t, rec)["error"])

	rec = srv.do(t, http.MethodPost, "/api/v1/leads/sync/no-creds", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateLead(t *testing.T) {
	srv := newTestServer(t)
	require.NoError(t, srv.leads.Upsert(context.Background(), []domain.Lead{{
		ClientID: "t1", CRMContactID: "c1", Status: domain.StatusEstimateSet, CreatedDate: time.Now(),
	}}))
	lead, err := srv.leads.GetByCRMContactID(context.Background(), "t1", "c1")
	require.NoError(t, err)

	path := fmt.Sprintf("/api/v1/leads/t1/%s", lead.ID)

	rec := srv.do(t, http.MethodPatch, path, map[string]any{"status": "job_booked", "job_booked_amount": 2500})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode(t, rec)["lead"].(map[string]any)
	assert.Equal(t, "job_booked", updated["status"])
	assert.Equal(t, 2500.0, updated["job_booked_amount"])

	rec = srv.do(t, http.MethodPatch, path, map[string]any{"proposal_amount": -5})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = srv.do(t, http.MethodPatch, "/api/v1/leads/t2/"+lead.ID, map[string]any{"status": "new"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&domain.ValidationError{Field: "x"}, http.StatusBadRequest},
		{&domain.AuthError{API: "ads"}, http.StatusUnauthorized},
		{fmt.Errorf("wrapped: %w", &domain.NotFoundError{Resource: "tenant"}), http.StatusNotFound},
		{fmt.Errorf("wrapped: %w", domain.ErrSyncInProgress), http.StatusConflict},
		{&domain.UpstreamError{API: "crm", StatusCode: 500}, http.StatusBadGateway},
		{&domain.TransientUpstreamError{UpstreamError: domain.UpstreamError{API: "ads", StatusCode: 429}}, http.StatusBadGateway},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{fmt.Errorf("db down"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		status, _ := statusFor(tt.err)
		assert.Equal(t, tt.want, status, tt.err.Error())
	}
}

func TestHealthCheck(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode(t, rec)["status"])
}
