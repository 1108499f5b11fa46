package delivery

import (
	"context"
	"errors"
	"mime"
	"net/http"
	"time"

	"funnelreport/internal/delivery/middleware"
	"funnelreport/internal/domain"
	"funnelreport/internal/usecase"
	"funnelreport/pkg/logger"

	"github.com/gin-gonic/gin"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// handles HTTP requests
type HTTPHandlers struct {
	reports  *usecase.ReportService
	syncer   *usecase.SyncService
	leadSync *usecase.LeadSyncService
	leads    *usecase.LeadService
	logger   *logger.Logger
}

// creates new HTTP handlers
func NewHTTPHandlers(
	reports *usecase.ReportService,
	syncer *usecase.SyncService,
	leadSync *usecase.LeadSyncService,
	leads *usecase.LeadService,
	logger *logger.Logger,
) *HTTPHandlers {
	return &HTTPHandlers{
		reports:  reports,
		syncer:   syncer,
		leadSync: leadSync,
		leads:    leads,
		logger:   logger,
	}
}

// GenerateReport aggregates snapshots and leads into report rows
func (h *HTTPHandlers) GenerateReport(c *gin.Context) {
	var req domain.ReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, &domain.ValidationError{Field: "body", Message: err.Error()})
		return
	}

	result, err := h.reports.Generate(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"rows":                  result.Rows,
		"availableZipCodes":     result.AvailableZipCodes,
		"availableServiceTypes": result.AvailableServiceTypes,
		"generatedAt":           result.GeneratedAt.Format(time.RFC3339),
		"request_id":            requestID(c),
	})
}

// ExportReport renders the same report as an XLSX download
func (h *HTTPHandlers) ExportReport(c *gin.Context) {
	var req domain.ReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, &domain.ValidationError{Field: "body", Message: err.Error()})
		return
	}

	data, name, err := h.reports.Export(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": name})
	if disposition == "" {
		disposition = `attachment; filename="report.xlsx"`
	}
	c.Header("Content-Disposition", disposition)
	c.Data(http.StatusOK, xlsxContentType, data)
}

// SyncTenant runs a blocking snapshot sync for the requested range
func (h *HTTPHandlers) SyncTenant(c *gin.Context) {
	clientID := c.Param("clientId")
	start, end, err := parseRange(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	log := h.logger.WithTenant(c.Request.Context(), clientID)
	log.Info("Starting manual snapshot sync")

	result, err := h.syncer.SyncRange(c.Request.Context(), clientID, start, end)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":    "Sync completed successfully",
		"result":     result,
		"request_id": requestID(c),
	})
}

// SyncStatus reports missing weeks and current-week staleness without syncing
func (h *HTTPHandlers) SyncStatus(c *gin.Context) {
	start, end, err := parseRange(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	report, err := h.syncer.CheckFreshness(c.Request.Context(), c.Param("clientId"), start, end)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"freshness":  report,
		"needs_sync": report.NeedsSync(),
		"request_id": requestID(c),
	})
}

// SyncLeads pulls CRM contacts for one tenant
func (h *HTTPHandlers) SyncLeads(c *gin.Context) {
	result, err := h.leadSync.SyncTenant(c.Request.Context(), c.Param("clientId"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":    "Lead sync completed successfully",
		"result":     result,
		"request_id": requestID(c),
	})
}

// UpdateLead applies a partial edit to a lead
func (h *HTTPHandlers) UpdateLead(c *gin.Context) {
	var update domain.LeadUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		h.respondError(c, &domain.ValidationError{Field: "body", Message: err.Error()})
		return
	}

	lead, err := h.leads.Update(c.Request.Context(), c.Param("clientId"), c.Param("leadId"), update)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"lead":       lead,
		"request_id": requestID(c),
	})
}

// GetAPIInfo returns API v1 information and available endpoints
func (h *HTTPHandlers) GetAPIInfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"api_version": "v1",
		"service":     "Funnel Report Service",
		"description": "Ad performance and CRM funnel reporting",
		"endpoints": gin.H{
			"reports": gin.H{
				"generate": "POST /api/v1/reports",
				"export":   "POST /api/v1/reports/export",
			},
			"sync": gin.H{
				"run":    "POST /api/v1/sync/:clientId?startDate=YYYY-MM-DD&endDate=YYYY-MM-DD",
				"status": "GET /api/v1/sync/:clientId/status?startDate=YYYY-MM-DD&endDate=YYYY-MM-DD",
			},
			"leads": gin.H{
				"sync":   "POST /api/v1/leads/sync/:clientId",
				"update": "PATCH /api/v1/leads/:clientId/:leadId",
			},
		},
		"request_id": requestID(c),
	})
}

// HealthCheck returns the health status of the service
func (h *HTTPHandlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "healthy",
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"service":    "funnel-report",
		"request_id": requestID(c),
	})
}

// respondError maps domain errors to status codes and logs server-side failures
func (h *HTTPHandlers) respondError(c *gin.Context, err error) {
	status, title := statusFor(err)

	log := h.logger.WithContext(c.Request.Context()).WithError(err).WithField("status", status)
	if status >= http.StatusInternalServerError {
		log.Error(title)
	} else {
		log.Warn(title)
	}

	_ = c.Error(err)
	c.JSON(status, gin.H{
		"error":      title,
		"message":    err.Error(),
		"request_id": requestID(c),
	})
}

func statusFor(err error) (int, string) {
	var validationErr *domain.ValidationError
	var authErr *domain.AuthError
	var transientErr *domain.TransientUpstreamError
	var upstreamErr *domain.UpstreamError

	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, "Invalid request"
	case errors.As(err, &authErr):
		return http.StatusUnauthorized, "Upstream authentication failed"
	case domain.IsNotFound(err):
		return http.StatusNotFound, "Not found"
	case errors.Is(err, domain.ErrSyncInProgress):
		return http.StatusConflict, "Sync already in progress"
	case errors.As(err, &transientErr), errors.As(err, &upstreamErr):
		return http.StatusBadGateway, "Upstream API error"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "Request timeout"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

// parseRange reads startDate/endDate query parameters. Both default to the
// current calendar week.
func parseRange(c *gin.Context) (time.Time, time.Time, error) {
	week := domain.WeekOf(time.Now())
	start, end := week.Start, domain.Day(time.Now())

	var err error
	if v := c.Query("startDate"); v != "" {
		if start, err = domain.ParseDate("startDate", v); err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	if v := c.Query("endDate"); v != "" {
		if end, err = domain.ParseDate("endDate", v); err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, &domain.ValidationError{Field: "endDate", Message: "must not be before startDate"}
	}
	return start, end, nil
}

func requestID(c *gin.Context) string {
	return c.GetString(middleware.RequestIDKey)
}
