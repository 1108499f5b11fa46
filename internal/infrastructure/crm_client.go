package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"funnelreport/internal/domain"
	"funnelreport/pkg/logger"
	"funnelreport/pkg/metrics"

	"golang.org/x/time/rate"
)

const crmAPI = "crm"

// implements domain.CRMClient
type CRMHTTPClient struct {
	client      *http.Client
	baseURL     string
	pageSize    int
	maxRetries  int
	baseDelay   time.Duration
	logger      *logger.Logger
	metrics     *metrics.Metrics
	rateLimiter *rate.Limiter
}

// creates a new CRM client
func NewCRMClient(baseURL string, timeout time.Duration, maxRetries int, baseDelay time.Duration, ratePerSecond int, logger *logger.Logger, metrics *metrics.Metrics) *CRMHTTPClient {
	if ratePerSecond <= 0 {
		ratePerSecond = 10
	}
	return &CRMHTTPClient{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		baseURL:     strings.TrimRight(baseURL, "/"),
		pageSize:    100,
		maxRetries:  maxRetries,
		baseDelay:   baseDelay,
		logger:      logger,
		metrics:     metrics,
		rateLimiter: rate.NewLimiter(rate.Limit(ratePerSecond), ratePerSecond),
	}
}

// ListContacts fetches one page of contacts. Callers loop on Meta.NextPageURL.
// Throttling, 5xx and network failures are retried like the ads client.
func (c *CRMHTTPClient) ListContacts(ctx context.Context, token, pageURL string) (*domain.CRMContactsPage, error) {
	if strings.TrimSpace(token) == "" {
		c.metrics.RecordExternalAPIFailure(crmAPI, "auth")
		return nil, &domain.AuthError{API: crmAPI, Reason: "access token is required"}
	}

	if pageURL == "" {
		pageURL = fmt.Sprintf("%s/contacts/?limit=%d", c.baseURL, c.pageSize)
	}

	var page *domain.CRMContactsPage
	operation := func() error {
		var err error
		page, err = c.fetchContacts(ctx, token, pageURL)
		return err
	}

	notify := func(err error, wait time.Duration) {
		c.metrics.RecordExternalAPIRetry(crmAPI)
		c.logger.WithContext(ctx).WithError(err).WithField("wait", wait).Warn("Transient CRM API failure, retrying")
	}

	if err := retryTransient(ctx, operation, c.maxRetries, c.baseDelay, notify); err != nil {
		return nil, err
	}
	return page, nil
}

func (c *CRMHTTPClient) fetchContacts(ctx context.Context, token, pageURL string) (*domain.CRMContactsPage, error) {
	start := time.Now()

	// Apply rate limiting
	if err := c.rateLimiter.Wait(ctx); err != nil {
		c.metrics.RecordExternalAPIFailure(crmAPI, "rate_limit_wait")
		return nil, fmt.Errorf("rate limit wait aborted: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		c.metrics.RecordExternalAPIFailure(crmAPI, "request_creation")
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		c.metrics.RecordExternalAPIFailure(crmAPI, "network_error")
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &domain.TransientUpstreamError{UpstreamError: domain.UpstreamError{API: crmAPI}, Cause: err}
	}
	defer resp.Body.Close()

	duration := time.Since(start)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.metrics.RecordExternalAPIFailure(crmAPI, "read_body")
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.metrics.RecordExternalAPICall(crmAPI, fmt.Sprintf("error_%d", resp.StatusCode), duration)
		return nil, classifyCRMFailure(resp.StatusCode, body)
	}

	var page domain.CRMContactsPage
	if err := json.Unmarshal(body, &page); err != nil {
		c.metrics.RecordExternalAPIFailure(crmAPI, "json_parse")
		return nil, fmt.Errorf("failed to parse CRM contacts: %w", err)
	}

	c.metrics.RecordExternalAPICall(crmAPI, "success", duration)

	c.logger.WithContext(ctx).WithFields(map[string]any{
		"duration":  duration,
		"records":   len(page.Contacts),
		"has_next":  page.Meta.NextPageURL != "",
		"page_size": c.pageSize,
	}).Debug("Fetched CRM contacts page")

	return &page, nil
}

func classifyCRMFailure(status int, body []byte) error {
	upstream := domain.UpstreamError{API: crmAPI, StatusCode: status, Body: truncate(string(body), 1024)}

	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return &domain.AuthError{API: crmAPI, Reason: truncate(string(body), 256)}
	case status == http.StatusTooManyRequests, status >= http.StatusInternalServerError:
		return &domain.TransientUpstreamError{UpstreamError: upstream}
	}
	return &upstream
}
