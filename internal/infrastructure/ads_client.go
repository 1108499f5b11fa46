package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"funnelreport/internal/domain"
	"funnelreport/pkg/logger"
	"funnelreport/pkg/metrics"

	"github.com/samber/lo"
	"golang.org/x/time/rate"
)

const (
	adsAPI = "ads"

	// multi-ID lookups accept at most this many ids per call
	maxIDsPerCall = 50
)

// graph error codes that signal throttling
var rateLimitCodes = map[int]bool{4: true, 17: true, 32: true, 613: true, 80004: true}

// implements domain.AdsAPIClient against the ads platform's graph API
type AdsClient struct {
	client      *http.Client
	baseURL     string
	maxRetries  int
	baseDelay   time.Duration
	logger      *logger.Logger
	metrics     *metrics.Metrics
	rateLimiter *rate.Limiter
}

// creates a new ads API client
func NewAdsClient(baseURL string, timeout time.Duration, maxRetries int, baseDelay time.Duration, ratePerSecond int, logger *logger.Logger, metrics *metrics.Metrics) *AdsClient {
	if ratePerSecond <= 0 {
		ratePerSecond = 20
	}
	return &AdsClient{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		baseURL:     strings.TrimRight(baseURL, "/"),
		maxRetries:  maxRetries,
		baseDelay:   baseDelay,
		logger:      logger,
		metrics:     metrics,
		rateLimiter: rate.NewLimiter(rate.Limit(ratePerSecond), ratePerSecond),
	}
}

type graphErrorBody struct {
	Error struct {
		Message     string `json:"message"`
		Type        string `json:"type"`
		Code        int    `json:"code"`
		IsTransient bool   `json:"is_transient"`
	} `json:"error"`
}

// FetchPage performs one GET against path with the access token injected.
// Rate-limit and transient failures are retried with delays of
// 2^attempt * baseDelay; any other failure is returned immediately.
func (c *AdsClient) FetchPage(ctx context.Context, path string, params url.Values, token string) (json.RawMessage, error) {
	if strings.TrimSpace(token) == "" {
		c.metrics.RecordExternalAPIFailure(adsAPI, "auth")
		return nil, &domain.AuthError{API: adsAPI, Reason: "access token is required"}
	}

	endpoint := c.endpoint(path, params, token)

	var body json.RawMessage
	operation := func() error {
		var err error
		body, err = c.do(ctx, endpoint)
		return err
	}

	notify := func(err error, wait time.Duration) {
		c.metrics.RecordExternalAPIRetry(adsAPI)
		c.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"path": path,
			"wait": wait,
		}).Warn("Transient ads API failure, retrying")
	}

	if err := retryTransient(ctx, operation, c.maxRetries, c.baseDelay, notify); err != nil {
		return nil, err
	}
	return body, nil
}

func (c *AdsClient) endpoint(path string, params url.Values, token string) string {
	query := url.Values{}
	for key, values := range params {
		query[key] = append([]string(nil), values...)
	}
	query.Set("access_token", token)

	base := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		base = path
	}
	return base + "?" + query.Encode()
}

func (c *AdsClient) do(ctx context.Context, endpoint string) (json.RawMessage, error) {
	start := time.Now()

	// Apply rate limiting
	if err := c.rateLimiter.Wait(ctx); err != nil {
		c.metrics.RecordExternalAPIFailure(adsAPI, "rate_limit_wait")
		return nil, fmt.Errorf("rate limit wait aborted: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		c.metrics.RecordExternalAPIFailure(adsAPI, "request_creation")
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.metrics.RecordExternalAPIFailure(adsAPI, "network_error")
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &domain.TransientUpstreamError{UpstreamError: domain.UpstreamError{API: adsAPI}, Cause: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	duration := time.Since(start)
	if err != nil {
		c.metrics.RecordExternalAPIFailure(adsAPI, "read_body")
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		c.metrics.RecordExternalAPICall(adsAPI, "success", duration)
		return body, nil
	}

	c.metrics.RecordExternalAPICall(adsAPI, fmt.Sprintf("error_%d", resp.StatusCode), duration)
	return nil, classifyAdsFailure(resp.StatusCode, body)
}

func classifyAdsFailure(status int, body []byte) error {
	upstream := domain.UpstreamError{API: adsAPI, StatusCode: status, Body: truncate(string(body), 1024)}

	var graphErr graphErrorBody
	_ = json.Unmarshal(body, &graphErr)

	switch {
	case status == http.StatusTooManyRequests,
		graphErr.Error.IsTransient,
		rateLimitCodes[graphErr.Error.Code]:
		return &domain.TransientUpstreamError{UpstreamError: upstream}
	case status == http.StatusUnauthorized, graphErr.Error.Code == 190:
		return &domain.AuthError{API: adsAPI, Reason: graphErr.Error.Message}
	}
	return &upstream
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

type graphPaging struct {
	Cursors struct {
		After string `json:"after"`
	} `json:"cursors"`
	Next string `json:"next"`
}

type insightsPage struct {
	Data   []insightRow `json:"data"`
	Paging graphPaging  `json:"paging"`
}

var insightFields = strings.Join([]string{
	"campaign_id", "campaign_name", "adset_id", "adset_name", "ad_id", "ad_name",
	"impressions", "reach", "frequency", "clicks", "inline_link_clicks", "spend",
	"ctr", "cpc", "cpm", "actions", "conversions", "conversion_values",
	"video_play_actions", "video_p25_watched_actions", "video_p50_watched_actions",
	"video_p75_watched_actions", "video_p100_watched_actions", "video_thruplay_watched_actions",
}, ",")

// FetchWeeklyInsights fetches ad-level insights for one calendar week, following cursors.
func (c *AdsClient) FetchWeeklyInsights(ctx context.Context, adAccountID, token string, week domain.Week) ([]domain.WeeklySnapshot, error) {
	timeRange, _ := json.Marshal(map[string]string{"since": week.StartString(), "until": week.EndString()})

	params := url.Values{}
	params.Set("level", "ad")
	params.Set("fields", insightFields)
	params.Set("time_range", string(timeRange))
	params.Set("limit", "500")

	path := "act_" + strings.TrimPrefix(adAccountID, "act_") + "/insights"

	var snapshots []domain.WeeklySnapshot
	seen := map[string]bool{}
	for {
		raw, err := c.FetchPage(ctx, path, params, token)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch insights for week %s: %w", week.StartString(), err)
		}

		var page insightsPage
		if err := json.Unmarshal(raw, &page); err != nil {
			c.metrics.RecordExternalAPIFailure(adsAPI, "json_parse")
			return nil, fmt.Errorf("failed to parse insights page: %w", err)
		}

		for _, row := range page.Data {
			snapshots = append(snapshots, row.toSnapshot())
		}

		after := page.Paging.Cursors.After
		if page.Paging.Next == "" || after == "" || seen[after] {
			break
		}
		seen[after] = true
		params.Set("after", after)
	}

	c.logger.WithContext(ctx).WithFields(map[string]any{
		"ad_account_id": adAccountID,
		"week_start":    week.StartString(),
		"records":       len(snapshots),
	}).Info("Fetched weekly insights")

	return snapshots, nil
}

type adDetailsRow struct {
	ID       string `json:"id"`
	Creative struct {
		ID              string `json:"id"`
		Title           string `json:"title"`
		Body            string `json:"body"`
		ObjectStorySpec struct {
			LinkData struct {
				CallToAction struct {
					Value struct {
						LeadGenFormID string `json:"lead_gen_form_id"`
					} `json:"value"`
				} `json:"call_to_action"`
			} `json:"link_data"`
		} `json:"object_story_spec"`
	} `json:"creative"`
}

// FetchAdDetails resolves creative and lead-form references for ads, at most 50 ids per call.
func (c *AdsClient) FetchAdDetails(ctx context.Context, adIDs []string, token string) (map[string]domain.AdDetails, error) {
	details := make(map[string]domain.AdDetails, len(adIDs))

	for _, chunk := range lo.Chunk(lo.Uniq(adIDs), maxIDsPerCall) {
		params := url.Values{}
		params.Set("ids", strings.Join(chunk, ","))
		params.Set("fields", "id,creative{id,title,body,object_story_spec{link_data{call_to_action}}}")

		raw, err := c.FetchPage(ctx, "", params, token)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch ad details: %w", err)
		}

		var rows map[string]adDetailsRow
		if err := json.Unmarshal(raw, &rows); err != nil {
			c.metrics.RecordExternalAPIFailure(adsAPI, "json_parse")
			return nil, fmt.Errorf("failed to parse ad details: %w", err)
		}

		for id, row := range rows {
			details[id] = domain.AdDetails{
				AdID:          id,
				CreativeID:    row.Creative.ID,
				CreativeTitle: row.Creative.Title,
				CreativeBody:  row.Creative.Body,
				LeadFormID:    row.Creative.ObjectStorySpec.LinkData.CallToAction.Value.LeadGenFormID,
			}
		}
	}

	return details, nil
}

var creativeFields = strings.Join([]string{
	"id", "name", "title", "body", "image_url", "thumbnail_url", "video_id",
	"call_to_action_type", "object_story_spec",
}, ",")

// FetchCreative returns the raw creative payload.
func (c *AdsClient) FetchCreative(ctx context.Context, creativeID, token string) (json.RawMessage, error) {
	params := url.Values{}
	params.Set("fields", creativeFields)
	return c.FetchPage(ctx, creativeID, params, token)
}

// FetchVideo returns playback metadata for a video.
func (c *AdsClient) FetchVideo(ctx context.Context, videoID, token string) (*domain.VideoDetails, error) {
	params := url.Values{}
	params.Set("fields", "source,length,picture")

	raw, err := c.FetchPage(ctx, videoID, params, token)
	if err != nil {
		return nil, err
	}

	var video struct {
		Source  string  `json:"source"`
		Length  float64 `json:"length"`
		Picture string  `json:"picture"`
	}
	if err := json.Unmarshal(raw, &video); err != nil {
		return nil, fmt.Errorf("failed to parse video details: %w", err)
	}

	return &domain.VideoDetails{
		SourceURL:       video.Source,
		DurationSeconds: video.Length,
		PictureURL:      video.Picture,
	}, nil
}
