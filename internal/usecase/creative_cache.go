package usecase

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"funnelreport/internal/domain"
	"funnelreport/pkg/logger"
	"funnelreport/pkg/metrics"

	"github.com/samber/lo"
)

const (
	DefaultCreativeTTL = 7 * 24 * time.Hour
	DefaultBatchSize   = 10
)

// CreativeCache serves creative metadata from the repository while it is
// younger than the TTL and refetches it from the ads API otherwise. A failed
// refetch falls back to whatever copy is stored, however old.
type CreativeCache struct {
	repo      domain.CreativeRepository
	client    domain.AdsAPIClient
	logger    *logger.Logger
	metrics   *metrics.Metrics
	ttl       time.Duration
	batchSize int
	now       func() time.Time
}

func NewCreativeCache(repo domain.CreativeRepository, client domain.AdsAPIClient, logger *logger.Logger, metrics *metrics.Metrics, ttl time.Duration, batchSize int) *CreativeCache {
	if ttl <= 0 {
		ttl = DefaultCreativeTTL
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &CreativeCache{
		repo:      repo,
		client:    client,
		logger:    logger,
		metrics:   metrics,
		ttl:       ttl,
		batchSize: batchSize,
		now:       time.Now,
	}
}

// Get returns the creative or nil when it is neither cached nor fetchable.
func (c *CreativeCache) Get(ctx context.Context, creativeID, tenantID, token string, forceRefresh bool) *domain.CreativeRecord {
	log := c.logger.WithContext(ctx).WithFields(map[string]any{
		"creative_id": creativeID,
		"tenant_id":   tenantID,
	})

	cached, err := c.repo.Get(ctx, creativeID)
	if err != nil && !domain.IsNotFound(err) {
		log.WithError(err).Warn("Failed to read cached creative")
	}

	now := c.now()
	if !forceRefresh && cached != nil && cached.IsFresh(now, c.ttl) {
		c.metrics.RecordCreativeLookup("hit")
		return cached
	}

	record, err := c.fetch(ctx, creativeID, tenantID, token, now)
	if err != nil {
		if cached != nil {
			c.metrics.RecordCreativeLookup("stale_fallback")
			log.WithError(err).WithField("last_fetched_at", cached.LastFetchedAt).Warn("Creative refetch failed, serving cached copy")
			return cached
		}
		c.metrics.RecordCreativeLookup("unavailable")
		log.WithError(err).Warn("Creative unavailable")
		return nil
	}

	if cached != nil {
		c.metrics.RecordCreativeLookup("refresh")
	} else {
		c.metrics.RecordCreativeLookup("miss")
	}

	if err := c.repo.Save(ctx, *record); err != nil {
		log.WithError(err).Warn("Failed to persist creative")
	}
	return record
}

// GetMany looks creatives up batchSize at a time. Lookups within a batch run
// concurrently; batches run one after another. Unavailable ids are absent
// from the result.
func (c *CreativeCache) GetMany(ctx context.Context, creativeIDs []string, tenantID, token string) map[string]*domain.CreativeRecord {
	ids := lo.Filter(lo.Uniq(creativeIDs), func(id string, _ int) bool { return id != "" })
	result := make(map[string]*domain.CreativeRecord, len(ids))

	var mu sync.Mutex
	for _, batch := range lo.Chunk(ids, c.batchSize) {
		if ctx.Err() != nil {
			break
		}

		var wg sync.WaitGroup
		for _, id := range batch {
			wg.Go(func() {
				record := c.Get(ctx, id, tenantID, token, false)
				if record == nil {
					return
				}
				mu.Lock()
				result[id] = record
				mu.Unlock()
			})
		}
		wg.Wait()
	}

	return result
}

func (c *CreativeCache) fetch(ctx context.Context, creativeID, tenantID, token string, now time.Time) (*domain.CreativeRecord, error) {
	raw, err := c.client.FetchCreative(ctx, creativeID, token)
	if err != nil {
		return nil, err
	}

	record, err := parseCreative(raw)
	if err != nil {
		return nil, err
	}
	if record.CreativeID == "" {
		record.CreativeID = creativeID
	}
	record.TenantID = tenantID
	record.LastFetchedAt = now

	if record.CreativeType == domain.CreativeVideo && record.VideoID != "" {
		video, err := c.client.FetchVideo(ctx, record.VideoID, token)
		if err != nil {
			c.logger.WithContext(ctx).WithError(err).WithField("video_id", record.VideoID).Warn("Failed to fetch video metadata")
		} else {
			record.VideoSourceURL = video.SourceURL
			record.VideoDurationSeconds = video.DurationSeconds
			if record.ThumbnailURL == "" {
				record.ThumbnailURL = video.PictureURL
			}
		}
	}

	return record, nil
}

type callToAction struct {
	Type  string `json:"type"`
	Value struct {
		Link string `json:"link"`
	} `json:"value"`
}

type creativePayload struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Title            string `json:"title"`
	Body             string `json:"body"`
	ImageURL         string `json:"image_url"`
	ThumbnailURL     string `json:"thumbnail_url"`
	VideoID          string `json:"video_id"`
	CallToActionType string `json:"call_to_action_type"`
	ObjectStorySpec  struct {
		PageID   string `json:"page_id"`
		LinkData *struct {
			Link             string          `json:"link"`
			Message          string          `json:"message"`
			Name             string          `json:"name"`
			Description      string          `json:"description"`
			Picture          string          `json:"picture"`
			ImageHash        string          `json:"image_hash"`
			CallToAction     callToAction    `json:"call_to_action"`
			ChildAttachments json.RawMessage `json:"child_attachments"`
		} `json:"link_data"`
		PhotoData *struct {
			URL       string `json:"url"`
			ImageHash string `json:"image_hash"`
			Caption   string `json:"caption"`
		} `json:"photo_data"`
		VideoData *struct {
			VideoID      string       `json:"video_id"`
			Title        string       `json:"title"`
			Message      string       `json:"message"`
			ImageURL     string       `json:"image_url"`
			CallToAction callToAction `json:"call_to_action"`
		} `json:"video_data"`
	} `json:"object_story_spec"`
}

// parseCreative flattens the platform's nested link/photo/video shapes.
func parseCreative(raw json.RawMessage) (*domain.CreativeRecord, error) {
	var p creativePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}

	spec := p.ObjectStorySpec
	record := &domain.CreativeRecord{
		CreativeID:       p.ID,
		Name:             p.Name,
		Title:            p.Title,
		Body:             p.Body,
		CallToActionType: p.CallToActionType,
		ImageURL:         p.ImageURL,
		ThumbnailURL:     p.ThumbnailURL,
		PageID:           spec.PageID,
		VideoID:          p.VideoID,
		RawPayload:       raw,
	}

	hasImage := p.ImageURL != ""
	hasLink := false

	if link := spec.LinkData; link != nil {
		record.Title = firstNonEmpty(record.Title, link.Name)
		record.Body = firstNonEmpty(record.Body, link.Message)
		record.Description = link.Description
		record.LinkURL = firstNonEmpty(link.Link, link.CallToAction.Value.Link)
		record.CallToActionType = firstNonEmpty(record.CallToActionType, link.CallToAction.Type)
		record.ImageURL = firstNonEmpty(record.ImageURL, link.Picture)

		var children []json.RawMessage
		if len(link.ChildAttachments) > 0 {
			_ = json.Unmarshal(link.ChildAttachments, &children)
		}
		record.ChildAttachments = len(children)

		hasImage = hasImage || link.Picture != "" || link.ImageHash != ""
		hasLink = record.LinkURL != ""
	}

	if photo := spec.PhotoData; photo != nil {
		record.Body = firstNonEmpty(record.Body, photo.Caption)
		record.ImageURL = firstNonEmpty(record.ImageURL, photo.URL)
		hasImage = true
	}

	if video := spec.VideoData; video != nil {
		record.VideoID = firstNonEmpty(record.VideoID, video.VideoID)
		record.Title = firstNonEmpty(record.Title, video.Title)
		record.Body = firstNonEmpty(record.Body, video.Message)
		record.ThumbnailURL = firstNonEmpty(record.ThumbnailURL, video.ImageURL)
		record.CallToActionType = firstNonEmpty(record.CallToActionType, video.CallToAction.Type)
		record.LinkURL = firstNonEmpty(record.LinkURL, video.CallToAction.Value.Link)
	}

	switch {
	case record.VideoID != "":
		record.CreativeType = domain.CreativeVideo
	case record.ChildAttachments > 1:
		record.CreativeType = domain.CreativeCarousel
	case hasImage:
		record.CreativeType = domain.CreativeImage
	case hasLink:
		record.CreativeType = domain.CreativeLink
	default:
		record.CreativeType = domain.CreativeOther
	}

	return record, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
