package domain

import (
	"encoding/json"
	"time"
)

type CreativeType string

const (
	CreativeVideo    CreativeType = "video"
	CreativeCarousel CreativeType = "carousel"
	CreativeImage    CreativeType = "image"
	CreativeLink     CreativeType = "link"
	CreativeOther    CreativeType = "other"
)

// CreativeRecord is a flattened copy of the platform's ad-creative metadata.
type CreativeRecord struct {
	CreativeID string `json:"creative_id"`
	TenantID   string `json:"tenant_id"`

	Name             string       `json:"name,omitempty"`
	Title            string       `json:"title,omitempty"`
	Body             string       `json:"body,omitempty"`
	Description      string       `json:"description,omitempty"`
	CallToActionType string       `json:"call_to_action_type,omitempty"`
	LinkURL          string       `json:"link_url,omitempty"`
	ImageURL         string       `json:"image_url,omitempty"`
	ThumbnailURL     string       `json:"thumbnail_url,omitempty"`
	PageID           string       `json:"page_id,omitempty"`
	CreativeType     CreativeType `json:"creative_type"`
	ChildAttachments int          `json:"child_attachments"`

	VideoID              string  `json:"video_id,omitempty"`
	VideoSourceURL       string  `json:"video_source_url,omitempty"`
	VideoDurationSeconds float64 `json:"video_duration_seconds,omitempty"`

	RawPayload    json.RawMessage `json:"raw_payload,omitempty"`
	LastFetchedAt time.Time       `json:"last_fetched_at"`
}

// IsFresh reports whether the record was fetched less than ttl before now.
func (c CreativeRecord) IsFresh(now time.Time, ttl time.Duration) bool {
	return now.Sub(c.LastFetchedAt) < ttl
}
