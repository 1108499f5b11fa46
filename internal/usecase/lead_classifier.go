package usecase

import (
	"strings"

	"funnelreport/internal/domain"
)

const (
	// SourceTag marks a contact as coming from the ads platform. Contacts without it are never synced.
	SourceTag  = "facebook lead"
	NewLeadTag = "new_lead"
)

// tagRule maps any tag in Tags to Status. Rules are evaluated in order and
// the first match wins.
type tagRule struct {
	Status domain.LeadStatus
	Tags   []string
	// RequireAll switches the rule from any-of to all-of.
	RequireAll bool
	// CaptureReason stores the matched tag as the unqualified reason.
	CaptureReason bool
}

var disqualificationTags = []string{
	"dq - out of area",
	"dq - not interested",
	"dq - no budget",
	"dq - wrong number",
	"dq - duplicate",
	"dq - service not offered",
	"dq - spam",
	"dq - no response",
}

var appointmentTags = []string{
	"estimate set",
	"appointment set",
	"appointment booked",
	"virtual quote scheduled",
}

var nurtureTags = []string{
	"day 1", "day 2", "day 3", "day 4", "day 5", "day 6", "day 7",
	"day 14", "day 21", "day 30",
}

var classificationRules = []tagRule{
	{Status: domain.StatusUnqualified, Tags: disqualificationTags, CaptureReason: true},
	{Status: domain.StatusEstimateSet, Tags: appointmentTags},
	{Status: domain.StatusInProgress, Tags: nurtureTags},
	{Status: domain.StatusNew, Tags: []string{NewLeadTag, SourceTag}, RequireAll: true},
}

var allowedTags = func() map[string]bool {
	allowed := map[string]bool{SourceTag: true, NewLeadTag: true}
	for _, rule := range classificationRules {
		for _, tag := range rule.Tags {
			allowed[tag] = true
		}
	}
	return allowed
}()

// ClassifyTags derives a lead status from CRM tags. ok is false when the
// source tag is missing or no rule matches; such contacts must be skipped.
func ClassifyTags(tags []string) (domain.Classification, bool) {
	normalized := make(map[string]bool, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if allowedTags[tag] {
			normalized[tag] = true
		}
	}

	if !normalized[SourceTag] {
		return domain.Classification{}, false
	}

	for _, rule := range classificationRules {
		if matched, ok := rule.match(normalized); ok {
			c := domain.Classification{Status: rule.Status}
			if rule.CaptureReason {
				c.UnqualifiedReason = matched
			}
			return c, true
		}
	}
	return domain.Classification{}, false
}

func (r tagRule) match(tags map[string]bool) (string, bool) {
	if r.RequireAll {
		for _, tag := range r.Tags {
			if !tags[tag] {
				return "", false
			}
		}
		return r.Tags[0], true
	}
	for _, tag := range r.Tags {
		if tags[tag] {
			return tag, true
		}
	}
	return "", false
}
