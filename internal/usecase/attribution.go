package usecase

import (
	"strings"

	"funnelreport/internal/domain"
)

// adNames holds the display names an ad name resolves to.
type adNames struct {
	AdName       string
	AdSetName    string
	CampaignName string
}

// attributionIndex maps ad names to their ad set and campaign, as seen in snapshots.
// Keys are case-folded so CRM spelling differences in case still join.
type attributionIndex map[string]adNames

func nameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func buildAttributionIndex(snapshots []domain.WeeklySnapshot) attributionIndex {
	index := make(attributionIndex, len(snapshots))
	for _, s := range snapshots {
		key := nameKey(s.AdName)
		if key == "" {
			continue
		}
		// newest snapshot wins when an ad was renamed between ad sets
		index[key] = adNames{AdName: s.AdName, AdSetName: s.AdSetName, CampaignName: s.CampaignName}
	}
	return index
}

// resolve fills the lead's missing ad set and campaign names. ok is false when
// the ad name matches no known ad, in which case the lead cannot be grouped.
func (idx attributionIndex) resolve(adName, adSetName, campaignName string) (adNames, bool) {
	names, ok := idx[nameKey(adName)]
	if !ok {
		return adNames{}, false
	}
	if strings.TrimSpace(adSetName) != "" {
		names.AdSetName = strings.TrimSpace(adSetName)
	}
	if strings.TrimSpace(campaignName) != "" {
		names.CampaignName = strings.TrimSpace(campaignName)
	}
	return names, true
}
