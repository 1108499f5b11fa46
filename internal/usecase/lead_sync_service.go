package usecase

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"funnelreport/internal/domain"
	"funnelreport/pkg/logger"
	"funnelreport/pkg/metrics"
)

const leadSyncJob = "crm_leads"

// LeadSyncResult counts what happened to the contacts of one sync.
type LeadSyncResult struct {
	TenantID   string `json:"tenant_id"`
	Pages      int    `json:"pages"`
	Contacts   int    `json:"contacts"`
	Upserted   int    `json:"upserted"`
	Skipped    int    `json:"skipped"`
	Unresolved int    `json:"unresolved"`
}

// LeadSyncService pulls CRM contacts and turns the eligible ones into leads.
type LeadSyncService struct {
	crm       domain.CRMClient
	leads     domain.LeadRepository
	snapshots domain.SnapshotRepository
	tenants   domain.TenantDirectory
	guard     *KeyedGuard
	logger    *logger.Logger
	metrics   *metrics.Metrics
	// how far back snapshots are read to build the ad name index
	attributionWindow time.Duration
	now               func() time.Time
}

func NewLeadSyncService(
	crm domain.CRMClient,
	leads domain.LeadRepository,
	snapshots domain.SnapshotRepository,
	tenants domain.TenantDirectory,
	guard *KeyedGuard,
	logger *logger.Logger,
	metrics *metrics.Metrics,
	attributionWindow time.Duration,
) *LeadSyncService {
	if attributionWindow <= 0 {
		attributionWindow = 365 * 24 * time.Hour
	}
	return &LeadSyncService{
		crm:               crm,
		leads:             leads,
		snapshots:         snapshots,
		tenants:           tenants,
		guard:             guard,
		logger:            logger,
		metrics:           metrics,
		attributionWindow: attributionWindow,
		now:               time.Now,
	}
}

func leadGuardKey(tenantID string) string { return "leads:" + tenantID }

// SyncTenant walks every CRM contacts page for the tenant. Contacts without
// the source tag or with an inconsistent tag set are skipped.
func (s *LeadSyncService) SyncTenant(ctx context.Context, tenantID string) (*LeadSyncResult, error) {
	release, ok := s.guard.TryAcquire(leadGuardKey(tenantID))
	if !ok {
		return nil, domain.ErrSyncInProgress
	}
	defer release()

	start := time.Now()
	s.metrics.IncSyncsInProgress()
	defer s.metrics.DecSyncsInProgress()

	log := s.logger.WithTenant(ctx, tenantID)

	token, err := s.tenants.CRMAccessToken(ctx, tenantID)
	if err != nil {
		s.metrics.RecordSync(leadSyncJob, "failed", time.Since(start))
		return nil, err
	}

	now := s.now()
	snapshots, err := s.snapshots.GetByDateRange(ctx, tenantID, now.Add(-s.attributionWindow), now)
	if err != nil {
		s.metrics.RecordSync(leadSyncJob, "failed", time.Since(start))
		return nil, fmt.Errorf("failed to load snapshots for attribution: %w", err)
	}
	index := buildAttributionIndex(snapshots)

	result := &LeadSyncResult{TenantID: tenantID}
	seen := make(map[string]bool)
	pageURL := ""

	for {
		page, err := s.crm.ListContacts(ctx, token, pageURL)
		if err != nil {
			s.metrics.RecordSync(leadSyncJob, "failed", time.Since(start))
			return nil, fmt.Errorf("failed to list CRM contacts: %w", err)
		}
		result.Pages++
		result.Contacts += len(page.Contacts)

		batch := make([]domain.Lead, 0, len(page.Contacts))
		for _, contact := range page.Contacts {
			lead, ok, err := s.toLead(ctx, tenantID, contact, index, result)
			if err != nil {
				s.metrics.RecordSync(leadSyncJob, "failed", time.Since(start))
				return nil, err
			}
			if ok {
				batch = append(batch, lead)
			}
		}

		if err := s.leads.Upsert(ctx, batch); err != nil {
			s.metrics.RecordSync(leadSyncJob, "failed", time.Since(start))
			return nil, fmt.Errorf("failed to save leads: %w", err)
		}
		result.Upserted += len(batch)

		next := page.Meta.NextPageURL
		if next == "" || seen[next] {
			break
		}
		seen[next] = true
		pageURL = next
	}

	duration := time.Since(start)
	s.metrics.RecordSync(leadSyncJob, "success", duration)
	log.WithFields(map[string]any{
		"duration":   duration,
		"pages":      result.Pages,
		"contacts":   result.Contacts,
		"upserted":   result.Upserted,
		"skipped":    result.Skipped,
		"unresolved": result.Unresolved,
	}).Info("CRM lead sync completed")

	return result, nil
}

func (s *LeadSyncService) toLead(ctx context.Context, tenantID string, contact domain.CRMContact, index attributionIndex, result *LeadSyncResult) (domain.Lead, bool, error) {
	classification, ok := ClassifyTags(contact.Tags)
	if !ok || contact.ID == "" {
		result.Skipped++
		s.metrics.RecordLead("skipped")
		return domain.Lead{}, false, nil
	}

	lead := domain.Lead{
		ClientID:              tenantID,
		CRMContactID:          contact.ID,
		FirstName:             strings.TrimSpace(contact.FirstName),
		LastName:              strings.TrimSpace(contact.LastName),
		Email:                 strings.ToLower(strings.TrimSpace(contact.Email)),
		Phone:                 strings.TrimSpace(contact.Phone),
		AdName:                strings.TrimSpace(contact.Attribution.AdName),
		AdSetName:             strings.TrimSpace(contact.Attribution.AdSetName),
		CampaignName:          strings.TrimSpace(contact.Attribution.CampaignName),
		Zip:                   strings.TrimSpace(contact.PostalCode),
		Service:               customString(contact.CustomFields, "service"),
		LeadScore:             customFloat(contact.CustomFields, "lead_score"),
		Status:                classification.Status,
		UnqualifiedLeadReason: classification.UnqualifiedReason,
		CreatedDate:           parseContactDate(contact.DateAdded, s.now()),
	}

	if names, ok := index.resolve(lead.AdName, lead.AdSetName, lead.CampaignName); ok {
		lead.AdSetName = names.AdSetName
		lead.CampaignName = names.CampaignName
		s.metrics.RecordLead("attributed")
	} else {
		result.Unresolved++
		s.metrics.RecordLead("unattributed")
	}

	existing, err := s.leads.GetByCRMContactID(ctx, tenantID, contact.ID)
	switch {
	case err == nil:
		// amounts, zip and service are edited locally and the CRM does not carry them
		lead.ID = existing.ID
		lead.ProposalAmount = existing.ProposalAmount
		lead.JobBookedAmount = existing.JobBookedAmount
		lead.Zip = firstNonEmpty(lead.Zip, existing.Zip)
		lead.Service = firstNonEmpty(lead.Service, existing.Service)
		if lead.LeadScore == 0 {
			lead.LeadScore = existing.LeadScore
		}
		if !existing.CreatedDate.IsZero() {
			lead.CreatedDate = existing.CreatedDate
		}
		// tags only reach estimate_set; later stages are recorded locally
		if existing.Status.FunnelRank() > lead.Status.FunnelRank() {
			lead.Status = existing.Status
			lead.UnqualifiedLeadReason = existing.UnqualifiedLeadReason
		}
	case !domain.IsNotFound(err):
		return domain.Lead{}, false, fmt.Errorf("failed to load lead %s: %w", contact.ID, err)
	}

	return lead, true, nil
}

func customString(fields map[string]any, key string) string {
	if v, ok := fields[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func customFloat(fields map[string]any, key string) float64 {
	switch v := fields[key].(type) {
	case float64:
		return v
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err == nil {
			return f
		}
	}
	return 0
}

func parseContactDate(value string, fallback time.Time) time.Time {
	value = strings.TrimSpace(value)
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, domain.DateLayout} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC()
		}
	}
	return fallback.UTC()
}
