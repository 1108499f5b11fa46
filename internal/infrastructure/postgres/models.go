package postgres

import (
	"time"

	"funnelreport/internal/domain"
)

type snapshotModel struct {
	ID       uint   `gorm:"primaryKey"`
	TenantID string `gorm:"size:64;not null;uniqueIndex:idx_snapshot_key,priority:1;index:idx_snapshot_range,priority:1"`
	AdID     string `gorm:"size:64;not null;uniqueIndex:idx_snapshot_key,priority:2"`

	CampaignID   string `gorm:"size:64"`
	CampaignName string
	AdSetID      string `gorm:"size:64"`
	AdSetName    string
	AdName       string

	CreativeID    string `gorm:"size:64"`
	CreativeTitle string
	CreativeBody  string
	CreativeRaw   []byte `gorm:"type:jsonb"`
	LeadFormID    string `gorm:"size:64"`

	Metrics domain.AdMetrics `gorm:"embedded;embeddedPrefix:m_"`

	WeekStart time.Time `gorm:"type:date;not null;uniqueIndex:idx_snapshot_key,priority:3;index:idx_snapshot_range,priority:2"`
	WeekEnd   time.Time `gorm:"type:date;not null"`
	SavedAt   time.Time
	Deleted   bool `gorm:"not null;default:false"`
}

func (snapshotModel) TableName() string { return "weekly_snapshots" }

func toSnapshotModel(s domain.WeeklySnapshot) snapshotModel {
	return snapshotModel{
		TenantID:      s.TenantID,
		AdID:          s.AdID,
		CampaignID:    s.CampaignID,
		CampaignName:  s.CampaignName,
		AdSetID:       s.AdSetID,
		AdSetName:     s.AdSetName,
		AdName:        s.AdName,
		CreativeID:    s.CreativeID,
		CreativeTitle: s.CreativeTitle,
		CreativeBody:  s.CreativeBody,
		CreativeRaw:   jsonColumn(s.CreativeRaw),
		LeadFormID:    s.LeadFormID,
		Metrics:       s.Metrics,
		WeekStart:     domain.Day(s.WeekStart),
		WeekEnd:       domain.Day(s.WeekEnd),
		SavedAt:       s.SavedAt,
		Deleted:       s.Deleted,
	}
}

func (m snapshotModel) toDomain() domain.WeeklySnapshot {
	return domain.WeeklySnapshot{
		TenantID:      m.TenantID,
		CampaignID:    m.CampaignID,
		CampaignName:  m.CampaignName,
		AdSetID:       m.AdSetID,
		AdSetName:     m.AdSetName,
		AdID:          m.AdID,
		AdName:        m.AdName,
		CreativeID:    m.CreativeID,
		CreativeTitle: m.CreativeTitle,
		CreativeBody:  m.CreativeBody,
		CreativeRaw:   m.CreativeRaw,
		LeadFormID:    m.LeadFormID,
		Metrics:       m.Metrics,
		WeekStart:     domain.Day(m.WeekStart),
		WeekEnd:       domain.Day(m.WeekEnd),
		SavedAt:       m.SavedAt,
		Deleted:       m.Deleted,
	}
}

type leadModel struct {
	ID           string `gorm:"primaryKey;size:36"`
	ClientID     string `gorm:"size:64;not null;uniqueIndex:idx_lead_contact,priority:1;index:idx_lead_created,priority:1"`
	CRMContactID string `gorm:"column:crm_contact_id;size:64;not null;uniqueIndex:idx_lead_contact,priority:2"`

	FirstName string
	LastName  string
	Email     string
	Phone     string

	CampaignName string
	AdSetName    string
	AdName       string

	Zip       string `gorm:"size:16"`
	Service   string
	LeadScore float64

	Status                string `gorm:"size:32;not null"`
	UnqualifiedLeadReason string
	ProposalAmount        float64
	JobBookedAmount       float64

	CreatedDate time.Time `gorm:"not null;index:idx_lead_created,priority:2"`
	UpdatedAt   time.Time
	Deleted     bool `gorm:"not null;default:false"`
}

func (leadModel) TableName() string { return "leads" }

func toLeadModel(l domain.Lead) leadModel {
	return leadModel{
		ID:                    l.ID,
		ClientID:              l.ClientID,
		CRMContactID:          l.CRMContactID,
		FirstName:             l.FirstName,
		LastName:              l.LastName,
		Email:                 l.Email,
		Phone:                 l.Phone,
		CampaignName:          l.CampaignName,
		AdSetName:             l.AdSetName,
		AdName:                l.AdName,
		Zip:                   l.Zip,
		Service:               l.Service,
		LeadScore:             l.LeadScore,
		Status:                string(l.Status),
		UnqualifiedLeadReason: l.UnqualifiedLeadReason,
		ProposalAmount:        l.ProposalAmount,
		JobBookedAmount:       l.JobBookedAmount,
		CreatedDate:           l.CreatedDate,
		UpdatedAt:             l.UpdatedAt,
		Deleted:               l.Deleted,
	}
}

func (m leadModel) toDomain() domain.Lead {
	return domain.Lead{
		ID:                    m.ID,
		ClientID:              m.ClientID,
		CRMContactID:          m.CRMContactID,
		FirstName:             m.FirstName,
		LastName:              m.LastName,
		Email:                 m.Email,
		Phone:                 m.Phone,
		CampaignName:          m.CampaignName,
		AdSetName:             m.AdSetName,
		AdName:                m.AdName,
		Zip:                   m.Zip,
		Service:               m.Service,
		LeadScore:             m.LeadScore,
		Status:                domain.LeadStatus(m.Status),
		UnqualifiedLeadReason: m.UnqualifiedLeadReason,
		ProposalAmount:        m.ProposalAmount,
		JobBookedAmount:       m.JobBookedAmount,
		CreatedDate:           m.CreatedDate,
		UpdatedAt:             m.UpdatedAt,
		Deleted:               m.Deleted,
	}
}

type creativeModel struct {
	CreativeID string `gorm:"primaryKey;size:64"`
	TenantID   string `gorm:"size:64;index"`

	Name             string
	Title            string
	Body             string
	Description      string
	CallToActionType string `gorm:"size:64"`
	LinkURL          string
	ImageURL         string
	ThumbnailURL     string
	PageID           string `gorm:"size:64"`
	CreativeType     string `gorm:"size:16"`
	ChildAttachments int

	VideoID              string `gorm:"size:64"`
	VideoSourceURL       string
	VideoDurationSeconds float64

	RawPayload    []byte `gorm:"type:jsonb"`
	LastFetchedAt time.Time
}

func (creativeModel) TableName() string { return "creatives" }

func toCreativeModel(c domain.CreativeRecord) creativeModel {
	return creativeModel{
		CreativeID:           c.CreativeID,
		TenantID:             c.TenantID,
		Name:                 c.Name,
		Title:                c.Title,
		Body:                 c.Body,
		Description:          c.Description,
		CallToActionType:     c.CallToActionType,
		LinkURL:              c.LinkURL,
		ImageURL:             c.ImageURL,
		ThumbnailURL:         c.ThumbnailURL,
		PageID:               c.PageID,
		CreativeType:         string(c.CreativeType),
		ChildAttachments:     c.ChildAttachments,
		VideoID:              c.VideoID,
		VideoSourceURL:       c.VideoSourceURL,
		VideoDurationSeconds: c.VideoDurationSeconds,
		RawPayload:           jsonColumn(c.RawPayload),
		LastFetchedAt:        c.LastFetchedAt,
	}
}

func (m creativeModel) toDomain() domain.CreativeRecord {
	return domain.CreativeRecord{
		CreativeID:           m.CreativeID,
		TenantID:             m.TenantID,
		Name:                 m.Name,
		Title:                m.Title,
		Body:                 m.Body,
		Description:          m.Description,
		CallToActionType:     m.CallToActionType,
		LinkURL:              m.LinkURL,
		ImageURL:             m.ImageURL,
		ThumbnailURL:         m.ThumbnailURL,
		PageID:               m.PageID,
		CreativeType:         domain.CreativeType(m.CreativeType),
		ChildAttachments:     m.ChildAttachments,
		VideoID:              m.VideoID,
		VideoSourceURL:       m.VideoSourceURL,
		VideoDurationSeconds: m.VideoDurationSeconds,
		RawPayload:           m.RawPayload,
		LastFetchedAt:        m.LastFetchedAt,
	}
}

// tenantModel is read-only here. Tenant CRUD belongs to another service.
type tenantModel struct {
	ID             string `gorm:"primaryKey;size:64"`
	AdAccountID    string `gorm:"size:64"`
	AdsAccessToken string
	CRMAccessToken string `gorm:"column:crm_access_token"`
}

func (tenantModel) TableName() string { return "tenants" }

// jsonColumn maps an empty payload to NULL, which jsonb accepts and "" does not.
func jsonColumn(raw []byte) []byte {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
