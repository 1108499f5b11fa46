package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"funnelreport/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const upsertBatchSize = 200

// implements domain.SnapshotRepository on Postgres
type SnapshotRepository struct {
	db *gorm.DB
}

func NewSnapshotRepository(db *gorm.DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// UpsertMany relies on the (tenant_id, ad_id, week_start) unique index so a
// re-run of the same week overwrites rather than duplicates.
func (r *SnapshotRepository) UpsertMany(ctx context.Context, snapshots []domain.WeeklySnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	rows := make([]snapshotModel, 0, len(snapshots))
	for _, s := range snapshots {
		rows = append(rows, toSnapshotModel(s))
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "ad_id"}, {Name: "week_start"}},
			UpdateAll: true,
		}).
		CreateInBatches(&rows, upsertBatchSize).Error
	if err != nil {
		return fmt.Errorf("failed to upsert weekly snapshots: %w", err)
	}
	return nil
}

func (r *SnapshotRepository) GetByDateRange(ctx context.Context, tenantID string, start, end time.Time) ([]domain.WeeklySnapshot, error) {
	var rows []snapshotModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND deleted = ?", tenantID, false).
		Where("week_end >= ? AND week_start <= ?", domain.Day(start), domain.Day(end)).
		Order("week_start ASC, ad_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load weekly snapshots: %w", err)
	}

	snapshots := make([]domain.WeeklySnapshot, 0, len(rows))
	for _, row := range rows {
		snapshots = append(snapshots, row.toDomain())
	}
	return snapshots, nil
}

// implements domain.LeadRepository on Postgres
type LeadRepository struct {
	db *gorm.DB
}

func NewLeadRepository(db *gorm.DB) *LeadRepository {
	return &LeadRepository{db: db}
}

// Upsert matches on (client_id, crm_contact_id); the existing row keeps its id.
func (r *LeadRepository) Upsert(ctx context.Context, leads []domain.Lead) error {
	if len(leads) == 0 {
		return nil
	}

	now := time.Now().UTC()
	rows := make([]leadModel, 0, len(leads))
	for _, lead := range leads {
		lead.EnforceInvariants()
		lead.UpdatedAt = now
		if lead.ID == "" {
			lead.ID = uuid.NewString()
		}
		rows = append(rows, toLeadModel(lead))
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "client_id"}, {Name: "crm_contact_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"first_name", "last_name", "email", "phone",
				"campaign_name", "ad_set_name", "ad_name",
				"zip", "service", "lead_score",
				"status", "unqualified_lead_reason", "proposal_amount", "job_booked_amount",
				"created_date", "updated_at", "deleted",
			}),
		}).
		CreateInBatches(&rows, upsertBatchSize).Error
	if err != nil {
		return fmt.Errorf("failed to upsert leads: %w", err)
	}
	return nil
}

func (r *LeadRepository) Update(ctx context.Context, lead domain.Lead) error {
	lead.EnforceInvariants()
	lead.UpdatedAt = time.Now().UTC()
	row := toLeadModel(lead)

	result := r.db.WithContext(ctx).
		Model(&leadModel{}).
		Where("id = ? AND client_id = ? AND deleted = ?", lead.ID, lead.ClientID, false).
		Select("*").
		Omit("id", "client_id", "crm_contact_id").
		Updates(&row)
	if result.Error != nil {
		return fmt.Errorf("failed to update lead: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return &domain.NotFoundError{Resource: "lead", ID: lead.ID}
	}
	return nil
}

func (r *LeadRepository) GetByID(ctx context.Context, clientID, id string) (*domain.Lead, error) {
	return r.first(ctx, id, "id = ? AND client_id = ? AND deleted = ?", id, clientID, false)
}

func (r *LeadRepository) GetByCRMContactID(ctx context.Context, clientID, contactID string) (*domain.Lead, error) {
	return r.first(ctx, contactID, "crm_contact_id = ? AND client_id = ? AND deleted = ?", contactID, clientID, false)
}

func (r *LeadRepository) first(ctx context.Context, ref string, query string, args ...any) (*domain.Lead, error) {
	var row leadModel
	err := r.db.WithContext(ctx).Where(query, args...).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &domain.NotFoundError{Resource: "lead", ID: ref}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load lead: %w", err)
	}
	lead := row.toDomain()
	return &lead, nil
}

func (r *LeadRepository) GetByDateRange(ctx context.Context, clientID string, start, end time.Time) ([]domain.Lead, error) {
	var rows []leadModel
	err := r.db.WithContext(ctx).
		Where("client_id = ? AND deleted = ?", clientID, false).
		Where("created_date >= ? AND created_date < ?", domain.Day(start), domain.Day(end).AddDate(0, 0, 1)).
		Order("created_date ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load leads: %w", err)
	}

	leads := make([]domain.Lead, 0, len(rows))
	for _, row := range rows {
		leads = append(leads, row.toDomain())
	}
	return leads, nil
}

// implements domain.CreativeRepository on Postgres
type CreativeRepository struct {
	db *gorm.DB
}

func NewCreativeRepository(db *gorm.DB) *CreativeRepository {
	return &CreativeRepository{db: db}
}

func (r *CreativeRepository) Get(ctx context.Context, creativeID string) (*domain.CreativeRecord, error) {
	var row creativeModel
	err := r.db.WithContext(ctx).First(&row, "creative_id = ?", creativeID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &domain.NotFoundError{Resource: "creative", ID: creativeID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load creative: %w", err)
	}
	record := row.toDomain()
	return &record, nil
}

func (r *CreativeRepository) Save(ctx context.Context, record domain.CreativeRecord) error {
	row := toCreativeModel(record)
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "creative_id"}},
			UpdateAll: true,
		}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to save creative: %w", err)
	}
	return nil
}

// implements domain.TenantDirectory over the tenants table
type TenantDirectory struct {
	db *gorm.DB
}

func NewTenantDirectory(db *gorm.DB) *TenantDirectory {
	return &TenantDirectory{db: db}
}

func (d *TenantDirectory) ListTenants(ctx context.Context) ([]string, error) {
	var ids []string
	err := d.db.WithContext(ctx).Model(&tenantModel{}).Order("id ASC").Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	return ids, nil
}

func (d *TenantDirectory) AdAccountID(ctx context.Context, tenantID string) (string, error) {
	t, err := d.get(ctx, tenantID)
	if err != nil {
		return "", err
	}
	if t.AdAccountID == "" {
		return "", &domain.NotFoundError{Resource: "ad account", ID: tenantID}
	}
	return t.AdAccountID, nil
}

func (d *TenantDirectory) AdsAccessToken(ctx context.Context, tenantID string) (string, error) {
	t, err := d.get(ctx, tenantID)
	if err != nil {
		return "", err
	}
	if t.AdsAccessToken == "" {
		return "", &domain.NotFoundError{Resource: "ads access token", ID: tenantID}
	}
	return t.AdsAccessToken, nil
}

func (d *TenantDirectory) CRMAccessToken(ctx context.Context, tenantID string) (string, error) {
	t, err := d.get(ctx, tenantID)
	if err != nil {
		return "", err
	}
	if t.CRMAccessToken == "" {
		return "", &domain.NotFoundError{Resource: "crm access token", ID: tenantID}
	}
	return t.CRMAccessToken, nil
}

func (d *TenantDirectory) get(ctx context.Context, tenantID string) (*tenantModel, error) {
	var t tenantModel
	err := d.db.WithContext(ctx).First(&t, "id = ?", tenantID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &domain.NotFoundError{Resource: "tenant", ID: tenantID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load tenant: %w", err)
	}
	return &t, nil
}
