package infrastructure

import (
	"context"
	"sort"
	"sync"
	"time"

	"funnelreport/internal/domain"
	"funnelreport/pkg/logger"

	"github.com/google/uuid"
)

type leadKey struct {
	clientID  string
	contactID string
}

// implements domain.LeadRepository in memory
type LeadRepository struct {
	byID      map[string]*domain.Lead
	byContact map[leadKey]string
	mutex     sync.RWMutex
	logger    *logger.Logger
}

// creates a new lead repository
func NewLeadRepository(logger *logger.Logger) *LeadRepository {
	return &LeadRepository{
		byID:      make(map[string]*domain.Lead),
		byContact: make(map[leadKey]string),
		logger:    logger,
	}
}

// Upsert matches existing rows on (client, CRM contact id) and keeps their id.
func (r *LeadRepository) Upsert(ctx context.Context, leads []domain.Lead) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	now := time.Now().UTC()
	for _, lead := range leads {
		lead.EnforceInvariants()
		lead.UpdatedAt = now

		key := leadKey{clientID: lead.ClientID, contactID: lead.CRMContactID}
		if id, ok := r.byContact[key]; ok && lead.CRMContactID != "" {
			lead.ID = id
		} else if lead.ID == "" {
			lead.ID = uuid.NewString()
		}

		stored := lead
		r.byID[lead.ID] = &stored
		if lead.CRMContactID != "" {
			r.byContact[key] = lead.ID
		}
	}

	r.logger.WithContext(ctx).WithField("count", len(leads)).Debug("Stored leads in memory")
	return nil
}

func (r *LeadRepository) Update(ctx context.Context, lead domain.Lead) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	existing, ok := r.byID[lead.ID]
	if !ok || existing.Deleted || existing.ClientID != lead.ClientID {
		return &domain.NotFoundError{Resource: "lead", ID: lead.ID}
	}

	lead.EnforceInvariants()
	lead.UpdatedAt = time.Now().UTC()
	r.byID[lead.ID] = &lead
	return nil
}

func (r *LeadRepository) GetByID(ctx context.Context, clientID, id string) (*domain.Lead, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	lead, ok := r.byID[id]
	if !ok || lead.Deleted || lead.ClientID != clientID {
		return nil, &domain.NotFoundError{Resource: "lead", ID: id}
	}
	copied := *lead
	return &copied, nil
}

func (r *LeadRepository) GetByCRMContactID(ctx context.Context, clientID, contactID string) (*domain.Lead, error) {
	r.mutex.RLock()
	id, ok := r.byContact[leadKey{clientID: clientID, contactID: contactID}]
	r.mutex.RUnlock()

	if !ok {
		return nil, &domain.NotFoundError{Resource: "lead", ID: contactID}
	}
	return r.GetByID(ctx, clientID, id)
}

// GetByDateRange returns non-deleted leads created on a day within [start, end].
func (r *LeadRepository) GetByDateRange(ctx context.Context, clientID string, start, end time.Time) ([]domain.Lead, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	from, to := domain.Day(start), domain.Day(end)

	var result []domain.Lead
	for _, lead := range r.byID {
		if lead.ClientID != clientID || lead.Deleted {
			continue
		}
		created := domain.Day(lead.CreatedDate)
		if created.Before(from) || created.After(to) {
			continue
		}
		result = append(result, *lead)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedDate.Before(result[j].CreatedDate)
	})

	return result, nil
}
