package infrastructure

import (
	"context"
	"sync"

	"funnelreport/internal/domain"
	"funnelreport/pkg/logger"
)

// implements domain.CreativeRepository in memory
type CreativeRepository struct {
	data   map[string]domain.CreativeRecord
	mutex  sync.RWMutex
	logger *logger.Logger
}

func NewCreativeRepository(logger *logger.Logger) *CreativeRepository {
	return &CreativeRepository{
		data:   make(map[string]domain.CreativeRecord),
		logger: logger,
	}
}

func (r *CreativeRepository) Get(ctx context.Context, creativeID string) (*domain.CreativeRecord, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	record, ok := r.data[creativeID]
	if !ok {
		return nil, &domain.NotFoundError{Resource: "creative", ID: creativeID}
	}
	return &record, nil
}

func (r *CreativeRepository) Save(ctx context.Context, record domain.CreativeRecord) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.data[record.CreativeID] = record
	return nil
}
