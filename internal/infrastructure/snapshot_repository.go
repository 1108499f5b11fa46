package infrastructure

import (
	"context"
	"sort"
	"sync"
	"time"

	"funnelreport/internal/domain"
	"funnelreport/pkg/logger"
)

// implements domain.SnapshotRepository in memory
type SnapshotRepository struct {
	data   map[domain.SnapshotKey]domain.WeeklySnapshot
	mutex  sync.RWMutex
	logger *logger.Logger
}

func NewSnapshotRepository(logger *logger.Logger) *SnapshotRepository {
	return &SnapshotRepository{
		data:   make(map[domain.SnapshotKey]domain.WeeklySnapshot),
		logger: logger,
	}
}

// UpsertMany overwrites any existing row with the same (tenant, ad, week start).
func (r *SnapshotRepository) UpsertMany(ctx context.Context, snapshots []domain.WeeklySnapshot) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for _, s := range snapshots {
		s.WeekStart = domain.Day(s.WeekStart)
		s.WeekEnd = domain.Day(s.WeekEnd)
		r.data[s.Key()] = s
	}

	r.logger.WithContext(ctx).WithField("count", len(snapshots)).Debug("Stored weekly snapshots in memory")
	return nil
}

func (r *SnapshotRepository) GetByDateRange(ctx context.Context, tenantID string, start, end time.Time) ([]domain.WeeklySnapshot, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	from, to := domain.Day(start), domain.Day(end)

	var result []domain.WeeklySnapshot
	for _, s := range r.data {
		if s.TenantID != tenantID || s.Deleted {
			continue
		}
		if s.WeekEnd.Before(from) || s.WeekStart.After(to) {
			continue
		}
		result = append(result, s)
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].WeekStart.Equal(result[j].WeekStart) {
			return result[i].WeekStart.Before(result[j].WeekStart)
		}
		return result[i].AdID < result[j].AdID
	})

	return result, nil
}
