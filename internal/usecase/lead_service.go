package usecase

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"funnelreport/internal/domain"
	"funnelreport/pkg/logger"

	"github.com/go-playground/validator/v10"
)

// LeadService applies manual edits to leads.
type LeadService struct {
	leads    domain.LeadRepository
	validate *validator.Validate
	logger   *logger.Logger
}

func NewLeadService(leads domain.LeadRepository, logger *logger.Logger) *LeadService {
	return &LeadService{
		leads:    leads,
		validate: newValidator(),
		logger:   logger,
	}
}

// Update merges the edit into the stored lead. Amounts the resulting status
// does not allow are zeroed before the write.
func (s *LeadService) Update(ctx context.Context, clientID, leadID string, update domain.LeadUpdate) (*domain.Lead, error) {
	if err := s.validate.Struct(update); err != nil {
		return nil, validationError(err)
	}
	if update.Status != nil && !update.Status.Valid() {
		return nil, &domain.ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", *update.Status)}
	}

	lead, err := s.leads.GetByID(ctx, clientID, leadID)
	if err != nil {
		return nil, err
	}

	update.Apply(lead)

	if err := s.leads.Update(ctx, *lead); err != nil {
		return nil, err
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id": clientID,
		"lead_id":   leadID,
		"status":    lead.Status,
	}).Info("Lead updated")

	return lead, nil
}

// newValidator reports fields by their json names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validationError converts the first validator failure into a domain.ValidationError.
func validationError(err error) error {
	if fieldErrs, ok := err.(validator.ValidationErrors); ok && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return &domain.ValidationError{Field: fe.Field(), Message: fmt.Sprintf("failed on the '%s' rule", fe.Tag())}
	}
	return &domain.ValidationError{Message: err.Error()}
}
