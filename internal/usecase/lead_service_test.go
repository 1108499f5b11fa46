package usecase

import (
	"context"
	"testing"

	"funnelreport/internal/domain"
	"funnelreport/internal/infrastructure"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedLead(t *testing.T, repo *infrastructure.LeadRepository, lead domain.Lead) domain.Lead {
	t.Helper()
	require.NoError(t, repo.Upsert(context.Background(), []domain.Lead{lead}))
	stored, err := repo.GetByCRMContactID(context.Background(), lead.ClientID, lead.CRMContactID)
	require.NoError(t, err)
	return *stored
}

func statusPtr(s domain.LeadStatus) *domain.LeadStatus { return &s }
func floatPtr(f float64) *float64                      { return &f }

func TestLeadServiceUpdateEnforcesStatusAmounts(t *testing.T) {
	repo := infrastructure.NewLeadRepository(testLogger())
	svc := NewLeadService(repo, testLogger())
	ctx := context.Background()

	lead := seedLead(t, repo, domain.Lead{ClientID: "t1", CRMContactID: "c1", Status: domain.StatusEstimateSet})

	updated, err := svc.Update(ctx, "t1", lead.ID, domain.LeadUpdate{ProposalAmount: floatPtr(5000)})
	require.NoError(t, err)
	assert.Equal(t, 5000.0, updated.ProposalAmount)

	// booking zeroes the proposal and allows a booked amount
	updated, err = svc.Update(ctx, "t1", lead.ID, domain.LeadUpdate{
		Status:          statusPtr(domain.StatusJobBooked),
		JobBookedAmount: floatPtr(4800),
	})
	require.NoError(t, err)
	assert.Zero(t, updated.ProposalAmount)
	assert.Equal(t, 4800.0, updated.JobBookedAmount)

	// a booked amount on a new lead is dropped
	updated, err = svc.Update(ctx, "t1", lead.ID, domain.LeadUpdate{
		Status:          statusPtr(domain.StatusNew),
		JobBookedAmount: floatPtr(100),
	})
	require.NoError(t, err)
	assert.Zero(t, updated.JobBookedAmount)

	stored, err := repo.GetByID(ctx, "t1", lead.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusNew, stored.Status)
	assert.Zero(t, stored.JobBookedAmount)
	assert.Zero(t, stored.ProposalAmount)
}

func TestLeadServiceUpdateUnqualifiedReason(t *testing.T) {
	repo := infrastructure.NewLeadRepository(testLogger())
	svc := NewLeadService(repo, testLogger())
	ctx := context.Background()

	lead := seedLead(t, repo, domain.Lead{ClientID: "t1", CRMContactID: "c1", Status: domain.StatusNew})

	reason := " dq - no budget "
	updated, err := svc.Update(ctx, "t1", lead.ID, domain.LeadUpdate{
		Status:                statusPtr(domain.StatusUnqualified),
		UnqualifiedLeadReason: &reason,
	})
	require.NoError(t, err)
	assert.Equal(t, "dq - no budget", updated.UnqualifiedLeadReason)

	updated, err = svc.Update(ctx, "t1", lead.ID, domain.LeadUpdate{Status: statusPtr(domain.StatusInProgress)})
	require.NoError(t, err)
	assert.Empty(t, updated.UnqualifiedLeadReason)
}

func TestLeadServiceUpdateRejectsInvalidInput(t *testing.T) {
	repo := infrastructure.NewLeadRepository(testLogger())
	svc := NewLeadService(repo, testLogger())
	ctx := context.Background()

	lead := seedLead(t, repo, domain.Lead{ClientID: "t1", CRMContactID: "c1", Status: domain.StatusEstimateSet})

	tests := []struct {
		name      string
		update    domain.LeadUpdate
		wantField string
	}{
		{"negative proposal", domain.LeadUpdate{ProposalAmount: floatPtr(-1)}, "proposal_amount"},
		{"negative booked amount", domain.LeadUpdate{JobBookedAmount: floatPtr(-0.5)}, "job_booked_amount"},
		{"unknown status", domain.LeadUpdate{Status: statusPtr("won")}, "status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Update(ctx, "t1", lead.ID, tt.update)
			var vErr *domain.ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.wantField, vErr.Field)
		})
	}
}

func TestLeadServiceUpdateNotFound(t *testing.T) {
	repo := infrastructure.NewLeadRepository(testLogger())
	svc := NewLeadService(repo, testLogger())

	lead := seedLead(t, repo, domain.Lead{ClientID: "t1", CRMContactID: "c1", Status: domain.StatusNew})

	_, err := svc.Update(context.Background(), "t1", "missing", domain.LeadUpdate{})
	assert.True(t, domain.IsNotFound(err))

	// another tenant cannot reach the lead
	_, err = svc.Update(context.Background(), "t2", lead.ID, domain.LeadUpdate{})
	assert.True(t, domain.IsNotFound(err))
}
