package usecase

import (
	"testing"

	"funnelreport/internal/domain"

	"github.com/stretchr/testify/assert"
)

func TestClassifyTags(t *testing.T) {
	tests := []struct {
		name       string
		tags       []string
		wantOK     bool
		wantStatus domain.LeadStatus
		wantReason string
	}{
		{
			name:       "disqualified with reason",
			tags:       []string{"dq - out of area", "facebook lead"},
			wantOK:     true,
			wantStatus: domain.StatusUnqualified,
			wantReason: "dq - out of area",
		},
		{
			name:       "new lead",
			tags:       []string{"new_lead", "facebook lead"},
			wantOK:     true,
			wantStatus: domain.StatusNew,
		},
		{
			name:   "new lead without source tag",
			tags:   []string{"new_lead"},
			wantOK: false,
		},
		{
			name:   "source tag missing despite other matches",
			tags:   []string{"dq - out of area", "estimate set", "day 3", "new_lead"},
			wantOK: false,
		},
		{
			name:       "unqualified beats estimate set",
			tags:       []string{"facebook lead", "estimate set", "dq - no budget"},
			wantOK:     true,
			wantStatus: domain.StatusUnqualified,
			wantReason: "dq - no budget",
		},
		{
			name:       "estimate set beats nurture",
			tags:       []string{"facebook lead", "day 2", "appointment set", "new_lead"},
			wantOK:     true,
			wantStatus: domain.StatusEstimateSet,
		},
		{
			name:       "nurture beats new",
			tags:       []string{"facebook lead", "new_lead", "day 5"},
			wantOK:     true,
			wantStatus: domain.StatusInProgress,
		},
		{
			name:       "normalizes case and whitespace",
			tags:       []string{"  Facebook Lead ", "NEW_LEAD"},
			wantOK:     true,
			wantStatus: domain.StatusNew,
		},
		{
			name:   "source tag only is inconsistent",
			tags:   []string{"facebook lead", "vip", "spring promo"},
			wantOK: false,
		},
		{
			name:   "no tags",
			tags:   nil,
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ClassifyTags(tt.tags)
			assert.Equal(t, tt.wantOK, ok)
			if !tt.wantOK {
				return
			}
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.Equal(t, tt.wantReason, got.UnqualifiedReason)
		})
	}
}

func TestKeyedGuard(t *testing.T) {
	guard := NewKeyedGuard()

	release, ok := guard.TryAcquire("t1")
	assert.True(t, ok)
	assert.True(t, guard.Running("t1"))

	_, ok = guard.TryAcquire("t1")
	assert.False(t, ok)

	other, ok := guard.TryAcquire("t2")
	assert.True(t, ok)
	other()

	release()
	release()
	assert.False(t, guard.Running("t1"))

	_, ok = guard.TryAcquire("t1")
	assert.True(t, ok)
}
