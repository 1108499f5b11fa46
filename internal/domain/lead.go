package domain

import (
	"strings"
	"time"
)

type LeadStatus string

const (
	StatusNew               LeadStatus = "new"
	StatusInProgress        LeadStatus = "in_progress"
	StatusEstimateSet       LeadStatus = "estimate_set"
	StatusVirtualQuote      LeadStatus = "virtual_quote"
	StatusProposalPresented LeadStatus = "proposal_presented"
	StatusJobBooked         LeadStatus = "job_booked"
	StatusUnqualified       LeadStatus = "unqualified"
	StatusEstimateCanceled  LeadStatus = "estimate_canceled"
	StatusJobLost           LeadStatus = "job_lost"
)

var leadStatuses = map[LeadStatus]bool{
	StatusNew:               true,
	StatusInProgress:        true,
	StatusEstimateSet:       true,
	StatusVirtualQuote:      true,
	StatusProposalPresented: true,
	StatusJobBooked:         true,
	StatusUnqualified:       true,
	StatusEstimateCanceled:  true,
	StatusJobLost:           true,
}

func (s LeadStatus) Valid() bool {
	return leadStatuses[s]
}

// AllowsProposalAmount reports whether a proposal amount may be non-zero.
func (s LeadStatus) AllowsProposalAmount() bool {
	switch s {
	case StatusEstimateSet, StatusVirtualQuote, StatusProposalPresented, StatusJobLost:
		return true
	}
	return false
}

// AllowsJobBookedAmount reports whether a booked amount may be non-zero.
func (s LeadStatus) AllowsJobBookedAmount() bool {
	return s == StatusJobBooked
}

var funnelRanks = map[LeadStatus]int{
	StatusNew:               0,
	StatusInProgress:        1,
	StatusEstimateSet:       2,
	StatusUnqualified:       2,
	StatusVirtualQuote:      3,
	StatusEstimateCanceled:  3,
	StatusProposalPresented: 4,
	StatusJobLost:           5,
	StatusJobBooked:         5,
}

// FunnelRank orders statuses by how far down the funnel a lead has moved.
func (s LeadStatus) FunnelRank() int {
	return funnelRanks[s]
}

// IsNetEstimate reports statuses that count as a reached estimate.
func (s LeadStatus) IsNetEstimate() bool {
	switch s {
	case StatusEstimateSet, StatusVirtualQuote, StatusProposalPresented, StatusJobBooked:
		return true
	}
	return false
}

// IsNetUnqualified reports statuses that count against the estimate-set rate.
func (s LeadStatus) IsNetUnqualified() bool {
	switch s {
	case StatusUnqualified, StatusEstimateCanceled, StatusJobLost:
		return true
	}
	return false
}

// Lead is a CRM funnel entry owned by a tenant (ClientID).
type Lead struct {
	ID           string `json:"id"`
	ClientID     string `json:"client_id"`
	CRMContactID string `json:"crm_contact_id"`

	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`

	CampaignName string `json:"campaign_name,omitempty"`
	AdSetName    string `json:"adset_name,omitempty"`
	AdName       string `json:"ad_name,omitempty"`

	Zip       string  `json:"zip,omitempty"`
	Service   string  `json:"service,omitempty"`
	LeadScore float64 `json:"lead_score"`

	Status                LeadStatus `json:"status"`
	UnqualifiedLeadReason string     `json:"unqualified_lead_reason,omitempty"`
	ProposalAmount        float64    `json:"proposal_amount"`
	JobBookedAmount       float64    `json:"job_booked_amount"`

	CreatedDate time.Time `json:"created_date"`
	UpdatedAt   time.Time `json:"updated_at"`
	Deleted     bool      `json:"-"`
}

// EnforceInvariants zeroes fields the current status does not permit.
// Every write path calls it before persisting.
func (l *Lead) EnforceInvariants() {
	if !l.Status.AllowsProposalAmount() {
		l.ProposalAmount = 0
	}
	if !l.Status.AllowsJobBookedAmount() {
		l.JobBookedAmount = 0
	}
	if l.Status != StatusUnqualified {
		l.UnqualifiedLeadReason = ""
	}
}

// LeadUpdate is a partial edit of a lead. Nil fields are left untouched.
type LeadUpdate struct {
	Status                *LeadStatus `json:"status,omitempty"`
	UnqualifiedLeadReason *string     `json:"unqualified_lead_reason,omitempty"`
	ProposalAmount        *float64    `json:"proposal_amount,omitempty" validate:"omitempty,gte=0"`
	JobBookedAmount       *float64    `json:"job_booked_amount,omitempty" validate:"omitempty,gte=0"`
	Service               *string     `json:"service,omitempty"`
	Zip                   *string     `json:"zip,omitempty"`
	LeadScore             *float64    `json:"lead_score,omitempty"`
}

// Apply merges the update into the lead and re-enforces the status invariants.
func (u LeadUpdate) Apply(l *Lead) {
	if u.Status != nil {
		l.Status = *u.Status
	}
	if u.UnqualifiedLeadReason != nil {
		l.UnqualifiedLeadReason = strings.TrimSpace(*u.UnqualifiedLeadReason)
	}
	if u.ProposalAmount != nil {
		l.ProposalAmount = *u.ProposalAmount
	}
	if u.JobBookedAmount != nil {
		l.JobBookedAmount = *u.JobBookedAmount
	}
	if u.Service != nil {
		l.Service = strings.TrimSpace(*u.Service)
	}
	if u.Zip != nil {
		l.Zip = strings.TrimSpace(*u.Zip)
	}
	if u.LeadScore != nil {
		l.LeadScore = *u.LeadScore
	}
	l.EnforceInvariants()
}
