package domain

// CRMContact is a contact record as returned by the CRM API.
type CRMContact struct {
	ID          string   `json:"id"`
	FirstName   string   `json:"firstName"`
	LastName    string   `json:"lastName"`
	Email       string   `json:"email"`
	Phone       string   `json:"phone"`
	PostalCode  string   `json:"postalCode"`
	Tags        []string `json:"tags"`
	DateAdded   string   `json:"dateAdded"`
	Attribution struct {
		CampaignName string `json:"campaignName"`
		AdSetName    string `json:"adSetName"`
		AdName       string `json:"adName"`
	} `json:"attribution"`
	CustomFields map[string]any `json:"customFields"`
}

// CRMContactsPage is one page of the contacts listing.
type CRMContactsPage struct {
	Contacts []CRMContact `json:"contacts"`
	Meta     struct {
		Total       int    `json:"total"`
		NextPageURL string `json:"nextPageUrl"`
	} `json:"meta"`
}

// Classification is the status derived from a contact's tags.
type Classification struct {
	Status            LeadStatus
	UnqualifiedReason string
}
