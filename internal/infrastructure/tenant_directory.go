package infrastructure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"sync"

	"funnelreport/internal/domain"
	"funnelreport/pkg/logger"
)

// TenantCredentials is one entry of the tenant directory file.
type TenantCredentials struct {
	ID             string `json:"id"`
	AdAccountID    string `json:"adAccountId"`
	AdsAccessToken string `json:"adsAccessToken"`
	CRMAccessToken string `json:"crmAccessToken"`
}

// implements domain.TenantDirectory from a static list
type TenantDirectory struct {
	tenants map[string]TenantCredentials
	mutex   sync.RWMutex
}

func NewTenantDirectory(entries []TenantCredentials) *TenantDirectory {
	d := &TenantDirectory{tenants: make(map[string]TenantCredentials, len(entries))}
	for _, e := range entries {
		d.tenants[e.ID] = e
	}
	return d
}

// LoadTenantDirectory reads a JSON array of tenant credentials. A missing file
// yields an empty directory.
func LoadTenantDirectory(path string, logger *logger.Logger) (*TenantDirectory, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		logger.WithField("path", path).Warn("Tenant directory file not found, starting with no tenants")
		return NewTenantDirectory(nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read tenant directory: %w", err)
	}

	var entries []TenantCredentials
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse tenant directory: %w", err)
	}

	logger.WithField("tenants", len(entries)).Info("Loaded tenant directory")
	return NewTenantDirectory(entries), nil
}

func (d *TenantDirectory) ListTenants(ctx context.Context) ([]string, error) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	ids := make([]string, 0, len(d.tenants))
	for id := range d.tenants {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (d *TenantDirectory) AdAccountID(ctx context.Context, tenantID string) (string, error) {
	return d.lookup(tenantID, "ad account", func(t TenantCredentials) string { return t.AdAccountID })
}

func (d *TenantDirectory) AdsAccessToken(ctx context.Context, tenantID string) (string, error) {
	return d.lookup(tenantID, "ads access token", func(t TenantCredentials) string { return t.AdsAccessToken })
}

func (d *TenantDirectory) CRMAccessToken(ctx context.Context, tenantID string) (string, error) {
	return d.lookup(tenantID, "crm access token", func(t TenantCredentials) string { return t.CRMAccessToken })
}

func (d *TenantDirectory) lookup(tenantID, resource string, field func(TenantCredentials) string) (string, error) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	tenant, ok := d.tenants[tenantID]
	if !ok {
		return "", &domain.NotFoundError{Resource: "tenant", ID: tenantID}
	}
	value := field(tenant)
	if value == "" {
		return "", &domain.NotFoundError{Resource: resource, ID: tenantID}
	}
	return value, nil
}
