package region

import (
	"fmt"
	"sort"
	"sync"

	"github.com/shehryarbajwa/devicecloud-mini/internal/network"
	"github.com/shehryarbajwa/devicecloud-mini/pkg/models"
)

// Region represents an API endpoint region
type Region string

const (
	RegionUSWest1    Region = "us-west-1"
	RegionUSEast4    Region = "us-east-4"
	RegionEUCentral1 Region = "eu-central-1"
)

// AccountsHost is the global sign-in host
const AccountsHost = "accounts.saucelabs.com"

// Endpoint wraps the hosts and data center of one region
type Endpoint struct {
	Region     Region
	APIHost    string
	DataCenter string
}

// Manager resolves hosts for every supported region
type Manager struct {
	endpoints map[Region]*Endpoint
	fallback  Region
	override  string
	mu        sync.RWMutex
}

// NewManager creates a region manager. A non-empty baseURL overrides the
// resolved API and accounts hosts, which is how tests and staging point
// the client somewhere else.
func NewManager(baseURL string) *Manager {
	manager := &Manager{
		endpoints: make(map[Region]*Endpoint),
		fallback:  RegionUSWest1,
		override:  baseURL,
	}

	regions := []struct {
		region     Region
		dataCenter string
	}{
		{RegionUSWest1, "US"},
		{RegionUSEast4, "US_EAST"},
		{RegionEUCentral1, "EU"},
	}

	for _, r := range regions {
		manager.endpoints[r.region] = &Endpoint{
			Region:     r.region,
			APIHost:    fmt.Sprintf("api.%s.saucelabs.com", r.region),
			DataCenter: r.dataCenter,
		}
	}

	return manager
}

// GetEndpoint returns the endpoint for a specific region
func (m *Manager) GetEndpoint(region Region) (*Endpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	endpoint, exists := m.endpoints[region]
	if !exists {
		return nil, fmt.Errorf("unsupported region: %s", region)
	}

	return endpoint, nil
}

// Route determines the region to use for a requested region name
func (m *Manager) Route(requested string) Region {
	region := Region(requested)

	m.mu.RLock()
	_, exists := m.endpoints[region]
	m.mu.RUnlock()

	if exists {
		return region
	}

	return m.fallback
}

// DataCenter returns the device data-center id for a region name
func (m *Manager) DataCenter(requested string) string {
	endpoint, err := m.GetEndpoint(m.Route(requested))
	if err != nil {
		return ""
	}
	return endpoint.DataCenter
}

// BaseURL implements network.Endpoints
func (m *Manager) BaseURL(service network.Service, auth *models.Authentication) (string, error) {
	if m.override != "" {
		return m.override, nil
	}

	if service == network.ServiceAccounts {
		return "https://" + AccountsHost, nil
	}

	requested := ""
	if auth != nil {
		requested = auth.Region
	}
	endpoint, err := m.GetEndpoint(m.Route(requested))
	if err != nil {
		return "", err
	}

	return "https://" + endpoint.APIHost, nil
}

// GetRegions returns all available regions
func (m *Manager) GetRegions() []Region {
	m.mu.RLock()
	defer m.mu.RUnlock()

	regions := make([]Region, 0, len(m.endpoints))
	for region := range m.endpoints {
		regions = append(regions, region)
	}
	sort.Slice(regions, func(i, j int) bool { return regions[i] < regions[j] })

	return regions
}

// Valid reports whether a region name is supported
func (m *Manager) Valid(requested string) bool {
	_, err := m.GetEndpoint(Region(requested))
	return err == nil
}
