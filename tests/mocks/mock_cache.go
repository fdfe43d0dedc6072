package mocks

import (
	"context"
	"strings"
	"sync"

	"github.com/zdziszkee/swift-registry/internal/cache"
)

// MockCache is an in-memory cache.Cache with the same version semantics as
// the Redis implementation. Setting Err makes every call fail.
type MockCache struct {
	mu              sync.Mutex
	codes           map[string][]byte
	countries       map[string][]byte
	prefixVersions  map[string]int64
	countryVersions map[string]int64
	Invalidated     []string
	StaleWrites     int
	Err             error
	HealthErr       error
}

func NewMockCache() *MockCache {
	return &MockCache{
		codes:           map[string][]byte{},
		countries:       map[string][]byte{},
		prefixVersions:  map[string]int64{},
		countryVersions: map[string]int64{},
	}
}

func (m *MockCache) GetCode(_ context.Context, prefix, code string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	v, ok := m.codes[prefix+"/"+code]
	if !ok {
		return nil, cache.ErrMiss
	}
	return v, nil
}

func (m *MockCache) PrefixVersion(_ context.Context, prefix string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return 0, m.Err
	}
	return m.prefixVersions[prefix], nil
}

func (m *MockCache) SetCode(_ context.Context, prefix, code string, version int64, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if m.prefixVersions[prefix] != version {
		m.StaleWrites++
		return cache.ErrStale
	}
	m.codes[prefix+"/"+code] = value
	return nil
}

func (m *MockCache) GetCountry(_ context.Context, countryISO2 string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	v, ok := m.countries[countryISO2]
	if !ok {
		return nil, cache.ErrMiss
	}
	return v, nil
}

func (m *MockCache) CountryVersion(_ context.Context, countryISO2 string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return 0, m.Err
	}
	return m.countryVersions[countryISO2], nil
}

func (m *MockCache) SetCountry(_ context.Context, countryISO2 string, version int64, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if m.countryVersions[countryISO2] != version {
		m.StaleWrites++
		return cache.ErrStale
	}
	m.countries[countryISO2] = value
	return nil
}

func (m *MockCache) Invalidate(_ context.Context, prefix, countryISO2 string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Invalidated = append(m.Invalidated, prefix+"/"+countryISO2)
	if m.Err != nil {
		return m.Err
	}
	m.prefixVersions[prefix]++
	m.countryVersions[countryISO2]++
	for key := range m.codes {
		if strings.HasPrefix(key, prefix+"/") {
			delete(m.codes, key)
		}
	}
	delete(m.countries, countryISO2)
	return nil
}

// Len returns the number of cached code entries.
func (m *MockCache) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.codes)
}

func (m *MockCache) Health(context.Context) error { return m.HealthErr }

func (m *MockCache) Close() error { return nil }
