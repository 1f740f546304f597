package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/capital-declarations-api/internal/models"
	appErrors "github.com/noah-isme/capital-declarations-api/pkg/errors"
)

type memoryCache struct {
	mu    sync.Mutex
	items map[string][]byte
	ttls  map[string]time.Duration
}

func newMemoryCache() *memoryCache {
	return &memoryCache{items: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *memoryCache) Get(ctx context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.items[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.items[key] = raw
	m.ttls[key] = ttl
	return nil
}

func (m *memoryCache) Delete(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.items, k)
	}
	return nil
}

type countingFirms struct {
	firmStub
	calls int
}

func (c *countingFirms) GetBranding(ctx context.Context, firmID string) (*models.FirmBranding, error) {
	c.calls++
	return c.firmStub.GetBranding(ctx, firmID)
}

func TestBrandingServiceCachesBranding(t *testing.T) {
	firms := &countingFirms{firmStub: firmStub{branding: &models.FirmBranding{ID: testFirmID, Name: "Cohen & Co", PrimaryColor: strPtr("#123456")}}}
	cacheRepo := newMemoryCache()
	metrics := NewMetricsService()
	svc := NewBrandingService(firms, NewCacheService(cacheRepo, metrics, time.Minute, nil, true), 5*time.Minute)
	ctx := context.Background()

	first, err := svc.GetBranding(ctx, testFirmID)
	require.NoError(t, err)
	second, err := svc.GetBranding(ctx, testFirmID)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, firms.calls)
	assert.Equal(t, 5*time.Minute, cacheRepo.ttls["firm:branding:"+testFirmID])

	snapshot := metrics.Snapshot()
	assert.Equal(t, uint64(1), snapshot.CacheHits)
	assert.Equal(t, uint64(1), snapshot.CacheMisses)

	svc.InvalidateBranding(ctx, testFirmID)
	_, err = svc.GetBranding(ctx, testFirmID)
	require.NoError(t, err)
	assert.Equal(t, 2, firms.calls)
}

func TestBrandingServiceMissingFirm(t *testing.T) {
	svc := NewBrandingService(&firmStub{}, nil, 0)
	_, err := svc.GetBranding(context.Background(), "nope")
	requireAppCode(t, err, appErrors.ErrNotFound)
}
