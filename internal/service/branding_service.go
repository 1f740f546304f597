package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/noah-isme/capital-declarations-api/internal/models"
	appErrors "github.com/noah-isme/capital-declarations-api/pkg/errors"
)

type firmStore interface {
	GetBranding(ctx context.Context, firmID string) (*models.FirmBranding, error)
	GetClient(ctx context.Context, firmID, clientID string) (*models.Client, error)
}

// BrandingService serves firm branding and client identity, caching branding in Redis.
type BrandingService struct {
	store firmStore
	cache *CacheService
	ttl   time.Duration
}

// NewBrandingService constructs the service. cache may be nil.
func NewBrandingService(store firmStore, cache *CacheService, ttl time.Duration) *BrandingService {
	return &BrandingService{store: store, cache: cache, ttl: ttl}
}

func brandingCacheKey(firmID string) string {
	return "firm:branding:" + firmID
}

// GetBranding returns the firm presentation, served from cache when possible.
func (s *BrandingService) GetBranding(ctx context.Context, firmID string) (*models.FirmBranding, error) {
	key := brandingCacheKey(firmID)
	var cached models.FirmBranding
	if s.cache.Get(ctx, key, &cached) {
		return &cached, nil
	}

	branding, err := s.store.GetBranding(ctx, firmID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "firm not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load firm branding")
	}
	s.cache.Set(ctx, key, branding, s.ttl)
	return branding, nil
}

// InvalidateBranding drops the cached branding of a firm.
func (s *BrandingService) InvalidateBranding(ctx context.Context, firmID string) {
	s.cache.Invalidate(ctx, brandingCacheKey(firmID))
}

// GetClient returns the client a declaration belongs to.
func (s *BrandingService) GetClient(ctx context.Context, firmID, clientID string) (*models.Client, error) {
	client, err := s.store.GetClient(ctx, firmID, clientID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "client not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load client")
	}
	return client, nil
}
