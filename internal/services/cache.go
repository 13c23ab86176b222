package services

import (
	"context"
	"errors"
	"strings"

	"github.com/patrickmn/go-cache"

	"holiday-status-api/internal/models"
)

// ErrNotFound is returned by ResultCache.Get when a city has no stored result
var ErrNotFound = errors.New("no cached result for city")

// ResultCache stores at most one AnalysisResult per city.
// Writes overwrite unconditionally; concurrent writers race and the last one wins.
type ResultCache interface {
	Get(ctx context.Context, city string) (*models.AnalysisResult, error)
	Put(ctx context.Context, city string, result *models.AnalysisResult) error
}

// MemoryCache keeps results in process memory. Contents are lost on restart
// and are not shared between Lambda instances.
type MemoryCache struct {
	store *cache.Cache
}

// NewMemoryCache creates an in-memory cache whose entries never expire
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		store: cache.New(cache.NoExpiration, 0),
	}
}

// Get returns a copy of the stored result
func (m *MemoryCache) Get(ctx context.Context, city string) (*models.AnalysisResult, error) {
	value, ok := m.store.Get(cacheKey(city))
	if !ok {
		return nil, ErrNotFound
	}
	result := value.(models.AnalysisResult)
	return &result, nil
}

// Put replaces the stored result for the city
func (m *MemoryCache) Put(ctx context.Context, city string, result *models.AnalysisResult) error {
	if result == nil {
		return errors.New("result cannot be nil")
	}
	m.store.Set(cacheKey(city), *result, cache.NoExpiration)
	return nil
}

// cacheKey is the storage key for a city. City names are matched exactly after trimming.
func cacheKey(city string) string {
	return strings.TrimSpace(city)
}
