package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/shoprewrite/backend/internal/domain"
)

// CollectionServiceConfig holds configuration for the collection service
type CollectionServiceConfig struct {
	CacheTTL time.Duration
}

// CollectionService lists collections and their products for the dashboard
type CollectionService struct {
	cache    domain.CacheRepository
	commerce domain.CommerceClient
	cacheTTL time.Duration
	logger   zerolog.Logger
}

// NewCollectionService creates a new collection service with dependencies
func NewCollectionService(
	cache domain.CacheRepository,
	commerce domain.CommerceClient,
	config CollectionServiceConfig,
	logger zerolog.Logger,
) *CollectionService {
	cacheTTL := config.CacheTTL
	if cacheTTL == 0 {
		cacheTTL = 10 * time.Minute
	}

	return &CollectionService{
		cache:    cache,
		commerce: commerce,
		cacheTTL: cacheTTL,
		logger:   logger,
	}
}

// ListCollections returns every collection of the store.
// Flow: check cache -> list from commerce API -> cache -> return
func (s *CollectionService) ListCollections(ctx context.Context, store domain.Store) ([]domain.Collection, error) {
	key := collectionsCacheKey(store)

	if cached, err := s.getFromCache(ctx, key); err == nil {
		return cached, nil
	}

	collections, err := s.commerce.ListCollections(ctx, store)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, key, collections, s.cacheTTL); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("caching collections failed")
	}

	return collections, nil
}

// Refresh drops the cached collection listing and loads it again
func (s *CollectionService) Refresh(ctx context.Context, store domain.Store) ([]domain.Collection, error) {
	if err := s.cache.Delete(ctx, collectionsCacheKey(store)); err != nil {
		s.logger.Warn().Err(err).Msg("dropping cached collections failed")
	}
	return s.ListCollections(ctx, store)
}

// ListProducts returns id and title of the products in the given
// collections, in collection order without duplicates
func (s *CollectionService) ListProducts(ctx context.Context, store domain.Store, collectionIDs []int64) ([]domain.ProductSummary, error) {
	if len(collectionIDs) == 0 {
		return nil, fmt.Errorf("%w: no collections selected", domain.ErrInvalidRequest)
	}

	ids, err := collectProductIDs(ctx, s.commerce, store, collectionIDs, nil)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []domain.ProductSummary{}, nil
	}

	products, err := s.commerce.GetProducts(ctx, store, ids)
	if err != nil {
		return nil, err
	}

	out := make([]domain.ProductSummary, 0, len(products))
	for _, p := range products {
		out = append(out, domain.ProductSummary{ID: p.ID, Title: p.Title})
	}
	return out, nil
}

// collectProductIDs merges explicit ids with the members of the given
// collections, keeping first-seen order
func collectProductIDs(ctx context.Context, commerce domain.CommerceClient, store domain.Store, collectionIDs, productIDs []int64) ([]int64, error) {
	seen := make(map[int64]bool)
	var ids []int64
	add := func(id int64) {
		if id > 0 && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	for _, id := range productIDs {
		add(id)
	}
	for _, cid := range collectionIDs {
		members, err := commerce.ListCollectionProductIDs(ctx, store, cid)
		if err != nil {
			return nil, fmt.Errorf("list products of collection %d: %w", cid, err)
		}
		for _, id := range members {
			add(id)
		}
	}
	return ids, nil
}

// collectionsCacheKey creates the cache key for a store's collection listing.
// Format: "collections:{store_domain}"
func collectionsCacheKey(store domain.Store) string {
	return "collections:" + strings.ToLower(strings.TrimSpace(store.Domain))
}

// getFromCache retrieves the collection listing from cache
func (s *CollectionService) getFromCache(ctx context.Context, key string) ([]domain.Collection, error) {
	value, err := s.cache.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	switch v := value.(type) {
	case []domain.Collection:
		return v, nil
	case []interface{}:
		return mapToCollections(v), nil
	}
	return nil, domain.ErrCacheMiss
}

// mapToCollections converts a JSON-decoded cache value to collections
func mapToCollections(items []interface{}) []domain.Collection {
	out := make([]domain.Collection, 0, len(items))
	for _, item := range items {
		data, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		var c domain.Collection
		if v, ok := data["id"].(float64); ok {
			c.ID = int64(v)
		}
		if v, ok := data["title"].(string); ok {
			c.Title = v
		}
		if v, ok := data["handle"].(string); ok {
			c.Handle = v
		}
		out = append(out, c)
	}
	return out
}
