package domain

import (
	"context"
	"time"
)

// CacheRepository defines the interface for caching operations
type CacheRepository interface {
	Get(ctx context.Context, key string) (interface{}, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// CommerceClient defines the interface for the commerce platform admin API
type CommerceClient interface {
	ListCollections(ctx context.Context, store Store) ([]Collection, error)
	ListCollectionProductIDs(ctx context.Context, store Store, collectionID int64) ([]int64, error)
	GetProducts(ctx context.Context, store Store, ids []int64) ([]Product, error)
	ProductCollectionHandles(ctx context.Context, store Store, productID int64) ([]string, error)
	UpdateProduct(ctx context.Context, store Store, update ProductUpdate) error
	ListFieldDefinitions(ctx context.Context, store Store) ([]FieldDefinition, error)
	SetCustomFields(ctx context.Context, store Store, writes []FieldWrite) error
}

// GenerationRequest is one prompt sent to the text generation API
type GenerationRequest struct {
	SystemPrompt string
	UserPrompt   string
	Model        string
	Temperature  float64
}

// TextGenerator defines the interface for the hosted language model
type TextGenerator interface {
	Generate(ctx context.Context, req GenerationRequest) (string, error)
}
