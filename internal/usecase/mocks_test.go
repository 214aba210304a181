package usecase

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shoprewrite/backend/internal/domain"
)

// MockCacheRepository is a mock implementation of domain.CacheRepository
type MockCacheRepository struct {
	data      map[string]interface{}
	getError  error
	setError  error
	getCalled bool
	setCalled bool
}

func NewMockCacheRepository() *MockCacheRepository {
	return &MockCacheRepository{
		data: make(map[string]interface{}),
	}
}

func (m *MockCacheRepository) Get(ctx context.Context, key string) (interface{}, error) {
	m.getCalled = true
	if m.getError != nil {
		return nil, m.getError
	}
	if value, ok := m.data[key]; ok {
		return value, nil
	}
	return nil, domain.ErrCacheMiss
}

func (m *MockCacheRepository) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	m.setCalled = true
	if m.setError != nil {
		return m.setError
	}
	m.data[key] = value
	return nil
}

func (m *MockCacheRepository) Delete(ctx context.Context, key string) error {
	delete(m.data, key)
	return nil
}

func (m *MockCacheRepository) Exists(ctx context.Context, key string) (bool, error) {
	_, ok := m.data[key]
	return ok, nil
}

// MockCommerceClient is a mock implementation of domain.CommerceClient
type MockCommerceClient struct {
	mu sync.Mutex

	collections      []domain.Collection
	collectionsError error
	collectionIDs    map[int64][]int64
	products         map[int64]domain.Product
	productsError    error
	handles          map[int64][]string
	definitions      []domain.FieldDefinition
	definitionsError error
	updateError      map[int64]error
	// fieldErrors is keyed by namespace.key
	fieldErrors map[string]error

	// productsErrorOnCall fails the n-th GetProducts call, 1-based
	productsErrorOnCall map[int]error
	// reverseProducts returns products in reverse request order
	reverseProducts bool

	listCollectionsCalls int
	getProductsCalls     [][]int64
	definitionsCalls     int
	updates              []domain.ProductUpdate
	fieldWrites          []domain.FieldWrite
}

func NewMockCommerceClient() *MockCommerceClient {
	return &MockCommerceClient{
		collectionIDs: make(map[int64][]int64),
		products:      make(map[int64]domain.Product),
		handles:       make(map[int64][]string),
		updateError:   make(map[int64]error),
		fieldErrors:   make(map[string]error),
	}
}

func (m *MockCommerceClient) addProducts(products ...domain.Product) {
	for _, p := range products {
		m.products[p.ID] = p
	}
}

func (m *MockCommerceClient) ListCollections(ctx context.Context, store domain.Store) ([]domain.Collection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCollectionsCalls++
	if m.collectionsError != nil {
		return nil, m.collectionsError
	}
	return m.collections, nil
}

func (m *MockCommerceClient) ListCollectionProductIDs(ctx context.Context, store domain.Store, collectionID int64) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids, ok := m.collectionIDs[collectionID]
	if !ok {
		return nil, &domain.CommerceAPIError{Operation: "list collection products", StatusCode: 404}
	}
	return ids, nil
}

func (m *MockCommerceClient) GetProducts(ctx context.Context, store domain.Store, ids []int64) ([]domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getProductsCalls = append(m.getProductsCalls, append([]int64(nil), ids...))
	if m.productsError != nil {
		return nil, m.productsError
	}
	if err := m.productsErrorOnCall[len(m.getProductsCalls)]; err != nil {
		return nil, err
	}
	out := make([]domain.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			out = append(out, p)
		}
	}
	if m.reverseProducts {
		slices.Reverse(out)
	}
	return out, nil
}

func (m *MockCommerceClient) ProductCollectionHandles(ctx context.Context, store domain.Store, productID int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handles[productID], nil
}

func (m *MockCommerceClient) UpdateProduct(ctx context.Context, store domain.Store, update domain.ProductUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.updateError[update.ID]; err != nil {
		return err
	}
	m.updates = append(m.updates, update)
	return nil
}

func (m *MockCommerceClient) ListFieldDefinitions(ctx context.Context, store domain.Store) ([]domain.FieldDefinition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.definitionsCalls++
	if m.definitionsError != nil {
		return nil, m.definitionsError
	}
	return m.definitions, nil
}

func (m *MockCommerceClient) SetCustomFields(ctx context.Context, store domain.Store, writes []domain.FieldWrite) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range writes {
		if err := m.fieldErrors[w.Definition.Namespace+"."+w.Definition.Key]; err != nil {
			return err
		}
	}
	m.fieldWrites = append(m.fieldWrites, writes...)
	return nil
}

func (m *MockCommerceClient) updatedIDs() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]int64, 0, len(m.updates))
	for _, u := range m.updates {
		ids = append(ids, u.ID)
	}
	return ids
}

// MockTextGenerator is a mock implementation of domain.TextGenerator
type MockTextGenerator struct {
	mu       sync.Mutex
	reply    string
	replies  map[string]string
	errs     map[string]error
	requests []domain.GenerationRequest
	// onGenerate runs before each reply is returned
	onGenerate func(call int)
}

func NewMockTextGenerator(reply string) *MockTextGenerator {
	return &MockTextGenerator{
		reply:   reply,
		replies: make(map[string]string),
		errs:    make(map[string]error),
	}
}

func (m *MockTextGenerator) Generate(ctx context.Context, req domain.GenerationRequest) (string, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	call := len(m.requests)
	hook := m.onGenerate
	m.mu.Unlock()

	if hook != nil {
		hook(call)
	}

	for marker, err := range m.errs {
		if strings.Contains(req.UserPrompt, marker) {
			return "", err
		}
	}
	for marker, reply := range m.replies {
		if strings.Contains(req.UserPrompt, marker) {
			return reply, nil
		}
	}
	return m.reply, nil
}
