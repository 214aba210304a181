package shopify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shoprewrite/backend/internal/domain"
	"github.com/shoprewrite/backend/internal/infrastructure/metrics"
)

const apiBase = "https://plants.example.com/admin/api/2024-01/"

var testStore = domain.Store{Domain: "plants.example.com", AccessToken: "shpat_test"}

var _ domain.CommerceClient = (*Client)(nil)

type testClient struct {
	*Client
	transport *httpmock.MockTransport
	sleeps    []time.Duration
}

func newTestClient(t *testing.T, cfg Config) *testClient {
	t.Helper()
	cfg.RateLimit = 1000
	cfg.RateBurst = 1000
	c, err := NewClient(cfg, metrics.NewMetrics(), zerolog.Nop())
	require.NoError(t, err)

	tc := &testClient{Client: c, transport: httpmock.NewMockTransport()}
	c.httpClient.Transport = tc.transport
	c.policy.Sleep = func(ctx context.Context, d time.Duration) error {
		tc.sleeps = append(tc.sleeps, d)
		return nil
	}
	return tc
}

func jsonResponder(t *testing.T, body interface{}) httpmock.Responder {
	t.Helper()
	return func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "shpat_test", req.Header.Get("X-Shopify-Access-Token"))
		return httpmock.NewJsonResponse(http.StatusOK, body)
	}
}

func graphQLVariables(t *testing.T, req *http.Request) map[string]interface{} {
	t.Helper()
	raw, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	var body struct {
		Query     string                 `json:"query"`
		Variables map[string]interface{} `json:"variables"`
	}
	require.NoError(t, json.Unmarshal(raw, &body))
	return body.Variables
}

func TestListCollectionsPaginatesAndCachesHandles(t *testing.T) {
	c := newTestClient(t, Config{PageSize: 2})

	var sinceIDs []string
	c.transport.RegisterResponder(http.MethodGet, apiBase+"custom_collections.json", func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "2", req.URL.Query().Get("limit"))
		since := req.URL.Query().Get("since_id")
		sinceIDs = append(sinceIDs, since)
		if since == "" {
			return httpmock.NewJsonResponse(200, map[string]interface{}{"custom_collections": []map[string]interface{}{
				{"id": 1, "title": "Kamerplanten", "handle": "kamerplanten"},
				{"id": 2, "title": "Potten", "handle": "potten"},
			}})
		}
		return httpmock.NewJsonResponse(200, map[string]interface{}{"custom_collections": []map[string]interface{}{
			{"id": 3, "title": "Tuinplanten", "handle": "tuinplanten"},
		}})
	})
	c.transport.RegisterResponder(http.MethodGet, apiBase+"smart_collections.json", jsonResponder(t, map[string]interface{}{
		"smart_collections": []map[string]interface{}{{"id": 10, "title": "Sale", "handle": "sale"}},
	}))

	got, err := c.ListCollections(context.Background(), testStore)

	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, domain.Collection{ID: 1, Title: "Kamerplanten", Handle: "kamerplanten"}, got[0])
	assert.Equal(t, int64(10), got[3].ID)
	assert.Equal(t, []string{"", "2"}, sinceIDs)

	c.transport.RegisterResponder(http.MethodGet, apiBase+"collects.json", jsonResponder(t, map[string]interface{}{
		"collects": []map[string]interface{}{{"collection_id": 10}, {"collection_id": 2}, {"collection_id": 2}},
	}))

	handles, err := c.ProductCollectionHandles(context.Background(), testStore, 99)

	require.NoError(t, err)
	assert.Equal(t, []string{"potten", "sale"}, handles)
	assert.Equal(t, 2, c.transport.GetCallCountInfo()["GET "+apiBase+"custom_collections.json"])
}

func TestProductCollectionHandlesFetchesUnknownCollection(t *testing.T) {
	c := newTestClient(t, Config{})

	c.transport.RegisterResponder(http.MethodGet, apiBase+"collects.json", func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "42", req.URL.Query().Get("product_id"))
		return httpmock.NewJsonResponse(200, map[string]interface{}{"collects": []map[string]interface{}{{"collection_id": 7}}})
	})
	c.transport.RegisterResponder(http.MethodGet, apiBase+"custom_collections.json", func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "7", req.URL.Query().Get("ids"))
		return httpmock.NewJsonResponse(200, map[string]interface{}{"custom_collections": []interface{}{}})
	})
	c.transport.RegisterResponder(http.MethodGet, apiBase+"smart_collections.json", jsonResponder(t, map[string]interface{}{
		"smart_collections": []map[string]interface{}{{"id": 7, "title": "Olijfbomen", "handle": "olijfbomen"}},
	}))

	handles, err := c.ProductCollectionHandles(context.Background(), testStore, 42)
	require.NoError(t, err)
	assert.Equal(t, []string{"olijfbomen"}, handles)

	_, err = c.ProductCollectionHandles(context.Background(), testStore, 42)
	require.NoError(t, err)
	assert.Equal(t, 1, c.transport.GetCallCountInfo()["GET "+apiBase+"smart_collections.json"])
}

func TestListCollectionProductIDs(t *testing.T) {
	c := newTestClient(t, Config{PageSize: 2})

	c.transport.RegisterResponder(http.MethodGet, apiBase+"products.json", func(req *http.Request) (*http.Response, error) {
		q := req.URL.Query()
		assert.Equal(t, "5", q.Get("collection_id"))
		assert.Equal(t, "id", q.Get("fields"))
		switch q.Get("since_id") {
		case "":
			return httpmock.NewJsonResponse(200, map[string]interface{}{"products": []map[string]int64{{"id": 11}, {"id": 12}}})
		case "12":
			return httpmock.NewJsonResponse(200, map[string]interface{}{"products": []map[string]int64{{"id": 13}, {"id": 14}}})
		default:
			return httpmock.NewJsonResponse(200, map[string]interface{}{"products": []interface{}{}})
		}
	})

	ids, err := c.ListCollectionProductIDs(context.Background(), testStore, 5)

	require.NoError(t, err)
	assert.Equal(t, []int64{11, 12, 13, 14}, ids)
	assert.Equal(t, 3, c.transport.GetTotalCallCount())
}

func TestGetProductsChunksIDs(t *testing.T) {
	c := newTestClient(t, Config{PageSize: 2})

	var requested []string
	c.transport.RegisterResponder(http.MethodGet, apiBase+"products.json", func(req *http.Request) (*http.Response, error) {
		q := req.URL.Query()
		requested = append(requested, q.Get("ids"))
		assert.Equal(t, productFields, q.Get("fields"))

		var products []map[string]interface{}
		for _, id := range strings.Split(q.Get("ids"), ",") {
			products = append(products, map[string]interface{}{
				"id": json.Number(id), "title": "Plant " + id, "body_html": "<p>x</p>",
				"variants": []map[string]interface{}{{"id": 1, "title": "Default Title", "option1": "Ø 12 cm"}},
			})
		}
		return httpmock.NewJsonResponse(200, map[string]interface{}{"products": products})
	})

	products, err := c.GetProducts(context.Background(), testStore, []int64{1, 2, 3})

	require.NoError(t, err)
	assert.Equal(t, []string{"1,2", "3"}, requested)
	require.Len(t, products, 3)
	assert.Equal(t, "Plant 3", products[2].Title)
	assert.Equal(t, "Ø 12 cm", products[0].OptionText())
}

func TestRetriesHonorRetryAfter(t *testing.T) {
	c := newTestClient(t, Config{})

	calls := 0
	c.transport.RegisterResponder(http.MethodGet, apiBase+"collects.json", func(req *http.Request) (*http.Response, error) {
		calls++
		if calls == 1 {
			resp := httpmock.NewStringResponse(http.StatusTooManyRequests, `{"errors":"Exceeded 2 calls per second for api client. Reduce request rates to resume uninterrupted service."}`)
			resp.Header.Set("Retry-After", "2.0")
			return resp, nil
		}
		return httpmock.NewJsonResponse(200, map[string]interface{}{"collects": []interface{}{}})
	})

	handles, err := c.ProductCollectionHandles(context.Background(), testStore, 1)

	require.NoError(t, err)
	assert.Empty(t, handles)
	assert.Equal(t, 2, calls)
	assert.Equal(t, []time.Duration{2 * time.Second}, c.sleeps)
}

func TestServerErrorsAreRetriedWithBackoff(t *testing.T) {
	c := newTestClient(t, Config{MaxAttempts: 3, BaseDelay: time.Second})

	c.transport.RegisterResponder(http.MethodGet, apiBase+"collects.json", httpmock.NewStringResponder(http.StatusServiceUnavailable, "down"))

	_, err := c.ProductCollectionHandles(context.Background(), testStore, 1)

	var apiErr *domain.CommerceAPIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Equal(t, "down", apiErr.Message)
	assert.Equal(t, 3, c.transport.GetTotalCallCount())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, c.sleeps)
}

func TestPermanentErrorsAreNotRetried(t *testing.T) {
	testCases := []struct {
		name     string
		status   int
		body     string
		sentinel error
	}{
		{"unauthorized", http.StatusUnauthorized, `{"errors":"[API] Invalid API key or access token"}`, domain.ErrCommerceAPI},
		{"not found", http.StatusNotFound, `{"errors":"Not Found"}`, domain.ErrNotFound},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, Config{})
			c.transport.RegisterResponder(http.MethodGet, apiBase+"products.json", httpmock.NewStringResponder(tc.status, tc.body))

			_, err := c.ListCollectionProductIDs(context.Background(), testStore, 1)

			assert.ErrorIs(t, err, tc.sentinel)
			assert.Equal(t, 1, c.transport.GetTotalCallCount())
			assert.Empty(t, c.sleeps)
		})
	}
}

func TestMalformedResponsesAreNotRetried(t *testing.T) {
	t.Run("graphql mutation", func(t *testing.T) {
		c := newTestClient(t, Config{})
		c.transport.RegisterResponder(http.MethodPost, apiBase+"graphql.json", httpmock.NewStringResponder(200, "<html>not json</html>"))

		err := c.UpdateProduct(context.Background(), testStore, domain.ProductUpdate{ID: 1})

		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrMalformedResponse)
		assert.ErrorIs(t, err, domain.ErrCommerceAPI)
		assert.Equal(t, 1, c.transport.GetTotalCallCount())
		assert.Empty(t, c.sleeps)
	})

	t.Run("custom field mutation", func(t *testing.T) {
		c := newTestClient(t, Config{})
		c.transport.RegisterResponder(http.MethodPost, apiBase+"graphql.json", httpmock.NewStringResponder(200, `{"data":`))

		err := c.SetCustomFields(context.Background(), testStore, []domain.FieldWrite{{
			OwnerID:    1,
			Definition: domain.FieldDefinition{Namespace: "custom", Key: "height", Type: domain.FieldTypeInteger},
			ValueCM:    150,
		}})

		assert.ErrorIs(t, err, domain.ErrMalformedResponse)
		assert.Equal(t, 1, c.transport.GetTotalCallCount())
	})

	t.Run("rest listing", func(t *testing.T) {
		c := newTestClient(t, Config{})
		c.transport.RegisterResponder(http.MethodGet, apiBase+"products.json", httpmock.NewStringResponder(200, "not json"))

		_, err := c.ListCollectionProductIDs(context.Background(), testStore, 1)

		assert.ErrorIs(t, err, domain.ErrMalformedResponse)
		assert.Equal(t, 1, c.transport.GetTotalCallCount())
		assert.Empty(t, c.sleeps)
	})
}

func TestTransportErrorIsRetried(t *testing.T) {
	c := newTestClient(t, Config{MaxAttempts: 2})
	c.transport.RegisterResponder(http.MethodGet, apiBase+"collects.json", httpmock.NewErrorResponder(errors.New("connection reset")))

	_, err := c.ProductCollectionHandles(context.Background(), testStore, 1)

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrCommerceAPI)
	assert.Equal(t, 2, c.transport.GetTotalCallCount())
}

func TestUpdateProduct(t *testing.T) {
	c := newTestClient(t, Config{})

	var input map[string]interface{}
	c.transport.RegisterResponder(http.MethodPost, apiBase+"graphql.json", func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
		input, _ = graphQLVariables(t, req)["input"].(map[string]interface{})
		return httpmock.NewJsonResponse(200, map[string]interface{}{
			"data": map[string]interface{}{"productUpdate": map[string]interface{}{
				"product": map[string]string{"id": "gid://shopify/Product/42"}, "userErrors": []interface{}{},
			}},
		})
	})

	err := c.UpdateProduct(context.Background(), testStore, domain.ProductUpdate{
		ID: 42, Title: "Ficus", BodyHTML: "<p>x</p>", SEOTitle: "Ficus | Shop", SEODescription: "Koop Ficus",
	})

	require.NoError(t, err)
	require.NotNil(t, input)
	assert.Equal(t, "gid://shopify/Product/42", input["id"])
	assert.Equal(t, "Ficus", input["title"])
	assert.Equal(t, "<p>x</p>", input["descriptionHtml"])
	assert.Equal(t, map[string]interface{}{"title": "Ficus | Shop", "description": "Koop Ficus"}, input["seo"])
}

func TestUpdateProductUserErrors(t *testing.T) {
	c := newTestClient(t, Config{})
	c.transport.RegisterResponder(http.MethodPost, apiBase+"graphql.json", httpmock.NewStringResponder(200,
		`{"data":{"productUpdate":{"product":null,"userErrors":[{"field":["title"],"message":"Title can't be blank"}]}}}`))

	err := c.UpdateProduct(context.Background(), testStore, domain.ProductUpdate{ID: 1})

	var userErrs *domain.UserErrors
	require.True(t, errors.As(err, &userErrs))
	assert.Equal(t, "productUpdate", userErrs.Operation)
	assert.Equal(t, []string{"title"}, userErrs.Errors[0].Field)
	assert.ErrorIs(t, err, domain.ErrCommerceAPI)
}

func TestGraphQLThrottledIsRetried(t *testing.T) {
	c := newTestClient(t, Config{})

	calls := 0
	c.transport.RegisterResponder(http.MethodPost, apiBase+"graphql.json", func(req *http.Request) (*http.Response, error) {
		calls++
		if calls == 1 {
			return httpmock.NewStringResponse(200, `{"errors":[{"message":"Throttled","extensions":{"code":"THROTTLED"}}]}`), nil
		}
		return httpmock.NewStringResponse(200, `{"data":{"productUpdate":{"userErrors":[]}}}`), nil
	})

	require.NoError(t, c.UpdateProduct(context.Background(), testStore, domain.ProductUpdate{ID: 1}))
	assert.Equal(t, 2, calls)
}

func TestGraphQLErrorsArePermanent(t *testing.T) {
	c := newTestClient(t, Config{})
	c.transport.RegisterResponder(http.MethodPost, apiBase+"graphql.json", httpmock.NewStringResponder(200,
		`{"errors":[{"message":"Field 'bogus' doesn't exist on type 'Product'"}]}`))

	err := c.UpdateProduct(context.Background(), testStore, domain.ProductUpdate{ID: 1})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "doesn't exist")
	assert.Equal(t, 1, c.transport.GetTotalCallCount())
}

func TestListFieldDefinitionsFollowsCursor(t *testing.T) {
	c := newTestClient(t, Config{})

	var cursors []interface{}
	c.transport.RegisterResponder(http.MethodPost, apiBase+"graphql.json", func(req *http.Request) (*http.Response, error) {
		after := graphQLVariables(t, req)["after"]
		cursors = append(cursors, after)
		if after == nil {
			return httpmock.NewStringResponse(200, `{"data":{"metafieldDefinitions":{
				"nodes":[{"name":"Hoogte","namespace":"custom","key":"hoogte","type":{"name":"number_integer"}}],
				"pageInfo":{"hasNextPage":true,"endCursor":"abc"}}}}`), nil
		}
		return httpmock.NewStringResponse(200, `{"data":{"metafieldDefinitions":{
			"nodes":[{"name":"Potmaat","namespace":"custom","key":"pot_size","type":{"name":"dimension"}}],
			"pageInfo":{"hasNextPage":false,"endCursor":"def"}}}}`), nil
	})

	defs, err := c.ListFieldDefinitions(context.Background(), testStore)

	require.NoError(t, err)
	assert.Equal(t, []interface{}{nil, "abc"}, cursors)
	assert.Equal(t, []domain.FieldDefinition{
		{Name: "Hoogte", Namespace: "custom", Key: "hoogte", Type: domain.FieldTypeInteger},
		{Name: "Potmaat", Namespace: "custom", Key: "pot_size", Type: domain.FieldTypeDimension},
	}, defs)
}

func TestSetCustomFieldsEncodesByType(t *testing.T) {
	c := newTestClient(t, Config{})

	var metafields []interface{}
	c.transport.RegisterResponder(http.MethodPost, apiBase+"graphql.json", func(req *http.Request) (*http.Response, error) {
		metafields, _ = graphQLVariables(t, req)["metafields"].([]interface{})
		return httpmock.NewStringResponse(200, `{"data":{"metafieldsSet":{"metafields":[],"userErrors":[]}}}`), nil
	})

	err := c.SetCustomFields(context.Background(), testStore, []domain.FieldWrite{
		{OwnerID: 5, Definition: domain.FieldDefinition{Namespace: "custom", Key: "height", Type: domain.FieldTypeInteger}, ValueCM: 149.6},
		{OwnerID: 5, Definition: domain.FieldDefinition{Namespace: "custom", Key: "pot", Type: domain.FieldTypeDimension}, ValueCM: 21},
	})

	require.NoError(t, err)
	require.Len(t, metafields, 2)
	first := metafields[0].(map[string]interface{})
	assert.Equal(t, "gid://shopify/Product/5", first["ownerId"])
	assert.Equal(t, "number_integer", first["type"])
	assert.Equal(t, "150", first["value"])
	assert.Equal(t, `{"value":21,"unit":"CENTIMETERS"}`, metafields[1].(map[string]interface{})["value"])
}

func TestSetCustomFieldsOwnerTypeMismatch(t *testing.T) {
	c := newTestClient(t, Config{})
	c.transport.RegisterResponder(http.MethodPost, apiBase+"graphql.json", httpmock.NewStringResponder(200,
		`{"data":{"metafieldsSet":{"metafields":null,"userErrors":[{"field":["metafields","0","type"],"message":"Owner type does not match","code":"INVALID_TYPE"}]}}}`))

	err := c.SetCustomFields(context.Background(), testStore, []domain.FieldWrite{
		{OwnerID: 5, Definition: domain.FieldDefinition{Namespace: "variant", Key: "height", Type: domain.FieldTypeText}, ValueCM: 10},
	})

	var userErrs *domain.UserErrors
	require.True(t, errors.As(err, &userErrs))
	assert.True(t, userErrs.OwnerTypeMismatch())
}

func TestSetCustomFieldsNoWrites(t *testing.T) {
	c := newTestClient(t, Config{})
	require.NoError(t, c.SetCustomFields(context.Background(), testStore, nil))
	assert.Equal(t, 0, c.transport.GetTotalCallCount())
}

func TestEncodeValue(t *testing.T) {
	testCases := []struct {
		fieldType domain.FieldType
		value     float64
		expected  string
	}{
		{domain.FieldTypeInteger, 40, "40"},
		{domain.FieldTypeInteger, 12.5, "13"},
		{domain.FieldTypeDecimal, 12.5, "12.5"},
		{domain.FieldTypeDimension, 12.5, `{"value":12.5,"unit":"CENTIMETERS"}`},
		{domain.FieldTypeText, 150, "150"},
		{"multi_line_text_field", 7.25, "7.25"},
	}

	for _, tc := range testCases {
		t.Run(string(tc.fieldType), func(t *testing.T) {
			got, err := encodeValue(tc.fieldType, tc.value)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	testCases := []struct {
		header   string
		expected time.Duration
	}{
		{"", 0},
		{"2.0", 2 * time.Second},
		{"1", time.Second},
		{"0.5", 500 * time.Millisecond},
		{"-3", 0},
		{"Wed, 01 May 2024 12:00:05 GMT", 5 * time.Second},
		{"Wed, 01 May 2024 11:59:00 GMT", 0},
		{"soon", 0},
	}

	for _, tc := range testCases {
		t.Run(tc.header, func(t *testing.T) {
			assert.Equal(t, tc.expected, parseRetryAfter(tc.header, now))
		})
	}
}

func TestEndpointUsesBaseURLOverride(t *testing.T) {
	c := newTestClient(t, Config{BaseURL: "http://localhost:9999/", APIVersion: "2025-01"})
	assert.Equal(t, "http://localhost:9999/admin/api/2025-01/products.json", c.endpoint(testStore, "products.json", nil))
}
