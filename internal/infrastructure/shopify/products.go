package shopify

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/shoprewrite/backend/internal/domain"
)

const productFields = "id,title,body_html,tags,variants"

// GetProducts fetches products by id, in chunks of the page size
func (c *Client) GetProducts(ctx context.Context, store domain.Store, ids []int64) ([]domain.Product, error) {
	out := make([]domain.Product, 0, len(ids))
	for start := 0; start < len(ids); start += c.config.PageSize {
		end := min(start+c.config.PageSize, len(ids))

		parts := make([]string, 0, end-start)
		for _, id := range ids[start:end] {
			parts = append(parts, strconv.FormatInt(id, 10))
		}

		params := url.Values{}
		params.Set("ids", strings.Join(parts, ","))
		params.Set("fields", productFields)
		params.Set("limit", strconv.Itoa(c.config.PageSize))

		var page struct {
			Products []domain.Product `json:"products"`
		}
		if err := c.getJSON(ctx, store, "list products", "products.json", params, &page); err != nil {
			return nil, err
		}
		out = append(out, page.Products...)
	}
	return out, nil
}

const productUpdateMutation = `mutation productUpdate($input: ProductInput!) {
  productUpdate(input: $input) {
    product {
      id
    }
    userErrors {
      field
      message
    }
  }
}`

// UpdateProduct writes title, body and SEO fields in one mutation
func (c *Client) UpdateProduct(ctx context.Context, store domain.Store, update domain.ProductUpdate) error {
	input := map[string]interface{}{
		"id":              productGID(update.ID),
		"title":           update.Title,
		"descriptionHtml": update.BodyHTML,
		"seo": map[string]string{
			"title":       update.SEOTitle,
			"description": update.SEODescription,
		},
	}

	var data struct {
		ProductUpdate struct {
			UserErrors []domain.FieldError `json:"userErrors"`
		} `json:"productUpdate"`
	}
	if err := c.graphql(ctx, store, "productUpdate", productUpdateMutation, map[string]interface{}{"input": input}, &data); err != nil {
		return err
	}
	if errs := data.ProductUpdate.UserErrors; len(errs) > 0 {
		return &domain.UserErrors{Operation: "productUpdate", Errors: errs}
	}
	return nil
}

func productGID(id int64) string {
	return "gid://shopify/Product/" + strconv.FormatInt(id, 10)
}
