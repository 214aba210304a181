package shopify

import (
	"context"
	"encoding/json"
	"math"
	"strconv"

	"github.com/shoprewrite/backend/internal/domain"
)

const metafieldDefinitionsQuery = `query metafieldDefinitions($after: String) {
  metafieldDefinitions(first: 250, ownerType: PRODUCT, after: $after) {
    nodes {
      name
      namespace
      key
      type {
        name
      }
    }
    pageInfo {
      hasNextPage
      endCursor
    }
  }
}`

// ListFieldDefinitions returns every product metafield definition
func (c *Client) ListFieldDefinitions(ctx context.Context, store domain.Store) ([]domain.FieldDefinition, error) {
	var out []domain.FieldDefinition
	var after interface{}
	for {
		var data struct {
			MetafieldDefinitions struct {
				Nodes []struct {
					Name      string `json:"name"`
					Namespace string `json:"namespace"`
					Key       string `json:"key"`
					Type      struct {
						Name string `json:"name"`
					} `json:"type"`
				} `json:"nodes"`
				PageInfo struct {
					HasNextPage bool   `json:"hasNextPage"`
					EndCursor   string `json:"endCursor"`
				} `json:"pageInfo"`
			} `json:"metafieldDefinitions"`
		}
		vars := map[string]interface{}{"after": after}
		if err := c.graphql(ctx, store, "metafieldDefinitions", metafieldDefinitionsQuery, vars, &data); err != nil {
			return nil, err
		}

		for _, n := range data.MetafieldDefinitions.Nodes {
			out = append(out, domain.FieldDefinition{
				Name:      n.Name,
				Namespace: n.Namespace,
				Key:       n.Key,
				Type:      domain.FieldType(n.Type.Name),
			})
		}

		page := data.MetafieldDefinitions.PageInfo
		if !page.HasNextPage || page.EndCursor == "" {
			return out, nil
		}
		after = page.EndCursor
	}
}

const metafieldsSetMutation = `mutation metafieldsSet($metafields: [MetafieldsSetInput!]!) {
  metafieldsSet(metafields: $metafields) {
    metafields {
      id
    }
    userErrors {
      field
      message
      code
    }
  }
}`

type metafieldInput struct {
	OwnerID   string `json:"ownerId"`
	Namespace string `json:"namespace"`
	Key       string `json:"key"`
	Type      string `json:"type"`
	Value     string `json:"value"`
}

// SetCustomFields writes product metafields, encoding each value for its
// declared type
func (c *Client) SetCustomFields(ctx context.Context, store domain.Store, writes []domain.FieldWrite) error {
	if len(writes) == 0 {
		return nil
	}

	inputs := make([]metafieldInput, 0, len(writes))
	for _, w := range writes {
		value, err := encodeValue(w.Definition.Type, w.ValueCM)
		if err != nil {
			return err
		}
		inputs = append(inputs, metafieldInput{
			OwnerID:   productGID(w.OwnerID),
			Namespace: w.Definition.Namespace,
			Key:       w.Definition.Key,
			Type:      string(w.Definition.Type),
			Value:     value,
		})
	}

	var data struct {
		MetafieldsSet struct {
			UserErrors []domain.FieldError `json:"userErrors"`
		} `json:"metafieldsSet"`
	}
	if err := c.graphql(ctx, store, "metafieldsSet", metafieldsSetMutation, map[string]interface{}{"metafields": inputs}, &data); err != nil {
		return err
	}
	if errs := data.MetafieldsSet.UserErrors; len(errs) > 0 {
		return &domain.UserErrors{Operation: "metafieldsSet", Errors: errs}
	}
	return nil
}

type dimensionValue struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

// encodeValue renders a centimetre value in the format a field type expects
func encodeValue(t domain.FieldType, cm float64) (string, error) {
	switch t {
	case domain.FieldTypeInteger:
		return strconv.FormatInt(int64(math.Round(cm)), 10), nil
	case domain.FieldTypeDimension:
		b, err := json.Marshal(dimensionValue{Value: cm, Unit: "CENTIMETERS"})
		if err != nil {
			return "", err
		}
		return string(b), nil
	default:
		return domain.FormatCM(cm), nil
	}
}
