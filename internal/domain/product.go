package domain

import (
	"strconv"
	"strings"
)

// Store identifies the commerce store every admin API call is made against
type Store struct {
	Domain      string `json:"domain"`
	AccessToken string `json:"-"`
}

// Product is the subset of a store product the optimizer reads and writes
type Product struct {
	ID       int64     `json:"id"`
	Title    string    `json:"title"`
	BodyHTML string    `json:"body_html"`
	Tags     string    `json:"tags"`
	Variants []Variant `json:"variants,omitempty"`
}

// Variant carries free-text option fields that may encode a size
type Variant struct {
	ID      int64  `json:"id"`
	Title   string `json:"title"`
	Option1 string `json:"option1,omitempty"`
	Option2 string `json:"option2,omitempty"`
	Option3 string `json:"option3,omitempty"`
}

// OptionText joins the variant title and options into one searchable string
func (p *Product) OptionText() string {
	parts := make([]string, 0, len(p.Variants)*4)
	for _, v := range p.Variants {
		for _, s := range []string{v.Title, v.Option1, v.Option2, v.Option3} {
			s = strings.TrimSpace(s)
			if s != "" && !strings.EqualFold(s, "Default Title") {
				parts = append(parts, s)
			}
		}
	}
	return strings.Join(parts, " ")
}

// Collection is a named grouping of products
type Collection struct {
	ID     int64  `json:"id"`
	Title  string `json:"title"`
	Handle string `json:"handle"`
}

// ProductSummary is a lightweight product listing entry for the dashboard
type ProductSummary struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

// Dimensions holds the measurements extracted from product text, in cm.
// A nil field means the value was not found and must stay unspecified.
type Dimensions struct {
	HeightCM   *float64 `json:"height_cm,omitempty"`
	DiameterCM *float64 `json:"diameter_cm,omitempty"`
}

// Any reports whether at least one dimension was found
func (d Dimensions) Any() bool {
	return d.HeightCM != nil || d.DiameterCM != nil
}

// FormatCM renders a centimetre value without trailing zeros
func FormatCM(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// RewriteResult is the per-product outcome of the pipeline before write-back
type RewriteResult struct {
	ProductID       int64      `json:"product_id"`
	Category        string     `json:"category"`
	Title           string     `json:"title"`
	BodyHTML        string     `json:"body_html"`
	MetaTitle       string     `json:"meta_title"`
	MetaDescription string     `json:"meta_description"`
	Dimensions      Dimensions `json:"dimensions"`
	ContainerColor  string     `json:"container_color,omitempty"`
	ContainerFound  bool       `json:"container_found"`
}

// ProductUpdate is the write-back payload for a product
type ProductUpdate struct {
	ID             int64
	Title          string
	BodyHTML       string
	SEOTitle       string
	SEODescription string
}

// FieldType is the declared value type of a custom field definition
type FieldType string

const (
	FieldTypeInteger   FieldType = "number_integer"
	FieldTypeDecimal   FieldType = "number_decimal"
	FieldTypeDimension FieldType = "dimension"
	FieldTypeText      FieldType = "single_line_text_field"
)

// FieldDefinition describes a custom field declared on the store
type FieldDefinition struct {
	Name      string    `json:"name"`
	Namespace string    `json:"namespace"`
	Key       string    `json:"key"`
	Type      FieldType `json:"type"`
}

// FieldSemantic is the concept a custom field stands for
type FieldSemantic string

const (
	SemanticHeight   FieldSemantic = "height"
	SemanticDiameter FieldSemantic = "diameter"
)

// FieldCandidate is a scored guess that a definition represents a semantic
type FieldCandidate struct {
	Definition FieldDefinition `json:"definition"`
	Semantic   FieldSemantic   `json:"semantic"`
	Score      float64         `json:"score"`
}

// FieldWrite is a single custom field value to set on a product
type FieldWrite struct {
	OwnerID    int64
	Definition FieldDefinition
	ValueCM    float64
}
