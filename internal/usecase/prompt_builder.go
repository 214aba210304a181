package usecase

import (
	"fmt"
	"strings"

	"github.com/shoprewrite/backend/internal/domain"
)

// DefaultSystemPrompt is sent as the system message of every rewrite
const DefaultSystemPrompt = "You are an e-commerce SEO specialist."

// PromptBuilder composes the rewrite instruction for a product
type PromptBuilder struct {
	catalog              *Catalog
	metaTitleLimit       int
	metaDescriptionLimit int
	structured           bool
}

// NewPromptBuilder creates a new prompt builder. With structured set the
// model is asked for a JSON object instead of labeled sections.
func NewPromptBuilder(catalog *Catalog, metaTitleLimit, metaDescriptionLimit int, structured bool) *PromptBuilder {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	if metaTitleLimit <= 0 {
		metaTitleLimit = DefaultMetaTitleLimit
	}
	if metaDescriptionLimit <= 0 {
		metaDescriptionLimit = DefaultMetaDescriptionLimit
	}
	return &PromptBuilder{
		catalog:              catalog,
		metaTitleLimit:       metaTitleLimit,
		metaDescriptionLimit: metaDescriptionLimit,
		structured:           structured,
	}
}

// Catalog returns the category catalog used by the builder
func (b *PromptBuilder) Catalog() *Catalog {
	return b.catalog
}

// Build returns the instruction text for one product. An unknown category
// uses the catalog default. The output is deterministic for equal input.
func (b *PromptBuilder) Build(p domain.Product, category, extra string) string {
	key, ok := b.catalog.Resolve(category)
	if !ok {
		key = b.catalog.Default()
	}
	cat, _ := b.catalog.Get(key)

	var sb strings.Builder

	fmt.Fprintf(&sb, "Rewrite this %s product for the web shop.\n\n", cat.Label)
	fmt.Fprintf(&sb, "Original title: %s\n", p.Title)
	fmt.Fprintf(&sb, "Original description: %s\n", p.BodyHTML)
	fmt.Fprintf(&sb, "Tags: %s\n", p.Tags)
	if opts := p.OptionText(); opts != "" {
		fmt.Fprintf(&sb, "Variant options: %s\n", opts)
	}
	sb.WriteString("\n")

	if extra = strings.TrimSpace(extra); extra != "" {
		sb.WriteString(extra)
		sb.WriteString("\n\n")
	}

	sb.WriteString("Tasks:\n")
	sb.WriteString("1. Rewrite the title as \"Common name / Latin name\". Mention height as ↕{number}cm and pot diameter as ⌀{number}cm only when the original states them.\n")
	sb.WriteString("2. Write a structured HTML body: one <h2> heading, a short <p> introduction and a <ul> with one <li><strong>Label</strong>: value</li> per property.\n")
	for _, line := range cat.Instructions {
		fmt.Fprintf(&sb, "   - %s\n", line)
	}
	fmt.Fprintf(&sb, "3. Write a meta title of at most %d characters.\n", b.metaTitleLimit)
	fmt.Fprintf(&sb, "4. Write a meta description of at most %d characters.\n", b.metaDescriptionLimit)
	sb.WriteString("Never invent facts that are not in the original text. Write in the language of the original text.\n\n")

	if b.structured {
		sb.WriteString("Reply with a single JSON object with the string fields title, body, meta_title and meta_description.")
		return sb.String()
	}

	sb.WriteString("Reply exactly in this format, with one blank line between sections:\n\n")
	sb.WriteString("New title: ...\n\n")
	sb.WriteString("Description: ...\n\n")
	sb.WriteString("Meta title: ...\n\n")
	sb.WriteString("Meta description: ...")
	return sb.String()
}
