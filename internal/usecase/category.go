package usecase

import (
	_ "embed"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

// ModeAuto selects the category from the product's collections
const ModeAuto = "auto"

//go:embed prompts/categories.yaml
var defaultCategoriesYAML []byte

var (
	slugInvalidPattern = regexp.MustCompile(`[^\w\s-]`)
	slugSpacePattern   = regexp.MustCompile(`\s+`)
	slugDashPattern    = regexp.MustCompile(`-{2,}`)
)

// Category is one product category with its prompt instructions
type Category struct {
	Key          string   `yaml:"-"`
	Label        string   `yaml:"label"`
	Aliases      []string `yaml:"aliases"`
	Handles      []string `yaml:"handles"`
	Instructions []string `yaml:"instructions"`
}

// Catalog resolves categories by name and by collection handle
type Catalog struct {
	defaultKey string
	priority   []string
	categories map[string]*Category
	aliases    map[string]string
	handles    map[string]map[string]bool
}

type catalogFile struct {
	Default    string               `yaml:"default"`
	Priority   []string             `yaml:"priority"`
	Categories map[string]*Category `yaml:"categories"`
}

// DefaultCatalog returns the built-in category catalog
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(defaultCategoriesYAML)
	if err != nil {
		panic(fmt.Sprintf("built-in category catalog: %v", err))
	}
	return c
}

// ParseCatalog decodes a YAML category catalog
func ParseCatalog(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if len(file.Categories) == 0 {
		return nil, fmt.Errorf("catalog has no categories")
	}
	if _, ok := file.Categories[file.Default]; !ok {
		return nil, fmt.Errorf("default category %q is not defined", file.Default)
	}

	c := &Catalog{
		defaultKey: file.Default,
		categories: file.Categories,
		aliases:    make(map[string]string),
		handles:    make(map[string]map[string]bool),
	}

	for key, cat := range file.Categories {
		cat.Key = key
		if cat.Label == "" {
			cat.Label = strings.ReplaceAll(key, "_", " ")
		}
		c.aliases[key] = key
		for _, a := range cat.Aliases {
			c.aliases[strings.ToLower(strings.TrimSpace(a))] = key
		}
		set := make(map[string]bool, len(cat.Handles))
		for _, h := range cat.Handles {
			set[Slug(h)] = true
		}
		c.handles[key] = set
	}

	for _, key := range file.Priority {
		if _, ok := file.Categories[key]; !ok {
			return nil, fmt.Errorf("priority names unknown category %q", key)
		}
		c.priority = append(c.priority, key)
	}

	return c, nil
}

// Default returns the fallback category key
func (c *Catalog) Default() string {
	return c.defaultKey
}

// Get returns the category for a key
func (c *Catalog) Get(key string) (*Category, bool) {
	cat, ok := c.categories[key]
	return cat, ok
}

// Resolve maps a category name or alias to its key
func (c *Catalog) Resolve(name string) (string, bool) {
	key, ok := c.aliases[strings.ToLower(strings.TrimSpace(name))]
	return key, ok
}

// Detect picks the category of a product from its collection handles. The
// most specific category in priority order wins.
func (c *Catalog) Detect(handles []string) string {
	found := make(map[string]bool)
	for _, h := range handles {
		slug := Slug(h)
		for key, set := range c.handles {
			if set[slug] {
				found[key] = true
			}
		}
	}
	for _, key := range c.priority {
		if found[key] {
			return key
		}
	}
	return c.defaultKey
}

// Slug normalizes a collection title or handle for comparison
func Slug(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}

	folded = strings.ToLower(strings.TrimSpace(folded))
	folded = slugInvalidPattern.ReplaceAllString(folded, "")
	folded = slugSpacePattern.ReplaceAllString(folded, "-")
	folded = slugDashPattern.ReplaceAllString(folded, "-")
	return strings.Trim(folded, "-")
}
