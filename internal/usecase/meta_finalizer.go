package usecase

import (
	"strings"
	"unicode/utf8"
)

// Default meta limits
const (
	DefaultMetaTitleLimit       = 60
	DefaultMetaDescriptionLimit = 155
)

// minDescriptionPrefix is the shortest description worth keeping in front
// of a transactional clause
const minDescriptionPrefix = 40

// MetaFinalizer enforces the length contracts on SEO title and description
type MetaFinalizer struct {
	titleLimit       int
	descriptionLimit int
	suffix           string
	transactional    bool
	phrases          []string
}

// MetaOptions configures a MetaFinalizer
type MetaOptions struct {
	TitleLimit       int
	DescriptionLimit int
	// BrandName is appended to every meta title as " | BrandName" when set
	BrandName     string
	Transactional bool
	Phrases       []string
}

// NewMetaFinalizer creates a new finalizer, applying default limits
func NewMetaFinalizer(opts MetaOptions) *MetaFinalizer {
	f := &MetaFinalizer{
		titleLimit:       opts.TitleLimit,
		descriptionLimit: opts.DescriptionLimit,
		transactional:    opts.Transactional,
		phrases:          opts.Phrases,
	}
	if f.titleLimit <= 0 {
		f.titleLimit = DefaultMetaTitleLimit
	}
	if f.descriptionLimit <= 0 {
		f.descriptionLimit = DefaultMetaDescriptionLimit
	}
	if brand := strings.TrimSpace(opts.BrandName); brand != "" {
		f.suffix = " | " + brand
	}
	return f
}

// WithTransactional returns a copy with the transactional toggle overridden
func (f *MetaFinalizer) WithTransactional(on bool) *MetaFinalizer {
	cp := *f
	cp.transactional = on
	return &cp
}

// FinalizeMetaTitle bounds the meta title to the title limit. The brand
// suffix is never truncated; the text in front of it is.
func (f *MetaFinalizer) FinalizeMetaTitle(raw, fallbackTitle string) string {
	s := collapseWhitespace(StripHTML(raw))
	if s == "" {
		s = collapseWhitespace(fallbackTitle)
	}

	if f.suffix == "" {
		return TruncateAtBoundary(s, f.titleLimit)
	}

	prefix := stripSuffixFold(s, f.suffix)
	room := f.titleLimit - utf8.RuneCountInString(f.suffix)
	if room <= 0 {
		return TruncateAtBoundary(prefix, f.titleLimit)
	}

	prefix = TruncateAtBoundary(prefix, room)
	if prefix == "" {
		return strings.TrimLeft(f.suffix, " |")
	}
	return prefix + f.suffix
}

// FinalizeMetaDescription bounds the meta description to the description
// limit, falling back to the body text and then the title. In transactional
// mode a short clause picked by product id is appended within the limit.
func (f *MetaFinalizer) FinalizeMetaDescription(productID int64, raw, fallbackBody, fallbackTitle string) string {
	s := collapseWhitespace(StripHTML(raw))
	if s == "" {
		s = StripHTML(fallbackBody)
	}
	if s == "" {
		s = collapseWhitespace(fallbackTitle)
	}

	clause := f.clauseFor(productID)
	if clause == "" || strings.Contains(strings.ToLower(s), strings.ToLower(clause)) {
		return TruncateAtBoundary(s, f.descriptionLimit)
	}

	room := f.descriptionLimit - utf8.RuneCountInString(clause) - 2
	if room < minDescriptionPrefix {
		return TruncateAtBoundary(s, f.descriptionLimit)
	}

	prefix := strings.TrimRight(TruncateAtBoundary(s, room), ".!? ")
	if prefix == "" {
		return TruncateAtBoundary(clause, f.descriptionLimit)
	}
	return TruncateAtBoundary(prefix+". "+clause, f.descriptionLimit)
}

func (f *MetaFinalizer) clauseFor(productID int64) string {
	if !f.transactional || len(f.phrases) == 0 {
		return ""
	}
	idx := productID % int64(len(f.phrases))
	if idx < 0 {
		idx = -idx
	}
	return strings.TrimSpace(f.phrases[idx])
}

// isBoundary reports whether r separates words for truncation purposes
func isBoundary(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '-', '–', '—', '|', '"', '\'', '“', '”', '‘', '’', ',', '/', ';', ':':
		return true
	}
	return false
}

// TruncateAtBoundary cuts s to at most limit runes without splitting a
// word. A single word longer than limit is hard cut.
func TruncateAtBoundary(s string, limit int) string {
	s = strings.TrimSpace(s)
	if limit <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}

	cut := runes[:limit]
	if !isBoundary(runes[limit]) {
		i := len(cut) - 1
		for i >= 0 && !isBoundary(cut[i]) {
			i--
		}
		if i > 0 {
			cut = cut[:i]
		}
	}

	return trimTrailingBoundary(string(cut))
}

func trimTrailingBoundary(s string) string {
	return strings.TrimRightFunc(s, isBoundary)
}

func stripSuffixFold(s, suffix string) string {
	trimmed := strings.TrimSpace(suffix)
	if len(s) >= len(trimmed) && strings.EqualFold(s[len(s)-len(trimmed):], trimmed) {
		return trimTrailingBoundary(s[:len(s)-len(trimmed)])
	}
	return s
}

// truncateRunes is a plain rune slice without boundary handling
func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
