package usecase

import (
	"bytes"
	"encoding/json"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/net/html"
)

// fallbackTitleLimit bounds a title taken from an unlabeled reply
const fallbackTitleLimit = 150

// Field identifies one of the four parsed reply fields
type Field int

const (
	FieldTitle Field = iota
	FieldBody
	FieldMetaTitle
	FieldMetaDescription
)

// fieldLabels lists accepted label synonyms per field, first match wins
var fieldLabels = map[Field][]string{
	FieldTitle:           {`new\s+title`, `nieuwe\s+titel`, `title`, `titel`},
	FieldBody:            {`description`, `product\s+description`, `body`, `beschrijving`, `productbeschrijving`, `omschrijving`},
	FieldMetaTitle:       {`meta[\s_-]*title`, `meta[\s_-]*titel`, `seo[\s_-]*title`, `seo[\s_-]*titel`},
	FieldMetaDescription: {`meta[\s_-]*description`, `meta[\s_-]*beschrijving`, `meta[\s_-]*omschrijving`, `seo[\s_-]*description`},
}

// labelPatterns are compiled from fieldLabels. A label must start a line,
// optionally after list, heading or emphasis markers.
var labelPatterns = compileLabelPatterns()

var (
	htmlTagPattern      = regexp.MustCompile(`<\s*/?\s*[a-zA-Z][a-zA-Z0-9]*[^>]*>`)
	paragraphSeparator  = regexp.MustCompile(`\n\s*\n`)
	codeFencePattern    = regexp.MustCompile("(?s)^\\s*```[a-zA-Z]*\\s*(.*?)\\s*```\\s*$")
	trailingRulePattern = regexp.MustCompile(`\s*-{3,}\s*$`)
)

func compileLabelPatterns() map[Field][]*regexp.Regexp {
	out := make(map[Field][]*regexp.Regexp, len(fieldLabels))
	for field, labels := range fieldLabels {
		for _, label := range labels {
			out[field] = append(out[field], regexp.MustCompile(
				`(?im)^[ \t*#>_\-\d.)]*`+label+`[ \t]*\**[ \t]*(?:[:：]|[ \t][-–][ \t])`))
		}
	}
	return out
}

// placeholderAttributes are listed as unknown in a synthesized body
var placeholderAttributes = []string{"Light requirement", "Water requirement", "Care", "Safety"}

// SplitResult holds the fields parsed from a generator reply
type SplitResult struct {
	Title           string `json:"title"`
	Body            string `json:"body"`
	MetaTitle       string `json:"meta_title"`
	MetaDescription string `json:"meta_description"`
	Structured      bool   `json:"-"`
	Labeled         bool   `json:"-"`
}

// OutputSplitter parses the free-text reply of the text generator
type OutputSplitter struct {
	metaTitleLimit       int
	metaDescriptionLimit int
}

// NewOutputSplitter creates a new splitter with the given meta limits
func NewOutputSplitter(metaTitleLimit, metaDescriptionLimit int) *OutputSplitter {
	if metaTitleLimit <= 0 {
		metaTitleLimit = DefaultMetaTitleLimit
	}
	if metaDescriptionLimit <= 0 {
		metaDescriptionLimit = DefaultMetaDescriptionLimit
	}
	return &OutputSplitter{
		metaTitleLimit:       metaTitleLimit,
		metaDescriptionLimit: metaDescriptionLimit,
	}
}

// Split parses raw into title, body and meta fields. A schema-valid JSON
// reply is used as is; otherwise labels are searched, and without labels
// the reply is split into paragraphs. Fields that cannot be recovered are
// left empty for the caller to replace with the original product value.
func (s *OutputSplitter) Split(raw string) SplitResult {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")

	var res SplitResult
	if structured, ok := parseStructured(raw); ok {
		res = structured
		res.Structured = true
	} else if labeled, ok := splitLabeled(raw); ok {
		res = labeled
		res.Labeled = true
	} else {
		res = splitParagraphs(raw)
	}

	if res.MetaTitle == "" {
		res.MetaTitle = res.Title
	}
	if res.MetaDescription == "" {
		res.MetaDescription = StripHTML(res.Body)
	}
	res.MetaTitle = truncateRunes(collapseWhitespace(res.MetaTitle), s.metaTitleLimit)
	res.MetaDescription = truncateRunes(collapseWhitespace(res.MetaDescription), s.metaDescriptionLimit)

	if res.Body != "" && !htmlTagPattern.MatchString(res.Body) {
		res.Body = SynthesizeBody(res.Body)
	}

	return res
}

type structuredReply struct {
	Title           *string `json:"title"`
	Body            *string `json:"body"`
	MetaTitle       *string `json:"meta_title"`
	MetaDescription *string `json:"meta_description"`
}

// parseStructured accepts only a JSON object with exactly the four string
// fields and a non-empty title and body
func parseStructured(raw string) (SplitResult, bool) {
	text := strings.TrimSpace(raw)
	if m := codeFencePattern.FindStringSubmatch(text); m != nil {
		text = m[1]
	}
	if !strings.HasPrefix(text, "{") {
		return SplitResult{}, false
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(text)))
	dec.DisallowUnknownFields()

	var reply structuredReply
	if err := dec.Decode(&reply); err != nil {
		return SplitResult{}, false
	}
	if reply.Title == nil || reply.Body == nil || reply.MetaTitle == nil || reply.MetaDescription == nil {
		return SplitResult{}, false
	}

	res := SplitResult{
		Title:           strings.TrimSpace(*reply.Title),
		Body:            strings.TrimSpace(*reply.Body),
		MetaTitle:       strings.TrimSpace(*reply.MetaTitle),
		MetaDescription: strings.TrimSpace(*reply.MetaDescription),
	}
	if res.Title == "" || res.Body == "" {
		return SplitResult{}, false
	}
	return res, true
}

type labelMatch struct {
	field        Field
	start        int
	contentStart int
}

func splitLabeled(raw string) (SplitResult, bool) {
	var found []labelMatch
	for _, field := range []Field{FieldTitle, FieldBody, FieldMetaTitle, FieldMetaDescription} {
		for _, p := range labelPatterns[field] {
			if loc := p.FindStringIndex(raw); loc != nil {
				found = append(found, labelMatch{field: field, start: loc[0], contentStart: loc[1]})
				break
			}
		}
	}
	if len(found) == 0 {
		return SplitResult{}, false
	}

	sort.Slice(found, func(i, j int) bool { return found[i].start < found[j].start })

	var res SplitResult
	for i, m := range found {
		end := len(raw)
		if i+1 < len(found) {
			end = found[i+1].start
		}
		if end < m.contentStart {
			continue
		}
		value := cleanFieldValue(raw[m.contentStart:end])
		switch m.field {
		case FieldTitle:
			res.Title = collapseWhitespace(value)
		case FieldBody:
			res.Body = value
		case FieldMetaTitle:
			res.MetaTitle = value
		case FieldMetaDescription:
			res.MetaDescription = value
		}
	}
	return res, true
}

func splitParagraphs(raw string) SplitResult {
	var paragraphs []string
	for _, p := range paragraphSeparator.Split(raw, -1) {
		if p = cleanFieldValue(p); p != "" {
			paragraphs = append(paragraphs, p)
		}
	}

	var res SplitResult
	switch len(paragraphs) {
	case 0:
		return res
	case 1:
		lines := strings.SplitN(paragraphs[0], "\n", 2)
		res.Title = TruncateAtBoundary(collapseWhitespace(lines[0]), fallbackTitleLimit)
		res.Body = paragraphs[0]
		return res
	}

	res.Title = TruncateAtBoundary(collapseWhitespace(paragraphs[0]), fallbackTitleLimit)
	res.Body = paragraphs[1]
	if len(paragraphs) > 2 {
		res.MetaTitle = paragraphs[2]
	}
	if len(paragraphs) > 3 {
		res.MetaDescription = paragraphs[3]
	}
	return res
}

func cleanFieldValue(v string) string {
	v = strings.TrimSpace(v)
	v = trailingRulePattern.ReplaceAllString(v, "")
	v = strings.TrimLeft(v, " \t\n*:：-–—")
	v = strings.TrimRight(v, " \t\n*")
	if len(v) >= 2 {
		first, last := v[0], v[len(v)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
			v = v[1 : len(v)-1]
		}
	}
	for _, q := range [][2]string{{"“", "”"}, {"„", "”"}} {
		if strings.HasPrefix(v, q[0]) && strings.HasSuffix(v, q[1]) && len(v) > len(q[0])+len(q[1]) {
			v = strings.TrimSuffix(strings.TrimPrefix(v, q[0]), q[1])
		}
	}
	return strings.TrimSpace(v)
}

// SynthesizeBody wraps unmarked text in a minimal structured body with
// placeholder attribute lines
func SynthesizeBody(text string) string {
	var sb strings.Builder
	sb.WriteString("<h2>Product details</h2>\n<p>")
	sb.WriteString(html.EscapeString(collapseWhitespace(text)))
	sb.WriteString("</p>\n<ul>\n")
	for _, label := range placeholderAttributes {
		sb.WriteString("<li><strong>")
		sb.WriteString(label)
		sb.WriteString("</strong>: Unknown</li>\n")
	}
	sb.WriteString("</ul>")
	return sb.String()
}
