package usecase

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/shoprewrite/backend/internal/domain"
)

const numberExpr = `(\d+(?:[.,]\d+)?)`

// Compiled patterns for dimension extraction
var (
	// "Hoogte: 150 cm", "height ca. 30-40 cm"
	labeledHeightPattern = regexp.MustCompile(`(?i)\b(?:height|hoogte|plant\s*height|planthoogte)\b\s*[:=]?\s*(?:ca\.?|approx\.?|±|~)?\s*` +
		numberExpr + `(?:\s*[-–—]\s*` + numberExpr + `)?(?:\s*cm\b)?`)

	// "H: 40 cm", "h=30-40". A bare "h" is an hour unit as often as a label.
	shortHeightPattern = regexp.MustCompile(`(?i)\bh\s*[:=]\s*(?:ca\.?|approx\.?|±|~)?\s*` +
		numberExpr + `(?:\s*[-–—]\s*` + numberExpr + `)?(?:\s*cm\b)?`)

	// "H40cm", "h30-40 cm"
	compactHeightPattern = regexp.MustCompile(`(?i)\bh` + numberExpr + `(?:\s*[-–—]\s*` + numberExpr + `)?\s*cm\b`)

	// "↕150cm", "↕ 30-40"
	symbolHeightPattern = regexp.MustCompile(`↕\s*` + numberExpr + `(?:\s*[-–—]\s*` + numberExpr + `)?`)

	// "30–40 cm"
	rangePattern = regexp.MustCompile(numberExpr + `\s*(?:[-–—]|tot|to)\s*` + numberExpr + `\s*cm\b`)

	// "Diameter: 12 cm", "potmaat 17", "⌀12cm", "Ø 14 cm"
	labeledDiameterPattern = regexp.MustCompile(`(?i)(?:\b(?:diameter|doorsnede|potmaat|pot\s*size|pot\s*diameter)\b\s*[:=]?|[⌀Øø])\s*(?:ca\.?|approx\.?|±|~)?\s*` +
		numberExpr + `(?:\s*cm\b)?`)

	// any unit-qualified number
	centimetrePattern = regexp.MustCompile(numberExpr + `\s*cm\b`)

	whitespacePattern = regexp.MustCompile(`\s+`)
)

// heightPatterns are tried in order, the first match wins
var heightPatterns = []*regexp.Regexp{labeledHeightPattern, shortHeightPattern, compactHeightPattern, symbolHeightPattern}

// colorWords are the container colors recognised in product text. Longer
// inflections come first so "witte" wins over "wit".
var colorWords = []string{
	"anthracite", "terracotta", "champagne", "zilveren", "antraciet",
	"silver", "taupe", "ivory", "cream", "white", "black", "brown", "green",
	"yellow", "purple", "orange", "beige", "grey", "gray", "blue", "pink", "gold", "red",
	"zwarte", "grijze", "bruine", "groene", "blauwe", "gouden", "zilver",
	"witte", "zwart", "grijs", "bruin", "groen", "blauw", "crème", "creme",
	"rode", "gele", "roze", "goud", "rood", "geel", "wit",
}

// containerNouns are words that denote the container a plant ships in
var containerNouns = []string{
	"plantenpotten", "plantenpot", "bloempotten", "bloempot", "sierpotten", "sierpot",
	"cachepot", "containers", "container", "planters", "planter", "manden", "mand",
	"baskets", "basket", "potten", "pots", "pot",
}

var (
	colorAlt = "(" + strings.Join(colorWords, "|") + ")"
	nounAlt  = "(?:" + strings.Join(containerNouns, "|") + ")"

	// "in witte pot", "in a white pot"
	inColorContainerPattern = regexp.MustCompile(`(?i)\bin\s+(?:een\s+|a\s+|the\s+|de\s+)?` + colorAlt + `\s+` + nounAlt + `\b`)
	// "white pot"
	colorContainerPattern = regexp.MustCompile(`(?i)\b` + colorAlt + `\s+` + nounAlt + `\b`)
	// "pot: white", "sierpot - zwart"
	containerColonColorPattern = regexp.MustCompile(`(?i)\b` + nounAlt + `\s*[:\-–]\s*` + colorAlt + `\b`)

	// "in pot", "met sierpot", "incl. pot", "including planter"
	containerPresencePattern = regexp.MustCompile(`(?i)\b(?:in|with|met|inclusief|including|incl\.?)\s+(?:een\s+|a\s+|the\s+|de\s+)?` + nounAlt + `\b`)

	containerNounPattern = regexp.MustCompile(`(?i)\b` + nounAlt + `\b`)
)

// blockElements get a separating space when markup is flattened
var blockElements = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "ul": true, "ol": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"table": true, "tr": true, "td": true, "th": true, "section": true,
}

// StripHTML flattens an HTML fragment to whitespace-collapsed plain text
func StripHTML(body string) string {
	if strings.TrimSpace(body) == "" {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return collapseWhitespace(body)
	}

	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			sb.WriteString(n.Data)
			return
		case html.ElementNode:
			if n.Data == "script" || n.Data == "style" {
				return
			}
			if blockElements[n.Data] {
				sb.WriteByte(' ')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blockElements[n.Data] {
			sb.WriteByte(' ')
		}
	}
	for _, n := range doc.Nodes {
		walk(n)
	}

	return collapseWhitespace(sb.String())
}

// PlainText joins a title with the flattened body
func PlainText(title, body string) string {
	return collapseWhitespace(title + " " + StripHTML(body))
}

func collapseWhitespace(s string) string {
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(s, " "))
}

// ExtractDimensions finds height and container diameter in centimetres.
// Labeled values win over symbols, symbols over ranges. When a value is
// still missing the largest and smallest cm figures are used as a guess.
func ExtractDimensions(title, body string) domain.Dimensions {
	text := PlainText(title, body)
	var dims domain.Dimensions

	diameterSpan := []int(nil)
	if m := labeledDiameterPattern.FindStringSubmatchIndex(text); m != nil {
		if v, ok := parseNumber(text[m[2]:m[3]]); ok {
			dims.DiameterCM = &v
			diameterSpan = m[:2]
		}
	}

	for _, p := range heightPatterns {
		if m := p.FindStringSubmatch(text); m != nil {
			if dims.HeightCM = rangeValue(m[1], m[2]); dims.HeightCM != nil {
				break
			}
		}
	}
	if dims.HeightCM == nil {
		for _, m := range rangePattern.FindAllStringSubmatchIndex(text, -1) {
			if overlaps(m[:2], diameterSpan) {
				continue
			}
			dims.HeightCM = rangeValue(text[m[2]:m[3]], text[m[4]:m[5]])
			break
		}
	}

	if dims.HeightCM != nil && dims.DiameterCM != nil {
		return dims
	}

	values := distinctCentimetres(text)
	if len(values) < 2 {
		return dims
	}

	guessedHeight, guessedDiameter := false, false
	if dims.HeightCM == nil {
		v := values[len(values)-1]
		dims.HeightCM = &v
		guessedHeight = true
	}
	if dims.DiameterCM == nil {
		v := values[0]
		dims.DiameterCM = &v
		guessedDiameter = true
	}

	if *dims.HeightCM == *dims.DiameterCM {
		switch {
		case guessedDiameter:
			for i := range values {
				if values[i] != *dims.HeightCM {
					v := values[i]
					dims.DiameterCM = &v
					break
				}
			}
		case guessedHeight:
			for i := len(values) - 1; i >= 0; i-- {
				if values[i] != *dims.DiameterCM {
					v := values[i]
					dims.HeightCM = &v
					break
				}
			}
		}
	}

	return dims
}

// ExtractContainerColor returns the color of the container when a color
// word sits next to a container noun. It never guesses.
func ExtractContainerColor(title, body string) string {
	text := PlainText(title, body)

	if m := inColorContainerPattern.FindStringSubmatch(text); m != nil {
		return strings.ToLower(m[1])
	}
	if m := colorContainerPattern.FindStringSubmatch(text); m != nil {
		return strings.ToLower(m[1])
	}
	if m := containerColonColorPattern.FindStringSubmatch(text); m != nil {
		return strings.ToLower(m[1])
	}
	return ""
}

// DetectContainerPresence reports whether the text says the product ships
// in a container, with or without a known color.
func DetectContainerPresence(title, body string) bool {
	if ExtractContainerColor(title, body) != "" {
		return true
	}
	return containerPresencePattern.MatchString(PlainText(title, body))
}

func parseNumber(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

// rangeValue returns lo, or the rounded mean of lo and hi when hi is present
func rangeValue(lo, hi string) *float64 {
	a, ok := parseNumber(lo)
	if !ok {
		return nil
	}
	if hi == "" {
		return &a
	}
	b, ok := parseNumber(hi)
	if !ok {
		return &a
	}
	mean := math.Round((a + b) / 2)
	return &mean
}

func distinctCentimetres(text string) []float64 {
	seen := make(map[float64]bool)
	var values []float64
	for _, m := range centimetrePattern.FindAllStringSubmatch(text, -1) {
		v, ok := parseNumber(m[1])
		if !ok || seen[v] {
			continue
		}
		seen[v] = true
		values = append(values, v)
	}
	sort.Float64s(values)
	return values
}

func overlaps(a, b []int) bool {
	if len(b) < 2 {
		return false
	}
	return a[0] < b[1] && b[0] < a[1]
}
