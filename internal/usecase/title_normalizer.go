package usecase

import (
	"regexp"
	"strings"

	"github.com/shoprewrite/backend/internal/domain"
)

const (
	titleSeparator = " – "
	rangeExpr      = `(\d+(?:[.,]\d+)?(?:\s*[-–—]\s*\d+(?:[.,]\d+)?)?)`
)

var (
	// "↕150", "⌀ 12", followed by an optional unit
	symbolTokenPattern = regexp.MustCompile(`([↕⌀Øø])(\s*)` + rangeExpr + `(\s*(?:cm|mm|m)\b)?`)

	// "height 150", "Hoogte: 30-40", followed by an optional unit
	wordTokenPattern = regexp.MustCompile(`(?i)\b(height|hoogte|diameter|doorsnede)(\s*[:=]?\s*)` + rangeExpr + `(\s*(?:cm|mm|m)\b)?`)

	heightTokenPattern   = regexp.MustCompile(`(?i)↕|\b(?:height|hoogte)\b`)
	diameterTokenPattern = regexp.MustCompile(`(?i)[⌀Øø]|\b(?:diameter|doorsnede)\b`)

	leadingSeparatorPattern  = regexp.MustCompile(`^[\s\-–—|,/:;]+`)
	trailingSeparatorPattern = regexp.MustCompile(`[\s\-–—|,/:;]+$`)
)

// NormalizeTitle guarantees unit suffixes on dimension tokens and appends
// missing dimension and container segments. Applying it twice yields the
// same title.
func NormalizeTitle(title string, dims domain.Dimensions, color string, containerPresent bool) string {
	t := cleanTitle(title)

	t = symbolTokenPattern.ReplaceAllStringFunc(t, func(match string) string {
		m := symbolTokenPattern.FindStringSubmatch(match)
		if m[4] != "" {
			return match
		}
		return m[1] + m[2] + m[3] + "cm"
	})
	t = wordTokenPattern.ReplaceAllStringFunc(t, func(match string) string {
		m := wordTokenPattern.FindStringSubmatch(match)
		if m[4] != "" {
			return match
		}
		return m[1] + m[2] + m[3] + " cm"
	})

	if dims.HeightCM != nil && !heightTokenPattern.MatchString(t) {
		t += titleSeparator + "↕" + domain.FormatCM(*dims.HeightCM) + "cm"
	}
	if dims.DiameterCM != nil && !diameterTokenPattern.MatchString(t) {
		t += titleSeparator + "⌀" + domain.FormatCM(*dims.DiameterCM) + "cm"
	}

	if !containerNounPattern.MatchString(t) {
		switch {
		case color != "":
			t += titleSeparator + "in " + strings.ToLower(color) + " pot"
		case containerPresent:
			t += titleSeparator + "in pot"
		}
	}

	return cleanTitle(t)
}

func cleanTitle(title string) string {
	t := collapseWhitespace(title)
	t = leadingSeparatorPattern.ReplaceAllString(t, "")
	return trailingSeparatorPattern.ReplaceAllString(t, "")
}
