package usecase

import (
	"regexp"
)

// Inline SVG icons shown in front of property labels
const (
	iconWater    = `<svg class="icon" viewBox="0 0 24 24" fill="none" stroke="currentColor"><path d="M12 2C12 2 6 9 6 14a6 6 0 0012 0c0-5-6-12-6-12z"/></svg>`
	iconSun      = `<svg class="icon" viewBox="0 0 24 24" fill="none" stroke="currentColor"><circle cx="12" cy="12" r="4"/><path d="M12 2v2m0 16v2m10-10h-2M4 12H2m15.364-7.364l-1.414 1.414M6.05 17.95l-1.414 1.414M17.95 17.95l1.414 1.414M6.05 6.05L4.636 4.636"/></svg>`
	iconBloom    = `<svg class="icon" viewBox="0 0 24 24" fill="none" stroke="currentColor"><circle cx="12" cy="12" r="3"/><path d="M12 2v4m0 12v4m10-10h-4M6 12H2m15.364-7.364l-2.828 2.828M6.05 17.95l-2.828 2.828M17.95 17.95l2.828 2.828M6.05 6.05L3.222 3.222"/></svg>`
	iconCalendar = `<svg class="icon" viewBox="0 0 24 24" fill="none" stroke="currentColor"><rect x="3" y="4" width="18" height="18" rx="2"/><line x1="16" y1="2" x2="16" y2="6"/><line x1="8" y1="2" x2="8" y2="6"/><line x1="3" y1="10" x2="21" y2="10"/></svg>`
	iconFruit    = `<svg class="icon" viewBox="0 0 24 24" fill="none" stroke="currentColor"><circle cx="12" cy="12" r="7"/><path d="M12 2v2m0 16v2m8.485-8.485l-1.414-1.414M4.93 19.07l-1.414-1.414M19.07 19.07l-1.414-1.414M4.93 4.93L3.516 3.516"/></svg>`
	iconPot      = `<svg class="icon" viewBox="0 0 24 24" fill="none" stroke="currentColor"><path d="M4 3h16l-1 9a7 7 0 01-14 0L4 3z"/></svg>`
	iconShield   = `<svg class="icon" viewBox="0 0 24 24" fill="none" stroke="currentColor"><path d="M12 2l8 4v6c0 5.25-3.438 10-8 12-4.563-2-8-6.75-8-12V6l8-4z"/></svg>`
)

type labelIcon struct {
	pattern *regexp.Regexp
	icon    string
}

// labelIcons maps property labels to their icon, in Dutch and English
var labelIcons = compileLabelIcons([]struct{ label, icon string }{
	{"Waterbehoefte", iconWater},
	{"Water requirement", iconWater},
	{"Lichtbehoefte", iconSun},
	{"Light requirement", iconSun},
	{"Bloeiperiode", iconBloom},
	{"Flowering period", iconBloom},
	{"Plantperiode", iconCalendar},
	{"Planting period", iconCalendar},
	{"Oogsttijd", iconFruit},
	{"Harvest time", iconFruit},
	{"Pot", iconPot},
	{"Veiligheid", iconShield},
	{"Safety", iconShield},
})

func compileLabelIcons(entries []struct{ label, icon string }) []labelIcon {
	out := make([]labelIcon, 0, len(entries))
	for _, e := range entries {
		// an icon already in front of the label is matched and replaced
		p := regexp.MustCompile(`(?i)(?:` + regexp.QuoteMeta(e.icon) + `\s*)?(<strong>\s*` +
			regexp.QuoteMeta(e.label) + `\s*:?\s*</strong>\s*:?)`)
		out = append(out, labelIcon{pattern: p, icon: e.icon})
	}
	return out
}

// InjectIcons prefixes known property labels in an HTML body with an icon.
// Bodies that already carry icons are left unchanged.
func InjectIcons(body string) string {
	for _, li := range labelIcons {
		body = li.pattern.ReplaceAllString(body, li.icon+" ${1}")
	}
	return body
}
