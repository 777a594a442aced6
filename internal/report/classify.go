package report

import "strings"

// Categorize maps a violation to its category by rule-id substring match in
// priority order, falling back to WCAG tag inspection, falling back to
// General. Pure function of id and tags.
func Categorize(id string, tags []string) string {
	switch {
	case containsAny(id, "color", "contrast"):
		return CategoryColorContrast
	case containsAny(id, "image", "alt"):
		return CategoryImagesMedia
	case containsAny(id, "form", "label", "input"):
		return CategoryForms
	case containsAny(id, "heading", "structure", "landmark"):
		return CategoryStructure
	case containsAny(id, "keyboard", "focus", "tabindex"):
		return CategoryKeyboard
	}
	for _, tag := range tags {
		if tag == "wcag2a" || tag == "wcag2aa" {
			return CategoryWCAG
		}
	}
	return CategoryGeneral
}

// SeverityForImpact maps the engine's impact to the report severity bucket.
// Unknown impacts land on medium.
func SeverityForImpact(impact string) string {
	switch impact {
	case "critical":
		return SeverityCritical
	case "serious":
		return SeverityHigh
	case "moderate":
		return SeverityMedium
	case "minor":
		return SeverityLow
	default:
		return SeverityMedium
	}
}

// WCAGLevel derives the conformance level from classification tags.
// Precedence: AAA > AA (2.1) > AA > A; a finding tagged both wcag2a and
// wcag2aaa resolves to AAA.
func WCAGLevel(tags []string) string {
	switch {
	case tagContains(tags, "wcag2aaa"):
		return "AAA"
	case tagContains(tags, "wcag21aa"):
		return "AA (2.1)"
	case tagContains(tags, "wcag2aa"):
		return "AA"
	case tagContains(tags, "wcag2a"):
		return "A"
	default:
		return "N/A"
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func tagContains(tags []string, sub string) bool {
	for _, tag := range tags {
		if strings.Contains(tag, sub) {
			return true
		}
	}
	return false
}
