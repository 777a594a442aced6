package report

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// fixTemplates is a demonstrative lookup keyed by rule id, not a general HTML
// rewriter. Unknown rules get the generic fallback.
var fixTemplates = map[string]func(string) string{
	"color-contrast": func(html string) string {
		return strings.Replace(html, "text-gray-400 bg-gray-300", "text-gray-800 bg-white", 1)
	},
	"image-alt": func(html string) string {
		return strings.Replace(html, "<img src=", `<img alt="Descriptive text" src=`, 1)
	},
	"label": func(html string) string {
		return strings.Replace(html, "<input", `<input aria-label="Input description"`, 1)
	},
	"heading-order": func(html string) string {
		return strings.Replace(html, "<h3>", "<h2>", 1)
	},
}

// FixedCode applies the rule-id-keyed fix template to the original snippet.
func FixedCode(ruleID, before string) string {
	if fix, ok := fixTemplates[ruleID]; ok {
		return fix(before)
	}
	return before + " <!-- Add appropriate accessibility attributes -->"
}

// fixDiff renders a compact patch from before to after for display alongside
// the code example.
func fixDiff(before, after string) string {
	if before == after {
		return ""
	}
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(before, after, false)
	return dmp.PatchToText(dmp.PatchMake(before, diffs))
}
