package indexer

import (
	"strings"

	"rulehelper/types"
)

// ClassifyDocType derives a document category from its source path. Rules are
// ordered, first match wins.
func ClassifyDocType(path string) types.DocType {
	name := strings.ToLower(path)

	switch {
	case strings.Contains(name, "automation") && strings.Contains(name, "example"):
		return types.DocAutomationExamples
	case strings.Contains(name, "automation"):
		return types.DocAutomationRules
	case strings.Contains(name, "validation"):
		return types.DocValidationRules
	case strings.Contains(name, "integration"):
		return types.DocIntegrations
	case strings.Contains(name, "javascript"), hasJSToken(name):
		return types.DocJavaScript
	default:
		return types.DocGeneral
	}
}

// hasJSToken matches "js" only as a separated path token or extension, so
// names like json-config.md stay general.
func hasJSToken(name string) bool {
	if strings.HasSuffix(name, ".js") {
		return true
	}
	token := strings.TrimSuffix(name, ".md")
	token = strings.TrimSuffix(token, ".markdown")
	token = strings.TrimSuffix(token, ".txt")
	for _, part := range strings.FieldsFunc(token, func(r rune) bool {
		return r == '/' || r == '\\' || r == '-' || r == '_' || r == '.' || r == ' '
	}) {
		if part == "js" {
			return true
		}
	}
	return false
}

var (
	advancedKeywords = []string{"api", "integration", "async", "webhook"}
	beginnerKeywords = []string{"introduction", "basics", "getting started", "simple"}
)

// ClassifyComplexity estimates the difficulty of a chunk. Code-heavy or
// API-heavy content reads as advanced, short introductory content as beginner,
// everything else as medium.
func ClassifyComplexity(content string) types.Complexity {
	lower := strings.ToLower(content)

	codeBlocks := strings.Count(content, "```") / 2
	advanced := 0
	for _, kw := range advancedKeywords {
		if strings.Contains(lower, kw) {
			advanced++
		}
	}
	if codeBlocks >= 3 || advanced >= 2 {
		return types.ComplexityAdvanced
	}

	if len(content) < 1500 {
		for _, kw := range beginnerKeywords {
			if strings.Contains(lower, kw) {
				return types.ComplexityBeginner
			}
		}
	}

	return types.ComplexityMedium
}

// entityHintRules map document text markers to entity names. Ordered so that
// "portfolio epic" wins over "epic" and story variants collapse to UserStory.
var entityHintRules = []struct {
	marker string
	entity string
}{
	{"user story", "UserStory"},
	{"userstory", "UserStory"},
	{"portfolio epic", "PortfolioEpic"},
	{"story", "UserStory"},
	{"bug", "Bug"},
	{"defect", "Bug"},
	{"task", "Task"},
	{"feature", "Feature"},
	{"epic", "Epic"},
	{"release", "Release"},
	{"project", "Project"},
	{"request", "Request"},
	{"risk", "Risk"},
	{"impediment", "Impediment"},
}

// DetectEntityHint finds the dominant entity an indexed chunk talks about, or
// "" when no marker appears.
func DetectEntityHint(content string) string {
	lower := strings.ToLower(content)
	for _, rule := range entityHintRules {
		if strings.Contains(lower, rule.marker) {
			return rule.entity
		}
	}
	return ""
}
