package rag

import (
	"fmt"
	"regexp"
	"strings"

	"rulehelper/retrieval"
)

// SourceRef attributes a generated answer to a retrieved document.
type SourceRef struct {
	Title      string  `json:"title"`
	SourcePath string  `json:"source_path"`
	Confidence float64 `json:"confidence"`
}

var (
	sectionRe     = regexp.MustCompile(`(?m)^[^\w]*(RULE NAME|WHEN|THEN|DESCRIPTION)\s*:\s*`)
	codeBlockRe   = regexp.MustCompile("(?s)```(?:javascript|js)?\n?(.*?)```")
	templateLitRe = regexp.MustCompile("`[^`]*\\$\\{[^`]*`")
)

// ParseSections cuts a structured rule response into its labeled sections.
// Section bodies keep their original text, code blocks included.
func ParseSections(text string) map[string]string {
	matches := sectionRe.FindAllStringSubmatchIndex(text, -1)
	sections := make(map[string]string, len(matches))

	for i, m := range matches {
		label := text[m[2]:m[3]]
		start := m[1]
		end := len(text)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		sections[label] = strings.TrimSpace(text[start:end])
	}
	return sections
}

// MissingSections lists required automation-format sections absent from the
// output, in canonical order.
func MissingSections(text string) []string {
	sections := ParseSections(text)
	var missing []string
	for _, required := range []string{SectionRuleName, SectionWhen, SectionThen, SectionDescription} {
		if _, ok := sections[required]; !ok {
			missing = append(missing, required)
		}
	}
	return missing
}

// ExtractCodeBlocks returns fenced code block bodies verbatim. Rule scripts
// must survive untouched, whitespace included.
func ExtractCodeBlocks(text string) []string {
	var blocks []string
	for _, m := range codeBlockRe.FindAllStringSubmatch(text, -1) {
		blocks = append(blocks, m[1])
	}
	return blocks
}

// BuildSources converts retrieved context into source attributions with a
// percentage confidence derived from similarity.
func BuildSources(items []retrieval.ContextItem) []SourceRef {
	refs := make([]SourceRef, 0, len(items))
	for _, item := range items {
		refs = append(refs, SourceRef{
			Title:      item.Title,
			SourcePath: item.SourcePath,
			Confidence: item.Similarity * 100,
		})
	}
	return refs
}

// Lint inspects generated rule text for the syntax pitfalls that break rules
// at save time. Findings are warnings, never failures, a human reviews the
// rule before it runs.
func Lint(text string) []string {
	var warnings []string

	blocks := ExtractCodeBlocks(text)
	code := strings.Join(blocks, "\n")

	if len(blocks) > 0 {
		if templateLitRe.MatchString(code) {
			warnings = append(warnings, "JavaScript uses template literals; inside JSON payloads build strings with + concatenation instead")
		}
		if !strings.Contains(code, "args.") {
			warnings = append(warnings, "JavaScript never references args; rules normally read the triggering entity via args.Current")
		}
		if !strings.Contains(code, "return") {
			warnings = append(warnings, "JavaScript has no return statement; automation commands are usually returned from the script")
		}
	}

	return warnings
}

// FormatLintWarnings renders warnings for inclusion in a response footer.
func FormatLintWarnings(warnings []string) string {
	if len(warnings) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("Review notes:\n")
	for i, w := range warnings {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, w)
	}
	return sb.String()
}
