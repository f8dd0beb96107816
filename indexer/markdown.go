package indexer

import (
	"path/filepath"
	"regexp"
	"strings"
)

// Section is a heading-delimited slice of a markdown document. The heading
// text travels with the body so chunks keep their local context.
type Section struct {
	Heading string
	Level   int
	Body    string
}

var (
	headingRe    = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)
	inlineCodeRe = regexp.MustCompile("`([^`]*)`")
	boldRe       = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	italicRe     = regexp.MustCompile(`(^|[^*])\*([^*]+)\*`)
	linkRe       = regexp.MustCompile(`\[([^\]]+)\]\([^)]*\)`)
)

// SplitSections cuts markdown into heading-delimited sections. Content before
// the first heading becomes a section with an empty heading. Fenced code
// blocks are never split, a heading inside a fence is body text.
func SplitSections(content string) []Section {
	var sections []Section
	current := Section{}
	var body strings.Builder
	inFence := false

	flush := func() {
		current.Body = strings.TrimSpace(body.String())
		if current.Body != "" || current.Heading != "" {
			sections = append(sections, current)
		}
		body.Reset()
	}

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
			body.WriteString(line)
			body.WriteString("\n")
			continue
		}

		if m := headingRe.FindStringSubmatch(line); m != nil && !inFence {
			flush()
			current = Section{Heading: m[2], Level: len(m[1])}
			continue
		}

		body.WriteString(line)
		body.WriteString("\n")
	}
	flush()

	return sections
}

// ExtractTitle returns the first level-1 heading, falling back to a cleaned-up
// file name.
func ExtractTitle(content, path string) string {
	for _, line := range strings.Split(content, "\n") {
		if m := headingRe.FindStringSubmatch(line); m != nil && len(m[1]) == 1 {
			return strings.TrimSpace(m[2])
		}
	}
	return titleFromPath(path)
}

func titleFromPath(path string) string {
	name := filepath.Base(path)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	name = strings.ReplaceAll(name, "_", " ")
	name = strings.ReplaceAll(name, "-", " ")
	return name
}

// StripInlineMarkup removes emphasis and link syntax while keeping the text
// and code content intact. Fenced blocks pass through untouched so rule
// scripts survive verbatim.
func StripInlineMarkup(content string) string {
	var out []string
	inFence := false

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
			out = append(out, line)
			continue
		}
		if inFence {
			out = append(out, line)
			continue
		}

		line = linkRe.ReplaceAllString(line, "$1")
		line = boldRe.ReplaceAllString(line, "$1")
		line = italicRe.ReplaceAllString(line, "$1$2")
		line = inlineCodeRe.ReplaceAllString(line, "$1")
		out = append(out, line)
	}

	return strings.Join(out, "\n")
}
