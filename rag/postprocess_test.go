package rag

import (
	"testing"

	"rulehelper/retrieval"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const structuredResponse = `RULE CONFIGURATION:

RULE NAME: Auto-close fixed bugs

WHEN:
   Entity: Bug
   Action: [x] Updated
   Field Conditions: EntityState changed to Fixed

THEN:
   Action Type: Execute JavaScript

` + "```javascript" + `
const state = args.Current.EntityState.Name;
if (state === "Fixed") {
  return {
    command: "targetprocess:UpdateEntity",
    payload: { state: "Closed" }
  };
}
` + "```" + `

DESCRIPTION:
   Closes bugs automatically once they are marked fixed.
`

func TestParseSectionsComplete(t *testing.T) {
	sections := ParseSections(structuredResponse)
	require.Len(t, sections, 4)

	assert.Equal(t, "Auto-close fixed bugs", sections[SectionRuleName])
	assert.Contains(t, sections[SectionWhen], "Entity: Bug")
	assert.Contains(t, sections[SectionThen], "Execute JavaScript")
	assert.Contains(t, sections[SectionDescription], "Closes bugs automatically")
}

func TestMissingSections(t *testing.T) {
	assert.Empty(t, MissingSections(structuredResponse))

	partial := "RULE NAME: x\n\nWHEN:\n something"
	assert.Equal(t, []string{SectionThen, SectionDescription}, MissingSections(partial))
}

func TestExtractCodeBlocksVerbatim(t *testing.T) {
	blocks := ExtractCodeBlocks(structuredResponse)
	require.Len(t, blocks, 1)
	assert.Contains(t, blocks[0], `if (state === "Fixed") {`)
	assert.Contains(t, blocks[0], "  return {")
}

func TestBuildSourcesConfidence(t *testing.T) {
	items := []retrieval.ContextItem{
		{Title: "Examples", SourcePath: "a.md", Similarity: 0.84},
	}
	refs := BuildSources(items)
	require.Len(t, refs, 1)
	assert.InDelta(t, 84.0, refs[0].Confidence, 1e-9)
}

func TestLintCleanCode(t *testing.T) {
	assert.Empty(t, Lint(structuredResponse))
}

func TestLintTemplateLiteral(t *testing.T) {
	text := "```javascript\nconst msg = `state is ${args.Current.EntityState.Name}`;\nreturn { command: msg };\n```"
	warnings := Lint(text)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "template literals")
}

func TestLintMissingArgsAndReturn(t *testing.T) {
	text := "```javascript\nconst x = 1;\n```"
	warnings := Lint(text)
	assert.Len(t, warnings, 2)
}

func TestLintNoCodeBlocksNoWarnings(t *testing.T) {
	assert.Empty(t, Lint("plain prose answer with no code"))
}
