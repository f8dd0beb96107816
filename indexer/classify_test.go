package indexer

import (
	"testing"

	"rulehelper/types"

	"github.com/stretchr/testify/assert"
)

func TestClassifyDocType(t *testing.T) {
	cases := []struct {
		path string
		want types.DocType
	}{
		{"docs/automation-rules-examples.md", types.DocAutomationExamples},
		{"docs/automation_rules.md", types.DocAutomationRules},
		{"docs/validation-rules.md", types.DocValidationRules},
		{"docs/integration-guide.md", types.DocIntegrations},
		{"docs/javascript-api.md", types.DocJavaScript},
		{"docs/js-snippets.md", types.DocJavaScript},
		{"snippets/helper.js", types.DocJavaScript},
		{"docs/json-config.md", types.DocGeneral},
		{"docs/overview.md", types.DocGeneral},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, ClassifyDocType(tc.path), tc.path)
	}
}

func TestClassifyComplexityAdvanced(t *testing.T) {
	content := "Call the api via a webhook integration with async handling."
	assert.Equal(t, types.ComplexityAdvanced, ClassifyComplexity(content))

	codeHeavy := "```js\na\n```\n```js\nb\n```\n```js\nc\n```"
	assert.Equal(t, types.ComplexityAdvanced, ClassifyComplexity(codeHeavy))
}

func TestClassifyComplexityBeginner(t *testing.T) {
	content := "An introduction to the basics of rule building."
	assert.Equal(t, types.ComplexityBeginner, ClassifyComplexity(content))
}

func TestClassifyComplexityMedium(t *testing.T) {
	content := "Assign the team when the state changes to In Progress."
	assert.Equal(t, types.ComplexityMedium, ClassifyComplexity(content))
}

func TestDetectEntityHint(t *testing.T) {
	assert.Equal(t, "UserStory", DetectEntityHint("Move the user story to Done"))
	assert.Equal(t, "UserStory", DetectEntityHint("when a Story is created"))
	assert.Equal(t, "Bug", DetectEntityHint("reopen the defect"))
	assert.Equal(t, "PortfolioEpic", DetectEntityHint("inside a Portfolio Epic"))
	assert.Equal(t, "", DetectEntityHint("no entity mentioned here"))
}
