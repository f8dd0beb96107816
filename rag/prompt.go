package rag

import (
	"fmt"
	"strings"

	"rulehelper/retrieval"
	"rulehelper/types"
)

// Section labels the rule-editor response format is built from. The
// automation template demands all of them, post-processing checks for them.
const (
	SectionRuleName    = "RULE NAME"
	SectionWhen        = "WHEN"
	SectionThen        = "THEN"
	SectionDescription = "DESCRIPTION"
)

// FormatContext renders retrieved items into the numbered document blocks the
// prompts expect. Attribution lines let the model cite its sources.
func FormatContext(items []retrieval.ContextItem) string {
	if len(items) == 0 {
		return "No relevant documentation found."
	}

	var sb strings.Builder
	for i, item := range items {
		title := item.Title
		if title == "" {
			title = "Unknown"
		}
		fmt.Fprintf(&sb, "--- Document %d: %s ---\n", i+1, title)
		fmt.Fprintf(&sb, "File: %s\n", item.SourcePath)
		fmt.Fprintf(&sb, "Type: %s\n", item.DocType)
		fmt.Fprintf(&sb, "Content:\n%s\n\n", item.Content)
	}
	return strings.TrimSpace(sb.String())
}

// FormatMetadata renders a live entity schema for prompt inclusion. The source
// tier is stated so the model knows how much to trust the field list.
func FormatMetadata(meta *types.EntityMetadata) string {
	if meta == nil {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("LIVE TARGETPROCESS METADATA (Use these exact field names and values):\n")
	fmt.Fprintf(&sb, "- Entity Type: %s\n", meta.EntityType)
	fmt.Fprintf(&sb, "- Available Standard Fields: %s\n", strings.Join(meta.StandardFields, ", "))
	fmt.Fprintf(&sb, "- Available Custom Fields: %s\n", strings.Join(meta.CustomFields, ", "))
	fmt.Fprintf(&sb, "- Available States: %s\n", strings.Join(meta.States, ", "))
	if len(meta.ProcessStates) > 0 {
		sb.WriteString("- State Details:")
		for _, st := range meta.ProcessStates {
			fmt.Fprintf(&sb, " %s(initial=%t,final=%t)", st.Name, st.IsInitial, st.IsFinal)
		}
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "- Data Source: %s\n", meta.Source)
	return sb.String()
}

// BuildPrompt selects the prompt family for the rule type and fills it with
// query, context and metadata.
func BuildPrompt(ruleType types.RuleType, query, context string, meta *types.EntityMetadata) string {
	switch ruleType {
	case types.RuleCreateAutomation:
		return buildAutomationPrompt(query, context, meta)
	case types.RuleExplain:
		return buildExplainPrompt(query, context)
	case types.RuleImprove:
		return buildImprovePrompt(query, context)
	default:
		return buildGeneralPrompt(query, context)
	}
}

func buildAutomationPrompt(query, context string, meta *types.EntityMetadata) string {
	var sb strings.Builder

	sb.WriteString("You are an expert in Targetprocess automation rules. ")
	sb.WriteString("Your task is to create a working automation rule in a structured, concise format.\n\n")

	if metaText := FormatMetadata(meta); metaText != "" {
		sb.WriteString(metaText)
		sb.WriteString("\n")
	}

	sb.WriteString("WORKING EXAMPLES AND DOCUMENTATION:\n")
	sb.WriteString(context)
	sb.WriteString("\n\nUSER REQUEST: ")
	sb.WriteString(query)
	sb.WriteString("\n\n")

	sb.WriteString(`RESPONSE FORMAT REQUIREMENTS:
Your response MUST follow this EXACT rule editor format:

RULE NAME: [Descriptive name for the automation rule]

WHEN:
   Entity: [UserStory|Bug|Feature|Task|Epic|etc.]
   Action: [ ] Created  [ ] Updated  [ ] Deleted
   Field Conditions: [field, condition, value]

THEN:
   Action Type: Execute JavaScript

JavaScript Code:
` + "```javascript" + `
[Complete JavaScript automation code based on the provided documentation examples]
` + "```" + `

DESCRIPTION:
   [Brief description of what this rule does]

INSTRUCTIONS:
1. Study the provided documentation thoroughly: syntax, API calls, field access patterns, error handling.
2. Follow the documentation patterns exactly. Use the same JavaScript syntax, helper functions and entity access patterns shown in the examples.
3. Mark the correct trigger with [x] based on the user's request.
4. Generate complete, working code based on the documented patterns.
5. In JavaScript embedded in JSON payloads, build strings with + concatenation. Never use template literals, backticks break the JSON encoding.
6. Use only the exact field names listed in the metadata above when it is present.`)

	return sb.String()
}

func buildExplainPrompt(query, context string) string {
	return fmt.Sprintf(`You are an expert assistant for Targetprocess automation and validation rules.
Based on the provided documentation context, explain the following rule in detail.

CONTEXT DOCUMENTATION:
%s

RULE TO EXPLAIN:
%s

Please provide:
1. What this rule does (purpose and functionality)
2. When it triggers (source/trigger conditions)
3. What conditions must be met (filters/validation conditions)
4. What actions it performs
5. Potential use cases and benefits
6. Any limitations or considerations

Make the explanation clear and accessible for both technical and non-technical users.`, context, query)
}

func buildImprovePrompt(query, context string) string {
	return fmt.Sprintf(`You are an expert assistant for Targetprocess automation and validation rules.
Based on the provided documentation context, analyze the following rule and suggest improvements.

CONTEXT DOCUMENTATION:
%s

RULE TO IMPROVE:
%s

Please provide:
1. Analysis of the current rule
2. Potential improvements for performance
3. Enhanced error handling suggestions
4. Better filtering options
5. Additional functionality that could be added
6. Best practices that could be applied
7. Updated/improved rule configuration

Focus on practical, implementable improvements.`, context, query)
}

func buildGeneralPrompt(query, context string) string {
	return fmt.Sprintf(`You are an expert assistant for Targetprocess automation rules, validation rules, and system configuration.
Your goal is to provide accurate answers based STRICTLY on the provided documentation.

CONTEXT DOCUMENTATION:
%s

USER QUESTION: %s

INSTRUCTIONS:
1. Base your answer on the documentation. Use only information and patterns shown in the provided context.
2. When showing code or configurations, copy the exact syntax from the documentation.
3. Reference which document or example you are using.

RESPONSE FORMAT:
1. Direct Answer
2. Working Example (exact code from the documentation when applicable)
3. Step-by-Step Guide
4. Source References

CRITICAL: Only use syntax, structures, and examples that appear in the provided documentation. Do not invent or assume syntax not shown in the context.`, context, query)
}

// buildRepairPrompt re-prompts with the invalid output when the structured
// sections are missing from an automation response.
func buildRepairPrompt(query, invalidOutput string) string {
	return fmt.Sprintf(`Your previous response did not follow the required rule editor format.

ORIGINAL REQUEST: %s

YOUR PREVIOUS RESPONSE:
%s

Rewrite the response so it contains ALL of these labeled sections, in order:
RULE NAME:, WHEN:, THEN:, DESCRIPTION:
Keep the JavaScript code in a fenced block under THEN. Do not add commentary outside the format.`, query, invalidOutput)
}
