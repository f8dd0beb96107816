package metadata

import (
	"regexp"
	"strings"

	"rulehelper/types"
)

// Static schemas served when the platform API is unreachable and nothing
// fresher is cached. Field sets mirror the default Targetprocess process.
var staticSchemas = map[string]types.EntityMetadata{
	"UserStory": {
		EntityType:     "UserStory",
		StandardFields: []string{"Id", "Name", "Description", "EntityState", "Project", "TimeSpent", "Effort"},
		States:         []string{"New", "Planned", "In Progress", "Done"},
		Relationships:  []string{"Project", "Feature", "Tasks", "Bugs"},
	},
	"Bug": {
		EntityType:     "Bug",
		StandardFields: []string{"Id", "Name", "Description", "EntityState", "Project", "TimeSpent", "Severity"},
		States:         []string{"Open", "In Progress", "Fixed", "Closed"},
		Relationships:  []string{"Project", "UserStory", "Release"},
	},
	"Task": {
		EntityType:     "Task",
		StandardFields: []string{"Id", "Name", "Description", "EntityState", "Project", "TimeSpent", "Effort"},
		States:         []string{"Open", "In Progress", "Done"},
		Relationships:  []string{"Project", "UserStory"},
	},
}

// FallbackMetadata returns the static schema for an entity type. Unknown
// types get the UserStory shape, it covers the common assignable fields.
func FallbackMetadata(entityType string) *types.EntityMetadata {
	schema, ok := staticSchemas[entityType]
	if !ok {
		schema = staticSchemas["UserStory"]
		schema.EntityType = entityType
	}
	schema.Source = types.SourceFallback
	return &schema
}

var (
	fieldAccessRe = regexp.MustCompile(`(?i)args\.current\.(\w+)`)
	quotedNameRe  = regexp.MustCompile(`"([A-Za-z][A-Za-z ]{0,18})"`)
)

const docScanLimit = 10

// FromDocuments builds a best-effort schema by scanning retrieved chunk text
// for JavaScript field accesses and quoted state names. Used when the live
// fetch failed and no static schema fits the conversation.
func FromDocuments(contents []string, entityType string) *types.EntityMetadata {
	fields := make(map[string]bool)
	states := make(map[string]bool)

	for _, content := range contents {
		for _, m := range fieldAccessRe.FindAllStringSubmatch(content, -1) {
			fields[m[1]] = true
		}

		lower := strings.ToLower(content)
		if strings.Contains(lower, "entitystate") || strings.Contains(lower, "state") {
			for _, m := range quotedNameRe.FindAllStringSubmatch(content, -1) {
				name := strings.TrimSpace(m[1])
				if name != "" {
					states[name] = true
				}
			}
		}
	}

	return &types.EntityMetadata{
		EntityType:     entityType,
		StandardFields: capList(sortedKeys(fields), docScanLimit),
		States:         capList(sortedKeys(states), docScanLimit),
		Source:         types.SourceDocuments,
	}
}

func capList(list []string, n int) []string {
	if len(list) > n {
		return list[:n]
	}
	return list
}

// ValidateFieldAccess reports whether a field exists on the entity and how
// rule JavaScript should reference it. Names with spaces or dashes need
// bracket notation.
func ValidateFieldAccess(meta *types.EntityMetadata, fieldName string) types.FieldAccess {
	result := types.FieldAccess{
		FieldName: fieldName,
		FieldType: "unknown",
	}
	if meta == nil {
		return result
	}

	if containsString(meta.StandardFields, fieldName) {
		result.Exists = true
		result.FieldType = "standard"
		result.AccessPattern = "args.Current." + fieldName
		return result
	}

	if containsString(meta.CustomFields, fieldName) {
		result.Exists = true
		result.FieldType = "custom"
		if strings.ContainsAny(fieldName, " -") {
			result.AccessPattern = `args.Current["` + fieldName + `"]`
		} else {
			result.AccessPattern = "args.Current." + fieldName
		}
	}
	return result
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
