package retrieval

import "regexp"

// entityRules map query phrasing onto platform entity types. Ordered so that
// multi-word names win over their substrings ("portfolio epic" before "epic",
// "user story" before "story").
var entityRules = []struct {
	pattern *regexp.Regexp
	entity  string
}{
	{regexp.MustCompile(`(?i)\buser\s*stor(y|ies)\b|\buserstor(y|ies)\b`), "UserStory"},
	{regexp.MustCompile(`(?i)\bportfolio\s+epics?\b`), "PortfolioEpic"},
	{regexp.MustCompile(`(?i)\bstor(y|ies)\b`), "UserStory"},
	{regexp.MustCompile(`(?i)\bbugs?\b|\bdefects?\b`), "Bug"},
	{regexp.MustCompile(`(?i)\btasks?\b`), "Task"},
	{regexp.MustCompile(`(?i)\bfeatures?\b`), "Feature"},
	{regexp.MustCompile(`(?i)\bepics?\b`), "Epic"},
	{regexp.MustCompile(`(?i)\breleases?\b`), "Release"},
	{regexp.MustCompile(`(?i)\bprojects?\b`), "Project"},
	{regexp.MustCompile(`(?i)\brequests?\b`), "Request"},
	{regexp.MustCompile(`(?i)\brisks?\b`), "Risk"},
	{regexp.MustCompile(`(?i)\bimpediments?\b`), "Impediment"},
}

// DetectEntity infers the entity type a query talks about. First matching
// rule wins. Returns "" when nothing matches.
func DetectEntity(query string) string {
	for _, rule := range entityRules {
		if rule.pattern.MatchString(query) {
			return rule.entity
		}
	}
	return ""
}
