package rag

import (
	"strings"

	"rulehelper/types"
)

var (
	simpleIndicators  = []string{"create", "when", "if", "simple", "basic"}
	complexIndicators = []string{"api", "multiple", "complex", "advanced", "integrate", "fetch", "query"}
)

// ResolveComplexity turns a declared complexity into a concrete one. "auto"
// is scored against indicator keyword tables, a majority decides and ties
// default to medium. Entities with many custom fields add one complex point,
// heavy schemas tend to mean heavier rules.
func ResolveComplexity(declared types.QueryComplexity, query string, meta *types.EntityMetadata) types.QueryComplexity {
	if declared != "" && declared != types.QueryAuto {
		return declared
	}

	lower := strings.ToLower(query)

	simple := 0
	for _, kw := range simpleIndicators {
		if strings.Contains(lower, kw) {
			simple++
		}
	}

	complexScore := 0
	for _, kw := range complexIndicators {
		if strings.Contains(lower, kw) {
			complexScore++
		}
	}
	if meta != nil && len(meta.CustomFields) > 3 {
		complexScore++
	}

	switch {
	case simple > complexScore:
		return types.QuerySimple
	case complexScore > simple:
		return types.QueryComplex
	default:
		return types.QueryMedium
	}
}

// Temperature maps complexity to sampling temperature. Harder queries get a
// little more freedom.
func Temperature(c types.QueryComplexity) float64 {
	switch c {
	case types.QuerySimple:
		return 0.2
	case types.QueryComplex:
		return 0.4
	default:
		return 0.3
	}
}

// MaxTokens maps complexity to the output budget.
func MaxTokens(c types.QueryComplexity) int {
	switch c {
	case types.QuerySimple:
		return 800
	case types.QueryComplex:
		return 2500
	default:
		return 1500
	}
}
