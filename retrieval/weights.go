package retrieval

import "rulehelper/types"

const entityBonus = 1.5

var complexityWeights = map[types.Complexity]float64{
	types.ComplexityBeginner: 1.2,
	types.ComplexityMedium:   1.0,
	types.ComplexityAdvanced: 0.8,
}

// Worked examples rank above tutorial-style rule docs, which rank above plain
// reference material.
var docTypeWeights = map[types.DocType]float64{
	types.DocAutomationExamples: 1.3,
	types.DocAutomationRules:    1.1,
	types.DocValidationRules:    1.1,
	types.DocIntegrations:       1.0,
	types.DocJavaScript:         1.0,
	types.DocGeneral:            1.0,
}

// relevance adjusts raw cosine similarity by metadata weights, clamped to
// [0,1] so downstream confidence percentages stay meaningful.
func relevance(chunk types.Chunk, entity string) float64 {
	score := chunk.Similarity

	if w, ok := complexityWeights[chunk.Complexity]; ok {
		score *= w
	}
	if w, ok := docTypeWeights[chunk.DocType]; ok {
		score *= w
	}
	if entity != "" && chunk.EntityHint == entity {
		score *= entityBonus
	}

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
