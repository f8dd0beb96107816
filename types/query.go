package types

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

type Validater interface {
	Validate() map[string]string
}

func Validate(v Validater) map[string]string {
	return v.Validate()
}

// QueryParams is the query entry-point contract.
type QueryParams struct {
	Prompt              string  `json:"prompt" validate:"required"`
	RuleType            string  `json:"rule_type" validate:"omitempty,oneof=create_automation explain_rule improve_rule general"`
	ComplexityLevel     string  `json:"complexity_level" validate:"omitempty,oneof=auto simple medium complex"`
	EntityType          string  `json:"entity_type"`
	DocType             string  `json:"doc_type" validate:"omitempty,oneof=automation_rules automation_examples validation_rules integrations javascript general"`
	MaxResults          int     `json:"max_results" validate:"omitempty,min=1,max=20"`
	SimilarityThreshold float64 `json:"similarity_threshold" validate:"omitempty,min=0,max=1"`
}

func (params *QueryParams) Validate() map[string]string {
	validate := validator.New()
	if err := validate.Struct(params); err != nil {
		errs := err.(validator.ValidationErrors)
		errors := make(map[string]string)
		for _, e := range errs {
			errors[e.Field()] = fmt.Sprintf("failed on '%s' tag", e.Tag())
		}
		return errors
	}
	return nil
}

// ApplyDefaults fills unset optional fields.
func (params *QueryParams) ApplyDefaults() {
	if params.RuleType == "" {
		params.RuleType = string(RuleGeneral)
	}
	if params.ComplexityLevel == "" {
		params.ComplexityLevel = string(QueryAuto)
	}
	if params.MaxResults == 0 {
		params.MaxResults = 5
	}
}

// ContextDoc is one retrieved context item as returned to the caller.
type ContextDoc struct {
	Metadata   ContextDocMetadata `json:"metadata"`
	Distance   float64            `json:"distance"`
	Confidence float64            `json:"confidence"`
	Content    string             `json:"content,omitempty"`
}

type ContextDocMetadata struct {
	Title      string `json:"title"`
	SourcePath string `json:"source_path"`
	DocType    string `json:"doc_type"`
	Complexity string `json:"complexity"`
	Position   int    `json:"position"`
}

// QueryResponse is the query entry-point response envelope.
type QueryResponse struct {
	Success     bool           `json:"success"`
	Response    string         `json:"response"`
	ContextDocs []ContextDoc   `json:"context_docs"`
	Metadata    map[string]any `json:"metadata"`
	Error       string         `json:"error,omitempty"`
}

// UploadResponse acknowledges a document drop.
type UploadResponse struct {
	Saved     string    `json:"saved"`
	Timestamp time.Time `json:"timestamp"`
}
