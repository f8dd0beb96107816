package types

import (
	"time"

	"github.com/google/uuid"
)

// DocType categorizes a source document by its subject matter.
type DocType string

const (
	DocAutomationRules    DocType = "automation_rules"
	DocAutomationExamples DocType = "automation_examples"
	DocValidationRules    DocType = "validation_rules"
	DocIntegrations       DocType = "integrations"
	DocJavaScript         DocType = "javascript"
	DocGeneral            DocType = "general"
)

// Complexity is the difficulty classification of a document chunk.
type Complexity string

const (
	ComplexityBeginner Complexity = "beginner"
	ComplexityMedium   Complexity = "medium"
	ComplexityAdvanced Complexity = "advanced"
)

// QueryComplexity is the declared (or auto-resolved) complexity of a query.
type QueryComplexity string

const (
	QueryAuto    QueryComplexity = "auto"
	QuerySimple  QueryComplexity = "simple"
	QueryMedium  QueryComplexity = "medium"
	QueryComplex QueryComplexity = "complex"
)

// RuleType selects the prompt family used for generation.
type RuleType string

const (
	RuleCreateAutomation RuleType = "create_automation"
	RuleExplain          RuleType = "explain_rule"
	RuleImprove          RuleType = "improve_rule"
	RuleGeneral          RuleType = "general"
)

type Chunk struct {
	ID         uuid.UUID
	DocID      uuid.UUID
	Position   int
	Content    string
	DocType    DocType
	Complexity Complexity
	EntityHint string
	Embedding  []float32
	Similarity float64 // populated by vector search, 1 is identical
}

type Document struct {
	ID          uuid.UUID
	Title       string
	Source      string // markdown, pdf
	SourcePath  string
	ContentHash string
	Chunks      []Chunk
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Version     int
}

// IndexSummary reports the outcome of an indexing run.
type IndexSummary struct {
	DocumentCount int       `json:"document_count"`
	ChunkCount    int       `json:"chunk_count"`
	Skipped       int       `json:"skipped"`
	Failed        int       `json:"failed"`
	RebuiltAt     time.Time `json:"rebuilt_at"`
}

// MetadataSource records which tier of the metadata cache served a schema.
type MetadataSource string

const (
	SourceLive      MetadataSource = "live"
	SourceStale     MetadataSource = "stale"
	SourceFallback  MetadataSource = "fallback"
	SourceDocuments MetadataSource = "documents"
)

// EntityMetadata is the platform schema for one entity type.
type EntityMetadata struct {
	EntityType     string         `json:"entity_type"`
	StandardFields []string       `json:"standard_fields"`
	CustomFields   []string       `json:"custom_fields"`
	States         []string       `json:"states"`
	Relationships  []string       `json:"relationships"`
	ProcessStates  []ProcessState `json:"process_states,omitempty"`
	Source         MetadataSource `json:"source"`
	FetchedAt      time.Time      `json:"fetched_at"`
}

type ProcessState struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	IsInitial bool   `json:"is_initial"`
	IsPlanned bool   `json:"is_planned"`
	IsFinal   bool   `json:"is_final"`
}

// FieldAccess describes how a field should be referenced from rule JavaScript.
type FieldAccess struct {
	FieldName     string `json:"field_name"`
	Exists        bool   `json:"exists"`
	FieldType     string `json:"field_type"` // standard, custom, unknown
	AccessPattern string `json:"access_pattern,omitempty"`
}

// IndexerConfig drives the document indexer service.
type IndexerConfig struct {
	MonitoringTime time.Duration
	SourceDir      string
	ArchiveDir     string
	BadDir         string
	ChunkSize      int
	ChunkOverlap   int
}
