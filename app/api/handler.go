package api

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"rulehelper/metadata"
	"rulehelper/rag"
	"rulehelper/retrieval"
	"rulehelper/types"

	"github.com/gofiber/fiber/v2"
)

const defaultQueryTimeout = 60 * time.Second

// QueryHandler wires the full answer path: retrieve, enrich with platform
// metadata, generate.
type QueryHandler struct {
	engine       *retrieval.Engine
	cache        *metadata.Cache
	orchestrator *rag.Orchestrator
	timeout      time.Duration
	logger       *slog.Logger
}

func NewQueryHandler(engine *retrieval.Engine, cache *metadata.Cache, orchestrator *rag.Orchestrator) *QueryHandler {
	return &QueryHandler{
		engine:       engine,
		cache:        cache,
		orchestrator: orchestrator,
		timeout:      queryTimeout(),
		logger:       slog.Default(),
	}
}

func queryTimeout() time.Duration {
	if raw := os.Getenv("QUERY_TIMEOUT"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			return d
		}
	}
	return defaultQueryTimeout
}

func (h *QueryHandler) HandleQuery(c *fiber.Ctx) error {
	var params types.QueryParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}

	if errors := types.Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}
	params.ApplyDefaults()

	ctx, cancel := context.WithTimeout(c.Context(), h.timeout)
	defer cancel()

	ruleType := types.RuleType(params.RuleType)

	result, err := h.engine.Retrieve(ctx, params.Prompt, retrieval.Options{
		RuleType:            ruleType,
		DocType:             types.DocType(params.DocType),
		MaxResults:          params.MaxResults,
		SimilarityThreshold: params.SimilarityThreshold,
	})
	if err != nil {
		return err
	}

	entityMeta := h.entityMetadata(ctx, ruleType, params.EntityType, result)

	genResp, err := h.orchestrator.Generate(ctx, rag.Request{
		Query:      params.Prompt,
		Context:    result,
		Metadata:   entityMeta,
		RuleType:   ruleType,
		Complexity: types.QueryComplexity(params.ComplexityLevel),
	})
	if err != nil {
		return c.JSON(failureResponse(err, result))
	}

	return c.JSON(successResponse(params, result, entityMeta, genResp))
}

// entityMetadata resolves platform schema for rule creation. Explicit entity
// type wins over the one detected from the query. When the cache can only
// offer a generic fallback but the retrieved documents mention concrete
// fields, the document scan is preferred.
func (h *QueryHandler) entityMetadata(ctx context.Context, ruleType types.RuleType, explicit string, result *retrieval.Result) *types.EntityMetadata {
	if ruleType != types.RuleCreateAutomation {
		return nil
	}

	entityType := explicit
	if entityType == "" {
		entityType = result.Entity
	}
	if entityType == "" {
		return nil
	}

	meta := h.cache.EntityMetadata(ctx, entityType)
	if meta.Source != types.SourceFallback || len(result.Items) == 0 {
		return meta
	}

	contents := make([]string, len(result.Items))
	for i, item := range result.Items {
		contents[i] = item.Content
	}
	if docMeta := metadata.FromDocuments(contents, entityType); len(docMeta.StandardFields) > 0 {
		h.logger.Info("using document-derived entity schema", "entity", entityType)
		return docMeta
	}
	return meta
}

func contextDocs(result *retrieval.Result) []types.ContextDoc {
	docs := make([]types.ContextDoc, 0, len(result.Items))
	for _, item := range result.Items {
		docs = append(docs, types.ContextDoc{
			Metadata: types.ContextDocMetadata{
				Title:      item.Title,
				SourcePath: item.SourcePath,
				DocType:    string(item.DocType),
				Complexity: string(item.Complexity),
				Position:   item.Position,
			},
			Distance:   item.Similarity,
			Confidence: item.Relevance,
			Content:    item.Content,
		})
	}
	return docs
}

func successResponse(params types.QueryParams, result *retrieval.Result, meta *types.EntityMetadata, genResp *rag.Response) types.QueryResponse {
	responseMeta := map[string]any{
		"query_type":       params.RuleType,
		"complexity":       genResp.Complexity,
		"model_used":       genResp.ModelUsed,
		"num_context_docs": len(result.Items),
		"entity_type":      result.Entity,
		"entity_metadata":  meta != nil,
		"timestamp":        time.Now().Format(time.RFC3339),
	}
	if meta != nil {
		responseMeta["metadata_source"] = meta.Source
	}
	if len(genResp.Warnings) > 0 {
		responseMeta["warnings"] = genResp.Warnings
	}

	return types.QueryResponse{
		Success:     true,
		Response:    genResp.Text,
		ContextDocs: contextDocs(result),
		Metadata:    responseMeta,
	}
}

// failureResponse keeps the HTTP exchange successful while reporting the
// generation failure in the body, retrieval context included so the caller
// can still show sources.
func failureResponse(err error, result *retrieval.Result) types.QueryResponse {
	message := "Error processing your request."
	var genErr *rag.GenerationError
	if errors.As(err, &genErr) {
		message = genErr.UserMessage()
	}

	return types.QueryResponse{
		Success:     false,
		Response:    message,
		ContextDocs: contextDocs(result),
		Metadata: map[string]any{
			"timestamp": time.Now().Format(time.RFC3339),
		},
		Error: message,
	}
}
