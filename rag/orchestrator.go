package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"rulehelper/llm"
	"rulehelper/retrieval"
	"rulehelper/types"
)

// Completer is the generation backend, normally an llm.Chain. It reports
// which model produced the text.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (string, string, error)
}

// Request carries everything generation needs: the query, the retrieved
// context, optional platform metadata and the declared intent.
type Request struct {
	Query      string
	Context    *retrieval.Result
	Metadata   *types.EntityMetadata
	RuleType   types.RuleType
	Complexity types.QueryComplexity
}

// Response is the structured generation outcome.
type Response struct {
	Text       string                `json:"text"`
	Sections   map[string]string     `json:"sections,omitempty"`
	CodeBlocks []string              `json:"code_blocks,omitempty"`
	Sources    []SourceRef           `json:"sources"`
	ModelUsed  string                `json:"model_used"`
	Complexity types.QueryComplexity `json:"complexity"`
	Warnings   []string              `json:"warnings,omitempty"`
}

// GenerationError separates the message shown to users from the underlying
// cause, which stays available for errors.Is inspection.
type GenerationError struct {
	Message string
	Cause   error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *GenerationError) Unwrap() error { return e.Cause }

// UserMessage is safe to surface in API responses.
func (e *GenerationError) UserMessage() string {
	switch {
	case errors.Is(e.Cause, llm.ErrRateLimited):
		return "The generation service is currently rate limited. Please try again shortly."
	case errors.Is(e.Cause, llm.ErrUnauthorized):
		return "The generation service rejected the configured credentials."
	case errors.Is(e.Cause, llm.ErrTimeout):
		return "The generation request timed out. Try a simpler query."
	default:
		return e.Message
	}
}

// Orchestrator resolves complexity, builds the prompt, runs the model chain
// and post-processes the output into a structured response.
type Orchestrator struct {
	completer Completer
	logger    *slog.Logger
}

func NewOrchestrator(completer Completer) *Orchestrator {
	return &Orchestrator{
		completer: completer,
		logger:    slog.Default(),
	}
}

func (o *Orchestrator) Generate(ctx context.Context, req Request) (*Response, error) {
	complexity := ResolveComplexity(req.Complexity, req.Query, req.Metadata)

	var items []retrieval.ContextItem
	if req.Context != nil {
		items = req.Context.Items
	}

	prompt := BuildPrompt(req.RuleType, req.Query, FormatContext(items), req.Metadata)

	llmReq := llm.Request{
		Prompt:      prompt,
		Temperature: Temperature(complexity),
		MaxTokens:   MaxTokens(complexity),
	}

	text, modelUsed, err := o.completer.Complete(ctx, llmReq)
	if err != nil {
		return nil, &GenerationError{Message: "generation failed", Cause: err}
	}
	if text == "" {
		return nil, &GenerationError{Message: "generation produced no output", Cause: llm.ErrMalformed}
	}

	if req.RuleType == types.RuleCreateAutomation {
		text, modelUsed = o.repairIfNeeded(ctx, req.Query, text, modelUsed, llmReq)
	}

	resp := &Response{
		Text:       text,
		Sources:    BuildSources(items),
		ModelUsed:  modelUsed,
		Complexity: complexity,
	}

	if req.RuleType == types.RuleCreateAutomation {
		resp.Sections = ParseSections(text)
		resp.CodeBlocks = ExtractCodeBlocks(text)
		resp.Warnings = Lint(text)
		if missing := MissingSections(text); len(missing) > 0 {
			resp.Warnings = append(resp.Warnings,
				fmt.Sprintf("response is missing the %v section(s) of the rule editor format", missing))
		}
		if footer := FormatLintWarnings(resp.Warnings); footer != "" {
			resp.Text += "\n\n" + footer
		}
	}

	return resp, nil
}

// repairIfNeeded gives the model one chance to fix a response that dropped
// the required rule editor sections. The original text is kept when the
// repair also fails to produce them.
func (o *Orchestrator) repairIfNeeded(ctx context.Context, query, text, modelUsed string, base llm.Request) (string, string) {
	if len(MissingSections(text)) == 0 {
		return text, modelUsed
	}

	o.logger.Warn("automation response missing required sections, attempting repair")

	repair := base
	repair.Prompt = buildRepairPrompt(query, text)

	fixed, fixedModel, err := o.completer.Complete(ctx, repair)
	if err != nil || fixed == "" {
		o.logger.Warn("repair attempt failed", "error", err)
		return text, modelUsed
	}
	if len(MissingSections(fixed)) > 0 {
		return text, modelUsed
	}
	return fixed, fixedModel
}
