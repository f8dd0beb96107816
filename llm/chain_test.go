package llm

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeCompleter struct {
	name  string
	text  string
	err   error
	calls []string
}

func (f *fakeCompleter) Name() string { return f.name }

func (f *fakeCompleter) Complete(ctx context.Context, req Request) (string, error) {
	f.calls = append(f.calls, req.Model)
	return f.text, f.err
}

func TestChainFirstProviderWins(t *testing.T) {
	first := &fakeCompleter{name: "gemini", text: "answer"}
	second := &fakeCompleter{name: "ollama", text: "other"}

	chain := NewChain([]Entry{
		{Provider: first, Model: "gemini-2.0-flash"},
		{Provider: second, Model: "llama3"},
	}, nil)

	text, model, err := chain.Complete(context.Background(), Request{Prompt: "q"})
	assert.NoError(t, err)
	assert.Equal(t, "answer", text)
	assert.Equal(t, "gemini/gemini-2.0-flash", model)
	assert.Empty(t, second.calls)
}

func TestChainFallsBackOnError(t *testing.T) {
	first := &fakeCompleter{name: "gemini", err: fmt.Errorf("boom: %w", ErrRateLimited)}
	second := &fakeCompleter{name: "ollama", text: "fallback answer"}

	chain := NewChain([]Entry{
		{Provider: first, Model: "gemini-2.0-flash"},
		{Provider: second, Model: "llama3"},
	}, nil)

	text, model, err := chain.Complete(context.Background(), Request{Prompt: "q"})
	assert.NoError(t, err)
	assert.Equal(t, "fallback answer", text)
	assert.Equal(t, "ollama/llama3", model)
	assert.Equal(t, []string{"gemini-2.0-flash"}, first.calls)
}

func TestChainSkipsEmptyCompletion(t *testing.T) {
	first := &fakeCompleter{name: "gemini", text: ""}
	second := &fakeCompleter{name: "ollama", text: "real"}

	chain := NewChain([]Entry{
		{Provider: first, Model: "m1"},
		{Provider: second, Model: "m2"},
	}, nil)

	text, model, err := chain.Complete(context.Background(), Request{Prompt: "q"})
	assert.NoError(t, err)
	assert.Equal(t, "real", text)
	assert.Equal(t, "ollama/m2", model)
}

func TestChainAllFail(t *testing.T) {
	first := &fakeCompleter{name: "gemini", err: fmt.Errorf("a: %w", ErrUnauthorized)}
	second := &fakeCompleter{name: "ollama", err: fmt.Errorf("b: %w", ErrUnavailable)}

	chain := NewChain([]Entry{
		{Provider: first, Model: "m1"},
		{Provider: second, Model: "m2"},
	}, nil)

	_, _, err := chain.Complete(context.Background(), Request{Prompt: "q"})
	assert.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestChainPassesModelPerEntry(t *testing.T) {
	p := &fakeCompleter{name: "gemini", err: ErrRateLimited}
	chain := NewChain([]Entry{
		{Provider: p, Model: "m1"},
		{Provider: p, Model: "m2"},
	}, nil)

	_, _, err := chain.Complete(context.Background(), Request{Prompt: "q"})
	assert.Error(t, err)
	assert.Equal(t, []string{"m1", "m2"}, p.calls)
}

func TestChainEmpty(t *testing.T) {
	chain := NewChain(nil, nil)
	_, _, err := chain.Complete(context.Background(), Request{Prompt: "q"})
	assert.Error(t, err)
}
