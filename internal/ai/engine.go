package ai

import (
	"context"
	"fmt"
	"strings"
)

const analystSystemPrompt = `You are a senior financial analyst with 15+ years in investment banking and equity research.
You analyze financial statements, market trends and investment opportunities, and you base every
insight on factual data from the provided document. Always consider risk factors and regulatory
compliance in your recommendations.

Produce a structured report with these sections:
- Executive summary addressing the user's query
- Key financial metrics and ratios identified
- Investment insights and recommendations
- Risk factors and considerations
- Professional conclusions with actionable recommendations

Use clear sections and bullet points where appropriate.`

// maxDocumentChars bounds the document text sent to the provider so a large
// filing does not blow the model context window.
const maxDocumentChars = 48_000

// Engine turns (document text, query) into a financial analysis by routing to
// a registered chat-completion provider.
type Engine struct {
	registry *Registry
	provider string
	model    string
}

func NewEngine(registry *Registry, provider, model string) *Engine {
	return &Engine{registry: registry, provider: provider, model: model}
}

func (e *Engine) Analyze(ctx context.Context, text, query string) (string, error) {
	p, err := e.registry.Get(ctx, e.provider, e.model)
	if err != nil {
		return "", err
	}

	doc := text
	if len(doc) > maxDocumentChars {
		doc = doc[:maxDocumentChars]
	}

	msgs := []Message{
		{Role: "system", Content: analystSystemPrompt},
		{Role: "user", Content: fmt.Sprintf("Financial document:\n%s\n\nQuery: %s", doc, query)},
	}

	out, err := p.Chat(ctx, msgs)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(out) == "" {
		return "", ErrInvalidResponse
	}
	return out, nil
}
