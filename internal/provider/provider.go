// Package provider holds the AI provider adapters and the ordered
// registry with failover, circuit breaking, and usage accounting.
package provider

import (
	"context"

	"github.com/pagemorph/pagemorph/internal/models"
)

// Request is one generation call. SourceText is the extracted document
// content, empty for document-less transformations.
type Request struct {
	Kind       models.TransformationKind
	Parameters map[string]any
	SourceText string
}

// Response is the normalized provider result.
type Response struct {
	Content   string
	Model     string
	TokensIn  int
	TokensOut int
	Cost      float64
}

func (r *Response) TotalTokens() int { return r.TokensIn + r.TokensOut }

// Provider is one external AI service adapter. Invoke errors carry an
// errs.Kind: Transient for rate limits, 5xx, and timeouts (the registry
// steps the breaker and the executor tries the next provider);
// anything else is deterministic and stops the failover loop.
type Provider interface {
	Name() string
	Supports(kind models.TransformationKind) bool
	Invoke(ctx context.Context, req Request) (*Response, error)
}

const systemPrompt = "You are an expert content repurposing assistant. " +
	"Your task is to transform the provided content into the requested format " +
	"while maintaining the key information and adapting the style appropriately."
