package provider

import (
	"context"
	"errors"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/pagemorph/pagemorph/internal/errs"
	"github.com/pagemorph/pagemorph/internal/models"
)

// Published per-1k-token rates; used for best-effort cost accounting.
const (
	openAICostPer1kIn  = 0.00015
	openAICostPer1kOut = 0.0006
)

type OpenAIProvider struct {
	client *openai.Client
	model  string
}

func NewOpenAIProvider(apiKey, model string) *OpenAIProvider {
	return &OpenAIProvider{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

func (p *OpenAIProvider) Name() string { return "openai" }

// Supports: all kinds.
func (p *OpenAIProvider) Supports(models.TransformationKind) bool { return true }

func (p *OpenAIProvider) Invoke(ctx context.Context, req Request) (*Response, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: BuildPrompt(req)},
		},
	})
	if err != nil {
		return nil, classifyOpenAIError(err)
	}

	if len(resp.Choices) == 0 {
		return nil, errs.New(errs.Transient, "openai returned no choices")
	}

	usage := resp.Usage
	return &Response{
		Content:   resp.Choices[0].Message.Content,
		Model:     resp.Model,
		TokensIn:  usage.PromptTokens,
		TokensOut: usage.CompletionTokens,
		Cost: float64(usage.PromptTokens)/1000*openAICostPer1kIn +
			float64(usage.CompletionTokens)/1000*openAICostPer1kOut,
	}, nil
}

// classifyOpenAIError separates transient failures (retry/failover) from
// deterministic ones (bad input, bad credentials — failover will not help).
func classifyOpenAIError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.Transient, "openai call timed out", err)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == http.StatusTooManyRequests:
			return errs.Wrap(errs.Transient, "openai rate limited", err)
		case apiErr.HTTPStatusCode >= 500:
			return errs.Wrap(errs.Transient, "openai server error", err)
		case apiErr.HTTPStatusCode == http.StatusUnauthorized || apiErr.HTTPStatusCode == http.StatusForbidden:
			return errs.Wrap(errs.Unauthenticated, "openai rejected credentials", err)
		default:
			return errs.Wrap(errs.InvalidInput, "openai rejected request", err)
		}
	}

	// Network-level failures have no status; treat as transient.
	return errs.Wrap(errs.Transient, "openai call failed", err)
}
