package provider

import (
	"context"
	"errors"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"

	"github.com/pagemorph/pagemorph/internal/errs"
	"github.com/pagemorph/pagemorph/internal/models"
)

const (
	anthropicCostPer1kIn  = 0.0008
	anthropicCostPer1kOut = 0.004
	anthropicMaxTokens    = 4096
)

type AnthropicProvider struct {
	llm   *anthropic.LLM
	model string
}

func NewAnthropicProvider(apiKey, model string) (*AnthropicProvider, error) {
	llm, err := anthropic.New(
		anthropic.WithToken(apiKey),
		anthropic.WithModel(model),
	)
	if err != nil {
		return nil, errs.Wrap(errs.Fatal, "configure anthropic provider", err)
	}
	return &AnthropicProvider{llm: llm, model: model}, nil
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

func (p *AnthropicProvider) Supports(models.TransformationKind) bool { return true }

func (p *AnthropicProvider) Invoke(ctx context.Context, req Request) (*Response, error) {
	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, BuildPrompt(req)),
	}

	resp, err := p.llm.GenerateContent(ctx, content, llms.WithMaxTokens(anthropicMaxTokens))
	if err != nil {
		return nil, classifyAnthropicError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, errs.New(errs.Transient, "anthropic returned no choices")
	}

	choice := resp.Choices[0]
	tokensIn := generationInfoInt(choice.GenerationInfo, "InputTokens")
	tokensOut := generationInfoInt(choice.GenerationInfo, "OutputTokens")

	return &Response{
		Content:   choice.Content,
		Model:     p.model,
		TokensIn:  tokensIn,
		TokensOut: tokensOut,
		Cost: float64(tokensIn)/1000*anthropicCostPer1kIn +
			float64(tokensOut)/1000*anthropicCostPer1kOut,
	}, nil
}

// classifyAnthropicError works from error text: langchaingo does not
// surface typed API errors, so status markers in the message are the
// only signal available.
func classifyAnthropicError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.Transient, "anthropic call timed out", err)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "429"):
		return errs.Wrap(errs.Transient, "anthropic rate limited", err)
	case strings.Contains(msg, "overloaded") || strings.Contains(msg, "529"):
		return errs.Wrap(errs.Transient, "anthropic overloaded", err)
	case strings.Contains(msg, "500") || strings.Contains(msg, "502") || strings.Contains(msg, "503"):
		return errs.Wrap(errs.Transient, "anthropic server error", err)
	case strings.Contains(msg, "401") || strings.Contains(msg, "authentication"):
		return errs.Wrap(errs.Unauthenticated, "anthropic rejected credentials", err)
	case strings.Contains(msg, "400") || strings.Contains(msg, "invalid"):
		return errs.Wrap(errs.InvalidInput, "anthropic rejected request", err)
	default:
		return errs.Wrap(errs.Transient, "anthropic call failed", err)
	}
}

func generationInfoInt(info map[string]any, key string) int {
	switch v := info[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}
