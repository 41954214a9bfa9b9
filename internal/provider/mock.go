package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pagemorph/pagemorph/internal/models"
)

// MockProvider produces deterministic canned output without leaving the
// process. Configured last in PROVIDER_ORDER it doubles as a dev/test
// backstop when no real credentials are present.
type MockProvider struct {
	// Latency simulates provider round-trip time; zero means immediate.
	Latency time.Duration
	// Err, when set, is returned from every Invoke. Tests use this to
	// force failover paths.
	Err error
}

func NewMockProvider() *MockProvider {
	return &MockProvider{Latency: 50 * time.Millisecond}
}

func (p *MockProvider) Name() string { return "mock" }

func (p *MockProvider) Supports(models.TransformationKind) bool { return true }

func (p *MockProvider) Invoke(ctx context.Context, req Request) (*Response, error) {
	if p.Latency > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(p.Latency):
		}
	}
	if p.Err != nil {
		return nil, p.Err
	}

	content := p.generate(req)
	prompt := BuildPrompt(req)
	return &Response{
		Content:   content,
		Model:     "mock-1",
		TokensIn:  len(prompt) / 4,
		TokensOut: len(content) / 4,
		Cost:      0,
	}, nil
}

func (p *MockProvider) generate(req Request) string {
	var b strings.Builder
	switch req.Kind {
	case models.KindBlogPost:
		b.WriteString("# Generated Blog Post\n\n")
		b.WriteString("## Introduction\n\nThis post repurposes the source material into article form.\n\n")
		b.WriteString("## Key Points\n\nThe main arguments of the original content, restructured.\n\n")
		b.WriteString("## Conclusion\n\nA closing thought tying the sections together.\n")
	case models.KindSocialMedia:
		n, ok := intParam(req.Parameters, "post_count")
		if !ok {
			n = 3
		}
		for i := 1; i <= n; i++ {
			fmt.Fprintf(&b, "Post %d: A concise take on the source content. #content #repurposed\n\n", i)
		}
	case models.KindEmailSequence:
		n, ok := intParam(req.Parameters, "email_count")
		if !ok {
			n = 3
		}
		for i := 1; i <= n; i++ {
			fmt.Fprintf(&b, "Subject: Update %d\n\nBody of email %d derived from the source content.\n\n", i, i)
		}
	case models.KindNewsletter:
		b.WriteString("## This Week\n\nNewsletter rendition of the source content.\n")
		for _, section := range stringListParam(req.Parameters, "sections") {
			fmt.Fprintf(&b, "\n### %s\n\nSection content.\n", section)
		}
	case models.KindSummary:
		b.WriteString("A concise summary of the provided content, capturing its key points and essential information.")
	default:
		b.WriteString("Transformed content per the custom instructions.")
	}
	return b.String()
}
